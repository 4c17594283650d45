package use_cases

import (
	"context"
	"ecommerce/internal/application/entity"
	"ecommerce/internal/application/service"
	"ecommerce/pkg/config"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubService реализует только то, что нужно тестам; остальное не вызывается
type stubService struct {
	service.Service

	processResult entity.ClaimResult
	processErr    error
	processed     int

	cleanupDays *int
	coupon      *entity.Coupon
}

func (s *stubService) ProcessClaim(context.Context, string, string) (entity.ClaimResult, error) {
	s.processed++
	return s.processResult, s.processErr
}

func (s *stubService) CleanupPublishedOutbox(_ context.Context, days *int) {
	s.cleanupDays = days
}

func (s *stubService) GetCoupon(context.Context, string) (*entity.Coupon, error) {
	return s.coupon, nil
}

func newTestUseCase(svc service.Service) *UseCase {
	conf := &config.Config{Cron: config.Cron{RetentionDays: 14}}
	return NewUseCase(svc, zap.NewNop().Sugar(), conf)
}

func TestProcessCouponClaim(t *testing.T) {
	svc := &stubService{processResult: entity.ClaimExhausted}
	uc := newTestUseCase(svc)
	ctx := context.Background()

	// исчерпание: обработанная заявка, не ошибка
	require.NoError(t, uc.ProcessCouponClaim(ctx, entity.CouponClaimMessage{CouponID: "C", UserID: "u"}))

	// битая заявка пропускается без вызова сервиса
	require.NoError(t, uc.ProcessCouponClaim(ctx, entity.CouponClaimMessage{CouponID: "C"}))
	assert.Equal(t, 1, svc.processed)

	svc.processErr = errors.New("connection reset")
	err := uc.ProcessCouponClaim(ctx, entity.CouponClaimMessage{CouponID: "C", UserID: "u"})
	require.ErrorIs(t, err, ErrRetryClaim)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCleanupPublishedOutbox_UsesRetentionDays(t *testing.T) {
	svc := &stubService{}
	uc := newTestUseCase(svc)

	uc.CleanupPublishedOutbox(context.Background())
	require.NotNil(t, svc.cleanupDays)
	assert.Equal(t, 14, *svc.cleanupDays)
}

func TestGetCoupon_Remaining(t *testing.T) {
	svc := &stubService{coupon: &entity.Coupon{ID: "C", TotalQuantity: 10, IssuedCount: 3, ExpiresAt: time.Now().Add(time.Hour)}}
	uc := newTestUseCase(svc)

	resp, err := uc.GetCoupon(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Remaining)
}
