package use_cases

import (
	"context"
	"ecommerce/internal/application/entity"
	"ecommerce/internal/application/service"
	"ecommerce/pkg/config"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrRetryClaim заявка не обработана из-за инфраструктурной ошибки, сообщение нужно перечитать
var ErrRetryClaim = errors.New("coupon claim must be redelivered")

type UseCaser interface {
	CompleteOrder(ctx context.Context, req entity.CompleteOrderRequest) (*entity.Order, *entity.OutboxEvent, error)
	CreateCoupon(ctx context.Context, req entity.CreateCouponRequest) (*entity.CouponResponse, error)
	GetCoupon(ctx context.Context, id string) (*entity.CouponResponse, error)
	RequestIssue(ctx context.Context, couponID, userID string) (entity.ClaimResult, error)

	ListOutbox(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error)
	ListAggregateOutbox(ctx context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error)
	RequeueFailedEvent(ctx context.Context, id int64) (*entity.OutboxEvent, error)
	CleanupPublishedOutbox(ctx context.Context)
	RunRelay(ctx context.Context)

	ProcessCouponClaim(ctx context.Context, msg entity.CouponClaimMessage) error
	ForwardOrderCompleted(ctx context.Context, msg entity.OrderCompletedMessage) error

	HealthCheck(ctx context.Context) entity.HealthStatus
}

type UseCase struct {
	service service.Service
	logger  *zap.SugaredLogger
	conf    *config.Config
}

func NewUseCase(service service.Service, logger *zap.SugaredLogger, conf *config.Config) *UseCase {
	return &UseCase{
		service: service,
		logger:  logger,
		conf:    conf,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) entity.HealthStatus {
	return u.service.HealthCheck(ctx)
}

func (u *UseCase) CompleteOrder(ctx context.Context, req entity.CompleteOrderRequest) (*entity.Order, *entity.OutboxEvent, error) {
	u.logger.Debugf("[user: %s] CompleteOrder started", req.UserID)
	return u.service.CompleteOrder(ctx, req)
}

func (u *UseCase) CreateCoupon(ctx context.Context, req entity.CreateCouponRequest) (*entity.CouponResponse, error) {
	u.logger.Debugf("[coupon: %s] CreateCoupon started", req.ID)
	c, err := u.service.CreateCoupon(ctx, req)
	if err != nil {
		return nil, err
	}
	return toCouponResponse(c), nil
}

func (u *UseCase) GetCoupon(ctx context.Context, id string) (*entity.CouponResponse, error) {
	c, err := u.service.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCouponResponse(c), nil
}

func (u *UseCase) RequestIssue(ctx context.Context, couponID, userID string) (entity.ClaimResult, error) {
	return u.service.RequestIssue(ctx, couponID, userID)
}

func (u *UseCase) ListOutbox(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error) {
	return u.service.ListOutbox(ctx, status, limit)
}

func (u *UseCase) ListAggregateOutbox(ctx context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error) {
	return u.service.ListAggregateOutbox(ctx, aggregateType, aggregateID)
}

func (u *UseCase) RequeueFailedEvent(ctx context.Context, id int64) (*entity.OutboxEvent, error) {
	return u.service.RequeueFailedEvent(ctx, id)
}

func (u *UseCase) CleanupPublishedOutbox(ctx context.Context) {
	days := u.conf.Cron.RetentionDays
	u.logger.Infof("CleanupPublishedOutbox called with retentionDays=%d", days)
	u.service.CleanupPublishedOutbox(ctx, &days)
}

func (u *UseCase) RunRelay(ctx context.Context) {
	u.logger.Debug("relay started")
	u.service.RelayEventRun(ctx)
}

// ProcessCouponClaim любой исход выдачи: обработанное сообщение. Ошибка: только инфраструктурная,
// тогда оффсет не коммитится и заявка придёт снова.
func (u *UseCase) ProcessCouponClaim(ctx context.Context, msg entity.CouponClaimMessage) error {
	if msg.CouponID == "" || msg.UserID == "" {
		u.logger.Warnf("skip malformed coupon claim: %+v", msg)
		return nil
	}
	result, err := u.service.ProcessClaim(ctx, msg.CouponID, msg.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetryClaim, err)
	}
	u.logger.Debugf("[coupon: %s, user: %s] claim requested at %s processed: %s",
		msg.CouponID, msg.UserID, msg.RequestedAt, result)
	return nil
}

func (u *UseCase) ForwardOrderCompleted(ctx context.Context, msg entity.OrderCompletedMessage) error {
	return u.service.ForwardOrderCompleted(ctx, msg)
}

func toCouponResponse(c *entity.Coupon) *entity.CouponResponse {
	return &entity.CouponResponse{
		ID:            c.ID,
		Name:          c.Name,
		TotalQuantity: c.TotalQuantity,
		IssuedCount:   c.IssuedCount,
		Remaining:     c.Remaining(),
		ExpiresAt:     c.ExpiresAt,
	}
}
