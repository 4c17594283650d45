package service

import (
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/entity"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func (s *ServiceImpl) CreateCoupon(ctx context.Context, req entity.CreateCouponRequest) (*entity.Coupon, error) {
	c := &entity.Coupon{
		ID:            req.ID,
		Name:          req.Name,
		TotalQuantity: req.TotalQuantity,
		ExpiresAt:     req.ExpiresAt.UTC(),
	}
	if err := s.repo.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ServiceImpl) GetCoupon(ctx context.Context, id string) (*entity.Coupon, error) {
	return s.repo.GetCoupon(ctx, id)
}

// RequestIssue ставит заявку в топик coupon-issue-request с ключом couponID.
// Результат ClaimAccepted: заявка принята в очередь, выдача случится в consumer.
func (s *ServiceImpl) RequestIssue(ctx context.Context, couponID, userID string) (entity.ClaimResult, error) {
	s.logger.Debugf("[coupon: %s, user: %s] RequestIssue started", couponID, userID)

	if s.gateSoldOut(ctx, couponID) {
		return s.claimed("request", couponID, userID, entity.ClaimExhausted), nil
	}

	coupon, err := s.repo.GetCoupon(ctx, couponID)
	if errors.Is(err, appers.ErrCouponNotFound) {
		return s.claimed("request", couponID, userID, entity.ClaimNotFound), nil
	}
	if err != nil {
		return "", err
	}
	now := s.now()
	if coupon.Expired(now) {
		return s.claimed("request", couponID, userID, entity.ClaimExpired), nil
	}
	if coupon.Exhausted() {
		s.markSoldOut(ctx, coupon, now)
		return s.claimed("request", couponID, userID, entity.ClaimExhausted), nil
	}

	gated := false
	if s.gate != nil {
		added, err := s.gate.TryRequest(ctx, couponID, userID, coupon.ExpiresAt.Sub(now))
		switch {
		case err != nil:
			// без Redis идём дальше: дубль всё равно отсечёт UNIQUE в processor
			s.logger.Warnf("[coupon: %s, user: %s] claim gate unavailable: %v", couponID, userID, err)
		case !added:
			return s.claimed("request", couponID, userID, entity.ClaimDuplicate), nil
		default:
			gated = true
		}
	}

	payload, err := json.Marshal(entity.CouponClaimMessage{
		CouponID:    couponID,
		UserID:      userID,
		RequestedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("marshal coupon claim: %w", err)
	}

	if err := s.kafkaProducer.ProduceMessage(ctx, s.kafka.CouponIssueTopic, couponID, payload); err != nil {
		s.logger.Errorf("[coupon: %s, user: %s] publish claim failed: %v", couponID, userID, err)
		if gated {
			s.releaseGate(context.WithoutCancel(ctx), couponID, userID)
		}
		if s.m != nil {
			s.m.Coupon.ClaimsTotal.WithLabelValues("request", "publish_error").Inc()
		}
		return "", fmt.Errorf("%w: %v", appers.ErrClaimPublish, err)
	}

	return s.claimed("request", couponID, userID, entity.ClaimAccepted), nil
}

// ProcessClaim выдаёт купон. Вызывается строго последовательно в рамках партиции,
// поэтому блокировок здесь нет: от перевыдачи защищают условный UPDATE и UNIQUE(coupon_id, user_id).
func (s *ServiceImpl) ProcessClaim(ctx context.Context, couponID, userID string) (entity.ClaimResult, error) {
	s.logger.Debugf("[coupon: %s, user: %s] ProcessClaim started", couponID, userID)

	exists, err := s.repo.IssuanceExists(ctx, couponID, userID)
	if err != nil {
		return "", err
	}
	if exists {
		return s.claimed("process", couponID, userID, entity.ClaimDuplicate), nil
	}

	coupon, err := s.repo.GetCoupon(ctx, couponID)
	if errors.Is(err, appers.ErrCouponNotFound) {
		s.releaseGate(ctx, couponID, userID)
		return s.claimed("process", couponID, userID, entity.ClaimNotFound), nil
	}
	if err != nil {
		return "", err
	}

	now := s.now()
	if coupon.Expired(now) {
		s.releaseGate(ctx, couponID, userID)
		return s.claimed("process", couponID, userID, entity.ClaimExpired), nil
	}
	if coupon.Exhausted() {
		s.markSoldOut(ctx, coupon, now)
		s.releaseGate(ctx, couponID, userID)
		return s.claimed("process", couponID, userID, entity.ClaimExhausted), nil
	}

	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate issuance id: %w", err)
	}
	result, err := s.transactions.IssueCoupon(ctx, &entity.CouponIssuance{
		ID:        id,
		CouponID:  couponID,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: coupon.ExpiresAt,
	})
	if err != nil {
		return "", err
	}

	switch result {
	case entity.ClaimExhausted:
		s.markSoldOut(ctx, coupon, now)
		s.releaseGate(ctx, couponID, userID)
	case entity.ClaimIssued:
		if coupon.IssuedCount+1 >= coupon.TotalQuantity {
			s.markSoldOut(ctx, coupon, now)
		}
	}
	return s.claimed("process", couponID, userID, result), nil
}

func (s *ServiceImpl) claimed(stage, couponID, userID string, result entity.ClaimResult) entity.ClaimResult {
	if s.m != nil {
		s.m.Coupon.ClaimsTotal.WithLabelValues(stage, string(result)).Inc()
	}
	s.logger.Infof("[coupon: %s, user: %s] %s claim: %s", couponID, userID, stage, result)
	return result
}

func (s *ServiceImpl) gateSoldOut(ctx context.Context, couponID string) bool {
	if s.gate == nil {
		return false
	}
	soldOut, err := s.gate.IsSoldOut(ctx, couponID)
	if err != nil {
		s.logger.Warnf("[coupon: %s] claim gate unavailable: %v", couponID, err)
		return false
	}
	return soldOut
}

func (s *ServiceImpl) markSoldOut(ctx context.Context, c *entity.Coupon, now time.Time) {
	if s.gate == nil {
		return
	}
	if err := s.gate.MarkSoldOut(ctx, c.ID, c.ExpiresAt.Sub(now)); err != nil {
		s.logger.Warnf("[coupon: %s] mark sold out failed: %v", c.ID, err)
	}
}

// releaseGate позволяет пользователю подать заявку снова после отказа
func (s *ServiceImpl) releaseGate(ctx context.Context, couponID, userID string) {
	if s.gate == nil {
		return
	}
	if err := s.gate.Release(ctx, couponID, userID); err != nil {
		s.logger.Warnf("[coupon: %s, user: %s] release claim gate failed: %v", couponID, userID, err)
	}
}
