package service

import (
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/entity"
	"ecommerce/internal/application/repo"
	"ecommerce/internal/transport/producer"
	"ecommerce/internal/transport/sink"
	"ecommerce/pkg/config"
	"ecommerce/pkg/metrics"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const defaultOutboxListLimit = 100

type Service interface {
	CompleteOrder(ctx context.Context, req entity.CompleteOrderRequest) (*entity.Order, *entity.OutboxEvent, error)
	ForwardOrderCompleted(ctx context.Context, msg entity.OrderCompletedMessage) error

	CreateCoupon(ctx context.Context, req entity.CreateCouponRequest) (*entity.Coupon, error)
	GetCoupon(ctx context.Context, id string) (*entity.Coupon, error)
	RequestIssue(ctx context.Context, couponID, userID string) (entity.ClaimResult, error)
	ProcessClaim(ctx context.Context, couponID, userID string) (entity.ClaimResult, error)

	RelayEventRun(ctx context.Context)
	RelayTick(ctx context.Context) (RelayStats, error)
	ListOutbox(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error)
	ListAggregateOutbox(ctx context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error)
	RequeueFailedEvent(ctx context.Context, id int64) (*entity.OutboxEvent, error)
	CleanupPublishedOutbox(ctx context.Context, days *int)

	HealthCheck(ctx context.Context) entity.HealthStatus
}

type ServiceImpl struct {
	repo          repo.Repo
	transactions  repo.Transactions
	kafkaProducer producer.Producer
	gate          repo.ClaimGate
	sink          sink.Sink
	logger        *zap.SugaredLogger
	cfg           *config.RelayConfig
	kafka         config.Kafka
	sinkTimeout   time.Duration
	m             *metrics.Metrics

	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// NewService gate может быть nil: тогда заявки проверяются только по БД.
func NewService(
	repo repo.Repo,
	transactions repo.Transactions,
	kafkaProducer producer.Producer,
	gate repo.ClaimGate,
	sink sink.Sink,
	logger *zap.SugaredLogger,
	conf *config.Config,
	m *metrics.Metrics,
) *ServiceImpl {
	return &ServiceImpl{
		repo:          repo,
		transactions:  transactions,
		kafkaProducer: kafkaProducer,
		gate:          gate,
		sink:          sink,
		logger:        logger,
		cfg:           &conf.Relay,
		kafka:         conf.Broker.Kafka,
		sinkTimeout:   conf.Sink.Timeout,
		m:             m,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewV4,
	}
}

// HealthCheck проверяет доступность БД, Kafka и Redis
func (s *ServiceImpl) HealthCheck(ctx context.Context) entity.HealthStatus {
	var h entity.HealthStatus
	h.Database = s.repo.HealthCheck(ctx)
	h.Kafka = s.kafkaProducer.HealthCheck(ctx)
	if s.gate != nil {
		h.Redis = s.gate.HealthCheck(ctx)
	} else {
		h.Redis = fmt.Errorf("redis is not configured")
	}
	return h
}

// CompleteOrder фиксирует заказ и событие OrderCompleted в одной транзакции.
// Сеть здесь не трогаем: доставку в Kafka делает relay.
func (s *ServiceImpl) CompleteOrder(ctx context.Context, req entity.CompleteOrderRequest) (*entity.Order, *entity.OutboxEvent, error) {
	id, err := s.newID()
	if err != nil {
		return nil, nil, fmt.Errorf("generate order id: %w", err)
	}

	order := &entity.Order{
		ID:             id,
		UserID:         req.UserID,
		TotalAmount:    req.TotalAmount,
		DiscountAmount: req.DiscountAmount,
		FinalAmount:    req.TotalAmount - req.DiscountAmount,
		Status:         entity.OrderCompleted,
		CreatedAt:      s.now(),
	}
	s.logger.Debugf("[order: %s] CompleteOrder started, user=%s final=%d", order.ID, order.UserID, order.FinalAmount)

	payload, err := json.Marshal(entity.OrderCompletedMessage{
		OrderID:     order.ID.String(),
		UserID:      order.UserID,
		FinalAmount: order.FinalAmount,
		CreatedAt:   order.CreatedAt,
	})
	if err != nil {
		s.logger.Errorf("[order: %s] failed to marshal payload: %v", order.ID, err)
		return nil, nil, fmt.Errorf("failed to marshal order completed: %w", err)
	}

	evt, err := s.transactions.CompleteOrder(ctx, order, payload)
	if err != nil {
		return nil, nil, err
	}
	return order, evt, nil
}

// ForwardOrderCompleted доставка во внешнюю платформу: отдельный best-effort шаг.
// Ошибка возвращается только для логов и метрик, заказ она не откатывает.
func (s *ServiceImpl) ForwardOrderCompleted(ctx context.Context, msg entity.OrderCompletedMessage) error {
	if s.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sinkTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.sink.Send(ctx, msg)
	rt := time.Since(start)

	result := "success"
	if err != nil {
		result = "failure"
	}
	if s.m != nil {
		s.m.Sink.RequestsTotal.WithLabelValues(result).Inc()
		s.m.Sink.DurationSeconds.Observe(rt.Seconds())
	}

	if err != nil {
		s.logger.Warnf("[order: %s] forward to data platform failed rt=%s: %v", msg.OrderID, rt, err)
		return err
	}
	s.logger.Infof("[order: %s] forwarded to data platform rt=%s", msg.OrderID, rt)
	return nil
}

func (s *ServiceImpl) ListOutbox(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", appers.ErrInvalidOutboxEvent, status)
	}
	if limit <= 0 || limit > 1000 {
		limit = defaultOutboxListLimit
	}
	return s.repo.ListOutboxByStatus(ctx, status, limit)
}

func (s *ServiceImpl) ListAggregateOutbox(ctx context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error) {
	return s.repo.ListOutboxByAggregate(ctx, aggregateType, aggregateID)
}

func (s *ServiceImpl) RequeueFailedEvent(ctx context.Context, id int64) (*entity.OutboxEvent, error) {
	s.logger.Infof("[ID %d] RequeueFailedEvent started", id)
	return s.transactions.RequeueOutbox(ctx, id)
}

func (s *ServiceImpl) CleanupPublishedOutbox(ctx context.Context, days *int) {
	deleted, err := s.repo.DeletePublishedOutbox(ctx, days)
	if err != nil {
		s.logger.Errorf("cleanup published outbox failed: %v", err)
		return
	}
	if s.m != nil {
		s.m.Outbox.CleanedTotal.Add(float64(deleted))
	}
}
