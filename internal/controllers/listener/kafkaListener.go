package listener

import (
	"context"
	"ecommerce/internal/application/entity"
	"ecommerce/pkg/metrics"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type ClaimProcessor interface {
	ProcessCouponClaim(ctx context.Context, msg entity.CouponClaimMessage) error
}

// CouponClaimConsumer обработчик группы coupon-issue-group. Каждая партиция читается одной
// горутиной строго по порядку, поэтому заявки на один купон обрабатываются последовательно.
type CouponClaimConsumer struct {
	processor   ClaimProcessor
	assignments *Assignments
	logger      *zap.SugaredLogger
	m           *metrics.Metrics
}

func NewCouponClaimConsumer(processor ClaimProcessor, assignments *Assignments, logger *zap.SugaredLogger, m *metrics.Metrics) *CouponClaimConsumer {
	if assignments == nil {
		assignments = NewAssignments()
	}
	return &CouponClaimConsumer{
		processor:   processor,
		assignments: assignments,
		logger:      logger,
		m:           m,
	}
}

func (k *CouponClaimConsumer) Setup(session sarama.ConsumerGroupSession) error {
	k.rebalance("setup")
	if err := k.assignments.Acquire(session.MemberID(), session.Claims()); err != nil {
		k.logger.Errorf("coupon consumer %s: %v", session.MemberID(), err)
		return err
	}
	k.logger.Infof("coupon consumer %s setup, claims: %v", session.MemberID(), session.Claims())
	return nil
}

func (k *CouponClaimConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	k.rebalance("cleanup")
	k.assignments.Release(session.MemberID(), session.Claims())
	k.logger.Infof("coupon consumer %s cleanup", session.MemberID())
	return nil
}

func (k *CouponClaimConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	return consume(session, claim, k.logger, k.m, func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		var claimMsg entity.CouponClaimMessage
		if err := json.Unmarshal(msg.Value, &claimMsg); err != nil {
			// битое сообщение не перечитываем, иначе партиция встанет
			k.logger.Errorf("skip undecodable coupon claim partition:%d offset:%d: %v", msg.Partition, msg.Offset, err)
			return nil
		}
		return k.processor.ProcessCouponClaim(ctx, claimMsg)
	})
}

func (k *CouponClaimConsumer) rebalance(event string) {
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues(event).Inc()
	}
}

// consume читает claim по порядку. Ошибка handle: сообщение не отмечается, claim завершается,
// sarama закрывает сессию и после переподключения сообщение приходит снова.
func consume(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
	logger *zap.SugaredLogger,
	m *metrics.Metrics,
	handle func(ctx context.Context, msg *sarama.ConsumerMessage) error,
) error {
	topic := claim.Topic()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if m != nil {
				m.Kafka.ConsumerInFlight.WithLabelValues(topic).Inc()
			}
			start := time.Now()
			logger.Debugf("Message topic:%q partition:%d offset:%d key:%s", msg.Topic, msg.Partition, msg.Offset, msg.Key)

			err := handle(session.Context(), msg)
			if m != nil {
				m.Kafka.ConsumerMessagesTotal.WithLabelValues(topic).Inc()
				m.Kafka.ConsumerProcessDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
				m.Kafka.ConsumerInFlight.WithLabelValues(topic).Dec()
			}
			if err != nil {
				logger.Errorf("message topic:%q partition:%d offset:%d not processed, will be redelivered: %v",
					msg.Topic, msg.Partition, msg.Offset, err)
				return err
			}

			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
