package listener

import (
	"context"
	"ecommerce/internal/application/entity"
	"ecommerce/pkg/metrics"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type OrderForwarder interface {
	ForwardOrderCompleted(ctx context.Context, msg entity.OrderCompletedMessage) error
}

// OrderCompletedConsumer пересылает факты о заказах во внешнюю платформу.
// Ошибка платформы не мешает коммиту оффсета: заказ уже завершён и событие уже в Kafka.
type OrderCompletedConsumer struct {
	forwarder OrderForwarder
	logger    *zap.SugaredLogger
	m         *metrics.Metrics
}

func NewOrderCompletedConsumer(forwarder OrderForwarder, logger *zap.SugaredLogger, m *metrics.Metrics) *OrderCompletedConsumer {
	return &OrderCompletedConsumer{
		forwarder: forwarder,
		logger:    logger,
		m:         m,
	}
}

func (k *OrderCompletedConsumer) Setup(session sarama.ConsumerGroupSession) error {
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("setup").Inc()
	}
	k.logger.Infof("order consumer %s setup, claims: %v", session.MemberID(), session.Claims())
	return nil
}

func (k *OrderCompletedConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("cleanup").Inc()
	}
	k.logger.Infof("order consumer %s cleanup", session.MemberID())
	return nil
}

func (k *OrderCompletedConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	return consume(session, claim, k.logger, k.m, func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		var order entity.OrderCompletedMessage
		if err := json.Unmarshal(msg.Value, &order); err != nil {
			k.logger.Errorf("skip undecodable order-completed partition:%d offset:%d: %v", msg.Partition, msg.Offset, err)
			return nil
		}
		if err := k.forwarder.ForwardOrderCompleted(ctx, order); err != nil {
			k.logger.Warnf("[order: %s] data platform delivery failed, message consumed: %v", order.OrderID, err)
		}
		return nil
	})
}
