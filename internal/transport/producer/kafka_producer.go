package producer

import (
	"context"
	"ecommerce/internal/application/common"
	"ecommerce/pkg/metrics"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Producer interface {
	// ProduceMessage ждёт подтверждения брокера. Одинаковый key: одна партиция.
	ProduceMessage(ctx context.Context, topic, key string, message []byte) error
	HealthCheck(ctx context.Context) error
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type KafkaProducer struct {
	producer    sarama.SyncProducer
	health      HealthChecker
	logger      *zap.SugaredLogger
	maxAttempts int
	m           *metrics.Metrics
}

func NewProducer(producer sarama.SyncProducer, health HealthChecker, logger *zap.SugaredLogger, maxAttempts int, m *metrics.Metrics) *KafkaProducer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &KafkaProducer{
		producer:    producer,
		health:      health,
		logger:      logger,
		maxAttempts: maxAttempts,
		m:           m,
	}
}

// HealthCheck проверяет доступность Kafka через broker
func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	if p.health == nil {
		return errors.New("kafka broker is not initialized")
	}
	return p.health.HealthCheck(ctx)
}

func (p *KafkaProducer) ProduceMessage(ctx context.Context, topic, key string, message []byte) error {
	if p.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			p.count(topic, "canceled")
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic:     topic,
			Key:       sarama.StringEncoder(key),
			Value:     sarama.ByteEncoder(message),
			Timestamp: time.Now(),
		}

		t0 := time.Now()
		part, off, err := p.send(ctx, msg)
		rt := time.Since(t0)

		//Metric: attempt latency: ok/error
		if p.m != nil {
			res := "ok"
			if err != nil {
				res = "error"
			}
			p.m.Kafka.ProducerAttemptLatencySeconds.WithLabelValues(topic, res).Observe(rt.Seconds())
		}

		if err == nil {
			p.count(topic, "success")
			if p.m != nil {
				p.m.Kafka.ProducerSuccessAttempts.WithLabelValues(topic).Observe(float64(attempt))
			}
			p.logger.Debugf("[key %s] sent topic=%s partition=%d offset=%d attempt=%d rt=%s",
				key, topic, part, off, attempt, rt)
			return nil
		}

		lastErr = err

		var kerr sarama.KError
		if errors.As(err, &kerr) {
			if isPermanent(kerr) {
				p.count(topic, "permanent")
				p.logger.Errorf("[key %s] permanent kafka error attempt=%d rt=%s kafka_error=%s code=%d", key, attempt, rt, kerr.Error(), int16(kerr))
				return fmt.Errorf("permanent kafka error: %w", kerr)
			}

			p.logger.Warnf("[key %s] retryable kafka error attempt=%d rt=%s kafka_error=%s code=%d",
				key, attempt, rt, kerr.Error(), int16(kerr))
		} else {
			p.logger.Warnf("[key %s] retryable error attempt=%d rt=%s reason=%s err=%v",
				key, attempt, rt, ClassifyRetry(err), err)
		}

		if attempt == p.maxAttempts {
			break
		}

		if err := common.SleepCtx(ctx, common.NextBackoffWithJitter(attempt-1)); err != nil {
			// отмена/таймаут контекста считаем как canceled
			p.count(topic, "canceled")
			return err
		}
	}

	p.count(topic, "failed")
	p.logger.Errorf("[key %s] produce_failed after %d attempts: %v", key, p.maxAttempts, lastErr)
	return fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

type sendResult struct {
	partition int32
	offset    int64
	err       error
}

// send ограничивает SendMessage дедлайном ctx. После дедлайна сообщение всё ещё может дойти:
// для at-least-once это допустимый дубль.
func (p *KafkaProducer) send(ctx context.Context, msg *sarama.ProducerMessage) (int32, int64, error) {
	done := make(chan sendResult, 1)
	go func() {
		part, off, err := p.producer.SendMessage(msg)
		done <- sendResult{partition: part, offset: off, err: err}
	}()

	select {
	case res := <-done:
		return res.partition, res.offset, res.err
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

func (p *KafkaProducer) count(topic, result string) {
	if p.m != nil {
		p.m.Kafka.ProducerOperationsTotal.WithLabelValues(topic, result).Inc()
	}
}

func isPermanent(k sarama.KError) bool {
	switch k {
	case sarama.ErrTopicAuthorizationFailed,
		sarama.ErrClusterAuthorizationFailed,
		sarama.ErrInvalidRequest,
		sarama.ErrInvalidMessage,
		sarama.ErrMessageSizeTooLarge,
		sarama.ErrSASLAuthenticationFailed:
		return true
	default:
		return false
	}
}

func ClassifyRetry(err error) string {
	var k sarama.KError
	if errors.As(err, &k) {
		switch k {
		case sarama.ErrLeaderNotAvailable:
			return "leader_not_available"
		case sarama.ErrRequestTimedOut:
			return "broker_timeout"
		case sarama.ErrNotEnoughReplicas, sarama.ErrNotEnoughReplicasAfterAppend:
			return "not_enough_replicas"
		default:
			return k.Error()
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return "net_timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "client_deadline"
	}
	return "other"
}
