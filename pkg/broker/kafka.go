package broker

import (
	"context"
	"ecommerce/pkg/config"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IBM/sarama"
)

type KafkaBroker struct {
	SyncProducer sarama.SyncProducer
	Brokers      []string
	conf         config.Kafka
	logger       *zap.SugaredLogger

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
}

func NewKafkaBroker(conf config.Kafka, logger *zap.SugaredLogger) (*KafkaBroker, error) {
	logger.Debugf("Создание producer для brokers: %s", conf.Brokers)
	syncProducer, err := newSyncProducer(conf)
	if err != nil {
		logger.Errorf("Ошибка создания producer: %v", err)
		return nil, fmt.Errorf("%w", err)
	}
	logger.Infof("Producer создан успешно")

	broker := &KafkaBroker{
		SyncProducer: syncProducer,
		Brokers:      splitBrokers(conf.Brokers),
		conf:         conf,
		logger:       logger,
	}
	logger.Infof("KafkaBroker создан. Brokers: %v", broker.Brokers)
	return broker, nil
}

// NewConsumerGroup создаёт отдельного участника группы groupID.
// Каждый вызов: новый член группы: брокер раздаёт участникам непересекающиеся партиции.
func (kb *KafkaBroker) NewConsumerGroup(groupID string) (sarama.ConsumerGroup, error) {
	kb.logger.Debugf("Создание consumer group %s для brokers: %s", groupID, kb.conf.Brokers)
	group, err := newConsumerGroup(kb.conf, groupID)
	if err != nil {
		kb.logger.Errorf("Ошибка создания consumer group %s: %v", groupID, err)
		return nil, err
	}

	kb.mu.Lock()
	kb.groups = append(kb.groups, group)
	kb.mu.Unlock()

	kb.logger.Infof("Consumer group %s создан успешно", groupID)
	return group, nil
}

// HealthCheck проверяет доступность Kafka брокера и Producer
//
// Важно: НЕ использует client.Partitions(), так как это требует операции Describe в ACL.
// Проверяем инициализацию SyncProducer и доступность брокеров через минимальный клиент.
func (kb *KafkaBroker) HealthCheck(ctx context.Context) error {
	if kb.SyncProducer == nil {
		return errors.New("kafka producer is not initialized")
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 2 * time.Second
	cfg.Net.ReadTimeout = 2 * time.Second
	cfg.Net.WriteTimeout = 2 * time.Second
	cfg.Metadata.Timeout = 2 * time.Second
	cfg.Metadata.Retry.Max = 1

	// Приоритет Writer credentials
	applySASLConfig(cfg, kb.conf, kb.conf.WriterUsr != "" && kb.conf.WriterUsrPwd != "")

	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := sarama.NewClient(kb.Brokers, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka brokers: %w", err)
	}
	defer client.Close()

	if len(client.Brokers()) == 0 {
		return errors.New("no kafka brokers available")
	}

	return nil
}

// Close закрывает все consumer group и producer.
func (kb *KafkaBroker) Close() error {
	kb.mu.Lock()
	groups := kb.groups
	kb.groups = nil
	kb.mu.Unlock()

	var errs []error
	for _, g := range groups {
		if err := g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer group: %w", err))
		}
	}
	if kb.SyncProducer != nil {
		if err := kb.SyncProducer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// applySASLConfig применяет SASL конфигурацию к sarama.Config
// useWriterCreds: true - использует WriterUsr/WriterUsrPwd, false - ReaderUsr/ReaderUsrPwd
func applySASLConfig(cfg *sarama.Config, conf config.Kafka, useWriterCreds bool) {
	usr, pwd := conf.ReaderUsr, conf.ReaderUsrPwd
	if useWriterCreds {
		usr, pwd = conf.WriterUsr, conf.WriterUsrPwd
	}
	if usr == "" || pwd == "" {
		return
	}
	cfg.Net.SASL.User = usr
	cfg.Net.SASL.Password = pwd
	cfg.Net.SASL.Enable = true
	cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
}

func EnableSaramaZapLogs(base *zap.SugaredLogger) {
	logger := base.Named("sarama")
	sarama.Logger = &zapSarama{logger}
	logger.Info("Sarama logger initialized")
}

type zapSarama struct{ l *zap.SugaredLogger }

func (z *zapSarama) Print(v ...interface{})                 { z.l.Debug(v...) }
func (z *zapSarama) Printf(format string, v ...interface{}) { z.l.Debugf(format, v...) }
func (z *zapSarama) Println(v ...interface{})               { z.l.Debug(v...) }

func splitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

func newConsumerGroup(conf config.Kafka, groupID string) (sarama.ConsumerGroup, error) {
	kafkaConfig := sarama.NewConfig()
	// at-least-once: оффсет коммитим только после MarkMessage
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = true
	kafkaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	kafkaConfig.Consumer.Return.Errors = true
	applySASLConfig(kafkaConfig, conf, false) // используем Reader credentials

	consumer, err := sarama.NewConsumerGroup(splitBrokers(conf.Brokers), groupID, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании Kafka Consumer Group: %w", err)
	}

	return consumer, nil
}

func newSyncProducer(conf config.Kafka) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()

	kafkaConfig.Net.DialTimeout = 10 * time.Second
	kafkaConfig.Net.ReadTimeout = 15 * time.Second
	kafkaConfig.Net.WriteTimeout = 15 * time.Second
	kafkaConfig.Net.KeepAlive = 30 * time.Second

	kafkaConfig.Metadata.Timeout = 10 * time.Second
	kafkaConfig.Metadata.Retry.Max = 1
	kafkaConfig.Metadata.Retry.Backoff = 1 * time.Second
	kafkaConfig.Metadata.RefreshFrequency = 1 * time.Minute

	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 0
	kafkaConfig.Producer.Timeout = 10 * time.Second
	// одинаковый ключ всегда попадает в одну партицию
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	applySASLConfig(kafkaConfig, conf, true) // используем Writer credentials

	producer, err := sarama.NewSyncProducer(splitBrokers(conf.Brokers), kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании Kafka Sync Producer: %w", err)
	}

	return producer, nil
}
