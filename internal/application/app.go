package application

import (
	"context"
	"ecommerce/internal/application/common"
	"ecommerce/internal/application/repo"
	"ecommerce/internal/application/service"
	"ecommerce/internal/application/use-cases"
	"ecommerce/internal/controllers/cron"
	"ecommerce/internal/controllers/handler"
	"ecommerce/internal/controllers/listener"
	"ecommerce/internal/transport/producer"
	"ecommerce/internal/transport/sink"
	"ecommerce/pkg/broker"
	"ecommerce/pkg/config"
	"ecommerce/pkg/db"
	"ecommerce/pkg/httpclient"
	"ecommerce/pkg/metrics"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	postgres       *db.Postgres
	httpServer     *fiber.App
	kafka          *broker.KafkaBroker
	redis          *redis.Client
	httpClient     *httpclient.Client
	cronController *cron.Controller
	m              *metrics.Metrics

	wg sync.WaitGroup
}

// NewApp redisClient может быть nil: выдача купонов тогда работает без быстрого фильтра.
func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	httpServer *fiber.App,
	kafkaBroker *broker.KafkaBroker,
	redisClient *redis.Client,
	m *metrics.Metrics) (*App, error) {
	//Логируем версию приложения
	logger.Infof("Запуск Ecommerce Service версии: %s", common.Version)

	store := repo.NewRepo(postgres, logger, m)
	tx := repo.NewTransactions(store, logger)

	var gate repo.ClaimGate
	if redisClient != nil {
		gate = repo.NewRedisClaimGate(redisClient, logger)
	}

	kafkaProducer := producer.NewProducer(kafkaBroker.SyncProducer, kafkaBroker, logger, conf.Broker.Kafka.MaxAttempts, m)

	httpClient := httpclient.NewClient(conf.HTTPClient, conf.Sink.Timeout)
	dataPlatform := sink.New(conf.Sink, httpClient, logger)

	srv := service.NewService(store, tx, kafkaProducer, gate, dataPlatform, logger, conf, m)
	uc := use_cases.NewUseCase(srv, logger, conf)
	h := handler.NewHandler(uc, logger)
	r := handler.NewRouter(h, httpServer, conf, prometheus.DefaultGatherer, logger)

	// Инициализация cron контроллера
	cronController := cron.NewController(ctx, logger)
	if err := cronController.RegisterOutboxRetentionJob(uc, conf.Cron); err != nil {
		return nil, fmt.Errorf("не удалось зарегистрировать cron задачу: %w", err)
	}
	cronController.Start()

	r.RegisterRouter()

	app := &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		postgres:       postgres,
		httpServer:     httpServer,
		kafka:          kafkaBroker,
		redis:          redisClient,
		httpClient:     httpClient,
		cronController: cronController,
		m:              m,
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		uc.RunRelay(ctx)
	}()

	kafkaConf := conf.Broker.Kafka
	assignments := listener.NewAssignments()
	claims := listener.NewCouponClaimConsumer(uc, assignments, logger, m)
	if err := app.startMembers(ctx, kafkaConf.CouponGroup, kafkaConf.CouponIssueTopic, kafkaConf.CouponConcurrency, claims); err != nil {
		return nil, err
	}

	orders := listener.NewOrderCompletedConsumer(uc, logger, m)
	if err := app.startMembers(ctx, kafkaConf.OrderGroup, kafkaConf.OrderCompletedTopic, kafkaConf.OrderConcurrency, orders); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

// Shutdown вызывается после отмены ctx: дожидается relay и consumers, затем закрывает клиентов.
func (a *App) Shutdown() error {
	// Останавливаем cron задачи
	if a.cronController != nil {
		a.cronController.Stop()
	}

	var errs []error
	if err := a.httpServer.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	a.wg.Wait()
	a.logger.Info("relay и consumers остановлены")

	if err := a.kafka.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	a.httpClient.CloseIdle()

	return errors.Join(errs...)
}

// startMembers поднимает count участников одной группы. Партиции между ними раздаёт брокер.
func (a *App) startMembers(ctx context.Context, groupID, topic string, count int, h sarama.ConsumerGroupHandler) error {
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		group, err := a.kafka.NewConsumerGroup(groupID)
		if err != nil {
			return fmt.Errorf("consumer group %s member %d: %w", groupID, i, err)
		}
		a.wg.Add(1)
		go func(member int) {
			defer a.wg.Done()
			a.runConsumer(ctx, groupID, member, topic, group, h)
		}(i)
	}
	return nil
}

func (a *App) runConsumer(ctx context.Context, groupID string, member int, topic string, group sarama.ConsumerGroup, h sarama.ConsumerGroupHandler) {
	a.logger.Infof("🚀 Запуск consumer %s#%d для топика: %s", groupID, member, topic)
	if a.m != nil {
		a.m.Go.InternalGoroutines.WithLabelValues(groupID).Inc()
		defer a.m.Go.InternalGoroutines.WithLabelValues(groupID).Dec()
	}

	go func() {
		for err := range group.Errors() {
			a.logger.Warnf("consumer %s#%d: %v", groupID, member, err)
		}
	}()

	tracked := listener.TrackFailures(h)
	failures := 0
	for {
		a.logger.Debugf("🔄 consumer %s#%d: подключение к группе", groupID, member)
		err := group.Consume(ctx, []string{topic}, tracked)
		if ctx.Err() != nil {
			a.logger.Infof("consumer %s#%d остановлен по контексту", groupID, member)
			return
		}
		if err == nil && !tracked.Failed() {
			failures = 0
			continue
		}

		// ошибка группы или обработки: пауза растёт, пока сессии подряд заканчиваются ошибкой
		failures++
		pause := common.NextRetryDelay(failures, time.Second, 30*time.Second)
		if err != nil {
			a.logger.Errorf("Ошибка consumer %s#%d: %v, повтор через %s", groupID, member, err, pause)
		} else {
			a.logger.Warnf("consumer %s#%d: сессия прервана ошибкой обработки, повтор через %s", groupID, member, pause)
		}
		if common.SleepCtx(ctx, pause) != nil {
			return
		}
	}
}
