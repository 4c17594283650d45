package main

import (
	"context"
	"ecommerce/docs"
	"ecommerce/internal/application"
	"ecommerce/pkg/broker"
	"ecommerce/pkg/cache"
	"ecommerce/pkg/config"
	"ecommerce/pkg/db"
	"ecommerce/pkg/httpserver"
	"ecommerce/pkg/metrics"
	"ecommerce/pkg/observability"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// @title           Ecommerce Service API
// @version         1.0
// @description     Заказы с transactional outbox и выдача купонов через Kafka

// @BasePath /ecommerce/api

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.InitLogger(conf.LoggingLevel)

	logger.Infof("LOGGING_LEVEL = %s", conf.LoggingLevel)
	if strings.ToLower(conf.LoggingLevel) == "debug" {
		broker.EnableSaramaZapLogs(logger)
	}

	docs.SwaggerInfo.Host = conf.Server.SwaggerHost
	docs.SwaggerInfo.Schemes = []string{conf.Server.SwaggerSchema}

	m := metrics.New(prometheus.DefaultRegisterer)

	fiberServer := httpserver.NewFiber(conf, m)
	if fiberServer == nil {
		logger.Fatal(errors.New("fiber server is nil"))
	}

	store, err := db.NewPostgres(ctx, conf.Postgres)
	if err != nil {
		logger.Fatal(err)
	}

	kafka, err := broker.NewKafkaBroker(conf.Broker.Kafka, logger)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("🚀 Kafka broker создан успешно. Order topic: %s, coupon topic: %s",
		conf.Broker.Kafka.OrderCompletedTopic, conf.Broker.Kafka.CouponIssueTopic)

	// Redis не обязателен: без него заявки на купоны проверяются только по БД
	var redisClient *redis.Client
	redisClient, err = cache.NewRedis(ctx, conf.Redis)
	if err != nil {
		logger.Warnf("redis %s недоступен, работаем без фильтра заявок: %v", conf.Redis.Addr, err)
		redisClient = nil
	}

	server, err := application.NewApp(ctx, &conf, logger, store, fiberServer, kafka, redisClient, m)
	if err != nil {
		logger.Fatal(err)
	}

	logger.Info("Ecommerce service started successfully")
	logger.Info(fmt.Sprintf("Server config: %+v", conf.Server))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("error listening for server: %v", err)
				return
			}

			logger.Infof("server %v closed", conf.Server.Port)
		}
	}()

	//graceful shutdown
	osSignal := <-interrupt
	switch osSignal {
	case os.Interrupt:
		logger.Infof("%v Got SIGINT...", conf.Server.Port)
	case syscall.SIGTERM:
		logger.Infof("%v Got SIGTERM...", conf.Server.Port)
	}

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Errorf("server %v shutdown: %v", conf.Server.Port, err)
	}

	store.Close()
	logger.Infof("postgres db connection closed")

	logger.Infof("server shutdown %v done", conf.Server.Port)
}
