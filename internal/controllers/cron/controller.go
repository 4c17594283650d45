package cron

import (
	"context"
	"ecommerce/pkg/config"
	"fmt"

	"go.uber.org/zap"
)

type Controller struct {
	scheduler *Scheduler
	logger    *zap.SugaredLogger
}

func NewController(ctx context.Context, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		scheduler: NewScheduler(ctx),
		logger:    logger,
	}
}

// RegisterOutboxRetentionJob поддерживает два режима:
// 1. По расписанию (cron format с секундами): например, "0 0 3 * * *" - каждый день в 03:00
// 2. По интервалу: например, "@every 1h"
func (c *Controller) RegisterOutboxRetentionJob(cleaner OutboxCleaner, conf config.Cron) error {
	spec := jobSpec(conf)
	if conf.Schedule == "" && conf.Interval == "" {
		c.logger.Warnf("Расписание не указано, используется по умолчанию: %s", spec)
	}

	entryID, err := c.scheduler.Add(spec, NewRetentionJob(cleaner, c.logger))
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать задачу очистки outbox: %w", err)
	}

	c.logger.Infof("Задача очистки outbox зарегистрирована с ID: %d, расписание: %s", entryID, spec)
	return nil
}

// jobSpec приоритет: Schedule, затем Interval, затем раз в сутки
func jobSpec(conf config.Cron) string {
	switch {
	case conf.Schedule != "":
		return conf.Schedule
	case conf.Interval != "":
		return conf.Interval
	default:
		return "@daily"
	}
}

// Start запускает планировщик задач
func (c *Controller) Start() {
	c.logger.Info("Запуск планировщика cron задач")
	c.scheduler.Start()
}

// Stop останавливает планировщик задач
func (c *Controller) Stop() {
	c.logger.Info("Остановка планировщика cron задач")
	c.scheduler.Stop()
	c.logger.Info("Планировщик cron задач остановлен")
}
