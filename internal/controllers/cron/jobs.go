package cron

import (
	"context"

	"go.uber.org/zap"
)

type OutboxCleaner interface {
	CleanupPublishedOutbox(ctx context.Context)
}

// RetentionJob удаляет опубликованные события outbox старше срока хранения
type RetentionJob struct {
	cleaner OutboxCleaner
	logger  *zap.SugaredLogger
}

func NewRetentionJob(cleaner OutboxCleaner, logger *zap.SugaredLogger) *RetentionJob {
	return &RetentionJob{
		cleaner: cleaner,
		logger:  logger,
	}
}

func (j *RetentionJob) Run(ctx context.Context) {
	j.logger.Info("Запуск задачи очистки outbox")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("Паника при выполнении задачи очистки outbox: %v", r)
		}
	}()

	j.cleaner.CleanupPublishedOutbox(ctx)
	j.logger.Info("Задача очистки outbox завершена")
}
