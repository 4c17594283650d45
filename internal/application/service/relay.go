package service

import (
	"context"
	"ecommerce/internal/application/common"
	"ecommerce/internal/application/entity"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

type RelayOutcome int

const (
	OutcomePublished RelayOutcome = iota
	OutcomeRetry
	OutcomeFailed
	// OutcomeSkipped статус не обновлён; событие вернётся после истечения аренды
	OutcomeSkipped
	// OutcomeDeferred предыдущее событие агрегата ушло на повтор, это ждёт вместе с ним
	OutcomeDeferred
)

type RelayStats struct {
	Reserved  int
	Published int
	Retried   int
	Failed    int
	Skipped   int
	Deferred  int
}

func (st *RelayStats) add(o RelayOutcome) {
	switch o {
	case OutcomePublished:
		st.Published++
	case OutcomeRetry:
		st.Retried++
	case OutcomeFailed:
		st.Failed++
	case OutcomeDeferred:
		st.Deferred++
	default:
		st.Skipped++
	}
}

func (s *ServiceImpl) RelayEventRun(ctx context.Context) {
	s.logger.Infow("relay started", "workers", s.cfg.Workers, "batch", s.cfg.BatchSize,
		"lease", s.cfg.Lease.String(), "poll", s.cfg.PollPeriod.String())
	if s.m != nil {
		s.m.Go.InternalGoroutines.WithLabelValues("relay").Inc()
		defer s.m.Go.InternalGoroutines.WithLabelValues("relay").Dec()
	}

	period := s.cfg.PollPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("relay stopping")
			return
		case <-ticker.C:
			st, err := s.RelayTick(ctx)
			if err != nil {
				s.logger.Errorw("relay tick failed", "err", err)
				continue
			}
			if st.Reserved > 0 {
				s.logger.Infow("relay tick done", "reserved", st.Reserved, "published", st.Published,
					"retried", st.Retried, "failed", st.Failed, "skipped", st.Skipped, "deferred", st.Deferred)
			}
		}
	}
}

// RelayTick один проход relay. События одного агрегата попадают к одному воркеру
// и публикуются последовательно в порядке created_at. Если событие агрегата ушло на повтор,
// следующие события того же агрегата в этом проходе не публикуются.
func (s *ServiceImpl) RelayTick(ctx context.Context) (RelayStats, error) {
	events, err := s.transactions.GetOperationsFromOutbox(ctx, *s.cfg)
	if err != nil {
		return RelayStats{}, err
	}

	st := RelayStats{Reserved: len(events)}
	if len(events) == 0 {
		return st, nil
	}
	if s.m != nil {
		s.m.Outbox.ReservedTotal.Add(float64(len(events)))
	}

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	shards := make([][]entity.OutboxEvent, workers)
	for _, e := range events {
		i := shardFor(e.AggregateID, workers)
		shards[i] = append(shards[i], e)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for wid, batch := range shards {
		if len(batch) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			held := make(map[string]heldAggregate)
			for _, e := range batch {
				var out RelayOutcome
				if h, ok := held[e.AggregateID]; ok {
					out = s.deferEvent(ctx, e, h)
				} else {
					var next time.Time
					out, next = s.processOne(ctx, wid, e)
					if out == OutcomeRetry {
						held[e.AggregateID] = heldAggregate{blockerID: e.ID, until: next}
					}
				}
				mu.Lock()
				st.add(out)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return st, nil
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// heldAggregate событие blockerID агрегата ждёт повтора до until
type heldAggregate struct {
	blockerID int64
	until     time.Time
}

// processOne публикует одно событие из outbox и двигает его статус.
// Для OutcomeRetry возвращает также время следующей попытки.
func (s *ServiceImpl) processOne(ctx context.Context, wid int, e entity.OutboxEvent) (RelayOutcome, time.Time) {
	s.logger.Debugf("[ID %d] relay-process started, workerID: %d", e.ID, wid)

	topic := s.topicFor(e.EventType)

	pubCtx := ctx
	cancel := context.CancelFunc(func() {})
	if s.cfg.PublishTimeout > 0 {
		pubCtx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
	}
	err := s.kafkaProducer.ProduceMessage(pubCtx, topic, e.AggregateID, e.Payload)
	cancel()

	if err != nil && ctx.Err() != nil {
		// остановка сервиса: попытку не засчитываем, событие вернётся после аренды
		s.logger.Warnf("[ID %d] relay stopped during publish: %v", e.ID, err)
		return OutcomeSkipped, time.Time{}
	}

	// статус обновляем даже при отмене родительского контекста
	updCtx := context.WithoutCancel(ctx)

	if err != nil {
		return s.handlePublishFailure(updCtx, e, err)
	}

	if err := s.repo.MarkPublished(updCtx, e.ID); err != nil {
		// сообщение уже ушло; после истечения аренды возможен дубль
		s.logger.Errorf("[ID %d] sent to kafka but mark published failed: %v", e.ID, err)
		return OutcomeSkipped, time.Time{}
	}
	if s.m != nil {
		s.m.Outbox.PublishedTotal.WithLabelValues(e.EventType).Inc()
	}
	s.logger.Infof("[ID %d] published topic=%s key=%s", e.ID, topic, e.AggregateID)
	return OutcomePublished, time.Time{}
}

// deferEvent переносит событие на время повтора блокирующего события, не расходуя попытку
func (s *ServiceImpl) deferEvent(ctx context.Context, e entity.OutboxEvent, h heldAggregate) RelayOutcome {
	reason := fmt.Sprintf("deferred behind event %d", h.blockerID)
	if e.LastError != nil {
		reason = *e.LastError
	}
	if err := s.repo.MarkRetry(context.WithoutCancel(ctx), e.ID, e.RetryCount, h.until, reason); err != nil {
		s.logger.Errorf("[ID %d] defer error: %v", e.ID, err)
		return OutcomeSkipped
	}
	s.logger.Infof("[ID %d] deferred behind event %d until %s", e.ID, h.blockerID, h.until.Format(time.RFC3339))
	return OutcomeDeferred
}

func (s *ServiceImpl) handlePublishFailure(ctx context.Context, e entity.OutboxEvent, cause error) (RelayOutcome, time.Time) {
	retry := e.RetryCount + 1
	lastErr := cause.Error()

	if retry > s.cfg.MaxRetries {
		if err := s.repo.MarkFailed(ctx, e.ID, retry, lastErr); err != nil {
			s.logger.Errorf("[ID %d] mark failed error: %v", e.ID, err)
			return OutcomeSkipped, time.Time{}
		}
		if s.m != nil {
			s.m.Outbox.FailedTotal.WithLabelValues(e.EventType).Inc()
		}
		s.logger.Errorf("[ID %d] outbox event FAILED after %d attempts, aggregate=%s/%s type=%s: %v",
			e.ID, retry, e.AggregateType, e.AggregateID, e.EventType, cause)
		return OutcomeFailed, time.Time{}
	}

	next := s.now().Add(common.NextRetryDelay(retry, s.cfg.BackoffBase, s.cfg.BackoffCap))
	if err := s.repo.MarkRetry(ctx, e.ID, retry, next, lastErr); err != nil {
		s.logger.Errorf("[ID %d] mark retry error: %v", e.ID, err)
		return OutcomeSkipped, time.Time{}
	}
	if s.m != nil {
		s.m.Outbox.RetriedTotal.WithLabelValues(e.EventType).Inc()
	}
	s.logger.Warnf("[ID %d] publish failed, retry %d/%d at %s: %v",
		e.ID, retry, s.cfg.MaxRetries, next.Format(time.RFC3339), cause)
	return OutcomeRetry, next
}

func (s *ServiceImpl) topicFor(eventType string) string {
	switch eventType {
	case entity.EventOrderCompleted:
		return s.kafka.OrderCompletedTopic
	default:
		return s.kafka.DefaultTopic
	}
}
