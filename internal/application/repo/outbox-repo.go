package repo

import (
	"cmp"
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/common"
	"ecommerce/internal/application/entity"
	"ecommerce/pkg/db"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const defaultRetentionDays = 30

// OutboxWriter пишет событие в outbox внутри транзакции бизнес-операции.
type OutboxWriter interface {
	RecordOutbox(ctx context.Context, q db.Querier, aggregateType, aggregateID, eventType string, payload []byte) (*entity.OutboxEvent, error)
}

// RecordOutbox создаёт PENDING событие. Без открытой транзакции (q == nil или пул) запись
// отклоняется: событие и бизнес-строка обязаны коммититься вместе.
func (r *RepoImpl) RecordOutbox(ctx context.Context, q db.Querier, aggregateType, aggregateID, eventType string, payload []byte) (*entity.OutboxEvent, error) {
	if _, ok := q.(pgx.Tx); !ok {
		r.logger.Errorf("[aggregate: %s/%s] RecordOutbox called without transaction", aggregateType, aggregateID)
		return nil, appers.ErrTxRequired
	}
	if err := validateOutbox(aggregateType, aggregateID, eventType, payload); err != nil {
		return nil, err
	}

	r.logger.Debugf("[aggregate: %s/%s] RecordOutbox %s", aggregateType, aggregateID, eventType)
	defer r.observe("insert", "outbox_event", time.Now())

	e, err := scanOutbox(q.QueryRow(ctx, insertOutboxQuery, aggregateType, aggregateID, eventType, string(payload)))
	if err != nil {
		r.fail("insert", "outbox_event", "db")
		return nil, fmt.Errorf("insert outbox_event: %w", err)
	}
	if r.m != nil {
		r.m.Outbox.RecordedTotal.WithLabelValues(eventType).Inc()
	}

	return e, nil
}

func validateOutbox(aggregateType, aggregateID, eventType string, payload []byte) error {
	switch {
	case strings.TrimSpace(aggregateType) == "":
		return fmt.Errorf("%w: aggregate type is required", appers.ErrInvalidOutboxEvent)
	case strings.TrimSpace(aggregateID) == "":
		return fmt.Errorf("%w: aggregate id is required", appers.ErrInvalidOutboxEvent)
	case strings.TrimSpace(eventType) == "":
		return fmt.Errorf("%w: event type is required", appers.ErrInvalidOutboxEvent)
	case len(payload) == 0 || !json.Valid(payload):
		return fmt.Errorf("%w: payload must be valid JSON", appers.ErrInvalidOutboxEvent)
	}
	return nil
}

// ReserveOutboxBatch резервирует готовые к отправке PENDING события в порядке created_at, id.
func (r *RepoImpl) ReserveOutboxBatch(ctx context.Context, q db.Querier, lease time.Duration, limit int) ([]entity.OutboxEvent, error) {
	r.logger.Debugf("[lease: %s, limit: %d] ReserveOutboxBatch started", lease, limit)
	defer r.observe("update", "outbox_event", time.Now())

	rows, err := q.Query(ctx, reserveBatchSQL, common.PgInterval(lease), limit)
	if err != nil {
		r.fail("update", "outbox_event", "db")
		return nil, fmt.Errorf("reserve outbox batch: %w", err)
	}
	res, err := collectOutbox(rows)
	if err != nil {
		return nil, fmt.Errorf("reserve outbox batch: %w", err)
	}

	// UPDATE ... RETURNING не гарантирует порядок строк
	slices.SortFunc(res, func(a, b entity.OutboxEvent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return res, nil
}

func (r *RepoImpl) MarkPublished(ctx context.Context, id int64) error {
	defer r.observe("update", "outbox_event", time.Now())

	tag, err := r.db.Exec(ctx, markPublishedSQL, id)
	if err != nil {
		r.fail("update", "outbox_event", "db")
		return fmt.Errorf("outbox mark published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warnf("[ID %d] mark published: event is not PENDING anymore", id)
	}
	return nil
}

func (r *RepoImpl) MarkRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastErr string) error {
	defer r.observe("update", "outbox_event", time.Now())

	tag, err := r.db.Exec(ctx, markRetrySQL, id, retryCount, nextRetryAt, lastErr)
	if err != nil {
		r.fail("update", "outbox_event", "db")
		return fmt.Errorf("outbox mark retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warnf("[ID %d] mark retry: event is not PENDING anymore", id)
	}
	return nil
}

func (r *RepoImpl) MarkFailed(ctx context.Context, id int64, retryCount int, lastErr string) error {
	defer r.observe("update", "outbox_event", time.Now())

	tag, err := r.db.Exec(ctx, markFailedSQL, id, retryCount, lastErr)
	if err != nil {
		r.fail("update", "outbox_event", "db")
		return fmt.Errorf("outbox mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warnf("[ID %d] mark failed: event is not PENDING anymore", id)
	}
	return nil
}

func (r *RepoImpl) GetOutbox(ctx context.Context, id int64) (*entity.OutboxEvent, error) {
	return r.getOutbox(ctx, r.db, getOutboxSQL, id)
}

func (r *RepoImpl) getOutbox(ctx context.Context, q db.Querier, query string, id int64) (*entity.OutboxEvent, error) {
	defer r.observe("select", "outbox_event", time.Now())

	e, err := scanOutbox(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appers.ErrOutboxNotFound
	}
	if err != nil {
		r.fail("select", "outbox_event", "db")
		return nil, fmt.Errorf("get outbox: %w", err)
	}
	return e, nil
}

func (r *RepoImpl) ListOutboxByStatus(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error) {
	defer r.observe("select", "outbox_event", time.Now())

	rows, err := r.db.Query(ctx, listOutboxByStatusSQL, string(status), limit)
	if err != nil {
		r.fail("select", "outbox_event", "db")
		return nil, fmt.Errorf("list outbox by status: %w", err)
	}
	return collectOutbox(rows)
}

func (r *RepoImpl) ListOutboxByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error) {
	defer r.observe("select", "outbox_event", time.Now())

	rows, err := r.db.Query(ctx, listOutboxByAggregateSQL, aggregateType, aggregateID)
	if err != nil {
		r.fail("select", "outbox_event", "db")
		return nil, fmt.Errorf("list outbox by aggregate: %w", err)
	}
	return collectOutbox(rows)
}

// DeletePublishedOutbox удаляет PUBLISHED события старше days дней. PENDING и FAILED не трогает.
func (r *RepoImpl) DeletePublishedOutbox(ctx context.Context, days *int) (int64, error) {
	d := defaultRetentionDays
	if days != nil && *days > 0 {
		d = *days
	} else if days != nil && *days == 0 {
		r.logger.Warnf("retentionDays is 0, skipping deletion to prevent deleting all published events")
		return 0, nil
	}

	r.logger.Infof("start deleting published outbox events older than %d days", d)
	defer r.observe("delete", "outbox_event", time.Now())

	result, err := r.db.Exec(ctx, deletePublishedOutboxSQL, d)
	if err != nil {
		r.logger.Errorf("error deleting published outbox events: %v", err)
		r.fail("delete", "outbox_event", "db")
		return 0, fmt.Errorf("delete published outbox: %w", err)
	}

	deleted := result.RowsAffected()
	r.logger.Infof("deleted %d published outbox events (older than %d days)", deleted, d)
	return deleted, nil
}

func scanOutbox(row pgx.Row) (*entity.OutboxEvent, error) {
	var e entity.OutboxEvent
	var status string
	if err := row.Scan(
		&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
		&status, &e.RetryCount, &e.NextRetryAt, &e.CreatedAt, &e.PublishedAt, &e.LastError,
	); err != nil {
		return nil, err
	}
	e.Status = entity.OutboxStatus(status)
	return &e, nil
}

func collectOutbox(rows pgx.Rows) ([]entity.OutboxEvent, error) {
	defer rows.Close()

	res := make([]entity.OutboxEvent, 0)
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		res = append(res, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows err: %w", err)
	}
	return res, nil
}
