package repo

import (
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/entity"
	"ecommerce/pkg/config"
	"ecommerce/pkg/db"
	"errors"

	"go.uber.org/zap"
)

// errClaimRejected откатывает транзакцию выдачи без ошибки для вызывающего
var errClaimRejected = errors.New("claim rejected")

type Transactions interface {
	CompleteOrder(ctx context.Context, o *entity.Order, payload []byte) (*entity.OutboxEvent, error)
	IssueCoupon(ctx context.Context, iss *entity.CouponIssuance) (entity.ClaimResult, error)
	RequeueOutbox(ctx context.Context, id int64) (*entity.OutboxEvent, error)
	GetOperationsFromOutbox(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error)
}

type TransactionsImpl struct {
	repo   *RepoImpl
	logger *zap.SugaredLogger
}

func NewTransactions(repo *RepoImpl, logger *zap.SugaredLogger) *TransactionsImpl {
	return &TransactionsImpl{repo: repo, logger: logger}
}

// CompleteOrder пишет заказ и событие OrderCompleted одной транзакцией: либо обе строки, либо ни одной.
func (t *TransactionsImpl) CompleteOrder(ctx context.Context, o *entity.Order, payload []byte) (*entity.OutboxEvent, error) {
	var evt *entity.OutboxEvent

	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context, tx db.Querier) error {
		if err := t.repo.InsertOrder(ctx, tx, o); err != nil {
			t.logger.Errorf("[order: %s] insert order failed: %v", o.ID, err)
			return err
		}

		var err error
		evt, err = t.repo.RecordOutbox(ctx, tx, entity.AggregateOrder, o.ID.String(), entity.EventOrderCompleted, payload)
		if err != nil {
			t.logger.Errorf("[order: %s] insert outbox failed: %v", o.ID, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Infof("[order: %s] completed, outbox event %d recorded", o.ID, evt.ID)
	return evt, nil
}

// IssueCoupon инкремент остатка и вставка выдачи в одной транзакции.
// Ноль строк на любом шаге: откат и соответствующий исход.
func (t *TransactionsImpl) IssueCoupon(ctx context.Context, iss *entity.CouponIssuance) (entity.ClaimResult, error) {
	result := entity.ClaimIssued

	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context, tx db.Querier) error {
		ok, err := t.repo.IncrementIssued(ctx, tx, iss.CouponID)
		if err != nil {
			return err
		}
		if !ok {
			result = entity.ClaimExhausted
			return errClaimRejected
		}

		inserted, err := t.repo.InsertIssuance(ctx, tx, iss)
		if err != nil {
			return err
		}
		if !inserted {
			// инкремент откатится вместе с транзакцией
			result = entity.ClaimDuplicate
			return errClaimRejected
		}
		return nil
	})

	switch {
	case errors.Is(err, errClaimRejected):
		t.logger.Infof("[coupon: %s, user: %s] issue rolled back: %s", iss.CouponID, iss.UserID, result)
		return result, nil
	case err != nil:
		t.logger.Errorf("[coupon: %s, user: %s] issue transaction failed: %v", iss.CouponID, iss.UserID, err)
		return "", err
	}
	return entity.ClaimIssued, nil
}

// RequeueOutbox создаёт новое PENDING событие с тем же payload. FAILED строка остаётся терминальной.
func (t *TransactionsImpl) RequeueOutbox(ctx context.Context, id int64) (*entity.OutboxEvent, error) {
	var requeued *entity.OutboxEvent

	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context, tx db.Querier) error {
		failed, err := t.repo.getOutbox(ctx, tx, getOutboxForUpdateSQL, id)
		if err != nil {
			return err
		}
		if failed.Status != entity.OutboxFailed {
			return appers.ErrOutboxNotFailed
		}

		requeued, err = t.repo.RecordOutbox(ctx, tx, failed.AggregateType, failed.AggregateID, failed.EventType, failed.Payload)
		return err
	})
	if err != nil {
		t.logger.Warnf("[ID %d] requeue failed: %v", id, err)
		return nil, err
	}

	t.logger.Infof("[ID %d] requeued as outbox event %d", id, requeued.ID)
	return requeued, nil
}

func (t *TransactionsImpl) GetOperationsFromOutbox(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error) {
	var events []entity.OutboxEvent
	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context, tx db.Querier) error {
		var err error
		events, err = t.repo.ReserveOutboxBatch(ctx, tx, c.Lease, c.BatchSize)
		return err
	})
	if err != nil {
		t.logger.Errorw("reserve outbox batch failed", "err", err)
		return nil, err
	}
	return events, nil
}
