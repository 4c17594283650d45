package repo

import (
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/entity"
	"ecommerce/pkg/db"
	"ecommerce/pkg/metrics"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Repo interface {
	InsertOrder(ctx context.Context, q db.Querier, o *entity.Order) error

	OutboxWriter
	ReserveOutboxBatch(ctx context.Context, q db.Querier, lease time.Duration, limit int) ([]entity.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id int64, retryCount int, lastErr string) error
	GetOutbox(ctx context.Context, id int64) (*entity.OutboxEvent, error)
	ListOutboxByStatus(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error)
	ListOutboxByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error)
	DeletePublishedOutbox(ctx context.Context, days *int) (int64, error)

	CreateCoupon(ctx context.Context, c *entity.Coupon) error
	GetCoupon(ctx context.Context, id string) (*entity.Coupon, error)
	IssuanceExists(ctx context.Context, couponID, userID string) (bool, error)
	IncrementIssued(ctx context.Context, q db.Querier, couponID string) (bool, error)
	InsertIssuance(ctx context.Context, q db.Querier, iss *entity.CouponIssuance) (bool, error)

	HealthCheck(ctx context.Context) error
}

type RepoImpl struct {
	db     db.DB
	logger *zap.SugaredLogger
	m      *metrics.Metrics
}

func NewRepo(db db.DB, logger *zap.SugaredLogger, m *metrics.Metrics) *RepoImpl {
	return &RepoImpl{db: db, logger: logger, m: m}
}

func (r *RepoImpl) HealthCheck(ctx context.Context) error {
	// Проверяем доступность БД через простой запрос
	var result int
	err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) InsertOrder(ctx context.Context, q db.Querier, o *entity.Order) error {
	r.logger.Debugf("[order: %s] start inserting into DB", o.ID)
	defer r.observe("insert", "orders", time.Now())

	var insertedID uuid.UUID
	err := q.QueryRow(ctx, insertOrderQuery,
		o.ID, o.UserID, o.TotalAmount, o.DiscountAmount, o.FinalAmount, o.Status, o.CreatedAt,
	).Scan(&insertedID)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), isDuplicateKeyError(err):
		// ON CONFLICT DO NOTHING вернул 0 строк
		r.logger.Warnf("[order: %s] inserting order: already exists", o.ID)
		r.fail("insert", "orders", "conflict")
		return appers.ErrOrderAlreadyExists
	default:
		r.logger.Errorf("[order: %s] error inserting into DB: %v", o.ID, err)
		r.fail("insert", "orders", "db")
		return fmt.Errorf("insert order: %w", err)
	}
}

func (r *RepoImpl) CreateCoupon(ctx context.Context, c *entity.Coupon) error {
	r.logger.Debugf("[coupon: %s] start inserting into DB", c.ID)
	defer r.observe("insert", "coupons", time.Now())

	err := r.db.QueryRow(ctx, createCouponSQL, c.ID, c.Name, c.TotalQuantity, c.ExpiresAt).Scan(&c.CreatedAt)
	switch {
	case err == nil:
		c.IssuedCount = 0
		r.logger.Infof("[coupon: %s] created, total=%d expiresAt=%s", c.ID, c.TotalQuantity, c.ExpiresAt)
		return nil
	case errors.Is(err, pgx.ErrNoRows), isDuplicateKeyError(err):
		r.logger.Warnf("[coupon: %s] inserting coupon: already exists", c.ID)
		r.fail("insert", "coupons", "conflict")
		return appers.ErrCouponAlreadyExists
	default:
		r.logger.Errorf("[coupon: %s] error inserting into DB: %v", c.ID, err)
		r.fail("insert", "coupons", "db")
		return fmt.Errorf("insert coupon: %w", err)
	}
}

func (r *RepoImpl) GetCoupon(ctx context.Context, id string) (*entity.Coupon, error) {
	defer r.observe("select", "coupons", time.Now())

	var c entity.Coupon
	err := r.db.QueryRow(ctx, getCouponSQL, id).
		Scan(&c.ID, &c.Name, &c.TotalQuantity, &c.IssuedCount, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appers.ErrCouponNotFound
	}
	if err != nil {
		r.fail("select", "coupons", "db")
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return &c, nil
}

func (r *RepoImpl) IssuanceExists(ctx context.Context, couponID, userID string) (bool, error) {
	defer r.observe("select", "user_coupons", time.Now())

	var exists bool
	if err := r.db.QueryRow(ctx, issuanceExistsSQL, couponID, userID).Scan(&exists); err != nil {
		r.fail("select", "user_coupons", "db")
		return false, fmt.Errorf("issuance exists: %w", err)
	}
	return exists, nil
}

// IncrementIssued false: остаток исчерпан (или купона нет), строка не изменена
func (r *RepoImpl) IncrementIssued(ctx context.Context, q db.Querier, couponID string) (bool, error) {
	defer r.observe("update", "coupons", time.Now())

	tag, err := q.Exec(ctx, incrementIssuedSQL, couponID)
	if err != nil {
		r.fail("update", "coupons", "db")
		return false, fmt.Errorf("increment issued_count: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertIssuance false: у пользователя уже есть этот купон
func (r *RepoImpl) InsertIssuance(ctx context.Context, q db.Querier, iss *entity.CouponIssuance) (bool, error) {
	defer r.observe("insert", "user_coupons", time.Now())

	tag, err := q.Exec(ctx, insertIssuanceSQL, iss.ID, iss.CouponID, iss.UserID, iss.IssuedAt, iss.ExpiresAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		r.fail("insert", "user_coupons", "db")
		return false, fmt.Errorf("insert issuance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) observe(op, name string, start time.Time) {
	if r.m == nil {
		return
	}
	r.m.Repo.RequestsTotal.WithLabelValues(op, name, "done", "").Inc()
	r.m.Repo.DurationSeconds.WithLabelValues(op, name, "done").Observe(time.Since(start).Seconds())
}

func (r *RepoImpl) fail(op, name, kind string) {
	if r.m == nil {
		return
	}
	r.m.Repo.RequestsTotal.WithLabelValues(op, name, "error", kind).Inc()
}

// isDuplicateKeyError проверяет, является ли ошибка ошибкой дубликата ключа (SQLSTATE 23505)
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
