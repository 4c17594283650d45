package repo

// ORDERS
const insertOrderQuery = `
INSERT INTO orders (id, user_id, total_amount, discount_amount, final_amount, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING
RETURNING id`

// OUTBOX
const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, next_retry_at, created_at, published_at, last_error`

const insertOutboxQuery = `
INSERT INTO outbox_event (
  aggregate_type, aggregate_id, event_type, payload, status, retry_count, next_retry_at, created_at
) VALUES ($1, $2, $3, $4::jsonb, 'PENDING', 0, now(), now())
RETURNING ` + outboxColumns

// reserveBatchSQL сдвигает next_retry_at на lease: параллельный relay не возьмёт те же строки,
// пока не истечёт аренда.
const reserveBatchSQL = `
WITH picked AS (
	SELECT id
	FROM outbox_event
	WHERE status = 'PENDING'
		AND next_retry_at <= now()
	ORDER BY created_at, id
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
UPDATE outbox_event AS o
SET next_retry_at = now() + $1::interval
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.aggregate_type, o.aggregate_id, o.event_type, o.payload, o.status, o.retry_count, o.next_retry_at, o.created_at, o.published_at, o.last_error`

const markPublishedSQL = `
UPDATE outbox_event
SET status = 'PUBLISHED', published_at = now(), last_error = NULL
WHERE id = $1 AND status = 'PENDING'`

const markRetrySQL = `
UPDATE outbox_event
SET retry_count = $2, next_retry_at = $3, last_error = $4
WHERE id = $1 AND status = 'PENDING'`

const markFailedSQL = `
UPDATE outbox_event
SET status = 'FAILED', retry_count = $2, last_error = $3
WHERE id = $1 AND status = 'PENDING'`

const getOutboxSQL = `SELECT ` + outboxColumns + ` FROM outbox_event WHERE id = $1`

const getOutboxForUpdateSQL = getOutboxSQL + ` FOR UPDATE`

const listOutboxByStatusSQL = `SELECT ` + outboxColumns + ` FROM outbox_event
WHERE status = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

const listOutboxByAggregateSQL = `SELECT ` + outboxColumns + ` FROM outbox_event
WHERE aggregate_type = $1 AND aggregate_id = $2
ORDER BY created_at, id`

const deletePublishedOutboxSQL = `
DELETE FROM outbox_event
WHERE status = 'PUBLISHED' AND published_at < now() - make_interval(days => $1)`

// COUPONS
const createCouponSQL = `
INSERT INTO coupons (id, name, total_quantity, issued_count, expires_at, created_at)
VALUES ($1, $2, $3, 0, $4, now())
ON CONFLICT (id) DO NOTHING
RETURNING created_at`

const getCouponSQL = `
SELECT id, name, total_quantity, issued_count, expires_at, created_at
FROM coupons WHERE id = $1`

const issuanceExistsSQL = `
SELECT EXISTS (SELECT 1 FROM user_coupons WHERE coupon_id = $1 AND user_id = $2)`

// incrementIssuedSQL единственная защита от перевыдачи: условие проверяется атомарно в UPDATE
const incrementIssuedSQL = `
UPDATE coupons SET issued_count = issued_count + 1
WHERE id = $1 AND issued_count < total_quantity`

const insertIssuanceSQL = `
INSERT INTO user_coupons (id, coupon_id, user_id, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (coupon_id, user_id) DO NOTHING`
