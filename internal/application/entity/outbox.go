package entity

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxPending, OutboxPublished, OutboxFailed:
		return true
	}
	return false
}

const (
	AggregateOrder = "ORDER"
)

const (
	EventOrderCompleted = "OrderCompleted"
)

type OutboxEvent struct {
	ID            int64           `db:"id" json:"id"`
	AggregateType string          `db:"aggregate_type" json:"aggregateType"` // "ORDER"
	AggregateID   string          `db:"aggregate_id" json:"aggregateId"`
	EventType     string          `db:"event_type" json:"eventType"` // "OrderCompleted" / ...
	Payload       json.RawMessage `db:"payload" json:"payload" swaggertype:"object"`
	Status        OutboxStatus    `db:"status" json:"status"`
	RetryCount    int             `db:"retry_count" json:"retryCount"`
	NextRetryAt   time.Time       `db:"next_retry_at" json:"nextRetryAt"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	PublishedAt   *time.Time      `db:"published_at" json:"publishedAt,omitempty"`
	LastError     *string         `db:"last_error" json:"lastError,omitempty"`
}
