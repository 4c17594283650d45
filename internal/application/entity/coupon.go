package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

// Coupon остаток купонов ограниченного тиража
type Coupon struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TotalQuantity int       `json:"totalQuantity"`
	IssuedCount   int       `json:"issuedCount"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (c *Coupon) Remaining() int {
	if r := c.TotalQuantity - c.IssuedCount; r > 0 {
		return r
	}
	return 0
}

func (c *Coupon) Exhausted() bool {
	return c.IssuedCount >= c.TotalQuantity
}

func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

type CreateCouponRequest struct {
	ID            string    `json:"id" validate:"required,coupon_id"`
	Name          string    `json:"name" validate:"required,notblank,max=200"`
	TotalQuantity int       `json:"totalQuantity" validate:"required,min=1"`
	ExpiresAt     time.Time `json:"expiresAt" validate:"required"`
}

type CouponResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TotalQuantity int       `json:"totalQuantity"`
	IssuedCount   int       `json:"issuedCount"`
	Remaining     int       `json:"remaining"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// CouponIssuance выданный пользователю купон. Пара (CouponID, UserID) уникальна.
type CouponIssuance struct {
	ID        uuid.UUID `json:"id"`
	CouponID  string    `json:"couponId"`
	UserID    string    `json:"userId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CouponClaimMessage заявка на выдачу в топике coupon-issue-request, ключ: CouponID
type CouponClaimMessage struct {
	CouponID    string    `json:"couponId"`
	UserID      string    `json:"userId"`
	RequestedAt time.Time `json:"requestedAt"`
}

type IssueCouponRequest struct {
	UserID string `json:"userId" validate:"required,notblank,max=100"`
}

// ClaimResult исход заявки. Исчерпание и дубль: штатные исходы, не ошибки.
type ClaimResult string

const (
	ClaimAccepted  ClaimResult = "ACCEPTED"
	ClaimIssued    ClaimResult = "ISSUED"
	ClaimDuplicate ClaimResult = "DUPLICATE"
	ClaimExhausted ClaimResult = "EXHAUSTED"
	ClaimNotFound  ClaimResult = "NOT_FOUND"
	ClaimExpired   ClaimResult = "EXPIRED"
)
