package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

const OrderCompleted = "COMPLETED"

// Order суммы в минимальных единицах валюты
type Order struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"userId"`
	TotalAmount    int64     `json:"totalAmount"`
	DiscountAmount int64     `json:"discountAmount"`
	FinalAmount    int64     `json:"finalAmount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

type CompleteOrderRequest struct {
	UserID         string `json:"userId" validate:"required,notblank,max=100"`
	TotalAmount    int64  `json:"totalAmount" validate:"gte=0"`
	DiscountAmount int64  `json:"discountAmount" validate:"gte=0,ltefield=TotalAmount"`
}

// OrderCompletedMessage payload события OrderCompleted и тело запроса во внешнюю платформу
type OrderCompletedMessage struct {
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	FinalAmount int64     `json:"finalAmount"`
	CreatedAt   time.Time `json:"createdAt"`
}
