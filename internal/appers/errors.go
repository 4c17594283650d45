package appers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrTxRequired запись в outbox вне транзакции бизнес-операции запрещена
	ErrTxRequired = errors.New("outbox record requires an active transaction")
	// ErrInvalidOutboxEvent пустые поля или payload не JSON
	ErrInvalidOutboxEvent = errors.New("invalid outbox event")
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
	Code       string `json:"code,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

var (
	ErrCouponNotFound = ErrorResp{
		StatusCode: http.StatusNotFound,
		StatusDesc: "купон не найден",
		Code:       "COUPON_NOT_FOUND",
	}
	ErrCouponAlreadyExists = ErrorResp{
		StatusCode: http.StatusConflict,
		StatusDesc: "купон уже создан",
		Code:       "COUPON_EXISTS",
	}
	ErrOutboxNotFound = ErrorResp{
		StatusCode: http.StatusNotFound,
		StatusDesc: "событие outbox не найдено",
		Code:       "OUTBOX_NOT_FOUND",
	}
	ErrOutboxNotFailed = ErrorResp{
		StatusCode: http.StatusConflict,
		StatusDesc: "переотправить можно только событие в статусе FAILED",
		Code:       "OUTBOX_NOT_FAILED",
	}
	ErrOrderAlreadyExists = ErrorResp{
		StatusCode: http.StatusConflict,
		StatusDesc: "заказ уже создан",
		Code:       "ORDER_EXISTS",
	}
	// ErrClaimPublish заявка не попала в брокер; клиент может повторить запрос
	ErrClaimPublish = ErrorResp{
		StatusCode: http.StatusServiceUnavailable,
		StatusDesc: "не удалось поставить заявку в очередь, повторите позже",
		Code:       "CLAIM_QUEUE_UNAVAILABLE",
	}
)

func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp

	if ok := errors.As(err, &errResp); ok {
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": errResp.StatusDesc,
			"code":    errResp.Code,
		})
	}
	return NewErr(c, http.StatusInternalServerError, err)
}

func NewErr(ctx *fiber.Ctx, status int, err error) error {
	return ctx.Status(status).JSON(fiber.Map{
		"message": err.Error(),
	})
}
