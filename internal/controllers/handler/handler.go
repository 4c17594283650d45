package handler

import (
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/common"
	"ecommerce/internal/application/entity"
	use_cases "ecommerce/internal/application/use-cases"
	"ecommerce/pkg/validator"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler interface {
	CompleteOrder(c *fiber.Ctx) error
	CreateCoupon(c *fiber.Ctx) error
	GetCoupon(c *fiber.Ctx) error
	IssueCoupon(c *fiber.Ctx) error
	ListOutbox(c *fiber.Ctx) error
	ListAggregateOutbox(c *fiber.Ctx) error
	RequeueOutbox(c *fiber.Ctx) error
	HealthCheck(c *fiber.Ctx) error
}

type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
	}
}

// formatValidationErrors форматирует ошибки валидации в понятный формат для клиента
func formatValidationErrors(err error) fiber.Map {
	var details []string
	var validationErrors playgroundvalidator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			field := e.Field()
			var message string
			switch e.Tag() {
			case "required", "notblank":
				message = fmt.Sprintf("поле '%s' обязательно для заполнения", field)
			case "min":
				message = fmt.Sprintf("поле '%s' должно быть не меньше %s", field, e.Param())
			case "max":
				message = fmt.Sprintf("поле '%s' должно содержать максимум %s символов", field, e.Param())
			case "gte":
				message = fmt.Sprintf("поле '%s' не может быть отрицательным", field)
			case "ltefield":
				message = fmt.Sprintf("поле '%s' не может превышать %s", field, e.Param())
			case "coupon_id":
				message = fmt.Sprintf("поле '%s' может содержать только латиницу, цифры, '-' и '_' (до 64 символов)", field)
			default:
				message = fmt.Sprintf("поле '%s' не прошло валидацию: %s", field, e.Tag())
			}
			details = append(details, message)
		}
	} else {
		details = append(details, err.Error())
	}
	return fiber.Map{
		"error":   "validation failed",
		"details": details,
	}
}

// HealthCheck godoc
// @Summary     Проверка состояния сервиса
// @Description Проверяет доступность PostgreSQL, Kafka и Redis. Redis не обязателен: без него сервис работает в деградированном режиме.
// @Produce     json
// @Success     200   {object} entity.HealthCheckResponse "Все обязательные сервисы доступны"
// @Failure     503   {object} entity.HealthCheckResponse "Один или несколько сервисов недоступны"
// @tags        Health
// @Router      /health [get]
func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	st := h.usecase.HealthCheck(ctx)

	resp := entity.HealthCheckResponse{
		Status:  st.Healthy(),
		Message: "success",
		Version: common.Version,
		Checks: entity.HealthCheckResponseData{
			Database: healthItem("postgresql", st.Database, "Database connection failed"),
			Kafka:    healthItem("kafka", st.Kafka, "Kafka connection failed"),
			Redis:    healthItem("redis", st.Redis, "Redis connection failed"),
		},
	}
	if st.Database != nil || st.Kafka != nil || st.Redis != nil {
		resp.Message = "Some services are unavailable"
	}

	if !st.Healthy() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func healthItem(kind string, err error, desc string) entity.HealthCheckItem {
	item := entity.HealthCheckItem{Status: err == nil, Type: kind}
	if err != nil {
		item.Error = desc
	}
	return item
}

// CompleteOrder godoc
// @Summary     Завершение заказа
// @Description Сохраняет заказ и событие OrderCompleted в одной транзакции. Доставка события в Kafka асинхронная.
// @Accept      json
// @Produce     json
// @Param       body  body     entity.CompleteOrderRequest  true  "Данные заказа"
// @Success     201   {object} entity.Order
// @Failure     400
// @Failure     500
// @tags        Order
// @Router      /v1/orders [post]
func (h *HandlerImpl) CompleteOrder(c *fiber.Ctx) error {
	var req entity.CompleteOrderRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	order, evt, err := h.usecase.CompleteOrder(c.Context(), req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order":         order,
		"outboxEventId": evt.ID,
	})
}

// CreateCoupon godoc
// @Summary     Создание купона
// @Description Создаёт купон ограниченного тиража
// @Accept      json
// @Produce     json
// @Param       body  body     entity.CreateCouponRequest  true  "Данные купона"
// @Success     201   {object} entity.CouponResponse
// @Failure     400
// @Failure     409
// @Failure     500
// @tags        Coupon
// @Router      /v1/coupons [post]
func (h *HandlerImpl) CreateCoupon(c *fiber.Ctx) error {
	var req entity.CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	coupon, err := h.usecase.CreateCoupon(c.Context(), req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(coupon)
}

// GetCoupon godoc
// @Summary     Остаток купона
// @Produce     json
// @Param       couponId  path     string  true  "ID купона"
// @Success     200   {object} entity.CouponResponse
// @Failure     404
// @Failure     500
// @tags        Coupon
// @Router      /v1/coupons/{couponId} [get]
func (h *HandlerImpl) GetCoupon(c *fiber.Ctx) error {
	coupon, err := h.usecase.GetCoupon(c.Context(), c.Params("couponId"))
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(coupon)
}

// IssueCoupon godoc
// @Summary     Заявка на выдачу купона
// @Description Ставит заявку в очередь. 202: заявка принята, выдача произойдёт асинхронно.
// @Description 409 SOLD_OUT: купоны закончились, 409 ALREADY_REQUESTED: повторная заявка, 503: очередь недоступна, можно повторить.
// @Accept      json
// @Produce     json
// @Param       couponId  path     string                     true  "ID купона"
// @Param       body      body     entity.IssueCouponRequest  true  "Пользователь"
// @Success     202
// @Failure     400
// @Failure     404
// @Failure     409
// @Failure     410
// @Failure     503
// @tags        Coupon
// @Router      /v1/coupons/{couponId}/issue [post]
func (h *HandlerImpl) IssueCoupon(c *fiber.Ctx) error {
	couponID := c.Params("couponId")

	var req entity.IssueCouponRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	result, err := h.usecase.RequestIssue(c.Context(), couponID, strings.TrimSpace(req.UserID))
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	status, code := claimStatus(result)
	body := fiber.Map{"couponId": couponID, "userId": req.UserID, "result": result}
	if code != "" {
		body["code"] = code
	}
	return c.Status(status).JSON(body)
}

func claimStatus(r entity.ClaimResult) (int, string) {
	switch r {
	case entity.ClaimAccepted, entity.ClaimIssued:
		return fiber.StatusAccepted, ""
	case entity.ClaimDuplicate:
		return fiber.StatusConflict, "ALREADY_REQUESTED"
	case entity.ClaimExhausted:
		return fiber.StatusConflict, "SOLD_OUT"
	case entity.ClaimNotFound:
		return fiber.StatusNotFound, "COUPON_NOT_FOUND"
	case entity.ClaimExpired:
		return fiber.StatusGone, "COUPON_EXPIRED"
	default:
		return fiber.StatusInternalServerError, ""
	}
}

// ListOutbox godoc
// @Summary     События outbox по статусу
// @Description Мониторинг: например, status=FAILED: события, требующие ручного разбора
// @Produce     json
// @Param       status  query    string  true   "PENDING | PUBLISHED | FAILED"
// @Param       limit   query    int     false  "Максимум записей (по умолчанию 100)"
// @Success     200   {array}  entity.OutboxEvent
// @Failure     400
// @Failure     500
// @tags        Outbox
// @Router      /v1/outbox [get]
func (h *HandlerImpl) ListOutbox(c *fiber.Ctx) error {
	status := entity.OutboxStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if !status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be one of PENDING, PUBLISHED, FAILED",
		})
	}
	limit := c.QueryInt("limit", 0)

	events, err := h.usecase.ListOutbox(c.Context(), status, limit)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(events)
}

// ListAggregateOutbox godoc
// @Summary     События outbox одного агрегата
// @Produce     json
// @Param       type  path     string  true  "Тип агрегата, например ORDER"
// @Param       id    path     string  true  "ID агрегата"
// @Success     200   {array}  entity.OutboxEvent
// @Failure     500
// @tags        Outbox
// @Router      /v1/outbox/aggregate/{type}/{id} [get]
func (h *HandlerImpl) ListAggregateOutbox(c *fiber.Ctx) error {
	events, err := h.usecase.ListAggregateOutbox(c.Context(), c.Params("type"), c.Params("id"))
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(events)
}

// RequeueOutbox godoc
// @Summary     Повторная отправка FAILED события
// @Description Создаёт новое PENDING событие с тем же payload. Исходное остаётся FAILED.
// @Produce     json
// @Param       id  path     int  true  "ID события outbox"
// @Success     201   {object} entity.OutboxEvent
// @Failure     400
// @Failure     404
// @Failure     409
// @Failure     500
// @tags        Outbox
// @Router      /v1/outbox/{id}/requeue [post]
func (h *HandlerImpl) RequeueOutbox(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid outbox id"})
	}

	evt, err := h.usecase.RequeueFailedEvent(c.Context(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(evt)
}
