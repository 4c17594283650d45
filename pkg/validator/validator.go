package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate - singleton экземпляр валидатора
	Validate *validator.Validate

	reCouponID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

func init() {
	Validate = validator.New()

	// Регистрируем кастомные валидаторы
	_ = Validate.RegisterValidation("notblank", validateNotBlank)
	_ = Validate.RegisterValidation("coupon_id", validateCouponID)
}

// validateNotBlank отклоняет строки из одних пробелов
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateCouponID проверяет, что id купона пригоден для ключа Kafka и ключа Redis
func validateCouponID(fl validator.FieldLevel) bool {
	return reCouponID.MatchString(fl.Field().String())
}
