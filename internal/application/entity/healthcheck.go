package entity

// HealthCheckResponse структура ответа для health check
type HealthCheckResponse struct {
	Status  bool                    `json:"status" example:"true"`
	Message string                  `json:"message" example:"success"`
	Version string                  `json:"version" example:"0.1.0"`
	Checks  HealthCheckResponseData `json:"checks"`
}

// HealthCheckResponseData детали проверок
type HealthCheckResponseData struct {
	Database HealthCheckItem `json:"database"`
	Kafka    HealthCheckItem `json:"kafka"`
	Redis    HealthCheckItem `json:"redis"`
}

// HealthCheckItem информация о проверке компонента
type HealthCheckItem struct {
	Status bool   `json:"status" example:"true"`
	Type   string `json:"type" example:"postgresql"`
	Error  string `json:"error,omitempty" example:"Database connection failed"`
}

// HealthStatus результат проверок зависимостей. Redis не обязателен: без него
// заявки проходят только через проверку по БД.
type HealthStatus struct {
	Database error
	Kafka    error
	Redis    error
}

func (h HealthStatus) Healthy() bool {
	return h.Database == nil && h.Kafka == nil
}
