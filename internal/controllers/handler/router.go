package handler

import (
	"ecommerce/pkg/config"
	"ecommerce/pkg/httpserver"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Router struct {
	handler  Handler
	app      *fiber.App
	conf     *config.Config
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger
}

func NewRouter(handler Handler, app *fiber.App, conf *config.Config, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) *Router {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Router{
		logger:   logger,
		app:      app,
		conf:     conf,
		gatherer: gatherer,
		handler:  handler,
	}
}

func (r *Router) RegisterRouter() {
	r.app.Get("/health", r.handler.HealthCheck)
	r.app.Get("/metrics", httpserver.MetricsHandler(r.gatherer))

	r.app.Use(logger.New())

	r.app.Route("/ecommerce", func(router fiber.Router) {

		router.Use("/swagger/*", swagger.New(swagger.Config{
			DeepLinking: false,
			URL:         r.conf.Server.SwaggerUrl,
		}))

		api := router.Group("/api")

		v1 := api.Group("/v1")

		v1.Post("/orders", r.handler.CompleteOrder)

		v1.Post("/coupons", r.handler.CreateCoupon)
		v1.Get("/coupons/:couponId", r.handler.GetCoupon)
		v1.Post("/coupons/:couponId/issue", r.handler.IssueCoupon)

		v1.Get("/outbox", r.handler.ListOutbox)
		v1.Get("/outbox/aggregate/:type/:id", r.handler.ListAggregateOutbox)
		v1.Post("/outbox/:id/requeue", r.handler.RequeueOutbox)
	})
}
