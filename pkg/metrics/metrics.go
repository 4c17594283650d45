package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Kafka  KafkaMetrics
	API    APIMetrics
	Repo   RepoMetrics
	Go     GoMetrics
	Outbox OutboxMetrics
	Coupon CouponMetrics
	Sink   SinkMetrics
}

type KafkaMetrics struct {
	// Producer
	ProducerAttemptLatencySeconds *prometheus.HistogramVec
	ProducerOperationsTotal       *prometheus.CounterVec
	ProducerSuccessAttempts       *prometheus.HistogramVec

	// Consumer
	ConsumerMessagesTotal   *prometheus.CounterVec
	ConsumerProcessDuration *prometheus.HistogramVec
	ConsumerRebalancesTotal *prometheus.CounterVec
	ConsumerInFlight        *prometheus.GaugeVec
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type RepoMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
	InFlight        *prometheus.GaugeVec
}

type GoMetrics struct {
	InternalGoroutines *prometheus.GaugeVec
}

type OutboxMetrics struct {
	ReservedTotal  prometheus.Counter
	PublishedTotal *prometheus.CounterVec
	RetriedTotal   *prometheus.CounterVec
	FailedTotal    *prometheus.CounterVec // канал алерта: событие больше не будет доставлено
	RecordedTotal  *prometheus.CounterVec
	CleanedTotal   prometheus.Counter
}

type CouponMetrics struct {
	ClaimsTotal *prometheus.CounterVec // stage: request|process
}

type SinkMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Kafka: KafkaMetrics{
			ProducerAttemptLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "producer_attempt_latency_seconds",
				Help:      "Latency per single produce attempt.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic", "result"}), // ok|error

			ProducerOperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "producer_operations_total",
				Help:      "Total produce operations (one call) by result.",
			}, []string{"topic", "result"}), // success|failed|permanent|canceled

			ProducerSuccessAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "producer_success_attempts",
				Help:      "Attempt number on which produce operation succeeded.",
				Buckets:   []float64{1, 2, 3, 4, 5},
			}, []string{"topic"}),

			ConsumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "consumer_messages_total",
				Help:      "Total consumed Kafka messages by topic.",
			}, []string{"topic"}),

			ConsumerProcessDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "consumer_process_duration_seconds",
				Help:      "Kafka message processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic"}),

			ConsumerRebalancesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "consumer_rebalances_total",
				Help:      "Consumer rebalance lifecycle events.",
			}, []string{"event"}),

			ConsumerInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecommerce",
				Subsystem: "kafka",
				Name:      "consumer_inflight_messages",
				Help:      "Messages currently being processed.",
			}, []string{"topic"}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecommerce",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}), // статус сюда добавил осознанно
		},
		Repo: RepoMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "db",
				Name:      "requests_total",
				Help:      "Total DB requests by operation, name, result and error kind.",
			}, []string{"op", "name", "result", "error_kind"}),

			DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecommerce",
				Subsystem: "db",
				Name:      "request_duration_seconds",
				Help:      "DB request duration in seconds.",
				// DB обычно быстрее/короче HTTP, но хвосты бывают.
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"op", "name", "result"}),

			InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecommerce",
				Subsystem: "db",
				Name:      "inflight",
				Help:      "Number of in-flight DB requests.",
			}, []string{"op", "name"}),
		},
		Go: GoMetrics{
			InternalGoroutines: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecommerce",
				Subsystem: "go",
				Name:      "internal_goroutines",
				Help:      "Number of running internal goroutines by name.",
			}, []string{"name"}),
		},
		Outbox: OutboxMetrics{
			ReservedTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "outbox",
				Name:      "reserved_total",
				Help:      "Outbox events reserved by the relay.",
			}),

			PublishedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "outbox",
				Name:      "published_total",
				Help:      "Outbox events published to the broker.",
			}, []string{"event_type"}),

			RetriedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "outbox",
				Name:      "retried_total",
				Help:      "Failed publish attempts scheduled for retry.",
			}, []string{"event_type"}),

			FailedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "outbox",
				Name:      "failed_total",
				Help:      "Outbox events moved to terminal FAILED state.",
			}, []string{"event_type"}),

			RecordedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "outbox",
				Name:      "recorded_total",
				Help:      "Outbox events recorded inside business transactions.",
			}, []string{"event_type"}),

			CleanedTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "outbox",
				Name:      "cleaned_total",
				Help:      "Published outbox events removed by the retention sweep.",
			}),
		},
		Coupon: CouponMetrics{
			ClaimsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "coupon",
				Name:      "claims_total",
				Help:      "Coupon claims by stage and result.",
			}, []string{"stage", "result"}),
		},
		Sink: SinkMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecommerce",
				Subsystem: "sink",
				Name:      "requests_total",
				Help:      "External data platform deliveries by result.",
			}, []string{"result"}), // success|failure

			DurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ecommerce",
				Subsystem: "sink",
				Name:      "request_duration_seconds",
				Help:      "External data platform delivery latency.",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5, 10},
			}),
		},
	}
}
