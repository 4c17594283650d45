package sink

import (
	"bytes"
	"context"
	"ecommerce/internal/application/common"
	"ecommerce/internal/application/entity"
	"ecommerce/pkg/config"
	"ecommerce/pkg/httpclient"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrSimulatedFailure = errors.New("simulated data platform failure")
	ErrUnavailable      = errors.New("data platform unavailable")
)

// Sink внешняя аналитическая платформа. Send блокирует вызывающего до ответа или дедлайна ctx.
type Sink interface {
	Send(ctx context.Context, msg entity.OrderCompletedMessage) error
}

// New выбирает реализацию по конфигу: без URL используется симулятор.
func New(conf config.Sink, client httpclient.HTTPClient, logger *zap.SugaredLogger) Sink {
	if conf.URL == "" {
		logger.Warnf("sink.url is empty, using simulated data platform (delay=%s, failureRate=%.2f)",
			conf.SimulatedDelay, conf.SimulatedFailureRate)
		return NewSimulatedSink(conf.SimulatedDelay, conf.SimulatedFailureRate, nil)
	}
	return NewHTTPSink(conf, httpclient.NewRetryClient(client, conf.MaxRetries, logger), logger)
}

type HTTPSink struct {
	url     string
	client  httpclient.HTTPClient
	breaker *gobreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewHTTPSink(conf config.Sink, client httpclient.HTTPClient, logger *zap.SugaredLogger) *HTTPSink {
	threshold := conf.BreakerConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "data-platform",
		MaxRequests: 1,
		Timeout:     conf.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnf("circuit breaker [%s] %s -> %s", name, from, to)
		},
	}

	return &HTTPSink{
		url:     conf.URL,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (s *HTTPSink) Send(ctx context.Context, msg entity.OrderCompletedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order completed: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("data platform responded %d", resp.StatusCode)
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// SimulatedSink имитирует медленную и ненадёжную платформу.
type SimulatedSink struct {
	delay       time.Duration
	failureRate float64

	mu   sync.Mutex
	rand func() float64
}

// NewSimulatedSink rnd: источник случайности в [0,1); nil: math/rand.
func NewSimulatedSink(delay time.Duration, failureRate float64, rnd func() float64) *SimulatedSink {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &SimulatedSink{delay: delay, failureRate: failureRate, rand: rnd}
}

func (s *SimulatedSink) Send(ctx context.Context, msg entity.OrderCompletedMessage) error {
	if err := common.SleepCtx(ctx, s.delay); err != nil {
		return fmt.Errorf("order %s: %w", msg.OrderID, err)
	}

	s.mu.Lock()
	roll := s.rand()
	s.mu.Unlock()

	if roll < s.failureRate {
		return fmt.Errorf("order %s: %w", msg.OrderID, ErrSimulatedFailure)
	}
	return nil
}
