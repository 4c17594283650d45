package service

import (
	"cmp"
	"context"
	"ecommerce/internal/appers"
	"ecommerce/internal/application/entity"
	"ecommerce/internal/application/repo"
	"ecommerce/pkg/config"
	"ecommerce/pkg/db"
	"ecommerce/pkg/metrics"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type issuanceKey struct{ coupon, user string }

// memStore хранилище в памяти с теми же гарантиями, что и SQL: условный инкремент
// и уникальность (coupon, user) проверяются под одной блокировкой.
type memStore struct {
	mu    sync.Mutex
	clock *clock

	nextID    int64
	outbox    map[int64]*entity.OutboxEvent
	orders    map[uuid.UUID]*entity.Order
	coupons   map[string]*entity.Coupon
	issuances map[issuanceKey]entity.CouponIssuance

	recordErr error
}

func newMemStore(c *clock) *memStore {
	return &memStore{
		clock:     c,
		outbox:    make(map[int64]*entity.OutboxEvent),
		orders:    make(map[uuid.UUID]*entity.Order),
		coupons:   make(map[string]*entity.Coupon),
		issuances: make(map[issuanceKey]entity.CouponIssuance),
	}
}

func (m *memStore) InsertOrder(_ context.Context, _ db.Querier, o *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return appers.ErrOrderAlreadyExists
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) RecordOutbox(_ context.Context, _ db.Querier, aggregateType, aggregateID, eventType string, payload []byte) (*entity.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	m.nextID++
	now := m.clock.Now()
	e := &entity.OutboxEvent{
		ID:            m.nextID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       append([]byte(nil), payload...),
		Status:        entity.OutboxPending,
		NextRetryAt:   now,
		CreatedAt:     now,
	}
	m.outbox[e.ID] = e
	cp := *e
	return &cp, nil
}

func (m *memStore) ReserveOutboxBatch(_ context.Context, _ db.Querier, lease time.Duration, limit int) ([]entity.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var ready []*entity.OutboxEvent
	for _, e := range m.outbox {
		if e.Status == entity.OutboxPending && !e.NextRetryAt.After(now) {
			ready = append(ready, e)
		}
	}
	slices.SortFunc(ready, func(a, b *entity.OutboxEvent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	res := make([]entity.OutboxEvent, 0, len(ready))
	for _, e := range ready {
		e.NextRetryAt = now.Add(lease)
		res = append(res, *e)
	}
	return res, nil
}

func (m *memStore) MarkPublished(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.outbox[id]; ok && e.Status == entity.OutboxPending {
		now := m.clock.Now()
		e.Status = entity.OutboxPublished
		e.PublishedAt = &now
		e.LastError = nil
	}
	return nil
}

func (m *memStore) MarkRetry(_ context.Context, id int64, retryCount int, nextRetryAt time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.outbox[id]; ok && e.Status == entity.OutboxPending {
		e.RetryCount = retryCount
		e.NextRetryAt = nextRetryAt
		e.LastError = &lastErr
	}
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id int64, retryCount int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.outbox[id]; ok && e.Status == entity.OutboxPending {
		e.Status = entity.OutboxFailed
		e.RetryCount = retryCount
		e.LastError = &lastErr
	}
	return nil
}

func (m *memStore) GetOutbox(_ context.Context, id int64) (*entity.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[id]
	if !ok {
		return nil, appers.ErrOutboxNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ListOutboxByStatus(_ context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]entity.OutboxEvent, 0)
	for _, e := range m.outbox {
		if e.Status == status {
			res = append(res, *e)
		}
	}
	slices.SortFunc(res, func(a, b entity.OutboxEvent) int { return cmp.Compare(b.ID, a.ID) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *memStore) ListOutboxByAggregate(_ context.Context, aggregateType, aggregateID string) ([]entity.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]entity.OutboxEvent, 0)
	for _, e := range m.outbox {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			res = append(res, *e)
		}
	}
	slices.SortFunc(res, func(a, b entity.OutboxEvent) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

func (m *memStore) DeletePublishedOutbox(_ context.Context, days *int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := 30
	if days != nil {
		if *days == 0 {
			return 0, nil
		}
		d = *days
	}
	border := m.clock.Now().AddDate(0, 0, -d)
	var deleted int64
	for id, e := range m.outbox {
		if e.Status == entity.OutboxPublished && e.PublishedAt != nil && e.PublishedAt.Before(border) {
			delete(m.outbox, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memStore) CreateCoupon(_ context.Context, c *entity.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.ID]; ok {
		return appers.ErrCouponAlreadyExists
	}
	c.CreatedAt = m.clock.Now()
	cp := *c
	m.coupons[c.ID] = &cp
	return nil
}

func (m *memStore) GetCoupon(_ context.Context, id string) (*entity.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return nil, appers.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) IssuanceExists(_ context.Context, couponID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.issuances[issuanceKey{couponID, userID}]
	return ok, nil
}

func (m *memStore) IncrementIssued(_ context.Context, _ db.Querier, couponID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementLocked(couponID), nil
}

func (m *memStore) incrementLocked(couponID string) bool {
	c, ok := m.coupons[couponID]
	if !ok || c.IssuedCount >= c.TotalQuantity {
		return false
	}
	c.IssuedCount++
	return true
}

func (m *memStore) InsertIssuance(_ context.Context, _ db.Querier, iss *entity.CouponIssuance) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertIssuanceLocked(iss), nil
}

func (m *memStore) insertIssuanceLocked(iss *entity.CouponIssuance) bool {
	k := issuanceKey{iss.CouponID, iss.UserID}
	if _, ok := m.issuances[k]; ok {
		return false
	}
	m.issuances[k] = *iss
	return true
}

func (m *memStore) HealthCheck(context.Context) error { return nil }

func (m *memStore) issuedTo(couponID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.issuances {
		if k.coupon == couponID {
			n++
		}
	}
	return n
}

func (m *memStore) event(id int64) entity.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.outbox[id]
}

func (m *memStore) countByStatus(status entity.OutboxStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.outbox {
		if e.Status == status {
			n++
		}
	}
	return n
}

// memTransactions транзакции поверх memStore: всё или ничего под одной блокировкой
type memTransactions struct {
	store *memStore
}

func (t *memTransactions) CompleteOrder(ctx context.Context, o *entity.Order, payload []byte) (*entity.OutboxEvent, error) {
	if err := t.store.InsertOrder(ctx, nil, o); err != nil {
		return nil, err
	}
	evt, err := t.store.RecordOutbox(ctx, nil, entity.AggregateOrder, o.ID.String(), entity.EventOrderCompleted, payload)
	if err != nil {
		t.store.mu.Lock()
		delete(t.store.orders, o.ID)
		t.store.mu.Unlock()
		return nil, err
	}
	return evt, nil
}

func (t *memTransactions) IssueCoupon(_ context.Context, iss *entity.CouponIssuance) (entity.ClaimResult, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.issuances[issuanceKey{iss.CouponID, iss.UserID}]; ok {
		return entity.ClaimDuplicate, nil
	}
	if !t.store.incrementLocked(iss.CouponID) {
		return entity.ClaimExhausted, nil
	}
	t.store.insertIssuanceLocked(iss)
	return entity.ClaimIssued, nil
}

func (t *memTransactions) RequeueOutbox(ctx context.Context, id int64) (*entity.OutboxEvent, error) {
	failed, err := t.store.GetOutbox(ctx, id)
	if err != nil {
		return nil, err
	}
	if failed.Status != entity.OutboxFailed {
		return nil, appers.ErrOutboxNotFailed
	}
	return t.store.RecordOutbox(ctx, nil, failed.AggregateType, failed.AggregateID, failed.EventType, failed.Payload)
}

func (t *memTransactions) GetOperationsFromOutbox(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error) {
	return t.store.ReserveOutboxBatch(ctx, nil, c.Lease, c.BatchSize)
}

type sentMessage struct {
	topic string
	key   string
	value []byte
}

// fakeProducer fail решает судьбу каждой попытки; nil: успех.
// hang: брокер не отвечает, попытка заканчивается только по ctx.
type fakeProducer struct {
	mu       sync.Mutex
	sent     []sentMessage
	attempts int
	fail     func(topic, key string, attempt int) error
	hang     bool
}

func (p *fakeProducer) ProduceMessage(ctx context.Context, topic, key string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.hang {
		<-ctx.Done()
		p.mu.Lock()
		p.attempts++
		p.mu.Unlock()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.fail != nil {
		if err := p.fail(topic, key, p.attempts); err != nil {
			return err
		}
	}
	p.sent = append(p.sent, sentMessage{topic: topic, key: key, value: append([]byte(nil), message...)})
	return nil
}

func (p *fakeProducer) HealthCheck(context.Context) error { return nil }

func (p *fakeProducer) messages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sent...)
}

// memGate ClaimGate в памяти, down имитирует недоступный Redis
type memGate struct {
	mu        sync.Mutex
	requested map[issuanceKey]bool
	soldOut   map[string]bool
	down      bool
}

var errGateDown = errors.New("redis: connection refused")

func newMemGate() *memGate {
	return &memGate{requested: make(map[issuanceKey]bool), soldOut: make(map[string]bool)}
}

func (g *memGate) IsSoldOut(_ context.Context, couponID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return false, errGateDown
	}
	return g.soldOut[couponID], nil
}

func (g *memGate) MarkSoldOut(_ context.Context, couponID string, _ time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errGateDown
	}
	g.soldOut[couponID] = true
	return nil
}

func (g *memGate) TryRequest(_ context.Context, couponID, userID string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return false, errGateDown
	}
	k := issuanceKey{couponID, userID}
	if g.requested[k] {
		return false, nil
	}
	g.requested[k] = true
	return true, nil
}

func (g *memGate) Release(_ context.Context, couponID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errGateDown
	}
	delete(g.requested, issuanceKey{couponID, userID})
	return nil
}

func (g *memGate) HealthCheck(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errGateDown
	}
	return nil
}

type sinkFunc func(ctx context.Context, msg entity.OrderCompletedMessage) error

func (f sinkFunc) Send(ctx context.Context, msg entity.OrderCompletedMessage) error { return f(ctx, msg) }

type testEnv struct {
	svc      *ServiceImpl
	store    *memStore
	producer *fakeProducer
	gate     *memGate
	clock    *clock
	conf     *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Relay: config.RelayConfig{
			Workers:     4,
			BatchSize:   100,
			Lease:       30 * time.Second,
			PollPeriod:  10 * time.Millisecond,
			MaxRetries:  5,
			BackoffBase: 10 * time.Second,
			BackoffCap:  10 * time.Minute,
		},
		Broker: config.Broker{Kafka: config.Kafka{
			OrderCompletedTopic: "order-completed",
			CouponIssueTopic:    "coupon-issue-request",
			DefaultTopic:        "default-events",
		}},
		Sink: config.Sink{Timeout: 3 * time.Second},
	}
}

// newTestEnv withGate=false собирает сервис без Redis
func newTestEnv(t *testing.T, conf *config.Config, withGate bool) *testEnv {
	t.Helper()
	if conf == nil {
		conf = testConfig()
	}

	c := newClock()
	store := newMemStore(c)
	p := &fakeProducer{}

	env := &testEnv{store: store, producer: p, clock: c, conf: conf}

	// без Redis в сервис уходит nil интерфейс, а не типизированный nil
	var gate repo.ClaimGate
	if withGate {
		env.gate = newMemGate()
		gate = env.gate
	}

	m := metrics.New(prometheus.NewRegistry())
	noSink := sinkFunc(func(context.Context, entity.OrderCompletedMessage) error { return nil })

	svc := NewService(store, &memTransactions{store: store}, p, gate, noSink, zap.NewNop().Sugar(), conf, m)
	svc.now = c.Now
	env.svc = svc
	return env
}
