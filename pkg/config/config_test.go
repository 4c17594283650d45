package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	conf, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 4, conf.Relay.Workers)
	assert.Equal(t, 100, conf.Relay.BatchSize)
	assert.Equal(t, 30*time.Second, conf.Relay.Lease)
	assert.Equal(t, 5, conf.Relay.MaxRetries)
	assert.Equal(t, 10*time.Minute, conf.Relay.BackoffCap)

	assert.Equal(t, "order-completed", conf.Broker.Kafka.OrderCompletedTopic)
	assert.Equal(t, "coupon-issue-request", conf.Broker.Kafka.CouponIssueTopic)
	assert.Equal(t, "coupon-issue-group", conf.Broker.Kafka.CouponGroup)
	assert.Equal(t, 3, conf.Broker.Kafka.CouponConcurrency)

	assert.Equal(t, 30, conf.Cron.RetentionDays)
	assert.Equal(t, 3*time.Second, conf.Sink.Timeout)
	assert.InDelta(t, 0.1, conf.Sink.SimulatedFailureRate, 1e-9)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_WORKERS", "8")
	t.Setenv("RELAY_BACKOFFBASE", "1s")
	t.Setenv("BROKER_KAFKA_COUPONISSUETOPIC", "claims")

	conf, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, conf.Relay.Workers)
	assert.Equal(t, time.Second, conf.Relay.BackoffBase)
	assert.Equal(t, "claims", conf.Broker.Kafka.CouponIssueTopic)
}
