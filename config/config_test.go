package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := LoadEnv()

	assert.Equal(t, 15, cfg.Inventory.ReservationTTLMinutes)
	assert.Equal(t, 3, cfg.Inventory.ConflictMaxRetries)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("RESERVATION_TTL_MINUTES", "30")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ALERT_BREAKER_MAX_FAILURES", "2")

	cfg := LoadEnv()

	assert.Equal(t, 30, cfg.Inventory.ReservationTTLMinutes)
	assert.Equal(t, 15*time.Second, cfg.Sweeper.Interval)
	assert.False(t, cfg.Sweeper.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, uint32(2), cfg.Alert.BreakerMaxFailures)
}

func TestLoadEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("CONFLICT_MAX_RETRIES", "many")
	t.Setenv("LIST_CACHE_TTL", "soon")

	cfg := LoadEnv()

	assert.Equal(t, 3, cfg.Inventory.ConflictMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Inventory.ListCacheTTL)
}
