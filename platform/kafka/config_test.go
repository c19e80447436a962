package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KAFKA_WRITE_TIMEOUT", "3s")

	cfg := DefaultConfig()
	require.NoError(t, LoadEnv(&cfg))

	require.True(t, cfg.Enabled)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	require.Equal(t, 3*time.Second, cfg.WriteTimeout)
}

func TestLoadEnv_KeepsDefaultBrokers(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, LoadEnv(&cfg))

	require.False(t, cfg.Enabled)
	require.Equal(t, []string{"localhost:19092"}, cfg.Brokers)
}

func TestNewWriter(t *testing.T) {
	w := NewWriter(Config{Brokers: []string{"localhost:19092"}, WriteTimeout: time.Second})
	defer w.Close()

	require.Empty(t, w.Topic)
	require.Equal(t, time.Second, w.WriteTimeout)
}
