package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for key := range defaults {
		t.Setenv(key, "")
	}

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, StoreMemory, c.StoreDriver)
	assert.Equal(t, BusMemory, c.BusDriver)
	assert.Equal(t, PolicyVersioned, c.ApplyPolicy)
	assert.True(t, c.SeedOnStart)
	assert.Equal(t, 3, c.MaxDeliveries)
	assert.Equal(t, 5*time.Second, c.ConfirmTimeout)
	assert.Empty(t, c.OtelEndpoint)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "file:warehouse.db")
	t.Setenv("BUS_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKER", "localhost:9092")
	t.Setenv("APPLY_POLICY", "delta")
	t.Setenv("SEED_ON_START", "false")
	t.Setenv("CONFIRM_TIMEOUT", "250ms")
	t.Setenv("MAX_DELIVERIES", "5")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, StoreSQLite, c.StoreDriver)
	assert.Equal(t, "file:warehouse.db", c.DatabaseURL)
	assert.Equal(t, BusKafka, c.BusDriver)
	assert.Equal(t, "localhost:9092", c.KafkaBroker)
	assert.Equal(t, PolicyDelta, c.ApplyPolicy)
	assert.False(t, c.SeedOnStart)
	assert.Equal(t, 250*time.Millisecond, c.ConfirmTimeout)
	assert.Equal(t, 5, c.MaxDeliveries)
	assert.Equal(t, 15*time.Second, c.ShutdownTimeout)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"kafka without broker", map[string]string{"BUS_DRIVER": "kafka"}},
		{"unknown store", map[string]string{"STORE_DRIVER": "mongodb"}},
		{"unknown bus", map[string]string{"BUS_DRIVER": "nats"}},
		{"unknown policy", map[string]string{"APPLY_POLICY": "latest"}},
		{"zero deliveries", map[string]string{"MAX_DELIVERIES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
