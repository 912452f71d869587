package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Backends.Store)
	assert.Equal(t, BackendStore, cfg.Backends.Stock)
	assert.Equal(t, 6, cfg.Business.OrderNumberWidth)
	assert.True(t, cfg.Business.StrictTransitions)
	assert.True(t, cfg.Business.ShippingFee.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, 15*time.Minute, cfg.Business.IntentTTL)
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("STOCK_BACKEND", "redis")
	t.Setenv("SEQUENCE_BACKEND", "redis")
	t.Setenv("ORDER_NUMBER_WIDTH", "8")
	t.Setenv("STRICT_TRANSITIONS", "false")
	t.Setenv("DEFAULT_COUNTRY_CODE", "+44")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SHIPPING_FEE", "not-a-number")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, BackendMongo, cfg.Backends.Store)
	assert.Equal(t, BackendRedis, cfg.Backends.Stock)
	assert.Equal(t, 8, cfg.Business.OrderNumberWidth)
	assert.False(t, cfg.Business.StrictTransitions)
	assert.Equal(t, "44", cfg.Business.DefaultCountryCode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Business.ShippingFee.Equal(decimal.RequireFromString("25")))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"store backend", func(c *Config) { c.Backends.Store = "sqlite" }, "STORE_BACKEND"},
		{"stock backend", func(c *Config) { c.Backends.Stock = "memory" }, "STOCK_BACKEND"},
		{"width", func(c *Config) { c.Business.OrderNumberWidth = 0 }, "ORDER_NUMBER_WIDTH"},
		{"country code", func(c *Config) { c.Business.DefaultCountryCode = "fr" }, "DEFAULT_COUNTRY_CODE"},
		{"negative fee", func(c *Config) { c.Business.ShippingFee = decimal.NewFromInt(-1) }, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
