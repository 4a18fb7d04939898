package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        "0.0.0.0:8080",
		DatabaseURL: "postgres://checkout@localhost/checkout",
		Checkout:    CheckoutConfig{DeliveryCharge: "15"},
		Payment:     PaymentConfig{Provider: ProviderUddoktaPay},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "stripe", mutate: func(c *Config) { c.Payment.Provider = ProviderStripe }},
		{
			name:    "no database",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Payment.Provider = "paypal" },
			wantErr: `unknown payment provider "paypal"`,
		},
		{
			name:    "negative delivery",
			mutate:  func(c *Config) { c.Checkout.DeliveryCharge = "-1" },
			wantErr: "delivery charge must not be negative",
		},
		{
			name:    "garbage delivery",
			mutate:  func(c *Config) { c.Checkout.DeliveryCharge = "fifteen" },
			wantErr: `parse delivery charge "fifteen"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_DeliveryCharge(t *testing.T) {
	cfg := validConfig()
	cfg.Checkout.DeliveryCharge = " 12.50 "

	v, err := cfg.DeliveryCharge()

	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("12.5")))
}

func TestConfig_PlatformDefaults(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL": "postgres://platform/db",
		"PORT":         "9000",
		"REDIS_ADDR":   "redis:6379",
	}

	var cfg Config
	cfg.Addr = "0.0.0.0:8080"
	cfg.applyPlatformDefaults(func(k string) string { return env[k] })

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestConfig_PlatformDefaultsKeepExplicit(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults(func(string) string { return "postgres://platform/db" })

	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfig_KafkaBrokers(t *testing.T) {
	cfg := Config{Kafka: KafkaConfig{Brokers: []string{"", " kafka-1:9092 ", "kafka-2:9092"}}}

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers())
	assert.Nil(t, (&Config{}).KafkaBrokers())
}
