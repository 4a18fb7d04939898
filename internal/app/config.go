package app

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Payment providers.
const (
	ProviderUddoktaPay = "uddoktapay"
	ProviderStripe     = "stripe"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Checkout    CheckoutConfig
	Payment     PaymentConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CheckoutConfig controls order pricing.
type CheckoutConfig struct {
	DeliveryCharge string        `default:"15" usage:"Flat delivery charge added to every order" flag:"delivery-charge"`
	RequestTimeout time.Duration `default:"30s" usage:"Per-request timeout for API routes" flag:"request-timeout"`
}

// PaymentConfig selects and tunes the online payment gateway. Credentials
// are not configured here; they are resolved per call from site settings or
// the environment.
type PaymentConfig struct {
	Provider string        `default:"uddoktapay" usage:"Payment gateway: uddoktapay or stripe"`
	Currency string        `default:"bdt" usage:"ISO currency for Stripe sessions"`
	Timeout  time.Duration `default:"15s" usage:"Gateway HTTP timeout"`
}

// RedisConfig enables the settled-payment cache when Addr is set.
type RedisConfig struct {
	Addr       string        `default:"" usage:"Redis address; empty disables the payment cache"`
	Password   string        `default:"" usage:"Redis password"`
	DB         int           `default:"0" usage:"Redis database"`
	OutcomeTTL time.Duration `default:"24h" usage:"How long settled payment outcomes are cached" flag:"redis-outcome-ttl"`
}

// KafkaConfig enables the outbox relay when Brokers is set.
type KafkaConfig struct {
	Brokers      []string      `default:"" usage:"Kafka brokers; empty leaves events in the outbox"`
	Topic        string        `default:"checkout.orders" usage:"Topic for order events"`
	PollInterval time.Duration `default:"1s" usage:"Outbox poll interval" flag:"kafka-poll-interval"`
	BatchSize    int           `default:"100" usage:"Events relayed per poll" flag:"kafka-batch-size"`
	BacklogLimit int           `default:"10000" usage:"Unpublished events tolerated before readiness fails" flag:"kafka-backlog-limit"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads a local .env if present, then environment variables, YAML
// config files and flags, and finally platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values aconfig cannot.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.DeliveryCharge(); err != nil {
		return err
	}
	switch c.Payment.Provider {
	case ProviderUddoktaPay, ProviderStripe:
	default:
		return errors.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	return nil
}

// DeliveryCharge parses the configured delivery charge.
func (c *Config) DeliveryCharge() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(c.Checkout.DeliveryCharge))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse delivery charge %q", c.Checkout.DeliveryCharge)
	}
	if v.IsNegative() {
		return decimal.Zero, errors.New("delivery charge must not be negative")
	}
	return v, nil
}

// KafkaBrokers returns the configured brokers with blanks removed.
func (c *Config) KafkaBrokers() []string {
	var out []string
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) such as DATABASE_URL, PORT and REDIS_ADDR onto the
// CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = getenv("REDIS_ADDR")
	}
}
