package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (GALLERY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL; empty runs the in-memory demo gallery" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative artwork image paths" flag:"image-base-url"`
	Redis        RedisConfig
	Kafka        KafkaConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig enables the cart view cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address or redis:// URL (GALLERY_REDIS_ADDR or REDIS_URL)"`
	Password string        `usage:"Redis password"`
	TTL      time.Duration `default:"15m" usage:"Cart view cache TTL"`
}

// KafkaConfig enables the outbox relay when Brokers is set.
type KafkaConfig struct {
	Brokers      string        `usage:"Comma separated Kafka brokers"`
	Topic        string        `default:"gallery.orders" usage:"Topic for order events; empty uses the event type"`
	PollInterval time.Duration `default:"1s" usage:"Outbox poll interval" flag:"outbox-poll-interval"`
	BatchSize    int           `default:"100" usage:"Outbox messages per publish" flag:"outbox-batch-size"`
}

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	Secret     string `usage:"HS256 signing secret (GALLERY_JWT_SECRET)" flag:"jwt-secret"`
	AdminEmail string `usage:"Only this account keeps ADMIN capabilities" flag:"admin-email"`
}

// CheckoutConfig tunes the order engine.
type CheckoutConfig struct {
	Timeout         time.Duration `default:"10s" usage:"Upper bound for a single checkout"`
	RequireApproved bool          `default:"false" usage:"Skip artworks no longer APPROVED at checkout" flag:"require-approved"`
}

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	Rate  float64 `default:"5"  usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Burst size per client"`
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

// DemoMode reports whether the server runs on the in-memory store.
func (c *Config) DemoMode() bool {
	return c.DatabaseURL == ""
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GALLERY",
		Files:     []string{"config.yaml", "/etc/gallery/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" && !c.DemoMode() {
		return errors.New("jwt secret is required with a database: set GALLERY_JWT_SECRET")
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit rate and burst must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's GALLERY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
