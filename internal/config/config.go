package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	// CounterStore keeps invoice counters in the appointment store.
	CounterStore = "store"
	CounterRedis = "redis"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	StoreBackend          string        `mapstructure:"STORE_BACKEND"`
	CounterBackend        string        `mapstructure:"COUNTER_BACKEND"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	MongoURI              string        `mapstructure:"MONGO_URI"`
	MongoDatabasePrefix   string        `mapstructure:"MONGO_DATABASE_PREFIX"`
	MongoTransactions     bool          `mapstructure:"MONGO_TRANSACTIONS"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	DefaultTenant         string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	AuthIssuer            string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL           string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey        string        `mapstructure:"AUTH_SIGNING_KEY"`
	RequestTimeout        time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	RejectNegativeAmounts bool          `mapstructure:"BILLING_REJECT_NEGATIVE_AMOUNTS"`
	ReconcileSchedule     string        `mapstructure:"COUNTER_RECONCILE_SCHEDULE"`
}

var keys = []string{
	"PORT", "ENV", "STORE_BACKEND", "COUNTER_BACKEND",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MONGO_URI", "MONGO_DATABASE_PREFIX", "MONGO_TRANSACTIONS",
	"REDIS_URL", "DEFAULT_TENANT", "CORS_ORIGINS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"REQUEST_TIMEOUT", "BODY_LIMIT",
	"BILLING_REJECT_NEGATIVE_AMOUNTS", "COUNTER_RECONCILE_SCHEDULE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("COUNTER_BACKEND", CounterStore)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MONGO_DATABASE_PREFIX", "clinic")
	v.SetDefault("MONGO_TRANSACTIONS", false)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("BILLING_REJECT_NEGATIVE_AMOUNTS", false)
	v.SetDefault("COUNTER_RECONCILE_SCHEDULE", "30 2 * * *")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.CounterBackend = strings.ToLower(strings.TrimSpace(cfg.CounterBackend))

	switch {
	case cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "":
		return nil, fmt.Errorf("DATABASE_URL is required")
	case cfg.StoreBackend == BackendMongo && cfg.MongoURI == "":
		return nil, fmt.Errorf("MONGO_URI is required")
	case cfg.CounterBackend == CounterRedis && cfg.RedisURL == "":
		return nil, fmt.Errorf("REDIS_URL is required when COUNTER_BACKEND is redis")
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in development mode: requests without a bearer token get admin access")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CounterSharesTx reports whether invoice numbers are taken in the same
// transaction as the visit write.
func (c *Config) CounterSharesTx() bool {
	if c.CounterBackend != CounterStore {
		return false
	}
	return c.StoreBackend == BackendPostgres || c.MongoTransactions
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured, and the shared HMAC key is refused in
// production.
func (c *Config) Validate() error {
	if c.StoreBackend != BackendPostgres && c.StoreBackend != BackendMongo {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMongo, c.StoreBackend)
	}
	if c.CounterBackend != CounterStore && c.CounterBackend != CounterRedis {
		return fmt.Errorf("COUNTER_BACKEND must be %q or %q, got %q", CounterStore, CounterRedis, c.CounterBackend)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is not allowed in production; use AUTH_ISSUER or AUTH_JWKS_URL")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			return fmt.Errorf("COUNTER_RECONCILE_SCHEDULE: %w", err)
		}
	}
	return nil
}
