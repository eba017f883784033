package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "forgeline"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "FORGELINE_APP_ENV"
	EnvPort     = "FORGELINE_APP_PORT"
	EnvDBDSN    = "FORGELINE_DB_DSN"
	EnvDBHost   = "FORGELINE_DB_HOST"
	EnvDBUser   = "FORGELINE_DB_USER"
	EnvDBName   = "FORGELINE_DB_NAME"
	EnvRedisURL = "FORGELINE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Webhook      WebhookConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FORGELINE_APP_ENV" required:"true"`
	Port         string `envconfig:"FORGELINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FORGELINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FORGELINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FORGELINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FORGELINE_DB_DSN"`
	Driver string `envconfig:"FORGELINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FORGELINE_DB_HOST"`
	LegacyPort     int    `envconfig:"FORGELINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FORGELINE_DB_USER"`
	LegacyPassword string `envconfig:"FORGELINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FORGELINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FORGELINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FORGELINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FORGELINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FORGELINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FORGELINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FORGELINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FORGELINE_REDIS_ADDR"`
	Password     string        `envconfig:"FORGELINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FORGELINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FORGELINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FORGELINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FORGELINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FORGELINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FORGELINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FORGELINE_STRIPE_API_KEY"`
	Secret string `envconfig:"FORGELINE_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"FORGELINE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID string `envconfig:"FORGELINE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	BillingTopic        string `envconfig:"FORGELINE_PUBSUB_BILLING_TOPIC" default:"fl-billing-events"`
	BillingSubscription string `envconfig:"FORGELINE_PUBSUB_BILLING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FORGELINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FORGELINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FORGELINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"FORGELINE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FORGELINE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
