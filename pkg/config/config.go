package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "NOVAVIDA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "NOVAVIDA_DB_DSN"
	EnvDBHost = "NOVAVIDA_DB_HOST"
	EnvDBUser = "NOVAVIDA_DB_USER"
	EnvDBName = "NOVAVIDA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
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
	Env          string `envconfig:"NOVAVIDA_APP_ENV" required:"true"`
	Port         string `envconfig:"NOVAVIDA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NOVAVIDA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NOVAVIDA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NOVAVIDA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NOVAVIDA_DB_DSN"`
	Driver string `envconfig:"NOVAVIDA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NOVAVIDA_DB_HOST"`
	LegacyPort     int    `envconfig:"NOVAVIDA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NOVAVIDA_DB_USER"`
	LegacyPassword string `envconfig:"NOVAVIDA_DB_PASSWORD"`
	LegacyName     string `envconfig:"NOVAVIDA_DB_NAME"`
	LegacySSLMode  string `envconfig:"NOVAVIDA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NOVAVIDA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NOVAVIDA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NOVAVIDA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NOVAVIDA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NOVAVIDA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NOVAVIDA_REDIS_ADDR"`
	Password     string        `envconfig:"NOVAVIDA_REDIS_PASSWORD"`
	DB           int           `envconfig:"NOVAVIDA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NOVAVIDA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NOVAVIDA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NOVAVIDA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NOVAVIDA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NOVAVIDA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NOVAVIDA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NOVAVIDA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NOVAVIDA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"NOVAVIDA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"NOVAVIDA_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NOVAVIDA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"NOVAVIDA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NOVAVIDA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CommissionTopic        string `envconfig:"NOVAVIDA_PUBSUB_COMMISSION_TOPIC" default:"nv-commission-events"`
	CommissionSubscription string `envconfig:"NOVAVIDA_PUBSUB_COMMISSION_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"NOVAVIDA_BIGQUERY_DATASET" default:"novavida"`
	PayoutsTable string `envconfig:"NOVAVIDA_BIGQUERY_PAYOUTS_TABLE" default:"commission_payouts"`
	PurgesTable  string `envconfig:"NOVAVIDA_BIGQUERY_PURGES_TABLE" default:"purge_runs"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"NOVAVIDA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"NOVAVIDA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"NOVAVIDA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type RateLimitConfig struct {
	CoinsPerMinute int64 `envconfig:"NOVAVIDA_RATE_LIMIT_COINS_PER_MINUTE" default:"30"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"NOVAVIDA_CRON_INTERVAL" default:"24h"`
	LockTTL         time.Duration `envconfig:"NOVAVIDA_CRON_LOCK_TTL" default:"25h"`
	OutboxRetention time.Duration `envconfig:"NOVAVIDA_OUTBOX_RETENTION" default:"720h"`
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
