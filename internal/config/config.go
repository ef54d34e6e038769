package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	SnowflakeNode int64

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	CatalogFile string

	Redis    RedisConfig
	Credits  CreditsConfig
	Referral ReferralConfig
	Worker   WorkerConfig
}

// RedisConfig enables the optional per-user reservation limiter and the
// settlement notification lock. Both are skipped when Enabled is false.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int

	ReserveRate       float64
	ReserveBurst      int
	SettlementLockTTL time.Duration
}

// TelemetryConfig drives logging, tracing and OTLP metric export.
// OTel export defaults to on in production only.
type TelemetryConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

type CreditsConfig struct {
	// FreeCredits is granted to every account on creation.
	FreeCredits int
}

type ReferralConfig struct {
	SignupReward    int
	PurchasePercent int
}

type WorkerConfig struct {
	RewardReconcileInterval time.Duration
	RewardReconcileBatch    int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := strings.TrimSpace(getenv("ENVIRONMENT", "development"))
	cfg := Config{
		AppName:       strings.TrimSpace(getenv("APP_SERVICE", "creditledger")),
		AppVersion:    strings.TrimSpace(getenv("APP_VERSION", "0.1.0")),
		Environment:   environment,
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", strings.EqualFold(environment, "production")),
			OtelEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creditledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		CatalogFile: strings.TrimSpace(getenv("CATALOG_FILE", "")),

		Redis: RedisConfig{
			Enabled:           getenvBool("REDIS_ENABLED", false),
			Addr:              strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password:          strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:                getenvInt("REDIS_DB", 0),
			ReserveRate:       getenvFloat("RESERVE_RATE_PER_SECOND", 1),
			ReserveBurst:      getenvInt("RESERVE_BURST", 5),
			SettlementLockTTL: time.Duration(getenvInt("SETTLEMENT_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Credits: CreditsConfig{
			FreeCredits: getenvInt("FREE_CREDITS", 3),
		},
		Referral: ReferralConfig{
			SignupReward:    getenvInt("REFERRAL_REWARD_START", 5),
			PurchasePercent: getenvInt("REFERRAL_REWARD_PURCHASE_PERCENT", 10),
		},
		Worker: WorkerConfig{
			RewardReconcileInterval: time.Duration(getenvInt("REWARD_RECONCILE_INTERVAL_SECONDS", 60)) * time.Second,
			RewardReconcileBatch:    getenvInt("REWARD_RECONCILE_BATCH", 100),
		},
	}

	if cfg.Credits.FreeCredits < 0 {
		log.Printf("[config] FREE_CREDITS=%d is negative, using 0", cfg.Credits.FreeCredits)
		cfg.Credits.FreeCredits = 0
	}
	if cfg.Referral.PurchasePercent < 0 {
		cfg.Referral.PurchasePercent = 0
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, value, def)
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, value, def)
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
