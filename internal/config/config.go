package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Channels ChannelConfig
	Retry    RetryConfig
}

// ChannelConfig holds endpoints and credentials for the submission channels.
type ChannelConfig struct {
	SIIEndpoint string

	FacturaeProxyEndpoint string
	FacturaeProxyAPIKey   string

	VerifactuSignerEndpoint string
	VerifactuSignerAPIKey   string

	SubmitTimeout time.Duration
}

// RetryConfig bounds the submission retry sweep.
type RetryConfig struct {
	MaxAttempts   int
	SweepInterval time.Duration
	BackoffBase   time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "facturia"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "facturia"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Channels: ChannelConfig{
			SIIEndpoint:             getenv("SII_ENDPOINT", ""),
			FacturaeProxyEndpoint:   getenv("FACTURAE_PROXY_ENDPOINT", ""),
			FacturaeProxyAPIKey:     strings.TrimSpace(getenv("FACTURAE_PROXY_API_KEY", "")),
			VerifactuSignerEndpoint: getenv("VERIFACTU_SIGNER_ENDPOINT", ""),
			VerifactuSignerAPIKey:   strings.TrimSpace(getenv("VERIFACTU_SIGNER_API_KEY", "")),
			SubmitTimeout:           getenvDuration("SUBMIT_TIMEOUT", 30*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:   getenvInt("RETRY_MAX_ATTEMPTS", 5),
			SweepInterval: getenvDuration("RETRY_SWEEP_INTERVAL", time.Minute),
			BackoffBase:   getenvDuration("RETRY_BACKOFF_BASE", 2*time.Minute),
			LeaseTTL:      getenvDuration("RETRY_LEASE_TTL", 2*time.Minute),
			BatchSize:     getenvInt("RETRY_BATCH_SIZE", 50),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

// Module provides Config to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
