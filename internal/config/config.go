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
	BaseURL     string

	OTLPEndpoint string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SeedDemoCatalog bool

	Storage  StorageConfig
	Payment  PaymentConfig
	Download DownloadConfig
	SMTP     SMTPConfig
}

// StorageConfig selects the blob backend for packaged artifacts.
type StorageConfig struct {
	Backend     string // fs | s3
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Prefix    string
	S3Endpoint  string // optional, for S3-compatible stores
	S3AccessKey string
	S3SecretKey string
}

// PaymentConfig carries per-provider gateway credentials.
type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	PaypalClientID      string
	PaypalClientSecret  string
	PaypalWebhookID     string
	GatewayTimeout      time.Duration
}

// DownloadConfig controls the packaging worker pool.
type DownloadConfig struct {
	WorkerCount       int
	RetentionWindow   time.Duration
	StuckThreshold    time.Duration
	FFmpegPath        string
	RequestRatePerMin float64
	RequestBurst      int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewStoreConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "soundcrate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		BaseURL:     strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "soundcrate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		SeedDemoCatalog: getenvBool("SEED_DEMO_CATALOG", false),

		Storage: StorageConfig{
			Backend:     strings.ToLower(getenv("STORAGE_BACKEND", "fs")),
			FSRoot:      getenv("STORAGE_FS_ROOT", "./data/artifacts"),
			S3Bucket:    getenv("STORAGE_S3_BUCKET", ""),
			S3Region:    getenv("STORAGE_S3_REGION", "us-east-1"),
			S3Prefix:    strings.Trim(getenv("STORAGE_S3_PREFIX", "artifacts"), "/"),
			S3Endpoint:  getenv("STORAGE_S3_ENDPOINT", ""),
			S3AccessKey: getenv("STORAGE_S3_ACCESS_KEY", ""),
			S3SecretKey: getenv("STORAGE_S3_SECRET_KEY", ""),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     strings.TrimSpace(getenv("PAYMENT_STRIPE_SECRET_KEY", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("PAYMENT_STRIPE_WEBHOOK_SECRET", "")),
			PaypalClientID:      strings.TrimSpace(getenv("PAYMENT_PAYPAL_CLIENT_ID", "")),
			PaypalClientSecret:  strings.TrimSpace(getenv("PAYMENT_PAYPAL_CLIENT_SECRET", "")),
			PaypalWebhookID:     strings.TrimSpace(getenv("PAYMENT_PAYPAL_WEBHOOK_ID", "")),
			GatewayTimeout:      getenvDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
		},
		Download: DownloadConfig{
			WorkerCount:       getenvInt("DOWNLOAD_WORKER_COUNT", 4),
			RetentionWindow:   getenvDuration("DOWNLOAD_RETENTION_WINDOW", 48*time.Hour),
			StuckThreshold:    getenvDuration("DOWNLOAD_STUCK_THRESHOLD", 30*time.Minute),
			FFmpegPath:        getenv("DOWNLOAD_FFMPEG_PATH", "ffmpeg"),
			RequestRatePerMin: getenvFloat("DOWNLOAD_REQUEST_RATE_PER_MIN", 10),
			RequestBurst:      getenvInt("DOWNLOAD_REQUEST_BURST", 5),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@soundcrate.fm"),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
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
