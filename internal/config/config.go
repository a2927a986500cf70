package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

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

	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Kafka     KafkaConfig
	Gateway   GatewayConfig
	Email     EmailConfig
	Receipt   ReceiptConfig
	Scheduler SchedulerConfig
}

// AuthConfig describes how bearer tokens from the identity provider are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled       bool
	PaymentRate   float64
	PaymentBurst  int
	SettleLockTTL time.Duration
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	ClientID     string
	RequiredAcks string
	Compression  string
}

type GatewayConfig struct {
	Provider        string
	BaseURL         string
	PublishableKey  string
	SecretKey       string
	WebhookSecret   string
	Currency        string
	Timeout         time.Duration
	ConfirmOnCharge bool
}

type EmailConfig struct {
	Provider     string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	ResendAPIKey string
	ResendURL    string
}

type ReceiptConfig struct {
	Workers   int
	QueueSize int
}

type SchedulerConfig struct {
	Enabled       bool
	RunInterval   time.Duration
	BatchSize     int
	PendingGrace  time.Duration
	PendingExpiry time.Duration
	EnabledJobs   []string
}

// IsProduction reports whether the process runs in a production environment.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "revenue"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		NodeID:      getenvInt64("NODE_ID", 1),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "revenue"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			Issuer:    strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			Audience:  strings.TrimSpace(getenv("AUTH_JWT_AUDIENCE", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			PaymentRate:   getenvFloat("RATE_LIMIT_PAYMENT_RATE", 0.2),
			PaymentBurst:  int(getenvInt64("RATE_LIMIT_PAYMENT_BURST", 5)),
			SettleLockTTL: getenvDuration("SETTLEMENT_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      getenvBool("KAFKA_ENABLED", false),
			Brokers:      splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:        getenv("KAFKA_TOPIC", "revenue.payments"),
			ClientID:     getenv("KAFKA_CLIENT_ID", "revenue"),
			RequiredAcks: getenv("KAFKA_REQUIRED_ACKS", "all"),
			Compression:  getenv("KAFKA_COMPRESSION", "snappy"),
		},
		Gateway: GatewayConfig{
			Provider:        strings.ToLower(getenv("PAYMENT_GATEWAY", "sandbox")),
			BaseURL:         strings.TrimRight(getenv("INTASEND_BASE_URL", "https://sandbox.intasend.com"), "/"),
			PublishableKey:  strings.TrimSpace(getenv("INTASEND_PUBLISHABLE_KEY", "")),
			SecretKey:       strings.TrimSpace(getenv("INTASEND_SECRET_KEY", "")),
			WebhookSecret:   strings.TrimSpace(getenv("INTASEND_WEBHOOK_SECRET", "")),
			Currency:        getenv("PAYMENT_CURRENCY", "KES"),
			Timeout:         getenvDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
			ConfirmOnCharge: getenvBool("GATEWAY_CONFIRM_ON_CHARGE", true),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			From:         getenv("EMAIL_FROM", "receipts@county.go.ke"),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			ResendAPIKey: strings.TrimSpace(getenv("RESEND_API_KEY", "")),
			ResendURL:    getenv("RESEND_API_URL", "https://api.resend.com/emails"),
		},
		Receipt: ReceiptConfig{
			Workers:   int(getenvInt64("RECEIPT_WORKERS", 2)),
			QueueSize: int(getenvInt64("RECEIPT_QUEUE_SIZE", 256)),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:   getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:     int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			PendingGrace:  getenvDuration("SCHEDULER_PENDING_GRACE", 2*time.Minute),
			PendingExpiry: getenvDuration("SCHEDULER_PENDING_EXPIRY", 24*time.Hour),
			EnabledJobs:   splitList(getenv("SCHEDULER_JOBS", "")),
		},
	}

	return cfg
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
