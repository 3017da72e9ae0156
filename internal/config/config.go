package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	LogLevel        string

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	CatalogDBPath         string
	CatalogMigrationsPath string

	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	MongoURI    string
	MongoDBName string

	KafkaBrokers       []string
	OrderEventsTopic   string
	PaymentEventsTopic string
	PaymentGroupID     string

	PaymentProvider        string
	PaymentProviderURL     string
	PaymentProviderAPIKey  string
	PaymentWebhookSecret   string
	PaymentProviderTimeout time.Duration
	WebhookTolerance       time.Duration
	NativeWebhookToken     string
}

func Load() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50051"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxBodyBytes:    1 << 20, // 1MB
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getInt("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "storefront"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "internal/repository/migrations"),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CartCacheTTL:  getDuration("CART_CACHE_TTL", 15*time.Minute),

		MongoURI:    getEnv("MONGO_URI", ""),
		MongoDBName: getEnv("MONGO_DB_NAME", "storefront"),

		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OrderEventsTopic:   getEnv("ORDER_EVENTS_TOPIC", "storefront-orders"),
		PaymentEventsTopic: getEnv("PAYMENT_EVENTS_TOPIC", "payment-events"),
		PaymentGroupID:     getEnv("PAYMENT_GROUP_ID", "storefront-reconciler"),

		PaymentProvider:        getEnv("PAYMENT_PROVIDER", "stripe"),
		PaymentProviderURL:     getEnv("PAYMENT_PROVIDER_URL", "https://api.stripe.com"),
		PaymentProviderAPIKey:  getEnv("PAYMENT_PROVIDER_API_KEY", ""),
		PaymentWebhookSecret:   getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		PaymentProviderTimeout: getDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		WebhookTolerance:       getDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		NativeWebhookToken:     getEnv("NATIVE_WEBHOOK_TOKEN", ""),
	}
}

// HostedPayments reports whether hosted checkout is enabled.
func (c *Config) HostedPayments() bool {
	return c.PaymentProviderAPIKey != ""
}

// Validate rejects configurations that would leave payment callbacks unauthenticated.
// With hosted payments on, the hosted provider's callbacks need a signing secret and
// native callbacks need a token.
func (c *Config) Validate() error {
	if !c.HostedPayments() {
		return nil
	}
	var errs []error
	if c.PaymentWebhookSecret == "" {
		errs = append(errs, errors.New("PAYMENT_WEBHOOK_SECRET is required when PAYMENT_PROVIDER_API_KEY is set"))
	}
	if c.NativeWebhookToken == "" {
		errs = append(errs, errors.New("NATIVE_WEBHOOK_TOKEN is required when PAYMENT_PROVIDER_API_KEY is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
