// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel string
	RunLocal bool
	HTTPAddr string

	AWSRegion   string
	AWSEndpoint string

	OrdersTable      string
	LookupsTable     string
	CatalogTable     string
	AccountsTable    string
	IdempotencyTable string
	IdempotencyTTL   time.Duration

	EventsQueueURL   string
	WebhookQueueURL  string
	MetricsNamespace string

	PaymentBaseURL         string
	PaymentKeyID           string
	PaymentKeySecret       string
	PaymentWebhookSecret   string
	PaymentTimeout         time.Duration
	PaymentSignatureBypass bool
	Currency               string

	RedisAddr         string
	MenuCacheTTL      time.Duration
	CheckoutRateLimit int

	KafkaBrokers []string
	KafkaTopic   string
}

func Load() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		RunLocal: getEnvBool("RUN_LOCAL", false),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		AWSRegion:   os.Getenv("AWS_REGION"),
		AWSEndpoint: os.Getenv("AWS_ENDPOINT_OVERRIDE"),

		OrdersTable:      getEnv("ORDERS_TABLE", "orders"),
		LookupsTable:     getEnv("LOOKUPS_TABLE", "order-lookups"),
		CatalogTable:     getEnv("CATALOG_TABLE", "catalog"),
		AccountsTable:    getEnv("ACCOUNTS_TABLE", "accounts"),
		IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		IdempotencyTTL:   getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		EventsQueueURL:   os.Getenv("EVENTS_QUEUE_URL"),
		WebhookQueueURL:  os.Getenv("WEBHOOK_QUEUE_URL"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "CanteenOrderflow"),

		PaymentBaseURL:         os.Getenv("PAYMENT_BASE_URL"),
		PaymentKeyID:           os.Getenv("PAYMENT_KEY_ID"),
		PaymentKeySecret:       os.Getenv("PAYMENT_KEY_SECRET"),
		PaymentWebhookSecret:   os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentTimeout:         getEnvDuration("PAYMENT_TIMEOUT", 5*time.Second),
		PaymentSignatureBypass: getEnvBool("PAYMENT_SIGNATURE_BYPASS", false),
		Currency:               getEnv("CURRENCY", "INR"),

		RedisAddr:         os.Getenv("REDIS_ADDR"),
		MenuCacheTTL:      getEnvDuration("MENU_CACHE_TTL", 30*time.Second),
		CheckoutRateLimit: getEnvInt("CHECKOUT_RATE_LIMIT", 10),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)

	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
