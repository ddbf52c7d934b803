package config

import (
	"os"
	"strconv"
	"time"
)

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

type NexipayConfig struct {
	BaseURL         string
	APIKey          string
	WebhookSecret   string
	NotificationURL string // must match the URL registered with nexipay; part of the signature base
}

type SwiftQRConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

type WalletpayConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
}

type Config struct {
	HTTPAddr string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempotencyTTL   time.Duration
	ChargeTimeout    time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	Stripe    StripeConfig
	Nexipay   NexipayConfig
	SwiftQR   SwiftQRConfig
	Walletpay WalletpayConfig
}

// Load reads configuration from the environment. main loads .env first via
// godotenv; production sets real env vars.
func Load() Config {
	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DBDSN:    os.Getenv("DB_DSN"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		IdempotencyTTL:   getEnvDuration("IDEMPOTENCY_TTL", time.Hour),
		ChargeTimeout:    getEnvDuration("PROVIDER_CHARGE_TIMEOUT", 15*time.Second),
		RetryMaxAttempts: getEnvInt("PROVIDER_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("PROVIDER_RETRY_BASE_DELAY", 500*time.Millisecond),

		Stripe: StripeConfig{
			APIKey:        os.Getenv("STRIPE_API_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		Nexipay: NexipayConfig{
			BaseURL:         getEnv("NEXIPAY_BASE_URL", "https://api.nexipay.example"),
			APIKey:          os.Getenv("NEXIPAY_API_KEY"),
			WebhookSecret:   os.Getenv("NEXIPAY_WEBHOOK_SECRET"),
			NotificationURL: os.Getenv("NEXIPAY_NOTIFICATION_URL"),
		},
		SwiftQR: SwiftQRConfig{
			BaseURL:       getEnv("SWIFTQR_BASE_URL", "https://api.swiftqr.example"),
			APIKey:        os.Getenv("SWIFTQR_API_KEY"),
			WebhookSecret: os.Getenv("SWIFTQR_WEBHOOK_SECRET"),
		},
		Walletpay: WalletpayConfig{
			BaseURL:      getEnv("WALLETPAY_BASE_URL", "https://api.walletpay.example"),
			ClientID:     os.Getenv("WALLETPAY_CLIENT_ID"),
			ClientSecret: os.Getenv("WALLETPAY_CLIENT_SECRET"),
			WebhookID:    os.Getenv("WALLETPAY_WEBHOOK_ID"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
