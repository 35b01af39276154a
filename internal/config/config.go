package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"reepay-bridge/internal/payment"
	"reepay-bridge/internal/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisAddr   string

	JWTSecret            string
	OperatorUsername     string
	OperatorPasswordHash string
	OperatorTokenTTL     time.Duration

	ReepayPrivateKey        string
	ReepayWebhookSecret     string
	ReepayAPIBaseURL        string
	ReepayCheckoutBaseURL   string
	ReepayLocale            string
	ReepayPaymentMethods    []string
	ReepayContinueURL       string
	ReepayCancelURL         string
	ReepayErrorURL          string
	ReepaySettleImmediately bool
	ReepayTimeout           time.Duration
	ReepaySessionTTL        time.Duration
}

// LoadConfig reads settings from the environment, loading .env first when
// present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		AppPort:     getEnv("APP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		OperatorUsername:     os.Getenv("OPERATOR_USERNAME"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),

		ReepayPrivateKey:      os.Getenv("REEPAY_PRIVATE_KEY"),
		ReepayWebhookSecret:   os.Getenv("REEPAY_WEBHOOK_SECRET"),
		ReepayAPIBaseURL:      getEnv("REEPAY_API_BASE_URL", "https://api.reepay.com"),
		ReepayCheckoutBaseURL: getEnv("REEPAY_CHECKOUT_BASE_URL", "https://checkout-api.reepay.com"),
		ReepayLocale:          os.Getenv("REEPAY_LOCALE"),
		ReepayPaymentMethods:  utils.SplitCSV(os.Getenv("REEPAY_PAYMENT_METHODS")),
		ReepayContinueURL:     os.Getenv("REEPAY_CONTINUE_URL"),
		ReepayCancelURL:       os.Getenv("REEPAY_CANCEL_URL"),
		ReepayErrorURL:        os.Getenv("REEPAY_ERROR_URL"),
	}

	var err error
	if cfg.OperatorTokenTTL, err = getDuration("OPERATOR_TOKEN_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReepayTimeout, err = getDuration("REEPAY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReepaySessionTTL, err = getDuration("REEPAY_SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReepaySettleImmediately, err = getBool("REEPAY_SETTLE_IMMEDIATELY", false); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// GatewayConfig projects the Reepay settings used by the payment core.
func (c *Config) GatewayConfig() payment.GatewayConfig {
	return payment.GatewayConfig{
		APIBaseURL:        c.ReepayAPIBaseURL,
		CheckoutBaseURL:   c.ReepayCheckoutBaseURL,
		PrivateKey:        c.ReepayPrivateKey,
		WebhookSecret:     c.ReepayWebhookSecret,
		Locale:            c.ReepayLocale,
		PaymentMethods:    c.ReepayPaymentMethods,
		ContinueURL:       c.ReepayContinueURL,
		CancelURL:         c.ReepayCancelURL,
		ErrorURL:          c.ReepayErrorURL,
		SettleImmediately: c.ReepaySettleImmediately,
		Timeout:           c.ReepayTimeout,
		SessionTTL:        c.ReepaySessionTTL,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
