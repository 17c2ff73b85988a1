package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	AppBaseURL     string
	AllowedOrigins []string

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	FeeRate             decimal.Decimal
	MinDonationCents    int64

	RedisAddr         string
	DirectoryCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	AdminAPIToken     string
	PendingSweepAfter time.Duration

	CheckoutRateLimit float64
	CheckoutRateBurst int
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("CURRENCY", "usd")
	v.SetDefault("FEE_RATE", "0.03")
	v.SetDefault("MIN_DONATION_CENTS", 100)
	v.SetDefault("DIRECTORY_CACHE_TTL", "5m")
	v.SetDefault("KAFKA_TOPIC", "donation-events")
	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("PENDING_SWEEP_AFTER", "24h")
	v.SetDefault("CHECKOUT_RATE_LIMIT", 2)
	v.SetDefault("CHECKOUT_RATE_BURST", 10)

	dbSource := v.GetString("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	feeRate, err := decimal.NewFromString(v.GetString("FEE_RATE"))
	if err != nil {
		return nil, fmt.Errorf("FEE_RATE: %w", err)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("FEE_RATE must be in [0, 1), got %s", feeRate)
	}

	minCents := v.GetInt64("MIN_DONATION_CENTS")
	if minCents <= 0 {
		return nil, fmt.Errorf("MIN_DONATION_CENTS must be positive, got %d", minCents)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("DIRECTORY_CACHE_TTL"))
	if err != nil {
		return nil, fmt.Errorf("DIRECTORY_CACHE_TTL: %w", err)
	}
	sweepAfter, err := time.ParseDuration(v.GetString("PENDING_SWEEP_AFTER"))
	if err != nil {
		return nil, fmt.Errorf("PENDING_SWEEP_AFTER: %w", err)
	}

	rps := v.GetFloat64("CHECKOUT_RATE_LIMIT")
	if rps < 0 {
		return nil, fmt.Errorf("CHECKOUT_RATE_LIMIT must not be negative, got %v", rps)
	}

	return &Config{
		DBSource:            dbSource,
		Port:                v.GetString("SERVER_PORT"),
		Env:                 v.GetString("ENVIRONMENT"),
		AppBaseURL:          strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		AllowedOrigins:      splitList(v.GetString("ALLOWED_ORIGINS")),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(v.GetString("CURRENCY")),
		FeeRate:             feeRate,
		MinDonationCents:    minCents,
		RedisAddr:           v.GetString("REDIS_ADDR"),
		DirectoryCacheTTL:   cacheTTL,
		KafkaBrokers:        splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:          v.GetString("KAFKA_TOPIC"),
		LLMAPIKey:           v.GetString("LLM_API_KEY"),
		LLMBaseURL:          strings.TrimRight(v.GetString("LLM_BASE_URL"), "/"),
		LLMModel:            v.GetString("LLM_MODEL"),
		AdminAPIToken:       v.GetString("ADMIN_API_TOKEN"),
		PendingSweepAfter:   sweepAfter,
		CheckoutRateLimit:   rps,
		CheckoutRateBurst:   v.GetInt("CHECKOUT_RATE_BURST"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
