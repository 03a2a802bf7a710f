package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is built once at startup and passed by value to the components that need it.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigins []string
	LogLevel    string
	LogDir      string

	JWTSecret   string
	JWTTTLHours int

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	Billing Billing

	RedisAddr     string
	RedisPassword string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	LLMTimeout  time.Duration
	PersonaFile string

	ReconcileSchedule string
}

// Billing groups the monetization constants shared by checkout, ledger and reconciler.
type Billing struct {
	Currency                  string
	PlatformFeeRate           decimal.Decimal
	MinSubscriptionPriceCents int64
	MinTipCents               int64
	LargeTipThresholdCents    int64
	SubscriptionGrace         time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("JWT_TTL_HOURS", 72)
	v.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success")
	v.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel")
	v.SetDefault("CURRENCY", "brl")
	v.SetDefault("PLATFORM_FEE_RATE", "0.20")
	v.SetDefault("MIN_SUBSCRIPTION_PRICE_CENTS", 499)
	v.SetDefault("MIN_TIP_CENTS", 500)
	v.SetDefault("LARGE_TIP_THRESHOLD_CENTS", 5000)
	v.SetDefault("SUBSCRIPTION_GRACE", "0s")
	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "20s")
	v.SetDefault("PERSONA_FILE", "personas/default.yaml")
	v.SetDefault("RECONCILE_SCHEDULE", "0 30 3 * * *")
}

// Load reads an optional .env file then the process environment.
func Load() (Config, error) {
	// .env is optional: in containers everything comes from the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return FromViper(v)
}

// FromViper builds a Config out of an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	rate, err := decimal.NewFromString(v.GetString("PLATFORM_FEE_RATE"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid PLATFORM_FEE_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("PLATFORM_FEE_RATE must be in [0, 1), got %s", rate)
	}

	cfg := Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: v.GetString("DB_URL"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogDir:      v.GetString("LOG_DIR"),

		JWTSecret:   v.GetString("JWT_SECRET"),
		JWTTTLHours: v.GetInt("JWT_TTL_HOURS"),

		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  v.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   v.GetString("CHECKOUT_CANCEL_URL"),

		Billing: Billing{
			Currency:                  strings.ToLower(v.GetString("CURRENCY")),
			PlatformFeeRate:           rate,
			MinSubscriptionPriceCents: v.GetInt64("MIN_SUBSCRIPTION_PRICE_CENTS"),
			MinTipCents:               v.GetInt64("MIN_TIP_CENTS"),
			LargeTipThresholdCents:    v.GetInt64("LARGE_TIP_THRESHOLD_CENTS"),
			SubscriptionGrace:         v.GetDuration("SUBSCRIPTION_GRACE"),
		},

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),

		CloudinaryCloudName: v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: v.GetString("CLOUDINARY_API_SECRET"),

		LLMBaseURL:  v.GetString("LLM_BASE_URL"),
		LLMAPIKey:   v.GetString("LLM_API_KEY"),
		LLMModel:    v.GetString("LLM_MODEL"),
		LLMTimeout:  v.GetDuration("LLM_TIMEOUT"),
		PersonaFile: v.GetString("PERSONA_FILE"),

		ReconcileSchedule: v.GetString("RECONCILE_SCHEDULE"),
	}
	return cfg, nil
}

// Validate checks the settings the API server cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DB_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
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
