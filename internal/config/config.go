/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ProviderConfig holds one payment provider's API credentials and endpoints.
// Providers with an empty base URL or API key are not registered at startup.
type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

// Config holds all the configuration variables for the payment-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix            string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	IntentEventQueue          string `mapstructure:"INTENT_EVENT_QUEUE"`
	ClerkJWKSURL              string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	MinIntentAmountCents      int64  `mapstructure:"MIN_INTENT_AMOUNT_CENTS"`
	MaxIntentAmountCents      int64  `mapstructure:"MAX_INTENT_AMOUNT_CENTS"`
	AllowedCurrencies         string `mapstructure:"ALLOWED_CURRENCIES"`
	ProviderTimeoutSeconds    int    `mapstructure:"PROVIDER_TIMEOUT_SECONDS"`
	AgentCommissionBps        int64  `mapstructure:"AGENT_COMMISSION_BPS"`
	WebhookRateLimitPerMinute int    `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`
	WebhookSeenTTLHours       int    `mapstructure:"WEBHOOK_SEEN_TTL_HOURS"`

	StripeAPIBaseURL       string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeAPIKey           string `mapstructure:"STRIPE_API_KEY"`
	StripeWebhookSecret    string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	CashAppAPIBaseURL      string `mapstructure:"CASHAPP_API_BASE_URL"`
	CashAppAPIKey          string `mapstructure:"CASHAPP_API_KEY"`
	CashAppWebhookSecret   string `mapstructure:"CASHAPP_WEBHOOK_SECRET"`
	CashAppRedirectURL     string `mapstructure:"CASHAPP_REDIRECT_URL"`
	VenmoAPIBaseURL        string `mapstructure:"VENMO_API_BASE_URL"`
	VenmoAPIKey            string `mapstructure:"VENMO_API_KEY"`
	VenmoWebhookSecret     string `mapstructure:"VENMO_WEBHOOK_SECRET"`
	ChimeAPIBaseURL        string `mapstructure:"CHIME_API_BASE_URL"`
	ChimeAPIKey            string `mapstructure:"CHIME_API_KEY"`
	ChimeWebhookSecret     string `mapstructure:"CHIME_WEBHOOK_SECRET"`
	GooglePayAPIBaseURL    string `mapstructure:"GOOGLEPAY_API_BASE_URL"`
	GooglePayAPIKey        string `mapstructure:"GOOGLEPAY_API_KEY"`
	GooglePayWebhookSecret string `mapstructure:"GOOGLEPAY_WEBHOOK_SECRET"`
	PayPalAPIBaseURL       string `mapstructure:"PAYPAL_API_BASE_URL"`
	PayPalAPIKey           string `mapstructure:"PAYPAL_API_KEY"`
	PayPalWebhookSecret    string `mapstructure:"PAYPAL_WEBHOOK_SECRET"`
}

// ProviderConfigs returns the per-provider credentials keyed by provider name.
func (c Config) ProviderConfigs() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"stripe":    {BaseURL: c.StripeAPIBaseURL, APIKey: c.StripeAPIKey, WebhookSecret: c.StripeWebhookSecret},
		"cashapp":   {BaseURL: c.CashAppAPIBaseURL, APIKey: c.CashAppAPIKey, WebhookSecret: c.CashAppWebhookSecret},
		"venmo":     {BaseURL: c.VenmoAPIBaseURL, APIKey: c.VenmoAPIKey, WebhookSecret: c.VenmoWebhookSecret},
		"chime":     {BaseURL: c.ChimeAPIBaseURL, APIKey: c.ChimeAPIKey, WebhookSecret: c.ChimeWebhookSecret},
		"googlepay": {BaseURL: c.GooglePayAPIBaseURL, APIKey: c.GooglePayAPIKey, WebhookSecret: c.GooglePayWebhookSecret},
		"paypal":    {BaseURL: c.PayPalAPIBaseURL, APIKey: c.PayPalAPIKey, WebhookSecret: c.PayPalWebhookSecret},
	}
}

// Currencies splits the ALLOWED_CURRENCIES list into a slice.
func (c Config) Currencies() []string {
	parts := strings.Split(c.AllowedCurrencies, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("INTENT_EVENT_QUEUE", "payment_service.intent_finalized")
	viper.SetDefault("REDIS_KEY_PREFIX", "payeazy:webhooks")
	viper.SetDefault("MIN_INTENT_AMOUNT_CENTS", 100)
	viper.SetDefault("MAX_INTENT_AMOUNT_CENTS", 1000000)
	viper.SetDefault("ALLOWED_CURRENCIES", "USD")
	viper.SetDefault("PROVIDER_TIMEOUT_SECONDS", 15)
	viper.SetDefault("AGENT_COMMISSION_BPS", 250)
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 300)
	viper.SetDefault("WEBHOOK_SEEN_TTL_HOURS", 24)
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("PAYPAL_API_BASE_URL", "https://api-m.paypal.com")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTENT_EVENT_QUEUE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("MIN_INTENT_AMOUNT_CENTS")
	_ = viper.BindEnv("MAX_INTENT_AMOUNT_CENTS")
	_ = viper.BindEnv("ALLOWED_CURRENCIES")
	_ = viper.BindEnv("PROVIDER_TIMEOUT_SECONDS")
	_ = viper.BindEnv("AGENT_COMMISSION_BPS")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WEBHOOK_SEEN_TTL_HOURS")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_API_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("CASHAPP_API_BASE_URL")
	_ = viper.BindEnv("CASHAPP_API_KEY")
	_ = viper.BindEnv("CASHAPP_WEBHOOK_SECRET")
	_ = viper.BindEnv("CASHAPP_REDIRECT_URL")
	_ = viper.BindEnv("VENMO_API_BASE_URL")
	_ = viper.BindEnv("VENMO_API_KEY")
	_ = viper.BindEnv("VENMO_WEBHOOK_SECRET")
	_ = viper.BindEnv("CHIME_API_BASE_URL")
	_ = viper.BindEnv("CHIME_API_KEY")
	_ = viper.BindEnv("CHIME_WEBHOOK_SECRET")
	_ = viper.BindEnv("GOOGLEPAY_API_BASE_URL")
	_ = viper.BindEnv("GOOGLEPAY_API_KEY")
	_ = viper.BindEnv("GOOGLEPAY_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYPAL_API_BASE_URL")
	_ = viper.BindEnv("PAYPAL_API_KEY")
	_ = viper.BindEnv("PAYPAL_WEBHOOK_SECRET")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYMENT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "payeazy:webhooks"
	}

	if config.MinIntentAmountCents <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive minimum amount configured; using default\" min_cents=%d", config.MinIntentAmountCents)
		config.MinIntentAmountCents = 100
	}
	if config.MaxIntentAmountCents < config.MinIntentAmountCents {
		log.Printf("level=warn component=config msg=\"maximum amount below minimum; using default\" max_cents=%d", config.MaxIntentAmountCents)
		config.MaxIntentAmountCents = 1000000
	}
	if config.ProviderTimeoutSeconds <= 0 {
		config.ProviderTimeoutSeconds = 15
	}
	if config.AgentCommissionBps < 0 {
		log.Printf("level=warn component=config msg=\"negative commission configured; coercing to zero\" commission_bps=%d", config.AgentCommissionBps)
		config.AgentCommissionBps = 0
	}
	if config.AgentCommissionBps > 10000 {
		log.Printf("level=warn component=config msg=\"commission above 100%%; capping\" commission_bps=%d", config.AgentCommissionBps)
		config.AgentCommissionBps = 10000
	}
	if config.WebhookRateLimitPerMinute <= 0 {
		config.WebhookRateLimitPerMinute = 300
	}
	if config.WebhookSeenTTLHours <= 0 {
		config.WebhookSeenTTLHours = 24
	}
	if len(config.Currencies()) == 0 {
		config.AllowedCurrencies = "USD"
	}

	return
}
