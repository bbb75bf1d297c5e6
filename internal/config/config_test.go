package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesPaymentServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "PAYMENT_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_DefaultAmountBounds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "MIN_INTENT_AMOUNT_CENTS")
	unsetEnvWithCleanup(t, "MAX_INTENT_AMOUNT_CENTS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MinIntentAmountCents != 100 {
		t.Fatalf("expected default minimum of 100, got %d", cfg.MinIntentAmountCents)
	}
	if cfg.MaxIntentAmountCents != 1000000 {
		t.Fatalf("expected default maximum of 1000000, got %d", cfg.MaxIntentAmountCents)
	}
}

func TestLoadConfig_CoercesInvalidAmountBounds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MIN_INTENT_AMOUNT_CENTS", "500")
	setEnvWithCleanup(t, "MAX_INTENT_AMOUNT_CENTS", "50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxIntentAmountCents != 1000000 {
		t.Fatalf("expected max below min to fall back to default, got %d", cfg.MaxIntentAmountCents)
	}
}

func TestLoadConfig_CapsCommissionAtFullAmount(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "AGENT_COMMISSION_BPS", "20000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AgentCommissionBps != 10000 {
		t.Fatalf("expected commission capped at 10000 bps, got %d", cfg.AgentCommissionBps)
	}
}

func TestLoadConfig_CurrenciesSplitAndNormalized(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "ALLOWED_CURRENCIES", "usd, eur ,GBP")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	currencies := cfg.Currencies()
	if len(currencies) != 3 || currencies[0] != "USD" || currencies[1] != "EUR" || currencies[2] != "GBP" {
		t.Fatalf("unexpected currencies: %v", currencies)
	}
}

func TestLoadConfig_ProviderConfigsKeyedByName(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STRIPE_API_KEY", "sk_test_123")
	setEnvWithCleanup(t, "STRIPE_WEBHOOK_SECRET", "whsec_123")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	providers := cfg.ProviderConfigs()
	stripe, ok := providers["stripe"]
	if !ok {
		t.Fatal("expected a stripe entry")
	}
	if stripe.APIKey != "sk_test_123" || stripe.WebhookSecret != "whsec_123" {
		t.Fatalf("unexpected stripe config: %+v", stripe)
	}
	if stripe.BaseURL != "https://api.stripe.com" {
		t.Fatalf("expected default stripe base url, got %q", stripe.BaseURL)
	}
	if len(providers) != 6 {
		t.Fatalf("expected six provider entries, got %d", len(providers))
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
