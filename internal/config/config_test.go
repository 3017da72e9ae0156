package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.PaymentProviderTimeout)
	assert.Equal(t, "stripe", cfg.PaymentProvider)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENT_PROVIDER_TIMEOUT", "3s")
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 6543, cfg.DBPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.PaymentProviderTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"direct checkout only", Config{}, ""},
		{"hosted without native token", Config{PaymentProviderAPIKey: "sk", PaymentWebhookSecret: "whsec"}, "NATIVE_WEBHOOK_TOKEN"},
		{"hosted without signing secret", Config{PaymentProviderAPIKey: "sk", NativeWebhookToken: "tok"}, "PAYMENT_WEBHOOK_SECRET"},
		{"hosted fully configured", Config{PaymentProviderAPIKey: "sk", PaymentWebhookSecret: "whsec", NativeWebhookToken: "tok"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_HostedFromEnvironment(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER_API_KEY", "sk_test")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("NATIVE_WEBHOOK_TOKEN", "")

	cfg := Load()

	assert.True(t, cfg.HostedPayments())
	assert.ErrorContains(t, cfg.Validate(), "NATIVE_WEBHOOK_TOKEN")
}
