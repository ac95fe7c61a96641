package phonepe

import (
	"testing"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{})
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.CheckoutV2)
	assert.False(t, cfg.AllowBodyCredentials)
	assert.Equal(t, payProductionURL, cfg.PayBaseURL)
	assert.Equal(t, oauthProductionURL, cfg.OAuthBaseURL)
	assert.Equal(t, 60*time.Second, cfg.TokenSafetyMargin)
	assert.Equal(t, 417, cfg.RetryStatus)
	assert.Equal(t, "INVALID_TRANSACTION_ID", cfg.RetryCode)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.SaltIndex)
	assert.False(t, cfg.HasOAuth())
}

func TestParseConfig_Values(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{
		"enabled":           "true",
		"environment":       "sandbox",
		"merchantId":        " M1 ",
		"clientId":          "cid",
		"clientSecret":      "csecret",
		"checkoutV2":        "false",
		"tokenSafetyMargin": "90",
		"httpTimeout":       "5s",
		"retryStatus":       "409",
		"retryCode":         "DUPLICATE",
		"payBaseUrl":        "https://pay.example/",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "M1", cfg.MerchantID)
	assert.True(t, cfg.HasOAuth())
	assert.False(t, cfg.CheckoutV2)
	assert.Equal(t, 90*time.Second, cfg.TokenSafetyMargin)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 409, cfg.RetryStatus)
	assert.Equal(t, "DUPLICATE", cfg.RetryCode)
	assert.Equal(t, "https://pay.example", cfg.PayBaseURL)
	assert.Equal(t, oauthSandboxURL, cfg.OAuthBaseURL)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig(map[string]string{"enabled": "maybe"})
	assert.Error(t, err)

	_, err = ParseConfig(map[string]string{"retryStatus": "abc"})
	assert.Error(t, err)
}

func TestResolveCredentials(t *testing.T) {
	overrides := provider.CredentialOverrides{
		MerchantID:     "BODY-M",
		MerchantSecret: "body-secret",
		SaltIndex:      "3",
		ClientID:       "body-client",
		ClientSecret:   "body-client-secret",
		ClientVersion:  "2",
	}

	t.Run("overrides ignored without permission", func(t *testing.T) {
		creds := resolveCredentials(Config{}, provider.PaymentRequest{Overrides: overrides})
		assert.Empty(t, creds.MerchantID)
		assert.Empty(t, creds.MerchantSecret)
		assert.Empty(t, creds.ClientID)
		assert.Equal(t, "1", creds.SaltIndex)
		assert.Equal(t, "1", creds.ClientVersion)
	})

	t.Run("request flag allows overrides", func(t *testing.T) {
		creds := resolveCredentials(Config{}, provider.PaymentRequest{Overrides: overrides, AllowInsecureCredentials: true})
		assert.Equal(t, "BODY-M", creds.MerchantID)
		assert.Equal(t, "body-secret", creds.MerchantSecret)
		assert.Equal(t, "3", creds.SaltIndex)
		assert.Equal(t, "body-client", creds.ClientID)
		assert.Equal(t, "2", creds.ClientVersion)
		assert.True(t, creds.hasOAuth())
	})

	t.Run("config flag allows overrides", func(t *testing.T) {
		creds := resolveCredentials(Config{AllowBodyCredentials: true}, provider.PaymentRequest{Overrides: overrides})
		assert.Equal(t, "BODY-M", creds.MerchantID)
	})

	t.Run("trusted config wins", func(t *testing.T) {
		cfg := Config{MerchantID: "CFG-M", SaltIndex: "7", ClientID: "cfg-client", AllowBodyCredentials: true}
		creds := resolveCredentials(cfg, provider.PaymentRequest{Overrides: overrides})
		assert.Equal(t, "CFG-M", creds.MerchantID)
		assert.Equal(t, "7", creds.SaltIndex)
		assert.Equal(t, "cfg-client", creds.ClientID)
		assert.Equal(t, "body-client-secret", creds.ClientSecret)
	})
}

func TestValidateConfig(t *testing.T) {
	p := New()
	assert.NoError(t, p.ValidateConfig(map[string]string{"enabled": "true", "payBaseUrl": "https://pay.example"}))
	assert.Error(t, p.ValidateConfig(map[string]string{"environment": "staging"}))
	assert.Error(t, p.ValidateConfig(map[string]string{"payBaseUrl": "not a url"}))
	assert.Error(t, p.ValidateConfig(map[string]string{"enabled": "yes please"}))
}

func TestRegistered(t *testing.T) {
	p, err := provider.CreateProvider("phonepe")
	require.NoError(t, err)
	assert.IsType(t, &PhonePeProvider{}, p)
}
