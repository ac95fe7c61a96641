package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Source resolves a single configuration key.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads keys from the process environment.
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// MapSource serves keys from a fixed map. Mostly useful in tests.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// SourceChain asks each source in order and returns the first hit.
type SourceChain []Source

func (c SourceChain) Lookup(key string) (string, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// ReadConfig returns the value for key from src, or "" when no source has it.
func ReadConfig(src Source, key string) string {
	v, _ := src.Lookup(key)
	return strings.TrimSpace(v)
}

// providerKeys maps provider config field names to the keys they are read from.
var providerKeys = map[string]map[string]string{
	"phonepe": {
		"enabled":              "PHONEPE_ENABLED",
		"environment":          "PHONEPE_ENVIRONMENT",
		"merchantId":           "PHONEPE_MERCHANT_ID",
		"merchantSecret":       "PHONEPE_MERCHANT_SECRET",
		"saltIndex":            "PHONEPE_SALT_INDEX",
		"clientId":             "PHONEPE_CLIENT_ID",
		"clientSecret":         "PHONEPE_CLIENT_SECRET",
		"clientVersion":        "PHONEPE_CLIENT_VERSION",
		"payBaseUrl":           "PHONEPE_PAY_BASE_URL",
		"oauthBaseUrl":         "PHONEPE_OAUTH_BASE_URL",
		"checkoutV2":           "PHONEPE_CHECKOUT_V2",
		"allowBodyCredentials": "PHONEPE_ALLOW_BODY_CREDENTIALS",
		"callbackUrl":          "PHONEPE_PAYMENT_CALLBACK_URL",
		"tokenSafetyMargin":    "PHONEPE_TOKEN_SAFETY_MARGIN",
		"retryStatus":          "PHONEPE_RETRY_STATUS",
		"retryCode":            "PHONEPE_RETRY_CODE",
		"httpTimeout":          "PHONEPE_HTTP_TIMEOUT",
	},
}

// ProviderConfig holds the resolved settings of every configured provider.
// It is built once at startup and only read afterwards.
type ProviderConfig struct {
	configs map[string]map[string]string
}

// NewProviderConfig creates an empty provider configuration
func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		configs: make(map[string]map[string]string),
	}
}

// LoadFromSource resolves every known provider key from src. A provider with
// no key present at all is skipped.
func (c *ProviderConfig) LoadFromSource(src Source) {
	for providerName, keys := range providerKeys {
		values := make(map[string]string)
		for field, key := range keys {
			if v := ReadConfig(src, key); v != "" {
				values[field] = v
			}
		}
		if len(values) > 0 {
			c.configs[providerName] = values
		}
	}
}

// SetConfig replaces the configuration of a single provider.
func (c *ProviderConfig) SetConfig(providerName string, values map[string]string) error {
	if providerName == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if len(values) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	c.configs[strings.ToLower(providerName)] = cp
	return nil
}

// GetConfig returns a copy of the configuration for a specific provider
func (c *ProviderConfig) GetConfig(providerName string) (map[string]string, error) {
	config, exists := c.configs[strings.ToLower(providerName)]
	if !exists {
		return nil, fmt.Errorf("no configuration found for provider: %s", providerName)
	}

	configCopy := make(map[string]string, len(config))
	for k, v := range config {
		configCopy[k] = v
	}
	return configCopy, nil
}

// GetAvailableProviders returns all providers that have configurations
func (c *ProviderConfig) GetAvailableProviders() []string {
	providers := make([]string, 0, len(c.configs))
	for provider := range c.configs {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers
}
