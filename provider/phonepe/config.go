package phonepe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/provider"
)

const (
	// API URLs
	payProductionURL   = "https://api.phonepe.com/apis/pg"
	oauthProductionURL = "https://api.phonepe.com/apis/identity-manager"
	paySandboxURL      = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	oauthSandboxURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"

	defaultSaltIndex     = "1"
	defaultClientVersion = "1"
	defaultTokenMargin   = 60 * time.Second
	defaultRetryStatus   = 417
	defaultRetryCode     = "INVALID_TRANSACTION_ID"
	defaultHTTPTimeout   = 30 * time.Second
)

// Config is the trusted gateway configuration, read once at startup
type Config struct {
	Enabled              bool
	Environment          string
	MerchantID           string
	MerchantSecret       string
	SaltIndex            string
	ClientID             string
	ClientSecret         string
	ClientVersion        string
	PayBaseURL           string
	OAuthBaseURL         string
	CheckoutV2           bool
	AllowBodyCredentials bool
	CallbackURL          string
	TokenSafetyMargin    time.Duration
	RetryStatus          int
	RetryCode            string
	HTTPTimeout          time.Duration
}

// HasOAuth reports whether client credentials are configured
func (c Config) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ParseConfig builds a Config from provider settings keyed by field name.
// Salt index and client version stay empty when unset so request overrides can fill them.
func ParseConfig(values map[string]string) (Config, error) {
	get := func(key string) string { return strings.TrimSpace(values[key]) }

	cfg := Config{
		Environment:       strings.ToLower(get("environment")),
		MerchantID:        get("merchantId"),
		MerchantSecret:    get("merchantSecret"),
		SaltIndex:         get("saltIndex"),
		ClientID:          get("clientId"),
		ClientSecret:      get("clientSecret"),
		ClientVersion:     get("clientVersion"),
		PayBaseURL:        get("payBaseUrl"),
		OAuthBaseURL:      get("oauthBaseUrl"),
		CallbackURL:       get("callbackUrl"),
		RetryCode:         get("retryCode"),
		TokenSafetyMargin: config.ParseDuration(get("tokenSafetyMargin"), defaultTokenMargin),
		HTTPTimeout:       config.ParseDuration(get("httpTimeout"), defaultHTTPTimeout),
		RetryStatus:       defaultRetryStatus,
	}

	var err error
	if cfg.Enabled, err = parseBool(get("enabled"), false); err != nil {
		return Config{}, fmt.Errorf("phonepe: enabled: %w", err)
	}
	if cfg.CheckoutV2, err = parseBool(get("checkoutV2"), true); err != nil {
		return Config{}, fmt.Errorf("phonepe: checkoutV2: %w", err)
	}
	if cfg.AllowBodyCredentials, err = parseBool(get("allowBodyCredentials"), false); err != nil {
		return Config{}, fmt.Errorf("phonepe: allowBodyCredentials: %w", err)
	}
	if v := get("retryStatus"); v != "" {
		if cfg.RetryStatus, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("phonepe: retryStatus must be a number: %w", err)
		}
	}
	if cfg.RetryCode == "" {
		cfg.RetryCode = defaultRetryCode
	}

	sandbox := cfg.Environment == "sandbox"
	if cfg.PayBaseURL == "" {
		cfg.PayBaseURL = payProductionURL
		if sandbox {
			cfg.PayBaseURL = paySandboxURL
		}
	}
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = oauthProductionURL
		if sandbox {
			cfg.OAuthBaseURL = oauthSandboxURL
		}
	}
	cfg.PayBaseURL = strings.TrimRight(cfg.PayBaseURL, "/")
	cfg.OAuthBaseURL = strings.TrimRight(cfg.OAuthBaseURL, "/")

	return cfg, nil
}

func parseBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// configFields describes the settings accepted by the provider. Nothing is
// required: a provider without credentials answers with dry runs.
func configFields() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: "enabled", Type: "boolean", Description: "Allow outbound gateway calls", Example: "true"},
		{Key: "environment", Type: "string", Description: "Environment setting (sandbox or production)", Example: "production", Pattern: "^(sandbox|production)$"},
		{Key: "merchantId", Type: "string", Description: "PhonePe merchant id", Example: "M22XXXXXXXX", MaxLength: 64},
		{Key: "merchantSecret", Type: "string", Description: "Salt key used for X-VERIFY", Example: "099eb0cd-02cf-4e2a-8aca-3e6c6aff0399"},
		{Key: "saltIndex", Type: "number", Description: "Salt key index", Example: "1"},
		{Key: "clientId", Type: "string", Description: "OAuth client id", Example: "SU2505XXXXXXXXX"},
		{Key: "clientSecret", Type: "string", Description: "OAuth client secret", Example: "a1b2c3d4-..."},
		{Key: "clientVersion", Type: "number", Description: "OAuth client version", Example: "1"},
		{Key: "payBaseUrl", Type: "url", Description: "Payment API base url", Example: payProductionURL},
		{Key: "oauthBaseUrl", Type: "url", Description: "OAuth API base url", Example: oauthProductionURL},
		{Key: "checkoutV2", Type: "boolean", Description: "Use the checkout v2 API", Example: "true"},
		{Key: "allowBodyCredentials", Type: "boolean", Description: "Let requests supply missing credentials", Example: "false"},
		{Key: "callbackUrl", Type: "url", Description: "Default redirect and callback url", Example: "https://shop.example.com/payment/callback"},
		{Key: "tokenSafetyMargin", Type: "duration", Description: "Refresh tokens this long before they expire", Example: "60s"},
		{Key: "retryStatus", Type: "number", Description: "HTTP status that triggers the transaction id retry", Example: "417"},
		{Key: "retryCode", Type: "string", Description: "Body code that triggers the transaction id retry", Example: defaultRetryCode},
		{Key: "httpTimeout", Type: "duration", Description: "Timeout of a single gateway call", Example: "30s"},
	}
}

// credentials are the values actually used for one payment
type credentials struct {
	MerchantID     string
	MerchantSecret string
	SaltIndex      string
	ClientID       string
	ClientSecret   string
	ClientVersion  string
}

func (c credentials) hasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c credentials) oauth() OAuthCredentials {
	return OAuthCredentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret, ClientVersion: c.ClientVersion}
}

// resolveCredentials merges trusted config with request overrides. An override
// is only read when the trusted value is empty and overrides are allowed.
func resolveCredentials(cfg Config, req provider.PaymentRequest) credentials {
	allow := cfg.AllowBodyCredentials || req.AllowInsecureCredentials
	pick := func(trusted, override string) string {
		if trusted != "" {
			return trusted
		}
		if allow {
			return strings.TrimSpace(override)
		}
		return ""
	}

	o := req.Overrides
	return credentials{
		MerchantID:     pick(cfg.MerchantID, o.MerchantID),
		MerchantSecret: pick(cfg.MerchantSecret, o.MerchantSecret),
		SaltIndex:      firstNonEmpty(pick(cfg.SaltIndex, o.SaltIndex), defaultSaltIndex),
		ClientID:       pick(cfg.ClientID, o.ClientID),
		ClientSecret:   pick(cfg.ClientSecret, o.ClientSecret),
		ClientVersion:  firstNonEmpty(pick(cfg.ClientVersion, o.ClientVersion), defaultClientVersion),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
