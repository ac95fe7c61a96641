package phonepe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mstgnz/paygate/infra/metrics"
	"github.com/mstgnz/paygate/provider"
)

const (
	endpointOAuthToken   = "/v1/oauth/token"
	defaultTokenLifetime = 3300 * time.Second
)

// OAuthCredentials identify the merchant's OAuth client
type OAuthCredentials struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
}

type credential struct {
	clientID  string
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   json.Number `json:"expires_at"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// TokenCache holds a single OAuth access token. Readers take the current value
// without locking; a refresh is serialized so concurrent stale callers cause one
// token request.
type TokenCache struct {
	client  *provider.ProviderHTTPClient
	margin  time.Duration
	now     func() time.Time
	current atomic.Pointer[credential]
	refresh chan struct{}

	refreshes atomic.Int64
}

// NewTokenCache creates a cache fetching tokens from oauthBaseURL
func NewTokenCache(oauthBaseURL string, timeout, margin time.Duration) *TokenCache {
	client := provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(oauthBaseURL, timeout))
	return newTokenCache(client, margin, time.Now)
}

func newTokenCache(client *provider.ProviderHTTPClient, margin time.Duration, now func() time.Time) *TokenCache {
	if margin <= 0 {
		margin = defaultTokenMargin
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		client:  client,
		margin:  margin,
		now:     now,
		refresh: make(chan struct{}, 1),
	}
}

// Refreshes returns how many token requests the cache has made
func (c *TokenCache) Refreshes() int64 {
	return c.refreshes.Load()
}

// Invalidate drops the cached token
func (c *TokenCache) Invalidate() {
	c.current.Store(nil)
}

// Token returns a usable access token for creds and whether it came from the cache
func (c *TokenCache) Token(ctx context.Context, creds OAuthCredentials) (string, provider.TokenSource, error) {
	if cred := c.usable(creds.ClientID); cred != nil {
		metrics.IncToken(providerName, string(provider.TokenFromCache))
		return cred.token, provider.TokenFromCache, nil
	}

	select {
	case c.refresh <- struct{}{}:
	case <-ctx.Done():
		return "", "", provider.NewError(provider.KindCredential, "oauth token", "waiting for token refresh", ctx.Err())
	}
	defer func() { <-c.refresh }()

	// another caller may have refreshed while we waited
	if cred := c.usable(creds.ClientID); cred != nil {
		metrics.IncToken(providerName, string(provider.TokenFromCache))
		return cred.token, provider.TokenFromCache, nil
	}

	cred, err := c.fetch(ctx, creds)
	if err != nil {
		metrics.IncToken(providerName, "error")
		return "", "", err
	}
	c.current.Store(cred)
	metrics.IncToken(providerName, string(provider.TokenFresh))

	return cred.token, provider.TokenFresh, nil
}

func (c *TokenCache) usable(clientID string) *credential {
	cred := c.current.Load()
	if cred == nil || cred.clientID != clientID {
		return nil
	}
	if !c.now().Before(cred.expiresAt.Add(-c.margin)) {
		return nil
	}
	return cred
}

func (c *TokenCache) fetch(ctx context.Context, creds OAuthCredentials) (*credential, error) {
	c.refreshes.Add(1)

	resp, err := c.client.SendForm(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointOAuthToken,
		FormData: map[string]string{
			"client_id":      creds.ClientID,
			"client_version": creds.ClientVersion,
			"client_secret":  creds.ClientSecret,
			"grant_type":     "client_credentials",
		},
	})
	if err != nil {
		return nil, provider.NewError(provider.KindCredential, "oauth token", "token request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, provider.NewError(provider.KindCredential, "oauth token",
			fmt.Sprintf("token endpoint answered %d: %s", resp.StatusCode, truncate(resp.RawBody, 200)), nil)
	}

	var body tokenResponse
	if err := c.client.ParseJSONResponse(resp, &body); err != nil {
		return nil, provider.NewError(provider.KindCredential, "oauth token", "invalid token response", err)
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		return nil, provider.NewError(provider.KindCredential, "oauth token", "access_token missing from response", nil)
	}

	return &credential{
		clientID:  creds.ClientID,
		token:     body.AccessToken,
		expiresAt: c.expiry(body),
	}, nil
}

// expiry prefers expires_at, then expires_in, then a fixed lifetime
func (c *TokenCache) expiry(body tokenResponse) time.Time {
	now := c.now()
	if at, ok := numberValue(body.ExpiresAt); ok && at > 0 {
		return time.Unix(at, 0)
	}
	if in, ok := numberValue(body.ExpiresIn); ok && in > 0 {
		return now.Add(time.Duration(in) * time.Second)
	}
	return now.Add(defaultTokenLifetime)
}

func numberValue(n json.Number) (int64, bool) {
	if n == "" {
		return 0, false
	}
	if v, err := n.Int64(); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
