// Package phonepe is the PhonePe gateway client: OAuth token caching, X-VERIFY
// signing, checkout v2 payments with legacy fallback and order status queries.
package phonepe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/metrics"
	"github.com/mstgnz/paygate/provider"
)

const (
	providerName = "phonepe"

	// API Endpoints, also the routes signed into X-VERIFY
	endpointLegacyPay   = "/pg/v1/pay"
	endpointCurrentPay  = "/checkout/v2/pay"
	endpointOrderStatus = "/checkout/v2/order/%s/status"

	headerAuthorization = "Authorization"
	headerMerchantID    = "X-MERCHANT-ID"
	headerRequestID     = "X-REQUEST-ID"
	headerVerify        = "X-VERIFY"
	bearerPrefix        = "O-Bearer "

	msgDryRun          = "Diagnostics: PhonePe call not made (disabled or missing credentials)"
	noteDryRun         = "Provide OAuth credentials (PHONEPE_CLIENT_ID/SECRET/VERSION) and set PHONEPE_ENABLED=true. Salt key is optional but recommended."
	msgTokenFailed     = "OAuth token request failed"
	msgRequestFailed   = "PhonePe API request failed"
	msgSigningFailed   = "PhonePe request could not be signed"
	msgNoPaymentURL    = "PhonePe did not return a payment URL"
	msgPaymentURLReady = "Payment URL created"
)

// Dry run reasons, checked in this order
const (
	ReasonDisabled          = "disabled"
	ReasonMissingMerchantID = "missing_merchant_id"
	ReasonMissingOAuth      = "missing_oauth"
)

var dryRunNotes = map[string]string{
	ReasonDisabled:          "PHONEPE_ENABLED is false. " + noteDryRun,
	ReasonMissingMerchantID: "No merchant id configured (PHONEPE_MERCHANT_ID). " + noteDryRun,
	ReasonMissingOAuth:      "OAuth client id or secret missing. " + noteDryRun,
}

// PhonePeProvider implements provider.PaymentProvider for the PhonePe gateway
type PhonePeProvider struct {
	cfg        Config
	client     *provider.ProviderHTTPClient
	tokens     *TokenCache
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes a PhonePeProvider
type Option func(*PhonePeProvider)

// WithTokenCache shares an existing token cache
func WithTokenCache(c *TokenCache) Option {
	return func(p *PhonePeProvider) { p.tokens = c }
}

// WithClock replaces time.Now, used for order ids and token expiry
func WithClock(now func() time.Time) Option {
	return func(p *PhonePeProvider) { p.now = now }
}

// WithHTTPClient sends gateway and token calls through hc
func WithHTTPClient(hc *http.Client) Option {
	return func(p *PhonePeProvider) { p.httpClient = hc }
}

// NewProvider creates a new PhonePe payment provider
func NewProvider() provider.PaymentProvider {
	return New()
}

// New creates an uninitialized provider with options applied
func New(opts ...Option) *PhonePeProvider {
	p := &PhonePeProvider{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetRequiredConfig returns the configuration fields accepted by PhonePe
func (p *PhonePeProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return configFields()
}

// ValidateConfig validates the provided configuration against PhonePe requirements
func (p *PhonePeProvider) ValidateConfig(config map[string]string) error {
	if err := provider.ValidateConfigFields(providerName, config, p.GetRequiredConfig(config["environment"])); err != nil {
		return err
	}
	_, err := ParseConfig(config)
	return err
}

// Initialize parses the configuration and builds the gateway and token clients
func (p *PhonePeProvider) Initialize(conf map[string]string) error {
	cfg, err := ParseConfig(conf)
	if err != nil {
		return err
	}
	p.cfg = cfg

	p.client = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(cfg.PayBaseURL, cfg.HTTPTimeout)).
		WithHTTPClient(p.httpClient)

	if p.tokens == nil {
		oauthClient := provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(cfg.OAuthBaseURL, cfg.HTTPTimeout)).
			WithHTTPClient(p.httpClient)
		p.tokens = newTokenCache(oauthClient, cfg.TokenSafetyMargin, p.now)
	}

	logger.WithProvider(providerName).
		AddField("enabled", cfg.Enabled).
		AddField("checkout_v2", cfg.CheckoutV2).
		AddField("pay_base", cfg.PayBaseURL).
		AddField("has_oauth", cfg.HasOAuth()).
		AddField("client_id", Mask(cfg.ClientID)).
		Info("PhonePe provider initialized")
	return nil
}

// Tokens exposes the provider's token cache
func (p *PhonePeProvider) Tokens() *TokenCache {
	return p.tokens
}

// paymentAttempt carries the state of one initiation across retry and fallback
type paymentAttempt struct {
	req         provider.PaymentRequest
	creds       credentials
	amountPaise int64
	gatewayID   string
	legacy      LegacyPayload
	current     CurrentPayload
	headers     map[string]string
	result      *provider.PaymentResult
}

// InitiatePayment starts a hosted checkout. Gateway failures are reported in
// the result; only invalid input returns an error, before any network call.
func (p *PhonePeProvider) InitiatePayment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return nil, provider.NewError(provider.KindLocalValidation, "initiate", "orderId is required", nil)
	}
	if !req.Amount.IsPositive() {
		return nil, provider.NewError(provider.KindLocalValidation, "initiate", "amount must be positive", nil)
	}

	a := p.newAttempt(req)

	if reason := p.dryRunReason(a); reason != "" {
		return p.dryRun(a, reason), nil
	}

	token, source, err := p.tokens.Token(ctx, a.creds.oauth())
	if err != nil {
		a.log().AddField("error", err.Error()).Warn("PhonePe OAuth token acquisition failed")
		a.result.Message = msgTokenFailed
		a.result.Error = err.Error()
		return a.result, nil
	}

	a.result.AuthMode = provider.AuthOAuth
	a.result.Diagnostics.AuthMode = provider.AuthOAuth
	a.result.Diagnostics.TokenSource = source
	a.result.TokenDiagnostics = &provider.TokenDiagnostics{
		ClientIDPreview: Mask(a.creds.ClientID),
		TokenPreview:    Mask(token),
	}
	a.headers = map[string]string{
		headerAuthorization: bearerPrefix + token,
		headerMerchantID:    a.creds.MerchantID,
	}

	if p.cfg.CheckoutV2 {
		p.payCurrent(ctx, a)
	} else {
		p.payLegacy(ctx, a)
	}
	return a.result, nil
}

// log returns a fresh context logger for this attempt
func (a *paymentAttempt) log() *logger.ContextLogger {
	return logger.WithProvider(providerName).SetOrderID(a.req.OrderID)
}

func (p *PhonePeProvider) newAttempt(req provider.PaymentRequest) *paymentAttempt {
	creds := resolveCredentials(p.cfg, req)
	amountPaise := ToMinorUnits(req.Amount)
	gatewayID := GatewayOrderID(req.OrderID, p.now())
	callback := callbackURL(p.cfg, req)

	authMode := provider.AuthNone
	if creds.MerchantSecret != "" {
		authMode = provider.AuthSalt
	}

	return &paymentAttempt{
		req:         req,
		creds:       creds,
		amountPaise: amountPaise,
		gatewayID:   gatewayID,
		legacy:      buildLegacyPayload(creds, req, gatewayID, amountPaise, callback),
		current:     buildCurrentPayload(req, gatewayID, amountPaise, callback),
		result: &provider.PaymentResult{
			MerchantOrderID: req.OrderID,
			GatewayOrderID:  gatewayID,
			AmountPaise:     amountPaise,
			AuthMode:        authMode,
			Diagnostics: provider.Diagnostics{
				Enabled:               p.cfg.Enabled,
				BaseURL:               p.cfg.PayBaseURL,
				OAuthBaseURL:          p.cfg.OAuthBaseURL,
				CheckoutV2:            p.cfg.CheckoutV2,
				HasMerchantID:         creds.MerchantID != "",
				HasMerchantSecret:     creds.MerchantSecret != "",
				HasClientID:           creds.ClientID != "",
				HasClientSecret:       creds.ClientSecret != "",
				ClientVersion:         creds.ClientVersion,
				CallbackURL:           callback,
				MerchantTransactionID: req.OrderID,
				AuthMode:              authMode,
			},
		},
	}
}

// dryRunReason names why no gateway call can be made, or "" when one can
func (p *PhonePeProvider) dryRunReason(a *paymentAttempt) string {
	switch {
	case !p.cfg.Enabled:
		return ReasonDisabled
	case a.creds.MerchantID == "":
		return ReasonMissingMerchantID
	case !a.creds.hasOAuth():
		return ReasonMissingOAuth
	}
	return ""
}

// dryRun describes the call that would be made, without making any
func (p *PhonePeProvider) dryRun(a *paymentAttempt, reason string) *provider.PaymentResult {
	endpoint := p.cfg.PayBaseURL + endpointLegacyPay
	if p.cfg.CheckoutV2 {
		endpoint = p.cfg.PayBaseURL + endpointCurrentPay
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if a.creds.MerchantID != "" {
		headers[headerMerchantID] = a.creds.MerchantID
	}

	dry := &provider.DryRun{
		Endpoint: endpoint,
		Payload:  a.legacy,
		Reason:   reason,
		Note:     dryRunNotes[reason],
	}
	if signed, err := Sign(a.legacy, endpointLegacyPay, a.creds.MerchantSecret, a.creds.SaltIndex); err == nil {
		dry.RequestBody = LegacyRequestBody{Request: signed.Base64Payload}
		if a.creds.MerchantSecret != "" {
			headers[headerVerify] = signed.Checksum
		}
	}
	dry.Headers = maskHeaders(headers)

	a.result.OK = true
	a.result.DryRun = dry
	a.result.Message = msgDryRun

	a.log().AddField("reason", dry.Reason).Debug("PhonePe dry run")
	return a.result
}

// payCurrent calls checkout v2, retries once on the invalid transaction id
// answer and falls back to the legacy API when no payment url came back
func (p *PhonePeProvider) payCurrent(ctx context.Context, a *paymentAttempt) {
	gr, ok := p.sendCurrent(ctx, a)
	if !ok {
		return
	}

	if gr.StatusCode == p.cfg.RetryStatus && gr.ErrorCode() == p.cfg.RetryCode {
		a.gatewayID = RetryGatewayOrderID(a.req.OrderID, p.now())
		a.current.MerchantOrderID = a.gatewayID
		a.result.GatewayOrderID = a.gatewayID
		a.result.Retried = true
		metrics.IncRetry(providerName)

		a.log().AddField("gateway_order_id", a.gatewayID).
			Info("PhonePe rejected transaction id, retrying with a new one")

		if gr, ok = p.sendCurrent(ctx, a); !ok {
			return
		}
	}

	p.applyResponse(a, gr)

	if a.result.PaymentURL == "" {
		p.fallbackLegacy(ctx, a)
	}
	p.finish(a)
}

// payLegacy is the single call made when checkout v2 is disabled
func (p *PhonePeProvider) payLegacy(ctx context.Context, a *paymentAttempt) {
	gr, sent, err := p.callLegacy(ctx, a)
	a.result.Sent = sent
	if err != nil {
		p.requestFailed(a, err)
		return
	}
	p.applyResponse(a, gr)
	p.finish(a)
}

// sendCurrent signs and sends the current payload, recording failures on the result
func (p *PhonePeProvider) sendCurrent(ctx context.Context, a *paymentAttempt) (*GatewayResponse, bool) {
	signed, err := Sign(a.current, endpointCurrentPay, a.creds.MerchantSecret, a.creds.SaltIndex)
	if err != nil {
		a.result.Message = msgSigningFailed
		a.result.Error = err.Error()
		return nil, false
	}

	headers := p.requestHeaders(a, signed)
	a.result.Sent = &provider.SentRequest{
		Endpoint:         p.cfg.PayBaseURL + endpointCurrentPay,
		HasAuthorization: true,
		HasXVerify:       headers[headerVerify] != "",
		MerchantID:       a.creds.MerchantID,
		Payload:          a.current,
	}

	resp, err := p.send(ctx, "pay_v2", endpointCurrentPay, headers, signed.CanonicalJSON)
	if err != nil {
		p.requestFailed(a, err)
		return nil, false
	}
	return parseResponse(KindCurrent, resp), true
}

// callLegacy signs the legacy payload for /pg/v1/pay and sends it wrapped in {"request": ...}
func (p *PhonePeProvider) callLegacy(ctx context.Context, a *paymentAttempt) (*GatewayResponse, *provider.SentRequest, error) {
	signed, err := Sign(a.legacy, endpointLegacyPay, a.creds.MerchantSecret, a.creds.SaltIndex)
	if err != nil {
		return nil, nil, err
	}

	headers := p.requestHeaders(a, signed)
	sent := &provider.SentRequest{
		Endpoint:         p.cfg.PayBaseURL + endpointLegacyPay,
		HasAuthorization: true,
		HasXVerify:       headers[headerVerify] != "",
		MerchantID:       a.creds.MerchantID,
		Payload:          a.legacy,
	}

	body, err := CanonicalJSON(LegacyRequestBody{Request: signed.Base64Payload})
	if err != nil {
		return nil, sent, err
	}

	resp, err := p.send(ctx, "pay_v1", endpointLegacyPay, headers, body)
	if err != nil {
		return nil, sent, err
	}
	return parseResponse(KindLegacy, resp), sent, nil
}

// requestHeaders adds a fresh request id and, when a salt key is known, X-VERIFY
func (p *PhonePeProvider) requestHeaders(a *paymentAttempt, signed *SignedRequest) map[string]string {
	headers := make(map[string]string, len(a.headers)+2)
	for k, v := range a.headers {
		headers[k] = v
	}
	headers[headerRequestID] = uuid.New().String()
	if a.creds.MerchantSecret != "" {
		headers[headerVerify] = signed.Checksum
	}
	return headers
}

func (p *PhonePeProvider) send(ctx context.Context, operation, endpoint string, headers map[string]string, body []byte) (*provider.HTTPResponse, error) {
	start := time.Now()
	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpoint,
		Headers:  headers,
		Body:     body,
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.ObserveGatewayCall(providerName, operation, status, time.Since(start).Seconds())

	if err != nil {
		return nil, provider.NewError(provider.KindGatewayTransport, operation, "gateway request failed", err)
	}
	return resp, nil
}

func (p *PhonePeProvider) requestFailed(a *paymentAttempt, err error) {
	a.log().AddField("gateway_order_id", a.gatewayID).Error("PhonePe API call failed", err)
	a.result.OK = false
	a.result.Message = msgRequestFailed
	a.result.Error = err.Error()
}

func (p *PhonePeProvider) applyResponse(a *paymentAttempt, gr *GatewayResponse) {
	headers := gr.Headers
	a.result.RemoteStatusCode = gr.StatusCode
	a.result.RemoteBody = gr.Body
	a.result.RemoteHeaders = &headers
	a.result.PaymentURL = gr.RedirectURL()
	a.result.OK = gr.IsSuccess() && a.result.PaymentURL != ""
}

// fallbackLegacy sends the legacy payload, as first built, once. Its url is only
// used when the primary call produced none; the primary status and body are kept.
// A recovered payment is tracked under the legacy transaction id.
func (p *PhonePeProvider) fallbackLegacy(ctx context.Context, a *paymentAttempt) {
	fb := &provider.FallbackResult{Endpoint: p.cfg.PayBaseURL + endpointLegacyPay}
	a.result.FallbackV1 = fb

	gr, _, err := p.callLegacy(ctx, a)
	if err != nil {
		fb.Error = err.Error()
		metrics.IncFallback(providerName, false)
		return
	}

	fb.RemoteStatusCode = gr.StatusCode
	fb.RemoteBody = gr.Body
	fb.RemoteHeaders = gr.Headers
	fb.PaymentURL = gr.RedirectURL()

	recovered := fb.PaymentURL != "" && a.result.PaymentURL == ""
	if recovered {
		a.result.PaymentURL = fb.PaymentURL
		a.result.OK = gr.IsSuccess()
		a.gatewayID = a.legacy.MerchantTransactionID
		a.result.GatewayOrderID = a.gatewayID
	}
	metrics.IncFallback(providerName, recovered)
}

func (p *PhonePeProvider) finish(a *paymentAttempt) {
	if a.result.OK {
		a.result.Message = msgPaymentURLReady
	} else if a.result.Message == "" {
		a.result.Message = msgNoPaymentURL
	}

	log := a.log().
		AddField("gateway_order_id", a.gatewayID).
		AddField("remote_status", a.result.RemoteStatusCode).
		AddField("ok", a.result.OK).
		AddField("retried", a.result.Retried).
		AddField("fallback", a.result.FallbackV1 != nil)
	if a.result.RemoteHeaders != nil && a.result.RemoteHeaders.RequestID != "" {
		log.SetRequestID(a.result.RemoteHeaders.RequestID)
	}
	log.Info("PhonePe payment initiated")
}
