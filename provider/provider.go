package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// AuthMode reports how an outbound payment call was authenticated
type AuthMode string

const (
	AuthNone  AuthMode = "none"
	AuthOAuth AuthMode = "oauth"
	AuthSalt  AuthMode = "salt"
)

// TokenSource tells whether a bearer token came from the cache or a fresh fetch
type TokenSource string

const (
	TokenFromCache TokenSource = "cache"
	TokenFresh     TokenSource = "fresh"
)

// ConfigField represents a required configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "duration", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// Customer represents the buyer information
type Customer struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// CredentialOverrides are caller supplied credentials. They are only consulted
// when the trusted configuration leaves a value empty and overrides are allowed.
type CredentialOverrides struct {
	MerchantID     string `json:"merchantId,omitempty"`
	MerchantSecret string `json:"-"`
	SaltIndex      string `json:"saltIndex,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	ClientSecret   string `json:"-"`
	ClientVersion  string `json:"clientVersion,omitempty"`
}

// PaymentRequest contains all information required to initiate a hosted payment
type PaymentRequest struct {
	OrderID                  string              `json:"orderId"`
	Amount                   decimal.Decimal     `json:"amount"`
	RedirectURL              string              `json:"redirectUrl,omitempty"`
	CallbackURL              string              `json:"callbackUrl,omitempty"`
	MerchantUserID           string              `json:"merchantUserId,omitempty"`
	Customer                 Customer            `json:"customer"`
	ProductInfo              string              `json:"productInfo,omitempty"`
	RedirectMode             string              `json:"redirectMode,omitempty"`
	MetaInfo                 MetaInfo            `json:"metaInfo"`
	ExpireAfter              int                 `json:"expireAfter,omitempty"`
	AllowInsecureCredentials bool                `json:"allowInsecureCredentials,omitempty"`
	Overrides                CredentialOverrides `json:"overrides"`
	ClientIP                 string              `json:"clientIp,omitempty"`
	ClientUserAgent          string              `json:"clientUserAgent,omitempty"`
}

// RemoteHeaders are the response headers worth keeping from a gateway call
type RemoteHeaders struct {
	RequestID    string `json:"requestId,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// SentRequest describes what was sent to the gateway, without secrets
type SentRequest struct {
	Endpoint         string `json:"endpoint"`
	HasAuthorization bool   `json:"hasAuthorization"`
	HasXVerify       bool   `json:"hasXVerify"`
	MerchantID       string `json:"merchantId"`
	Payload          any    `json:"payload,omitempty"`
}

// FallbackResult is the outcome of the legacy call made when the current
// generation produced no redirect URL
type FallbackResult struct {
	Endpoint         string        `json:"endpoint"`
	RemoteStatusCode int           `json:"remoteStatus"`
	RemoteBody       any           `json:"remoteBody,omitempty"`
	PaymentURL       string        `json:"paymentUrl,omitempty"`
	RemoteHeaders    RemoteHeaders `json:"remoteHeaders"`
	Error            string        `json:"error,omitempty"`
}

// Diagnostics carries non-secret context for debugging a payment initiation
type Diagnostics struct {
	Enabled               bool        `json:"enabled"`
	BaseURL               string      `json:"baseUrl"`
	OAuthBaseURL          string      `json:"oauthBaseUrl"`
	CheckoutV2            bool        `json:"checkoutV2"`
	HasMerchantID         bool        `json:"hasMerchantId"`
	HasMerchantSecret     bool        `json:"hasMerchantSecret"`
	HasClientID           bool        `json:"hasClientId"`
	HasClientSecret       bool        `json:"hasClientSecret"`
	ClientVersion         string      `json:"clientVersion"`
	CallbackURL           string      `json:"callbackUrl"`
	MerchantTransactionID string      `json:"merchantTransactionId"`
	AuthMode              AuthMode    `json:"authMode,omitempty"`
	TokenSource           TokenSource `json:"tokenSource,omitempty"`
}

// TokenDiagnostics holds masked previews of the OAuth identity used
type TokenDiagnostics struct {
	ClientIDPreview string `json:"clientIdPreview"`
	TokenPreview    string `json:"tokenPreview"`
}

// DryRun describes the call that would have been made when the gateway is
// disabled or unconfigured
type DryRun struct {
	Endpoint    string            `json:"endpoint"`
	Headers     map[string]string `json:"headers"`
	Payload     any               `json:"payload"`
	RequestBody any               `json:"requestBody"`
	Reason      string            `json:"reason"`
	Note        string            `json:"note"`
}

// PaymentResult is the normalized outcome of a payment initiation. A gateway
// decline is OK=false, never an error.
type PaymentResult struct {
	OK               bool              `json:"ok"`
	DryRun           *DryRun           `json:"dryRun,omitempty"`
	Message          string            `json:"message,omitempty"`
	Error            string            `json:"error,omitempty"`
	MerchantOrderID  string            `json:"merchantOrderId"`
	GatewayOrderID   string            `json:"gatewayOrderId,omitempty"`
	AmountPaise      int64             `json:"amountPaise"`
	RemoteStatusCode int               `json:"remoteStatus,omitempty"`
	RemoteBody       any               `json:"remoteBody,omitempty"`
	RemoteHeaders    *RemoteHeaders    `json:"remoteHeaders,omitempty"`
	PaymentURL       string            `json:"paymentUrl,omitempty"`
	Sent             *SentRequest      `json:"sent,omitempty"`
	Retried          bool              `json:"retried,omitempty"`
	FallbackV1       *FallbackResult   `json:"fallbackV1,omitempty"`
	AuthMode         AuthMode          `json:"authMode"`
	Diagnostics      Diagnostics       `json:"diagnostics"`
	TokenDiagnostics *TokenDiagnostics `json:"tokenDiagnostics,omitempty"`
}

// IsDryRun reports whether no gateway call was made
func (r *PaymentResult) IsDryRun() bool {
	return r != nil && r.DryRun != nil
}

// StatusRequest asks the gateway for the state of an order
type StatusRequest struct {
	MerchantOrderID string `json:"merchantOrderId" validate:"required"`
	Details         bool   `json:"details"`
}

// StatusDiagnostics carries non-secret context for a status query
type StatusDiagnostics struct {
	Enabled         bool        `json:"enabled"`
	OAuthBaseURL    string      `json:"oauthBaseUrl"`
	PayBaseURL      string      `json:"payBaseUrl"`
	ClientIDPreview string      `json:"clientIdPreview"`
	Details         bool        `json:"details"`
	TokenSource     TokenSource `json:"tokenSource,omitempty"`
	TokenPreview    string      `json:"tokenPreview,omitempty"`
	RequestURL      string      `json:"requestUrl,omitempty"`
}

// OrderStatus is the flattened view of a gateway order. Attempt level fields
// come from the first entry of PaymentDetails.
type OrderStatus struct {
	RemoteStatusCode int               `json:"remoteStatus"`
	OrderID          string            `json:"orderId,omitempty"`
	MerchantOrderID  string            `json:"merchantOrderId"`
	State            string            `json:"state,omitempty"`
	StatusMessage    string            `json:"statusMessage,omitempty"`
	Amount           int64             `json:"amount,omitempty"`
	ExpireAt         int64             `json:"expireAt,omitempty"`
	TransactionID    string            `json:"transactionId,omitempty"`
	PaymentMode      string            `json:"paymentMode,omitempty"`
	AttemptState     string            `json:"attemptState,omitempty"`
	Rail             any               `json:"rail,omitempty"`
	Instrument       any               `json:"instrument,omitempty"`
	PaymentDetails   []map[string]any  `json:"paymentDetails,omitempty"`
	Raw              any               `json:"raw,omitempty"`
	Diagnostics      StatusDiagnostics `json:"diagnostics"`
}

// IsRemoteSuccess reports whether the gateway answered the status query with 2xx
func (s *OrderStatus) IsRemoteSuccess() bool {
	return s != nil && s.RemoteStatusCode >= 200 && s.RemoteStatusCode < 300
}

// PaymentProvider defines the interface that a payment gateway client must implement
type PaymentProvider interface {
	// Initialize sets up the payment provider with authentication and configuration
	Initialize(config map[string]string) error

	// GetRequiredConfig returns the configuration fields required for this provider
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig validates the provided configuration against provider requirements
	ValidateConfig(config map[string]string) error

	// InitiatePayment starts a hosted checkout. Only local validation failures are errors.
	InitiatePayment(ctx context.Context, request PaymentRequest) (*PaymentResult, error)

	// GetOrderStatus queries the gateway for the current state of an order
	GetOrderStatus(ctx context.Context, request StatusRequest) (*OrderStatus, error)
}

// ProviderFactory is a function type that creates a new PaymentProvider
type ProviderFactory func() PaymentProvider
