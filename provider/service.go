package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/opensearch"
)

// OrderStore is the persistence the payment service writes payment state to
type OrderStore interface {
	SaveOrder(ctx context.Context, rec config.OrderRecord) error
	UpsertOrderStatus(ctx context.Context, orderID string, fields map[string]any) error
	PendingOrders(ctx context.Context, limit int) ([]config.OrderRecord, error)
	MarkChecked(ctx context.Context, orderID string, at time.Time) error
}

// PaymentLogger receives one log entry per gateway operation
type PaymentLogger interface {
	LogPaymentRequest(ctx context.Context, entry opensearch.PaymentLog) error
}

// EventPublisher emits payment lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// publishTimeout bounds an event write; it is detached from the request context
const publishTimeout = 3 * time.Second

// Event types published by the service
const (
	EventPaymentInitiated = "payment.initiated"
	EventPaymentStatus    = "payment.status"
)

// PaymentEvent is the message published for initiations and status changes
type PaymentEvent struct {
	Type            string    `json:"type"`
	Provider        string    `json:"provider"`
	OrderID         string    `json:"orderId"`
	MerchantOrderID string    `json:"merchantOrderId,omitempty"`
	OK              bool      `json:"ok"`
	State           string    `json:"state,omitempty"`
	PaymentStatus   string    `json:"paymentStatus,omitempty"`
	AmountPaise     int64     `json:"amountPaise,omitempty"`
	PaymentURL      string    `json:"paymentUrl,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// PaymentService routes payment operations to configured providers and records
// their outcome. The provider map is filled at startup and only read afterwards.
type PaymentService struct {
	providers       map[string]PaymentProvider
	defaultProvider string
	store           OrderStore
	logger          PaymentLogger
	events          EventPublisher
}

// ServiceOption configures optional collaborators of the payment service
type ServiceOption func(*PaymentService)

func WithOrderStore(store OrderStore) ServiceOption {
	return func(s *PaymentService) { s.store = store }
}

func WithPaymentLogger(l PaymentLogger) ServiceOption {
	return func(s *PaymentService) { s.logger = l }
}

func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *PaymentService) { s.events = p }
}

// NewPaymentService creates a new payment service
func NewPaymentService(opts ...ServiceOption) *PaymentService {
	s := &PaymentService{
		providers: make(map[string]PaymentProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddProvider creates a registered provider, validates and initializes it with cfg
func (s *PaymentService) AddProvider(name string, cfg map[string]string) error {
	p, err := CreateProvider(name)
	if err != nil {
		return err
	}
	if err := p.ValidateConfig(cfg); err != nil {
		return NewError(KindConfiguration, "add provider", "invalid configuration", err)
	}
	if err := p.Initialize(cfg); err != nil {
		return NewError(KindConfiguration, "add provider", "initialization failed", err)
	}
	s.AddProviderInstance(name, p)
	return nil
}

// AddProviderInstance registers an already initialized provider
func (s *PaymentService) AddProviderInstance(name string, p PaymentProvider) {
	name = strings.ToLower(name)
	s.providers[name] = p
	if s.defaultProvider == "" {
		s.defaultProvider = name
	}
}

// SetDefaultProvider selects the provider used when a call names none
func (s *PaymentService) SetDefaultProvider(name string) error {
	name = strings.ToLower(name)
	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("provider %s is not configured", name)
	}
	s.defaultProvider = name
	return nil
}

// GetProvider returns the named provider, or the default one for ""
func (s *PaymentService) GetProvider(name string) (PaymentProvider, error) {
	if name == "" {
		name = s.defaultProvider
	}
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, NewError(KindConfiguration, "get provider", fmt.Sprintf("provider %q is not configured", name), nil)
	}
	return p, nil
}

// InitiatePayment starts a payment. Only an initiation the gateway accepted is
// recorded as a pending order; declines and transport failures leave the store alone.
func (s *PaymentService) InitiatePayment(ctx context.Context, providerName string, request PaymentRequest) (*PaymentResult, error) {
	p, err := s.GetProvider(providerName)
	if err != nil {
		return nil, err
	}
	providerName = s.resolveName(providerName)

	start := time.Now()
	result, err := p.InitiatePayment(ctx, request)
	elapsed := time.Since(start)

	s.logInitiation(ctx, providerName, request, result, err, elapsed)
	if err != nil {
		return nil, err
	}

	if result.IsDryRun() || result.RemoteStatusCode == 0 {
		return result, nil
	}

	if s.store != nil && result.OK {
		rec := config.OrderRecord{
			OrderID:         request.OrderID,
			MerchantOrderID: result.GatewayOrderID,
			AmountPaise:     result.AmountPaise,
			PaymentStatus:   config.PaymentStatusPending,
			PaymentURL:      result.PaymentURL,
			GatewayResponse: marshalForStore(result.RemoteBody),
		}
		err := s.store.SaveOrder(ctx, rec)
		switch {
		case errors.Is(err, config.ErrOrderPaid):
			logger.WithProvider(providerName).
				SetOrderID(request.OrderID).
				AddField("gateway_order_id", result.GatewayOrderID).
				Warn("Order already paid, new initiation not recorded")
		case err != nil:
			logger.WithProvider(providerName).
				SetOrderID(request.OrderID).
				AddField("error", err.Error()).
				Warn("Failed to record initiated payment")
		}
	}

	event := PaymentEvent{
		Type:            EventPaymentInitiated,
		OrderID:         request.OrderID,
		MerchantOrderID: result.GatewayOrderID,
		OK:              result.OK,
		AmountPaise:     result.AmountPaise,
		PaymentURL:      result.PaymentURL,
	}
	if result.OK {
		event.PaymentStatus = config.PaymentStatusPending
	}
	s.publish(ctx, providerName, event)

	return result, nil
}

// GetOrderStatus queries the gateway for an order's state
func (s *PaymentService) GetOrderStatus(ctx context.Context, providerName string, request StatusRequest) (*OrderStatus, error) {
	p, err := s.GetProvider(providerName)
	if err != nil {
		return nil, err
	}
	providerName = s.resolveName(providerName)

	start := time.Now()
	status, err := p.GetOrderStatus(ctx, request)
	s.logStatus(ctx, providerName, request, status, err, time.Since(start))

	return status, err
}

func (s *PaymentService) resolveName(name string) string {
	if name == "" {
		return s.defaultProvider
	}
	return strings.ToLower(name)
}

func (s *PaymentService) publish(ctx context.Context, providerName string, event PaymentEvent) {
	if s.events == nil {
		return
	}
	event.Provider = providerName
	event.Timestamp = time.Now().UTC()

	key := event.MerchantOrderID
	if key == "" {
		key = event.OrderID
	}

	// the gateway already acted, a cancelled or slow request must not drop the event
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.events.Publish(pubCtx, key, event); err != nil {
		logger.Warn("Failed to publish payment event", logger.LogContext{
			Provider: providerName,
			OrderID:  event.OrderID,
			Fields:   map[string]any{"type": event.Type, "error": err.Error()},
		})
	}
}

func (s *PaymentService) logInitiation(ctx context.Context, providerName string, request PaymentRequest, result *PaymentResult, err error, elapsed time.Duration) {
	if s.logger == nil {
		return
	}

	entry := opensearch.PaymentLog{
		Provider:  providerName,
		Operation: "initiate",
		Method:    "POST",
		RequestID: uuid.New().String(),
		UserAgent: request.ClientUserAgent,
		ClientIP:  request.ClientIP,
		Response:  opensearch.ResponseLog{ProcessingTimeMs: elapsed.Milliseconds()},
		PaymentInfo: opensearch.PaymentInfo{
			MerchantOrderID: request.OrderID,
		},
	}
	if body, mErr := json.Marshal(request); mErr == nil {
		entry.Request.Body = string(body)
	}

	if err != nil {
		entry.Error = opensearch.ErrorInfo{Code: string(KindOf(err)), Message: err.Error()}
	}
	if result != nil {
		entry.Response.StatusCode = result.RemoteStatusCode
		entry.Response.Body = marshalForStore(result.RemoteBody)
		entry.PaymentInfo.GatewayOrderID = result.GatewayOrderID
		entry.PaymentInfo.AmountPaise = result.AmountPaise
		entry.PaymentInfo.AuthMode = string(result.AuthMode)
		entry.PaymentInfo.DryRun = result.IsDryRun()
		entry.PaymentInfo.Retried = result.Retried
		entry.PaymentInfo.Fallback = result.FallbackV1 != nil
		if result.Sent != nil {
			entry.Endpoint = result.Sent.Endpoint
		} else if result.DryRun != nil {
			entry.Endpoint = result.DryRun.Endpoint
		}
		if !result.OK && result.Message != "" {
			entry.Error = opensearch.ErrorInfo{Code: "NOT_OK", Message: result.Message}
		}
	}

	s.writeLog(ctx, entry)
}

func (s *PaymentService) logStatus(ctx context.Context, providerName string, request StatusRequest, status *OrderStatus, err error, elapsed time.Duration) {
	if s.logger == nil {
		return
	}

	entry := opensearch.PaymentLog{
		Provider:    providerName,
		Operation:   "status",
		Method:      "GET",
		RequestID:   uuid.New().String(),
		Response:    opensearch.ResponseLog{ProcessingTimeMs: elapsed.Milliseconds()},
		PaymentInfo: opensearch.PaymentInfo{MerchantOrderID: request.MerchantOrderID},
	}
	if err != nil {
		entry.Error = opensearch.ErrorInfo{Code: string(KindOf(err)), Message: err.Error()}
	}
	if status != nil {
		entry.Endpoint = status.Diagnostics.RequestURL
		entry.Response.StatusCode = status.RemoteStatusCode
		entry.Response.Body = marshalForStore(status.Raw)
		entry.PaymentInfo.State = status.State
	}

	s.writeLog(ctx, entry)
}

func (s *PaymentService) writeLog(ctx context.Context, entry opensearch.PaymentLog) {
	// the request context may already be cancelled once the handler returns
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.logger.LogPaymentRequest(logCtx, entry); err != nil {
		logger.Warn("Failed to log gateway operation", logger.LogContext{
			Provider: entry.Provider,
			Fields: map[string]any{
				"operation": entry.Operation,
				"error":     err.Error(),
			},
		})
	}
}

// marshalForStore renders a gateway body for a text column
func marshalForStore(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	case json.RawMessage:
		return string(b)
	}
	out, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(out)
}

// IsLocalValidation reports whether err should be answered with a 400
func IsLocalValidation(err error) bool {
	return errors.Is(err, ErrLocalValidation)
}
