package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
)

// PaymentServiceInterface defines the interface for payment operations
type PaymentServiceInterface interface {
	InitiatePayment(ctx context.Context, providerName string, request provider.PaymentRequest) (*provider.PaymentResult, error)
	GetOrderStatus(ctx context.Context, providerName string, request provider.StatusRequest) (*provider.OrderStatus, error)
	Reconcile(ctx context.Context, providerName, orderID, merchantOrderID string) (*provider.ReconcileResult, error)
}

// InitiateRequest is the body of an init call. Credential fields are only
// honored when allow_insecure_credentials is set and the server allows it.
type InitiateRequest struct {
	Amount         *decimal.Decimal  `json:"amount" validate:"required"`
	OrderID        string            `json:"orderId" validate:"required"`
	RedirectURL    string            `json:"redirectUrl" validate:"omitempty,url"`
	CallbackURL    string            `json:"callbackUrl" validate:"omitempty,url"`
	MerchantUserID string            `json:"merchantUserId"`
	CustomerID     string            `json:"customerId"`
	CustomerName   string            `json:"customerName"`
	CustomerEmail  string            `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone  string            `json:"customerPhone"`
	ProductInfo    string            `json:"productInfo"`
	RedirectMode   string            `json:"redirectMode"`
	MetaInfo       provider.MetaInfo `json:"metaInfo"`
	UDF1           string            `json:"udf1"`
	UDF2           string            `json:"udf2"`
	UDF3           string            `json:"udf3"`
	UDF4           string            `json:"udf4"`
	UDF5           string            `json:"udf5"`
	ExpireAfter    int               `json:"expireAfter" validate:"gte=0"`

	AllowInsecureCredentials bool   `json:"allow_insecure_credentials"`
	MerchantID               string `json:"merchantId"`
	MerchantSecret           string `json:"merchantSecret"`
	SaltIndex                string `json:"saltIndex"`
	ClientID                 string `json:"clientId"`
	ClientSecret             string `json:"clientSecret"`
	ClientVersion            string `json:"clientVersion"`
}

// ToPaymentRequest maps the body onto the provider request. metaInfo wins
// over the flat udfN fields.
func (r InitiateRequest) ToPaymentRequest() provider.PaymentRequest {
	meta := r.MetaInfo
	for i, v := range []string{r.UDF1, r.UDF2, r.UDF3, r.UDF4, r.UDF5} {
		meta.SetDefault(i+1, v)
	}

	req := provider.PaymentRequest{
		OrderID:        strings.TrimSpace(r.OrderID),
		RedirectURL:    r.RedirectURL,
		CallbackURL:    r.CallbackURL,
		MerchantUserID: r.MerchantUserID,
		Customer: provider.Customer{
			ID:          r.CustomerID,
			Name:        r.CustomerName,
			Email:       r.CustomerEmail,
			PhoneNumber: r.CustomerPhone,
		},
		ProductInfo:              r.ProductInfo,
		RedirectMode:             r.RedirectMode,
		MetaInfo:                 meta,
		ExpireAfter:              r.ExpireAfter,
		AllowInsecureCredentials: r.AllowInsecureCredentials,
		Overrides: provider.CredentialOverrides{
			MerchantID:     r.MerchantID,
			MerchantSecret: r.MerchantSecret,
			SaltIndex:      r.SaltIndex,
			ClientID:       r.ClientID,
			ClientSecret:   r.ClientSecret,
			ClientVersion:  r.ClientVersion,
		},
	}
	if r.Amount != nil {
		req.Amount = *r.Amount
	}
	return req
}

// ReconcileRequest asks for one order to be checked against the gateway
type ReconcileRequest struct {
	OrderID         string `json:"orderId" validate:"required"`
	MerchantOrderID string `json:"merchantOrderId" validate:"required"`
}

// statusFailure is the body of a status or reconcile call the gateway side could not answer
type statusFailure struct {
	Status int                `json:"status"`
	Kind   provider.ErrorKind `json:"kind,omitempty"`
	Error  string             `json:"error"`
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService PaymentServiceInterface, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
	}
}

// InitiatePayment starts a hosted checkout. Gateway declines are 200 with success=false.
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	var body InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(body); err != nil {
		response.Error(w, http.StatusBadRequest, validationMessage(err), err)
		return
	}

	req := body.ToPaymentRequest()
	req.ClientIP = middle.GetClientIP(r)
	req.ClientUserAgent = r.Header.Get("User-Agent")

	providerName := chi.URLParam(r, "provider")

	result, err := h.paymentService.InitiatePayment(ctx, providerName, req)
	if err != nil {
		if provider.IsLocalValidation(err) {
			response.Error(w, http.StatusBadRequest, "Invalid payment request", err)
			return
		}
		logger.Error("Payment initiation failed", err, logger.LogContext{
			Provider:  providerName,
			OrderID:   req.OrderID,
			RequestID: r.Header.Get(middle.RequestIDHeader),
		})
		response.Result(w, false, "Payment initiation failed", statusFailure{Kind: provider.KindOf(err), Error: err.Error()})
		return
	}

	message := result.Message
	if message == "" && result.OK {
		message = "Payment initiated"
	}
	response.Result(w, result.OK, message, result)
}

// GetOrderStatus handles POST status queries with a JSON body
func (h *PaymentHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req provider.StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	h.orderStatus(w, r, req)
}

// GetOrderStatusByID handles GET /status/{merchantOrderId}?details=
func (h *PaymentHandler) GetOrderStatusByID(w http.ResponseWriter, r *http.Request) {
	details, _ := strconv.ParseBool(r.URL.Query().Get("details"))
	h.orderStatus(w, r, provider.StatusRequest{
		MerchantOrderID: chi.URLParam(r, "merchantOrderId"),
		Details:         details,
	})
}

func (h *PaymentHandler) orderStatus(w http.ResponseWriter, r *http.Request, req provider.StatusRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	req.MerchantOrderID = strings.TrimSpace(req.MerchantOrderID)
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Missing merchantOrderId", err)
		return
	}

	status, err := h.paymentService.GetOrderStatus(ctx, chi.URLParam(r, "provider"), req)
	if err != nil {
		h.gatewayFailure(w, "Failed to get order status", err)
		return
	}

	message := "Order status retrieved"
	if !status.IsRemoteSuccess() {
		message = "Gateway answered " + strconv.Itoa(status.RemoteStatusCode)
	}
	response.Result(w, status.IsRemoteSuccess(), message, status)
}

// Reconcile checks one order against the gateway and stores a terminal state
func (h *PaymentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Missing orderId or merchantOrderId", err)
		return
	}

	result, err := h.paymentService.Reconcile(ctx, chi.URLParam(r, "provider"), req.OrderID, req.MerchantOrderID)
	if err != nil {
		h.gatewayFailure(w, "Reconciliation failed", err)
		return
	}

	message := "Order is still pending"
	if result.Updated {
		message = "Order updated to " + result.PaymentStatus
	}
	response.Result(w, true, message, result)
}

// gatewayFailure answers 400 for caller mistakes and 200 with status=0 for the rest
func (h *PaymentHandler) gatewayFailure(w http.ResponseWriter, message string, err error) {
	if provider.IsLocalValidation(err) {
		response.Error(w, http.StatusBadRequest, message, err)
		return
	}
	response.Result(w, false, message, statusFailure{Kind: provider.KindOf(err), Error: err.Error()})
}

// validationMessage keeps the short message callers already match on
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Amount" || fe.Field() == "OrderID" {
				return "Missing amount or orderId"
			}
		}
	}
	return "Validation error"
}
