package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPayments struct {
	provider string
	status   provider.StatusRequest
}

func (s *stubPayments) InitiatePayment(ctx context.Context, providerName string, request provider.PaymentRequest) (*provider.PaymentResult, error) {
	s.provider = providerName
	return &provider.PaymentResult{OK: true, MerchantOrderID: request.OrderID}, nil
}

func (s *stubPayments) GetOrderStatus(ctx context.Context, providerName string, request provider.StatusRequest) (*provider.OrderStatus, error) {
	s.provider = providerName
	s.status = request
	return &provider.OrderStatus{RemoteStatusCode: http.StatusOK, MerchantOrderID: request.MerchantOrderID}, nil
}

func (s *stubPayments) Reconcile(ctx context.Context, providerName, orderID, merchantOrderID string) (*provider.ReconcileResult, error) {
	s.provider = providerName
	return &provider.ReconcileResult{OrderID: orderID, MerchantOrderID: merchantOrderID, State: "PENDING"}, nil
}

func newRouter(payments *stubPayments) chi.Router {
	r := chi.NewRouter()
	Routes(r, Deps{Payments: payments})
	return r
}

func TestRoutes(t *testing.T) {
	r := chi.NewRouter()
	require.NotPanics(t, func() {
		Routes(r, Deps{Payments: &stubPayments{}})
	})
}

func TestRoutes_EndpointRegistration(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		contentType string
		expectCode  int
	}{
		{"init", http.MethodPost, "/payments/phonepe/init", `{"amount":1,"orderId":"A"}`, "application/json", http.StatusOK},
		{"init rejects non JSON", http.MethodPost, "/payments/phonepe/init", `amount=1`, "text/plain", http.StatusUnsupportedMediaType},
		{"status by body", http.MethodPost, "/payments/phonepe/status", `{"merchantOrderId":"A_1"}`, "application/json", http.StatusOK},
		{"status by path", http.MethodGet, "/payments/phonepe/status/A_1?details=true", "", "", http.StatusOK},
		{"reconcile", http.MethodPost, "/payments/phonepe/reconcile", `{"orderId":"A","merchantOrderId":"A_1"}`, "application/json", http.StatusOK},
		{"logs without OpenSearch", http.MethodGet, "/logs/phonepe", "", "", http.StatusServiceUnavailable},
		{"error logs without OpenSearch", http.MethodGet, "/logs/phonepe/errors", "", "", http.StatusServiceUnavailable},
		{"wrong method", http.MethodGet, "/payments/phonepe/init", "", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &stubPayments{}
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			w := httptest.NewRecorder()
			newRouter(payments).ServeHTTP(w, req)
			assert.Equal(t, tt.expectCode, w.Code)

			if tt.expectCode == http.StatusOK {
				assert.Equal(t, "phonepe", payments.provider)
			}
		})
	}
}

func TestRoutes_StatusPathParams(t *testing.T) {
	payments := &stubPayments{}
	req := httptest.NewRequest(http.MethodGet, "/payments/phonepe/status/ORDER-9_1700000000000?details=1", nil)

	w := httptest.NewRecorder()
	newRouter(payments).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ORDER-9_1700000000000", payments.status.MerchantOrderID)
	assert.True(t, payments.status.Details)
}
