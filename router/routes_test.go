package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/provider"
	v1 "github.com/mstgnz/paygate/router/v1"
	"github.com/stretchr/testify/assert"
)

const testAPIKey = "test-api-key"

type stubPayments struct{}

func (stubPayments) InitiatePayment(ctx context.Context, providerName string, request provider.PaymentRequest) (*provider.PaymentResult, error) {
	return &provider.PaymentResult{OK: true, MerchantOrderID: request.OrderID}, nil
}

func (stubPayments) GetOrderStatus(ctx context.Context, providerName string, request provider.StatusRequest) (*provider.OrderStatus, error) {
	return &provider.OrderStatus{RemoteStatusCode: http.StatusOK, MerchantOrderID: request.MerchantOrderID}, nil
}

func (stubPayments) Reconcile(ctx context.Context, providerName, orderID, merchantOrderID string) (*provider.ReconcileResult, error) {
	return &provider.ReconcileResult{OrderID: orderID, MerchantOrderID: merchantOrderID}, nil
}

type stubStore struct{}

func (stubStore) Ping(ctx context.Context) error { return nil }

func newTestRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	Routes(r, opts)
	return r
}

func defaultOptions() Options {
	return Options{
		APIKey: testAPIKey,
		Health: handler.NewHealthHandler(handler.HealthDeps{Store: stubStore{}, Payments: provider.NewPaymentService()}),
		V1:     v1.Deps{Payments: stubPayments{}},
	}
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		auth       string
		body       string
		expectCode int
	}{
		{"health is public", http.MethodGet, "/health", "", "", http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"v1 requires api key", http.MethodPost, "/v1/payments/phonepe/init", "", `{"amount":1,"orderId":"A"}`, http.StatusUnauthorized},
		{"v1 rejects wrong key", http.MethodPost, "/v1/payments/phonepe/init", "Bearer nope", `{"amount":1,"orderId":"A"}`, http.StatusUnauthorized},
		{"v1 with api key", http.MethodPost, "/v1/payments/phonepe/init", "Bearer " + testAPIKey, `{"amount":1,"orderId":"A"}`, http.StatusOK},
		{"unknown path", http.MethodGet, "/nowhere", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}

			w := httptest.NewRecorder()
			newTestRouter(defaultOptions()).ServeHTTP(w, req)

			assert.Equal(t, tt.expectCode, w.Code)
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRoutes_IPWhitelist(t *testing.T) {
	opts := defaultOptions()
	opts.AllowedIPs = []string{"10.1.1.1"}
	r := newTestRouter(opts)

	req := httptest.NewRequest(http.MethodGet, "/v1/payments/phonepe/status/A_1", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.RemoteAddr = "192.0.2.10:5000"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req.RemoteAddr = "10.1.1.1:5000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is outside the whitelist")
}

func TestRoutes_RegistersPhonePe(t *testing.T) {
	assert.Contains(t, provider.GetAvailableProviders(), "phonepe")
}
