package phonepe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken  = "tok-abcdefghijklmnopqrstuvwxyz"
	testSecret = "salt-secret"
)

type gatewayCall struct {
	Path       string
	RequestURI string
	Header     http.Header
	Body       []byte
}

// fakeGateway serves the OAuth token endpoint and records every other call
type fakeGateway struct {
	*httptest.Server

	mu         sync.Mutex
	tokenCalls int
	tokenFail  bool
	calls      []gatewayCall
	respond    func(n int, call gatewayCall) (int, string)
}

func newFakeGateway(t *testing.T, respond func(n int, call gatewayCall) (int, string)) *fakeGateway {
	t.Helper()
	g := &fakeGateway{respond: respond}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.Close)
	return g
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	g.mu.Lock()
	if r.URL.Path == "/v1/oauth/token" {
		g.tokenCalls++
		fail := g.tokenFail
		g.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":"INVALID_CLIENT"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":3600}`, testToken)
		return
	}

	call := gatewayCall{Path: r.URL.Path, RequestURI: r.RequestURI, Header: r.Header.Clone(), Body: body}
	g.calls = append(g.calls, call)
	n := len(g.calls)
	g.mu.Unlock()

	status, out := g.respond(n, call)
	w.Header().Set("X-Request-Id", fmt.Sprintf("remote-%d", n))
	w.WriteHeader(status)
	fmt.Fprint(w, out)
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func (g *fakeGateway) TokenCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokenCalls
}

var fixedNow = time.Unix(0, 1700000000123456789)

func baseConfig(g *fakeGateway) map[string]string {
	return map[string]string{
		"enabled":        "true",
		"merchantId":     "MERCHANT1",
		"merchantSecret": testSecret,
		"saltIndex":      "1",
		"clientId":       "client-id-1234567890",
		"clientSecret":   "client-secret",
		"clientVersion":  "1",
		"payBaseUrl":     g.URL,
		"oauthBaseUrl":   g.URL,
		"callbackUrl":    "https://shop.example/cb",
	}
}

func newTestProvider(t *testing.T, cfg map[string]string) *PhonePeProvider {
	t.Helper()
	p := New(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, p.Initialize(cfg))
	return p
}

func paymentRequest() provider.PaymentRequest {
	return provider.PaymentRequest{
		OrderID:  "ORDER-1",
		Amount:   decimal.RequireFromString("14.20"),
		Customer: provider.Customer{Name: "Asha", Email: "asha@example.com", PhoneNumber: "+91 98765 43210"},
	}
}

func decodeJSON(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestInitiatePayment_CurrentSuccess(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"orderId":"OMO1","state":"PENDING","redirectUrl":"https://mercury.example/pay/1"}`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, "https://mercury.example/pay/1", result.PaymentURL)
	assert.Equal(t, "ORDER-1", result.MerchantOrderID)
	assert.Equal(t, "ORDER-1_1700000000123", result.GatewayOrderID)
	assert.Equal(t, int64(1420), result.AmountPaise)
	assert.Equal(t, 200, result.RemoteStatusCode)
	assert.Equal(t, "remote-1", result.RemoteHeaders.RequestID)
	assert.Equal(t, provider.AuthOAuth, result.AuthMode)
	assert.Equal(t, provider.TokenFresh, result.Diagnostics.TokenSource)
	assert.False(t, result.Retried)
	assert.Nil(t, result.FallbackV1)
	assert.Nil(t, result.DryRun)

	require.NotNil(t, result.TokenDiagnostics)
	assert.Equal(t, Mask("client-id-1234567890"), result.TokenDiagnostics.ClientIDPreview)
	assert.Equal(t, Mask(testToken), result.TokenDiagnostics.TokenPreview)
	assert.NotContains(t, result.TokenDiagnostics.TokenPreview, testToken)

	calls := g.Calls()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "/checkout/v2/pay", call.Path)
	assert.Equal(t, "O-Bearer "+testToken, call.Header.Get("Authorization"))
	assert.Equal(t, "MERCHANT1", call.Header.Get("X-MERCHANT-ID"))
	assert.NotEmpty(t, call.Header.Get("X-REQUEST-ID"))
	assert.Equal(t, "application/json", call.Header.Get("Content-Type"))

	b64 := base64.StdEncoding.EncodeToString(call.Body)
	assert.Equal(t, Checksum(b64, "/checkout/v2/pay", testSecret, "1"), call.Header.Get("X-VERIFY"))

	body := decodeJSON(t, call.Body)
	assert.Equal(t, "ORDER-1_1700000000123", body["merchantOrderId"])
	assert.Equal(t, float64(1420), body["amount"])
	assert.Equal(t, float64(1200), body["expireAfter"])
	assert.Equal(t, map[string]any{"udf1": "Asha", "udf2": "ORDER-1"}, body["metaInfo"])

	require.NotNil(t, result.Sent)
	assert.True(t, result.Sent.HasAuthorization)
	assert.True(t, result.Sent.HasXVerify)
	assert.Equal(t, "MERCHANT1", result.Sent.MerchantID)
	assert.Equal(t, g.URL+"/checkout/v2/pay", result.Sent.Endpoint)
}

func TestInitiatePayment_NoSecretOmitsXVerify(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"redirectUrl":"https://mercury.example/pay/2"}`
	})
	cfg := baseConfig(g)
	delete(cfg, "merchantSecret")
	p := newTestProvider(t, cfg)

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.Sent.HasXVerify)
	assert.Equal(t, provider.AuthOAuth, result.AuthMode)

	calls := g.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Header.Get("X-VERIFY"))
}

func TestInitiatePayment_RetriesInvalidTransactionIDOnce(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		if n == 1 {
			return http.StatusExpectationFailed, `{"code":"INVALID_TRANSACTION_ID","message":"duplicate"}`
		}
		return http.StatusOK, `{"redirectUrl":"https://mercury.example/pay/3"}`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	calls := g.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/checkout/v2/pay", calls[0].Path)
	assert.Equal(t, "/checkout/v2/pay", calls[1].Path)

	first := decodeJSON(t, calls[0].Body)["merchantOrderId"]
	second := decodeJSON(t, calls[1].Body)["merchantOrderId"]
	assert.NotEqual(t, first, second)
	assert.Equal(t, RetryGatewayOrderID("ORDER-1", fixedNow), second)
	assert.NotEqual(t, calls[0].Header.Get("X-REQUEST-ID"), calls[1].Header.Get("X-REQUEST-ID"))

	b64 := base64.StdEncoding.EncodeToString(calls[1].Body)
	assert.Equal(t, Checksum(b64, "/checkout/v2/pay", testSecret, "1"), calls[1].Header.Get("X-VERIFY"))

	assert.True(t, result.OK)
	assert.True(t, result.Retried)
	assert.Equal(t, second, result.GatewayOrderID)
	assert.Equal(t, "https://mercury.example/pay/3", result.PaymentURL)
	assert.Nil(t, result.FallbackV1)
}

func TestInitiatePayment_RetryOnlyOnce(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		if call.Path == "/pg/v1/pay" {
			return http.StatusBadRequest, `{"code":"BAD_REQUEST"}`
		}
		return http.StatusExpectationFailed, `{"code":"INVALID_TRANSACTION_ID"}`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	calls := g.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "/checkout/v2/pay", calls[0].Path)
	assert.Equal(t, "/checkout/v2/pay", calls[1].Path)
	assert.Equal(t, "/pg/v1/pay", calls[2].Path)
	assert.False(t, result.OK)
	assert.Equal(t, 417, result.RemoteStatusCode)

	var wrapped LegacyRequestBody
	require.NoError(t, json.Unmarshal(calls[2].Body, &wrapped))
	raw, err := base64.StdEncoding.DecodeString(wrapped.Request)
	require.NoError(t, err)
	assert.Equal(t, GatewayOrderID("ORDER-1", fixedNow), decodeJSON(t, raw)["merchantTransactionId"],
		"the retry rebuilds the checkout v2 payload only")
	assert.Equal(t, RetryGatewayOrderID("ORDER-1", fixedNow), result.GatewayOrderID)
}

func TestInitiatePayment_FallbackAfterRetryTracksLegacyID(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		if call.Path == "/pg/v1/pay" {
			return http.StatusOK, `{"data":{"redirectUrl":"https://mercury.example/legacy"}}`
		}
		return http.StatusExpectationFailed, `{"code":"INVALID_TRANSACTION_ID"}`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	require.Len(t, g.Calls(), 3)
	assert.True(t, result.OK)
	assert.True(t, result.Retried)
	assert.Equal(t, "https://mercury.example/legacy", result.PaymentURL)
	assert.Equal(t, GatewayOrderID("ORDER-1", fixedNow), result.GatewayOrderID)
}

func TestInitiatePayment_NoRetryForOtherCodes(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		if call.Path == "/pg/v1/pay" {
			return http.StatusBadRequest, `{"code":"BAD_REQUEST"}`
		}
		return http.StatusExpectationFailed, `{"code":"SOMETHING_ELSE"}`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	calls := g.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/pg/v1/pay", calls[1].Path)
	assert.False(t, result.Retried)
	assert.False(t, result.OK)
	assert.Equal(t, msgNoPaymentURL, result.Message)
}

func TestInitiatePayment_FallbackFillsPaymentURL(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		if call.Path == "/pg/v1/pay" {
			return http.StatusOK, `{"success":true,"code":"PAYMENT_INITIATED","data":{"instrumentResponse":{"type":"PAY_PAGE","redirectInfo":{"url":"https://mercury.example/v1/pay","method":"GET"}}}}`
		}
		return http.StatusOK, `{"orderId":"OMO2","state":"PENDING"}`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	calls := g.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/checkout/v2/pay", calls[0].Path)
	assert.Equal(t, "/pg/v1/pay", calls[1].Path)

	var wrapped LegacyRequestBody
	require.NoError(t, json.Unmarshal(calls[1].Body, &wrapped))
	assert.Equal(t, Checksum(wrapped.Request, "/pg/v1/pay", testSecret, "1"), calls[1].Header.Get("X-VERIFY"))

	raw, err := base64.StdEncoding.DecodeString(wrapped.Request)
	require.NoError(t, err)
	legacy := decodeJSON(t, raw)
	assert.Equal(t, result.GatewayOrderID, legacy["merchantTransactionId"])
	assert.Equal(t, "MERCHANT1", legacy["merchantId"])
	assert.Equal(t, "9876543210", legacy["mobileNumber"])

	assert.True(t, result.OK)
	assert.Equal(t, "https://mercury.example/v1/pay", result.PaymentURL)
	assert.Equal(t, 200, result.RemoteStatusCode)
	assert.Equal(t, "remote-1", result.RemoteHeaders.RequestID)

	require.NotNil(t, result.FallbackV1)
	assert.Equal(t, "https://mercury.example/v1/pay", result.FallbackV1.PaymentURL)
	assert.Equal(t, 200, result.FallbackV1.RemoteStatusCode)
	assert.Equal(t, "remote-2", result.FallbackV1.RemoteHeaders.RequestID)
	assert.Equal(t, g.URL+"/pg/v1/pay", result.FallbackV1.Endpoint)
}

func TestInitiatePayment_LegacyOnly(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"data":{"redirectUrl":"https://mercury.example/legacy"}}`
	})
	cfg := baseConfig(g)
	cfg["checkoutV2"] = "false"
	p := newTestProvider(t, cfg)

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	calls := g.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/pg/v1/pay", calls[0].Path)
	assert.True(t, result.OK)
	assert.Equal(t, "https://mercury.example/legacy", result.PaymentURL)
	assert.Nil(t, result.FallbackV1)
	assert.IsType(t, LegacyPayload{}, result.Sent.Payload)
}

func TestInitiatePayment_DryRun(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]string)
		authMode provider.AuthMode
		reason   string
	}{
		{"disabled", func(c map[string]string) { c["enabled"] = "false" }, provider.AuthSalt, ReasonDisabled},
		{"disabled wins over missing credentials", func(c map[string]string) {
			c["enabled"] = "false"
			delete(c, "merchantId")
		}, provider.AuthSalt, ReasonDisabled},
		{"no merchant id", func(c map[string]string) { delete(c, "merchantId") }, provider.AuthSalt, ReasonMissingMerchantID},
		{"no oauth", func(c map[string]string) { delete(c, "clientSecret") }, provider.AuthSalt, ReasonMissingOAuth},
		{"nothing configured", func(c map[string]string) {
			delete(c, "clientSecret")
			delete(c, "merchantSecret")
		}, provider.AuthNone, ReasonMissingOAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
				return http.StatusOK, `{}`
			})
			cfg := baseConfig(g)
			tt.mutate(cfg)
			p := newTestProvider(t, cfg)

			result, err := p.InitiatePayment(context.Background(), paymentRequest())
			require.NoError(t, err)

			assert.Empty(t, g.Calls())
			assert.Equal(t, 0, g.TokenCalls())

			assert.True(t, result.OK)
			assert.True(t, result.IsDryRun())
			assert.Equal(t, msgDryRun, result.Message)
			assert.Equal(t, tt.authMode, result.AuthMode)
			assert.Equal(t, g.URL+"/checkout/v2/pay", result.DryRun.Endpoint)
			assert.Equal(t, tt.reason, result.DryRun.Reason)
			assert.Contains(t, result.DryRun.Note, noteDryRun)
			assert.NotEqual(t, noteDryRun, result.DryRun.Note)
			assert.IsType(t, LegacyPayload{}, result.DryRun.Payload)

			body, ok := result.DryRun.RequestBody.(LegacyRequestBody)
			require.True(t, ok)
			raw, err := base64.StdEncoding.DecodeString(body.Request)
			require.NoError(t, err)
			assert.Equal(t, result.GatewayOrderID, decodeJSON(t, raw)["merchantTransactionId"])

			if verify, ok := result.DryRun.Headers["X-VERIFY"]; ok {
				assert.Contains(t, verify, "…")
			}
		})
	}
}

func TestInitiatePayment_TokenFailure(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"redirectUrl":"https://never"}`
	})
	g.tokenFail = true
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, msgTokenFailed, result.Message)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 1, g.TokenCalls())
	assert.Empty(t, g.Calls())
	assert.True(t, result.Diagnostics.HasClientID)
}

func TestInitiatePayment_TransportFailureIsNotRetried(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{}`
	})
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cfg := baseConfig(g)
	cfg["payBaseUrl"] = deadURL
	p := newTestProvider(t, cfg)

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, msgRequestFailed, result.Message)
	assert.NotEmpty(t, result.Error)
	assert.False(t, result.Retried)
	assert.Nil(t, result.FallbackV1)
	assert.Equal(t, 0, result.RemoteStatusCode)
	require.NotNil(t, result.Sent)
	assert.Equal(t, deadURL+"/checkout/v2/pay", result.Sent.Endpoint)
}

func TestInitiatePayment_LocalValidation(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{}`
	})
	p := newTestProvider(t, baseConfig(g))

	tests := []struct {
		name string
		req  provider.PaymentRequest
	}{
		{"zero amount", provider.PaymentRequest{OrderID: "O1", Amount: decimal.Zero}},
		{"negative amount", provider.PaymentRequest{OrderID: "O1", Amount: decimal.NewFromInt(-5)}},
		{"missing order id", provider.PaymentRequest{Amount: decimal.NewFromInt(5)}},
		{"blank order id", provider.PaymentRequest{OrderID: "   ", Amount: decimal.NewFromInt(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.InitiatePayment(context.Background(), tt.req)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, provider.ErrLocalValidation)
		})
	}

	assert.Empty(t, g.Calls())
	assert.Equal(t, 0, g.TokenCalls())
}

func TestInitiatePayment_CredentialOverrides(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"redirectUrl":"https://mercury.example/pay"}`
	})
	cfg := baseConfig(g)
	delete(cfg, "merchantId")
	p := newTestProvider(t, cfg)

	req := paymentRequest()
	req.Overrides = provider.CredentialOverrides{MerchantID: "BODY-MERCHANT"}

	result, err := p.InitiatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsDryRun())
	assert.Empty(t, g.Calls())

	req.AllowInsecureCredentials = true
	result, err = p.InitiatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsDryRun())

	calls := g.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "BODY-MERCHANT", calls[0].Header.Get("X-MERCHANT-ID"))
}

func TestInitiatePayment_ConfigCredentialsWin(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"redirectUrl":"https://mercury.example/pay"}`
	})
	cfg := baseConfig(g)
	cfg["allowBodyCredentials"] = "true"
	p := newTestProvider(t, cfg)

	req := paymentRequest()
	req.Overrides = provider.CredentialOverrides{MerchantID: "BODY-MERCHANT", MerchantSecret: "body-secret"}

	_, err := p.InitiatePayment(context.Background(), req)
	require.NoError(t, err)

	calls := g.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "MERCHANT1", calls[0].Header.Get("X-MERCHANT-ID"))
	b64 := base64.StdEncoding.EncodeToString(calls[0].Body)
	assert.Equal(t, Checksum(b64, "/checkout/v2/pay", testSecret, "1"), calls[0].Header.Get("X-VERIFY"))
}

func TestInitiatePayment_TokenReusedAcrossPayments(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusOK, `{"redirectUrl":"https://mercury.example/pay"}`
	})
	p := newTestProvider(t, baseConfig(g))

	first, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)
	second, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, provider.TokenFresh, first.Diagnostics.TokenSource)
	assert.Equal(t, provider.TokenFromCache, second.Diagnostics.TokenSource)
	assert.Equal(t, 1, g.TokenCalls())
	assert.Len(t, g.Calls(), 2)
}

func TestInitiatePayment_NonJSONBody(t *testing.T) {
	g := newFakeGateway(t, func(n int, call gatewayCall) (int, string) {
		return http.StatusBadGateway, `upstream unavailable`
	})
	p := newTestProvider(t, baseConfig(g))

	result, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, 502, result.RemoteStatusCode)
	assert.Equal(t, "upstream unavailable", result.RemoteBody)
	require.NotNil(t, result.FallbackV1)
	assert.Equal(t, "upstream unavailable", result.FallbackV1.RemoteBody)
}
