package phonepe

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mstgnz/paygate/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpResponse(status int, body string, headers map[string]string) *provider.HTTPResponse {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &provider.HTTPResponse{StatusCode: status, Headers: h, Body: []byte(body), RawBody: body}
}

func TestParseResponse_Current(t *testing.T) {
	tests := []struct {
		name string
		body string
		url  string
		code string
	}{
		{"top level url", `{"orderId":"OMO1","state":"PENDING","redirectUrl":"https://pay/1"}`, "https://pay/1", ""},
		{"nested url", `{"data":{"redirectUrl":"https://pay/2"}}`, "https://pay/2", ""},
		{"top level wins", `{"redirectUrl":"https://pay/a","data":{"redirectUrl":"https://pay/b"}}`, "https://pay/a", ""},
		{"error code", `{"code":"INVALID_TRANSACTION_ID","message":"dup"}`, "", "INVALID_TRANSACTION_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gr := parseResponse(KindCurrent, httpResponse(200, tt.body, nil))
			require.Equal(t, KindCurrent, gr.Kind)
			require.NotNil(t, gr.Current)
			assert.Equal(t, tt.url, gr.RedirectURL())
			assert.Equal(t, tt.code, gr.ErrorCode())
		})
	}
}

func TestParseResponse_Legacy(t *testing.T) {
	tests := []struct {
		name string
		body string
		url  string
	}{
		{"instrument response", `{"code":"PAYMENT_INITIATED","data":{"instrumentResponse":{"type":"PAY_PAGE","redirectInfo":{"url":"https://pay/i","method":"GET"}}}}`, "https://pay/i"},
		{"data redirect", `{"data":{"redirectUrl":"https://pay/d"}}`, "https://pay/d"},
		{"instrument wins", `{"data":{"redirectUrl":"https://pay/d","instrumentResponse":{"redirectInfo":{"url":"https://pay/i"}}}}`, "https://pay/i"},
		{"none", `{"code":"BAD_REQUEST"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gr := parseResponse(KindLegacy, httpResponse(200, tt.body, nil))
			require.Equal(t, KindLegacy, gr.Kind)
			assert.Equal(t, tt.url, gr.RedirectURL())
		})
	}
}

func TestParseResponse_Raw(t *testing.T) {
	gr := parseResponse(KindCurrent, httpResponse(502, "Bad Gateway", nil))
	assert.Equal(t, KindRaw, gr.Kind)
	assert.Equal(t, "Bad Gateway", gr.Body)
	assert.Equal(t, "", gr.RedirectURL())
	assert.Equal(t, "", gr.ErrorCode())
	assert.False(t, gr.IsSuccess())

	gr = parseResponse(KindLegacy, httpResponse(200, `["not","an","object"]`, nil))
	assert.Equal(t, KindRaw, gr.Kind)
	assert.Equal(t, []any{"not", "an", "object"}, gr.Body)

	gr = parseResponse(KindCurrent, httpResponse(204, "", nil))
	assert.Equal(t, KindRaw, gr.Kind)
	assert.Nil(t, gr.Body)
	assert.True(t, gr.IsSuccess())

	gr = parseResponse(KindCurrent, httpResponse(200, `{"redirectUrl":42}`, nil))
	assert.Equal(t, KindRaw, gr.Kind)
	assert.Equal(t, "", gr.RedirectURL())
}

func TestParseResponse_Headers(t *testing.T) {
	gr := parseResponse(KindCurrent, httpResponse(400, `{}`, map[string]string{
		"X-Request-Id":    "req-1",
		"X-Error-Code":    "E1",
		"X-Error-Message": "bad things",
		"X-Other":         "ignored",
	}))

	assert.Equal(t, provider.RemoteHeaders{RequestID: "req-1", ErrorCode: "E1", ErrorMessage: "bad things"}, gr.Headers)
}

func TestDecodeBody_KeepsNumbers(t *testing.T) {
	body := decodeBody([]byte(`{"amount":12345678901234}`))
	obj, ok := body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("12345678901234"), obj["amount"])

	assert.Equal(t, `{"a":1} trailing`, decodeBody([]byte(`{"a":1} trailing`)))
}
