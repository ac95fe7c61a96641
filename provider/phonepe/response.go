package phonepe

import (
	"bytes"
	"encoding/json"

	"github.com/mstgnz/paygate/provider"
)

// ResponseKind tells which shape a gateway body was decoded into
type ResponseKind string

const (
	KindLegacy  ResponseKind = "legacy"
	KindCurrent ResponseKind = "current"
	KindRaw     ResponseKind = "raw"
)

type RedirectInfo struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

type InstrumentResponse struct {
	Type         string       `json:"type"`
	RedirectInfo RedirectInfo `json:"redirectInfo"`
}

// LegacyResponse is the /pg/v1/pay answer
type LegacyResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string             `json:"merchantId"`
		MerchantTransactionID string             `json:"merchantTransactionId"`
		InstrumentResponse    InstrumentResponse `json:"instrumentResponse"`
		RedirectURL           string             `json:"redirectUrl"`
	} `json:"data"`
}

// CurrentResponse is the /checkout/v2/pay answer
type CurrentResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	RedirectURL string `json:"redirectUrl"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Data        struct {
		RedirectURL string `json:"redirectUrl"`
	} `json:"data"`
}

// GatewayResponse is a decoded gateway answer. Exactly one of Legacy or Current
// is set unless Kind is KindRaw.
type GatewayResponse struct {
	Kind       ResponseKind
	StatusCode int
	Headers    provider.RemoteHeaders
	Legacy     *LegacyResponse
	Current    *CurrentResponse
	// Body is the decoded JSON value, or the raw text when the body is not JSON
	Body any
	Raw  string
}

// parseResponse decodes resp as the given generation. Bodies that are not JSON
// objects, or do not fit the expected shape, stay raw.
func parseResponse(kind ResponseKind, resp *provider.HTTPResponse) *GatewayResponse {
	gr := &GatewayResponse{
		Kind:       KindRaw,
		StatusCode: resp.StatusCode,
		Headers:    remoteHeaders(resp),
		Raw:        resp.RawBody,
		Body:       decodeBody(resp.Body),
	}

	if _, ok := gr.Body.(map[string]any); !ok {
		return gr
	}

	switch kind {
	case KindLegacy:
		var lr LegacyResponse
		if err := json.Unmarshal(resp.Body, &lr); err == nil {
			gr.Kind, gr.Legacy = KindLegacy, &lr
		}
	case KindCurrent:
		var cr CurrentResponse
		if err := json.Unmarshal(resp.Body, &cr); err == nil {
			gr.Kind, gr.Current = KindCurrent, &cr
		}
	}
	return gr
}

// RedirectURL extracts the hosted payment page url, or ""
func (r *GatewayResponse) RedirectURL() string {
	switch r.Kind {
	case KindLegacy:
		return firstNonEmpty(r.Legacy.Data.InstrumentResponse.RedirectInfo.URL, r.Legacy.Data.RedirectURL)
	case KindCurrent:
		return firstNonEmpty(r.Current.RedirectURL, r.Current.Data.RedirectURL)
	default:
		return ""
	}
}

// ErrorCode returns the body's code field, or ""
func (r *GatewayResponse) ErrorCode() string {
	switch r.Kind {
	case KindLegacy:
		return r.Legacy.Code
	case KindCurrent:
		return r.Current.Code
	default:
		return ""
	}
}

// IsSuccess reports a 2xx status
func (r *GatewayResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func remoteHeaders(resp *provider.HTTPResponse) provider.RemoteHeaders {
	if resp.Headers == nil {
		return provider.RemoteHeaders{}
	}
	return provider.RemoteHeaders{
		RequestID:    resp.Headers.Get("X-Request-Id"),
		ErrorCode:    resp.Headers.Get("X-Error-Code"),
		ErrorMessage: resp.Headers.Get("X-Error-Message"),
	}
}

// decodeBody returns the JSON value of body, or its text when it is not JSON
func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(body)
	}
	return v
}
