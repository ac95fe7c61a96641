package phonepe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/metrics"
	"github.com/mstgnz/paygate/provider"
)

// GetOrderStatus queries checkout v2 for an order and flattens the first payment attempt
func (p *PhonePeProvider) GetOrderStatus(ctx context.Context, req provider.StatusRequest) (*provider.OrderStatus, error) {
	if !p.cfg.Enabled {
		return nil, provider.NewError(provider.KindConfiguration, "order status", "PhonePe not enabled", nil)
	}
	if !p.cfg.HasOAuth() {
		return nil, provider.NewError(provider.KindConfiguration, "order status", "PhonePe OAuth credentials missing", nil)
	}

	merchantOrderID := strings.TrimSpace(req.MerchantOrderID)
	if merchantOrderID == "" {
		return nil, provider.NewError(provider.KindLocalValidation, "order status", "merchantOrderId is required", nil)
	}

	clientVersion := firstNonEmpty(p.cfg.ClientVersion, defaultClientVersion)
	token, source, err := p.tokens.Token(ctx, OAuthCredentials{
		ClientID:      p.cfg.ClientID,
		ClientSecret:  p.cfg.ClientSecret,
		ClientVersion: clientVersion,
	})
	if err != nil {
		logger.WithProvider(providerName).
			AddField("merchant_order_id", merchantOrderID).
			AddField("error", err.Error()).
			Warn("PhonePe OAuth token acquisition failed for status")
		return nil, err
	}

	requestURL := p.cfg.PayBaseURL + fmt.Sprintf(endpointOrderStatus, url.PathEscape(merchantOrderID)) +
		"?details=" + strconv.FormatBool(req.Details)

	start := time.Now()
	resp, err := p.client.SendRaw(ctx, &provider.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: requestURL,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerAuthorization: bearerPrefix + token,
		},
	})
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.ObserveGatewayCall(providerName, "status", status, time.Since(start).Seconds())

	if err != nil {
		logger.WithProvider(providerName).
			AddField("merchant_order_id", merchantOrderID).
			Error("PhonePe order status request failed", err)
		return nil, provider.NewError(provider.KindGatewayTransport, "order status", "PhonePe status request failed", err)
	}

	result := flattenStatus(resp.StatusCode, decodeBody(resp.Body), merchantOrderID)
	result.Diagnostics = provider.StatusDiagnostics{
		Enabled:         p.cfg.Enabled,
		OAuthBaseURL:    p.cfg.OAuthBaseURL,
		PayBaseURL:      p.cfg.PayBaseURL,
		ClientIDPreview: Mask(p.cfg.ClientID),
		Details:         req.Details,
		TokenSource:     source,
		TokenPreview:    Mask(token),
		RequestURL:      requestURL,
	}

	logger.WithProvider(providerName).
		AddField("merchant_order_id", merchantOrderID).
		AddField("remote_status", resp.StatusCode).
		AddField("state", result.State).
		Debug("PhonePe order status")
	return result, nil
}

// flattenStatus lifts the top level fields and those of the first payment
// attempt out of a status body. Non-object bodies only fill Raw.
func flattenStatus(statusCode int, body any, requestedID string) *provider.OrderStatus {
	out := &provider.OrderStatus{
		RemoteStatusCode: statusCode,
		MerchantOrderID:  requestedID,
		Raw:              body,
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return out
	}

	var first map[string]any
	if list, ok := obj["paymentDetails"].([]any); ok {
		out.PaymentDetails = make([]map[string]any, 0, len(list))
		for _, item := range list {
			if detail, ok := item.(map[string]any); ok {
				out.PaymentDetails = append(out.PaymentDetails, detail)
			}
		}
		if len(list) > 0 {
			first, _ = list[0].(map[string]any)
		}
	}

	out.OrderID = stringField(obj, "orderId")
	out.MerchantOrderID = firstNonEmpty(stringField(obj, "merchantOrderId"), requestedID)
	out.State = firstNonEmpty(stringField(obj, "state"), stringField(obj, "status"), stringField(first, "state"))
	out.StatusMessage = stringField(obj, "statusMessage")
	out.Amount = intField(obj, "amount")
	out.ExpireAt = intField(obj, "expireAt")
	out.TransactionID = firstNonEmpty(stringField(first, "transactionId"), stringField(obj, "transactionId"))
	out.PaymentMode = stringField(first, "paymentMode")
	out.AttemptState = stringField(first, "state")
	if first != nil {
		out.Rail = first["rail"]
		out.Instrument = first["instrument"]
	}

	return out
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	switch v := obj[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(obj map[string]any, key string) int64 {
	switch v := obj[key].(type) {
	case json.Number:
		if n, ok := numberValue(v); ok {
			return n
		}
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
