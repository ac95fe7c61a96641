package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// PaymentLog is one gateway operation as seen by the payment service
type PaymentLog struct {
	Timestamp   time.Time   `json:"timestamp"`
	Provider    string      `json:"provider"`
	Operation   string      `json:"operation"`
	Method      string      `json:"method"`
	Endpoint    string      `json:"endpoint"`
	RequestID   string      `json:"request_id"`
	UserAgent   string      `json:"user_agent,omitempty"`
	ClientIP    string      `json:"client_ip,omitempty"`
	Request     RequestLog  `json:"request"`
	Response    ResponseLog `json:"response"`
	PaymentInfo PaymentInfo `json:"payment_info"`
	Error       ErrorInfo   `json:"error,omitempty"`
}

// RequestLog represents request details
type RequestLog struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseLog represents response details
type ResponseLog struct {
	StatusCode       int    `json:"status_code"`
	Body             string `json:"body,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// PaymentInfo holds the identifiers needed to reconcile an order from the logs
type PaymentInfo struct {
	MerchantOrderID string `json:"merchant_order_id,omitempty"`
	GatewayOrderID  string `json:"gateway_order_id,omitempty"`
	AmountPaise     int64  `json:"amount_paise,omitempty"`
	State           string `json:"state,omitempty"`
	AuthMode        string `json:"auth_mode,omitempty"`
	DryRun          bool   `json:"dry_run,omitempty"`
	Retried         bool   `json:"retried,omitempty"`
	Fallback        bool   `json:"fallback,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogPaymentRequest indexes a gateway operation log
func (l *Logger) LogPaymentRequest(ctx context.Context, entry PaymentLog) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.New().String()
	}
	entry.Request.Body = SanitizeForLog(entry.Request.Body)
	entry.Response.Body = SanitizeForLog(entry.Response.Body)

	return l.index(ctx, l.client.GetLogIndexName(entry.Provider), entry)
}

// LogSystemEvent indexes a system log entry
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, l.client.SystemIndexName(), entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchLogs searches a provider's gateway call logs, newest first
func (l *Logger) SearchLogs(ctx context.Context, provider string, query map[string]any) ([]PaymentLog, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.client.GetLogIndexName(provider)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source PaymentLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	logs := make([]PaymentLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		logs[i] = hit.Source
	}

	return logs, nil
}

// GetPaymentLogs retrieves the logs recorded for a merchant order id
func (l *Logger) GetPaymentLogs(ctx context.Context, provider, merchantOrderID string) ([]PaymentLog, error) {
	query := map[string]any{
		"term": map[string]any{
			"payment_info.merchant_order_id": merchantOrderID,
		},
	}

	return l.SearchLogs(ctx, provider, query)
}

// GetRecentErrorLogs retrieves recent error logs for a provider
func (l *Logger) GetRecentErrorLogs(ctx context.Context, provider string, hours int) ([]PaymentLog, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"range": map[string]any{"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)}}},
				{"exists": map[string]any{"field": "error.code"}},
			},
		},
	}

	return l.SearchLogs(ctx, provider, query)
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"merchantSecret", "merchant_secret", "clientSecret", "client_secret",
		"access_token", "accessToken", "token", "authorization", "x-verify",
		"saltKey", "salt_key", "password", "apiKey", "api_key",
	}
	var patterns []*regexp.Regexp
	for _, field := range fields {
		patterns = append(patterns,
			regexp.MustCompile(fmt.Sprintf(`(?i)"(%s)"\s*:\s*"[^"]*"`, regexp.QuoteMeta(field))),
			regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)=[^&\s"]+`, regexp.QuoteMeta(field))),
		)
	}
	return patterns
}()

// SanitizeForLog redacts credential values from JSON bodies and form/query strings
func SanitizeForLog(data string) string {
	result := data
	for i, re := range sensitivePatterns {
		if i%2 == 0 {
			result = re.ReplaceAllString(result, `"$1":"***REDACTED***"`)
		} else {
			result = re.ReplaceAllString(result, `$1=***REDACTED***`)
		}
	}
	return result
}
