package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/mstgnz/paygate/infra/response"
)

const (
	defaultLogHours = 24
	maxLogHours     = 168
)

// LoggerInterface defines the interface for gateway call log queries
type LoggerInterface interface {
	SearchLogs(ctx context.Context, provider string, query map[string]any) ([]opensearch.PaymentLog, error)
	GetPaymentLogs(ctx context.Context, provider, merchantOrderID string) ([]opensearch.PaymentLog, error)
	GetRecentErrorLogs(ctx context.Context, provider string, hours int) ([]opensearch.PaymentLog, error)
}

// LogsHandler handles logs related HTTP requests
type LogsHandler struct {
	logger LoggerInterface
}

// NewLogsHandler creates a new logs handler. A nil logger answers 503.
func NewLogsHandler(logger LoggerInterface) *LogsHandler {
	return &LogsHandler{logger: logger}
}

// ListLogs lists a provider's gateway call logs filtered by operation, state and errors
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if h.logger == nil {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		response.Error(w, http.StatusBadRequest, "Provider parameter is required", nil)
		return
	}

	q := r.URL.Query()
	hours := parseHours(q.Get("hours"))

	must := []map[string]any{
		{"range": map[string]any{"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)}}},
	}
	if op := q.Get("operation"); op != "" {
		must = append(must, map[string]any{"term": map[string]any{"operation": op}})
	}
	if state := q.Get("state"); state != "" {
		must = append(must, map[string]any{"match": map[string]any{"payment_info.state": state}})
	}
	errorsOnly := q.Get("errorsOnly") == "true"
	if errorsOnly {
		must = append(must, map[string]any{"exists": map[string]any{"field": "error.code"}})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.logger.SearchLogs(ctx, provider, map[string]any{"bool": map[string]any{"must": must}})
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to search logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", map[string]any{
		"provider": provider,
		"filters": map[string]any{
			"hours":      hours,
			"operation":  q.Get("operation"),
			"state":      q.Get("state"),
			"errorsOnly": errorsOnly,
		},
		"count": len(logs),
		"logs":  logs,
	})
}

// GetPaymentLogs retrieves every logged gateway call for one merchant order id
func (h *LogsHandler) GetPaymentLogs(w http.ResponseWriter, r *http.Request) {
	if h.logger == nil {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}

	provider := chi.URLParam(r, "provider")
	merchantOrderID := chi.URLParam(r, "merchantOrderId")
	if provider == "" || merchantOrderID == "" {
		response.Error(w, http.StatusBadRequest, "provider and merchantOrderId are required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.logger.GetPaymentLogs(ctx, provider, merchantOrderID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", map[string]any{
		"provider":        provider,
		"merchantOrderId": merchantOrderID,
		"count":           len(logs),
		"logs":            logs,
	})
}

// GetErrorLogs retrieves recent failed gateway calls for a provider
func (h *LogsHandler) GetErrorLogs(w http.ResponseWriter, r *http.Request) {
	if h.logger == nil {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		response.Error(w, http.StatusBadRequest, "Provider parameter is required", nil)
		return
	}
	hours := parseHours(r.URL.Query().Get("hours"))

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.logger.GetRecentErrorLogs(ctx, provider, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get error logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Error logs retrieved successfully", map[string]any{
		"provider": provider,
		"hours":    hours,
		"count":    len(logs),
		"logs":     logs,
	})
}

// parseHours accepts 1..168, anything else falls back to 24
func parseHours(s string) int {
	if h, err := strconv.Atoi(s); err == nil && h > 0 && h <= maxLogHours {
		return h
	}
	return defaultLogHours
}
