package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
)

// Pinger is a storage backend that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderLookup resolves active provider instances
type ProviderLookup interface {
	GetProvider(name string) (provider.PaymentProvider, error)
}

// HealthDeps are the services reported on by the health check. Nil fields are reported as not configured.
type HealthDeps struct {
	Store          Pinger
	ProviderConfig *config.ProviderConfig
	Payments       ProviderLookup
	SearchLogging  bool
	EventTopic     string
}

// HealthHandler handles health check requests
type HealthHandler struct {
	deps      HealthDeps
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                     `json:"status"`
	Version     string                     `json:"version"`
	Timestamp   time.Time                  `json:"timestamp"`
	Uptime      string                     `json:"uptime"`
	Environment string                     `json:"environment"`
	Database    *DatabaseHealth            `json:"database"`
	Providers   map[string]*ProviderHealth `json:"providers"`
	System      *SystemHealth              `json:"system"`
	Services    map[string]*ServiceHealth  `json:"services"`
}

// DatabaseHealth represents order store health
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// ProviderHealth represents payment provider health
type ProviderHealth struct {
	Status     string `json:"status"`
	Registered bool   `json:"registered"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
	Error      string `json:"error,omitempty"`
}

// SystemHealth represents process resource usage
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	TotalAlloc   string  `json:"total_alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		deps:      deps,
		startTime: time.Now(),
	}
}

// CheckHealth reports store, provider and sink status
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: getEnvironment(),
		Database:    h.checkDatabaseHealth(ctx),
		Providers:   h.checkProvidersHealth(),
		System:      checkSystemHealth(),
		Services:    h.checkServicesHealth(),
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	if h.deps.Store == nil {
		return &DatabaseHealth{Status: "not_configured", Error: "Order store not configured"}
	}

	start := time.Now()
	err := h.deps.Store.Ping(ctx)
	elapsed := time.Since(start)

	db := &DatabaseHealth{ResponseTime: fmt.Sprintf("%.0fms", float64(elapsed.Microseconds())/1000)}
	switch {
	case err != nil:
		db.Status = "unhealthy"
		db.Error = err.Error()
	case elapsed > time.Second:
		db.Status, db.Connected = "degraded", true
	default:
		db.Status, db.Connected = "healthy", true
	}
	return db
}

// checkProvidersHealth reports every registered provider. A provider that is
// registered but has no configuration still serves dry runs, so it is degraded
// rather than down.
func (h *HealthHandler) checkProvidersHealth() map[string]*ProviderHealth {
	var configured []string
	if h.deps.ProviderConfig != nil {
		configured = h.deps.ProviderConfig.GetAvailableProviders()
	}

	providers := make(map[string]*ProviderHealth)
	for _, name := range provider.GetAvailableProviders() {
		ph := &ProviderHealth{
			Registered: true,
			Configured: slices.Contains(configured, name),
		}
		if h.deps.Payments != nil {
			if _, err := h.deps.Payments.GetProvider(name); err != nil {
				ph.Error = err.Error()
			} else {
				ph.Active = true
			}
		}

		switch {
		case ph.Active && ph.Configured:
			ph.Status = "healthy"
		case ph.Active:
			ph.Status = "degraded"
		default:
			ph.Status = "not_available"
		}
		providers[name] = ph
	}
	return providers
}

func (h *HealthHandler) checkServicesHealth() map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)

	if h.deps.Payments != nil {
		services["payment_service"] = &ServiceHealth{Status: "healthy", Healthy: true, Description: "Payment processing service"}
	} else {
		services["payment_service"] = &ServiceHealth{Status: "unhealthy", Error: "Payment service not initialized"}
	}

	if h.deps.SearchLogging {
		services["opensearch_logger"] = &ServiceHealth{Status: "healthy", Healthy: true, Description: "Gateway call logging to OpenSearch"}
	} else {
		services["opensearch_logger"] = &ServiceHealth{Status: "not_configured", Description: "OpenSearch logging disabled"}
	}

	if h.deps.EventTopic != "" {
		services["kafka_events"] = &ServiceHealth{Status: "healthy", Healthy: true, Description: "Payment events published to " + h.deps.EventTopic}
	} else {
		services["kafka_events"] = &ServiceHealth{Status: "not_configured", Description: "No Kafka brokers configured"}
	}

	return services
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			TotalAlloc:   formatBytes(memStats.TotalAlloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: calculateMemoryUsagePercent(memStats.Alloc, memStats.Sys),
		},
		GoRoutines: runtime.NumGoroutine(),
	}
}

// determineOverallStatus: an unreachable store or missing payment service is
// unhealthy; a slow store or no fully configured provider is degraded.
func determineOverallStatus(health *HealthStatus) string {
	if health.Database != nil && health.Database.Status == "unhealthy" {
		return "unhealthy"
	}
	if svc, ok := health.Services["payment_service"]; ok && !svc.Healthy {
		return "unhealthy"
	}

	if health.Database != nil && health.Database.Status == "degraded" {
		return "degraded"
	}

	for _, p := range health.Providers {
		if p.Status == "healthy" {
			return "healthy"
		}
	}
	return "degraded"
}

func getEnvironment() string {
	if env := config.GetEnv("ENVIRONMENT", ""); env != "" {
		return env
	}
	if env := config.GetEnv("ENV", ""); env != "" {
		return env
	}
	return "development"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func calculateMemoryUsagePercent(alloc, sys uint64) float64 {
	if sys == 0 {
		return 0
	}
	return (float64(alloc) / float64(sys)) * 100
}
