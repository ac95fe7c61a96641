package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/events"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/mstgnz/paygate/provider"
	"github.com/mstgnz/paygate/router"
	v1 "github.com/mstgnz/paygate/router/v1"
)

var (
	appConfig        *config.AppConfig
	openSearchLogger *opensearch.Logger
)

func init() {
	// .env is optional, real deployments set the environment directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Load Env Error: %v", err)
	}
	_ = config.App()
	appConfig = config.GetAppConfig()

	if appConfig.EnableLogging {
		osClient, err := opensearch.NewClient(appConfig)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
		}
	}

	if openSearchLogger != nil {
		logger.InitGlobalLogger(openSearchLogger)
	} else {
		logger.InitGlobalLogger(nil)
	}
}

func main() {
	storage, err := config.NewSQLiteStorage(appConfig.SQLitePath)
	if err != nil {
		logger.Fatal("Failed to open order store", err, logger.LogContext{Fields: map[string]any{"path": appConfig.SQLitePath}})
	}
	defer storage.Close()

	// Environment first, then the settings table
	providerConfig := config.NewProviderConfig()
	providerConfig.LoadFromSource(config.SourceChain{config.EnvSource{}, storage})

	opts := []provider.ServiceOption{provider.WithOrderStore(storage)}
	if openSearchLogger != nil {
		opts = append(opts, provider.WithPaymentLogger(openSearchLogger))
	}

	var bus *events.Bus
	if len(appConfig.KafkaBrokers) > 0 {
		bus = events.New(appConfig.KafkaBrokers, appConfig.KafkaPaymentTopic)
		defer bus.Close()
		opts = append(opts, provider.WithEventPublisher(bus))
	}

	paymentService := provider.NewPaymentService(opts...)
	registerProviders(paymentService, providerConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rateLimiter := middle.NewRateLimiter()
	go rateLimiter.Cleanup(ctx)

	for _, name := range providerConfig.GetAvailableProviders() {
		go provider.NewReconciler(paymentService, name, appConfig.ReconcileInterval, appConfig.ReconcileBatch).Run(ctx)
	}

	healthDeps := handler.HealthDeps{
		Store:          storage,
		ProviderConfig: providerConfig,
		Payments:       paymentService,
		SearchLogging:  openSearchLogger != nil,
	}
	if bus != nil {
		healthDeps.EventTopic = bus.Topic()
	}

	v1Deps := v1.Deps{
		Payments: paymentService,
		Validate: config.App().Validator,
	}
	if openSearchLogger != nil {
		v1Deps.Logs = openSearchLogger
	}

	r := chi.NewRouter()

	r.Use(middle.RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(90 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", middle.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Length", middle.RequestIDHeader, "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300, // Preflight cache time (second)
	}))

	router.Routes(r, router.Options{
		APIKey:      appConfig.APIKey,
		AllowedIPs:  appConfig.AllowedIPs,
		RateLimiter: rateLimiter,
		Health:      handler.NewHealthHandler(healthDeps),
		V1:          v1Deps,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{"port": appConfig.Port}})

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// registerProviders initializes every registered provider. A provider with no
// configuration is still added so its calls come back as dry runs.
func registerProviders(service *provider.PaymentService, providerConfig *config.ProviderConfig) {
	for _, name := range provider.GetAvailableProviders() {
		cfg, err := providerConfig.GetConfig(name)
		if err != nil {
			cfg = map[string]string{}
		}

		if err := service.AddProvider(name, cfg); err != nil {
			logger.Error("Failed to register provider", err, logger.LogContext{Provider: name})
			continue
		}
		logger.Info("Registered payment provider", logger.LogContext{Provider: name})
	}
}
