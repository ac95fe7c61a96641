package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/middle"
)

// Deps are the services behind the v1 API. Logs may be nil when OpenSearch logging is disabled.
type Deps struct {
	Payments handler.PaymentServiceInterface
	Logs     handler.LoggerInterface
	Validate *validator.Validate
}

// Routes registers all v1 API routes
func Routes(r chi.Router, deps Deps) {
	validate := deps.Validate
	if validate == nil {
		validate = validator.New()
	}
	paymentHandler := handler.NewPaymentHandler(deps.Payments, validate)
	logsHandler := handler.NewLogsHandler(deps.Logs)

	r.Route("/payments/{provider}", func(r chi.Router) {
		r.Use(middle.RequestValidationMiddleware())

		r.Post("/init", paymentHandler.InitiatePayment)
		r.Post("/status", paymentHandler.GetOrderStatus)
		r.Get("/status/{merchantOrderId}", paymentHandler.GetOrderStatusByID)
		r.Post("/reconcile", paymentHandler.Reconcile)
	})

	r.Route("/logs/{provider}", func(r chi.Router) {
		r.Get("/", logsHandler.ListLogs)
		r.Get("/orders/{merchantOrderId}", logsHandler.GetPaymentLogs)
		r.Get("/errors", logsHandler.GetErrorLogs)
	})
}
