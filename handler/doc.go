// Package handler provides the HTTP handlers of the paygate API.
//
// # Payment Handler
//
// PaymentHandler exposes hosted checkout initiation, order status queries and
// reconciliation:
//
//	paymentHandler := handler.NewPaymentHandler(paymentService, config.App().Validator)
//
//	r.Post("/v1/payments/{provider}/init", paymentHandler.InitiatePayment)
//	r.Post("/v1/payments/{provider}/status", paymentHandler.GetOrderStatus)
//	r.Get("/v1/payments/{provider}/status/{merchantOrderId}", paymentHandler.GetOrderStatusByID)
//	r.Post("/v1/payments/{provider}/reconcile", paymentHandler.Reconcile)
//
// Example initiation request:
//
//	POST /v1/payments/phonepe/init
//	Headers:
//	  Authorization: Bearer your-api-key
//	  Content-Type: application/json
//
//	Body:
//	{
//	  "amount": "149.00",
//	  "orderId": "ORDER-1001",
//	  "redirectUrl": "https://shop.example/return",
//	  "customerPhone": "9876543210",
//	  "metaInfo": {"udf1": "campaign-7"}
//	}
//
// # Status Codes
//
// Only caller mistakes are 400: a malformed body, a missing amount or orderId,
// or a provider side local validation failure. Everything the gateway says,
// including declines, 4xx answers and unreachable endpoints, is returned as
// 200 with success=false so the raw gateway view reaches the caller:
//
//	{
//	  "code": 200,
//	  "success": false,
//	  "message": "Failed to get order status",
//	  "data": {"status": 0, "kind": "credential", "error": "oauth token: ..."}
//	}
//
// # Logs Handler
//
// LogsHandler queries the gateway call log kept in OpenSearch:
//
//	r.Get("/v1/logs/{provider}", logsHandler.ListLogs)
//	r.Get("/v1/logs/{provider}/orders/{merchantOrderId}", logsHandler.GetPaymentLogs)
//	r.Get("/v1/logs/{provider}/errors", logsHandler.GetErrorLogs)
//
// # Health Handler
//
// HealthHandler reports the order store, registered providers and the
// OpenSearch and Kafka sinks. It answers 503 only when the store is
// unreachable or the payment service is missing.
package handler
