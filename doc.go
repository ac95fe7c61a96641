// Package paygate is a payment orchestration service for the PhonePe hosted
// checkout. It sits between merchant applications and the gateway and takes
// care of OAuth tokens, X-VERIFY signing, checkout v2 with a legacy fallback,
// order status queries and reconciliation of pending orders.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│     paygate     │◄──►│    PhonePe      │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └────────┬────────┘    └─────────────────┘
//	                                │
//	                    SQLite · OpenSearch · Kafka
//
// Every initiation that reaches the gateway is recorded as a pending order in
// SQLite. Gateway calls are logged to OpenSearch when enabled and published as
// payment events to Kafka when brokers are configured. A background reconciler
// moves pending orders to paid or failed once the gateway reports a terminal
// state.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/mstgnz/paygate/provider"
//	    _ "github.com/mstgnz/paygate/provider/phonepe" // Import to register provider
//	    "github.com/shopspring/decimal"
//	)
//
//	func main() {
//	    service := provider.NewPaymentService()
//
//	    err := service.AddProvider("phonepe", map[string]string{
//	        "enabled":       "true",
//	        "environment":   "sandbox",
//	        "merchantId":    "MERCHANTUAT",
//	        "clientId":      "your-client-id",
//	        "clientSecret":  "your-client-secret",
//	        "clientVersion": "1",
//	    })
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    result, err := service.InitiatePayment(context.Background(), "phonepe", provider.PaymentRequest{
//	        OrderID:     "ORDER-1001",
//	        Amount:      decimal.RequireFromString("149.00"),
//	        RedirectURL: "https://shop.example/return",
//	    })
//	    if err != nil {
//	        panic(err) // local validation only, gateway declines come back as result.OK == false
//	    }
//	    _ = result.PaymentURL
//	}
//
// # HTTP API
//
//	POST /v1/payments/{provider}/init
//	POST /v1/payments/{provider}/status
//	GET  /v1/payments/{provider}/status/{merchantOrderId}?details=true
//	POST /v1/payments/{provider}/reconcile
//	GET  /v1/logs/{provider}
//	GET  /health
//	GET  /metrics
//
// /v1 requires "Authorization: Bearer <API_KEY>".
//
// # Configuration
//
// Settings come from the environment (optionally via .env) and fall back to
// the settings table of the SQLite store:
//
//	APP_PORT=9999
//	API_KEY=your-api-key
//	SQLITE_PATH=./data/paygate.db
//	PHONEPE_ENABLED=true
//	PHONEPE_ENVIRONMENT=sandbox
//	PHONEPE_MERCHANT_ID=MERCHANTUAT
//	PHONEPE_CLIENT_ID=...
//	PHONEPE_CLIENT_SECRET=...
//	PHONEPE_CLIENT_VERSION=1
//	RECONCILE_INTERVAL=2m
//	ENABLE_OPENSEARCH_LOGGING=false
//	KAFKA_BROKERS=
//
// When PhonePe is disabled or has no merchant credentials, init calls return a
// dry run describing the request that would have been sent.
package paygate
