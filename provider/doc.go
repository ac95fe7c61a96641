// Package provider defines the gateway-neutral payment surface of paygate and
// the service that routes calls to registered gateway clients.
//
// # Core Concepts
//
//   - PaymentProvider: the interface a gateway client implements
//   - PaymentService: holds initialized providers, records orders, logs gateway calls and publishes events
//   - PaymentRequest / PaymentResult: hosted checkout initiation
//   - StatusRequest / OrderStatus: flattened order state
//   - GatewayError: typed failures, matched with errors.Is against ErrLocalValidation,
//     ErrCredential, ErrGatewayTransport, ErrGatewayProtocol and ErrConfiguration
//
// # Basic Usage
//
//	service := provider.NewPaymentService(
//	    provider.WithOrderStore(storage),
//	    provider.WithPaymentLogger(openSearchLogger),
//	    provider.WithEventPublisher(bus),
//	)
//	if err := service.AddProvider("phonepe", cfg); err != nil {
//	    return err
//	}
//
//	result, err := service.InitiatePayment(ctx, "phonepe", request)
//	switch {
//	case provider.IsLocalValidation(err):
//	    // caller mistake, nothing was sent
//	case err != nil:
//	    // configuration or provider failure
//	case result.IsDryRun():
//	    // gateway disabled, result.DryRun shows the request
//	case !result.OK:
//	    // gateway declined, result.RemoteBody has its answer
//	}
//
// Only local validation is an error on the initiation path. Every answer the
// gateway gives, including 4xx and 5xx, is a PaymentResult with OK=false.
//
// # Reconciliation
//
// Reconcile queries the gateway for one order and writes a terminal state to
// the order store. COMPLETED maps to paid, FAILED, DECLINED and CANCELLED map
// to failed, and every other state leaves the record alone. A Reconciler runs
// ReconcilePending on an interval:
//
//	go provider.NewReconciler(service, "phonepe", 2*time.Minute, 50).Run(ctx)
//
// # Adding a Gateway
//
// A gateway package registers a factory in init:
//
//	func init() {
//	    provider.Register("phonepe", NewProvider)
//	}
//
// and describes its settings with ConfigField so ValidateConfigFields can
// check them before Initialize.
package provider
