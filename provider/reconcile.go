package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/metrics"
)

// Order lifecycle values written next to payment_status
const (
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
)

// ReconcileResult reports what a reconciliation observed and wrote
type ReconcileResult struct {
	OrderID         string `json:"orderId"`
	MerchantOrderID string `json:"merchantOrderId"`
	State           string `json:"state"`
	PaymentStatus   string `json:"paymentStatus,omitempty"`
	Status          string `json:"status,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	Updated         bool   `json:"updated"`
}

// MapGatewayState maps a gateway order state to the stored payment and order
// status. ok is false for states that must not change the record.
func MapGatewayState(state string) (paymentStatus, orderStatus string, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "COMPLETED", "SUCCESS":
		return config.PaymentStatusPaid, OrderStatusConfirmed, true
	case "FAILED", "DECLINED", "CANCELLED":
		return config.PaymentStatusFailed, OrderStatusCancelled, true
	default:
		return "", "", false
	}
}

// Reconcile queries the gateway for merchantOrderID and writes a terminal state
// onto orderID. Pending and unknown states leave the record untouched.
func (s *PaymentService) Reconcile(ctx context.Context, providerName, orderID, merchantOrderID string) (*ReconcileResult, error) {
	orderID = strings.TrimSpace(orderID)
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if orderID == "" || merchantOrderID == "" {
		return nil, NewError(KindLocalValidation, "reconcile", "orderId and merchantOrderId are required", nil)
	}
	if s.store == nil {
		return nil, NewError(KindConfiguration, "reconcile", "no order store configured", nil)
	}
	providerName = s.resolveName(providerName)

	status, err := s.GetOrderStatus(ctx, providerName, StatusRequest{MerchantOrderID: merchantOrderID})
	if err != nil {
		metrics.IncReconciled(providerName, "error")
		return nil, err
	}
	if !status.IsRemoteSuccess() {
		metrics.IncReconciled(providerName, "error")
		return nil, NewError(KindGatewayProtocol, "reconcile",
			fmt.Sprintf("status query answered %d", status.RemoteStatusCode), nil)
	}

	result := &ReconcileResult{
		OrderID:         orderID,
		MerchantOrderID: merchantOrderID,
		State:           status.State,
		TransactionID:   status.TransactionID,
	}

	paymentStatus, orderStatus, ok := MapGatewayState(status.State)
	if !ok {
		metrics.IncReconciled(providerName, "unchanged")
		return result, nil
	}

	fields := map[string]any{
		"payment_status":    paymentStatus,
		"status":            orderStatus,
		"merchant_order_id": merchantOrderID,
		"gateway_response":  marshalForStore(status.Raw),
	}
	if status.TransactionID != "" {
		fields["transaction_id"] = status.TransactionID
	}
	if err := s.store.UpsertOrderStatus(ctx, orderID, fields); err != nil {
		metrics.IncReconciled(providerName, "error")
		return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
	}

	result.PaymentStatus = paymentStatus
	result.Status = orderStatus
	result.Updated = true
	metrics.IncReconciled(providerName, paymentStatus)

	logger.Info("Order reconciled", logger.LogContext{
		Provider: providerName,
		OrderID:  orderID,
		Fields: map[string]any{
			"merchant_order_id": merchantOrderID,
			"state":             status.State,
			"payment_status":    paymentStatus,
		},
	})

	s.publish(ctx, providerName, PaymentEvent{
		Type:            EventPaymentStatus,
		OrderID:         orderID,
		MerchantOrderID: merchantOrderID,
		OK:              paymentStatus == config.PaymentStatusPaid,
		State:           status.State,
		PaymentStatus:   paymentStatus,
	})

	return result, nil
}

// ReconcilePending reconciles up to limit pending orders, least recently checked
// first. Every visited order is stamped as checked, so orders the gateway keeps
// rejecting rotate to the back instead of starving newer ones. A failure on one
// order is logged and does not stop the sweep.
func (s *PaymentService) ReconcilePending(ctx context.Context, providerName string, limit int) ([]ReconcileResult, error) {
	if s.store == nil {
		return nil, NewError(KindConfiguration, "reconcile pending", "no order store configured", nil)
	}

	orders, err := s.store.PendingOrders(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}

	results := make([]ReconcileResult, 0, len(orders))
	for _, order := range orders {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		res, err := s.Reconcile(ctx, providerName, order.OrderID, order.MerchantOrderID)
		if markErr := s.store.MarkChecked(ctx, order.OrderID, time.Now()); markErr != nil {
			logger.WithProvider(providerName).SetOrderID(order.OrderID).
				AddField("error", markErr.Error()).
				Warn("Failed to stamp swept order")
		}
		if err != nil {
			logger.WithProvider(providerName).SetOrderID(order.OrderID).
				AddField("merchant_order_id", order.MerchantOrderID).
				AddField("error", err.Error()).
				Warn("Reconcile failed")
			continue
		}
		results = append(results, *res)
	}

	return results, nil
}

// Reconciler sweeps pending orders on a fixed interval
type Reconciler struct {
	service  *PaymentService
	provider string
	interval time.Duration
	batch    int
}

// NewReconciler creates a sweeper for providerName. A non-positive batch defaults to 50.
func NewReconciler(service *PaymentService, providerName string, interval time.Duration, batch int) *Reconciler {
	if batch <= 0 {
		batch = 50
	}
	return &Reconciler{
		service:  service,
		provider: providerName,
		interval: interval,
		batch:    batch,
	}
}

// Run sweeps every interval until ctx is done. It returns immediately when the interval is not positive.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info("Reconciler started", logger.LogContext{
		Provider: r.provider,
		Fields:   map[string]any{"interval": r.interval.String(), "batch": r.batch},
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info("Reconciler stopped", logger.LogContext{Provider: r.provider})
			return
		case <-ticker.C:
			results, err := r.service.ReconcilePending(ctx, r.provider, r.batch)
			if err != nil && ctx.Err() == nil {
				logger.Error("Pending order sweep failed", err, logger.LogContext{Provider: r.provider})
				continue
			}
			if updated := countUpdated(results); updated > 0 {
				logger.Info("Pending order sweep finished", logger.LogContext{
					Provider: r.provider,
					Fields:   map[string]any{"checked": len(results), "updated": updated},
				})
			}
		}
	}
}

func countUpdated(results []ReconcileResult) int {
	n := 0
	for _, r := range results {
		if r.Updated {
			n++
		}
	}
	return n
}
