package usecase

import (
	"context"
	"errors"
	"log/slog"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

// ClaimStale returns up to limit created orders older than the reconcile grace period.
func (l *OrderLifecycle) ClaimStale(ctx context.Context, limit int) ([]model.Order, error) {
	cutoff := l.now().Add(-l.cfg.ReconcileGrace)
	rctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	return l.orders.ClaimForReconciliation(rctx, cutoff, cutoff, limit)
}

// Reconcile settles a created order against the payments the gateway holds for it.
// A captured payment marks the order paid; an order past the payment window with
// nothing captured is failed. Other orders are left untouched.
func (l *OrderLifecycle) Reconcile(ctx context.Context, order model.Order) (*model.Order, error) {
	if order.Status != model.OrderStatusCreated {
		return &order, nil
	}

	payments, err := l.gateway.FetchOrderPayments(ctx, order.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	for _, payment := range payments {
		if payment.Status != model.PaymentStatusCaptured {
			continue
		}
		patch := model.OrderPatch{Status: model.OrderStatusPaid, PaymentID: payment.ID}
		return l.settle(ctx, order, patch, model.EventOrderPaid)
	}

	if l.now().Sub(order.CreatedAt) < l.cfg.PaymentWindow {
		return &order, nil
	}
	patch := model.OrderPatch{Status: model.OrderStatusFailed, FailureReason: windowExpiredReason}
	return l.settle(ctx, order, patch, model.EventOrderFailed)
}

func (l *OrderLifecycle) settle(ctx context.Context, order model.Order, patch model.OrderPatch, eventType string) (*model.Order, error) {
	updated, err := l.transition(ctx, order.ID, model.OrderStatusCreated, patch)
	if errors.Is(err, domainErrors.ErrConflict) {
		// a concurrent verify or cancel already moved the order on
		l.logger.Debug("reconcile skipped, order already settled", slog.String("order_id", order.ID))
		return l.findByID(ctx, order.ID)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("order reconciled",
		slog.String("order_id", updated.ID),
		slog.String("gateway_order_id", updated.GatewayOrderID),
		slog.String("status", string(updated.Status)),
		slog.String("payment_id", updated.PaymentID),
	)
	l.publish(ctx, eventType, updated)
	return updated, nil
}
