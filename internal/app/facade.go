package app

import (
	"context"

	"github.com/polkiloo/orderpay/internal/domain/model"
	pkgAuth "github.com/polkiloo/orderpay/internal/pkg/auth"
	"github.com/polkiloo/orderpay/internal/usecase"
)

// HealthChecker reports whether the backing store can serve requests.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PaymentFacade is the single entry point used by HTTP handlers and the reconciliation worker.
type PaymentFacade struct {
	tokens pkgAuth.Strategy
	orders *usecase.OrderLifecycle
	health HealthChecker
}

func NewPaymentFacade(tokens pkgAuth.Strategy, orders *usecase.OrderLifecycle, health HealthChecker) *PaymentFacade {
	return &PaymentFacade{tokens: tokens, orders: orders, health: health}
}

func (f *PaymentFacade) ParseToken(token string) (model.Principal, error) {
	return f.tokens.ParseToken(token)
}

func (f *PaymentFacade) CreateOrder(ctx context.Context, p model.Principal, draft model.OrderDraft) (*model.CreatedOrder, error) {
	return f.orders.CreateOrder(ctx, p, draft)
}

func (f *PaymentFacade) VerifyPayment(ctx context.Context, p model.Principal, cb model.PaymentCallback) (*model.Order, error) {
	return f.orders.VerifyPayment(ctx, p, cb)
}

func (f *PaymentFacade) FailOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error) {
	return f.orders.FailOrder(ctx, p, orderID, reason)
}

func (f *PaymentFacade) CancelOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error) {
	return f.orders.CancelOrder(ctx, p, orderID, reason)
}

func (f *PaymentFacade) RefundOrder(ctx context.Context, p model.Principal, req model.RefundRequest) (*model.Order, error) {
	return f.orders.RefundOrder(ctx, p, req)
}

func (f *PaymentFacade) Order(ctx context.Context, p model.Principal, orderID string) (*model.Order, error) {
	return f.orders.GetOrder(ctx, p, orderID)
}

func (f *PaymentFacade) Orders(ctx context.Context, p model.Principal) ([]model.Order, error) {
	return f.orders.ListOrders(ctx, p)
}

func (f *PaymentFacade) HealthCheck(ctx context.Context) error {
	return f.health.HealthCheck(ctx)
}

func (f *PaymentFacade) OrdersForReconciliation(ctx context.Context, limit int) ([]model.Order, error) {
	return f.orders.ClaimStale(ctx, limit)
}

func (f *PaymentFacade) ReconcileOrder(ctx context.Context, order model.Order) error {
	_, err := f.orders.Reconcile(ctx, order)
	return err
}
