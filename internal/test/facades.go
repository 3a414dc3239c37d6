package test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

// OrderFacadeStub provides controllable behaviour for order endpoints.
type OrderFacadeStub struct {
	CreateFn func(context.Context, model.Principal, model.OrderDraft) (*model.CreatedOrder, error)
	VerifyFn func(context.Context, model.Principal, model.PaymentCallback) (*model.Order, error)
	FailFn   func(context.Context, model.Principal, string, string) (*model.Order, error)
	CancelFn func(context.Context, model.Principal, string, string) (*model.Order, error)
	RefundFn func(context.Context, model.Principal, model.RefundRequest) (*model.Order, error)
	OrderFn  func(context.Context, model.Principal, string) (*model.Order, error)
	OrdersFn func(context.Context, model.Principal) ([]model.Order, error)
}

// CreateOrder delegates to CreateFn or echoes the draft back as a created order.
func (s OrderFacadeStub) CreateOrder(ctx context.Context, p model.Principal, draft model.OrderDraft) (*model.CreatedOrder, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, p, draft)
	}
	return &model.CreatedOrder{
		Order: &model.Order{
			ID: "order-1", GatewayOrderID: "order_gw1", CustomerID: p.ID, MerchantID: draft.MerchantID,
			Number: 100, Amount: draft.Amount, Currency: draft.Currency, Status: model.OrderStatusCreated,
		},
		GatewayOrder: &model.GatewayOrder{ID: "order_gw1", Amount: draft.Amount, Currency: draft.Currency},
	}, nil
}

// VerifyPayment delegates to VerifyFn or returns a paid order.
func (s OrderFacadeStub) VerifyPayment(ctx context.Context, p model.Principal, cb model.PaymentCallback) (*model.Order, error) {
	if s.VerifyFn != nil {
		return s.VerifyFn(ctx, p, cb)
	}
	return &model.Order{ID: "order-1", GatewayOrderID: cb.GatewayOrderID, PaymentID: cb.GatewayPaymentID, Status: model.OrderStatusPaid}, nil
}

// FailOrder delegates to FailFn or returns a failed order.
func (s OrderFacadeStub) FailOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error) {
	if s.FailFn != nil {
		return s.FailFn(ctx, p, orderID, reason)
	}
	return &model.Order{ID: orderID, Status: model.OrderStatusFailed, FailureReason: reason}, nil
}

// CancelOrder delegates to CancelFn or returns a cancelled order.
func (s OrderFacadeStub) CancelOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error) {
	if s.CancelFn != nil {
		return s.CancelFn(ctx, p, orderID, reason)
	}
	return &model.Order{ID: orderID, Status: model.OrderStatusCancelled, CancellationReason: reason, CancelledBy: p.ID}, nil
}

// RefundOrder delegates to RefundFn or returns a partially refunded order.
func (s OrderFacadeStub) RefundOrder(ctx context.Context, p model.Principal, req model.RefundRequest) (*model.Order, error) {
	if s.RefundFn != nil {
		return s.RefundFn(ctx, p, req)
	}
	return &model.Order{
		ID: req.OrderID, Amount: req.Amount * 2, AmountRefunded: req.Amount, Status: model.OrderStatusPartiallyRefunded,
		Refunds: []model.RefundRecord{{RefundID: "rfnd_1", Amount: req.Amount, Reason: req.Reason, Speed: req.Speed}},
	}, nil
}

// Order delegates to OrderFn or returns a created order.
func (s OrderFacadeStub) Order(ctx context.Context, p model.Principal, orderID string) (*model.Order, error) {
	if s.OrderFn != nil {
		return s.OrderFn(ctx, p, orderID)
	}
	return &model.Order{ID: orderID, CustomerID: p.ID, Status: model.OrderStatusCreated}, nil
}

// Orders returns predefined orders for the principal.
func (s OrderFacadeStub) Orders(ctx context.Context, p model.Principal) ([]model.Order, error) {
	if s.OrdersFn != nil {
		return s.OrdersFn(ctx, p)
	}
	return []model.Order{{ID: "order-1", CustomerID: p.ID, Status: model.OrderStatusCreated}}, nil
}

// HealthFacadeStub reports the configured readiness error.
type HealthFacadeStub struct {
	Err error
}

// HealthCheck returns Err.
func (s HealthFacadeStub) HealthCheck(context.Context) error {
	return s.Err
}

// PaymentFacadeStub aggregates facade dependencies for HTTP layer tests.
type PaymentFacadeStub struct {
	TokenParserStub
	OrderFacadeStub
	HealthFacadeStub
}

// ReconcileCall captures a reconciliation request.
type ReconcileCall struct {
	OrderID string
	At      time.Time
}

// ReconcilerFacadeStub emulates the reconciliation facade used by the worker.
type ReconcilerFacadeStub struct {
	mu sync.Mutex

	Orders      [][]model.Order
	OrdersFn    func(context.Context, int) ([]model.Order, error)
	ReconcileFn func(context.Context, model.Order) error
	Calls       []ReconcileCall

	ordersCallCount int32
}

// Lock exposes internal mutex for external synchronization.
func (s *ReconcilerFacadeStub) Lock() { s.mu.Lock() }

// Unlock releases previously acquired lock.
func (s *ReconcilerFacadeStub) Unlock() { s.mu.Unlock() }

// OrdersForReconciliation returns batches from configured queue.
func (s *ReconcilerFacadeStub) OrdersForReconciliation(ctx context.Context, limit int) ([]model.Order, error) {
	if s.OrdersFn != nil {
		return s.OrdersFn(ctx, limit)
	}
	call := atomic.AddInt32(&s.ordersCallCount, 1)
	if int(call) <= len(s.Orders) {
		return s.Orders[call-1], nil
	}
	return nil, nil
}

// ReconcileOrder records the call and delegates to ReconcileFn.
func (s *ReconcilerFacadeStub) ReconcileOrder(ctx context.Context, order model.Order) error {
	s.mu.Lock()
	s.Calls = append(s.Calls, ReconcileCall{OrderID: order.ID, At: time.Now()})
	s.mu.Unlock()
	if s.ReconcileFn != nil {
		return s.ReconcileFn(ctx, order)
	}
	return nil
}

// CallCount returns the number of reconcile calls so far.
func (s *ReconcilerFacadeStub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
