package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/gateway"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

// GatewayStub is an in-memory payment gateway. Refunds are checked against
// Captured the way the real gateway checks them.
type GatewayStub struct {
	mu  sync.Mutex
	seq int

	CreateFn   func(context.Context, int64, string, string, map[string]string) (*model.GatewayOrder, error)
	FetchFn    func(context.Context, string) (*model.GatewayPayment, error)
	PaymentsFn func(context.Context, string) ([]model.GatewayPayment, error)
	RefundFn   func(context.Context, string, int64, model.RefundSpeed, map[string]string) (*model.GatewayRefund, error)

	Payments      map[string]model.GatewayPayment
	OrderPayments map[string][]model.GatewayPayment
	Captured      map[string]int64
	refunded      map[string]int64

	CreateCalls int
	RefundCalls int
	LastNotes   map[string]string
	LastReceipt string
}

// CreateOrder returns a fresh gateway order id.
func (g *GatewayStub) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*model.GatewayOrder, error) {
	g.mu.Lock()
	g.CreateCalls++
	g.LastNotes = notes
	g.LastReceipt = receipt
	g.seq++
	seq := g.seq
	g.mu.Unlock()

	if g.CreateFn != nil {
		return g.CreateFn(ctx, amount, currency, receipt, notes)
	}
	return &model.GatewayOrder{
		ID:       fmt.Sprintf("order_gw%d", seq),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	}, nil
}

// FetchPayment returns the configured payment.
func (g *GatewayStub) FetchPayment(ctx context.Context, paymentID string) (*model.GatewayPayment, error) {
	if g.FetchFn != nil {
		return g.FetchFn(ctx, paymentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.Payments[paymentID]
	if !ok {
		return nil, domainErrors.Gateway(false, 0, nil, "payment %s does not exist", paymentID)
	}
	return &p, nil
}

// FetchOrderPayments returns the payments configured for the gateway order.
func (g *GatewayStub) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]model.GatewayPayment, error) {
	if g.PaymentsFn != nil {
		return g.PaymentsFn(ctx, gatewayOrderID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.GatewayPayment(nil), g.OrderPayments[gatewayOrderID]...), nil
}

// IssueRefund accepts a refund while the captured amount allows it.
func (g *GatewayStub) IssueRefund(ctx context.Context, paymentID string, amount int64, speed model.RefundSpeed, notes map[string]string) (*model.GatewayRefund, error) {
	g.mu.Lock()
	g.RefundCalls++
	g.LastNotes = notes
	g.mu.Unlock()

	if g.RefundFn != nil {
		return g.RefundFn(ctx, paymentID, amount, speed, notes)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refunded == nil {
		g.refunded = make(map[string]int64)
	}
	if captured, ok := g.Captured[paymentID]; ok && g.refunded[paymentID]+amount > captured {
		return nil, domainErrors.Gateway(false, 0, nil, "gateway rejected the request: refund amount exceeds captured amount")
	}
	g.refunded[paymentID] += amount
	g.seq++
	return &model.GatewayRefund{
		ID:        RandomGatewayID("rfnd"),
		PaymentID: paymentID,
		Amount:    amount,
		Status:    "processed",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}, nil
}

// Refunded returns the total the stub accepted for paymentID.
func (g *GatewayStub) Refunded(paymentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[paymentID]
}

var _ gateway.PaymentGateway = (*GatewayStub)(nil)
