package repository

import (
	"context"
	"time"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

// OrderRepository persists order records together with their per-customer history copy.
type OrderRepository interface {
	// Insert assigns a fresh id and stores the order and its history copy atomically.
	// When order.Number is zero the next per-merchant number is taken in the same write,
	// so a failed insert leaves the counter untouched.
	Insert(ctx context.Context, order *model.Order) (string, error)
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	// ConditionalUpdate applies patch only while the stored status equals expected.
	ConditionalUpdate(ctx context.Context, orderID string, expected model.OrderStatus, patch model.OrderPatch) (*model.Order, error)
	// ApplyRefund appends refund and sets the new totals only while amount_refunded equals expectedRefunded.
	ApplyRefund(ctx context.Context, orderID string, expectedRefunded int64, refund model.RefundRecord, status model.OrderStatus) (*model.Order, error)
	AppendRefundAttempt(ctx context.Context, orderID string, attempt model.RefundAttempt) error
	ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error)
	// ClaimForReconciliation returns created orders older than createdBefore that were not
	// claimed since claimedBefore, marking them claimed.
	ClaimForReconciliation(ctx context.Context, createdBefore, claimedBefore time.Time, limit int) ([]model.Order, error)
}
