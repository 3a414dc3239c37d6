package gateway

import (
	"context"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

// PaymentGateway wraps the remote payment provider. Calls are never retried internally.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*model.GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*model.GatewayPayment, error)
	FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]model.GatewayPayment, error)
	IssueRefund(ctx context.Context, paymentID string, amount int64, speed model.RefundSpeed, notes map[string]string) (*model.GatewayRefund, error)
}
