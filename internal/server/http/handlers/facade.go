package handlers

import (
	"context"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

// IdentityFacade resolves bearer tokens to principals.
type IdentityFacade interface {
	ParseToken(token string) (model.Principal, error)
}

// OrderFacade encapsulates order operations exposed via HTTP.
type OrderFacade interface {
	CreateOrder(ctx context.Context, p model.Principal, draft model.OrderDraft) (*model.CreatedOrder, error)
	VerifyPayment(ctx context.Context, p model.Principal, cb model.PaymentCallback) (*model.Order, error)
	FailOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error)
	CancelOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error)
	RefundOrder(ctx context.Context, p model.Principal, req model.RefundRequest) (*model.Order, error)
	Order(ctx context.Context, p model.Principal, orderID string) (*model.Order, error)
	Orders(ctx context.Context, p model.Principal) ([]model.Order, error)
}

// HealthFacade reports readiness.
type HealthFacade interface {
	HealthCheck(ctx context.Context) error
}

// PaymentFacade aggregates the full set of operations used across handlers.
type PaymentFacade interface {
	IdentityFacade
	OrderFacade
	HealthFacade
}
