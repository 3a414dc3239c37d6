package usecase

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpay/internal/adapter/events"
	"github.com/polkiloo/orderpay/internal/config"
	"github.com/polkiloo/orderpay/internal/domain/gateway"
	"github.com/polkiloo/orderpay/internal/domain/repository"
	"github.com/polkiloo/orderpay/internal/pkg/signature"
)

// Module provides core business use cases to the fx container.
var Module = fx.Provide(newOrderLifecycle)

type lifecycleParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Orders  repository.OrderRepository
	Numbers repository.OrderNumberAllocator `optional:"true"`
	Gateway gateway.PaymentGateway
	Events  events.Publisher
}

func newOrderLifecycle(p lifecycleParams) *OrderLifecycle {
	return NewOrderLifecycle(Dependencies{
		Orders:   p.Orders,
		Numbers:  p.Numbers,
		Gateway:  p.Gateway,
		Verifier: signature.NewVerifier(),
		Events:   p.Events,
	}, LifecycleConfig{
		SignatureSecret: p.Config.SignatureSecret,
		StoreTimeout:    p.Config.StoreTimeout,
		PaymentWindow:   p.Config.PaymentWindow,
		RefundRetries:   p.Config.RefundRetries,
		ReconcileGrace:  p.Config.ReconcileGrace,
	}, p.Logger)
}
