package di

import (
	"go.uber.org/fx"

	"github.com/polkiloo/orderpay/internal/adapter/events"
	"github.com/polkiloo/orderpay/internal/adapter/razorpay"
	"github.com/polkiloo/orderpay/internal/app"
	"github.com/polkiloo/orderpay/internal/config"
	"github.com/polkiloo/orderpay/internal/logger"
	"github.com/polkiloo/orderpay/internal/pkg/auth"
	"github.com/polkiloo/orderpay/internal/server/http/handlers"
	"github.com/polkiloo/orderpay/internal/server/http/router"
	"github.com/polkiloo/orderpay/internal/storage/postgres"
	"github.com/polkiloo/orderpay/internal/storage/redisx"
	"github.com/polkiloo/orderpay/internal/usecase"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		auth.Module,
		postgres.Module,
		redisx.Module,
		razorpay.Module,
		events.Module,
		usecase.Module,
		fx.Provide(func(f *app.PaymentFacade) handlers.PaymentFacade { return f }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
