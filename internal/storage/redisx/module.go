package redisx

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpay/internal/config"
	"github.com/polkiloo/orderpay/internal/domain/repository"
)

// Module provides the order number allocator. Without a Redis address it provides nil and
// PostgreSQL assigns numbers inside the order insert transaction.
var Module = fx.Provide(newAllocator)

type allocatorParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

func newAllocator(p allocatorParams) repository.OrderNumberAllocator {
	if p.Config.RedisAddress == "" {
		p.Logger.Info("order numbers allocated by postgres inside the insert transaction")
		return nil
	}

	client := New(p.Config.RedisAddress)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	p.Logger.Info("order numbers allocated by redis", slog.String("address", p.Config.RedisAddress))
	return NewAllocator(client)
}
