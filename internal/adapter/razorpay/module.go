package razorpay

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpay/internal/config"
	"github.com/polkiloo/orderpay/internal/domain/gateway"
)

// Module exposes the payment gateway client to fx graph.
var Module = fx.Provide(newClient)

type clientParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newClient(p clientParams) (gateway.PaymentGateway, error) {
	creds := Credentials{KeyID: p.Config.GatewayKeyID, KeySecret: p.Config.GatewayKeySecret}
	return NewHTTPClient(p.Config.GatewayBaseURL, creds, p.Config.GatewayTimeout, p.Logger)
}
