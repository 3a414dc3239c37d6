package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
)

const (
	exitStartFailed = 1
	exitStopFailed  = 2
)

// run blocks until a signal arrives or the graph asks to shut down, then stops the
// application within its stop timeout.
func run(ctx context.Context, app *fx.App) {
	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "orderpay: start: %v\n", err)
		os.Exit(exitStartFailed)
	}

	select {
	case <-ctx.Done():
	case sig := <-app.Done():
		fmt.Fprintf(os.Stderr, "orderpay: received %v\n", sig)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "orderpay: stop: %v\n", err)
		os.Exit(exitStopFailed)
	}
}
