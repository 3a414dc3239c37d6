package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/polkiloo/orderpay/internal/config"
)

const serviceName = "orderpay"

// New creates a preconfigured slog.Logger honouring the configured level.
func New(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = cfg.LogLevel
	}
	return newWithWriter(os.Stdout, level)
}

func newWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("service", serviceName))
}
