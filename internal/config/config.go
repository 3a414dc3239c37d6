package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress  string
	DatabaseURI string
	LogLevel    slog.Level

	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	SignatureSecret  string
	GatewayTimeout   time.Duration

	JWTSecret string

	RedisAddress string
	KafkaBrokers []string
	KafkaTopic   string

	StoreTimeout      time.Duration
	DBConnectRetries  int
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
	ReconcileBatch    int
	RefundRetries     int
	WorkerPoolSize    int
	PaymentWindow     time.Duration
	ShutdownTimeout   time.Duration
}

const (
	defaultRunAddress        = ":8080"
	defaultGatewayBaseURL    = "https://api.razorpay.com"
	defaultJWTSecret         = "change-me-in-production"
	defaultKafkaTopic        = "orders.lifecycle"
	defaultGatewayTimeout    = 10 * time.Second
	defaultStoreTimeout      = 5 * time.Second
	defaultDBConnectRetries  = 3
	defaultReconcileInterval = 30 * time.Second
	defaultReconcileBatch    = 32
	defaultRefundRetries     = 3
	defaultWorkerPoolSize    = 4
	defaultPaymentWindow     = 30 * time.Minute
	defaultShutdownTimeout   = 10 * time.Second
)

// Load reads .env (without overriding the environment), then flags and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:        getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:       getString(lookup, "DATABASE_URI", ""),
		GatewayBaseURL:    getString(lookup, "RAZORPAY_BASE_URL", defaultGatewayBaseURL),
		GatewayKeyID:      getString(lookup, "RAZORPAY_KEY_ID", ""),
		GatewayKeySecret:  getString(lookup, "RAZORPAY_KEY_SECRET", ""),
		SignatureSecret:   getString(lookup, "RAZORPAY_WEBHOOK_SECRET", ""),
		GatewayTimeout:    getDuration(lookup, "GATEWAY_TIMEOUT", defaultGatewayTimeout),
		JWTSecret:         getString(lookup, "JWT_SECRET", defaultJWTSecret),
		RedisAddress:      getString(lookup, "REDIS_ADDRESS", ""),
		KafkaBrokers:      splitCSV(getString(lookup, "KAFKA_BROKERS", "")),
		KafkaTopic:        getString(lookup, "KAFKA_TOPIC", defaultKafkaTopic),
		StoreTimeout:      getDuration(lookup, "STORE_TIMEOUT", defaultStoreTimeout),
		DBConnectRetries:  getInt(lookup, "DB_CONNECT_RETRIES", defaultDBConnectRetries),
		ReconcileInterval: getDuration(lookup, "RECONCILE_INTERVAL", defaultReconcileInterval),
		ReconcileGrace:    getDuration(lookup, "RECONCILE_GRACE", 0),
		ReconcileBatch:    getInt(lookup, "RECONCILE_BATCH", defaultReconcileBatch),
		RefundRetries:     getInt(lookup, "REFUND_RETRIES", defaultRefundRetries),
		WorkerPoolSize:    getInt(lookup, "WORKER_POOL_SIZE", defaultWorkerPoolSize),
		PaymentWindow:     getDuration(lookup, "PAYMENT_WINDOW", defaultPaymentWindow),
		ShutdownTimeout:   getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}

	fset := flag.NewFlagSet("orderpay", flag.ContinueOnError)
	fset.SetOutput(io.Discard)

	var (
		logLevelStr          = getString(lookup, "LOG_LEVEL", "info")
		reconcileIntervalStr = cfg.ReconcileInterval.String()
		shutdownTimeoutStr   = cfg.ShutdownTimeout.String()
		kafkaBrokersStr      = strings.Join(cfg.KafkaBrokers, ",")
	)

	fset.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fset.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fset.StringVar(&cfg.GatewayBaseURL, "gateway-url", cfg.GatewayBaseURL, "Payment gateway base URL")
	fset.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Secret for verifying bearer tokens")
	fset.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, "Redis address for order number counters")
	fset.StringVar(&kafkaBrokersStr, "kafka-brokers", kafkaBrokersStr, "Comma separated Kafka brokers")
	fset.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level (debug, info, warn, error)")
	fset.IntVar(&cfg.WorkerPoolSize, "worker-pool", cfg.WorkerPoolSize, "Number of concurrent reconciliation workers")
	fset.IntVar(&cfg.ReconcileBatch, "reconcile-batch", cfg.ReconcileBatch, "Maximum orders per reconciliation batch")
	fset.IntVar(&cfg.RefundRetries, "refund-retries", cfg.RefundRetries, "Ledger re-reads after a concurrent refund")
	fset.StringVar(&reconcileIntervalStr, "reconcile-interval", reconcileIntervalStr, "Interval between reconciliation polls")
	fset.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")

	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.ReconcileInterval, err = time.ParseDuration(reconcileIntervalStr); err != nil {
		return nil, fmt.Errorf("invalid reconcile interval: %w", err)
	}

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(logLevelStr)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	cfg.KafkaBrokers = splitCSV(kafkaBrokersStr)

	if secretFile, ok := lookup("JWT_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt secret file: %w", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(content))
	}

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}

	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = defaultReconcileBatch
	}

	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}

	if cfg.ReconcileGrace <= 0 {
		cfg.ReconcileGrace = cfg.ReconcileInterval
	}

	if cfg.RefundRetries <= 0 {
		cfg.RefundRetries = defaultRefundRetries
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}

	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}

	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = defaultPaymentWindow
	}

	if cfg.DBConnectRetries <= 0 {
		cfg.DBConnectRetries = defaultDBConnectRetries
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	if cfg.GatewayKeyID == "" || cfg.GatewayKeySecret == "" {
		return nil, fmt.Errorf("gateway key id and secret must be provided")
	}

	return cfg, nil
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
