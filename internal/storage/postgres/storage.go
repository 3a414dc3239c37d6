package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/repository"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Options tune how the storage connects on boot.
type Options struct {
	ConnectRetries int
	RetryDelay     time.Duration
}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   pgxPool
	logger *slog.Logger
	ready  atomic.Bool
}

type orderRepository struct {
	storage *Storage
}

// New connects with bounded retries, initializes the schema and marks the storage ready.
func New(ctx context.Context, dsn string, logger *slog.Logger, opts Options) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if opts.ConnectRetries <= 0 {
		opts.ConnectRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	pool, err := connect(ctx, cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	storage.ready.Store(true)

	return storage, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config, logger *slog.Logger, opts Options) (pgxPool, error) {
	var lastErr error
	for attempt := 1; attempt <= opts.ConnectRetries; attempt++ {
		pool, err := newPgxPool(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		if attempt == opts.ConnectRetries {
			break
		}
		logger.Warn("database connection failed, retrying", slog.Int("attempt", attempt), slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect db: %w", ctx.Err())
		case <-time.After(opts.RetryDelay * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("connect db: %w", lastErr)
}

// Close releases database resources and marks the storage not ready.
func (s *Storage) Close() {
	s.ready.Store(false)
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready reports whether the storage finished initialization and is not closed.
func (s *Storage) Ready() bool {
	return s.ready.Load()
}

func (s *Storage) ensureReady() error {
	if !s.Ready() {
		return domainErrors.New(domainErrors.KindNotInitialized, "storage is not initialized")
	}
	return nil
}

// Orders returns the order repository. Order numbers are allocated inside its inserts.
func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            gateway_order_id TEXT UNIQUE NOT NULL,
            receipt TEXT NOT NULL,
            customer_id TEXT NOT NULL,
            merchant_id TEXT NOT NULL,
            order_number INTEGER NOT NULL,
            amount BIGINT NOT NULL CHECK (amount > 0),
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            order_type TEXT NOT NULL,
            items JSONB NOT NULL,
            payment_id TEXT,
            payment_signature TEXT,
            amount_refunded BIGINT NOT NULL DEFAULT 0 CHECK (amount_refunded >= 0 AND amount_refunded <= amount),
            refunds JSONB NOT NULL DEFAULT '[]'::jsonb,
            refund_attempts JSONB NOT NULL DEFAULT '[]'::jsonb,
            failure_reason TEXT,
            cancellation_reason TEXT,
            cancelled_by TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            paid_at TIMESTAMPTZ,
            failed_at TIMESTAMPTZ,
            cancelled_at TIMESTAMPTZ,
            reconciled_at TIMESTAMPTZ
        )`,
		`CREATE TABLE IF NOT EXISTS customer_orders (
            customer_id TEXT NOT NULL,
            order_id TEXT NOT NULL REFERENCES orders(id),
            merchant_id TEXT NOT NULL,
            order_number INTEGER NOT NULL,
            amount BIGINT NOT NULL,
            amount_refunded BIGINT NOT NULL DEFAULT 0,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (customer_id, order_id)
        )`,
		`CREATE TABLE IF NOT EXISTS merchant_counters (
            merchant_id TEXT PRIMARY KEY,
            value INTEGER NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_reconcile ON orders(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_customer_orders_created ON customer_orders(customer_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Logger returns storage logger.
func (s *Storage) Logger() *slog.Logger {
	return s.logger
}
