package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

// ReconcileFacade exposes the subset of application functionality required by the worker.
type ReconcileFacade interface {
	OrdersForReconciliation(ctx context.Context, limit int) ([]model.Order, error)
	ReconcileOrder(ctx context.Context, order model.Order) error
}

// Reconciler periodically settles created orders against the gateway using a worker pool.
type Reconciler struct {
	facade       ReconcileFacade
	pollInterval time.Duration
	batchSize    int
	workers      int
	logger       *slog.Logger

	jobs   chan model.Order
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewReconciler constructs the reconciliation worker pool.
func NewReconciler(facade ReconcileFacade, pollInterval time.Duration, batchSize, workers int, logger *slog.Logger) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Reconciler{
		facade:       facade,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		workers:      workers,
		logger:       logger,
		jobs:         make(chan model.Order, batchSize*workers),
	}
}

// Start launches background processing. Only Stop ends it; cancelling ctx does not.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx)
	}

	r.wg.Add(1)
	go r.dispatch(runCtx)
}

// Stop waits for all workers to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Reconciler) dispatch(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.jobs)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.fetchAndDispatch(ctx)
		}
	}
}

func (r *Reconciler) fetchAndDispatch(ctx context.Context) {
	orders, err := r.facade.OrdersForReconciliation(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("claim orders for reconciliation failed", slog.String("error", err.Error()))
		return
	}
	for _, order := range orders {
		select {
		case <-ctx.Done():
			return
		case r.jobs <- order:
		}
	}
}

func (r *Reconciler) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-r.jobs:
			if !ok {
				return
			}
			r.handleOrder(ctx, order)
		}
	}
}

func (r *Reconciler) handleOrder(ctx context.Context, order model.Order) {
	err := r.facade.ReconcileOrder(ctx, order)
	if err == nil {
		return
	}

	if domainErrors.IsRetryable(err) {
		if delay := domainErrors.RetryDelay(err); delay > 0 {
			r.logger.Warn("gateway rate limited", slog.Duration("retry_after", delay))
			pause(ctx, delay)
			return
		}
		r.logger.Warn("reconcile order deferred",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Error("reconcile order failed",
		slog.String("order_id", order.ID),
		slog.String("gateway_order_id", order.GatewayOrderID),
		slog.String("error", err.Error()),
	)
}

func pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
