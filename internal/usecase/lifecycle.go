package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polkiloo/orderpay/internal/adapter/events"
	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/gateway"
	"github.com/polkiloo/orderpay/internal/domain/model"
	"github.com/polkiloo/orderpay/internal/domain/repository"
	"github.com/polkiloo/orderpay/internal/pkg/signature"
)

const (
	defaultStoreTimeout   = 5 * time.Second
	defaultPaymentWindow  = 30 * time.Minute
	defaultRefundRetries  = 3
	defaultReconcileGrace = 2 * time.Minute

	defaultFailReason   = "Payment failed"
	defaultCancelReason = "User requested cancellation"
	windowExpiredReason = "payment window expired"
)

// SignatureVerifier validates gateway callback signatures.
type SignatureVerifier interface {
	Verify(payload, provided, secret string) (bool, error)
}

// LifecycleConfig tunes OrderLifecycle.
type LifecycleConfig struct {
	SignatureSecret string
	StoreTimeout    time.Duration
	PaymentWindow   time.Duration
	RefundRetries   int
	ReconcileGrace  time.Duration
}

// Dependencies groups the collaborators of OrderLifecycle.
type Dependencies struct {
	Orders repository.OrderRepository
	// Numbers reserves order numbers outside the store. When nil the store assigns
	// them inside its insert.
	Numbers  repository.OrderNumberAllocator
	Gateway  gateway.PaymentGateway
	Verifier SignatureVerifier
	Events   events.Publisher
}

// OrderLifecycle is the order state machine.
type OrderLifecycle struct {
	orders   repository.OrderRepository
	numbers  repository.OrderNumberAllocator
	gateway  gateway.PaymentGateway
	verifier SignatureVerifier
	events   events.Publisher
	cfg      LifecycleConfig
	logger   *slog.Logger

	now        func() time.Time
	newReceipt func() string
}

// NewOrderLifecycle constructs OrderLifecycle.
func NewOrderLifecycle(deps Dependencies, cfg LifecycleConfig, logger *slog.Logger) *OrderLifecycle {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = defaultPaymentWindow
	}
	if cfg.RefundRetries <= 0 {
		cfg.RefundRetries = defaultRefundRetries
	}
	if cfg.ReconcileGrace <= 0 {
		cfg.ReconcileGrace = defaultReconcileGrace
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	return &OrderLifecycle{
		orders:     deps.Orders,
		numbers:    deps.Numbers,
		gateway:    deps.Gateway,
		verifier:   deps.Verifier,
		events:     deps.Events,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		newReceipt: newReceipt,
	}
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateOrder registers a gateway order and persists it with a fresh order number.
// The number is either taken by the store in the insert itself or reserved from the
// external allocator and released again when the insert fails.
func (l *OrderLifecycle) CreateOrder(ctx context.Context, p model.Principal, in model.OrderDraft) (*model.CreatedOrder, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	in, err := normalizeCreateInput(in)
	if err != nil {
		return nil, err
	}

	receipt := l.newReceipt()
	notes := map[string]string{
		"merchant_id": in.MerchantID,
		"customer_id": p.ID,
		"order_type":  string(in.OrderType),
	}
	remote, err := l.gateway.CreateOrder(ctx, in.Amount, in.Currency, receipt, notes)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		GatewayOrderID: remote.ID,
		Receipt:        receipt,
		CustomerID:     p.ID,
		MerchantID:     in.MerchantID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Status:         model.OrderStatusCreated,
		Type:           in.OrderType,
		Items:          in.Items,
	}

	if err := ctx.Err(); err != nil {
		return nil, l.partialFailure(order, "create order", err)
	}

	wctx, cancel := l.writeContext(ctx)
	defer cancel()

	if l.numbers != nil {
		number, err := l.numbers.Allocate(wctx, in.MerchantID)
		if err != nil {
			return nil, l.partialFailure(order, "allocate order number", err)
		}
		order.Number = number
	}

	if _, err := l.orders.Insert(wctx, order); err != nil {
		l.releaseNumber(wctx, order)
		return nil, l.partialFailure(order, "insert order", err)
	}

	l.logger.Info("order created",
		slog.String("order_id", order.ID),
		slog.String("gateway_order_id", order.GatewayOrderID),
		slog.String("merchant_id", order.MerchantID),
		slog.Int("order_number", order.Number),
	)
	l.publish(ctx, model.EventOrderCreated, order)

	return &model.CreatedOrder{Order: order, GatewayOrder: remote}, nil
}

// VerifyPayment marks the order paid once the callback signature and the captured payment check out.
func (l *OrderLifecycle) VerifyPayment(ctx context.Context, p model.Principal, in model.PaymentCallback) (*model.Order, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, domainErrors.Validation("gateway order id, payment id and signature are required")
	}

	payload := signature.CanonicalPayload(in.GatewayOrderID, in.GatewayPaymentID)
	ok, err := l.verifier.Verify(payload, in.Signature, l.cfg.SignatureSecret)
	if err != nil {
		l.logger.Error("payment signature cannot be verified", slog.Any("error", err))
		return nil, err
	}
	if !ok {
		l.logger.Warn("invalid payment signature",
			slog.String("gateway_order_id", in.GatewayOrderID),
			slog.String("payment_id", in.GatewayPaymentID),
			slog.String("principal_id", p.ID),
		)
		return nil, domainErrors.New(domainErrors.KindInvalidSignature, "payment signature is invalid")
	}

	payment, err := l.gateway.FetchPayment(ctx, in.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if payment.OrderID != "" && payment.OrderID != in.GatewayOrderID {
		return nil, domainErrors.Validation("payment does not belong to the order")
	}
	if payment.Status != model.PaymentStatusCaptured {
		return nil, domainErrors.PaymentNotCaptured(string(payment.Status))
	}

	order, err := l.findByGatewayOrderID(ctx, in.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) {
		return nil, domainErrors.New(domainErrors.KindForbidden, "order belongs to another customer")
	}
	if order.Status == model.OrderStatusPaid && order.PaymentID == in.GatewayPaymentID {
		return order, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, aborted(err)
	}

	patch := model.OrderPatch{
		Status:           model.OrderStatusPaid,
		PaymentID:        in.GatewayPaymentID,
		PaymentSignature: in.Signature,
	}
	updated, err := l.transition(ctx, order.ID, model.OrderStatusCreated, patch)
	if errors.Is(err, domainErrors.ErrConflict) {
		current, ferr := l.findByID(ctx, order.ID)
		if ferr != nil {
			return nil, ferr
		}
		if current.Status == model.OrderStatusPaid && current.PaymentID == in.GatewayPaymentID {
			return current, nil
		}
		return nil, domainErrors.InvalidTransition(string(current.Status), string(model.OrderStatusPaid))
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment verified",
		slog.String("order_id", updated.ID),
		slog.String("gateway_order_id", updated.GatewayOrderID),
		slog.String("payment_id", updated.PaymentID),
	)
	l.publish(ctx, model.EventOrderPaid, updated)
	return updated, nil
}

// CancelOrder cancels an unpaid order.
func (l *OrderLifecycle) CancelOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error) {
	if reason == "" {
		reason = defaultCancelReason
	}
	patch := model.OrderPatch{
		Status:             model.OrderStatusCancelled,
		CancellationReason: reason,
		CancelledBy:        p.ID,
	}
	order, err := l.closeUnpaid(ctx, p, orderID, patch)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FailOrder records that the customer's payment attempt failed.
func (l *OrderLifecycle) FailOrder(ctx context.Context, p model.Principal, orderID, reason string) (*model.Order, error) {
	if reason == "" {
		reason = defaultFailReason
	}
	patch := model.OrderPatch{
		Status:        model.OrderStatusFailed,
		FailureReason: reason,
	}
	return l.closeUnpaid(ctx, p, orderID, patch)
}

// closeUnpaid moves a created order to the terminal status of patch.
func (l *OrderLifecycle) closeUnpaid(ctx context.Context, p model.Principal, orderID string, patch model.OrderPatch) (*model.Order, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	order, err := l.findByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) && !order.ManagedBy(p) {
		return nil, domainErrors.New(domainErrors.KindForbidden, "order belongs to another customer")
	}
	if order.Status == patch.Status {
		return order, nil
	}
	if order.Status != model.OrderStatusCreated {
		return nil, closeRejected(order.Status, patch.Status)
	}
	if err := ctx.Err(); err != nil {
		return nil, aborted(err)
	}

	updated, err := l.transition(ctx, order.ID, model.OrderStatusCreated, patch)
	if errors.Is(err, domainErrors.ErrConflict) {
		current, ferr := l.findByID(ctx, order.ID)
		if ferr != nil {
			return nil, ferr
		}
		if current.Status == patch.Status {
			return current, nil
		}
		return nil, closeRejected(current.Status, patch.Status)
	}
	if err != nil {
		return nil, err
	}

	eventType := model.EventOrderCancelled
	if patch.Status == model.OrderStatusFailed {
		eventType = model.EventOrderFailed
	}
	l.logger.Info("order closed",
		slog.String("order_id", updated.ID),
		slog.String("status", string(updated.Status)),
		slog.String("principal_id", p.ID),
	)
	l.publish(ctx, eventType, updated)
	return updated, nil
}

func closeRejected(current, target model.OrderStatus) error {
	if current == model.OrderStatusPaid || current == model.OrderStatusPartiallyRefunded {
		return domainErrors.New(domainErrors.KindInvalidTransition,
			"order is already paid and cannot be %s; issue a refund instead", target)
	}
	if current.Terminal() {
		return domainErrors.New(domainErrors.KindInvalidTransition,
			"order is already %s and is closed; it cannot be %s", current, target)
	}
	return domainErrors.InvalidTransition(string(current), string(target))
}

// RefundOrder refunds part or all of a captured payment.
func (l *OrderLifecycle) RefundOrder(ctx context.Context, p model.Principal, in model.RefundRequest) (*model.Order, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	speed, err := normalizeRefundInput(&in)
	if err != nil {
		return nil, err
	}

	order, err := l.findByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.ManagedBy(p) {
		return nil, domainErrors.New(domainErrors.KindForbidden, "only the merchant or an admin may refund this order")
	}
	if err := checkRefundable(order, in.Amount); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, aborted(err)
	}

	notes := map[string]string{
		"reason":       in.Reason,
		"order_id":     order.ID,
		"initiated_by": p.ID,
	}
	refund, err := l.gateway.IssueRefund(ctx, order.PaymentID, in.Amount, speed, notes)
	if err != nil {
		status := model.RefundAttemptFailed
		if errors.Is(err, domainErrors.ErrUnknownOutcome) {
			status = model.RefundAttemptUnknown
		}
		l.recordRefundAttempt(ctx, order, model.RefundAttempt{
			Amount: in.Amount,
			Error:  err.Error(),
			Status: status,
		})
		return nil, err
	}

	amount := in.Amount
	if refund.Amount > 0 {
		amount = refund.Amount
	}
	record := model.RefundRecord{
		RefundID:  refund.ID,
		Amount:    amount,
		Status:    refund.Status,
		CreatedAt: refund.CreatedAt,
		Reason:    in.Reason,
		Speed:     speed,
	}

	updated, err := l.applyRefund(ctx, order, record)
	if err != nil {
		l.recordRefundAttempt(ctx, order, model.RefundAttempt{
			Amount:   amount,
			RefundID: refund.ID,
			Error:    err.Error(),
			Status:   model.RefundAttemptUnrecorded,
		})
		return nil, l.partialFailure(order, "record refund "+refund.ID, err)
	}

	l.logger.Info("order refunded",
		slog.String("order_id", updated.ID),
		slog.String("refund_id", refund.ID),
		slog.Int64("amount", amount),
		slog.Int64("amount_refunded", updated.AmountRefunded),
	)
	l.publish(ctx, model.EventOrderRefunded, updated)
	return updated, nil
}

// applyRefund stores record keyed on the last observed amount_refunded, re-reading on conflict.
func (l *OrderLifecycle) applyRefund(ctx context.Context, order *model.Order, record model.RefundRecord) (*model.Order, error) {
	current := order
	var lastErr error
	for attempt := 0; attempt < l.cfg.RefundRetries; attempt++ {
		if err := checkRefundable(current, record.Amount); err != nil {
			return nil, err
		}
		total := current.AmountRefunded + record.Amount
		status := model.OrderStatusPartiallyRefunded
		if total == current.Amount {
			status = model.OrderStatusRefunded
		}

		wctx, cancel := l.writeContext(ctx)
		updated, err := l.orders.ApplyRefund(wctx, current.ID, current.AmountRefunded, record, status)
		cancel()
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domainErrors.ErrConflict) {
			return nil, err
		}
		lastErr = err

		rctx, cancel := l.writeContext(ctx)
		current, err = l.orders.FindByID(rctx, order.ID)
		cancel()
		if err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func checkRefundable(order *model.Order, amount int64) error {
	if !order.Status.Refundable() {
		return domainErrors.InvalidTransition(string(order.Status), string(model.OrderStatusRefunded))
	}
	if order.PaymentID == "" {
		return domainErrors.New(domainErrors.KindInvalidTransition, "order has no captured payment to refund")
	}
	if amount > order.Refundable() {
		return domainErrors.New(domainErrors.KindRefundExceedsCaptured,
			"refund of %d exceeds the remaining refundable amount %d", amount, order.Refundable())
	}
	return nil
}

func (l *OrderLifecycle) recordRefundAttempt(ctx context.Context, order *model.Order, attempt model.RefundAttempt) {
	attempt.Timestamp = l.now().UTC()
	wctx, cancel := l.writeContext(ctx)
	defer cancel()
	if err := l.orders.AppendRefundAttempt(wctx, order.ID, attempt); err != nil {
		l.logger.Error("refund attempt could not be recorded",
			slog.String("order_id", order.ID),
			slog.String("payment_id", order.PaymentID),
			slog.Int64("amount", attempt.Amount),
			slog.String("refund_id", attempt.RefundID),
			slog.String("attempt_status", attempt.Status),
			slog.String("attempt_error", attempt.Error),
			slog.Any("error", err),
		)
	}
}

// GetOrder returns an order visible to the principal.
func (l *OrderLifecycle) GetOrder(ctx context.Context, p model.Principal, orderID string) (*model.Order, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	order, err := l.findByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) && !order.ManagedBy(p) {
		return nil, domainErrors.New(domainErrors.KindForbidden, "order belongs to another customer")
	}
	return order, nil
}

// ListOrders returns the principal's order history, newest first.
func (l *OrderLifecycle) ListOrders(ctx context.Context, p model.Principal) ([]model.Order, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	return l.orders.ListByCustomer(rctx, p.ID)
}

func (l *OrderLifecycle) findByID(ctx context.Context, orderID string) (*model.Order, error) {
	if orderID == "" {
		return nil, domainErrors.Validation("orderId is required")
	}
	rctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	return l.orders.FindByID(rctx, orderID)
}

func (l *OrderLifecycle) findByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	rctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	return l.orders.FindByGatewayOrderID(rctx, gatewayOrderID)
}

func (l *OrderLifecycle) transition(ctx context.Context, orderID string, expected model.OrderStatus, patch model.OrderPatch) (*model.Order, error) {
	if !model.CanTransition(expected, patch.Status) {
		return nil, domainErrors.InvalidTransition(string(expected), string(patch.Status))
	}
	wctx, cancel := l.writeContext(ctx)
	defer cancel()
	return l.orders.ConditionalUpdate(wctx, orderID, expected, patch)
}

// writeContext detaches from the request so an issued write is never aborted halfway.
func (l *OrderLifecycle) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.cfg.StoreTimeout)
}

func (l *OrderLifecycle) releaseNumber(ctx context.Context, order *model.Order) {
	if l.numbers == nil || order.Number == 0 {
		return
	}
	if err := l.numbers.Release(ctx, order.MerchantID, order.Number); err != nil {
		l.logger.Warn("order number not released",
			slog.String("merchant_id", order.MerchantID),
			slog.Int("order_number", order.Number),
			slog.Any("error", err),
		)
	}
}

func (l *OrderLifecycle) partialFailure(order *model.Order, step string, cause error) error {
	l.logger.Error("remote side effect not recorded locally",
		slog.String("step", step),
		slog.String("order_id", order.ID),
		slog.String("gateway_order_id", order.GatewayOrderID),
		slog.String("merchant_id", order.MerchantID),
		slog.Int64("amount", order.Amount),
		slog.Any("error", cause),
	)
	return domainErrors.Wrap(domainErrors.KindPartialFailure, cause,
		"payment gateway accepted the request but it could not be recorded; it will be reconciled manually")
}

func (l *OrderLifecycle) publish(ctx context.Context, eventType string, order *model.Order) {
	pctx, cancel := l.writeContext(ctx)
	defer cancel()
	if err := l.events.Publish(pctx, model.NewOrderEvent(eventType, order)); err != nil {
		l.logger.Warn("order event not published",
			slog.String("type", eventType),
			slog.String("order_id", order.ID),
			slog.Any("error", err),
		)
	}
}

func requirePrincipal(p model.Principal) error {
	if p.ID == "" {
		return domainErrors.New(domainErrors.KindAuth, "authentication required")
	}
	return nil
}

func aborted(err error) error {
	return fmt.Errorf("request aborted before any change was made: %w", err)
}
