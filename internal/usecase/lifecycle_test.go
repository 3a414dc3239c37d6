package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
	"github.com/polkiloo/orderpay/internal/pkg/signature"
	"github.com/polkiloo/orderpay/internal/test"
)

const webhookSecret = "whsec_test"

var (
	customer = model.Principal{ID: "cust-1", Email: "cust@example.com"}
	merchant = model.Principal{ID: "merchant-1"}
	stranger = model.Principal{ID: "cust-2"}
)

type fixture struct {
	store   *test.OrderStoreStub
	counter *test.CounterStub
	gateway *test.GatewayStub
	events  *test.PublisherStub
	logs    *syncBuffer
	lc      *OrderLifecycle
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newFixture lets the store assign order numbers inside its insert.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, false)
}

// newReservingFixture reserves order numbers through the counter before the insert.
func newReservingFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, true)
}

func buildFixture(t *testing.T, reserving bool) *fixture {
	t.Helper()
	f := &fixture{
		store:   test.NewOrderStoreStub(),
		counter: &test.CounterStub{},
		gateway: &test.GatewayStub{
			Payments: make(map[string]model.GatewayPayment),
			Captured: make(map[string]int64),
		},
		events: &test.PublisherStub{},
		logs:   &syncBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	deps := Dependencies{
		Orders:   f.store,
		Gateway:  f.gateway,
		Verifier: signature.NewVerifier(),
		Events:   f.events,
	}
	if reserving {
		deps.Numbers = f.counter
	}
	f.lc = NewOrderLifecycle(deps, LifecycleConfig{SignatureSecret: webhookSecret}, logger)
	return f
}

func thali() model.OrderDraft {
	return model.OrderDraft{
		Amount:     50000,
		Currency:   "INR",
		Items:      []model.Item{{Name: "Thali", UnitPrice: 50000, Quantity: 1}},
		OrderType:  model.OrderTypeDineIn,
		MerchantID: merchant.ID,
	}
}

func (f *fixture) createOrder(t *testing.T) *model.Order {
	t.Helper()
	res, err := f.lc.CreateOrder(context.Background(), customer, thali())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return res.Order
}

// capture registers a captured payment for order and returns a valid callback for it.
func (f *fixture) capture(order *model.Order, paymentID string) model.PaymentCallback {
	f.gateway.Payments[paymentID] = model.GatewayPayment{
		ID:      paymentID,
		OrderID: order.GatewayOrderID,
		Status:  model.PaymentStatusCaptured,
		Amount:  order.Amount,
	}
	f.gateway.Captured[paymentID] = order.Amount
	payload := signature.CanonicalPayload(order.GatewayOrderID, paymentID)
	return model.PaymentCallback{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        signature.Sign(payload, webhookSecret),
	}
}

func (f *fixture) paidOrder(t *testing.T) *model.Order {
	t.Helper()
	order := f.createOrder(t)
	paid, err := f.lc.VerifyPayment(context.Background(), customer, f.capture(order, "pay_1"))
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	return paid
}

func expectKind(t *testing.T, err error, kind domainErrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domainErrors.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func TestCreateOrderPersistsCreatedOrder(t *testing.T) {
	f := newFixture(t)
	res, err := f.lc.CreateOrder(context.Background(), customer, thali())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := res.Order
	if order.Status != model.OrderStatusCreated {
		t.Fatalf("expected created status, got %s", order.Status)
	}
	if order.Number < model.OrderNumberSeed || order.Number >= model.OrderNumberCeiling {
		t.Fatalf("order number %d out of range", order.Number)
	}
	if order.ID == "" || order.GatewayOrderID != res.GatewayOrder.ID {
		t.Fatalf("unexpected identifiers: %+v", order)
	}
	if res.GatewayOrder.Amount != 50000 || res.GatewayOrder.Currency != "INR" {
		t.Fatalf("unexpected gateway order %+v", res.GatewayOrder)
	}
	if !strings.HasPrefix(order.Receipt, "rcpt_") || len(order.Receipt) > 40 {
		t.Fatalf("unexpected receipt %q", order.Receipt)
	}
	if f.gateway.LastReceipt != order.Receipt {
		t.Fatalf("gateway got receipt %q, stored %q", f.gateway.LastReceipt, order.Receipt)
	}
	if f.gateway.LastNotes["merchant_id"] != merchant.ID || f.gateway.LastNotes["customer_id"] != customer.ID {
		t.Fatalf("unexpected notes %v", f.gateway.LastNotes)
	}
	stored, ok := f.store.Get(order.ID)
	if !ok || stored.CustomerID != customer.ID || len(stored.Items) != 1 {
		t.Fatalf("order not stored as expected: %+v", stored)
	}
	if types := f.events.Types(); len(types) != 1 || types[0] != model.EventOrderCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreateOrderValidationSkipsGateway(t *testing.T) {
	f := newFixture(t)
	draft := thali()
	draft.Amount = 0
	_, err := f.lc.CreateOrder(context.Background(), customer, draft)
	expectKind(t, err, domainErrors.KindValidation)
	if f.gateway.CreateCalls != 0 {
		t.Fatalf("gateway must not be called for invalid input")
	}
}

func TestOperationsRequirePrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anon := model.Principal{}

	_, err := f.lc.CreateOrder(ctx, anon, thali())
	expectKind(t, err, domainErrors.KindAuth)
	_, err = f.lc.VerifyPayment(ctx, anon, model.PaymentCallback{})
	expectKind(t, err, domainErrors.KindAuth)
	_, err = f.lc.CancelOrder(ctx, anon, "x", "")
	expectKind(t, err, domainErrors.KindAuth)
	_, err = f.lc.FailOrder(ctx, anon, "x", "")
	expectKind(t, err, domainErrors.KindAuth)
	_, err = f.lc.RefundOrder(ctx, anon, model.RefundRequest{OrderID: "x", Amount: 1})
	expectKind(t, err, domainErrors.KindAuth)
	_, err = f.lc.GetOrder(ctx, anon, "x")
	expectKind(t, err, domainErrors.KindAuth)
	_, err = f.lc.ListOrders(ctx, anon)
	expectKind(t, err, domainErrors.KindAuth)
}

func TestCreateOrderGatewayFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.gateway.CreateFn = func(context.Context, int64, string, string, map[string]string) (*model.GatewayOrder, error) {
		return nil, domainErrors.Gateway(true, 0, errors.New("dial tcp"), "gateway is unreachable")
	}
	_, err := f.lc.CreateOrder(context.Background(), customer, thali())
	expectKind(t, err, domainErrors.KindGateway)
	if f.store.Len() != 0 {
		t.Fatalf("no order may be stored when the gateway fails")
	}
}

func TestCreateOrderPersistenceFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.store.InsertErr = domainErrors.Storage(errors.New("connection reset"), "insert order")

	_, err := f.lc.CreateOrder(context.Background(), customer, thali())
	expectKind(t, err, domainErrors.KindPartialFailure)
	if strings.Contains(domainErrors.PublicMessage(err), "connection reset") {
		t.Fatalf("internal cause leaked into public message: %q", domainErrors.PublicMessage(err))
	}
	logs := f.logs.String()
	if !strings.Contains(logs, "remote side effect not recorded locally") || !strings.Contains(logs, "order_gw1") {
		t.Fatalf("partial failure must be logged with the gateway order id, got %s", logs)
	}
	if len(f.events.Types()) != 0 {
		t.Fatalf("no event may be published for a failed create")
	}
}

func TestCreateOrderFailedInsertKeepsNumber(t *testing.T) {
	ctx := context.Background()
	for name, build := range map[string]func(*testing.T) *fixture{
		"store assigned": newFixture,
		"reserved":       newReservingFixture,
	} {
		t.Run(name, func(t *testing.T) {
			f := build(t)
			f.store.InsertErr = domainErrors.Storage(errors.New("unique violation"), "insert order")
			if _, err := f.lc.CreateOrder(ctx, customer, thali()); err == nil {
				t.Fatal("expected insert failure")
			}

			f.store.InsertErr = nil
			res, err := f.lc.CreateOrder(ctx, customer, thali())
			if err != nil {
				t.Fatalf("create after failure: %v", err)
			}
			if res.Order.Number != model.OrderNumberSeed {
				t.Fatalf("failed insert consumed a number: got %d, want %d", res.Order.Number, model.OrderNumberSeed)
			}
		})
	}
}

func TestCreateOrderReleasesReservedNumber(t *testing.T) {
	f := newReservingFixture(t)
	f.store.InsertErr = domainErrors.Storage(errors.New("connection reset"), "insert order")
	f.counter.ReleaseErr = errors.New("redis down")

	_, err := f.lc.CreateOrder(context.Background(), customer, thali())
	expectKind(t, err, domainErrors.KindPartialFailure)
	if !strings.Contains(f.logs.String(), "order number not released") {
		t.Fatalf("expected release failure to be logged, got %s", f.logs.String())
	}

	f.counter.ReleaseErr = nil
	_, _ = f.lc.CreateOrder(context.Background(), customer, thali())
	if len(f.counter.Released) != 1 || f.counter.Released[0] != model.OrderNumberSeed+1 {
		t.Fatalf("expected number %d released, got %v", model.OrderNumberSeed+1, f.counter.Released)
	}
}

func TestCreateOrderAllocatorFailureIsPartial(t *testing.T) {
	f := newReservingFixture(t)
	f.counter.Err = domainErrors.Storage(errors.New("redis down"), "allocate")
	_, err := f.lc.CreateOrder(context.Background(), customer, thali())
	expectKind(t, err, domainErrors.KindPartialFailure)
	if f.store.Len() != 0 {
		t.Fatalf("order must not be stored without a number")
	}
}

func TestCreateOrderCancelledAfterGatewayCall(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.CreateFn = func(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*model.GatewayOrder, error) {
		cancel()
		return &model.GatewayOrder{ID: "order_late", Amount: amount, Currency: currency, Receipt: receipt}, nil
	}
	_, err := f.lc.CreateOrder(ctx, customer, thali())
	expectKind(t, err, domainErrors.KindPartialFailure)
	if f.store.Len() != 0 {
		t.Fatalf("nothing may be written once the request is cancelled")
	}
}

func TestCreateOrderNumbersWrapPerMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var last int
	for i := 0; i < model.OrderNumberCeiling-model.OrderNumberSeed+1; i++ {
		res, err := f.lc.CreateOrder(ctx, customer, thali())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		last = res.Order.Number
	}
	if last != model.OrderNumberSeed {
		t.Fatalf("expected wrap to %d, got %d", model.OrderNumberSeed, last)
	}

	other := thali()
	other.MerchantID = "merchant-2"
	res, err := f.lc.CreateOrder(ctx, customer, other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Number != model.OrderNumberSeed {
		t.Fatalf("new merchant must start at seed, got %d", res.Order.Number)
	}
}

func TestCreateOrderSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("broker unavailable")
	if _, err := f.lc.CreateOrder(context.Background(), customer, thali()); err != nil {
		t.Fatalf("publish failure must not fail the operation: %v", err)
	}
	if !strings.Contains(f.logs.String(), "order event not published") {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestVerifyPaymentMarksPaidOnce(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	cb := f.capture(order, "pay_1")

	paid, err := f.lc.VerifyPayment(context.Background(), customer, cb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.Status != model.OrderStatusPaid || paid.PaymentID != "pay_1" || paid.PaidAt == nil {
		t.Fatalf("unexpected paid order %+v", paid)
	}
	if paid.PaymentSignature != cb.Signature {
		t.Fatalf("signature not stored")
	}

	again, err := f.lc.VerifyPayment(context.Background(), customer, cb)
	if err != nil {
		t.Fatalf("repeated verify must succeed: %v", err)
	}
	if again.Status != model.OrderStatusPaid || !again.PaidAt.Equal(*paid.PaidAt) {
		t.Fatalf("repeated verify changed the order: %+v", again)
	}
	if f.store.Updates != 1 {
		t.Fatalf("expected exactly one status write, got %d", f.store.Updates)
	}
	types := f.events.Types()
	if len(types) != 2 || types[1] != model.EventOrderPaid {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestVerifyPaymentConcurrentCallbacks(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	cb := f.capture(order, "pay_1")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lc.VerifyPayment(context.Background(), customer, cb)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent verify failed: %v", err)
		}
	}
	if f.store.Updates != 1 {
		t.Fatalf("expected one status write, got %d", f.store.Updates)
	}
}

func TestVerifyPaymentTamperedSignature(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	cb := f.capture(order, "pay_1")
	last := cb.Signature[len(cb.Signature)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	cb.Signature = cb.Signature[:len(cb.Signature)-1] + string(flipped)

	_, err := f.lc.VerifyPayment(context.Background(), customer, cb)
	expectKind(t, err, domainErrors.KindInvalidSignature)
	if !errors.Is(err, domainErrors.ErrInvalidSignature) {
		t.Fatalf("expected sentinel match")
	}

	stored, _ := f.store.Get(order.ID)
	if stored.Status != model.OrderStatusCreated || stored.PaymentID != "" {
		t.Fatalf("tampered callback must not change the order: %+v", stored)
	}
	logs := f.logs.String()
	if !strings.Contains(logs, "invalid payment signature") || !strings.Contains(logs, "pay_1") {
		t.Fatalf("expected audit log entry, got %s", logs)
	}
	if strings.Contains(logs, webhookSecret) || strings.Contains(logs, cb.Signature) {
		t.Fatalf("secret material leaked into logs")
	}
}

func TestVerifyPaymentWithoutSecret(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	cb := f.capture(order, "pay_1")
	f.lc.cfg.SignatureSecret = ""

	_, err := f.lc.VerifyPayment(context.Background(), customer, cb)
	expectKind(t, err, domainErrors.KindConfiguration)
}

func TestVerifyPaymentRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fixture, *model.Order, *model.PaymentCallback)
		as     model.Principal
		kind   domainErrors.Kind
	}{
		{
			name: "missing fields",
			mutate: func(_ *fixture, _ *model.Order, cb *model.PaymentCallback) {
				cb.Signature = ""
			},
			as:   customer,
			kind: domainErrors.KindValidation,
		},
		{
			name: "not captured",
			mutate: func(f *fixture, _ *model.Order, cb *model.PaymentCallback) {
				p := f.gateway.Payments[cb.GatewayPaymentID]
				p.Status = model.PaymentStatusAuthorized
				f.gateway.Payments[cb.GatewayPaymentID] = p
			},
			as:   customer,
			kind: domainErrors.KindPaymentNotCaptured,
		},
		{
			name: "payment of another order",
			mutate: func(f *fixture, _ *model.Order, cb *model.PaymentCallback) {
				p := f.gateway.Payments[cb.GatewayPaymentID]
				p.OrderID = "order_other"
				f.gateway.Payments[cb.GatewayPaymentID] = p
			},
			as:   customer,
			kind: domainErrors.KindValidation,
		},
		{
			name:   "other customer",
			mutate: func(*fixture, *model.Order, *model.PaymentCallback) {},
			as:     stranger,
			kind:   domainErrors.KindForbidden,
		},
		{
			name: "unknown gateway order",
			mutate: func(f *fixture, _ *model.Order, cb *model.PaymentCallback) {
				*cb = f.capture(&model.Order{GatewayOrderID: "order_missing", Amount: 100}, "pay_2")
			},
			as:   customer,
			kind: domainErrors.KindNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.createOrder(t)
			cb := f.capture(order, "pay_1")
			tc.mutate(f, order, &cb)

			_, err := f.lc.VerifyPayment(context.Background(), tc.as, cb)
			expectKind(t, err, tc.kind)
			stored, _ := f.store.Get(order.ID)
			if stored.Status != model.OrderStatusCreated {
				t.Fatalf("order must stay created, got %s", stored.Status)
			}
		})
	}
}

func TestVerifyPaymentNotCapturedCarriesStatus(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	cb := f.capture(order, "pay_1")
	p := f.gateway.Payments["pay_1"]
	p.Status = model.PaymentStatusFailed
	f.gateway.Payments["pay_1"] = p

	_, err := f.lc.VerifyPayment(context.Background(), customer, cb)
	var typed *domainErrors.Error
	if !errors.As(err, &typed) || typed.Detail != string(model.PaymentStatusFailed) {
		t.Fatalf("expected observed status in detail, got %v", err)
	}
}

func TestVerifyPaymentLosesRaceToCancel(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	cb := f.capture(order, "pay_1")

	f.store.BeforeWrite = func(orderID string) {
		f.store.BeforeWrite = nil
		if _, err := f.store.ConditionalUpdate(context.Background(), orderID, model.OrderStatusCreated,
			model.OrderPatch{Status: model.OrderStatusCancelled}); err != nil {
			t.Errorf("racing cancel: %v", err)
		}
	}

	_, err := f.lc.VerifyPayment(context.Background(), customer, cb)
	expectKind(t, err, domainErrors.KindInvalidTransition)
	stored, _ := f.store.Get(order.ID)
	if stored.Status != model.OrderStatusCancelled {
		t.Fatalf("expected cancel to win, got %s", stored.Status)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	cancelled, err := f.lc.CancelOrder(context.Background(), customer, order.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != model.OrderStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected order %+v", cancelled)
	}
	if cancelled.CancellationReason != "User requested cancellation" || cancelled.CancelledBy != customer.ID {
		t.Fatalf("unexpected cancellation details %+v", cancelled)
	}

	again, err := f.lc.CancelOrder(context.Background(), customer, order.ID, "changed my mind")
	if err != nil {
		t.Fatalf("repeated cancel must succeed: %v", err)
	}
	if again.CancellationReason != "User requested cancellation" || f.store.Updates != 1 {
		t.Fatalf("repeated cancel must not write again")
	}

	_, err = f.lc.FailOrder(context.Background(), customer, order.ID, "")
	expectKind(t, err, domainErrors.KindInvalidTransition)
}

func TestCancelOrderByMerchantAndStranger(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	_, err := f.lc.CancelOrder(context.Background(), stranger, order.ID, "")
	expectKind(t, err, domainErrors.KindForbidden)

	cancelled, err := f.lc.CancelOrder(context.Background(), merchant, order.ID, "out of stock")
	if err != nil {
		t.Fatalf("merchant cancel: %v", err)
	}
	if cancelled.CancelledBy != merchant.ID || cancelled.CancellationReason != "out of stock" {
		t.Fatalf("unexpected cancellation details %+v", cancelled)
	}
	if types := f.events.Types(); types[len(types)-1] != model.EventOrderCancelled {
		t.Fatalf("expected cancel event, got %v", types)
	}
}

func TestCancelPaidOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)

	_, err := f.lc.CancelOrder(context.Background(), customer, order.ID, "")
	expectKind(t, err, domainErrors.KindInvalidTransition)
	if !strings.Contains(domainErrors.PublicMessage(err), "refund") {
		t.Fatalf("expected refund hint, got %q", domainErrors.PublicMessage(err))
	}
	stored, _ := f.store.Get(order.ID)
	if stored.Status != model.OrderStatusPaid {
		t.Fatalf("paid order changed to %s", stored.Status)
	}
}

func TestFailOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	failed, err := f.lc.FailOrder(context.Background(), customer, order.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.Status != model.OrderStatusFailed || failed.FailureReason != "Payment failed" || failed.FailedAt == nil {
		t.Fatalf("unexpected order %+v", failed)
	}
	if types := f.events.Types(); types[len(types)-1] != model.EventOrderFailed {
		t.Fatalf("expected failed event, got %v", types)
	}

	_, err = f.lc.FailOrder(context.Background(), customer, "missing", "")
	expectKind(t, err, domainErrors.KindNotFound)

	_, err = f.lc.CancelOrder(context.Background(), customer, order.ID, "")
	expectKind(t, err, domainErrors.KindInvalidTransition)
	if !strings.Contains(domainErrors.PublicMessage(err), "closed") {
		t.Fatalf("expected closed order message, got %q", domainErrors.PublicMessage(err))
	}
}

func TestRefundLedger(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)
	ctx := context.Background()
	refund := func(amount int64) (*model.Order, error) {
		return f.lc.RefundOrder(ctx, merchant, model.RefundRequest{OrderID: order.ID, Amount: amount, Reason: "cold food"})
	}

	first, err := refund(20000)
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if first.Status != model.OrderStatusPartiallyRefunded || first.AmountRefunded != 20000 {
		t.Fatalf("unexpected order after first refund %+v", first)
	}
	if f.gateway.LastNotes["reason"] != "cold food" || f.gateway.LastNotes["initiated_by"] != merchant.ID {
		t.Fatalf("unexpected refund notes %v", f.gateway.LastNotes)
	}

	second, err := refund(20000)
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if second.AmountRefunded != 40000 || len(second.Refunds) != 2 {
		t.Fatalf("unexpected order after second refund %+v", second)
	}
	if second.Refunds[1].Speed != model.RefundSpeedNormal {
		t.Fatalf("expected default speed, got %q", second.Refunds[1].Speed)
	}

	_, err = refund(20000)
	expectKind(t, err, domainErrors.KindRefundExceedsCaptured)
	if f.gateway.RefundCalls != 2 {
		t.Fatalf("an over-refund must not reach the gateway")
	}
	stored, _ := f.store.Get(order.ID)
	if stored.AmountRefunded != 40000 {
		t.Fatalf("expected 40000 refunded, got %d", stored.AmountRefunded)
	}

	full, err := refund(10000)
	if err != nil {
		t.Fatalf("final refund: %v", err)
	}
	if full.Status != model.OrderStatusRefunded || full.AmountRefunded != full.Amount {
		t.Fatalf("expected fully refunded order, got %+v", full)
	}
	_, err = refund(1)
	expectKind(t, err, domainErrors.KindInvalidTransition)
}

func TestRefundRejects(t *testing.T) {
	f := newFixture(t)
	paid := f.paidOrder(t)
	created := f.createOrder(t)
	ctx := context.Background()

	_, err := f.lc.RefundOrder(ctx, customer, model.RefundRequest{OrderID: paid.ID, Amount: 100})
	expectKind(t, err, domainErrors.KindForbidden)

	_, err = f.lc.RefundOrder(ctx, merchant, model.RefundRequest{OrderID: created.ID, Amount: 100})
	expectKind(t, err, domainErrors.KindInvalidTransition)

	_, err = f.lc.RefundOrder(ctx, merchant, model.RefundRequest{OrderID: paid.ID, Amount: 0})
	expectKind(t, err, domainErrors.KindValidation)

	_, err = f.lc.RefundOrder(ctx, merchant, model.RefundRequest{OrderID: paid.ID, Amount: 50001})
	expectKind(t, err, domainErrors.KindRefundExceedsCaptured)

	admin := model.Principal{ID: "ops", Role: model.RoleAdmin}
	if _, err := f.lc.RefundOrder(ctx, admin, model.RefundRequest{OrderID: paid.ID, Amount: 100, Speed: model.RefundSpeedOptimum}); err != nil {
		t.Fatalf("admin refund: %v", err)
	}
}

func TestRefundWithoutPaymentID(t *testing.T) {
	f := newFixture(t)
	id := f.store.Put(model.Order{
		GatewayOrderID: "order_gw9", CustomerID: customer.ID, MerchantID: merchant.ID,
		Amount: 1000, Currency: "INR", Status: model.OrderStatusPaid,
	})
	_, err := f.lc.RefundOrder(context.Background(), merchant, model.RefundRequest{OrderID: id, Amount: 100})
	expectKind(t, err, domainErrors.KindInvalidTransition)
	if f.gateway.RefundCalls != 0 {
		t.Fatalf("gateway must not be called without a payment id")
	}
}

func TestConcurrentRefundsNeverOverRefund(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lc.RefundOrder(context.Background(), merchant, model.RefundRequest{OrderID: order.ID, Amount: 10000})
			if err == nil {
				mu.Lock()
				succeeded += 10000
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stored, _ := f.store.Get(order.ID)
	if stored.AmountRefunded > stored.Amount {
		t.Fatalf("over-refunded: %d of %d", stored.AmountRefunded, stored.Amount)
	}
	var recorded int64
	for _, r := range stored.Refunds {
		recorded += r.Amount
	}
	if recorded != stored.AmountRefunded {
		t.Fatalf("refund records %d disagree with total %d", recorded, stored.AmountRefunded)
	}
	if succeeded != stored.AmountRefunded {
		t.Fatalf("reported %d refunded, stored %d", succeeded, stored.AmountRefunded)
	}
	if f.gateway.Refunded("pay_1") > stored.Amount {
		t.Fatalf("gateway over-refunded")
	}
	unrecorded := f.gateway.Refunded("pay_1") - stored.AmountRefunded
	var attempts int64
	for _, a := range stored.RefundAttempts {
		if a.Status == model.RefundAttemptUnrecorded {
			attempts += a.Amount
		}
	}
	if attempts != unrecorded {
		t.Fatalf("every unrecorded refund must leave an attempt: %d vs %d", attempts, unrecorded)
	}
}

func TestRefundGatewayFailureRecordsAttempt(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status string
	}{
		{"rejected", domainErrors.Gateway(false, 0, nil, "gateway rejected the request"), model.RefundAttemptFailed},
		{"timeout", domainErrors.Wrap(domainErrors.KindUnknownOutcome, context.DeadlineExceeded, "gateway did not answer"), model.RefundAttemptUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.paidOrder(t)
			f.gateway.RefundFn = func(context.Context, string, int64, model.RefundSpeed, map[string]string) (*model.GatewayRefund, error) {
				return nil, tc.err
			}

			_, err := f.lc.RefundOrder(context.Background(), merchant, model.RefundRequest{OrderID: order.ID, Amount: 500})
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected gateway error, got %v", err)
			}
			stored, _ := f.store.Get(order.ID)
			if len(stored.RefundAttempts) != 1 || stored.RefundAttempts[0].Status != tc.status || stored.RefundAttempts[0].Amount != 500 {
				t.Fatalf("unexpected attempts %+v", stored.RefundAttempts)
			}
			if stored.AmountRefunded != 0 {
				t.Fatalf("failed refund changed totals")
			}
		})
	}
}

func TestRefundUnrecordedIsPartialFailure(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)
	f.store.RefundErr = domainErrors.Storage(errors.New("disk full"), "apply refund")

	_, err := f.lc.RefundOrder(context.Background(), merchant, model.RefundRequest{OrderID: order.ID, Amount: 700})
	expectKind(t, err, domainErrors.KindPartialFailure)

	stored, _ := f.store.Get(order.ID)
	if len(stored.RefundAttempts) != 1 {
		t.Fatalf("expected one attempt, got %+v", stored.RefundAttempts)
	}
	attempt := stored.RefundAttempts[0]
	if attempt.Status != model.RefundAttemptUnrecorded || attempt.RefundID == "" || attempt.Timestamp.IsZero() {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if !strings.Contains(f.logs.String(), attempt.RefundID) {
		t.Fatalf("refund id must be logged for manual follow-up")
	}
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	first := f.createOrder(t)
	time.Sleep(time.Millisecond)
	second := f.createOrder(t)
	ctx := context.Background()

	for _, p := range []model.Principal{customer, merchant, {ID: "ops", Role: model.RoleAdmin}} {
		if _, err := f.lc.GetOrder(ctx, p, first.ID); err != nil {
			t.Fatalf("%s must see the order: %v", p.ID, err)
		}
	}
	_, err := f.lc.GetOrder(ctx, stranger, first.ID)
	expectKind(t, err, domainErrors.KindForbidden)
	_, err = f.lc.GetOrder(ctx, customer, "")
	expectKind(t, err, domainErrors.KindValidation)

	orders, err := f.lc.ListOrders(ctx, customer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", orders)
	}
	orders, err = f.lc.ListOrders(ctx, stranger)
	if err != nil || len(orders) != 0 {
		t.Fatalf("stranger must see no orders, got %v %v", orders, err)
	}
}
