package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
	"github.com/polkiloo/orderpay/internal/pkg/signature"
	testhelpers "github.com/polkiloo/orderpay/internal/test"
	"github.com/polkiloo/orderpay/internal/usecase"
)

const testSecret = "whsec_facade"

type facadeFixture struct {
	store   *testhelpers.OrderStoreStub
	gateway *testhelpers.GatewayStub
	facade  *PaymentFacade
}

func newFacadeFixture(health HealthChecker) *facadeFixture {
	store := testhelpers.NewOrderStoreStub()
	gw := &testhelpers.GatewayStub{Payments: map[string]model.GatewayPayment{}, Captured: map[string]int64{}}
	lc := usecase.NewOrderLifecycle(usecase.Dependencies{
		Orders:   store,
		Numbers:  &testhelpers.CounterStub{},
		Gateway:  gw,
		Verifier: signature.NewVerifier(),
		Events:   &testhelpers.PublisherStub{},
	}, usecase.LifecycleConfig{SignatureSecret: testSecret}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	tokens := testhelpers.StrategyStub{ParseFn: func(token string) (model.Principal, error) {
		return model.Principal{ID: token}, nil
	}}
	return &facadeFixture{store: store, gateway: gw, facade: NewPaymentFacade(tokens, lc, health)}
}

func TestPaymentFacadeOrderFlow(t *testing.T) {
	f := newFacadeFixture(testhelpers.HealthFacadeStub{})
	ctx := context.Background()

	customer, err := f.facade.ParseToken("cust-1")
	if err != nil || customer.ID != "cust-1" {
		t.Fatalf("unexpected principal %+v %v", customer, err)
	}
	merchant := model.Principal{ID: "merchant-1"}

	created, err := f.facade.CreateOrder(ctx, customer, model.OrderDraft{
		Amount:     30000,
		Items:      []model.Item{{Name: "Biryani", UnitPrice: 15000, Quantity: 2}},
		MerchantID: merchant.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gwOrder := created.GatewayOrder.ID
	f.gateway.Payments["pay_9"] = model.GatewayPayment{ID: "pay_9", OrderID: gwOrder, Status: model.PaymentStatusCaptured}

	paid, err := f.facade.VerifyPayment(ctx, customer, model.PaymentCallback{
		GatewayOrderID:   gwOrder,
		GatewayPaymentID: "pay_9",
		Signature:        signature.Sign(signature.CanonicalPayload(gwOrder, "pay_9"), testSecret),
	})
	if err != nil || paid.Status != model.OrderStatusPaid {
		t.Fatalf("verify: %+v %v", paid, err)
	}

	refunded, err := f.facade.RefundOrder(ctx, merchant, model.RefundRequest{OrderID: paid.ID, Amount: 30000})
	if err != nil || refunded.Status != model.OrderStatusRefunded {
		t.Fatalf("refund: %+v %v", refunded, err)
	}

	got, err := f.facade.Order(ctx, customer, paid.ID)
	if err != nil || got.AmountRefunded != 30000 {
		t.Fatalf("order: %+v %v", got, err)
	}
	list, err := f.facade.Orders(ctx, customer)
	if err != nil || len(list) != 1 {
		t.Fatalf("orders: %+v %v", list, err)
	}
}

func TestPaymentFacadeCloseOrders(t *testing.T) {
	f := newFacadeFixture(testhelpers.HealthFacadeStub{})
	ctx := context.Background()
	customer := model.Principal{ID: "cust-1"}
	draft := model.OrderDraft{Amount: 100, Items: []model.Item{{Name: "Tea", UnitPrice: 100, Quantity: 1}}, MerchantID: "m"}

	first, err := f.facade.CreateOrder(ctx, customer, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := f.facade.CreateOrder(ctx, customer, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o, err := f.facade.CancelOrder(ctx, customer, first.Order.ID, ""); err != nil || o.Status != model.OrderStatusCancelled {
		t.Fatalf("cancel: %+v %v", o, err)
	}
	if o, err := f.facade.FailOrder(ctx, customer, second.Order.ID, "card declined"); err != nil || o.FailureReason != "card declined" {
		t.Fatalf("fail: %+v %v", o, err)
	}
}

func TestPaymentFacadeReconciliation(t *testing.T) {
	f := newFacadeFixture(testhelpers.HealthFacadeStub{})
	ctx := context.Background()
	id := f.store.Put(model.Order{GatewayOrderID: "order_x", Status: model.OrderStatusCreated, Amount: 100})
	f.gateway.OrderPayments = map[string][]model.GatewayPayment{
		"order_x": {{ID: "pay_x", OrderID: "order_x", Status: model.PaymentStatusCaptured}},
	}

	claimed, err := f.facade.OrdersForReconciliation(ctx, 5)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %+v %v", claimed, err)
	}
	if err := f.facade.ReconcileOrder(ctx, claimed[0]); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	stored, _ := f.store.Get(id)
	if stored.Status != model.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", stored.Status)
	}
}

func TestPaymentFacadeHealthCheck(t *testing.T) {
	notReady := domainErrors.New(domainErrors.KindNotInitialized, "storage is not initialized")
	f := newFacadeFixture(testhelpers.HealthFacadeStub{Err: notReady})
	if err := f.facade.HealthCheck(context.Background()); !errors.Is(err, domainErrors.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}
