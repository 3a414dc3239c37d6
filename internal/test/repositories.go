package test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
	"github.com/polkiloo/orderpay/internal/domain/repository"
)

// OrderStoreStub keeps orders in memory and honours the conditional write contract
// of repository.OrderRepository.
type OrderStoreStub struct {
	mu      sync.Mutex
	orders  map[string]*model.Order
	claimed map[string]time.Time
	numbers map[string]int
	seq     int

	InsertErr  error
	FindErr    error
	UpdateErr  error
	RefundErr  error
	AttemptErr error
	// BeforeWrite runs, unlocked, ahead of every conditional write.
	BeforeWrite func(orderID string)

	Inserts     int
	Updates     int
	RefundWrite int
}

// NewOrderStoreStub constructs an empty store.
func NewOrderStoreStub() *OrderStoreStub {
	return &OrderStoreStub{
		orders:  make(map[string]*model.Order),
		claimed: make(map[string]time.Time),
	}
}

// Put seeds order as is and returns its id.
func (s *OrderStoreStub) Put(order model.Order) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if order.ID == "" {
		s.seq++
		order.ID = fmt.Sprintf("order-%d", s.seq)
	}
	s.orders[order.ID] = cloneOrder(&order)
	return order.ID
}

// Get returns a copy of the stored order.
func (s *OrderStoreStub) Get(orderID string) (*model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, false
	}
	return cloneOrder(o), true
}

// Len returns the number of stored orders.
func (s *OrderStoreStub) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *OrderStoreStub) init() {
	if s.orders == nil {
		s.orders = make(map[string]*model.Order)
	}
	if s.claimed == nil {
		s.claimed = make(map[string]time.Time)
	}
	if s.numbers == nil {
		s.numbers = make(map[string]int)
	}
}

// Insert stores order, rejecting a duplicate gateway order id. A zero order number is
// taken from the per-merchant counter only when the insert succeeds.
func (s *OrderStoreStub) Insert(ctx context.Context, order *model.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return "", s.InsertErr
	}
	s.init()
	for _, existing := range s.orders {
		if existing.GatewayOrderID == order.GatewayOrderID {
			return "", domainErrors.New(domainErrors.KindConflict, "gateway order already recorded")
		}
	}
	if order.Number == 0 {
		current, ok := s.numbers[order.MerchantID]
		order.Number = NextOrderNumber(current, ok)
		s.numbers[order.MerchantID] = order.Number
	}
	s.seq++
	order.ID = fmt.Sprintf("order-%d", s.seq)
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	s.orders[order.ID] = cloneOrder(order)
	s.Inserts++
	return order.ID, nil
}

// FindByID returns a copy of the order.
func (s *OrderStoreStub) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, notFound()
	}
	return cloneOrder(o), nil
}

// FindByGatewayOrderID looks the order up by its gateway id.
func (s *OrderStoreStub) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	for _, o := range s.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return cloneOrder(o), nil
		}
	}
	return nil, notFound()
}

// ConditionalUpdate applies patch only while the order is in expected status.
func (s *OrderStoreStub) ConditionalUpdate(ctx context.Context, orderID string, expected model.OrderStatus, patch model.OrderPatch) (*model.Order, error) {
	if s.BeforeWrite != nil {
		s.BeforeWrite(orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, notFound()
	}
	if o.Status != expected {
		return nil, conflict()
	}

	now := time.Now().UTC()
	o.Status = patch.Status
	if patch.PaymentID != "" {
		o.PaymentID = patch.PaymentID
	}
	if patch.PaymentSignature != "" {
		o.PaymentSignature = patch.PaymentSignature
	}
	if patch.FailureReason != "" {
		o.FailureReason = patch.FailureReason
	}
	if patch.CancellationReason != "" {
		o.CancellationReason = patch.CancellationReason
	}
	if patch.CancelledBy != "" {
		o.CancelledBy = patch.CancelledBy
	}
	switch patch.Status {
	case model.OrderStatusPaid:
		o.PaidAt = &now
	case model.OrderStatusFailed:
		o.FailedAt = &now
	case model.OrderStatusCancelled:
		o.CancelledAt = &now
	}
	o.UpdatedAt = now
	s.Updates++
	return cloneOrder(o), nil
}

// ApplyRefund appends refund only while amount_refunded equals expectedRefunded.
func (s *OrderStoreStub) ApplyRefund(ctx context.Context, orderID string, expectedRefunded int64, refund model.RefundRecord, status model.OrderStatus) (*model.Order, error) {
	if s.BeforeWrite != nil {
		s.BeforeWrite(orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RefundErr != nil {
		return nil, s.RefundErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, notFound()
	}
	if o.AmountRefunded != expectedRefunded || !o.Status.Refundable() || o.AmountRefunded+refund.Amount > o.Amount {
		return nil, conflict()
	}
	o.AmountRefunded += refund.Amount
	o.Refunds = append(o.Refunds, refund)
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.RefundWrite++
	return cloneOrder(o), nil
}

// AppendRefundAttempt records a refund attempt on the order.
func (s *OrderStoreStub) AppendRefundAttempt(ctx context.Context, orderID string, attempt model.RefundAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AttemptErr != nil {
		return s.AttemptErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return notFound()
	}
	o.RefundAttempts = append(o.RefundAttempts, attempt)
	return nil
}

// ListByCustomer returns the customer's orders, newest first.
func (s *OrderStoreStub) ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	var out []model.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ClaimForReconciliation returns stale created orders and marks them claimed.
func (s *OrderStoreStub) ClaimForReconciliation(ctx context.Context, createdBefore, claimedBefore time.Time, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.init()
	var out []model.Order
	for id, o := range s.orders {
		if len(out) >= limit {
			break
		}
		if o.Status != model.OrderStatusCreated || o.CreatedAt.After(createdBefore) {
			continue
		}
		if at, ok := s.claimed[id]; ok && at.After(claimedBefore) {
			continue
		}
		s.claimed[id] = time.Now()
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

// CounterStub reserves order numbers in memory with the production wrap policy.
type CounterStub struct {
	mu     sync.Mutex
	values map[string]int
	Err    error

	ReleaseErr error
	Released   []int
}

// Allocate returns the next number for merchantID.
func (s *CounterStub) Allocate(ctx context.Context, merchantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if s.values == nil {
		s.values = make(map[string]int)
	}
	current, ok := s.values[merchantID]
	next := NextOrderNumber(current, ok)
	s.values[merchantID] = next
	return next, nil
}

// Release rewinds the counter while number is still the latest reservation.
func (s *CounterStub) Release(ctx context.Context, merchantID string, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReleaseErr != nil {
		return s.ReleaseErr
	}
	s.Released = append(s.Released, number)
	if current, ok := s.values[merchantID]; !ok || current != number {
		return nil
	}
	if number <= model.OrderNumberSeed {
		delete(s.values, merchantID)
		return nil
	}
	s.values[merchantID] = number - 1
	return nil
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.Item(nil), o.Items...)
	c.Refunds = append([]model.RefundRecord(nil), o.Refunds...)
	c.RefundAttempts = append([]model.RefundAttempt(nil), o.RefundAttempts...)
	return &c
}

func notFound() error {
	return domainErrors.New(domainErrors.KindNotFound, "order not found")
}

func conflict() error {
	return domainErrors.New(domainErrors.KindConflict, "order was modified concurrently")
}

var (
	_ repository.OrderRepository      = (*OrderStoreStub)(nil)
	_ repository.OrderNumberAllocator = (*CounterStub)(nil)
)
