package model

import "time"

// DefaultCurrency is applied when order creation omits a currency.
const DefaultCurrency = "INR"

// OrderType distinguishes how the order is fulfilled.
type OrderType string

const (
	OrderTypeDineIn OrderType = "dine_in"
	OrderTypeOther  OrderType = "other"
)

// Item is a single order line. UnitPrice is in minor currency units.
type Item struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// Order ties a gateway order to the persisted order record.
type Order struct {
	ID             string
	GatewayOrderID string
	Receipt        string

	CustomerID string
	MerchantID string
	Number     int

	Amount   int64
	Currency string
	Status   OrderStatus
	Type     OrderType
	Items    []Item

	PaymentID        string
	PaymentSignature string

	AmountRefunded int64
	Refunds        []RefundRecord
	RefundAttempts []RefundAttempt

	FailureReason      string
	CancellationReason string
	CancelledBy        string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	FailedAt    *time.Time
	CancelledAt *time.Time
}

// Refundable returns the amount that may still be refunded.
func (o *Order) Refundable() int64 {
	return o.Amount - o.AmountRefunded
}

// OwnedBy reports whether principal is the customer who placed the order.
func (o *Order) OwnedBy(p Principal) bool {
	return p.ID != "" && o.CustomerID == p.ID
}

// ManagedBy reports whether principal may act for the merchant side of the order.
func (o *Order) ManagedBy(p Principal) bool {
	return p.IsAdmin() || (p.ID != "" && o.MerchantID == p.ID)
}

// OrderPatch lists the fields a status transition may set. Timestamps for
// paid/failed/cancelled are assigned by the store.
type OrderPatch struct {
	Status             OrderStatus
	PaymentID          string
	PaymentSignature   string
	FailureReason      string
	CancellationReason string
	CancelledBy        string
}
