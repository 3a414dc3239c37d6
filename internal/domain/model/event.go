package model

import "time"

// Order lifecycle event types.
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderFailed    = "order.failed"
	EventOrderCancelled = "order.cancelled"
	EventOrderRefunded  = "order.refunded"
)

// OrderEvent is emitted after a persisted lifecycle transition.
type OrderEvent struct {
	Type           string
	OrderID        string
	GatewayOrderID string
	MerchantID     string
	CustomerID     string
	Status         OrderStatus
	Amount         int64
	AmountRefunded int64
	Currency       string
	OccurredAt     time.Time
}

// NewOrderEvent snapshots order into an event of the given type.
func NewOrderEvent(eventType string, o *Order) OrderEvent {
	return OrderEvent{
		Type:           eventType,
		OrderID:        o.ID,
		GatewayOrderID: o.GatewayOrderID,
		MerchantID:     o.MerchantID,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		Amount:         o.Amount,
		AmountRefunded: o.AmountRefunded,
		Currency:       o.Currency,
		OccurredAt:     time.Now().UTC(),
	}
}
