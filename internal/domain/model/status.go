package model

// OrderStatus describes the order lifecycle.
type OrderStatus string

const (
	OrderStatusCreated           OrderStatus = "created"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusFailed            OrderStatus = "failed"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
	OrderStatusRefunded          OrderStatus = "refunded"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusCreated: {
		OrderStatusPaid:      true,
		OrderStatusFailed:    true,
		OrderStatusCancelled: true,
	},
	OrderStatusPaid: {
		OrderStatusPartiallyRefunded: true,
		OrderStatusRefunded:          true,
	},
	OrderStatusPartiallyRefunded: {
		OrderStatusPartiallyRefunded: true,
		OrderStatusRefunded:          true,
	},
	OrderStatusFailed:    {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Terminal reports whether no transition leaves the status.
func (s OrderStatus) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Refundable reports whether refunds may be issued in this status.
func (s OrderStatus) Refundable() bool {
	return s == OrderStatusPaid || s == OrderStatusPartiallyRefunded
}
