package model

// OrderDraft is the caller-supplied part of a new order.
type OrderDraft struct {
	Amount     int64
	Currency   string
	Items      []Item
	OrderType  OrderType
	MerchantID string
}

// CreatedOrder pairs the persisted order with the gateway's view of it.
type CreatedOrder struct {
	Order        *Order
	GatewayOrder *GatewayOrder
}

// PaymentCallback carries the fields the checkout hands back after payment.
type PaymentCallback struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// RefundRequest describes a refund against a paid order.
type RefundRequest struct {
	OrderID string
	Amount  int64
	Reason  string
	Speed   RefundSpeed
}
