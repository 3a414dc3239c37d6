package model

import "time"

// PaymentStatus is the gateway's view of a payment.
type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// GatewayOrder is returned by the gateway on order creation.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// GatewayPayment describes a payment fetched from the gateway.
type GatewayPayment struct {
	ID       string
	OrderID  string
	Status   PaymentStatus
	Amount   int64
	Currency string
}

// GatewayRefund describes a refund accepted by the gateway.
type GatewayRefund struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    string
	CreatedAt time.Time
}
