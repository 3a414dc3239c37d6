package dto

import "time"

// Item is a single order line in minor currency units.
type Item struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest describes POST /api/payments/create-order payload.
type CreateOrderRequest struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Items      []Item `json:"items"`
	OrderType  string `json:"orderType"`
	MerchantID string `json:"merchantId"`
}

// CreateOrderResponse carries what the checkout needs to open the payment form.
type CreateOrderResponse struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	OrderID     string `json:"orderId"`
	OrderNumber int    `json:"orderNumber"`
}

// VerifyPaymentRequest is the checkout callback. OrderID is the gateway order id.
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// VerifyPaymentResponse acknowledges a verified payment.
type VerifyPaymentResponse struct {
	Success bool          `json:"success"`
	OrderID string        `json:"orderId"`
	Order   OrderResponse `json:"order"`
}

// ReasonRequest is the optional body of fail and cancel.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// RefundRequest describes POST /api/payments/:orderId/refund payload.
type RefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	Speed  string `json:"speed"`
}

// RefundResponse describes a stored refund.
type RefundResponse struct {
	RefundID  string    `json:"refundId"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Reason    string    `json:"reason,omitempty"`
	Speed     string    `json:"speed"`
}

// OrderResponse is the public view of an order.
type OrderResponse struct {
	ID                 string           `json:"orderId"`
	GatewayOrderID     string           `json:"gatewayOrderId"`
	OrderNumber        int              `json:"orderNumber"`
	CustomerID         string           `json:"customerId"`
	MerchantID         string           `json:"merchantId"`
	Amount             int64            `json:"amount"`
	AmountRefunded     int64            `json:"amountRefunded"`
	Currency           string           `json:"currency"`
	Status             string           `json:"status"`
	OrderType          string           `json:"orderType"`
	Items              []Item           `json:"items"`
	PaymentID          string           `json:"paymentId,omitempty"`
	Refunds            []RefundResponse `json:"refunds,omitempty"`
	FailureReason      string           `json:"failureReason,omitempty"`
	CancellationReason string           `json:"cancellationReason,omitempty"`
	CancelledBy        string           `json:"cancelledBy,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	PaidAt             *time.Time       `json:"paidAt,omitempty"`
	FailedAt           *time.Time       `json:"failedAt,omitempty"`
	CancelledAt        *time.Time       `json:"cancelledAt,omitempty"`
}
