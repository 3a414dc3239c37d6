package model

import "time"

// RefundSpeed is forwarded to the gateway.
type RefundSpeed string

const (
	RefundSpeedNormal  RefundSpeed = "normal"
	RefundSpeedOptimum RefundSpeed = "optimum"
)

// RefundRecord is appended to an order once the gateway accepted a refund.
type RefundRecord struct {
	RefundID  string      `json:"refundId"`
	Amount    int64       `json:"amount"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	Reason    string      `json:"reason"`
	Speed     RefundSpeed `json:"speed"`
}

// Refund attempt outcomes kept for manual reconciliation.
const (
	RefundAttemptFailed     = "failed"
	RefundAttemptUnknown    = "unknown"
	RefundAttemptUnrecorded = "unrecorded"
)

// RefundAttempt records a refund that did not end up as a RefundRecord.
type RefundAttempt struct {
	Timestamp time.Time `json:"timestamp"`
	Amount    int64     `json:"amount"`
	RefundID  string    `json:"refundId,omitempty"`
	Error     string    `json:"error"`
	Status    string    `json:"status"`
}
