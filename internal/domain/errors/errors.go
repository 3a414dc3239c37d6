package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the stable machine-readable failure category.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindAuth                  Kind = "auth_error"
	KindForbidden             Kind = "forbidden"
	KindNotFound              Kind = "order_not_found"
	KindInvalidTransition     Kind = "invalid_transition"
	KindInvalidSignature      Kind = "invalid_signature"
	KindPaymentNotCaptured    Kind = "payment_not_captured"
	KindRefundExceedsCaptured Kind = "refund_exceeds_captured"
	KindConflict              Kind = "conflict"
	KindGateway               Kind = "gateway_error"
	KindStorage               Kind = "storage_error"
	KindPartialFailure        Kind = "partial_failure"
	KindUnknownOutcome        Kind = "unknown_outcome"
	KindNotInitialized        Kind = "not_initialized"
	KindConfiguration         Kind = "configuration_error"
)

// Error carries a Kind plus a message that is safe to show to callers.
// Err holds internal detail and is never rendered to callers.
type Error struct {
	Kind       Kind
	Message    string
	Detail     string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrAuth                  = &Error{Kind: KindAuth}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrInvalidSignature      = &Error{Kind: KindInvalidSignature}
	ErrPaymentNotCaptured    = &Error{Kind: KindPaymentNotCaptured}
	ErrRefundExceedsCaptured = &Error{Kind: KindRefundExceedsCaptured}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrGateway               = &Error{Kind: KindGateway}
	ErrStorage               = &Error{Kind: KindStorage}
	ErrPartialFailure        = &Error{Kind: KindPartialFailure}
	ErrUnknownOutcome        = &Error{Kind: KindUnknownOutcome}
	ErrNotInitialized        = &Error{Kind: KindNotInitialized}
	ErrConfiguration         = &Error{Kind: KindConfiguration}
)

// New builds an error of kind with a caller-facing message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of kind that keeps err as internal cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation reports bad caller input.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// InvalidTransition reports an illegal state change from the current status.
func InvalidTransition(from, to string) *Error {
	return New(KindInvalidTransition, "order cannot move from %s to %s", from, to)
}

// PaymentNotCaptured carries the status the gateway reported.
func PaymentNotCaptured(status string) *Error {
	e := New(KindPaymentNotCaptured, "payment is %s, not captured", status)
	e.Detail = status
	return e
}

// Gateway reports a gateway failure. Only retryable failures may be retried by callers.
func Gateway(retryable bool, retryAfter time.Duration, err error, format string, args ...any) *Error {
	e := Wrap(KindGateway, err, format, args...)
	e.Retryable = retryable
	e.RetryAfter = retryAfter
	return e
}

// Storage wraps a persistence failure, keeping already-typed errors intact.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return Wrap(KindStorage, err, "storage failure during %s", op)
}

// KindOf extracts the kind of err; untyped errors yield an empty kind.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsRetryable reports whether err is a gateway failure flagged as retryable.
func IsRetryable(err error) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Retryable
}

// RetryDelay returns the wait the gateway asked for, or zero.
func RetryDelay(err error) time.Duration {
	var typed *Error
	if !errors.As(err, &typed) || !typed.Retryable {
		return 0
	}
	return typed.RetryAfter
}

// PublicMessage returns the caller-facing message for err.
func PublicMessage(err error) string {
	var typed *Error
	if !errors.As(err, &typed) {
		return "internal error"
	}
	if typed.Message != "" {
		return typed.Message
	}
	return strings.ReplaceAll(string(typed.Kind), "_", " ")
}
