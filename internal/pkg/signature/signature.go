// Package signature validates gateway payment callbacks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
)

// CanonicalPayload is the exact string the gateway signs for a payment callback.
func CanonicalPayload(gatewayOrderID, gatewayPaymentID string) string {
	return gatewayOrderID + "|" + gatewayPaymentID
}

// Verifier checks HMAC-SHA256 signatures encoded as lowercase hex.
type Verifier struct{}

// NewVerifier returns a Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether provided matches the signature of payload under secret.
// Only a missing secret is an error; any mismatch, including malformed hex, is false.
func (v *Verifier) Verify(payload, provided, secret string) (bool, error) {
	if secret == "" {
		return false, domainErrors.New(domainErrors.KindConfiguration, "payment signature secret is not configured")
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(provided)), nil
}

// Sign computes the hex encoded signature of payload.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
