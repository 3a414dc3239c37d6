package test

import (
	"math/rand"
	"sync"
	"time"
)

const gatewayIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// gatewayIDLength matches the suffix length of gateway identifiers such as order_XXXXXXXXXXXXXX.
const gatewayIDLength = 14

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RandomGatewayID returns an identifier shaped like the gateway's, e.g. RandomGatewayID("pay").
func RandomGatewayID(prefix string) string {
	return prefix + "_" + randomSuffix(gatewayIDLength)
}

// RandomMerchantID returns a merchant identifier unique enough for a test run.
func RandomMerchantID() string {
	return "m-" + randomSuffix(8)
}

func randomSuffix(n int) string {
	rngMu.Lock()
	defer rngMu.Unlock()
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = gatewayIDAlphabet[rng.Intn(len(gatewayIDAlphabet))]
	}
	return string(buf)
}
