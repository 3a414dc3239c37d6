package repository

import "context"

// OrderNumberAllocator reserves per-merchant order numbers outside the order store.
// A reserved number that could not be persisted is handed back with Release.
type OrderNumberAllocator interface {
	Allocate(ctx context.Context, merchantID string) (int, error)
	// Release undoes the reservation of number only if no later allocation happened.
	Release(ctx context.Context, merchantID string, number int) error
}
