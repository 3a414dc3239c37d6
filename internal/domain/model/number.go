package model

// Order numbers are allocated per merchant in [OrderNumberSeed, OrderNumberCeiling).
// The counter advances by one, seeds at OrderNumberSeed and wraps back to it on reaching
// OrderNumberCeiling; PostgreSQL and Redis apply this rule atomically on their side.
const (
	OrderNumberSeed    = 100
	OrderNumberCeiling = 500
)
