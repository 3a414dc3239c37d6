package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

const allocateNumberQuery = `INSERT INTO merchant_counters AS c (merchant_id, value)
                   VALUES ($1, $2)
                   ON CONFLICT (merchant_id) DO UPDATE SET
                       value = CASE
                           WHEN c.value + 1 >= $3 OR c.value + 1 < $2 THEN $2
                           ELSE c.value + 1
                       END,
                       updated_at = NOW()
                   RETURNING value`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// allocateNumber advances the merchant counter in a single upsert. The row lock it takes
// is held until the surrounding transaction ends, so concurrent inserts for one merchant
// never share a number and a rollback returns the number.
func allocateNumber(ctx context.Context, q rowQuerier, merchantID string) (int, error) {
	var number int
	err := q.QueryRow(ctx, allocateNumberQuery, merchantID, model.OrderNumberSeed, model.OrderNumberCeiling).Scan(&number)
	return number, err
}
