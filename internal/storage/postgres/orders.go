package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

const uniqueViolation = "23505"

const orderColumns = `o.id, o.gateway_order_id, o.receipt, o.customer_id, o.merchant_id, o.order_number,
    o.amount, o.currency, o.status, o.order_type, o.items,
    COALESCE(o.payment_id, ''), COALESCE(o.payment_signature, ''),
    o.amount_refunded, o.refunds, o.refund_attempts,
    COALESCE(o.failure_reason, ''), COALESCE(o.cancellation_reason, ''), COALESCE(o.cancelled_by, ''),
    o.created_at, o.updated_at, o.paid_at, o.failed_at, o.cancelled_at`

var newOrderID = func() string {
	return uuid.NewString()
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                             model.Order
		items, refunds, attempts      []byte
		paidAt, failedAt, cancelledAt *time.Time
	)
	err := row.Scan(
		&o.ID, &o.GatewayOrderID, &o.Receipt, &o.CustomerID, &o.MerchantID, &o.Number,
		&o.Amount, &o.Currency, &o.Status, &o.Type, &items,
		&o.PaymentID, &o.PaymentSignature,
		&o.AmountRefunded, &refunds, &attempts,
		&o.FailureReason, &o.CancellationReason, &o.CancelledBy,
		&o.CreatedAt, &o.UpdatedAt, &paidAt, &failedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalColumn(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := unmarshalColumn(refunds, &o.Refunds); err != nil {
		return nil, fmt.Errorf("decode refunds: %w", err)
	}
	if err := unmarshalColumn(attempts, &o.RefundAttempts); err != nil {
		return nil, fmt.Errorf("decode refund attempts: %w", err)
	}
	o.PaidAt, o.FailedAt, o.CancelledAt = paidAt, failedAt, cancelledAt
	return &o, nil
}

func unmarshalColumn(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func notFound() error {
	return domainErrors.New(domainErrors.KindNotFound, "order not found")
}

func (r *orderRepository) Insert(ctx context.Context, order *model.Order) (string, error) {
	if err := r.storage.ensureReady(); err != nil {
		return "", err
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return "", domainErrors.Storage(err, "encode items")
	}

	id := newOrderID()
	const insertOrder = `INSERT INTO orders (id, gateway_order_id, receipt, customer_id, merchant_id, order_number,
                             amount, currency, status, order_type, items)
                         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
                         RETURNING created_at, updated_at`
	const insertHistory = `INSERT INTO customer_orders (customer_id, order_id, merchant_id, order_number,
                               amount, currency, status, created_at)
                           VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var createdAt, updatedAt time.Time
	number := order.Number
	err = r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		if number == 0 {
			allocated, err := allocateNumber(ctx, tx, order.MerchantID)
			if err != nil {
				return fmt.Errorf("allocate order number: %w", err)
			}
			number = allocated
		}
		err := tx.QueryRow(ctx, insertOrder,
			id, order.GatewayOrderID, order.Receipt, order.CustomerID, order.MerchantID, number,
			order.Amount, order.Currency, string(order.Status), string(order.Type), string(items),
		).Scan(&createdAt, &updatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertHistory,
			order.CustomerID, id, order.MerchantID, number,
			order.Amount, order.Currency, string(order.Status), createdAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", domainErrors.Wrap(domainErrors.KindConflict, err, "gateway order already recorded")
		}
		return "", domainErrors.Storage(err, "insert order")
	}

	order.ID = id
	order.Number = number
	order.CreatedAt = createdAt
	order.UpdatedAt = updatedAt
	return id, nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id=$1`, orderID)
}

func (r *orderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.gateway_order_id=$1`, gatewayOrderID)
}

func (r *orderRepository) findOne(ctx context.Context, query string, arg string) (*model.Order, error) {
	if err := r.storage.ensureReady(); err != nil {
		return nil, err
	}
	order, err := scanOrder(r.storage.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound()
		}
		return nil, domainErrors.Storage(err, "find order")
	}
	return order, nil
}

func (r *orderRepository) ConditionalUpdate(ctx context.Context, orderID string, expected model.OrderStatus, patch model.OrderPatch) (*model.Order, error) {
	if err := r.storage.ensureReady(); err != nil {
		return nil, err
	}

	const updateOrder = `UPDATE orders o SET
            status = $2,
            payment_id = COALESCE(NULLIF($3, ''), o.payment_id),
            payment_signature = COALESCE(NULLIF($4, ''), o.payment_signature),
            failure_reason = COALESCE(NULLIF($5, ''), o.failure_reason),
            cancellation_reason = COALESCE(NULLIF($6, ''), o.cancellation_reason),
            cancelled_by = COALESCE(NULLIF($7, ''), o.cancelled_by),
            paid_at = CASE WHEN $2 = 'paid' THEN NOW() ELSE o.paid_at END,
            failed_at = CASE WHEN $2 = 'failed' THEN NOW() ELSE o.failed_at END,
            cancelled_at = CASE WHEN $2 = 'cancelled' THEN NOW() ELSE o.cancelled_at END,
            updated_at = NOW()
        WHERE o.id = $1 AND o.status = $8
        RETURNING ` + orderColumns
	const updateHistory = `UPDATE customer_orders SET status=$2, updated_at=NOW() WHERE order_id=$1`

	var updated *model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		order, err := scanOrder(tx.QueryRow(ctx, updateOrder,
			orderID, string(patch.Status), patch.PaymentID, patch.PaymentSignature,
			patch.FailureReason, patch.CancellationReason, patch.CancelledBy, string(expected),
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.missOrConflict(ctx, tx, orderID)
			}
			return err
		}
		if _, err := tx.Exec(ctx, updateHistory, orderID, string(order.Status)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, domainErrors.Storage(err, "update order status")
	}
	return updated, nil
}

func (r *orderRepository) ApplyRefund(ctx context.Context, orderID string, expectedRefunded int64, refund model.RefundRecord, status model.OrderStatus) (*model.Order, error) {
	if err := r.storage.ensureReady(); err != nil {
		return nil, err
	}

	record, err := json.Marshal([]model.RefundRecord{refund})
	if err != nil {
		return nil, domainErrors.Storage(err, "encode refund")
	}

	const updateOrder = `UPDATE orders o SET
            amount_refunded = o.amount_refunded + $3,
            refunds = o.refunds || $4::jsonb,
            status = $5,
            updated_at = NOW()
        WHERE o.id = $1
          AND o.amount_refunded = $2
          AND o.amount_refunded + $3 <= o.amount
          AND o.status IN ('paid', 'partially_refunded')
        RETURNING ` + orderColumns
	const updateHistory = `UPDATE customer_orders SET status=$2, amount_refunded=$3, updated_at=NOW() WHERE order_id=$1`

	var updated *model.Order
	err = r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		order, err := scanOrder(tx.QueryRow(ctx, updateOrder,
			orderID, expectedRefunded, refund.Amount, string(record), string(status),
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.missOrConflict(ctx, tx, orderID)
			}
			return err
		}
		if _, err := tx.Exec(ctx, updateHistory, orderID, string(order.Status), order.AmountRefunded); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, domainErrors.Storage(err, "apply refund")
	}
	return updated, nil
}

func (r *orderRepository) missOrConflict(ctx context.Context, tx pgx.Tx, orderID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound()
	}
	return domainErrors.New(domainErrors.KindConflict, "order was modified concurrently")
}

func (r *orderRepository) AppendRefundAttempt(ctx context.Context, orderID string, attempt model.RefundAttempt) error {
	if err := r.storage.ensureReady(); err != nil {
		return err
	}

	payload, err := json.Marshal([]model.RefundAttempt{attempt})
	if err != nil {
		return domainErrors.Storage(err, "encode refund attempt")
	}

	const query = `UPDATE orders SET refund_attempts = refund_attempts || $2::jsonb, updated_at=NOW() WHERE id=$1`
	tag, err := r.storage.pool.Exec(ctx, query, orderID, string(payload))
	if err != nil {
		return domainErrors.Storage(err, "append refund attempt")
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error) {
	if err := r.storage.ensureReady(); err != nil {
		return nil, err
	}

	query := `SELECT ` + orderColumns + `
              FROM customer_orders h
              JOIN orders o ON o.id = h.order_id
              WHERE h.customer_id=$1
              ORDER BY h.created_at DESC`
	rows, err := r.storage.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, domainErrors.Storage(err, "list orders")
	}
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domainErrors.Storage(err, "list orders")
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.Storage(err, "list orders")
	}
	return result, nil
}

func (r *orderRepository) ClaimForReconciliation(ctx context.Context, createdBefore, claimedBefore time.Time, limit int) ([]model.Order, error) {
	if err := r.storage.ensureReady(); err != nil {
		return nil, err
	}

	selectQuery := `SELECT ` + orderColumns + `
                    FROM orders o
                    WHERE o.status = 'created'
                      AND o.created_at <= $1
                      AND (o.reconciled_at IS NULL OR o.reconciled_at <= $2)
                    ORDER BY o.created_at
                    LIMIT $3
                    FOR UPDATE SKIP LOCKED`
	const claimQuery = `UPDATE orders SET reconciled_at=NOW() WHERE id = ANY($1)`

	var orders []model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectQuery, createdBefore, claimedBefore, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				rows.Close()
				return err
			}
			orders = append(orders, *o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		_, err = tx.Exec(ctx, claimQuery, ids)
		return err
	})
	if err != nil {
		return nil, domainErrors.Storage(err, "claim orders for reconciliation")
	}
	return orders, nil
}
