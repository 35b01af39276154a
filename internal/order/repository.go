package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/payment"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

type Repository interface {
	FindByNumber(ctx context.Context, number string) (*Order, error)

	GetMetadata(ctx context.Context, orderNumber, key string) (string, error)
	SetMetadata(ctx context.Context, orderNumber, key, value string) error

	ApplyCallback(ctx context.Context, orderNumber string, result payment.CallbackResult) error
	ApplyStatusUpdate(ctx context.Context, update payment.StatusUpdate) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*Order, error) {
	const q = `
		SELECT
			id, number, total_with_tax, currency,
			customer_email, customer_reference, customer_first_name, customer_last_name,
			payment_status, transaction_id, authorized_amount, refunded_amount,
			created_at, updated_at
		FROM orders
		WHERE number = $1
	`

	var o Order
	err := r.db.QueryRowContext(ctx, q, number).Scan(
		&o.ID, &o.Number, &o.TotalWithTax, &o.Currency,
		&o.CustomerEmail, &o.CustomerReference, &o.CustomerFirstName, &o.CustomerLastName,
		&o.PaymentStatus, &o.TransactionID, &o.AuthorizedAmount, &o.RefundedAmount,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load order",
			zap.String("order_number", number),
			zap.Error(err),
		)
		return nil, fmt.Errorf("load order %s: %w", number, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT key, value
		FROM order_metadata
		WHERE order_number = $1
	`, number)
	if err != nil {
		return nil, fmt.Errorf("load order metadata %s: %w", number, err)
	}
	defer rows.Close()

	o.Metadata = make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		o.Metadata[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) GetMetadata(ctx context.Context, orderNumber, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value
		FROM order_metadata
		WHERE order_number = $1 AND key = $2
	`, orderNumber, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *repository) SetMetadata(ctx context.Context, orderNumber, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_metadata (order_number, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_number, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, orderNumber, key, value)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return ErrOrderNotFound
		}
		return err
	}
	return nil
}

func (r *repository) ApplyCallback(ctx context.Context, orderNumber string, result payment.CallbackResult) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2,
			transaction_id = $3,
			authorized_amount = $4,
			updated_at = now()
		WHERE number = $1
	`, orderNumber, string(result.Status), result.TransactionID, result.AmountAuthorized)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ApplyStatusUpdate stores a known status update. Unknown updates are ignored.
func (r *repository) ApplyStatusUpdate(ctx context.Context, update payment.StatusUpdate) error {
	if !update.Known {
		return nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2,
			transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
			refunded_amount = $4,
			updated_at = now()
		WHERE number = $1
	`, update.OrderNumber, string(update.Status), update.TransactionID, update.RefundedAmount)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}
