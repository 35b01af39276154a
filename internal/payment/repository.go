package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

const ProviderReepay = "REEPAY"

// Delivery is one authenticated webhook delivery.
type Delivery struct {
	Provider       string
	EventID        string
	EventType      string
	EventTimestamp string
	OrderNumber    string
	Payload        json.RawMessage
}

// DeliveryLog records webhook deliveries so retried ones are acknowledged
// without being applied twice.
type DeliveryLog interface {
	// Record stores d. duplicate is true when the same delivery was already
	// processed; a delivery whose earlier attempt failed is handed out again.
	Record(ctx context.Context, d Delivery) (id int64, duplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type deliveryLog struct {
	db *sql.DB
}

func NewDeliveryLog(db *sql.DB) DeliveryLog {
	return &deliveryLog{db: db}
}

func (r *deliveryLog) Record(ctx context.Context, d Delivery) (int64, bool, error) {
	provider := d.Provider
	if provider == "" {
		provider = ProviderReepay
	}

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		event_timestamp,
		order_number,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	ON CONFLICT (provider, event_id, event_type, event_timestamp)
	DO UPDATE SET attempts = payment_webhooks.attempts + 1, process_error = NULL
	WHERE payment_webhooks.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		d.EventID,
		d.EventType,
		d.EventTimestamp,
		d.OrderNumber,
		string(d.Payload),
	).Scan(&id)

	if err != nil {
		// Already processed → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *deliveryLog) MarkWebhookProcessed(
	ctx context.Context,
	webhookID int64,
) error {

	const q = `
	UPDATE payment_webhooks
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *deliveryLog) MarkWebhookFailed(
	ctx context.Context,
	webhookID int64,
	reason string,
) error {

	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
