package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reepay-bridge/internal/currency"
	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/payment/webhook"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderResolver finds the order a webhook belongs to when the event itself
// does not identify one.
type OrderResolver interface {
	ResolveOrder(ctx context.Context, scope *webhook.Scope) (string, error)
}

type OrderResolverFunc func(ctx context.Context, scope *webhook.Scope) (string, error)

func (f OrderResolverFunc) ResolveOrder(ctx context.Context, scope *webhook.Scope) (string, error) {
	return f(ctx, scope)
}

// Controller drives the payment lifecycle of an order against Reepay.
type Controller struct {
	cfg        GatewayConfig
	gateway    Gateway
	sessions   *SessionOrchestrator
	currencies currency.Lookup
}

func NewController(cfg GatewayConfig, gateway Gateway, store OrderStore, currencies currency.Lookup) *Controller {
	return &Controller{
		cfg:        cfg,
		gateway:    gateway,
		sessions:   NewSessionOrchestrator(gateway, store, currencies),
		currencies: currencies,
	}
}

// ----------------- Checkout -----------------

func (c *Controller) GenerateCheckout(ctx context.Context, order *Order) (*PaymentForm, error) {
	if err := c.cfg.Validate(); err != nil {
		logger.FromCtx(ctx).Error("Reepay is not configured",
			zap.String("order_number", order.Number),
			zap.Error(err),
		)
		return unavailableForm(), err
	}
	return c.sessions.CreateOrReuseSession(ctx, order, c.cfg)
}

// ----------------- Webhook -----------------

// ResolveOrderFromCallback returns the order number a webhook refers to.
// Events outside the order-resolving allow-list go to fallback.
func (c *Controller) ResolveOrderFromCallback(ctx context.Context, scope *webhook.Scope, fallback OrderResolver) (string, error) {
	log := logger.FromCtx(ctx)

	event, err := scope.Event(c.cfg.WebhookSecret)
	if err != nil {
		logWebhookFailure(log, err)
		return "", err
	}

	if event.ResolvesOrder() {
		return event.ID, nil
	}

	if fallback == nil {
		log.Info("Webhook event does not resolve an order", zap.String("event_type", event.EventType))
		return "", ErrUnresolvedOrder
	}
	return fallback.ResolveOrder(ctx, scope)
}

// ProcessCallback accepts an authenticated webhook for order and reports it
// as authorized. Settlement is confirmed through FetchStatus, not here.
func (c *Controller) ProcessCallback(ctx context.Context, order *Order, scope *webhook.Scope) (CallbackResult, error) {
	log := opLogger(ctx, order, "process_callback")

	event, err := scope.Event(c.cfg.WebhookSecret)
	if err != nil {
		logWebhookFailure(log, err)
		return CallbackResult{}, err
	}

	if !event.ResolvesOrder() {
		log.Info("Ignoring webhook event", zap.String("event_type", event.EventType))
		return CallbackResult{}, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.EventType)
	}
	if event.ID != order.Number {
		log.Warn("Webhook event id does not match order", zap.String("event_id", event.ID))
		return CallbackResult{}, &ValidationError{Field: "event id", Reason: fmt.Sprintf("%q does not match order %q", event.ID, order.Number)}
	}

	if order.PaymentStatus == StatusAuthorized {
		log.Info("Webhook already applied", zap.String("transaction_id", order.TransactionID))
		return CallbackResult{
			OrderNumber:      order.Number,
			TransactionID:    order.TransactionID,
			AmountAuthorized: order.settlementAmount(),
			TransactionFee:   decimal.Zero,
			Status:           StatusAuthorized,
		}, nil
	}

	if err := checkTransition(order.PaymentStatus, StatusAuthorized); err != nil {
		log.Warn("Webhook would move order backwards", zap.Error(err))
		return CallbackResult{}, err
	}

	txnID := event.Transaction
	if txnID == "" {
		txnID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	log.Info("Webhook accepted",
		zap.String("event_type", event.EventType),
		zap.String("transaction_id", txnID),
	)
	return CallbackResult{
		OrderNumber:      order.Number,
		TransactionID:    txnID,
		AmountAuthorized: order.TotalWithTax,
		TransactionFee:   decimal.Zero,
		Status:           StatusAuthorized,
	}, nil
}

func logWebhookFailure(log *zap.Logger, err error) {
	switch {
	case errors.Is(err, webhook.ErrAuthentication):
		log.Warn("Rejected webhook with invalid signature", zap.String("security_event", "webhook_signature"), zap.Error(err))
	case errors.Is(err, webhook.ErrSecretNotConfigured):
		log.Error("Webhook secret is not configured", zap.Error(err))
	default:
		log.Warn("Rejected malformed webhook", zap.Error(err))
	}
}

// ----------------- Charge operations -----------------

func (c *Controller) FetchStatus(ctx context.Context, order *Order) (StatusUpdate, error) {
	log := opLogger(ctx, order, "fetch_status")

	charge, err := c.gateway.GetCharge(ctx, order.Number)
	if err != nil {
		return fail(log, err)
	}
	return c.update(log, order, charge, order.RefundedAmount)
}

func (c *Controller) Cancel(ctx context.Context, order *Order) (StatusUpdate, error) {
	log := opLogger(ctx, order, "cancel")

	charge, err := c.gateway.GetCharge(ctx, order.Number)
	if err != nil {
		return fail(log, err)
	}

	switch charge.State {
	case ChargeStateCancelled:
		log.Info("Charge already cancelled")
	case ChargeStateAuthorized, ChargeStatePending:
		if charge, err = c.gateway.CancelCharge(ctx, order.Number); err != nil {
			return fail(log, err)
		}
	default:
		return fail(log, &StateConflictError{Op: "cancel", State: charge.State})
	}

	return c.update(log, order, charge, order.RefundedAmount)
}

func (c *Controller) Capture(ctx context.Context, order *Order) (StatusUpdate, error) {
	log := opLogger(ctx, order, "capture")

	charge, err := c.gateway.GetCharge(ctx, order.Number)
	if err != nil {
		return fail(log, err)
	}

	switch charge.State {
	case ChargeStateSettled:
		log.Info("Charge already settled")
	case ChargeStateAuthorized:
		amount, err := c.minorUnits(order, order.settlementAmount())
		if err != nil {
			return fail(log, err)
		}
		if charge, err = c.gateway.SettleCharge(ctx, order.Number, amount); err != nil {
			return fail(log, err)
		}
	default:
		return fail(log, &StateConflictError{Op: "capture", State: charge.State})
	}

	return c.update(log, order, charge, order.RefundedAmount)
}

// Refund returns the not yet refunded part of a settled charge. The order
// stays captured; the refunded total is reported on the update.
func (c *Controller) Refund(ctx context.Context, order *Order) (StatusUpdate, error) {
	log := opLogger(ctx, order, "refund")

	charge, err := c.gateway.GetCharge(ctx, order.Number)
	if err != nil {
		return fail(log, err)
	}
	if charge.State != ChargeStateSettled {
		return fail(log, &StateConflictError{Op: "refund", State: charge.State})
	}

	remaining := order.settlementAmount().Sub(order.RefundedAmount)
	if !remaining.IsPositive() {
		return fail(log, &ValidationError{Field: "amount", Reason: "nothing left to refund"})
	}

	exponent, err := c.exponent(order)
	if err != nil {
		return fail(log, err)
	}
	amount, err := currency.ToMinorUnits(remaining, exponent)
	if err != nil {
		return fail(log, &ValidationError{Field: "amount", Reason: err.Error()})
	}

	refund, err := c.gateway.RefundCharge(ctx, order.Number, amount)
	if err != nil {
		return fail(log, err)
	}
	refunded := amount
	if refund.Amount > 0 {
		refunded = refund.Amount
	}

	// A processing refund still counts so a retry does not refund twice.
	switch refund.State {
	case RefundStateFailed:
		return fail(log, &GatewayError{Kind: ErrProtocol, Op: "refund_charge", Code: refund.Error, Message: "refund was declined"})
	case RefundStateProcessing:
		log.Warn("Refund pending at Reepay", zap.String("refund_id", refund.ID), zap.Int64("amount", refunded))
	default:
		log.Info("Refund accepted", zap.String("refund_id", refund.ID), zap.String("refund_state", string(refund.State)))
	}

	return c.update(log, order, charge, order.RefundedAmount.Add(currency.FromMinorUnits(refunded, exponent)))
}

// update maps charge to a status and rejects transitions that would move
// the order backwards.
func (c *Controller) update(log *zap.Logger, order *Order, charge *Charge, refunded decimal.Decimal) (StatusUpdate, error) {
	status := MapStatus(charge.State)
	if err := checkTransition(order.PaymentStatus, status); err != nil {
		return fail(log.With(zap.String("charge_state", string(charge.State))), err)
	}

	txnID := charge.Transaction
	if txnID == "" {
		txnID = order.TransactionID
	}

	log.Info("Payment status resolved",
		zap.String("charge_state", string(charge.State)),
		zap.String("status", string(status)),
	)
	return StatusUpdate{
		OrderNumber:    order.Number,
		TransactionID:  txnID,
		Status:         status,
		RefundedAmount: refunded,
		Known:          true,
	}, nil
}

func (c *Controller) exponent(order *Order) (int, error) {
	exponent, ok := c.currencies.MinorUnitExponent(order.CurrencyCode)
	if !ok {
		return 0, &ValidationError{Field: "currency", Reason: fmt.Sprintf("%q is not an ISO 4217 code", order.CurrencyCode)}
	}
	return exponent, nil
}

func (c *Controller) minorUnits(order *Order, amount decimal.Decimal) (int64, error) {
	exponent, err := c.exponent(order)
	if err != nil {
		return 0, err
	}
	minor, err := currency.ToMinorUnits(amount, exponent)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	return minor, nil
}

func opLogger(ctx context.Context, order *Order, op string) *zap.Logger {
	return logger.FromCtx(logger.WithOrderNumber(ctx, order.Number)).With(
		zap.String("operation", op),
	)
}

// fail logs err and returns the unknown status update.
func fail(log *zap.Logger, err error) (StatusUpdate, error) {
	fields := []zap.Field{zap.Error(err), zap.Bool("retryable", Retryable(err))}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		fields = append(fields,
			zap.Int("http_status", gwErr.StatusCode),
			zap.String("gateway_code", gwErr.Code),
		)
	}
	var conflict *StateConflictError
	if errors.As(err, &conflict) {
		fields = append(fields, zap.String("charge_state", string(conflict.State)))
		log.Warn("Payment operation rejected", fields...)
		return StatusUpdate{}, err
	}

	log.Error("Payment operation failed", fields...)
	return StatusUpdate{}, err
}
