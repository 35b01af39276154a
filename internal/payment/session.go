package payment

import (
	"context"
	"fmt"
	"time"

	"reepay-bridge/internal/currency"
	"reepay-bridge/internal/logger"

	"go.uber.org/zap"
)

// OrderStore is the narrow slice of the order subsystem the payment core
// writes through. GetMetadata returns "" for a missing key.
type OrderStore interface {
	GetMetadata(ctx context.Context, orderNumber, key string) (string, error)
	SetMetadata(ctx context.Context, orderNumber, key, value string) error
}

type SessionOrchestrator struct {
	gateway    Gateway
	store      OrderStore
	currencies currency.Lookup
	now        func() time.Time
}

func NewSessionOrchestrator(gateway Gateway, store OrderStore, currencies currency.Lookup) *SessionOrchestrator {
	return &SessionOrchestrator{
		gateway:    gateway,
		store:      store,
		currencies: currencies,
		now:        time.Now,
	}
}

// storedSession is a checkout session previously persisted on an order.
type storedSession struct {
	id          string
	url         string
	expiresAt   time.Time
	fingerprint string
}

func (s storedSession) usable(now time.Time, fingerprint string) bool {
	return s.id != "" && s.url != "" &&
		now.Before(s.expiresAt) &&
		s.fingerprint == fingerprint
}

func sessionFingerprint(amount int64, currencyCode string) string {
	return fmt.Sprintf("%d:%s", amount, currencyCode)
}

// CreateOrReuseSession returns a payment form for the order, creating a
// hosted checkout session only when no live one is stored on the order.
// Gateway failures yield an unavailable form together with the error.
func (o *SessionOrchestrator) CreateOrReuseSession(ctx context.Context, order *Order, cfg GatewayConfig) (*PaymentForm, error) {
	log := opLogger(ctx, order, "create_session")

	currencyCode := currency.Normalize(order.CurrencyCode)
	if !o.currencies.IsValidISO4217(currencyCode) {
		log.Warn("Rejected checkout with unknown currency", zap.String("currency", order.CurrencyCode))
		return nil, &ValidationError{Field: "currency", Reason: fmt.Sprintf("%q is not an ISO 4217 code", order.CurrencyCode)}
	}
	exponent, _ := o.currencies.MinorUnitExponent(currencyCode)

	amount, err := currency.ToMinorUnits(order.TotalWithTax, exponent)
	if err != nil {
		log.Warn("Rejected checkout amount", zap.String("amount", order.TotalWithTax.String()), zap.Error(err))
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}

	fingerprint := sessionFingerprint(amount, currencyCode)
	now := o.now()

	stored, err := o.loadSession(ctx, order.Number)
	if err != nil {
		log.Error("Failed to read checkout session", zap.Error(err))
		return unavailableForm(), fmt.Errorf("%w: %s: %v", ErrSessionStore, order.Number, err)
	}
	if stored.usable(now, fingerprint) {
		log.Info("Reusing checkout session", zap.String("session_id", stored.id))
		return newPaymentForm(stored.id, stored.url, true), nil
	}

	req := buildSessionRequest(order, cfg, amount, currencyCode)
	if _, unknown := NormalizePaymentMethods(cfg.PaymentMethods); len(unknown) > 0 {
		log.Warn("Unrecognised payment methods passed to Reepay", zap.Strings("methods", unknown))
	}

	session, err := o.gateway.CreateSession(ctx, req)
	if err != nil {
		log.Error("Failed to create checkout session", zap.Error(err), zap.Bool("retryable", Retryable(err)))
		return unavailableForm(), fmt.Errorf("create checkout session for %s: %w", order.Number, err)
	}

	o.saveSession(ctx, order.Number, storedSession{
		id:          session.ID,
		url:         session.URL,
		expiresAt:   now.Add(cfg.sessionTTL()),
		fingerprint: fingerprint,
	})

	log.Info("Created checkout session", zap.String("session_id", session.ID), zap.Int64("amount", amount))
	return newPaymentForm(session.ID, session.URL, false), nil
}

func buildSessionRequest(order *Order, cfg GatewayConfig, amount int64, currencyCode string) ChargeSessionRequest {
	methods, _ := NormalizePaymentMethods(cfg.PaymentMethods)

	return ChargeSessionRequest{
		Order: SessionOrder{
			Handle:   order.Number,
			Amount:   amount,
			Currency: currencyCode,
			Customer: SessionCustomer{
				Email:          order.Customer.Email,
				Handle:         order.Customer.Reference,
				FirstName:      order.Customer.FirstName,
				LastName:       order.Customer.LastName,
				GenerateHandle: order.Customer.Reference == "",
			},
		},
		Locale:         cfg.Locale,
		Settle:         cfg.SettleImmediately,
		AcceptURL:      cfg.ContinueURL,
		CancelURL:      cfg.CancelURL,
		PaymentMethods: methods,
	}
}

// loadSession reads the stored session. Any read failure is returned.
func (o *SessionOrchestrator) loadSession(ctx context.Context, orderNumber string) (storedSession, error) {
	var s storedSession
	values := make(map[string]string, 4)
	for _, key := range []string{MetaChargeSessionID, MetaChargeSessionURL, MetaChargeSessionExpiresAt, MetaChargeSessionFingerprint} {
		v, err := o.store.GetMetadata(ctx, orderNumber, key)
		if err != nil {
			return s, fmt.Errorf("read %s: %w", key, err)
		}
		values[key] = v
	}

	s.id = values[MetaChargeSessionID]
	s.url = values[MetaChargeSessionURL]
	s.fingerprint = values[MetaChargeSessionFingerprint]
	if t, err := time.Parse(time.RFC3339, values[MetaChargeSessionExpiresAt]); err == nil {
		s.expiresAt = t
	}
	return s, nil
}

// saveSession clears the stored id first and writes the new one last so a
// partial write never looks like a complete session.
func (o *SessionOrchestrator) saveSession(ctx context.Context, orderNumber string, s storedSession) {
	pairs := [][2]string{
		{MetaChargeSessionID, ""},
		{MetaChargeSessionURL, s.url},
		{MetaChargeSessionExpiresAt, s.expiresAt.UTC().Format(time.RFC3339)},
		{MetaChargeSessionFingerprint, s.fingerprint},
		{MetaChargeSessionID, s.id},
	}
	for _, kv := range pairs {
		if err := o.store.SetMetadata(ctx, orderNumber, kv[0], kv[1]); err != nil {
			logger.FromCtx(ctx).Error("Failed to persist checkout session metadata",
				zap.String("order_number", orderNumber),
				zap.String("key", kv[0]),
				zap.Error(err),
			)
			return
		}
	}
}
