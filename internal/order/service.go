package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reepay-bridge/internal/lock"
	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/metrics"
	"reepay-bridge/internal/payment"
	"reepay-bridge/internal/payment/webhook"

	"go.uber.org/zap"
)

const defaultLockWait = 10 * time.Second

// PaymentController is the payment lifecycle surface the service drives.
type PaymentController interface {
	GenerateCheckout(ctx context.Context, order *payment.Order) (*payment.PaymentForm, error)
	ResolveOrderFromCallback(ctx context.Context, scope *webhook.Scope, fallback payment.OrderResolver) (string, error)
	ProcessCallback(ctx context.Context, order *payment.Order, scope *webhook.Scope) (payment.CallbackResult, error)
	FetchStatus(ctx context.Context, order *payment.Order) (payment.StatusUpdate, error)
	Cancel(ctx context.Context, order *payment.Order) (payment.StatusUpdate, error)
	Capture(ctx context.Context, order *payment.Order) (payment.StatusUpdate, error)
	Refund(ctx context.Context, order *payment.Order) (payment.StatusUpdate, error)
}

type Service interface {
	Checkout(ctx context.Context, number string) (*payment.PaymentForm, error)
	HandleWebhook(ctx context.Context, body []byte) (*WebhookOutcome, error)

	PaymentStatus(ctx context.Context, number string) (payment.StatusUpdate, error)
	Capture(ctx context.Context, number string) (payment.StatusUpdate, error)
	Cancel(ctx context.Context, number string) (payment.StatusUpdate, error)
	Refund(ctx context.Context, number string) (payment.StatusUpdate, error)
}

type service struct {
	repo          Repository
	deliveries    payment.DeliveryLog
	payments      PaymentController
	locker        lock.Locker
	webhookSecret string
	lockWait      time.Duration
}

func NewService(
	repo Repository,
	deliveries payment.DeliveryLog,
	payments PaymentController,
	locker lock.Locker,
	webhookSecret string,
) Service {
	return &service{
		repo:          repo,
		deliveries:    deliveries,
		payments:      payments,
		locker:        locker,
		webhookSecret: webhookSecret,
		lockWait:      defaultLockWait,
	}
}

// ----------------- Checkout -----------------

func (s *service) Checkout(ctx context.Context, number string) (*payment.PaymentForm, error) {
	if err := validateNumber(number); err != nil {
		return nil, err
	}

	unlock, err := s.lockOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	form, err := s.payments.GenerateCheckout(ctx, ToPaymentOrder(o))
	if err != nil {
		metrics.CheckoutFailures.Inc()
		return form, err
	}

	metrics.CheckoutSessions.Inc()
	return form, nil
}

// ----------------- Webhook -----------------

// HandleWebhook authenticates a Reepay notification, applies it to its order
// once, and reports what happened. Errors mean the delivery was rejected or
// could not be processed.
func (s *service) HandleWebhook(ctx context.Context, body []byte) (*WebhookOutcome, error) {
	metrics.WebhooksReceived.Inc()
	log := logger.FromCtx(ctx)

	scope := webhook.NewScope(body)

	number, err := s.payments.ResolveOrderFromCallback(ctx, scope, payment.OrderResolverFunc(s.resolveByInvoice))
	if errors.Is(err, payment.ErrUnresolvedOrder) {
		metrics.WebhooksIgnored.Inc()
		return &WebhookOutcome{Disposition: DispositionIgnored}, nil
	}
	if err != nil {
		metrics.WebhooksRejected.Inc()
		return nil, err
	}

	event, err := scope.Event(s.webhookSecret)
	if err != nil {
		metrics.WebhooksRejected.Inc()
		return nil, err
	}

	log = log.With(
		zap.String("order_number", number),
		zap.String("event_type", event.EventType),
	)

	unlock, err := s.lockOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	defer unlock()

	eventID := event.EventID
	if eventID == "" {
		eventID = event.ID
	}

	deliveryID, duplicate, err := s.deliveries.Record(ctx, payment.Delivery{
		Provider:       payment.ProviderReepay,
		EventID:        eventID,
		EventType:      event.EventType,
		EventTimestamp: event.Timestamp,
		OrderNumber:    number,
		Payload:        event.Raw,
	})
	if err != nil {
		log.Error("failed to record webhook delivery", zap.Error(err))
		return nil, fmt.Errorf("record webhook delivery: %w", err)
	}
	if duplicate {
		log.Info("duplicate webhook delivery acknowledged", zap.String("event_id", eventID))
		metrics.WebhooksDuplicate.Inc()
		return &WebhookOutcome{OrderNumber: number, Disposition: DispositionDuplicate}, nil
	}

	o, err := s.repo.FindByNumber(ctx, number)
	if errors.Is(err, ErrOrderNotFound) {
		log.Warn("webhook for unknown order")
		s.markFailed(ctx, deliveryID, err)
		metrics.WebhooksIgnored.Inc()
		return &WebhookOutcome{OrderNumber: number, Disposition: DispositionIgnored}, nil
	}
	if err != nil {
		s.markFailed(ctx, deliveryID, err)
		return nil, err
	}

	result, err := s.payments.ProcessCallback(ctx, ToPaymentOrder(o), scope)
	if err != nil {
		var transitionErr *payment.TransitionError
		switch {
		case errors.Is(err, payment.ErrUnhandledEvent):
			s.markProcessed(ctx, deliveryID)
			metrics.WebhooksIgnored.Inc()
			return &WebhookOutcome{OrderNumber: number, Disposition: DispositionIgnored}, nil
		case errors.As(err, &transitionErr):
			s.markProcessed(ctx, deliveryID)
			metrics.WebhooksIgnored.Inc()
			return &WebhookOutcome{OrderNumber: number, Disposition: DispositionStale}, nil
		default:
			s.markFailed(ctx, deliveryID, err)
			return nil, err
		}
	}

	if err := s.repo.ApplyCallback(ctx, number, result); err != nil {
		log.Error("failed to apply webhook to order", zap.Error(err))
		s.markFailed(ctx, deliveryID, err)
		return nil, fmt.Errorf("apply callback: %w", err)
	}

	s.markProcessed(ctx, deliveryID)
	metrics.WebhooksApplied.Inc()

	log.Info("webhook applied", zap.String("transaction_id", result.TransactionID))
	return &WebhookOutcome{OrderNumber: number, Disposition: DispositionApplied, Result: &result}, nil
}

// resolveByInvoice correlates events outside the order allow-list through
// the invoice handle they carry, which Reepay sets to the order handle.
func (s *service) resolveByInvoice(ctx context.Context, scope *webhook.Scope) (string, error) {
	event, err := scope.Event(s.webhookSecret)
	if err != nil {
		return "", err
	}
	if event.Invoice == "" {
		logger.FromCtx(ctx).Info("webhook carries no invoice", zap.String("event_type", event.EventType))
		return "", payment.ErrUnresolvedOrder
	}
	return event.Invoice, nil
}

func (s *service) markProcessed(ctx context.Context, deliveryID int64) {
	if err := s.deliveries.MarkWebhookProcessed(ctx, deliveryID); err != nil {
		logger.FromCtx(ctx).Error("failed to mark webhook processed",
			zap.Int64("webhook_id", deliveryID),
			zap.Error(err),
		)
	}
}

func (s *service) markFailed(ctx context.Context, deliveryID int64, cause error) {
	if err := s.deliveries.MarkWebhookFailed(ctx, deliveryID, cause.Error()); err != nil {
		logger.FromCtx(ctx).Error("failed to mark webhook failed",
			zap.Int64("webhook_id", deliveryID),
			zap.Error(err),
		)
	}
}

// ----------------- Operator actions -----------------

func (s *service) PaymentStatus(ctx context.Context, number string) (payment.StatusUpdate, error) {
	return s.operate(ctx, number, "fetch_status", s.payments.FetchStatus)
}

func (s *service) Capture(ctx context.Context, number string) (payment.StatusUpdate, error) {
	return s.operate(ctx, number, "capture", s.payments.Capture)
}

func (s *service) Cancel(ctx context.Context, number string) (payment.StatusUpdate, error) {
	return s.operate(ctx, number, "cancel", s.payments.Cancel)
}

func (s *service) Refund(ctx context.Context, number string) (payment.StatusUpdate, error) {
	return s.operate(ctx, number, "refund", s.payments.Refund)
}

type operation func(ctx context.Context, order *payment.Order) (payment.StatusUpdate, error)

// operate runs op on the order under its lock and stores the outcome.
func (s *service) operate(ctx context.Context, number, name string, op operation) (payment.StatusUpdate, error) {
	if err := validateNumber(number); err != nil {
		return payment.StatusUpdate{}, err
	}

	ctx = logger.WithOrderNumber(ctx, number)
	unlock, err := s.lockOrder(ctx, number)
	if err != nil {
		return payment.StatusUpdate{}, err
	}
	defer unlock()

	o, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return payment.StatusUpdate{}, err
	}

	timer := metrics.StartTimer()
	update, err := op(ctx, ToPaymentOrder(o))
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrStateConflict):
		metrics.OperationConflicts.Inc()
		outcome = metrics.OutcomeConflict
	case errors.Is(err, payment.ErrTransport), errors.Is(err, payment.ErrProtocol):
		metrics.GatewayFailures.Inc()
		outcome = metrics.OutcomeGateway
	default:
		outcome = metrics.OutcomeError
	}
	log := logger.FromCtx(ctx).With(
		zap.String("operation", name),
		zap.Duration("duration", timer.Observe(name, outcome)),
	)
	if err != nil {
		return update, err
	}

	if err := s.repo.ApplyStatusUpdate(ctx, update); err != nil {
		log.Error("failed to store payment status", zap.Error(err))
		return update, fmt.Errorf("store payment status: %w", err)
	}

	metrics.OperationsApplied.Inc()
	log.Info("payment operation applied", zap.String("status", string(update.Status)))
	return update, nil
}

func (s *service) lockOrder(ctx context.Context, number string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, lock.OrderKey(number))
	if err != nil {
		logger.FromCtx(logger.WithOrderNumber(ctx, number)).Warn("could not lock order", zap.Error(err))
		return nil, err
	}
	return unlock, nil
}

func validateNumber(number string) error {
	if strings.TrimSpace(number) == "" || len(number) > 64 {
		return ErrInvalidNumber
	}
	return nil
}
