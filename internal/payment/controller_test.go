package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"reepay-bridge/internal/currency"
	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/payment/webhook"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func signedBody(t *testing.T, secret, id, eventType, timestamp string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"id":          id,
		"event_id":    "evt-" + id,
		"event_type":  eventType,
		"timestamp":   timestamp,
		"signature":   webhook.ComputeSignature(secret, timestamp, id),
		"invoice":     id,
		"transaction": "",
	})
	require.NoError(t, err)
	return body
}

func newTestController(gw Gateway) *Controller {
	return NewController(testConfig(), gw, newMemoryStore(), currency.NewTable())
}

func TestController_GenerateCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidConfig", func(t *testing.T) {
		gw := new(MockGateway)
		cfg := testConfig()
		cfg.ErrorURL = ""
		c := NewController(cfg, gw, newMemoryStore(), currency.NewTable())

		form, err := c.GenerateCheckout(ctx, testOrder())
		assert.ErrorIs(t, err, ErrValidation)
		assert.False(t, form.Available)
		gw.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	})

	t.Run("UnknownCurrencyMakesNoCalls", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)

		order := testOrder()
		order.CurrencyCode = "XXX"

		_, err := c.GenerateCheckout(ctx, order)
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "currency", vErr.Field)
		assert.Empty(t, gw.Calls)
	})

	t.Run("Success", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("CreateSession", mock.Anything, mock.Anything).
			Return(&ChargeSession{ID: "cs_1", URL: "https://checkout.reepay.com/#/cs_1"}, nil).Once()

		form, err := c.GenerateCheckout(ctx, testOrder())
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.reepay.com/#/cs_1", form.URL)
		assert.Equal(t, "GET", form.Method)
	})
}

func TestController_ProcessCallback(t *testing.T) {
	ctx := context.Background()
	const secret = "whsec"

	t.Run("AuthorizesOrder", func(t *testing.T) {
		c := newTestController(new(MockGateway))
		scope := webhook.NewScope(signedBody(t, secret, "ORD-100", webhook.EventInvoiceAuthorized, "2024-05-01T12:00:00Z"))

		result, err := c.ProcessCallback(ctx, testOrder(), scope)
		require.NoError(t, err)
		assert.Equal(t, StatusAuthorized, result.Status)
		assert.NotEmpty(t, result.TransactionID)
		assert.Len(t, result.TransactionID, 32)
		assert.True(t, result.AmountAuthorized.Equal(decimal.RequireFromString("49.00")))
		assert.True(t, result.TransactionFee.IsZero())
	})

	t.Run("UsesEventTransaction", func(t *testing.T) {
		c := newTestController(new(MockGateway))
		ts := "2024-05-01T12:00:00Z"
		body, _ := json.Marshal(map[string]string{
			"id":          "ORD-100",
			"event_type":  webhook.EventInvoiceSettled,
			"timestamp":   ts,
			"signature":   webhook.ComputeSignature(secret, ts, "ORD-100"),
			"transaction": "txn-42",
		})

		result, err := c.ProcessCallback(ctx, testOrder(), webhook.NewScope(body))
		require.NoError(t, err)
		assert.Equal(t, "txn-42", result.TransactionID)
	})

	t.Run("AlreadyAuthorizedIsIdempotent", func(t *testing.T) {
		c := newTestController(new(MockGateway))
		order := testOrder()
		order.PaymentStatus = StatusAuthorized
		order.TransactionID = "txn-existing"

		scope := webhook.NewScope(signedBody(t, secret, "ORD-100", webhook.EventInvoiceAuthorized, "1"))
		result, err := c.ProcessCallback(ctx, order, scope)
		require.NoError(t, err)
		assert.Equal(t, "txn-existing", result.TransactionID)
		assert.Equal(t, StatusAuthorized, result.Status)
	})

	t.Run("CapturedOrderRejectsAuthorize", func(t *testing.T) {
		c := newTestController(new(MockGateway))
		order := testOrder()
		order.PaymentStatus = StatusCaptured

		scope := webhook.NewScope(signedBody(t, secret, "ORD-100", webhook.EventInvoiceAuthorized, "1"))
		_, err := c.ProcessCallback(ctx, order, scope)

		var transitionErr *TransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, StatusCaptured, transitionErr.From)
	})

	t.Run("BadSignature", func(t *testing.T) {
		core, observed := observer.New(zapcore.InfoLevel)
		defer logger.ReplaceGlobal(zap.New(core))()

		c := newTestController(new(MockGateway))
		scope := webhook.NewScope(signedBody(t, "other-secret", "ORD-100", webhook.EventInvoiceAuthorized, "1"))

		_, err := c.ProcessCallback(ctx, testOrder(), scope)
		assert.ErrorIs(t, err, webhook.ErrAuthentication)

		logs := observed.FilterField(zap.String("security_event", "webhook_signature")).All()
		assert.Len(t, logs, 1)
	})

	t.Run("UnhandledEventType", func(t *testing.T) {
		c := newTestController(new(MockGateway))
		scope := webhook.NewScope(signedBody(t, secret, "ORD-100", "customer_created", "1"))

		_, err := c.ProcessCallback(ctx, testOrder(), scope)
		assert.ErrorIs(t, err, ErrUnhandledEvent)
	})

	t.Run("EventForAnotherOrder", func(t *testing.T) {
		c := newTestController(new(MockGateway))
		scope := webhook.NewScope(signedBody(t, secret, "ORD-200", webhook.EventInvoiceAuthorized, "1"))

		_, err := c.ProcessCallback(ctx, testOrder(), scope)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestController_ResolveOrderFromCallback(t *testing.T) {
	ctx := context.Background()
	c := newTestController(new(MockGateway))

	t.Run("ResolvingEvent", func(t *testing.T) {
		scope := webhook.NewScope(signedBody(t, "whsec", "ORD-100", webhook.EventInvoiceAuthorized, "1"))

		number, err := c.ResolveOrderFromCallback(ctx, scope, nil)
		require.NoError(t, err)
		assert.Equal(t, "ORD-100", number)

		// the same scope feeds ProcessCallback without a second parse
		_, err = c.ProcessCallback(ctx, testOrder(), scope)
		require.NoError(t, err)
		assert.Equal(t, 1, scope.Parses())
	})

	t.Run("FallsBackForOtherEvents", func(t *testing.T) {
		scope := webhook.NewScope(signedBody(t, "whsec", "cust-1", "customer_created", "1"))

		called := false
		number, err := c.ResolveOrderFromCallback(ctx, scope, OrderResolverFunc(func(ctx context.Context, s *webhook.Scope) (string, error) {
			called = true
			assert.Same(t, scope, s)
			return "ORD-FALLBACK", nil
		}))
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, "ORD-FALLBACK", number)
	})

	t.Run("NoFallback", func(t *testing.T) {
		scope := webhook.NewScope(signedBody(t, "whsec", "cust-1", "customer_created", "1"))

		_, err := c.ResolveOrderFromCallback(ctx, scope, nil)
		assert.ErrorIs(t, err, ErrUnresolvedOrder)
	})

	t.Run("MissingSecret", func(t *testing.T) {
		cfg := testConfig()
		cfg.WebhookSecret = ""
		c := NewController(cfg, new(MockGateway), newMemoryStore(), currency.NewTable())
		scope := webhook.NewScope(signedBody(t, "whsec", "ORD-100", webhook.EventInvoiceAuthorized, "1"))

		_, err := c.ResolveOrderFromCallback(ctx, scope, nil)
		assert.ErrorIs(t, err, webhook.ErrSecretNotConfigured)
	})
}

func TestController_FetchStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("SettledIsCaptured", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled, Transaction: "txn-1"}, nil)

		order := testOrder()
		order.PaymentStatus = StatusAuthorized

		update, err := c.FetchStatus(ctx, order)
		require.NoError(t, err)
		assert.True(t, update.Known)
		assert.Equal(t, StatusCaptured, update.Status)
		assert.Equal(t, "txn-1", update.TransactionID)
	})

	t.Run("BackwardsTransition", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateAuthorized}, nil)

		order := testOrder()
		order.PaymentStatus = StatusCaptured

		update, err := c.FetchStatus(ctx, order)
		assert.ErrorIs(t, err, ErrProtocol)
		assert.False(t, update.Known)
	})

	t.Run("GatewayFailureIsLogged", func(t *testing.T) {
		core, observed := observer.New(zapcore.InfoLevel)
		defer logger.ReplaceGlobal(zap.New(core))()

		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(nil, &GatewayError{Kind: ErrProtocol, Op: "get_charge", StatusCode: http.StatusServiceUnavailable})

		update, err := c.FetchStatus(ctx, testOrder())
		assert.Equal(t, StatusUpdate{}, update)
		assert.True(t, Retryable(err))

		logs := observed.FilterMessage("Payment operation failed").All()
		require.Len(t, logs, 1)
		fields := logs[0].ContextMap()
		assert.Equal(t, "ORD-100", fields["order_number"])
		assert.Equal(t, "fetch_status", fields["operation"])
		assert.Equal(t, int64(http.StatusServiceUnavailable), fields["http_status"])
	})
}

func TestController_Capture(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelledChargeConflicts", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateCancelled}, nil)

		update, err := c.Capture(ctx, testOrder())
		assert.False(t, update.Known)

		var conflict *StateConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, ChargeStateCancelled, conflict.State)
		assert.ErrorIs(t, err, ErrStateConflict)
		gw.AssertNotCalled(t, "SettleCharge", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SettlesAuthorizedAmount", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateAuthorized}, nil)
		gw.On("SettleCharge", mock.Anything, "ORD-100", int64(4500)).
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled, Transaction: "txn-1"}, nil).Once()

		order := testOrder()
		order.PaymentStatus = StatusAuthorized
		order.AuthorizedAmount = decimal.RequireFromString("45.00")

		update, err := c.Capture(ctx, order)
		require.NoError(t, err)
		assert.Equal(t, StatusCaptured, update.Status)
		gw.AssertExpectations(t)
	})

	t.Run("AlreadySettledIsIdempotent", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled}, nil)

		order := testOrder()
		order.PaymentStatus = StatusCaptured

		update, err := c.Capture(ctx, order)
		require.NoError(t, err)
		assert.Equal(t, StatusCaptured, update.Status)
		gw.AssertNotCalled(t, "SettleCharge", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestController_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelsAuthorizedCharge", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateAuthorized}, nil)
		gw.On("CancelCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateCancelled}, nil).Once()

		order := testOrder()
		order.PaymentStatus = StatusAuthorized

		update, err := c.Cancel(ctx, order)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, update.Status)
		gw.AssertExpectations(t)
	})

	t.Run("SettledChargeConflicts", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled}, nil)

		_, err := c.Cancel(ctx, testOrder())
		assert.ErrorIs(t, err, ErrStateConflict)
		gw.AssertNotCalled(t, "CancelCharge", mock.Anything, mock.Anything)
	})

	t.Run("AlreadyCancelled", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateCancelled}, nil)

		update, err := c.Cancel(ctx, testOrder())
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, update.Status)
	})
}

func TestController_Refund(t *testing.T) {
	ctx := context.Background()

	captured := func() *Order {
		o := testOrder()
		o.PaymentStatus = StatusCaptured
		o.AuthorizedAmount = decimal.RequireFromString("49.00")
		return o
	}

	t.Run("RefundsRemainingAmount", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled, Transaction: "txn-1"}, nil)
		gw.On("RefundCharge", mock.Anything, "ORD-100", int64(3900)).
			Return(&Refund{ID: "rf_1", State: RefundStateRefunded, Amount: 3900}, nil).Once()

		order := captured()
		order.RefundedAmount = decimal.RequireFromString("10.00")

		update, err := c.Refund(ctx, order)
		require.NoError(t, err)
		assert.Equal(t, StatusCaptured, update.Status)
		assert.True(t, update.RefundedAmount.Equal(decimal.RequireFromString("49.00")), update.RefundedAmount.String())
		gw.AssertExpectations(t)
	})

	t.Run("UnsettledChargeConflicts", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateAuthorized}, nil)

		_, err := c.Refund(ctx, captured())
		assert.ErrorIs(t, err, ErrStateConflict)
	})

	t.Run("DeclinedRefund", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled}, nil)
		gw.On("RefundCharge", mock.Anything, "ORD-100", int64(4900)).
			Return(&Refund{ID: "rf_1", State: RefundStateFailed, Error: "insufficient_funds"}, nil)

		update, err := c.Refund(ctx, captured())
		assert.ErrorIs(t, err, ErrProtocol)
		assert.False(t, update.Known)
	})

	t.Run("ProcessingRefundIsReported", func(t *testing.T) {
		core, observed := observer.New(zapcore.InfoLevel)
		defer logger.ReplaceGlobal(zap.New(core))()

		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled}, nil)
		gw.On("RefundCharge", mock.Anything, "ORD-100", int64(4900)).
			Return(&Refund{ID: "rf_2", State: RefundStateProcessing}, nil).Once()

		update, err := c.Refund(ctx, captured())
		require.NoError(t, err)
		assert.Equal(t, StatusCaptured, update.Status)
		assert.True(t, update.RefundedAmount.Equal(decimal.RequireFromString("49.00")), update.RefundedAmount.String())

		logs := observed.FilterMessage("Refund pending at Reepay").All()
		require.Len(t, logs, 1)
		fields := logs[0].ContextMap()
		assert.Equal(t, "rf_2", fields["refund_id"])
		assert.Equal(t, "ORD-100", fields["order_number"])
		assert.Equal(t, int64(4900), fields["amount"])
		assert.Empty(t, observed.FilterMessage("Refund accepted").All())
	})

	t.Run("FullyRefunded", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(gw)
		gw.On("GetCharge", mock.Anything, "ORD-100").
			Return(&Charge{Handle: "ORD-100", State: ChargeStateSettled}, nil)

		order := captured()
		order.RefundedAmount = order.AuthorizedAmount

		_, err := c.Refund(ctx, order)
		assert.ErrorIs(t, err, ErrValidation)
		gw.AssertNotCalled(t, "RefundCharge", mock.Anything, mock.Anything, mock.Anything)
	})
}
