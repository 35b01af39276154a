package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order metadata keys written by the session orchestrator.
const (
	MetaChargeSessionID          = "chargeSessionId"
	MetaChargeSessionURL         = "chargeSessionUrl"
	MetaChargeSessionExpiresAt   = "chargeSessionExpiresAt"
	MetaChargeSessionFingerprint = "chargeSessionFingerprint"
)

const (
	CheckoutScriptURL = "https://checkout.reepay.com/checkout.js"

	defaultAPIBaseURL      = "https://api.reepay.com"
	defaultCheckoutBaseURL = "https://checkout-api.reepay.com"
	defaultTimeout         = 30 * time.Second
	defaultSessionTTL      = time.Hour
)

// GatewayConfig is the per-invocation gateway configuration.
type GatewayConfig struct {
	APIBaseURL        string
	CheckoutBaseURL   string
	PrivateKey        string
	WebhookSecret     string
	Locale            string
	PaymentMethods    []string
	ContinueURL       string
	CancelURL         string
	ErrorURL          string
	SettleImmediately bool
	Timeout           time.Duration
	SessionTTL        time.Duration
}

// Validate checks the settings every lifecycle operation depends on.
func (c GatewayConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.PrivateKey) == "":
		return &ValidationError{Field: "private_key", Reason: "is required"}
	case strings.TrimSpace(c.ContinueURL) == "":
		return &ValidationError{Field: "continue_url", Reason: "is required"}
	case strings.TrimSpace(c.CancelURL) == "":
		return &ValidationError{Field: "cancel_url", Reason: "is required"}
	case strings.TrimSpace(c.ErrorURL) == "":
		return &ValidationError{Field: "error_url", Reason: "is required"}
	}
	return nil
}

func (c GatewayConfig) sessionTTL() time.Duration {
	if c.SessionTTL <= 0 {
		return defaultSessionTTL
	}
	return c.SessionTTL
}

// Customer is the buyer identity attached to an order.
type Customer struct {
	Email     string
	Reference string
	FirstName string
	LastName  string
}

// Order is the read-mostly view of an order owned by the order subsystem.
type Order struct {
	ID               int64
	Number           string
	TotalWithTax     decimal.Decimal
	CurrencyCode     string
	Customer         Customer
	Metadata         map[string]string
	TransactionID    string
	AuthorizedAmount decimal.Decimal
	RefundedAmount   decimal.Decimal
	PaymentStatus    PaymentStatus
}

// settlementAmount is what capture and refund move: the authorized amount,
// or the order total when nothing was recorded as authorized.
func (o *Order) settlementAmount() decimal.Decimal {
	if o.AuthorizedAmount.IsPositive() {
		return o.AuthorizedAmount
	}
	return o.TotalWithTax
}

// ChargeState is the lifecycle state Reepay reports for a charge.
type ChargeState string

const (
	ChargeStateCreated    ChargeState = "created"
	ChargeStatePending    ChargeState = "pending"
	ChargeStateAuthorized ChargeState = "authorized"
	ChargeStateSettled    ChargeState = "settled"
	ChargeStateFailed     ChargeState = "failed"
	ChargeStateCancelled  ChargeState = "cancelled"
)

type SessionCustomer struct {
	Email          string `json:"email,omitempty"`
	Handle         string `json:"handle,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	GenerateHandle bool   `json:"generate_handle"`
}

type SessionOrder struct {
	Handle   string          `json:"handle"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Customer SessionCustomer `json:"customer"`
}

// ChargeSessionRequest is the body of a session creation call.
type ChargeSessionRequest struct {
	Order          SessionOrder `json:"order"`
	Locale         string       `json:"locale,omitempty"`
	Settle         bool         `json:"settle"`
	AcceptURL      string       `json:"accept_url"`
	CancelURL      string       `json:"cancel_url"`
	PaymentMethods []string     `json:"payment_methods,omitempty"`
}

// ChargeSession is a hosted checkout session.
type ChargeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Charge is the gateway-side payment attempt for an order.
type Charge struct {
	Handle      string      `json:"handle"`
	State       ChargeState `json:"state"`
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Transaction string      `json:"transaction"`
	Customer    string      `json:"customer,omitempty"`
	Authorized  *time.Time  `json:"authorized,omitempty"`
	Settled     *time.Time  `json:"settled,omitempty"`
	Cancelled   *time.Time  `json:"cancelled,omitempty"`
	ErrorCode   string      `json:"error,omitempty"`
	ErrorState  string      `json:"error_state,omitempty"`
}

type RefundState string

const (
	RefundStateRefunded   RefundState = "refunded"
	RefundStateProcessing RefundState = "processing"
	RefundStateFailed     RefundState = "failed"
)

// Refund is the gateway resource created by a refund call.
type Refund struct {
	ID          string      `json:"id"`
	State       RefundState `json:"state"`
	Invoice     string      `json:"invoice"`
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Transaction string      `json:"transaction"`
	Error       string      `json:"error,omitempty"`
}

// PaymentForm tells the checkout UI how to start the hosted checkout.
type PaymentForm struct {
	SessionID       string `json:"sessionId,omitempty"`
	URL             string `json:"url,omitempty"`
	Method          string `json:"method"`
	ScriptURL       string `json:"scriptUrl,omitempty"`
	BootstrapScript string `json:"bootstrapScript,omitempty"`
	Available       bool   `json:"available"`
	Reused          bool   `json:"reused"`
}

func unavailableForm() *PaymentForm {
	return &PaymentForm{Method: "GET"}
}

func newPaymentForm(sessionID, url string, reused bool) *PaymentForm {
	return &PaymentForm{
		SessionID:       sessionID,
		URL:             url,
		Method:          "GET",
		ScriptURL:       CheckoutScriptURL,
		BootstrapScript: "var rp = new Reepay.WindowCheckout('" + sessionID + "');",
		Available:       url != "",
		Reused:          reused,
	}
}

// StatusUpdate is the outcome of a status, cancel, capture or refund call.
// The zero value is the "unknown" outcome.
type StatusUpdate struct {
	OrderNumber    string          `json:"orderNumber"`
	TransactionID  string          `json:"transactionId,omitempty"`
	Status         PaymentStatus   `json:"status,omitempty"`
	RefundedAmount decimal.Decimal `json:"refundedAmount"`
	Known          bool            `json:"known"`
}

// CallbackResult is the outcome of processing an accepted webhook.
type CallbackResult struct {
	OrderNumber      string          `json:"orderNumber"`
	TransactionID    string          `json:"transactionId"`
	AmountAuthorized decimal.Decimal `json:"amountAuthorized"`
	TransactionFee   decimal.Decimal `json:"transactionFee"`
	Status           PaymentStatus   `json:"status"`
}
