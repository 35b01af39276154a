package order

import (
	"time"

	"reepay-bridge/internal/payment"

	"github.com/shopspring/decimal"
)

// Order is a row of the orders table together with its metadata.
type Order struct {
	ID                int64
	Number            string
	TotalWithTax      decimal.Decimal
	Currency          string
	CustomerEmail     string
	CustomerReference string
	CustomerFirstName string
	CustomerLastName  string
	PaymentStatus     payment.PaymentStatus
	TransactionID     string
	AuthorizedAmount  decimal.Decimal
	RefundedAmount    decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Metadata          map[string]string
}

// Disposition is what happened to an accepted webhook delivery.
type Disposition string

const (
	DispositionApplied   Disposition = "applied"
	DispositionDuplicate Disposition = "duplicate"
	DispositionIgnored   Disposition = "ignored"
	DispositionStale     Disposition = "stale"
)

type WebhookOutcome struct {
	OrderNumber string                  `json:"orderNumber,omitempty"`
	Disposition Disposition             `json:"disposition"`
	Result      *payment.CallbackResult `json:"result,omitempty"`
}
