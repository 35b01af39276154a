package order

import (
	"reepay-bridge/internal/payment"
)

// ToPaymentOrder projects an order row onto the payment core's view of it.
func ToPaymentOrder(o *Order) *payment.Order {
	if o == nil {
		return nil
	}

	metadata := make(map[string]string, len(o.Metadata))
	for k, v := range o.Metadata {
		metadata[k] = v
	}

	return &payment.Order{
		ID:           o.ID,
		Number:       o.Number,
		TotalWithTax: o.TotalWithTax,
		CurrencyCode: o.Currency,
		Customer: payment.Customer{
			Email:     o.CustomerEmail,
			Reference: o.CustomerReference,
			FirstName: o.CustomerFirstName,
			LastName:  o.CustomerLastName,
		},
		Metadata:         metadata,
		TransactionID:    o.TransactionID,
		AuthorizedAmount: o.AuthorizedAmount,
		RefundedAmount:   o.RefundedAmount,
		PaymentStatus:    o.PaymentStatus,
	}
}
