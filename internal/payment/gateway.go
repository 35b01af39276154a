// internal/payment/gateway.go
package payment

import (
	"context"
	"net/http"
)

// Gateway is the Reepay REST surface used by the lifecycle controller.
type Gateway interface {
	CreateSession(ctx context.Context, req ChargeSessionRequest) (*ChargeSession, error)
	GetCharge(ctx context.Context, handle string) (*Charge, error)
	CancelCharge(ctx context.Context, handle string) (*Charge, error)
	SettleCharge(ctx context.Context, handle string, amount int64) (*Charge, error)
	RefundCharge(ctx context.Context, handle string, amount int64) (*Refund, error)
}

// HTTPDoer is the transport the gateway sends requests through.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
