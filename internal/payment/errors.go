package payment

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrTransport     = errors.New("gateway transport failure")
	ErrProtocol      = errors.New("gateway protocol error")
	ErrDecode        = errors.New("gateway response decode failed")
	ErrStateConflict = errors.New("charge state conflict")
	ErrSessionStore  = errors.New("checkout session store unavailable")

	ErrUnhandledEvent  = errors.New("webhook event type is not handled")
	ErrUnresolvedOrder = errors.New("webhook does not identify an order")
)

// ValidationError reports bad input. No gateway call is made after one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// GatewayError is any failure talking to Reepay. Kind is ErrTransport,
// ErrProtocol or ErrDecode; a decode failure also matches ErrProtocol.
type GatewayError struct {
	Kind       error
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("reepay %s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrDecode && target == ErrProtocol
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// StateConflictError is returned when an operation is requested on a charge
// whose gateway state does not permit it.
type StateConflictError struct {
	Op    string
	State ChargeState
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s a charge in state %q", e.Op, e.State)
}

func (e *StateConflictError) Is(target error) bool {
	return target == ErrStateConflict
}

// TransitionError is a gateway-reported status that would move an order
// backwards in its lifecycle.
type TransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal payment status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrProtocol
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == ErrProtocol {
		return gwErr.StatusCode >= http.StatusInternalServerError ||
			gwErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
