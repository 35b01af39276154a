package payment

// PaymentStatus is the canonical status derived from a charge state.
// The empty value means the status is not known yet.
type PaymentStatus string

const (
	StatusUnknown               PaymentStatus = ""
	StatusInitialized           PaymentStatus = "INITIALIZED"
	StatusAuthorized            PaymentStatus = "AUTHORIZED"
	StatusCaptured              PaymentStatus = "CAPTURED"
	StatusError                 PaymentStatus = "ERROR"
	StatusCancelled             PaymentStatus = "CANCELLED"
	StatusPendingExternalSystem PaymentStatus = "PENDING_EXTERNAL_SYSTEM"
)

// MapStatus maps a Reepay charge state to a PaymentStatus. Unrecognised
// states map to StatusInitialized.
func MapStatus(state ChargeState) PaymentStatus {
	switch state {
	case ChargeStateAuthorized:
		return StatusAuthorized
	case ChargeStateSettled:
		return StatusCaptured
	case ChargeStateFailed:
		return StatusError
	case ChargeStateCancelled:
		return StatusCancelled
	case ChargeStatePending:
		return StatusPendingExternalSystem
	default:
		return StatusInitialized
	}
}

// progress orders the non-terminal path of a charge.
var progress = map[PaymentStatus]int{
	StatusInitialized:           0,
	StatusPendingExternalSystem: 1,
	StatusAuthorized:            2,
	StatusCaptured:              3,
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	switch {
	case from == to:
		return true
	case from == StatusUnknown, from == StatusError, to == StatusError:
		return true
	case to == StatusCancelled:
		return from == StatusInitialized || from == StatusPendingExternalSystem || from == StatusAuthorized
	}

	fromRank, fromOK := progress[from]
	toRank, toOK := progress[to]
	return fromOK && toOK && toRank > fromRank
}

func checkTransition(from, to PaymentStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
