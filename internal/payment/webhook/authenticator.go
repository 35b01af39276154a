package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types that identify the order a webhook belongs to.
const (
	EventInvoiceAuthorized = "invoice_authorized"
	EventInvoiceSettled    = "invoice_settled"
)

var (
	ErrAuthentication      = errors.New("webhook authentication failed")
	ErrSecretNotConfigured = errors.New("webhook secret is not configured")
	ErrMalformedEvent      = errors.New("malformed webhook payload")
)

// Event is a Reepay webhook notification. ID carries the order handle.
type Event struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id,omitempty"`
	EventType   string          `json:"event_type"`
	Timestamp   string          `json:"timestamp"`
	Signature   string          `json:"signature"`
	Invoice     string          `json:"invoice,omitempty"`
	Transaction string          `json:"transaction,omitempty"`
	Customer    string          `json:"customer,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// ResolvesOrder reports whether the event type may be used to correlate an order.
func (e *Event) ResolvesOrder() bool {
	switch e.EventType {
	case EventInvoiceAuthorized, EventInvoiceSettled:
		return true
	default:
		return false
	}
}

// AuthenticationError is returned when a webhook signature does not verify.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("webhook authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// ComputeSignature returns lowercase-hex(HMAC-SHA256(secret, timestamp + id)).
func ComputeSignature(secret, timestamp, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + id))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate verifies the declared signature material and decodes rawBody.
// The decoded body id, when present, must be the id that was signed.
func Authenticate(rawBody []byte, declaredTimestamp, declaredID, declaredSignature, secret string) (*Event, error) {
	if err := verify(declaredTimestamp, declaredID, declaredSignature, secret); err != nil {
		return nil, err
	}

	event, err := decode(rawBody)
	if err != nil {
		return nil, err
	}
	return bind(event, declaredTimestamp, declaredID, declaredSignature)
}

// AuthenticateBody authenticates a payload whose signature material travels in the body.
func AuthenticateBody(rawBody []byte, secret string) (*Event, error) {
	if secret == "" {
		return nil, ErrSecretNotConfigured
	}

	event, err := decode(rawBody)
	if err != nil {
		return nil, err
	}

	if err := verify(event.Timestamp, event.ID, event.Signature, secret); err != nil {
		return nil, err
	}
	return event, nil
}

func verify(timestamp, id, signature, secret string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if timestamp == "" || id == "" || signature == "" {
		return &AuthenticationError{Reason: "missing signature material"}
	}

	expected := ComputeSignature(secret, timestamp, id)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &AuthenticationError{Reason: "signature mismatch"}
	}
	return nil
}

// bind pins the decoded event to the material that was signed.
func bind(event *Event, timestamp, id, signature string) (*Event, error) {
	if event.ID != "" && event.ID != id {
		return nil, &AuthenticationError{Reason: "body id does not match signed id"}
	}
	if event.Timestamp != "" && event.Timestamp != timestamp {
		return nil, &AuthenticationError{Reason: "body timestamp does not match signed timestamp"}
	}

	event.ID = id
	event.Timestamp = timestamp
	event.Signature = signature
	return event, nil
}

var unmarshal = json.Unmarshal

func decode(rawBody []byte) (*Event, error) {
	var event Event
	if err := unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.Raw = json.RawMessage(rawBody)
	return &event, nil
}
