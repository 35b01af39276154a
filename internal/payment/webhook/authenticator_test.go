package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "webhook-secret"
	testTimestamp = "2024-05-01T10:00:00.000Z"
	testID        = "ORD-100"
)

func signedBody(t *testing.T, eventType string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"id":          testID,
		"event_id":    "evt-1",
		"event_type":  eventType,
		"timestamp":   testTimestamp,
		"signature":   ComputeSignature(testSecret, testTimestamp, testID),
		"invoice":     testID,
		"transaction": "txn-42",
	})
	require.NoError(t, err)
	return body
}

func flipBit(s string, byteIdx int, bit uint) string {
	b := []byte(s)
	b[byteIdx] ^= 1 << bit
	return string(b)
}

func TestComputeSignature(t *testing.T) {
	sig := ComputeSignature(testSecret, testTimestamp, testID)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, ComputeSignature(testSecret, testTimestamp, testID))
	assert.NotEqual(t, sig, ComputeSignature("other", testTimestamp, testID))
}

func TestAuthenticate(t *testing.T) {
	body := signedBody(t, EventInvoiceAuthorized)
	sig := ComputeSignature(testSecret, testTimestamp, testID)

	t.Run("Accepts valid signature", func(t *testing.T) {
		event, err := Authenticate(body, testTimestamp, testID, sig, testSecret)
		require.NoError(t, err)
		assert.Equal(t, testID, event.ID)
		assert.Equal(t, EventInvoiceAuthorized, event.EventType)
		assert.Equal(t, "txn-42", event.Transaction)
		assert.JSONEq(t, string(body), string(event.Raw))
	})

	t.Run("Rejects every single-bit mutation of the signature", func(t *testing.T) {
		for i := 0; i < len(sig); i++ {
			for bit := uint(0); bit < 8; bit++ {
				_, err := Authenticate(body, testTimestamp, testID, flipBit(sig, i, bit), testSecret)
				require.ErrorIs(t, err, ErrAuthentication, "byte %d bit %d", i, bit)
			}
		}
	})

	t.Run("Rejects every single-bit mutation of the timestamp", func(t *testing.T) {
		for i := 0; i < len(testTimestamp); i++ {
			for bit := uint(0); bit < 8; bit++ {
				_, err := Authenticate(body, flipBit(testTimestamp, i, bit), testID, sig, testSecret)
				require.ErrorIs(t, err, ErrAuthentication, "byte %d bit %d", i, bit)
			}
		}
	})

	t.Run("Rejects every single-bit mutation of the id", func(t *testing.T) {
		for i := 0; i < len(testID); i++ {
			for bit := uint(0); bit < 8; bit++ {
				_, err := Authenticate(body, testTimestamp, flipBit(testID, i, bit), sig, testSecret)
				require.ErrorIs(t, err, ErrAuthentication, "byte %d bit %d", i, bit)
			}
		}
	})

	t.Run("Missing secret is a local failure", func(t *testing.T) {
		_, err := Authenticate(body, testTimestamp, testID, sig, "")
		assert.ErrorIs(t, err, ErrSecretNotConfigured)
		assert.NotErrorIs(t, err, ErrAuthentication)
	})

	t.Run("Missing signature material", func(t *testing.T) {
		_, err := Authenticate(body, "", testID, sig, testSecret)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("Body id differs from signed id", func(t *testing.T) {
		other, _ := json.Marshal(map[string]string{"id": "ORD-999", "event_type": EventInvoiceAuthorized})
		_, err := Authenticate(other, testTimestamp, testID, sig, testSecret)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("Malformed body", func(t *testing.T) {
		_, err := Authenticate([]byte(`{not-json`), testTimestamp, testID, sig, testSecret)
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestAuthenticateBody(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		event, err := AuthenticateBody(signedBody(t, EventInvoiceSettled), testSecret)
		require.NoError(t, err)
		assert.Equal(t, testID, event.ID)
		assert.True(t, event.ResolvesOrder())
	})

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := AuthenticateBody(signedBody(t, EventInvoiceSettled), "another-secret")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("Decodes body once", func(t *testing.T) {
		calls := 0
		original := unmarshal
		unmarshal = func(data []byte, v any) error {
			calls++
			return original(data, v)
		}
		defer func() { unmarshal = original }()

		body := signedBody(t, EventInvoiceAuthorized)
		event, err := AuthenticateBody(body, testSecret)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.JSONEq(t, string(body), string(event.Raw))
		assert.Equal(t, "txn-42", event.Transaction)
		assert.Equal(t, ComputeSignature(testSecret, testTimestamp, testID), event.Signature)
	})

	t.Run("Tampered signature", func(t *testing.T) {
		var fields map[string]string
		require.NoError(t, json.Unmarshal(signedBody(t, EventInvoiceSettled), &fields))
		fields["signature"] = flipBit(fields["signature"], 0, 0)
		body, err := json.Marshal(fields)
		require.NoError(t, err)

		_, err = AuthenticateBody(body, testSecret)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("Missing material", func(t *testing.T) {
		_, err := AuthenticateBody([]byte(`{"event_type":"invoice_settled"}`), testSecret)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := AuthenticateBody([]byte(`{`), testSecret)
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestEvent_ResolvesOrder(t *testing.T) {
	cases := map[string]bool{
		EventInvoiceAuthorized: true,
		EventInvoiceSettled:    true,
		"invoice_refund":       false,
		"customer_created":     false,
		"":                     false,
	}
	for eventType, want := range cases {
		e := &Event{EventType: eventType}
		assert.Equal(t, want, e.ResolvesOrder(), eventType)
	}
}

func TestScope(t *testing.T) {
	t.Run("Parses once", func(t *testing.T) {
		scope := NewScope(signedBody(t, EventInvoiceAuthorized))

		first, err := scope.Event(testSecret)
		require.NoError(t, err)
		second, err := scope.Event(testSecret)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, scope.Parses())
	})

	t.Run("Caches failure", func(t *testing.T) {
		scope := NewScope(signedBody(t, EventInvoiceAuthorized))

		_, err := scope.Event("bad-secret")
		assert.ErrorIs(t, err, ErrAuthentication)
		_, err = scope.Event("bad-secret")
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.Equal(t, 1, scope.Parses())
	})

	t.Run("Independent per request", func(t *testing.T) {
		body := signedBody(t, EventInvoiceAuthorized)
		a, b := NewScope(body), NewScope(body)

		ea, err := a.Event(testSecret)
		require.NoError(t, err)
		eb, err := b.Event(testSecret)
		require.NoError(t, err)

		assert.NotSame(t, ea, eb)
		assert.Equal(t, body, a.Body())
	})
}
