package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func razorpaySign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayVerifySignature(t *testing.T) {
	a := NewRazorpayAdapter("key", "secret", "whsec")
	payload := []byte(`{"event":"payment.captured"}`)

	assert.True(t, a.VerifySignature(payload, razorpaySign("whsec", payload)))
	assert.False(t, a.VerifySignature(payload, razorpaySign("wrong", payload)))
	assert.False(t, a.VerifySignature(payload, ""))
	assert.False(t, a.VerifySignature([]byte(`tampered`), razorpaySign("whsec", payload)))
}

func TestRazorpayVerifySignature_NoSecretConfigured(t *testing.T) {
	a := NewRazorpayAdapter("key", "secret", "")
	payload := []byte(`{}`)
	assert.False(t, a.VerifySignature(payload, razorpaySign("", payload)))
}

func TestRazorpayParseEvent_Captured(t *testing.T) {
	a := NewRazorpayAdapter("key", "secret", "whsec")

	payload := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": "pay_123", "order_id": "order_456", "amount": 50000}}}
	}`)

	ev, err := a.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventCaptured, ev.Kind)
	assert.Equal(t, "pay_123:captured", ev.EventID)
	assert.Equal(t, "order_456", ev.ExternalReference)
	assert.Equal(t, "pay_123", ev.CaptureReference)
	assert.Equal(t, int64(50000), ev.AmountCents)
}

func TestRazorpayParseEvent_Failed(t *testing.T) {
	a := NewRazorpayAdapter("key", "secret", "whsec")

	payload := []byte(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {"id": "pay_123", "order_id": "order_456", "amount": 50000}}}
	}`)

	ev, err := a.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, "order_456", ev.ExternalReference)
}

func TestRazorpayParseEvent_RefundReferencesPaymentEntity(t *testing.T) {
	a := NewRazorpayAdapter("key", "secret", "whsec")

	payload := []byte(`{
		"event": "refund.processed",
		"payload": {"refund": {"entity": {"id": "rfnd_1", "payment_id": "pay_123", "amount": 20000}}}
	}`)

	ev, err := a.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventRefunded, ev.Kind)
	assert.Equal(t, "rfnd_1", ev.EventID)
	assert.Equal(t, "pay_123", ev.ExternalReference)
	assert.Equal(t, int64(20000), ev.AmountCents)
}

func TestRazorpayParseEvent_Unsupported(t *testing.T) {
	a := NewRazorpayAdapter("key", "secret", "whsec")

	_, err := a.ParseEvent([]byte(`{"event": "order.paid"}`))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestRazorpayInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		w.Write([]byte(`{"id": "order_789"}`))
	}))
	defer srv.Close()

	a := NewRazorpayAdapter("key", "secret", "whsec")
	a.baseURL = srv.URL

	res, err := a.Initiate(context.Background(), InitiateParams{
		PaymentID:   "p-1",
		AmountCents: 50000,
		Currency:    "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_789", res.ExternalReference)
	assert.False(t, res.Captured)
	assert.Contains(t, res.ActionLink, "order_789")
}

func TestRazorpayInitiate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewRazorpayAdapter("key", "secret", "whsec")
	a.baseURL = srv.URL

	_, err := a.Initiate(context.Background(), InitiateParams{PaymentID: "p-1", AmountCents: 100, Currency: "INR"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestRazorpayRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_123/refund", r.URL.Path)
		w.Write([]byte(`{"id": "rfnd_55"}`))
	}))
	defer srv.Close()

	a := NewRazorpayAdapter("key", "secret", "whsec")
	a.baseURL = srv.URL

	ref, err := a.Refund(context.Background(), "pay_123", 20000)
	require.NoError(t, err)
	assert.Equal(t, "rfnd_55", ref)
}
