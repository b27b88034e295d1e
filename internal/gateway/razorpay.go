package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayAdapter drives Razorpay orders. Webhook payloads are signed with
// HMAC-SHA256 over the raw body using the webhook secret.
type RazorpayAdapter struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func NewRazorpayAdapter(keyID, keySecret, webhookSecret string) *RazorpayAdapter {
	return &RazorpayAdapter{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       razorpayBaseURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *RazorpayAdapter) Name() string            { return Razorpay }
func (a *RazorpayAdapter) SignatureHeader() string { return "X-Razorpay-Signature" }

func (a *RazorpayAdapter) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	body := map[string]interface{}{
		"amount":   p.AmountCents,
		"currency": p.Currency,
		"receipt":  p.PaymentID,
		"notes": map[string]string{
			"description": p.Description,
		},
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/orders", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.keyID, a.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: razorpay create order: %s", ErrGatewayUnavailable, resp.Status)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: razorpay returned empty order id", ErrGatewayUnavailable)
	}

	return &InitiateResult{
		ExternalReference: out.ID,
		ActionLink:        "https://checkout.razorpay.com/v1/checkout.js?order_id=" + out.ID,
	}, nil
}

func (a *RazorpayAdapter) VerifySignature(payload []byte, signature string) bool {
	if a.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *RazorpayAdapter) ParseEvent(payload []byte) (*Event, error) {
	var raw struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
					Amount  int64  `json:"amount"`
				} `json:"entity"`
			} `json:"payment"`
			Refund struct {
				Entity struct {
					ID        string `json:"id"`
					PaymentID string `json:"payment_id"`
					Amount    int64  `json:"amount"`
				} `json:"entity"`
			} `json:"refund"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	switch raw.Event {
	case "payment.captured":
		return &Event{
			Kind:              EventCaptured,
			EventID:           raw.Payload.Payment.Entity.ID + ":captured",
			ExternalReference: raw.Payload.Payment.Entity.OrderID,
			CaptureReference:  raw.Payload.Payment.Entity.ID,
			AmountCents:       raw.Payload.Payment.Entity.Amount,
		}, nil
	case "payment.failed":
		return &Event{
			Kind:              EventFailed,
			EventID:           raw.Payload.Payment.Entity.ID + ":failed",
			ExternalReference: raw.Payload.Payment.Entity.OrderID,
			AmountCents:       raw.Payload.Payment.Entity.Amount,
		}, nil
	case "refund.processed":
		return &Event{
			Kind:              EventRefunded,
			EventID:           raw.Payload.Refund.Entity.ID,
			ExternalReference: refOrderFromPayment(raw.Payload.Refund.Entity.PaymentID),
			AmountCents:       raw.Payload.Refund.Entity.Amount,
		}, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

// Razorpay refund events reference the payment entity, not the order. We
// keep the payment id as-is; the orchestrator resolves payments by either
// reference.
func refOrderFromPayment(paymentID string) string {
	return strings.TrimSpace(paymentID)
}

func (a *RazorpayAdapter) Refund(ctx context.Context, externalRef string, amountCents int64) (string, error) {
	body := map[string]interface{}{"amount": amountCents}
	b, _ := json.Marshal(body)

	url := fmt.Sprintf("%s/payments/%s/refund", a.baseURL, externalRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.keyID, a.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: razorpay refund: %s", ErrGatewayUnavailable, resp.Status)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return "", errors.New("razorpay: empty refund id")
	}
	return out.ID, nil
}
