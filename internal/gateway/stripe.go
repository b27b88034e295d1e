package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeAdapter drives Stripe payment intents. Webhooks carry a
// Stripe-Signature header of the form "t=<ts>,v1=<hmac>", where the HMAC
// is computed over "<ts>.<raw body>".
type StripeAdapter struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func NewStripeAdapter(apiKey, webhookSecret string) *StripeAdapter {
	return &StripeAdapter{
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		baseURL:       stripeBaseURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *StripeAdapter) Name() string            { return Stripe }
func (a *StripeAdapter) SignatureHeader() string { return "Stripe-Signature" }

func (a *StripeAdapter) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.AmountCents, 10))
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("description", p.Description)
	form.Set("metadata[payment_id]", p.PaymentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: stripe create intent: %s", ErrGatewayUnavailable, resp.Status)
	}

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: stripe returned empty intent id", ErrGatewayUnavailable)
	}

	return &InitiateResult{
		ExternalReference: out.ID,
		ActionLink:        out.ClientSecret,
	}, nil
}

func (a *StripeAdapter) VerifySignature(payload []byte, signature string) bool {
	if a.webhookSecret == "" || signature == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(v1))
}

func (a *StripeAdapter) ParseEvent(payload []byte) (*Event, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID            string `json:"id"`
				Amount        int64  `json:"amount"`
				PaymentIntent string `json:"payment_intent"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "payment_intent.succeeded":
		return &Event{
			Kind:              EventCaptured,
			EventID:           raw.ID,
			ExternalReference: raw.Data.Object.ID,
			AmountCents:       raw.Data.Object.Amount,
		}, nil
	case "payment_intent.payment_failed":
		return &Event{
			Kind:              EventFailed,
			EventID:           raw.ID,
			ExternalReference: raw.Data.Object.ID,
			AmountCents:       raw.Data.Object.Amount,
		}, nil
	case "charge.refunded":
		ref := raw.Data.Object.PaymentIntent
		if ref == "" {
			ref = raw.Data.Object.ID
		}
		return &Event{
			Kind:              EventRefunded,
			EventID:           raw.ID,
			ExternalReference: ref,
			AmountCents:       raw.Data.Object.Amount,
		}, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

func (a *StripeAdapter) Refund(ctx context.Context, externalRef string, amountCents int64) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", externalRef)
	form.Set("amount", strconv.FormatInt(amountCents, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/refunds", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: stripe refund: %s", ErrGatewayUnavailable, resp.Status)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return out.ID, nil
}
