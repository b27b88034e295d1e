package gateway

import (
	"context"
	"errors"
)

// Gateway tags as stored on payments.
const (
	Razorpay  = "razorpay"
	Stripe    = "stripe"
	WalletPay = "wallet"
)

// Event kinds produced by ParseEvent.
const (
	EventCaptured = "captured"
	EventFailed   = "failed"
	EventRefunded = "refunded"
)

var (
	ErrUnknownGateway     = errors.New("unknown gateway")
	ErrBadSignature       = errors.New("webhook signature verification failed")
	ErrUnsupportedEvent   = errors.New("unsupported gateway event")
	ErrGatewayUnavailable = errors.New("gateway request failed")
)

type InitiateParams struct {
	PaymentID   string
	PayerID     int64
	AmountCents int64
	Currency    string
	Description string
}

type InitiateResult struct {
	ExternalReference string
	ActionLink        string
	// Captured is set by adapters that settle synchronously (wallet-pay);
	// external gateways capture later via webhook.
	Captured bool
}

// Event is a gateway callback normalized to what the orchestrator needs.
type Event struct {
	Kind              string
	EventID           string
	ExternalReference string
	// CaptureReference is the gateway's charge id when it differs from
	// the initiate-time reference (Razorpay payments vs orders). Refunds
	// are issued against it.
	CaptureReference string
	AmountCents      int64
}

// Adapter is the uniform integration boundary to one payment provider.
type Adapter interface {
	Name() string
	SignatureHeader() string
	Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error)
	VerifySignature(payload []byte, signature string) bool
	ParseEvent(payload []byte) (*Event, error)
	Refund(ctx context.Context, externalRef string, amountCents int64) (string, error)
}

// Registry resolves adapters by the gateway tag stored on a payment.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnknownGateway
	}
	return a, nil
}
