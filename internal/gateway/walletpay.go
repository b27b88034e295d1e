package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WalletFunds is the slice of the wallet service the wallet-pay adapter
// needs: debit the payer's stored credit at initiation.
type WalletFunds interface {
	DebitCredits(ctx context.Context, ownerID int64, amountCents int64, description, reference string) error
}

// WalletPayAdapter settles against internal wallet credit instead of an
// external provider, so the orchestrator keeps one code path for both.
// Initiate debits synchronously and reports the payment captured; there
// are no webhooks and VerifySignature always fails.
type WalletPayAdapter struct {
	funds WalletFunds
}

func NewWalletPayAdapter(funds WalletFunds) *WalletPayAdapter {
	return &WalletPayAdapter{funds: funds}
}

func (a *WalletPayAdapter) Name() string            { return WalletPay }
func (a *WalletPayAdapter) SignatureHeader() string { return "" }

func (a *WalletPayAdapter) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	ref := fmt.Sprintf("wallet-%d-%s", p.PayerID, p.PaymentID)

	err := a.funds.DebitCredits(ctx, p.PayerID, p.AmountCents, p.Description, ref)
	if err != nil {
		return nil, err
	}

	return &InitiateResult{
		ExternalReference: ref,
		Captured:          true,
	}, nil
}

func (a *WalletPayAdapter) VerifySignature(payload []byte, signature string) bool {
	return false
}

func (a *WalletPayAdapter) ParseEvent(payload []byte) (*Event, error) {
	return nil, ErrUnsupportedEvent
}

// Refund only validates the reference and derives the refund reference.
// The payer credit itself is appended by the orchestrator inside its
// settlement transaction: with no refund webhook to reconcile against, the
// credit and the refund record must commit together.
func (a *WalletPayAdapter) Refund(ctx context.Context, externalRef string, amountCents int64) (string, error) {
	if _, err := payerFromReference(externalRef); err != nil {
		return "", err
	}
	return "refund-" + externalRef, nil
}

func payerFromReference(ref string) (int64, error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) != 3 || parts[0] != "wallet" {
		return 0, errors.New("malformed wallet-pay reference")
	}
	return strconv.ParseInt(parts[1], 10, 64)
}
