package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"skillprob/internal/gateway"
	"skillprob/internal/ledger"
	"skillprob/internal/logger"
	"skillprob/internal/metrics"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidCurrency     = errors.New("currency must be a 3-letter code")
	ErrInvalidState        = errors.New("payment is not in a state that allows this operation")
	ErrRefundExceedsAmount = errors.New("refund exceeds the refundable remainder")
	ErrDuplicateOperation  = errors.New("operation key already used")
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

const (
	gatewayAttempts = 3
	gatewayBackoff  = 200 * time.Millisecond
)

// Guard admits an idempotency key at most once.
type Guard interface {
	Admit(ctx context.Context, key, source string) (bool, error)
	AdmitTx(ctx context.Context, tx *sqlx.Tx, key, source string) (bool, error)
}

// Notifier delivers fire-and-forget user notifications.
type Notifier interface {
	PaymentCaptured(ctx context.Context, payerID int64, paymentID string, amountCents int64, currency string) error
}

type CreateParams struct {
	Gateway           string
	AmountCents       int64
	Currency          string
	Description       string
	PayerID           int64
	CourseID          *int64
	EnrollmentID      *int64
	AmbassadorID      *int64
	CommissionRateBps int
	Metadata          map[string]interface{}
}

type CreateResult struct {
	PaymentID         uuid.UUID `json:"payment_id"`
	ExternalReference string    `json:"external_reference"`
	ActionLink        string    `json:"action_link,omitempty"`
	Status            string    `json:"status"`
}

type Service interface {
	CreatePayment(ctx context.Context, params CreateParams) (*CreateResult, error)
	HandleCallback(ctx context.Context, gatewayName string, payload []byte, signature string) (bool, error)
	ProcessRefund(ctx context.Context, paymentID uuid.UUID, amountCents int64, reason string, actorID int64, opKey string) (*Refund, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListByPayer(ctx context.Context, payerID int64, limit, offset int) ([]Payment, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]Refund, error)
}

type service struct {
	db       *sqlx.DB
	repo     Store
	store    ledger.Store
	gateways *gateway.Registry
	guard    Guard
	notifier Notifier

	defaultCommissionBps int
}

func NewService(
	database *sqlx.DB,
	repo Store,
	store ledger.Store,
	gateways *gateway.Registry,
	guard Guard,
	notifier Notifier,
	defaultCommissionBps int,
) Service {
	return &service{
		db:       database,
		repo:     repo,
		store:    store,
		gateways: gateways,
		guard:    guard,
		notifier: notifier,

		defaultCommissionBps: defaultCommissionBps,
	}
}

func (s *service) CreatePayment(ctx context.Context, params CreateParams) (*CreateResult, error) {
	if params.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if !currencyRe.MatchString(params.Currency) {
		return nil, ErrInvalidCurrency
	}
	adapter, err := s.gateways.Get(params.Gateway)
	if err != nil {
		return nil, err
	}

	rate := params.CommissionRateBps
	if rate == 0 {
		rate = s.defaultCommissionBps
	}

	meta := types.JSONText("{}")
	if len(params.Metadata) > 0 {
		b, err := json.Marshal(params.Metadata)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata: %w", err)
		}
		meta = types.JSONText(b)
	}

	p := &Payment{
		ID:                uuid.New(),
		Gateway:           params.Gateway,
		AmountCents:       params.AmountCents,
		Currency:          params.Currency,
		Description:       params.Description,
		PayerID:           params.PayerID,
		Status:            StatusCreated,
		CourseID:          params.CourseID,
		EnrollmentID:      params.EnrollmentID,
		AmbassadorID:      params.AmbassadorID,
		CommissionRateBps: rate,
		Metadata:          meta,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	metrics.RecordPayment(p.Gateway, StatusCreated)

	// The ledger is only touched after a confirmed gateway outcome; an
	// initiate failure leaves just a failed payment row behind.
	res, err := s.initiateWithRetry(ctx, adapter, gateway.InitiateParams{
		PaymentID:   p.ID.String(),
		PayerID:     p.PayerID,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		Description: p.Description,
	})
	if err != nil {
		reason := "gateway_unavailable"
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			reason = "insufficient_wallet_balance"
		} else if errors.Is(err, ledger.ErrWalletFrozen) {
			reason = "wallet_frozen"
		}
		if markErr := s.repo.MarkFailed(ctx, p.ID, reason); markErr != nil {
			logger.Error("failed to mark payment failed", "payment_id", p.ID, "error", markErr)
		}
		metrics.RecordPayment(p.Gateway, StatusFailed)
		return nil, err
	}

	if err := s.repo.SetExternalReference(ctx, p.ID, res.ExternalReference, StatusPendingCapture); err != nil {
		return nil, err
	}
	p.ExternalReference = res.ExternalReference
	p.Status = StatusPendingCapture

	if res.Captured {
		// Wallet-pay settles synchronously; run the same capture path a
		// webhook would, keyed on the payment itself.
		key := gateway.WalletPay + ":capture:" + p.ID.String()
		if _, err := s.capturePayment(ctx, p, key, ""); err != nil {
			return nil, err
		}
		p.Status = StatusCaptured
	}

	return &CreateResult{
		PaymentID:         p.ID,
		ExternalReference: p.ExternalReference,
		ActionLink:        res.ActionLink,
		Status:            p.Status,
	}, nil
}

func (s *service) initiateWithRetry(ctx context.Context, adapter gateway.Adapter, params gateway.InitiateParams) (*gateway.InitiateResult, error) {
	var res *gateway.InitiateResult
	var err error
	for attempt := 0; attempt < gatewayAttempts; attempt++ {
		res, err = adapter.Initiate(ctx, params)
		if err == nil || !errors.Is(err, gateway.ErrGatewayUnavailable) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(gatewayBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, err
}

func (s *service) HandleCallback(ctx context.Context, gatewayName string, payload []byte, signature string) (bool, error) {
	adapter, err := s.gateways.Get(gatewayName)
	if err != nil {
		return false, err
	}

	if !adapter.VerifySignature(payload, signature) {
		metrics.RecordWebhookEvent(gatewayName, "bad_signature")
		return false, gateway.ErrBadSignature
	}

	ev, err := adapter.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupportedEvent) {
			metrics.RecordWebhookEvent(gatewayName, "ignored")
			return false, nil
		}
		metrics.RecordWebhookEvent(gatewayName, "malformed")
		return false, err
	}

	p, err := s.repo.GetByExternalReference(ctx, ev.ExternalReference)
	if err != nil {
		return false, err
	}

	key := gatewayName + ":" + ev.EventID

	var applied bool
	switch ev.Kind {
	case gateway.EventCaptured:
		applied, err = s.capturePayment(ctx, p, key, ev.CaptureReference)
	case gateway.EventFailed:
		applied, err = s.failPayment(ctx, p, key)
	case gateway.EventRefunded:
		applied, err = s.applyGatewayRefund(ctx, p, key, ev)
	default:
		return false, nil
	}
	if err != nil {
		metrics.RecordWebhookEvent(gatewayName, "error")
		return false, err
	}

	if applied {
		metrics.RecordWebhookEvent(gatewayName, "applied")
	} else {
		metrics.RecordWebhookEvent(gatewayName, "duplicate")
	}
	return applied, nil
}

// capturePayment applies the capture effect exactly once: claim the
// idempotency key, move the payment to captured and credit the referral
// commission, all in one database transaction. Whatever still needs to
// happen is derived from the payment status, so a replayed event against
// an already-captured payment is a no-op.
func (s *service) capturePayment(ctx context.Context, p *Payment, key, captureRef string) (bool, error) {
	var ambassadorWallet *ledger.Wallet
	if p.AmbassadorID != nil {
		w, err := s.store.GetOrCreateWallet(ctx, *p.AmbassadorID, ledger.OwnerAmbassador)
		if err != nil {
			return false, err
		}
		ambassadorWallet = w
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	admitted, err := s.guard.AdmitTx(ctx, tx, key, p.Gateway)
	if err != nil {
		return false, err
	}
	if !admitted {
		return false, nil
	}

	ok, err := s.repo.TransitionTx(ctx, tx, p.ID, []string{StatusCreated, StatusPendingCapture}, StatusCaptured)
	if err != nil {
		return false, err
	}
	if !ok {
		// Already captured or terminal: record the key so this event id
		// stays burned, but apply nothing.
		return false, tx.Commit()
	}

	if captureRef != "" {
		if err := s.repo.SetCaptureReferenceTx(ctx, tx, p.ID, captureRef); err != nil {
			return false, err
		}
	}

	if ambassadorWallet != nil {
		points := CommissionPoints(p.AmountCents, p.CommissionRateBps)
		if points > 0 {
			_, err = s.store.AppendTx(ctx, tx, ambassadorWallet.ID, ledger.Entry{
				Type:        ledger.TypeCredit,
				PointsDelta: points,
				Description: "referral commission",
				Reference:   p.ID.String(),
			})
			if err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	metrics.RecordPayment(p.Gateway, StatusCaptured)
	logger.Info("payment captured", "payment_id", p.ID, "gateway", p.Gateway, "amount_cents", p.AmountCents)

	if s.notifier != nil {
		if err := s.notifier.PaymentCaptured(ctx, p.PayerID, p.ID.String(), p.AmountCents, p.Currency); err != nil {
			logger.Error("failed to queue capture notification", "payment_id", p.ID, "error", err)
		}
	}
	return true, nil
}

func (s *service) failPayment(ctx context.Context, p *Payment, key string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	admitted, err := s.guard.AdmitTx(ctx, tx, key, p.Gateway)
	if err != nil {
		return false, err
	}
	if !admitted {
		return false, nil
	}

	ok, err := s.repo.TransitionTx(ctx, tx, p.ID, []string{StatusCreated, StatusPendingCapture}, StatusFailed)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, tx.Commit()
	}

	if err := s.repo.SetFailureReasonTx(ctx, tx, p.ID, "gateway_declined"); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	metrics.RecordPayment(p.Gateway, StatusFailed)
	return true, nil
}

// applyGatewayRefund handles a refund confirmed by the gateway itself,
// recording the refund row and reversing any referral commission with a
// compensating debit.
func (s *service) applyGatewayRefund(ctx context.Context, p *Payment, key string, ev *gateway.Event) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// Claim the event id before any amount validation: a redelivery of a
	// refund that is already on the books must come back as a duplicate,
	// not an error the gateway keeps retrying.
	admitted, err := s.guard.AdmitTx(ctx, tx, key, p.Gateway)
	if err != nil {
		return false, err
	}
	if !admitted {
		return false, nil
	}

	if ev.AmountCents <= 0 || ev.AmountCents > p.Refundable() {
		// The gateway and our books disagree on the remainder. Redelivery
		// cannot change that, so burn the key and acknowledge without
		// applying anything.
		logger.Error("gateway refund outside refundable remainder",
			"payment_id", p.ID, "event_id", ev.EventID,
			"amount_cents", ev.AmountCents, "refundable_cents", p.Refundable())
		return false, tx.Commit()
	}

	newStatus := StatusPartiallyRefunded
	if p.RefundedCents+ev.AmountCents >= p.AmountCents {
		newStatus = StatusRefunded
	}

	var ambassadorWallet *ledger.Wallet
	if p.AmbassadorID != nil {
		w, err := s.store.GetWalletByOwner(ctx, *p.AmbassadorID)
		if err != nil && !errors.Is(err, ledger.ErrWalletNotFound) {
			return false, err
		}
		ambassadorWallet = w
	}

	ok, err := s.repo.TransitionTx(ctx, tx, p.ID, []string{StatusCaptured, StatusPartiallyRefunded}, newStatus)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, tx.Commit()
	}

	if err := s.repo.AddRefundedTx(ctx, tx, p.ID, ev.AmountCents, newStatus); err != nil {
		return false, err
	}

	now := time.Now()
	refund := &Refund{
		ID:                uuid.New(),
		PaymentID:         p.ID,
		AmountCents:       ev.AmountCents,
		Reason:            "gateway refund",
		Status:            RefundProcessed,
		ExternalReference: ev.EventID,
		RequestedBy:       0,
		ProcessedAt:       &now,
	}
	if err := s.repo.CreateRefundTx(ctx, tx, refund); err != nil {
		return false, err
	}

	if err := s.reverseCommissionTx(ctx, tx, p, ambassadorWallet, ev.AmountCents); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	metrics.RefundsTotal.WithLabelValues(p.Gateway).Inc()
	metrics.RecordPayment(p.Gateway, newStatus)
	return true, nil
}

// reverseCommissionTx appends the compensating debit for a refunded slice
// of a payment that previously earned referral commission. The reversal is
// capped at the wallet's spendable points: the ledger never goes negative.
func (s *service) reverseCommissionTx(ctx context.Context, tx *sqlx.Tx, p *Payment, w *ledger.Wallet, refundedCents int64) error {
	if w == nil {
		return nil
	}
	points := CommissionPoints(refundedCents, p.CommissionRateBps)
	if points <= 0 {
		return nil
	}
	if spendable := w.SpendablePoints(); points > spendable {
		logger.Error("commission reversal capped by spendable balance",
			"payment_id", p.ID, "wallet_id", w.ID, "wanted", points, "spendable", spendable)
		points = spendable
	}
	if points <= 0 {
		return nil
	}

	_, err := s.store.AppendTx(ctx, tx, w.ID, ledger.Entry{
		Type:        ledger.TypeDebit,
		PointsDelta: -points,
		Description: "referral commission reversal",
		Reference:   p.ID.String(),
	})
	return err
}

func (s *service) ProcessRefund(ctx context.Context, paymentID uuid.UUID, amountCents int64, reason string, actorID int64, opKey string) (*Refund, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusCaptured && p.Status != StatusPartiallyRefunded {
		return nil, ErrInvalidState
	}
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if amountCents > p.Refundable() {
		return nil, ErrRefundExceedsAmount
	}

	// Claim the operation key before calling out, so a retried request
	// can never issue the gateway refund twice.
	if opKey != "" {
		admitted, err := s.guard.Admit(ctx, "refund-op:"+opKey, "internal")
		if err != nil {
			return nil, err
		}
		if !admitted {
			return nil, ErrDuplicateOperation
		}
	}

	adapter, err := s.gateways.Get(p.Gateway)
	if err != nil {
		return nil, err
	}

	target := p.ExternalReference
	if p.CaptureReference != nil && *p.CaptureReference != "" {
		target = *p.CaptureReference
	}

	var extRef string
	for attempt := 0; attempt < gatewayAttempts; attempt++ {
		extRef, err = adapter.Refund(ctx, target, amountCents)
		if err == nil || !errors.Is(err, gateway.ErrGatewayUnavailable) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(gatewayBackoff * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return nil, err
	}

	var ambassadorWallet *ledger.Wallet
	if p.AmbassadorID != nil {
		w, werr := s.store.GetWalletByOwner(ctx, *p.AmbassadorID)
		if werr != nil && !errors.Is(werr, ledger.ErrWalletNotFound) {
			return nil, werr
		}
		ambassadorWallet = w
	}

	var payerWallet *ledger.Wallet
	if p.Gateway == gateway.WalletPay {
		payerWallet, err = s.store.GetWalletByOwner(ctx, p.PayerID)
		if err != nil {
			return nil, err
		}
	}

	newStatus := StatusPartiallyRefunded
	if p.RefundedCents+amountCents >= p.AmountCents {
		newStatus = StatusRefunded
	}

	now := time.Now()
	refund := &Refund{
		ID:                uuid.New(),
		PaymentID:         p.ID,
		AmountCents:       amountCents,
		Reason:            reason,
		Status:            RefundProcessed,
		ExternalReference: extRef,
		RequestedBy:       actorID,
		ProcessedAt:       &now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ok, err := s.repo.TransitionTx(ctx, tx, p.ID, []string{StatusCaptured, StatusPartiallyRefunded}, newStatus)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	if err := s.repo.AddRefundedTx(ctx, tx, p.ID, amountCents, newStatus); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRefundTx(ctx, tx, refund); err != nil {
		return nil, err
	}
	if err := s.reverseCommissionTx(ctx, tx, p, ambassadorWallet, amountCents); err != nil {
		return nil, err
	}

	if payerWallet != nil {
		// Wallet-pay has no refund webhook to reconcile a half-applied
		// refund, so the payer credit lands in the same transaction as the
		// refund record or not at all.
		_, err = s.store.AppendTx(ctx, tx, payerWallet.ID, ledger.Entry{
			Type:              ledger.TypeCredit,
			CreditsDeltaCents: amountCents,
			Description:       "wallet payment refund",
			Reference:         extRef,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RefundsTotal.WithLabelValues(p.Gateway).Inc()
	metrics.RecordPayment(p.Gateway, newStatus)
	logger.Info("refund processed", "payment_id", p.ID, "refund_id", refund.ID, "amount_cents", amountCents)

	return refund, nil
}

func (s *service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByPayer(ctx context.Context, payerID int64, limit, offset int) ([]Payment, error) {
	return s.repo.ListByPayer(ctx, payerID, limit, offset)
}

func (s *service) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]Refund, error) {
	return s.repo.ListRefunds(ctx, paymentID)
}
