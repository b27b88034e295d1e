package payout

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"skillprob/internal/ledger"
	"skillprob/internal/logger"
	"skillprob/internal/metrics"
)

var (
	ErrInvalidPoints = errors.New("points must be positive")
	ErrInvalidState  = errors.New("payout request is not in the expected state")
)

// Notifier tells the ambassador the outcome of their request. Delivery is
// fire-and-forget; a failed notification never fails the transition.
type Notifier interface {
	PayoutResolved(ctx context.Context, ambassadorID int64, requestID, status, notes string) error
}

type Service interface {
	Create(ctx context.Context, ambassadorID, points int64, bank BankDetails) (*PayoutRequest, error)
	Approve(ctx context.Context, id uuid.UUID, approverID int64, notes string) (*PayoutRequest, error)
	Reject(ctx context.Context, id uuid.UUID, approverID int64, notes string) (*PayoutRequest, error)
	Settle(ctx context.Context, id uuid.UUID, transferRef string) (*PayoutRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*PayoutRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]PayoutRequest, error)
	ListByAmbassador(ctx context.Context, ambassadorID int64, limit, offset int) ([]PayoutRequest, error)
}

type service struct {
	db       *sqlx.DB
	repo     Store
	store    ledger.Store
	notifier Notifier

	pointValueCents int64
}

func NewService(database *sqlx.DB, repo Store, store ledger.Store, notifier Notifier, pointValueCents int64) Service {
	return &service{
		db:       database,
		repo:     repo,
		store:    store,
		notifier: notifier,

		pointValueCents: pointValueCents,
	}
}

// Create reserves the redeemed points with a payout_hold ledger entry and
// inserts the pending request in the same database transaction. The hold
// is what makes a second concurrent request against the same points fail
// with insufficient funds instead of double-promising them.
func (s *service) Create(ctx context.Context, ambassadorID, points int64, bank BankDetails) (*PayoutRequest, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}

	w, err := s.store.GetOrCreateWallet(ctx, ambassadorID, ledger.OwnerAmbassador)
	if err != nil {
		return nil, err
	}

	bankJSON, err := json.Marshal(bank)
	if err != nil {
		return nil, err
	}

	p := &PayoutRequest{
		ID:           uuid.New(),
		AmbassadorID: ambassadorID,
		WalletID:     w.ID,
		Points:       points,
		AmountCents:  points * s.pointValueCents,
		Currency:     w.Currency,
		BankDetails:  types.JSONText(bankJSON),
		Status:       StatusPending,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = s.store.AppendTx(ctx, tx, w.ID, ledger.Entry{
		Type:        ledger.TypePayoutHold,
		HeldDelta:   points,
		Description: "payout reservation",
		Reference:   p.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordPayoutTransition(StatusPending)
	logger.Info("payout requested", "request_id", p.ID, "ambassador_id", ambassadorID, "points", points)
	return p, nil
}

// Approve moves pending -> approved. Money does not move yet; settlement
// is a distinct step representing the actual bank transfer.
func (s *service) Approve(ctx context.Context, id uuid.UUID, approverID int64, notes string) (*PayoutRequest, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ok, err := s.repo.ResolveTx(ctx, tx, id, StatusPending, StatusApproved, approverID, notes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateError(ctx, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordPayoutTransition(StatusApproved)
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyResolved(ctx, p, notes)
	return p, nil
}

// Reject releases the reservation and closes the request, atomically.
func (s *service) Reject(ctx context.Context, id uuid.UUID, approverID int64, notes string) (*PayoutRequest, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ok, err := s.repo.ResolveTx(ctx, tx, id, StatusPending, StatusRejected, approverID, notes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateError(ctx, id)
	}

	_, err = s.store.AppendTx(ctx, tx, p.WalletID, ledger.Entry{
		Type:        ledger.TypePayoutRelease,
		HeldDelta:   -p.Points,
		Description: "payout reservation released",
		Reference:   p.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordPayoutTransition(StatusRejected)
	p, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyResolved(ctx, p, notes)
	return p, nil
}

// Settle converts the hold into the final debit and records the external
// transfer reference. Only an approved request can settle.
func (s *service) Settle(ctx context.Context, id uuid.UUID, transferRef string) (*PayoutRequest, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ok, err := s.repo.SettleTx(ctx, tx, id, transferRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateError(ctx, id)
	}

	_, err = s.store.AppendTx(ctx, tx, p.WalletID, ledger.Entry{
		Type:        ledger.TypePayoutSettle,
		PointsDelta: -p.Points,
		HeldDelta:   -p.Points,
		Description: "payout settled",
		Reference:   p.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordPayoutTransition(StatusPaid)
	logger.Info("payout settled", "request_id", p.ID, "transfer_reference", transferRef)
	return s.repo.GetByID(ctx, id)
}

// stateError distinguishes a missing request from one in the wrong state
// after a guarded update matched nothing.
func (s *service) stateError(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

func (s *service) notifyResolved(ctx context.Context, p *PayoutRequest, notes string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PayoutResolved(ctx, p.AmbassadorID, p.ID.String(), p.Status, notes); err != nil {
		logger.Error("failed to queue payout notification", "request_id", p.ID, "error", err)
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, status string, limit, offset int) ([]PayoutRequest, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *service) ListByAmbassador(ctx context.Context, ambassadorID int64, limit, offset int) ([]PayoutRequest, error) {
	return s.repo.ListByAmbassador(ctx, ambassadorID, limit, offset)
}
