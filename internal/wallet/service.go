package wallet

import (
	"context"
	"errors"

	"skillprob/internal/ledger"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRate   = errors.New("conversion rate must be positive")
)

type Service interface {
	GetOrCreate(ctx context.Context, ownerID int64, ownerKind string) (*ledger.Wallet, error)
	BalanceByOwner(ctx context.Context, ownerID int64) (*ledger.Wallet, error)
	Balance(ctx context.Context, walletID int64) (*ledger.Wallet, error)
	Credit(ctx context.Context, walletID, points, creditsCents int64, description, reference string) (*ledger.Transaction, error)
	Debit(ctx context.Context, walletID, points, creditsCents int64, description, reference string) (*ledger.Transaction, error)
	ConvertPointsToCredits(ctx context.Context, walletID, points int64, rateBps int) (*ledger.Transaction, error)
	Transactions(ctx context.Context, walletID int64, limit int, beforeID int64) ([]ledger.Transaction, int64, error)
	SetFrozen(ctx context.Context, walletID int64, frozen bool) error

	// Wallet-pay hook, keyed by owner because the payer never knows
	// their wallet id.
	DebitCredits(ctx context.Context, ownerID int64, amountCents int64, description, reference string) error
}

type service struct {
	store ledger.Store
}

func NewService(store ledger.Store) Service {
	return &service{store: store}
}

func (s *service) GetOrCreate(ctx context.Context, ownerID int64, ownerKind string) (*ledger.Wallet, error) {
	return s.store.GetOrCreateWallet(ctx, ownerID, ownerKind)
}

func (s *service) BalanceByOwner(ctx context.Context, ownerID int64) (*ledger.Wallet, error) {
	return s.store.GetWalletByOwner(ctx, ownerID)
}

func (s *service) Balance(ctx context.Context, walletID int64) (*ledger.Wallet, error) {
	return s.store.GetWallet(ctx, walletID)
}

func (s *service) Credit(ctx context.Context, walletID, points, creditsCents int64, description, reference string) (*ledger.Transaction, error) {
	if points < 0 || creditsCents < 0 || (points == 0 && creditsCents == 0) {
		return nil, ErrInvalidAmount
	}
	return s.store.Append(ctx, walletID, ledger.Entry{
		Type:              ledger.TypeCredit,
		PointsDelta:       points,
		CreditsDeltaCents: creditsCents,
		Description:       description,
		Reference:         reference,
	})
}

func (s *service) Debit(ctx context.Context, walletID, points, creditsCents int64, description, reference string) (*ledger.Transaction, error) {
	if points < 0 || creditsCents < 0 || (points == 0 && creditsCents == 0) {
		return nil, ErrInvalidAmount
	}
	return s.store.Append(ctx, walletID, ledger.Entry{
		Type:              ledger.TypeDebit,
		PointsDelta:       -points,
		CreditsDeltaCents: -creditsCents,
		Description:       description,
		Reference:         reference,
	})
}

// ConvertPointsToCredits redeems points for stored credit as one ledger
// transaction, so a crash can never take the points without granting the
// credit. rateBps is credit value per point in basis points: 1000 bps
// turns 100 points into 10.00 credits.
func (s *service) ConvertPointsToCredits(ctx context.Context, walletID, points int64, rateBps int) (*ledger.Transaction, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if rateBps <= 0 {
		return nil, ErrInvalidRate
	}

	creditsCents := points * int64(rateBps) / 100

	return s.store.Append(ctx, walletID, ledger.Entry{
		Type:              ledger.TypeConversion,
		PointsDelta:       -points,
		CreditsDeltaCents: creditsCents,
		Description:       "points to credits conversion",
	})
}

func (s *service) Transactions(ctx context.Context, walletID int64, limit int, beforeID int64) ([]ledger.Transaction, int64, error) {
	return s.store.ListTransactions(ctx, walletID, limit, beforeID)
}

func (s *service) SetFrozen(ctx context.Context, walletID int64, frozen bool) error {
	return s.store.SetFrozen(ctx, walletID, frozen)
}

func (s *service) DebitCredits(ctx context.Context, ownerID int64, amountCents int64, description, reference string) error {
	w, err := s.store.GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	_, err = s.Debit(ctx, w.ID, 0, amountCents, description, reference)
	return err
}
