package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"skillprob/internal/db"
	"skillprob/internal/metrics"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletKindMismatch = errors.New("wallet exists with a different owner kind")
	ErrWalletFrozen      = errors.New("wallet is frozen")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidEntry      = errors.New("invalid ledger entry")
)

const (
	appendRetries = 3
	appendBackoff = 50 * time.Millisecond
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) GetOrCreateWallet(ctx context.Context, ownerID int64, ownerKind string) (*Wallet, error) {
	if ownerKind != OwnerStudent && ownerKind != OwnerAmbassador {
		return nil, ErrInvalidEntry
	}

	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE owner_id = $1`, ownerID)
	if err == nil {
		if w.OwnerKind != ownerKind {
			return nil, ErrWalletKindMismatch
		}
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (owner_id, owner_kind)
		 VALUES ($1, $2)
		 ON CONFLICT (owner_id) DO UPDATE SET updated_at = NOW()
		 RETURNING *`,
		ownerID, ownerKind,
	).StructScan(w)
	if err != nil {
		return nil, err
	}
	if w.OwnerKind != ownerKind {
		return nil, ErrWalletKindMismatch
	}

	return w, nil
}

func (r *Repository) GetWallet(ctx context.Context, walletID int64) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE id = $1`, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Repository) GetWalletByOwner(ctx context.Context, ownerID int64) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE owner_id = $1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Append is the single mutation primitive of the engine: it validates the
// entry against the current snapshot, inserts the transaction row and
// updates the snapshot as one database transaction. Concurrent appends to
// the same wallet serialize on the row lock; transient conflicts are
// retried in-process.
func (r *Repository) Append(ctx context.Context, walletID int64, e Entry) (*Transaction, error) {
	var txn *Transaction
	err := db.WithRetry(ctx, appendRetries, appendBackoff, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		txn, err = r.AppendTx(ctx, tx, walletID, e)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// AppendTx is Append running inside a caller-owned transaction, so payment
// and payout flows can pair a ledger effect with their own state change
// atomically. The caller commits.
func (r *Repository) AppendTx(ctx context.Context, tx *sqlx.Tx, walletID int64, e Entry) (*Transaction, error) {
	var w Wallet
	err := tx.QueryRowxContext(ctx,
		`SELECT * FROM wallets WHERE id = $1 FOR UPDATE`,
		walletID,
	).StructScan(&w)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := apply(&w, e); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets
		 SET points = $1, held_points = $2, credits_cents = $3,
		     total_earned_points = $4, total_spent_points = $5,
		     total_spent_cents = $6, total_withdrawn_points = $7,
		     updated_at = NOW()
		 WHERE id = $8`,
		w.Points, w.HeldPoints, w.CreditsCents,
		w.TotalEarnedPoints, w.TotalSpentPoints,
		w.TotalSpentCents, w.TotalWithdrawnPoints,
		w.ID,
	)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		WalletID:          w.ID,
		Type:              e.Type,
		PointsDelta:       e.PointsDelta,
		CreditsDeltaCents: e.CreditsDeltaCents,
		HeldDelta:         e.HeldDelta,
		Currency:          w.Currency,
		Description:       e.Description,
		Reference:         e.Reference,
		PointsAfter:       w.Points,
		HeldAfter:         w.HeldPoints,
		CreditsAfterCents: w.CreditsCents,
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallet_transactions
		   (wallet_id, type, points_delta, credits_delta_cents, held_delta,
		    currency, description, reference,
		    points_after, held_after, credits_after_cents)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		txn.WalletID, txn.Type, txn.PointsDelta, txn.CreditsDeltaCents, txn.HeldDelta,
		txn.Currency, txn.Description, txn.Reference,
		txn.PointsAfter, txn.HeldAfter, txn.CreditsAfterCents,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}

	metrics.RecordLedgerAppend(e.Type)
	return txn, nil
}

// apply validates the entry against the snapshot and folds it in. The
// resulting snapshot must satisfy 0 <= held <= points and credits >= 0.
func apply(w *Wallet, e Entry) error {
	switch e.Type {
	case TypeCredit:
		if e.PointsDelta < 0 || e.CreditsDeltaCents < 0 || e.HeldDelta != 0 {
			return ErrInvalidEntry
		}
		if e.PointsDelta == 0 && e.CreditsDeltaCents == 0 {
			return ErrInvalidEntry
		}
		w.TotalEarnedPoints += e.PointsDelta
	case TypeDebit:
		if e.PointsDelta > 0 || e.CreditsDeltaCents > 0 || e.HeldDelta != 0 {
			return ErrInvalidEntry
		}
		if e.PointsDelta == 0 && e.CreditsDeltaCents == 0 {
			return ErrInvalidEntry
		}
		if w.Frozen {
			return ErrWalletFrozen
		}
		w.TotalSpentPoints += -e.PointsDelta
		w.TotalSpentCents += -e.CreditsDeltaCents
	case TypeConversion:
		if e.PointsDelta >= 0 || e.CreditsDeltaCents <= 0 || e.HeldDelta != 0 {
			return ErrInvalidEntry
		}
		if w.Frozen {
			return ErrWalletFrozen
		}
		w.TotalSpentPoints += -e.PointsDelta
	case TypePayoutHold:
		if e.HeldDelta <= 0 || e.PointsDelta != 0 || e.CreditsDeltaCents != 0 {
			return ErrInvalidEntry
		}
		if w.Frozen {
			return ErrWalletFrozen
		}
	case TypePayoutRelease:
		if e.HeldDelta >= 0 || e.PointsDelta != 0 || e.CreditsDeltaCents != 0 {
			return ErrInvalidEntry
		}
	case TypePayoutSettle:
		if e.HeldDelta >= 0 || e.PointsDelta != e.HeldDelta || e.CreditsDeltaCents != 0 {
			return ErrInvalidEntry
		}
		w.TotalWithdrawnPoints += -e.PointsDelta
	default:
		return ErrInvalidEntry
	}

	w.Points += e.PointsDelta
	w.HeldPoints += e.HeldDelta
	w.CreditsCents += e.CreditsDeltaCents

	if w.Points < 0 || w.CreditsCents < 0 || w.HeldPoints < 0 || w.HeldPoints > w.Points {
		return ErrInsufficientFunds
	}

	return nil
}

// ListTransactions returns the wallet's transactions newest first. A
// beforeID of 0 starts from the newest row; the returned cursor is 0 when
// there are no further pages.
func (r *Repository) ListTransactions(ctx context.Context, walletID int64, limit int, beforeID int64) ([]Transaction, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT * FROM wallet_transactions WHERE wallet_id = $1`
	args := []interface{}{walletID}
	if beforeID > 0 {
		query += ` AND id < $2`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ` + strconv.Itoa(limit+1)

	var txs []Transaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, err
	}

	var next int64
	if len(txs) > limit {
		txs = txs[:limit]
		next = txs[len(txs)-1].ID
	}
	return txs, next, nil
}

func (r *Repository) SetFrozen(ctx context.Context, walletID int64, frozen bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET frozen = $1, updated_at = NOW() WHERE id = $2`,
		frozen, walletID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWalletNotFound
	}
	return nil
}
