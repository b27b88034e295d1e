package ledger

import "time"

// Owner kinds for wallets.
const (
	OwnerStudent    = "student"
	OwnerAmbassador = "ambassador"
)

// Transaction types. These are the only values ever written to the
// wallet_transactions.type column.
const (
	TypeCredit        = "credit"
	TypeDebit         = "debit"
	TypeConversion    = "conversion"
	TypePayoutHold    = "payout_hold"
	TypePayoutRelease = "payout_release"
	TypePayoutSettle  = "payout_settle"
)

// Wallet is the materialized balance snapshot. All balance fields are
// derived from the transaction log; only Append may change them.
type Wallet struct {
	ID                   int64     `db:"id" json:"id"`
	OwnerID              int64     `db:"owner_id" json:"owner_id"`
	OwnerKind            string    `db:"owner_kind" json:"owner_kind"`
	Points               int64     `db:"points" json:"points"`
	HeldPoints           int64     `db:"held_points" json:"held_points"`
	CreditsCents         int64     `db:"credits_cents" json:"credits_cents"`
	Currency             string    `db:"currency" json:"currency"`
	TotalEarnedPoints    int64     `db:"total_earned_points" json:"total_earned_points"`
	TotalSpentPoints     int64     `db:"total_spent_points" json:"total_spent_points"`
	TotalSpentCents      int64     `db:"total_spent_cents" json:"total_spent_cents"`
	TotalWithdrawnPoints int64     `db:"total_withdrawn_points" json:"total_withdrawn_points"`
	Frozen               bool      `db:"frozen" json:"frozen"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// SpendablePoints is the balance available for debits and new holds.
func (w *Wallet) SpendablePoints() int64 {
	return w.Points - w.HeldPoints
}

// Transaction is immutable once written. Corrections are always new
// compensating rows, never updates.
type Transaction struct {
	ID                int64     `db:"id" json:"id"`
	WalletID          int64     `db:"wallet_id" json:"wallet_id"`
	Type              string    `db:"type" json:"type"`
	PointsDelta       int64     `db:"points_delta" json:"points_delta"`
	CreditsDeltaCents int64     `db:"credits_delta_cents" json:"credits_delta_cents"`
	HeldDelta         int64     `db:"held_delta" json:"held_delta"`
	Currency          string    `db:"currency" json:"currency"`
	Description       string    `db:"description" json:"description"`
	Reference         string    `db:"reference" json:"reference"`
	PointsAfter       int64     `db:"points_after" json:"points_after"`
	HeldAfter         int64     `db:"held_after" json:"held_after"`
	CreditsAfterCents int64     `db:"credits_after_cents" json:"credits_after_cents"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Entry describes one append request. Deltas are signed; the type decides
// which sign combinations are legal.
type Entry struct {
	Type              string
	PointsDelta       int64
	CreditsDeltaCents int64
	HeldDelta         int64
	Description       string
	Reference         string
}
