package payout

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// Payout request statuses:
// pending -(approve)-> approved -(settle)-> paid
// pending -(reject)-> rejected
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusPaid     = "paid"
)

// BankDetails is snapshotted onto the request at creation time. Later
// edits to the ambassador's profile never change where an approved payout
// goes.
type BankDetails struct {
	AccountName   string `json:"account_name" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	IFSC          string `json:"ifsc" binding:"required"`
	BankName      string `json:"bank_name"`
}

type PayoutRequest struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	AmbassadorID int64          `db:"ambassador_id" json:"ambassador_id"`
	WalletID     int64          `db:"wallet_id" json:"wallet_id"`
	Points       int64          `db:"points" json:"points"`
	AmountCents  int64          `db:"amount_cents" json:"amount_cents"`
	Currency     string         `db:"currency" json:"currency"`
	BankDetails  types.JSONText `db:"bank_details" json:"bank_details"`
	Status       string         `db:"status" json:"status"`

	ResolverID        *int64  `db:"resolver_id" json:"resolver_id,omitempty"`
	ResolverNotes     *string `db:"resolver_notes" json:"resolver_notes,omitempty"`
	TransferReference *string `db:"transfer_reference" json:"transfer_reference,omitempty"`

	RequestedAt time.Time  `db:"requested_at" json:"requested_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	SettledAt   *time.Time `db:"settled_at" json:"settled_at,omitempty"`
}
