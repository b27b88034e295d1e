package ledger

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Store is what the rest of the engine is allowed to see of the ledger.
// Append is the only way to change a balance.
type Store interface {
	GetOrCreateWallet(ctx context.Context, ownerID int64, ownerKind string) (*Wallet, error)
	GetWallet(ctx context.Context, walletID int64) (*Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID int64) (*Wallet, error)
	Append(ctx context.Context, walletID int64, e Entry) (*Transaction, error)
	AppendTx(ctx context.Context, tx *sqlx.Tx, walletID int64, e Entry) (*Transaction, error)
	ListTransactions(ctx context.Context, walletID int64, limit int, beforeID int64) ([]Transaction, int64, error)
	SetFrozen(ctx context.Context, walletID int64, frozen bool) error
}

var _ Store = (*Repository)(nil)
