package idempotency

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Guard records externally supplied event keys so a financial effect is
// applied at most once. The check and the record are one INSERT, never a
// read followed by a write.
type Guard struct {
	db *sqlx.DB
}

func NewGuard(database *sqlx.DB) *Guard {
	return &Guard{db: database}
}

// Admit claims the key. It returns false when the key was already claimed
// by an earlier delivery.
func (g *Guard) Admit(ctx context.Context, key, source string) (bool, error) {
	res, err := g.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, source)
		 VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		key, source,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AdmitTx claims the key inside the caller's transaction, so the claim
// commits or rolls back together with the effect it protects. A rolled
// back effect releases the key and the next retry gets a clean run.
func (g *Guard) AdmitTx(ctx context.Context, tx *sqlx.Tx, key, source string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, source)
		 VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		key, source,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
