package payout

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Store interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, p *PayoutRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*PayoutRequest, error)
	ResolveTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to string, resolverID int64, notes string) (bool, error)
	SettleTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, transferRef string) (bool, error)
	List(ctx context.Context, status string, limit, offset int) ([]PayoutRequest, error)
	ListByAmbassador(ctx context.Context, ambassadorID int64, limit, offset int) ([]PayoutRequest, error)
}

var _ Store = (*Repository)(nil)
