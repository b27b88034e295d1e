package payout

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrRequestNotFound = errors.New("payout request not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, p *PayoutRequest) error {
	return tx.QueryRowxContext(ctx,
		`INSERT INTO payout_requests
		   (id, ambassador_id, wallet_id, points, amount_cents, currency,
		    bank_details, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING requested_at`,
		p.ID, p.AmbassadorID, p.WalletID, p.Points, p.AmountCents, p.Currency,
		p.BankDetails, p.Status,
	).Scan(&p.RequestedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	p := &PayoutRequest{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM payout_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveTx moves the request from exactly one expected status to the next
// and stamps the resolver. Returns false when the request was not in the
// expected status, which rejects double-approval and stage skipping.
func (r *Repository) ResolveTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to string, resolverID int64, notes string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payout_requests
		 SET status = $1, resolver_id = $2, resolver_notes = $3, resolved_at = NOW()
		 WHERE id = $4 AND status = $5`,
		to, resolverID, notes, id, from,
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

// SettleTx finalizes an approved request with the external transfer
// reference.
func (r *Repository) SettleTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, transferRef string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payout_requests
		 SET status = $1, transfer_reference = $2, settled_at = NOW()
		 WHERE id = $3 AND status = $4`,
		StatusPaid, transferRef, id, StatusApproved,
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

func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]PayoutRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var requests []PayoutRequest
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &requests,
			`SELECT * FROM payout_requests
			 WHERE status = $1
			 ORDER BY requested_at DESC
			 LIMIT $2 OFFSET $3`,
			status, limit, offset,
		)
	} else {
		err = r.db.SelectContext(ctx, &requests,
			`SELECT * FROM payout_requests
			 ORDER BY requested_at DESC
			 LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *Repository) ListByAmbassador(ctx context.Context, ambassadorID int64, limit, offset int) ([]PayoutRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var requests []PayoutRequest
	err := r.db.SelectContext(ctx, &requests,
		`SELECT * FROM payout_requests
		 WHERE ambassador_id = $1
		 ORDER BY requested_at DESC
		 LIMIT $2 OFFSET $3`,
		ambassadorID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}
