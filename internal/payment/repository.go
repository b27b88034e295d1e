package payment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundNotFound  = errors.New("refund not found")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) Create(ctx context.Context, p *Payment) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO payments
		   (id, gateway, amount_cents, currency, description, payer_id, status,
		    external_reference, course_id, enrollment_id,
		    ambassador_id, commission_rate_bps, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		p.ID, p.Gateway, p.AmountCents, p.Currency, p.Description, p.PayerID, p.Status,
		p.ExternalReference, p.CourseID, p.EnrollmentID,
		p.AmbassadorID, p.CommissionRateBps, p.Metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p := &Payment{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM payments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByExternalReference resolves a payment from either the initiate-time
// reference or the capture-time charge reference, since gateways use
// whichever suits the event.
func (r *Repository) GetByExternalReference(ctx context.Context, ref string) (*Payment, error) {
	p := &Payment{}
	err := r.db.GetContext(ctx, p,
		`SELECT * FROM payments WHERE external_reference = $1 OR capture_reference = $1`,
		ref,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) SetExternalReference(ctx context.Context, id uuid.UUID, ref, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET external_reference = $1, status = $2, updated_at = NOW()
		 WHERE id = $3`,
		ref, status, id,
	)
	return err
}

// TransitionTx moves the payment from one of the expected prior statuses to
// the target status. It returns false when the payment was not in any of
// them, which is how double-processing is detected.
func (r *Repository) TransitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from []string, to string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = ANY($3)`,
		to, id, pq.Array(from),
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

func (r *Repository) SetCaptureReferenceTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, captureRef string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payments SET capture_reference = $1, updated_at = NOW() WHERE id = $2`,
		captureRef, id,
	)
	return err
}

func (r *Repository) SetFailureReasonTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payments SET failure_reason = $1, updated_at = NOW() WHERE id = $2`,
		reason, id,
	)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status = $1, failure_reason = $2, updated_at = NOW()
		 WHERE id = $3 AND status IN ($4, $5)`,
		StatusFailed, reason, id, StatusCreated, StatusPendingCapture,
	)
	return err
}

// AddRefundedTx accumulates the refunded amount and flips the status to
// partially_refunded or refunded.
func (r *Repository) AddRefundedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amountCents int64, newStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payments
		 SET refunded_cents = refunded_cents + $1, status = $2, updated_at = NOW()
		 WHERE id = $3`,
		amountCents, newStatus, id,
	)
	return err
}

func (r *Repository) ListByPayer(ctx context.Context, payerID int64, limit, offset int) ([]Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var payments []Payment
	err := r.db.SelectContext(ctx, &payments,
		`SELECT * FROM payments
		 WHERE payer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		payerID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *Repository) CreateRefundTx(ctx context.Context, tx *sqlx.Tx, ref *Refund) error {
	return tx.QueryRowxContext(ctx,
		`INSERT INTO refunds
		   (id, payment_id, amount_cents, reason, status, external_reference,
		    requested_by, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING requested_at`,
		ref.ID, ref.PaymentID, ref.AmountCents, ref.Reason, ref.Status,
		ref.ExternalReference, ref.RequestedBy, ref.ProcessedAt,
	).Scan(&ref.RequestedAt)
}

func (r *Repository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]Refund, error) {
	var refunds []Refund
	err := r.db.SelectContext(ctx, &refunds,
		`SELECT * FROM refunds WHERE payment_id = $1 ORDER BY requested_at DESC`,
		paymentID,
	)
	if err != nil {
		return nil, err
	}
	return refunds, nil
}
