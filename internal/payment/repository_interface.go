package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Store interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByExternalReference(ctx context.Context, ref string) (*Payment, error)
	SetExternalReference(ctx context.Context, id uuid.UUID, ref, status string) error
	TransitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from []string, to string) (bool, error)
	SetCaptureReferenceTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, captureRef string) error
	SetFailureReasonTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	AddRefundedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amountCents int64, newStatus string) error
	ListByPayer(ctx context.Context, payerID int64, limit, offset int) ([]Payment, error)
	CreateRefundTx(ctx context.Context, tx *sqlx.Tx, ref *Refund) error
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]Refund, error)
}

var _ Store = (*Repository)(nil)
