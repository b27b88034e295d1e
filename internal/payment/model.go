package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// Payment statuses. Transitions are one-directional:
// created -> pending_capture -> captured -> (partially_refunded | refunded),
// with created/pending_capture -> failed on gateway decline.
const (
	StatusCreated           = "created"
	StatusPendingCapture    = "pending_capture"
	StatusCaptured          = "captured"
	StatusPartiallyRefunded = "partially_refunded"
	StatusRefunded          = "refunded"
	StatusFailed            = "failed"
)

// Refund statuses.
const (
	RefundRequested = "requested"
	RefundProcessed = "processed"
	RefundFailed    = "failed"
)

type Payment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Gateway     string    `db:"gateway" json:"gateway"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	Currency    string    `db:"currency" json:"currency"`
	Description string    `db:"description" json:"description"`
	PayerID     int64     `db:"payer_id" json:"payer_id"`
	Status      string    `db:"status" json:"status"`

	// ExternalReference is the gateway's id for this payment (order or
	// intent). CaptureReference is the gateway's id for the captured
	// charge, learned from the capture event; refunds are issued against
	// it where the gateway distinguishes the two.
	ExternalReference string  `db:"external_reference" json:"external_reference"`
	CaptureReference  *string `db:"capture_reference" json:"capture_reference,omitempty"`

	CourseID     *int64 `db:"course_id" json:"course_id,omitempty"`
	EnrollmentID *int64 `db:"enrollment_id" json:"enrollment_id,omitempty"`

	// AmbassadorID links the referring ambassador whose wallet earns
	// commission on capture. The rate is locked at creation time.
	AmbassadorID      *int64 `db:"ambassador_id" json:"ambassador_id,omitempty"`
	CommissionRateBps int    `db:"commission_rate_bps" json:"commission_rate_bps"`

	RefundedCents int64          `db:"refunded_cents" json:"refunded_cents"`
	FailureReason *string        `db:"failure_reason" json:"failure_reason,omitempty"`
	Metadata      types.JSONText `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Refundable reports how much of the captured amount is still open.
func (p *Payment) Refundable() int64 {
	return p.AmountCents - p.RefundedCents
}

type Refund struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PaymentID         uuid.UUID  `db:"payment_id" json:"payment_id"`
	AmountCents       int64      `db:"amount_cents" json:"amount_cents"`
	Reason            string     `db:"reason" json:"reason"`
	Status            string     `db:"status" json:"status"`
	ExternalReference string     `db:"external_reference" json:"external_reference"`
	RequestedBy       int64      `db:"requested_by" json:"requested_by"`
	RequestedAt       time.Time  `db:"requested_at" json:"requested_at"`
	ProcessedAt       *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// CommissionPoints converts a captured amount into ambassador commission
// points: one point per whole currency unit of commission. 50000 cents at
// 1000 bps is 50 points.
func CommissionPoints(amountCents int64, rateBps int) int64 {
	return amountCents * int64(rateBps) / 10000 / 100
}
