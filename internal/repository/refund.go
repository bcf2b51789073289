package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

const refundColumns = `id, payment_id, registration_id, requested_by,
	refund_percentage, refund_amount, reason, status, requested_at, decided_at`

// RefundRepository persists refund requests.
type RefundRepository struct {
	db *pgxpool.Pool
}

// NewRefundRepository constructs a RefundRepository.
func NewRefundRepository(db *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{db: db}
}

// CreateRefund inserts a new refund request.
func (r *RefundRepository) CreateRefund(ctx context.Context, ref *model.Refund) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refunds (id, payment_id, registration_id, requested_by,
		   refund_percentage, refund_amount, reason, status, requested_at, decided_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		ref.ID, ref.PaymentID, ref.RegistrationID, ref.RequestedBy,
		ref.RefundPercentage, ref.RefundAmount, ref.Reason, ref.Status,
		ref.RequestedAt, ref.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// GetRefund returns one refund or ErrNotFound.
func (r *RefundRepository) GetRefund(ctx context.Context, id string) (*model.Refund, error) {
	var ref model.Refund
	err := r.db.QueryRow(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id).Scan(
		&ref.ID, &ref.PaymentID, &ref.RegistrationID, &ref.RequestedBy,
		&ref.RefundPercentage, &ref.RefundAmount, &ref.Reason, &ref.Status,
		&ref.RequestedAt, &ref.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}
	return &ref, nil
}

// HasOpenRefund reports whether a pending or completed refund exists for the
// payment.
func (r *RefundRepository) HasOpenRefund(ctx context.Context, paymentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM refunds
			WHERE payment_id = $1 AND status IN ('pending', 'completed')
		 )`, paymentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open refund: %w", err)
	}
	return exists, nil
}

// Decide moves a pending refund to its final status; the precondition makes
// concurrent decisions mutually exclusive.
func (r *RefundRepository) Decide(ctx context.Context, id string, to model.RefundStatus, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refunds SET status=$2, decided_at=$3
		 WHERE id=$1 AND status='pending'`, id, to, at)
	if err != nil {
		return false, fmt.Errorf("decide refund: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
