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

const paymentColumns = `id, registration_id, COALESCE(team_id::text, ''), event_id,
	payer_id, amount, status, transaction_id, created_at, completed_at`

// PaymentRepository persists payments and invoices.
type PaymentRepository struct {
	db *pgxpool.Pool
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePayment inserts a new settlement attempt.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (id, registration_id, team_id, event_id, payer_id,
		   amount, status, transaction_id, created_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.RegistrationID, nilIfEmpty(p.TeamID), p.EventID, p.PayerID,
		p.Amount, p.Status, p.TransactionID, p.CreatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.RegistrationID, &p.TeamID, &p.EventID,
		&p.PayerID, &p.Amount, &p.Status, &p.TransactionID, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

// GetPayment returns one payment or ErrNotFound.
func (r *PaymentRepository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// Settle moves a pending payment to its final status. The precondition on
// the current status makes duplicate settlement confirmations no-ops.
func (r *PaymentRepository) Settle(ctx context.Context, id string, to model.PaymentStatus, transactionID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status=$2, transaction_id=$3, completed_at=$4
		 WHERE id=$1 AND status='pending'`,
		id, to, transactionID, at)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindOpenByTeam returns the team's pending or completed payment, or
// ErrNotFound.
func (r *PaymentRepository) FindOpenByTeam(ctx context.Context, teamID string) (*model.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE team_id = $1 AND status IN ('pending', 'completed')
		 LIMIT 1`, teamID))
}

// FindOpenByRegistration returns the registration's pending or completed
// payment, or ErrNotFound.
func (r *PaymentRepository) FindOpenByRegistration(ctx context.Context, registrationID string) (*model.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE registration_id = $1 AND status IN ('pending', 'completed')
		 LIMIT 1`, registrationID))
}

// CreateInvoice records a settled payment for the paying user.
func (r *PaymentRepository) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO invoices (id, payment_id, event_id, user_id, amount, issued_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		inv.ID, inv.PaymentID, inv.EventID, inv.UserID, inv.Amount, inv.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}
