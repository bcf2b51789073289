package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

const registrationColumns = `id, event_id, user_id, COALESCE(team_id::text, ''),
	status, payment_status, registration_date, payment_pending_since,
	current_round, eliminated_in_round, cancellation_reason, updated_at`

// activeStatuses are the non-terminal registration statuses.
var activeStatuses = []model.RegistrationStatus{
	model.RegistrationPending,
	model.RegistrationConfirmed,
	model.RegistrationWaitlisted,
}

// RegistrationRepository persists registrations and applies the guarded
// transitions that keep the event counter consistent.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// nilIfEmpty maps "" to NULL for nullable UUID columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateRegistration inserts the registration. When it holds a spot the
// counter increment runs first, in the same transaction, guarded by the
// capacity predicate; losing the race for the last spot returns
// ErrCapacityExhausted without inserting anything.
func (r *RegistrationRepository) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if reg.CountsTowardCapacity() {
		tag, err := tx.Exec(ctx,
			`UPDATE events SET registered_count = registered_count + 1
			 WHERE id = $1 AND (max_participants IS NULL OR registered_count < max_participants)`,
			reg.EventID)
		if err != nil {
			return fmt.Errorf("increment registered count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return service.ErrCapacityExhausted
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, event_id, user_id, team_id, status,
		   payment_status, registration_date, payment_pending_since, current_round,
		   eliminated_in_round, cancellation_reason, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		reg.ID, reg.EventID, reg.UserID, nilIfEmpty(reg.TeamID), reg.Status,
		reg.PaymentStatus, reg.RegistrationDate, reg.PaymentPendingSince, reg.CurrentRound,
		reg.EliminatedInRound, reg.CancellationReason, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return tx.Commit(ctx)
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.UserID, &reg.TeamID,
		&reg.Status, &reg.PaymentStatus, &reg.RegistrationDate, &reg.PaymentPendingSince,
		&reg.CurrentRound, &reg.EliminatedInRound, &reg.CancellationReason, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return &reg, nil
}

// GetRegistration returns one registration or ErrNotFound.
func (r *RegistrationRepository) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
}

// FindActiveRegistration returns the user's non-terminal registration for
// the event, or ErrNotFound. At most one can exist.
func (r *RegistrationRepository) FindActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status = ANY($3)
		 LIMIT 1`, eventID, userID, activeStatuses))
}

// ListWaitlisted returns up to limit waitlisted registrations in strict FIFO
// order: registration date ascending, id as the tie-break.
func (r *RegistrationRepository) ListWaitlisted(ctx context.Context, eventID string, limit int) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND status = 'waitlisted'
		 ORDER BY registration_date ASC, id ASC
		 LIMIT $2`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// ListByEventAndStatus returns the event's registrations in the given
// statuses, ordered by registration date.
func (r *RegistrationRepository) ListByEventAndStatus(ctx context.Context, eventID string, statuses ...model.RegistrationStatus) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND status = ANY($2)
		 ORDER BY registration_date ASC, id ASC`, eventID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// ListByTeam returns every registration of the team.
func (r *RegistrationRepository) ListByTeam(ctx context.Context, teamID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE team_id = $1
		 ORDER BY registration_date ASC, id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team registrations: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// ListPaymentTimeouts returns registrations of paid events still awaiting
// settlement whose payment window opened before cutoff. The window anchor is
// payment_pending_since, stamped when the registration entered pending, so a
// waitlist promotion restarts the clock.
func (r *RegistrationRepository) ListPaymentTimeouts(ctx context.Context, cutoff time.Time) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.event_id, r.user_id, COALESCE(r.team_id::text, ''),
		   r.status, r.payment_status, r.registration_date, r.payment_pending_since,
		   r.current_round, r.eliminated_in_round, r.cancellation_reason, r.updated_at
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.status = 'pending' AND r.payment_status = 'pending'
		   AND e.is_paid AND r.payment_pending_since < $1
		 ORDER BY r.payment_pending_since ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list payment timeouts: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// CountActiveByEvent counts non-terminal registrations for the event.
func (r *RegistrationRepository) CountActiveByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = ANY($2)`,
		eventID, activeStatuses).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return n, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// Transition applies a guarded status change and the counter delta it
// licenses in one transaction. The status write carries a precondition on
// the current status; a positive delta additionally carries the capacity
// predicate. Either guard failing rolls everything back and reports false.
func (r *RegistrationRepository) Transition(ctx context.Context, t service.RegistrationTransition) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tag pgconn.CommandTag
	if t.PaymentStatus != nil {
		tag, err = tx.Exec(ctx,
			`UPDATE registrations
			 SET status=$3, payment_status=$4,
			   cancellation_reason = CASE WHEN $5 <> '' THEN $5 ELSE cancellation_reason END,
			   payment_pending_since = COALESCE($6, payment_pending_since),
			   updated_at=now()
			 WHERE id=$1 AND status=$2`,
			t.RegistrationID, t.From, t.To, *t.PaymentStatus, t.Reason, t.PendingSince)
	} else {
		tag, err = tx.Exec(ctx,
			`UPDATE registrations
			 SET status=$3,
			   cancellation_reason = CASE WHEN $4 <> '' THEN $4 ELSE cancellation_reason END,
			   updated_at=now()
			 WHERE id=$1 AND status=$2`,
			t.RegistrationID, t.From, t.To, t.Reason)
	}
	if err != nil {
		return false, fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	switch {
	case t.CounterDelta > 0:
		tag, err = tx.Exec(ctx,
			`UPDATE events SET registered_count = registered_count + $2
			 WHERE id = $1 AND (max_participants IS NULL OR registered_count + $2 <= max_participants)`,
			t.EventID, t.CounterDelta)
		if err != nil {
			return false, fmt.Errorf("increment registered count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Capacity gone; roll back the status change too.
			return false, nil
		}
	case t.CounterDelta < 0:
		if _, err = tx.Exec(ctx,
			`UPDATE events SET registered_count = GREATEST(registered_count + $2, 0)
			 WHERE id = $1`,
			t.EventID, t.CounterDelta); err != nil {
			return false, fmt.Errorf("decrement registered count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	return true, nil
}

// SetPaymentStatus is the guarded write of the payment status alone.
func (r *RegistrationRepository) SetPaymentStatus(ctx context.Context, id string, from, to model.RegistrationPayStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET payment_status=$3, updated_at=now()
		 WHERE id=$1 AND payment_status=$2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("set payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
