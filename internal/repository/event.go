// Package repository implements the lifecycle store contracts against
// PostgreSQL. It uses pgx directly (no ORM); every guarded mutation is a
// conditional UPDATE whose affected-row count reports whether the
// precondition still held.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

const eventColumns = `id, organizer_id, title, description, type,
	registration_deadline, start_date_time, end_date_time, max_participants,
	registered_count, status, approval_status, is_paid, amount,
	min_team_size, max_team_size, eligibility, requires_approval,
	created_at, updated_at`

// EventRepository persists events and their embedded rounds.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent inserts a new event.
func (r *EventRepository) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		e.ID, e.OrganizerID, e.Title, e.Description, e.Type,
		e.RegistrationDeadline, e.StartDateTime, e.EndDateTime, e.MaxParticipants,
		e.RegisteredCount, e.Status, e.ApprovalStatus, e.IsPaid, e.Amount,
		e.MinTeamSize, e.MaxTeamSize, e.Eligibility, e.RequiresApproval,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Type,
		&e.RegistrationDeadline, &e.StartDateTime, &e.EndDateTime, &e.MaxParticipants,
		&e.RegisteredCount, &e.Status, &e.ApprovalStatus, &e.IsPaid, &e.Amount,
		&e.MinTeamSize, &e.MaxTeamSize, &e.Eligibility, &e.RequiresApproval,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

// GetEvent returns one event with its rounds, or ErrNotFound.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadRounds(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EventRepository) loadRounds(ctx context.Context, e *model.Event) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, name, sequence, start_date_time, end_date_time, status
		 FROM rounds WHERE event_id = $1 ORDER BY sequence ASC`, e.ID)
	if err != nil {
		return fmt.Errorf("load rounds: %w", err)
	}
	defer rows.Close()

	e.Rounds = nil
	for rows.Next() {
		var rd model.Round
		if err := rows.Scan(&rd.ID, &rd.EventID, &rd.Name, &rd.Sequence,
			&rd.StartDateTime, &rd.EndDateTime, &rd.Status); err != nil {
			return fmt.Errorf("scan round: %w", err)
		}
		e.Rounds = append(e.Rounds, rd)
	}
	return rows.Err()
}

// UpdateEvent persists the event's editable fields. Status and the
// registered count are excluded: they only move through their guarded
// operations.
func (r *EventRepository) UpdateEvent(ctx context.Context, e *model.Event) error {
	_, err := r.db.Exec(ctx,
		`UPDATE events SET title=$2, description=$3, type=$4,
		   registration_deadline=$5, start_date_time=$6, end_date_time=$7,
		   max_participants=$8, is_paid=$9, amount=$10,
		   min_team_size=$11, max_team_size=$12, eligibility=$13,
		   requires_approval=$14, updated_at=$15
		 WHERE id=$1`,
		e.ID, e.Title, e.Description, e.Type,
		e.RegistrationDeadline, e.StartDateTime, e.EndDateTime,
		e.MaxParticipants, e.IsPaid, e.Amount,
		e.MinTeamSize, e.MaxTeamSize, e.Eligibility,
		e.RequiresApproval, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// DeleteEvent removes the event. The service layer guarantees no active
// registrations remain.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

// ListEventsByStatus returns events in any of the given statuses, oldest
// start first. Rounds are not loaded; the sweep steps that need them use
// ListEventsWithUnfinishedRounds.
func (r *EventRepository) ListEventsByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE status = ANY($1) ORDER BY start_date_time ASC`, statuses)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListEventsWithUnfinishedRounds returns events carrying at least one round
// that has not completed, with rounds loaded.
func (r *EventRepository) ListEventsWithUnfinishedRounds(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE id IN (SELECT DISTINCT event_id FROM rounds WHERE status <> 'completed')
		 ORDER BY start_date_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events with unfinished rounds: %w", err)
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if err := r.loadRounds(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// TransitionEvent is the guarded status write: it applies only when the
// persisted status still matches `from`.
func (r *EventRepository) TransitionEvent(ctx context.Context, id string, from, to model.EventStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetApproval records the admin approval decision.
func (r *EventRepository) SetApproval(ctx context.Context, id string, status model.ApprovalStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET approval_status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

// SaveRounds replaces the event's round set in one transaction, so a sweep
// that changed several rounds persists the event exactly once.
func (r *EventRepository) SaveRounds(ctx context.Context, eventID string, rounds []model.Round) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM rounds WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("clear rounds: %w", err)
	}
	for _, rd := range rounds {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rounds (id, event_id, name, sequence, start_date_time, end_date_time, status)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rd.ID, eventID, rd.Name, rd.Sequence, rd.StartDateTime, rd.EndDateTime, rd.Status); err != nil {
			return fmt.Errorf("insert round: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rounds: %w", err)
	}
	return nil
}

// ReconcileRegisteredCount recomputes the counter from the registration rows
// and persists it. Usable as repair path and as test oracle.
func (r *EventRepository) ReconcileRegisteredCount(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE events e SET registered_count = (
			SELECT COUNT(*) FROM registrations reg
			WHERE reg.event_id = e.id AND reg.status IN ('pending', 'confirmed')
		 )
		 WHERE e.id = $1
		 RETURNING registered_count`, eventID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, service.ErrNotFound
		}
		return 0, fmt.Errorf("reconcile registered count: %w", err)
	}
	return count, nil
}
