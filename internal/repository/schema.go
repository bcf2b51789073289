package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL for all lifecycle collections. Statements are
// idempotent so Migrate can run at every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                    UUID PRIMARY KEY,
		organizer_id          TEXT NOT NULL,
		title                 TEXT NOT NULL,
		description           TEXT NOT NULL DEFAULT '',
		type                  TEXT NOT NULL DEFAULT '',
		registration_deadline TIMESTAMPTZ NOT NULL,
		start_date_time       TIMESTAMPTZ NOT NULL,
		end_date_time         TIMESTAMPTZ NOT NULL,
		max_participants      INT,
		registered_count      INT NOT NULL DEFAULT 0,
		status                TEXT NOT NULL,
		approval_status       TEXT NOT NULL,
		is_paid               BOOLEAN NOT NULL DEFAULT FALSE,
		amount                DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_team_size         INT NOT NULL DEFAULT 1,
		max_team_size         INT NOT NULL DEFAULT 1,
		eligibility           TEXT[] NOT NULL DEFAULT '{}',
		requires_approval     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		id              UUID PRIMARY KEY,
		event_id        UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		name            TEXT NOT NULL,
		sequence        INT NOT NULL,
		start_date_time TIMESTAMPTZ NOT NULL,
		end_date_time   TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		id         UUID PRIMARY KEY,
		event_id   UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		leader_id  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id                    UUID PRIMARY KEY,
		event_id              UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id               TEXT NOT NULL,
		team_id               UUID,
		status                TEXT NOT NULL,
		payment_status        TEXT NOT NULL,
		registration_date     TIMESTAMPTZ NOT NULL,
		payment_pending_since TIMESTAMPTZ,
		current_round         INT NOT NULL DEFAULT 0,
		eliminated_in_round   INT,
		cancellation_reason   TEXT NOT NULL DEFAULT '',
		updated_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_active
		ON registrations (event_id, user_id)
		WHERE status IN ('pending', 'confirmed', 'waitlisted')`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_waitlist
		ON registrations (event_id, registration_date, id)
		WHERE status = 'waitlisted'`,
	`CREATE TABLE IF NOT EXISTS payments (
		id              UUID PRIMARY KEY,
		registration_id UUID NOT NULL REFERENCES registrations(id),
		team_id         UUID,
		event_id        UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		payer_id        TEXT NOT NULL,
		amount          DOUBLE PRECISION NOT NULL,
		status          TEXT NOT NULL,
		transaction_id  TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS refunds (
		id                UUID PRIMARY KEY,
		payment_id        UUID NOT NULL REFERENCES payments(id),
		registration_id   UUID NOT NULL REFERENCES registrations(id),
		requested_by      TEXT NOT NULL,
		refund_percentage INT NOT NULL,
		refund_amount     DOUBLE PRECISION NOT NULL,
		reason            TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		requested_at      TIMESTAMPTZ NOT NULL,
		decided_at        TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id         UUID PRIMARY KEY,
		payment_id UUID NOT NULL REFERENCES payments(id),
		event_id   UUID NOT NULL,
		user_id    TEXT NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		issued_at  TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
