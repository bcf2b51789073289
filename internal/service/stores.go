// Package service implements the lifecycle engine's business operations:
// event and round state machines, capacity and waitlist management, payment
// reconciliation and the refund policy. All persistence goes through the
// store contracts below, which the repository package implements with
// PostgreSQL and tests implement in memory.
package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

// Actor identifies who is performing an operation, for capability checks.
type Actor struct {
	ID   string
	Role model.Role
}

// RegistrationTransition is a guarded check-and-set over one registration.
// The status write only applies when the registration is currently in From;
// CounterDelta is applied to the owning event's registered count atomically
// with the status write, never as a separate read-modify-write.
type RegistrationTransition struct {
	RegistrationID string
	EventID        string
	From           model.RegistrationStatus
	To             model.RegistrationStatus
	PaymentStatus  *model.RegistrationPayStatus // optional simultaneous write
	CounterDelta   int
	Reason         string     // cancellation reason, recorded when set
	PendingSince   *time.Time // restamps the payment window anchor when set
}

// EventStore is the persistence contract for events and their rounds.
type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEventsByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error)
	// ListEventsWithUnfinishedRounds returns events that still carry at
	// least one round not yet completed.
	ListEventsWithUnfinishedRounds(ctx context.Context) ([]model.Event, error)
	// TransitionEvent sets the status to `to` only if the persisted status
	// is still `from`. Returns false when the precondition no longer holds.
	TransitionEvent(ctx context.Context, id string, from, to model.EventStatus) (bool, error)
	SetApproval(ctx context.Context, id string, status model.ApprovalStatus) error
	SaveRounds(ctx context.Context, eventID string, rounds []model.Round) error
	// ReconcileRegisteredCount recomputes the counter from the registration
	// rows, persists it, and returns the recomputed value. Safe to run at
	// any time.
	ReconcileRegisteredCount(ctx context.Context, eventID string) (int, error)
}

// RegistrationStore is the persistence contract for registrations.
type RegistrationStore interface {
	// CreateRegistration inserts the registration and, when it holds a spot
	// (status pending or confirmed), increments the event counter in the
	// same transaction.
	CreateRegistration(ctx context.Context, r *model.Registration) error
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	// FindActiveRegistration returns the user's non-terminal registration
	// for the event, or ErrNotFound.
	FindActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	// ListWaitlisted returns waitlisted registrations in strict FIFO order
	// (registration date ascending, id as tie-break), at most limit rows.
	ListWaitlisted(ctx context.Context, eventID string, limit int) ([]model.Registration, error)
	ListByEventAndStatus(ctx context.Context, eventID string, statuses ...model.RegistrationStatus) ([]model.Registration, error)
	ListByTeam(ctx context.Context, teamID string) ([]model.Registration, error)
	// ListPaymentTimeouts returns registrations of paid events still
	// pending settlement whose payment window opened before cutoff.
	ListPaymentTimeouts(ctx context.Context, cutoff time.Time) ([]model.Registration, error)
	CountActiveByEvent(ctx context.Context, eventID string) (int, error)
	// Transition applies a guarded status change plus the counter delta it
	// licenses, atomically. Returns false when the precondition failed.
	Transition(ctx context.Context, t RegistrationTransition) (bool, error)
	// SetPaymentStatus is a guarded write of the payment status alone.
	SetPaymentStatus(ctx context.Context, id string, from, to model.RegistrationPayStatus) (bool, error)
}

// TeamStore is the persistence contract for teams.
type TeamStore interface {
	CreateTeam(ctx context.Context, t *model.Team) error
	GetTeam(ctx context.Context, id string) (*model.Team, error)
}

// PaymentStore is the persistence contract for payments and invoices.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	// Settle moves a pending payment to completed or failed. Returns false
	// when the payment is no longer pending (duplicate settlement).
	Settle(ctx context.Context, id string, to model.PaymentStatus, transactionID string, at time.Time) (bool, error)
	// FindOpenByTeam returns the team's pending or completed payment, or
	// ErrNotFound.
	FindOpenByTeam(ctx context.Context, teamID string) (*model.Payment, error)
	// FindOpenByRegistration returns the registration's pending or
	// completed payment, or ErrNotFound.
	FindOpenByRegistration(ctx context.Context, registrationID string) (*model.Payment, error)
	CreateInvoice(ctx context.Context, inv *model.Invoice) error
}

// RefundStore is the persistence contract for refunds.
type RefundStore interface {
	CreateRefund(ctx context.Context, r *model.Refund) error
	GetRefund(ctx context.Context, id string) (*model.Refund, error)
	// HasOpenRefund reports whether a pending or completed refund already
	// exists for the payment.
	HasOpenRefund(ctx context.Context, paymentID string) (bool, error)
	// Decide moves a pending refund to its final status. Returns false when
	// the refund is no longer pending.
	Decide(ctx context.Context, id string, to model.RefundStatus, at time.Time) (bool, error)
}

// Gateway is the payment settlement collaborator. Debit returns the gateway
// transaction id for a refund payout.
type Gateway interface {
	Debit(ctx context.Context, paymentID string, amount float64) (string, error)
}
