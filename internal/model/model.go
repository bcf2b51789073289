// Package model defines the core domain types for the event lifecycle engine:
// events with embedded rounds, registrations, teams, payments and refunds,
// together with the status machines and guard rules that govern them.
package model

import "time"

// Event represents a schedulable activity created by an organizer.
// Its Rounds are embedded and ordered by Sequence.
type Event struct {
	ID                   string         `json:"id"`
	OrganizerID          string         `json:"organizer_id"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Type                 string         `json:"type"`
	RegistrationDeadline time.Time      `json:"registration_deadline"`
	StartDateTime        time.Time      `json:"start_date_time"`
	EndDateTime          time.Time      `json:"end_date_time"`
	MaxParticipants      *int           `json:"max_participants"` // nil = unlimited
	RegisteredCount      int            `json:"registered_count"`
	Status               EventStatus    `json:"status"`
	ApprovalStatus       ApprovalStatus `json:"approval_status"`
	IsPaid               bool           `json:"is_paid"`
	Amount               float64        `json:"amount"`
	MinTeamSize          int            `json:"min_team_size"`
	MaxTeamSize          int            `json:"max_team_size"`
	Eligibility          []string       `json:"eligibility"`
	RequiresApproval     bool           `json:"requires_approval"`
	Rounds               []Round        `json:"rounds"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// IsTeamEvent reports whether registrations are made by teams rather than
// individual participants.
func (e *Event) IsTeamEvent() bool {
	return e.MaxTeamSize > 1
}

// Unlimited reports whether the event has no participant cap.
func (e *Event) Unlimited() bool {
	return e.MaxParticipants == nil
}

// SpotsAvailable returns the number of free spots, or -1 for unlimited events.
func (e *Event) SpotsAvailable() int {
	if e.MaxParticipants == nil {
		return -1
	}
	return *e.MaxParticipants - e.RegisteredCount
}

// IsFull reports whether the event has no remaining capacity.
func (e *Event) IsFull() bool {
	return e.MaxParticipants != nil && e.RegisteredCount >= *e.MaxParticipants
}

// Round is a time-boxed phase within a multi-stage event. Its window is
// contained within the parent event's window.
type Round struct {
	ID            string      `json:"id"`
	EventID       string      `json:"event_id"`
	Name          string      `json:"name"`
	Sequence      int         `json:"sequence"`
	StartDateTime time.Time   `json:"start_date_time"`
	EndDateTime   time.Time   `json:"end_date_time"`
	Status        RoundStatus `json:"status"`
}

// Registration links one user (and optionally a team) to one event.
// Registrations are never hard-deleted, only transitioned to a terminal
// status.
type Registration struct {
	ID                  string                `json:"id"`
	EventID             string                `json:"event_id"`
	UserID              string                `json:"user_id"`
	TeamID              string                `json:"team_id,omitempty"`
	Status              RegistrationStatus    `json:"status"`
	PaymentStatus       RegistrationPayStatus `json:"payment_status"`
	RegistrationDate    time.Time             `json:"registration_date"`
	PaymentPendingSince *time.Time            `json:"payment_pending_since,omitempty"`
	CurrentRound        int                   `json:"current_round"`
	EliminatedInRound   *int                  `json:"eliminated_in_round,omitempty"`
	CancellationReason  string                `json:"cancellation_reason,omitempty"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// Active reports whether the registration occupies a non-terminal status.
// At most one active registration may exist per (event, user).
func (r *Registration) Active() bool {
	return r.Status == RegistrationPending ||
		r.Status == RegistrationConfirmed ||
		r.Status == RegistrationWaitlisted
}

// CountsTowardCapacity reports whether the registration holds a spot, i.e.
// contributes to the event's registered count.
func (r *Registration) CountsTowardCapacity() bool {
	return r.Status == RegistrationPending || r.Status == RegistrationConfirmed
}

// Team groups registrations under one event behind a designated leader.
// The leader's payment settles for every member.
type Team struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	LeaderID  string    `json:"leader_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment is one settlement attempt for a registration, or for a whole team
// when the event is team-based. Immutable once completed except for refund
// bookkeeping.
type Payment struct {
	ID             string        `json:"id"`
	RegistrationID string        `json:"registration_id"`
	TeamID         string        `json:"team_id,omitempty"`
	EventID        string        `json:"event_id"`
	PayerID        string        `json:"payer_id"`
	Amount         float64       `json:"amount"`
	Status         PaymentStatus `json:"status"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// Refund is derived from a completed payment. Its percentage comes from the
// tier policy in refund.go.
type Refund struct {
	ID               string       `json:"id"`
	PaymentID        string       `json:"payment_id"`
	RegistrationID   string       `json:"registration_id"`
	RequestedBy      string       `json:"requested_by"`
	RefundPercentage int          `json:"refund_percentage"`
	RefundAmount     float64      `json:"refund_amount"`
	Reason           string       `json:"reason,omitempty"`
	Status           RefundStatus `json:"status"`
	RequestedAt      time.Time    `json:"requested_at"`
	DecidedAt        *time.Time   `json:"decided_at,omitempty"`
}

// Invoice records a successful settlement for the paying user.
type Invoice struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Notification is the payload handed to the notification sink. Delivery is
// best-effort and never blocks the transition that produced it.
type Notification struct {
	RecipientID string   `json:"recipient_id"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	EventID     string   `json:"event_id,omitempty"`
	Channels    []string `json:"channels"`
	Priority    string   `json:"priority"`
}
