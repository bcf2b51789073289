package model

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// ApprovalStatus is the admin approval state of an event.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// RoundStatus is the lifecycle state of a round within an event.
type RoundStatus string

const (
	RoundUpcoming  RoundStatus = "upcoming"
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "pending"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationWaitlisted RegistrationStatus = "waitlisted"
	RegistrationCancelled  RegistrationStatus = "cancelled"
	RegistrationRejected   RegistrationStatus = "rejected"
)

// RegistrationPayStatus tracks where a registration stands with respect to
// payment.
type RegistrationPayStatus string

const (
	PayNotRequired   RegistrationPayStatus = "not_required"
	PayPending       RegistrationPayStatus = "pending"
	PayPaid          RegistrationPayStatus = "paid"
	PayRefundPending RegistrationPayStatus = "refund_pending"
	PayRefunded      RegistrationPayStatus = "refunded"
	PayFailed        RegistrationPayStatus = "failed"
)

// PaymentStatus is the settlement state of a payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// RefundStatus is the lifecycle state of a refund request.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundRejected  RefundStatus = "rejected"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

// eventTransitions defines the valid event status transitions. The key is
// the current status, the value the set of reachable targets. Missing or
// empty entries are terminal.
var eventTransitions = map[EventStatus][]EventStatus{
	EventDraft:     {EventPublished, EventCancelled},
	EventPublished: {EventOngoing, EventCancelled},
	EventOngoing:   {EventCompleted, EventCancelled},
	EventCompleted: {},
	EventCancelled: {},
}

var roundTransitions = map[RoundStatus][]RoundStatus{
	RoundUpcoming:  {RoundActive},
	RoundActive:    {RoundCompleted},
	RoundCompleted: {},
}

var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationPending:    {RegistrationConfirmed, RegistrationCancelled, RegistrationRejected},
	RegistrationConfirmed:  {RegistrationCancelled, RegistrationRejected},
	RegistrationWaitlisted: {RegistrationPending, RegistrationConfirmed, RegistrationCancelled, RegistrationRejected},
	RegistrationCancelled:  {},
	RegistrationRejected:   {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {},
	PaymentFailed:    {},
}

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundPending:   {RefundCompleted, RefundRejected, RefundFailed},
	RefundCompleted: {},
	RefundRejected:  {},
	RefundFailed:    {},
}

func contains[S ~string](set []S, s S) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransitionEvent reports whether an event may move from one status to
// another in a single step.
func CanTransitionEvent(from, to EventStatus) bool {
	return contains(eventTransitions[from], to)
}

// CanTransitionRound reports whether a round may move from one status to
// another in a single step.
func CanTransitionRound(from, to RoundStatus) bool {
	return contains(roundTransitions[from], to)
}

// CanTransitionRegistration reports whether a registration may move from one
// status to another in a single step.
func CanTransitionRegistration(from, to RegistrationStatus) bool {
	return contains(registrationTransitions[from], to)
}

// CanTransitionPayment reports whether a payment may move from one status to
// another in a single step.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return contains(paymentTransitions[from], to)
}

// CanTransitionRefund reports whether a refund may move from one status to
// another in a single step.
func CanTransitionRefund(from, to RefundStatus) bool {
	return contains(refundTransitions[from], to)
}

// AttemptTransition validates a status change for the event and applies it in
// memory. Illegal transitions return a *ConflictError and leave the event
// untouched.
func (e *Event) AttemptTransition(to EventStatus) error {
	if !CanTransitionEvent(e.Status, to) {
		return &ConflictError{Entity: "event", ID: e.ID, From: string(e.Status), To: string(to)}
	}
	e.Status = to
	return nil
}

// AttemptTransition validates a status change for the round and applies it in
// memory.
func (r *Round) AttemptTransition(to RoundStatus) error {
	if !CanTransitionRound(r.Status, to) {
		return &ConflictError{Entity: "round", ID: r.ID, From: string(r.Status), To: string(to)}
	}
	r.Status = to
	return nil
}

// AttemptTransition validates a status change for the registration and
// applies it in memory.
func (r *Registration) AttemptTransition(to RegistrationStatus) error {
	if !CanTransitionRegistration(r.Status, to) {
		return &ConflictError{Entity: "registration", ID: r.ID, From: string(r.Status), To: string(to)}
	}
	r.Status = to
	return nil
}
