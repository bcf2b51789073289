package model

import (
	"sort"
	"time"
)

// EventUpdate carries a partial edit of an event. Nil pointers mean "leave
// unchanged". A MaxParticipants of 0 clears the cap (unlimited).
type EventUpdate struct {
	Title                *string
	Description          *string
	Type                 *string
	RegistrationDeadline *time.Time
	StartDateTime        *time.Time
	EndDateTime          *time.Time
	MaxParticipants      *int
	MinTeamSize          *int
	MaxTeamSize          *int
	IsPaid               *bool
	Amount               *float64
	Eligibility          []string
	RequiresApproval     *bool
}

// ValidateWindow checks the event's scheduling invariant:
// registrationDeadline < startDateTime < endDateTime.
func (e *Event) ValidateWindow() error {
	verr := &ValidationError{}
	if !e.RegistrationDeadline.Before(e.StartDateTime) {
		verr.Add("registration_deadline", "must be before start_date_time")
	}
	if !e.StartDateTime.Before(e.EndDateTime) {
		verr.Add("start_date_time", "must be before end_date_time")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// ValidateRoundWindow checks round containment within the event window:
// event.start <= round.start < round.end <= event.end.
func (e *Event) ValidateRoundWindow(start, end time.Time) error {
	verr := &ValidationError{}
	if start.Before(e.StartDateTime) {
		verr.Add("start_date_time", "round starts before the event")
	}
	if !start.Before(end) {
		verr.Add("end_date_time", "round must end after it starts")
	}
	if end.After(e.EndDateTime) {
		verr.Add("end_date_time", "round ends after the event")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// Started reports whether the event's start time has been reached. Structural
// fields lock at this point.
func (e *Event) Started(now time.Time) bool {
	return !now.Before(e.StartDateTime)
}

// DueToStart reports whether a published event should auto-transition to
// ongoing: now is within [start, end).
func (e *Event) DueToStart(now time.Time) bool {
	return e.Status == EventPublished &&
		!now.Before(e.StartDateTime) && now.Before(e.EndDateTime)
}

// DueToComplete reports whether an ongoing event should auto-transition to
// completed: now has reached the end time.
func (e *Event) DueToComplete(now time.Time) bool {
	return e.Status == EventOngoing && !now.Before(e.EndDateTime)
}

// LockedFieldEdits returns the names of structural fields the update would
// change after the event has started. An array value that is equal as a set
// (same elements, any order) does not count as a change.
func (e *Event) LockedFieldEdits(upd EventUpdate) []string {
	var locked []string
	if upd.Title != nil && *upd.Title != e.Title {
		locked = append(locked, "title")
	}
	if upd.Type != nil && *upd.Type != e.Type {
		locked = append(locked, "type")
	}
	if upd.RegistrationDeadline != nil && !upd.RegistrationDeadline.Equal(e.RegistrationDeadline) {
		locked = append(locked, "registration_deadline")
	}
	if upd.StartDateTime != nil && !upd.StartDateTime.Equal(e.StartDateTime) {
		locked = append(locked, "start_date_time")
	}
	if upd.EndDateTime != nil && !upd.EndDateTime.Equal(e.EndDateTime) {
		locked = append(locked, "end_date_time")
	}
	if upd.MinTeamSize != nil && *upd.MinTeamSize != e.MinTeamSize {
		locked = append(locked, "min_team_size")
	}
	if upd.MaxTeamSize != nil && *upd.MaxTeamSize != e.MaxTeamSize {
		locked = append(locked, "max_team_size")
	}
	if upd.IsPaid != nil && *upd.IsPaid != e.IsPaid {
		locked = append(locked, "is_paid")
	}
	if upd.Amount != nil && *upd.Amount != e.Amount {
		locked = append(locked, "amount")
	}
	if upd.Eligibility != nil && !sameSet(upd.Eligibility, e.Eligibility) {
		locked = append(locked, "eligibility")
	}
	if upd.RequiresApproval != nil && *upd.RequiresApproval != e.RequiresApproval {
		locked = append(locked, "requires_approval")
	}
	return locked
}

// Apply merges the update into the event in memory. Callers validate locking
// and windows first.
func (e *Event) Apply(upd EventUpdate) {
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.Type != nil {
		e.Type = *upd.Type
	}
	if upd.RegistrationDeadline != nil {
		e.RegistrationDeadline = *upd.RegistrationDeadline
	}
	if upd.StartDateTime != nil {
		e.StartDateTime = *upd.StartDateTime
	}
	if upd.EndDateTime != nil {
		e.EndDateTime = *upd.EndDateTime
	}
	if upd.MaxParticipants != nil {
		if *upd.MaxParticipants <= 0 {
			e.MaxParticipants = nil
		} else {
			v := *upd.MaxParticipants
			e.MaxParticipants = &v
		}
	}
	if upd.MinTeamSize != nil {
		e.MinTeamSize = *upd.MinTeamSize
	}
	if upd.MaxTeamSize != nil {
		e.MaxTeamSize = *upd.MaxTeamSize
	}
	if upd.IsPaid != nil {
		e.IsPaid = *upd.IsPaid
	}
	if upd.Amount != nil {
		e.Amount = *upd.Amount
	}
	if upd.Eligibility != nil {
		e.Eligibility = upd.Eligibility
	}
	if upd.RequiresApproval != nil {
		e.RequiresApproval = *upd.RequiresApproval
	}
}

// sameSet compares two string slices as sets, ignoring order and duplicates.
func sameSet(a, b []string) bool {
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	as = dedup(as)
	bs = dedup(bs)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
