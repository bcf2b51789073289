package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/clock"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/logging"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/notify"
)

// EventService owns event and round lifecycle operations: creation, guarded
// status transitions, locked-field edits, and the time-based sweep steps.
type EventService struct {
	events        EventStore
	registrations RegistrationStore
	notifier      notify.Notifier
	clock         clock.Clock
	log           zerolog.Logger
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore, registrations RegistrationStore, notifier notify.Notifier, clk clock.Clock) *EventService {
	return &EventService{
		events:        events,
		registrations: registrations,
		notifier:      notifier,
		clock:         clk,
		log:           logging.Component("event"),
	}
}

// CreateEventInput is the payload for creating an event.
type CreateEventInput struct {
	Title                string
	Description          string
	Type                 string
	RegistrationDeadline time.Time
	StartDateTime        time.Time
	EndDateTime          time.Time
	MaxParticipants      *int // nil = unlimited
	IsPaid               bool
	Amount               float64
	MinTeamSize          int
	MaxTeamSize          int
	Eligibility          []string
	RequiresApproval     bool
}

// canManage reports whether the actor may manage the event. Organizers
// manage only their own events; admin roles manage any.
func canManage(actor Actor, e *model.Event) bool {
	if !model.HasCapability(actor.Role, model.CapManageEvent) {
		return false
	}
	if actor.Role == model.RoleOrganizer {
		return actor.ID == e.OrganizerID
	}
	return true
}

// CreateEvent validates the scheduling window and creates the event in
// draft status with approval pending.
func (s *EventService) CreateEvent(ctx context.Context, actor Actor, in CreateEventInput) (*model.Event, error) {
	if !model.HasCapability(actor.Role, model.CapManageEvent) {
		return nil, ErrForbidden
	}
	if in.Title == "" {
		return nil, model.NewValidationError("title", "is required")
	}
	if in.IsPaid && in.Amount <= 0 {
		return nil, model.NewValidationError("amount", "must be positive for paid events")
	}
	if in.MinTeamSize > in.MaxTeamSize {
		return nil, model.NewValidationError("min_team_size", "cannot exceed max_team_size")
	}

	now := s.clock.Now()
	e := &model.Event{
		ID:                   uuid.New().String(),
		OrganizerID:          actor.ID,
		Title:                in.Title,
		Description:          in.Description,
		Type:                 in.Type,
		RegistrationDeadline: in.RegistrationDeadline,
		StartDateTime:        in.StartDateTime,
		EndDateTime:          in.EndDateTime,
		MaxParticipants:      in.MaxParticipants,
		Status:               model.EventDraft,
		ApprovalStatus:       model.ApprovalPending,
		IsPaid:               in.IsPaid,
		Amount:               in.Amount,
		MinTeamSize:          in.MinTeamSize,
		MaxTeamSize:          in.MaxTeamSize,
		Eligibility:          in.Eligibility,
		RequiresApproval:     in.RequiresApproval,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.ValidateWindow(); err != nil {
		return nil, err
	}
	if err := s.events.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// GetEvent returns a single event.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.events.GetEvent(ctx, id)
}

// UpdateEvent applies a partial edit. Once the event has started, structural
// fields are locked; edits touching them are rejected with a validation
// error naming every offending field. A re-ordered but set-equal array value
// passes.
func (s *EventService) UpdateEvent(ctx context.Context, actor Actor, id string, upd model.EventUpdate) (*model.Event, error) {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, e) {
		return nil, ErrForbidden
	}

	now := s.clock.Now()
	if e.Started(now) {
		if locked := e.LockedFieldEdits(upd); len(locked) > 0 {
			verr := &model.ValidationError{}
			for _, f := range locked {
				verr.Add(f, "locked after event start")
			}
			return nil, verr
		}
	}

	e.Apply(upd)
	if err := e.ValidateWindow(); err != nil {
		return nil, err
	}
	e.UpdatedAt = now
	if err := s.events.UpdateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return e, nil
}

// TransitionEvent applies a user-initiated status change after validating it
// against the transition table and the persisted status.
func (s *EventService) TransitionEvent(ctx context.Context, actor Actor, id string, to model.EventStatus) error {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, e) {
		return ErrForbidden
	}
	if !model.CanTransitionEvent(e.Status, to) {
		return &model.ConflictError{Entity: "event", ID: e.ID, From: string(e.Status), To: string(to)}
	}
	if to == model.EventPublished && e.RequiresApproval && e.ApprovalStatus != model.ApprovalApproved {
		return &model.ConflictError{Entity: "event", ID: e.ID, Reason: "cannot publish before approval"}
	}

	applied, err := s.events.TransitionEvent(ctx, id, e.Status, to)
	if err != nil {
		return fmt.Errorf("transition event: %w", err)
	}
	if !applied {
		return &model.ConflictError{Entity: "event", ID: e.ID, From: string(e.Status), To: string(to),
			Reason: "status changed concurrently"}
	}

	if to == model.EventCancelled {
		s.notifyActiveRegistrants(ctx, e, "Event cancelled",
			fmt.Sprintf("%s has been cancelled.", e.Title), notify.PriorityHigh)
	}
	return nil
}

// SetApproval records an admin approval decision.
func (s *EventService) SetApproval(ctx context.Context, actor Actor, id string, status model.ApprovalStatus) error {
	if !model.HasCapability(actor.Role, model.CapApproveEvent) {
		return ErrForbidden
	}
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := s.events.SetApproval(ctx, id, status); err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	s.send(ctx, model.Notification{
		RecipientID: e.OrganizerID,
		Title:       "Event approval updated",
		Message:     fmt.Sprintf("%s approval status: %s", e.Title, status),
		EventID:     e.ID,
		Channels:    []string{notify.ChannelEmail},
		Priority:    notify.PriorityNormal,
	})
	return nil
}

// DeleteEvent removes an event. Allowed only when no registration is in a
// non-terminal status.
func (s *EventService) DeleteEvent(ctx context.Context, actor Actor, id string) error {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, e) {
		return ErrForbidden
	}
	active, err := s.registrations.CountActiveByEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("count registrations: %w", err)
	}
	if active > 0 {
		return &model.ConflictError{Entity: "event", ID: id,
			Reason: fmt.Sprintf("%d active registrations exist", active)}
	}
	return s.events.DeleteEvent(ctx, id)
}

// AddRound appends a round to the event after checking window containment.
func (s *EventService) AddRound(ctx context.Context, actor Actor, eventID, name string, start, end time.Time) (*model.Round, error) {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, e) {
		return nil, ErrForbidden
	}
	if err := e.ValidateRoundWindow(start, end); err != nil {
		return nil, err
	}
	r := model.Round{
		ID:            uuid.New().String(),
		EventID:       eventID,
		Name:          name,
		Sequence:      len(e.Rounds) + 1,
		StartDateTime: start,
		EndDateTime:   end,
		Status:        model.RoundUpcoming,
	}
	e.Rounds = append(e.Rounds, r)
	if err := s.events.SaveRounds(ctx, eventID, e.Rounds); err != nil {
		return nil, fmt.Errorf("save rounds: %w", err)
	}
	return &r, nil
}

// UpdateRound edits a round's name or window, re-checking containment.
// Started rounds no longer accept window changes.
func (s *EventService) UpdateRound(ctx context.Context, actor Actor, eventID, roundID, name string, start, end time.Time) error {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !canManage(actor, e) {
		return ErrForbidden
	}
	if err := e.ValidateRoundWindow(start, end); err != nil {
		return err
	}
	for i := range e.Rounds {
		if e.Rounds[i].ID != roundID {
			continue
		}
		if e.Rounds[i].Status != model.RoundUpcoming && !(start.Equal(e.Rounds[i].StartDateTime) && end.Equal(e.Rounds[i].EndDateTime)) {
			return &model.ConflictError{Entity: "round", ID: roundID,
				Reason: "window cannot change after the round has started"}
		}
		e.Rounds[i].Name = name
		e.Rounds[i].StartDateTime = start
		e.Rounds[i].EndDateTime = end
		if err := s.events.SaveRounds(ctx, eventID, e.Rounds); err != nil {
			return fmt.Errorf("save rounds: %w", err)
		}
		return nil
	}
	return ErrNotFound
}

// ReconcileRegisteredCount recomputes the event's counter from its
// registrations. Used as the self-healing repair path and as a test oracle.
func (s *EventService) ReconcileRegisteredCount(ctx context.Context, eventID string) (int, error) {
	n, err := s.events.ReconcileRegisteredCount(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("reconcile registered count: %w", err)
	}
	return n, nil
}

// ActivateDueEvents is the sweep step that moves published events whose
// start time has arrived to ongoing. Idempotent: the guarded transition only
// fires once, and notifications only follow an applied transition.
func (s *EventService) ActivateDueEvents(ctx context.Context) error {
	events, err := s.events.ListEventsByStatus(ctx, model.EventPublished)
	if err != nil {
		return fmt.Errorf("list published events: %w", err)
	}
	now := s.clock.Now()
	for i := range events {
		e := &events[i]
		if !e.DueToStart(now) {
			continue
		}
		applied, err := s.events.TransitionEvent(ctx, e.ID, model.EventPublished, model.EventOngoing)
		if err != nil {
			s.log.Error().Err(err).Str("event_id", e.ID).Msg("activate event failed")
			continue
		}
		if !applied {
			continue
		}
		s.send(ctx, model.Notification{
			RecipientID: e.OrganizerID,
			Title:       "Event started",
			Message:     fmt.Sprintf("%s is now ongoing.", e.Title),
			EventID:     e.ID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    notify.PriorityNormal,
		})
		s.notifyByStatus(ctx, e, "Event started",
			fmt.Sprintf("%s has started.", e.Title), notify.PriorityNormal,
			model.RegistrationConfirmed)
	}
	return nil
}

// CompleteDueEvents is the sweep step that moves ongoing events past their
// end time to completed, notifying only the organizer.
func (s *EventService) CompleteDueEvents(ctx context.Context) error {
	events, err := s.events.ListEventsByStatus(ctx, model.EventOngoing)
	if err != nil {
		return fmt.Errorf("list ongoing events: %w", err)
	}
	now := s.clock.Now()
	for i := range events {
		e := &events[i]
		if !e.DueToComplete(now) {
			continue
		}
		applied, err := s.events.TransitionEvent(ctx, e.ID, model.EventOngoing, model.EventCompleted)
		if err != nil {
			s.log.Error().Err(err).Str("event_id", e.ID).Msg("complete event failed")
			continue
		}
		if !applied {
			continue
		}
		s.send(ctx, model.Notification{
			RecipientID: e.OrganizerID,
			Title:       "Event completed",
			Message:     fmt.Sprintf("%s has ended.", e.Title),
			EventID:     e.ID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    notify.PriorityNormal,
		})
	}
	return nil
}

// ActivateDueRounds is the sweep step that activates rounds whose start time
// has arrived. All rounds of an event are evaluated and the event is
// persisted at most once; the organizer is notified once per event when at
// least one round changed.
func (s *EventService) ActivateDueRounds(ctx context.Context) error {
	return s.sweepRounds(ctx, model.RoundUpcoming, model.RoundActive, true)
}

// CompleteDueRounds is the sweep step that completes rounds whose end time
// has passed.
func (s *EventService) CompleteDueRounds(ctx context.Context) error {
	return s.sweepRounds(ctx, model.RoundActive, model.RoundCompleted, false)
}

func (s *EventService) sweepRounds(ctx context.Context, from, to model.RoundStatus, notifyOrganizer bool) error {
	events, err := s.events.ListEventsWithUnfinishedRounds(ctx)
	if err != nil {
		return fmt.Errorf("list events with unfinished rounds: %w", err)
	}
	now := s.clock.Now()
	for i := range events {
		e := &events[i]
		changed := 0
		for j := range e.Rounds {
			r := &e.Rounds[j]
			if r.Status != from {
				continue
			}
			due := r.StartDateTime
			if to == model.RoundCompleted {
				due = r.EndDateTime
			}
			if now.Before(due) {
				continue
			}
			if err := r.AttemptTransition(to); err != nil {
				s.log.Error().Err(err).Str("event_id", e.ID).Str("round_id", r.ID).Msg("round transition rejected")
				continue
			}
			changed++
		}
		if changed == 0 {
			continue
		}
		if err := s.events.SaveRounds(ctx, e.ID, e.Rounds); err != nil {
			s.log.Error().Err(err).Str("event_id", e.ID).Msg("persist rounds failed")
			continue
		}
		if notifyOrganizer {
			s.send(ctx, model.Notification{
				RecipientID: e.OrganizerID,
				Title:       "Round started",
				Message:     fmt.Sprintf("%d round(s) of %s are now active.", changed, e.Title),
				EventID:     e.ID,
				Channels:    []string{notify.ChannelEmail},
				Priority:    notify.PriorityNormal,
			})
		}
	}
	return nil
}

// send dispatches one notification, logging delivery failure without
// propagating it.
func (s *EventService) send(ctx context.Context, n model.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("recipient", n.RecipientID).Str("title", n.Title).Msg("notification failed")
	}
}

// notifyByStatus fans a notification out to every registrant of the event in
// one of the given statuses.
func (s *EventService) notifyByStatus(ctx context.Context, e *model.Event, title, message, priority string, statuses ...model.RegistrationStatus) {
	regs, err := s.registrations.ListByEventAndStatus(ctx, e.ID, statuses...)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", e.ID).Msg("list registrants for notification failed")
		return
	}
	for _, r := range regs {
		s.send(ctx, model.Notification{
			RecipientID: r.UserID,
			Title:       title,
			Message:     message,
			EventID:     e.ID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    priority,
		})
	}
}

func (s *EventService) notifyActiveRegistrants(ctx context.Context, e *model.Event, title, message, priority string) {
	s.notifyByStatus(ctx, e, title, message, priority,
		model.RegistrationPending, model.RegistrationConfirmed, model.RegistrationWaitlisted)
}
