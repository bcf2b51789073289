package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/clock"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/logging"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/notify"
)

// ErrCapacityExhausted is returned by stores when a spot-holding write loses
// the race for the last free spot. The caller falls back to the waitlist.
var ErrCapacityExhausted = errors.New("event capacity exhausted")

// RegistrationService owns registration admission, cancellation and the
// waitlist. The registered-count invariant is maintained here: every counter
// change rides on the status transition that licenses it.
type RegistrationService struct {
	events        EventStore
	registrations RegistrationStore
	teams         TeamStore
	notifier      notify.Notifier
	clock         clock.Clock
	log           zerolog.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(events EventStore, registrations RegistrationStore, teams TeamStore, notifier notify.Notifier, clk clock.Clock) *RegistrationService {
	return &RegistrationService{
		events:        events,
		registrations: registrations,
		teams:         teams,
		notifier:      notifier,
		clock:         clk,
		log:           logging.Component("registration"),
	}
}

// Register enrolls an individual user. Full events waitlist the user; paid
// events admit to pending until settlement; unpaid events confirm directly.
// A second active registration for the same (event, user) is rejected.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.IsTeamEvent() {
		return nil, model.NewValidationError("team_id", "event requires team registration")
	}
	if err := s.admissible(e); err != nil {
		return nil, err
	}
	return s.createRegistration(ctx, e, userID, "")
}

// RegisterTeam creates a team and one registration per member. The leader
// must be among the members. Members beyond remaining capacity are
// waitlisted in member order.
func (s *RegistrationService) RegisterTeam(ctx context.Context, eventID, leaderID, teamName string, memberIDs []string) (*model.Team, []model.Registration, error) {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if !e.IsTeamEvent() {
		return nil, nil, model.NewValidationError("team_id", "event does not take team registrations")
	}
	if err := s.admissible(e); err != nil {
		return nil, nil, err
	}
	if len(memberIDs) < e.MinTeamSize || len(memberIDs) > e.MaxTeamSize {
		return nil, nil, model.NewValidationError("members",
			fmt.Sprintf("team size must be between %d and %d", e.MinTeamSize, e.MaxTeamSize))
	}
	leaderIncluded := false
	for _, id := range memberIDs {
		if id == leaderID {
			leaderIncluded = true
		}
	}
	if !leaderIncluded {
		return nil, nil, model.NewValidationError("leader_id", "leader must be a team member")
	}

	// Reject before creating anything if any member already holds an active
	// registration.
	for _, id := range memberIDs {
		if _, err := s.registrations.FindActiveRegistration(ctx, eventID, id); err == nil {
			return nil, nil, &model.ConflictError{Entity: "registration", ID: id,
				Reason: "user already has an active registration for this event"}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("check active registration: %w", err)
		}
	}

	team := &model.Team{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Name:      teamName,
		LeaderID:  leaderID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, nil, fmt.Errorf("create team: %w", err)
	}

	regs := make([]model.Registration, 0, len(memberIDs))
	for _, id := range memberIDs {
		r, err := s.createRegistration(ctx, e, id, team.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("register team member %s: %w", id, err)
		}
		regs = append(regs, *r)
	}
	return team, regs, nil
}

// admissible checks that the event currently accepts registrations.
func (s *RegistrationService) admissible(e *model.Event) error {
	if e.Status != model.EventPublished {
		return &model.ConflictError{Entity: "event", ID: e.ID,
			Reason: fmt.Sprintf("registrations are closed while the event is %s", e.Status)}
	}
	if s.clock.Now().After(e.RegistrationDeadline) {
		return model.NewValidationError("registration_deadline", "registration deadline has passed")
	}
	return nil
}

// createRegistration performs admission for one user. The spot-holding
// insert is guarded by the store's conditional capacity increment; losing
// the race for the last spot degrades to the waitlist.
func (s *RegistrationService) createRegistration(ctx context.Context, e *model.Event, userID, teamID string) (*model.Registration, error) {
	if _, err := s.registrations.FindActiveRegistration(ctx, e.ID, userID); err == nil {
		return nil, &model.ConflictError{Entity: "registration", ID: userID,
			Reason: "user already has an active registration for this event"}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check active registration: %w", err)
	}

	now := s.clock.Now()
	r := &model.Registration{
		ID:               uuid.New().String(),
		EventID:          e.ID,
		UserID:           userID,
		TeamID:           teamID,
		RegistrationDate: now,
		UpdatedAt:        now,
	}
	if e.IsPaid {
		r.Status = model.RegistrationPending
		r.PaymentStatus = model.PayPending
		r.PaymentPendingSince = &now
	} else {
		r.Status = model.RegistrationConfirmed
		r.PaymentStatus = model.PayNotRequired
	}
	if e.IsFull() {
		r.Status = model.RegistrationWaitlisted
	}

	err := s.registrations.CreateRegistration(ctx, r)
	if errors.Is(err, ErrCapacityExhausted) {
		// Lost the race for the last spot.
		r.Status = model.RegistrationWaitlisted
		err = s.registrations.CreateRegistration(ctx, r)
	}
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	switch r.Status {
	case model.RegistrationWaitlisted:
		s.send(ctx, model.Notification{
			RecipientID: userID,
			Title:       "Added to waitlist",
			Message:     fmt.Sprintf("%s is full; you are on the waitlist.", e.Title),
			EventID:     e.ID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    notify.PriorityNormal,
		})
	case model.RegistrationPending:
		s.send(ctx, model.Notification{
			RecipientID: userID,
			Title:       "Complete your payment",
			Message:     fmt.Sprintf("Your spot for %s is held for 24 hours pending payment.", e.Title),
			EventID:     e.ID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    notify.PriorityHigh,
		})
	default:
		s.send(ctx, model.Notification{
			RecipientID: userID,
			Title:       "Registration confirmed",
			Message:     fmt.Sprintf("You are registered for %s.", e.Title),
			EventID:     e.ID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    notify.PriorityNormal,
		})
	}
	return r, nil
}

// Cancel transitions a registration to cancelled, releasing its spot when it
// held one, and immediately runs a promotion pass over the freed capacity.
// Owners cancel their own registrations; event managers may cancel any.
func (s *RegistrationService) Cancel(ctx context.Context, actor Actor, registrationID, reason string) error {
	r, err := s.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	if actor.ID != r.UserID {
		e, err := s.events.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		if !canManage(actor, e) {
			return ErrForbidden
		}
	}
	if !r.Active() {
		return &model.ConflictError{Entity: "registration", ID: r.ID,
			From: string(r.Status), To: string(model.RegistrationCancelled)}
	}

	delta := 0
	if r.CountsTowardCapacity() {
		delta = -1
	}
	applied, err := s.registrations.Transition(ctx, RegistrationTransition{
		RegistrationID: r.ID,
		EventID:        r.EventID,
		From:           r.Status,
		To:             model.RegistrationCancelled,
		CounterDelta:   delta,
		Reason:         reason,
	})
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if !applied {
		return &model.ConflictError{Entity: "registration", ID: r.ID,
			From: string(r.Status), To: string(model.RegistrationCancelled),
			Reason: "status changed concurrently"}
	}

	if delta < 0 {
		if err := s.PromoteWaitlist(ctx, r.EventID); err != nil {
			s.log.Warn().Err(err).Str("event_id", r.EventID).Msg("promotion after cancel failed")
		}
	}
	return nil
}

// PromoteWaitlist fills free spots from the waitlist in strict FIFO order by
// registration date. Unpaid events confirm promoted registrations directly;
// paid events move them to pending with a 24-hour payment window. Counter
// increments ride on the guarded transition, so a concurrent registration
// cannot overbook the event.
func (s *RegistrationService) PromoteWaitlist(ctx context.Context, eventID string) error {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if e.Unlimited() {
		return nil
	}
	spots := e.SpotsAvailable()
	if spots <= 0 {
		return nil
	}

	waiting, err := s.registrations.ListWaitlisted(ctx, eventID, spots)
	if err != nil {
		return fmt.Errorf("list waitlist: %w", err)
	}
	for _, r := range waiting {
		target := model.RegistrationConfirmed
		pay := model.PayNotRequired
		var pendingSince *time.Time
		if e.IsPaid {
			if r.PaymentStatus == model.PayPaid {
				// Already settled (a team payment covered this member).
				pay = model.PayPaid
			} else {
				target = model.RegistrationPending
				pay = model.PayPending
				// The payment window opens at promotion, not at the
				// original registration date.
				now := s.clock.Now()
				pendingSince = &now
			}
		}
		applied, err := s.registrations.Transition(ctx, RegistrationTransition{
			RegistrationID: r.ID,
			EventID:        eventID,
			From:           model.RegistrationWaitlisted,
			To:             target,
			PaymentStatus:  &pay,
			CounterDelta:   1,
			PendingSince:   pendingSince,
		})
		if err != nil {
			// Stop the pass; retrying later keeps FIFO order, skipping
			// ahead would not.
			return fmt.Errorf("promote registration %s: %w", r.ID, err)
		}
		if !applied {
			// Either the registration changed under us or the last spot was
			// taken; stop rather than promote out of order.
			return nil
		}

		if target == model.RegistrationPending {
			s.send(ctx, model.Notification{
				RecipientID: r.UserID,
				Title:       "Spot available - payment required",
				Message:     fmt.Sprintf("A spot opened for %s. Complete payment within 24 hours to keep it.", e.Title),
				EventID:     eventID,
				Channels:    []string{notify.ChannelEmail, notify.ChannelSMS},
				Priority:    notify.PriorityHigh,
			})
		} else {
			s.send(ctx, model.Notification{
				RecipientID: r.UserID,
				Title:       "Promoted from waitlist",
				Message:     fmt.Sprintf("You are now registered for %s.", e.Title),
				EventID:     eventID,
				Channels:    []string{notify.ChannelEmail},
				Priority:    notify.PriorityNormal,
			})
		}
	}
	return nil
}

// PromoteAllWaitlists is the sweep step that runs a promotion pass for every
// event still accepting participants.
func (s *RegistrationService) PromoteAllWaitlists(ctx context.Context) error {
	events, err := s.events.ListEventsByStatus(ctx, model.EventPublished, model.EventOngoing)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	for i := range events {
		if err := s.PromoteWaitlist(ctx, events[i].ID); err != nil {
			s.log.Error().Err(err).Str("event_id", events[i].ID).Msg("waitlist promotion failed")
		}
	}
	return nil
}

func (s *RegistrationService) send(ctx context.Context, n model.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("recipient", n.RecipientID).Str("title", n.Title).Msg("notification failed")
	}
}
