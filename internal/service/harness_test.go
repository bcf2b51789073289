package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/clock"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// fixture wires the three services against one shared in-memory store, a fake
// clock and a recording notifier.
type fixture struct {
	store   *memStore
	notes   *recordingNotifier
	clk     *clock.Fake
	gateway *fakeGateway

	events        *EventService
	registrations *RegistrationService
	payments      *PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		notes:   &recordingNotifier{},
		clk:     clock.NewFake(baseTime),
		gateway: &fakeGateway{},
	}
	f.events = NewEventService(f.store, f.store, f.notes, f.clk)
	f.registrations = NewRegistrationService(f.store, f.store, f.store, f.notes, f.clk)
	f.payments = NewPaymentService(f.store, f.store, f.store, f.store, f.store,
		f.gateway, f.registrations, f.notes, f.clk, 24*time.Hour)
	return f
}

type eventOpt func(*model.Event)

func withCapacity(n int) eventOpt {
	return func(e *model.Event) { e.MaxParticipants = &n }
}

func withPrice(amount float64) eventOpt {
	return func(e *model.Event) {
		e.IsPaid = true
		e.Amount = amount
	}
}

func withTeamSize(min, max int) eventOpt {
	return func(e *model.Event) {
		e.MinTeamSize = min
		e.MaxTeamSize = max
	}
}

func withStatus(st model.EventStatus) eventOpt {
	return func(e *model.Event) { e.Status = st }
}

func withRounds(rounds ...model.Round) eventOpt {
	return func(e *model.Event) { e.Rounds = rounds }
}

// seedEvent plants a published, approved event directly in the store:
// registration closes in 5 days, the event runs from day 10 to day 12.
func (f *fixture) seedEvent(opts ...eventOpt) *model.Event {
	e := &model.Event{
		ID:                   uuid.New().String(),
		OrganizerID:          "org-1",
		Title:                "Hackathon",
		Type:                 "hackathon",
		RegistrationDeadline: baseTime.Add(5 * 24 * time.Hour),
		StartDateTime:        baseTime.Add(10 * 24 * time.Hour),
		EndDateTime:          baseTime.Add(12 * 24 * time.Hour),
		Status:               model.EventPublished,
		ApprovalStatus:       model.ApprovalApproved,
		CreatedAt:            baseTime,
		UpdatedAt:            baseTime,
	}
	for _, opt := range opts {
		opt(e)
	}
	f.store.events[e.ID] = e
	return e
}

func (f *fixture) getEvent(id string) *model.Event {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return copyEvent(f.store.events[id])
}

func (f *fixture) getReg(id string) *model.Registration {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return copyReg(f.store.regs[id])
}

var (
	organizer   = Actor{ID: "org-1", Role: model.RoleOrganizer}
	admin       = Actor{ID: "admin-1", Role: model.RoleAdmin}
	participant = Actor{ID: "user-1", Role: model.RoleParticipant}
)

func user(id string) Actor {
	return Actor{ID: id, Role: model.RoleParticipant}
}
