package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

// memStore is an in-memory implementation of every store contract. It holds
// one mutex and applies the same guarded check-and-set semantics as the SQL
// repositories, so concurrency tests against it are meaningful.
type memStore struct {
	mu       sync.Mutex
	events   map[string]*model.Event
	regs     map[string]*model.Registration
	teams    map[string]*model.Team
	payments map[string]*model.Payment
	refunds  map[string]*model.Refund
	invoices []model.Invoice
}

func newMemStore() *memStore {
	return &memStore{
		events:   map[string]*model.Event{},
		regs:     map[string]*model.Registration{},
		teams:    map[string]*model.Team{},
		payments: map[string]*model.Payment{},
		refunds:  map[string]*model.Refund{},
	}
}

func copyEvent(e *model.Event) *model.Event {
	cp := *e
	cp.Rounds = append([]model.Round(nil), e.Rounds...)
	cp.Eligibility = append([]string(nil), e.Eligibility...)
	return &cp
}

func copyReg(r *model.Registration) *model.Registration {
	cp := *r
	return &cp
}

// EventStore.

func (m *memStore) CreateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = copyEvent(e)
	return nil
}

func (m *memStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(e), nil
}

func (m *memStore) UpdateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[e.ID]
	if !ok {
		return ErrNotFound
	}
	cp := copyEvent(e)
	cp.Status = cur.Status
	cp.RegisteredCount = cur.RegisteredCount
	m.events[e.ID] = cp
	return nil
}

func (m *memStore) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *memStore) ListEventsByStatus(_ context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		for _, st := range statuses {
			if e.Status == st {
				out = append(out, *copyEvent(e))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDateTime.Before(out[j].StartDateTime) })
	return out, nil
}

func (m *memStore) ListEventsWithUnfinishedRounds(_ context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		for _, r := range e.Rounds {
			if r.Status != model.RoundCompleted {
				out = append(out, *copyEvent(e))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDateTime.Before(out[j].StartDateTime) })
	return out, nil
}

func (m *memStore) TransitionEvent(_ context.Context, id string, from, to model.EventStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (m *memStore) SetApproval(_ context.Context, id string, status model.ApprovalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	e.ApprovalStatus = status
	return nil
}

func (m *memStore) SaveRounds(_ context.Context, eventID string, rounds []model.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.Rounds = append([]model.Round(nil), rounds...)
	return nil
}

func (m *memStore) ReconcileRegisteredCount(_ context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return 0, ErrNotFound
	}
	n := 0
	for _, r := range m.regs {
		if r.EventID == eventID && r.CountsTowardCapacity() {
			n++
		}
	}
	e.RegisteredCount = n
	return n, nil
}

// RegistrationStore.

func (m *memStore) CreateRegistration(_ context.Context, r *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[r.EventID]
	if !ok {
		return ErrNotFound
	}
	if r.CountsTowardCapacity() {
		if e.MaxParticipants != nil && e.RegisteredCount >= *e.MaxParticipants {
			return ErrCapacityExhausted
		}
		e.RegisteredCount++
	}
	m.regs[r.ID] = copyReg(r)
	return nil
}

func (m *memStore) GetRegistration(_ context.Context, id string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyReg(r), nil
}

func (m *memStore) FindActiveRegistration(_ context.Context, eventID, userID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.EventID == eventID && r.UserID == userID && r.Active() {
			return copyReg(r), nil
		}
	}
	return nil, ErrNotFound
}

func sortFIFO(regs []model.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if !regs[i].RegistrationDate.Equal(regs[j].RegistrationDate) {
			return regs[i].RegistrationDate.Before(regs[j].RegistrationDate)
		}
		return regs[i].ID < regs[j].ID
	})
}

func (m *memStore) ListWaitlisted(_ context.Context, eventID string, limit int) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		if r.EventID == eventID && r.Status == model.RegistrationWaitlisted {
			out = append(out, *copyReg(r))
		}
	}
	sortFIFO(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListByEventAndStatus(_ context.Context, eventID string, statuses ...model.RegistrationStatus) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		if r.EventID != eventID {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, *copyReg(r))
				break
			}
		}
	}
	sortFIFO(out)
	return out, nil
}

func (m *memStore) ListByTeam(_ context.Context, teamID string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		if r.TeamID == teamID {
			out = append(out, *copyReg(r))
		}
	}
	sortFIFO(out)
	return out, nil
}

func (m *memStore) ListPaymentTimeouts(_ context.Context, cutoff time.Time) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		e, ok := m.events[r.EventID]
		if !ok || !e.IsPaid {
			continue
		}
		if r.Status == model.RegistrationPending && r.PaymentStatus == model.PayPending &&
			r.PaymentPendingSince != nil && r.PaymentPendingSince.Before(cutoff) {
			out = append(out, *copyReg(r))
		}
	}
	sortFIFO(out)
	return out, nil
}

func (m *memStore) CountActiveByEvent(_ context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.regs {
		if r.EventID == eventID && r.Active() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Transition(_ context.Context, t RegistrationTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[t.RegistrationID]
	if !ok || r.Status != t.From {
		return false, nil
	}
	e, ok := m.events[t.EventID]
	if !ok {
		return false, nil
	}
	if t.CounterDelta > 0 && e.MaxParticipants != nil &&
		e.RegisteredCount+t.CounterDelta > *e.MaxParticipants {
		return false, nil
	}
	r.Status = t.To
	if t.PaymentStatus != nil {
		r.PaymentStatus = *t.PaymentStatus
	}
	if t.Reason != "" {
		r.CancellationReason = t.Reason
	}
	if t.PendingSince != nil {
		since := *t.PendingSince
		r.PaymentPendingSince = &since
	}
	e.RegisteredCount += t.CounterDelta
	if e.RegisteredCount < 0 {
		e.RegisteredCount = 0
	}
	return true, nil
}

func (m *memStore) SetPaymentStatus(_ context.Context, id string, from, to model.RegistrationPayStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok || r.PaymentStatus != from {
		return false, nil
	}
	r.PaymentStatus = to
	return true, nil
}

// TeamStore.

func (m *memStore) CreateTeam(_ context.Context, t *model.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.teams[t.ID] = &cp
	return nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (*model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// PaymentStore.

func (m *memStore) CreatePayment(_ context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memStore) GetPayment(_ context.Context, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Settle(_ context.Context, id string, to model.PaymentStatus, transactionID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != model.PaymentPending {
		return false, nil
	}
	p.Status = to
	p.TransactionID = transactionID
	p.CompletedAt = &at
	return true, nil
}

func (m *memStore) findOpenPayment(match func(*model.Payment) bool) (*model.Payment, error) {
	for _, p := range m.payments {
		if (p.Status == model.PaymentPending || p.Status == model.PaymentCompleted) && match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindOpenByTeam(_ context.Context, teamID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOpenPayment(func(p *model.Payment) bool { return p.TeamID == teamID })
}

func (m *memStore) FindOpenByRegistration(_ context.Context, registrationID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOpenPayment(func(p *model.Payment) bool { return p.RegistrationID == registrationID })
}

func (m *memStore) CreateInvoice(_ context.Context, inv *model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, *inv)
	return nil
}

// RefundStore.

func (m *memStore) CreateRefund(_ context.Context, r *model.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.refunds[r.ID] = &cp
	return nil
}

func (m *memStore) GetRefund(_ context.Context, id string) (*model.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) HasOpenRefund(_ context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.PaymentID == paymentID &&
			(r.Status == model.RefundPending || r.Status == model.RefundCompleted) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Decide(_ context.Context, id string, to model.RefundStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok || r.Status != model.RefundPending {
		return false, nil
	}
	r.Status = to
	r.DecidedAt = &at
	return true, nil
}

// Test collaborators.

// recordingNotifier captures notifications; it can be told to fail to prove
// delivery failures never abort transitions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	fail error
}

func (n *recordingNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count(title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.sent {
		if msg.Title == title {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) recipients(title string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, msg := range n.sent {
		if msg.Title == title {
			out = append(out, msg.RecipientID)
		}
	}
	return out
}

// fakeGateway records debits and can be forced to fail.
type fakeGateway struct {
	mu     sync.Mutex
	debits []float64
	fail   error
}

func (g *fakeGateway) Debit(_ context.Context, _ string, amount float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return "", g.fail
	}
	g.debits = append(g.debits, amount)
	return "txn-refund", nil
}
