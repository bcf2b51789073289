package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

func TestInitiatePaymentIndividual(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))

	r, err := f.registrations.Register(ctx, e.ID, "user-1")
	require.NoError(t, err)

	p, err := f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, p.Amount)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, "user-1", p.PayerID)

	// A second payment while one is open is rejected.
	_, err = f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Someone else cannot pay for this registration.
	_, err = f.payments.InitiatePayment(ctx, user("user-2"), r.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestInitiatePaymentGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	free := f.seedEvent(withCapacity(10))
	r, err := f.registrations.Register(ctx, free.ID, "user-1")
	require.NoError(t, err)

	// Unpaid events take no payments.
	_, err = f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	// Waitlisted registrations hold no spot to pay for.
	paid := f.seedEvent(withCapacity(1), withPrice(300))
	_, err = f.registrations.Register(ctx, paid.ID, "user-2")
	require.NoError(t, err)
	waitlisted, err := f.registrations.Register(ctx, paid.ID, "user-3")
	require.NoError(t, err)
	_, err = f.payments.InitiatePayment(ctx, user("user-3"), waitlisted.ID)
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestInitiatePaymentTeam(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(200), withTeamSize(2, 4))

	_, regs, err := f.registrations.RegisterTeam(ctx, e.ID, "lead-1", "gophers",
		[]string{"lead-1", "m-2", "m-3"})
	require.NoError(t, err)

	// Only the leader pays.
	_, err = f.payments.InitiatePayment(ctx, user("m-2"), regs[1].ID)
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)

	// One payment covers the whole team.
	p, err := f.payments.InitiatePayment(ctx, user("lead-1"), regs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 600.0, p.Amount)

	// No second team payment while one is open, through any member.
	_, err = f.payments.InitiatePayment(ctx, user("lead-1"), regs[0].ID)
	require.ErrorAs(t, err, &conflict)
}

func TestConfirmSettlementIndividual(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))

	r, err := f.registrations.Register(ctx, e.ID, "user-1")
	require.NoError(t, err)
	p, err := f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	require.NoError(t, err)

	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-1"))

	got := f.getReg(r.ID)
	assert.Equal(t, model.RegistrationConfirmed, got.Status)
	assert.Equal(t, model.PayPaid, got.PaymentStatus)
	// The pending registration already held its spot; settlement must not
	// count it twice.
	assert.Equal(t, 1, f.getEvent(e.ID).RegisteredCount)

	require.Len(t, f.store.invoices, 1)
	assert.Equal(t, 500.0, f.store.invoices[0].Amount)
	assert.Equal(t, []string{"user-1"}, f.notes.recipients("Payment received"))
}

func TestConfirmSettlementIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))

	r, err := f.registrations.Register(ctx, e.ID, "user-1")
	require.NoError(t, err)
	p, err := f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	require.NoError(t, err)

	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-1"))
	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-1"))

	assert.Len(t, f.store.invoices, 1)
	assert.Len(t, f.notes.recipients("Payment received"), 1)
	assert.Equal(t, 1, f.getEvent(e.ID).RegisteredCount)
}

func TestConfirmSettlementFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))

	r, err := f.registrations.Register(ctx, e.ID, "user-1")
	require.NoError(t, err)
	p, err := f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	require.NoError(t, err)

	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, false, ""))

	got := f.getReg(r.ID)
	assert.Equal(t, model.RegistrationPending, got.Status)
	assert.Equal(t, model.PayFailed, got.PaymentStatus)
	assert.Empty(t, f.store.invoices)

	// A failed payment cannot be settled later; a new attempt is needed.
	err = f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-late")
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestTeamSettlementPropagates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(200), withTeamSize(2, 4))

	_, regs, err := f.registrations.RegisterTeam(ctx, e.ID, "lead-1", "gophers",
		[]string{"lead-1", "m-2", "m-3"})
	require.NoError(t, err)
	p, err := f.payments.InitiatePayment(ctx, user("lead-1"), regs[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-1"))

	for _, r := range regs {
		got := f.getReg(r.ID)
		assert.Equal(t, model.RegistrationConfirmed, got.Status, r.UserID)
		assert.Equal(t, model.PayPaid, got.PaymentStatus, r.UserID)
	}
	assert.Equal(t, 3, f.getEvent(e.ID).RegisteredCount)

	// One invoice and one notification, to the payer only.
	assert.Len(t, f.store.invoices, 1)
	assert.Equal(t, []string{"lead-1"}, f.notes.recipients("Payment received"))
}

func TestTeamSettlementLeavesWaitlistedMemberWaiting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(2), withPrice(200), withTeamSize(2, 4))

	_, regs, err := f.registrations.RegisterTeam(ctx, e.ID, "lead-1", "gophers",
		[]string{"lead-1", "m-2", "m-3"})
	require.NoError(t, err)
	require.Equal(t, model.RegistrationWaitlisted, regs[2].Status)

	p, err := f.payments.InitiatePayment(ctx, user("lead-1"), regs[0].ID)
	require.NoError(t, err)
	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-1"))

	// The waitlisted member is marked paid but does not jump the capacity
	// line.
	got := f.getReg(regs[2].ID)
	assert.Equal(t, model.RegistrationWaitlisted, got.Status)
	assert.Equal(t, model.PayPaid, got.PaymentStatus)
	assert.Equal(t, 2, f.getEvent(e.ID).RegisteredCount)

	// When a spot frees up the paid member confirms directly, with no new
	// payment window.
	require.NoError(t, f.registrations.Cancel(ctx, user("lead-1"), regs[0].ID, ""))
	got = f.getReg(regs[2].ID)
	assert.Equal(t, model.RegistrationConfirmed, got.Status)
	assert.Equal(t, model.PayPaid, got.PaymentStatus)
	assert.Equal(t, 2, f.getEvent(e.ID).RegisteredCount)
	assert.Equal(t, 0, f.notes.count("Spot available - payment required"))
}

func settledPayment(t *testing.T, f *fixture, e *model.Event, userID string) (*model.Registration, *model.Payment) {
	t.Helper()
	ctx := context.Background()
	r, err := f.registrations.Register(ctx, e.ID, userID)
	require.NoError(t, err)
	p, err := f.payments.InitiatePayment(ctx, user(userID), r.ID)
	require.NoError(t, err)
	require.NoError(t, f.payments.ConfirmSettlement(ctx, p.ID, true, "txn-"+userID))
	return r, p
}

func TestRequestRefundTiers(t *testing.T) {
	tests := []struct {
		name       string
		daysBefore time.Duration
		wantPct    int
		wantAmount float64
		wantErr    bool
	}{
		{"ten days out", 10 * 24 * time.Hour, 100, 500, false},
		{"exactly seven days", 7 * 24 * time.Hour, 100, 500, false},
		{"five days out", 5 * 24 * time.Hour, 50, 250, false},
		{"two days out", 2 * 24 * time.Hour, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			e := f.seedEvent(withCapacity(10), withPrice(500))
			_, p := settledPayment(t, f, e, "user-1")

			f.clk.Set(e.StartDateTime.Add(-tt.daysBefore))
			ref, err := f.payments.RequestRefund(ctx, user("user-1"), p.ID, "cannot attend")
			if tt.wantErr {
				var conflict *model.ConflictError
				require.ErrorAs(t, err, &conflict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPct, ref.RefundPercentage)
			assert.Equal(t, tt.wantAmount, ref.RefundAmount)
			assert.Equal(t, model.RefundPending, ref.Status)
		})
	}
}

func TestRequestRefundGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))
	r, p := settledPayment(t, f, e, "user-1")

	// Strangers cannot request, refund admins can.
	_, err := f.payments.RequestRefund(ctx, user("user-2"), p.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.payments.RequestRefund(ctx, admin, p.ID, "organizer goodwill")
	require.NoError(t, err)
	assert.Equal(t, model.PayRefundPending, f.getReg(r.ID).PaymentStatus)

	// No second open refund for the same payment.
	_, err = f.payments.RequestRefund(ctx, user("user-1"), p.ID, "")
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestRequestRefundRequiresCompletedPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))

	r, err := f.registrations.Register(ctx, e.ID, "user-1")
	require.NoError(t, err)
	p, err := f.payments.InitiatePayment(ctx, user("user-1"), r.ID)
	require.NoError(t, err)

	_, err = f.payments.RequestRefund(ctx, user("user-1"), p.ID, "")
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestApproveRefund(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(1), withPrice(500))
	r, p := settledPayment(t, f, e, "user-1")

	f.clk.Advance(time.Minute)
	waiting, err := f.registrations.Register(ctx, e.ID, "user-2")
	require.NoError(t, err)
	require.Equal(t, model.RegistrationWaitlisted, waiting.Status)

	ref, err := f.payments.RequestRefund(ctx, user("user-1"), p.ID, "cannot attend")
	require.NoError(t, err)

	require.ErrorIs(t, f.payments.ApproveRefund(ctx, user("user-1"), ref.ID), ErrForbidden)
	require.NoError(t, f.payments.ApproveRefund(ctx, admin, ref.ID))

	assert.Equal(t, []float64{500}, f.gateway.debits)

	got := f.getReg(r.ID)
	assert.Equal(t, model.RegistrationCancelled, got.Status)
	assert.Equal(t, model.PayRefunded, got.PaymentStatus)

	// The freed spot goes to the waitlist with a payment window.
	promoted := f.getReg(waiting.ID)
	assert.Equal(t, model.RegistrationPending, promoted.Status)
	assert.Equal(t, 1, f.getEvent(e.ID).RegisteredCount)

	assert.Equal(t, []string{"user-1"}, f.notes.recipients("Refund approved"))

	// Approving twice is a conflict.
	err = f.payments.ApproveRefund(ctx, admin, ref.ID)
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestApproveRefundGatewayFailureKeepsRefundPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))
	r, p := settledPayment(t, f, e, "user-1")

	ref, err := f.payments.RequestRefund(ctx, user("user-1"), p.ID, "")
	require.NoError(t, err)

	f.gateway.fail = errors.New("provider unavailable")
	require.Error(t, f.payments.ApproveRefund(ctx, admin, ref.ID))

	// Nothing moved; the approval can be retried.
	stored, err := f.store.GetRefund(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefundPending, stored.Status)
	assert.Equal(t, model.RegistrationConfirmed, f.getReg(r.ID).Status)

	f.gateway.fail = nil
	require.NoError(t, f.payments.ApproveRefund(ctx, admin, ref.ID))
	assert.Equal(t, model.RegistrationCancelled, f.getReg(r.ID).Status)
}

func TestRejectRefundRestoresPaidStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(10), withPrice(500))
	r, p := settledPayment(t, f, e, "user-1")

	ref, err := f.payments.RequestRefund(ctx, user("user-1"), p.ID, "")
	require.NoError(t, err)
	require.Equal(t, model.PayRefundPending, f.getReg(r.ID).PaymentStatus)

	require.NoError(t, f.payments.RejectRefund(ctx, admin, ref.ID))

	got := f.getReg(r.ID)
	assert.Equal(t, model.RegistrationConfirmed, got.Status)
	assert.Equal(t, model.PayPaid, got.PaymentStatus)
	assert.Equal(t, 1, f.getEvent(e.ID).RegisteredCount)

	// A rejected refund does not block a new request.
	_, err = f.payments.RequestRefund(ctx, user("user-1"), p.ID, "second thoughts")
	require.NoError(t, err)
}

func TestCancelTimedOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	paid := f.seedEvent(withCapacity(10), withPrice(500))
	free := f.seedEvent(withCapacity(10))

	overdue, err := f.registrations.Register(ctx, paid.ID, "user-1")
	require.NoError(t, err)
	unpaidReg, err := f.registrations.Register(ctx, free.ID, "user-2")
	require.NoError(t, err)

	// user-3 registers 2 hours later and settles in time.
	f.clk.Advance(2 * time.Hour)
	settled, _ := settledPayment(t, f, paid, "user-3")

	// 25 hours after the first registration the 24h window has expired for
	// user-1 only.
	f.clk.Set(baseTime.Add(25 * time.Hour))
	require.NoError(t, f.payments.CancelTimedOut(ctx))

	got := f.getReg(overdue.ID)
	assert.Equal(t, model.RegistrationCancelled, got.Status)
	assert.Equal(t, TimeoutReason, got.CancellationReason)

	// Free-event and settled registrations are exempt.
	assert.Equal(t, model.RegistrationConfirmed, f.getReg(unpaidReg.ID).Status)
	assert.Equal(t, model.RegistrationConfirmed, f.getReg(settled.ID).Status)

	assert.Equal(t, 1, f.getEvent(paid.ID).RegisteredCount)
	assert.Equal(t, []string{"user-1"}, f.notes.recipients("Registration cancelled"))

	// The sweep is idempotent.
	require.NoError(t, f.payments.CancelTimedOut(ctx))
	assert.Len(t, f.notes.recipients("Registration cancelled"), 1)
}

func TestPromotedRegistrationGetsFullPaymentWindow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.seedEvent(withCapacity(1), withPrice(500))

	_, err := f.registrations.Register(ctx, e.ID, "user-1")
	require.NoError(t, err)
	waiting, err := f.registrations.Register(ctx, e.ID, "user-2")
	require.NoError(t, err)
	require.Equal(t, model.RegistrationWaitlisted, waiting.Status)

	// user-2 sat on the waitlist longer than the payment window before the
	// sweep times user-1 out and promotes them into the freed spot.
	f.clk.Advance(30 * time.Hour)
	require.NoError(t, f.payments.CancelTimedOut(ctx))
	require.NoError(t, f.registrations.PromoteAllWaitlists(ctx))
	require.Equal(t, model.RegistrationPending, f.getReg(waiting.ID).Status)
	assert.Equal(t, []string{"user-2"}, f.notes.recipients("Spot available - payment required"))

	// The next sweep runs minutes later; the freshly opened window must not
	// count as expired.
	f.clk.Advance(5 * time.Minute)
	require.NoError(t, f.payments.CancelTimedOut(ctx))
	assert.Equal(t, model.RegistrationPending, f.getReg(waiting.ID).Status)

	// A full window after the promotion the timeout applies as usual.
	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.payments.CancelTimedOut(ctx))
	got := f.getReg(waiting.ID)
	assert.Equal(t, model.RegistrationCancelled, got.Status)
	assert.Equal(t, TimeoutReason, got.CancellationReason)
}
