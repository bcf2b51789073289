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

// TimeoutReason is recorded on registrations cancelled by the payment
// timeout sweep.
const TimeoutReason = "payment window expired"

// PaymentService reconciles settlements against registrations: payment
// initiation, settlement confirmation with team propagation, the refund tier
// policy and the payment timeout sweep.
type PaymentService struct {
	events        EventStore
	registrations RegistrationStore
	teams         TeamStore
	payments      PaymentStore
	refunds       RefundStore
	gateway       Gateway
	promoter      Promoter
	notifier      notify.Notifier
	clock         clock.Clock
	window        time.Duration // how long pending registrations may await settlement
	log           zerolog.Logger
}

// Promoter runs a waitlist promotion pass for one event. Implemented by
// RegistrationService; refund approvals use it to fill freed spots.
type Promoter interface {
	PromoteWaitlist(ctx context.Context, eventID string) error
}

// NewPaymentService constructs a PaymentService. window is the settlement
// deadline for pending registrations (normally 24 hours).
func NewPaymentService(events EventStore, registrations RegistrationStore, teams TeamStore,
	payments PaymentStore, refunds RefundStore, gateway Gateway, promoter Promoter,
	notifier notify.Notifier, clk clock.Clock, window time.Duration) *PaymentService {
	return &PaymentService{
		events:        events,
		registrations: registrations,
		teams:         teams,
		payments:      payments,
		refunds:       refunds,
		gateway:       gateway,
		promoter:      promoter,
		notifier:      notifier,
		clock:         clk,
		window:        window,
		log:           logging.Component("payment"),
	}
}

// InitiatePayment opens a settlement attempt for a registration. For team
// events only the leader may pay, the amount covers the whole team, and a
// second payment while one is pending or completed is rejected.
func (s *PaymentService) InitiatePayment(ctx context.Context, actor Actor, registrationID string) (*model.Payment, error) {
	r, err := s.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	e, err := s.events.GetEvent(ctx, r.EventID)
	if err != nil {
		return nil, err
	}
	if !e.IsPaid {
		return nil, model.NewValidationError("event_id", "event does not require payment")
	}
	if r.Status != model.RegistrationPending {
		return nil, &model.ConflictError{Entity: "registration", ID: r.ID,
			Reason: fmt.Sprintf("cannot pay for a %s registration", r.Status)}
	}

	amount := e.Amount
	if r.TeamID != "" {
		team, err := s.teams.GetTeam(ctx, r.TeamID)
		if err != nil {
			return nil, err
		}
		if actor.ID != team.LeaderID {
			return nil, &model.ConflictError{Entity: "payment", ID: r.TeamID,
				Reason: "only the team leader may initiate payment"}
		}
		if _, err := s.payments.FindOpenByTeam(ctx, r.TeamID); err == nil {
			return nil, &model.ConflictError{Entity: "payment", ID: r.TeamID,
				Reason: "a payment for this team is already pending or completed"}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check team payment: %w", err)
		}
		members, err := s.registrations.ListByTeam(ctx, r.TeamID)
		if err != nil {
			return nil, fmt.Errorf("list team members: %w", err)
		}
		amount = e.Amount * float64(len(members))
	} else {
		if actor.ID != r.UserID {
			return nil, ErrForbidden
		}
		if _, err := s.payments.FindOpenByRegistration(ctx, r.ID); err == nil {
			return nil, &model.ConflictError{Entity: "payment", ID: r.ID,
				Reason: "a payment for this registration is already pending or completed"}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check registration payment: %w", err)
		}
	}

	p := &model.Payment{
		ID:             uuid.New().String(),
		RegistrationID: r.ID,
		TeamID:         r.TeamID,
		EventID:        e.ID,
		PayerID:        actor.ID,
		Amount:         amount,
		Status:         model.PaymentPending,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// ConfirmSettlement applies a settlement outcome delivered by the payment
// collaborator. A duplicate confirmation for an already-completed payment is
// a no-op. On success the registration (and, for teams, every member's
// registration) is marked paid, and each one still pending is confirmed.
// One invoice and one notification go to the paying user.
func (s *PaymentService) ConfirmSettlement(ctx context.Context, paymentID string, success bool, transactionID string) error {
	p, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status == model.PaymentCompleted {
		// Duplicate settlement event.
		return nil
	}
	if p.Status == model.PaymentFailed {
		return &model.ConflictError{Entity: "payment", ID: p.ID,
			From: string(p.Status), To: string(model.PaymentCompleted),
			Reason: "payment already failed; initiate a new one"}
	}

	now := s.clock.Now()
	target := model.PaymentCompleted
	if !success {
		target = model.PaymentFailed
	}
	applied, err := s.payments.Settle(ctx, paymentID, target, transactionID, now)
	if err != nil {
		return fmt.Errorf("settle payment: %w", err)
	}
	if !applied {
		// Lost a race with another confirmation; already settled.
		return nil
	}

	if !success {
		if _, err := s.registrations.SetPaymentStatus(ctx, p.RegistrationID, model.PayPending, model.PayFailed); err != nil {
			s.log.Error().Err(err).Str("registration_id", p.RegistrationID).Msg("mark payment failed")
		}
		return nil
	}

	regs := []model.Registration{}
	if p.TeamID != "" {
		regs, err = s.registrations.ListByTeam(ctx, p.TeamID)
		if err != nil {
			return fmt.Errorf("list team members: %w", err)
		}
	} else {
		r, err := s.registrations.GetRegistration(ctx, p.RegistrationID)
		if err != nil {
			return err
		}
		regs = append(regs, *r)
	}

	for i := range regs {
		s.markPaid(ctx, &regs[i])
	}

	e, err := s.events.GetEvent(ctx, p.EventID)
	if err != nil {
		return err
	}
	inv := &model.Invoice{
		ID:        uuid.New().String(),
		PaymentID: p.ID,
		EventID:   p.EventID,
		UserID:    p.PayerID,
		Amount:    p.Amount,
		IssuedAt:  now,
	}
	if err := s.payments.CreateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	s.send(ctx, model.Notification{
		RecipientID: p.PayerID,
		Title:       "Payment received",
		Message:     fmt.Sprintf("Your payment for %s was received. Your registration is confirmed.", e.Title),
		EventID:     e.ID,
		Channels:    []string{notify.ChannelEmail},
		Priority:    notify.PriorityNormal,
	})
	return nil
}

// markPaid flips one registration's payment status to paid and confirms it
// if it was still pending. The confirmation does not move the counter: a
// pending registration already holds its spot.
func (s *PaymentService) markPaid(ctx context.Context, r *model.Registration) {
	if !r.Active() {
		return
	}
	if r.PaymentStatus != model.PayPaid {
		if _, err := s.registrations.SetPaymentStatus(ctx, r.ID, r.PaymentStatus, model.PayPaid); err != nil {
			s.log.Error().Err(err).Str("registration_id", r.ID).Msg("mark registration paid")
			return
		}
	}
	if r.Status != model.RegistrationPending {
		return
	}
	applied, err := s.registrations.Transition(ctx, RegistrationTransition{
		RegistrationID: r.ID,
		EventID:        r.EventID,
		From:           model.RegistrationPending,
		To:             model.RegistrationConfirmed,
		CounterDelta:   0,
	})
	if err != nil {
		s.log.Error().Err(err).Str("registration_id", r.ID).Msg("confirm registration")
		return
	}
	if !applied {
		s.log.Warn().Str("registration_id", r.ID).Msg("registration no longer pending at settlement")
	}
}

// RequestRefund opens a refund against a completed payment, computing the
// tier percentage from the time remaining before the event. A second open
// refund against the same payment is rejected.
func (s *PaymentService) RequestRefund(ctx context.Context, actor Actor, paymentID, reason string) (*model.Refund, error) {
	p, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentCompleted {
		return nil, &model.ConflictError{Entity: "payment", ID: p.ID,
			Reason: fmt.Sprintf("cannot refund a %s payment", p.Status)}
	}
	if actor.ID != p.PayerID && !model.HasCapability(actor.Role, model.CapManageRefunds) {
		return nil, ErrForbidden
	}
	open, err := s.refunds.HasOpenRefund(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("check open refund: %w", err)
	}
	if open {
		return nil, &model.ConflictError{Entity: "refund", ID: paymentID,
			Reason: "a refund for this payment is already open"}
	}

	e, err := s.events.GetEvent(ctx, p.EventID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	pct, err := model.RefundPercentage(e.StartDateTime, now)
	if err != nil {
		return nil, err
	}

	ref := &model.Refund{
		ID:               uuid.New().String(),
		PaymentID:        p.ID,
		RegistrationID:   p.RegistrationID,
		RequestedBy:      actor.ID,
		RefundPercentage: pct,
		RefundAmount:     model.RefundAmount(p.Amount, pct),
		Reason:           reason,
		Status:           model.RefundPending,
		RequestedAt:      now,
	}
	if err := s.refunds.CreateRefund(ctx, ref); err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	if _, err := s.registrations.SetPaymentStatus(ctx, p.RegistrationID, model.PayPaid, model.PayRefundPending); err != nil {
		s.log.Error().Err(err).Str("registration_id", p.RegistrationID).Msg("mark refund pending")
	}
	return ref, nil
}

// ApproveRefund debits the gateway and finalises the refund: the
// registration is cancelled, its spot freed, and a promotion pass runs over
// the freed capacity. A gateway failure leaves the refund pending for retry.
func (s *PaymentService) ApproveRefund(ctx context.Context, actor Actor, refundID string) error {
	if !model.HasCapability(actor.Role, model.CapManageRefunds) {
		return ErrForbidden
	}
	ref, err := s.refunds.GetRefund(ctx, refundID)
	if err != nil {
		return err
	}
	if ref.Status != model.RefundPending {
		return &model.ConflictError{Entity: "refund", ID: ref.ID,
			From: string(ref.Status), To: string(model.RefundCompleted)}
	}

	if _, err := s.gateway.Debit(ctx, ref.PaymentID, ref.RefundAmount); err != nil {
		// Transient: the refund stays pending and the next approval retries.
		return fmt.Errorf("gateway debit: %w", err)
	}

	now := s.clock.Now()
	applied, err := s.refunds.Decide(ctx, refundID, model.RefundCompleted, now)
	if err != nil {
		return fmt.Errorf("complete refund: %w", err)
	}
	if !applied {
		return &model.ConflictError{Entity: "refund", ID: ref.ID,
			Reason: "refund decided concurrently"}
	}

	r, err := s.registrations.GetRegistration(ctx, ref.RegistrationID)
	if err != nil {
		return err
	}
	if r.Active() {
		delta := 0
		if r.CountsTowardCapacity() {
			delta = -1
		}
		pay := model.PayRefunded
		if _, err := s.registrations.Transition(ctx, RegistrationTransition{
			RegistrationID: r.ID,
			EventID:        r.EventID,
			From:           r.Status,
			To:             model.RegistrationCancelled,
			PaymentStatus:  &pay,
			CounterDelta:   delta,
			Reason:         "refund approved",
		}); err != nil {
			return fmt.Errorf("cancel refunded registration: %w", err)
		}
		if delta < 0 && s.promoter != nil {
			if err := s.promoter.PromoteWaitlist(ctx, r.EventID); err != nil {
				s.log.Warn().Err(err).Str("event_id", r.EventID).Msg("promotion after refund failed")
			}
		}
	}

	s.send(ctx, model.Notification{
		RecipientID: ref.RequestedBy,
		Title:       "Refund approved",
		Message:     fmt.Sprintf("Your refund of %.2f (%d%%) has been processed.", ref.RefundAmount, ref.RefundPercentage),
		EventID:     r.EventID,
		Channels:    []string{notify.ChannelEmail},
		Priority:    notify.PriorityNormal,
	})
	return nil
}

// RejectRefund declines a pending refund and restores the registration's
// paid status.
func (s *PaymentService) RejectRefund(ctx context.Context, actor Actor, refundID string) error {
	if !model.HasCapability(actor.Role, model.CapManageRefunds) {
		return ErrForbidden
	}
	ref, err := s.refunds.GetRefund(ctx, refundID)
	if err != nil {
		return err
	}
	applied, err := s.refunds.Decide(ctx, refundID, model.RefundRejected, s.clock.Now())
	if err != nil {
		return fmt.Errorf("reject refund: %w", err)
	}
	if !applied {
		return &model.ConflictError{Entity: "refund", ID: ref.ID,
			From: string(ref.Status), To: string(model.RefundRejected)}
	}
	if _, err := s.registrations.SetPaymentStatus(ctx, ref.RegistrationID, model.PayRefundPending, model.PayPaid); err != nil {
		s.log.Error().Err(err).Str("registration_id", ref.RegistrationID).Msg("restore paid status")
	}
	return nil
}

// CancelTimedOut is the sweep step that cancels registrations of paid events
// still awaiting settlement past the payment window. Unpaid events never
// match: their registrations carry payment status not_required.
func (s *PaymentService) CancelTimedOut(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.window)
	regs, err := s.registrations.ListPaymentTimeouts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list payment timeouts: %w", err)
	}
	for _, r := range regs {
		applied, err := s.registrations.Transition(ctx, RegistrationTransition{
			RegistrationID: r.ID,
			EventID:        r.EventID,
			From:           model.RegistrationPending,
			To:             model.RegistrationCancelled,
			CounterDelta:   -1,
			Reason:         TimeoutReason,
		})
		if err != nil {
			s.log.Error().Err(err).Str("registration_id", r.ID).Msg("timeout cancellation failed")
			continue
		}
		if !applied {
			continue
		}
		s.send(ctx, model.Notification{
			RecipientID: r.UserID,
			Title:       "Registration cancelled",
			Message:     "Your registration was cancelled because payment was not completed in time.",
			EventID:     r.EventID,
			Channels:    []string{notify.ChannelEmail},
			Priority:    notify.PriorityHigh,
		})
	}
	return nil
}

func (s *PaymentService) send(ctx context.Context, n model.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("recipient", n.RecipientID).Str("title", n.Title).Msg("notification failed")
	}
}

// NopGateway fulfils the gateway contract for deployments without a real
// payment provider wired in.
type NopGateway struct{}

// Debit generates a synthetic transaction id and succeeds.
func (NopGateway) Debit(_ context.Context, _ string, _ float64) (string, error) {
	return uuid.New().String(), nil
}
