package scheduler

import (
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

// LifecycleSteps assembles the sweep in its fixed order: events to ongoing,
// events to completed, rounds to active, rounds to completed, payment
// timeouts, waitlist promotion.
func LifecycleSteps(events *service.EventService, registrations *service.RegistrationService, payments *service.PaymentService) []Step {
	return []Step{
		{Name: "event-to-ongoing", Run: events.ActivateDueEvents},
		{Name: "event-to-completed", Run: events.CompleteDueEvents},
		{Name: "round-to-active", Run: events.ActivateDueRounds},
		{Name: "round-to-completed", Run: events.CompleteDueRounds},
		{Name: "payment-timeout", Run: payments.CancelTimedOut},
		{Name: "waitlist-promotion", Run: registrations.PromoteAllWaitlists},
	}
}
