// Package notify defines the notification sink contract and a logging
// implementation. Delivery is fire-and-forget: callers log failures and
// carry on with their own transition logic.
package notify

import (
	"context"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/logging"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

// Default channels and priorities used by lifecycle notifications.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notifier dispatches a notification to a recipient. Implementations live
// outside the lifecycle engine (email/SMS providers); LogNotifier is the
// default stand-in.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// LogNotifier writes notifications to the structured log instead of
// delivering them.
type LogNotifier struct{}

// Notify logs the notification and always succeeds.
func (LogNotifier) Notify(_ context.Context, n model.Notification) error {
	log := logging.Component("notify")
	log.Info().
		Str("recipient", n.RecipientID).
		Str("title", n.Title).
		Str("event_id", n.EventID).
		Strs("channels", n.Channels).
		Str("priority", n.Priority).
		Msg("notification dispatched")
	return nil
}
