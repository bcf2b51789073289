package model

import "time"

// Refund tier boundaries, measured from the request time to the event start.
const (
	fullRefundWindow = 7 * 24 * time.Hour
	halfRefundWindow = 3 * 24 * time.Hour
)

// ErrRefundWindowClosed is returned when a refund is requested less than
// three days before the event starts.
var ErrRefundWindowClosed = &ConflictError{
	Entity: "refund",
	Reason: "too close to event start; refunds close 3 days before",
}

// RefundPercentage applies the tier policy: 100% at seven or more days out,
// 50% between three and seven days, rejected inside three days. The seven-day
// boundary itself yields the full refund.
func RefundPercentage(eventStart, now time.Time) (int, error) {
	until := eventStart.Sub(now)
	switch {
	case until >= fullRefundWindow:
		return 100, nil
	case until >= halfRefundWindow:
		return 50, nil
	default:
		return 0, ErrRefundWindowClosed
	}
}

// RefundAmount computes the amount returned for a payment at the given
// percentage.
func RefundAmount(paymentAmount float64, percentage int) float64 {
	return paymentAmount * float64(percentage) / 100
}
