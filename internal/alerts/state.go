package alerts

import (
	"time"

	"alertdash/internal/models"
)

// ViewState is the presentation state of an alert.
type ViewState string

const (
	StateSnoozed   ViewState = "snoozed"
	StateRead      ViewState = "read"
	StateTriggered ViewState = "triggered"
	StatePending   ViewState = "pending"
)

// ParseViewState parses a state name, returning false if it is unknown.
func ParseViewState(s string) (ViewState, bool) {
	switch ViewState(s) {
	case StateSnoozed, StateRead, StateTriggered, StatePending:
		return ViewState(s), true
	}
	return "", false
}

// IsSnoozed reports whether the alert's snooze is still running at now.
func IsSnoozed(alert models.Alert, now time.Time) bool {
	return alert.SnoozedUntil != nil && alert.SnoozedUntil.After(now)
}

// DeriveState maps an alert and its evaluation result to a view state.
// Precedence is snoozed, read, triggered, pending: an active snooze hides
// everything, and an acknowledged alert stays read once the snooze ends.
func DeriveState(alert models.Alert, result Result, now time.Time) ViewState {
	switch {
	case IsSnoozed(alert, now):
		return StateSnoozed
	case alert.IsRead:
		return StateRead
	case result == Triggered:
		return StateTriggered
	default:
		return StatePending
	}
}
