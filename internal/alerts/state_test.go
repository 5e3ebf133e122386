package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"alertdash/internal/models"
)

func TestDeriveState(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		read    bool
		snoozed *time.Time
		result  Result
		want    ViewState
	}{
		{"snooze hides triggered", false, &future, Triggered, StateSnoozed},
		{"snooze hides read", true, &future, Triggered, StateSnoozed},
		{"snooze hides pending", false, &future, Indeterminate, StateSnoozed},
		{"expired snooze falls through to read", true, &past, Triggered, StateRead},
		{"expired snooze falls through to triggered", false, &past, Triggered, StateTriggered},
		{"snooze ending exactly now is over", false, &now, Triggered, StateTriggered},
		{"read wins over triggered", true, nil, Triggered, StateRead},
		{"read with unknown data", true, nil, Indeterminate, StateRead},
		{"triggered", false, nil, Triggered, StateTriggered},
		{"not triggered is pending", false, nil, NotTriggered, StatePending},
		{"indeterminate is pending", false, nil, Indeterminate, StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := models.Alert{ID: "a", IsRead: tt.read, SnoozedUntil: tt.snoozed}
			assert.Equal(t, tt.want, DeriveState(alert, tt.result, now))
		})
	}
}

func TestParseViewState(t *testing.T) {
	for _, s := range []ViewState{StateSnoozed, StateRead, StateTriggered, StatePending} {
		got, ok := ParseViewState(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseViewState("new")
	assert.False(t, ok)
}
