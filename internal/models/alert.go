package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlertType identifies the rule an alert watches for.
type AlertType string

const (
	AlertPriceAbove             AlertType = "PRICE_ABOVE"
	AlertPriceBelow             AlertType = "PRICE_BELOW"
	AlertPercentChangeUp        AlertType = "PERCENT_CHANGE_UP"
	AlertPercentChangeDown      AlertType = "PERCENT_CHANGE_DOWN"
	AlertSMA50AboveSMA200       AlertType = "SMA50_ABOVE_SMA200"  // golden cross
	AlertSMA50BelowSMA200       AlertType = "SMA50_BELOW_SMA200"  // death cross
	AlertSMA50ApproachingSMA200 AlertType = "SMA50_APPROACHING_SMA200"
)

// AlertTypes lists every known alert type in display order.
var AlertTypes = []AlertType{
	AlertPriceAbove,
	AlertPriceBelow,
	AlertPercentChangeUp,
	AlertPercentChangeDown,
	AlertSMA50AboveSMA200,
	AlertSMA50BelowSMA200,
	AlertSMA50ApproachingSMA200,
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsCrossover reports whether the type compares the moving averages only,
// in which case the threshold is conventionally zero and ignored.
func (t AlertType) IsCrossover() bool {
	return t == AlertSMA50AboveSMA200 || t == AlertSMA50BelowSMA200
}

// ParseAlertType parses a case-insensitive alert type name.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown alert type %q", s)
	}
	return t, nil
}

// Alert is a persisted rule watching one ticker for a condition.
type Alert struct {
	ID              string     `json:"id"`
	Ticker          string     `json:"ticker"`
	AlertType       AlertType  `json:"alert_type"`
	ThresholdValue  float64    `json:"threshold_value"`
	Message         *string    `json:"message"`
	IsActive        bool       `json:"is_active"`
	IsTriggered     bool       `json:"is_triggered"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	IsRead          bool       `json:"is_read"`
	SnoozedUntil    *time.Time `json:"snoozed_until"`
	CreatedAt       time.Time  `json:"created_at"`
}

// wireAlert mirrors Alert with string timestamps so naive ISO-8601 values
// from the backend can be accepted.
type wireAlert struct {
	ID              string    `json:"id"`
	Ticker          string    `json:"ticker"`
	AlertType       AlertType `json:"alert_type"`
	ThresholdValue  float64   `json:"threshold_value"`
	Message         *string   `json:"message"`
	IsActive        bool      `json:"is_active"`
	IsTriggered     bool      `json:"is_triggered"`
	LastTriggeredAt *string   `json:"last_triggered_at"`
	IsRead          bool      `json:"is_read"`
	SnoozedUntil    *string   `json:"snoozed_until"`
	CreatedAt       string    `json:"created_at"`
}

// UnmarshalJSON decodes the wire shape of an alert.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var w wireAlert
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	lastTriggered, err := parseOptionalTimestamp(w.LastTriggeredAt)
	if err != nil {
		return fmt.Errorf("last_triggered_at: %w", err)
	}
	snoozed, err := parseOptionalTimestamp(w.SnoozedUntil)
	if err != nil {
		return fmt.Errorf("snoozed_until: %w", err)
	}
	var created time.Time
	if w.CreatedAt != "" {
		created, err = ParseTimestamp(w.CreatedAt)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
	}

	*a = Alert{
		ID:              w.ID,
		Ticker:          w.Ticker,
		AlertType:       w.AlertType,
		ThresholdValue:  w.ThresholdValue,
		Message:         w.Message,
		IsActive:        w.IsActive,
		IsTriggered:     w.IsTriggered,
		LastTriggeredAt: lastTriggered,
		IsRead:          w.IsRead,
		SnoozedUntil:    snoozed,
		CreatedAt:       created,
	}
	return nil
}

// CreateAlertInput is the body of POST /alerts.
type CreateAlertInput struct {
	Ticker         string    `json:"ticker" validate:"required,max=32"`
	AlertType      AlertType `json:"alert_type" validate:"required,alert_type"`
	ThresholdValue float64   `json:"threshold_value" validate:"gte=0"`
	Message        *string   `json:"message,omitempty" validate:"omitempty,max=500"`
}

// AlertPatch is the body of PUT /alerts/{id}. Nil fields are left untouched.
// SnoozedUntil distinguishes "absent" from an explicit null that clears the
// snooze through ClearSnooze.
type AlertPatch struct {
	IsActive     *bool
	IsRead       *bool
	SnoozedUntil *time.Time
	ClearSnooze  bool
}

// IsEmpty reports whether the patch changes nothing.
func (p AlertPatch) IsEmpty() bool {
	return p.IsActive == nil && p.IsRead == nil && p.SnoozedUntil == nil && !p.ClearSnooze
}

// MarshalJSON encodes only the fields present in the patch.
func (p AlertPatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]interface{}, 3)
	if p.IsActive != nil {
		body["is_active"] = *p.IsActive
	}
	if p.IsRead != nil {
		body["is_read"] = *p.IsRead
	}
	if p.ClearSnooze {
		body["snoozed_until"] = nil
	} else if p.SnoozedUntil != nil {
		body["snoozed_until"] = p.SnoozedUntil.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(body)
}

// UnmarshalJSON decodes a partial update, keeping absent and null apart.
func (p *AlertPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = AlertPatch{}
	if v, ok := raw["is_active"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("is_active: %w", err)
		}
		p.IsActive = &b
	}
	if v, ok := raw["is_read"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("is_read: %w", err)
		}
		p.IsRead = &b
	}
	if v, ok := raw["snoozed_until"]; ok {
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("snoozed_until: %w", err)
		}
		if s == nil {
			p.ClearSnooze = true
		} else {
			t, err := ParseTimestamp(*s)
			if err != nil {
				return fmt.Errorf("snoozed_until: %w", err)
			}
			p.SnoozedUntil = &t
		}
	}
	return nil
}

// Apply returns a copy of a with the patch applied.
func (p AlertPatch) Apply(a Alert) Alert {
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	if p.IsRead != nil {
		a.IsRead = *p.IsRead
	}
	if p.ClearSnooze {
		a.SnoozedUntil = nil
	} else if p.SnoozedUntil != nil {
		t := *p.SnoozedUntil
		a.SnoozedUntil = &t
	}
	return a
}

// naive layouts accepted when the backend omits the zone; read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses RFC 3339 or zone-less ISO-8601 timestamps.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func parseOptionalTimestamp(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
