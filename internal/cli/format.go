package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertdash/internal/models"
	"alertdash/pkg/utils"
)

// FormatMetric formats an optional market metric.
func FormatMetric(v *float64) string {
	return utils.FormatPrice(v)
}

// FormatThreshold formats an alert threshold for its rule type.
func FormatThreshold(a models.Alert) string {
	switch a.AlertType {
	case models.AlertSMA50AboveSMA200, models.AlertSMA50BelowSMA200:
		return "-"
	case models.AlertSMA50ApproachingSMA200:
		return "≤" + strconv.FormatFloat(a.ThresholdValue, 'f', -1, 64) + "%"
	case models.AlertPercentChangeUp, models.AlertPercentChangeDown:
		return strconv.FormatFloat(a.ThresholdValue, 'f', -1, 64) + "%"
	default:
		return utils.FormatNumber(a.ThresholdValue, 2)
	}
}

// FormatGap formats the SMA50 distance from SMA200 as a percentage of
// SMA200.
func FormatGap(sma50, sma200 *float64) string {
	if sma50 == nil || sma200 == nil || *sma200 == 0 {
		return "-"
	}
	return utils.FormatPercent((*sma50 - *sma200) / *sma200 * 100)
}

// FormatAlertType returns a short label for an alert type.
func FormatAlertType(t models.AlertType) string {
	switch t {
	case models.AlertPriceAbove:
		return "price >"
	case models.AlertPriceBelow:
		return "price <"
	case models.AlertPercentChangeUp:
		return "change ↑"
	case models.AlertPercentChangeDown:
		return "change ↓"
	case models.AlertSMA50AboveSMA200:
		return "golden cross"
	case models.AlertSMA50BelowSMA200:
		return "death cross"
	case models.AlertSMA50ApproachingSMA200:
		return "sma50 → sma200"
	default:
		return string(t)
	}
}

// FormatTime formats a time in the local zone, "-" for nil.
func FormatTime(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(layout)
}

// FormatSnooze describes the time left on an alert's snooze.
func FormatSnooze(a models.Alert, now time.Time) string {
	if a.SnoozedUntil == nil {
		return ""
	}
	return "for " + utils.FormatUntil(*a.SnoozedUntil, now)
}

// ShortID shortens an alert id for table display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ParseSnoozeDuration parses a Go duration, also accepting a leading day
// count such as "2d" or "1d12h".
func ParseSnoozeDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var days time.Duration
	if i := strings.IndexByte(s, 'd'); i > 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		days = time.Duration(n) * 24 * time.Hour
		s = s[i+1:]
	}

	var rest time.Duration
	if s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		rest = d
	}

	total := days + rest
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}
