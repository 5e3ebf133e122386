// Package alerts evaluates alert rules against a market snapshot and owns the
// local alert list.
package alerts

import (
	"math"

	"alertdash/internal/models"
)

// Result is the outcome of evaluating one alert rule.
type Result int

const (
	// Indeterminate means a required input was missing or unusable.
	Indeterminate Result = iota
	// NotTriggered means the condition is known to be false.
	NotTriggered
	// Triggered means the condition is known to be true.
	Triggered
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Triggered:
		return "triggered"
	case NotTriggered:
		return "not_triggered"
	default:
		return "indeterminate"
	}
}

// MarshalText encodes the result name.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Evaluate checks an alert condition against the metrics for its ticker.
// metrics is nil when the ticker has no snapshot entry.
func Evaluate(alert models.Alert, metrics *models.MarketMetrics) Result {
	if metrics == nil {
		return Indeterminate
	}

	switch alert.AlertType {
	case models.AlertPriceAbove:
		price, ok := value(metrics.Price)
		if !ok {
			return Indeterminate
		}
		return compare(price > alert.ThresholdValue)

	case models.AlertPriceBelow:
		price, ok := value(metrics.Price)
		if !ok {
			return Indeterminate
		}
		return compare(price < alert.ThresholdValue)

	case models.AlertPercentChangeUp, models.AlertPercentChangeDown:
		// No reference price is defined for percent-change rules yet.
		return Indeterminate

	case models.AlertSMA50AboveSMA200:
		sma50, sma200, ok := averages(metrics)
		if !ok {
			return Indeterminate
		}
		return compare(sma50 > sma200)

	case models.AlertSMA50BelowSMA200:
		sma50, sma200, ok := averages(metrics)
		if !ok {
			return Indeterminate
		}
		return compare(sma50 < sma200)

	case models.AlertSMA50ApproachingSMA200:
		sma50, sma200, ok := averages(metrics)
		if !ok || sma200 == 0 {
			return Indeterminate
		}
		gap := math.Abs(sma50-sma200) / sma200 * 100
		return compare(gap <= alert.ThresholdValue)

	default:
		return Indeterminate
	}
}

// EvaluateIn looks up the alert's ticker in the snapshot metrics and
// evaluates it.
func EvaluateIn(alert models.Alert, metrics map[string]models.MarketMetrics) Result {
	m, ok := metrics[alert.Ticker]
	if !ok {
		return Indeterminate
	}
	return Evaluate(alert, &m)
}

func compare(cond bool) Result {
	if cond {
		return Triggered
	}
	return NotTriggered
}

func value(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

func averages(m *models.MarketMetrics) (float64, float64, bool) {
	sma50, ok := value(m.SMA50)
	if !ok {
		return 0, 0, false
	}
	sma200, ok := value(m.SMA200)
	if !ok {
		return 0, 0, false
	}
	return sma50, sma200, true
}
