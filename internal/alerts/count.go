package alerts

import (
	"fmt"
	"time"

	"alertdash/internal/models"
	"alertdash/internal/snapshot"
)

// Scope selects which rule types the active count evaluates.
//
// The notification badge has only ever counted simple price thresholds while
// the detail table evaluates every rule type, so the two can disagree for the
// same alert list. Both scopes are kept; callers choose one explicitly.
type Scope string

const (
	// ScopeBadge counts PRICE_ABOVE and PRICE_BELOW alerts only.
	ScopeBadge Scope = "badge"
	// ScopeTable counts every rule type the evaluator understands.
	ScopeTable Scope = "table"
)

// ParseScope parses a scope name; empty means ScopeBadge.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeBadge:
		return ScopeBadge, nil
	case ScopeTable:
		return ScopeTable, nil
	}
	return "", fmt.Errorf("unknown count scope %q (want badge or table)", s)
}

// Includes reports whether the scope evaluates the given alert type.
func (s Scope) Includes(t models.AlertType) bool {
	if s == ScopeTable {
		return true
	}
	return t == models.AlertPriceAbove || t == models.AlertPriceBelow
}

// CountActive counts unread, unsnoozed alerts whose rule triggers against
// the snapshot. Alert types outside scope are never counted.
func CountActive(alerts []models.Alert, snap *snapshot.Snapshot, now time.Time, scope Scope) int {
	var metrics map[string]models.MarketMetrics
	if snap != nil {
		metrics = snap.Metrics
	}

	count := 0
	for _, alert := range alerts {
		if alert.IsRead || IsSnoozed(alert, now) || !scope.Includes(alert.AlertType) {
			continue
		}
		if EvaluateIn(alert, metrics) == Triggered {
			count++
		}
	}
	return count
}
