package alerts

import (
	"sync"
	"time"

	"alertdash/internal/models"
	"alertdash/internal/snapshot"
)

// View is the derived, never persisted projection of one alert.
type View struct {
	Alert   models.Alert          `json:"alert"`
	Metrics *models.MarketMetrics `json:"metrics,omitempty"`
	Result  Result                `json:"result"`
	State   ViewState             `json:"state"`
}

// Recomputation is the output of one evaluation pass.
type Recomputation struct {
	Views       []View    `json:"views"`
	BadgeActive int       `json:"badge_active"`
	TableActive int       `json:"table_active"`
	At          time.Time `json:"at"`
}

// Active returns the active count for the given scope.
func (r Recomputation) Active(scope Scope) int {
	if scope == ScopeTable {
		return r.TableActive
	}
	return r.BadgeActive
}

// CountByState tallies views per state.
func (r Recomputation) CountByState() map[ViewState]int {
	counts := make(map[ViewState]int, 4)
	for _, v := range r.Views {
		counts[v.State]++
	}
	return counts
}

// Engine derives alert views from alerts and a snapshot. It holds no state;
// the same inputs always produce the same output.
type Engine struct{}

// NewEngine creates an engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Recompute evaluates every alert, derives its state and folds the active
// counts for both scopes. Views keep the order of alerts.
func (e *Engine) Recompute(alerts []models.Alert, snap *snapshot.Snapshot, now time.Time) Recomputation {
	out := Recomputation{
		Views: make([]View, 0, len(alerts)),
		At:    now,
	}

	for _, alert := range alerts {
		metrics := snap.Lookup(alert.Ticker)
		result := Evaluate(alert, metrics)
		out.Views = append(out.Views, View{
			Alert:   alert,
			Metrics: metrics,
			Result:  result,
			State:   DeriveState(alert, result, now),
		})
	}

	out.BadgeActive = CountActive(alerts, snap, now, ScopeBadge)
	out.TableActive = CountActive(alerts, snap, now, ScopeTable)
	return out
}

type memoKey struct {
	revision uint64
	snap     *snapshot.Snapshot
	now      time.Time
}

// Memo caches the last recomputation keyed on the alert list revision, the
// snapshot identity and the evaluation time. Snapshots are never mutated
// after publication, so pointer identity is a safe key.
type Memo struct {
	engine *Engine

	mu    sync.Mutex
	key   memoKey
	last  Recomputation
	valid bool
	hits  int
}

// NewMemo wraps an engine with a single-entry cache.
func NewMemo(engine *Engine) *Memo {
	return &Memo{engine: engine}
}

// Recompute returns the cached result when inputs are identical. Each call
// gets its own Views slice.
func (m *Memo) Recompute(revision uint64, alerts []models.Alert, snap *snapshot.Snapshot, now time.Time) Recomputation {
	key := memoKey{revision: revision, snap: snap, now: now}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.key.revision == key.revision && m.key.snap == key.snap && m.key.now.Equal(key.now) {
		m.hits++
		return m.last.clone()
	}

	m.last = m.engine.Recompute(alerts, snap, now)
	m.key = key
	m.valid = true
	return m.last.clone()
}

// clone copies the views so callers may reorder or filter them.
func (r Recomputation) clone() Recomputation {
	r.Views = append([]View(nil), r.Views...)
	return r
}

// Hits returns how many calls were served from the cache.
func (m *Memo) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}
