package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alertdash/internal/alerts"
	apperrors "alertdash/internal/errors"
	"alertdash/internal/logging"
	"alertdash/internal/notify"
	"alertdash/internal/snapshot"
)

// RefreshJob reloads alerts and market data, recomputes alert views and
// reports what changed since the previous run.
type RefreshJob struct {
	log      zerolog.Logger
	store    *alerts.Store
	provider *snapshot.Provider
	memo     *alerts.Memo
	scope    alerts.Scope
	now      func() time.Time
	onUpdate func(alerts.Recomputation)
	notifier notify.Notifier

	mu     sync.Mutex
	states map[string]alerts.ViewState
	active int
	runs   int
}

// RefreshConfig holds configuration for the refresh job
type RefreshConfig struct {
	Log      zerolog.Logger
	Store    *alerts.Store
	Provider *snapshot.Provider
	Memo     *alerts.Memo
	Scope    alerts.Scope

	// Now overrides the evaluation clock; nil means time.Now.
	Now func() time.Time
	// OnUpdate receives every recomputation, changed or not.
	OnUpdate func(alerts.Recomputation)
	// Notifier is told about alerts that start triggering after the first
	// run; nil disables notifications.
	Notifier notify.Notifier
}

// NewRefreshJob creates a new refresh job
func NewRefreshJob(cfg RefreshConfig) *RefreshJob {
	j := &RefreshJob{
		log:      cfg.Log.With().Str("job", "refresh").Logger(),
		store:    cfg.Store,
		provider: cfg.Provider,
		memo:     cfg.Memo,
		scope:    cfg.Scope,
		now:      cfg.Now,
		onUpdate: cfg.OnUpdate,
		notifier: cfg.Notifier,
		states:   make(map[string]alerts.ViewState),
	}
	if j.memo == nil {
		j.memo = alerts.NewMemo(alerts.NewEngine())
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.scope == "" {
		j.scope = alerts.ScopeBadge
	}
	return j
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh"
}

// Run fetches alerts and the snapshot concurrently, then recomputes. A
// failed fetch leaves the previous data in place; the views are still
// recomputed and the error is returned.
func (j *RefreshJob) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	var alertErr, snapErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, alertErr = j.store.Load(ctx, true)
	}()
	go func() {
		defer wg.Done()
		_, snapErr = j.provider.Load(ctx, true)
	}()
	wg.Wait()

	list, revision := j.store.Snapshot()
	rec := j.memo.Recompute(revision, list, j.provider.Current(), j.now())
	triggered := j.record(rec)

	if j.onUpdate != nil {
		j.onUpdate(rec)
	}
	j.sendNotifications(ctx, triggered, rec.At)

	return apperrors.Join(
		apperrors.Wrap(alertErr, "loading alerts"),
		apperrors.Wrap(snapErr, "loading snapshot"),
	)
}

// record logs state transitions and active count changes against the
// previous run and returns the views that entered the triggered state.
// The first run only establishes the baseline.
func (j *RefreshJob) record(rec alerts.Recomputation) []alerts.View {
	j.mu.Lock()
	defer j.mu.Unlock()

	first := j.runs == 0
	j.runs++

	var triggered []alerts.View
	next := make(map[string]alerts.ViewState, len(rec.Views))
	for _, v := range rec.Views {
		next[v.Alert.ID] = v.State
		prev, seen := j.states[v.Alert.ID]
		if first || prev == v.State {
			continue
		}
		if v.State == alerts.StateTriggered {
			triggered = append(triggered, v)
		}
		if seen {
			logging.LogAlertState(j.log, v.Alert.ID, v.Alert.Ticker, string(v.Alert.AlertType), string(prev), string(v.State))
		}
	}
	j.states = next

	active := rec.Active(j.scope)
	if first {
		j.log.Info().
			Int("alerts", len(rec.Views)).
			Int("active", active).
			Str("scope", string(j.scope)).
			Msg("Initial alert state")
	} else if active != j.active {
		j.log.Info().
			Int("from", j.active).
			Int("to", active).
			Str("scope", string(j.scope)).
			Msg("Active alert count changed")
	}
	j.active = active
	return triggered
}

func (j *RefreshJob) sendNotifications(ctx context.Context, views []alerts.View, at time.Time) {
	if j.notifier == nil {
		return
	}
	for _, v := range views {
		if err := j.notifier.Send(ctx, notify.Triggered(v.Alert, v.Metrics, at)); err != nil {
			logger := logging.WithTicker(logging.WithAlertID(j.log, v.Alert.ID), v.Alert.Ticker)
			logger.Warn().Err(err).Msg("Notification failed")
		}
	}
}

// Active returns the active count from the last run.
func (j *RefreshJob) Active() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}
