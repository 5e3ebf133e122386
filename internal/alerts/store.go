package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "alertdash/internal/errors"
	"alertdash/internal/logging"
	"alertdash/internal/models"
)

// Backend is the alert persistence collaborator.
type Backend interface {
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	CreateAlert(ctx context.Context, in models.CreateAlertInput) (models.Alert, error)
	UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	DeleteAllAlerts(ctx context.Context) error
}

// MutationPolicy decides how update, delete and clear touch the local list.
// Create is always pessimistic.
type MutationPolicy string

const (
	// PolicyRollback applies the change locally, then restores the previous
	// local state if the backend call fails.
	PolicyRollback MutationPolicy = "rollback"
	// PolicyPessimistic changes the local list only after the backend
	// accepted the change.
	PolicyPessimistic MutationPolicy = "pessimistic"
	// PolicyLegacy applies the change locally and keeps it even when the
	// backend call fails, leaving the list diverged from the server.
	PolicyLegacy MutationPolicy = "legacy"
)

// ParseMutationPolicy parses a policy name; empty means PolicyRollback.
func ParseMutationPolicy(s string) (MutationPolicy, error) {
	switch MutationPolicy(s) {
	case "", PolicyRollback:
		return PolicyRollback, nil
	case PolicyPessimistic:
		return PolicyPessimistic, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	}
	return "", fmt.Errorf("unknown mutation policy %q (want rollback, pessimistic or legacy)", s)
}

type listFetch struct {
	done   chan struct{}
	alerts []models.Alert
	err    error
}

// Store owns the canonical local alert list and mirrors mutations to the
// backend.
type Store struct {
	backend Backend
	policy  MutationPolicy
	logger  zerolog.Logger

	mu       sync.Mutex
	alerts   []models.Alert
	revision uint64
	loaded   bool
	inflight *listFetch
	nextSeq  uint64
	applied  uint64

	// mutations counts local changes only; loads bump revision alone.
	mutations uint64
}

// NewStore creates a store over the backend.
func NewStore(backend Backend, policy MutationPolicy, logger zerolog.Logger) *Store {
	if policy == "" {
		policy = PolicyRollback
	}
	return &Store{
		backend: backend,
		policy:  policy,
		logger:  logger.With().Str("component", "alerts").Logger(),
	}
}

// Policy returns the mutation policy in effect.
func (s *Store) Policy() MutationPolicy {
	return s.policy
}

// Alerts returns a copy of the local list.
func (s *Store) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.alerts...)
}

// Snapshot returns a copy of the local list together with its revision.
func (s *Store) Snapshot() ([]models.Alert, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.alerts...), s.revision
}

// Revision increments on every change to the local list.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Get returns the alert with the given id.
func (s *Store) Get(id string) (models.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.Alert{}, false
	}
	return s.alerts[i], true
}

// Load fetches the alert list. Without force it joins a fetch in flight or
// returns the already loaded list. A response is dropped if a newer one was
// applied or a local mutation happened while it was in flight. Another load
// completing in between does not count as a mutation.
func (s *Store) Load(ctx context.Context, force bool) ([]models.Alert, error) {
	s.mu.Lock()
	if !force {
		if f := s.inflight; f != nil {
			s.mu.Unlock()
			select {
			case <-f.done:
				return f.alerts, f.err
			case <-ctx.Done():
				return s.Alerts(), ctx.Err()
			}
		}
		if s.loaded {
			list := append([]models.Alert(nil), s.alerts...)
			s.mu.Unlock()
			return list, nil
		}
	}

	s.nextSeq++
	seq := s.nextSeq
	startMut := s.mutations
	f := &listFetch{done: make(chan struct{})}
	s.inflight = f
	s.mu.Unlock()

	list, err := s.backend.ListAlerts(ctx)

	s.mu.Lock()
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Msg("Failed to load alerts")
	case seq <= s.applied:
		s.logger.Debug().Uint64("seq", seq).Msg("Discarding stale alert list")
	case s.mutations != startMut:
		s.logger.Debug().Uint64("seq", seq).Msg("Discarding alert list fetched before a local change")
	default:
		s.alerts = append([]models.Alert(nil), list...)
		s.applied = seq
		s.loaded = true
		s.revision++
	}
	f.alerts = append([]models.Alert(nil), s.alerts...)
	f.err = err
	if s.inflight == f {
		s.inflight = nil
	}
	s.mu.Unlock()
	close(f.done)

	return f.alerts, f.err
}

// Create validates the input and sends it to the backend. The alert is
// appended locally only after the backend returns it.
func (s *Store) Create(ctx context.Context, in models.CreateAlertInput) (models.Alert, error) {
	in = NormalizeCreate(in)
	if err := ValidateCreate(in); err != nil {
		return models.Alert{}, err
	}

	alert, err := s.backend.CreateAlert(ctx, in)
	if err != nil {
		s.logger.Error().Err(err).
			Str("ticker", in.Ticker).
			Str("alert_type", string(in.AlertType)).
			Msg("Failed to create alert")
		return models.Alert{}, err
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.changed()
	s.mu.Unlock()

	s.logger.Info().
		Str("alert_id", alert.ID).
		Str("ticker", alert.Ticker).
		Str("alert_type", string(alert.AlertType)).
		Float64("threshold", alert.ThresholdValue).
		Msg("Alert created")
	return alert, nil
}

// Update applies a partial patch to one alert.
func (s *Store) Update(ctx context.Context, id string, patch models.AlertPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return apperrors.Wrapf(apperrors.ErrAlertNotFound, "update %s", id)
	}
	prev := s.alerts[i]
	if s.policy != PolicyPessimistic {
		s.alerts[i] = patch.Apply(prev)
		s.changed()
	}
	s.mu.Unlock()

	updated, err := s.backend.UpdateAlert(ctx, id, patch)
	if err != nil {
		rolledBack := false
		if s.policy == PolicyRollback {
			s.mu.Lock()
			if j := s.indexOf(id); j >= 0 {
				s.alerts[j] = revertPatch(s.alerts[j], prev, patch)
				s.changed()
				rolledBack = true
			}
			s.mu.Unlock()
		}
		return s.failed("update", id, rolledBack, err)
	}

	s.mu.Lock()
	if j := s.indexOf(id); j >= 0 {
		if updated.ID == id {
			s.alerts[j] = updated
		} else {
			s.alerts[j] = patch.Apply(s.alerts[j])
		}
		s.changed()
	}
	s.mu.Unlock()
	return nil
}

// Delete removes one alert.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return apperrors.Wrapf(apperrors.ErrAlertNotFound, "delete %s", id)
	}
	prev := s.alerts[i]
	if s.policy != PolicyPessimistic {
		s.removeAt(i)
	}
	s.mu.Unlock()

	if err := s.backend.DeleteAlert(ctx, id); err != nil {
		rolledBack := false
		if s.policy == PolicyRollback {
			s.mu.Lock()
			if s.indexOf(id) < 0 {
				s.insertAt(i, prev)
				rolledBack = true
			}
			s.mu.Unlock()
		}
		return s.failed("delete", id, rolledBack, err)
	}

	if s.policy == PolicyPessimistic {
		s.mu.Lock()
		if j := s.indexOf(id); j >= 0 {
			s.removeAt(j)
		}
		s.mu.Unlock()
	}

	s.logger.Info().Str("alert_id", id).Msg("Alert deleted")
	return nil
}

// Clear removes every alert.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	prev := s.alerts
	if s.policy != PolicyPessimistic {
		s.alerts = nil
		s.changed()
	}
	s.mu.Unlock()

	if err := s.backend.DeleteAllAlerts(ctx); err != nil {
		rolledBack := false
		if s.policy == PolicyRollback {
			s.mu.Lock()
			// Alerts created while the request was in flight are kept.
			s.alerts = append(append([]models.Alert(nil), prev...), s.alerts...)
			s.changed()
			rolledBack = true
			s.mu.Unlock()
		}
		return s.failed("clear", "", rolledBack, err)
	}

	if s.policy == PolicyPessimistic {
		s.mu.Lock()
		s.alerts = nil
		s.changed()
		s.mu.Unlock()
	}

	s.logger.Info().Int("removed", len(prev)).Msg("Alerts cleared")
	return nil
}

// MarkRead acknowledges an alert.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	read := true
	return s.Update(ctx, id, models.AlertPatch{IsRead: &read})
}

// MarkUnread clears the acknowledgement.
func (s *Store) MarkUnread(ctx context.Context, id string) error {
	read := false
	return s.Update(ctx, id, models.AlertPatch{IsRead: &read})
}

// Snooze suppresses an alert until the given time.
func (s *Store) Snooze(ctx context.Context, id string, until time.Time) error {
	return s.Update(ctx, id, models.AlertPatch{SnoozedUntil: &until})
}

// Unsnooze clears the snooze.
func (s *Store) Unsnooze(ctx context.Context, id string) error {
	return s.Update(ctx, id, models.AlertPatch{ClearSnooze: true})
}

// SetActive toggles the server-level enable flag.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.Update(ctx, id, models.AlertPatch{IsActive: &active})
}

func (s *Store) failed(op, id string, rolledBack bool, err error) error {
	logger := logging.WithOperation(s.logger, op)
	if id != "" {
		logger = logging.WithAlertID(logger, id)
	}
	event := logger.Error().Err(err).
		Str("policy", string(s.policy)).
		Bool("rolled_back", rolledBack)
	if s.policy == PolicyLegacy {
		event.Msg("Alert mutation failed; local list diverges from server")
	} else {
		event.Msg("Alert mutation failed")
	}
	return apperrors.NewMutationError(op, id, rolledBack, err)
}

// changed records a local mutation of the list.
func (s *Store) changed() {
	s.revision++
	s.mutations++
}

// revertPatch undoes the fields of a failed patch on cur, restoring them from
// prev. A field another update has changed since is left alone.
func revertPatch(cur, prev models.Alert, patch models.AlertPatch) models.Alert {
	if patch.IsActive != nil && cur.IsActive == *patch.IsActive {
		cur.IsActive = prev.IsActive
	}
	if patch.IsRead != nil && cur.IsRead == *patch.IsRead {
		cur.IsRead = prev.IsRead
	}
	if patch.ClearSnooze || patch.SnoozedUntil != nil {
		want := patch.SnoozedUntil
		if patch.ClearSnooze {
			want = nil
		}
		if sameTime(cur.SnoozedUntil, want) {
			cur.SnoozedUntil = prev.SnoozedUntil
		}
	}
	return cur
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Store) indexOf(id string) int {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.alerts = append(s.alerts[:i:i], s.alerts[i+1:]...)
	s.changed()
}

func (s *Store) insertAt(i int, a models.Alert) {
	if i > len(s.alerts) {
		i = len(s.alerts)
	}
	list := make([]models.Alert, 0, len(s.alerts)+1)
	list = append(list, s.alerts[:i]...)
	list = append(list, a)
	list = append(list, s.alerts[i:]...)
	s.alerts = list
	s.changed()
}
