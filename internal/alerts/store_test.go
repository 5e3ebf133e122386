package alerts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "alertdash/internal/errors"
	"alertdash/internal/models"
)

var errBackend = errors.New("backend unavailable")

// fakeBackend is an in-memory Backend whose calls can be made to fail or
// block.
type fakeBackend struct {
	mu      sync.Mutex
	alerts  []models.Alert
	nextID  int
	fail    bool
	lists   int
	release chan struct{}
	started chan struct{}
}

func newFakeBackend(alerts ...models.Alert) *fakeBackend {
	return &fakeBackend{alerts: alerts, nextID: len(alerts) + 1}
}

func (b *fakeBackend) setFail(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = fail
}

func (b *fakeBackend) failing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail
}

func (b *fakeBackend) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	b.mu.Lock()
	b.lists++
	release, started := b.release, b.started
	list := append([]models.Alert(nil), b.alerts...)
	b.mu.Unlock()

	// The list is captured before blocking, as a server would have answered.
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if b.failing() {
		return nil, errBackend
	}
	return list, nil
}

func (b *fakeBackend) CreateAlert(ctx context.Context, in models.CreateAlertInput) (models.Alert, error) {
	if b.failing() {
		return models.Alert{}, errBackend
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a := models.Alert{
		ID:             fmt.Sprintf("srv-%d", b.nextID),
		Ticker:         in.Ticker,
		AlertType:      in.AlertType,
		ThresholdValue: in.ThresholdValue,
		Message:        in.Message,
		IsActive:       true,
		CreatedAt:      testNow,
	}
	b.nextID++
	b.alerts = append(b.alerts, a)
	return a, nil
}

func (b *fakeBackend) UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error) {
	if b.failing() {
		return models.Alert{}, errBackend
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.alerts {
		if b.alerts[i].ID == id {
			b.alerts[i] = patch.Apply(b.alerts[i])
			return b.alerts[i], nil
		}
	}
	return models.Alert{}, apperrors.NewAPIError("PUT", "/alerts/"+id, 404, "not found")
}

func (b *fakeBackend) DeleteAlert(ctx context.Context, id string) error {
	if b.failing() {
		return errBackend
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.alerts {
		if b.alerts[i].ID == id {
			b.alerts = append(b.alerts[:i], b.alerts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *fakeBackend) DeleteAllAlerts(ctx context.Context) error {
	if b.failing() {
		return errBackend
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = nil
	return nil
}

func seedAlerts() []models.Alert {
	return []models.Alert{
		{ID: "a1", Ticker: "AAPL", AlertType: models.AlertPriceAbove, ThresholdValue: 150, IsActive: true},
		{ID: "a2", Ticker: "MSFT", AlertType: models.AlertPriceBelow, ThresholdValue: 300, IsActive: true},
		{ID: "a3", Ticker: "NVDA", AlertType: models.AlertSMA50AboveSMA200, IsActive: true},
	}
}

func loadedStore(t *testing.T, policy MutationPolicy) (*Store, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend(seedAlerts()...)
	store := NewStore(backend, policy, zerolog.Nop())
	_, err := store.Load(context.Background(), false)
	require.NoError(t, err)
	return store, backend
}

func ids(alerts []models.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

func TestStoreLoadCoalesces(t *testing.T) {
	backend := newFakeBackend(seedAlerts()...)
	store := NewStore(backend, PolicyRollback, zerolog.Nop())
	ctx := context.Background()

	list, err := store.Load(ctx, false)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = store.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.lists, "loaded data is reused")

	_, err = store.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.lists, "force always fetches")
}

func TestStoreLoadJoinsInflightFetch(t *testing.T) {
	backend := newFakeBackend(seedAlerts()...)
	backend.release = make(chan struct{})
	backend.started = make(chan struct{}, 1)
	store := NewStore(backend, PolicyRollback, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]models.Alert, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = store.Load(ctx, false)
	}()
	<-backend.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = store.Load(ctx, false)
	}()
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, 1, backend.lists)
	assert.Len(t, results[0], 3)
	assert.Len(t, results[1], 3)
}

func TestStoreLoadFailureKeepsList(t *testing.T) {
	store, backend := loadedStore(t, PolicyRollback)
	backend.setFail(true)

	list, err := store.Load(context.Background(), true)
	require.ErrorIs(t, err, errBackend)
	assert.Len(t, list, 3)
	assert.Len(t, store.Alerts(), 3)
}

func TestStoreLoadDiscardsListAfterLocalChange(t *testing.T) {
	store, backend := loadedStore(t, PolicyRollback)
	release := make(chan struct{})
	backend.mu.Lock()
	backend.release = release
	backend.started = make(chan struct{}, 1)
	backend.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.Load(context.Background(), true)
	}()
	<-backend.started

	// The in-flight list still contains a2.
	require.NoError(t, store.Delete(context.Background(), "a2"))
	close(release)
	<-done

	assert.Equal(t, []string{"a1", "a3"}, ids(store.Alerts()))
}

func TestStoreCreate(t *testing.T) {
	store, _ := loadedStore(t, PolicyRollback)
	rev := store.Revision()

	msg := "breakout"
	alert, err := store.Create(context.Background(), models.CreateAlertInput{
		Ticker:         " AMZN ",
		AlertType:      "price_above",
		ThresholdValue: 180,
		Message:        &msg,
	})
	require.NoError(t, err)
	assert.Equal(t, "AMZN", alert.Ticker)
	assert.Equal(t, models.AlertPriceAbove, alert.AlertType)
	assert.NotEmpty(t, alert.ID)

	list := store.Alerts()
	require.Len(t, list, 4)
	assert.Equal(t, alert.ID, list[3].ID)
	assert.Greater(t, store.Revision(), rev)
}

func TestStoreCreateCrossoverZeroesThreshold(t *testing.T) {
	store, _ := loadedStore(t, PolicyRollback)
	alert, err := store.Create(context.Background(), models.CreateAlertInput{
		Ticker:         "AMD",
		AlertType:      models.AlertSMA50BelowSMA200,
		ThresholdValue: 7,
	})
	require.NoError(t, err)
	assert.Zero(t, alert.ThresholdValue)
}

func TestStoreCreateFailureLeavesListUntouched(t *testing.T) {
	for _, policy := range []MutationPolicy{PolicyRollback, PolicyPessimistic, PolicyLegacy} {
		t.Run(string(policy), func(t *testing.T) {
			store, backend := loadedStore(t, policy)
			backend.setFail(true)
			rev := store.Revision()

			_, err := store.Create(context.Background(), models.CreateAlertInput{
				Ticker: "AMZN", AlertType: models.AlertPriceAbove, ThresholdValue: 1,
			})
			require.ErrorIs(t, err, errBackend)
			assert.Len(t, store.Alerts(), 3)
			assert.Equal(t, rev, store.Revision())
		})
	}
}

func TestStoreCreateValidation(t *testing.T) {
	store, _ := loadedStore(t, PolicyRollback)
	ctx := context.Background()

	tests := []struct {
		name  string
		input models.CreateAlertInput
		field string
	}{
		{"missing ticker", models.CreateAlertInput{Ticker: "  ", AlertType: models.AlertPriceAbove, ThresholdValue: 1}, "ticker"},
		{"unknown type", models.CreateAlertInput{Ticker: "AAPL", AlertType: "PRICE_NEAR", ThresholdValue: 1}, "alert_type"},
		{"negative threshold", models.CreateAlertInput{Ticker: "AAPL", AlertType: models.AlertPriceAbove, ThresholdValue: -1}, "threshold_value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.input)
			require.ErrorIs(t, err, apperrors.ErrInvalidAlert)
			var verr *apperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Len(t, store.Alerts(), 3)
}

func TestStoreUpdateSuccess(t *testing.T) {
	for _, policy := range []MutationPolicy{PolicyRollback, PolicyPessimistic, PolicyLegacy} {
		t.Run(string(policy), func(t *testing.T) {
			store, backend := loadedStore(t, policy)
			require.NoError(t, store.MarkRead(context.Background(), "a1"))

			got, ok := store.Get("a1")
			require.True(t, ok)
			assert.True(t, got.IsRead)
			assert.True(t, backend.alerts[0].IsRead)
		})
	}
}

func TestStoreUpdateFailure(t *testing.T) {
	tests := []struct {
		policy       MutationPolicy
		wantRead     bool
		wantRollback bool
	}{
		{PolicyRollback, false, true},
		{PolicyPessimistic, false, false},
		{PolicyLegacy, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			store, backend := loadedStore(t, tt.policy)
			backend.setFail(true)

			err := store.MarkRead(context.Background(), "a1")
			require.ErrorIs(t, err, errBackend)

			var merr *apperrors.MutationError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, "update", merr.Op)
			assert.Equal(t, "a1", merr.AlertID)
			assert.Equal(t, tt.wantRollback, merr.RolledBack)

			got, _ := store.Get("a1")
			assert.Equal(t, tt.wantRead, got.IsRead)
		})
	}
}

func TestStoreUpdateUnknownID(t *testing.T) {
	store, backend := loadedStore(t, PolicyRollback)
	backend.setFail(true)
	err := store.SetActive(context.Background(), "missing", false)
	assert.ErrorIs(t, err, apperrors.ErrAlertNotFound)
}

func TestStoreSnoozeAndUnsnooze(t *testing.T) {
	store, _ := loadedStore(t, PolicyRollback)
	ctx := context.Background()
	until := testNow.Add(2 * time.Hour)

	require.NoError(t, store.Snooze(ctx, "a2", until))
	got, _ := store.Get("a2")
	require.NotNil(t, got.SnoozedUntil)
	assert.True(t, got.SnoozedUntil.Equal(until))
	assert.True(t, IsSnoozed(got, testNow))

	require.NoError(t, store.Unsnooze(ctx, "a2"))
	got, _ = store.Get("a2")
	assert.Nil(t, got.SnoozedUntil)
}

func TestStoreDeleteFailure(t *testing.T) {
	tests := []struct {
		policy  MutationPolicy
		wantIDs []string
	}{
		{PolicyRollback, []string{"a1", "a2", "a3"}},
		{PolicyPessimistic, []string{"a1", "a2", "a3"}},
		{PolicyLegacy, []string{"a1", "a3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			store, backend := loadedStore(t, tt.policy)
			backend.setFail(true)

			err := store.Delete(context.Background(), "a2")
			require.ErrorIs(t, err, errBackend)
			assert.Equal(t, tt.wantIDs, ids(store.Alerts()), "order is preserved")
		})
	}
}

func TestStoreDeleteSuccess(t *testing.T) {
	for _, policy := range []MutationPolicy{PolicyRollback, PolicyPessimistic, PolicyLegacy} {
		t.Run(string(policy), func(t *testing.T) {
			store, backend := loadedStore(t, policy)
			require.NoError(t, store.Delete(context.Background(), "a2"))
			assert.Equal(t, []string{"a1", "a3"}, ids(store.Alerts()))
			assert.Len(t, backend.alerts, 2)
		})
	}
}

func TestStoreClear(t *testing.T) {
	tests := []struct {
		policy  MutationPolicy
		fail    bool
		wantLen int
	}{
		{PolicyRollback, false, 0},
		{PolicyRollback, true, 3},
		{PolicyPessimistic, false, 0},
		{PolicyPessimistic, true, 3},
		{PolicyLegacy, false, 0},
		{PolicyLegacy, true, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/fail=%v", tt.policy, tt.fail), func(t *testing.T) {
			store, backend := loadedStore(t, tt.policy)
			backend.setFail(tt.fail)

			err := store.Clear(context.Background())
			if tt.fail {
				require.ErrorIs(t, err, errBackend)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, store.Alerts(), tt.wantLen)
		})
	}
}

func TestParseMutationPolicy(t *testing.T) {
	p, err := ParseMutationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyRollback, p)

	for _, name := range []string{"rollback", "pessimistic", "legacy"} {
		p, err := ParseMutationPolicy(name)
		require.NoError(t, err)
		assert.Equal(t, MutationPolicy(name), p)
	}

	_, err = ParseMutationPolicy("optimistic")
	assert.Error(t, err)
}

// gatedList is one scripted ListAlerts response held until release closes.
type gatedList struct {
	alerts  []models.Alert
	release chan struct{}
}

// sequencedBackend answers successive ListAlerts calls with scripted
// responses, each behind its own gate.
type sequencedBackend struct {
	*fakeBackend
	mu        sync.Mutex
	responses []gatedList
	calls     int
	started   chan int
}

func (b *sequencedBackend) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	b.mu.Lock()
	n := b.calls
	b.calls++
	r := b.responses[n]
	b.mu.Unlock()

	b.started <- n
	<-r.release
	return r.alerts, nil
}

func TestStoreLoadOverlappingForcedLoadsKeepNewest(t *testing.T) {
	older := models.Alert{ID: "old", Ticker: "AAPL", AlertType: models.AlertPriceAbove, ThresholdValue: 150}
	newer := models.Alert{ID: "new", Ticker: "MSFT", AlertType: models.AlertPriceBelow, ThresholdValue: 300}
	backend := &sequencedBackend{
		fakeBackend: newFakeBackend(),
		responses: []gatedList{
			{alerts: []models.Alert{older}, release: make(chan struct{})},
			{alerts: []models.Alert{older, newer}, release: make(chan struct{})},
		},
		started: make(chan int, 2),
	}
	store := NewStore(backend, PolicyRollback, zerolog.Nop())
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = store.Load(ctx, true)
	}()
	require.Equal(t, 0, <-backend.started)

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = store.Load(ctx, true)
	}()
	require.Equal(t, 1, <-backend.started)

	// The older request answers first, then the newer one.
	close(backend.responses[0].release)
	<-firstDone
	assert.Equal(t, []string{"old"}, ids(store.Alerts()))

	close(backend.responses[1].release)
	<-secondDone
	assert.Equal(t, []string{"old", "new"}, ids(store.Alerts()))
}

func TestStoreLoadOverlappingForcedLoadsDropOlder(t *testing.T) {
	older := models.Alert{ID: "old", Ticker: "AAPL", AlertType: models.AlertPriceAbove, ThresholdValue: 150}
	newer := models.Alert{ID: "new", Ticker: "MSFT", AlertType: models.AlertPriceBelow, ThresholdValue: 300}
	backend := &sequencedBackend{
		fakeBackend: newFakeBackend(),
		responses: []gatedList{
			{alerts: []models.Alert{older}, release: make(chan struct{})},
			{alerts: []models.Alert{older, newer}, release: make(chan struct{})},
		},
		started: make(chan int, 2),
	}
	store := NewStore(backend, PolicyRollback, zerolog.Nop())
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = store.Load(ctx, true)
	}()
	<-backend.started
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = store.Load(ctx, true)
	}()
	<-backend.started

	close(backend.responses[1].release)
	<-secondDone
	close(backend.responses[0].release)
	<-firstDone

	assert.Equal(t, []string{"old", "new"}, ids(store.Alerts()))
}

// splitUpdateBackend fails is_read updates once release closes and applies
// every other update immediately.
type splitUpdateBackend struct {
	*fakeBackend
	started chan struct{}
	release chan struct{}
}

func (b *splitUpdateBackend) UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error) {
	if patch.IsRead != nil {
		b.started <- struct{}{}
		<-b.release
		return models.Alert{}, errBackend
	}
	return b.fakeBackend.UpdateAlert(ctx, id, patch)
}

func TestStoreUpdateRollbackKeepsConcurrentUpdate(t *testing.T) {
	backend := &splitUpdateBackend{
		fakeBackend: newFakeBackend(seedAlerts()...),
		started:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	store := NewStore(backend, PolicyRollback, zerolog.Nop())
	ctx := context.Background()
	_, err := store.Load(ctx, false)
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() { readErr <- store.MarkRead(ctx, "a1") }()
	<-backend.started

	got, _ := store.Get("a1")
	assert.True(t, got.IsRead, "applied optimistically")

	require.NoError(t, store.SetActive(ctx, "a1", false))
	close(backend.release)

	err = <-readErr
	var merr *apperrors.MutationError
	require.ErrorAs(t, err, &merr)
	assert.True(t, merr.RolledBack)

	got, _ = store.Get("a1")
	assert.False(t, got.IsRead)
	assert.False(t, got.IsActive, "the disable that succeeded meanwhile is kept")
}

func TestRevertPatch(t *testing.T) {
	until := testNow.Add(time.Hour)
	later := testNow.Add(2 * time.Hour)
	prev := models.Alert{ID: "a1", IsActive: true, SnoozedUntil: &until}

	// Only the patched fields come back.
	cur := models.Alert{ID: "a1", IsActive: false, IsRead: true, SnoozedUntil: &until}
	read := true
	got := revertPatch(cur, prev, models.AlertPatch{IsRead: &read})
	assert.False(t, got.IsRead)
	assert.False(t, got.IsActive)

	// A snooze changed by someone else since is left alone.
	cur = models.Alert{ID: "a1", IsActive: true, SnoozedUntil: &later}
	got = revertPatch(cur, prev, models.AlertPatch{ClearSnooze: true})
	assert.Equal(t, &later, got.SnoozedUntil)

	cur = models.Alert{ID: "a1", IsActive: true}
	got = revertPatch(cur, prev, models.AlertPatch{ClearSnooze: true})
	assert.Equal(t, &until, got.SnoozedUntil)
}

func TestStoreMutationFailureLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	backend := newFakeBackend(seedAlerts()...)
	store := NewStore(backend, PolicyRollback, zerolog.New(&buf))
	_, err := store.Load(context.Background(), false)
	require.NoError(t, err)

	backend.setFail(true)
	require.Error(t, store.Delete(context.Background(), "a2"))

	out := buf.String()
	assert.Contains(t, out, `"operation":"delete"`)
	assert.Contains(t, out, `"alert_id":"a2"`)
	assert.Contains(t, out, `"rolled_back":true`)
}
