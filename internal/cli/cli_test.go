package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertdash/internal/config"
	apperrors "alertdash/internal/errors"
	"alertdash/internal/models"
	"alertdash/internal/server"
	"alertdash/internal/store"
)

var testNow = time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)

// listJSON mirrors listResult for decoding.
type listJSON struct {
	Alerts []struct {
		Alert  models.Alert `json:"alert"`
		Result string       `json:"result"`
		State  string       `json:"state"`
	} `json:"alerts"`
	BadgeActive int `json:"badge_active"`
	TableActive int `json:"table_active"`
}

// newTestApp starts the reference backend over a seeded SQLite database
// and points an App at it.
func newTestApp(t *testing.T) *App {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Seed(context.Background(), store.SeedData{
		Holdings: []models.HoldingRecord{
			{Ticker: "AAPL", Price: models.Float(160), Name: "Apple"},
		},
		Watchlist: []models.WatchlistRecord{
			{Ticker: "MSFT", Name: "Microsoft", MarketData: models.MarketData{
				LastPrice: models.Float(400), SMA50: models.Float(390), SMA200: models.Float(395),
			}},
		},
	}))

	srv := server.New(server.Config{Log: zerolog.Nop(), Store: db, Now: func() time.Time { return testNow }})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.API.BaseURL = ts.URL
	cfg.API.RetryAttempts = 1

	return &App{
		Config: cfg,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testNow },
	}
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func list(t *testing.T, app *App, args ...string) listJSON {
	t.Helper()
	out, err := run(t, app, append([]string{"alerts", "list", "--json"}, args...)...)
	require.NoError(t, err)
	var got listJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got
}

func createFixtures(t *testing.T, app *App) {
	t.Helper()
	_, err := run(t, app, "alerts", "create", "AAPL", "price_above", "150")
	require.NoError(t, err)
	_, err = run(t, app, "alerts", "create", "MSFT", "sma50_below_sma200")
	require.NoError(t, err)
	_, err = run(t, app, "alerts", "create", "GOOG", "PRICE_BELOW", "100", "--message", "buy the dip")
	require.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, newTestApp(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "alertdash v"+Version)
}

func TestAlertsList(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	got := list(t, app)
	require.Len(t, got.Alerts, 3)
	assert.Equal(t, 1, got.BadgeActive)
	assert.Equal(t, 2, got.TableActive)

	states := map[string]string{}
	for _, v := range got.Alerts {
		states[v.Alert.Ticker] = v.State
	}
	assert.Equal(t, "triggered", states["AAPL"])
	assert.Equal(t, "triggered", states["MSFT"])
	assert.Equal(t, "pending", states["GOOG"])

	out, err := run(t, app, "alerts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "buy the dip")
	assert.Contains(t, out, "Active: 1 (badge)  2 (table)")
}

func TestAlertsList_Filters(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	got := list(t, app, "--state", "pending")
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, "GOOG", got.Alerts[0].Alert.Ticker)

	got = list(t, app, "--ticker", "msft")
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, "MSFT", got.Alerts[0].Alert.Ticker)

	_, err := run(t, app, "alerts", "list", "--state", "bogus")
	assert.Error(t, err)
}

func TestAlertsBadge(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	out, err := run(t, app, "alerts", "badge")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, app, "alerts", "badge", "--scope", "table")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = run(t, app, "alerts", "badge", "--scope", "everything")
	assert.Error(t, err)
}

func TestAlertsRead_ByPrefix(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	var aapl string
	for _, v := range list(t, app).Alerts {
		if v.Alert.Ticker == "AAPL" {
			aapl = v.Alert.ID
		}
	}
	require.NotEmpty(t, aapl)

	_, err := run(t, app, "alerts", "read", aapl[:8])
	require.NoError(t, err)

	out, err := run(t, app, "alerts", "badge")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	_, err = run(t, app, "alerts", "unread", aapl)
	require.NoError(t, err)
	out, err = run(t, app, "alerts", "badge")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestAlertsSnooze(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	var msft string
	for _, v := range list(t, app).Alerts {
		if v.Alert.Ticker == "MSFT" {
			msft = v.Alert.ID
		}
	}

	_, err := run(t, app, "alerts", "snooze", msft, "2d")
	require.NoError(t, err)

	got := list(t, app, "--state", "snoozed")
	require.Len(t, got.Alerts, 1)
	require.NotNil(t, got.Alerts[0].Alert.SnoozedUntil)
	assert.True(t, got.Alerts[0].Alert.SnoozedUntil.Equal(testNow.Add(48*time.Hour)))
	assert.Equal(t, 1, got.TableActive)

	_, err = run(t, app, "alerts", "unsnooze", msft)
	require.NoError(t, err)
	assert.Equal(t, 2, list(t, app).TableActive)
}

func TestAlertsDisable(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	var aapl string
	for _, v := range list(t, app).Alerts {
		if v.Alert.Ticker == "AAPL" {
			aapl = v.Alert.ID
		}
	}

	_, err := run(t, app, "alerts", "disable", aapl)
	require.NoError(t, err)

	// The enable flag belongs to the backend; evaluation ignores it.
	got := list(t, app)
	assert.Equal(t, 1, got.BadgeActive)
	for _, v := range got.Alerts {
		if v.Alert.ID == aapl {
			assert.False(t, v.Alert.IsActive)
		}
	}

	out, err := run(t, app, "alerts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")

	_, err = run(t, app, "alerts", "enable", aapl)
	require.NoError(t, err)
	for _, v := range list(t, app).Alerts {
		if v.Alert.ID == aapl {
			assert.True(t, v.Alert.IsActive)
		}
	}
}

func TestAlertsCreate_Invalid(t *testing.T) {
	app := newTestApp(t)

	_, err := run(t, app, "alerts", "create", "AAPL", "price_above")
	assert.ErrorContains(t, err, "requires a threshold")

	_, err = run(t, app, "alerts", "create", "AAPL", "volume_spike", "1")
	assert.ErrorContains(t, err, "unknown alert type")

	_, err = run(t, app, "alerts", "create", "AAPL", "price_above", "abc")
	assert.ErrorContains(t, err, "invalid threshold")
}

func TestAlertsDelete(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	_, err := run(t, app, "alerts", "delete", "no-such-id")
	assert.ErrorIs(t, err, apperrors.ErrAlertNotFound)

	id := list(t, app).Alerts[0].Alert.ID
	_, err = run(t, app, "alerts", "delete", id)
	require.NoError(t, err)
	assert.Len(t, list(t, app).Alerts, 2)
}

func TestAlertsClear(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	_, err := run(t, app, "alerts", "clear")
	assert.ErrorContains(t, err, "--yes")
	assert.Len(t, list(t, app).Alerts, 3)

	out, err := run(t, app, "alerts", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 3 alerts")
	assert.Empty(t, list(t, app).Alerts)
}

func TestSnapshotShow(t *testing.T) {
	app := newTestApp(t)

	out, err := run(t, app, "snapshot", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "MSFT")
	assert.Contains(t, out, "Microsoft")
	assert.Contains(t, out, "2 tickers")
	assert.True(t, strings.Contains(out, "-1.27%"), out)
}

func TestConfigShow(t *testing.T) {
	app := newTestApp(t)

	out, err := run(t, app, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, app.Config.API.BaseURL)
	assert.Contains(t, out, "rollback")

	_, err = run(t, app, "config", "validate")
	require.NoError(t, err)

	out, err = run(t, app, "config", "validate", "--ping")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend is reachable")
}

func TestWatch_PrintsInitialPass(t *testing.T) {
	app := newTestApp(t)
	createFixtures(t, app)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"watch", "--schedule", "@every 1h", "--scope", "table"})
	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Contains(t, out.String(), "active 2")
	assert.Contains(t, out.String(), "triggered 2")
}
