package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "alertdash/internal/errors"
	"alertdash/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Alert rules, one row per alert
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		threshold_value REAL NOT NULL DEFAULT 0,
		message TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_triggered INTEGER NOT NULL DEFAULT 0,
		last_triggered_at TEXT,
		is_read INTEGER NOT NULL DEFAULT 0,
		snoozed_until TEXT,
		created_at TEXT NOT NULL
	);

	-- Held positions with their latest metrics
	CREATE TABLE IF NOT EXISTS holdings (
		ticker TEXT PRIMARY KEY,
		name TEXT,
		price REAL,
		sma_50 REAL,
		sma_200 REAL,
		updated_at TEXT NOT NULL
	);

	-- Watchlist entries with their latest quote
	CREATE TABLE IF NOT EXISTS watchlist (
		ticker TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		last_price REAL,
		sma_50 REAL,
		sma_200 REAL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_ticker ON alerts(ticker);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Alert Methods
// ============================================================================

const alertColumns = `id, ticker, alert_type, threshold_value, message, is_active,
	is_triggered, last_triggered_at, is_read, snoozed_until, created_at`

// ListAlerts returns every alert, oldest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// GetAlert returns one alert by id.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return models.Alert{}, fmt.Errorf("%w: %s", apperrors.ErrAlertNotFound, id)
	}
	return a, err
}

// InsertAlert stores a new alert.
func (s *SQLiteStore) InsertAlert(ctx context.Context, a models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Ticker, string(a.AlertType), a.ThresholdValue, nullString(a.Message), boolInt(a.IsActive),
		boolInt(a.IsTriggered), nullTime(a.LastTriggeredAt), boolInt(a.IsRead), nullTime(a.SnoozedUntil),
		formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// UpdateAlert applies a partial update and returns the stored alert.
func (s *SQLiteStore) UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error) {
	var sets []string
	var args []interface{}

	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*patch.IsActive))
	}
	if patch.IsRead != nil {
		sets = append(sets, "is_read = ?")
		args = append(args, boolInt(*patch.IsRead))
	}
	if patch.ClearSnooze {
		sets = append(sets, "snoozed_until = NULL")
	} else if patch.SnoozedUntil != nil {
		sets = append(sets, "snoozed_until = ?")
		args = append(args, formatTime(*patch.SnoozedUntil))
	}

	if len(sets) > 0 {
		args = append(args, id)
		result, err := s.db.ExecContext(ctx,
			`UPDATE alerts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return models.Alert{}, fmt.Errorf("failed to update alert: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return models.Alert{}, fmt.Errorf("%w: %s", apperrors.ErrAlertNotFound, id)
		}
	}

	return s.GetAlert(ctx, id)
}

// MarkTriggered records that an alert fired at the given time.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET is_triggered = 1, last_triggered_at = ? WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to trigger alert: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrAlertNotFound, id)
	}
	return nil
}

// DeleteAlert removes one alert.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrAlertNotFound, id)
	}
	return nil
}

// DeleteAllAlerts removes every alert.
func (s *SQLiteStore) DeleteAllAlerts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return fmt.Errorf("failed to delete alerts: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		a                               models.Alert
		alertType                       string
		message                         sql.NullString
		active, triggered, read         int
		lastTriggered, snoozed, created sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Ticker, &alertType, &a.ThresholdValue, &message, &active,
		&triggered, &lastTriggered, &read, &snoozed, &created); err != nil {
		if err == sql.ErrNoRows {
			return a, err
		}
		return a, fmt.Errorf("failed to scan alert: %w", err)
	}

	a.AlertType = models.AlertType(alertType)
	if message.Valid {
		m := message.String
		a.Message = &m
	}
	a.IsActive = active == 1
	a.IsTriggered = triggered == 1
	a.IsRead = read == 1

	var err error
	if a.LastTriggeredAt, err = parseNullTime(lastTriggered); err != nil {
		return a, fmt.Errorf("alert %s last_triggered_at: %w", a.ID, err)
	}
	if a.SnoozedUntil, err = parseNullTime(snoozed); err != nil {
		return a, fmt.Errorf("alert %s snoozed_until: %w", a.ID, err)
	}
	if c, err := parseNullTime(created); err != nil {
		return a, fmt.Errorf("alert %s created_at: %w", a.ID, err)
	} else if c != nil {
		a.CreatedAt = *c
	}

	return a, nil
}

// ============================================================================
// Holdings Methods
// ============================================================================

// ListHoldings returns every holding ordered by ticker.
func (s *SQLiteStore) ListHoldings(ctx context.Context) ([]models.HoldingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, name, price, sma_50, sma_200 FROM holdings ORDER BY ticker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := []models.HoldingRecord{}
	for rows.Next() {
		var h models.HoldingRecord
		var name sql.NullString
		var price, sma50, sma200 sql.NullFloat64
		if err := rows.Scan(&h.Ticker, &name, &price, &sma50, &sma200); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Name = name.String
		h.Price = floatPtr(price)
		h.SMA50 = floatPtr(sma50)
		h.SMA200 = floatPtr(sma200)
		holdings = append(holdings, h)
	}

	return holdings, rows.Err()
}

// UpsertHolding inserts or replaces a holding.
func (s *SQLiteStore) UpsertHolding(ctx context.Context, h models.HoldingRecord) error {
	return upsertHolding(ctx, s.db, h)
}

// DeleteHolding removes a holding.
func (s *SQLiteStore) DeleteHolding(ctx context.Context, ticker string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// ListWatchlist returns every watchlist entry ordered by ticker.
func (s *SQLiteStore) ListWatchlist(ctx context.Context) ([]models.WatchlistRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, name, last_price, sma_50, sma_200 FROM watchlist ORDER BY ticker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	watchlist := []models.WatchlistRecord{}
	for rows.Next() {
		var w models.WatchlistRecord
		var price, sma50, sma200 sql.NullFloat64
		if err := rows.Scan(&w.Ticker, &w.Name, &price, &sma50, &sma200); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		w.MarketData = models.MarketData{
			LastPrice: floatPtr(price),
			SMA50:     floatPtr(sma50),
			SMA200:    floatPtr(sma200),
		}
		watchlist = append(watchlist, w)
	}

	return watchlist, rows.Err()
}

// UpsertWatchlist inserts or replaces a watchlist entry.
func (s *SQLiteStore) UpsertWatchlist(ctx context.Context, w models.WatchlistRecord) error {
	return upsertWatchlist(ctx, s.db, w)
}

// RemoveFromWatchlist removes a ticker from the watchlist.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, ticker string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to remove from watchlist: %w", err)
	}
	return nil
}

// Seed upserts every record in one transaction.
func (s *SQLiteStore) Seed(ctx context.Context, data SeedData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, h := range data.Holdings {
		if err := upsertHolding(ctx, tx, h); err != nil {
			return err
		}
	}
	for _, w := range data.Watchlist {
		if err := upsertWatchlist(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertHolding(ctx context.Context, db execer, h models.HoldingRecord) error {
	if strings.TrimSpace(h.Ticker) == "" {
		return fmt.Errorf("holding ticker is required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO holdings (ticker, name, price, sma_50, sma_200, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, h.Ticker, h.Name, nullFloat(h.Price), nullFloat(h.SMA50), nullFloat(h.SMA200), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save holding %s: %w", h.Ticker, err)
	}
	return nil
}

func upsertWatchlist(ctx context.Context, db execer, w models.WatchlistRecord) error {
	if strings.TrimSpace(w.Ticker) == "" {
		return fmt.Errorf("watchlist ticker is required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO watchlist (ticker, name, last_price, sma_50, sma_200, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.Ticker, w.Name, nullFloat(w.MarketData.LastPrice), nullFloat(w.MarketData.SMA50),
		nullFloat(w.MarketData.SMA200), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save watchlist entry %s: %w", w.Ticker, err)
	}
	return nil
}

// ============================================================================
// Column helpers
// ============================================================================

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := models.ParseTimestamp(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
