// Package store provides persistence for the reference backend.
package store

import (
	"context"
	"time"

	"alertdash/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Alerts
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	InsertAlert(ctx context.Context, alert models.Alert) error
	UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	DeleteAlert(ctx context.Context, id string) error
	DeleteAllAlerts(ctx context.Context) error

	// Holdings
	ListHoldings(ctx context.Context) ([]models.HoldingRecord, error)
	UpsertHolding(ctx context.Context, h models.HoldingRecord) error
	DeleteHolding(ctx context.Context, ticker string) error

	// Watchlist
	ListWatchlist(ctx context.Context) ([]models.WatchlistRecord, error)
	UpsertWatchlist(ctx context.Context, w models.WatchlistRecord) error
	RemoveFromWatchlist(ctx context.Context, ticker string) error

	// Seeding
	Seed(ctx context.Context, data SeedData) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// SeedData is a bulk load of market records, read from a JSON file by
// `alertdash serve --seed`.
type SeedData struct {
	Holdings  []models.HoldingRecord   `json:"holdings"`
	Watchlist []models.WatchlistRecord `json:"watchlist"`
}
