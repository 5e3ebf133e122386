// Package snapshot merges held positions and watchlist entries into a
// per-ticker market metrics map.
package snapshot

import (
	"sort"
	"strings"
	"time"

	"alertdash/internal/models"
)

// Snapshot is the merged, point-in-time metrics map used for evaluation.
type Snapshot struct {
	Metrics   map[string]models.MarketMetrics `json:"metrics"`
	Seq       uint64                          `json:"seq"`
	FetchedAt time.Time                       `json:"fetched_at"`
}

// Empty returns a snapshot with no tickers.
func Empty() *Snapshot {
	return &Snapshot{Metrics: make(map[string]models.MarketMetrics)}
}

// Lookup returns the metrics for a ticker, or nil if the ticker is absent.
func (s *Snapshot) Lookup(ticker string) *models.MarketMetrics {
	if s == nil {
		return nil
	}
	m, ok := s.Metrics[ticker]
	if !ok {
		return nil
	}
	return &m
}

// Len returns the number of tickers in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Metrics)
}

// Tickers returns the snapshot tickers in sorted order.
func (s *Snapshot) Tickers() []string {
	if s == nil {
		return nil
	}
	tickers := make([]string, 0, len(s.Metrics))
	for t := range s.Metrics {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Build seeds the map from holdings and merges watchlist entries on top.
// The merge is field by field: a later present value overwrites, a later
// absent value leaves the earlier one in place. Records without a ticker
// are skipped.
func Build(holdings []models.HoldingRecord, watchlist []models.WatchlistRecord) *Snapshot {
	snap := Empty()

	for _, h := range holdings {
		merge(snap.Metrics, h.Ticker, models.MarketMetrics{
			Price:       h.Price,
			SMA50:       h.SMA50,
			SMA200:      h.SMA200,
			DisplayName: h.Name,
		})
	}

	for _, w := range watchlist {
		merge(snap.Metrics, w.Ticker, models.MarketMetrics{
			Price:       w.MarketData.LastPrice,
			SMA50:       w.MarketData.SMA50,
			SMA200:      w.MarketData.SMA200,
			DisplayName: w.Name,
		})
	}

	return snap
}

func merge(dst map[string]models.MarketMetrics, ticker string, src models.MarketMetrics) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return
	}

	cur := dst[ticker]
	if src.Price != nil {
		cur.Price = copyFloat(src.Price)
	}
	if src.SMA50 != nil {
		cur.SMA50 = copyFloat(src.SMA50)
	}
	if src.SMA200 != nil {
		cur.SMA200 = copyFloat(src.SMA200)
	}
	if src.DisplayName != "" {
		cur.DisplayName = src.DisplayName
	}
	dst[ticker] = cur
}

func copyFloat(p *float64) *float64 {
	v := *p
	return &v
}
