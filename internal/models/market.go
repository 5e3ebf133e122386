// Package models provides the domain models shared by the dashboard packages.
package models

// MarketMetrics holds the point-in-time metrics for one ticker.
// A nil field means the value is unknown; it is never read as zero.
type MarketMetrics struct {
	Price       *float64 `json:"price,omitempty"`
	SMA50       *float64 `json:"sma50,omitempty"`
	SMA200      *float64 `json:"sma200,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
}

// HoldingRecord is one held position as served by GET /holdings.
type HoldingRecord struct {
	Ticker string   `json:"ticker"`
	Price  *float64 `json:"price"`
	SMA50  *float64 `json:"sma_50,omitempty"`
	SMA200 *float64 `json:"sma_200,omitempty"`
	Name   string   `json:"name,omitempty"`
}

// WatchlistRecord is one watchlist entry as served by GET /watchlist.
type WatchlistRecord struct {
	Ticker     string     `json:"ticker"`
	Name       string     `json:"name"`
	MarketData MarketData `json:"market_data"`
}

// MarketData is the nested quote block of a watchlist entry.
type MarketData struct {
	LastPrice *float64 `json:"last_price,omitempty"`
	SMA50     *float64 `json:"sma_50,omitempty"`
	SMA200    *float64 `json:"sma_200,omitempty"`
}

// Float returns a pointer to v, for building metrics in code and tests.
func Float(v float64) *float64 {
	return &v
}
