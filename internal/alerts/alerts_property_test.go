package alerts

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"alertdash/internal/models"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	return parameters
}

// Property: an alert snoozed into the future is always shown as snoozed,
// whatever its read flag and evaluation result.
func TestProperty_SnoozeDominates(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("future snooze yields snoozed", prop.ForAll(
		func(minutes int, read bool, result int) bool {
			until := now.Add(time.Duration(minutes) * time.Minute)
			alert := models.Alert{ID: "a", IsRead: read, SnoozedUntil: &until}
			return DeriveState(alert, Result(result), now) == StateSnoozed
		},
		gen.IntRange(1, 60*24*30),
		gen.Bool(),
		gen.IntRange(int(Indeterminate), int(Triggered)),
	))

	properties.TestingRun(t)
}

// Property: a read, unsnoozed alert is always shown as read.
func TestProperty_ReadDominatesResult(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("read yields read", prop.ForAll(
		func(minutesAgo int, snoozed bool, result int) bool {
			alert := models.Alert{ID: "a", IsRead: true}
			if snoozed {
				until := now.Add(-time.Duration(minutesAgo) * time.Minute)
				alert.SnoozedUntil = &until
			}
			return DeriveState(alert, Result(result), now) == StateRead
		},
		gen.IntRange(0, 60*24),
		gen.Bool(),
		gen.IntRange(int(Indeterminate), int(Triggered)),
	))

	properties.TestingRun(t)
}

// Property: PRICE_ABOVE triggers exactly when price is strictly greater.
func TestProperty_PriceAboveIsStrict(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("price above iff price > threshold", prop.ForAll(
		func(price, threshold float64) bool {
			alert := models.Alert{AlertType: models.AlertPriceAbove, ThresholdValue: threshold}
			got := Evaluate(alert, &models.MarketMetrics{Price: models.Float(price)})
			if price > threshold {
				return got == Triggered
			}
			return got == NotTriggered
		},
		gen.Float64Range(0, 10000),
		gen.Float64Range(0, 10000),
	))

	properties.Property("price equal to threshold does not trigger", prop.ForAll(
		func(price float64) bool {
			alert := models.Alert{AlertType: models.AlertPriceAbove, ThresholdValue: price}
			return Evaluate(alert, &models.MarketMetrics{Price: models.Float(price)}) == NotTriggered
		},
		gen.Float64Range(0, 10000),
	))

	properties.TestingRun(t)
}

// Property: the proximity rule matches its formula whenever sma200 is non-zero.
func TestProperty_ApproachingMatchesFormula(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("approaching iff gap percent <= threshold", prop.ForAll(
		func(sma50, sma200, threshold float64) bool {
			alert := models.Alert{AlertType: models.AlertSMA50ApproachingSMA200, ThresholdValue: threshold}
			got := Evaluate(alert, &models.MarketMetrics{SMA50: models.Float(sma50), SMA200: models.Float(sma200)})
			if math.Abs(sma50-sma200)/sma200*100 <= threshold {
				return got == Triggered
			}
			return got == NotTriggered
		},
		gen.Float64Range(1, 5000),
		gen.Float64Range(1, 5000),
		gen.Float64Range(0, 50),
	))

	properties.TestingRun(t)
}

// Property: an alert whose ticker has no snapshot entry is never triggered
// and never counted.
func TestProperty_MissingTickerIsIndeterminate(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("absent ticker is indeterminate", prop.ForAll(
		func(typeIdx int, threshold float64) bool {
			alert := models.Alert{Ticker: "ZZZ", AlertType: models.AlertTypes[typeIdx], ThresholdValue: threshold}
			snap := snapOf(map[string]models.MarketMetrics{
				"AAPL": {Price: models.Float(100), SMA50: models.Float(100), SMA200: models.Float(100)},
			})
			if Evaluate(alert, snap.Lookup(alert.Ticker)) != Indeterminate {
				return false
			}
			if DeriveState(alert, Indeterminate, now) != StatePending {
				return false
			}
			return CountActive([]models.Alert{alert}, snap, now, ScopeTable) == 0
		},
		gen.IntRange(0, len(models.AlertTypes)-1),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

// Property: deriving state twice from the same inputs yields the same state.
func TestProperty_DeriveStateIdempotent(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("derive state is idempotent", prop.ForAll(
		func(read bool, snoozeOffset int, result int) bool {
			until := now.Add(time.Duration(snoozeOffset) * time.Minute)
			alert := models.Alert{ID: "a", IsRead: read, SnoozedUntil: &until}
			return DeriveState(alert, Result(result), now) == DeriveState(alert, Result(result), now)
		},
		gen.Bool(),
		gen.IntRange(-120, 120),
		gen.IntRange(int(Indeterminate), int(Triggered)),
	))

	properties.TestingRun(t)
}
