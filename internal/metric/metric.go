package metric

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ID identifies one tracked market metric. The set is closed: the engine
// only ever analyses metrics it has explicit threshold configuration for.
type ID string

const (
	Price          ID = "price"
	OpenInterest   ID = "open_interest"
	FundingRate    ID = "funding_rate"
	LongShortRatio ID = "long_short_ratio"
	Liquidations   ID = "liquidations"
)

// All returns the tracked metrics in a stable order.
func All() []ID {
	return []ID{Price, OpenInterest, FundingRate, LongShortRatio, Liquidations}
}

// Known reports whether id is one of the tracked metrics.
func Known(id ID) bool {
	switch id {
	case Price, OpenInterest, FundingRate, LongShortRatio, Liquidations:
		return true
	}
	return false
}

// Parse converts a raw string into a tracked metric ID.
func Parse(raw string) (ID, error) {
	id := ID(raw)
	if !Known(id) {
		return "", fmt.Errorf("unknown metric %q", raw)
	}
	return id, nil
}

// Tiers holds the significance cut points for a metric. Values are percent
// changes; comparisons are inclusive (>=).
type Tiers struct {
	High   decimal.Decimal
	Medium decimal.Decimal
}

// Config carries the per-metric classification and notification thresholds.
// Funding-rate style metrics with tiny natural magnitude set AbsoluteScale:
// their notify threshold is expressed in raw points rather than percent, and
// AbsoluteHigh bounds the zero-reference fallback classification.
type Config struct {
	StableThresholdPct decimal.Decimal
	Tiers              Tiers
	NotifyThreshold    decimal.Decimal
	AbsoluteScale      bool
	AbsoluteHigh       decimal.Decimal
}

// Table maps every tracked metric to its configuration.
type Table map[ID]Config

// DefaultTable returns the built-in threshold table. All cells are plain
// defaults; runtime configuration may override any of them per metric.
func DefaultTable() Table {
	return Table{
		Price: {
			StableThresholdPct: decimal.NewFromInt(2),
			Tiers:              Tiers{High: decimal.NewFromInt(5), Medium: decimal.NewFromInt(2)},
			NotifyThreshold:    decimal.NewFromInt(2),
			AbsoluteHigh:       decimal.NewFromInt(10),
		},
		OpenInterest: {
			StableThresholdPct: decimal.NewFromInt(2),
			Tiers:              Tiers{High: decimal.NewFromInt(10), Medium: decimal.NewFromInt(3)},
			NotifyThreshold:    decimal.NewFromInt(5),
			AbsoluteHigh:       decimal.NewFromInt(1_000_000),
		},
		FundingRate: {
			StableThresholdPct: decimal.NewFromInt(2),
			Tiers:              Tiers{High: decimal.NewFromInt(50), Medium: decimal.NewFromInt(20)},
			NotifyThreshold:    decimal.NewFromFloat(0.05),
			AbsoluteScale:      true,
			AbsoluteHigh:       decimal.NewFromFloat(0.05),
		},
		LongShortRatio: {
			StableThresholdPct: decimal.NewFromInt(2),
			Tiers:              Tiers{High: decimal.NewFromInt(15), Medium: decimal.NewFromInt(5)},
			NotifyThreshold:    decimal.NewFromInt(10),
			AbsoluteHigh:       decimal.NewFromInt(1),
		},
		Liquidations: {
			StableThresholdPct: decimal.NewFromInt(2),
			Tiers:              Tiers{High: decimal.NewFromInt(50), Medium: decimal.NewFromInt(20)},
			NotifyThreshold:    decimal.NewFromInt(25),
			AbsoluteHigh:       decimal.NewFromInt(1_000_000),
		},
	}
}

// DefaultWindows lists the lookback windows trends are computed over.
func DefaultWindows() []time.Duration {
	return []time.Duration{time.Hour, 4 * time.Hour, 24 * time.Hour}
}

// WindowLabel renders a window the way it appears in output and config,
// e.g. "1h", "4h", "24h".
func WindowLabel(w time.Duration) string {
	if w%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(w/time.Hour))
	}
	return w.String()
}
