package analysis

import (
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/series"
)

// Direction classifies how a metric moved relative to its reference value.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Significance buckets the magnitude of a change.
type Significance string

const (
	High   Significance = "high"
	Medium Significance = "medium"
	Low    Significance = "low"
)

var significanceRank = map[Significance]int{Low: 0, Medium: 1, High: 2}

// AtLeast reports whether s is at least as significant as min.
func (s Significance) AtLeast(min Significance) bool {
	return significanceRank[s] >= significanceRank[min]
}

// TrendResult describes one metric's movement over one lookback window.
// When AbsoluteOnly is set the reference value was zero: PctChange is
// undefined and Delta carries the raw point change instead.
type TrendResult struct {
	Metric         metric.ID
	Window         time.Duration
	CurrentValue   decimal.Decimal
	ReferenceValue decimal.Decimal
	Delta          decimal.Decimal
	PctChange      decimal.Decimal
	AbsoluteOnly   bool
	Direction      Direction
	Significance   Significance
}

// slackDivisor sets the reference-window tolerance to 10% of the window.
const slackDivisor = 10

// Analyzer computes trend classifications from metric histories. It is a
// pure function of its inputs; the wall clock is always passed in.
type Analyzer struct {
	table   metric.Table
	windows []time.Duration
}

// New builds an Analyzer over the given threshold table and window set.
func New(table metric.Table, windows []time.Duration) *Analyzer {
	if len(windows) == 0 {
		windows = metric.DefaultWindows()
	}
	return &Analyzer{table: table, windows: windows}
}

// Analyze produces one TrendResult per window that has reference data.
// An empty history yields no results at all; a window without qualifying
// reference samples is simply skipped, never zero-filled.
func (a *Analyzer) Analyze(id metric.ID, hist []series.Sample, now time.Time) []TrendResult {
	if len(hist) == 0 {
		return nil
	}

	cfg, ok := a.table[id]
	if !ok {
		return nil
	}

	current, ok := currentAt(hist, now)
	if !ok {
		return nil
	}

	results := make([]TrendResult, 0, len(a.windows))
	for _, w := range a.windows {
		reference, ok := referenceValue(hist, now, w)
		if !ok {
			continue
		}
		results = append(results, classify(id, w, current.Value, reference, cfg))
	}
	return results
}

// currentAt picks the most recent sample at or before now.
func currentAt(hist []series.Sample, now time.Time) (series.Sample, bool) {
	for i := len(hist) - 1; i >= 0; i-- {
		if !hist[i].Timestamp.After(now) {
			return hist[i], true
		}
	}
	return series.Sample{}, false
}

// referenceValue computes the simple mean of the samples falling inside
// [now-w-slack, now-w]. When the band is empty it widens to the single
// closest sample preceding now-w.
func referenceValue(hist []series.Sample, now time.Time, w time.Duration) (decimal.Decimal, bool) {
	slack := w / slackDivisor
	bandEnd := now.Add(-w)
	bandStart := bandEnd.Add(-slack)

	sum := decimal.Zero
	count := 0
	var closest *series.Sample
	for i := range hist {
		ts := hist[i].Timestamp
		if ts.After(bandEnd) {
			break
		}
		if !ts.Before(bandStart) {
			sum = sum.Add(hist[i].Value)
			count++
		}
		closest = &hist[i]
	}

	if count > 0 {
		return sum.Div(decimal.NewFromInt(int64(count))), true
	}
	if closest != nil {
		return closest.Value, true
	}
	return decimal.Decimal{}, false
}

func classify(id metric.ID, w time.Duration, current, reference decimal.Decimal, cfg metric.Config) TrendResult {
	result := TrendResult{
		Metric:         id,
		Window:         w,
		CurrentValue:   current,
		ReferenceValue: reference,
		Delta:          current.Sub(reference),
	}

	if reference.IsZero() {
		// Percent change is undefined; fall back to the raw delta.
		result.AbsoluteOnly = true
		result.Direction = directionOfSign(result.Delta.Sign())
		if result.Delta.Abs().GreaterThanOrEqual(cfg.AbsoluteHigh) {
			result.Significance = High
		} else {
			result.Significance = Low
		}
		return result
	}

	pct := result.Delta.Div(reference.Abs()).Mul(decimal.NewFromInt(100))
	result.PctChange = pct

	magnitude := pct.Abs()
	if magnitude.GreaterThanOrEqual(cfg.StableThresholdPct) {
		result.Direction = directionOfSign(pct.Sign())
	} else {
		result.Direction = Stable
	}

	switch {
	case magnitude.GreaterThanOrEqual(cfg.Tiers.High):
		result.Significance = High
	case magnitude.GreaterThanOrEqual(cfg.Tiers.Medium):
		result.Significance = Medium
	default:
		result.Significance = Low
	}
	return result
}

func directionOfSign(sign int) Direction {
	switch {
	case sign > 0:
		return Increasing
	case sign < 0:
		return Decreasing
	default:
		return Stable
	}
}
