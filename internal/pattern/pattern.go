package pattern

import (
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/analysis"
	"pattern-alerts/internal/metric"
)

// Snapshot is the cross-metric output of one analysis cycle: the per-metric
// trend lists plus any cross-signal that fired. Degraded marks a cycle
// without usable data, so downstream consumers can tell "nothing changed"
// apart from "we have no data": Compose raises it when no metric produced a
// trend, and the cycle orchestrator also raises it when every fetch failed
// even though stale history still yielded trends.
type Snapshot struct {
	Timestamp    time.Time
	Trends       map[metric.ID][]analysis.TrendResult
	CrossSignals []string
	Degraded     bool
}

// Current returns the current value a snapshot carries for a metric.
func (s Snapshot) Current(id metric.ID) (decimal.Decimal, bool) {
	trends := s.Trends[id]
	if len(trends) == 0 {
		return decimal.Decimal{}, false
	}
	return trends[0].CurrentValue, true
}

// Trend returns the trend for a metric over a specific window.
func (s Snapshot) Trend(id metric.ID, w time.Duration) (analysis.TrendResult, bool) {
	for _, t := range s.Trends[id] {
		if t.Window == w {
			return t, true
		}
	}
	return analysis.TrendResult{}, false
}

// Condition is one leg of a cross-signal rule. Zero-valued fields match
// anything: an empty Direction matches any direction, a zero Window matches
// any window, and an empty MinSignificance matches any tier.
type Condition struct {
	Metric          metric.ID
	Window          time.Duration
	Direction       analysis.Direction
	MinSignificance analysis.Significance
}

// Rule names a cross-signal and lists the conditions that must all hold for
// it to fire. A rule silently does not fire when any referenced trend is
// absent from the snapshot.
type Rule struct {
	Name       string
	Conditions []Condition
}

// DefaultRules returns the built-in cross-signal heuristics.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "longs_capitulating",
			Conditions: []Condition{
				{Metric: metric.LongShortRatio, Window: 4 * time.Hour, Direction: analysis.Decreasing, MinSignificance: analysis.Medium},
				{Metric: metric.OpenInterest, Window: 4 * time.Hour, Direction: analysis.Increasing},
			},
		},
		{
			Name: "crowded_longs",
			Conditions: []Condition{
				{Metric: metric.LongShortRatio, Window: 4 * time.Hour, Direction: analysis.Increasing, MinSignificance: analysis.Medium},
				{Metric: metric.FundingRate, Window: 4 * time.Hour, Direction: analysis.Increasing, MinSignificance: analysis.Medium},
			},
		},
		{
			Name: "deleveraging",
			Conditions: []Condition{
				{Metric: metric.OpenInterest, Window: 4 * time.Hour, Direction: analysis.Decreasing, MinSignificance: analysis.Medium},
				{Metric: metric.Liquidations, Window: time.Hour, Direction: analysis.Increasing, MinSignificance: analysis.High},
			},
		},
		{
			Name: "funding_price_divergence",
			Conditions: []Condition{
				{Metric: metric.FundingRate, Window: 24 * time.Hour, Direction: analysis.Decreasing, MinSignificance: analysis.Medium},
				{Metric: metric.Price, Window: 24 * time.Hour, Direction: analysis.Increasing},
			},
		},
	}
}

// Composer assembles snapshots and evaluates cross-signal rules. Rules are
// plain data; adding one never touches the analyzer or the alert engine.
type Composer struct {
	rules []Rule
}

// NewComposer builds a Composer over the given rule set.
func NewComposer(rules []Rule) *Composer {
	return &Composer{rules: rules}
}

// Compose builds the snapshot for one cycle.
func (c *Composer) Compose(trends map[metric.ID][]analysis.TrendResult, now time.Time) Snapshot {
	snap := Snapshot{
		Timestamp: now.UTC(),
		Trends:    trends,
		Degraded:  len(trends) == 0,
	}
	for _, rule := range c.rules {
		if ruleFires(rule, snap) {
			snap.CrossSignals = append(snap.CrossSignals, rule.Name)
		}
	}
	return snap
}

func ruleFires(rule Rule, snap Snapshot) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		if !conditionHolds(cond, snap) {
			return false
		}
	}
	return true
}

func conditionHolds(cond Condition, snap Snapshot) bool {
	trends := snap.Trends[cond.Metric]
	for _, t := range trends {
		if cond.Window != 0 && t.Window != cond.Window {
			continue
		}
		if cond.Direction != "" && t.Direction != cond.Direction {
			continue
		}
		if cond.MinSignificance != "" && !t.Significance.AtLeast(cond.MinSignificance) {
			continue
		}
		return true
	}
	return false
}
