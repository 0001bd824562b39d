package alert

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/pattern"
)

// Baseline is the compact projection of a notified snapshot that later
// cycles are compared against: the per-metric current values at the moment
// of notification.
type Baseline struct {
	Timestamp    time.Time                     `json:"timestamp"`
	Metrics      map[metric.ID]decimal.Decimal `json:"metrics"`
	CrossSignals []string                      `json:"cross_signals,omitempty"`
}

// State is the singleton alert record for one monitored instrument. A zero
// LastNotified means the instrument has never been notified, which forces
// an ALLOW on the first successful snapshot. Only the decision engine's
// commit step ever mutates it.
type State struct {
	Instrument     string    `json:"instrument"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
	LastNotified   *Baseline `json:"last_notified,omitempty"`
}

// NewState returns the empty first-run state for an instrument.
func NewState(instrument string) State {
	return State{Instrument: instrument}
}

// BaselineOf projects a snapshot into the persisted baseline form.
func BaselineOf(snap pattern.Snapshot) *Baseline {
	b := &Baseline{
		Timestamp:    snap.Timestamp,
		Metrics:      make(map[metric.ID]decimal.Decimal, len(snap.Trends)),
		CrossSignals: snap.CrossSignals,
	}
	for id := range snap.Trends {
		if v, ok := snap.Current(id); ok {
			b.Metrics[id] = v
		}
	}
	return b
}

// Outcome is the binary notify decision.
type Outcome string

const (
	Allow    Outcome = "allow"
	Suppress Outcome = "suppress"
)

// Reason states which decision rule matched.
type Reason string

const (
	ReasonDegraded  Reason = "degraded"
	ReasonFirstRun  Reason = "first_run"
	ReasonHeartbeat Reason = "heartbeat"
	ReasonThreshold Reason = "threshold"
	ReasonQuiet     Reason = "quiet"
)

// Delta reports one metric's movement since the last notified baseline.
// Change is a percent change, or a raw point change when Absolute is set.
type Delta struct {
	Metric    metric.ID       `json:"metric"`
	Change    decimal.Decimal `json:"change"`
	Absolute  bool            `json:"absolute,omitempty"`
	Threshold decimal.Decimal `json:"threshold"`
	Triggered bool            `json:"triggered"`
}

// Decision is the engine's output for one cycle. On ALLOW, Deltas carries
// every movement that met its notify threshold (empty for first-run and
// pure-heartbeat allows); on SUPPRESS it carries the single largest near
// miss so consumers can assert why nothing fired.
type Decision struct {
	Outcome  Outcome
	Reason   Reason
	Deltas   []Delta
	Degraded bool
}

// Allowed reports whether the decision permits a notification.
func (d Decision) Allowed() bool { return d.Outcome == Allow }

// Engine evaluates the notify decision against per-metric thresholds and
// the maximum-silence timeout.
type Engine struct {
	table      metric.Table
	maxSilence time.Duration
}

// NewEngine builds the decision engine. maxSilence bounds how long the
// operator can go without a notification regardless of metric movement.
func NewEngine(table metric.Table, maxSilence time.Duration) *Engine {
	if maxSilence <= 0 {
		maxSilence = 4 * time.Hour
	}
	return &Engine{table: table, maxSilence: maxSilence}
}

// Decide evaluates the decision rules in order, first match wins:
// degraded snapshot, first run, heartbeat, per-metric threshold, quiet.
// It never mutates st; advancing the baseline is Commit's job.
func (e *Engine) Decide(snap pattern.Snapshot, st State, now time.Time) Decision {
	if snap.Degraded {
		// No data is never a reason to notify.
		return Decision{Outcome: Suppress, Reason: ReasonDegraded, Degraded: true}
	}

	if st.LastNotified == nil {
		return Decision{Outcome: Allow, Reason: ReasonFirstRun}
	}

	deltas := e.deltas(snap, *st.LastNotified)

	if now.Sub(st.LastNotifiedAt) >= e.maxSilence {
		return Decision{Outcome: Allow, Reason: ReasonHeartbeat, Deltas: triggered(deltas)}
	}

	if fired := triggered(deltas); len(fired) > 0 {
		return Decision{Outcome: Allow, Reason: ReasonThreshold, Deltas: fired}
	}

	return Decision{Outcome: Suppress, Reason: ReasonQuiet, Deltas: nearestMiss(deltas)}
}

// Commit returns the state advanced to the newly notified snapshot. Called
// only after an ALLOW; a SUPPRESS must leave the baseline untouched so that
// cumulative drift across suppressed cycles can still trigger later.
func Commit(st State, snap pattern.Snapshot, now time.Time) State {
	st.LastNotified = BaselineOf(snap)
	st.LastNotifiedAt = now.UTC()
	return st
}

// deltas compares the snapshot's current values against the baseline for
// every metric present in both. Metrics missing on either side are ignored.
func (e *Engine) deltas(snap pattern.Snapshot, base Baseline) []Delta {
	out := make([]Delta, 0, len(base.Metrics))
	for _, id := range metric.All() {
		baseValue, ok := base.Metrics[id]
		if !ok {
			continue
		}
		current, ok := snap.Current(id)
		if !ok {
			continue
		}
		cfg, ok := e.table[id]
		if !ok {
			continue
		}
		out = append(out, makeDelta(id, baseValue, current, cfg))
	}
	return out
}

func makeDelta(id metric.ID, base, current decimal.Decimal, cfg metric.Config) Delta {
	d := Delta{Metric: id, Threshold: cfg.NotifyThreshold}

	if cfg.AbsoluteScale {
		d.Absolute = true
		d.Change = current.Sub(base)
		d.Triggered = d.Change.Abs().GreaterThanOrEqual(cfg.NotifyThreshold)
		return d
	}

	if base.IsZero() {
		// Percent change from zero is undefined; any move away from zero
		// errs toward notifying.
		d.Absolute = true
		d.Change = current.Sub(base)
		d.Triggered = !current.IsZero()
		return d
	}

	d.Change = current.Sub(base).Div(base.Abs()).Mul(decimal.NewFromInt(100))
	d.Triggered = d.Change.Abs().GreaterThanOrEqual(cfg.NotifyThreshold)
	return d
}

func triggered(deltas []Delta) []Delta {
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		if d.Triggered {
			out = append(out, d)
		}
	}
	return out
}

// nearestMiss picks the delta that came closest to its threshold, measured
// as the ratio of movement to threshold.
func nearestMiss(deltas []Delta) []Delta {
	if len(deltas) == 0 {
		return nil
	}
	sorted := make([]Delta, len(deltas))
	copy(sorted, deltas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return missRatio(sorted[i]).GreaterThan(missRatio(sorted[j]))
	})
	return sorted[:1]
}

func missRatio(d Delta) decimal.Decimal {
	if d.Threshold.IsZero() {
		return decimal.Zero
	}
	return d.Change.Abs().Div(d.Threshold)
}
