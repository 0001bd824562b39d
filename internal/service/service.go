package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pattern-alerts/internal/alert"
	"pattern-alerts/internal/alerting"
	"pattern-alerts/internal/analysis"
	"pattern-alerts/internal/fetcher"
	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/pattern"
	"pattern-alerts/internal/scheduler"
	"pattern-alerts/internal/series"
	"pattern-alerts/internal/state"
	"pattern-alerts/internal/storage"
)

// Deps collects the service's collaborators. Mirror, Audit, Notifier and
// Locker are optional; the cycle degrades without them.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Fetcher   fetcher.SeriesFetcher
	Samples   *series.Store
	Analyzer  *analysis.Analyzer
	Composer  *pattern.Composer
	Engine    *alert.Engine
	States    state.Store
	Mirror    storage.SampleStore
	Audit     storage.AlertAuditStore
	Notifier  alerting.Notifier
	Locker    storage.AdvisoryLocker
	Logger    zerolog.Logger
}

// Options tune per-cycle behaviour.
type Options struct {
	Instrument    string
	Metrics       []metric.ID
	HistoryWindow time.Duration
	Retention     time.Duration
	LockKey       int64
	Channels      []string
	AlertsOn      bool
	// MirrorRetention bounds how far back the durable sample mirror keeps
	// data; zero disables pruning.
	MirrorRetention time.Duration
	// DryRun computes the full snapshot and decision but never commits
	// state, records audit rows, or dispatches notifications.
	DryRun bool
}

// CycleResult reports everything one cycle produced, including the partial
// failures that did not abort it.
type CycleResult struct {
	Snapshot     pattern.Snapshot
	Decision     alert.Decision
	Unavailable  []metric.ID
	DroppedInput int
	StateSaveErr error
	Notified     bool
}

// Service orchestrates one analysis cycle: load state, fetch, ingest,
// analyze, compose, decide, commit, notify.
type Service struct {
	deps Deps
	opts Options
}

// New constructs the monitoring service.
func New(deps Deps, opts Options) *Service {
	if len(opts.Metrics) == 0 {
		opts.Metrics = metric.All()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 48 * time.Hour
	}
	if opts.Retention <= 0 {
		opts.Retention = opts.HistoryWindow
	}
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	return &Service{deps: deps, opts: opts}
}

// Run begins the aligned cycle loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle executes one scheduled cycle, guarded by the advisory lock
// when one is configured.
func (s *Service) ProcessCycle(ctx context.Context, cycle time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.deps.Logger.Debug().Time("cycle", cycle).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.RunCycle(ctx, cycle)
	return err
}

// RunCycle runs the full pipeline for one cycle timestamp. The wall clock
// is injected; nothing downstream reads it ad hoc. Partial metric failures
// degrade, never abort: the snapshot and decision are always produced.
func (s *Service) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	result := CycleResult{}
	logger := s.deps.Logger.With().Time("cycle", now).Logger()

	st, err := s.deps.States.Load(ctx, s.opts.Instrument)
	if err != nil {
		// Unreachable state degrades to first-run semantics: better one
		// extra notification than silence.
		logger.Warn().Err(err).Msg("alert state unreadable; proceeding with first-run state")
	}

	outcomes := s.fetchAll(ctx, now)
	for _, outcome := range outcomes {
		if !outcome.Available() {
			result.Unavailable = append(result.Unavailable, outcome.Metric)
			logger.Warn().Err(outcome.Err).Str("metric", string(outcome.Metric)).Msg("metric unavailable this cycle")
			continue
		}
		result.DroppedInput += s.ingest(ctx, outcome, now, logger)
	}

	if s.deps.Mirror != nil && s.opts.MirrorRetention > 0 {
		if err := s.deps.Mirror.DeleteSamplesBefore(ctx, now.Add(-s.opts.MirrorRetention)); err != nil {
			logger.Warn().Err(err).Msg("failed to prune mirrored samples")
		}
	}

	trends := make(map[metric.ID][]analysis.TrendResult, len(s.opts.Metrics))
	for _, id := range s.opts.Metrics {
		hist := s.deps.Samples.History(id, now.Add(-s.opts.Retention))
		if results := s.deps.Analyzer.Analyze(id, hist, now); len(results) > 0 {
			trends[id] = results
		}
	}

	result.Snapshot = s.deps.Composer.Compose(trends, now)
	if len(result.Unavailable) == len(s.opts.Metrics) {
		// Stale history can still yield trends; a cycle in which every
		// fetch failed has no fresh data and must never notify.
		result.Snapshot.Degraded = true
	}
	result.Decision = s.deps.Engine.Decide(result.Snapshot, st, now)

	logger.Info().
		Str("outcome", string(result.Decision.Outcome)).
		Str("reason", string(result.Decision.Reason)).
		Int("metrics_analyzed", len(trends)).
		Int("metrics_unavailable", len(result.Unavailable)).
		Strs("cross_signals", result.Snapshot.CrossSignals).
		Msg("cycle evaluated")

	if !result.Decision.Allowed() || s.opts.DryRun {
		return result, nil
	}

	// Commit before dispatch: a delivered-but-unrecorded alert would
	// re-notify next cycle, a recorded-but-undelivered one is healed by
	// the heartbeat.
	committed := alert.Commit(st, result.Snapshot, now)
	if err := s.deps.States.Save(ctx, committed); err != nil {
		result.StateSaveErr = err
		logger.Error().Err(err).Msg("failed to persist alert state")
	}

	s.recordAudit(ctx, result, now, logger)

	if s.opts.AlertsOn && s.deps.Notifier != nil {
		note := alerting.Notification{
			Instrument: s.opts.Instrument,
			CycleTS:    now,
			Snapshot:   result.Snapshot,
			Decision:   result.Decision,
			Channels:   s.opts.Channels,
		}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			logger.Error().Err(err).Msg("failed to dispatch alert")
		} else {
			result.Notified = true
		}
	}

	return result, nil
}

// fetchAll retrieves every metric concurrently and collects all outcomes
// before analysis begins.
func (s *Service) fetchAll(ctx context.Context, now time.Time) []fetcher.Outcome {
	from := now.Add(-s.opts.HistoryWindow)
	outcomes := make([]fetcher.Outcome, len(s.opts.Metrics))

	var wg sync.WaitGroup
	for i, id := range s.opts.Metrics {
		wg.Add(1)
		go func(i int, id metric.ID) {
			defer wg.Done()
			points, err := s.deps.Fetcher.FetchSeries(ctx, id, from, now)
			if err == nil && len(points) == 0 {
				err = fmt.Errorf("no data returned for %s", id)
			}
			outcomes[i] = fetcher.Outcome{Metric: id, Points: points, Err: err}
		}(i, id)
	}
	wg.Wait()

	return outcomes
}

// ingest records fetched points into the series store and mirrors them to
// durable storage when configured. Invalid samples are dropped and counted.
func (s *Service) ingest(ctx context.Context, outcome fetcher.Outcome, now time.Time, logger zerolog.Logger) int {
	dropped := 0
	for _, p := range outcome.Points {
		if err := s.deps.Samples.Record(outcome.Metric, p.Timestamp, p.Value, now); err != nil {
			if errors.Is(err, series.ErrInvalidSample) {
				dropped++
				logger.Debug().Err(err).Str("metric", string(outcome.Metric)).Msg("dropped invalid sample")
				continue
			}
			logger.Warn().Err(err).Str("metric", string(outcome.Metric)).Msg("failed to record sample")
			continue
		}

		if s.deps.Mirror != nil {
			row := storage.SampleRow{Metric: outcome.Metric, SampleTS: p.Timestamp, Value: decimal.NewFromFloat(p.Value)}
			if err := s.deps.Mirror.UpsertSample(ctx, row); err != nil {
				logger.Warn().Err(err).Str("metric", string(outcome.Metric)).Msg("failed to mirror sample")
			}
		}
	}
	return dropped
}

func (s *Service) recordAudit(ctx context.Context, result CycleResult, now time.Time, logger zerolog.Logger) {
	if s.deps.Audit == nil {
		return
	}
	deltas, err := json.Marshal(result.Decision.Deltas)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode decision deltas")
		return
	}
	row := storage.AlertRow{
		CycleTS:  now,
		Reason:   string(result.Decision.Reason),
		Deltas:   deltas,
		Degraded: result.Decision.Degraded,
	}
	if _, err := s.deps.Audit.InsertAlert(ctx, row); err != nil {
		logger.Error().Err(err).Msg("failed to persist alert audit row")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
