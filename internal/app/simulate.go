package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pattern-alerts/internal/alerting"
	"pattern-alerts/internal/fetcher"
	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/state"
)

// SimulateAlert runs one cycle against a synthetic two-point series for a
// single metric: the reference value planted two hours back and the current
// value at now. State lives in memory, so the cycle takes the first-run
// path and exercises the full render/notify flow.
func (a *App) SimulateAlert(ctx context.Context, metricName string, reference, current float64) error {
	id, err := metric.Parse(metricName)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	static := fetcher.NewStatic(map[metric.ID][]fetcher.Point{
		id: {
			{Timestamp: now.Add(-2 * time.Hour), Value: reference},
			{Timestamp: now.Add(-time.Hour), Value: reference},
			{Timestamp: now, Value: current},
		},
	})

	svc := a.newService(nil, static, nil, state.NewMemoryStore(), notifier, false)

	result, err := svc.RunCycle(ctx, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "decision: %s (%s), notified: %t\n",
		result.Decision.Outcome, result.Decision.Reason, result.Notified)
	fmt.Fprintln(os.Stdout, alerting.RenderMessage(alerting.Notification{
		Instrument: a.Config.App.Instrument,
		CycleTS:    now,
		Snapshot:   result.Snapshot,
		Decision:   result.Decision,
		Channels:   a.Config.Alerting.Channels,
	}))
	return nil
}
