package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"pattern-alerts/internal/alerting"
)

// Analyze runs one analysis cycle immediately and prints the resulting
// snapshot summary. With dryRun the alert state is left untouched and no
// notification is dispatched, so operators can inspect what a cycle would
// decide without advancing the baseline.
func (a *App) Analyze(ctx context.Context, dryRun bool) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	states, closeStates, err := a.newStateStore(store)
	if err != nil {
		return err
	}
	if closeStates != nil {
		defer closeStates()
	}

	svc := a.newService(nil, a.newFetcher(), store, states, a.newNotifier(), dryRun)

	now := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	result, err := svc.RunCycle(ctx, now)
	if err != nil {
		return err
	}

	summary := alerting.RenderMessage(alerting.Notification{
		Instrument: a.Config.App.Instrument,
		CycleTS:    now,
		Snapshot:   result.Snapshot,
		Decision:   result.Decision,
		Channels:   a.Config.Alerting.Channels,
	})
	fmt.Fprintln(os.Stdout, summary)

	fmt.Fprintf(os.Stdout, "decision: %s (%s)\n", result.Decision.Outcome, result.Decision.Reason)
	if len(result.Unavailable) > 0 {
		fmt.Fprintf(os.Stdout, "unavailable metrics: %v\n", result.Unavailable)
	}
	if result.StateSaveErr != nil {
		fmt.Fprintf(os.Stdout, "warning: alert state not persisted: %v\n", result.StateSaveErr)
	}
	return nil
}
