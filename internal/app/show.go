package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/storage"
)

// Show prints recent samples for one metric, or the recent alert audit
// trail with --alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}

	id, err := metric.Parse(opts.Metric)
	if err != nil {
		return err
	}

	samples, err := store.ListRecentSamples(ctx, id, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMetric\tValue")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			sample.SampleTS.UTC().Format(time.RFC3339),
			sample.Metric,
			sample.Value.String(),
		)
	}
	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tReason\tDegraded\tDeltas")
	for _, row := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%t\t%s\n",
			row.CycleTS.UTC().Format(time.RFC3339),
			row.Reason,
			row.Degraded,
			sanitizeInline(string(row.Deltas)),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
