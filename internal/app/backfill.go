package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/storage"
)

// Backfill fetches historical samples for every tracked metric and mirrors
// them into durable storage. The alert state is never touched: backfill
// fills the archive, it does not re-decide past cycles.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("backfill range empty; check --from/--to")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	fetch := a.newFetcher()

	stored := 0
	failed := 0
	for _, id := range metric.All() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		points, fetchErr := fetch.FetchSeries(ctx, id, from, to)
		if fetchErr != nil {
			failed++
			a.Logger.Error().Err(fetchErr).Str("metric", string(id)).Msg("backfill fetch failed")
			continue
		}

		a.Logger.Info().Str("metric", string(id)).Int("points", len(points)).Msg("fetched history")
		if opts.DryRun {
			continue
		}

		for _, p := range points {
			row := storage.SampleRow{Metric: id, SampleTS: p.Timestamp, Value: decimal.NewFromFloat(p.Value)}
			if err := store.UpsertSample(ctx, row); err != nil {
				a.Logger.Error().Err(err).Str("metric", string(id)).Time("ts", p.Timestamp).Msg("backfill upsert failed")
				failed++
				continue
			}
			stored++
		}
	}

	a.Logger.Info().Int("stored", stored).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return errors.New("some backfill operations failed; check logs")
	}
	return nil
}
