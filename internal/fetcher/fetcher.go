package fetcher

import (
	"context"
	"time"

	"pattern-alerts/internal/metric"
)

// Point is one raw observation from the upstream API. Values stay float64
// until ingestion, where finiteness is validated.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// SeriesFetcher retrieves the recent history for one metric.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, id metric.ID, from, to time.Time) ([]Point, error)
}

// Outcome is the typed result of one metric's fetch within a cycle: either
// points or an unavailability reason, never both.
type Outcome struct {
	Metric metric.ID
	Points []Point
	Err    error
}

// Available reports whether the fetch produced usable data.
func (o Outcome) Available() bool {
	return o.Err == nil
}
