package fetcher

import (
	"context"
	"fmt"
	"time"

	"pattern-alerts/internal/metric"
)

// Static serves pre-seeded series; the simulate command and tests use it in
// place of the live API.
type Static struct {
	Series map[metric.ID][]Point
}

// NewStatic builds a Static fetcher over the given series.
func NewStatic(series map[metric.ID][]Point) *Static {
	return &Static{Series: series}
}

// FetchSeries returns the seeded points within [from, to]. A metric with no
// seeded series reports unavailable, mirroring a failed remote fetch.
func (s *Static) FetchSeries(ctx context.Context, id metric.ID, from, to time.Time) ([]Point, error) {
	points, ok := s.Series[id]
	if !ok {
		return nil, fmt.Errorf("metric %s unavailable", id)
	}
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

var _ SeriesFetcher = (*Static)(nil)
