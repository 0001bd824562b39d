package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
)

// ErrInvalidSample marks a sample rejected at ingestion: non-finite value,
// or timestamp ahead of the clock beyond the skew tolerance.
var ErrInvalidSample = errors.New("series: invalid sample")

// Sample is one immutable observation of a metric.
type Sample struct {
	Metric    metric.ID
	Timestamp time.Time
	Value     decimal.Decimal
}

// Options tune the in-memory sample store.
type Options struct {
	// Retention bounds how far back samples are kept; older samples are
	// evicted lazily on insert.
	Retention time.Duration
	// ClockSkew tolerates slightly-future timestamps from the upstream API.
	ClockSkew time.Duration
}

const (
	defaultRetention = 48 * time.Hour
	defaultClockSkew = 2 * time.Minute
)

// Store keeps a bounded, timestamp-ordered series per tracked metric.
// Inserts and reads for a given metric are mutually exclusive so the
// concurrent per-metric fetch path can ingest safely.
type Store struct {
	retention time.Duration
	clockSkew time.Duration
	byMetric  map[metric.ID]*metricSeries
}

type metricSeries struct {
	mu      sync.Mutex
	samples []Sample
}

// NewStore builds a store with one pre-allocated series per tracked metric.
func NewStore(opts Options) *Store {
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	skew := opts.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}

	byMetric := make(map[metric.ID]*metricSeries, len(metric.All()))
	for _, id := range metric.All() {
		byMetric[id] = &metricSeries{}
	}
	return &Store{retention: retention, clockSkew: skew, byMetric: byMetric}
}

// Record validates and inserts one observation, evicting samples that have
// aged out of the retention horizon. A duplicate timestamp overwrites the
// previously stored value instead of duplicating the entry.
func (s *Store) Record(id metric.ID, ts time.Time, value float64, now time.Time) error {
	ms, ok := s.byMetric[id]
	if !ok {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidSample, id)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: non-finite value for %s", ErrInvalidSample, id)
	}
	if ts.After(now.Add(s.clockSkew)) {
		return fmt.Errorf("%w: timestamp %s ahead of clock", ErrInvalidSample, ts.UTC().Format(time.RFC3339))
	}

	sample := Sample{Metric: id, Timestamp: ts.UTC(), Value: decimal.NewFromFloat(value)}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.insert(sample)
	ms.evictBefore(now.Add(-s.retention))
	return nil
}

// History returns the samples for a metric with timestamp >= since, in
// ascending timestamp order. An empty slice means no data, never an error.
func (s *Store) History(id metric.ID, since time.Time) []Sample {
	ms, ok := s.byMetric[id]
	if !ok {
		return nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	idx := sort.Search(len(ms.samples), func(i int) bool {
		return !ms.samples[i].Timestamp.Before(since)
	})
	out := make([]Sample, len(ms.samples)-idx)
	copy(out, ms.samples[idx:])
	return out
}

// Latest returns the most recent sample for a metric, if any.
func (s *Store) Latest(id metric.ID) (Sample, bool) {
	ms, ok := s.byMetric[id]
	if !ok {
		return Sample{}, false
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if len(ms.samples) == 0 {
		return Sample{}, false
	}
	return ms.samples[len(ms.samples)-1], true
}

// Len reports the number of retained samples for a metric.
func (s *Store) Len(id metric.ID) int {
	ms, ok := s.byMetric[id]
	if !ok {
		return 0
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.samples)
}

func (ms *metricSeries) insert(sample Sample) {
	n := len(ms.samples)
	// Common case: strictly newer than everything retained.
	if n == 0 || sample.Timestamp.After(ms.samples[n-1].Timestamp) {
		ms.samples = append(ms.samples, sample)
		return
	}

	idx := sort.Search(n, func(i int) bool {
		return !ms.samples[i].Timestamp.Before(sample.Timestamp)
	})
	if idx < n && ms.samples[idx].Timestamp.Equal(sample.Timestamp) {
		ms.samples[idx] = sample
		return
	}
	ms.samples = append(ms.samples, Sample{})
	copy(ms.samples[idx+1:], ms.samples[idx:])
	ms.samples[idx] = sample
}

func (ms *metricSeries) evictBefore(horizon time.Time) {
	idx := sort.Search(len(ms.samples), func(i int) bool {
		return !ms.samples[i].Timestamp.Before(horizon)
	})
	if idx == 0 {
		return
	}
	ms.samples = append(ms.samples[:0], ms.samples[idx:]...)
}
