package series

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
)

func TestRecordRejectsNonFinite(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now().UTC()

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := s.Record(metric.Price, now, v, now); !errors.Is(err, ErrInvalidSample) {
			t.Fatalf("value %v should be rejected as invalid, got %v", v, err)
		}
	}
	if s.Len(metric.Price) != 0 {
		t.Fatalf("rejected samples must not be stored, have %d", s.Len(metric.Price))
	}
}

func TestRecordRejectsFarFutureTimestamp(t *testing.T) {
	s := NewStore(Options{ClockSkew: 2 * time.Minute})
	now := time.Now().UTC()

	if err := s.Record(metric.Price, now.Add(3*time.Minute), 1, now); !errors.Is(err, ErrInvalidSample) {
		t.Fatalf("timestamp beyond skew should be rejected, got %v", err)
	}
	if err := s.Record(metric.Price, now.Add(time.Minute), 1, now); err != nil {
		t.Fatalf("timestamp within skew should be accepted: %v", err)
	}
}

func TestRecordRejectsUnknownMetric(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now().UTC()

	if err := s.Record(metric.ID("bogus"), now, 1, now); !errors.Is(err, ErrInvalidSample) {
		t.Fatalf("unknown metric should be rejected, got %v", err)
	}
}

func TestRecordDuplicateTimestampOverwrites(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now().UTC()
	ts := now.Add(-time.Hour)

	if err := s.Record(metric.Price, ts, 100, now); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	if err := s.Record(metric.Price, ts, 105, now); err != nil {
		t.Fatalf("overwrite record failed: %v", err)
	}

	if s.Len(metric.Price) != 1 {
		t.Fatalf("duplicate timestamp must overwrite, have %d samples", s.Len(metric.Price))
	}
	latest, ok := s.Latest(metric.Price)
	if !ok {
		t.Fatal("expected a latest sample")
	}
	if !latest.Value.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("expected overwritten value 105, got %s", latest.Value)
	}
}

func TestRecordEvictsBeyondRetention(t *testing.T) {
	s := NewStore(Options{Retention: 48 * time.Hour})
	now := time.Now().UTC()

	if err := s.Record(metric.Price, now.Add(-49*time.Hour), 90, now); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := s.Record(metric.Price, now.Add(-47*time.Hour), 95, now); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := s.Record(metric.Price, now, 100, now); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	hist := s.History(metric.Price, now.Add(-72*time.Hour))
	if len(hist) != 2 {
		t.Fatalf("sample older than retention should be evicted, have %d", len(hist))
	}
	if !hist[0].Value.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("oldest retained sample should be 95, got %s", hist[0].Value)
	}
}

func TestHistoryOrderAndSinceFilter(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now().UTC()

	// Inserted out of order on purpose.
	for _, offset := range []time.Duration{-time.Hour, -3 * time.Hour, -2 * time.Hour} {
		if err := s.Record(metric.OpenInterest, now.Add(offset), float64(-offset / time.Hour), now); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	hist := s.History(metric.OpenInterest, now.Add(-2*time.Hour))
	if len(hist) != 2 {
		t.Fatalf("since filter should keep 2 samples, have %d", len(hist))
	}
	if !hist[0].Timestamp.Before(hist[1].Timestamp) {
		t.Fatal("history must be ascending by timestamp")
	}
}

func TestHistoryEmptyMetric(t *testing.T) {
	s := NewStore(Options{})
	if hist := s.History(metric.Liquidations, time.Now().Add(-time.Hour)); len(hist) != 0 {
		t.Fatalf("empty metric should yield no samples, have %d", len(hist))
	}
	if _, ok := s.Latest(metric.Liquidations); ok {
		t.Fatal("empty metric should have no latest sample")
	}
}
