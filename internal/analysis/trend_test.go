package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/series"
)

func sampleAt(id metric.ID, ts time.Time, value float64) series.Sample {
	return series.Sample{Metric: id, Timestamp: ts, Value: decimal.NewFromFloat(value)}
}

func TestAnalyzeGradualClimb(t *testing.T) {
	now := time.Now().UTC()
	hist := []series.Sample{
		sampleAt(metric.Price, now.Add(-2*time.Hour), 100),
		sampleAt(metric.Price, now.Add(-time.Hour), 100),
		sampleAt(metric.Price, now, 103),
	}

	a := New(metric.DefaultTable(), []time.Duration{time.Hour})
	results := a.Analyze(metric.Price, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}

	r := results[0]
	if r.Direction != Increasing {
		t.Fatalf("3%% move should classify increasing, got %s", r.Direction)
	}
	if r.Significance != Medium {
		t.Fatalf("3%% move should classify medium, got %s", r.Significance)
	}
	if !r.PctChange.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3%% change, got %s", r.PctChange)
	}
}

func TestAnalyzeRatioCollapse(t *testing.T) {
	now := time.Now().UTC()
	hist := []series.Sample{
		sampleAt(metric.LongShortRatio, now.Add(-4*time.Hour), 3.65),
		sampleAt(metric.LongShortRatio, now, 2.98),
	}

	a := New(metric.DefaultTable(), []time.Duration{4 * time.Hour})
	results := a.Analyze(metric.LongShortRatio, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}

	r := results[0]
	if r.Direction != Decreasing {
		t.Fatalf("expected decreasing, got %s", r.Direction)
	}
	if r.Significance != High {
		t.Fatalf("an 18%% ratio drop should be high significance, got %s", r.Significance)
	}
	if !r.PctChange.Round(1).Equal(decimal.NewFromFloat(-18.4)) {
		t.Fatalf("expected about -18.4%%, got %s", r.PctChange)
	}
}

func TestAnalyzeReferenceIsBandMean(t *testing.T) {
	now := time.Now().UTC()
	// Both samples fall inside [now-4h24m, now-4h]; reference is their mean.
	hist := []series.Sample{
		sampleAt(metric.Price, now.Add(-4*time.Hour-20*time.Minute), 10),
		sampleAt(metric.Price, now.Add(-4*time.Hour), 20),
		sampleAt(metric.Price, now, 15),
	}

	a := New(metric.DefaultTable(), []time.Duration{4 * time.Hour})
	results := a.Analyze(metric.Price, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}
	if !results[0].ReferenceValue.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("reference should be the band mean 15, got %s", results[0].ReferenceValue)
	}
	if results[0].Direction != Stable {
		t.Fatalf("flat vs reference should be stable, got %s", results[0].Direction)
	}
}

func TestAnalyzeFallsBackToClosestPrecedingSample(t *testing.T) {
	now := time.Now().UTC()
	// Nothing inside the band; the closest sample before now-1h wins.
	hist := []series.Sample{
		sampleAt(metric.Price, now.Add(-3*time.Hour), 100),
		sampleAt(metric.Price, now.Add(-90*time.Minute), 110),
		sampleAt(metric.Price, now, 121),
	}

	a := New(metric.DefaultTable(), []time.Duration{time.Hour})
	results := a.Analyze(metric.Price, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}
	if !results[0].ReferenceValue.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("fallback reference should be 110, got %s", results[0].ReferenceValue)
	}
	if !results[0].PctChange.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10%% change, got %s", results[0].PctChange)
	}
}

func TestAnalyzeSkipsWindowWithoutReference(t *testing.T) {
	now := time.Now().UTC()
	hist := []series.Sample{sampleAt(metric.Price, now, 100)}

	a := New(metric.DefaultTable(), []time.Duration{time.Hour, 4 * time.Hour})
	if results := a.Analyze(metric.Price, hist, now); len(results) != 0 {
		t.Fatalf("no preceding data means no trends, got %d", len(results))
	}
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	a := New(metric.DefaultTable(), nil)
	if results := a.Analyze(metric.Price, nil, time.Now().UTC()); results != nil {
		t.Fatalf("empty history should yield nil, got %v", results)
	}
}

func TestAnalyzeZeroReferenceUsesAbsoluteDelta(t *testing.T) {
	now := time.Now().UTC()
	hist := []series.Sample{
		sampleAt(metric.FundingRate, now.Add(-time.Hour), 0),
		sampleAt(metric.FundingRate, now, 0.06),
	}

	a := New(metric.DefaultTable(), []time.Duration{time.Hour})
	results := a.Analyze(metric.FundingRate, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}

	r := results[0]
	if !r.AbsoluteOnly {
		t.Fatal("zero reference must flag AbsoluteOnly")
	}
	if r.Direction != Increasing {
		t.Fatalf("positive delta from zero should be increasing, got %s", r.Direction)
	}
	if r.Significance != High {
		t.Fatalf("0.06 exceeds the absolute-high bound, expected high, got %s", r.Significance)
	}
}

func TestAnalyzeBoundariesAreInclusive(t *testing.T) {
	now := time.Now().UTC()
	// Exactly the 2% stable threshold, which is also the medium tier cut.
	hist := []series.Sample{
		sampleAt(metric.Price, now.Add(-time.Hour), 100),
		sampleAt(metric.Price, now, 102),
	}

	a := New(metric.DefaultTable(), []time.Duration{time.Hour})
	results := a.Analyze(metric.Price, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}
	if results[0].Direction != Increasing {
		t.Fatalf("exactly 2%% should leave the dead band, got %s", results[0].Direction)
	}
	if results[0].Significance != Medium {
		t.Fatalf("exactly 2%% should reach the medium tier, got %s", results[0].Significance)
	}
}

func TestAnalyzeIgnoresFutureSamples(t *testing.T) {
	now := time.Now().UTC()
	hist := []series.Sample{
		sampleAt(metric.Price, now.Add(-time.Hour), 100),
		sampleAt(metric.Price, now.Add(-time.Minute), 103),
		sampleAt(metric.Price, now.Add(time.Minute), 999),
	}

	a := New(metric.DefaultTable(), []time.Duration{time.Hour})
	results := a.Analyze(metric.Price, hist, now)
	if len(results) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(results))
	}
	if !results[0].CurrentValue.Equal(decimal.NewFromInt(103)) {
		t.Fatalf("current value must not look past now, got %s", results[0].CurrentValue)
	}
}
