package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pattern-alerts/internal/alert"
	"pattern-alerts/internal/metric"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStore(path, testLogger())

	notifiedAt := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	st := alert.State{
		Instrument:     "SOL",
		LastNotifiedAt: notifiedAt,
		LastNotified: &alert.Baseline{
			Timestamp: notifiedAt,
			Metrics: map[metric.ID]decimal.Decimal{
				metric.Price:       decimal.NewFromFloat(142.5),
				metric.FundingRate: decimal.NewFromFloat(0.012),
			},
			CrossSignals: []string{"crowded_longs"},
		},
	}

	if err := fs.Save(context.Background(), st); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := fs.Load(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Instrument != "SOL" || !got.LastNotifiedAt.Equal(notifiedAt) {
		t.Fatalf("state did not round-trip: %+v", got)
	}
	if got.LastNotified == nil {
		t.Fatal("baseline missing after round-trip")
	}
	if !got.LastNotified.Metrics[metric.Price].Equal(decimal.NewFromFloat(142.5)) {
		t.Fatalf("baseline price did not round-trip: %s", got.LastNotified.Metrics[metric.Price])
	}
	if len(got.LastNotified.CrossSignals) != 1 || got.LastNotified.CrossSignals[0] != "crowded_longs" {
		t.Fatalf("cross signals did not round-trip: %v", got.LastNotified.CrossSignals)
	}
}

func TestFileStoreMissingFileIsFirstRun(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), testLogger())

	st, err := fs.Load(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if st.LastNotified != nil {
		t.Fatal("missing file must yield the first-run state")
	}
	if st.Instrument != "SOL" {
		t.Fatalf("first-run state should carry the instrument, got %q", st.Instrument)
	}
}

func TestFileStoreCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	fs := NewFileStore(path, testLogger())
	st, err := fs.Load(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("corrupt file must not error: %v", err)
	}
	if st.LastNotified != nil {
		t.Fatal("corrupt file must reset to the first-run state")
	}
}

func TestFileStoreSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	fs := NewFileStore(path, testLogger())

	if err := fs.Save(context.Background(), alert.NewState("SOL")); err != nil {
		t.Fatalf("save should create parent directories: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file missing after save: %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ms := NewMemoryStore()

	st, err := ms.Load(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if st.LastNotified != nil {
		t.Fatal("fresh memory store must yield the first-run state")
	}

	st.LastNotifiedAt = time.Now().UTC()
	st.LastNotified = &alert.Baseline{Timestamp: st.LastNotifiedAt}
	if err := ms.Save(context.Background(), st); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := ms.Load(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got.LastNotified == nil {
		t.Fatal("memory store dropped the baseline")
	}
}
