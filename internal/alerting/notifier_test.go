package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pattern-alerts/internal/alert"
	"pattern-alerts/internal/analysis"
	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/pattern"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testNotification() Notification {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	return Notification{
		Instrument: "SOL",
		CycleTS:    now,
		Snapshot: pattern.Snapshot{
			Timestamp: now,
			Trends: map[metric.ID][]analysis.TrendResult{
				metric.Price: {{
					Metric:         metric.Price,
					Window:         time.Hour,
					CurrentValue:   decimal.NewFromFloat(142.5),
					ReferenceValue: decimal.NewFromFloat(138.2),
					Delta:          decimal.NewFromFloat(4.3),
					PctChange:      decimal.NewFromFloat(3.11),
					Direction:      analysis.Increasing,
					Significance:   analysis.Medium,
				}},
			},
			CrossSignals: []string{"crowded_longs"},
		},
		Decision: alert.Decision{
			Outcome: alert.Allow,
			Reason:  alert.ReasonThreshold,
			Deltas: []alert.Delta{{
				Metric:    metric.Price,
				Change:    decimal.NewFromFloat(3.11),
				Threshold: decimal.NewFromInt(2),
				Triggered: true,
			}},
		},
		Channels: []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id wrong: %#v", received)
	}
	if received["text"] == "" {
		t.Fatal("text should not be empty")
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false should error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("HTTP 502 should error")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(testNotification())

	for _, want := range []string{
		"[SOL pattern alert]",
		"Reason: threshold",
		"Price: $142.50",
		"↑ +3.11% vs 1h ago",
		"Signals: crowded_longs",
		"Triggered by:",
		"price +3.11% since last alert (threshold 2%)",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderMessageDegraded(t *testing.T) {
	note := testNotification()
	note.Snapshot = pattern.Snapshot{Timestamp: note.CycleTS, Degraded: true}
	note.Decision = alert.Decision{Outcome: alert.Suppress, Reason: alert.ReasonDegraded, Degraded: true}

	msg := RenderMessage(note)
	if !strings.Contains(msg, "No metric data available this cycle.") {
		t.Fatalf("degraded message wrong:\n%s", msg)
	}
	if strings.Contains(msg, "Triggered by:") {
		t.Fatalf("degraded message must not list deltas:\n%s", msg)
	}
}
