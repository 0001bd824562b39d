package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pattern-alerts/internal/metric"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testCoinalyze(baseURL string) *Coinalyze {
	return NewCoinalyze(CoinalyzeOptions{
		BaseURL:  baseURL,
		APIKey:   "key",
		Symbol:   "SOLUSDT_PERP.A",
		Interval: "1hour",
		Timeout:  time.Second,
	}, noopLogger())
}

func TestCoinalyzeMissingCredentials(t *testing.T) {
	c := NewCoinalyze(CoinalyzeOptions{Symbol: "SOLUSDT_PERP.A"}, noopLogger())
	if _, err := c.FetchSeries(context.Background(), metric.Price, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("missing api key should error")
	}

	c = NewCoinalyze(CoinalyzeOptions{APIKey: "key"}, noopLogger())
	if _, err := c.FetchSeries(context.Background(), metric.Price, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("missing symbol should error")
	}
}

func TestCoinalyzeFetchPrice(t *testing.T) {
	var gotPath, gotKey string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api_key")
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"symbol": "SOLUSDT_PERP.A",
			"history": []map[string]any{
				{"t": 1700000000, "c": 142.5},
				{"t": 1700003600, "c": 143.1},
			},
		}})
	}))
	defer srv.Close()

	points, err := testCoinalyze(srv.URL).FetchSeries(context.Background(), metric.Price, time.Unix(1700000000, 0), time.Unix(1700003600, 0))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotPath != "/ohlcv-history" {
		t.Fatalf("wrong path %s", gotPath)
	}
	if gotKey != "key" {
		t.Fatalf("api_key header missing, got %q", gotKey)
	}
	if got := gotQuery["symbols"]; len(got) != 1 || got[0] != "SOLUSDT_PERP.A" {
		t.Fatalf("symbols query wrong: %v", got)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Value != 142.5 {
		t.Fatalf("expected close 142.5, got %v", points[0].Value)
	}
	if !points[1].Timestamp.Equal(time.Unix(1700003600, 0).UTC()) {
		t.Fatalf("timestamp not decoded: %v", points[1].Timestamp)
	}
}

func TestCoinalyzeOpenInterestConvertsToUSD(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"symbol":  "SOLUSDT_PERP.A",
			"history": []map[string]any{{"t": 1700000000, "c": 1250000.0}},
		}})
	}))
	defer srv.Close()

	if _, err := testCoinalyze(srv.URL).FetchSeries(context.Background(), metric.OpenInterest, time.Unix(0, 0), time.Unix(1, 0)); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got := gotQuery["convert_to_usd"]; len(got) != 1 || got[0] != "true" {
		t.Fatalf("open interest must request USD conversion, got %v", got)
	}
}

func TestCoinalyzeLongShortRatioUsesRatioKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"symbol":  "SOLUSDT_PERP.A",
			"history": []map[string]any{{"t": 1700000000, "r": 3.65}},
		}})
	}))
	defer srv.Close()

	points, err := testCoinalyze(srv.URL).FetchSeries(context.Background(), metric.LongShortRatio, time.Unix(0, 0), time.Unix(1, 0))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(points) != 1 || points[0].Value != 3.65 {
		t.Fatalf("ratio not decoded from r: %+v", points)
	}
}

func TestCoinalyzeLiquidationsSumBothLegs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"symbol": "SOLUSDT_PERP.A",
			"history": []map[string]any{
				{"t": 1700000000, "l": 125000.0, "s": 75000.0},
				{"t": 1700003600, "l": 0.0, "s": 0.0},
				{"t": 1700007200},
			},
		}})
	}))
	defer srv.Close()

	points, err := testCoinalyze(srv.URL).FetchSeries(context.Background(), metric.Liquidations, time.Unix(0, 0), time.Unix(1, 0))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("entries without either leg must be skipped, got %d points", len(points))
	}
	if points[0].Value != 200000 {
		t.Fatalf("legs should sum to 200000, got %v", points[0].Value)
	}
	if points[1].Value != 0 {
		t.Fatalf("zero totals are still observations, got %v", points[1].Value)
	}
}

func TestCoinalyzeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"description": "invalid api key"})
	}))
	defer srv.Close()

	_, err := testCoinalyze(srv.URL).FetchSeries(context.Background(), metric.Price, time.Unix(0, 0), time.Unix(1, 0))
	if err == nil {
		t.Fatal("HTTP 401 should error")
	}
}

func TestCoinalyzeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	points, err := testCoinalyze(srv.URL).FetchSeries(context.Background(), metric.Price, time.Unix(0, 0), time.Unix(1, 0))
	if err != nil {
		t.Fatalf("empty response should not error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected no points, got %d", len(points))
	}
}

func TestStaticFetcherFiltersRange(t *testing.T) {
	now := time.Now().UTC()
	s := &Static{Series: map[metric.ID][]Point{
		metric.Price: {
			{Timestamp: now.Add(-3 * time.Hour), Value: 100},
			{Timestamp: now.Add(-time.Hour), Value: 101},
			{Timestamp: now, Value: 102},
		},
	}}

	points, err := s.FetchSeries(context.Background(), metric.Price, now.Add(-2*time.Hour), now)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("range filter should keep 2 points, got %d", len(points))
	}

	if _, err := s.FetchSeries(context.Background(), metric.OpenInterest, now.Add(-time.Hour), now); err == nil {
		t.Fatal("metric without data should report unavailable")
	}
}
