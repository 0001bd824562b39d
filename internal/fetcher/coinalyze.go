package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pattern-alerts/internal/metric"
)

const defaultBaseURL = "https://api.coinalyze.net/v1"

// endpointSpec describes how one metric maps onto the Coinalyze API.
type endpointSpec struct {
	path         string
	convertToUSD bool
}

var endpoints = map[metric.ID]endpointSpec{
	metric.Price:          {path: "/ohlcv-history"},
	metric.OpenInterest:   {path: "/open-interest-history", convertToUSD: true},
	metric.FundingRate:    {path: "/funding-rate-history"},
	metric.LongShortRatio: {path: "/long-short-ratio-history"},
	metric.Liquidations:   {path: "/liquidation-history", convertToUSD: true},
}

// CoinalyzeOptions parameterise the Coinalyze fetcher.
type CoinalyzeOptions struct {
	BaseURL   string
	APIKey    string
	Symbol    string
	Interval  string
	Timeout   time.Duration
	UserAgent string
}

// Coinalyze fetches metric histories from the Coinalyze REST API.
type Coinalyze struct {
	opts    CoinalyzeOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinalyze constructs a Coinalyze fetcher.
func NewCoinalyze(opts CoinalyzeOptions, logger zerolog.Logger) *Coinalyze {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Interval == "" {
		opts.Interval = "1hour"
	}

	return &Coinalyze{
		opts:    opts,
		logger:  logger.With().Str("component", "coinalyze_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchSeries retrieves one metric's history within [from, to].
func (c *Coinalyze) FetchSeries(ctx context.Context, id metric.ID, from, to time.Time) ([]Point, error) {
	spec, ok := endpoints[id]
	if !ok {
		return nil, fmt.Errorf("no endpoint for metric %q", id)
	}
	if c.opts.Symbol == "" {
		return nil, errors.New("symbol required")
	}
	if c.opts.APIKey == "" {
		return nil, errors.New("api key required")
	}

	query := url.Values{}
	query.Set("symbols", c.opts.Symbol)
	query.Set("interval", c.opts.Interval)
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))
	if spec.convertToUSD {
		query.Set("convert_to_usd", "true")
	}

	endpoint := c.baseURL + spec.path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api_key", c.opts.APIKey)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "patternwatcher/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var decoded []symbolHistory
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", spec.path, err)
	}
	if len(decoded) == 0 {
		return nil, nil
	}

	return extractPoints(id, decoded[0].History), nil
}

// extractPoints pulls the per-metric value out of each history entry.
// Liquidations sum the long and short legs; the long/short ratio lives
// under "r", everything else closes under "c".
func extractPoints(id metric.ID, history []historyEntry) []Point {
	points := make([]Point, 0, len(history))
	for _, entry := range history {
		var value *float64
		switch id {
		case metric.LongShortRatio:
			value = entry.Ratio
		case metric.Liquidations:
			if entry.LongLiq != nil || entry.ShortLiq != nil {
				total := deref(entry.LongLiq) + deref(entry.ShortLiq)
				value = &total
			}
		default:
			value = entry.Close
		}
		if value == nil {
			continue
		}
		points = append(points, Point{
			Timestamp: time.Unix(entry.T, 0).UTC(),
			Value:     *value,
		})
	}
	return points
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

type symbolHistory struct {
	Symbol  string         `json:"symbol"`
	History []historyEntry `json:"history"`
}

type historyEntry struct {
	T        int64    `json:"t"`
	Close    *float64 `json:"c"`
	Ratio    *float64 `json:"r"`
	LongLiq  *float64 `json:"l"`
	ShortLiq *float64 `json:"s"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("coinalyze api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("coinalyze api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("coinalyze api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("coinalyze api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coinalyze api error (%d)", status)
}

var _ SeriesFetcher = (*Coinalyze)(nil)
