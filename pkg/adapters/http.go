package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

// Timestamp formats understood by HTTPSource.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// HTTPSource calls a JSON endpoint and extracts a series with gjson paths.
// The query parameters "start" and "end" (Unix seconds) are appended to the
// URL so the backend can bound its answer.
//
// Example:
//
//	src := &HTTPSource{
//	    URL:           "https://api.example.com/metrics",
//	    Headers:       map[string]string{"Authorization": "Bearer token"},
//	    ValuePath:     "data.#.value",
//	    TimestampPath: "data.#.timestamp",
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required).
	URL string
	// Headers are added to the request.
	Headers map[string]string
	// ValuePath is the gjson path to the values, e.g. "data.#.value".
	ValuePath string
	// TimestampPath is the gjson path to the timestamps. It must select
	// as many elements as ValuePath.
	TimestampPath string
	// TimestampFormat is one of rfc3339 (default), unix or unix_milli.
	TimestampFormat string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (h *HTTPSource) Name() string { return "http" }

// Validate checks the source configuration.
func (h *HTTPSource) Validate() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	switch h.TimestampFormat {
	case "", TimestampRFC3339, TimestampUnix, TimestampUnixMilli:
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}

// Fetch implements Source.
func (h *HTTPSource) Fetch(ctx context.Context, window time.Duration) ([]timeseries.Point, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-window)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("start", fmt.Sprintf("%d", start.Unix()))
	q.Set("end", fmt.Sprintf("%d", now.Unix()))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	values := gjson.GetBytes(body, h.ValuePath)
	timestamps := gjson.GetBytes(body, h.TimestampPath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()
	if len(valArray) != len(tsArray) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	points := make([]timeseries.Point, 0, len(valArray))
	for i := range valArray {
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points = append(points, timeseries.NewPoint(ts, valArray[i].Float(), nil))
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

func (h *HTTPSource) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", TimestampRFC3339:
		return time.Parse(time.RFC3339, value.String())
	case TimestampUnix:
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case TimestampUnixMilli:
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}
