package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

// RangeQuery fetches a series through the Prometheus range query API. It
// also serves VictoriaMetrics, which exposes the same endpoint.
//
// If the query returns multiple series, values with the same timestamp are
// SUMMED.
type RangeQuery struct {
	// Kind is reported by Name; "prometheus" when empty.
	Kind string
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL/MetricsQL expression to evaluate.
	Query string
	// Step controls the resolution (DefaultStep if <= 0).
	Step time.Duration
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *RangeQuery) Name() string {
	if p.Kind == "" {
		return "prometheus"
	}
	return p.Kind
}

// Fetch implements Source.
func (p *RangeQuery) Fetch(ctx context.Context, window time.Duration) ([]timeseries.Point, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, fmt.Errorf("%s source: ServerURL and Query are required", p.Name())
	}
	step := p.Step
	if step <= 0 {
		step = DefaultStep
	}
	// Step-aligned bounds keep every returned sample on a multiple of step.
	now := AlignTimestamp(time.Now().UTC(), step)
	start := AlignTimestamp(now.Add(-window), step)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	q.Set("step", strconv.Itoa(int(step.Seconds())))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", p.Name(), err)
	}

	return ParseRangeResponse(body)
}

// ParseRangeResponse sums the series of a query_range response by
// timestamp and returns the points in timestamp order.
func ParseRangeResponse(body []byte) ([]timeseries.Point, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("decode range response: invalid JSON")
	}
	doc := gjson.ParseBytes(body)

	if status := doc.Get("status").String(); status != "success" {
		return nil, fmt.Errorf("range query status: %s", status)
	}

	acc := make(map[int64]float64)
	var parseErr error
	doc.Get("data.result").ForEach(func(_, serie gjson.Result) bool {
		serie.Get("values").ForEach(func(_, pair gjson.Result) bool {
			fields := pair.Array()
			if len(fields) != 2 {
				parseErr = fmt.Errorf("invalid value pair length: %d", len(fields))
				return false
			}
			ts := int64(fields[0].Float())

			// Values are encoded as strings ("NaN", "+Inf" included).
			v, err := strconv.ParseFloat(fields[1].String(), 64)
			if err != nil {
				parseErr = fmt.Errorf("parse value: %w", err)
				return false
			}
			acc[ts] += v
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}

	points := make([]timeseries.Point, 0, len(acc))
	for ts, v := range acc {
		points = append(points, timeseries.NewPoint(time.Unix(ts, 0).UTC(), v, nil))
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}
