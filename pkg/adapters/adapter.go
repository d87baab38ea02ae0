// Package adapters provides backfill sources that seed the metric buffer
// from an external metrics backend at startup, so analysis does not have to
// wait for enough live events to arrive.
//
// Available sources:
//   - RangeQuery (kind "prometheus" or "victoriametrics"): /api/v1/query_range
//   - HTTPSource (kind "http"): any JSON API, extracted with gjson paths
//
// Sources only fetch and normalize. Points are handed to the caller in
// timestamp order and carry no analysis.
package adapters

import (
	"context"
	"time"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

// DefaultStep is the resolution used when none is configured.
const DefaultStep = time.Minute

// Source fetches historical points for a single series.
type Source interface {
	// Fetch returns the points observed over the last window, oldest
	// first. It must respect ctx cancellation and never panic.
	Fetch(ctx context.Context, window time.Duration) ([]timeseries.Point, error)

	// Name returns a short identifier, e.g. "prometheus" or "http".
	Name() string
}

// AlignTimestamp truncates ts to a multiple of step.
func AlignTimestamp(ts time.Time, step time.Duration) time.Time {
	return ts.Truncate(step)
}
