// Package timeseries holds the bounded in-process series store and the
// closed-form analysis (smoothing, trend, volatility, seasonality) that the
// forecasting components run over it.
package timeseries

import (
	"maps"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of points retained per series when no
// capacity is configured.
const DefaultCapacity = 200

// Point is a single observation. Points are values and are never mutated
// after they enter a Buffer.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewPoint creates a point, copying metadata so later changes by the caller
// are not observed by the buffer.
func NewPoint(ts time.Time, value float64, metadata map[string]string) Point {
	var md map[string]string
	if len(metadata) > 0 {
		md = maps.Clone(metadata)
	}
	return Point{Timestamp: ts, Value: value, Metadata: md}
}

// series is a fixed-capacity circular buffer guarded by its own lock so that
// ingestion on one series never waits on analysis of another.
type series struct {
	mu     sync.RWMutex
	points []Point
	head   int
	size   int
}

func newSeries(capacity int) *series {
	return &series{points: make([]Point, capacity)}
}

func (s *series) push(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := (s.head + s.size) % len(s.points)
	s.points[idx] = p
	if s.size < len(s.points) {
		s.size++
	} else {
		s.head = (s.head + 1) % len(s.points)
	}
}

// last returns up to n most recent points, oldest first.
func (s *series) last(n int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.size {
		n = s.size
	}
	out := make([]Point, n)
	start := s.size - n
	for i := 0; i < n; i++ {
		out[i] = s.points[(s.head+start+i)%len(s.points)]
	}
	return out
}

func (s *series) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Buffer maps series IDs to bounded, time-ordered point sequences. When a
// series is full the oldest point is evicted to make room for the new one.
//
// Buffer is safe for concurrent use. The series map is guarded by one lock
// and every series carries its own, so writers to different series do not
// contend.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*series
}

// NewBuffer creates a buffer retaining at most capacity points per series.
// A capacity <= 0 selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[string]*series),
	}
}

// Capacity returns the per-series point limit.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// AddPoint appends p to the series, evicting the oldest point if the series
// is at capacity.
func (b *Buffer) AddPoint(seriesID string, p Point) {
	b.getOrCreate(seriesID).push(p)
}

// Window returns the last n points of the series in chronological order, or
// every retained point when fewer than n exist. n <= 0 returns all points.
// Unknown series yield an empty slice.
func (b *Buffer) Window(seriesID string, n int) []Point {
	s := b.get(seriesID)
	if s == nil {
		return []Point{}
	}
	return s.last(n)
}

// Values is Window reduced to the observation values.
func (b *Buffer) Values(seriesID string, n int) []float64 {
	points := b.Window(seriesID, n)
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Latest returns the most recent point of the series.
func (b *Buffer) Latest(seriesID string) (Point, bool) {
	points := b.Window(seriesID, 1)
	if len(points) == 0 {
		return Point{}, false
	}
	return points[0], true
}

// Len returns the number of points currently retained for the series.
func (b *Buffer) Len(seriesID string) int {
	s := b.get(seriesID)
	if s == nil {
		return 0
	}
	return s.len()
}

// Series returns the known series IDs in lexical order.
func (b *Buffer) Series() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.series))
	for id := range b.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Buffer) get(seriesID string) *series {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.series[seriesID]
}

func (b *Buffer) getOrCreate(seriesID string) *series {
	if s := b.get(seriesID); s != nil {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.series[seriesID]; ok {
		return s
	}
	s := newSeries(b.capacity)
	b.series[seriesID] = s
	return s
}
