// Package storage holds the service's in-memory record history.
//
// History is a bounded, time-limited ring of records. The newest records
// win: once the ring is full the oldest record is evicted, and a background
// goroutine removes records older than the retention window.
package storage

import (
	"slices"
	"sync"
	"time"
)

// Defaults.
const (
	DefaultCapacity        = 1000
	DefaultRetention       = 24 * time.Hour
	DefaultCleanupInterval = time.Minute
)

// History stores records of type T in arrival order. It is safe for
// concurrent use by multiple goroutines.
type History[T any] struct {
	mu        sync.RWMutex
	records   []T
	capacity  int
	retention time.Duration
	stamp     func(T) time.Time
	now       func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewHistory creates a history holding at most capacity records. stamp
// returns a record's creation time and is used for retention; when
// retention or stamp is zero, records are evicted by capacity only.
func NewHistory[T any](capacity int, retention time.Duration, stamp func(T) time.Time) *History[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if stamp == nil {
		retention = 0
	}
	return &History[T]{
		records:   make([]T, 0, min(capacity, 64)),
		capacity:  capacity,
		retention: retention,
		stamp:     stamp,
		now:       time.Now,
	}
}

// StartCleanup launches the retention goroutine. It must be stopped with
// Stop. Histories without retention ignore the call.
func (h *History[T]) StartCleanup(interval time.Duration) {
	if h.retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	h.stopMu.Lock()
	defer h.stopMu.Unlock()

	if h.cleanupTicker != nil || h.stopped {
		return
	}
	h.cleanupTicker = time.NewTicker(interval)
	h.stopCleanup = make(chan struct{})
	h.cleanupDone = make(chan struct{})

	go h.runCleanup()
}

// Stop shuts down the retention goroutine and blocks until it exits.
// Calling Stop multiple times, or without StartCleanup, is safe.
func (h *History[T]) Stop() {
	h.stopMu.Lock()
	defer h.stopMu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true

	if h.cleanupTicker == nil {
		return
	}
	close(h.stopCleanup)
	<-h.cleanupDone
	h.cleanupTicker.Stop()
}

func (h *History[T]) runCleanup() {
	defer close(h.cleanupDone)

	for {
		select {
		case <-h.cleanupTicker.C:
			h.Expire()
		case <-h.stopCleanup:
			return
		}
	}
}

// Expire removes records older than the retention window and returns how
// many were removed.
func (h *History[T]) Expire() int {
	if h.retention <= 0 {
		return 0
	}

	cutoff := h.now().Add(-h.retention)

	h.mu.Lock()
	defer h.mu.Unlock()

	before := len(h.records)
	h.records = slices.DeleteFunc(h.records, func(r T) bool {
		return h.stamp(r).Before(cutoff)
	})
	return before - len(h.records)
}

// Append adds r, evicting the oldest record if the history is full.
func (h *History[T]) Append(r T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) == h.capacity {
		var zero T
		h.records[0] = zero
		h.records = h.records[1:]
	}
	h.records = append(h.records, r)
}

// List returns a copy of all records, oldest first.
func (h *History[T]) List() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.records)
}

// Drain returns all records, oldest first, and empties the history.
func (h *History[T]) Drain() []T {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.records
	h.records = make([]T, 0, min(h.capacity, 64))
	return out
}

// Update applies fn to every record for which match returns true and
// reports how many were updated.
func (h *History[T]) Update(match func(*T) bool, fn func(*T)) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for i := range h.records {
		if match(&h.records[i]) {
			fn(&h.records[i])
			n++
		}
	}
	return n
}

// Len returns the number of records held.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Capacity returns the maximum number of records held.
func (h *History[T]) Capacity() int {
	return h.capacity
}
