package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type record struct {
	ID        string
	CreatedAt time.Time
	Done      bool
}

func stampOf(r record) time.Time { return r.CreatedAt }

func TestNewHistory(t *testing.T) {
	h := NewHistory[record](0, 0, nil)
	if h.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", h.Capacity(), DefaultCapacity)
	}
	if h.Len() != 0 {
		t.Errorf("new history should be empty, got %d", h.Len())
	}
}

func TestHistory_AppendEvictsOldest(t *testing.T) {
	h := NewHistory[record](3, 0, nil)

	for i := 0; i < 5; i++ {
		h.Append(record{ID: fmt.Sprintf("r%d", i)})
	}

	got := h.List()
	want := []string{"r2", "r3", "r4"}
	if len(got) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestHistory_ListIsCopy(t *testing.T) {
	h := NewHistory[record](10, 0, nil)
	h.Append(record{ID: "a"})

	got := h.List()
	got[0].ID = "mutated"

	if h.List()[0].ID != "a" {
		t.Error("List() should return a copy")
	}
}

func TestHistory_Drain(t *testing.T) {
	h := NewHistory[record](10, 0, nil)
	h.Append(record{ID: "a"})
	h.Append(record{ID: "b"})

	got := h.Drain()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("Drain() = %+v", got)
	}
	if h.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", h.Len())
	}

	h.Append(record{ID: "c"})
	if len(got) != 2 {
		t.Error("drained slice should not change after new appends")
	}
}

func TestHistory_Update(t *testing.T) {
	h := NewHistory[record](10, 0, nil)
	h.Append(record{ID: "a"})
	h.Append(record{ID: "b"})
	h.Append(record{ID: "a"})

	n := h.Update(
		func(r *record) bool { return r.ID == "a" },
		func(r *record) { r.Done = true },
	)
	if n != 2 {
		t.Errorf("Update() = %d, want 2", n)
	}

	for _, r := range h.List() {
		if r.Done != (r.ID == "a") {
			t.Errorf("record %s Done = %v", r.ID, r.Done)
		}
	}

	if n := h.Update(func(r *record) bool { return r.ID == "missing" }, func(*record) {}); n != 0 {
		t.Errorf("Update() on missing = %d, want 0", n)
	}
}

func TestHistory_Expire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory(10, time.Hour, stampOf)
	h.now = func() time.Time { return now }

	h.Append(record{ID: "old", CreatedAt: now.Add(-2 * time.Hour)})
	h.Append(record{ID: "edge", CreatedAt: now.Add(-time.Hour)})
	h.Append(record{ID: "new", CreatedAt: now.Add(-time.Minute)})

	if removed := h.Expire(); removed != 1 {
		t.Errorf("Expire() = %d, want 1", removed)
	}

	got := h.List()
	if len(got) != 2 || got[0].ID != "edge" || got[1].ID != "new" {
		t.Errorf("List() after Expire = %+v", got)
	}
}

func TestHistory_ExpireWithoutRetention(t *testing.T) {
	h := NewHistory[record](10, time.Hour, nil)
	h.Append(record{ID: "a"})

	if removed := h.Expire(); removed != 0 {
		t.Errorf("Expire() = %d, want 0", removed)
	}
}

func TestHistory_CleanupGoroutine(t *testing.T) {
	h := NewHistory(10, 50*time.Millisecond, stampOf)
	h.StartCleanup(10 * time.Millisecond)
	defer h.Stop()

	h.Append(record{ID: "a", CreatedAt: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for h.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.Len() != 0 {
		t.Errorf("record should have expired, Len() = %d", h.Len())
	}
}

func TestHistory_StopIdempotent(t *testing.T) {
	h := NewHistory(10, time.Minute, stampOf)
	h.Stop()

	h = NewHistory(10, time.Minute, stampOf)
	h.StartCleanup(time.Minute)
	h.Stop()
	h.Stop()
}

func TestHistory_ConcurrentAccess(t *testing.T) {
	h := NewHistory[record](50, 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Append(record{ID: fmt.Sprintf("%d-%d", id, j)})
				_ = h.List()
				_ = h.Len()
			}
		}(i)
	}
	wg.Wait()

	if h.Len() != 50 {
		t.Errorf("Len() = %d, want 50", h.Len())
	}
}
