package bus

import (
	"context"
	"path"
	"sync"
)

// MemoryBus delivers events synchronously to matching in-process
// subscribers. It is safe for concurrent use.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*memorySubscription
	nextID int
	closed bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*memorySubscription)}
}

type memorySubscription struct {
	bus     *MemoryBus
	id      int
	pattern string
	handler Handler
	once    sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
	return nil
}

// Subscribe registers h for events whose type matches pattern.
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &memorySubscription{bus: b, id: b.nextID, pattern: pattern, handler: h}
	b.subs[sub.id] = sub
	return sub, nil
}

// Publish hands ev to every matching subscriber before returning.
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var targets []Handler
	for _, sub := range b.subs {
		if ok, _ := path.Match(sub.pattern, ev.Type); ok {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(ctx, ev)
	}
	return nil
}

// Close drops all subscriptions. Later calls fail with ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[int]*memorySubscription)
	return nil
}
