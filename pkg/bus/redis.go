package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to event types to form channel names.
const DefaultChannelPrefix = "foresight:"

// RedisBus carries events over Redis pub/sub. Each event is published on
// the channel prefix+event type as a JSON envelope; subscriptions use
// PSUBSCRIBE so glob patterns behave as in MemoryBus.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

// NewRedisBus connects to Redis and verifies the connection.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number
//   - prefix: channel prefix (empty uses DefaultChannelPrefix)
func NewRedisBus(addr, password string, db int, prefix string, logger *slog.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return NewRedisBusFromClient(client, prefix, logger), nil
}

// NewRedisBusFromClient wraps an existing client. The bus takes ownership
// of the client and closes it in Close.
func NewRedisBusFromClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisBus {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis-bus"),
		subs:   make(map[*redisSubscription]struct{}),
	}
}

// Client exposes the underlying Redis client so other components can share
// the connection pool.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

// Publish sends ev on its channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if b.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.prefix+ev.Type, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe pattern-subscribes to prefix+pattern and dispatches decoded
// events to h from a dedicated goroutine. Messages that are not valid
// envelopes are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ps := b.client.PSubscribe(ctx, b.prefix+pattern)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{bus: b, ps: ps, cancel: cancel, done: make(chan struct{})}
	b.subs[sub] = struct{}{}

	go sub.run(subCtx, h)

	b.logger.Info("subscribed", "pattern", pattern)
	return sub, nil
}

// Close ends every subscription and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return b.client.Close()
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type redisSubscription struct {
	bus    *RedisBus
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) run(ctx context.Context, h Handler) {
	defer close(s.done)

	for msg := range s.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.bus.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
			continue
		}
		if ev.Type == "" {
			ev.Type = strings.TrimPrefix(msg.Channel, s.bus.prefix)
		}
		h(ctx, ev)
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done

		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
	return err
}
