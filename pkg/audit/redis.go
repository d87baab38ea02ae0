package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream audit entries are appended to.
const DefaultStream = "foresight:audit"

// DefaultStreamMaxLen bounds the stream length. Trimming is approximate.
const DefaultStreamMaxLen = 100000

// RedisLog appends entries to a Redis stream with XADD. Each stream record
// carries the indexable envelope fields plus the full entry as JSON.
type RedisLog struct {
	client *redis.Client
	stream string
	maxLen int64
	owned  bool
}

// NewRedisLog writes to stream through client. The caller keeps ownership
// of client; Close does not close it.
func NewRedisLog(client *redis.Client, stream string, maxLen int64) (*RedisLog, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisLog{client: client, stream: stream, maxLen: maxLen}, nil
}

// DialRedisLog connects to Redis and returns a log that owns the
// connection.
func DialRedisLog(addr, password string, db int, stream string) (*RedisLog, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	l, _ := NewRedisLog(client, stream, 0)
	l.owned = true
	return l, nil
}

// Append adds e to the stream.
func (r *RedisLog) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":        e.ID,
			"actor":     e.Actor,
			"action":    e.Action,
			"resource":  e.Resource,
			"subsystem": e.Subsystem,
			"entry":     data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append audit entry to %s: %w", r.stream, err)
	}
	return nil
}

// Close releases the connection if the log owns it.
func (r *RedisLog) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
