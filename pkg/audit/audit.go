// Package audit records the decisions the service makes. Every forecast,
// capacity prediction, risk assessment and drift signal is appended to an
// audit log with the actor, action, resource and subsystem that produced it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is a single audit record.
type Entry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Subsystem string    `json:"subsystem"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntry returns an entry stamped with a fresh ID and the current time.
func NewEntry(actor, action, resource, subsystem string, payload any) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Subsystem: subsystem,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Log is an append-only audit sink.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// NopLog discards every entry.
type NopLog struct{}

func (NopLog) Append(context.Context, Entry) error { return nil }
func (NopLog) Close() error                        { return nil }
