// Package outbox decouples outbound bus publishes and audit appends from
// the paths that produce them. Calls are queued on a bounded channel and
// drained by a single worker that applies a per-call timeout and bounded
// exponential-backoff retries. Producers never block: when the queue is
// full the call is dropped and counted.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HatiCode/foresight/pkg/audit"
	"github.com/HatiCode/foresight/pkg/bus"
	"github.com/HatiCode/foresight/pkg/metrics"
)

// Defaults.
const (
	DefaultSize       = 1024
	DefaultRetries    = 3
	DefaultTimeout    = 5 * time.Second
	DefaultRetryDelay = 100 * time.Millisecond
)

var (
	// ErrQueueFull is returned when a call is dropped on a full queue.
	ErrQueueFull = errors.New("outbox: queue full")
	// ErrClosed is returned for calls made after Close.
	ErrClosed = errors.New("outbox: closed")
)

// Outbound call kinds, used as the failure metric label.
const (
	KindPublish = "publish"
	KindAudit   = "audit"
)

// Config configures an Outbox.
type Config struct {
	Size       int
	Retries    int
	Timeout    time.Duration
	RetryDelay time.Duration
}

type call struct {
	kind  string
	label string
	do    func(ctx context.Context) error
}

// Outbox is a bounded, retrying queue of outbound calls.
type Outbox struct {
	publisher bus.Publisher
	audit     audit.Log
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	queue chan call
	done  chan struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

// New creates an outbox in front of publisher and log. Start must be called
// before queued calls are delivered.
func New(publisher bus.Publisher, log audit.Log, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Outbox {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if log == nil {
		log = audit.NopLog{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Outbox{
		publisher: publisher,
		audit:     log,
		cfg:       cfg,
		logger:    logger.With("component", "outbox"),
		metrics:   m,
		queue:     make(chan call, cfg.Size),
		done:      make(chan struct{}),
	}
}

// Start launches the drain worker. Calling Start more than once has no
// effect.
func (o *Outbox) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started || o.closed {
		return
	}
	o.started = true
	go o.run()
}

// Publish queues ev for publication.
func (o *Outbox) Publish(ev bus.Event) error {
	if o.publisher == nil {
		return nil
	}
	return o.enqueue(call{
		kind:  KindPublish,
		label: ev.Type,
		do: func(ctx context.Context) error {
			return o.publisher.Publish(ctx, ev)
		},
	})
}

// Audit queues e for the audit log.
func (o *Outbox) Audit(e audit.Entry) error {
	return o.enqueue(call{
		kind:  KindAudit,
		label: e.Action,
		do: func(ctx context.Context) error {
			return o.audit.Append(ctx, e)
		},
	})
}

// Len returns the number of queued calls.
func (o *Outbox) Len() int {
	return len(o.queue)
}

func (o *Outbox) enqueue(c call) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrClosed
	}

	select {
	case o.queue <- c:
		o.metrics.SetOutboxDepth(len(o.queue))
		return nil
	default:
		o.metrics.RecordOutboxDrop()
		o.logger.Warn("queue full, dropping call", "kind", c.kind, "label", c.label)
		return ErrQueueFull
	}
}

// Close stops accepting calls and waits for the queue to drain or ctx to
// end, whichever comes first. The audit log is closed once the worker has
// finished.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	started := o.started
	close(o.queue)
	o.mu.Unlock()

	if !started {
		return o.audit.Close()
	}

	select {
	case <-o.done:
	case <-ctx.Done():
		return fmt.Errorf("outbox drain interrupted with %d calls pending: %w", len(o.queue), ctx.Err())
	}
	return o.audit.Close()
}

func (o *Outbox) run() {
	defer close(o.done)

	for c := range o.queue {
		o.metrics.SetOutboxDepth(len(o.queue))
		o.deliver(c)
	}
}

func (o *Outbox) deliver(c call) {
	attempts := 0
	op := func() error {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Timeout)
		defer cancel()
		return c.do(ctx)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.RetryDelay
	policy.MaxInterval = 10 * o.cfg.RetryDelay
	policy.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithMaxRetries(policy, uint64(o.cfg.Retries)))
	if err != nil {
		o.metrics.RecordOutboundFailure(c.kind)
		o.logger.Error("outbound call failed",
			"kind", c.kind,
			"label", c.label,
			"attempts", attempts,
			"error", err,
		)
	}
}
