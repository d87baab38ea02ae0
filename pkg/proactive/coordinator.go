// Package proactive runs the proactive operations loop.
//
// The Coordinator owns the metric buffer and the four analysis components.
// It ingests metric events from the bus as they arrive, checks each value
// for drift, and on a fixed interval runs one analysis cycle:
//
//	anomaly forecasts → capacity predictions → risk assessments
//
// Every record is kept in a bounded local history and appended to the audit
// log. Records that warrant action are published as directive events.
// Directives are recommendations only; nothing here executes them.
//
// Publishing and auditing go through an outbox so ingestion and cycles
// never wait on the bus or the audit log.
package proactive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HatiCode/foresight/pkg/adapters"
	"github.com/HatiCode/foresight/pkg/anomaly"
	"github.com/HatiCode/foresight/pkg/audit"
	"github.com/HatiCode/foresight/pkg/bus"
	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/drift"
	"github.com/HatiCode/foresight/pkg/metrics"
	"github.com/HatiCode/foresight/pkg/outbox"
	"github.com/HatiCode/foresight/pkg/risk"
	"github.com/HatiCode/foresight/pkg/storage"
	"github.com/HatiCode/foresight/pkg/timeseries"
)

var (
	// ErrAlreadyRunning is returned by Start on a running coordinator.
	ErrAlreadyRunning = errors.New("proactive: already running")
	// ErrNotInitialized is returned when Start or RunCycle precede Init.
	ErrNotInitialized = errors.New("proactive: not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("proactive: already initialized")
)

// Coordinator schedules and runs proactive analysis.
type Coordinator struct {
	bus     bus.Bus
	audit   audit.Log
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	cfg        Config
	buffer     *timeseries.Buffer
	analyzer   *timeseries.Analyzer
	forecaster *anomaly.Forecaster
	predictor  *capacity.Predictor
	assessor   *risk.Assessor
	detector   *drift.Detector
	outbox     *outbox.Outbox

	forecasts   *storage.History[anomaly.Forecast]
	predictions *storage.History[capacity.Prediction]
	assessments *storage.History[risk.Assessment]
	signals     *storage.History[drift.Signal]

	incidentsMu sync.Mutex
	incidents   map[string][]risk.Incident

	mu          sync.Mutex
	initialized bool
	ingesting   atomic.Bool
	running     atomic.Bool
	cancel      context.CancelFunc
	subs        []bus.Subscription
	loopDone    chan struct{}

	cycling atomic.Bool
	cycles  sync.WaitGroup
}

// New creates a coordinator wired to its collaborators. b carries inbound
// events and outbound directives; log receives audit entries (nil
// discards them); m may be nil.
func New(b bus.Bus, log audit.Log, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if log == nil {
		log = audit.NopLog{}
	}
	return &Coordinator{
		bus:       b,
		audit:     log,
		metrics:   m,
		logger:    logger.With("component", "proactive"),
		now:       time.Now,
		incidents: make(map[string][]risk.Incident),
	}
}

// Init builds the analysis components from cfg, registers known events,
// backfills configured series and starts the outbox. Backfill failures are
// logged and do not fail Init.
func (c *Coordinator) Init(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return ErrAlreadyInitialized
	}
	if err := cfg.Watch.Validate(); err != nil {
		return fmt.Errorf("invalid watch: %w", err)
	}
	cfg = cfg.withDefaults()
	c.cfg = cfg

	c.buffer = timeseries.NewBuffer(cfg.BufferCapacity)
	c.analyzer = timeseries.NewAnalyzer(c.buffer)
	c.forecaster = anomaly.NewForecaster(c.analyzer, cfg.Watch.Thresholds, c.logger)
	c.predictor = capacity.NewPredictor(c.analyzer, cfg.SeasonPeriod, c.logger)
	c.assessor = risk.NewAssessor(cfg.Dependency, c.logger)
	c.detector = drift.NewDetector(c.analyzer, c.logger)

	c.forecasts = storage.NewHistory(cfg.HistoryCapacity, cfg.HistoryRetention,
		func(f anomaly.Forecast) time.Time { return f.CreatedAt })
	c.predictions = storage.NewHistory(cfg.HistoryCapacity, cfg.HistoryRetention,
		func(p capacity.Prediction) time.Time { return p.CreatedAt })
	c.assessments = storage.NewHistory(cfg.HistoryCapacity, cfg.HistoryRetention,
		func(a risk.Assessment) time.Time { return a.AssessedAt })
	c.signals = storage.NewHistory(cfg.HistoryCapacity, cfg.HistoryRetention,
		func(s drift.Signal) time.Time { return s.DetectedAt })
	for _, h := range c.histories() {
		h.StartCleanup(storage.DefaultCleanupInterval)
	}

	for _, ev := range cfg.Watch.KnownEvents {
		c.predictor.RegisterKnownEvent(ev.Name, ev.Time, ev.Multiplier)
	}

	c.backfill(ctx, cfg.Watch.Backfill, cfg.HTTPClient)

	var publisher bus.Publisher
	if c.bus != nil {
		publisher = c.bus
	}
	c.outbox = outbox.New(publisher, c.audit, cfg.Outbox, c.metrics, c.logger)
	c.outbox.Start()

	c.initialized = true
	c.ingesting.Store(true)
	c.logger.Info("initialized",
		"interval", cfg.Interval,
		"nodes", len(cfg.Watch.Nodes),
		"resources", len(cfg.Watch.Resources),
		"systems", len(cfg.Watch.Systems),
		"known_events", len(cfg.Watch.KnownEvents),
	)
	return nil
}

type stopper interface {
	StartCleanup(time.Duration)
	Stop()
}

func (c *Coordinator) histories() []stopper {
	return []stopper{c.forecasts, c.predictions, c.assessments, c.signals}
}

func (c *Coordinator) backfill(ctx context.Context, sources []Backfill, client *http.Client) {
	for _, b := range sources {
		if b.Source.HTTPClient == nil {
			b.Source.HTTPClient = client
		}
		src, err := adapters.New(b.Source)
		if err != nil {
			c.logger.Warn("backfill source invalid", "series_id", b.SeriesID, "error", err)
			continue
		}
		window := b.Window
		if window <= 0 {
			window = defaultBackfillWindow
		}

		start := time.Now()
		points, err := src.Fetch(ctx, window)
		if err != nil {
			c.logger.Warn("backfill failed", "series_id", b.SeriesID, "source", src.Name(), "error", err)
			continue
		}
		for _, p := range points {
			c.buffer.AddPoint(b.SeriesID, p)
		}
		c.logger.Info("backfilled series",
			"series_id", b.SeriesID,
			"source", src.Name(),
			"points", len(points),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Start subscribes to metric and health events and launches the periodic
// cycle loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if c.running.Load() {
		return ErrAlreadyRunning
	}

	if c.bus != nil {
		metricsSub, err := c.bus.Subscribe(ctx, bus.MetricsPattern, c.handleMetric)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", bus.MetricsPattern, err)
		}
		healthSub, err := c.bus.Subscribe(ctx, bus.HealthPattern, c.handleHealth)
		if err != nil {
			_ = metricsSub.Close()
			return fmt.Errorf("subscribe %s: %w", bus.HealthPattern, err)
		}
		c.subs = []bus.Subscription{metricsSub, healthSub}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.running.Store(true)

	go c.run(loopCtx, c.cfg.Interval)

	c.logger.Info("started", "interval", c.cfg.Interval)
	return nil
}

// Stop unsubscribes and ends the cycle loop. No cycle begins after Stop
// returns; a cycle already in flight runs to completion before Stop
// returns. Stopping a stopped coordinator does nothing.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Swap(false) {
		return
	}

	for _, sub := range c.subs {
		if err := sub.Close(); err != nil {
			c.logger.Warn("failed to close subscription", "error", err)
		}
	}
	c.subs = nil

	c.cancel()
	<-c.loopDone
	c.cycles.Wait()

	c.logger.Info("stopped")
}

// Shutdown stops the coordinator, drains the outbox and stops history
// retention. ctx bounds the outbox drain.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}
	c.initialized = false

	for _, h := range c.histories() {
		h.Stop()
	}
	if err := c.outbox.Close(ctx); err != nil {
		return fmt.Errorf("drain outbox: %w", err)
	}
	return nil
}

// Running reports whether the cycle loop is active.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

func (c *Coordinator) run(ctx context.Context, interval time.Duration) {
	defer close(c.loopDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick starts a cycle in the background unless one is still running.
func (c *Coordinator) tick() {
	if !c.running.Load() {
		return
	}
	if !c.cycling.CompareAndSwap(false, true) {
		c.metrics.RecordSkippedCycle()
		c.logger.Warn("previous cycle still running, skipping tick")
		return
	}

	c.cycles.Add(1)
	go func() {
		defer c.cycles.Done()
		defer c.cycling.Store(false)
		c.cycle()
	}()
}

// RunCycle runs one cycle synchronously. It reports false, without running
// anything, when another cycle is in flight or ctx is already done.
func (c *Coordinator) RunCycle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()

	if !initialized {
		return false, ErrNotInitialized
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if !c.cycling.CompareAndSwap(false, true) {
		c.metrics.RecordSkippedCycle()
		return false, nil
	}
	defer c.cycling.Store(false)

	c.cycle()
	return true, nil
}
