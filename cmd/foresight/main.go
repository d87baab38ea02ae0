// Command foresight runs the proactive operations service.
//
// It listens for metric events on the event bus, keeps a rolling window per
// series, and every interval forecasts anomalies, predicts capacity
// shortfalls and assesses failure risk for the nodes, resources and systems
// named in the watch file. Directives that warrant action are published back
// onto the bus as proactive.* events, and every analysis record is appended
// to the audit log.
//
// Ops endpoints:
//   - GET /healthz, GET /readyz, GET /metrics on -listen (default :8082)
//   - grpc.health.v1 on -grpc-listen (default :9092)
//
// Usage:
//
//	foresight \
//	  -bus=redis -redis-addr=redis:6379 \
//	  -audit=redis \
//	  -watch-file=/etc/foresight/watch.yaml
//
// Environment variables mirror the flags: BUS, REDIS_ADDR, AUDIT, WATCH_FILE,
// INTERVAL, LOG_LEVEL, LOG_FORMAT and so on.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/foresight/cmd/foresight/config"
	"github.com/HatiCode/foresight/cmd/foresight/grpchealth"
	"github.com/HatiCode/foresight/cmd/foresight/logger"
	"github.com/HatiCode/foresight/cmd/foresight/router"
	"github.com/HatiCode/foresight/pkg/audit"
	"github.com/HatiCode/foresight/pkg/bus"
	"github.com/HatiCode/foresight/pkg/httpx"
	"github.com/HatiCode/foresight/pkg/metrics"
	"github.com/HatiCode/foresight/pkg/proactive"
)

// version is set via ldflags at build time
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting foresight",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"bus", cfg.Bus,
		"audit", cfg.Audit,
		"interval", cfg.Interval,
		"tls_enabled", cfg.TLS.Enabled,
	)

	if err := run(cfg, log); err != nil {
		log.Error("foresight failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	watch, err := config.LoadWatch(cfg.WatchFile)
	if err != nil {
		return err
	}

	b, err := newBus(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("failed to close bus", "error", err)
		}
	}()

	adapterClient, err := httpx.NewClient(cfg.TLS, cfg.AdapterTimeout)
	if err != nil {
		return fmt.Errorf("adapter client: %w", err)
	}

	// auditLog must be closed on every error path from here until Init.
	auditLog, err := newAuditLog(cfg, b)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	coord := proactive.New(b, auditLog, m, log)

	err = coord.Init(ctx, proactive.Config{
		Interval:         cfg.Interval,
		BufferCapacity:   cfg.BufferCapacity,
		HistoryCapacity:  cfg.HistoryCapacity,
		HistoryRetention: cfg.HistoryRetention,
		Watch:            watch,
		Outbox:           cfg.Outbox(),
		HTTPClient:       adapterClient,
	})
	if err != nil {
		if cerr := auditLog.Close(); cerr != nil {
			log.Error("failed to close audit log", "error", cerr)
		}
		return fmt.Errorf("init coordinator: %w", err)
	}

	if err := coord.Start(ctx); err != nil {
		shutdown(coord, log)
		return fmt.Errorf("start coordinator: %w", err)
	}

	serverTLS, err := cfg.TLS.Server()
	if err != nil {
		shutdown(coord, log)
		return fmt.Errorf("server tls: %w", err)
	}

	ready := func() error {
		if !coord.Running() {
			return errors.New("coordinator not running")
		}
		return nil
	}
	httpServer := httpx.NewServer(cfg.Listen, router.SetupRoutes(ready, prometheus.DefaultGatherer, log), log)
	if serverTLS != nil {
		httpServer.SetTLSConfig(serverTLS)
	}

	var grpcServer *grpchealth.Server
	if cfg.GRPCListen != "" {
		grpcServer = grpchealth.New(serverTLS, log)
		grpcServer.SetServing(true)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)
	if grpcServer != nil {
		g.Go(func() error { return grpcServer.Start(cfg.GRPCListen) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		if grpcServer != nil {
			grpcServer.SetServing(false)
		}
		shutdown(coord, log)
		if grpcServer != nil {
			grpcServer.Stop(shutdownTimeout)
		}
		return httpServer.Stop(shutdownTimeout)
	})

	return g.Wait()
}

// shutdown stops the coordinator and drains its outbox.
func shutdown(coord *proactive.Coordinator, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coord.Shutdown(ctx); err != nil {
		log.Error("coordinator shutdown failed", "error", err)
	}
}

type closableBus interface {
	bus.Bus
	Close() error
}

func newBus(cfg *config.Config, log *slog.Logger) (closableBus, error) {
	switch cfg.Bus {
	case config.BusRedis:
		b, err := bus.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannelPrefix, log)
		if err != nil {
			return nil, fmt.Errorf("redis bus: %w", err)
		}
		return b, nil
	default:
		return bus.NewMemoryBus(), nil
	}
}

// newAuditLog shares the bus's Redis connection when both use Redis.
func newAuditLog(cfg *config.Config, b closableBus) (audit.Log, error) {
	switch cfg.Audit {
	case config.AuditRedis:
		if rb, ok := b.(*bus.RedisBus); ok {
			l, err := audit.NewRedisLog(rb.Client(), cfg.AuditStream, audit.DefaultStreamMaxLen)
			if err != nil {
				return nil, fmt.Errorf("redis audit log: %w", err)
			}
			return l, nil
		}
		l, err := audit.DialRedisLog(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AuditStream)
		if err != nil {
			return nil, fmt.Errorf("redis audit log: %w", err)
		}
		return l, nil
	case config.AuditFile:
		l, err := audit.NewFileLog(cfg.AuditFileConfig())
		if err != nil {
			return nil, fmt.Errorf("file audit log: %w", err)
		}
		return l, nil
	default:
		return audit.NopLog{}, nil
	}
}
