package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HatiCode/foresight/cmd/foresight/config"
	"github.com/HatiCode/foresight/pkg/tls"
)

func TestRun_AdapterClientFailsBeforeAuditLogOpens(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Listen: ":0",
		Bus:    config.BusMemory,
		// An audit log that cannot open shows whether run got that far.
		Audit:       config.AuditRedis,
		AuditStream: "foresight:audit",
		TLS: tls.Config{
			Enabled:  true,
			CertFile: filepath.Join(dir, "missing.crt"),
			KeyFile:  filepath.Join(dir, "missing.key"),
			CAFile:   filepath.Join(dir, "missing-ca.crt"),
		},
	}

	err := run(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("run() expected error")
	}
	if !strings.Contains(err.Error(), "adapter client") {
		t.Errorf("run() error = %v, want the adapter client failure before any audit log is opened", err)
	}
}
