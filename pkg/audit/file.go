package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures a rotating audit file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultFileConfig returns rotation defaults for path.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{
		Path:       path,
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// FileLog writes entries as JSON lines to a size-rotated file.
type FileLog struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	enc    *json.Encoder
	closed bool
}

// NewFileLog opens a rotating audit file.
func NewFileLog(cfg FileConfig) (*FileLog, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit file path cannot be empty")
	}

	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return &FileLog{out: out, enc: json.NewEncoder(out)}, nil
}

// Append writes e as one line.
func (f *FileLog) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("audit file closed")
	}
	if err := f.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close flushes and closes the current file.
func (f *FileLog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.out.Close()
}
