package adapters

import (
	"fmt"
	"net/http"
	"time"
)

// Config describes a backfill source. It is decoded from the watch file.
type Config struct {
	Kind            string            `yaml:"kind"`
	URL             string            `yaml:"url"`
	Query           string            `yaml:"query"`
	Step            time.Duration     `yaml:"step"`
	Headers         map[string]string `yaml:"headers"`
	ValuePath       string            `yaml:"value_path"`
	TimestampPath   string            `yaml:"timestamp_path"`
	TimestampFormat string            `yaml:"timestamp_format"`

	// HTTPClient is shared by the created source; nil uses a default client.
	HTTPClient *http.Client `yaml:"-"`
}

// New creates a source from cfg. This is the central extension point for
// adding new source kinds.
//
// Supported kinds:
//   - "prometheus": Prometheus range query (default URL http://localhost:9090)
//   - "victoriametrics": VictoriaMetrics range query (default URL http://localhost:8428)
//   - "http": generic JSON endpoint
func New(cfg Config) (Source, error) {
	switch cfg.Kind {
	case "prometheus", "victoriametrics":
		if cfg.Query == "" {
			return nil, fmt.Errorf("%s source requires 'query'", cfg.Kind)
		}
		url := cfg.URL
		if url == "" {
			url = defaultURL(cfg.Kind)
		}
		return &RangeQuery{
			Kind:       cfg.Kind,
			ServerURL:  url,
			Query:      cfg.Query,
			Step:       cfg.Step,
			HTTPClient: cfg.HTTPClient,
		}, nil
	case "http":
		src := &HTTPSource{
			URL:             cfg.URL,
			Headers:         cfg.Headers,
			ValuePath:       cfg.ValuePath,
			TimestampPath:   cfg.TimestampPath,
			TimestampFormat: cfg.TimestampFormat,
			HTTPClient:      cfg.HTTPClient,
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("http source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be prometheus, victoriametrics, or http)", cfg.Kind)
	}
}

func defaultURL(kind string) string {
	if kind == "victoriametrics" {
		return "http://localhost:8428"
	}
	return "http://localhost:9090"
}
