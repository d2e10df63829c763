package prom

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/nikiz24/meter"
)

// Exporter serves emitted Reports to Prometheus scrapers. As a meter.Sink
// it folds every Report into running totals; as a prometheus.Gatherer it
// serves the cumulative view of the most recent Report, so counters served
// to scrapers never go down even though Take resets them.
//
// Scrapes never snapshot the registry themselves, so they cannot race with
// the reporting loop.
type Exporter struct {
	totals  *meter.Totals
	runtime *prometheus.Registry
	logger  *zap.Logger

	mu   sync.RWMutex
	last *meter.Report
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithGoCollector adds the Go runtime collector to the served metrics.
func WithGoCollector() ExporterOption {
	return func(e *Exporter) {
		e.runtime.MustRegister(collectors.NewGoCollector())
	}
}

// WithExporterLogger sets the logger used for handler errors.
func WithExporterLogger(l *zap.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExporter creates an Exporter.
func NewExporter(opts ...ExporterOption) *Exporter {
	e := &Exporter{
		totals:  meter.NewTotals(),
		runtime: prometheus.NewRegistry(),
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// Emit implements meter.Sink.
func (e *Exporter) Emit(_ context.Context, r *meter.Report) error {
	view, err := e.totals.Observe(r)
	e.mu.Lock()
	e.last = view
	e.mu.Unlock()
	return err
}

// Gather implements prometheus.Gatherer.
func (e *Exporter) Gather() ([]*dto.MetricFamily, error) {
	e.mu.RLock()
	last := e.last
	e.mu.RUnlock()
	if last == nil {
		return nil, nil
	}
	return Families(last)
}

// Handler returns an http.Handler serving the exporter's metrics along
// with any registered runtime collectors.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{e, e.runtime}, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(e.logger),
		ErrorHandling: promhttp.ContinueOnError,
	})
}
