package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config defines how a Manager drives reporting.
type Config struct {
	// Interval between destructive reports.
	Interval time.Duration
	// FlushTimeout bounds the final report emitted after the run context
	// is canceled.
	FlushTimeout time.Duration

	// Optional logger
	Logger *zap.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Interval:     2 * time.Second,
		FlushTimeout: 5 * time.Second,
	}
}

// Sink consumes Reports, typically by rendering or shipping them.
type Sink interface {
	Emit(ctx context.Context, r *Report) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, r *Report) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r *Report) error { return f(ctx, r) }

// Sampler refreshes metrics that are read rather than pushed, such as
// runtime statistics. Samplers run right before every snapshot.
type Sampler interface {
	Sample()
}

// SamplerFunc adapts a function to a Sampler.
type SamplerFunc func()

// Sample calls f.
func (f SamplerFunc) Sample() { f() }

// ErrManagerStarted is returned by Start when the manager is already running.
var ErrManagerStarted = errors.New("manager already started")

// Manager drives a Reporter on a fixed interval. Each tick takes a
// destructive snapshot and hands it to every sink; when the work being
// measured completes, or the run is canceled, one last non-destructive
// snapshot is emitted so that no unreported deltas are lost.
//
// Reports are emitted synchronously from the loop, so a Manager never
// produces two reports at once.
type Manager struct {
	config   Config
	reporter Reporter
	logger   *zap.Logger

	mutex    sync.RWMutex
	sinks    []Sink
	samplers []Sampler

	startMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErr  error
}

// NewManager creates a Manager for reporter.
func NewManager(reporter Reporter, config Config, sinks ...Sink) (*Manager, error) {
	if reporter.reg == nil {
		return nil, fmt.Errorf("creating manager: %w", ErrNilRegistry)
	}
	config.Interval = pickDuration(config.Interval, 2*time.Second)
	config.FlushTimeout = pickDuration(config.FlushTimeout, 5*time.Second)

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		config:   config,
		reporter: reporter,
		logger:   logger,
		sinks:    append([]Sink(nil), sinks...),
	}, nil
}

func pickDuration(v time.Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// AddSink adds a sink that receives every subsequent report.
func (m *Manager) AddSink(sink Sink) {
	m.mutex.Lock()
	m.sinks = append(m.sinks, sink)
	m.mutex.Unlock()
}

// RegisterSampler adds a sampler that runs before every snapshot.
func (m *Manager) RegisterSampler(sampler Sampler) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.samplers = append(m.samplers, sampler)

	m.logger.Debug("Registered metrics sampler", zap.Int("samplers", len(m.samplers)))
}

// Run reports every interval until done is closed or ctx is canceled,
// whichever happens first, then emits a final non-destructive report.
//
// When done closes Run returns the error of the final emission. When ctx
// is canceled the final report is emitted on a detached context bounded by
// FlushTimeout and Run returns ctx.Err(). A nil done channel never fires.
func (m *Manager) Run(ctx context.Context, done <-chan struct{}) error {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.report(ctx, true); err != nil {
				m.logger.Error("Failed to emit report", zap.Error(err))
			}
		case <-done:
			return m.report(ctx, false)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.FlushTimeout)
			err := m.report(flushCtx, false)
			cancel()
			if err != nil {
				m.logger.Error("Failed to emit final report", zap.Error(err))
			}
			return ctx.Err()
		}
	}
}

// Start runs the reporting loop in the background until Stop is called.
func (m *Manager) Start() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.cancel != nil {
		return ErrManagerStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.Run(ctx, nil)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		m.runErr = err
	}()

	m.logger.Info("metrics manager started", zap.Duration("interval", m.config.Interval))
	return nil
}

// Stop cancels a loop started with Start and waits for its final report.
func (m *Manager) Stop() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil
	return m.runErr
}

// Flush emits a non-destructive report immediately.
func (m *Manager) Flush(ctx context.Context) error {
	return m.report(ctx, false)
}

// report samples, snapshots and emits one report to every sink. A failing
// sink does not keep the report from the others.
func (m *Manager) report(ctx context.Context, destructive bool) error {
	m.mutex.RLock()
	samplers := m.samplers
	sinks := m.sinks
	m.mutex.RUnlock()

	for _, s := range samplers {
		s.Sample()
	}

	var r *Report
	if destructive {
		r = m.reporter.Take()
	} else {
		r = m.reporter.Peek()
	}

	var err error
	for _, sink := range sinks {
		if e := sink.Emit(ctx, r); e != nil {
			err = multierr.Append(err, e)
		}
	}

	m.logger.Debug("emitted report",
		zap.Bool("destructive", destructive),
		zap.Int("entries", r.Len()),
		zap.Int("sinks", len(sinks)))
	return err
}
