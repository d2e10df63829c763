package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nikiz24/meter"
	"github.com/nikiz24/meter/prom"
	"github.com/nikiz24/meter/remotewrite"
)

// run drives one harness session: opts.Threads workers of opts.Loops
// iterations each, reported every opts.Interval and flushed with a final
// non-destructive report when the last worker finishes. Extra sinks receive
// every report alongside the log sink.
func run(ctx context.Context, opts options, logger *zap.Logger, sinks ...meter.Sink) (err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	scope := meter.NewRegistry().Scope(
		meter.L("test", "multithread_gauge"),
		meter.L("run_id", runID),
	)

	loopCounter, err := scope.Counter("loop_counter")
	if err != nil {
		return err
	}
	maxLoopTime, err := scope.Gauge("loop_time_max_us")
	if err != nil {
		return err
	}

	cfg := meter.DefaultConfig()
	cfg.Interval = opts.Interval
	cfg.Logger = logger
	mgr, err := meter.NewManager(scope.Registry().Reporter(), cfg,
		append([]meter.Sink{prom.LogSink(logger)}, sinks...)...)
	if err != nil {
		return err
	}

	if opts.Runtime {
		sampler, err := meter.NewRuntimeSampler(scope)
		if err != nil {
			return fmt.Errorf("creating runtime sampler: %w", err)
		}
		mgr.RegisterSampler(sampler)
	}

	if opts.Listen != "" {
		exporter := prom.NewExporter(prom.WithGoCollector(), prom.WithExporterLogger(logger))
		mgr.AddSink(exporter)
		shutdown, serveErr := serveMetrics(opts.Listen, exporter, logger)
		if serveErr != nil {
			return serveErr
		}
		defer func() { err = multierr.Append(err, shutdown()) }()
	}

	if opts.RemoteWriteURL != "" {
		rwCfg := remotewrite.DefaultConfig()
		rwCfg.URL = opts.RemoteWriteURL
		rwCfg.Logger = logger
		rwCfg.CustomLabels["run_id"] = runID
		writer, err := remotewrite.New(rwCfg)
		if err != nil {
			return fmt.Errorf("creating remote writer: %w", err)
		}
		writer.Start()
		defer writer.Stop()
		mgr.AddSink(writer)
	}

	logger.Info("Starting workers",
		zap.String("run_id", runID),
		zap.Int("threads", opts.Threads),
		zap.Int("loops", opts.Loops),
		zap.Duration("interval", opts.Interval))

	g, gctx := errgroup.WithContext(ctx)
	for range opts.Threads {
		g.Go(func() error {
			return work(gctx, loopCounter, maxLoopTime, opts.Loops)
		})
	}

	done := make(chan struct{})
	var workErr error
	go func() {
		workErr = g.Wait()
		close(done)
	}()

	runErr := mgr.Run(ctx, done)
	<-done
	// Run may see done before ctx when both fire together.
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	if workErr != nil && !errors.Is(workErr, context.Canceled) {
		return multierr.Append(fmt.Errorf("worker failed: %w", workErr), runErr)
	}
	return runErr
}

// work runs loops iterations. Each one bumps the counter and publishes the
// slowest gauge update seen so far; the last update's time is folded in
// after the loop.
func work(ctx context.Context, counter meter.Counter, gauge meter.Gauge, loops int) error {
	var slowest, prior int64
	for i := range loops {
		if i&0x3ff == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := counter.Inc(); err != nil {
			return err
		}
		slowest = max(slowest, prior)

		t0 := meter.StartTiming()
		gauge.SetMax(float64(slowest))
		prior = t0.ElapsedMicros()
	}
	gauge.SetMax(float64(max(slowest, prior)))
	return nil
}

// serveMetrics serves the exporter on addr and returns a function that shuts
// the server down.
func serveMetrics(addr string, exporter *prom.Exporter, logger *zap.Logger) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}
