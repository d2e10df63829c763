// Package meter provides a concurrent metrics core: a registry of labeled
// counters, gauges and timers that many goroutines can update at high
// frequency while a separate reporting loop snapshots the aggregated state.
//
// Design goals:
//   - No registry lookup and no allocation on the hot path: handles point
//     straight at their cell
//   - Each cell is synchronized on its own; there is no global lock
//   - Every update is observed by exactly one destructive snapshot
//   - Deterministic report ordering (name, then label set)
//
// Basic usage:
//
//	scope, reporter := meter.New()
//	scope = scope.Labeled("service", "api")
//
//	requests, _ := scope.Counter("requests_total")
//	inflight, _ := scope.Gauge("inflight")
//	latency, _ := scope.Timer("latency")
//
//	requests.Inc()
//	inflight.Set(3)
//	t := meter.StartTiming()
//	// ...
//	latency.Since(t)
//
//	mgr, _ := meter.NewManager(reporter, meter.DefaultConfig(), sink)
//	_ = mgr.Run(ctx, workDone) // periodic Take, final Peek
//
// Take resets counters and timers as it reads them and is meant for the
// periodic report; Peek leaves everything in place and is meant for the final
// report at shutdown. Rendering lives in package prom and shipping to remote
// storage in package remotewrite.
package meter
