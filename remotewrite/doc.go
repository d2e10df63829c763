// Package remotewrite ships meter Reports to a Prometheus remote-write
// endpoint.
//
// Series are named namespace_subsystem_metric and carry the identity labels
// instance, _instance_ and _target_ alongside any custom and series labels.
// Counters are sent as running totals. Timers are sent as five series:
// _count, _sum, _mean, _min and _max, durations in seconds.
//
// Basic usage:
//
//	cfg := remotewrite.DefaultConfig()
//	cfg.URL = "http://prometheus:9090/api/v1/write"
//	w, err := remotewrite.New(cfg)
//	if err != nil {
//		return err
//	}
//	w.Start()
//	defer w.Stop()
//	mgr, err := meter.NewManager(reporter, meter.DefaultConfig(), w)
package remotewrite
