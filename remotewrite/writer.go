package remotewrite

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eryajf/promwrite"
	"go.uber.org/zap"

	"github.com/nikiz24/meter"
)

// ErrNoURL is returned by New when the configuration has no endpoint.
var ErrNoURL = errors.New("remote write url is empty")

// Writer is a meter.Sink that pushes every Report to a Prometheus
// remote-write endpoint. Delta Reports are folded into running totals first
// so the receiving side sees monotonic counters.
//
// When the endpoint is addressed by host name the Writer keeps its own view
// of the host's addresses. A failed write forces a re-resolve and is retried
// once on a fresh client; with Start, addresses are also refreshed
// periodically.
type Writer struct {
	config Config
	logger *zap.Logger
	totals *meter.Totals

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex       sync.Mutex
	client      *promwrite.Client
	targetHost  string
	resolvedIPs []string
	lastResolve time.Time
	dnsCfg      dnsConfig
	dnsCache    map[string]dnsCacheEntry
}

type dnsConfig struct {
	enabled         bool
	cacheTTL        time.Duration
	refreshInterval time.Duration
	timeout         time.Duration
	udpServers      []string
	tlsServers      []string
	dohEndpoints    []string
}

type dnsCacheEntry struct {
	ips []string
	ttl time.Time
}

// New creates a Writer for config.
func New(config Config) (*Writer, error) {
	if config.URL == "" {
		return nil, ErrNoURL
	}
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote write url: %w", err)
	}
	if config.ServiceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}
	if config.InstanceIP == "" {
		ip, err := GetOutboundIPv4()
		if err != nil {
			return nil, fmt.Errorf("failed to get outbound IPv4: %w", err)
		}
		config.InstanceIP = ip
	}
	config.Timeout = pickDuration(config.Timeout, 15*time.Second)

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		config:     config,
		logger:     logger,
		totals:     meter.NewTotals(),
		ctx:        ctx,
		cancel:     cancel,
		client:     promwrite.NewClient(config.URL),
		targetHost: u.Hostname(),
		dnsCfg: dnsConfig{
			enabled:         config.DNSEnable,
			cacheTTL:        pickDuration(config.DNSCacheTTL, 10*time.Minute),
			refreshInterval: pickDuration(config.DNSRefreshInterval, 5*time.Minute),
			timeout:         pickDuration(config.DNSTimeout, 800*time.Millisecond),
			udpServers:      append([]string(nil), config.DNSUDPServers...),
			tlsServers:      append([]string(nil), config.DNSTLSServers...),
			dohEndpoints:    append([]string(nil), config.DNSDoHEndpoints...),
		},
		dnsCache: make(map[string]dnsCacheEntry),
	}, nil
}

// Start launches the periodic DNS refresh loop. It is a no-op unless DNS
// resolution is enabled and the endpoint is addressed by host name.
func (w *Writer) Start() {
	if !w.dnsCfg.enabled || w.targetHost == "" || net.ParseIP(w.targetHost) != nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.dnsCfg.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RefreshDNS(false)
			case <-w.ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the refresh loop and waits for it to exit.
func (w *Writer) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Emit implements meter.Sink.
func (w *Writer) Emit(ctx context.Context, r *meter.Report) error {
	view, totalsErr := w.totals.Observe(r)
	if totalsErr != nil {
		w.logger.Warn("Counter saturated in remote write totals", zap.Error(totalsErr))
	}

	series := w.convertToTimeSeries(view)
	if len(series) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req := &promwrite.WriteRequest{
		TimeSeries: series,
	}

	if _, err := w.currentClient().Write(ctx, req); err != nil {
		// On DNS-related failures, try a forced DNS refresh once
		if w.refreshDNS(ctx, true) {
			if _, retryErr := w.currentClient().Write(ctx, req); retryErr != nil {
				return fmt.Errorf("writing time series failed after dns refresh: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("writing time series failed: %w", err)
	}

	w.logger.Debug("wrote time series", zap.Int("series", len(series)))
	return nil
}

func (w *Writer) currentClient() *promwrite.Client {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.client
}

// ResolvedIPs returns the addresses last resolved for the endpoint host.
func (w *Writer) ResolvedIPs() []string {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([]string(nil), w.resolvedIPs...)
}

// RefreshDNS exposes DNS refresh functionality for external use
func (w *Writer) RefreshDNS(force bool) bool {
	return w.refreshDNS(w.ctx, force)
}

// refreshDNS resolves the target host and recreates the client if the
// address set changed. It reports whether the client was recreated.
func (w *Writer) refreshDNS(ctx context.Context, force bool) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.targetHost == "" {
		return false
	}

	// Throttle resolves
	if !force && time.Since(w.lastResolve) < 1*time.Minute {
		return false
	}

	// Try cache first
	if ce, ok := w.dnsCache[w.targetHost]; ok && time.Now().Before(ce.ttl) && !force {
		w.lastResolve = time.Now()
		if slices.Equal(ce.ips, w.resolvedIPs) {
			return false
		}
		w.resolvedIPs = ce.ips
		w.client = promwrite.NewClient(w.config.URL)
		w.logger.Info("DNS cache hit, refreshed client",
			zap.String("host", w.targetHost), zap.Strings("ips", ce.ips))
		return true
	}

	var (
		newSet []string
		err    error
	)
	if w.dnsCfg.enabled {
		newSet, err = w.resolveFastest(ctx, w.targetHost)
	} else {
		var sysIPs []net.IP
		sysIPs, err = net.DefaultResolver.LookupIP(ctx, "ip", w.targetHost)
		for _, ip := range sysIPs {
			newSet = append(newSet, ip.String())
		}
	}
	w.lastResolve = time.Now()

	if err != nil || len(newSet) == 0 {
		w.logger.Warn("DNS lookup failed", zap.String("host", w.targetHost), zap.Error(err))
		return false
	}

	changed := !slices.Equal(newSet, w.resolvedIPs)
	w.resolvedIPs = newSet

	if w.dnsCfg.enabled {
		w.dnsCache[w.targetHost] = dnsCacheEntry{ips: newSet, ttl: time.Now().Add(w.dnsCfg.cacheTTL)}
	}

	if changed || force {
		// Recreate client to force new connections
		w.client = promwrite.NewClient(w.config.URL)
		w.logger.Info("Refreshed remote write client after DNS update",
			zap.String("host", w.targetHost), zap.Strings("ips", w.resolvedIPs))
		return true
	}
	return false
}

// convertToTimeSeries flattens a Report into remote-write series. Timers
// expand to _count, _sum, _mean, _min and _max series, durations in seconds.
func (w *Writer) convertToTimeSeries(r *meter.Report) []promwrite.TimeSeries {
	at := r.Time()
	if at.IsZero() {
		at = time.Now()
	}

	prefix := w.prefix()
	result := make([]promwrite.TimeSeries, 0, r.Len())
	for e := range r.All() {
		name := prefix + e.Key.Name
		switch e.Key.Kind {
		case meter.KindCounter:
			result = append(result, w.series(name, e.Key.Labels, at, float64(e.Counter)))
		case meter.KindGauge:
			result = append(result, w.series(name, e.Key.Labels, at, e.Gauge))
		case meter.KindTimer:
			result = append(result,
				w.series(name+"_count", e.Key.Labels, at, float64(e.Timer.Count)),
				w.series(name+"_sum", e.Key.Labels, at, e.Timer.Sum.Seconds()),
				w.series(name+"_mean", e.Key.Labels, at, e.Timer.Mean().Seconds()),
				w.series(name+"_min", e.Key.Labels, at, e.Timer.Min.Seconds()),
				w.series(name+"_max", e.Key.Labels, at, e.Timer.Max.Seconds()),
			)
		}
	}
	return result
}

func (w *Writer) prefix() string {
	var parts []string
	for _, p := range []string{w.config.Namespace, w.config.Subsystem} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "_") + "_"
}

// series builds one sample. Series labels override custom labels, and the
// identity labels override both. Labels are sorted by name.
func (w *Writer) series(name string, ls meter.Labels, at time.Time, v float64) promwrite.TimeSeries {
	set := make(map[string]string, 4+len(w.config.CustomLabels)+len(ls))
	for k, v := range w.config.CustomLabels {
		set[k] = v
	}
	for _, l := range ls {
		set[l.Name] = l.Value
	}
	set["__name__"] = name
	set["_instance_"] = w.config.InstanceIP
	set["instance"] = w.config.InstanceIP
	set["_target_"] = w.config.ServiceName

	labels := make([]promwrite.Label, 0, len(set))
	for k, v := range set {
		labels = append(labels, promwrite.Label{Name: k, Value: v})
	}
	slices.SortFunc(labels, func(a, b promwrite.Label) int { return strings.Compare(a.Name, b.Name) })

	return promwrite.TimeSeries{
		Labels: labels,
		Sample: promwrite.Sample{
			Time:  at,
			Value: v,
		},
	}
}
