package meter

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// RuntimeSampler publishes basic process statistics as gauges under a Scope.
type RuntimeSampler struct {
	heapAlloc  Gauge
	heapInuse  Gauge
	sys        Gauge
	stackInuse Gauge
	goroutines Gauge
	gcRuns     Gauge
	gcPause    Gauge
	rss        Gauge
	fds        Gauge
}

// NewRuntimeSampler registers the runtime gauges in scope.
func NewRuntimeSampler(scope *Scope) (*RuntimeSampler, error) {
	s := &RuntimeSampler{}
	for _, g := range []struct {
		name string
		dst  *Gauge
	}{
		{"memory_alloc_bytes", &s.heapAlloc},
		{"memory_heap_inuse_bytes", &s.heapInuse},
		{"memory_sys_bytes", &s.sys},
		{"memory_stack_inuse_bytes", &s.stackInuse},
		{"goroutines_num", &s.goroutines},
		{"gc_runs_num", &s.gcRuns},
		{"gc_pause_total_ns", &s.gcPause},
		{"memory_rss_bytes", &s.rss},
		{"file_descriptors_num", &s.fds},
	} {
		h, err := scope.Gauge(g.name)
		if err != nil {
			return nil, err
		}
		*g.dst = h
	}
	return s, nil
}

// Sample implements Sampler.
func (s *RuntimeSampler) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.heapAlloc.Set(float64(ms.Alloc))
	s.heapInuse.Set(float64(ms.HeapInuse))
	s.sys.Set(float64(ms.Sys))
	s.stackInuse.Set(float64(ms.StackInuse))
	s.goroutines.SetInt(int64(runtime.NumGoroutine()))
	s.gcRuns.Set(float64(ms.NumGC))
	s.gcPause.Set(float64(ms.PauseTotalNs))

	if rss := processRSS(); rss > 0 {
		s.rss.Set(float64(rss))
	}
	if n := openFileDescriptors(); n > 0 {
		s.fds.Set(float64(n))
	}
}

// processRSS returns the resident set size in bytes, or 0 where
// /proc/self/status is unavailable.
func processRSS() uint64 {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// openFileDescriptors counts entries in /proc/self/fd.
func openFileDescriptors() uint64 {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return uint64(len(entries))
}
