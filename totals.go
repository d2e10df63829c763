package meter

import (
	"math"
	"sync"
)

// Totals turns the per-cycle deltas of destructive Reports into running
// totals, for consumers such as pull exporters and remote storage that
// expect counters to only ever go up. The zero value is ready to use.
type Totals struct {
	mu       sync.Mutex
	counters map[string]uint64
	timers   map[string]TimerStats
}

// NewTotals creates an empty Totals.
func NewTotals() *Totals {
	return &Totals{}
}

// Observe returns r with counters and timers replaced by cumulative values.
// A destructive Report is committed to the running totals; a
// non-destructive one is overlaid on them without being committed, since
// its values will show up again in the next Take.
//
// Counters that would exceed the representable range saturate and an
// *OverflowError is returned alongside the Report.
func (t *Totals) Observe(r *Report) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counters == nil {
		t.counters = make(map[string]uint64)
		t.timers = make(map[string]TimerStats)
	}

	var firstErr error
	entries := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.Key = e.Key.clone()
		id := e.Key.id()
		switch e.Key.Kind {
		case KindCounter:
			base := t.counters[id]
			sum := base + e.Counter
			if sum < base {
				if firstErr == nil {
					firstErr = &OverflowError{Key: e.Key, Current: base, Delta: e.Counter}
				}
				sum = math.MaxUint64
			}
			if r.destructive {
				t.counters[id] = sum
			}
			e.Counter = sum
		case KindTimer:
			merged := t.timers[id].merge(e.Timer)
			if r.destructive {
				t.timers[id] = merged
			}
			e.Timer = merged
		}
		entries[i] = e
	}
	return &Report{at: r.at, destructive: r.destructive, entries: entries}, firstErr
}
