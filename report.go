package meter

import (
	"iter"
	"slices"
	"time"
)

// TimerStats aggregates the duration samples recorded by a timer.
type TimerStats struct {
	Count uint64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns Sum/Count, or zero when there are no samples.
func (s TimerStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// merge folds other into s as if both sample sets were recorded by one timer.
func (s TimerStats) merge(other TimerStats) TimerStats {
	if other.Count == 0 {
		return s
	}
	if s.Count == 0 {
		return other
	}
	out := TimerStats{
		Count: s.Count + other.Count,
		Sum:   s.Sum + other.Sum,
		Min:   min(s.Min, other.Min),
		Max:   max(s.Max, other.Max),
	}
	if out.Count < s.Count {
		out.Count = ^uint64(0)
	}
	if out.Sum < s.Sum {
		out.Sum = time.Duration(1<<63 - 1)
	}
	return out
}

// Entry is one metric in a Report. Only the field matching Key.Kind is
// meaningful.
type Entry struct {
	Key     Key
	Counter uint64
	Gauge   float64
	Timer   TimerStats
}

// Value returns the entry as a single number: the counter value, the gauge
// value, or the timer mean in seconds.
func (e Entry) Value() float64 {
	switch e.Key.Kind {
	case KindCounter:
		return float64(e.Counter)
	case KindGauge:
		return e.Gauge
	case KindTimer:
		return e.Timer.Mean().Seconds()
	}
	return 0
}

// Report is an immutable point-in-time view of a Registry. Entries are
// ordered by name, then label set.
type Report struct {
	at          time.Time
	destructive bool
	entries     []Entry
}

// NewReport builds a Report from arbitrary entries. Entries are sorted; when
// two entries share a key the later one wins.
func NewReport(destructive bool, at time.Time, entries []Entry) *Report {
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		e.Key.Labels = NewLabels(e.Key.Labels...)
		id := e.Key.id()
		if i, ok := seen[id]; ok {
			out[i] = e
			continue
		}
		seen[id] = len(out)
		out = append(out, e)
	}
	sortEntries(out)
	return &Report{at: at, destructive: destructive, entries: out}
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int { return a.Key.Compare(b.Key) })
}

// Time returns when the snapshot was taken.
func (r *Report) Time() time.Time { return r.at }

// Destructive reports whether producing this Report reset the counters and
// timers it covers.
func (r *Report) Destructive() bool { return r.destructive }

// Len returns the number of entries.
func (r *Report) Len() int { return len(r.entries) }

// All yields the entries in order. The sequence may be iterated any number
// of times; it always replays the same snapshot. Yielded keys are copies, so
// editing them leaves the Report untouched.
func (r *Report) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range r.entries {
			e.Key = e.Key.clone()
			if !yield(e) {
				return
			}
		}
	}
}

// Get looks up the entry for name and labels.
func (r *Report) Get(name string, labels ...Label) (Entry, bool) {
	want := Key{Name: name, Labels: NewLabels(labels...)}
	i, ok := slices.BinarySearchFunc(r.entries, want, func(e Entry, k Key) int { return e.Key.Compare(k) })
	if !ok {
		return Entry{}, false
	}
	e := r.entries[i]
	e.Key = e.Key.clone()
	return e, true
}
