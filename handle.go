package meter

import (
	"time"
)

// Counter is a handle to a counter cell. It is a small value that may be
// copied freely; every copy updates the same cell. The zero Counter drops
// all increments.
type Counter struct {
	c *cell
}

// Add adds n to the counter. If the counter would wrap, the value is left
// unchanged and an *OverflowError is returned.
func (c Counter) Add(n uint64) error {
	if c.c == nil {
		return nil
	}
	cur, ok := c.c.counter.add(n)
	if !ok {
		return &OverflowError{Key: c.c.key.clone(), Current: cur, Delta: n}
	}
	return nil
}

// Inc adds one to the counter.
func (c Counter) Inc() error {
	return c.Add(1)
}

// Key returns the key of the underlying cell.
func (c Counter) Key() Key {
	if c.c == nil {
		return Key{Kind: KindCounter}
	}
	return c.c.key.clone()
}

// Gauge is a handle to a gauge cell. The zero Gauge drops all writes.
type Gauge struct {
	c *cell
}

// Set overwrites the gauge value.
func (g Gauge) Set(v float64) {
	if g.c == nil {
		return
	}
	g.c.gauge.store(v)
}

// SetInt overwrites the gauge value with an integer. Gauges hold float64,
// so integers beyond ±2^53 are rounded to the nearest representable value.
func (g Gauge) SetInt(v int64) {
	g.Set(float64(v))
}

// SetMax raises the gauge to v if v is larger than the current value, or if
// the gauge was never set. Concurrent callers leave the largest value.
func (g Gauge) SetMax(v float64) {
	if g.c == nil {
		return
	}
	g.c.gauge.raise(v)
}

// Key returns the key of the underlying cell.
func (g Gauge) Key() Key {
	if g.c == nil {
		return Key{Kind: KindGauge}
	}
	return g.c.key.clone()
}

// Timer is a handle to a timer cell. The zero Timer drops all samples.
type Timer struct {
	c *cell
}

// Record adds one duration sample. Negative durations count as zero.
func (t Timer) Record(d time.Duration) {
	if t.c == nil {
		return
	}
	t.c.timer.record(d)
}

// Since records the time elapsed on a stopwatch.
func (t Timer) Since(tm Timing) {
	t.Record(tm.Elapsed())
}

// Time runs fn and records how long it took.
func (t Timer) Time(fn func()) {
	tm := StartTiming()
	fn()
	t.Since(tm)
}

// Key returns the key of the underlying cell.
func (t Timer) Key() Key {
	if t.c == nil {
		return Key{Kind: KindTimer}
	}
	return t.c.key.clone()
}

// Timing is a stopwatch. It touches no shared state; pass it to Timer.Since
// to record the result.
type Timing struct {
	start time.Time
}

// StartTiming starts a stopwatch.
func StartTiming() Timing {
	return Timing{start: time.Now()}
}

// Elapsed returns the time since the stopwatch started.
func (t Timing) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ElapsedMicros returns the elapsed time in whole microseconds.
func (t Timing) ElapsedMicros() int64 {
	return t.Elapsed().Microseconds()
}
