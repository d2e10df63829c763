package meter

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// counterCell is a monotonic accumulator. It is reset only by take.
type counterCell struct {
	val atomic.Uint64
}

// add adds n unless doing so would wrap, in which case the value is left
// untouched and the current value is returned with ok=false.
func (c *counterCell) add(n uint64) (cur uint64, ok bool) {
	for {
		cur = c.val.Load()
		next := cur + n
		if next < cur {
			return cur, false
		}
		if c.val.CompareAndSwap(cur, next) {
			return next, true
		}
	}
}

func (c *counterCell) peek() uint64 { return c.val.Load() }

// take returns the accumulated value and resets it in the same atomic step,
// so every increment lands in exactly one take.
func (c *counterCell) take() uint64 { return c.val.Swap(0) }

// unsetGauge marks a gauge that was never set. It is a NaN payload that
// math.NaN and arithmetic never produce; store canonicalizes it away.
const unsetGauge uint64 = 0x7ff8_dead_beef_0001

// gaugeCell holds the last value set, stored as float64 bits.
type gaugeCell struct {
	bits atomic.Uint64
}

func newGaugeCell() *gaugeCell {
	g := &gaugeCell{}
	g.bits.Store(unsetGauge)
	return g
}

func gaugeBits(v float64) uint64 {
	b := math.Float64bits(v)
	if b == unsetGauge {
		return math.Float64bits(math.NaN())
	}
	return b
}

func (g *gaugeCell) store(v float64) {
	g.bits.Store(gaugeBits(v))
}

// raise stores v only if the gauge is unset or holds a smaller value.
func (g *gaugeCell) raise(v float64) {
	next := gaugeBits(v)
	for {
		old := g.bits.Load()
		if old != unsetGauge && !(math.Float64frombits(old) < v) {
			return
		}
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (g *gaugeCell) load() (float64, bool) {
	b := g.bits.Load()
	if b == unsetGauge {
		return 0, false
	}
	return math.Float64frombits(b), true
}

// timerCell accumulates duration samples. Count, sum and extremes move
// together, so the cell uses its own mutex rather than separate atomics.
type timerCell struct {
	mu    sync.Mutex
	count uint64
	sum   time.Duration
	min   time.Duration
	max   time.Duration
}

func (t *timerCell) record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	if t.count == 0 {
		t.min, t.max = d, d
	} else {
		if d < t.min {
			t.min = d
		}
		if d > t.max {
			t.max = d
		}
	}
	t.count++
	if t.sum > math.MaxInt64-d {
		t.sum = math.MaxInt64
	} else {
		t.sum += d
	}
	t.mu.Unlock()
}

func (t *timerCell) snapshot(reset bool) TimerStats {
	t.mu.Lock()
	s := TimerStats{Count: t.count, Sum: t.sum, Min: t.min, Max: t.max}
	if reset {
		t.count, t.sum, t.min, t.max = 0, 0, 0, 0
	}
	t.mu.Unlock()
	return s
}
