package meter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Registry owns the storage for every metric cell, keyed by name and label
// set. Cells are created on first request and never removed. Lookups and
// inserts go through a sync.Map, so creating a new cell never blocks
// mutation of existing ones; each cell synchronizes its own value.
//
// A Registry is safe for concurrent use. Create one per reporting session
// and share it (or Scopes derived from it) with every producer.
type Registry struct {
	cells sync.Map // map[string]*cell
	kinds sync.Map // map[string]Kind, first registration of a name wins
	size  atomic.Int64
	now   func() time.Time
}

type cell struct {
	key     Key
	counter *counterCell
	gauge   *gaugeCell
	timer   *timerCell
}

func newCell(key Key) *cell {
	c := &cell{key: key}
	switch key.Kind {
	case KindCounter:
		c.counter = &counterCell{}
	case KindGauge:
		c.gauge = newGaugeCell()
	case KindTimer:
		c.timer = &timerCell{}
	}
	return c
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// New creates a registry and returns its root Scope together with a
// Reporter reading from it.
func New() (*Scope, Reporter) {
	r := NewRegistry()
	return r.Scope(), r.Reporter()
}

// Counter returns a handle to the counter cell for name and labels,
// creating it on first use.
func (r *Registry) Counter(name string, labels ...Label) (Counter, error) {
	c, err := r.lookup(NewKey(KindCounter, name, labels...))
	if err != nil {
		return Counter{}, err
	}
	return Counter{c: c}, nil
}

// Gauge returns a handle to the gauge cell for name and labels, creating
// it on first use.
func (r *Registry) Gauge(name string, labels ...Label) (Gauge, error) {
	c, err := r.lookup(NewKey(KindGauge, name, labels...))
	if err != nil {
		return Gauge{}, err
	}
	return Gauge{c: c}, nil
}

// Timer returns a handle to the timer cell for name and labels, creating
// it on first use.
func (r *Registry) Timer(name string, labels ...Label) (Timer, error) {
	c, err := r.lookup(NewKey(KindTimer, name, labels...))
	if err != nil {
		return Timer{}, err
	}
	return Timer{c: c}, nil
}

// Scope returns a Scope rooted at this registry with the given labels.
func (r *Registry) Scope(labels ...Label) *Scope {
	return newScope(r, NewLabels(labels...))
}

// Reporter returns a Reporter reading from this registry.
func (r *Registry) Reporter() Reporter {
	return Reporter{reg: r}
}

// Len returns the number of cells.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return int(r.size.Load())
}

// lookup resolves key to its cell. key.Labels must already be normalized.
func (r *Registry) lookup(key Key) (*cell, error) {
	if r == nil {
		return nil, ErrNilRegistry
	}
	id := key.id()
	if v, ok := r.cells.Load(id); ok {
		return r.checkKind(v.(*cell), key)
	}

	if k, loaded := r.kinds.LoadOrStore(key.Name, key.Kind); loaded && k.(Kind) != key.Kind {
		return nil, &KindMismatchError{Name: key.Name, Registered: k.(Kind), Requested: key.Kind}
	}

	v, loaded := r.cells.LoadOrStore(id, newCell(key.clone()))
	if !loaded {
		r.size.Add(1)
	}
	return r.checkKind(v.(*cell), key)
}

func (r *Registry) checkKind(c *cell, key Key) (*cell, error) {
	if c.key.Kind != key.Kind {
		return nil, &KindMismatchError{Name: key.Name, Registered: c.key.Kind, Requested: key.Kind}
	}
	return c, nil
}

// snapshot collects every cell in one pass. Each cell is read (and, when
// destructive, reset) atomically on its own; no lock spans the whole pass.
func (r *Registry) snapshot(destructive bool) *Report {
	at := time.Now()
	if r.now != nil {
		at = r.now()
	}
	entries := make([]Entry, 0, r.size.Load())
	r.cells.Range(func(_, v any) bool {
		c := v.(*cell)
		e := Entry{Key: c.key.clone()}
		switch c.key.Kind {
		case KindCounter:
			if destructive {
				e.Counter = c.counter.take()
			} else {
				e.Counter = c.counter.peek()
			}
		case KindGauge:
			g, ok := c.gauge.load()
			if !ok {
				return true
			}
			e.Gauge = g
		case KindTimer:
			e.Timer = c.timer.snapshot(destructive)
		}
		entries = append(entries, e)
		return true
	})
	sortEntries(entries)
	return &Report{at: at, destructive: destructive, entries: entries}
}
