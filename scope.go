package meter

import "sync"

// Scope is a fixed label set bound to a Registry. Handles derived from a
// Scope carry its labels and are cached by name, so asking a Scope for the
// same metric twice skips the registry lookup.
//
// A *Scope is safe for concurrent use and cheap to share.
type Scope struct {
	reg    *Registry
	labels Labels
	cache  *scopeCache
}

type scopeCache struct {
	counters sync.Map // map[string]Counter
	gauges   sync.Map // map[string]Gauge
	timers   sync.Map // map[string]Timer
}

func newScope(r *Registry, labels Labels) *Scope {
	return &Scope{reg: r, labels: labels, cache: &scopeCache{}}
}

// Labeled returns a child Scope with the label added (or replaced). The
// receiver is not modified.
func (s *Scope) Labeled(name, value string) *Scope {
	if s == nil {
		return newScope(nil, NewLabels(L(name, value)))
	}
	return newScope(s.reg, s.labels.With(name, value))
}

// Labels returns a copy of the scope's label set.
func (s *Scope) Labels() Labels {
	if s == nil {
		return nil
	}
	return append(Labels(nil), s.labels...)
}

// Registry returns the registry the scope writes to.
func (s *Scope) Registry() *Registry {
	if s == nil {
		return nil
	}
	return s.reg
}

// Counter returns the counter called name under this scope's labels.
func (s *Scope) Counter(name string) (Counter, error) {
	if s == nil || s.reg == nil {
		return Counter{}, ErrNilRegistry
	}
	if v, ok := s.cache.counters.Load(name); ok {
		return v.(Counter), nil
	}
	c, err := s.reg.lookup(Key{Name: name, Labels: s.labels, Kind: KindCounter})
	if err != nil {
		return Counter{}, err
	}
	h := Counter{c: c}
	s.cache.counters.Store(name, h)
	return h, nil
}

// Gauge returns the gauge called name under this scope's labels.
func (s *Scope) Gauge(name string) (Gauge, error) {
	if s == nil || s.reg == nil {
		return Gauge{}, ErrNilRegistry
	}
	if v, ok := s.cache.gauges.Load(name); ok {
		return v.(Gauge), nil
	}
	c, err := s.reg.lookup(Key{Name: name, Labels: s.labels, Kind: KindGauge})
	if err != nil {
		return Gauge{}, err
	}
	h := Gauge{c: c}
	s.cache.gauges.Store(name, h)
	return h, nil
}

// Timer returns the timer called name under this scope's labels.
func (s *Scope) Timer(name string) (Timer, error) {
	if s == nil || s.reg == nil {
		return Timer{}, ErrNilRegistry
	}
	if v, ok := s.cache.timers.Load(name); ok {
		return v.(Timer), nil
	}
	c, err := s.reg.lookup(Key{Name: name, Labels: s.labels, Kind: KindTimer})
	if err != nil {
		return Timer{}, err
	}
	h := Timer{c: c}
	s.cache.timers.Store(name, h)
	return h, nil
}
