package meter

import "time"

// Reporter is the consumer side of a Registry. It is a small value and may
// be copied freely.
type Reporter struct {
	reg *Registry
}

// Take returns a destructive snapshot: counters and timers are reset as
// part of the same pass that reads them. Use it for periodic reports.
func (r Reporter) Take() *Report {
	if r.reg == nil {
		return NewReport(true, time.Now(), nil)
	}
	return r.reg.snapshot(true)
}

// Peek returns a snapshot without resetting anything. Use it for the final
// report at shutdown, after the last Take, so that nothing is counted twice.
func (r Reporter) Peek() *Report {
	if r.reg == nil {
		return NewReport(false, time.Now(), nil)
	}
	return r.reg.snapshot(false)
}
