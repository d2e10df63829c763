package meter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalsObserve(t *testing.T) {
	scope, reporter := New()
	c, err := scope.Counter("c")
	require.NoError(t, err)
	g, err := scope.Gauge("g")
	require.NoError(t, err)
	tm, err := scope.Timer("t")
	require.NoError(t, err)

	var totals Totals

	require.NoError(t, c.Add(3))
	g.Set(1)
	tm.Record(time.Second)
	view, err := totals.Observe(reporter.Take())
	require.NoError(t, err)
	e, _ := view.Get("c")
	assert.Equal(t, uint64(3), e.Counter)

	require.NoError(t, c.Add(4))
	g.Set(2)
	tm.Record(3 * time.Second)
	view, err = totals.Observe(reporter.Take())
	require.NoError(t, err)
	assert.True(t, view.Destructive())

	e, _ = view.Get("c")
	assert.Equal(t, uint64(7), e.Counter)
	e, _ = view.Get("g")
	assert.Equal(t, 2.0, e.Gauge, "gauges pass through")
	e, _ = view.Get("t")
	assert.Equal(t, TimerStats{Count: 2, Sum: 4 * time.Second, Min: time.Second, Max: 3 * time.Second}, e.Timer)

	t.Run("peek overlays without committing", func(t *testing.T) {
		require.NoError(t, c.Add(5))

		for range 2 {
			view, err := totals.Observe(reporter.Peek())
			require.NoError(t, err)
			e, _ := view.Get("c")
			assert.Equal(t, uint64(12), e.Counter)
		}

		view, err := totals.Observe(reporter.Take())
		require.NoError(t, err)
		e, _ := view.Get("c")
		assert.Equal(t, uint64(12), e.Counter)
	})
}

func TestTotalsSaturates(t *testing.T) {
	key := NewKey(KindCounter, "c")
	totals := NewTotals()

	_, err := totals.Observe(NewReport(true, time.Time{}, []Entry{{Key: key, Counter: math.MaxUint64 - 1}}))
	require.NoError(t, err)

	view, err := totals.Observe(NewReport(true, time.Time{}, []Entry{{Key: key, Counter: 5}}))
	require.ErrorIs(t, err, ErrCounterOverflow)
	e, _ := view.Get("c")
	assert.Equal(t, uint64(math.MaxUint64), e.Counter)
}

func TestTotalsDoesNotMutateInput(t *testing.T) {
	key := NewKey(KindCounter, "c")
	totals := NewTotals()
	_, err := totals.Observe(NewReport(true, time.Time{}, []Entry{{Key: key, Counter: 1}}))
	require.NoError(t, err)

	in := NewReport(true, time.Time{}, []Entry{{Key: key, Counter: 1}})
	_, err = totals.Observe(in)
	require.NoError(t, err)
	e, _ := in.Get("c")
	assert.Equal(t, uint64(1), e.Counter)
}
