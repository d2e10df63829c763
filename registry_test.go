package meter

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryHandlesShareCell(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.Counter("hits", L("path", "/"))
	require.NoError(t, err)
	b, err := reg.Counter("hits", L("path", "/"))
	require.NoError(t, err)
	other, err := reg.Counter("hits", L("path", "/x"))
	require.NoError(t, err)

	require.NoError(t, a.Add(2))
	require.NoError(t, b.Add(3))
	require.NoError(t, other.Inc())

	r := reg.Reporter().Peek()
	e, ok := r.Get("hits", L("path", "/"))
	require.True(t, ok)
	assert.Equal(t, uint64(5), e.Counter)
	e, ok = r.Get("hits", L("path", "/x"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Counter)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryKindMismatch(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Counter("x")
	require.NoError(t, err)

	t.Run("same labels", func(t *testing.T) {
		_, err := reg.Gauge("x")
		require.ErrorIs(t, err, ErrKindMismatch)

		var kme *KindMismatchError
		require.True(t, errors.As(err, &kme))
		assert.Equal(t, "x", kme.Name)
		assert.Equal(t, KindCounter, kme.Registered)
		assert.Equal(t, KindGauge, kme.Requested)
	})

	t.Run("different labels", func(t *testing.T) {
		_, err := reg.Timer("x", L("a", "b"))
		assert.ErrorIs(t, err, ErrKindMismatch)
	})

	t.Run("registry unchanged", func(t *testing.T) {
		assert.Equal(t, 1, reg.Len())
	})
}

func TestRegistryConcurrentInsert(t *testing.T) {
	reg := NewRegistry()
	const workers = 64

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.Counter("shared", L("k", "v"))
			assert.NoError(t, err)
			assert.NoError(t, c.Inc())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Len())
	e, ok := reg.Reporter().Peek().Get("shared", L("k", "v"))
	require.True(t, ok)
	assert.Equal(t, uint64(workers), e.Counter)
}

func TestCounterOverflow(t *testing.T) {
	reg := NewRegistry()
	c, err := reg.Counter("big")
	require.NoError(t, err)

	require.NoError(t, c.Add(math.MaxUint64-1))
	require.NoError(t, c.Inc())

	err = c.Inc()
	require.ErrorIs(t, err, ErrCounterOverflow)
	var oe *OverflowError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, uint64(math.MaxUint64), oe.Current)
	assert.Equal(t, uint64(1), oe.Delta)
	assert.Equal(t, "big", oe.Key.Name)

	e, ok := reg.Reporter().Peek().Get("big")
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), e.Counter, "rejected increment must leave the value unchanged")

	// Taking resets the cell, after which increments succeed again.
	reg.Reporter().Take()
	assert.NoError(t, c.Inc())
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	_, err := reg.Counter("x")
	assert.ErrorIs(t, err, ErrNilRegistry)
	_, err = reg.Gauge("x")
	assert.ErrorIs(t, err, ErrNilRegistry)
	_, err = reg.Timer("x")
	assert.ErrorIs(t, err, ErrNilRegistry)
	assert.Equal(t, 0, reg.Len())
}

func TestZeroValueRegistry(t *testing.T) {
	var reg Registry
	c, err := reg.Counter("x")
	require.NoError(t, err)
	require.NoError(t, c.Inc())

	r := reg.Reporter().Take()
	assert.False(t, r.Time().IsZero())
	e, ok := r.Get("x")
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Counter)
}

func TestZeroHandlesAreInert(t *testing.T) {
	assert.NotPanics(t, func() {
		var c Counter
		assert.NoError(t, c.Add(10))
		assert.NoError(t, c.Inc())
		assert.Equal(t, KindCounter, c.Key().Kind)

		var g Gauge
		g.Set(1)
		g.SetInt(2)
		g.SetMax(3)
		assert.Equal(t, KindGauge, g.Key().Kind)

		var tm Timer
		tm.Record(time.Second)
		tm.Time(func() {})
		tm.Since(StartTiming())
		assert.Equal(t, KindTimer, tm.Key().Kind)
	})
}

func TestNewShorthand(t *testing.T) {
	scope, reporter := New()
	c, err := scope.Counter("n")
	require.NoError(t, err)
	require.NoError(t, c.Add(7))

	e, ok := reporter.Take().Get("n")
	require.True(t, ok)
	assert.Equal(t, uint64(7), e.Counter)
}

func TestEditingReportKeysLeavesCellsAlone(t *testing.T) {
	reg := NewRegistry()
	c, err := reg.Counter("hits", L("path", "/"))
	require.NoError(t, err)
	require.NoError(t, c.Inc())

	e, ok := reg.Reporter().Peek().Get("hits", L("path", "/"))
	require.True(t, ok)
	e.Key.Labels[0].Value = "/edited"

	r := reg.Reporter().Peek()
	for e := range r.All() {
		e.Key.Labels[0].Value = "/edited"
	}
	_, ok = r.Get("hits", L("path", "/edited"))
	assert.False(t, ok, "report entries are immutable")

	k := c.Key()
	k.Labels[0].Value = "/edited"
	assert.Equal(t, Labels{L("path", "/")}, c.Key().Labels)

	again, err := reg.Counter("hits", L("path", "/"))
	require.NoError(t, err)
	require.NoError(t, again.Inc())

	r = reg.Reporter().Peek()
	assert.Equal(t, 1, reg.Len())
	e, ok = r.Get("hits", L("path", "/"))
	require.True(t, ok)
	assert.Equal(t, uint64(2), e.Counter)
	_, ok = r.Get("hits", L("path", "/edited"))
	assert.False(t, ok)
}

func TestEditingTotalsKeysLeavesReportAlone(t *testing.T) {
	r := NewReport(true, time.Now(), []Entry{
		{Key: NewKey(KindCounter, "hits", L("path", "/")), Counter: 1},
	})
	cum, err := NewTotals().Observe(r)
	require.NoError(t, err)
	for e := range cum.All() {
		e.Key.Labels[0].Value = "/edited"
	}
	_, ok := r.Get("hits", L("path", "/"))
	assert.True(t, ok)
}

func TestGaugeSetIntPrecision(t *testing.T) {
	scope, reporter := New()
	g, err := scope.Gauge("big")
	require.NoError(t, err)

	g.SetInt(1 << 53)
	e, ok := reporter.Peek().Get("big")
	require.True(t, ok)
	assert.Equal(t, float64(1<<53), e.Gauge)

	g.SetInt(1<<53 + 1)
	e, _ = reporter.Peek().Get("big")
	assert.Equal(t, float64(1<<53), e.Gauge, "rounded to the nearest float64")
}
