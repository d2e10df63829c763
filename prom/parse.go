package prom

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/nikiz24/meter"
)

// Parse reads text exposition produced by Format back into a Report. It is
// the inverse of Format: summaries become timers (t_min and t_max folded
// in, t_mean dropped as derived), counters and gauges map one to one.
// The returned Report is marked non-destructive and has a zero time.
func Parse(r io.Reader) (*meter.Report, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parsing exposition: %w", err)
	}

	var entries []meter.Entry
	timers := make(map[string]map[string]int) // summary name -> label id -> index in entries
	var gauges []*dto.MetricFamily

	for name, mf := range families {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			for _, m := range mf.Metric {
				v := m.GetCounter().GetValue()
				if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
					return nil, fmt.Errorf("counter %s has non-integer value %v", name, v)
				}
				entries = append(entries, meter.Entry{
					Key:     meter.NewKey(meter.KindCounter, name, labels(m)...),
					Counter: uint64(v),
				})
			}
		case dto.MetricType_GAUGE:
			gauges = append(gauges, mf)
		case dto.MetricType_SUMMARY:
			idx := make(map[string]int, len(mf.Metric))
			for _, m := range mf.Metric {
				key := meter.NewKey(meter.KindTimer, name, labels(m)...)
				idx[key.Labels.String()] = len(entries)
				entries = append(entries, meter.Entry{
					Key: key,
					Timer: meter.TimerStats{
						Count: m.GetSummary().GetSampleCount(),
						Sum:   seconds(m.GetSummary().GetSampleSum()),
					},
				})
			}
			timers[name] = idx
		default:
			return nil, fmt.Errorf("metric family %s has unsupported type %s", name, mf.GetType())
		}
	}

	for _, mf := range gauges {
		name := mf.GetName()
		for _, m := range mf.Metric {
			ls := meter.NewLabels(labels(m)...)
			if foldTimerGauge(entries, timers, name, ls, m.GetGauge().GetValue()) {
				continue
			}
			entries = append(entries, meter.Entry{
				Key:   meter.Key{Name: name, Labels: ls, Kind: meter.KindGauge},
				Gauge: m.GetGauge().GetValue(),
			})
		}
	}

	return meter.NewReport(false, time.Time{}, entries), nil
}

// foldTimerGauge stores a t_min/t_max/t_mean sample into the timer entry it
// belongs to. It reports false when the gauge is not derived from a timer.
func foldTimerGauge(entries []meter.Entry, timers map[string]map[string]int, name string, ls meter.Labels, v float64) bool {
	for _, suffix := range []string{SuffixMean, SuffixMin, SuffixMax} {
		base, ok := strings.CutSuffix(name, suffix)
		if !ok {
			continue
		}
		i, ok := timers[base][ls.String()]
		if !ok {
			return false
		}
		switch suffix {
		case SuffixMin:
			entries[i].Timer.Min = seconds(v)
		case SuffixMax:
			entries[i].Timer.Max = seconds(v)
		}
		return true
	}
	return false
}

func labels(m *dto.Metric) []meter.Label {
	out := make([]meter.Label, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out = append(out, meter.L(lp.GetName(), lp.GetValue()))
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
