package prom

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/nikiz24/meter"
)

// Suffixes of the gauge families derived from a timer.
const (
	SuffixMean = "_mean"
	SuffixMin  = "_min"
	SuffixMax  = "_max"
)

// Families converts a Report into metric families sorted by name. Within a
// family, series keep the Report's label-set order.
//
// Counters become counter families and gauges become gauge families. A
// timer t becomes a summary t without quantiles (t_sum in seconds, t_count)
// plus the gauges t_mean, t_min and t_max, all in seconds. A Report in which
// two entries render the same series, such as a gauge t_max with the same
// labels as a timer t, is rejected.
func Families(r *meter.Report) ([]*dto.MetricFamily, error) {
	byName := make(map[string]*dto.MetricFamily)
	series := make(map[string]struct{})
	add := func(name string, typ dto.MetricType, ls meter.Labels, m *dto.Metric) error {
		mf, ok := byName[name]
		if !ok {
			mf = &dto.MetricFamily{Name: proto.String(name), Type: typ.Enum()}
			byName[name] = mf
		} else if mf.GetType() != typ {
			return fmt.Errorf("metric family %q rendered as both %s and %s", name, mf.GetType(), typ)
		}
		id := name + ls.String()
		if _, dup := series[id]; dup {
			return fmt.Errorf("metric family %q has more than one series %s", name, id)
		}
		series[id] = struct{}{}
		mf.Metric = append(mf.Metric, m)
		return nil
	}

	for e := range r.All() {
		labels := labelPairs(e.Key.Labels)
		var err error
		switch e.Key.Kind {
		case meter.KindCounter:
			err = add(e.Key.Name, dto.MetricType_COUNTER, e.Key.Labels, &dto.Metric{
				Label:   labels,
				Counter: &dto.Counter{Value: proto.Float64(float64(e.Counter))},
			})
		case meter.KindGauge:
			err = add(e.Key.Name, dto.MetricType_GAUGE, e.Key.Labels, gaugeMetric(labels, e.Gauge))
		case meter.KindTimer:
			err = addTimer(add, e.Key, labels, e.Timer)
		default:
			err = fmt.Errorf("metric %s has unknown kind", e.Key)
		}
		if err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out, nil
}

func addTimer(add func(string, dto.MetricType, meter.Labels, *dto.Metric) error, key meter.Key, labels []*dto.LabelPair, s meter.TimerStats) error {
	summary := &dto.Metric{
		Label: labels,
		Summary: &dto.Summary{
			SampleCount: proto.Uint64(s.Count),
			SampleSum:   proto.Float64(s.Sum.Seconds()),
		},
	}
	if err := add(key.Name, dto.MetricType_SUMMARY, key.Labels, summary); err != nil {
		return err
	}
	if err := add(key.Name+SuffixMean, dto.MetricType_GAUGE, key.Labels, gaugeMetric(labels, s.Mean().Seconds())); err != nil {
		return err
	}
	if err := add(key.Name+SuffixMin, dto.MetricType_GAUGE, key.Labels, gaugeMetric(labels, s.Min.Seconds())); err != nil {
		return err
	}
	return add(key.Name+SuffixMax, dto.MetricType_GAUGE, key.Labels, gaugeMetric(labels, s.Max.Seconds()))
}

func gaugeMetric(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func labelPairs(ls meter.Labels) []*dto.LabelPair {
	if len(ls) == 0 {
		return nil
	}
	out := make([]*dto.LabelPair, len(ls))
	for i, l := range ls {
		out[i] = &dto.LabelPair{Name: proto.String(l.Name), Value: proto.String(l.Value)}
	}
	return out
}

// Format writes r to w in the Prometheus text exposition format. Output is
// deterministic: rendering the same Report twice yields identical bytes.
func Format(w io.Writer, r *meter.Report) error {
	families, err := Families(r)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing family %q: %w", mf.GetName(), err)
		}
	}
	return nil
}

// FormatString renders r to a string.
func FormatString(r *meter.Report) (string, error) {
	var buf bytes.Buffer
	if err := Format(&buf, r); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
