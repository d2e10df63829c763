// Package prom renders meter Reports in the Prometheus text exposition
// format and parses that format back.
//
// Families are ordered by name and series by label set, so the same Report
// always renders to the same bytes. Counters and gauges map to counter and
// gauge families. A timer t renders as:
//
//	t_sum    total recorded time, seconds   (summary, no quantiles)
//	t_count  number of samples              (summary)
//	t_mean   t_sum / t_count, seconds       (gauge)
//	t_min    shortest sample, seconds       (gauge)
//	t_max    longest sample, seconds        (gauge)
//
// Names and label values are written as given; expfmt quotes and escapes
// whatever the format reserves. Gauge names ending in _mean, _min or _max
// next to a timer of the base name are read back as part of that timer.
package prom
