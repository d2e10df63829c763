package meter

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the type of a metric cell.
type Kind uint8

const (
	KindCounter Kind = iota + 1
	KindGauge
	KindTimer
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Label is a single name/value pair attached to a metric.
type Label struct {
	Name  string
	Value string
}

// L is shorthand for constructing a Label.
func L(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Labels is an ordered label set, sorted by name with unique names.
type Labels []Label

// NewLabels builds a label set from name/value pairs. When a name repeats the
// last value wins.
func NewLabels(pairs ...Label) Labels {
	if len(pairs) == 0 {
		return nil
	}
	out := make(Labels, 0, len(pairs))
	return out.merge(pairs)
}

// With returns a copy of ls with the given label added or replaced.
func (ls Labels) With(name, value string) Labels {
	out := make(Labels, 0, len(ls)+1)
	out = append(out, ls...)
	return out.merge([]Label{{Name: name, Value: value}})
}

// Get returns the value of the named label.
func (ls Labels) Get(name string) (string, bool) {
	i := sort.Search(len(ls), func(i int) bool { return ls[i].Name >= name })
	if i < len(ls) && ls[i].Name == name {
		return ls[i].Value, true
	}
	return "", false
}

// Map returns the labels as a map.
func (ls Labels) Map() map[string]string {
	m := make(map[string]string, len(ls))
	for _, l := range ls {
		m[l.Name] = l.Value
	}
	return m
}

// Equal reports whether both sets hold the same pairs.
func (ls Labels) Equal(other Labels) bool {
	if len(ls) != len(other) {
		return false
	}
	for i := range ls {
		if ls[i] != other[i] {
			return false
		}
	}
	return true
}

// Compare orders label sets lexicographically, pair by pair.
func (ls Labels) Compare(other Labels) int {
	for i := 0; i < len(ls) && i < len(other); i++ {
		if c := strings.Compare(ls[i].Name, other[i].Name); c != 0 {
			return c
		}
		if c := strings.Compare(ls[i].Value, other[i].Value); c != 0 {
			return c
		}
	}
	switch {
	case len(ls) < len(other):
		return -1
	case len(ls) > len(other):
		return 1
	}
	return 0
}

// String renders the set as {a="1",b="2"}.
func (ls Labels) String() string {
	if len(ls) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(l.Value))
	}
	b.WriteByte('}')
	return b.String()
}

// merge inserts pairs into the sorted receiver, replacing existing names.
func (ls Labels) merge(pairs []Label) Labels {
	for _, p := range pairs {
		i := sort.Search(len(ls), func(i int) bool { return ls[i].Name >= p.Name })
		if i < len(ls) && ls[i].Name == p.Name {
			ls[i].Value = p.Value
			continue
		}
		ls = append(ls, Label{})
		copy(ls[i+1:], ls[i:])
		ls[i] = p
	}
	return ls
}

// Key identifies one metric cell. Two keys refer to the same cell when their
// names and label sets match; Kind is carried along but is not part of the
// identity.
type Key struct {
	Name   string
	Labels Labels
	Kind   Kind
}

// NewKey builds a key, normalizing the label order.
func NewKey(kind Kind, name string, labels ...Label) Key {
	return Key{Name: name, Labels: NewLabels(labels...), Kind: kind}
}

// clone returns a copy of k whose labels share no storage with k.
func (k Key) clone() Key {
	k.Labels = slices.Clone(k.Labels)
	return k
}

// String renders the key as name{labels}.
func (k Key) String() string {
	return k.Name + k.Labels.String()
}

// Compare orders keys by name, then label set.
func (k Key) Compare(other Key) int {
	if c := strings.Compare(k.Name, other.Name); c != 0 {
		return c
	}
	return k.Labels.Compare(other.Labels)
}

// id is the map key for the cell. Names and labels are opaque, so the
// separators are bytes that cannot occur in valid UTF-8.
func (k Key) id() string {
	return formatKey(k.Name, k.Labels)
}

// formatKey combines metric name and labels into a registry key.
func formatKey(name string, labels Labels) string {
	n := len(name)
	for _, l := range labels {
		n += len(l.Name) + len(l.Value) + 2
	}
	var b strings.Builder
	b.Grow(n)
	b.WriteString(name)
	for _, l := range labels {
		b.WriteByte(0xff)
		b.WriteString(l.Name)
		b.WriteByte(0xfe)
		b.WriteString(l.Value)
	}
	return b.String()
}
