// Package analytics derives dashboard views from record snapshots.
//
// Every function here is a pure function of its inputs: the caller supplies
// the records, the filter, and the reference time. Nothing reads the clock,
// the store, or shared state, so the same input always yields the same view.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// TopN bounds every ranking view.
	TopN = 10

	MinDays = 1
	MaxDays = 365

	dayKeyLayout     = "2006-01-02"
	dayLabelLayout   = "Jan 02"
	monthKeyLayout   = "2006-01"
	monthLabelLayout = "Jan 2006"
)

// All is the selection value meaning "no filter", as sent by the dashboards.
const All = "all"

// Filter selects the records a view is computed over.
type Filter struct {
	// Days is the trailing window; 0 means the view's default. Values are
	// clamped to MinDays..MaxDays.
	Days int
	// Now anchors the window. Callers pass it in so views stay deterministic.
	Now time.Time
	// Location decides which calendar day a record falls on.
	Location *time.Location
	// Selections maps a categorical field name to the required value. Empty
	// values and All are ignored.
	Selections map[string]string
}

func (f Filter) days(def int) int {
	d := f.Days
	if d == 0 {
		d = def
	}
	if d < MinDays {
		return MinDays
	}
	if d > MaxDays {
		return MaxDays
	}
	return d
}

func (f Filter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// apply keeps records created inside the window whose categorical fields
// match every active selection. A selection for an unknown field matches
// nothing.
func apply[R any](records []R, f Filter, defaultDays int, createdAt func(R) time.Time, fields map[string]func(R) string) []R {
	cutoff := f.Now.AddDate(0, 0, -f.days(defaultDays))

	type want struct {
		get   func(R) string
		value string
	}
	var wants []want
	for name, value := range f.Selections {
		if value == "" || value == All {
			continue
		}
		get, ok := fields[name]
		if !ok {
			return []R{}
		}
		wants = append(wants, want{get: get, value: value})
	}

	out := make([]R, 0, len(records))
	for _, r := range records {
		if createdAt(r).Before(cutoff) {
			continue
		}
		keep := true
		for _, w := range wants {
			if w.get(r) != w.value {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

// Aggregate is one group of records sharing a categorical key.
type Aggregate struct {
	Key     string           `json:"key"`
	Name    string           `json:"name"`
	Count   int64            `json:"count"`
	Metrics map[string]int64 `json:"metrics"`
}

// Metric returns the named sum; "count" is the group size.
func (a Aggregate) Metric(name string) int64 {
	if name == "count" {
		return a.Count
	}
	return a.Metrics[name]
}

// Bucket is one calendar period of a time series.
type Bucket struct {
	Date    string           `json:"date"`
	Label   string           `json:"label"`
	Count   int64            `json:"count"`
	Metrics map[string]int64 `json:"metrics"`
}

// Slice is one pie-chart segment.
type Slice struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Measure extracts one summed numeric field from a record.
type Measure[R any] struct {
	Name  string
	Value func(R) int64
}

// groupBy partitions records by key, summing each measure. Groups come out
// in order of first occurrence.
func groupBy[R any](records []R, key func(R) string, name func(string) string, measures ...Measure[R]) []Aggregate {
	index := make(map[string]int)
	groups := []Aggregate{}
	for _, r := range records {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Aggregate{Key: k, Name: name(k), Metrics: make(map[string]int64, len(measures))})
			for _, m := range measures {
				groups[i].Metrics[m.Name] = 0
			}
		}
		groups[i].Count++
		for _, m := range measures {
			groups[i].Metrics[m.Name] += m.Value(r)
		}
	}
	return groups
}

// rankBy sorts groups descending by metric and keeps the first n. Ties keep
// their first-occurrence order.
func rankBy(groups []Aggregate, metric string, n int) []Aggregate {
	ranked := make([]Aggregate, len(groups))
	copy(ranked, groups)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Metric(metric) > ranked[j].Metric(metric)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// bucketBy groups records into calendar periods and returns them in
// ascending date order. Periods without records are absent. Records whose
// timestamp is zero are skipped.
func bucketBy[R any](records []R, when func(R) time.Time, keyLayout, labelLayout string, measures ...Measure[R]) []Bucket {
	type acc struct {
		label string
		count int64
		sums  map[string]int64
	}
	byKey := make(map[string]*acc)
	for _, r := range records {
		t := when(r)
		if t.IsZero() {
			continue
		}
		k := t.Format(keyLayout)
		a, ok := byKey[k]
		if !ok {
			a = &acc{label: t.Format(labelLayout), sums: make(map[string]int64, len(measures))}
			for _, m := range measures {
				a.sums[m.Name] = 0
			}
			byKey[k] = a
		}
		a.count++
		for _, m := range measures {
			a.sums[m.Name] += m.Value(r)
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	// Key layouts are big-endian, so lexical order is chronological.
	sort.Strings(keys)

	out := make([]Bucket, 0, len(keys))
	for _, k := range keys {
		a := byKey[k]
		out = append(out, Bucket{Date: k, Label: a.label, Count: a.count, Metrics: a.sums})
	}
	return out
}

// dayOf returns a record-time accessor converted to loc for daily buckets.
func dayOf[R any](createdAt func(R) time.Time, loc *time.Location) func(R) time.Time {
	return func(r R) time.Time { return createdAt(r).In(loc) }
}

func shares(groups []Aggregate, metric string) []Slice {
	out := make([]Slice, 0, len(groups))
	for _, g := range groups {
		out = append(out, Slice{Name: g.Name, Value: g.Metric(metric)})
	}
	return out
}

func sum[R any](records []R, value func(R) int64) int64 {
	var total int64
	for _, r := range records {
		total += value(r)
	}
	return total
}

func distinct[R any](records []R, key func(R) string) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[key(r)] = struct{}{}
	}
	return len(seen)
}

// ratio is num/den, defined as 0 when den is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func percent(num, den float64) float64 {
	return ratio(num, den) * 100
}

// capitalize upper-cases the first letter for display ("night" -> "Night").
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func asIs(s string) string { return s }

// options lists the sorted distinct values of each categorical field.
func options[R any](records []R, fields map[string]func(R) string) map[string][]string {
	out := make(map[string][]string, len(fields))
	for name, get := range fields {
		seen := make(map[string]struct{})
		values := []string{}
		for _, r := range records {
			v := get(r)
			if strings.TrimSpace(v) == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sort.Strings(values)
		out[name] = values
	}
	return out
}
