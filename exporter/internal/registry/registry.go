package registry

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Kind selects the write semantics of a series.
type Kind int

const (
	// Gauge series are overwritten by Set; the last write wins.
	Gauge Kind = iota
	// Counter series accumulate through Add/Inc and never go down.
	Counter
)

func (k Kind) String() string {
	switch k {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Series declares one named metric and its label names.
type Series struct {
	Name   string
	Kind   Kind
	Labels []string
	Help   string
}

// ContentType is the media type produced by Render.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// SchemaError reports a write that does not match the declared schema.
// It indicates a code defect and is raised as a panic.
type SchemaError struct {
	Series string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("registry: series %q: %s", e.Series, e.Reason)
}

// Registry holds the current value of every declared series, one cell per
// label set. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	decls   []Series
	runtime bool
	prom    *prometheus.Registry
	cells   map[string]*cell
}

type cell struct {
	series  Series
	names   map[string]struct{}
	gauge   *prometheus.GaugeVec
	counter *prometheus.CounterVec
}

// Option configures a Registry.
type Option func(*Registry)

// WithRuntimeMetrics adds the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(r *Registry) { r.runtime = true }
}

// New declares every series. Declaration happens only here; writes to
// undeclared series panic.
func New(series []Series, opts ...Option) (*Registry, error) {
	r := &Registry{decls: append([]Series(nil), series...)}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.build(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewDefault returns a Registry declaring Schema.
func NewDefault(opts ...Option) (*Registry, error) {
	return New(Schema, opts...)
}

// build creates a fresh prometheus registry holding every declared series.
// Callers hold mu or own r exclusively.
func (r *Registry) build() error {
	prom := prometheus.NewRegistry()
	cells := make(map[string]*cell, len(r.decls))

	for _, s := range r.decls {
		if _, dup := cells[s.Name]; dup {
			return fmt.Errorf("registry: series %q declared twice", s.Name)
		}
		c, err := declare(prom, s)
		if err != nil {
			return err
		}
		cells[s.Name] = c
	}

	if r.runtime {
		if err := prom.Register(collectors.NewGoCollector()); err != nil {
			return fmt.Errorf("registry: register go collector: %w", err)
		}
		if err := prom.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return fmt.Errorf("registry: register process collector: %w", err)
		}
	}

	r.prom = prom
	r.cells = cells
	return nil
}

func declare(prom *prometheus.Registry, s Series) (*cell, error) {
	c := &cell{series: s, names: make(map[string]struct{}, len(s.Labels))}
	for _, l := range s.Labels {
		c.names[l] = struct{}{}
	}

	var col prometheus.Collector
	switch s.Kind {
	case Gauge:
		c.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: s.Name, Help: s.Help}, s.Labels)
		col = c.gauge
	case Counter:
		c.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: s.Name, Help: s.Help}, s.Labels)
		col = c.counter
	default:
		return nil, fmt.Errorf("registry: series %q: unknown kind %v", s.Name, s.Kind)
	}

	if err := prom.Register(col); err != nil {
		return nil, fmt.Errorf("registry: register %q: %w", s.Name, err)
	}
	return c, nil
}

// Set overwrites the gauge cell identified by labels.
func (r *Registry) Set(name string, labels prometheus.Labels, v float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.lookup(name, Gauge, labels)
	c.gauge.With(labels).Set(v)
}

// Add accumulates delta into the counter cell identified by labels.
// Concurrent Adds on the same cell are never lost.
func (r *Registry) Add(name string, labels prometheus.Labels, delta float64) {
	if delta < 0 {
		panic(&SchemaError{Series: name, Reason: "counter delta must not be negative"})
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.lookup(name, Counter, labels)
	c.counter.With(labels).Add(delta)
}

// Inc adds 1 to the counter cell identified by labels.
func (r *Registry) Inc(name string, labels prometheus.Labels) {
	r.Add(name, labels, 1)
}

// DeletePartial removes every cell of series name whose labels contain the
// given pairs. It returns the number of cells removed.
func (r *Registry) DeletePartial(name string, labels prometheus.Labels) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[name]
	if !ok {
		panic(&SchemaError{Series: name, Reason: "not declared"})
	}
	for k := range labels {
		if _, ok := c.names[k]; !ok {
			panic(&SchemaError{Series: name, Reason: fmt.Sprintf("unknown label %q", k)})
		}
	}
	if c.gauge != nil {
		return c.gauge.DeletePartialMatch(labels)
	}
	return c.counter.DeletePartialMatch(labels)
}

// lookup returns the cell for name after checking kind and label names.
// Any mismatch panics with *SchemaError. Callers hold mu for reading.
func (r *Registry) lookup(name string, kind Kind, labels prometheus.Labels) *cell {
	c, ok := r.cells[name]
	if !ok {
		panic(&SchemaError{Series: name, Reason: "not declared"})
	}
	if c.series.Kind != kind {
		panic(&SchemaError{Series: name, Reason: fmt.Sprintf("declared as %v, written as %v", c.series.Kind, kind)})
	}
	if len(labels) != len(c.names) {
		panic(&SchemaError{Series: name, Reason: fmt.Sprintf("label set %v does not match %v", labelKeys(labels), c.series.Labels)})
	}
	for k := range labels {
		if _, ok := c.names[k]; !ok {
			panic(&SchemaError{Series: name, Reason: fmt.Sprintf("label set %v does not match %v", labelKeys(labels), c.series.Labels)})
		}
	}
	return c
}

// Gather implements prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.RLock()
	prom := r.prom
	r.mu.RUnlock()
	return prom.Gather()
}

// Render encodes the current values in the Prometheus text exposition
// format. It may run concurrently with writers; each cell is read
// atomically but series are not read as one consistent snapshot.
func (r *Registry) Render() ([]byte, error) {
	mfs, err := r.Gather()
	if err != nil {
		return nil, fmt.Errorf("registry: gather: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("registry: encode %q: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// Value returns the current value of one cell. The bool is false when the
// cell has never been written.
func (r *Registry) Value(name string, labels prometheus.Labels) (float64, bool) {
	mfs, err := r.Gather()
	if err != nil {
		return 0, false
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !sameLabels(m.GetLabel(), labels) {
				continue
			}
			switch {
			case m.Gauge != nil:
				return m.GetGauge().GetValue(), true
			case m.Counter != nil:
				return m.GetCounter().GetValue(), true
			case m.Untyped != nil:
				return m.GetUntyped().GetValue(), true
			}
		}
	}
	return 0, false
}

// Count returns the number of cells currently held by series name.
func (r *Registry) Count(name string) int {
	mfs, err := r.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

// Reset drops every value and re-declares all series.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.build(); err != nil {
		// The same declarations succeeded in New.
		panic(err)
	}
}

// Series returns the declared series.
func (r *Registry) Series() []Series {
	return append([]Series(nil), r.decls...)
}

func sameLabels(pairs []*dto.LabelPair, labels prometheus.Labels) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, p := range pairs {
		v, ok := labels[p.GetName()]
		if !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func labelKeys(labels prometheus.Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, " ") + "]"
}
