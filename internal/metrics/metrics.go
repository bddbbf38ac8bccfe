// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from cleaning runs.
//
// It exposes a narrow interface (Backend) focused on counters and timing data
// and a global, pluggable backend that defaults to a no-op implementation, so
// metrics are always safe to call even when no real backend is configured.
// Concrete systems live in subpackages (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// Metric names.
const (
	StageTotal           = "cleanse_stage_total"
	StageDurationSeconds = "cleanse_stage_duration_seconds"
	RowsTotal            = "cleanse_rows_total"
	ColumnsDroppedTotal  = "cleanse_columns_dropped_total"
	CheckViolationsTotal = "cleanse_check_violations_total"
)

// Row kinds for RecordRows.
const (
	RowsIn             = "in"
	RowsOut            = "out"
	RowsDroppedMissing = "dropped_missing"
)

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Reset restores the no-op backend.
func Reset() {
	mu.Lock()
	backend = nopBackend{}
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage counts one executed cleaning stage and observes its duration.
func RecordStage(table, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"table":  table,
		"stage":  stage,
		"status": status,
	}
	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDurationSeconds, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind (RowsIn, RowsOut,
// RowsDroppedMissing). Non-positive deltas are ignored.
func RecordRows(table, kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"table": table,
		"kind":  kind,
	})
}

// RecordColumnsDropped counts columns removed by the missingness filter.
func RecordColumnsDropped(table string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(ColumnsDroppedTotal, float64(delta), Labels{
		"table": table,
	})
}

// RecordCheckViolations counts cells that failed a schema check.
func RecordCheckViolations(table, column, check string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(CheckViolationsTotal, float64(delta), Labels{
		"table":  table,
		"column": column,
		"check":  check,
	})
}
