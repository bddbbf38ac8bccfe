// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Cleaning runs are short-lived batch jobs, so collected metrics are pushed
// to a Pushgateway on Flush instead of being exposed on a scrape endpoint.
// All Prometheus-specific dependencies stay in this package.
package prompush

import (
	"fmt"

	"cleanse/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stageCounter   *prometheus.CounterVec // cleanse_stage_total
	stageDuration  *prometheus.SummaryVec // cleanse_stage_duration_seconds
	rowCounter     *prometheus.CounterVec // cleanse_rows_total
	droppedColumns *prometheus.CounterVec // cleanse_columns_dropped_total
	violations     *prometheus.CounterVec // cleanse_check_violations_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name; defaults to "cleanse".
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "cleanse"
	}

	reg := prometheus.NewRegistry()

	stageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Cleaning stage executions, partitioned by table, stage and status.",
		},
		[]string{"table", "stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StageDurationSeconds,
			Help:       "Duration of cleaning stages in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"table", "stage", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row counts per kind (in, out, dropped_missing).",
		},
		[]string{"table", "kind"},
	)
	droppedColumns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.ColumnsDroppedTotal,
			Help: "Columns removed by the missingness filter.",
		},
		[]string{"table"},
	)
	violations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.CheckViolationsTotal,
			Help: "Cells that failed a schema check, by column and check.",
		},
		[]string{"table", "column", "check"},
	)

	for _, c := range []struct {
		what string
		col  prometheus.Collector
	}{
		{"stage counter", stageCounter},
		{"stage summary", stageDuration},
		{"row counter", rowCounter},
		{"dropped columns counter", droppedColumns},
		{"check violations counter", violations},
	} {
		if err := reg.Register(c.col); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", c.what, err)
		}
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		stageCounter:   stageCounter,
		stageDuration:  stageDuration,
		rowCounter:     rowCounter,
		droppedColumns: droppedColumns,
		violations:     violations,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		if b.stageCounter == nil {
			return
		}
		b.stageCounter.WithLabelValues(labels["table"], labels["stage"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["table"], labels["kind"]).Add(delta)

	case metrics.ColumnsDroppedTotal:
		if b.droppedColumns == nil {
			return
		}
		b.droppedColumns.WithLabelValues(labels["table"]).Add(delta)

	case metrics.CheckViolationsTotal:
		if b.violations == nil {
			return
		}
		b.violations.WithLabelValues(labels["table"], labels["column"], labels["check"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StageDurationSeconds || b.stageDuration == nil {
		return
	}
	b.stageDuration.WithLabelValues(labels["table"], labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
