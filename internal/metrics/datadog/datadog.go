// Package datadog forwards cleanse metrics to a DogStatsD agent.
//
// Metric names drop their "cleanse_" prefix and are emitted under the
// namespace instead, so cleanse_rows_total{kind="in"} arrives as
// cleanse.rows_total with tag kind:in. Histograms whose name ends in
// "_seconds" are sent as distributions so percentiles aggregate across hosts.
package datadog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"cleanse/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// DefaultNamespace is used when Config.Namespace is empty.
const DefaultNamespace = "cleanse."

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string

	// Namespace prefixes every metric name. Defaults to DefaultNamespace.
	Namespace string

	// GlobalTags are attached to every metric, e.g. "job:transactions".
	GlobalTags []string
}

// statsdClient is the subset of statsd.ClientInterface the backend uses.
type statsdClient interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Distribution(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Backend implements metrics.Backend on a DogStatsD client.
type Backend struct {
	client statsdClient
}

// NewBackend dials DogStatsD. Addr is required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	opts := []statsd.Option{statsd.WithNamespace(ns)}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a Count. Fractional deltas are rounded; a delta that
// rounds to zero is not sent.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	n := int64(math.Round(delta))
	if n == 0 {
		return
	}
	_ = b.client.Count(metricName(name), n, labelsToTags(labels), 1)
}

// ObserveHistogram sends a Distribution for "_seconds" metrics and a
// Histogram otherwise.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	tags := labelsToTags(labels)
	if strings.HasSuffix(name, "_seconds") {
		_ = b.client.Distribution(metricName(name), value, tags, 1)
		return
	}
	_ = b.client.Histogram(metricName(name), value, tags, 1)
}

// Flush closes the client, which flushes buffered datagrams. The backend
// drops every later call.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func metricName(name string) string {
	return strings.TrimPrefix(name, "cleanse_")
}

// labelsToTags converts labels into sorted "key:value" tags. Empty values
// become bare keys.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		if v == "" {
			out = append(out, k)
			continue
		}
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
