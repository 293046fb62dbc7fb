// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Batch jobs have no stable scrape endpoint, so collected metrics are pushed
// to a Pushgateway instance at flush time instead. All Prometheus-specific
// dependencies stay in this package; the rest of the project depends only on
// metrics.Backend.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/sempervent/streaming-parquet/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stageCounter  *prometheus.CounterVec // "maw_stage_total"
	stageDuration *prometheus.SummaryVec // "maw_stage_duration_seconds"

	rowCounter   *prometheus.CounterVec // "maw_rows_total"
	batchCounter prometheus.Counter     // "maw_batches_total"
	byteCounter  prometheus.Counter     // "maw_output_bytes_total"
	rollCounter  prometheus.Counter     // "maw_files_rolled_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" grouping key; gatewayURL is the base URL of
// the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "maw"
	}

	reg := prometheus.NewRegistry()

	stageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maw_stage_total",
			Help: "Total pipeline stage executions, partitioned by stage and status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "maw_stage_duration_seconds",
			Help:       "Duration of pipeline stages in seconds, partitioned by stage and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stage", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maw_rows_total",
			Help: "Row-level counts per kind (written, decode_errors, skipped).",
		},
		[]string{"kind"},
	)
	batchCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maw_batches_total",
			Help: "Total batches handed to the ordered writer.",
		},
	)
	byteCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maw_output_bytes_total",
			Help: "Bytes written to output files, post-compression.",
		},
	)
	rollCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maw_files_rolled_total",
			Help: "Output file rotations triggered by roll thresholds.",
		},
	)

	for _, c := range []prometheus.Collector{
		stageCounter, stageDuration, rowCounter, batchCounter, byteCounter, rollCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stageCounter:  stageCounter,
		stageDuration: stageDuration,
		rowCounter:    rowCounter,
		batchCounter:  batchCounter,
		byteCounter:   byteCounter,
		rollCounter:   rollCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "maw_stage_total":
		b.stageCounter.WithLabelValues(labels["stage"], labels["status"]).Add(delta)
	case "maw_rows_total":
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)
	case "maw_batches_total":
		b.batchCounter.Add(delta)
	case "maw_output_bytes_total":
		b.byteCounter.Add(delta)
	case "maw_files_rolled_total":
		b.rollCounter.Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "maw_stage_duration_seconds" || b.stageDuration == nil {
		return
	}
	b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
