// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the concatenation pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems (Prometheus Pushgateway, Datadog) live in
//     subpackages; the rest of the codebase depends only on this interface.
package metrics

import "time"

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

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures one pipeline stage execution: latency plus a
// success/failure counter. Typical stages are "plan", "read", "write",
// and "checkpoint".
func RecordStage(stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"stage":  stage,
		"status": status,
	}

	backend.IncCounter("maw_stage_total", 1, lbls)
	backend.ObserveHistogram("maw_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given kind.
//
// Typical kinds mirror the run summary fields, e.g.:
//   - "written"
//   - "decode_errors"
//   - "skipped"
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("maw_rows_total", float64(delta), Labels{
		"kind": kind,
	})
}

// RecordBatches counts batches handed to the writer.
func RecordBatches(delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("maw_batches_total", float64(delta), nil)
}

// RecordBytes counts bytes written to output files (post-compression).
func RecordBytes(delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("maw_output_bytes_total", float64(delta), nil)
}

// RecordRoll counts output file rotations.
func RecordRoll() {
	backend.IncCounter("maw_files_rolled_total", 1, nil)
}
