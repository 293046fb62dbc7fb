// Package progress tracks run counters with atomics so readers and the writer
// can update them without coordination, and renders periodic snapshots for
// logging.
package progress

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Tracker accumulates run counters. All methods are safe for concurrent use.
type Tracker struct {
	start time.Time

	totalBytes int64 // input bytes expected, 0 when unknown

	rowsWritten  atomic.Int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	decodeErrors atomic.Int64
	filesDone    atomic.Int64
	filesTotal   int64
}

// NewTracker starts a tracker for a run over filesTotal inputs summing
// totalBytes.
func NewTracker(filesTotal int, totalBytes int64) *Tracker {
	return &Tracker{
		start:      time.Now(),
		totalBytes: totalBytes,
		filesTotal: int64(filesTotal),
	}
}

func (t *Tracker) AddRows(n int64)        { t.rowsWritten.Add(n) }
func (t *Tracker) AddBytesRead(n int64)   { t.bytesRead.Add(n) }
func (t *Tracker) AddBytesOut(n int64)    { t.bytesWritten.Add(n) }
func (t *Tracker) AddDecodeErrors(n int64) { t.decodeErrors.Add(n) }
func (t *Tracker) FileDone()              { t.filesDone.Add(1) }

func (t *Tracker) RowsWritten() int64  { return t.rowsWritten.Load() }
func (t *Tracker) DecodeErrors() int64 { return t.decodeErrors.Load() }

// Event is one progress snapshot.
type Event struct {
	Elapsed      time.Duration
	RowsWritten  int64
	BytesRead    int64
	BytesWritten int64
	DecodeErrors int64
	FilesDone    int64
	FilesTotal   int64
	RowsPerSec   float64
	ETA          time.Duration // zero when input size is unknown
}

// Snapshot captures the current counters and derives throughput and, when the
// input size is known, a remaining-time estimate from bytes consumed.
func (t *Tracker) Snapshot() Event {
	elapsed := time.Since(t.start)
	ev := Event{
		Elapsed:      elapsed,
		RowsWritten:  t.rowsWritten.Load(),
		BytesRead:    t.bytesRead.Load(),
		BytesWritten: t.bytesWritten.Load(),
		DecodeErrors: t.decodeErrors.Load(),
		FilesDone:    t.filesDone.Load(),
		FilesTotal:   t.filesTotal,
	}
	secs := elapsed.Seconds()
	if secs > 0 {
		ev.RowsPerSec = float64(ev.RowsWritten) / secs
	}
	if t.totalBytes > 0 && ev.BytesRead > 0 && ev.BytesRead < t.totalBytes {
		rate := float64(ev.BytesRead) / secs
		if rate > 0 {
			ev.ETA = time.Duration(float64(t.totalBytes-ev.BytesRead)/rate) * time.Second
		}
	}
	return ev
}

// String renders the event for the periodic progress log line.
func (e Event) String() string {
	s := fmt.Sprintf("files %d/%d rows %d out %s read %s (%.0f rows/s)",
		e.FilesDone, e.FilesTotal, e.RowsWritten,
		humanBytes(e.BytesWritten), humanBytes(e.BytesRead), e.RowsPerSec)
	if e.DecodeErrors > 0 {
		s += fmt.Sprintf(" decode-errors %d", e.DecodeErrors)
	}
	if e.ETA > 0 {
		s += fmt.Sprintf(" eta %s", e.ETA.Round(time.Second))
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
