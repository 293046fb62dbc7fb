package csvio

import (
	"bufio"
	"encoding/csv"
	"io"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// countingWriter tracks bytes pushed to the underlying sink so rolling
// thresholds and the checkpoint watermark see post-compression sizes.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Writer encodes unified-schema batches as CSV.
//
// The header row is written once per file (suppressed when resuming into an
// existing file). Flush pushes buffered rows through the compressor (if any)
// down to the file; Close additionally writes the compressor trailer.
type Writer struct {
	path    string
	count   *countingWriter
	flusher interface{ Flush() error } // compressor, when present
	closer  io.Closer                  // compressor, when present
	buf     *bufio.Writer
	cw      *csv.Writer
	schema  tabular.Schema

	headerWritten bool
	sync          func() error
}

// NewWriter wraps sink (the raw output file) with optional compression.
// compress wraps the byte stream; pass nil for plain CSV. sync is invoked on
// Flush to make bytes durable (typically os.File.Sync).
func NewWriter(path string, sink io.Writer, schema tabular.Schema,
	compress func(io.Writer) (io.WriteCloser, error),
	sync func() error, headerWritten bool) (*Writer, error) {

	count := &countingWriter{w: sink}
	var stream io.Writer = count
	w := &Writer{
		path:          path,
		count:         count,
		schema:        schema,
		headerWritten: headerWritten,
		sync:          sync,
	}

	if compress != nil {
		wc, err := compress(count)
		if err != nil {
			return nil, &format.EncodeError{Path: path, Err: err}
		}
		stream = wc
		w.closer = wc
		if f, ok := wc.(interface{ Flush() error }); ok {
			w.flusher = f
		}
	}

	w.buf = bufio.NewWriterSize(stream, 1<<20)
	w.cw = csv.NewWriter(w.buf)
	return w, nil
}

func (w *Writer) WriteBatch(b *batch.Batch) error {
	if !w.headerWritten {
		names := make([]string, len(w.schema.Fields))
		for i, f := range w.schema.Fields {
			names[i] = f.Name
		}
		if err := w.cw.Write(names); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
		w.headerWritten = true
	}

	rec := make([]string, len(w.schema.Fields))
	for _, row := range b.Rows {
		for i, f := range w.schema.Fields {
			rec[i] = tabular.FormatValue(row[i], f.Kind)
		}
		if err := w.cw.Write(rec); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
	}
	return nil
}

// Flush drains the csv and buffer layers, sync-flushes the compressor, and
// fsyncs the file. After Flush returns, everything written so far is durable
// (for uncompressed CSV, also a valid prefix a resume can append to).
func (w *Writer) Flush() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return &format.EncodeError{Path: w.path, Err: err}
	}
	if err := w.buf.Flush(); err != nil {
		return &format.EncodeError{Path: w.path, Err: err}
	}
	if w.flusher != nil {
		if err := w.flusher.Flush(); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
	}
	if w.sync != nil {
		if err := w.sync(); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
	}
	return nil
}

// Close finalizes the stream. The compressor trailer (gzip/zstd) is written
// here, so only Close produces a complete compressed file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
		if w.sync != nil {
			if err := w.sync(); err != nil {
				return &format.EncodeError{Path: w.path, Err: err}
			}
		}
	}
	return nil
}

func (w *Writer) BytesWritten() int64 { return w.count.n }
