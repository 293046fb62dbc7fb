package parquetio

import (
	"io"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/compress"
	"github.com/segmentio/parquet-go/compress/zstd"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/config"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// Codec maps the configured compression name onto a parquet page codec.
// The zstd level knob collapses onto the nearest encoder speed tier.
func Codec(compression string, zstdLevel int) compress.Codec {
	switch compression {
	case config.CompressionGzip:
		return &parquet.Gzip
	case config.CompressionSnappy:
		return &parquet.Snappy
	case config.CompressionZstd:
		var level zstd.Level
		switch {
		case zstdLevel <= 2:
			level = zstd.SpeedFastest
		case zstdLevel <= 7:
			level = zstd.SpeedDefault
		case zstdLevel <= 15:
			level = zstd.SpeedBetterCompression
		default:
			level = zstd.SpeedBestCompression
		}
		return &zstd.Codec{Level: level}
	default:
		return &parquet.Uncompressed
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// column locates one parquet leaf: which unified row slot feeds it and
// whether nulls are representable.
type column struct {
	src      int
	optional bool
}

// Writer encodes unified-schema batches into one parquet file. Rows buffer in
// the current row group; Flush cuts the group, Close writes the footer. Only a
// Closed file is readable, so interrupted runs finalize before checkpointing.
type Writer struct {
	path string

	count *countingWriter
	pw    *parquet.Writer
	cols  []column // in parquet leaf-column order
	sync  func() error

	rowBuf []parquet.Row
}

// NewWriter wraps sink (the raw output file) with a parquet encoder. sync is
// invoked after Flush to make cut row groups durable.
func NewWriter(path string, sink io.Writer, schema tabular.Schema,
	codec compress.Codec, sync func() error) (*Writer, error) {

	count := &countingWriter{w: sink}
	ps := toParquetSchema("doc", schema)
	pw := parquet.NewWriter(count, ps, parquet.Compression(codec))

	// parquet-go assigns leaf column indexes in the group's field order,
	// which is alphabetical, not the unified column order.
	cols := make([]column, 0, len(schema.Fields))
	for _, pf := range ps.Fields() {
		cols = append(cols, column{
			src:      schema.FieldIndex(pf.Name()),
			optional: pf.Optional(),
		})
	}

	return &Writer{
		path:  path,
		count: count,
		pw:    pw,
		cols:  cols,
		sync:  sync,
	}, nil
}

func (w *Writer) WriteBatch(b *batch.Batch) error {
	w.rowBuf = w.rowBuf[:0]
	for _, row := range b.Rows {
		pr := make(parquet.Row, len(w.cols))
		for ci, c := range w.cols {
			pr[ci] = encodeLeaf(row[c.src], c.optional, ci)
		}
		w.rowBuf = append(w.rowBuf, pr)
	}
	if _, err := w.pw.WriteRows(w.rowBuf); err != nil {
		return &format.EncodeError{Path: w.path, Err: err}
	}
	return nil
}

// encodeLeaf builds one parquet value carrying its definition level and leaf
// column index. Values arrive already cast to the unified kind; timestamps
// are stored as microseconds and anything unexpected is stringified, since
// Null-kind columns are declared as optional strings.
func encodeLeaf(v any, optional bool, col int) parquet.Value {
	if v == nil {
		return parquet.ValueOf(nil).Level(0, 0, col)
	}
	var pv parquet.Value
	switch x := v.(type) {
	case bool:
		pv = parquet.BooleanValue(x)
	case int64:
		pv = parquet.Int64Value(x)
	case float64:
		pv = parquet.DoubleValue(x)
	case time.Time:
		pv = parquet.Int64Value(x.UTC().UnixMicro())
	case string:
		pv = parquet.ByteArrayValue([]byte(x))
	default:
		pv = parquet.ByteArrayValue([]byte(tabular.FormatValue(v, tabular.String)))
	}
	def := 0
	if optional {
		def = 1
	}
	return pv.Level(0, def, col)
}

// Flush ends the current row group and fsyncs the file.
func (w *Writer) Flush() error {
	if err := w.pw.Flush(); err != nil {
		return &format.EncodeError{Path: w.path, Err: err}
	}
	if w.sync != nil {
		if err := w.sync(); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
	}
	return nil
}

// Close writes the footer and makes the file a complete parquet document.
func (w *Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return &format.EncodeError{Path: w.path, Err: err}
	}
	if w.sync != nil {
		if err := w.sync(); err != nil {
			return &format.EncodeError{Path: w.path, Err: err}
		}
	}
	return nil
}

func (w *Writer) BytesWritten() int64 { return w.count.n }
