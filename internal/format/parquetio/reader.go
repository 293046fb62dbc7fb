package parquetio

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// ProbeSchema reads the parquet footer and returns the native schema plus the
// exact row count. No row data is decoded.
func ProbeSchema(path string) (tabular.Schema, int64, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return tabular.Schema{}, 0, err
	}
	defer f.Close()

	s, err := fromParquetSchema(pf.Schema())
	if err != nil {
		return tabular.Schema{}, 0, &format.DecodeError{File: path, Offset: 0, Err: err}
	}
	return s, pf.NumRows(), nil
}

func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, nil, &format.DecodeError{File: path, Offset: 0, Err: err}
	}
	return f, pf, nil
}

// Reader streams one parquet file into unified-schema batches, one row group
// at a time so memory stays bounded by the file's row-group size.
type Reader struct {
	f       *os.File
	pf      *parquet.File
	path    string
	seq     int
	native  tabular.Schema
	mapping tabular.Mapping
	width   int

	batchRows int
	group     int          // next row group to open
	rows      parquet.Rows // open row group cursor, nil between groups
	groupEnd  int64        // file row offset just past the open group
	rowBuf    []parquet.Row
	offset    int64 // next row offset within the file

	ts    []func(int64) time.Time // per-column timestamp decode, nil otherwise
	onErr func(offset int64, err error) error
}

// timestampDecoders builds a per-column converter honoring the unit each
// timestamp column declares in the file. Columns without unit metadata
// default to microseconds.
func timestampDecoders(s *parquet.Schema, native tabular.Schema) []func(int64) time.Time {
	dec := make([]func(int64) time.Time, len(native.Fields))
	for i, f := range s.Fields() {
		if i >= len(dec) || native.Fields[i].Kind != tabular.Timestamp {
			continue
		}
		dec[i] = time.UnixMicro
		if lt := f.Type().LogicalType(); lt != nil && lt.Timestamp != nil {
			unit := lt.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				dec[i] = time.UnixMilli
			case unit.Nanos != nil:
				dec[i] = func(n int64) time.Time { return time.Unix(0, n) }
			}
		}
	}
	return dec
}

// NewReader opens path positioned at row skipRows. Whole row groups before
// the watermark are skipped via footer metadata without decoding.
func NewReader(path string, seq int, native tabular.Schema, mapping tabular.Mapping,
	width, batchRows int, skipRows int64,
	onErr func(offset int64, err error) error) (*Reader, error) {

	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		f:         f,
		pf:        pf,
		path:      path,
		seq:       seq,
		native:    native,
		mapping:   mapping,
		width:     width,
		batchRows: batchRows,
		rowBuf:    make([]parquet.Row, batchRows),
		ts:        timestampDecoders(pf.Schema(), native),
		onErr:     onErr,
	}

	remaining := skipRows
	groups := pf.RowGroups()
	for r.group < len(groups) && remaining >= groups[r.group].NumRows() {
		remaining -= groups[r.group].NumRows()
		r.offset += groups[r.group].NumRows()
		r.group++
	}
	if remaining > 0 && r.group < len(groups) {
		r.rows = groups[r.group].Rows()
		r.groupEnd = r.offset + groups[r.group].NumRows()
		r.group++
		if err := r.rows.SeekToRow(remaining); err != nil {
			r.Close()
			return nil, &format.DecodeError{File: path, Offset: r.offset, Err: err}
		}
		r.offset += remaining
	}
	return r, nil
}

// ReadBatch decodes up to the batch-row budget. Returns (nil, io.EOF) at end
// of file.
func (r *Reader) ReadBatch(ctx context.Context) (*batch.Batch, error) {
	b := batch.Get(r.batchRows)
	b.Seq = r.seq
	b.Offset = r.offset

	for len(b.Rows) < r.batchRows {
		select {
		case <-ctx.Done():
			b.Free()
			return nil, ctx.Err()
		default:
		}

		if r.rows == nil {
			if r.group >= len(r.pf.RowGroups()) {
				break
			}
			rg := r.pf.RowGroups()[r.group]
			r.rows = rg.Rows()
			r.groupEnd = r.offset + rg.NumRows()
			r.group++
		}

		want := r.batchRows - len(b.Rows)
		n, err := r.rows.ReadRows(r.rowBuf[:want])
		for i := 0; i < n; i++ {
			row := make([]any, r.width)
			var size int64
			native := r.nativeRow(r.rowBuf[i], &size)
			r.mapping.Apply(native, row)
			b.AppendRow(row, size+16)
			r.offset++
		}
		if err == io.EOF {
			r.rows.Close()
			r.rows = nil
			continue
		}
		if err != nil {
			// A corrupt page poisons the rest of the row group. Report it and,
			// if the policy says continue, move on to the next group.
			rowErr := &format.DecodeError{File: r.path, Offset: r.offset, Err: err}
			r.rows.Close()
			r.rows = nil
			r.offset = r.groupEnd
			if r.onErr != nil {
				if herr := r.onErr(rowErr.Offset, rowErr); herr != nil {
					b.Free()
					return nil, herr
				}
				continue
			}
			b.Free()
			return nil, rowErr
		}
	}

	b.End = r.offset
	if len(b.Rows) == 0 {
		b.Free()
		return nil, io.EOF
	}
	return b, nil
}

// nativeRow converts one parquet row into native-kind values. Leaf column
// indexes follow the flat schema's field order.
func (r *Reader) nativeRow(row parquet.Row, size *int64) []any {
	out := make([]any, len(r.native.Fields))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(out) {
			continue
		}
		if v.IsNull() {
			continue
		}
		switch r.native.Fields[col].Kind {
		case tabular.Bool:
			out[col] = v.Boolean()
			*size += 1
		case tabular.Int64:
			out[col] = v.Int64()
			*size += 8
		case tabular.Float64:
			out[col] = v.Double()
			*size += 8
		case tabular.Timestamp:
			out[col] = r.ts[col](v.Int64()).UTC()
			*size += 8
		default:
			s := v.String()
			out[col] = s
			*size += int64(len(s))
		}
	}
	return out
}

func (r *Reader) Close() error {
	if r.rows != nil {
		r.rows.Close()
		r.rows = nil
	}
	return r.f.Close()
}
