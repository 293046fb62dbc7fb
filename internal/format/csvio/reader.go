package csvio

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

const utf8BOM = "\uFEFF"

// ErrSkipFile is returned by an error callback to abandon the rest of the
// current input file while letting the run continue.
var ErrSkipFile = format.ErrSkipFile

// Reader streams one CSV file into unified-schema batches.
type Reader struct {
	f       *os.File
	dec     io.Closer // decompressor, when the input is gzip or zstd
	cr      *csv.Reader
	path    string
	seq     int
	native  tabular.Schema
	mapping tabular.Mapping
	width   int
	na      map[string]struct{}

	batchRows int
	offset    int64 // next data-row offset within the file

	// onErr receives recoverable row errors; returning a non-nil error aborts
	// the file (ErrSkipFile abandons it quietly).
	onErr func(offset int64, err error) error
}

// NewReader opens path and positions it at data row skipRows. The mapping and
// unified width come from the plan; the native schema is the one probed at
// plan time.
func NewReader(path string, seq int, native tabular.Schema, mapping tabular.Mapping,
	width, batchRows int, skipRows int64, opt Options,
	onErr func(offset int64, err error) error) (*Reader, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	adviseSequential(f)

	in, dec, err := decompressStream(f, path)
	if err != nil {
		f.Close()
		return nil, &format.DecodeError{File: path, Offset: 0, Err: err}
	}

	cr, err := newCSVReader(in, opt)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{
		f:         f,
		dec:       dec,
		cr:        cr,
		path:      path,
		seq:       seq,
		native:    native,
		mapping:   mapping,
		width:     width,
		na:        opt.naSet(),
		batchRows: batchRows,
		onErr:     onErr,
	}

	if !opt.NoHeader {
		if _, err := cr.Read(); err != nil && err != io.EOF {
			f.Close()
			return nil, &format.DecodeError{File: path, Offset: 0, Err: err}
		}
	}
	for r.offset < skipRows {
		if _, err := cr.Read(); err != nil {
			if err == io.EOF {
				break
			}
			// Rows before the watermark were decoded successfully on the
			// previous run; a failure here means the file changed.
			f.Close()
			return nil, &format.DecodeError{File: path, Offset: r.offset, Err: err}
		}
		r.offset++
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

		rec, err := r.cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErr := &format.DecodeError{File: r.path, Offset: r.offset, Err: err}
			r.offset++
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

		row := make([]any, r.width)
		var size int64
		native := r.nativeRow(rec, &size)
		r.mapping.Apply(native, row)
		b.AppendRow(row, size+16)
		r.offset++
	}

	b.End = r.offset
	if len(b.Rows) == 0 {
		b.Free()
		return nil, io.EOF
	}
	return b, nil
}

// nativeRow parses the raw record into native-kind values, treating NA values
// as null.
func (r *Reader) nativeRow(rec []string, size *int64) []any {
	out := make([]any, len(r.native.Fields))
	for i := range r.native.Fields {
		if i >= len(rec) {
			out[i] = nil
			continue
		}
		v := rec[i]
		*size += int64(len(v))
		if hasEdgeSpace(v) {
			v = strings.TrimSpace(v)
		}
		if _, isNA := r.na[v]; isNA {
			out[i] = nil
			continue
		}
		out[i] = parseValue(v, r.native.Fields[i].Kind)
	}
	return out
}

func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	return r.f.Close()
}

// newCSVReader wraps f with the configured text decoding and CSV settings.
func newCSVReader(f io.Reader, opt Options) (*csv.Reader, error) {
	var in io.Reader = bufio.NewReaderSize(f, 1<<20)
	switch strings.ToLower(opt.Encoding) {
	case "", "utf8", "utf-8":
	case "latin1", "iso-8859-1":
		in = transform.NewReader(in, charmap.ISO8859_1.NewDecoder())
	}

	cr := csv.NewReader(in)
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1 // tolerate ragged rows; missing cells become null
	return cr, nil
}

// hasEdgeSpace reports whether s starts or ends with ASCII whitespace, so the
// common no-trim case avoids an allocation.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[0] == '\t' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t'
}
