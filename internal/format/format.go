// Package format is the adapter boundary between file codecs and the rest of
// the pipeline. Each supported format contributes a Reader (decode-to-batch)
// and a Writer (encode-from-batch); everything downstream operates only on
// the common batch/tabular representation.
package format

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sempervent/streaming-parquet/internal/batch"
)

// Kind identifies a file format.
type Kind string

const (
	CSV     Kind = "csv"
	Parquet Kind = "parquet"
)

// parquetMagic is the 4-byte header/footer marker of every parquet file.
var parquetMagic = []byte("PAR1")

// Detect infers the format of a file from its extension, falling back to a
// content sniff of the leading bytes. Files that are neither parquet nor
// plausibly CSV still detect as CSV; the schema probe will surface real
// decode problems with better context.
func Detect(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return CSV, nil
	case ".parquet":
		return Parquet, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("sniff %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 4)
	n, _ := f.Read(head)
	if n == 4 && bytes.Equal(head, parquetMagic) {
		return Parquet, nil
	}
	return CSV, nil
}

// DetectOutput resolves the output format from an explicit setting or the
// output path extension, defaulting to CSV.
func DetectOutput(explicit, path string) Kind {
	switch explicit {
	case "csv":
		return CSV
	case "parquet":
		return Parquet
	}
	if strings.ToLower(filepath.Ext(path)) == ".parquet" {
		return Parquet
	}
	return CSV
}

// Reader streams one input file as unified-schema batches.
//
// ReadBatch returns (nil, io.EOF) at end of input. Row order within the file
// is preserved; each batch is tagged with the file's sequence index and the
// row offset of its first row.
type Reader interface {
	ReadBatch(ctx context.Context) (*batch.Batch, error)
	Close() error
}

// Writer encodes unified-schema batches into the active output file.
//
// Flush is the durability point the checkpoint watermark keys off; Close
// finalizes the file (CSV: flush + compressor trailer, parquet: footer).
type Writer interface {
	WriteBatch(b *batch.Batch) error
	Flush() error
	Close() error
	BytesWritten() int64
}

// ErrSkipFile is returned by decode-error callbacks to abandon the remainder
// of the current input file while letting the run continue.
var ErrSkipFile = fmt.Errorf("skip remainder of file")

// DecodeError reports a malformed row or corrupt block in an input file.
// Offset is the zero-based row offset where decoding failed.
type DecodeError struct {
	File   string
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at row %d: %v", e.File, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an output I/O or serialization failure. It is fatal:
// a half-written output cannot be trusted past the last checkpoint boundary.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
