package rolling

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/config"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/format/csvio"
	"github.com/sempervent/streaming-parquet/internal/format/parquetio"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// Options configures a Roller.
type Options struct {
	Template    Template
	Format      format.Kind
	Compression string
	ZstdLevel   int
	RollBytes   int64
	RollRows    int64
	Schema      tabular.Schema

	// OnRoll, when set, observes the final state of each file as it is
	// completed (threshold rotation or Finalize).
	OnRoll func(State)
}

// State is the roller's contribution to a checkpoint: which file is active and
// how much of it is durable.
type State struct {
	Index     int
	Bytes     int64
	Rows      int64
	Finalized bool
}

// Roller owns the active output file. It opens files from the template,
// rotates when a threshold is crossed, and exposes the durable watermark
// after each Flush.
type Roller struct {
	opt  Options
	comp func(io.Writer) (io.WriteCloser, error) // nil for plain CSV

	index     int
	file      *os.File
	w         format.Writer
	fileRows  int64
	baseBytes int64 // bytes already in the file when resuming an append
}

// NewRoller starts writing at file index startIndex. The first file is
// created fresh on first write.
func NewRoller(opt Options, startIndex int) (*Roller, error) {
	if opt.Compression == "" {
		opt.Compression = config.CompressionNone
	}
	r := &Roller{opt: opt, index: startIndex}
	if opt.Format == format.CSV {
		var err error
		r.comp, err = compressorFor(opt.Compression, opt.ZstdLevel)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ResumeAppend reopens the active output file of an interrupted run and
// positions it at the checkpointed byte offset. Only valid for uncompressed
// CSV; compressed and parquet outputs are finalized at interrupt instead.
func (r *Roller) ResumeAppend(st State) error {
	if r.opt.Format != format.CSV || r.opt.Compression != config.CompressionNone {
		return fmt.Errorf("append resume requires uncompressed csv output")
	}
	path := r.opt.Template.Format(st.Index)
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", path, err)
	}
	// Drop any bytes written after the last durable flush.
	if err := f.Truncate(st.Bytes); err != nil {
		f.Close()
		return fmt.Errorf("truncate %s to %d: %w", path, st.Bytes, err)
	}
	if _, err := f.Seek(st.Bytes, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek %s: %w", path, err)
	}

	w, err := csvio.NewWriter(path, f, r.opt.Schema, nil, f.Sync, true)
	if err != nil {
		f.Close()
		return err
	}
	r.index = st.Index
	r.file = f
	r.w = w
	r.fileRows = st.Rows
	r.baseBytes = st.Bytes
	return nil
}

// WriteBatch appends one batch to the active file, rotating first if the
// batch would cross a threshold. A batch is never split.
func (r *Roller) WriteBatch(b *batch.Batch) error {
	if r.w != nil && r.fileRows > 0 && r.wouldExceed(int64(len(b.Rows))) {
		if err := r.finishFile(); err != nil {
			return err
		}
	}
	if r.w == nil {
		if err := r.open(); err != nil {
			return err
		}
	}
	if err := r.w.WriteBatch(b); err != nil {
		return err
	}
	r.fileRows += int64(len(b.Rows))
	return nil
}

func (r *Roller) wouldExceed(rows int64) bool {
	if r.opt.RollRows > 0 && r.fileRows+rows > r.opt.RollRows {
		return true
	}
	if r.opt.RollBytes > 0 && r.bytes() >= r.opt.RollBytes {
		return true
	}
	return false
}

func (r *Roller) open() error {
	path := r.opt.Template.Format(r.index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &format.EncodeError{Path: path, Err: err}
	}

	var w format.Writer
	switch r.opt.Format {
	case format.Parquet:
		w, err = parquetio.NewWriter(path, f, r.opt.Schema,
			parquetio.Codec(r.opt.Compression, r.opt.ZstdLevel), f.Sync)
	default:
		w, err = csvio.NewWriter(path, f, r.opt.Schema, r.comp, f.Sync, false)
	}
	if err != nil {
		f.Close()
		return err
	}
	r.file = f
	r.w = w
	r.fileRows = 0
	r.baseBytes = 0
	return nil
}

// Flush makes everything written so far durable.
func (r *Roller) Flush() error {
	if r.w == nil {
		return nil
	}
	return r.w.Flush()
}

func (r *Roller) closeActive() error {
	if r.w == nil {
		return nil
	}
	if err := r.w.Close(); err != nil {
		r.file.Close()
		return err
	}
	if err := r.file.Close(); err != nil {
		return &format.EncodeError{Path: r.opt.Template.Format(r.index), Err: err}
	}
	r.w = nil
	r.file = nil
	return nil
}

// finishFile completes the active file and advances to the next index.
func (r *Roller) finishFile() error {
	if r.w == nil {
		return nil
	}
	st := r.State()
	if err := r.closeActive(); err != nil {
		return err
	}
	if r.opt.OnRoll != nil {
		r.opt.OnRoll(st)
	}
	r.index++
	r.fileRows = 0
	r.baseBytes = 0
	return nil
}

// Finalize closes the active file, making it a complete document, and leaves
// the roller positioned at the next file index. Safe to call with no file
// open.
func (r *Roller) Finalize() error {
	return r.finishFile()
}

func (r *Roller) bytes() int64 {
	if r.w == nil {
		return 0
	}
	return r.baseBytes + r.w.BytesWritten()
}

// State reports the active file watermark. Call after Flush so the byte count
// reflects durable data only.
func (r *Roller) State() State {
	return State{
		Index:     r.index,
		Bytes:     r.bytes(),
		Rows:      r.fileRows,
		Finalized: r.w == nil,
	}
}

// Appendable reports whether an interrupted run with this configuration can
// resume by appending to the active file.
func Appendable(kind format.Kind, compression string) bool {
	return kind == format.CSV && compression == config.CompressionNone
}

// compressorFor builds the CSV stream wrapper for the configured codec.
func compressorFor(compression string, zstdLevel int) (func(io.Writer) (io.WriteCloser, error), error) {
	switch compression {
	case "", config.CompressionNone:
		return nil, nil
	case config.CompressionGzip:
		return func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.DefaultCompression)
		}, nil
	case config.CompressionZstd:
		level := zstd.EncoderLevelFromZstd(zstdLevel)
		return func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
		}, nil
	default:
		return nil, fmt.Errorf("compression %q is not supported for csv output", compression)
	}
}
