// Package pipeline executes a frozen plan: a bounded pool of readers decodes
// inputs in parallel while a single writer drains their batches strictly in
// input order, rolling output files and checkpointing as it goes.
//
// Ordering is structural, not sorted: each input owns a bounded channel and
// the writer only ever consumes the head input's channel, so no reorder
// buffer exists to grow without bound.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/checkpoint"
	"github.com/sempervent/streaming-parquet/internal/config"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/format/csvio"
	"github.com/sempervent/streaming-parquet/internal/format/parquetio"
	"github.com/sempervent/streaming-parquet/internal/metrics"
	"github.com/sempervent/streaming-parquet/internal/plan"
	"github.com/sempervent/streaming-parquet/internal/progress"
	"github.com/sempervent/streaming-parquet/internal/rolling"
)

// ErrInterrupted reports a run stopped by cancellation after saving a
// resumable checkpoint.
var ErrInterrupted = errors.New("run interrupted; checkpoint saved")

// ErrCancelled reports a run stopped by cancellation with no state file
// configured; the partial output cannot be resumed.
var ErrCancelled = errors.New("run interrupted; no checkpoint configured")

// batchQueueDepth bounds how many batches one in-flight input may buffer
// ahead of the writer.
const batchQueueDepth = 4

// saveInterval is the checkpoint cadence during steady writing.
const saveInterval = 5 * time.Second

// Summary reports what a completed (or interrupted) run accomplished.
type Summary struct {
	RowsWritten  int64
	DecodeErrors int64
	FilesRead    int
	FilesWritten int
	BytesWritten int64
}

func (s Summary) String() string {
	return fmt.Sprintf("wrote %d rows from %d inputs into %d files (%d bytes, %d decode errors)",
		s.RowsWritten, s.FilesRead, s.FilesWritten, s.BytesWritten, s.DecodeErrors)
}

// Run executes the plan. cp, when non-nil, is a validated checkpoint to
// resume from; store, when non-nil, receives periodic and shutdown saves.
// On cancellation Run saves a checkpoint and returns ErrInterrupted.
func Run(ctx context.Context, cfg config.Config, p *plan.Plan,
	cp *checkpoint.Checkpoint, store *checkpoint.Store) (*Summary, error) {

	tracker := progress.NewTracker(len(p.Inputs), p.TotalBytes())
	width := len(p.Unified.Fields)

	startSeq := 0
	var startRows int64
	startIndex := 0
	if cp != nil {
		startSeq = cp.Seq
		startRows = cp.RowsDone
		startIndex = cp.OutIndex
	}

	window := 2 * cfg.Concurrency
	if window < 4 {
		window = 4
	}
	g8 := newGate(startSeq, window)

	w := &writer{
		cfg:          cfg,
		plan:         p,
		store:        store,
		tracker:      tracker,
		gate:         g8,
		appendable:   rolling.Appendable(p.OutFormat, cfg.Compression),
		seq:          startSeq,
		rows:         startRows,
		boundarySeq:  startSeq,
		boundaryRows: startRows,
	}

	roller, err := rolling.NewRoller(rolling.Options{
		Template:    rolling.ParseTemplate(cfg.Output),
		Format:      p.OutFormat,
		Compression: cfg.Compression,
		ZstdLevel:   cfg.ZstdLevel,
		RollBytes:   cfg.RollBytes,
		RollRows:    cfg.RollRows,
		Schema:      p.Unified,
		OnRoll:      w.fileRolled,
	}, startIndex)
	if err != nil {
		return nil, err
	}
	w.roller = roller

	if cp != nil && !cp.OutFinalized {
		if err := roller.ResumeAppend(rolling.State{
			Index: cp.OutIndex, Bytes: cp.OutBytes, Rows: cp.OutRows,
		}); err != nil {
			return nil, fmt.Errorf("resume output: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chans := make([]chan *batch.Batch, len(p.Inputs))
	for i := range chans {
		chans[i] = make(chan *batch.Batch, batchQueueDepth)
		if i < startSeq {
			close(chans[i]) // already fully consumed by the interrupted run
		}
	}
	w.chans = chans

	onErr := decodeHandler(cfg.DecodePolicy, tracker)
	csvOpt := csvio.Options{
		Delimiter: cfg.Delimiter,
		NoHeader:  cfg.NoHeader,
		Encoding:  cfg.Encoding,
		NAValues:  cfg.NAValues,
	}

	g, gctx := errgroup.WithContext(runCtx)

	// The gate must observe the group context, not runCtx: a writer failure
	// cancels only gctx, and readers parked in the admission window have to
	// wake for readers.Wait to return.
	go g8.wake(gctx)

	// Reader pool. Workers launch in input order; the admission gate keeps
	// them within the window of the writer's head input.
	g.Go(func() error {
		readers, rctx := errgroup.WithContext(gctx)
		readers.SetLimit(cfg.Concurrency)
		for i := startSeq; i < len(p.Inputs); i++ {
			seq := i
			skip := int64(0)
			if seq == startSeq {
				skip = startRows
			}
			readers.Go(func() error {
				return readInput(rctx, g8, p, seq, skip, width, cfg.BatchRows, csvOpt, onErr, chans[seq])
			})
		}
		return readers.Wait()
	})

	// Progress heartbeat.
	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()
	go func() {
		for {
			select {
			case <-heartbeat.C:
				log.Printf("progress: %s", tracker.Snapshot())
			case <-runCtx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		return w.drain(gctx)
	})

	err = g.Wait()

	if err != nil {
		// Cancellation is the graceful-shutdown path; everything else is a
		// hard failure reported as-is.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			if serr := w.saveInterrupt(); serr != nil {
				return w.summary(), serr
			}
			if store == nil {
				return w.summary(), ErrCancelled
			}
			return w.summary(), ErrInterrupted
		}
		return w.summary(), err
	}

	if err := roller.Finalize(); err != nil {
		return w.summary(), err
	}
	if store != nil {
		if err := store.Clear(); err != nil {
			log.Printf("warning: remove state file: %v", err)
		}
	}
	return w.summary(), nil
}

// readInput decodes one input file into its channel. The channel is closed
// when the file is exhausted or abandoned under skip-file policy.
func readInput(ctx context.Context, g8 *gate, p *plan.Plan, seq int, skip int64,
	width, batchRows int, csvOpt csvio.Options,
	onErr func(int64, error) error, out chan<- *batch.Batch) error {

	defer close(out)

	if err := g8.wait(ctx, seq); err != nil {
		return err
	}

	in := p.Inputs[seq]
	var (
		r   format.Reader
		err error
	)
	switch in.Format {
	case format.Parquet:
		r, err = parquetio.NewReader(in.Path, seq, in.Schema, p.Mappings[seq],
			width, batchRows, skip, onErr)
	default:
		r, err = csvio.NewReader(in.Path, seq, in.Schema, p.Mappings[seq],
			width, batchRows, skip, csvOpt, onErr)
	}
	if err != nil {
		if errors.Is(err, format.ErrSkipFile) {
			log.Printf("warning: skipping input %s", in.Path)
			return nil
		}
		return err
	}
	defer r.Close()

	for {
		b, err := r.ReadBatch(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, format.ErrSkipFile) {
				log.Printf("warning: skipping rest of input %s", in.Path)
				return nil
			}
			return err
		}
		select {
		case out <- b:
		case <-ctx.Done():
			b.Free()
			return ctx.Err()
		}
	}
}

// decodeHandler builds the reader error callback for the configured policy.
// A nil handler means abort: the reader fails the run on the first bad row.
func decodeHandler(policy string, tracker *progress.Tracker) func(int64, error) error {
	switch policy {
	case config.DecodeSkipRow:
		return func(offset int64, err error) error {
			log.Printf("warning: %v (row skipped)", err)
			tracker.AddDecodeErrors(1)
			metrics.RecordRows("decode_errors", 1)
			return nil
		}
	case config.DecodeSkipFile:
		return func(offset int64, err error) error {
			log.Printf("warning: %v (file abandoned)", err)
			tracker.AddDecodeErrors(1)
			metrics.RecordRows("decode_errors", 1)
			return format.ErrSkipFile
		}
	default:
		return nil
	}
}

// writer is the single ordered consumer. It owns the roller and the
// checkpoint watermark.
type writer struct {
	cfg        config.Config
	plan       *plan.Plan
	roller     *rolling.Roller
	store      *checkpoint.Store
	tracker    *progress.Tracker
	chans      []chan *batch.Batch
	gate       *gate
	appendable bool

	seq  int   // input currently being written
	rows int64 // physical rows of seq consumed and written

	// Watermark at the last completed output file. For outputs that cannot
	// be appended to after a crash, periodic checkpoints record this boundary
	// instead of the live position, so a hard crash can still resume by
	// recreating only the torn active file.
	boundarySeq  int
	boundaryRows int64

	rolled   int
	outBytes int64
	lastSave time.Time
}

// fileRolled observes each completed output file.
func (w *writer) fileRolled(st rolling.State) {
	w.rolled++
	w.outBytes += st.Bytes
	w.boundarySeq = w.seq
	w.boundaryRows = w.rows
	w.tracker.AddBytesOut(st.Bytes)
	metrics.RecordRoll()
	metrics.RecordBytes(st.Bytes)
}

// drain consumes every input channel in sequence order.
func (w *writer) drain(ctx context.Context) error {
	w.lastSave = time.Now()
	for ; w.seq < len(w.chans); w.seq++ {
		ch := w.chans[w.seq]
	input:
		for {
			select {
			case b, ok := <-ch:
				if !ok {
					break input
				}
				if err := w.writeBatch(b); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		w.gate.advance()
		w.tracker.FileDone()
		w.rows = 0
	}
	return nil
}

func (w *writer) writeBatch(b *batch.Batch) error {
	if err := w.roller.WriteBatch(b); err != nil {
		return err
	}
	rows := int64(len(b.Rows))
	w.rows = b.End
	w.tracker.AddRows(rows)
	w.tracker.AddBytesRead(b.Bytes)
	metrics.RecordBatches(1)
	metrics.RecordRows("written", rows)
	b.Free()

	if w.store != nil && time.Since(w.lastSave) >= saveInterval {
		if err := w.save(); err != nil {
			return err
		}
	}
	return nil
}

// save flushes the output and persists the watermark.
func (w *writer) save() error {
	start := time.Now()
	err := w.doSave()
	metrics.RecordStage("checkpoint", err, time.Since(start))
	return err
}

func (w *writer) doSave() error {
	if err := w.roller.Flush(); err != nil {
		return err
	}
	st := w.roller.State()
	cp := &checkpoint.Checkpoint{Fingerprint: w.plan.Fingerprint}
	if w.appendable || st.Finalized {
		cp.Seq = w.seq
		cp.RowsDone = w.rows
		cp.OutIndex = st.Index
		cp.OutBytes = st.Bytes
		cp.OutRows = st.Rows
		cp.OutFinalized = st.Finalized
	} else {
		// The active file is not crash-safe (compressed trailer or parquet
		// footer missing), so record the last file boundary; a resume
		// recreates the active file from there.
		cp.Seq = w.boundarySeq
		cp.RowsDone = w.boundaryRows
		cp.OutIndex = st.Index
		cp.OutFinalized = true
	}

	// The save itself is atomic and idempotent, so a transient failure
	// (NFS hiccup, EINTR) is worth a couple of retries.
	var err error
	for attempt, backoff := 0, 100*time.Millisecond; attempt < 3; attempt++ {
		if err = w.store.Save(cp); err == nil {
			w.lastSave = time.Now()
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("save checkpoint: %w", err)
}

// saveInterrupt records the shutdown watermark. Uncompressed CSV keeps the
// active file open-ended for append resume; compressed and parquet outputs
// are finalized so every file on disk is a complete document.
func (w *writer) saveInterrupt() error {
	if !w.appendable {
		if err := w.roller.Finalize(); err != nil {
			return err
		}
	}
	if w.store == nil {
		return w.roller.Flush()
	}
	return w.save()
}

func (w *writer) summary() *Summary {
	sum := &Summary{
		RowsWritten:  w.tracker.RowsWritten(),
		DecodeErrors: w.tracker.DecodeErrors(),
		FilesRead:    len(w.plan.Inputs),
		FilesWritten: w.rolled,
		BytesWritten: w.outBytes,
	}
	if st := w.roller.State(); !st.Finalized {
		sum.FilesWritten++
		sum.BytesWritten += st.Bytes
	}
	return sum
}
