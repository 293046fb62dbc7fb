// Package batch defines the pooled record batch handed between pipeline
// stages. Batches are allocation-conscious in the same way the row pool used
// by the loaders is: a reader owns the batch until it is pushed onto its
// queue, the sequencer owns it until written, and the sequencer **must** call
// Free() once the rows are durable.
package batch

import "sync"

// Batch is a bounded chunk of rows already cast to the unified schema.
//
// Seq is the source file's sequence index in the concatenation order, Offset
// the zero-based row offset of the first row within that file, and End the
// offset just past the last consumed row (End-Offset can exceed len(Rows)
// when rows were skipped under a decode policy). Bytes is an estimate of the
// decoded payload size, used for progress accounting.
type Batch struct {
	Seq    int
	Offset int64
	End    int64
	Rows   [][]any
	Bytes  int64
}

var pool sync.Pool

// Get returns a pooled batch with Rows sliced to zero length and capacity for
// at least rowCap rows.
func Get(rowCap int) *Batch {
	if v := pool.Get(); v != nil {
		b := v.(*Batch)
		if cap(b.Rows) < rowCap {
			b.Rows = make([][]any, 0, rowCap)
		}
		b.Rows = b.Rows[:0]
		b.Seq, b.Offset, b.End, b.Bytes = 0, 0, 0, 0
		return b
	}
	return &Batch{Rows: make([][]any, 0, rowCap)}
}

// Free returns the batch to the pool. The caller must not touch b afterwards.
func (b *Batch) Free() {
	for i := range b.Rows {
		b.Rows[i] = nil
	}
	pool.Put(b)
}

// AppendRow appends a row and grows the byte estimate.
func (b *Batch) AppendRow(row []any, approxBytes int64) {
	b.Rows = append(b.Rows, row)
	b.Bytes += approxBytes
}
