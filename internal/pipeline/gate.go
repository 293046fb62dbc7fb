package pipeline

import (
	"context"
	"sync"
)

// gate is the admission window for the reader pool. A reader may start input
// seq only once seq falls within window slots of the writer's head, which
// bounds how many in-flight inputs can buffer batches ahead of the writer.
// The head input is always admitted, so the writer can always make progress.
type gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	head   int
	window int
}

func newGate(head, window int) *gate {
	g := &gate{head: head, window: window}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// wait blocks until seq is admitted or ctx is cancelled. The caller must
// arrange for wake(ctx) to run so cancellation interrupts the wait.
func (g *gate) wait(ctx context.Context, seq int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for seq >= g.head+g.window {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.cond.Wait()
	}
	return ctx.Err()
}

// advance moves the head past a fully written input.
func (g *gate) advance() {
	g.mu.Lock()
	g.head++
	g.mu.Unlock()
	g.cond.Broadcast()
}

// wake broadcasts when ctx is cancelled so blocked waiters can observe it.
func (g *gate) wake(ctx context.Context) {
	<-ctx.Done()
	g.cond.Broadcast()
}
