package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestGateAdmitsWithinWindow(t *testing.T) {
	t.Parallel()

	g := newGate(3, 2)
	ctx := context.Background()
	if err := g.wait(ctx, 3); err != nil {
		t.Fatalf("head input must be admitted: %v", err)
	}
	if err := g.wait(ctx, 4); err != nil {
		t.Fatalf("input inside the window must be admitted: %v", err)
	}
}

func TestGateWaitReturnsOnCancel(t *testing.T) {
	t.Parallel()

	g := newGate(0, 2)
	ctx, cancel := context.WithCancel(context.Background())
	go g.wake(ctx)

	done := make(chan error, 1)
	go func() { done <- g.wait(ctx, 5) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("wait must report the cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait still blocked after cancellation")
	}
}

func TestGateAdvanceUnblocksNext(t *testing.T) {
	t.Parallel()

	g := newGate(0, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- g.wait(ctx, 1) }()

	select {
	case <-done:
		t.Fatal("seq 1 admitted before the head finished")
	case <-time.After(50 * time.Millisecond):
	}

	g.advance()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait after advance: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("advance did not admit the next input")
	}
}
