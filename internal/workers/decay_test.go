package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDecayEngine struct {
	calls int32
	delay time.Duration
}

func (f *fakeDecayEngine) ApplyDecay(ctx context.Context, contextID string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return nil
}

func TestDecayWorker_AppliesDecayForSubmittedContext(t *testing.T) {
	engine := &fakeDecayEngine{}
	w := NewDecayWorker(engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Submit("ctx1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&engine.calls) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("decay was never applied")
}

func TestDecayWorker_DuplicateSubmitWhileQueuedIsNoOp(t *testing.T) {
	engine := &fakeDecayEngine{delay: 50 * time.Millisecond}
	w := NewDecayWorker(engine, nil)

	w.Submit("ctx1")
	w.Submit("ctx1") // should be swallowed: already pending

	w.mu.Lock()
	pendingCount := len(w.pending)
	w.mu.Unlock()
	if pendingCount != 1 {
		t.Fatalf("expected exactly one pending context, got %d", pendingCount)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&engine.calls) >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&engine.calls); got != 1 {
		t.Fatalf("expected exactly one ApplyDecay call, got %d", got)
	}
}
