package flush

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingForcer struct {
	calls atomic.Int64
	err   error
}

func (f *countingForcer) Force() error {
	f.calls.Add(1)
	return f.err
}

func TestWorker_CallsForceOnTick(t *testing.T) {
	forcer := &countingForcer{}
	w := New(5*time.Millisecond, forcer, nil)
	w.Start()
	time.Sleep(60 * time.Millisecond)
	w.Stop()

	if forcer.calls.Load() < 2 {
		t.Fatalf("expected at least 2 Force calls, got %d", forcer.calls.Load())
	}
}

func TestWorker_StopIsClean(t *testing.T) {
	forcer := &countingForcer{}
	w := New(5*time.Millisecond, forcer, nil)
	w.Start()
	w.Stop()

	after := forcer.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if forcer.calls.Load() != after {
		t.Fatalf("expected no further Force calls after Stop, before=%d after=%d", after, forcer.calls.Load())
	}
}

func TestWorker_ReportsErrors(t *testing.T) {
	forcer := &countingForcer{err: errors.New("disk full")}
	var gotErr error
	errCh := make(chan struct{}, 1)
	w := New(5*time.Millisecond, forcer, func(err error) {
		gotErr = err
		select {
		case errCh <- struct{}{}:
		default:
		}
	})
	w.Start()
	<-errCh
	w.Stop()

	if gotErr == nil {
		t.Fatalf("expected onError to be invoked")
	}
}
