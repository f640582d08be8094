package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero uses GOMAXPROCS", 0, runtime.GOMAXPROCS(0)},
		{"negative uses GOMAXPROCS", -5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()
			if pool.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", pool.Workers(), tt.want)
			}
			if !pool.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestWorkerPool_RunCollectsErrors(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	errOdd := errors.New("odd")
	tasks := make([]func() error, 20)
	for i := range tasks {
		tasks[i] = func() error {
			if i%2 == 1 {
				return errOdd
			}
			return nil
		}
	}

	errs := pool.Run(tasks)
	if len(errs) != len(tasks) {
		t.Fatalf("len(errs) = %d, want %d", len(errs), len(tasks))
	}
	for i, err := range errs {
		want := i%2 == 1
		if (err != nil) != want {
			t.Errorf("errs[%d] = %v, want error=%v", i, err, want)
		}
	}
}

func TestWorkerPool_RunEmpty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()
	if errs := pool.Run(nil); len(errs) != 0 {
		t.Errorf("Run(nil) = %v, want empty", errs)
	}
}

func TestWorkerPool_RunIsConcurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var inFlight, peak atomic.Int32
	tasks := make([]func() error, 8)
	for i := range tasks {
		tasks[i] = func() error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}
	}
	pool.Run(tasks)
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want >= 2", peak.Load())
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
}

func TestWorkerPool_RunAfterCloseRunsInline(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var order []int
	tasks := []func() error{
		func() error { order = append(order, 0); return nil },
		func() error { order = append(order, 1); return nil },
	}
	pool.Run(tasks)
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("order = %v, want [0 1]", order)
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	before := runtime.NumGoroutine()
	for range 10 {
		pool := NewWorkerPool(4)
		pool.ExecuteAll([]func(){func() {}, func() {}})
		pool.Close()
	}
	time.Sleep(20 * time.Millisecond)
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("goroutines: before=%d after=%d, possible leak", before, after)
	}
}
