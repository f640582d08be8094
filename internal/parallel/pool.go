// Package parallel provides the concurrency primitives used by the frame
// driver: a bounded worker pool for recording pass command buffers and an
// atomic dirty set for streamed records.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs command-recording tasks on a fixed number of goroutines.
//
// Each worker owns a queue. Tasks are handed out round-robin and an idle
// worker steals from its neighbours, so one slow pass does not leave the
// other workers idle while a wave is in flight.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &WorkerPool{
		queues: make([]chan func(), workers),
		done:   make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.loop(i)
	}
	return p
}

func (p *WorkerPool) loop(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case fn := <-own:
			fn()
			continue
		case <-p.done:
			p.drain(own)
			return
		default:
		}

		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}

		select {
		case fn := <-own:
			fn()
		case <-p.done:
			p.drain(own)
			return
		}
	}
}

func (p *WorkerPool) drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	n := len(p.queues)
	for off := 1; off < n; off++ {
		select {
		case fn := <-p.queues[(id+off)%n]:
			return fn
		default:
		}
	}
	return nil
}

// Run executes every task and waits for all of them. The returned slice has
// one entry per task, holding the task's error (nil on success).
//
// If the pool is closed, tasks run on the calling goroutine in order.
func (p *WorkerPool) Run(tasks []func() error) []error {
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs
	}
	if !p.running.Load() || len(tasks) == 1 {
		for i, task := range tasks {
			errs[i] = task()
		}
		return errs
	}

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		wrapped := func() {
			defer wg.Done()
			errs[i] = task()
		}
		select {
		case p.queues[i%len(p.queues)] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	wg.Wait()
	return errs
}

// ExecuteAll runs work items and waits for completion.
func (p *WorkerPool) ExecuteAll(work []func()) {
	tasks := make([]func() error, len(work))
	for i, fn := range work {
		tasks[i] = func() error {
			fn()
			return nil
		}
	}
	p.Run(tasks)
}

// Close stops the workers after queued work has drained.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return len(p.queues)
}

// IsRunning reports whether the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
