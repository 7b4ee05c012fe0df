// Package parallel provides the execution substrates the reconstruction
// engine runs its angle tasks on.
package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when work is submitted to a closed executor.
	ErrClosed = errors.New("parallel: executor closed")

	// ErrTaskPanic marks a task that panicked instead of returning.
	ErrTaskPanic = errors.New("parallel: task panicked")

	// ErrUnknownBackend is returned by New for an unrecognised backend name.
	ErrUnknownBackend = errors.New("parallel: unknown backend")
)

// Executor runs a group of independent tasks and joins on them.
//
// Execute calls fn once for every task index in [0, n). The worker argument
// identifies the executing worker and is always in [0, Workers()); a worker
// never runs two tasks at the same time, so per-worker state indexed by it
// needs no locking. Execute returns after every task has finished.
type Executor interface {
	Workers() int
	Execute(n int, fn func(worker, task int) error) error
	Close()
}

// WorkerPool is a fixed set of goroutines, each with its own queue.
//
// Task i of an Execute call is always queued on worker i mod Workers(), so
// the task-to-worker mapping is a pure function of the task index. There is
// no work stealing.
//
// Thread safety: Execute may be called concurrently; Close waits for
// in-flight Execute calls to return.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func(worker int)

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// mu is held shared by Execute and exclusively by Close.
	mu sync.RWMutex

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(int), workers),
		done:       make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.workQueues[i] = make(chan func(int), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	queue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			// Drain remaining work before exiting
			for {
				select {
				case work := <-queue:
					work(id)
				default:
					return
				}
			}
		case work := <-queue:
			work(id)
		}
	}
}

// Execute implements Executor.
func (p *WorkerPool) Execute(n int, fn func(worker, task int) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}

	var g group
	g.wg.Add(n)
	for i := 0; i < n; i++ {
		task := i
		p.workQueues[i%p.workers] <- func(worker int) {
			defer g.wg.Done()
			g.record(task, call(fn, worker, task))
		}
	}
	g.wg.Wait()

	return g.result()
}

// Close gracefully shuts down the pool.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// group collects the outcome of one Execute call. The error of the lowest
// failing task index wins so repeated runs report the same failure.
type group struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	err    error
	task   int
	failed int
}

func (g *group) record(task int, err error) {
	if err == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failed++
	if g.err == nil || task < g.task {
		g.err = err
		g.task = task
	}
}

func (g *group) result() error {
	if g.err == nil {
		return nil
	}
	if g.failed > 1 {
		return fmt.Errorf("task %d: %w (and %d more failed)", g.task, g.err, g.failed-1)
	}
	return fmt.Errorf("task %d: %w", g.task, g.err)
}

// call runs fn, turning a panic into an error.
func call(fn func(worker, task int) error, worker, task int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return fn(worker, task)
}
