// workerpool.go: Fixed worker pool with least-loaded dispatch, per-task
// timeouts and ordered batch results.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/google/uuid"
)

// DefaultTaskTimeout bounds how long a submitted task may run before its
// caller receives ErrWorkerTimeout.
const DefaultTaskTimeout = 30 * time.Second

// workerQueueSize is the per-worker task buffer. Least-loaded dispatch
// keeps queues shallow; the buffer only absorbs submission bursts.
const workerQueueSize = 64

// TaskFunc is the unit of work submitted to a pool. It must be
// side-effect-free on shared state so a timed-out straggler can be
// safely discarded.
type TaskFunc func() ([]byte, error)

// BatchResult is one positional outcome of a Batch call. Index matches
// the input slice regardless of completion order.
type BatchResult struct {
	Index  int
	Output []byte
	Err    error
}

type taskOutcome struct {
	output any
	err    error
}

type poolTask struct {
	id   string
	kind string
	fn   func() (any, error)

	// settled flips exactly once, by whichever of completion and
	// timeout happens first. The winner removes the task from the
	// pending set and owns result delivery.
	settled atomic.Bool
	result  chan taskOutcome
}

type poolWorker struct {
	tasks    chan *poolTask
	inFlight atomic.Int64
}

// WorkerPool fans tasks out to a fixed set of workers. Each submission
// goes to the worker with the fewest in-flight tasks; ties resolve to
// the lowest-numbered worker.
type WorkerPool struct {
	workers []*poolWorker
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*poolTask
	closed  bool
	wg      sync.WaitGroup
}

// NewWorkerPool starts a pool with the given number of workers and
// per-task timeout. Non-positive size defaults to GOMAXPROCS;
// non-positive timeout defaults to DefaultTaskTimeout.
func NewWorkerPool(size int, timeout time.Duration) *WorkerPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	p := &WorkerPool{
		workers: make([]*poolWorker, size),
		timeout: timeout,
		pending: make(map[string]*poolTask),
	}
	for i := range p.workers {
		w := &poolWorker{tasks: make(chan *poolTask, workerQueueSize)}
		p.workers[i] = w
		p.wg.Add(1)
		go p.run(w)
	}
	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return len(p.workers) }

// Pending returns the number of tasks currently queued or running.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *WorkerPool) run(w *poolWorker) {
	defer p.wg.Done()
	for task := range w.tasks {
		output, err := task.fn()
		// The worker owns its load count: a timed-out straggler keeps
		// the worker marked busy until it actually finishes, so
		// least-loaded dispatch steers new work elsewhere.
		w.inFlight.Add(-1)
		if task.settled.CompareAndSwap(false, true) {
			p.removePending(task.id)
			task.result <- taskOutcome{output: output, err: err}
		}
		// Timed-out stragglers' outputs are discarded.
	}
}

// Submit runs fn on the least-loaded worker and blocks until the result
// arrives or the pool's task timeout expires. kind is a caller-chosen
// type tag carried for diagnostics.
func (p *WorkerPool) Submit(kind string, fn TaskFunc) ([]byte, error) {
	out, err := p.submit(kind, func() (any, error) { return fn() })
	if err != nil {
		return nil, err
	}
	b, _ := out.([]byte)
	return b, nil
}

func (p *WorkerPool) submit(kind string, fn func() (any, error)) (any, error) {
	task := &poolTask{
		id:     uuid.NewString(),
		kind:   kind,
		fn:     fn,
		result: make(chan taskOutcome, 1),
	}

	if err := p.dispatch(task); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case outcome := <-task.result:
		return outcome.output, outcome.err
	case <-timer.C:
		if task.settled.CompareAndSwap(false, true) {
			p.removePending(task.id)
			richErr := goerrors.New(ErrCodeWorkerTimeout, fmt.Sprintf("task %s (%s) exceeded %s", task.id, task.kind, p.timeout))
			return nil, fmt.Errorf("%w: %w", ErrWorkerTimeout, richErr)
		}
		// The worker settled between timer fire and CAS; its result is
		// already buffered.
		outcome := <-task.result
		return outcome.output, outcome.err
	}
}

// dispatch registers the task and hands it to the least-loaded worker.
func (p *WorkerPool) dispatch(task *poolTask) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		richErr := goerrors.New(ErrCodePoolClosed, "pool is closed")
		return fmt.Errorf("%w: %w", ErrPoolClosed, richErr)
	}

	w := p.workers[0]
	least := w.inFlight.Load()
	for _, candidate := range p.workers[1:] {
		if n := candidate.inFlight.Load(); n < least {
			w, least = candidate, n
		}
	}
	w.inFlight.Add(1)
	p.pending[task.id] = task
	p.mu.Unlock()

	w.tasks <- task
	return nil
}

func (p *WorkerPool) removePending(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// Batch applies op to every item and returns results in input order.
// Items are partitioned evenly across the pool; each item's payload is
// copied before submission so no buffer is shared with the caller during
// processing. Per-item failures land in their BatchResult rather than
// failing the batch.
func (p *WorkerPool) Batch(items [][]byte, op func([]byte) ([]byte, error)) []BatchResult {
	results := make([]BatchResult, len(items))
	if len(items) == 0 {
		return results
	}

	chunk := (len(items) + len(p.workers) - 1) / len(p.workers)
	var wg sync.WaitGroup
	for start := 0; start < len(items); start += chunk {
		end := start + chunk
		if end > len(items) {
			end = len(items)
		}

		// Copy the partition's payloads up front.
		part := make([][]byte, end-start)
		for i, item := range items[start:end] {
			part[i] = append([]byte(nil), item...)
		}

		wg.Add(1)
		go func(base int, part [][]byte) {
			defer wg.Done()
			out, err := p.submit("batch", func() (any, error) {
				partial := make([]BatchResult, len(part))
				for i, payload := range part {
					output, opErr := op(payload)
					partial[i] = BatchResult{Index: base + i, Output: output, Err: opErr}
				}
				return partial, nil
			})
			if err != nil {
				for i := range part {
					results[base+i] = BatchResult{Index: base + i, Err: err}
				}
				return
			}
			for _, r := range out.([]BatchResult) {
				results[r.Index] = r
			}
		}(start, part)
	}
	wg.Wait()
	return results
}

// Close stops accepting submissions and waits for the workers to drain.
// Close is idempotent. Callers must not invoke Close concurrently with
// Submit or Batch.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for _, w := range p.workers {
		close(w.tasks)
	}
	p.wg.Wait()
}
