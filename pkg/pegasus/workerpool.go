package pegasus

import "context"

// workerPool is spec §5's shared worker pool: a small, fixed number of
// goroutines draining a task queue, sized by the async_workers config key
// (spec §6). The Client Facade's blocking methods (Get, Set, ...) are
// synchronous wrappers that submit to this pool and await the result,
// per spec §5 "cooperative asynchronous tasks on a shared worker pool
// ... blocking operations ... are synchronous wrappers that await the
// underlying async call".
type workerPool struct {
	tasks chan func()
}

func newWorkerPool(n int) *workerPool {
	if n <= 0 {
		n = 1
	}
	p := &workerPool{tasks: make(chan func())}
	for i := 0; i < n; i++ {
		go p.run()
	}
	return p
}

func (p *workerPool) run() {
	for fn := range p.tasks {
		fn()
	}
}

func (p *workerPool) close() { close(p.tasks) }

// submitSync runs fn on the pool and blocks for its result, detaching
// early if ctx ends first (spec §5 "pending waiters fail locally with
// Timeout and detach"): ErrTimeout when ctx's deadline passed,
// ErrCancelled when it was cancelled.
func submitSync[T any](ctx context.Context, p *workerPool, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	task := func() {
		v, err := fn()
		done <- result{v, err}
	}
	detach := func() (T, error) {
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, ErrTimeout
		}
		return zero, ErrCancelled
	}

	select {
	case p.tasks <- task:
	case <-ctx.Done():
		return detach()
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return detach()
	}
}
