package bench

import (
	"context"
	"sync"
)

// completionContext lets a benchmark body that fires callbacks and signals
// completion later be awaited uniformly alongside bodies that return their
// result directly. Pending operations are counted; await returns once the
// count drains, carrying the first reported failure.
type completionContext struct {
	mu      sync.Mutex
	pending int
	err     error
	notify  chan struct{}
}

func newCompletionContext() *completionContext {
	return &completionContext{notify: make(chan struct{})}
}

func (c *completionContext) operationStarted() {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
}

func (c *completionContext) operationCompleted(err error) {
	c.mu.Lock()
	if c.pending > 0 {
		c.pending--
	}
	if err != nil && c.err == nil {
		c.err = err
	}
	close(c.notify)
	c.notify = make(chan struct{})
	c.mu.Unlock()
}

// await blocks until no operations are pending, then returns the first
// failure reported, if any. It returns immediately for a body that never
// registered an operation.
func (c *completionContext) await(ctx context.Context) error {
	c.mu.Lock()
	for c.pending > 0 {
		ch := c.notify
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	err := c.err
	c.err = nil
	c.mu.Unlock()
	return err
}

// ambient is the process-wide completion slot. It is swapped in for the
// duration of a run and restored on every exit path. Sharing a single slot
// is safe only because the execution gate serializes runs; no two runs are
// ever in flight at once.
var (
	ambientMu sync.Mutex
	ambient   *completionContext
)

// swapCompletion installs c as the ambient completion context and returns a
// func that restores the previous one.
func swapCompletion(c *completionContext) (restore func()) {
	ambientMu.Lock()
	prev := ambient
	ambient = c
	ambientMu.Unlock()
	return func() {
		ambientMu.Lock()
		ambient = prev
		ambientMu.Unlock()
	}
}

func currentCompletion() *completionContext {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	return ambient
}

// OperationStarted registers an in-flight asynchronous operation with the
// current run. Bodies using the legacy fire-callbacks-then-signal convention
// call this before spawning work.
func OperationStarted() {
	if c := currentCompletion(); c != nil {
		c.operationStarted()
	}
}

// OperationCompleted signals that an operation registered with
// OperationStarted finished, reporting its failure if any.
func OperationCompleted(err error) {
	if c := currentCompletion(); c != nil {
		c.operationCompleted(err)
	}
}
