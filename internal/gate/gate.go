// Package gate provides the execution gate serializing benchmark runs.
//
// At most one benchmark body executes at any instant, process-wide, no
// matter how many runs the surrounding test runner dispatches concurrently.
// The gate is a single-permit semaphore; acquisition suspends the caller
// without pinning a thread, and release happens on every exit path. With a
// lock file configured, the same guarantee extends across runner processes
// sharing a host.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"
)

// Default is the process-wide gate shared by every run.
var Default = New()

// Gate is a single-permit execution gate.
type Gate struct {
	sem      *semaphore.Weighted
	lockFile string
}

// Option configures a Gate.
type Option func(*Gate)

// WithLockFile extends the gate across processes via a file lock at path.
func WithLockFile(path string) Option {
	return func(g *Gate) {
		g.lockFile = path
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{sem: semaphore.NewWeighted(1)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire takes the gate's single permit, suspending until it is available
// or ctx is done. The returned release func must be called on every exit
// path; it is idempotent-safe to call exactly once per Acquire.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if g.lockFile == "" {
		return func() { g.sem.Release(1) }, nil
	}

	fl := flock.New(g.lockFile)
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		g.sem.Release(1)
		return nil, fmt.Errorf("gate lock file %s: %w", g.lockFile, err)
	}
	if !locked {
		g.sem.Release(1)
		return nil, fmt.Errorf("gate lock file %s: not acquired", g.lockFile)
	}

	return func() {
		_ = fl.Unlock()
		g.sem.Release(1)
	}, nil
}
