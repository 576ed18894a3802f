package bench

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/torosent/benchvise/internal/telemetry"
)

// boundaryState tracks the measurement boundary of a single iteration.
// Transitions only move forward: NotStarted -> Started -> Stopped.
type boundaryState int

const (
	boundaryNotStarted boundaryState = iota
	boundaryStarted
	boundaryStopped
)

// Quiesce forces memory into a settled state before a measured interval
// begins. The second collection cycle reclaims objects whose finalizers were
// queued by the first, so the measured interval starts from a clean heap.
func Quiesce() {
	runtime.GC()
	runtime.GC()
}

// Meter delimits the measured interval inside a benchmark iteration. The
// benchmark body calls StartMeasurement and StopMeasurement with the
// iteration index it believes is current; stale indices are detected rather
// than silently accepted.
type Meter struct {
	mu sync.Mutex

	runID    string
	testName string
	emitter  telemetry.Emitter
	quiesce  func()
	clock    func() time.Time

	current   int
	state     boundaryState
	startedAt time.Time
	measured  time.Duration
}

// Iteration returns the index of the iteration currently in flight.
func (m *Meter) Iteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartMeasurement marks the beginning of the measured interval for
// iteration i. Before the interval opens, the meter runs its quiescence pass
// so the measurement excludes collector pauses triggered by prior
// allocation. Calling it twice for the same iteration, or for an iteration
// that is not current, is an invalid-state error fatal to the run.
func (m *Meter) StartMeasurement(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i != m.current {
		return fmt.Errorf("StartMeasurement: iteration %d is not current (current is %d)", i, m.current)
	}
	if m.state != boundaryNotStarted {
		return fmt.Errorf("StartMeasurement: measurement already started for iteration %d", i)
	}

	m.quiesce()
	m.state = boundaryStarted
	m.startedAt = m.clock()
	m.emitter.IterationStarted(m.runID, m.testName, i)
	return nil
}

// StopMeasurement marks the end of the measured interval for iteration i.
// It is idempotent: calls for a non-current iteration or an already-stopped
// boundary are ignored, since the controller also closes the boundary when it
// finishes the iteration.
func (m *Meter) StopMeasurement(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(i, true)
}

func (m *Meter) stopLocked(i int, success bool) {
	if i != m.current || m.state != boundaryStarted {
		return
	}
	m.state = boundaryStopped
	m.measured = m.clock().Sub(m.startedAt)
	m.emitter.IterationStopped(m.runID, m.testName, i, success)
}

// beginIteration resets the boundary for a new iteration index.
func (m *Meter) beginIteration(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = i
	m.state = boundaryNotStarted
	m.startedAt = time.Time{}
	m.measured = 0
}

// finishIteration force-closes an open boundary so every started measurement
// pairs with exactly one stop event, even when the body returned early or
// failed after StartMeasurement. It reports the measured interval and whether
// a boundary was used at all.
func (m *Meter) finishIteration(success bool) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(m.current, success)
	if m.state != boundaryStopped {
		return 0, false
	}
	return m.measured, true
}
