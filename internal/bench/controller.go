package bench

import "time"

// runState is the controller's iteration cursor. It is a value type so the
// stop policy can be exercised as a pure step function, without driving a
// live method invocation.
type runState struct {
	index      int       // next iteration index to produce
	timerStart time.Time // zero until iteration 0 completes
}

// completed records that iteration index finished at now. The overall timer
// starts only when iteration 0 completes, so the first pass never counts
// against the time budget.
func (s runState) completed(now time.Time) runState {
	if s.index == 0 {
		s.timerStart = now
	}
	s.index++
	return s
}

// stopPolicy decides whether the next iteration may begin. The check gates
// entry into an iteration; it never aborts one in progress.
type stopPolicy struct {
	maxIterations int
	maxDuration   time.Duration
}

// next reports whether iteration s.index may start at time now. When it may
// not, the returned reason explains why the sequence ended.
//
// Iteration 0 always proceeds: it bootstraps the overall timer. The elapsed
// check only applies from iteration 2 onward, so iterations 0 and 1 run
// regardless of how small the time budget is.
func (p stopPolicy) next(s runState, now time.Time) (StopReason, bool) {
	if s.index == 0 {
		return StopReasonNone, true
	}
	if s.index >= p.maxIterations {
		return StopReasonMaxIterations, false
	}
	if p.maxDuration > 0 && s.index > 1 && now.Sub(s.timerStart) > p.maxDuration {
		return StopReasonMaxTime, false
	}
	return StopReasonNone, true
}
