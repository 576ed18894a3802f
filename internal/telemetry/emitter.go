package telemetry

// Emitter receives the engine's execution boundaries. Events for a single
// run never interleave with another run's because the execution gate
// serializes runs; implementations may rely on that ordering.
type Emitter interface {
	// RunStarted fires once, before the first iteration.
	RunStarted(runID, testName string)
	// IterationStarted fires when a measured interval opens.
	IterationStarted(runID, testName string, iteration int)
	// IterationStopped fires when a measured interval closes, explicitly or
	// by the engine's auto-close pass.
	IterationStopped(runID, testName string, iteration int, success bool)
	// RunStopped fires exactly once per run with the terminal stop reason,
	// even when the run fails.
	RunStopped(runID, testName, reason string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) RunStarted(string, string)                  {}
func (Nop) IterationStarted(string, string, int)       {}
func (Nop) IterationStopped(string, string, int, bool) {}
func (Nop) RunStopped(string, string, string)          {}
