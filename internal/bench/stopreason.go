package bench

// StopReason explains why a run's iteration sequence ended.
type StopReason int

const (
	// StopReasonNone means the run is still in flight.
	StopReasonNone StopReason = iota
	// StopReasonMaxIterations means the configured iteration budget was reached.
	StopReasonMaxIterations
	// StopReasonMaxTime means the configured wall-clock budget was exceeded.
	StopReasonMaxTime
	// StopReasonTestFailed means an iteration failed and the run was abandoned.
	StopReasonTestFailed
)

func (r StopReason) String() string {
	switch r {
	case StopReasonNone:
		return "none"
	case StopReasonMaxIterations:
		return "max_iterations"
	case StopReasonMaxTime:
		return "max_time"
	case StopReasonTestFailed:
		return "test_failed"
	default:
		return "unknown"
	}
}
