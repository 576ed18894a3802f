// Package bench provides the core benchmark execution engine for benchvise.
//
// The package drives a single test method through a bounded iteration
// sequence, measuring only the interval the method delimits and deciding
// when enough iterations have been collected:
//   - Count-based and wall-clock-based termination ([StopReason])
//   - Per-iteration measurement boundaries ([Meter])
//   - Forced memory quiescence before each measured interval
//   - Process-wide mutual exclusion between runs (via the gate package)
//
// # Basic Usage
//
// Create an engine with options and run a bound method:
//
//	opts := bench.Options{
//		RunID:         "01J...",
//		TestName:      "http GET /users",
//		MaxIterations: 100,
//		MaxDuration:   time.Minute,
//		Collector:     collector,
//	}
//	e := bench.New(opts)
//	result, err := e.Run(ctx, reflect.ValueOf(body), args)
//
// # Measurement Boundaries
//
// The benchmark body may delimit the hot portion of each pass:
//
//	i := meter.Iteration()
//	if err := meter.StartMeasurement(i); err != nil {
//		return err
//	}
//	doWork()
//	meter.StopMeasurement(i)
//
// A body that never calls the meter is measured whole-call. A boundary the
// body opened but never closed is force-closed when the iteration ends, so
// start and stop telemetry events always pair.
//
// # Return Conventions
//
// The body may return an error, return a value implementing [Awaitable], or
// return nothing and signal through [OperationStarted] and
// [OperationCompleted]. All three are awaited uniformly.
//
// # Stop Policy
//
// Iteration 0 always runs and bootstraps the overall timer; the time budget
// is only consulted from iteration 2 onward, so every run collects at least
// two passes before time-based stopping can trigger. A failing iteration
// abandons the rest of the sequence with [StopReasonTestFailed].
package bench
