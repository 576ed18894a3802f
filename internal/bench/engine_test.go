package bench

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/benchvise/internal/gate"
	"github.com/torosent/benchvise/internal/metrics"
)

func newTestEngine(t *testing.T, opt Options) (*Engine, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	opt.RunID = "run-1"
	opt.TestName = "TestSample"
	opt.Emitter = emitter
	if opt.Collector == nil {
		opt.Collector = metrics.NewCollector()
	}
	if opt.Gate == nil {
		opt.Gate = gate.New()
	}
	if opt.Quiesce == nil {
		opt.Quiesce = func() {}
	}
	return New(opt), emitter
}

func TestEngineRunsToIterationBudget(t *testing.T) {
	const iterations = 5

	eng, emitter := newTestEngine(t, Options{
		MaxIterations: iterations,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	calls := 0
	body := func(ctx context.Context, m *Meter) error {
		i := m.Iteration()
		if err := m.StartMeasurement(i); err != nil {
			return err
		}
		m.StopMeasurement(i)
		calls++
		return nil
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background()), reflect.ValueOf(eng.Meter())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != iterations {
		t.Fatalf("body invoked %d times, want %d", calls, iterations)
	}
	if res.Iterations != iterations {
		t.Fatalf("Iterations = %d, want %d", res.Iterations, iterations)
	}
	if res.StopReason != StopReasonMaxIterations {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonMaxIterations)
	}

	want := []string{"run_started"}
	for i := 0; i < iterations; i++ {
		want = append(want,
			"iteration_started:"+strconv.Itoa(i),
			"iteration_stopped:"+strconv.Itoa(i)+":true",
		)
	}
	want = append(want, "run_stopped:max_iterations")

	got := emitter.recorded()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngineElapsedIsSumOfMeasuredIntervals(t *testing.T) {
	const iterations = 4
	step := time.Millisecond

	collector := metrics.NewCollector()
	eng, _ := newTestEngine(t, Options{
		MaxIterations: iterations,
		Collector:     collector,
		Clock:         newSteppedClock(step).Now,
	})

	body := func(ctx context.Context, m *Meter) error {
		i := m.Iteration()
		if err := m.StartMeasurement(i); err != nil {
			return err
		}
		m.StopMeasurement(i)
		return nil
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background()), reflect.ValueOf(eng.Meter())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The stepped clock advances one step between start and stop, so each
	// iteration contributes exactly one step to the aggregate timer.
	want := time.Duration(iterations) * step
	if res.Elapsed != want {
		t.Fatalf("Elapsed = %v, want %v", res.Elapsed, want)
	}
	if total := collector.Total(); total != want {
		t.Fatalf("collector total = %v, want %v", total, want)
	}
}

func TestEngineStopsOnTimeBudget(t *testing.T) {
	// Four clock reads per iteration; with 10ms steps the timer starts at
	// t=40ms (end of iteration 0) and the first time check happens before
	// iteration 2 at t=90ms, 50ms after the timer started.
	eng, emitter := newTestEngine(t, Options{
		MaxIterations: 100,
		MaxDuration:   45 * time.Millisecond,
		Clock:         newSteppedClock(10 * time.Millisecond).Now,
	})

	body := func(ctx context.Context) error { return nil }

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopReasonMaxTime {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonMaxTime)
	}
	if res.Iterations != 2 {
		t.Fatalf("Iterations = %d, want 2 (the first two are exempt from the time check)", res.Iterations)
	}

	got := emitter.recorded()
	if got[len(got)-1] != "run_stopped:max_time" {
		t.Fatalf("final event = %q, want run_stopped:max_time", got[len(got)-1])
	}
}

func TestEngineFirstTwoIterationsExemptFromTinyBudget(t *testing.T) {
	eng, _ := newTestEngine(t, Options{
		MaxIterations: 100,
		MaxDuration:   time.Nanosecond,
		Clock:         newSteppedClock(10 * time.Millisecond).Now,
	})

	body := func(ctx context.Context) error { return nil }

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 2 {
		t.Fatalf("Iterations = %d, want 2 even under a nanosecond budget", res.Iterations)
	}
}

func TestEngineStopsOnIterationFailure(t *testing.T) {
	failure := errors.New("iteration blew up")

	eng, emitter := newTestEngine(t, Options{
		MaxIterations: 100,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	calls := 0
	body := func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return failure
		}
		return nil
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if !errors.Is(err, failure) {
		t.Fatalf("Run error = %v, want %v", err, failure)
	}
	if res.StopReason != StopReasonTestFailed {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonTestFailed)
	}
	if res.Iterations != 3 {
		t.Fatalf("Iterations = %d, want 3", res.Iterations)
	}

	got := emitter.recorded()
	if got[len(got)-1] != "run_stopped:test_failed" {
		t.Fatalf("final event = %q, want run_stopped:test_failed", got[len(got)-1])
	}
}

func TestEngineAutoClosesBoundaryOnFailure(t *testing.T) {
	failure := errors.New("failed mid-measurement")

	eng, emitter := newTestEngine(t, Options{
		MaxIterations: 10,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context, m *Meter) error {
		if err := m.StartMeasurement(m.Iteration()); err != nil {
			return err
		}
		// Fail without stopping the boundary.
		return failure
	}

	_, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background()), reflect.ValueOf(eng.Meter())},
	)
	if !errors.Is(err, failure) {
		t.Fatalf("Run error = %v, want %v", err, failure)
	}

	want := []string{
		"run_started",
		"iteration_started:0",
		"iteration_stopped:0:false",
		"run_stopped:test_failed",
	}
	got := emitter.recorded()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngineArgumentMismatchFailsBeforeIterating(t *testing.T) {
	eng, emitter := newTestEngine(t, Options{
		MaxIterations: 10,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context, extra string) error { return nil }

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err == nil {
		t.Fatal("Run succeeded with mismatched arguments, want error")
	}
	if !strings.Contains(err.Error(), "argument count mismatch") {
		t.Fatalf("Run error = %v, want an argument count mismatch", err)
	}
	if res.Iterations != 0 {
		t.Fatalf("Iterations = %d, want 0", res.Iterations)
	}
	if res.StopReason != StopReasonTestFailed {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonTestFailed)
	}

	// The run pair still brackets the failure; no iteration events appear.
	want := []string{"run_started", "run_stopped:test_failed"}
	got := emitter.recorded()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngineRecoversBodyPanic(t *testing.T) {
	eng, _ := newTestEngine(t, Options{
		MaxIterations: 10,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context) error {
		panic("deliberate")
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("Run error = %v, want a recovered panic", err)
	}
	if res.StopReason != StopReasonTestFailed {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonTestFailed)
	}
}

type asyncResult struct {
	err error
}

func (r *asyncResult) Await(ctx context.Context) error {
	return r.err
}

func TestEngineAwaitableReturnConvention(t *testing.T) {
	eng, _ := newTestEngine(t, Options{
		MaxIterations: 3,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context) *asyncResult {
		return &asyncResult{}
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 3 {
		t.Fatalf("Iterations = %d, want 3", res.Iterations)
	}
}

func TestEngineAwaitableFailure(t *testing.T) {
	failure := errors.New("async failure")

	eng, _ := newTestEngine(t, Options{
		MaxIterations: 3,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context) *asyncResult {
		return &asyncResult{err: failure}
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if !errors.Is(err, failure) {
		t.Fatalf("Run error = %v, want %v", err, failure)
	}
	if res.Iterations != 1 {
		t.Fatalf("Iterations = %d, want 1", res.Iterations)
	}
	if res.StopReason != StopReasonTestFailed {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonTestFailed)
	}
}

func TestEngineCompletionSignalConvention(t *testing.T) {
	eng, _ := newTestEngine(t, Options{
		MaxIterations: 3,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context) {
		OperationStarted()
		go func() {
			time.Sleep(time.Millisecond)
			OperationCompleted(nil)
		}()
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 3 {
		t.Fatalf("Iterations = %d, want 3", res.Iterations)
	}
	if res.StopReason != StopReasonMaxIterations {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonMaxIterations)
	}
}

func TestEngineCompletionSignalFailure(t *testing.T) {
	failure := errors.New("callback failure")

	eng, _ := newTestEngine(t, Options{
		MaxIterations: 3,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context) {
		OperationStarted()
		go OperationCompleted(failure)
	}

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if !errors.Is(err, failure) {
		t.Fatalf("Run error = %v, want %v", err, failure)
	}
	if res.StopReason != StopReasonTestFailed {
		t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonTestFailed)
	}
}

func TestEngineRejectsUnsupportedSignatures(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
		args []reflect.Value
	}{
		{
			name: "not a func",
			body: 42,
			args: nil,
		},
		{
			name: "variadic",
			body: func(xs ...int) error { return nil },
			args: nil,
		},
		{
			name: "non-error return",
			body: func() string { return "" },
			args: nil,
		},
		{
			name: "two return values",
			body: func() (int, error) { return 0, nil },
			args: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newTestEngine(t, Options{
				MaxIterations: 1,
				Clock:         newSteppedClock(time.Millisecond).Now,
			})
			res, err := eng.Run(context.Background(), reflect.ValueOf(tt.body), tt.args)
			if err == nil {
				t.Fatal("Run succeeded, want a binding error")
			}
			if res.StopReason != StopReasonTestFailed {
				t.Fatalf("StopReason = %v, want %v", res.StopReason, StopReasonTestFailed)
			}
		})
	}
}

func TestEngineWholeCallMeasuredWithoutBoundary(t *testing.T) {
	collector := metrics.NewCollector()
	eng, _ := newTestEngine(t, Options{
		MaxIterations: 2,
		Collector:     collector,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	body := func(ctx context.Context) error { return nil }

	res, err := eng.Run(context.Background(),
		reflect.ValueOf(body),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Elapsed <= 0 {
		t.Fatalf("Elapsed = %v, want > 0 from the whole-call fallback", res.Elapsed)
	}
}

func TestEngineGateSerializesRuns(t *testing.T) {
	shared := gate.New()

	var inFlight int32
	var overlapped int32

	body := func(ctx context.Context) error {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		eng, _ := newTestEngine(t, Options{
			MaxIterations: 5,
			Gate:          shared,
			Clock:         newSteppedClock(time.Millisecond).Now,
		})
		go func(e *Engine) {
			_, err := e.Run(context.Background(),
				reflect.ValueOf(body),
				[]reflect.Value{reflect.ValueOf(context.Background())},
			)
			done <- err
		}(eng)
	}

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if atomic.LoadInt32(&overlapped) != 0 {
		t.Fatal("two runs executed iterations concurrently despite the gate")
	}
}

func TestEngineGateReleasedAfterFailure(t *testing.T) {
	shared := gate.New()
	failure := errors.New("boom")

	eng, _ := newTestEngine(t, Options{
		MaxIterations: 5,
		Gate:          shared,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})

	failing := func(ctx context.Context) error { return failure }
	if _, err := eng.Run(context.Background(),
		reflect.ValueOf(failing),
		[]reflect.Value{reflect.ValueOf(context.Background())},
	); !errors.Is(err, failure) {
		t.Fatalf("Run error = %v, want %v", err, failure)
	}

	// A second run must be able to acquire the gate.
	eng2, _ := newTestEngine(t, Options{
		MaxIterations: 1,
		Gate:          shared,
		Clock:         newSteppedClock(time.Millisecond).Now,
	})
	ok := func(ctx context.Context) error { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := eng2.Run(ctx,
		reflect.ValueOf(ok),
		[]reflect.Value{reflect.ValueOf(ctx)},
	); err != nil {
		t.Fatalf("second Run after failure: %v", err)
	}
}
