package bench

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/benchvise/internal/gate"
	"github.com/torosent/benchvise/internal/metrics"
	"github.com/torosent/benchvise/internal/telemetry"
)

// Awaitable is implemented by benchmark results that complete asynchronously.
// The engine awaits the returned value before closing the iteration.
type Awaitable interface {
	Await(ctx context.Context) error
}

// Options configure the Engine.
type Options struct {
	RunID         string        // opaque identifier grouping telemetry for one session
	TestName      string        // display name carried on every telemetry event
	MaxIterations int           // iteration budget (minimum 1)
	MaxDuration   time.Duration // wall-clock budget (0 means no time cap)
	IterationRate int           // max iteration starts per second (0 means unpaced)

	Emitter   telemetry.Emitter  // telemetry sink (defaults to a no-op)
	Collector *metrics.Collector // aggregate timer collaborator (required)
	Gate      *gate.Gate         // execution gate (defaults to the process gate)

	Quiesce        func()                      // memory quiescence pass, injectable for tests
	Clock          func() time.Time            // injectable for stop-policy tests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.MaxIterations < 1 {
		o.MaxIterations = 1
	}
	if o.MaxDuration < 0 {
		o.MaxDuration = 0
	}
	if o.Emitter == nil {
		o.Emitter = telemetry.Nop{}
	}
	if o.Gate == nil {
		o.Gate = gate.Default
	}
	if o.Quiesce == nil {
		o.Quiesce = Quiesce
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return nil
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Result captures a completed run.
type Result struct {
	Iterations int
	StopReason StopReason
	Elapsed    time.Duration // total measured time from the aggregate collector
}

// Engine drives one benchmark method through its iteration sequence. A single
// Engine may be reused for sequential runs; the gate guarantees no two runs
// overlap process-wide.
type Engine struct {
	opt     Options
	policy  stopPolicy
	limiter *rate.Limiter
	meter   *Meter
}

func New(opt Options) *Engine {
	opt.normalize()
	e := &Engine{
		opt:     opt,
		policy:  stopPolicy{maxIterations: opt.MaxIterations, maxDuration: opt.MaxDuration},
		limiter: opt.LimiterFactory(opt.IterationRate),
	}
	e.meter = &Meter{
		runID:    opt.RunID,
		testName: opt.TestName,
		emitter:  opt.Emitter,
		quiesce:  opt.Quiesce,
		clock:    opt.Clock,
	}
	return e
}

// Meter returns the measurement boundary tracker handed to the benchmark
// body, typically resolved into the method's arguments by the surrounding
// test framework.
func (e *Engine) Meter() *Meter {
	return e.meter
}

// Run executes the full iteration sequence for the given bound method and
// pre-resolved arguments. It returns the aggregate measured time and the
// run's folded failure, if any. Exactly one run-start and one run-stop
// telemetry event are emitted per call, even when the run fails before its
// first iteration.
func (e *Engine) Run(ctx context.Context, method reflect.Value, args []reflect.Value) (Result, error) {
	release, err := e.opt.Gate.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer release()

	comp := newCompletionContext()
	restore := swapCompletion(comp)
	defer restore()

	agg := &errorAggregator{}
	res := Result{StopReason: StopReasonNone}

	e.opt.Emitter.RunStarted(e.opt.RunID, e.opt.TestName)
	defer func() {
		e.opt.Emitter.RunStopped(e.opt.RunID, e.opt.TestName, res.StopReason.String())
	}()

	call, err := bindMethod(method, args, comp)
	if err != nil {
		agg.add(err)
		res.StopReason = StopReasonTestFailed
		return res, agg.Err()
	}

	state := runState{}
	for {
		reason, ok := e.policy.next(state, e.opt.Clock())
		if !ok {
			res.StopReason = reason
			break
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				agg.add(err)
				res.StopReason = StopReasonTestFailed
				break
			}
		}

		e.meter.beginIteration(state.index)
		callStart := e.opt.Clock()
		iterErr := invoke(ctx, call)
		callElapsed := e.opt.Clock().Sub(callStart)

		measured, bounded := e.meter.finishIteration(iterErr == nil)
		if !bounded {
			// The body never delimited an interval; the whole call is
			// measured implicitly.
			measured = callElapsed
		}
		e.opt.Collector.RecordIteration(measured, iterErr)

		state = state.completed(e.opt.Clock())
		res.Iterations = state.index

		if iterErr != nil {
			agg.add(iterErr)
			res.StopReason = StopReasonTestFailed
			break
		}
	}

	res.Elapsed = e.opt.Collector.Total()
	return res, agg.Err()
}

// invoke runs one iteration, folding a panic in the body into an error
// rather than unwinding past the iteration loop.
func invoke(ctx context.Context, call func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("benchmark body panicked: %v", r)
		}
	}()
	return call(ctx)
}

// bindMethod validates the method handle against its supplied arguments and
// returns a uniform closure for one invocation. Three return conventions are
// supported: a direct error return, a value implementing Awaitable, and a
// void return paired with the ambient completion signal.
func bindMethod(method reflect.Value, args []reflect.Value, comp *completionContext) (func(context.Context) error, error) {
	if method.Kind() != reflect.Func {
		return nil, errors.New("benchmark method must be a func")
	}
	t := method.Type()
	if t.IsVariadic() {
		return nil, errors.New("variadic benchmark methods are not supported")
	}
	if t.NumIn() != len(args) {
		return nil, fmt.Errorf("argument count mismatch: method declares %d parameters, %d values supplied", t.NumIn(), len(args))
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()
	awaitType := reflect.TypeOf((*Awaitable)(nil)).Elem()

	switch t.NumOut() {
	case 0:
		// Legacy convention: the body signals completion through the
		// ambient completion context.
		return func(ctx context.Context) error {
			method.Call(args)
			return comp.await(ctx)
		}, nil
	case 1:
		out := t.Out(0)
		switch {
		case out == errType:
			return func(ctx context.Context) error {
				ret := method.Call(args)
				if e, _ := ret[0].Interface().(error); e != nil {
					return e
				}
				return nil
			}, nil
		case out.Implements(awaitType):
			return func(ctx context.Context) error {
				ret := method.Call(args)
				a, _ := ret[0].Interface().(Awaitable)
				if a == nil {
					return nil
				}
				return a.Await(ctx)
			}, nil
		default:
			return nil, fmt.Errorf("unsupported return type %s: want error or bench.Awaitable", out)
		}
	default:
		return nil, fmt.Errorf("unsupported return convention: %d values", t.NumOut())
	}
}

// errorAggregator folds iteration failures so a failing run surfaces every
// recorded error to the caller instead of swallowing any.
type errorAggregator struct {
	errs []error
}

func (a *errorAggregator) add(err error) {
	if err != nil {
		a.errs = append(a.errs, err)
	}
}

func (a *errorAggregator) Err() error {
	return errors.Join(a.errs...)
}
