package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/torosent/benchvise/internal/bench"
	"github.com/torosent/benchvise/internal/config"
	"github.com/torosent/benchvise/internal/dashboard"
	"github.com/torosent/benchvise/internal/gate"
	"github.com/torosent/benchvise/internal/metrics"
	"github.com/torosent/benchvise/internal/output"
	"github.com/torosent/benchvise/internal/target"
	"github.com/torosent/benchvise/internal/telemetry"
	"github.com/torosent/benchvise/internal/threshold"
)

const progressInterval = time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	benchmark, err := target.NewHTTPBenchmark(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := telemetry.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	var emitter telemetry.Emitter = telemetry.Nop{}
	if cfg.Tracing.Enabled() {
		emitter = telemetry.NewSpanEmitter(provider.Tracer())
	}

	collector := metrics.NewCollector()

	execGate := gate.Default
	if cfg.LockFile != "" {
		execGate = gate.New(gate.WithLockFile(cfg.LockFile))
	}

	eng := bench.New(bench.Options{
		RunID:         cfg.RunID,
		TestName:      cfg.Name,
		MaxIterations: cfg.Iterations,
		MaxDuration:   cfg.MaxTime,
		IterationRate: cfg.Rate,
		Emitter:       emitter,
		Collector:     collector,
		Gate:          execGate,
	})

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunConfig{
			RunID:      cfg.RunID,
			Name:       cfg.Name,
			TargetURL:  cfg.TargetURL,
			Method:     cfg.Method,
			Iterations: cfg.Iterations,
			MaxTime:    cfg.MaxTime,
			Rate:       cfg.Rate,
			Timeout:    cfg.Timeout,
			ConfigFile: cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, progressInterval, os.Stdout)
		progress.Start()
	}

	method := reflect.ValueOf(benchmark.Run)
	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(eng.Meter())}

	start := time.Now()
	result, runErr := eng.Run(ctx, method, callArgs)
	wall := time.Since(start)

	stats := collector.Stats(wall)
	report := output.Report{
		RunID:      cfg.RunID,
		Name:       cfg.Name,
		StopReason: result.StopReason.String(),
		Stats:      stats,
	}

	evaluator := threshold.NewEvaluator(thresholds)
	report.Thresholds = evaluator.Evaluate(stats)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, report)
	}

	if runErr != nil {
		return fmt.Errorf("benchmark failed: %w", runErr)
	}
	for _, tr := range report.Thresholds {
		if !tr.Pass {
			return fmt.Errorf("threshold not met: %s", tr.Threshold.Raw)
		}
	}
	return nil
}
