package output_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/torosent/benchvise/internal/metrics"
	"github.com/torosent/benchvise/internal/output"
	"github.com/torosent/benchvise/internal/threshold"
)

func sampleReport() output.Report {
	c := metrics.NewCollector()
	c.RecordIteration(10*time.Millisecond, nil)
	c.RecordIteration(20*time.Millisecond, nil)

	return output.Report{
		RunID:      "run-1",
		Name:       "GET http://localhost:8080/status",
		StopReason: "max_iterations",
		Stats:      c.Stats(time.Second),
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	output.PrintReport(&buf, sampleReport())

	out := buf.String()
	for _, want := range []string{
		"Benchmark Results",
		"Run ID:            run-1",
		"Iterations:        2",
		"Stop Reason:       max_iterations",
		"Iteration Time:",
		"P99:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReportThresholds(t *testing.T) {
	r := sampleReport()
	parsed, err := threshold.Parse("iteration_duration:p99 < 500")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r.Thresholds = threshold.NewEvaluator([]threshold.Threshold{parsed}).Evaluate(r.Stats)

	var buf bytes.Buffer
	output.PrintReport(&buf, r)

	if !strings.Contains(buf.String(), "Thresholds:") {
		t.Errorf("report missing threshold section:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "iteration_duration:p99 < 500") {
		t.Errorf("report missing threshold line:\n%s", buf.String())
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := output.PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	for _, field := range []string{"run_id", "name", "stop_reason", "stats"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON report", field)
		}
	}
	if parsed["stop_reason"] != "max_iterations" {
		t.Errorf("stop_reason = %v", parsed["stop_reason"])
	}
}

func TestProgressReporter(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordIteration(5*time.Millisecond, nil)

	var buf bytes.Buffer
	p := output.NewProgressReporter(c, 10*time.Millisecond, &buf)
	p.Start()
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	if !strings.Contains(buf.String(), "Iterations: 1") {
		t.Errorf("progress output missing iteration count: %q", buf.String())
	}
}

func TestProgressReporterStopIdempotent(t *testing.T) {
	c := metrics.NewCollector()
	p := output.NewProgressReporter(c, 10*time.Millisecond, nil)
	p.Start()
	p.Stop()
	p.Stop()
}
