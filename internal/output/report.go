package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/torosent/benchvise/internal/metrics"
	"github.com/torosent/benchvise/internal/threshold"
)

// Report bundles everything the final summary needs: run identity, the
// aggregated stats, why the run stopped, and any threshold outcomes.
type Report struct {
	RunID      string             `json:"run_id"`
	Name       string             `json:"name"`
	StopReason string             `json:"stop_reason"`
	Stats      metrics.Stats      `json:"stats"`
	Thresholds []threshold.Result `json:"-"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	if r.Name != "" {
		fmt.Fprintf(w, "Benchmark:         %s\n", r.Name)
	}
	fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	fmt.Fprintf(w, "Iterations:        %d\n", r.Stats.Iterations)
	fmt.Fprintf(w, "Successful:        %d\n", r.Stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", r.Stats.Failures)
	fmt.Fprintf(w, "Stop Reason:       %s\n", r.StopReason)
	fmt.Fprintf(w, "Measured Time:     %s\n", r.Stats.Measured)
	fmt.Fprintf(w, "Wall Time:         %s\n", r.Stats.Duration)
	fmt.Fprintf(w, "Iterations/sec:    %.2f\n", r.Stats.IterationsPerSec)
	fmt.Fprintln(w, "\nIteration Time:")
	fmt.Fprintf(w, "  Min:             %s\n", r.Stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", r.Stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", r.Stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", r.Stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", r.Stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", r.Stats.P99Latency)

	if len(r.Stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		names := make([]string, 0, len(r.Stats.Errors))
		for name := range r.Stats.Errors {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return r.Stats.Errors[names[i]] > r.Stats.Errors[names[j]]
		})
		for _, name := range names {
			fmt.Fprintf(w, "  - %s: %d\n", metrics.FriendlyErrorName(name), r.Stats.Errors[name])
		}
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, result := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", result.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	type thresholdJSON struct {
		Threshold string  `json:"threshold"`
		Actual    float64 `json:"actual"`
		Pass      bool    `json:"pass"`
	}
	payload := struct {
		Report
		Thresholds []thresholdJSON `json:"thresholds,omitempty"`
	}{Report: r}
	for _, result := range r.Thresholds {
		payload.Thresholds = append(payload.Thresholds, thresholdJSON{
			Threshold: result.Threshold.Raw,
			Actual:    result.Actual,
			Pass:      result.Pass,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
