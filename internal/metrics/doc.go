// Package metrics provides aggregate timing for benchmark runs.
//
// The [Collector] is the engine's aggregate timer collaborator: every
// iteration's measured interval is recorded into an HDR histogram, and the
// running sum of intervals is the total the engine reports to its caller.
// [Stats] exposes percentiles, counts, and a per-error-type breakdown for
// reporting and threshold evaluation.
package metrics
