package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config describes one benchmark session. The engine consumes these values;
// it never computes them.
type Config struct {
	RunID      string            `mapstructure:"run_id"`
	Name       string            `mapstructure:"name"`
	TargetURL  string            `mapstructure:"target"`
	Method     string            `mapstructure:"method"`
	Headers    map[string]string `mapstructure:"headers"`
	Body       string            `mapstructure:"body"`
	Assert     string            `mapstructure:"assert"`
	Iterations int               `mapstructure:"iterations"`
	MaxTime    time.Duration     `mapstructure:"max_time"`
	Rate       int               `mapstructure:"rate"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	LockFile   string            `mapstructure:"lock_file"`
	JSONOutput bool              `mapstructure:"json_output"`
	Dashboard  bool              `mapstructure:"dashboard"`
	Thresholds []string          `mapstructure:"thresholds"`
	Tracing    TracingConfig     `mapstructure:"tracing"`
	ConfigFile string            `mapstructure:"-"`
}

// TracingConfig controls the OTLP telemetry exporter.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether an OTLP endpoint is configured, directly or via
// the standard environment variable.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	}
	if c.Iterations < 1 {
		issues = append(issues, "iterations must be >= 1")
	}
	if c.MaxTime < 0 {
		issues = append(issues, "max_time must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if c.Assert != "" && !strings.Contains(c.Assert, "=") {
		issues = append(issues, "assert must be in path=value form")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}
