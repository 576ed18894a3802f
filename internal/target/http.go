// Package target provides ready-made benchmark bodies for the engine.
// The HTTP target measures one request per iteration, with request
// construction kept outside the measurement boundary.
package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/benchvise/internal/bench"
	"github.com/torosent/benchvise/internal/config"
)

// StatusError indicates a non-success HTTP status code.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// AssertError indicates a response body that failed the configured assertion.
type AssertError struct {
	Path string
	Want string
	Got  string
}

func (e *AssertError) Error() string {
	return fmt.Sprintf("assertion %s: want %q, got %q", e.Path, e.Want, e.Got)
}

// HTTPBenchmark issues one HTTP request per iteration and verifies the
// response. Only the round trip and body read fall inside the measured
// interval.
type HTTPBenchmark struct {
	client     *http.Client
	method     string
	target     string
	headers    http.Header
	body       []byte
	assertPath string
	assertWant string
}

// NewHTTPBenchmark builds an HTTP benchmark from configuration.
func NewHTTPBenchmark(cfg *config.Config) (*HTTPBenchmark, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", trimmedKey)
		}
		headers.Set(http.CanonicalHeaderKey(trimmedKey), value)
	}

	b := &HTTPBenchmark{
		client:  newClient(cfg.Timeout),
		method:  method,
		target:  target,
		headers: headers,
	}
	if cfg.Body != "" {
		b.body = []byte(cfg.Body)
	}

	if assert := strings.TrimSpace(cfg.Assert); assert != "" {
		path, want, ok := strings.Cut(assert, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assert %q (expected path=value)", assert)
		}
		b.assertPath = normalizeJSONPath(strings.TrimSpace(path))
		b.assertWant = strings.TrimSpace(want)
	}

	return b, nil
}

// Run executes a single measured iteration. The request is assembled before
// the boundary opens and verification happens after it closes, so the
// measured interval covers only the round trip and body read.
func (b *HTTPBenchmark) Run(ctx context.Context, m *bench.Meter) error {
	var reader io.Reader
	if len(b.body) > 0 {
		reader = bytes.NewReader(b.body)
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		return err
	}
	for key, values := range b.headers {
		for _, val := range values {
			req.Header.Add(key, val)
		}
	}
	if len(b.body) > 0 {
		req.ContentLength = int64(len(b.body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b.body)), nil
		}
	}

	i := m.Iteration()
	if err := m.StartMeasurement(i); err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		m.StopMeasurement(i)
		return err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	m.StopMeasurement(i)

	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if b.assertPath != "" {
		got := gjson.GetBytes(body, b.assertPath)
		if !got.Exists() || got.String() != b.assertWant {
			return &AssertError{Path: b.assertPath, Want: b.assertWant, Got: got.String()}
		}
	}

	return nil
}

// normalizeJSONPath accepts $.field and field syntax, mapping a bare "$"
// to the whole document.
func normalizeJSONPath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			return "@this"
		}
	}
	return path
}

func newClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
