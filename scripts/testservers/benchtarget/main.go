// Command benchtarget runs a small HTTP server with predictable endpoints
// for exercising benchvise locally.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

func main() {
	port := flag.Int("port", 8080, "Listening port")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", handleStatus)
	mux.HandleFunc("/slow", handleSlow)
	mux.HandleFunc("/flaky", handleFlaky)
	mux.HandleFunc("/echo", handleEcho)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "path": r.URL.Path})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("benchtarget listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// handleStatus returns a fixed payload suitable for gjson assertions
// such as --assert 'status=healthy'.
func handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UnixNano(),
	})
}

// handleSlow sleeps for the requested delay before responding, defaulting
// to 50ms. Use ?delay_ms=N to shape the latency distribution.
func handleSlow(w http.ResponseWriter, r *http.Request) {
	delay := 50 * time.Millisecond
	if raw := r.URL.Query().Get("delay_ms"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			delay = time.Duration(ms) * time.Millisecond
		}
	}
	time.Sleep(delay)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"delay_ms": delay.Milliseconds(),
	})
}

// handleFlaky fails a fraction of requests. Use ?fail_rate=0.2 for a 20%
// failure rate; the default is 10%.
func handleFlaky(w http.ResponseWriter, r *http.Request) {
	failRate := 0.1
	if raw := r.URL.Query().Get("fail_rate"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 && f <= 1 {
			failRate = f
		}
	}
	if rand.Float64() < failRate {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"status": "error"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	body := ""
	if r.Body != nil {
		bodyBytes, _ := io.ReadAll(r.Body)
		body = string(bodyBytes)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"method":       r.Method,
		"path":         r.URL.Path,
		"query":        r.URL.RawQuery,
		"headers":      r.Header,
		"body":         body,
		"content_type": r.Header.Get("Content-Type"),
		"timestamp":    time.Now().UnixNano(),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
