// Package health serves the tidelink daemon's probe endpoints.
//
//   - /healthz: liveness; answers 200 whenever the process serves HTTP.
//   - /readyz: readiness; answers 200 only while every registered
//     [Checker] passes, 503 otherwise.
//
// Readiness checks run concurrently, each under its own timeout, and the
// JSON body reports every check's outcome and probe latency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil while the
// dependency can serve and must respect context cancellation.
type Checker struct {
	// Name keys the check in the JSON response (e.g. "nodes", "storage").
	Name string

	Check func(ctx context.Context) error
}

// checkResult is one check's entry in the readiness response.
type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// response is the JSON body of both probe endpoints.
type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker set is fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating the given checkers on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200: a process that reached this handler is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz probes every checker concurrently and answers 503 unless all of
// them pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]checkResult, len(h.checkers))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(r.Context())
	for _, c := range h.checkers {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(probeCtx)

			entry := checkResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				entry.Status = "fail"
				entry.Error = err.Error()
			}
			mu.Lock()
			results[c.Name] = entry
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := response{Status: "ok", Checks: results}
	code := http.StatusOK
	for _, entry := range results {
		if entry.Status != "ok" {
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, res)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
