package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kelleherhvac/partfinder/engine/match"
	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/pkg/metrics"
)

// Wire bodies for the error cases. Clients parse these verbatim; do not
// reformat them.
const (
	bodyMissingDescription = `{"error": "Missing 'description' in request body."}`
	bodyInitFailed         = `{"error": "Service initialization failed. Check server logs."}`
)

// matcher is what the match handler needs from the matching service.
type matcher interface {
	Find(ctx context.Context, description string, topK int, filters map[string]string) (string, []parts.MatchResult, error)
}

// graphReader is what the replacements handler needs from the part graph.
type graphReader interface {
	Replacements(ctx context.Context, partNumber string) ([]parts.Part, error)
}

// app holds the API server's handler dependencies. A non-nil initErr marks
// the degraded state: the process keeps serving, but every match request
// gets a fixed 500 so operators notice without the service flapping.
type app struct {
	matcher matcher
	graph   graphReader
	initErr error
	logger  *slog.Logger

	reg           *metrics.Registry
	matchRequests *metrics.Counter
	matchFailures *metrics.Counter
	matchDegraded *metrics.Counter
	matchLatency  *metrics.Histogram
}

func newApp(m matcher, graph graphReader, initErr error, logger *slog.Logger, reg *metrics.Registry) *app {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &app{
		matcher: m,
		graph:   graph,
		initErr: initErr,
		logger:  logger,
		reg:     reg,
		matchRequests: reg.Counter("partfinder_match_requests_total", "Match requests received."),
		matchFailures: reg.Counter("partfinder_match_failures_total", "Match requests that ended in a search error."),
		matchDegraded: reg.Counter("partfinder_match_degraded_total", "Match requests rejected while degraded."),
		matchLatency:  reg.Histogram("partfinder_match_duration_seconds", "Match request duration.", nil),
	}
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/match", a.handleMatch)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/parts/{part}/replacements", a.handleReplacements)
	mux.Handle("GET /metrics", a.reg.Handler())
	return mux
}

// handleMatch serves the part match endpoint. The degraded check comes
// before body parsing: a degraded process answers every match request with
// the same 500, whatever the payload.
func (a *app) handleMatch(w http.ResponseWriter, r *http.Request) {
	a.matchRequests.Inc()
	started := time.Now()
	defer a.matchLatency.Since(started)

	if a.initErr != nil {
		a.matchDegraded.Inc()
		writeRaw(w, http.StatusInternalServerError, bodyInitFailed)
		return
	}

	var q parts.MatchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil || q.Description == nil {
		writeRaw(w, http.StatusBadRequest, bodyMissingDescription)
		return
	}

	topK := match.DefaultTopK
	if q.TopK != nil {
		topK = *q.TopK
	}

	status, results, err := a.matcher.Find(r.Context(), *q.Description, topK, q.Filters)
	if err != nil {
		a.matchFailures.Inc()
		a.logger.Error("match failed", "error", err)
		writeRaw(w, http.StatusInternalServerError, searchErrorBody(err))
		return
	}

	writeJSON(w, http.StatusOK, parts.MatchResponse{
		QueryDescription: *q.Description,
		Status:           status,
		Matches:          results,
	})
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if a.initErr != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": a.initErr.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) handleReplacements(w http.ResponseWriter, r *http.Request) {
	if a.graph == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "part graph not configured"})
		return
	}

	partNumber := r.PathValue("part")
	replacements, err := a.graph.Replacements(r.Context(), partNumber)
	if err != nil {
		a.logger.Error("replacements lookup failed", "part_number", partNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "replacement lookup failed"})
		return
	}
	if replacements == nil {
		replacements = []parts.Part{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"part_number":  parts.NormalizePartNumber(partNumber),
		"replacements": replacements,
	})
}

// searchErrorBody wraps an error message into the search failure body,
// JSON-escaping the message.
func searchErrorBody(err error) string {
	msg, _ := json.Marshal("An unexpected search error occurred: " + err.Error())
	return fmt.Sprintf(`{"error": %s}`, msg)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
