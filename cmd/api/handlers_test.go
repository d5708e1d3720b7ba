package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kelleherhvac/partfinder/engine/match"
	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/pkg/mid"
)

type stubMatcher struct {
	lastDescription string
	lastTopK        int
	lastFilters     map[string]string
	status          string
	results         []parts.MatchResult
	err             error
}

func (s *stubMatcher) Find(_ context.Context, description string, topK int, filters map[string]string) (string, []parts.MatchResult, error) {
	s.lastDescription = description
	s.lastTopK = topK
	s.lastFilters = filters
	return s.status, s.results, s.err
}

type stubGraph struct {
	replacements []parts.Part
	err          error
}

func (s *stubGraph) Replacements(context.Context, string) ([]parts.Part, error) {
	return s.replacements, s.err
}

func testApp(m matcher, graph graphReader, initErr error) *app {
	return newApp(m, graph, initErr, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)), nil)
}

func doMatch(t *testing.T, a *app, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)
	return rec
}

func TestMatchSuccess(t *testing.T) {
	m := &stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{
		{PartNumber: "HC41AE117", Description: "Carrier blower motor", Score: 0.9123},
		{PartNumber: "B13400-251S", Description: "Goodman condenser fan motor", Score: 0.85},
	}}
	a := testApp(m, nil, nil)

	rec := doMatch(t, a, `{"description": "blower motor", "top_k": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	if m.lastDescription != "blower motor" || m.lastTopK != 2 {
		t.Fatalf("matcher got description=%q topK=%d", m.lastDescription, m.lastTopK)
	}

	var resp parts.MatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.QueryDescription != "blower motor" {
		t.Fatalf("query_description=%q", resp.QueryDescription)
	}
	if resp.Status != "Success" {
		t.Fatalf("status=%q", resp.Status)
	}
	if len(resp.Matches) != 2 || resp.Matches[0].PartNumber != "HC41AE117" {
		t.Fatalf("matches=%+v", resp.Matches)
	}
}

func TestMatchDefaultsTopKWhenAbsent(t *testing.T) {
	m := &stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{}}
	a := testApp(m, nil, nil)

	doMatch(t, a, `{"description": "igniter"}`)
	if m.lastTopK != 3 {
		t.Fatalf("topK=%d, want default 3", m.lastTopK)
	}
}

func TestMatchPassesZeroTopKThrough(t *testing.T) {
	m := &stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{}}
	a := testApp(m, nil, nil)

	doMatch(t, a, `{"description": "igniter", "top_k": 0}`)
	if m.lastTopK != 0 {
		t.Fatalf("topK=%d, want explicit 0 untouched", m.lastTopK)
	}
}

func TestMatchMissingDescription(t *testing.T) {
	a := testApp(&stubMatcher{}, nil, nil)

	for _, body := range []string{`{}`, `{"top_k": 3}`, `not json`, ``} {
		rec := doMatch(t, a, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: code=%d", body, rec.Code)
		}
		if rec.Body.String() != `{"error": "Missing 'description' in request body."}` {
			t.Fatalf("body %q: response=%s", body, rec.Body)
		}
	}
}

func TestMatchEmptyDescriptionIsAccepted(t *testing.T) {
	m := &stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{}}
	a := testApp(m, nil, nil)

	rec := doMatch(t, a, `{"description": ""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	if m.lastDescription != "" {
		t.Fatalf("description=%q", m.lastDescription)
	}
}

func TestMatchDegradedFixedResponse(t *testing.T) {
	a := testApp(nil, nil, errors.New("QDRANT_API_KEY is not set"))

	for _, body := range []string{`{"description": "blower motor"}`, `{}`, `garbage`} {
		rec := doMatch(t, a, body)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("body %q: code=%d", body, rec.Code)
		}
		if rec.Body.String() != `{"error": "Service initialization failed. Check server logs."}` {
			t.Fatalf("body %q: response=%s", body, rec.Body)
		}
	}
}

func TestMatchSearchError(t *testing.T) {
	a := testApp(&stubMatcher{err: errors.New("index down")}, nil, nil)

	rec := doMatch(t, a, `{"description": "blower motor"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
	if rec.Body.String() != `{"error": "An unexpected search error occurred: index down"}` {
		t.Fatalf("response=%s", rec.Body)
	}
}

func TestMatchNotInitializedStatusPassesThrough(t *testing.T) {
	m := &stubMatcher{status: match.StatusNotInitialized, results: []parts.MatchResult{}}
	a := testApp(m, nil, nil)

	rec := doMatch(t, a, `{"description": "blower motor"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var resp parts.MatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "Service not initialized." {
		t.Fatalf("status=%q", resp.Status)
	}
	if resp.Matches == nil || len(resp.Matches) != 0 {
		t.Fatalf("matches=%v", resp.Matches)
	}
}

func TestMatchForwardsFilters(t *testing.T) {
	m := &stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{}}
	a := testApp(m, nil, nil)

	doMatch(t, a, `{"description": "motor", "filters": {"brand": "Carrier"}}`)
	if m.lastFilters["brand"] != "Carrier" {
		t.Fatalf("filters=%v", m.lastFilters)
	}
}

func TestMatchCORSHeader(t *testing.T) {
	a := testApp(&stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{}}, nil, nil)
	handler := mid.Chain(a.routes(), mid.CORS(""))

	req := httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{"description": "x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}
}

func TestHealth(t *testing.T) {
	a := testApp(&stubMatcher{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}

	degraded := testApp(nil, nil, errors.New("boom"))
	rec = httptest.NewRecorder()
	degraded.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestReplacements(t *testing.T) {
	graph := &stubGraph{replacements: []parts.Part{
		{PartNumber: "HC41AE118", Description: "replacement motor"},
	}}
	a := testApp(&stubMatcher{}, graph, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/parts/hc41ae117/replacements", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	var resp struct {
		PartNumber   string       `json:"part_number"`
		Replacements []parts.Part `json:"replacements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PartNumber != "HC41AE117" {
		t.Fatalf("part_number=%q", resp.PartNumber)
	}
	if len(resp.Replacements) != 1 || resp.Replacements[0].PartNumber != "HC41AE118" {
		t.Fatalf("replacements=%+v", resp.Replacements)
	}
}

func TestReplacementsWithoutGraph(t *testing.T) {
	a := testApp(&stubMatcher{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/parts/X/replacements", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := testApp(&stubMatcher{status: match.StatusSuccess, results: []parts.MatchResult{}}, nil, nil)
	doMatch(t, a, `{"description": "x"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "partfinder_match_requests_total 1") {
		t.Fatalf("metrics=%s", rec.Body)
	}
}
