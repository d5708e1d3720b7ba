// Package match implements the part matching service: embed a technician's
// free-text description, query the vector index for the nearest parts, and
// shape the hits into ranked results.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/engine/semantic"
)

// Status labels returned alongside match results.
const (
	StatusSuccess        = "Success"
	StatusNotInitialized = "Service not initialized."
)

// DefaultTopK is used when a request omits top_k entirely. A caller-supplied
// zero or negative value is passed through to the index untouched.
const DefaultTopK = 3

// Embedder turns one text into one fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts the vector index similarity query.
type Searcher interface {
	SearchFiltered(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]semantic.SearchResult, error)
}

// Options configures the matching service.
type Options struct {
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{SearchTimeout: 10 * time.Second}
}

// Service performs part matching against the vector index.
type Service struct {
	embed  Embedder
	search Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a matching Service.
func New(embed Embedder, search Searcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embed: embed, search: search, opts: opts, logger: logger}
}

// Find embeds the description and returns up to topK parts in the index's
// relevance order. The description is passed to the embedder as-is, empty
// strings included. Results carry scores rounded to 4 decimal places. No
// local re-ranking, deduplication, or filtering is performed; the optional
// filters map is forwarded to the index for server-side payload matching.
func (s *Service) Find(ctx context.Context, description string, topK int, filters map[string]string) (string, []parts.MatchResult, error) {
	if s.embed == nil || s.search == nil {
		return StatusNotInitialized, []parts.MatchResult{}, nil
	}

	vector, err := s.embed.Embed(ctx, description)
	if err != nil {
		return "", nil, fmt.Errorf("match: embed query: %w", err)
	}

	searchCtx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}

	hits, err := s.search.SearchFiltered(searchCtx, vector, topK, filters)
	if err != nil {
		return "", nil, fmt.Errorf("match: index query: %w", err)
	}
	s.logger.Info("part match done", "description_len", len(description), "top_k", topK, "hits", len(hits))

	results := make([]parts.MatchResult, len(hits))
	for i, h := range hits {
		results[i] = parts.MatchResult{
			PartNumber:  h.PartNumber,
			Description: h.Description,
			Score:       round4(float64(h.Score)),
		}
	}
	return StatusSuccess, results, nil
}

// round4 rounds to 4 decimal places, matching the score precision promised
// to callers.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
