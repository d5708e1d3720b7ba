// Package ingest turns raw catalog parts into enriched, embedded vector
// records. Parts arrive on the catalog bus or from feed pollers, pass
// through validate/enrich/embed/store stages, and land in the vector index
// and the part graph.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/engine/semantic"
	"github.com/kelleherhvac/partfinder/pkg/fn"
	"github.com/kelleherhvac/partfinder/pkg/partnlp"
)

// Bus subjects for the catalog ingest path.
const (
	SubjectParts = "catalog.parts"
	SubjectDLQ   = "catalog.parts.dlq"
	QueueGroup   = "ingest-workers"
)

// MaxRetries bounds embed and store attempts per part before the part is
// dead-lettered.
const MaxRetries = 3

// Embedder turns a searchable text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists vector records to the index.
type Store interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// GraphWriter mirrors parts into the relationship graph.
type GraphWriter interface {
	SavePart(ctx context.Context, p parts.Part) error
}

// DeadLetter describes a part that exhausted the pipeline.
type DeadLetter struct {
	Part     parts.Part `json:"part"`
	Error    string     `json:"error"`
	FailedAt time.Time  `json:"failed_at"`
}

// DLQFunc publishes a dead letter. Usually backed by natsutil.Publish on
// SubjectDLQ.
type DLQFunc func(ctx context.Context, dl DeadLetter) error

// Pipeline runs catalog parts through validation, enrichment, embedding
// and storage.
type Pipeline struct {
	run    fn.Stage[parts.Part, parts.Part]
	dlq    DLQFunc
	logger *slog.Logger
}

// New composes the ingest pipeline. graph may be nil when no Neo4j is
// configured; dlq may be nil to drop dead letters after logging.
func New(embed Embedder, store Store, graph GraphWriter, dlq DLQFunc, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	retry := fn.RetryOpts{
		MaxAttempts: MaxRetries,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Jitter:      true,
	}

	stage := fn.Then(
		fn.TracedStage("ingest.validate", validateStage()),
		fn.Then(
			fn.TracedStage("ingest.enrich", enrichStage()),
			fn.RetryStage(retry, fn.TracedStage("ingest.store", storeStage(embed, store, graph, logger))),
		),
	)

	return &Pipeline{run: stage, dlq: dlq, logger: logger}
}

// Ingest runs one part through the pipeline. Terminal failures are
// dead-lettered and returned.
func (p *Pipeline) Ingest(ctx context.Context, part parts.Part) error {
	result := p.run(ctx, part)
	if result.IsOk() {
		return nil
	}

	_, err := result.Unwrap()
	p.logger.Error("part ingest failed", "part_number", part.PartNumber, "error", err)
	if p.dlq != nil {
		dl := DeadLetter{Part: part, Error: err.Error(), FailedAt: time.Now().UTC()}
		if dlqErr := p.dlq(ctx, dl); dlqErr != nil {
			p.logger.Error("dead letter publish failed", "part_number", part.PartNumber, "error", dlqErr)
		}
	}
	return err
}

// batchWorkers bounds concurrent parts per batch; the embedder is the
// bottleneck and serializes requests anyway.
const batchWorkers = 4

// IngestBatch runs each part independently with bounded concurrency and
// returns the count stored. Failed parts are dead-lettered by Ingest and
// do not stop the rest of the batch.
func (p *Pipeline) IngestBatch(ctx context.Context, batch []parts.Part) int {
	results := fn.ParMapResult(batch, batchWorkers, func(part parts.Part) fn.Result[parts.Part] {
		if err := p.Ingest(ctx, part); err != nil {
			return fn.Err[parts.Part](err)
		}
		return fn.Ok(part)
	})

	stored := 0
	for _, r := range results {
		if r.IsOk() {
			stored++
		}
	}
	return stored
}

// validateStage normalizes the part number and rejects malformed records.
func validateStage() fn.Stage[parts.Part, parts.Part] {
	return func(_ context.Context, p parts.Part) fn.Result[parts.Part] {
		if err := parts.ValidatePart(p); err != nil {
			return fn.Err[parts.Part](fmt.Errorf("ingest: validate: %w", err))
		}
		p.PartNumber = parts.NormalizePartNumber(p.PartNumber)
		return fn.Ok(p)
	}
}

// enrichStage fills in brand, category and rating attributes the supplier
// feed left blank, parsed from the description text. Supplier-provided
// values always win.
func enrichStage() fn.Stage[parts.Part, parts.Part] {
	return fn.MapStage(func(p parts.Part) parts.Part {
		extracted := partnlp.Extract(p.Description)

		if p.Brand == "" {
			p.Brand = extracted["brand"]
		}
		delete(extracted, "brand")

		if p.Category == "" {
			p.Category = partnlp.GuessCategory(p.Description)
		}

		for k, v := range extracted {
			if p.Attributes == nil {
				p.Attributes = make(map[string]string)
			}
			if _, exists := p.Attributes[k]; !exists {
				p.Attributes[k] = v
			}
		}
		return p
	})
}

// storeStage embeds the part and writes it to the vector index, then
// mirrors it into the graph. A graph failure is logged but does not fail
// the part; the vector index is the source of truth for matching.
func storeStage(embed Embedder, store Store, graph GraphWriter, logger *slog.Logger) fn.Stage[parts.Part, parts.Part] {
	return func(ctx context.Context, p parts.Part) fn.Result[parts.Part] {
		vector, err := embed.Embed(ctx, searchableText(p))
		if err != nil {
			return fn.Err[parts.Part](fmt.Errorf("ingest: embed %s: %w", p.PartNumber, err))
		}

		rec := semantic.VectorRecord{
			ID:        semantic.PointID(p.PartNumber),
			Embedding: vector,
			Payload:   payload(p),
		}
		if err := store.Upsert(ctx, []semantic.VectorRecord{rec}); err != nil {
			return fn.Err[parts.Part](fmt.Errorf("ingest: store %s: %w", p.PartNumber, err))
		}

		if graph != nil {
			if err := graph.SavePart(ctx, p); err != nil {
				logger.Warn("graph mirror failed", "part_number", p.PartNumber, "error", err)
			}
		}
		return fn.Ok(p)
	}
}

// searchableText is the embedding input: description first, then the
// structured fields in a stable order so re-ingesting an unchanged part
// produces the same vector.
func searchableText(p parts.Part) string {
	var sb strings.Builder
	sb.WriteString(p.Description)
	if p.Brand != "" {
		sb.WriteString(" brand:")
		sb.WriteString(p.Brand)
	}
	if p.Category != "" {
		sb.WriteString(" category:")
		sb.WriteString(strings.ReplaceAll(p.Category, "_", " "))
	}

	keys := make([]string, 0, len(p.Attributes))
	for k := range p.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString(":")
		sb.WriteString(p.Attributes[k])
	}
	return sb.String()
}

func payload(p parts.Part) map[string]any {
	out := map[string]any{
		"part_number": p.PartNumber,
		"description": p.Description,
	}
	if p.Category != "" {
		out["category"] = p.Category
	}
	if p.Brand != "" {
		out["brand"] = p.Brand
	}
	for k, v := range p.Attributes {
		out[k] = v
	}
	return out
}
