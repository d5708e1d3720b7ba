// Package catalog provides the Neo4j part relationship graph: which parts
// replace which, and which are compatible. It supplements vector matching;
// graph failures must never break the match path.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// maxChainDepth bounds replacement chain traversal; supersession chains in
// practice are a handful of hops.
const maxChainDepth = 6

// PartGraph provides graph operations over catalog parts.
type PartGraph struct {
	session repo.SessionFunc
	parts   *repo.Neo4jRepo[parts.Part, string]
}

// New creates a PartGraph backed by the given driver.
func New(driver neo4j.DriverWithContext) *PartGraph {
	return NewWithSession(repo.NewSessionFunc(driver))
}

// NewWithSession creates a PartGraph with a custom session opener, for tests.
func NewWithSession(session repo.SessionFunc) *PartGraph {
	return &PartGraph{
		session: session,
		parts:   repo.NewNeo4jRepo[parts.Part, string](session, "Part", "part_number", partToMap, partFromRecord),
	}
}

// Part returns a part node by part number.
func (g *PartGraph) Part(ctx context.Context, partNumber string) (parts.Part, error) {
	return g.parts.Get(ctx, parts.NormalizePartNumber(partNumber))
}

// SavePart creates or updates a part node.
func (g *PartGraph) SavePart(ctx context.Context, p parts.Part) error {
	p.PartNumber = parts.NormalizePartNumber(p.PartNumber)
	if err := g.parts.Upsert(ctx, p); err != nil {
		return fmt.Errorf("catalog: save part %s: %w", p.PartNumber, err)
	}
	return nil
}

// SaveReplacement records that newPN supersedes oldPN.
func (g *PartGraph) SaveReplacement(ctx context.Context, r parts.Replacement) error {
	sess := g.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (old:Part {part_number: $old}), (new:Part {part_number: $new})
		 MERGE (new)-[:REPLACES]->(old)`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"old": parts.NormalizePartNumber(r.OldPartNumber),
		"new": parts.NormalizePartNumber(r.NewPartNumber),
	})
	if err != nil {
		return fmt.Errorf("catalog: save replacement %s -> %s: %w", r.NewPartNumber, r.OldPartNumber, err)
	}
	return nil
}

// SaveCompatibility records that two parts are interchangeable.
func (g *PartGraph) SaveCompatibility(ctx context.Context, a, b string) error {
	sess := g.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (a:Part {part_number: $a}), (b:Part {part_number: $b})
		 MERGE (a)-[:COMPATIBLE_WITH]->(b)`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"a": parts.NormalizePartNumber(a),
		"b": parts.NormalizePartNumber(b),
	})
	if err != nil {
		return fmt.Errorf("catalog: save compatibility %s <-> %s: %w", a, b, err)
	}
	return nil
}

// Replacements returns the parts that supersede the given part, directly or
// transitively, nearest first.
func (g *PartGraph) Replacements(ctx context.Context, partNumber string) ([]parts.Part, error) {
	sess := g.session(ctx)
	defer sess.Close(ctx)

	// Aggregating on min(length(path)) both dedupes parts reachable via
	// several chains and gives ORDER BY a projected alias to sort on;
	// sorting on the bare path variable is rejected by Neo4j.
	cypher := fmt.Sprintf(
		`MATCH path = (old:Part {part_number: $pn})<-[:REPLACES*1..%d]-(n:Part)
		 WITH n, min(length(path)) AS hops
		 ORDER BY hops
		 RETURN n`, maxChainDepth)
	rows, err := sess.Run(ctx, cypher, map[string]any{"pn": parts.NormalizePartNumber(partNumber)})
	if err != nil {
		return nil, fmt.Errorf("catalog: replacements for %s: %w", partNumber, err)
	}
	return collectParts(ctx, rows)
}

// CompatibleWith returns parts recorded as interchangeable with the given one.
func (g *PartGraph) CompatibleWith(ctx context.Context, partNumber string) ([]parts.Part, error) {
	sess := g.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (p:Part {part_number: $pn})-[:COMPATIBLE_WITH]-(n:Part) RETURN DISTINCT n`
	rows, err := sess.Run(ctx, cypher, map[string]any{"pn": parts.NormalizePartNumber(partNumber)})
	if err != nil {
		return nil, fmt.Errorf("catalog: compatible with %s: %w", partNumber, err)
	}
	return collectParts(ctx, rows)
}

func collectParts(ctx context.Context, rows repo.Rows) ([]parts.Part, error) {
	var out []parts.Part
	for rows.Next(ctx) {
		p, err := partFromRecord(rows.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func partToMap(p parts.Part) map[string]any {
	m := map[string]any{
		"part_number": p.PartNumber,
		"description": p.Description,
		"category":    p.Category,
		"brand":       p.Brand,
	}
	for k, v := range p.Attributes {
		m["attr_"+k] = v
	}
	return m
}

func partFromRecord(rec *neo4j.Record) (parts.Part, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return parts.Part{}, errors.New("catalog: record has no node")
	}
	node, ok := raw.(dbtype.Node)
	if !ok {
		return parts.Part{}, fmt.Errorf("catalog: unexpected record value %T", raw)
	}

	p := parts.Part{}
	for k, v := range node.Props {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "part_number":
			p.PartNumber = s
		case "description":
			p.Description = s
		case "category":
			p.Category = s
		case "brand":
			p.Brand = s
		default:
			if len(k) > 5 && k[:5] == "attr_" {
				if p.Attributes == nil {
					p.Attributes = make(map[string]string)
				}
				p.Attributes[k[5:]] = s
			}
		}
	}
	return p, nil
}
