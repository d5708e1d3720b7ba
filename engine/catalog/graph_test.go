package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type fakeRows struct {
	records []*neo4j.Record
	pos     int
}

func (r *fakeRows) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Record() *neo4j.Record { return r.records[r.pos-1] }

type fakeRunner struct {
	lastCypher string
	lastParams map[string]any
	rows       *fakeRows
	err        error
	closed     bool
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (repo.Rows, error) {
	f.lastCypher = cypher
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeRunner) Close(context.Context) error {
	f.closed = true
	return nil
}

func partNode(pn, desc string) *neo4j.Record {
	return &neo4j.Record{
		Keys: []string{"n"},
		Values: []any{dbtype.Node{Props: map[string]any{
			"part_number": pn,
			"description": desc,
			"brand":       "Carrier",
			"attr_hp":     "1/3",
		}}},
	}
}

func newGraph(runner *fakeRunner) *PartGraph {
	return NewWithSession(func(context.Context) repo.Runner { return runner })
}

func TestSavePartMerges(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	g := newGraph(runner)

	err := g.SavePart(context.Background(), parts.Part{
		PartNumber:  "hc41ae117",
		Description: "Carrier blower motor",
		Attributes:  map[string]string{"hp": "1/3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runner.lastCypher, "MERGE (n:Part {part_number: $id})") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if runner.lastParams["id"] != "HC41AE117" {
		t.Fatalf("params=%v", runner.lastParams)
	}
	props := runner.lastParams["props"].(map[string]any)
	if props["attr_hp"] != "1/3" {
		t.Fatalf("props=%v", props)
	}
	if !runner.closed {
		t.Fatal("session not closed")
	}
}

func TestSaveReplacementEdge(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	g := newGraph(runner)

	err := g.SaveReplacement(context.Background(), parts.Replacement{
		OldPartNumber: "hc41ae117",
		NewPartNumber: "HC41AE118",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runner.lastCypher, "MERGE (new)-[:REPLACES]->(old)") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if runner.lastParams["old"] != "HC41AE117" || runner.lastParams["new"] != "HC41AE118" {
		t.Fatalf("params=%v", runner.lastParams)
	}
}

func TestSaveCompatibilityEdge(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	g := newGraph(runner)

	if err := g.SaveCompatibility(context.Background(), "A100", "B200"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runner.lastCypher, "[:COMPATIBLE_WITH]") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
}

func TestReplacementsTraversesChain(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{records: []*neo4j.Record{
		partNode("HC41AE118", "replacement motor"),
		partNode("HC41AE119", "latest motor"),
	}}}
	g := newGraph(runner)

	got, err := g.Replacements(context.Background(), "hc41ae117")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].PartNumber != "HC41AE118" || got[1].PartNumber != "HC41AE119" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Attributes["hp"] != "1/3" {
		t.Fatalf("attributes=%v", got[0].Attributes)
	}
	if !strings.Contains(runner.lastCypher, "[:REPLACES*1..") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if runner.lastParams["pn"] != "HC41AE117" {
		t.Fatalf("params=%v", runner.lastParams)
	}
}

// Neo4j only allows ORDER BY on projected expressions, so the chain query
// must sort on an alias introduced by WITH, never on the path variable.
func TestReplacementsOrdersByProjectedAlias(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	g := newGraph(runner)

	if _, err := g.Replacements(context.Background(), "HC41AE117"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runner.lastCypher, "min(length(path)) AS hops") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if !strings.Contains(runner.lastCypher, "ORDER BY hops") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if strings.Contains(runner.lastCypher, "ORDER BY length(path)") {
		t.Fatalf("cypher sorts on an unprojected expression: %q", runner.lastCypher)
	}
}

func TestReplacementsNone(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	g := newGraph(runner)

	got, err := g.Replacements(context.Background(), "HC41AE117")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestCompatibleWith(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{records: []*neo4j.Record{
		partNode("B13400-251S", "Goodman condenser fan motor"),
	}}}
	g := newGraph(runner)

	got, err := g.CompatibleWith(context.Background(), "HC41AE117")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PartNumber != "B13400-251S" {
		t.Fatalf("got %+v", got)
	}
}

func TestGraphRunError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("bolt down")}
	g := newGraph(runner)

	if _, err := g.Replacements(context.Background(), "X"); err == nil {
		t.Fatal("expected error")
	}
	if err := g.SaveCompatibility(context.Background(), "A", "B"); err == nil {
		t.Fatal("expected error")
	}
}
