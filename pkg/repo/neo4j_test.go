package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type thing struct {
	ID   string
	Name string
}

func thingToMap(t thing) map[string]any {
	return map[string]any{"id": t.ID, "name": t.Name}
}

func thingFromRecord(rec *neo4j.Record) (thing, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return thing{}, errors.New("no node in record")
	}
	node, ok := raw.(dbtype.Node)
	if !ok {
		return thing{}, fmt.Errorf("unexpected record value %T", raw)
	}
	out := thing{}
	if v, ok := node.Props["id"].(string); ok {
		out.ID = v
	}
	if v, ok := node.Props["name"].(string); ok {
		out.Name = v
	}
	return out, nil
}

// --- Fake runner ---

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

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (Rows, error) {
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

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Props: props}},
	}
}

func newRepo(runner *fakeRunner) *Neo4jRepo[thing, string] {
	session := func(context.Context) Runner { return runner }
	return NewNeo4jRepo[thing, string](session, "Thing", "id", thingToMap, thingFromRecord)
}

// --- Tests ---

func TestGet(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": "t1", "name": "first"}),
	}}}
	r := newRepo(runner)

	got, err := r.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "first" {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(runner.lastCypher, "MATCH (n:Thing {id: $id})") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if !runner.closed {
		t.Fatal("session not closed")
	}
}

func TestGetNotFound(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	r := newRepo(runner)
	if _, err := r.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestList(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": "a"}),
		nodeRecord(map[string]any{"id": "b"}),
	}}}
	r := newRepo(runner)

	items, err := r.List(context.Background(), ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].ID != "b" {
		t.Fatalf("got %+v", items)
	}
	if runner.lastParams["limit"] != 10 {
		t.Fatalf("params=%v", runner.lastParams)
	}
}

func TestListDefaultLimit(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	r := newRepo(runner)
	if _, err := r.List(context.Background(), ListOpts{}); err != nil {
		t.Fatal(err)
	}
	if runner.lastParams["limit"] != 100 {
		t.Fatalf("params=%v", runner.lastParams)
	}
}

func TestUpsertUsesMerge(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	r := newRepo(runner)

	if err := r.Upsert(context.Background(), thing{ID: "t2", Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runner.lastCypher, "MERGE (n:Thing {id: $id})") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
	if runner.lastParams["id"] != "t2" {
		t.Fatalf("params=%v", runner.lastParams)
	}
}

func TestDeleteDetaches(t *testing.T) {
	runner := &fakeRunner{rows: &fakeRows{}}
	r := newRepo(runner)

	if err := r.Delete(context.Background(), "t3"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runner.lastCypher, "DETACH DELETE") {
		t.Fatalf("cypher=%q", runner.lastCypher)
	}
}

func TestRunError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("bolt down")}
	r := newRepo(runner)
	if _, err := r.Get(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
