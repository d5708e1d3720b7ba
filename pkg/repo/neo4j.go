package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Rows is the minimal interface needed from a neo4j result.
type Rows interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Runner is the minimal interface needed from a neo4j session. It exists so
// graph code can be tested without a live database.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Rows, error)
	Close(ctx context.Context) error
}

// SessionFunc opens a Runner for one unit of work.
type SessionFunc func(ctx context.Context) Runner

// NewSessionFunc returns a SessionFunc backed by the given driver.
func NewSessionFunc(driver neo4j.DriverWithContext) SessionFunc {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{})}
	}
}

// sessionAdapter adapts neo4j.SessionWithContext to the Runner interface.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Rows, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Neo4jRepo is a generic Neo4j-backed repository. Nodes carry the given
// label and are keyed by the idKey property.
type Neo4jRepo[T any, ID comparable] struct {
	session    SessionFunc
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// NewNeo4jRepo creates a Neo4j-backed repository.
func NewNeo4jRepo[T any, ID comparable](
	session SessionFunc,
	label string,
	idKey string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
) *Neo4jRepo[T, ID] {
	return &Neo4jRepo[T, ID]{
		session:    session,
		label:      label,
		idKey:      idKey,
		toMap:      toMap,
		fromRecord: fromRecord,
	}
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	rows, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !rows.Next(ctx) {
		return zero, fmt.Errorf("%s %v not found", r.label, id)
	}
	return r.fromRecord(rows.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, r.idKey)
	rows, err := sess.Run(ctx, cypher, map[string]any{"offset": opts.Offset, "limit": limit})
	if err != nil {
		return nil, err
	}

	var items []T
	for rows.Next(ctx) {
		item, err := r.fromRecord(rows.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props})
	return err
}

func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	return err
}
