package repo

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a Neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Runner is the part of a Neo4j session the repository uses.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// Sessions opens a Runner per operation.
type Sessions func(ctx context.Context) Runner

// DriverSessions opens plain driver sessions.
func DriverSessions(driver neo4j.DriverWithContext) Sessions {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{})}
	}
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Neo4jRepo stores T as nodes carrying a single label.
type Neo4jRepo[T any, ID comparable] struct {
	open       Sessions
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// NewNeo4jRepo creates a repository for nodes labelled label. fromRecord
// reads the node from the record column "n".
func NewNeo4jRepo[T any, ID comparable](
	open Sessions,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		open:       open,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !result.Next(ctx) {
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(result.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	where, params, err := whereClause(opts.Filter)
	if err != nil {
		return nil, err
	}
	params["offset"] = opts.Offset
	params["limit"] = limit

	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s)%s RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, where, r.idKey)
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var items []T
	for result.Next(ctx) {
		item, err := r.fromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Upsert creates the node or overwrites the properties of an existing one.
func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) (T, error) {
	var zero T
	props := r.toMap(entity)
	id, ok := props[r.idKey]
	if !ok {
		return zero, fmt.Errorf("%s: missing %q property", r.label, r.idKey)
	}

	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id, "props": props})
	if err != nil {
		return zero, err
	}
	if !result.Next(ctx) {
		return zero, fmt.Errorf("upsert %s %v: no row returned", r.label, id)
	}
	return r.fromRecord(result.Record())
}

// Delete removes the node and its relationships. Deleting a missing id is
// not an error.
func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	return err
}

// whereClause renders filter as equality predicates on n, in key order.
func whereClause(filter map[string]any) (string, map[string]any, error) {
	params := make(map[string]any, len(filter)+2)
	if len(filter) == 0 {
		return "", params, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !validProperty(k) {
			return "", nil, fmt.Errorf("invalid filter property %q", k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("n.%s = $f_%s", k, k)
		params["f_"+k] = filter[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), params, nil
}

func validProperty(k string) bool {
	if k == "" {
		return false
	}
	for i, c := range k {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
