package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/pkg/fn"
	"github.com/WessleyAI/wessley-circuit/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ErrNoDriver is returned when a GraphStore is built without a driver.
var ErrNoDriver = errors.New("graph: no neo4j driver")

// maxDepth bounds variable-length neighbour queries.
const maxDepth = 5

// ErrNoPath is returned by TracePath when the endpoints are not connected.
var ErrNoPath = errors.New("graph: no path")

// batchSize bounds the rows sent in one UNWIND.
const batchSize = 500

// CypherResult is a result cursor.
type CypherResult = repo.Result

// CypherRunner runs a statement, inside or outside a transaction.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is the part of a Neo4j session the store uses.
type CypherSession interface {
	CypherRunner
	Close(ctx context.Context) error
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
}

// SessionOpener opens a session per operation.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return t.tx.Run(ctx, cypher, params)
}

// GraphStore reads and writes circuit snapshots.
type GraphStore struct {
	opener SessionOpener
	nodes  *repo.Neo4jRepo[Node, string]
	now    func() time.Time
}

// New creates a GraphStore backed by driver. A nil driver yields a store
// whose operations fail with ErrNoDriver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	if driver == nil {
		return &GraphStore{now: time.Now}
	}
	return NewWithOpener(driverOpener{driver: driver})
}

// NewWithOpener creates a GraphStore using opener for every session.
func NewWithOpener(opener SessionOpener) *GraphStore {
	return &GraphStore{
		opener: opener,
		nodes: newNodeRepo(func(ctx context.Context) repo.Runner {
			return opener.OpenSession(ctx)
		}),
		now: time.Now,
	}
}

func (g *GraphStore) ready() error {
	if g.opener == nil {
		return ErrNoDriver
	}
	return nil
}

// SaveSnapshot replaces everything stored for circuitName with snap in a
// single write transaction.
func (g *GraphStore) SaveSnapshot(ctx context.Context, circuitName string, snap circuit.Snapshot) error {
	if err := g.ready(); err != nil {
		return err
	}
	nodes := fn.Map(snap.Components, func(c circuit.Component) any {
		return nodeToMap(nodeFromComponent(circuitName, c))
	})
	edges := fn.Map(snap.Connections, func(c circuit.Connection) Edge {
		return edgeFromConnection(circuitName, c)
	})
	cycles := fn.Map(snap.Cycles, func(c circuit.Cycle) string { return c.Key() })
	at := g.now().UTC()

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		if _, err := tx.Run(ctx,
			`MATCH (n:Component {circuit: $circuit}) DETACH DELETE n`,
			map[string]any{"circuit": circuitName}); err != nil {
			return nil, fmt.Errorf("clear components: %w", err)
		}
		for _, batch := range fn.Chunk(nodes, batchSize) {
			if _, err := tx.Run(ctx,
				`UNWIND $nodes AS p MERGE (n:Component {key: p.key}) SET n += p`,
				map[string]any{"nodes": batch}); err != nil {
				return nil, fmt.Errorf("write components: %w", err)
			}
		}
		byType := fn.GroupBy(edges, func(e Edge) string { return e.Type })
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			rows := fn.Map(byType[t], func(e Edge) any {
				return map[string]any{"from": e.From, "to": e.To}
			})
			cypher := fmt.Sprintf(
				`UNWIND $edges AS e
				 MATCH (a:Component {key: e.from}), (b:Component {key: e.to})
				 MERGE (a)-[:%s]->(b)`, sanitizeRelType(t))
			for _, batch := range fn.Chunk(rows, batchSize) {
				if _, err := tx.Run(ctx, cypher, map[string]any{"edges": batch}); err != nil {
					return nil, fmt.Errorf("write connections: %w", err)
				}
			}
		}
		if _, err := tx.Run(ctx,
			`MERGE (c:Circuit {name: $circuit})
			 SET c.components = $components, c.connections = $connections,
			     c.cycles = $cycles, c.exported_at = $at`,
			map[string]any{
				"circuit":     circuitName,
				"components":  len(nodes),
				"connections": len(edges),
				"cycles":      cycles,
				"at":          at,
			}); err != nil {
			return nil, fmt.Errorf("write circuit: %w", err)
		}
		return nil, nil
	})
	return err
}

// SaveComponent creates or updates a single component node.
func (g *GraphStore) SaveComponent(ctx context.Context, n Node) (Node, error) {
	if err := g.ready(); err != nil {
		return Node{}, err
	}
	return g.nodes.Upsert(ctx, n)
}

// GetComponent returns a stored component.
func (g *GraphStore) GetComponent(ctx context.Context, circuitName, id string) (Node, error) {
	if err := g.ready(); err != nil {
		return Node{}, err
	}
	return g.nodes.Get(ctx, nodeKey(circuitName, id))
}

// Components returns up to limit stored components of a circuit, sorted by
// key.
func (g *GraphStore) Components(ctx context.Context, circuitName string, offset, limit int) ([]Node, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	return g.nodes.List(ctx, repo.ListOpts{
		Offset: offset,
		Limit:  limit,
		Filter: map[string]any{"circuit": circuitName},
	})
}

// Neighbors returns components within depth hops of id. depth is clamped
// to [1, maxDepth].
func (g *GraphStore) Neighbors(ctx context.Context, circuitName, id string, depth int) ([]Node, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	depth = max(1, min(depth, maxDepth))
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:Component {key: $key})-[*1..%d]-(n:Component)
		 WHERE n.key <> $key
		 RETURN DISTINCT n ORDER BY n.key`, depth)
	result, err := sess.Run(ctx, cypher, map[string]any{"key": nodeKey(circuitName, id)})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

// TracePath finds a shortest path between two stored components.
func (g *GraphStore) TracePath(ctx context.Context, circuitName, fromID, toID string) ([]Node, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH p = shortestPath((a:Component {key: $from})-[*]-(b:Component {key: $to}))
				RETURN nodes(p) AS nodes`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"from": nodeKey(circuitName, fromID),
		"to":   nodeKey(circuitName, toID),
	})
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		return nil, fmt.Errorf("%s to %s: %w", fromID, toID, ErrNoPath)
	}

	nodesVal, ok := result.Record().Get("nodes")
	if !ok {
		return nil, fmt.Errorf("no nodes in path result")
	}
	nodeList, ok := nodesVal.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected nodes type %T", nodesVal)
	}
	var path []Node
	for _, raw := range nodeList {
		if node, ok := raw.(dbtype.Node); ok {
			path = append(path, nodeFromProps(node.Props))
		}
	}
	return path, nil
}

// Counts returns how many components and connections are stored for a
// circuit.
func (g *GraphStore) Counts(ctx context.Context, circuitName string) (Counts, error) {
	if err := g.ready(); err != nil {
		return Counts{}, err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (n:Component {circuit: $circuit})
		 OPTIONAL MATCH (n)-[r:%s]->()
		 RETURN count(DISTINCT n) AS components, count(r) AS connections`,
		sanitizeRelType(RelConnects))
	result, err := sess.Run(ctx, cypher, map[string]any{"circuit": circuitName})
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	if result.Next(ctx) {
		rec := result.Record()
		c.Components = int64Value(rec, "components")
		c.Connections = int64Value(rec, "connections")
	}
	return c, nil
}

// DeleteCircuit removes every node stored for a circuit.
func (g *GraphStore) DeleteCircuit(ctx context.Context, circuitName string) error {
	if err := g.ready(); err != nil {
		return err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		_, err := tx.Run(ctx,
			`MATCH (n:Component {circuit: $circuit}) DETACH DELETE n
			 WITH count(*) AS deleted
			 MATCH (c:Circuit {name: $circuit}) DELETE c`,
			map[string]any{"circuit": circuitName})
		return nil, err
	})
	return err
}

// collectNodes reads all Component nodes from a result set.
func collectNodes(ctx context.Context, result CypherResult) ([]Node, error) {
	var items []Node
	for result.Next(ctx) {
		n, err := nodeFromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, nil
}

func int64Value(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}

// sanitizeRelType ensures the relationship type is a valid Cypher identifier.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "CONNECTS_TO"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 32
		}
	}
	return string(safe)
}
