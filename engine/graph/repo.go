package graph

import (
	"fmt"

	"github.com/WessleyAI/wessley-circuit/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// newNodeRepo creates a repository for Component nodes keyed by "key".
func newNodeRepo(open repo.Sessions) *repo.Neo4jRepo[Node, string] {
	return repo.NewNeo4jRepo[Node, string](
		open,
		"Component",
		nodeToMap,
		nodeFromRecord,
		repo.WithIDKey[Node, string]("key"),
	)
}

func nodeToMap(n Node) map[string]any {
	return map[string]any{
		"key":     n.Key(),
		"circuit": n.Circuit,
		"id":      n.ID,
		"kind":    n.Kind,
		"label":   n.Label,
		"closed":  n.Closed,
		"powered": n.Powered,
	}
}

func nodeFromRecord(rec *neo4j.Record) (Node, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return Node{}, fmt.Errorf("record has no n column")
	}
	node, ok := raw.(dbtype.Node)
	if !ok {
		return Node{}, fmt.Errorf("unexpected type %T for n", raw)
	}
	return nodeFromProps(node.Props), nil
}

func nodeFromProps(props map[string]any) Node {
	return Node{
		Circuit: strProp(props, "circuit"),
		ID:      strProp(props, "id"),
		Kind:    strProp(props, "kind"),
		Label:   strProp(props, "label"),
		Closed:  boolProp(props, "closed"),
		Powered: boolProp(props, "powered"),
	}
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}
