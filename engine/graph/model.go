// Package graph persists circuit snapshots to Neo4j and reads them back.
package graph

import (
	"github.com/WessleyAI/wessley-circuit/engine/circuit"
)

// RelConnects is the relationship type stored for a connection.
const RelConnects = "connects_to"

// Node is a component as stored in Neo4j. Nodes are keyed by circuit and
// component id so several circuits can share one database.
type Node struct {
	Circuit string `json:"circuit"`
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Label   string `json:"label,omitempty"`
	Closed  bool   `json:"closed"`
	Powered bool   `json:"powered"`
}

// Key is the unique node key.
func (n Node) Key() string { return nodeKey(n.Circuit, n.ID) }

func nodeKey(circuitName, id string) string { return circuitName + "/" + id }

// Edge is a stored connection between two components of one circuit.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Counts summarises what is stored for a circuit.
type Counts struct {
	Components  int64 `json:"components"`
	Connections int64 `json:"connections"`
}

func nodeFromComponent(circuitName string, c circuit.Component) Node {
	return Node{
		Circuit: circuitName,
		ID:      string(c.ID),
		Kind:    c.Kind.String(),
		Label:   c.Label,
		Closed:  c.Closed,
		Powered: c.Powered,
	}
}

func edgeFromConnection(circuitName string, c circuit.Connection) Edge {
	return Edge{
		From: nodeKey(circuitName, string(c.A)),
		To:   nodeKey(circuitName, string(c.B)),
		Type: RelConnects,
	}
}
