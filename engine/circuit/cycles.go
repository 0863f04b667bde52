package circuit

import (
	"slices"
	"strings"
)

// Topology is the read-only view of a graph the cycle search runs over.
// *Store implements it.
type Topology interface {
	Components() []ID
	Neighbors(id ID) []ID
}

// Cycle is a closed simple path of at least three distinct components.
// Members are listed in traversal order starting at the smallest ID.
type Cycle []ID

// Key returns the canonical identity of c: its member set, sorted.
// Rotations and reversals of the same cycle share a key.
func (c Cycle) Key() string {
	sorted := slices.Clone(c)
	slices.Sort(sorted)
	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(string(id))
	}
	return b.String()
}

// Contains reports whether id is a member of c.
func (c Cycle) Contains(id ID) bool { return slices.Contains(c, id) }

// FindCycles enumerates every simple cycle of t, one per distinct member set.
// The order of the result is deterministic for a given graph but carries no
// meaning. The number of cycles grows exponentially with graph density; use
// FindCyclesLimit on anything that is not known to be small.
func FindCycles(t Topology) []Cycle {
	cycles, _ := FindCyclesLimit(t, SearchLimits{})
	return cycles
}

// SearchLimits bounds a cycle search. Zero fields are unbounded.
type SearchLimits struct {
	// MaxCycles caps the number of cycles returned.
	MaxCycles int
	// MaxSteps caps the number of path extensions tried, which bounds the
	// running time independently of how many cycles are found.
	MaxSteps int
}

// FindCyclesLimit is FindCycles stopped at lim. The second result reports
// whether the search stopped early.
func FindCyclesLimit(t Topology, lim SearchLimits) ([]Cycle, bool) {
	s := newCycleSearch(t, lim)
	return s.run()
}

type frame struct {
	node int
	next int // index into adj[node] of the next neighbor to try
}

// denseGraph is a Topology flattened to ranks. ids is sorted, so rank order
// equals ID order.
type denseGraph struct {
	ids []ID
	adj [][]int
}

// newDenseGraph builds the rank graph of t restricted to the components keep
// accepts. A nil keep accepts everything.
func newDenseGraph(t Topology, keep func(ID) bool) denseGraph {
	ids := slices.Clone(t.Components())
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if keep != nil {
		ids = slices.DeleteFunc(ids, func(id ID) bool { return !keep(id) })
	}
	rank := make(map[ID]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	adj := make([][]int, len(ids))
	for i, id := range ids {
		for _, nb := range t.Neighbors(id) {
			j, ok := rank[nb]
			if !ok || j == i {
				continue
			}
			adj[i] = append(adj[i], j)
		}
		slices.Sort(adj[i])
		adj[i] = slices.Compact(adj[i])
	}
	return denseGraph{ids: ids, adj: adj}
}

// cycleSearch holds the traversal state.
type cycleSearch struct {
	denseGraph
	alive []bool
	lim   SearchLimits
	steps int

	seen  map[string]struct{}
	found []Cycle

	onPath []bool
	path   []int
	stack  []frame
}

func newCycleSearch(t Topology, lim SearchLimits) *cycleSearch {
	g := newDenseGraph(t, nil)
	alive := make([]bool, len(g.ids))
	for i := range alive {
		alive[i] = true
	}
	return &cycleSearch{
		denseGraph: g,
		alive:      alive,
		lim:        lim,
		seen:       make(map[string]struct{}),
		onPath:     make([]bool, len(g.ids)),
	}
}

func (s *cycleSearch) run() ([]Cycle, bool) {
	s.prune()
	for start := range s.ids {
		if !s.alive[start] {
			continue
		}
		if !s.from(start) {
			return s.found, true
		}
	}
	return s.found, false
}

// prune peels off nodes of degree < 2 until only the 2-core remains; no
// peeled node can lie on a cycle.
func (s *cycleSearch) prune() {
	deg := make([]int, len(s.ids))
	var queue []int
	for i, nbs := range s.adj {
		deg[i] = len(nbs)
		if deg[i] < 2 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if !s.alive[n] {
			continue
		}
		s.alive[n] = false
		for _, nb := range s.adj[n] {
			if !s.alive[nb] {
				continue
			}
			deg[nb]--
			if deg[nb] == 1 {
				queue = append(queue, nb)
			}
		}
	}
}

// from walks every simple path that starts at start and only visits nodes
// ranked above it, recording a cycle whenever the path can close back on
// start. It returns false once either limit is reached.
func (s *cycleSearch) from(start int) bool {
	s.path = append(s.path[:0], start)
	s.onPath[start] = true
	s.stack = append(s.stack[:0], frame{node: start})
	defer func() {
		for _, n := range s.path {
			s.onPath[n] = false
		}
		s.path = s.path[:0]
		s.stack = s.stack[:0]
	}()

	for len(s.stack) > 0 {
		top := &s.stack[len(s.stack)-1]
		if top.next >= len(s.adj[top.node]) {
			s.onPath[top.node] = false
			s.path = s.path[:len(s.path)-1]
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}
		nb := s.adj[top.node][top.next]
		top.next++
		s.steps++
		if s.lim.MaxSteps > 0 && s.steps > s.lim.MaxSteps {
			return false
		}

		switch {
		case nb == start:
			if len(s.path) >= 3 && !s.record() {
				return false
			}
		case nb < start || !s.alive[nb] || s.onPath[nb]:
		default:
			s.onPath[nb] = true
			s.path = append(s.path, nb)
			s.stack = append(s.stack, frame{node: nb})
		}
	}
	return true
}

func (s *cycleSearch) record() bool {
	c := make(Cycle, len(s.path))
	for i, n := range s.path {
		c[i] = s.ids[n]
	}
	key := c.Key()
	if _, dup := s.seen[key]; dup {
		return true
	}
	s.seen[key] = struct{}{}
	s.found = append(s.found, c)
	return s.lim.MaxCycles <= 0 || len(s.found) < s.lim.MaxCycles
}
