package circuit

import "slices"

// Qualifies reports whether c carries power: at least one member is a
// battery and every switch on it is closed. Switch position along the cycle
// does not matter.
func Qualifies(c Cycle, r *Registry) bool {
	battery := false
	for _, id := range c {
		switch r.Kind(id) {
		case KindBattery:
			battery = true
		case KindSwitch:
			if !r.SwitchClosed(id) {
				return false
			}
		}
	}
	return battery
}

// Propagate builds a fresh PowerState for components. A component is
// energized iff it belongs to at least one qualifying cycle; every other
// component is present with false. Cycle members missing from components are
// ignored.
func Propagate(cycles []Cycle, r *Registry, components []ID) PowerState {
	state := make(PowerState, len(components))
	for _, id := range components {
		state[id] = false
	}
	for _, c := range cycles {
		if !Qualifies(c, r) {
			continue
		}
		for _, id := range c {
			if _, ok := state[id]; ok {
				state[id] = true
			}
		}
	}
	return state
}

// Energize builds the PowerState of every component of t without listing
// cycles. Open switches are dropped first and the rest of the graph is split
// into biconnected blocks. Any two members of a block of three or more
// components share a simple cycle, and every simple cycle lies inside one
// block, so a component is energized iff one of its blocks holds a battery.
// The result equals Propagate over every cycle of t, in near-linear time.
func Energize(t Topology, r *Registry) PowerState {
	state, _ := energize(t, r)
	return state
}

type blockCount struct {
	loops int // blocks of three or more components
	live  int // loops holding a battery
}

func energize(t Topology, r *Registry) (PowerState, blockCount) {
	var bc blockCount
	components := t.Components()
	state := make(PowerState, len(components))
	for _, id := range components {
		state[id] = false
	}
	g := newDenseGraph(t, func(id ID) bool {
		return r.Kind(id) != KindSwitch || r.SwitchClosed(id)
	})
	g.blocks(func(members []int) {
		if len(members) < 3 {
			return
		}
		bc.loops++
		if !slices.ContainsFunc(members, func(n int) bool { return r.Kind(g.ids[n]) == KindBattery }) {
			return
		}
		bc.live++
		for _, n := range members {
			state[g.ids[n]] = true
		}
	})
	return state, bc
}

type blockFrame struct {
	node   int
	parent int
	next   int
}

// blocks calls fn with the members of every biconnected block of g, found by
// Tarjan's lowpoint search over an explicit stack. A bridge comes out as a
// two-member block; isolated nodes are not reported. fn must not retain
// members.
func (g *denseGraph) blocks(fn func(members []int)) {
	disc := make([]int, len(g.ids)) // 0 means unvisited
	low := make([]int, len(g.ids))
	var (
		clock   int
		stack   []blockFrame
		visited []int
		members []int
	)
	for root := range g.ids {
		if disc[root] != 0 {
			continue
		}
		clock++
		disc[root], low[root] = clock, clock
		visited = append(visited[:0], root)
		stack = append(stack[:0], blockFrame{node: root, parent: -1})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(g.adj[top.node]) {
				nb := g.adj[top.node][top.next]
				top.next++
				switch {
				case disc[nb] == 0:
					clock++
					disc[nb], low[nb] = clock, clock
					visited = append(visited, nb)
					stack = append(stack, blockFrame{node: nb, parent: top.node})
				case nb != top.parent:
					low[top.node] = min(low[top.node], disc[nb])
				}
				continue
			}

			child := top.node
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			parent := stack[len(stack)-1].node
			low[parent] = min(low[parent], low[child])
			if low[child] < disc[parent] {
				continue
			}
			// parent separates child's subtree: everything visited since
			// child, plus parent, is one block.
			members = append(members[:0], parent)
			for {
				n := visited[len(visited)-1]
				visited = visited[:len(visited)-1]
				members = append(members, n)
				if n == child {
					break
				}
			}
			fn(members)
		}
	}
}
