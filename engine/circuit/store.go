package circuit

import (
	"cmp"
	"fmt"
	"slices"
)

type slot struct {
	id   ID
	gen  uint32
	live bool
	adj  map[uint32]struct{}
}

// Store holds the component set and the undirected connections between
// components. Components live in an arena of slots; freed slots are reused
// with a bumped generation so stale handles never resolve.
//
// Store has no algorithmic logic and is not safe for concurrent use.
type Store struct {
	slots []slot
	index map[ID]uint32
	free  []uint32
	edges int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{index: make(map[ID]uint32)}
}

// AddComponent inserts id if absent. It returns the handle of the component
// and whether it was created by this call.
func (s *Store) AddComponent(id ID) (Handle, bool) {
	if i, ok := s.index[id]; ok {
		return Handle{slot: i, gen: s.slots[i].gen}, false
	}
	var i uint32
	if n := len(s.free); n > 0 {
		i = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{})
		i = uint32(len(s.slots) - 1)
	}
	sl := &s.slots[i]
	sl.id = id
	sl.gen++
	sl.live = true
	sl.adj = make(map[uint32]struct{})
	s.index[id] = i
	return Handle{slot: i, gen: sl.gen}, true
}

// RemoveComponent removes id and every connection touching it.
// It reports whether id was present.
func (s *Store) RemoveComponent(id ID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.detach(i)
	sl := &s.slots[i]
	sl.live = false
	sl.adj = nil
	sl.id = ""
	delete(s.index, id)
	s.free = append(s.free, i)
	return true
}

// AddConnection connects a and b, creating missing endpoints. Self
// connections and existing connections are ignored. It reports whether a new
// connection was inserted.
func (s *Store) AddConnection(a, b ID) bool {
	if a == b {
		return false
	}
	ha, _ := s.AddComponent(a)
	hb, _ := s.AddComponent(b)
	adjA := s.slots[ha.slot].adj
	if _, ok := adjA[hb.slot]; ok {
		return false
	}
	adjA[hb.slot] = struct{}{}
	s.slots[hb.slot].adj[ha.slot] = struct{}{}
	s.edges++
	return true
}

// RemoveConnection removes the connection {a, b} if present.
func (s *Store) RemoveConnection(a, b ID) bool {
	ia, ok := s.index[a]
	if !ok {
		return false
	}
	ib, ok := s.index[b]
	if !ok {
		return false
	}
	if _, ok := s.slots[ia].adj[ib]; !ok {
		return false
	}
	delete(s.slots[ia].adj, ib)
	delete(s.slots[ib].adj, ia)
	s.edges--
	return true
}

// RemoveAllConnections removes every connection with an endpoint equal to id
// and returns how many were removed.
func (s *Store) RemoveAllConnections(id ID) int {
	i, ok := s.index[id]
	if !ok {
		return 0
	}
	return s.detach(i)
}

func (s *Store) detach(i uint32) int {
	adj := s.slots[i].adj
	n := len(adj)
	for j := range adj {
		delete(s.slots[j].adj, i)
	}
	clear(adj)
	s.edges -= n
	return n
}

// Neighbors returns the components directly connected to id, sorted.
func (s *Store) Neighbors(id ID) []ID {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	out := make([]ID, 0, len(s.slots[i].adj))
	for j := range s.slots[i].adj {
		out = append(out, s.slots[j].id)
	}
	slices.Sort(out)
	return out
}

// Has reports whether id is a known component.
func (s *Store) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Connected reports whether the connection {a, b} exists.
func (s *Store) Connected(a, b ID) bool {
	ia, ok := s.index[a]
	if !ok {
		return false
	}
	ib, ok := s.index[b]
	if !ok {
		return false
	}
	_, ok = s.slots[ia].adj[ib]
	return ok
}

// Handle returns the current handle for id.
func (s *Store) Handle(id ID) (Handle, bool) {
	i, ok := s.index[id]
	if !ok {
		return Handle{}, false
	}
	return Handle{slot: i, gen: s.slots[i].gen}, true
}

// Resolve returns the ID behind h, or false if h is stale or was never issued.
func (s *Store) Resolve(h Handle) (ID, bool) {
	if h.IsZero() || int(h.slot) >= len(s.slots) {
		return "", false
	}
	sl := s.slots[h.slot]
	if !sl.live || sl.gen != h.gen {
		return "", false
	}
	return sl.id, true
}

// Components returns all component IDs, sorted.
func (s *Store) Components() []ID {
	out := make([]ID, 0, len(s.index))
	for id := range s.index {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Connections returns all connections in canonical form, sorted.
func (s *Store) Connections() []Connection {
	out := make([]Connection, 0, s.edges)
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.live {
			continue
		}
		for j := range sl.adj {
			if other := s.slots[j].id; sl.id < other {
				out = append(out, Connection{A: sl.id, B: other})
			}
		}
	}
	slices.SortFunc(out, func(x, y Connection) int {
		if x.A != y.A {
			return cmp.Compare(x.A, y.A)
		}
		return cmp.Compare(x.B, y.B)
	})
	return out
}

// Len returns the number of components.
func (s *Store) Len() int { return len(s.index) }

// EdgeCount returns the number of connections.
func (s *Store) EdgeCount() int { return s.edges }

// Reset drops every component and connection. Outstanding handles go stale.
func (s *Store) Reset() {
	for i := range s.slots {
		if s.slots[i].live {
			s.slots[i].live = false
			s.slots[i].adj = nil
			s.slots[i].id = ""
			s.free = append(s.free, uint32(i))
		}
	}
	clear(s.index)
	s.edges = 0
}

// check verifies the structural invariants: live endpoints, symmetric
// adjacency, no self edges and a consistent edge count.
func (s *Store) check() error {
	half := 0
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.live {
			if sl.adj != nil {
				return fmt.Errorf("free slot %d has adjacency", i)
			}
			continue
		}
		if got, ok := s.index[sl.id]; !ok || got != uint32(i) {
			return fmt.Errorf("slot %d (%s) not indexed", i, sl.id)
		}
		for j := range sl.adj {
			if j == uint32(i) {
				return fmt.Errorf("self connection on %s", sl.id)
			}
			if int(j) >= len(s.slots) || !s.slots[j].live {
				return fmt.Errorf("%s connected to dead slot %d", sl.id, j)
			}
			if _, ok := s.slots[j].adj[uint32(i)]; !ok {
				return fmt.Errorf("asymmetric connection %s-%s", sl.id, s.slots[j].id)
			}
			half++
		}
	}
	if half != 2*s.edges {
		return fmt.Errorf("edge count %d does not match adjacency (%d half edges)", s.edges, half)
	}
	return nil
}
