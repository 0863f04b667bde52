package circuit

import (
	"slices"
	"testing"
)

func TestStoreAddComponentIdempotent(t *testing.T) {
	s := NewStore()
	h1, created := s.AddComponent("bat")
	if !created {
		t.Fatal("expected first add to create")
	}
	h2, created := s.AddComponent("bat")
	if created {
		t.Fatal("expected second add to be a no-op")
	}
	if h1 != h2 {
		t.Fatalf("handles differ: %v vs %v", h1, h2)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 component, got %d", s.Len())
	}
}

func TestStoreAddConnection(t *testing.T) {
	s := NewStore()
	if s.AddConnection("a", "a") {
		t.Fatal("self connection accepted")
	}
	if s.Len() != 0 {
		t.Fatalf("self connection created components: %v", s.Components())
	}
	if !s.AddConnection("a", "b") {
		t.Fatal("expected new connection")
	}
	if s.AddConnection("b", "a") {
		t.Fatal("reversed duplicate accepted")
	}
	if s.EdgeCount() != 1 {
		t.Fatalf("expected 1 edge, got %d", s.EdgeCount())
	}
	if !s.Has("a") || !s.Has("b") {
		t.Fatal("endpoints not auto-created")
	}
	if !s.Connected("b", "a") {
		t.Fatal("connection not symmetric")
	}
	if err := s.check(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRemoveConnection(t *testing.T) {
	s := NewStore()
	s.AddConnection("a", "b")
	if s.RemoveConnection("a", "c") {
		t.Fatal("removed a missing connection")
	}
	if !s.RemoveConnection("b", "a") {
		t.Fatal("expected reversed pair to remove the connection")
	}
	if s.EdgeCount() != 0 || len(s.Neighbors("a")) != 0 {
		t.Fatal("connection still present")
	}
	if !s.Has("a") || !s.Has("b") {
		t.Fatal("removing a connection must not remove components")
	}
}

func TestStoreRemoveComponentCascades(t *testing.T) {
	s := NewStore()
	s.AddConnection("a", "b")
	s.AddConnection("a", "c")
	s.AddConnection("b", "c")
	if !s.RemoveComponent("a") {
		t.Fatal("expected removal")
	}
	if s.RemoveComponent("a") {
		t.Fatal("second removal should report absent")
	}
	if got := s.Connections(); !slices.Equal(got, []Connection{{A: "b", B: "c"}}) {
		t.Fatalf("unexpected connections: %v", got)
	}
	if got := s.Neighbors("b"); !slices.Equal(got, []ID{"c"}) {
		t.Fatalf("unexpected neighbors: %v", got)
	}
	if err := s.check(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRemoveAllConnections(t *testing.T) {
	s := NewStore()
	s.AddConnection("hub", "a")
	s.AddConnection("hub", "b")
	s.AddConnection("a", "b")
	if n := s.RemoveAllConnections("hub"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if !s.Has("hub") {
		t.Fatal("component removed")
	}
	if s.EdgeCount() != 1 {
		t.Fatalf("expected 1 edge left, got %d", s.EdgeCount())
	}
	if n := s.RemoveAllConnections("missing"); n != 0 {
		t.Fatalf("expected 0 for unknown id, got %d", n)
	}
	if err := s.check(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreStaleHandle(t *testing.T) {
	s := NewStore()
	h, _ := s.AddComponent("led")
	if id, ok := s.Resolve(h); !ok || id != "led" {
		t.Fatalf("Resolve = %q, %v", id, ok)
	}
	s.RemoveComponent("led")
	h2, _ := s.AddComponent("motor")
	if h2.slot != h.slot {
		t.Fatalf("expected slot reuse, got %d and %d", h.slot, h2.slot)
	}
	if _, ok := s.Resolve(h); ok {
		t.Fatal("stale handle resolved")
	}
	if id, ok := s.Resolve(h2); !ok || id != "motor" {
		t.Fatalf("Resolve = %q, %v", id, ok)
	}
	if _, ok := s.Resolve(Handle{}); ok {
		t.Fatal("zero handle resolved")
	}
}

func TestStoreConnectionsSorted(t *testing.T) {
	s := NewStore()
	s.AddConnection("z", "a")
	s.AddConnection("m", "b")
	s.AddConnection("a", "b")
	want := []Connection{{"a", "b"}, {"a", "z"}, {"b", "m"}}
	if got := s.Connections(); !slices.Equal(got, want) {
		t.Fatalf("Connections() = %v, want %v", got, want)
	}
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	h, _ := s.AddComponent("a")
	s.AddConnection("a", "b")
	s.Reset()
	if s.Len() != 0 || s.EdgeCount() != 0 {
		t.Fatal("reset left state behind")
	}
	if _, ok := s.Resolve(h); ok {
		t.Fatal("handle survived reset")
	}
	if err := s.check(); err != nil {
		t.Fatal(err)
	}
	s.AddConnection("a", "b")
	if err := s.check(); err != nil {
		t.Fatal(err)
	}
}

func TestNewConnectionCanonical(t *testing.T) {
	if NewConnection("b", "a") != NewConnection("a", "b") {
		t.Fatal("connections are not order independent")
	}
	c := NewConnection("y", "x")
	if c.A != "x" || c.B != "y" {
		t.Fatalf("unexpected canonical form %+v", c)
	}
	if !c.Has("y") || c.Has("z") {
		t.Fatal("Has mismatch")
	}
}
