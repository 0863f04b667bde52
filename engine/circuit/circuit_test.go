package circuit

import (
	"fmt"
	"slices"
	"testing"
	"time"
)

func newTestCircuit(opts ...Option) *Circuit {
	return New(append([]Option{WithInvariantChecks(true)}, opts...)...)
}

func triangle(c *Circuit) {
	c.Register("A", KindBattery)
	c.Register("B", KindLED)
	c.Register("C", KindWire)
	c.Connect("A", "B")
	c.Connect("B", "C")
	c.Connect("C", "A")
}

func assertPowered(t *testing.T, c *Circuit, want bool, ids ...ID) {
	t.Helper()
	for _, id := range ids {
		if got := c.Powered(id); got != want {
			t.Errorf("Powered(%s) = %v, want %v", id, got, want)
		}
	}
}

func TestTriangleWithBatteryIsPowered(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	assertPowered(t, c, true, "A", "B", "C")
}

func TestOpenSwitchBreaksCycle(t *testing.T) {
	c := newTestCircuit()
	c.Register("A", KindBattery)
	c.Register("B", KindLED)
	c.Register("C", KindWire)
	c.Register("D", KindSwitch)
	c.Connect("A", "B")
	c.Connect("B", "C")
	c.Connect("A", "D")
	c.Connect("D", "C")
	assertPowered(t, c, false, "A", "B", "C", "D")

	c.SetSwitch("D", true)
	assertPowered(t, c, true, "A", "B", "C", "D")

	c.SetSwitch("D", false)
	assertPowered(t, c, false, "A", "B", "C", "D")
}

func TestPathWithoutClosureIsUnpowered(t *testing.T) {
	c := newTestCircuit()
	c.Register("A", KindBattery)
	c.Connect("A", "B")
	c.Connect("B", "C")
	assertPowered(t, c, false, "A", "B", "C")
	if len(c.Cycles()) != 0 {
		t.Fatalf("unexpected cycles %v", c.Cycles())
	}
}

func TestDisjointCyclesAreIndependent(t *testing.T) {
	c := newTestCircuit()
	c.Register("bat1", KindBattery)
	c.Register("sw1", KindSwitch, InitiallyClosed(true))
	c.Connect("bat1", "sw1")
	c.Connect("sw1", "led1")
	c.Connect("led1", "bat1")

	c.Register("bat2", KindBattery)
	c.Register("sw2", KindSwitch, InitiallyClosed(true))
	c.Connect("bat2", "sw2")
	c.Connect("sw2", "led2")
	c.Connect("led2", "bat2")

	assertPowered(t, c, true, "bat1", "sw1", "led1", "bat2", "sw2", "led2")

	c.SetSwitch("sw1", false)
	assertPowered(t, c, false, "bat1", "sw1", "led1")
	assertPowered(t, c, true, "bat2", "sw2", "led2")
}

func TestSelfConnectionIsNoop(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	calls := 0
	c.Listen("A", func(bool) { calls++ })
	before := c.Snapshot()

	c.Connect("A", "A")

	if calls != 0 {
		t.Fatalf("listener called %d times", calls)
	}
	after := c.Snapshot()
	if !slices.Equal(before.Connections, after.Connections) || !slices.Equal(before.Components, after.Components) {
		t.Fatal("self connection changed the circuit")
	}
	if c.Neighbors("A") == nil || slices.Contains(c.Neighbors("A"), "A") {
		t.Fatal("self edge recorded")
	}
}

func TestUnregisterRemovesComponent(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	c.Connect("C", "D")
	c.Connect("D", "A")
	if len(c.Cycles()) != 3 {
		t.Fatalf("expected 3 cycles, got %v", c.Cycles())
	}

	c.Unregister("B")

	if c.Powered("B") {
		t.Fatal("unregistered component reported powered")
	}
	for _, conn := range c.Snapshot().Connections {
		if conn.Has("B") {
			t.Fatalf("connection %v survived unregister", conn)
		}
	}
	for _, cy := range c.Cycles() {
		if cy.Contains("B") {
			t.Fatalf("cycle %v still uses B", cy)
		}
	}
	if _, ok := c.Component("B"); ok {
		t.Fatal("component still present")
	}
	assertPowered(t, c, true, "A", "C", "D")
}

func TestConnectIdempotent(t *testing.T) {
	once := newTestCircuit()
	triangle(once)

	twice := newTestCircuit()
	triangle(twice)
	twice.Connect("A", "B")
	twice.Connect("B", "A")

	a, b := once.Snapshot(), twice.Snapshot()
	if !slices.Equal(a.Connections, b.Connections) {
		t.Fatalf("connections differ: %v vs %v", a.Connections, b.Connections)
	}
	if !slices.Equal(a.Components, b.Components) {
		t.Fatalf("components differ: %v vs %v", a.Components, b.Components)
	}
}

func TestListenerDeliveredOnlyOnChange(t *testing.T) {
	c := newTestCircuit()
	c.Register("A", KindBattery)
	c.Register("S", KindSwitch)

	var got []bool
	c.Listen("L", func(on bool) { got = append(got, on) })

	c.Connect("A", "S")
	c.Connect("S", "L")
	c.Connect("L", "A") // cycle exists, switch open
	if len(got) != 0 {
		t.Fatalf("unexpected deliveries %v", got)
	}

	c.SetSwitch("S", true)
	c.SetSwitch("S", true) // no change, no recompute
	c.Connect("A", "S")    // redundant, recompute without change
	c.SetSwitch("S", false)
	c.Disconnect("L", "A")
	c.SetSwitch("S", true) // still no cycle

	if want := []bool{true, false}; !slices.Equal(got, want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
}

func TestListenReplacesSlot(t *testing.T) {
	c := newTestCircuit()
	first, second := 0, 0
	sub := c.Listen("B", func(bool) { first++ })
	c.Listen("B", func(bool) { second++ })

	if sub.Cancel() {
		t.Fatal("cancelling a replaced listener must not remove the replacement")
	}
	triangle(c)
	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d", first, second)
	}

	c.Unlisten("B")
	c.Disconnect("A", "B")
	if second != 1 {
		t.Fatalf("listener called after Unlisten")
	}
}

func TestUnregisterDropsListenerSlot(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	calls := 0
	c.Listen("B", func(bool) { calls++ })
	c.Unregister("B")
	if calls != 0 {
		t.Fatalf("listener notified on unregister: %d", calls)
	}
	c.Register("B", KindLED)
	c.Connect("A", "B")
	c.Connect("B", "C")
	if calls != 0 {
		t.Fatal("listener slot survived unregister")
	}
	if !c.Powered("B") {
		t.Fatal("re-registered component should be powered")
	}
}

func TestSetSwitchBeforeRegister(t *testing.T) {
	c := newTestCircuit()
	c.SetSwitch("S", true)
	if c.Stats().Op != "" {
		t.Fatalf("switch on unknown id recomputed: %+v", c.Stats())
	}
	c.Register("A", KindBattery)
	c.Register("S", KindSwitch)
	c.Connect("A", "S")
	c.Connect("S", "L")
	c.Connect("L", "A")
	assertPowered(t, c, true, "A", "S", "L")
}

func TestRegisterKindChangeRecomputes(t *testing.T) {
	c := newTestCircuit()
	c.Connect("A", "B")
	c.Connect("B", "C")
	c.Connect("C", "A")
	assertPowered(t, c, false, "A", "B", "C")

	c.Register("A", KindBattery)
	assertPowered(t, c, true, "A", "B", "C")

	c.Register("A", KindOther)
	assertPowered(t, c, false, "A", "B", "C")
}

func TestConnectAutoRegistersAsOther(t *testing.T) {
	c := newTestCircuit()
	c.Connect("x", "y")
	comp, ok := c.Component("x")
	if !ok {
		t.Fatal("endpoint not registered")
	}
	if comp.Kind != KindOther {
		t.Fatalf("expected other, got %s", comp.Kind)
	}
}

func TestDisconnectAll(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	c.DisconnectAll("A")
	assertPowered(t, c, false, "A", "B", "C")
	if len(c.Neighbors("A")) != 0 {
		t.Fatal("connections left on A")
	}
	if _, ok := c.Component("A"); !ok {
		t.Fatal("DisconnectAll removed the component")
	}
}

func TestReset(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	var got []bool
	c.Listen("B", func(on bool) { got = append(got, on) })
	var removed []Change
	c.Watch(func(ch []Change) { removed = append(removed, ch...) })

	c.Reset()

	if len(c.Snapshot().Components) != 0 || len(c.Cycles()) != 0 {
		t.Fatal("reset left state behind")
	}
	assertPowered(t, c, false, "A", "B", "C")
	if !slices.Equal(got, []bool{false}) {
		t.Fatalf("listener deliveries on reset = %v, want [false]", got)
	}
	if len(removed) != 3 {
		t.Fatalf("expected 3 removals, got %v", removed)
	}
	for _, ch := range removed {
		if !ch.Removed || ch.Powered {
			t.Fatalf("unexpected change %+v", ch)
		}
	}

	triangle(c)
	if !slices.Equal(got, []bool{false, true}) {
		t.Fatalf("listener slot should survive reset, deliveries=%v", got)
	}
}

func TestListenerMutationIsDeferred(t *testing.T) {
	c := newTestCircuit()
	depth := 0
	var order []string
	c.Listen("B", func(on bool) {
		depth++
		defer func() { depth-- }()
		if depth > 1 {
			t.Fatal("dispatch re-entered")
		}
		order = append(order, "listener")
		if on {
			c.Register("D", KindLED)
			c.Connect("B", "D")
			c.Connect("D", "C")
			if _, ok := c.Component("D"); ok {
				t.Fatal("mutation applied synchronously inside listener")
			}
		}
	})
	triangle(c)
	order = append(order, "returned")

	if !slices.Equal(order, []string{"listener", "returned"}) {
		t.Fatalf("order = %v", order)
	}
	assertPowered(t, c, true, "D")
}

func TestListenerPingPongIsBounded(t *testing.T) {
	c := newTestCircuit()
	triangle(c)
	toggles := 0
	c.Listen("B", func(on bool) {
		toggles++
		if on {
			c.Disconnect("A", "B")
		} else {
			c.Connect("A", "B")
		}
	})
	c.Disconnect("A", "B")
	if toggles == 0 || toggles > maxDeferredRounds+1 {
		t.Fatalf("unexpected toggle count %d", toggles)
	}
}

func TestWatchReceivesBatches(t *testing.T) {
	c := newTestCircuit()
	var batches [][]Change
	sub := c.Watch(func(ch []Change) { batches = append(batches, ch) })
	triangle(c)
	if len(batches) != 1 {
		t.Fatalf("expected a single batch, got %v", batches)
	}
	want := []Change{{ID: "A", Powered: true}, {ID: "B", Powered: true}, {ID: "C", Powered: true}}
	if !slices.Equal(batches[0], want) {
		t.Fatalf("batch = %v, want %v", batches[0], want)
	}
	if !sub.Cancel() {
		t.Fatal("expected cancel to remove watcher")
	}
	c.Disconnect("A", "B")
	if len(batches) != 1 {
		t.Fatal("watcher called after cancel")
	}
}

func TestLookupHandle(t *testing.T) {
	c := newTestCircuit()
	h := c.Register("sw", KindSwitch, Labeled("Main switch"), InitiallyClosed(true))
	comp, ok := c.Lookup(h)
	if !ok {
		t.Fatal("handle did not resolve")
	}
	if comp.ID != "sw" || comp.Label != "Main switch" || !comp.Closed || comp.Kind != KindSwitch {
		t.Fatalf("unexpected component %+v", comp)
	}
	c.Unregister("sw")
	if _, ok := c.Lookup(h); ok {
		t.Fatal("stale handle resolved")
	}
}

type recordingObserver struct{ stats []Stats }

func (r *recordingObserver) Recomputed(s Stats) { r.stats = append(r.stats, s) }

func TestObserverStats(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestCircuit(WithObserver(obs))
	triangle(c)
	last := obs.stats[len(obs.stats)-1]
	if last.Op != "connect" || last.Components != 3 || last.Connections != 3 ||
		last.Loops != 1 || last.Live != 1 || last.Powered != 3 || last.Changes != 3 {
		t.Fatalf("unexpected stats %+v", last)
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	c := newTestCircuit(WithObserver(Observers(a, nil, b)))
	c.Register("x", KindBattery)
	if len(a.stats) != 1 || len(b.stats) != 1 {
		t.Fatalf("expected both observers called once, got %d and %d", len(a.stats), len(b.stats))
	}
}

func TestMaxCyclesTruncates(t *testing.T) {
	c := newTestCircuit(WithMaxCycles(1))
	c.Register("a", KindBattery)
	for _, p := range [][2]ID{{"a", "b"}, {"a", "c"}, {"a", "d"}, {"b", "c"}, {"b", "d"}, {"c", "d"}} {
		c.Connect(p[0], p[1])
	}
	if !c.CyclesTruncated() || len(c.Cycles()) != 1 {
		t.Fatalf("expected truncated single cycle, got %v", c.Cycles())
	}
	assertPowered(t, c, true, "a", "b", "c", "d")
}

func grid(c *Circuit, prefix string, n int) {
	at := func(i, j int) ID { return ID(fmt.Sprintf("%s%d_%d", prefix, i, j)) }
	for i := range n {
		for j := range n {
			if i+1 < n {
				c.Connect(at(i, j), at(i+1, j))
			}
			if j+1 < n {
				c.Connect(at(i, j), at(i, j+1))
			}
		}
	}
}

func TestTruncatedListingLeavesPowerAlone(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"cycle cap", []Option{WithMaxCycles(10)}},
		{"step budget", []Option{WithSearchSteps(500)}},
		{"defaults", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCircuit(tt.opts...)
			c.Register("z_bat", KindBattery)
			c.Register("z_led", KindLED)
			c.Connect("z_bat", "z_led")
			c.Connect("z_led", "z_wire")
			c.Connect("z_wire", "z_bat")
			assertPowered(t, c, true, "z_bat", "z_led", "z_wire")

			grid(c, "a", 6)
			if len(c.Cycles()) == 0 {
				t.Fatal("no cycles listed")
			}
			assertPowered(t, c, true, "z_bat", "z_led", "z_wire")
			assertPowered(t, c, false, "a0_0", "a3_3", "a5_5")
			if st := c.Stats(); st.Loops != 2 || st.Live != 1 || st.Powered != 3 {
				t.Fatalf("unexpected stats %+v", st)
			}

			c.Register("a0_0", KindBattery)
			assertPowered(t, c, true, "a0_0", "a3_3", "a5_5", "z_led")
		})
	}
}

func TestDenseGraphStaysBounded(t *testing.T) {
	c := newTestCircuit(WithMaxCycles(10000), WithSearchSteps(100000))
	c.Register("k0", KindBattery)
	const n = 12
	start := time.Now()
	for i := range n {
		for j := i + 1; j < n; j++ {
			c.Connect(ID(fmt.Sprintf("k%d", i)), ID(fmt.Sprintf("k%d", j)))
		}
	}
	for i := range n {
		if !c.Powered(ID(fmt.Sprintf("k%d", i))) {
			t.Fatalf("k%d unpowered", i)
		}
	}
	if !c.CyclesTruncated() {
		t.Fatal("complete graph on twelve listed in full")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("building a complete graph on twelve took %v", elapsed)
	}
}
