package circuit

import (
	"fmt"
	"log/slog"
	"maps"
	"time"
)

// maxDeferredRounds bounds how many times mutations queued by listeners may
// trigger further queued mutations before the queue is dropped.
const maxDeferredRounds = 32

// checkSteps bounds the cycle search that cross-checks power when invariant
// checks are on. Graphs too dense to finish within it are not cross-checked.
const checkSteps = 1 << 14

// DefaultSearchSteps is the path-extension budget of Cycles and Snapshot
// unless WithSearchSteps overrides it.
const DefaultSearchSteps = 1 << 20

// Stats summarises one recompute.
type Stats struct {
	Op          string
	Components  int
	Connections int
	Loops       int // biconnected blocks of three or more components
	Live        int // loops holding a battery, open switches removed
	Powered     int
	Changes     int
	Duration    time.Duration
}

// Observer is notified after every recompute.
type Observer interface {
	Recomputed(Stats)
}

type observers []Observer

func (os observers) Recomputed(st Stats) {
	for _, o := range os {
		o.Recomputed(st)
	}
}

// Observers combines several observers into one, called in order. Nil
// entries are skipped.
func Observers(obs ...Observer) Observer {
	out := make(observers, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Option configures a Circuit.
type Option func(*Circuit)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Circuit) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver registers an Observer for recompute statistics.
func WithObserver(o Observer) Option {
	return func(c *Circuit) { c.obs = o }
}

// WithMaxCycles caps how many cycles Cycles and Snapshot list. n <= 0 means
// unbounded. Power does not depend on it.
func WithMaxCycles(n int) Option {
	return func(c *Circuit) { c.limits.MaxCycles = n }
}

// WithSearchSteps sets the path-extension budget of Cycles and Snapshot.
// n <= 0 means unbounded, which is only safe on small graphs.
func WithSearchSteps(n int) Option {
	return func(c *Circuit) { c.limits.MaxSteps = n }
}

// WithInvariantChecks verifies graph invariants before every recompute, and
// on small graphs the power map against an explicit cycle listing, and
// panics on violation.
func WithInvariantChecks(on bool) Option {
	return func(c *Circuit) { c.checks = on }
}

// ComponentOption configures a component at registration.
type ComponentOption func(*componentConfig)

type componentConfig struct {
	label  string
	closed *bool
}

// Labeled sets the display label of the component.
func Labeled(label string) ComponentOption {
	return func(s *componentConfig) { s.label = label }
}

// InitiallyClosed sets the initial switch state of the component.
func InitiallyClosed(closed bool) ComponentOption {
	return func(s *componentConfig) { s.closed = &closed }
}

type pendingOp struct {
	name   string
	mutate func() bool
}

// Circuit is the circuit-state context: graph, registry, power state and
// observers. Every public mutation runs graph edit, power propagation and
// notification to completion before returning. Cycles are listed lazily.
//
// A Circuit must be used from a single goroutine. Listeners must not expect
// their own mutations to take effect synchronously: mutations issued while
// notifications are being delivered are queued and applied afterwards.
type Circuit struct {
	store *Store
	reg   *Registry
	disp  *Dispatcher

	cycles    []Cycle
	truncated bool
	listed    bool // cycles matches the current graph
	power     PowerState
	stats     Stats

	log    *slog.Logger
	obs    Observer
	limits SearchLimits
	checks bool

	dispatching bool
	pending     []pendingOp
}

// New creates an empty Circuit.
func New(opts ...Option) *Circuit {
	c := &Circuit{
		store: NewStore(),
		reg:   NewRegistry(),
		disp:  NewDispatcher(),
		power:  make(PowerState),
		log:    slog.New(slog.DiscardHandler),
		limits: SearchLimits{MaxSteps: DefaultSearchSteps},
		listed: true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register creates or updates the component id. It returns the component's
// handle, or the zero Handle when called from inside a listener (the
// registration is then queued).
func (c *Circuit) Register(id ID, kind Kind, opts ...ComponentOption) Handle {
	var cfg componentConfig
	for _, o := range opts {
		o(&cfg)
	}
	if !kind.Valid() {
		c.log.Warn("invalid component kind, using other", "id", id, "kind", uint8(kind))
		kind = KindOther
	}
	var h Handle
	c.do("register", func() bool {
		h, _ = c.store.AddComponent(id)
		c.reg.SetKind(id, kind)
		c.reg.SetLabel(id, cfg.label)
		if cfg.closed != nil {
			c.reg.SetSwitch(id, *cfg.closed)
		}
		return true
	})
	return h
}

// Unregister removes id, its connections, its registry entries and its
// listener slot.
func (c *Circuit) Unregister(id ID) {
	c.do("unregister", func() bool {
		if !c.store.RemoveComponent(id) {
			return false
		}
		c.reg.Forget(id)
		c.disp.Forget(id)
		return true
	})
}

// Connect adds the connection {a, b}. Missing endpoints are registered with
// KindOther; a == b is ignored.
func (c *Circuit) Connect(a, b ID) {
	c.do("connect", func() bool {
		if a == b {
			return false
		}
		c.store.AddConnection(a, b)
		return true
	})
}

// Disconnect removes the connection {a, b} if present.
func (c *Circuit) Disconnect(a, b ID) {
	c.do("disconnect", func() bool {
		c.store.RemoveConnection(a, b)
		return true
	})
}

// DisconnectAll removes every connection touching id.
func (c *Circuit) DisconnectAll(id ID) {
	c.do("disconnect_all", func() bool {
		c.store.RemoveAllConnections(id)
		return true
	})
}

// SetSwitch stores the closed state of id. The power state is recomputed
// only when the value changed on a registered component; state set on an
// unknown id is kept for when it gets registered.
func (c *Circuit) SetSwitch(id ID, closed bool) {
	c.do("set_switch", func() bool {
		return c.reg.SetSwitch(id, closed) && c.store.Has(id)
	})
}

// Reset clears components, connections, switch states and memoised listener
// values. Listener slots and watchers survive.
func (c *Circuit) Reset() {
	c.do("reset", func() bool {
		c.store.Reset()
		c.reg.Reset()
		c.disp.ClearMemo()
		return true
	})
}

// Listen replaces the listener slot for id.
func (c *Circuit) Listen(id ID, fn Listener) *Subscription {
	return c.disp.Listen(id, fn)
}

// Unlisten clears the listener slot for id.
func (c *Circuit) Unlisten(id ID) {
	c.disp.Unlisten(id)
}

// Watch registers fn to receive every batch of changes.
func (c *Circuit) Watch(fn Watcher) *Subscription {
	return c.disp.Watch(fn)
}

// Powered returns the energized value of id; unknown IDs are unpowered.
func (c *Circuit) Powered(id ID) bool {
	return c.power[id]
}

// PowerState returns a copy of the current power map.
func (c *Circuit) PowerState() PowerState {
	return c.power.Clone()
}

// Cycles lists the simple cycles of the current graph, one per member set,
// within the configured search limits.
func (c *Circuit) Cycles() []Cycle {
	c.listCycles()
	out := make([]Cycle, len(c.cycles))
	for i, cy := range c.cycles {
		out[i] = append(Cycle(nil), cy...)
	}
	return out
}

// CyclesTruncated reports whether Cycles stopped at a search limit.
func (c *Circuit) CyclesTruncated() bool {
	c.listCycles()
	return c.truncated
}

func (c *Circuit) listCycles() {
	if c.listed {
		return
	}
	c.cycles, c.truncated = FindCyclesLimit(c.store, c.limits)
	c.listed = true
	if c.truncated {
		c.log.Warn("cycle enumeration truncated",
			"found", len(c.cycles),
			"max_cycles", c.limits.MaxCycles,
			"max_steps", c.limits.MaxSteps,
		)
	}
}

// Neighbors returns the components directly connected to id.
func (c *Circuit) Neighbors(id ID) []ID {
	return c.store.Neighbors(id)
}

// Component returns the public view of id.
func (c *Circuit) Component(id ID) (Component, bool) {
	if !c.store.Has(id) {
		return Component{}, false
	}
	return c.component(id), true
}

// Lookup resolves a handle returned by Register.
func (c *Circuit) Lookup(h Handle) (Component, bool) {
	id, ok := c.store.Resolve(h)
	if !ok {
		return Component{}, false
	}
	return c.component(id), true
}

func (c *Circuit) component(id ID) Component {
	comp := Component{
		ID:      id,
		Kind:    c.reg.Kind(id),
		Powered: c.power[id],
	}
	if l := c.reg.Label(id); l != string(id) {
		comp.Label = l
	}
	if comp.Kind == KindSwitch {
		comp.Closed = c.reg.SwitchClosed(id)
	}
	return comp
}

// Qualifies reports whether cy contains a battery and no open switch.
func (c *Circuit) Qualifies(cy Cycle) bool { return Qualifies(cy, c.reg) }

// Snapshot is a consistent copy of the whole circuit.
type Snapshot struct {
	Components  []Component  `json:"components"`
	Connections []Connection `json:"connections"`
	Cycles      []Cycle      `json:"cycles"`
}

// Snapshot returns the components (sorted by ID), connections and cycles.
func (c *Circuit) Snapshot() Snapshot {
	ids := c.store.Components()
	snap := Snapshot{
		Components:  make([]Component, 0, len(ids)),
		Connections: c.store.Connections(),
		Cycles:      c.Cycles(),
	}
	for _, id := range ids {
		snap.Components = append(snap.Components, c.component(id))
	}
	return snap
}

// Stats returns the statistics of the last recompute.
func (c *Circuit) Stats() Stats { return c.stats }

func (c *Circuit) do(name string, mutate func() bool) {
	if c.dispatching {
		c.log.Debug("mutation deferred until dispatch completes", "op", name)
		c.pending = append(c.pending, pendingOp{name: name, mutate: mutate})
		return
	}
	c.run(name, mutate)
	for round := 0; len(c.pending) > 0; round++ {
		if round >= maxDeferredRounds {
			c.log.Warn("dropping deferred mutations", "count", len(c.pending), "rounds", round)
			c.pending = nil
			break
		}
		batch := c.pending
		c.pending = nil
		for _, p := range batch {
			c.run(p.name, p.mutate)
		}
	}
}

func (c *Circuit) run(name string, mutate func() bool) {
	if mutate() {
		c.recompute(name)
	}
}

func (c *Circuit) recompute(op string) {
	start := time.Now()
	if c.checks {
		if err := c.store.check(); err != nil {
			panic(fmt.Sprintf("circuit: graph invariant violated after %s: %v", op, err))
		}
	}

	c.cycles, c.truncated, c.listed = nil, false, false
	power, bc := energize(c.store, c.reg)
	c.power = power
	if c.checks {
		c.checkPower(op)
	}

	changes := c.dispatch()

	st := Stats{
		Op:          op,
		Components:  c.store.Len(),
		Connections: c.store.EdgeCount(),
		Loops:       bc.loops,
		Live:        bc.live,
		Changes:     len(changes),
		Duration:    time.Since(start),
	}
	for _, on := range c.power {
		if on {
			st.Powered++
		}
	}
	c.stats = st
	if c.obs != nil {
		c.obs.Recomputed(st)
	}
	c.log.Debug("power recomputed",
		"op", op,
		"components", st.Components,
		"connections", st.Connections,
		"loops", st.Loops,
		"powered", st.Powered,
		"changes", st.Changes,
	)
}

func (c *Circuit) checkPower(op string) {
	cycles, truncated := FindCyclesLimit(c.store, SearchLimits{MaxSteps: checkSteps})
	if truncated {
		return
	}
	if want := Propagate(cycles, c.reg, c.store.Components()); !maps.Equal(c.power, want) {
		panic(fmt.Sprintf("circuit: power after %s disagrees with cycle listing: got %v, want %v", op, c.power, want))
	}
}

func (c *Circuit) dispatch() []Change {
	c.dispatching = true
	defer func() { c.dispatching = false }()
	return c.disp.Dispatch(c.power)
}
