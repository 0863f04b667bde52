package circuit

import (
	"cmp"
	"slices"
)

// Listener receives the new energized value of one component.
type Listener func(powered bool)

// Watcher receives every change produced by one recompute, ordered by ID.
type Watcher func(changes []Change)

// Subscription is returned by every registration. Cancel removes exactly the
// entry that created it; cancelling after the entry was replaced is a no-op.
type Subscription struct {
	cancel func() bool
}

// Cancel removes the registration and reports whether it was still active.
func (s *Subscription) Cancel() bool {
	if s == nil || s.cancel == nil {
		return false
	}
	c := s.cancel
	s.cancel = nil
	return c()
}

type listenerSlot struct {
	fn    Listener
	token uint64
}

type watcherEntry struct {
	fn    Watcher
	token uint64
}

// Dispatcher owns the observer table and the memo of last delivered values.
// It is driven synchronously by Dispatch and is not safe for concurrent use.
type Dispatcher struct {
	listeners map[ID]listenerSlot
	watchers  []watcherEntry
	memo      PowerState
	removed   []ID // powered components forgotten since the last dispatch
	tokens    uint64
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[ID]listenerSlot),
		memo:      make(PowerState),
	}
}

// Listen installs fn as the single listener for id, replacing any previous one.
func (d *Dispatcher) Listen(id ID, fn Listener) *Subscription {
	d.tokens++
	token := d.tokens
	d.listeners[id] = listenerSlot{fn: fn, token: token}
	return &Subscription{cancel: func() bool {
		if cur, ok := d.listeners[id]; ok && cur.token == token {
			delete(d.listeners, id)
			return true
		}
		return false
	}}
}

// Unlisten clears the listener slot for id.
func (d *Dispatcher) Unlisten(id ID) bool {
	_, ok := d.listeners[id]
	delete(d.listeners, id)
	return ok
}

// Listening reports whether id has a listener.
func (d *Dispatcher) Listening(id ID) bool {
	_, ok := d.listeners[id]
	return ok
}

// Watch appends fn to the ordered list of watchers.
func (d *Dispatcher) Watch(fn Watcher) *Subscription {
	d.tokens++
	token := d.tokens
	d.watchers = append(d.watchers, watcherEntry{fn: fn, token: token})
	return &Subscription{cancel: func() bool {
		i := slices.IndexFunc(d.watchers, func(w watcherEntry) bool { return w.token == token })
		if i < 0 {
			return false
		}
		d.watchers = slices.Delete(d.watchers, i, i+1)
		return true
	}}
}

// Forget drops the listener slot and memoised value of id.
func (d *Dispatcher) Forget(id ID) {
	delete(d.listeners, id)
	d.forgetValue(id)
}

// ClearMemo drops every memoised value but keeps listeners and watchers.
// Listeners of components that were powered get false on the next Dispatch.
func (d *Dispatcher) ClearMemo() {
	for id := range d.memo {
		d.forgetValue(id)
	}
}

func (d *Dispatcher) forgetValue(id ID) {
	if d.memo[id] {
		d.removed = append(d.removed, id)
	}
	delete(d.memo, id)
}

// Dispatch diffs next against the memo, records next as the new memo and
// delivers the differences. Listeners get one call per changed component,
// false for a removal; watchers get the whole batch once.
func (d *Dispatcher) Dispatch(next PowerState) []Change {
	var changes []Change
	for _, id := range d.removed {
		if _, back := next[id]; !back {
			changes = append(changes, Change{ID: id, Removed: true})
		}
	}
	d.removed = d.removed[:0]
	for id, on := range next {
		if d.memo[id] != on {
			changes = append(changes, Change{ID: id, Powered: on})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	slices.SortFunc(changes, func(a, b Change) int { return cmp.Compare(a.ID, b.ID) })

	for id := range d.memo {
		if _, ok := next[id]; !ok {
			delete(d.memo, id)
		}
	}
	for id, on := range next {
		d.memo[id] = on
	}

	for _, ch := range changes {
		// A removal only reaches a listener whose slot outlived the
		// component, as after ClearMemo; it reads as unpowered.
		if slot, ok := d.listeners[ch.ID]; ok {
			slot.fn(ch.Powered)
		}
	}
	if len(d.watchers) > 0 {
		for _, w := range slices.Clone(d.watchers) {
			w.fn(slices.Clone(changes))
		}
	}
	return changes
}
