package circuit

// Registry associates components with their functional kind, display label
// and, for switches, the closed state. Lookups of unknown IDs return the
// defaults (KindOther, open) so events may arrive before registration.
type Registry struct {
	kinds    map[ID]Kind
	labels   map[ID]string
	switches map[ID]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:    make(map[ID]Kind),
		labels:   make(map[ID]string),
		switches: make(map[ID]bool),
	}
}

// SetKind records the kind of id and reports whether it changed.
func (r *Registry) SetKind(id ID, k Kind) bool {
	prev := r.Kind(id)
	if k == KindOther {
		delete(r.kinds, id)
	} else {
		r.kinds[id] = k
	}
	return prev != k
}

// Kind returns the kind of id, KindOther if never set.
func (r *Registry) Kind(id ID) Kind {
	return r.kinds[id]
}

// SetLabel records the display label of id.
func (r *Registry) SetLabel(id ID, label string) {
	if label == "" {
		delete(r.labels, id)
		return
	}
	r.labels[id] = label
}

// Label returns the display label of id, falling back to the ID itself.
func (r *Registry) Label(id ID) string {
	if l, ok := r.labels[id]; ok {
		return l
	}
	return string(id)
}

// SetSwitch stores the closed state of id regardless of its kind and
// reports whether the stored value changed.
func (r *Registry) SetSwitch(id ID, closed bool) bool {
	prev := r.switches[id]
	if closed {
		r.switches[id] = true
	} else {
		delete(r.switches, id)
	}
	return prev != closed
}

// SwitchClosed returns the stored state of id, false (open) if never set.
func (r *Registry) SwitchClosed(id ID) bool {
	return r.switches[id]
}

// Forget drops everything recorded for id.
func (r *Registry) Forget(id ID) {
	delete(r.kinds, id)
	delete(r.labels, id)
	delete(r.switches, id)
}

// Reset drops everything.
func (r *Registry) Reset() {
	clear(r.kinds)
	clear(r.labels)
	clear(r.switches)
}
