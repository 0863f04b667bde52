// Package circuit models an electrical circuit as a graph of named components
// and undirected connections, and classifies each component as energized or not.
//
// A component is energized when it lies on at least one simple cycle that
// contains a battery and no open switch. The classification is recomputed in
// full after every mutation and changes are pushed to registered listeners.
package circuit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ID is the stable scene name of a component.
type ID string

// Kind is the functional type of a component.
type Kind uint8

const (
	KindOther Kind = iota
	KindBattery
	KindLED
	KindMotor
	KindWire
	KindSwitch
)

var kindNames = [...]string{
	KindOther:   "other",
	KindBattery: "battery",
	KindLED:     "led",
	KindMotor:   "motor",
	KindWire:    "wire",
	KindSwitch:  "switch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return int(k) < len(kindNames) }

// ParseKind converts a case-insensitive kind name into a Kind.
// The empty string parses as KindOther.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindOther, nil
	}
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindOther, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Handle is an arena reference to a registered component. A handle goes
// stale when its component is unregistered, even if the slot is reused.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Component is the public view of a registered component.
type Component struct {
	ID      ID     `json:"id"`
	Kind    Kind   `json:"kind"`
	Label   string `json:"label,omitempty"`
	Closed  bool   `json:"closed,omitempty"` // switches only
	Powered bool   `json:"powered"`
}

// Connection is an unordered pair of distinct component IDs, stored with A < B.
type Connection struct {
	A ID `json:"a"`
	B ID `json:"b"`
}

// NewConnection returns the canonical form of the pair {a, b}.
func NewConnection(a, b ID) Connection {
	if b < a {
		a, b = b, a
	}
	return Connection{A: a, B: b}
}

// Has reports whether id is an endpoint of c.
func (c Connection) Has(id ID) bool { return c.A == id || c.B == id }

// MarshalJSON encodes a connection as a two element array.
func (c Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]ID{c.A, c.B})
}

// UnmarshalJSON decodes a two element array into canonical form.
func (c *Connection) UnmarshalJSON(data []byte) error {
	var pair [2]ID
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	*c = NewConnection(pair[0], pair[1])
	return nil
}

// PowerState maps every registered component to its energized value.
type PowerState map[ID]bool

// Clone returns an independent copy of s.
func (s PowerState) Clone() PowerState {
	out := make(PowerState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Change describes one component whose energized value changed during a recompute.
type Change struct {
	ID      ID   `json:"id"`
	Powered bool `json:"powered"`
	// Removed is set when the component left the circuit while powered.
	Removed bool `json:"removed,omitempty"`
}
