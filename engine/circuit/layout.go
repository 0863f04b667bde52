package circuit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Layout is a declarative circuit description, typically read from YAML:
//
//	name: bench
//	components:
//	  - {id: bat, kind: battery}
//	  - {id: sw1, kind: switch, closed: true, label: Main switch}
//	connections:
//	  - [bat, sw1]
type Layout struct {
	Name        string            `yaml:"name" json:"name"`
	Components  []LayoutComponent `yaml:"components" json:"components"`
	Connections [][]ID            `yaml:"connections" json:"connections"`
}

// LayoutComponent declares one component of a Layout.
type LayoutComponent struct {
	ID     ID     `yaml:"id" json:"id"`
	Kind   string `yaml:"kind" json:"kind"`
	Label  string `yaml:"label,omitempty" json:"label,omitempty"`
	Closed *bool  `yaml:"closed,omitempty" json:"closed,omitempty"`
}

// LoadLayout decodes and validates a YAML layout. Unknown fields are rejected.
func LoadLayout(r io.Reader) (*Layout, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var l Layout
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return &l, nil
		}
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// ReadLayoutFile loads the layout stored at path.
func ReadLayoutFile(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout: %w", err)
	}
	defer f.Close()
	l, err := LoadLayout(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

var (
	errEmptyID        = errors.New("empty component id")
	errDuplicateID    = errors.New("duplicate component id")
	errEndpointCount  = errors.New("connection needs exactly two endpoints")
	errSelfConnection = errors.New("self connection")
)

// Validate checks kinds, IDs and connection shapes. Connections may name
// components that are not declared; they are created with KindOther.
func (l *Layout) Validate() error {
	seen := make(map[ID]struct{}, len(l.Components))
	for i, c := range l.Components {
		field := "components[" + strconv.Itoa(i) + "]"
		if c.ID == "" {
			return newLayoutError(field+".id", "", errEmptyID)
		}
		if _, dup := seen[c.ID]; dup {
			return newLayoutError(field+".id", string(c.ID), errDuplicateID)
		}
		seen[c.ID] = struct{}{}
		if _, err := ParseKind(c.Kind); err != nil {
			return newLayoutError(field+".kind", c.Kind, ErrUnknownKind)
		}
	}
	for i, pair := range l.Connections {
		field := "connections[" + strconv.Itoa(i) + "]"
		if len(pair) != 2 {
			return newLayoutError(field, fmt.Sprint(pair), errEndpointCount)
		}
		if pair[0] == "" || pair[1] == "" {
			return newLayoutError(field, fmt.Sprint(pair), errEmptyID)
		}
		if pair[0] == pair[1] {
			return newLayoutError(field, string(pair[0]), errSelfConnection)
		}
	}
	return nil
}

// Apply registers the layout's components and connections on c. The layout
// must have passed Validate. A switch without closed keeps whatever state c
// already holds for it.
func (l *Layout) Apply(c *Circuit) {
	for _, lc := range l.Components {
		kind, _ := ParseKind(lc.Kind)
		opts := []ComponentOption{Labeled(lc.Label)}
		if kind == KindSwitch && lc.Closed != nil {
			opts = append(opts, InitiallyClosed(*lc.Closed))
		}
		c.Register(lc.ID, kind, opts...)
	}
	for _, pair := range l.Connections {
		c.Connect(pair[0], pair[1])
	}
}

// LayoutOf captures the current topology of c as a Layout.
func LayoutOf(name string, c *Circuit) *Layout {
	l := &Layout{Name: name}
	for _, id := range c.store.Components() {
		comp := c.component(id)
		lc := LayoutComponent{
			ID:    comp.ID,
			Kind:  comp.Kind.String(),
			Label: comp.Label,
		}
		if comp.Kind == KindSwitch {
			lc.Closed = &comp.Closed
		}
		l.Components = append(l.Components, lc)
	}
	for _, conn := range c.store.Connections() {
		l.Connections = append(l.Connections, []ID{conn.A, conn.B})
	}
	return l
}
