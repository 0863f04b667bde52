package runtime

import (
	"errors"
	"fmt"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
)

// Op names a circuit operation.
type Op string

const (
	OpRegister      Op = "register"
	OpUnregister    Op = "unregister"
	OpConnect       Op = "connect"
	OpDisconnect    Op = "disconnect"
	OpDisconnectAll Op = "disconnect_all"
	OpSetSwitch     Op = "set_switch"
	OpReset         Op = "reset"
	OpPowered       Op = "powered"
)

// ErrInvalidCommand is wrapped by every CommandError.
var ErrInvalidCommand = errors.New("invalid command")

// CommandError reports why a command was rejected.
type CommandError struct {
	Op     Op
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidCommand, e.Op, e.Reason)
}

func (e *CommandError) Unwrap() error { return ErrInvalidCommand }

// Command is a serialisable circuit operation, used by the HTTP API and the
// NATS bridge alike.
type Command struct {
	Ref    string     `json:"ref,omitempty"`
	Op     Op         `json:"op"`
	ID     circuit.ID `json:"id,omitempty"`
	Peer   circuit.ID `json:"peer,omitempty"`
	Kind   string     `json:"kind,omitempty"`
	Label  string     `json:"label,omitempty"`
	Closed *bool      `json:"closed,omitempty"` // nil keeps the stored switch state
}

// Validate checks that the fields required by Op are present. It does not
// check that referenced components exist: unknown IDs are no-ops.
func (c Command) Validate() error {
	switch c.Op {
	case OpReset:
		return nil
	case OpRegister:
		if _, err := circuit.ParseKind(c.Kind); err != nil {
			return &CommandError{Op: c.Op, Reason: err.Error()}
		}
	case OpUnregister, OpDisconnectAll, OpPowered:
	case OpSetSwitch:
		if c.Closed == nil {
			return &CommandError{Op: c.Op, Reason: "closed is required"}
		}
	case OpConnect, OpDisconnect:
		if c.Peer == "" {
			return &CommandError{Op: c.Op, Reason: "peer is required"}
		}
	case "":
		return &CommandError{Op: c.Op, Reason: "op is required"}
	default:
		return &CommandError{Op: c.Op, Reason: "unknown op"}
	}
	if c.ID == "" {
		return &CommandError{Op: c.Op, Reason: "id is required"}
	}
	return nil
}

// apply executes a validated command and returns the energized value of the
// command's target afterwards.
func (c Command) apply(ck *circuit.Circuit) bool {
	switch c.Op {
	case OpRegister:
		kind, _ := circuit.ParseKind(c.Kind)
		opts := []circuit.ComponentOption{circuit.Labeled(c.Label)}
		if kind == circuit.KindSwitch && c.Closed != nil {
			opts = append(opts, circuit.InitiallyClosed(*c.Closed))
		}
		ck.Register(c.ID, kind, opts...)
	case OpUnregister:
		ck.Unregister(c.ID)
	case OpConnect:
		ck.Connect(c.ID, c.Peer)
	case OpDisconnect:
		ck.Disconnect(c.ID, c.Peer)
	case OpDisconnectAll:
		ck.DisconnectAll(c.ID)
	case OpSetSwitch:
		ck.SetSwitch(c.ID, *c.Closed)
	case OpReset:
		ck.Reset()
	}
	return ck.Powered(c.ID)
}
