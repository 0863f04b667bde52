// Package bridge exposes a circuit over NATS: commands arrive by
// request/reply and power changes go out as events.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/events"
	"github.com/WessleyAI/wessley-circuit/engine/runtime"
	"github.com/WessleyAI/wessley-circuit/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// Applier executes commands against a circuit.
type Applier interface {
	Apply(ctx context.Context, cmd runtime.Command) (bool, error)
}

// Reply answers a command request.
type Reply struct {
	OK      bool   `json:"ok"`
	Powered bool   `json:"powered"`
	Error   string `json:"error,omitempty"`
}

// Config controls subject names and timeouts.
type Config struct {
	Prefix       string        // subject prefix, default "circuit"
	Queue        string        // queue group for command handlers, default "circuitd"
	ApplyTimeout time.Duration // per-command deadline, default 5s
	Buffer       int           // pending power events, default 1024
}

func (c *Config) defaults() {
	if c.Prefix == "" {
		c.Prefix = "circuit"
	}
	if c.Queue == "" {
		c.Queue = "circuitd"
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 5 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
}

// CommandSubject is where commands are accepted.
func CommandSubject(prefix string) string { return prefix + ".commands" }

// PowerSubject is where power events for id are published.
func PowerSubject(prefix string, id string) string {
	return prefix + ".power." + natsutil.Token(id)
}

// Bridge connects a NATS connection to a circuit runner and event feed.
type Bridge struct {
	nc    *nats.Conn
	apply Applier
	feed  *events.Feed
	cfg   Config
	log   *slog.Logger
}

// New creates a Bridge. Call Run to start serving.
func New(nc *nats.Conn, apply Applier, feed *events.Feed, cfg Config, logger *slog.Logger) *Bridge {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{nc: nc, apply: apply, feed: feed, cfg: cfg, log: logger}
}

// Run subscribes to commands and forwards power events until ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.nc == nil {
		return errors.New("bridge: nil nats connection")
	}
	sub, err := natsutil.Handle(b.nc, CommandSubject(b.cfg.Prefix), b.cfg.Queue, b.handle, invalidReply)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			b.log.Warn("unsubscribe commands", "error", err)
		}
	}()

	evs, cancel := b.feed.Subscribe(b.cfg.Buffer)
	defer cancel()

	b.log.Info("nats bridge started", "commands", CommandSubject(b.cfg.Prefix))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evs:
			if !ok {
				return nil
			}
			if err := natsutil.Publish(ctx, b.nc, PowerSubject(b.cfg.Prefix, string(ev.ID)), ev); err != nil {
				b.log.Warn("publish power event failed", "id", ev.ID, "error", err)
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, cmd runtime.Command) Reply {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ApplyTimeout)
	defer cancel()
	powered, err := b.apply.Apply(ctx, cmd)
	if err != nil {
		if !errors.Is(err, runtime.ErrInvalidCommand) {
			b.log.Error("nats command failed", "op", cmd.Op, "id", cmd.ID, "error", err)
		}
		return Reply{Error: err.Error()}
	}
	return Reply{OK: true, Powered: powered}
}

func invalidReply(err error) Reply {
	return Reply{Error: "malformed command: " + err.Error()}
}
