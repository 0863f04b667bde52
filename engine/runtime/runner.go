// Package runtime serialises access to a circuit onto a single goroutine,
// the event thread every circuit operation runs on.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrStopped is returned once the runner has stopped.
var ErrStopped = errors.New("runtime stopped")

const tracerName = "github.com/WessleyAI/wessley-circuit/engine/runtime"

type request struct {
	ctx   context.Context
	name  string
	attrs []attribute.KeyValue
	fn    func(*circuit.Circuit) error
	resp  chan error
}

// Runner owns a circuit and runs every operation on it from one goroutine.
type Runner struct {
	circuit *circuit.Circuit
	reqs    chan request
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger
	tracer  trace.Tracer
}

// New creates a Runner for c. Call Run to start processing.
func New(c *circuit.Circuit, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		circuit: c,
		reqs:    make(chan request),
		done:    make(chan struct{}),
		log:     logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Run processes operations until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer r.once.Do(func() { close(r.done) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-r.reqs:
			req.resp <- r.exec(req)
		}
	}
}

func (r *Runner) exec(req request) (err error) {
	_, span := r.tracer.Start(req.ctx, "circuit."+req.name, trace.WithAttributes(req.attrs...))
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("circuit operation panicked", "op", req.name, "panic", p)
			err = errors.New("circuit operation panicked")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return req.fn(r.circuit)
}

// Do runs fn on the circuit goroutine and waits for it to finish. fn must
// not retain c beyond its own execution.
func (r *Runner) Do(ctx context.Context, name string, fn func(c *circuit.Circuit) error) error {
	return r.do(ctx, name, nil, fn)
}

func (r *Runner) do(ctx context.Context, name string, attrs []attribute.KeyValue, fn func(*circuit.Circuit) error) error {
	req := request{ctx: ctx, name: name, attrs: attrs, fn: fn, resp: make(chan error, 1)}
	select {
	case r.reqs <- req:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply validates and executes cmd, returning the energized value of the
// command's target afterwards.
func (r *Runner) Apply(ctx context.Context, cmd Command) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}
	if cmd.Ref == "" {
		cmd.Ref = uuid.NewString()
	}
	var powered bool
	attrs := []attribute.KeyValue{
		attribute.String("circuit.ref", cmd.Ref),
		attribute.String("circuit.id", string(cmd.ID)),
	}
	err := r.do(ctx, string(cmd.Op), attrs, func(c *circuit.Circuit) error {
		powered = cmd.apply(c)
		return nil
	})
	if err != nil {
		return false, err
	}
	r.log.Debug("command applied", "ref", cmd.Ref, "op", cmd.Op, "id", cmd.ID, "powered", powered)
	return powered, nil
}

// Snapshot returns a copy of the circuit state.
func (r *Runner) Snapshot(ctx context.Context) (circuit.Snapshot, error) {
	var snap circuit.Snapshot
	err := r.Do(ctx, "snapshot", func(c *circuit.Circuit) error {
		snap = c.Snapshot()
		return nil
	})
	return snap, err
}

// Watch registers w on the circuit goroutine. w runs on that goroutine and
// must not block. The returned cancel function is safe to call from any
// goroutine.
func (r *Runner) Watch(ctx context.Context, w circuit.Watcher) (cancel func(), err error) {
	var sub *circuit.Subscription
	err = r.Do(ctx, "watch", func(c *circuit.Circuit) error {
		sub = c.Watch(w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = r.Do(context.Background(), "unwatch", func(*circuit.Circuit) error {
			sub.Cancel()
			return nil
		})
	}, nil
}
