// Package resilience guards calls to external systems with a circuit
// breaker and limits request rates per client key.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-circuit/pkg/fn"
)

// State is the breaker position.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // tripping, reject calls
	StateHalfOpen              // allowing a probe call
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before entering half-open.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed in half-open state.
	HalfOpenMax int
	// OnStateChange is called, with the breaker lock released, after every
	// transition.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	st := b.currentState()
	b.mu.Unlock()
	b.notify(from, st)
	return st
}

// currentState moves open to half-open once the timeout has elapsed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.halfOpenCount = 0
	}
	return b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, to)
	}
}

// admit reserves a call slot. It reports the state seen before and after.
func (b *Breaker) admit() (from, to State, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from = b.state
	to = b.currentState()
	switch to {
	case StateOpen:
		return from, to, false
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			return from, to, false
		}
		b.halfOpenCount++
	}
	return from, to, true
}

// record folds the outcome of a call into the breaker.
func (b *Breaker) record(failed bool) (from, to State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from = b.state
	if failed {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
		return from, b.state
	}
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
	b.failures = 0
	return from, b.state
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	return CallResult(b, ctx, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, f(ctx))
	}).Error()
}

// CallResult executes f through the breaker, failing fast with
// ErrBreakerOpen while it is open.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	from, to, ok := b.admit()
	b.notify(from, to)
	if !ok {
		return fn.Err[T](ErrBreakerOpen)
	}
	result := f(ctx)
	b.notify(b.record(result.IsErr()))
	return result
}
