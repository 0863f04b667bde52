package graph

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/pkg/fn"
	"github.com/WessleyAI/wessley-circuit/pkg/resilience"
)

// Saver persists a circuit snapshot.
type Saver interface {
	SaveSnapshot(ctx context.Context, circuitName string, snap circuit.Snapshot) error
}

// Source supplies the current circuit snapshot.
type Source interface {
	Snapshot(ctx context.Context) (circuit.Snapshot, error)
}

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	Circuit  string
	Debounce time.Duration // delay between the first change and the export, default 2s
	Timeout  time.Duration // per-attempt deadline, default 10s
	Retry    fn.RetryOpts
	Breaker  resilience.BreakerOpts
}

// ExportStatus describes the most recent export attempt.
type ExportStatus struct {
	At         time.Time `json:"at"`
	Components int       `json:"components"`
	Error      string    `json:"error,omitempty"`
	Exports    int       `json:"exports"`
	Failures   int       `json:"failures"`
}

// Exporter writes snapshots to a Saver after the circuit changes. Changes
// arriving while an export is pending are folded into it.
type Exporter struct {
	store   Saver
	cfg     ExporterConfig
	log     *slog.Logger
	breaker *resilience.Breaker
	kick    chan struct{}

	mu     sync.Mutex
	status ExportStatus
}

// NewExporter creates an Exporter. Call Run to start exporting.
func NewExporter(store Saver, cfg ExporterConfig, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fn.DefaultRetry
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = func(err error) bool { return !errors.Is(err, ErrNoDriver) }
	}
	bo := cfg.Breaker
	bo.OnStateChange = func(from, to resilience.State) {
		logger.Warn("neo4j export breaker", "from", from.String(), "to", to.String())
	}
	return &Exporter{
		store:   store,
		cfg:     cfg,
		log:     logger,
		breaker: resilience.NewBreaker(bo),
		kick:    make(chan struct{}, 1),
	}
}

// Recomputed implements circuit.Observer: every recompute schedules an
// export. It never blocks.
func (e *Exporter) Recomputed(circuit.Stats) { e.Kick() }

// Kick schedules an export.
func (e *Exporter) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run exports from src after each burst of changes until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context, src Source) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.kick:
			if timer == nil {
				timer = time.NewTimer(e.cfg.Debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			if err := e.Export(ctx, src); err != nil && ctx.Err() == nil {
				e.log.Warn("neo4j export failed", "circuit", e.cfg.Circuit, "error", err)
			}
		}
	}
}

// Export writes the current snapshot now.
func (e *Exporter) Export(ctx context.Context, src Source) error {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return err
	}
	res := resilience.CallResult(e.breaker, ctx, func(ctx context.Context) fn.Result[int] {
		return fn.Retry(ctx, e.cfg.Retry, func(ctx context.Context) fn.Result[int] {
			ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
			return fn.FromPair(len(snap.Components), e.store.SaveSnapshot(ctx, e.cfg.Circuit, snap))
		})
	})
	n, err := res.Unwrap()

	e.mu.Lock()
	e.status.At = time.Now().UTC()
	if err != nil {
		e.status.Failures++
		e.status.Error = err.Error()
	} else {
		e.status.Exports++
		e.status.Components = n
		e.status.Error = ""
	}
	e.mu.Unlock()

	if err == nil {
		e.log.Debug("neo4j export done", "circuit", e.cfg.Circuit, "components", n)
	}
	return err
}

// Status returns the outcome of the latest export.
func (e *Exporter) Status() ExportStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}
