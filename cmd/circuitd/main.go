// Package main implements circuitd, the circuit power daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/bridge"
	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/engine/events"
	"github.com/WessleyAI/wessley-circuit/engine/graph"
	"github.com/WessleyAI/wessley-circuit/engine/runtime"
	"github.com/WessleyAI/wessley-circuit/engine/telemetry"
	"github.com/WessleyAI/wessley-circuit/pkg/metrics"
	"github.com/WessleyAI/wessley-circuit/pkg/mid"
	"github.com/WessleyAI/wessley-circuit/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	CircuitName    string
	LayoutFile     string
	NATSURL        string
	NATSPrefix     string
	Neo4jURL       string
	Neo4jUser      string
	Neo4jPass      string
	CORSOrigin     string
	RateLimit      float64
	RateBurst      int
	ExportDebounce time.Duration
	MaxCycles      int
	SearchSteps    int
	LogLevel       slog.Level
}

func loadConfig() (Config, error) {
	cfg := Config{
		Port:        envOr("PORT", "8080"),
		CircuitName: envOr("CIRCUIT_NAME", "default"),
		LayoutFile:  os.Getenv("LAYOUT_FILE"),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSPrefix:  envOr("NATS_SUBJECT_PREFIX", "circuit"),
		Neo4jURL:    os.Getenv("NEO4J_URL"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
	}
	var err error
	if cfg.RateLimit, err = strconv.ParseFloat(envOr("RATE_LIMIT", "20"), 64); err != nil {
		return cfg, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	if cfg.RateBurst, err = strconv.Atoi(envOr("RATE_BURST", "40")); err != nil {
		return cfg, fmt.Errorf("RATE_BURST: %w", err)
	}
	if cfg.ExportDebounce, err = time.ParseDuration(envOr("EXPORT_DEBOUNCE", "2s")); err != nil {
		return cfg, fmt.Errorf("EXPORT_DEBOUNCE: %w", err)
	}
	if cfg.MaxCycles, err = strconv.Atoi(envOr("MAX_CYCLES", "10000")); err != nil {
		return cfg, fmt.Errorf("MAX_CYCLES: %w", err)
	}
	if cfg.SearchSteps, err = strconv.Atoi(envOr("CYCLE_SEARCH_STEPS", strconv.Itoa(circuit.DefaultSearchSteps))); err != nil {
		return cfg, fmt.Errorf("CYCLE_SEARCH_STEPS: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	observers := []circuit.Observer{telemetry.NewCircuitMetrics(reg)}

	// --- Neo4j export (optional) ---
	var store *graph.GraphStore
	var exporter *graph.Exporter
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())
		store = graph.New(driver)
		exporter = graph.NewExporter(store, graph.ExporterConfig{
			Circuit:  cfg.CircuitName,
			Debounce: cfg.ExportDebounce,
		}, logger)
		observers = append(observers, exporter)
	}

	// --- Circuit ---
	c := circuit.New(
		circuit.WithLogger(logger),
		circuit.WithObserver(circuit.Observers(observers...)),
		circuit.WithMaxCycles(cfg.MaxCycles),
		circuit.WithSearchSteps(cfg.SearchSteps),
	)
	if cfg.LayoutFile != "" {
		layout, err := circuit.ReadLayoutFile(cfg.LayoutFile)
		if err != nil {
			return err
		}
		layout.Apply(c)
		logger.Info("layout loaded", "file", cfg.LayoutFile, "components", len(layout.Components))
	}

	runner := runtime.New(c, logger)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		runner.Run(ctx)
	}()

	feed := events.NewFeed(cfg.CircuitName, logger)
	unwatch, err := runner.Watch(ctx, feed.Watch)
	if err != nil {
		return fmt.Errorf("watch circuit: %w", err)
	}

	if exporter != nil {
		go exporter.Run(ctx, runner)
		exporter.Kick()
	}

	// --- NATS bridge (optional) ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("circuitd"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		br := bridge.New(nc, runner, feed, bridge.Config{Prefix: cfg.NATSPrefix}, logger)
		go func() {
			if err := br.Run(ctx); err != nil {
				logger.Error("nats bridge stopped", "err", err)
			}
		}()
	}

	// --- HTTP server ---
	srv := newServer(serverDeps{
		name:     cfg.CircuitName,
		runner:   runner,
		feed:     feed,
		metrics:  reg,
		log:      logger,
		done:     ctx.Done(),
		graph:    graphOrNil(store),
		exporter: exporterOrNil(exporter),
	})
	limiter := resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: cfg.RateBurst})
	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(limiter, logger),
		mid.OTel("circuitd"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("circuitd starting", "port", cfg.Port, "circuit", cfg.CircuitName,
			"nats", cfg.NATSURL != "", "neo4j", cfg.Neo4jURL != "")
		errCh <- httpSrv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	unwatch()
	if err := httpSrv.Shutdown(shutCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	<-runDone
	return serveErr
}

// graphOrNil keeps a nil store from becoming a non-nil interface.
func graphOrNil(g *graph.GraphStore) graphReader {
	if g == nil {
		return nil
	}
	return g
}

func exporterOrNil(e *graph.Exporter) snapshotExporter {
	if e == nil {
		return nil
	}
	return e
}
