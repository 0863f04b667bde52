package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/engine/events"
	"github.com/WessleyAI/wessley-circuit/engine/graph"
	"github.com/WessleyAI/wessley-circuit/engine/runtime"
	"github.com/WessleyAI/wessley-circuit/pkg/metrics"
	"github.com/WessleyAI/wessley-circuit/pkg/repo"
	"gopkg.in/yaml.v3"
)

const maxBodyBytes = 1 << 20

// graphReader is the read side of the Neo4j store.
type graphReader interface {
	Counts(ctx context.Context, circuitName string) (graph.Counts, error)
	Components(ctx context.Context, circuitName string, offset, limit int) ([]graph.Node, error)
	GetComponent(ctx context.Context, circuitName, id string) (graph.Node, error)
	Neighbors(ctx context.Context, circuitName, id string, depth int) ([]graph.Node, error)
	TracePath(ctx context.Context, circuitName, fromID, toID string) ([]graph.Node, error)
}

type snapshotExporter interface {
	Export(ctx context.Context, src graph.Source) error
	Status() graph.ExportStatus
}

type serverDeps struct {
	name     string
	runner   *runtime.Runner
	feed     *events.Feed
	metrics  *metrics.Registry
	log      *slog.Logger
	done     <-chan struct{}
	graph    graphReader      // nil when Neo4j is disabled
	exporter snapshotExporter // nil when Neo4j is disabled
}

type server struct {
	serverDeps
}

func newServer(d serverDeps) *server {
	if d.log == nil {
		d.log = slog.Default()
	}
	return &server{serverDeps: d}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/circuit", s.handleCircuit)
	mux.HandleFunc("POST /api/components", s.handleRegister)
	mux.HandleFunc("DELETE /api/components/{id}", s.handleUnregister)
	mux.HandleFunc("DELETE /api/components/{id}/connections", s.handleDisconnectAll)
	mux.HandleFunc("POST /api/connections", s.handleConnect)
	mux.HandleFunc("DELETE /api/connections/{a}/{b}", s.handleDisconnect)
	mux.HandleFunc("PUT /api/switches/{id}", s.handleSwitch)
	mux.HandleFunc("GET /api/power/{id}", s.handlePower)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/layout", s.handleGetLayout)
	mux.HandleFunc("PUT /api/layout", s.handlePutLayout)
	mux.HandleFunc("GET /api/export", s.handleExportStatus)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/graph/components/{id}", s.handleGraphComponent)
	mux.HandleFunc("GET /api/graph/components/{id}/neighbors", s.handleGraphNeighbors)
	mux.HandleFunc("GET /api/graph/path/{a}/{b}", s.handleGraphPath)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// --- Responses ---

type errorResponse struct {
	Error string `json:"error"`
}

type powerResponse struct {
	ID      circuit.ID `json:"id"`
	Powered bool       `json:"powered"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps an error from the runtime or the graph store to a status code.
func (s *server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, runtime.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, graph.ErrNoPath):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, runtime.ErrStopped), errors.Is(err, graph.ErrNoDriver):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.log.Error("request failed", "op", op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// apply runs cmd and answers with the energized state of its target.
func (s *server) apply(w http.ResponseWriter, r *http.Request, status int, cmd runtime.Command) {
	powered, err := s.runner.Apply(r.Context(), cmd)
	if err != nil {
		s.fail(w, string(cmd.Op), err)
		return
	}
	writeJSON(w, status, powerResponse{ID: cmd.ID, Powered: powered})
}

// --- Circuit handlers ---

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "circuit": s.name})
}

func (s *server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runner.Snapshot(r.Context())
	if err != nil {
		s.fail(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RegisterRequest is the JSON body for POST /api/components.
type RegisterRequest struct {
	ID     circuit.ID `json:"id"`
	Kind   string     `json:"kind"`
	Label  string     `json:"label,omitempty"`
	Closed *bool      `json:"closed,omitempty"`
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.apply(w, r, http.StatusCreated, runtime.Command{
		Op: runtime.OpRegister, ID: req.ID, Kind: req.Kind, Label: req.Label, Closed: req.Closed,
	})
}

func (s *server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, http.StatusOK, runtime.Command{Op: runtime.OpUnregister, ID: circuit.ID(r.PathValue("id"))})
}

func (s *server) handleDisconnectAll(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, http.StatusOK, runtime.Command{Op: runtime.OpDisconnectAll, ID: circuit.ID(r.PathValue("id"))})
}

// ConnectionRequest is the JSON body for POST /api/connections.
type ConnectionRequest struct {
	A circuit.ID `json:"a"`
	B circuit.ID `json:"b"`
}

func (s *server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.apply(w, r, http.StatusOK, runtime.Command{Op: runtime.OpConnect, ID: req.A, Peer: req.B})
}

func (s *server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, http.StatusOK, runtime.Command{
		Op: runtime.OpDisconnect, ID: circuit.ID(r.PathValue("a")), Peer: circuit.ID(r.PathValue("b")),
	})
}

// SwitchRequest is the JSON body for PUT /api/switches/{id}.
type SwitchRequest struct {
	Closed *bool `json:"closed"`
}

func (s *server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := decode(r, &req); err != nil || req.Closed == nil {
		writeError(w, http.StatusBadRequest, `body must be {"closed": true|false}`)
		return
	}
	s.apply(w, r, http.StatusOK, runtime.Command{
		Op: runtime.OpSetSwitch, ID: circuit.ID(r.PathValue("id")), Closed: req.Closed,
	})
}

func (s *server) handlePower(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, http.StatusOK, runtime.Command{Op: runtime.OpPowered, ID: circuit.ID(r.PathValue("id"))})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	if _, err := s.runner.Apply(r.Context(), runtime.Command{Op: runtime.OpReset}); err != nil {
		s.fail(w, "reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Layouts ---

func (s *server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	var layout *circuit.Layout
	err := s.runner.Do(r.Context(), "layout", func(c *circuit.Circuit) error {
		layout = circuit.LayoutOf(s.name, c)
		return nil
	})
	if err != nil {
		s.fail(w, "layout", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(layout); err != nil {
		s.log.Warn("encode layout", "err", err)
	}
	enc.Close()
}

// handlePutLayout replaces the whole circuit with a YAML layout.
func (s *server) handlePutLayout(w http.ResponseWriter, r *http.Request) {
	layout, err := circuit.LoadLayout(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var snap circuit.Snapshot
	err = s.runner.Do(r.Context(), "load_layout", func(c *circuit.Circuit) error {
		c.Reset()
		layout.Apply(c)
		snap = c.Snapshot()
		return nil
	})
	if err != nil {
		s.fail(w, "layout", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Neo4j ---

func (s *server) handleExportStatus(w http.ResponseWriter, _ *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.exporter.Status())
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export disabled")
		return
	}
	if err := s.exporter.Export(r.Context(), s.runner); err != nil {
		s.log.Warn("manual export failed", "err", err)
		writeJSON(w, http.StatusBadGateway, s.exporter.Status())
		return
	}
	writeJSON(w, http.StatusOK, s.exporter.Status())
}

// GraphResponse is the JSON response for GET /api/graph.
type GraphResponse struct {
	Circuit    string       `json:"circuit"`
	Counts     graph.Counts `json:"counts"`
	Components []graph.Node `json:"components"`
}

func (s *server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph store disabled")
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	counts, err := s.graph.Counts(r.Context(), s.name)
	if err != nil {
		s.fail(w, "graph_counts", err)
		return
	}
	nodes, err := s.graph.Components(r.Context(), s.name, offset, limit)
	if err != nil {
		s.fail(w, "graph_components", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Circuit: s.name, Counts: counts, Components: nodes})
}

func (s *server) handleGraphComponent(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph store disabled")
		return
	}
	n, err := s.graph.GetComponent(r.Context(), s.name, r.PathValue("id"))
	if err != nil {
		s.fail(w, "graph_component", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *server) handleGraphNeighbors(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph store disabled")
		return
	}
	nodes, err := s.graph.Neighbors(r.Context(), s.name, r.PathValue("id"), queryInt(r, "depth", 1))
	if err != nil {
		s.fail(w, "graph_neighbors", err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *server) handleGraphPath(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph store disabled")
		return
	}
	nodes, err := s.graph.TracePath(r.Context(), s.name, r.PathValue("a"), r.PathValue("b"))
	if err != nil {
		s.fail(w, "graph_path", err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
