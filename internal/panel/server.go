// Package panel serves the HTTP API the graph editor talks to: one-shot
// compile, shape, code and diagram endpoints, live editing sessions, and an
// SSE stream of analysis events.
package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/graphio"
	"github.com/rendis/netgraph/internal/recompute"
	"github.com/rendis/netgraph/internal/streaming"
	"github.com/rendis/netgraph/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// PanelDeps holds the dependencies for the panel server. Sessions and Hub
// may be nil, which disables the session and SSE routes.
type PanelDeps struct {
	Pipeline  *engine.Pipeline
	Decoder   *graphio.Decoder
	Validator *validation.GraphValidator
	Sessions  *recompute.Manager
	Hub       streaming.EventHub
	Logger    *slog.Logger

	// DiagramBinDir is searched for the mermaid-ascii binary.
	DiagramBinDir string
}

// PanelServer serves the editor API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) (*PanelServer, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Pipeline == nil {
		deps.Pipeline = engine.NewPipeline(engine.PipelineDeps{Logger: deps.Logger}, engine.PipelineConfig{})
	}
	if deps.Decoder == nil {
		d, err := graphio.NewDecoder()
		if err != nil {
			return nil, err
		}
		deps.Decoder = d
	}
	if deps.Validator == nil {
		v, err := validation.NewGraphValidator(deps.Pipeline.Registry())
		if err != nil {
			return nil, err
		}
		deps.Validator = v
	}
	return &PanelServer{deps: deps}, nil
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// One-shot analysis of a posted document.
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/compile", s.handleCompile)
	mux.HandleFunc("POST /api/shapes", s.handleShapes)
	mux.HandleFunc("POST /api/code", s.handleCode)
	mux.HandleFunc("POST /api/diagram", s.handleDiagram)
	mux.HandleFunc("GET /api/layers", s.handleLayers)

	if s.deps.Sessions != nil {
		mux.HandleFunc("GET /api/sessions", s.handleListSessions)
		mux.HandleFunc("POST /api/sessions", s.handleOpenSession)
		mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
		mux.HandleFunc("PUT /api/sessions/{id}/graph", s.handleUpdateSession)
		mux.HandleFunc("POST /api/sessions/{id}/analyze", s.handleAnalyzeSession)
		mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	}

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
		mux.HandleFunc("GET /sse/sessions/{id}", s.handleSSESession)
	}

	return mux
}
