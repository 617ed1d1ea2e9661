package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/rendis/netgraph/internal/codegen"
	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/graphio"
	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/internal/lint"
	"github.com/rendis/netgraph/internal/logging"
	"github.com/rendis/netgraph/internal/panel"
	"github.com/rendis/netgraph/internal/recompute"
	"github.com/rendis/netgraph/internal/streaming"
	"github.com/rendis/netgraph/internal/validation"
	netmcp "github.com/rendis/netgraph/pkg/mcp"
)

// app is the wired set of server components.
type app struct {
	cfg      Config
	logger   *slog.Logger
	pipeline *engine.Pipeline
	hub      *streaming.MemoryHub
	pool     *recompute.Pool
	sessions *recompute.Manager
	panel    *livePanel
	mcp      *netmcp.NetgraphServer
}

// newLogger writes text logs to w with IDs from the context attached.
func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(logging.NewTraceHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// newPipeline builds the analysis pipeline from cfg.
func newPipeline(cfg Config, logger *slog.Logger) (*engine.Pipeline, error) {
	reg := layers.NewRegistry()

	rules := cfg.LintRules
	if rules == nil {
		rules = lint.DefaultRules
	}
	linter, err := lint.New(nil, rules, logger)
	if err != nil {
		return nil, err
	}

	emitter := codegen.New(reg,
		codegen.WithRepeatThreshold(cfg.RepeatLoopThreshold),
		codegen.WithOptimizer(cfg.Optimizer),
	)
	return engine.NewPipeline(engine.PipelineDeps{
		Registry: reg,
		Linter:   linter,
		Emitter:  emitter,
		Logger:   logger,
	}, engine.PipelineConfig{DefaultInputShape: cfg.DefaultInputShape}), nil
}

// newDecoder builds the import decoder; its output is checked against the
// graph document schema.
func newDecoder(cfg Config) (*graphio.Decoder, error) {
	schemaValidator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return graphio.NewDecoder(graphio.WithQuery(cfg.ImportQuery), graphio.WithValidator(schemaValidator))
}

func newApp(cfg Config, logger *slog.Logger) (*app, error) {
	pipeline, err := newPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}
	decoder, err := newDecoder(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		hub:      streaming.NewMemoryHub(),
		pool:     recompute.NewPool(cfg.PoolSize),
	}
	a.sessions = recompute.NewManager(recompute.ManagerDeps{
		Pipeline: pipeline,
		Hub:      a.hub,
		Pool:     a.pool,
		Logger:   logger,
	}, recompute.ManagerConfig{Debounce: time.Duration(cfg.DebounceMs) * time.Millisecond})

	srv, err := a.newPanel(decoder)
	if err != nil {
		return nil, err
	}
	a.panel = newLivePanel(srv, cfg.ImportQuery)
	a.mcp, err = netmcp.NewNetgraphServer(netmcp.NetgraphServerDeps{
		Pipeline:      pipeline,
		Decoder:       decoder,
		Sessions:      a.sessions,
		Logger:        logger,
		DiagramBinDir: cfg.DiagramBinDir,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) newPanel(decoder *graphio.Decoder) (*panel.PanelServer, error) {
	return panel.NewPanelServer(panel.PanelDeps{
		Pipeline:      a.pipeline,
		Decoder:       decoder,
		Sessions:      a.sessions,
		Hub:           a.hub,
		Logger:        a.logger,
		DiagramBinDir: a.cfg.DiagramBinDir,
	})
}

// reloadImport rebuilds the panel around a new import query. Open sessions
// are kept. A query that does not compile leaves the served panel untouched.
func (a *app) reloadImport(cfg Config) error {
	decoder, err := newDecoder(cfg)
	if err != nil {
		return err
	}
	srv, err := a.newPanel(decoder)
	if err != nil {
		return err
	}
	a.panel.Replace(srv, cfg.ImportQuery)
	a.cfg.ImportQuery = cfg.ImportQuery
	return nil
}

// close stops sessions and waits for in-flight analyses.
func (a *app) close() {
	a.sessions.Shutdown()
	a.pool.Shutdown()
	a.logger.Info("analysis pool stopped", "metrics", a.pool.Metrics().String())
}
