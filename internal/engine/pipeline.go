package engine

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/rendis/netgraph/internal/codegen"
	"github.com/rendis/netgraph/internal/expressions"
	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/internal/lint"
	"github.com/rendis/netgraph/internal/logging"
	"github.com/rendis/netgraph/pkg/schema"
)

// PipelineDeps holds the collaborators of a Pipeline. Nil fields get defaults:
// the built-in registry, an expr-backed resolver, an emitter over the
// registry and a stderr logger. A nil Linter disables linting.
type PipelineDeps struct {
	Registry *layers.Registry
	Resolver *expressions.ParamResolver
	Linter   *lint.Linter
	Emitter  *codegen.Emitter
	Logger   *slog.Logger
}

// PipelineConfig holds tunable pipeline settings.
type PipelineConfig struct {
	// DefaultInputShape is used by Input nodes without a shape when the
	// document does not carry its own fallback.
	DefaultInputShape []int
}

// Pipeline runs one full recomputation over a graph snapshot.
// It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	reg      *layers.Registry
	resolver *expressions.ParamResolver
	linter   *lint.Linter
	emitter  *codegen.Emitter
	logger   *slog.Logger
	cfg      PipelineConfig
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if deps.Registry == nil {
		deps.Registry = layers.NewRegistry()
	}
	if deps.Resolver == nil {
		deps.Resolver = expressions.NewParamResolver(nil)
	}
	if deps.Emitter == nil {
		deps.Emitter = codegen.New(deps.Registry)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Pipeline{
		reg:      deps.Registry,
		resolver: deps.Resolver,
		linter:   deps.Linter,
		emitter:  deps.Emitter,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

// Registry returns the layer registry the pipeline compiles against.
func (p *Pipeline) Registry() *layers.Registry {
	return p.reg
}

// Run resolves parameter expressions, compiles the graph, infers shapes,
// lints, emits code in the requested style and builds the canvas overlay.
//
// An invalid graph still yields a report: every node carries the graph-level
// error and there are no shapes and no code. The only error Run returns is
// CANCELLED, when ctx ends between stages.
func (p *Pipeline) Run(ctx context.Context, doc *schema.GraphDocument, style schema.CodeStyle) (*schema.AnalysisReport, error) {
	if doc == nil {
		doc = &schema.GraphDocument{}
	}
	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, runID)
	log := logging.LogWith(ctx, p.logger)

	if err := cancelled(ctx, "resolve"); err != nil {
		return nil, err
	}
	nodes, paramErrs := p.resolver.Resolve(ctx, doc.Nodes, doc.Variables)
	if err := cancelled(ctx, "compile"); err != nil {
		return nil, err
	}

	dag := Compile(nodes, doc.Edges)
	report := &schema.AnalysisReport{RunID: runID, DAG: dag}
	if !dag.IsValid {
		report.Shapes = InferShapes(dag, nil, p.reg)
		report.Overlay = overlay(dag, report.Shapes)
		log.Debug("graph rejected", "errors", len(dag.Errors))
		return report, nil
	}

	inputShape := doc.InputShape
	if len(inputShape) == 0 {
		inputShape = p.cfg.DefaultInputShape
	}
	report.Shapes = InferShapes(dag, inputShape, p.reg, WithParamErrors(paramErrs))

	if p.linter != nil {
		if err := cancelled(ctx, "lint"); err != nil {
			return nil, err
		}
		report.Shapes.Warnings = append(report.Shapes.Warnings, p.linter.Lint(ctx, dag, report.Shapes)...)
	}

	if err := cancelled(ctx, "emit"); err != nil {
		return nil, err
	}
	out, err := p.emitter.Emit(dag, report.Shapes, style)
	if err != nil {
		report.CodeError = errMessage(err)
		report.CodeErrorCode = schema.ErrorCode(err)
		report.Style = style
	} else {
		report.Code = out.Code
		report.Style = out.Style
		report.CodeWarnings = out.Warnings
	}

	report.Overlay = overlay(dag, report.Shapes)
	log.Debug("analysis finished",
		"nodes", len(dag.OrderedNodes),
		"shape_errors", len(report.Shapes.Errors),
		"warnings", len(report.Shapes.Warnings),
		"style", report.Style,
	)
	return report, nil
}

func cancelled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return schema.NewErrorf(schema.ErrCodeCancelled, "analysis cancelled before %s", stage).WithCause(err)
	}
	return nil
}

// overlay builds the per-node status map. Only the first error of a node is
// shown; warnings are joined.
func overlay(dag *schema.DAGResult, shapes *schema.ShapeReport) map[string]schema.NodeStatus {
	ids := dag.NodeIDs
	if len(ids) == 0 {
		for _, n := range dag.OrderedNodes {
			ids = append(ids, n.ID)
		}
	}

	warnings := make(map[string][]string)
	if shapes != nil {
		for _, w := range shapes.Warnings {
			warnings[w.NodeID] = append(warnings[w.NodeID], w.Message)
		}
	}

	out := make(map[string]schema.NodeStatus, len(ids))
	for _, id := range ids {
		var st schema.NodeStatus
		if shapes != nil {
			if e, ok := shapes.ErrorFor(id); ok {
				st.HasShapeError = true
				st.ShapeErrorMessage = e.Message
				st.Scope = e.Scope
			}
			st.Shape = shapes.NodeShapes[id]
		}
		if ws := warnings[id]; len(ws) > 0 {
			st.HasWarning = true
			st.WarningMessage = strings.Join(ws, "; ")
		}
		out[id] = st
	}
	return out
}
