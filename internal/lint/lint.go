// Package lint evaluates CEL rules over successfully shaped nodes and turns
// matches into warnings. Rules never produce errors: a rule that fails to
// evaluate is logged and skipped.
package lint

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rendis/netgraph/internal/expressions"
	"github.com/rendis/netgraph/internal/logging"
	"github.com/rendis/netgraph/pkg/schema"
)

// Rule is one lint check. When evaluates to true for a node, Message is
// reported as a warning on it. Message may reference {var}, {type} and {shape}.
type Rule struct {
	Name    string `json:"name"`
	When    string `json:"when"`
	Message string `json:"message"`
}

// DefaultRules are the built-in checks.
var DefaultRules = []Rule{
	{
		Name:    "wide-dense",
		When:    `node.type in ["Dense", "dense"] && size(shape) == 1 && shape[0] > 4096`,
		Message: "{var} outputs {shape}; consider a narrower layer",
	},
	{
		Name:    "large-flatten",
		When:    `node.type in ["Flatten", "flatten"] && size(shape) == 1 && shape[0] > 100000`,
		Message: "{var} flattens to {shape}; consider pooling before flattening",
	},
	{
		Name:    "high-dropout",
		When:    `node.type in ["Dropout", "dropout"] && has(node.params.rate) && double(node.params.rate) > 0.7`,
		Message: "{var} drops more than 70% of activations",
	},
	{
		Name:    "single-channel-merge",
		When:    `size(input_shapes) > 1 && size(shape) > 0 && shape[size(shape) - 1] == 1`,
		Message: "{var} merges inputs whose last axis has size 1",
	},
}

// Linter evaluates rules with a CEL engine.
type Linter struct {
	engine *expressions.CELEngine
	rules  []Rule
	logger *slog.Logger
}

// New creates a Linter. Rules that fail to compile are rejected up front.
// A nil logger falls back to stderr.
func New(engine *expressions.CELEngine, rules []Rule, logger *slog.Logger) (*Linter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if engine == nil {
		var err error
		if engine, err = expressions.NewCELEngine(); err != nil {
			return nil, err
		}
	}
	for _, r := range rules {
		if r.Name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "lint rule has no name")
		}
		if err := engine.Compile(r.When); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "lint rule %s: %s", r.Name, err.Error()).WithCause(err)
		}
	}
	return &Linter{engine: engine, rules: rules, logger: logger}, nil
}

// Rules returns the active rules.
func (l *Linter) Rules() []Rule {
	return append([]Rule(nil), l.rules...)
}

// Lint evaluates every rule against every shaped node in topological order.
func (l *Linter) Lint(ctx context.Context, dag *schema.DAGResult, shapes *schema.ShapeReport) []schema.ShapeWarning {
	if dag == nil || !dag.IsValid || shapes == nil || len(l.rules) == 0 {
		return nil
	}

	preds := dag.Predecessors()
	graph := map[string]any{
		"node_count":   int64(len(dag.OrderedNodes)),
		"source_count": int64(len(dag.Sources())),
		"sink_count":   int64(len(dag.Sinks())),
	}

	var warnings []schema.ShapeWarning
	for _, n := range dag.OrderedNodes {
		shape, ok := shapes.NodeShapes[n.ID]
		if !ok {
			continue
		}
		inputs := make([]any, 0, len(preds[n.ID]))
		for _, p := range preds[n.ID] {
			inputs = append(inputs, celShape(shapes.NodeShapes[p]))
		}
		data := map[string]any{
			"node": map[string]any{
				"id":       n.ID,
				"type":     n.Type,
				"var_name": n.VarName,
				"params":   paramsOrEmpty(n.Params),
			},
			"input_shapes": inputs,
			"shape":        celShape(shape),
			"graph":        graph,
		}

		nodeCtx := logging.WithNode(ctx, n)
		for _, r := range l.rules {
			out, err := l.engine.Evaluate(nodeCtx, r.When, data)
			if err != nil {
				logging.LogWith(nodeCtx, l.logger).Debug("lint rule skipped", "rule", r.Name, "error", err)
				continue
			}
			if hit, _ := out.(bool); hit {
				warnings = append(warnings, schema.ShapeWarning{
					NodeID:  n.ID,
					Message: render(r.Message, n, shape),
					Source:  schema.WarningFromLint,
					Rule:    r.Name,
				})
			}
		}
	}
	return warnings
}

func celShape(s schema.Shape) []any {
	out := make([]any, len(s))
	for i, d := range s {
		out[i] = int64(d)
	}
	return out
}

func paramsOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

func render(msg string, n schema.LayerObject, shape schema.Shape) string {
	r := strings.NewReplacer(
		"{var}", n.VarName,
		"{type}", n.Type,
		"{shape}", shape.String(),
	)
	if msg == "" {
		return fmt.Sprintf("%s matched a lint rule", n.VarName)
	}
	return r.Replace(msg)
}
