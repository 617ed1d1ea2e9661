package engine

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/pkg/schema"
)

// InferOption customizes a shape inference pass.
type InferOption func(*inferConfig)

type inferConfig struct {
	paramErrors map[string]error
}

// WithParamErrors marks nodes whose parameters could not be resolved.
// Those nodes get the error instead of a shape.
func WithParamErrors(errs map[string]error) InferOption {
	return func(c *inferConfig) {
		c.paramErrors = errs
	}
}

// InferShapes walks the compiled order and computes every node's output
// shape. Failures are recorded per node and never stop the pass: a node whose
// predecessor failed reports that its input shape is unavailable.
//
// inputShape is the fallback used by Input nodes that declare no shape.
// An invalid DAG yields one graph-scoped error per node and no shapes.
func InferShapes(dag *schema.DAGResult, inputShape []int, reg *layers.Registry, opts ...InferOption) *schema.ShapeReport {
	cfg := &inferConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	report := &schema.ShapeReport{
		Errors:     []schema.ShapeError{},
		NodeShapes: make(map[string]schema.Shape),
	}

	if dag == nil {
		return report
	}
	if !dag.IsValid {
		code, msg := structuralError(dag.Errors)
		for _, id := range dag.NodeIDs {
			report.Errors = append(report.Errors, schema.ShapeError{
				NodeID: id, Message: msg, Code: code, Scope: schema.ScopeGraph,
			})
		}
		return report
	}

	inf := &inference{
		reg:      reg,
		fallback: schema.Shape(inputShape),
		preds:    dag.Predecessors(),
		cfg:      cfg,
		report:   report,
	}
	for _, node := range dag.OrderedNodes {
		inf.visit(node)
	}
	return report
}

func structuralError(errs []string) (code, msg string) {
	code = schema.ErrCodeValidation
	for _, e := range errs {
		if e == MsgCycle {
			code = schema.ErrCodeCycleDetected
		}
	}
	return code, "Invalid network structure: " + strings.Join(errs, "; ")
}

type inference struct {
	reg      *layers.Registry
	fallback schema.Shape
	preds    map[string][]string
	cfg      *inferConfig
	report   *schema.ShapeReport
}

// visit computes one node. A panicking registry entry becomes a node error.
func (inf *inference) visit(node schema.LayerObject) {
	defer func() {
		if r := recover(); r != nil {
			delete(inf.report.NodeShapes, node.ID)
			inf.fail(node.ID, schema.ErrCodeShape, fmt.Sprintf("%s shape computation panicked: %v", node.Type, r))
		}
	}()

	if err, ok := inf.cfg.paramErrors[node.ID]; ok && err != nil {
		inf.fail(node.ID, schema.ErrCodeExpression, errMessage(err))
		return
	}

	preds := inf.preds[node.ID]
	if len(preds) == 0 && layers.ParseKind(node.Type) == layers.KindInput {
		inf.visitInput(node)
		return
	}
	if len(preds) == 0 {
		inf.fail(node.ID, schema.ErrCodeShape, fmt.Sprintf("%s has no input connections", node.Type))
		return
	}

	inputs := make([]schema.Shape, 0, len(preds))
	for _, p := range preds {
		s, ok := inf.report.NodeShapes[p]
		if !ok {
			inf.fail(node.ID, schema.ErrCodeShape,
				fmt.Sprintf("input shape unavailable: predecessor %s has no computed shape", p))
			return
		}
		inputs = append(inputs, s)
	}

	l, err := inf.reg.Lookup(node.Type)
	if err != nil {
		inf.fail(node.ID, schema.ErrCodeUnknownLayer, errMessage(err))
		return
	}
	inf.record(node, layers.Apply(l, inputs, node.Params))
}

// visitInput derives a source node's shape from its own parameters. The
// caller-supplied default only applies when the node declares no shape; a
// declared but invalid shape is an error.
func (inf *inference) visitInput(node schema.LayerObject) {
	l, err := inf.reg.Lookup(node.Type)
	if err != nil {
		inf.fail(node.ID, schema.ErrCodeUnknownLayer, errMessage(err))
		return
	}

	params := layers.Params(node.Params)
	if params.Has("shape") {
		inf.record(node, layers.Apply(l, nil, params))
		return
	}
	if len(inf.fallback) == 0 {
		inf.fail(node.ID, schema.ErrCodeShape, "Input has no shape parameter and no default input shape was supplied")
		return
	}
	inf.record(node, schema.ShapeResult{Shape: inf.fallback.Clone()})
}

// record stores a successful shape or the error explaining why there is none.
// Non-positive dimensions are rejected here so they never propagate.
func (inf *inference) record(node schema.LayerObject, res schema.ShapeResult) {
	if res.Error != "" {
		inf.fail(node.ID, schema.ErrCodeShape, res.Error)
		return
	}
	if res.Shape == nil {
		inf.fail(node.ID, schema.ErrCodeShape, fmt.Sprintf("%s did not produce an output shape", node.Type))
		return
	}
	if i := res.Shape.FirstNonPositive(); i >= 0 {
		inf.fail(node.ID, schema.ErrCodeShape, fmt.Sprintf("%s output shape %s has non-positive dimension %d at axis %d",
			node.Type, res.Shape, res.Shape[i], i))
		return
	}
	inf.report.NodeShapes[node.ID] = res.Shape
	if res.Warning != "" {
		inf.report.Warnings = append(inf.report.Warnings, schema.ShapeWarning{
			NodeID: node.ID, Message: res.Warning, Source: schema.WarningFromLayer,
		})
	}
}

func (inf *inference) fail(nodeID, code, msg string) {
	inf.report.Errors = append(inf.report.Errors, schema.ShapeError{
		NodeID: nodeID, Message: msg, Code: code, Scope: schema.ScopeNode,
	})
}

func errMessage(err error) string {
	if ge, ok := err.(*schema.GraphError); ok {
		return ge.Message
	}
	return err.Error()
}
