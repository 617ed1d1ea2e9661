package codegen

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/pkg/schema"
)

// DefaultRepeatThreshold is the largest multiplier emitted as literal
// repeated fragments; larger counts use a loop form.
const DefaultRepeatThreshold = 3

const header = `import tensorflow as tf
from tensorflow import keras
from tensorflow.keras import layers
`

// Output is the generated source plus the style that produced it.
type Output struct {
	Code     string           `json:"code"`
	Style    schema.CodeStyle `json:"style"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Emitter renders compiled graphs as Keras model definitions.
type Emitter struct {
	reg       *layers.Registry
	threshold int
	optimizer string
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithRepeatThreshold sets the largest multiplier written out literally.
func WithRepeatThreshold(n int) Option {
	return func(e *Emitter) {
		if n >= 1 {
			e.threshold = n
		}
	}
}

// WithOptimizer sets the optimizer named in the compile footer.
func WithOptimizer(name string) Option {
	return func(e *Emitter) {
		if name != "" {
			e.optimizer = name
		}
	}
}

// New creates an Emitter over the given registry.
func New(reg *layers.Registry, opts ...Option) *Emitter {
	e := &Emitter{reg: reg, threshold: DefaultRepeatThreshold, optimizer: "adam"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit generates source for dag. shapes may be nil; when present, input
// declarations use the computed shapes. StyleAuto resolves through
// RequiredStyle. Sequential emission refuses non-linear graphs with a
// NOT_LINEAR error instead of truncating them.
func (e *Emitter) Emit(dag *schema.DAGResult, shapes *schema.ShapeReport, style schema.CodeStyle) (*Output, error) {
	if dag == nil || !dag.IsValid {
		return nil, schema.NewError(schema.ErrCodeValidation, "cannot generate code for an invalid network")
	}

	if style == "" || style == schema.StyleAuto {
		style = RequiredStyle(dag, e.reg)
	}

	r := &render{e: e, dag: dag, shapes: shapes, preds: dag.Predecessors()}
	switch style {
	case schema.StyleSequential:
		if v := linearViolation(dag); v != "" {
			return nil, schema.NewErrorf(schema.ErrCodeNotLinear, "not a linear path: %s", v).
				WithDetails(map[string]any{"reasons": v})
		}
		r.sequential()
	case schema.StyleFunctional:
		r.functional()
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown code style: %s", style)
	}

	return &Output{Code: r.b.String(), Style: style, Warnings: r.warnings}, nil
}

// render holds the state of one Emit call.
type render struct {
	e        *Emitter
	dag      *schema.DAGResult
	shapes   *schema.ShapeReport
	preds    map[string][]string
	b        strings.Builder
	warnings []string
}

func (r *render) warnf(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

// fragment returns the constructor call for a node and how many times it
// repeats. ok is false for unknown layer types.
func (r *render) fragment(n schema.LayerObject) (code string, times int, ok bool) {
	l, err := r.e.reg.Lookup(n.Type)
	if err != nil {
		r.warnf("%s: unknown layer type %s was not emitted", n.VarName, n.Type)
		return "", 0, false
	}
	if layers.SourceRole(l.Kind()) {
		return r.inputDecl(n), 1, true
	}

	p := layers.Params(n.Params)
	times, err = layers.Multiplier(p)
	if err != nil {
		r.warnf("%s: %v; emitted once", n.VarName, err)
		times = 1
	}
	if times > 1 && !l.SupportsMultiplier() {
		r.warnf("%s: %s does not support a multiplier; emitted once", n.VarName, n.Type)
		times = 1
	}
	return l.GenerateCode(p), times, true
}

// inputDecl declares a source using its computed shape when available.
func (r *render) inputDecl(n schema.LayerObject) string {
	if r.shapes != nil {
		if s, ok := r.shapes.NodeShapes[n.ID]; ok {
			return layers.InputCode(s)
		}
	}
	if dims, err := layers.Params(n.Params).Dims("shape"); err == nil && dims != nil {
		return layers.InputCode(schema.Shape(dims))
	}
	r.warnf("%s: input shape is unknown; declared as (None,)", n.VarName)
	return "keras.Input(shape=(None,))"
}

// --- Sequential ---

func (r *render) sequential() {
	r.b.WriteString(header)
	r.b.WriteString("\nmodel = keras.Sequential([\n")

	for i, n := range r.dag.OrderedNodes {
		code, times, ok := r.fragment(n)
		if !ok {
			fmt.Fprintf(&r.b, "    # %s: unknown layer type %s\n", n.VarName, n.Type)
			continue
		}
		if i == 0 && !r.isInput(n) {
			r.warnf("%s: %s has no input connections", n.VarName, n.Type)
			fmt.Fprintf(&r.b, "    # warning: %s has no input connections\n", n.VarName)
		}
		if times > r.e.threshold {
			fmt.Fprintf(&r.b, "    *[%s for _ in range(%d)],\n", code, times)
			continue
		}
		for range times {
			fmt.Fprintf(&r.b, "    %s,\n", code)
		}
	}

	r.b.WriteString("])\n")
	r.footer()
}

// --- Functional ---

func (r *render) functional() {
	r.b.WriteString(header)
	r.b.WriteString("\n")

	var inputs, outputs []string
	detached := make(map[string]bool)

	for _, n := range r.dag.OrderedNodes {
		preds := r.preds[n.ID]
		code, times, ok := r.fragment(n)

		switch {
		case !ok:
			fmt.Fprintf(&r.b, "# %s: unknown layer type %s\n", n.VarName, n.Type)
			if len(preds) == 1 && !detached[preds[0]] {
				fmt.Fprintf(&r.b, "%s = %s\n", n.VarName, r.varOf(preds[0]))
			} else {
				detached[n.ID] = true
			}
			continue

		case len(preds) == 0 && r.isInput(n):
			fmt.Fprintf(&r.b, "%s = %s\n", n.VarName, code)
			inputs = append(inputs, n.VarName)
			continue

		case r.isInput(n):
			r.warnf("%s: %s has %d incoming connections; they are ignored", n.VarName, n.Type, len(preds))
			fmt.Fprintf(&r.b, "# warning: %s is an input but has incoming connections\n", n.VarName)
			fmt.Fprintf(&r.b, "%s = %s\n", n.VarName, code)
			inputs = append(inputs, n.VarName)
			continue

		case len(preds) == 0:
			r.warnf("%s: %s has no input connections; emitted as an unconnected layer", n.VarName, n.Type)
			fmt.Fprintf(&r.b, "# warning: %s has no input connections\n", n.VarName)
			fmt.Fprintf(&r.b, "%s = %s\n", n.VarName, code)
			detached[n.ID] = true
			continue
		}

		args := make([]string, 0, len(preds))
		for _, p := range preds {
			if detached[p] {
				continue
			}
			args = append(args, r.varOf(p))
		}
		if len(args) == 0 {
			r.warnf("%s: every predecessor of %s is unconnected", n.VarName, n.Type)
			fmt.Fprintf(&r.b, "# warning: %s has no usable input\n", n.VarName)
			fmt.Fprintf(&r.b, "%s = %s\n", n.VarName, code)
			detached[n.ID] = true
			continue
		}
		if len(args) > 1 && !r.e.reg.MergeCapable(n.Type) {
			r.warnf("%s: %s is not a merge layer but receives %d inputs; they are passed as a list",
				n.VarName, n.Type, len(args))
		}
		r.call(n.VarName, code, times, args)
	}

	for _, n := range r.dag.Sinks() {
		if !detached[n.ID] {
			outputs = append(outputs, n.VarName)
		}
	}

	fmt.Fprintf(&r.b, "\nmodel = keras.Model(inputs=%s, outputs=%s)\n", pyList(inputs), pyList(outputs))
	r.footer()
}

// call writes var = code(args), honoring the repetition count.
func (r *render) call(varName, code string, times int, args []string) {
	arg := args[0]
	if len(args) > 1 {
		arg = "[" + strings.Join(args, ", ") + "]"
	}

	if times > r.e.threshold {
		loops := times
		if len(args) > 1 {
			fmt.Fprintf(&r.b, "%s = %s(%s)\n", varName, code, arg)
			loops--
		} else {
			fmt.Fprintf(&r.b, "%s = %s\n", varName, arg)
		}
		fmt.Fprintf(&r.b, "for _ in range(%d):\n", loops)
		fmt.Fprintf(&r.b, "    %s = %s(%s)\n", varName, code, varName)
		return
	}

	fmt.Fprintf(&r.b, "%s = %s(%s)\n", varName, code, arg)
	for i := 1; i < times; i++ {
		fmt.Fprintf(&r.b, "%s = %s(%s)\n", varName, code, varName)
	}
}

func (r *render) varOf(id string) string {
	if n, ok := r.dag.Node(id); ok {
		return n.VarName
	}
	return id
}

func (r *render) isInput(n schema.LayerObject) bool {
	return layers.ParseKind(n.Type) == layers.KindInput
}

// pyList renders one name bare and several as a list.
func pyList(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// --- footer ---

func (r *render) footer() {
	fmt.Fprintf(&r.b, "\nmodel.compile(optimizer=%s, loss=%s, metrics=['accuracy'])\n", quote(r.e.optimizer), r.loss())
	r.b.WriteString("model.summary()\n")
}

// loss derives the compile loss from the Output nodes. Several outputs with
// different problem types get one loss per output.
func (r *render) loss() string {
	var losses []string
	distinct := make(map[string]bool)
	for _, n := range r.dag.OrderedNodes {
		if layers.ParseKind(n.Type) != layers.KindOutput {
			continue
		}
		l := layers.LossFor(layers.Params(n.Params))
		losses = append(losses, quote(l))
		distinct[l] = true
	}
	switch {
	case len(losses) == 0:
		r.warnf("no Output layer found; compile loss defaults to categorical_crossentropy")
		return quote("categorical_crossentropy")
	case len(distinct) == 1:
		return losses[0]
	default:
		return "[" + strings.Join(losses, ", ") + "]"
	}
}

func quote(s string) string { return layers.PyString(s) }
