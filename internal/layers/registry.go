package layers

import (
	"fmt"
	"sort"

	"github.com/rendis/netgraph/pkg/schema"
)

// Layer is one registry entry: input validation, shape computation and code
// emission for a single layer kind.
type Layer interface {
	Kind() Kind
	// ValidateInputs checks arity and dimensionality of the incoming shapes.
	// The returned error explains what was expected and what was received.
	ValidateInputs(inputs []schema.Shape, p Params) error
	// ComputeShape derives the output shape. Callers validate inputs first.
	ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult
	// GenerateCode returns the framework constructor call for this layer.
	GenerateCode(p Params) string
	// Defaults are the parameter values assumed when a param is absent.
	Defaults() Params
	SupportsMultiplier() bool
	MergeCapable() bool
}

// SourceRole reports whether a kind declares its own shape instead of
// receiving one (Input nodes).
func SourceRole(k Kind) bool {
	return k == KindInput
}

// Registry maps layer kinds to their entries. It is built once and never
// mutated afterwards, so it can be shared freely between goroutines.
type Registry struct {
	layers map[Kind]Layer
}

// Option customizes registry construction.
type Option func(*Registry)

// WithLayer adds or replaces the entry for l.Kind().
func WithLayer(l Layer) Option {
	return func(r *Registry) {
		r.layers[l.Kind()] = l
	}
}

// NewRegistry creates a registry with every built-in layer kind.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{layers: make(map[Kind]Layer)}

	r.registerCore()
	r.registerConv()
	r.registerRecurrent()
	r.registerMerge()

	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) add(ls ...Layer) {
	for _, l := range ls {
		r.layers[l.Kind()] = l
	}
}

// Get returns the entry for a kind.
func (r *Registry) Get(k Kind) (Layer, bool) {
	l, ok := r.layers[k]
	return l, ok
}

// Lookup resolves a node type key to its entry.
func (r *Registry) Lookup(typeName string) (Layer, error) {
	l, ok := r.layers[ParseKind(typeName)]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownLayer, "Unknown layer type: %s", typeName)
	}
	return l, nil
}

// Known reports whether the type key resolves to a registered entry.
func (r *Registry) Known(typeName string) bool {
	_, ok := r.layers[ParseKind(typeName)]
	return ok
}

// MergeCapable reports whether the type key names a merge-capable layer.
func (r *Registry) MergeCapable(typeName string) bool {
	l, err := r.Lookup(typeName)
	return err == nil && l.MergeCapable()
}

// Descriptor summarizes one registry entry for listings.
type Descriptor struct {
	Type               string `json:"type"`
	MergeCapable       bool   `json:"merge_capable"`
	SupportsMultiplier bool   `json:"supports_multiplier"`
	SourceRole         bool   `json:"source_role"`
	Defaults           Params `json:"defaults,omitempty"`
}

// Describe lists all registered kinds, sorted by type name.
func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.layers))
	for k, l := range r.layers {
		out = append(out, Descriptor{
			Type:               k.String(),
			MergeCapable:       l.MergeCapable(),
			SupportsMultiplier: l.SupportsMultiplier(),
			SourceRole:         SourceRole(k),
			Defaults:           l.Defaults(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type < out[j].Type
	})
	return out
}

// Apply validates the inputs and computes the output shape of l, honoring the
// node's multiplier by feeding each repetition's output into the next.
func Apply(l Layer, inputs []schema.Shape, p Params) schema.ShapeResult {
	times, err := Multiplier(p)
	if err != nil {
		return shapeErr("%s %s", l.Kind(), err)
	}
	if times > 1 && !l.SupportsMultiplier() {
		return shapeErr("%s does not support a multiplier (got %d)", l.Kind(), times)
	}

	current := inputs
	var res schema.ShapeResult
	var warning string
	for i := 1; i <= times; i++ {
		if err := l.ValidateInputs(current, p); err != nil {
			return schema.ShapeResult{Error: withRepeat(errMessage(err), i, times)}
		}
		res = l.ComputeShape(current, p)
		if res.Error != "" {
			return schema.ShapeResult{Error: withRepeat(res.Error, i, times)}
		}
		if res.Shape == nil {
			return shapeErr("%s could not compute an output shape from %s", l.Kind(), describeInputs(current))
		}
		if res.Warning != "" && warning == "" {
			warning = res.Warning
		}
		current = []schema.Shape{res.Shape}
	}
	res.Warning = warning
	return res
}

func withRepeat(msg string, i, times int) string {
	if times == 1 {
		return msg
	}
	return fmt.Sprintf("repetition %d of %d: %s", i, times, msg)
}

// errMessage extracts the user-facing message from an error.
func errMessage(err error) string {
	if ge, ok := err.(*schema.GraphError); ok {
		return ge.Message
	}
	return err.Error()
}

func describeInputs(inputs []schema.Shape) string {
	switch len(inputs) {
	case 0:
		return "no inputs"
	case 1:
		return fmt.Sprintf("%d-D input %s", inputs[0].Rank(), inputs[0])
	default:
		return fmt.Sprintf("%d inputs", len(inputs))
	}
}
