package layers

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/pkg/schema"
)

func (r *Registry) registerCore() {
	r.add(
		inputLayer{base{kind: KindInput}},
		denseLayer{base{kind: KindOutput, defaults: Params{"units": 10, "problemType": "multiclass"}}},
		denseLayer{base{kind: KindDense, multiplier: true, defaults: Params{"units": 128, "activation": "relu"}}},
		flattenLayer{base{kind: KindFlatten}},
		dropoutLayer{base{kind: KindDropout, multiplier: true, defaults: Params{"rate": 0.5}}},
		identityLayer{base{kind: KindActivation, multiplier: true, defaults: Params{"activation": "relu"}}},
		identityLayer{base{kind: KindBatchNormalization, multiplier: true}},
		reshapeLayer{base{kind: KindReshape}},
	)
}

// --- Input ---

type inputLayer struct{ base }

func (l inputLayer) ValidateInputs(inputs []schema.Shape, _ Params) error {
	if len(inputs) != 0 {
		return invalidf("Input expects no incoming connections, got %d", len(inputs))
	}
	return nil
}

func (l inputLayer) ComputeShape(_ []schema.Shape, p Params) schema.ShapeResult {
	dims, err := p.Dims("shape")
	if err != nil {
		return shapeErr("Input %s", err)
	}
	if dims == nil {
		return shapeErr("Input has no shape parameter")
	}
	s := schema.Shape(dims)
	if i := s.FirstNonPositive(); i >= 0 {
		return shapeErr("Input shape %s has a non-positive dimension at axis %d", s, i)
	}
	return schema.ShapeResult{Shape: s}
}

func (l inputLayer) GenerateCode(p Params) string {
	if res := l.ComputeShape(nil, p); res.Shape != nil {
		return InputCode(res.Shape)
	}
	return "keras.Input(shape=(None,))"
}

// InputCode renders an input declaration for a known shape.
func InputCode(s schema.Shape) string {
	return "keras.Input(" + kw("shape", s.Tuple()) + ")"
}

// --- Dense / Output ---

// denseLayer serves both Dense and Output: a fully connected layer applied to
// the last axis. 1-D inputs are the norm; 2-D inputs keep their leading axis.
type denseLayer struct{ base }

var problemTypes = map[string]bool{"multiclass": true, "binary": true, "regression": true}

func (l denseLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	in := inputs[0]
	if in.Rank() == 0 || in.Rank() > 2 {
		return invalidf("%s expects a 1-D input [features], got %d-D input %s; add a Flatten layer before it",
			l.kind, in.Rank(), in)
	}
	if l.kind == KindOutput {
		pt := strings.ToLower(p.String("problemType", "multiclass"))
		if !problemTypes[pt] {
			return invalidf("Output problemType must be multiclass, binary or regression, got %q", pt)
		}
	}
	return checkActivation(l.kind, l.activation(p))
}

func (l denseLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	units, err := positiveInt(l.kind, p, "units", l.defaultUnits(p))
	if err != nil {
		return schema.ShapeResult{Error: err.Error()}
	}
	in := inputs[0]
	if in.Rank() == 2 {
		return schema.ShapeResult{
			Shape: schema.Shape{in[0], units},
			Warning: fmt.Sprintf("%s layer will be applied to the last axis of 2-D input %s; output keeps the leading dimension (%d)",
				l.kind, in, in[0]),
		}
	}
	return schema.ShapeResult{Shape: schema.Shape{units}}
}

func (l denseLayer) GenerateCode(p Params) string {
	units, err := p.Int("units", l.defaultUnits(p))
	if err != nil {
		units = l.defaultUnits(p)
	}
	return call("Dense", fmt.Sprint(units), activationKw(l.activation(p)))
}

func (l denseLayer) defaultUnits(p Params) int {
	if l.kind == KindOutput {
		switch strings.ToLower(p.String("problemType", "multiclass")) {
		case "binary", "regression":
			return 1
		}
	}
	n, _ := Params(l.defaults).Int("units", 1)
	return n
}

func (l denseLayer) activation(p Params) string {
	if act := p.String("activation", ""); act != "" {
		return strings.ToLower(act)
	}
	if l.kind != KindOutput {
		s, _ := l.defaults["activation"].(string)
		return s
	}
	switch strings.ToLower(p.String("problemType", "multiclass")) {
	case "binary":
		return "sigmoid"
	case "regression":
		return "linear"
	default:
		return "softmax"
	}
}

// LossFor returns the compile loss implied by an Output node's problem type.
func LossFor(p Params) string {
	switch strings.ToLower(p.String("problemType", "multiclass")) {
	case "binary":
		return "binary_crossentropy"
	case "regression":
		return "mse"
	default:
		return "categorical_crossentropy"
	}
}

// --- Flatten ---

type flattenLayer struct{ base }

func (l flattenLayer) ValidateInputs(inputs []schema.Shape, _ Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	if inputs[0].Rank() == 0 {
		return invalidf("Flatten expects an input with at least 1 dimension, got a scalar")
	}
	return nil
}

func (l flattenLayer) ComputeShape(inputs []schema.Shape, _ Params) schema.ShapeResult {
	in := inputs[0]
	res := schema.ShapeResult{Shape: schema.Shape{in.Elements()}}
	if in.Rank() == 1 {
		res.Warning = fmt.Sprintf("Flatten on 1-D input %s has no effect", in)
	}
	return res
}

func (l flattenLayer) GenerateCode(Params) string {
	return call("Flatten")
}

// --- Dropout ---

type dropoutLayer struct{ base }

func (l dropoutLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	rate, err := p.Float("rate", 0.5)
	if err != nil {
		return invalidf("Dropout %s", err)
	}
	if rate < 0 || rate >= 1 {
		return invalidf("Dropout rate must be in [0, 1), got %s", pyFloat(rate))
	}
	return nil
}

func (l dropoutLayer) ComputeShape(inputs []schema.Shape, _ Params) schema.ShapeResult {
	return schema.ShapeResult{Shape: inputs[0].Clone()}
}

func (l dropoutLayer) GenerateCode(p Params) string {
	rate, err := p.Float("rate", 0.5)
	if err != nil {
		rate = 0.5
	}
	return call("Dropout", pyFloat(rate))
}

// --- Activation / BatchNormalization ---

// identityLayer passes its single input shape through unchanged.
type identityLayer struct{ base }

func (l identityLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	if l.kind == KindActivation {
		return checkActivation(l.kind, p.String("activation", "relu"))
	}
	if inputs[0].Rank() == 0 {
		return invalidf("%s expects an input with at least 1 dimension, got a scalar", l.kind)
	}
	return nil
}

func (l identityLayer) ComputeShape(inputs []schema.Shape, _ Params) schema.ShapeResult {
	return schema.ShapeResult{Shape: inputs[0].Clone()}
}

func (l identityLayer) GenerateCode(p Params) string {
	if l.kind == KindActivation {
		return call("Activation", PyString(strings.ToLower(p.String("activation", "relu"))))
	}
	return call(l.kind.String())
}

// --- Reshape ---

type reshapeLayer struct{ base }

func (l reshapeLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	target, err := p.Dims("targetShape")
	if err != nil {
		return invalidf("Reshape %s", err)
	}
	if target == nil {
		return invalidf("Reshape requires a targetShape parameter")
	}
	inferred := 0
	for i, d := range target {
		switch {
		case d == -1:
			inferred++
		case d <= 0:
			return invalidf("Reshape targetShape %s has an invalid dimension %d at axis %d", schema.Shape(target), d, i)
		}
	}
	if inferred > 1 {
		return invalidf("Reshape targetShape %s may contain at most one -1, got %d", schema.Shape(target), inferred)
	}
	return nil
}

func (l reshapeLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	in := inputs[0]
	target, _ := p.Dims("targetShape")
	out := schema.Shape(target).Clone()

	known, unknown := 1, -1
	for i, d := range out {
		if d == -1 {
			unknown = i
			continue
		}
		known *= d
	}
	total := in.Elements()
	if unknown >= 0 {
		if total%known != 0 {
			return shapeErr("Reshape cannot infer the -1 dimension of %s: input %s has %d elements, not divisible by %d",
				out, in, total, known)
		}
		out[unknown] = total / known
		return schema.ShapeResult{Shape: out}
	}
	if known != total {
		return shapeErr("Reshape targetShape %s has %d elements but input %s has %d", out, known, in, total)
	}
	return schema.ShapeResult{Shape: out}
}

func (l reshapeLayer) GenerateCode(p Params) string {
	target, err := p.Dims("targetShape")
	if err != nil || target == nil {
		return call("Reshape", "(-1,)")
	}
	return call("Reshape", schema.Shape(target).Tuple())
}
