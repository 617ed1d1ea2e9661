package layers

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/pkg/schema"
)

func (r *Registry) registerMerge() {
	r.add(
		elementwiseLayer{base{kind: KindAdd, merge: true}},
		elementwiseLayer{base{kind: KindMultiply, merge: true}},
		elementwiseLayer{base{kind: KindAverage, merge: true}},
		concatLayer{base{kind: KindConcatenate, merge: true, defaults: Params{"axis": -1}}},
	)
}

func expectMergeInputs(kind Kind, inputs []schema.Shape) error {
	if len(inputs) < 2 {
		return invalidf("%s expects at least 2 inputs, got %d", kind, len(inputs))
	}
	return nil
}

func joinShapes(inputs []schema.Shape) string {
	parts := make([]string, len(inputs))
	for i, s := range inputs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

// --- Add / Multiply / Average ---

// elementwiseLayer requires all inputs to share one shape.
type elementwiseLayer struct{ base }

func (l elementwiseLayer) ValidateInputs(inputs []schema.Shape, _ Params) error {
	if err := expectMergeInputs(l.kind, inputs); err != nil {
		return err
	}
	for _, s := range inputs[1:] {
		if !s.Equal(inputs[0]) {
			return invalidf("%s expects all inputs to have the same shape, got %s", l.kind, joinShapes(inputs))
		}
	}
	return nil
}

func (l elementwiseLayer) ComputeShape(inputs []schema.Shape, _ Params) schema.ShapeResult {
	return schema.ShapeResult{Shape: inputs[0].Clone()}
}

func (l elementwiseLayer) GenerateCode(Params) string {
	return call(l.kind.String())
}

// --- Concatenate ---

type concatLayer struct{ base }

// axis resolves the Keras concat axis to an index into a batchless shape of
// the given rank. Non-negative axes count the batch axis, so axis 0 is
// rejected; negative axes count from the last axis.
func (l concatLayer) axis(p Params, rank int) (raw, resolved int, err error) {
	raw, err = p.Int("axis", -1)
	if err != nil {
		return 0, 0, invalidf("Concatenate %s", err)
	}
	if raw == 0 {
		return raw, 0, invalidf("Concatenate axis 0 is the batch axis; use an axis from 1 to %d or a negative axis", rank)
	}
	resolved = raw - 1
	if raw < 0 {
		resolved = raw + rank
	}
	if resolved < 0 || resolved >= rank {
		return raw, 0, invalidf("Concatenate axis %d is out of range for %d-D inputs", raw, rank)
	}
	return raw, resolved, nil
}

func (l concatLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectMergeInputs(l.kind, inputs); err != nil {
		return err
	}
	rank := inputs[0].Rank()
	for _, s := range inputs[1:] {
		if s.Rank() != rank {
			return invalidf("Concatenate expects inputs of equal rank, got %s", joinShapes(inputs))
		}
	}
	raw, axis, err := l.axis(p, rank)
	if err != nil {
		return err
	}
	for _, s := range inputs[1:] {
		for i := range s {
			if i != axis && s[i] != inputs[0][i] {
				return invalidf("Concatenate expects inputs to match on every axis except %d, got %s", raw, joinShapes(inputs))
			}
		}
	}
	return nil
}

func (l concatLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	_, axis, err := l.axis(p, inputs[0].Rank())
	if err != nil {
		return schema.ShapeResult{Error: errMessage(err)}
	}
	out := inputs[0].Clone()
	for _, s := range inputs[1:] {
		out[axis] += s[axis]
	}
	return schema.ShapeResult{Shape: out}
}

func (l concatLayer) GenerateCode(p Params) string {
	axis, err := p.Int("axis", -1)
	if err != nil {
		axis = -1
	}
	return call("Concatenate", kw("axis", fmt.Sprint(axis)))
}
