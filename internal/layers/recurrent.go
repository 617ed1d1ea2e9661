package layers

import (
	"fmt"

	"github.com/rendis/netgraph/pkg/schema"
)

func (r *Registry) registerRecurrent() {
	r.add(
		embeddingLayer{base{kind: KindEmbedding, defaults: Params{"inputDim": 10000, "outputDim": 64}}},
		recurrentLayer{base{kind: KindLSTM, defaults: Params{"units": 64, "returnSequences": false}}},
		recurrentLayer{base{kind: KindGRU, defaults: Params{"units": 64, "returnSequences": false}}},
	)
}

// --- Embedding ---

type embeddingLayer struct{ base }

func (l embeddingLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	if err := expectRank(l.kind, inputs[0], 1, "[sequence_length]"); err != nil {
		return err
	}
	if _, err := positiveInt(l.kind, p, "inputDim", 10000); err != nil {
		return invalidf("%s", err)
	}
	return nil
}

func (l embeddingLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	dim, err := positiveInt(l.kind, p, "outputDim", 64)
	if err != nil {
		return schema.ShapeResult{Error: err.Error()}
	}
	return schema.ShapeResult{Shape: schema.Shape{inputs[0][0], dim}}
}

func (l embeddingLayer) GenerateCode(p Params) string {
	in, err := p.Int("inputDim", 10000)
	if err != nil {
		in = 10000
	}
	out, err := p.Int("outputDim", 64)
	if err != nil {
		out = 64
	}
	return call("Embedding", fmt.Sprint(in), fmt.Sprint(out))
}

// --- LSTM / GRU ---

type recurrentLayer struct{ base }

func (l recurrentLayer) ValidateInputs(inputs []schema.Shape, _ Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	return expectRank(l.kind, inputs[0], 2, "[timesteps, features]")
}

func (l recurrentLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	units, err := positiveInt(l.kind, p, "units", 64)
	if err != nil {
		return schema.ShapeResult{Error: err.Error()}
	}
	if p.Bool("returnSequences", false) {
		return schema.ShapeResult{Shape: schema.Shape{inputs[0][0], units}}
	}
	return schema.ShapeResult{Shape: schema.Shape{units}}
}

func (l recurrentLayer) GenerateCode(p Params) string {
	units, err := p.Int("units", 64)
	if err != nil {
		units = 64
	}
	seq := ""
	if p.Bool("returnSequences", false) {
		seq = kw("return_sequences", pyBool(true))
	}
	return call(l.kind.String(), fmt.Sprint(units), seq)
}
