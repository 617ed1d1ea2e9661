package layers

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/pkg/schema"
)

func (r *Registry) registerConv() {
	convDefaults := Params{"filters": 32, "kernelSize": 3, "strides": 1, "padding": "valid", "activation": "relu"}
	r.add(
		conv2DLayer{base{kind: KindConv2D, multiplier: true, defaults: convDefaults}},
		conv1DLayer{base{kind: KindConv1D, multiplier: true, defaults: convDefaults}},
		pool2DLayer{base{kind: KindMaxPooling2D, defaults: Params{"poolSize": 2, "padding": "valid"}}},
		pool2DLayer{base{kind: KindAveragePooling2D, defaults: Params{"poolSize": 2, "padding": "valid"}}},
		globalPoolLayer{base{kind: KindGlobalAveragePooling2D}},
	)
}

// --- Conv2D ---

type conv2DLayer struct{ base }

type conv2DConfig struct {
	filters    int
	kernel     [2]int
	strides    [2]int
	padding    string
	activation string
}

func (l conv2DLayer) config(p Params) (conv2DConfig, error) {
	cfg := conv2DConfig{
		padding:    strings.ToLower(p.String("padding", "valid")),
		activation: strings.ToLower(p.String("activation", "relu")),
	}
	var err error
	if cfg.filters, err = positiveInt(l.kind, p, "filters", 32); err != nil {
		return cfg, err
	}
	if cfg.kernel, err = positivePair(l.kind, p, "kernelSize", 3); err != nil {
		return cfg, err
	}
	if cfg.strides, err = positivePair(l.kind, p, "strides", 1); err != nil {
		return cfg, err
	}
	if err := checkPadding(l.kind, cfg.padding); err != nil {
		return cfg, err
	}
	return cfg, checkActivation(l.kind, cfg.activation)
}

func (l conv2DLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	if err := expectRank(l.kind, inputs[0], 3, "[height, width, channels]"); err != nil {
		return err
	}
	_, err := l.config(p)
	return err
}

func (l conv2DLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	cfg, err := l.config(p)
	if err != nil {
		return schema.ShapeResult{Error: errMessage(err)}
	}
	in := inputs[0]
	h, w, ok := spatial(in, cfg.kernel, cfg.strides, cfg.padding)
	if !ok {
		return shapeErr("%s kernel %s is larger than input %dx%d with 'valid' padding", l.kind, pyPair(cfg.kernel), in[0], in[1])
	}
	return schema.ShapeResult{Shape: schema.Shape{h, w, cfg.filters}}
}

func (l conv2DLayer) GenerateCode(p Params) string {
	cfg, err := l.config(p)
	if err != nil {
		cfg = conv2DConfig{filters: 32, kernel: [2]int{3, 3}, strides: [2]int{1, 1}, padding: "valid", activation: "relu"}
	}
	args := []string{fmt.Sprint(cfg.filters), pyPair(cfg.kernel)}
	if cfg.strides != [2]int{1, 1} {
		args = append(args, kw("strides", pyPair(cfg.strides)))
	}
	if cfg.padding != "valid" {
		args = append(args, kw("padding", PyString(cfg.padding)))
	}
	args = append(args, activationKw(cfg.activation))
	return call("Conv2D", args...)
}

// spatial applies a 2-D window to [height, width, ...]. ok is false when the
// window does not fit.
func spatial(in schema.Shape, window, strides [2]int, padding string) (h, w int, ok bool) {
	h = windowOut(in[0], window[0], strides[0], padding)
	w = windowOut(in[1], window[1], strides[1], padding)
	return h, w, h > 0 && w > 0
}

func positivePair(kind Kind, p Params, key string, def int) ([2]int, error) {
	v, err := p.Pair(key, def)
	if err != nil {
		return v, invalidf("%s %s", kind, err)
	}
	if v[0] <= 0 || v[1] <= 0 {
		return v, invalidf("%s %s must be positive, got %s", kind, key, pyPair(v))
	}
	return v, nil
}

// --- Conv1D ---

type conv1DLayer struct{ base }

type conv1DConfig struct {
	filters    int
	kernel     int
	stride     int
	padding    string
	activation string
}

func (l conv1DLayer) config(p Params) (conv1DConfig, error) {
	cfg := conv1DConfig{
		padding:    strings.ToLower(p.String("padding", "valid")),
		activation: strings.ToLower(p.String("activation", "relu")),
	}
	var err error
	if cfg.filters, err = positiveInt(l.kind, p, "filters", 32); err != nil {
		return cfg, err
	}
	if cfg.kernel, err = positiveInt(l.kind, p, "kernelSize", 3); err != nil {
		return cfg, err
	}
	if cfg.stride, err = positiveInt(l.kind, p, "strides", 1); err != nil {
		return cfg, err
	}
	if err := checkPadding(l.kind, cfg.padding); err != nil {
		return cfg, err
	}
	return cfg, checkActivation(l.kind, cfg.activation)
}

func (l conv1DLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	if err := expectRank(l.kind, inputs[0], 2, "[steps, channels]"); err != nil {
		return err
	}
	_, err := l.config(p)
	return err
}

func (l conv1DLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	cfg, err := l.config(p)
	if err != nil {
		return schema.ShapeResult{Error: errMessage(err)}
	}
	in := inputs[0]
	steps := windowOut(in[0], cfg.kernel, cfg.stride, cfg.padding)
	if steps <= 0 {
		return shapeErr("%s kernel %d is larger than input length %d with 'valid' padding", l.kind, cfg.kernel, in[0])
	}
	return schema.ShapeResult{Shape: schema.Shape{steps, cfg.filters}}
}

func (l conv1DLayer) GenerateCode(p Params) string {
	cfg, err := l.config(p)
	if err != nil {
		cfg = conv1DConfig{filters: 32, kernel: 3, stride: 1, padding: "valid", activation: "relu"}
	}
	args := []string{fmt.Sprint(cfg.filters), fmt.Sprint(cfg.kernel)}
	if cfg.stride != 1 {
		args = append(args, kw("strides", fmt.Sprint(cfg.stride)))
	}
	if cfg.padding != "valid" {
		args = append(args, kw("padding", PyString(cfg.padding)))
	}
	args = append(args, activationKw(cfg.activation))
	return call("Conv1D", args...)
}

// --- MaxPooling2D / AveragePooling2D ---

// pool2DLayer strides default to the pool size.
type pool2DLayer struct{ base }

func (l pool2DLayer) config(p Params) (pool, strides [2]int, padding string, err error) {
	padding = strings.ToLower(p.String("padding", "valid"))
	if pool, err = positivePair(l.kind, p, "poolSize", 2); err != nil {
		return
	}
	strides = pool
	if p.Has("strides") {
		if strides, err = positivePair(l.kind, p, "strides", 1); err != nil {
			return
		}
	}
	err = checkPadding(l.kind, padding)
	return
}

func (l pool2DLayer) ValidateInputs(inputs []schema.Shape, p Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	if err := expectRank(l.kind, inputs[0], 3, "[height, width, channels]"); err != nil {
		return err
	}
	_, _, _, err := l.config(p)
	return err
}

func (l pool2DLayer) ComputeShape(inputs []schema.Shape, p Params) schema.ShapeResult {
	pool, strides, padding, err := l.config(p)
	if err != nil {
		return schema.ShapeResult{Error: errMessage(err)}
	}
	in := inputs[0]
	h, w, ok := spatial(in, pool, strides, padding)
	if !ok {
		return shapeErr("%s pool size %s is larger than input %dx%d with 'valid' padding", l.kind, pyPair(pool), in[0], in[1])
	}
	return schema.ShapeResult{Shape: schema.Shape{h, w, in[2]}}
}

func (l pool2DLayer) GenerateCode(p Params) string {
	pool, strides, padding, err := l.config(p)
	if err != nil {
		pool, strides, padding = [2]int{2, 2}, [2]int{2, 2}, "valid"
	}
	args := []string{kw("pool_size", pyPair(pool))}
	if strides != pool {
		args = append(args, kw("strides", pyPair(strides)))
	}
	if padding != "valid" {
		args = append(args, kw("padding", PyString(padding)))
	}
	return call(l.kind.String(), args...)
}

// --- GlobalAveragePooling2D ---

type globalPoolLayer struct{ base }

func (l globalPoolLayer) ValidateInputs(inputs []schema.Shape, _ Params) error {
	if err := expectInputs(l.kind, inputs, 1); err != nil {
		return err
	}
	return expectRank(l.kind, inputs[0], 3, "[height, width, channels]")
}

func (l globalPoolLayer) ComputeShape(inputs []schema.Shape, _ Params) schema.ShapeResult {
	return schema.ShapeResult{Shape: schema.Shape{inputs[0][2]}}
}

func (l globalPoolLayer) GenerateCode(Params) string {
	return call("GlobalAveragePooling2D")
}
