package validation

import "github.com/rendis/netgraph/internal/layers"

// Numeric params may arrive as strings from editor form fields, so every
// numeric property also accepts a string. Ranges are enforced on numbers only.
const (
	positiveInt  = `{"anyOf": [{"type": "integer", "minimum": 1}, {"type": "string"}]}`
	intOrPair    = `{"anyOf": [{"type": "integer", "minimum": 1}, {"type": "array", "minItems": 1, "maxItems": 2, "items": {"type": "integer", "minimum": 1}}, {"type": "string"}]}`
	paddingEnum  = `{"enum": ["valid", "same", "VALID", "SAME"]}`
	activationFn = `{"type": "string"}`
	multiplier   = `{"anyOf": [{"type": "integer", "minimum": 1}, {"type": "string"}]}`
)

// paramSchemas holds the JSON Schema for each layer kind's params. Kinds
// without an entry accept any params.
var paramSchemas = map[layers.Kind]string{
	layers.KindDense: `{
  "type": "object",
  "properties": {
    "units": ` + positiveInt + `,
    "activation": ` + activationFn + `,
    "multiplier": ` + multiplier + `
  }
}`,
	layers.KindOutput: `{
  "type": "object",
  "properties": {
    "units": ` + positiveInt + `,
    "activation": ` + activationFn + `,
    "problemType": {"enum": ["multiclass", "binary", "regression"]}
  }
}`,
	layers.KindDropout: `{
  "type": "object",
  "properties": {
    "rate": {"anyOf": [{"type": "number", "minimum": 0, "exclusiveMaximum": 1}, {"type": "string"}]},
    "multiplier": ` + multiplier + `
  }
}`,
	layers.KindConv2D: `{
  "type": "object",
  "properties": {
    "filters": ` + positiveInt + `,
    "kernelSize": ` + intOrPair + `,
    "strides": ` + intOrPair + `,
    "padding": ` + paddingEnum + `,
    "activation": ` + activationFn + `,
    "multiplier": ` + multiplier + `
  }
}`,
	layers.KindConv1D: `{
  "type": "object",
  "properties": {
    "filters": ` + positiveInt + `,
    "kernelSize": ` + positiveInt + `,
    "strides": ` + positiveInt + `,
    "padding": ` + paddingEnum + `,
    "activation": ` + activationFn + `
  }
}`,
	layers.KindMaxPooling2D: `{
  "type": "object",
  "properties": {
    "poolSize": ` + intOrPair + `,
    "strides": ` + intOrPair + `,
    "padding": ` + paddingEnum + `
  }
}`,
	layers.KindAveragePooling2D: `{
  "type": "object",
  "properties": {
    "poolSize": ` + intOrPair + `,
    "strides": ` + intOrPair + `,
    "padding": ` + paddingEnum + `
  }
}`,
	layers.KindEmbedding: `{
  "type": "object",
  "properties": {
    "inputDim": ` + positiveInt + `,
    "outputDim": ` + positiveInt + `
  }
}`,
	layers.KindLSTM: `{
  "type": "object",
  "properties": {
    "units": ` + positiveInt + `,
    "returnSequences": {"type": ["boolean", "string"]}
  }
}`,
	layers.KindGRU: `{
  "type": "object",
  "properties": {
    "units": ` + positiveInt + `,
    "returnSequences": {"type": ["boolean", "string"]}
  }
}`,
	layers.KindConcatenate: `{
  "type": "object",
  "properties": {
    "axis": {"anyOf": [{"type": "integer"}, {"type": "string"}]}
  }
}`,
}

// ParamSchema returns the param schema for a node type, or nil.
func ParamSchema(typeName string) []byte {
	s, ok := paramSchemas[layers.ParseKind(typeName)]
	if !ok {
		return nil
	}
	return []byte(s)
}
