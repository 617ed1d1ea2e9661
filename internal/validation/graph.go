package validation

import "github.com/rendis/netgraph/pkg/schema"

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (ids, edge refs, layer types, params)
// 3. DAG preview (source, sink, cycles, reachability)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
	layers     LayerLookup
}

// NewGraphValidator creates a GraphValidator.
// lookup may be nil to skip layer type checks.
func NewGraphValidator(lookup LayerLookup) (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{
		jsonSchema: jsv,
		layers:     lookup,
	}, nil
}

// Validate runs the full 3-stage pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and DAG stages are skipped.
func (gv *GraphValidator) Validate(doc *schema.GraphDocument) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "graph document is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := validateStructural(gv.jsonSchema, doc)
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(doc, gv.layers, gv.jsonSchema))

	// Stage 3: DAG preview (skip if semantic errors, the graph may be unusable).
	if result.Valid() {
		result.Merge(validateDAG(doc))
	}

	return result
}

// ValidateDocument satisfies the Validator interface.
func (gv *GraphValidator) ValidateDocument(doc *schema.GraphDocument) error {
	return gv.Validate(doc).ToError()
}

// ValidateParams delegates to the underlying JSONSchemaValidator.
func (gv *GraphValidator) ValidateParams(params map[string]any, paramSchema []byte) error {
	return gv.jsonSchema.ValidateParams(params, paramSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateDocument, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, doc *schema.GraphDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(doc)
	if err == nil {
		return result
	}

	gErr, ok := err.(*schema.GraphError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if gErr.Details != nil {
		if violations, ok := gErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, gErr.Message)
	return result
}
