package validation

import "github.com/rendis/netgraph/pkg/schema"

// Validator checks graph documents for correctness before analysis.
// Uses JSON Schema Draft 2020-12 for document structure and layer params.
type Validator interface {
	ValidateDocument(doc *schema.GraphDocument) error
	ValidateParams(params map[string]any, paramSchema []byte) error
}

// LayerLookup reports whether a node type resolves to a known layer.
// *layers.Registry satisfies it.
type LayerLookup interface {
	Known(typeName string) bool
}
