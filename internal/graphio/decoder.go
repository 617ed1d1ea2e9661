// Package graphio maps editor and project documents onto the canonical
// graph document the compiler consumes.
package graphio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/rendis/netgraph/internal/expressions"
	"github.com/rendis/netgraph/pkg/schema"
)

// DefaultQuery maps the editor export format
//
//	{nodes: [{id, data: {type, params}}], edges: [{source, target}], variables, inputShape}
//
// onto a GraphDocument. Documents that are already canonical pass through
// unchanged. Numeric ids are stringified and editor-only fields such as
// positions and handles are dropped.
const DefaultQuery = `def str: if . == null then null else tostring end;
{
  nodes: [(.nodes // [])[] | {
    id: (.id | str),
    type: (.data.type // .data.layerType // .type),
    params: (.data.params // .params // {})
  } | with_entries(select(.value != null))],
  edges: [(.edges // [])[] | {source: (.source | str), target: (.target | str)}
    | with_entries(select(.value != null))],
  variables: (.variables // .data.variables),
  input_shape: (.inputShape // .input_shape),
  metadata: .metadata
} | with_entries(select(.value != null))`

// RawValidator checks a decoded document before it is bound to
// GraphDocument. *validation.JSONSchemaValidator satisfies it.
type RawValidator interface {
	ValidateRaw(value any) error
}

// Decoder runs a jq program over incoming documents.
// It is safe for concurrent use.
type Decoder struct {
	jq        *expressions.GoJQEngine
	query     string
	validator RawValidator
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithQuery replaces DefaultQuery. An empty query keeps the default.
func WithQuery(query string) Option {
	return func(d *Decoder) {
		if query != "" {
			d.query = query
		}
	}
}

// WithValidator checks the jq output against a schema before binding.
func WithValidator(v RawValidator) Option {
	return func(d *Decoder) { d.validator = v }
}

// WithEngine shares a jq engine (and its compile cache) with other callers.
func WithEngine(e *expressions.GoJQEngine) Option {
	return func(d *Decoder) {
		if e != nil {
			d.jq = e
		}
	}
}

// NewDecoder creates a Decoder. The query is parsed up front so a broken
// import_query setting fails at startup rather than on the first request.
func NewDecoder(opts ...Option) (*Decoder, error) {
	d := &Decoder{query: DefaultQuery}
	for _, opt := range opts {
		opt(d)
	}
	if d.jq == nil {
		d.jq = expressions.NewGoJQEngine()
	}
	if _, err := gojq.Parse(d.query); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeImport, "invalid import query: %s", err.Error()).WithCause(err)
	}
	return d, nil
}

// Query returns the jq program in use.
func (d *Decoder) Query() string {
	return d.query
}

// Decode parses raw JSON and maps it onto a GraphDocument.
func (d *Decoder) Decode(ctx context.Context, raw []byte) (*schema.GraphDocument, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeImport, "malformed JSON: %s", err.Error()).WithCause(err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeImport, "graph document must be a JSON object, got %s", jsonKind(value))
	}
	return d.DecodeValue(ctx, obj)
}

// DecodeValue maps an already parsed document onto a GraphDocument.
func (d *Decoder) DecodeValue(ctx context.Context, value map[string]any) (*schema.GraphDocument, error) {
	out, err := d.jq.Evaluate(ctx, d.query, value)
	if err != nil {
		if ctx.Err() != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "import cancelled").WithCause(ctx.Err())
		}
		return nil, importError("import query failed", err)
	}

	mapped, ok := out.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeImport, "import query must produce one object, got %s", jsonKind(out))
	}

	if d.validator != nil {
		if err := d.validator.ValidateRaw(mapped); err != nil {
			return nil, importError("imported document does not match the graph schema", err)
		}
	}

	b, err := json.Marshal(mapped)
	if err != nil {
		return nil, importError("re-encode imported document", err)
	}
	var doc schema.GraphDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, importError("bind imported document", err)
	}
	return &doc, nil
}

// importError wraps err as IMPORT_ERROR, keeping schema violations visible
// in the details.
func importError(msg string, err error) *schema.GraphError {
	gErr := schema.NewErrorf(schema.ErrCodeImport, "%s: %s", msg, err.Error()).WithCause(err)
	var cause *schema.GraphError
	if errors.As(err, &cause) && cause.Details != nil {
		gErr = gErr.WithDetails(cause.Details)
	}
	return gErr
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
