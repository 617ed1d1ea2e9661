package expressions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/netgraph/pkg/schema"
)

// ParamResolver evaluates ${{ ... }} expressions found in node parameters.
// A parameter that is exactly one expression keeps the typed result
// ("${{ hidden * 2 }}" becomes a number); expressions embedded in a longer
// string are stringified in place.
type ParamResolver struct {
	engine Engine
}

// NewParamResolver creates a resolver. A nil engine selects an ExprEngine.
func NewParamResolver(engine Engine) *ParamResolver {
	if engine == nil {
		engine = NewExprEngine()
	}
	return &ParamResolver{engine: engine}
}

// Resolve returns a copy of nodes with every parameter expression evaluated.
// Nodes whose expressions fail keep their raw params and are reported in the
// returned map, keyed by node ID. The nodes slice is not modified.
func (r *ParamResolver) Resolve(ctx context.Context, nodes []schema.GraphNode, vars map[string]any) ([]schema.GraphNode, map[string]error) {
	out := make([]schema.GraphNode, len(nodes))
	var failed map[string]error

	for i, n := range nodes {
		out[i] = n
		if !HasExpression(n.Params) {
			continue
		}
		params, err := r.ResolveNode(ctx, n, vars)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[n.ID] = err
			continue
		}
		out[i].Params = params
	}
	return out, failed
}

// ResolveNode evaluates the expressions of a single node.
func (r *ParamResolver) ResolveNode(ctx context.Context, node schema.GraphNode, vars map[string]any) (map[string]any, error) {
	env := NodeScope{Vars: vars, Node: node}.Env()

	keys := make([]string, 0, len(node.Params))
	for k := range node.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make(map[string]any, len(node.Params))
	for _, k := range keys {
		v, err := r.resolveValue(ctx, node.Params[k], env)
		if err != nil {
			var ge *schema.GraphError
			if errors.As(err, &ge) {
				return nil, schema.NewErrorf(ge.Code, "param %q: %s", k, ge.Message).
					WithNode(node.ID).WithCause(err).WithDetails(ge.Details)
			}
			return nil, schema.NewErrorf(schema.ErrCodeExpression, "param %q: %s", k, err.Error()).
				WithNode(node.ID).WithCause(err)
		}
		resolved[k] = v
	}
	return resolved, nil
}

func (r *ParamResolver) resolveValue(ctx context.Context, v any, env map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.resolveString(ctx, val, env)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.resolveValue(ctx, item, env)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.resolveValue(ctx, item, env)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString scans for ${{...}} tokens and evaluates them.
func (r *ParamResolver) resolveString(ctx context.Context, input string, env map[string]any) (any, error) {
	if !strings.Contains(input, "${{") {
		return input, nil
	}

	// Whole-value expression: keep the typed result.
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "${{") == 1 && strings.Index(trimmed, "}}") == len(trimmed)-2 {
		expr, err := tokenBody(trimmed[3 : len(trimmed)-2])
		if err != nil {
			return nil, err
		}
		return r.engine.Evaluate(ctx, expr, env)
	}

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		// Look for ${{ marker.
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		// Write everything before the marker.
		result.WriteString(input[i : i+idx])
		start := i + idx + 3 // skip "${{".

		// Find the closing }}.
		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeExpression, "unclosed ${{ expression")
		}
		end += start

		expr, err := tokenBody(input[start:end])
		if err != nil {
			return nil, err
		}

		val, err := r.engine.Evaluate(ctx, expr, env)
		if err != nil {
			return nil, err
		}
		result.WriteString(marshalInline(val))

		i = end + 2 // skip "}}".
	}

	return result.String(), nil
}

// tokenBody validates the text between ${{ and }}.
func tokenBody(raw string) (string, error) {
	expr := strings.TrimSpace(raw)

	// Reject recursive interpolation: no nested ${{ inside the expression.
	if strings.Contains(expr, "${{") {
		return "", schema.NewError(schema.ErrCodeExpression,
			"nested expressions not allowed: ${{...}} cannot contain ${{")
	}
	if expr == "" {
		return "", schema.NewError(schema.ErrCodeExpression, "empty expression: ${{  }}")
	}
	return expr, nil
}

// marshalInline converts a resolved value into its inline text representation.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// HasExpression reports whether any string inside v contains a ${{...}} token.
func HasExpression(v any) bool {
	switch val := v.(type) {
	case string:
		return strings.Contains(val, "${{")
	case []any:
		for _, item := range val {
			if HasExpression(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range val {
			if HasExpression(item) {
				return true
			}
		}
	}
	return false
}
