package expressions

import "context"

// Engine evaluates expressions against a data map.
// Three implementations: Expr (parameter expressions), CEL (lint rules),
// GoJQ (document import mappings).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
