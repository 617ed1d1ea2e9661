package layers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/rendis/netgraph/pkg/schema"
)

// Params are a node's parameter values as supplied by the editor.
// Values are primitives (numbers, strings, bools) or lists of primitives.
type Params map[string]any

// Has reports whether key is present with a non-empty value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

// Int reads an integer param, returning def when absent.
// Non-integral floats are rejected rather than truncated.
func (p Params) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	v := p[key]
	if f, ok := v.(float64); ok && f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
	}
	return n, nil
}

// toInt converts a primitive to an int. Strings are read as base 10, so a
// typed "010" is 10 and never an octal literal.
func toInt(v any) (int, error) {
	if s, ok := v.(string); ok {
		return strconv.Atoi(strings.TrimSpace(s))
	}
	return cast.ToIntE(v)
}

// Float reads a numeric param, returning def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	f, err := cast.ToFloat64E(p[key])
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %v", key, p[key])
	}
	return f, nil
}

// String reads a string param, returning def when absent.
func (p Params) String(key, def string) string {
	if !p.Has(key) {
		return def
	}
	s, err := cast.ToStringE(p[key])
	if err != nil {
		return def
	}
	return strings.TrimSpace(s)
}

// Bool reads a boolean param, returning def when absent or unparsable.
func (p Params) Bool(key string, def bool) bool {
	if !p.Has(key) {
		return def
	}
	b, err := cast.ToBoolE(p[key])
	if err != nil {
		return def
	}
	return b
}

// Dims reads a list of integers from a list value, a single number,
// or a string such as "28,28,1", "28x28x1" or "(28, 28, 1)".
func (p Params) Dims(key string) ([]int, error) {
	if !p.Has(key) {
		return nil, nil
	}
	return parseDims(key, p[key])
}

// Pair reads a 2-D window param (kernel, pool, strides). A single value is
// used for both axes.
func (p Params) Pair(key string, def int) ([2]int, error) {
	if !p.Has(key) {
		return [2]int{def, def}, nil
	}
	dims, err := parseDims(key, p[key])
	if err != nil {
		return [2]int{}, err
	}
	switch len(dims) {
	case 1:
		return [2]int{dims[0], dims[0]}, nil
	case 2:
		return [2]int{dims[0], dims[1]}, nil
	default:
		return [2]int{}, fmt.Errorf("%s must have 1 or 2 values, got %d", key, len(dims))
	}
}

func parseDims(key string, v any) ([]int, error) {
	switch val := v.(type) {
	case []any:
		dims := make([]int, 0, len(val))
		for _, item := range val {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("%s must be a list of integers, got %v", key, v)
			}
			dims = append(dims, n)
		}
		return dims, nil
	case []string:
		dims := make([]int, 0, len(val))
		for _, item := range val {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("%s must be a list of integers, got %v", key, v)
			}
			dims = append(dims, n)
		}
		return dims, nil
	case []int, []float64:
		dims, err := cast.ToIntSliceE(val)
		if err != nil {
			return nil, fmt.Errorf("%s must be a list of integers, got %v", key, v)
		}
		return dims, nil
	case string:
		s := strings.Trim(strings.TrimSpace(val), "()[]")
		s = strings.NewReplacer("x", ",", "X", ",", "×", ",").Replace(s)
		var dims []int
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := toInt(part)
			if err != nil {
				return nil, fmt.Errorf("%s must be a list of integers, got %q", key, val)
			}
			dims = append(dims, n)
		}
		if len(dims) == 0 {
			return nil, fmt.Errorf("%s must be a list of integers, got %q", key, val)
		}
		return dims, nil
	default:
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s must be a list of integers, got %v", key, v)
		}
		return []int{n}, nil
	}
}

// positiveInt reads a required-positive integer param.
func positiveInt(kind Kind, p Params, key string, def int) (int, error) {
	n, err := p.Int(key, def)
	if err != nil {
		return 0, fmt.Errorf("%s %w", kind, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s %s must be a positive integer, got %d", kind, key, n)
	}
	return n, nil
}

// Multiplier returns the repetition count declared on a node (default 1).
func Multiplier(p Params) (int, error) {
	n, err := p.Int("multiplier", 1)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("multiplier must be at least 1, got %d", n)
	}
	return n, nil
}

// shapeErr builds a ShapeResult carrying only an error message.
func shapeErr(format string, args ...any) schema.ShapeResult {
	return schema.ShapeResult{Error: fmt.Sprintf(format, args...)}
}

// invalidf builds a shape-validation error.
func invalidf(format string, args ...any) error {
	return schema.NewErrorf(schema.ErrCodeShape, format, args...)
}
