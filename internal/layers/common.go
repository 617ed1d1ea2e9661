package layers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/netgraph/pkg/schema"
)

// base carries the flags shared by every entry.
type base struct {
	kind       Kind
	multiplier bool
	merge      bool
	defaults   Params
}

func (b base) Kind() Kind               { return b.kind }
func (b base) SupportsMultiplier() bool { return b.multiplier }
func (b base) MergeCapable() bool       { return b.merge }

func (b base) Defaults() Params {
	out := make(Params, len(b.defaults))
	for k, v := range b.defaults {
		out[k] = v
	}
	return out
}

func expectInputs(kind Kind, inputs []schema.Shape, n int) error {
	if len(inputs) != n {
		return invalidf("%s expects exactly %d %s, got %d", kind, n, plural(n, "input", "inputs"), len(inputs))
	}
	return nil
}

func expectRank(kind Kind, in schema.Shape, rank int, layout string) error {
	if in.Rank() != rank {
		return invalidf("%s expects a %d-D input %s, got %d-D input %s", kind, rank, layout, in.Rank(), in)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// windowOut computes one spatial output dimension for conv/pool windows.
func windowOut(in, window, stride int, padding string) int {
	if padding == "same" {
		return (in + stride - 1) / stride
	}
	if in < window {
		return 0
	}
	return (in-window)/stride + 1
}

func checkPadding(kind Kind, padding string) error {
	if padding != "valid" && padding != "same" {
		return invalidf("%s padding must be 'valid' or 'same', got %q", kind, padding)
	}
	return nil
}

var activations = map[string]bool{
	"": true, "linear": true, "relu": true, "sigmoid": true, "softmax": true,
	"tanh": true, "elu": true, "selu": true, "gelu": true, "swish": true,
	"softplus": true, "softsign": true, "leaky_relu": true, "relu6": true,
	"hard_sigmoid": true, "exponential": true, "mish": true,
}

func checkActivation(kind Kind, act string) error {
	if !activations[strings.ToLower(act)] {
		return invalidf("%s activation %q is not supported", kind, act)
	}
	return nil
}

// --- code emission helpers ---

var pyEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// PyString renders s as a single-quoted Python string literal.
func PyString(s string) string {
	return "'" + pyEscaper.Replace(s) + "'"
}

func pyFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func pyPair(v [2]int) string {
	return fmt.Sprintf("(%d, %d)", v[0], v[1])
}

// call renders "layers.Name(arg1, arg2, kw=val)".
func call(name string, args ...string) string {
	kept := args[:0:0]
	for _, a := range args {
		if a != "" {
			kept = append(kept, a)
		}
	}
	return "layers." + name + "(" + strings.Join(kept, ", ") + ")"
}

func kw(key, value string) string {
	return key + "=" + value
}

// activationKw emits activation=... unless the activation is empty or linear.
func activationKw(act string) string {
	if act == "" || act == "linear" {
		return ""
	}
	return kw("activation", PyString(act))
}
