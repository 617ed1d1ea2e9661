package engine

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/rendis/netgraph/pkg/schema"
)

// Structural error messages reported in DAGResult.Errors.
const (
	MsgEmptyNetwork = "Network must have at least one layer"
	MsgNoSource     = "Network must have at least one input layer (a node with no incoming connections)"
	MsgNoSink       = "Network must have at least one output layer (a node with no outgoing connections)"
	MsgCycle        = "Network contains cycles - DAG structure required"
)

// Compile turns raw editor nodes and edges into a topologically ordered,
// uniquely named layer sequence plus an adjacency map. Every structural check
// runs and all failures are collected; an invalid graph yields no ordering.
//
// Ordering uses Kahn's algorithm with ties broken by the node's position in
// the input array, so the same input always compiles to the same result.
func Compile(nodes []schema.GraphNode, edges []schema.GraphEdge) *schema.DAGResult {
	result := &schema.DAGResult{OrderedNodes: []schema.LayerObject{}}

	if len(nodes) == 0 {
		result.Errors = []string{MsgEmptyNetwork}
		return result
	}

	result.NodeIDs = make([]string, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	var errs []string

	// First pass: register nodes and check ids.
	for i, n := range nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Sprintf("node at index %d has empty ID", i))
			continue
		}
		if _, exists := index[n.ID]; exists {
			errs = append(errs, fmt.Sprintf("duplicate node ID: %s", n.ID))
			continue
		}
		index[n.ID] = i
		result.NodeIDs = append(result.NodeIDs, n.ID)
	}

	// Second pass: adjacency lists in edge insertion order.
	out := make([][]int, len(nodes))
	inDegree := make([]int, len(nodes))
	seen := make(map[[2]int]bool, len(edges))
	for i, e := range edges {
		src, okSrc := index[e.Source]
		dst, okDst := index[e.Target]
		if !okSrc || !okDst {
			missing := e.Source
			if okSrc {
				missing = e.Target
			}
			errs = append(errs, fmt.Sprintf("edge %d (%s -> %s) references unknown node: %s", i, e.Source, e.Target, missing))
			continue
		}
		if seen[[2]int{src, dst}] {
			continue
		}
		seen[[2]int{src, dst}] = true
		out[src] = append(out[src], dst)
		inDegree[dst]++
	}

	var sources, sinks int
	for i := range nodes {
		if !registered(index, nodes, i) {
			continue
		}
		if inDegree[i] == 0 {
			sources++
		}
		if len(out[i]) == 0 {
			sinks++
		}
	}
	if sources == 0 {
		errs = append(errs, MsgNoSource)
	}
	if sinks == 0 {
		errs = append(errs, MsgNoSink)
	}

	order := kahn(nodes, index, out, inDegree)
	if len(order) != len(index) {
		errs = append(errs, MsgCycle)
	}

	if len(errs) > 0 {
		result.Errors = errs
		return result
	}

	// Variable names are assigned in topological order.
	names := newNamer()
	result.OrderedNodes = make([]schema.LayerObject, 0, len(order))
	for _, i := range order {
		n := nodes[i]
		result.OrderedNodes = append(result.OrderedNodes, schema.LayerObject{
			ID:      n.ID,
			Type:    n.Type,
			Params:  n.Params,
			VarName: names.next(n.Type),
		})
	}

	result.EdgeMap = make(map[string][]string, len(nodes))
	for i, n := range nodes {
		targets := make([]string, 0, len(out[i]))
		for _, t := range out[i] {
			targets = append(targets, nodes[t].ID)
		}
		result.EdgeMap[n.ID] = targets
	}
	result.IsValid = true
	return result
}

// registered reports whether nodes[i] is the node its id resolves to
// (duplicates and empty ids are not).
func registered(index map[string]int, nodes []schema.GraphNode, i int) bool {
	j, ok := index[nodes[i].ID]
	return ok && j == i
}

// kahn returns node positions in topological order. Ready nodes are taken
// lowest input position first. A result shorter than the node count means
// the remaining nodes sit on or behind a cycle.
func kahn(nodes []schema.GraphNode, index map[string]int, out [][]int, inDegree []int) []int {
	remaining := slices.Clone(inDegree)

	var ready []int
	for i := range nodes {
		if registered(index, nodes, i) && remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(index))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		for _, next := range out[node] {
			remaining[next]--
			if remaining[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}
	return order
}

// namer hands out per-type variable names: dense, dense_1, dense_2.
type namer struct {
	counts map[string]int
	used   map[string]bool
}

// reservedNames are identifiers the generated module already binds.
var reservedNames = []string{"tf", "keras", "layers", "model"}

func newNamer() *namer {
	n := &namer{counts: make(map[string]int), used: make(map[string]bool)}
	for _, r := range reservedNames {
		n.used[r] = true
	}
	return n
}

func (n *namer) next(typeName string) string {
	stem := identifier(typeName)
	for {
		count := n.counts[stem]
		n.counts[stem] = count + 1

		name := stem
		if count > 0 {
			name = fmt.Sprintf("%s_%d", stem, count)
		}
		if !n.used[name] {
			n.used[name] = true
			return name
		}
	}
}

// identifier lower-cases a type key and makes it a valid Python identifier.
func identifier(typeName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(typeName)) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		return "layer"
	}
	if unicode.IsDigit(rune(s[0])) {
		return "layer_" + s
	}
	return s
}
