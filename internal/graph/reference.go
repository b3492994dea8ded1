// Package graph implements the reference graph shared by every step in a
// workflow: typed, named references between ReferencingObjects, cycle
// detection, depth bounding, transitive closure, generation waves for
// visualization, and redundant-edge pruning.
//
// Grounded on the teacher's internal/engine (dag.go, dag_builder.go) and
// internal/plugin/dependency_graph.go, generalized from a flat step-ID graph
// into a graph over arbitrary named, attributed references.
package graph

import (
	"sort"

	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// MaximumReferenceDepth bounds how deep a reference chain may go before the
// walk aborts with ExceedsMaximumDepthError, guarding against stack
// exhaustion on pathological or accidentally-cyclic configuration.
const MaximumReferenceDepth = 64

// Node is anything that can sit in the reference graph: identifiable for
// error messages, and able to enumerate its own outgoing references.
type Node interface {
	// RefName returns a human-readable identifier used in cycle messages and
	// logs. It need not be unique, but graphs built from a single workflow
	// should keep it so.
	RefName() string
	// References returns every declared reference this node carries,
	// regardless of whether it affects execution order.
	References() []Edge
}

// Edge names one outgoing reference: the declaring attribute, the target
// (nil Target with non-nil Opaque models a reference to something that is
// not itself a Node — never walked and not included in AllRefs), and
// whether it participates in execution ordering.
type Edge struct {
	Attr                  string
	Target                Node
	Opaque                any
	AffectsExecutionOrder bool
}

// filteredEdges returns the edges relevant to a walk: all of them, or only
// the order-affecting ones when forExecution is true.
func filteredEdges(n Node, forExecution bool) []Edge {
	all := n.References()
	if !forExecution {
		return all
	}
	out := make([]Edge, 0, len(all))
	for _, e := range all {
		if e.AffectsExecutionOrder {
			out = append(out, e)
		}
	}
	return out
}

// DirectReferences returns the concrete nodes reachable through one hop of
// n's declared references, honoring forExecution the same way
// filteredEdges does. This mirrors get_references(for_execution).
func DirectReferences(n Node, forExecution bool) []Node {
	edges := filteredEdges(n, forExecution)
	out := make([]Node, 0, len(edges))
	for _, e := range edges {
		if e.Target != nil {
			out = append(out, e.Target)
		}
	}
	return out
}

// Mapping is the result of walking a reference graph from one root: the
// leaves (reference-less nodes, the initial working set), the consumer map
// (for each node, the set of nodes directly referencing it), and the
// transitive closure of everything reached.
type Mapping struct {
	Leaves    []Node
	Consumers map[Node][]Node
	AllRefs   []Node
}

type frame struct {
	node Node
	attr string
}

// ReverseMapping performs the depth-first traversal described in §4.3:
// memoized per walk, cycle-detecting via an explicit parent stack, and
// depth-bounded by MaximumReferenceDepth. includeSelf controls whether root
// itself appears in the returned AllRefs set.
func ReverseMapping(root Node, forExecution bool, includeSelf bool) (*Mapping, error) {
	leaves := map[Node]bool{}
	consumers := map[Node]map[Node]bool{}
	memo := map[Node]map[Node]bool{}
	var stack []frame

	var visit func(n Node) (map[Node]bool, error)
	visit = func(n Node) (map[Node]bool, error) {
		if cached, ok := memo[n]; ok {
			return cached, nil
		}
		for _, f := range stack {
			if f.node == n {
				return nil, cycleError(stack, n)
			}
		}
		if len(stack) >= MaximumReferenceDepth {
			return nil, streamyerrors.NewExceedsMaximumDepthError(n.RefName(), MaximumReferenceDepth)
		}

		edges := filteredEdges(n, forExecution)
		result := map[Node]bool{n: true}
		if len(edges) == 0 {
			leaves[n] = true
		}

		for _, e := range edges {
			if e.Target == nil {
				// Opaque/non-ReferencingObject reference: skipped, neither
				// walked nor added to AllRefs.
				continue
			}
			if consumers[e.Target] == nil {
				consumers[e.Target] = map[Node]bool{}
			}
			consumers[e.Target][n] = true

			stack = append(stack, frame{node: n, attr: e.Attr})
			sub, err := visit(e.Target)
			stack = stack[:len(stack)-1]
			if err != nil {
				return nil, err
			}
			for k := range sub {
				result[k] = true
			}
		}

		memo[n] = result
		return result, nil
	}

	all, err := visit(root)
	if err != nil {
		return nil, err
	}

	if !includeSelf {
		delete(all, root)
	}

	return &Mapping{
		Leaves:    sortedKeys(leaves),
		Consumers: materializeConsumers(consumers),
		AllRefs:   sortedKeys(all),
	}, nil
}

func materializeConsumers(in map[Node]map[Node]bool) map[Node][]Node {
	out := make(map[Node][]Node, len(in))
	for target, set := range in {
		out[target] = sortedKeys(set)
	}
	return out
}

func sortedKeys(set map[Node]bool) []Node {
	out := make([]Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefName() < out[j].RefName() })
	return out
}

func cycleError(stack []frame, closing Node) error {
	start := 0
	for i, f := range stack {
		if f.node == closing {
			start = i
			break
		}
	}

	path := make([]string, 0, len(stack)-start+1)
	attrs := make([]string, 0, len(stack)-start)
	for _, f := range stack[start:] {
		path = append(path, f.node.RefName())
		attrs = append(attrs, f.attr)
	}
	path = append(path, closing.RefName())

	return streamyerrors.NewCircularReferenceError(path, attrs)
}

// AllReferences returns the transitive closure of n's references (excluding
// n itself), equivalent to the all_references property.
func AllReferences(n Node, forExecution bool) ([]Node, error) {
	m, err := ReverseMapping(n, forExecution, false)
	if err != nil {
		return nil, err
	}
	return m.AllRefs, nil
}

// Generations yields successive waves of nodes that could run in parallel:
// the leaves first, then repeatedly the consumers whose order-affecting
// references are entirely contained in prior waves. Used for visualization
// only; the executor does not consume this.
func Generations(root Node) ([][]Node, error) {
	m, err := ReverseMapping(root, true, true)
	if err != nil {
		return nil, err
	}

	finished := map[Node]bool{}
	var waves [][]Node

	wave := m.Leaves
	for len(wave) > 0 {
		waves = append(waves, wave)
		for _, n := range wave {
			finished[n] = true
		}

		nextSet := map[Node]bool{}
		for _, n := range wave {
			for _, consumer := range m.Consumers[n] {
				if finished[consumer] || nextSet[consumer] {
					continue
				}
				ready := true
				for _, dep := range DirectReferences(consumer, true) {
					if !finished[dep] {
						ready = false
						break
					}
				}
				if ready {
					nextSet[consumer] = true
				}
			}
		}
		wave = sortedKeys(nextSet)
	}

	return waves, nil
}

// Flatten concatenates generation waves into a single slice, for comparing
// against AllReferences in round-trip tests.
func Flatten(waves [][]Node) []Node {
	var out []Node
	for _, w := range waves {
		out = append(out, w...)
	}
	return out
}

// PruneRedundant removes any entry of direct that is also transitively
// reachable through another entry of direct, using the same cycle-detection
// and depth-bound machinery as ReverseMapping. It is idempotent: pruning an
// already-pruned list returns it unchanged.
func PruneRedundant(direct []Node) ([]Node, error) {
	redundant := map[Node]bool{}

	for _, d := range direct {
		closure, err := AllReferences(d, true)
		if err != nil {
			return nil, err
		}
		closureSet := make(map[Node]bool, len(closure))
		for _, c := range closure {
			closureSet[c] = true
		}
		for _, other := range direct {
			if other == d {
				continue
			}
			if closureSet[other] {
				redundant[other] = true
			}
		}
	}

	out := make([]Node, 0, len(direct))
	for _, d := range direct {
		if !redundant[d] {
			out = append(out, d)
		}
	}
	return out, nil
}
