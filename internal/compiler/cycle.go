package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/mover/internal/ir"
)

// DependencyWarning describes a module ordering problem found before
// compilation starts.
//
// The library only looks backwards: a module can use siblings that compiled
// earlier in walk order and nothing else. These warnings explain the E201
// that compilation will then report.
type DependencyWarning struct {
	Path    []string `json:"path"`    // e.g. ["0xa::A", "0xa::B", "0xa::A"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// UnitHeader pairs a source file with its header.
type UnitHeader struct {
	File   string
	Header *Header
}

// AnalyzeDependencies inspects module headers in walk order and reports:
//  1. uses cycles, found with Tarjan's algorithm (these can never compile)
//  2. forward references, where a module uses a sibling that sorts later
//
// Modules outside the set (standard library, prior builds) are ignored.
func AnalyzeDependencies(units []UnitHeader) []DependencyWarning {
	if len(units) == 0 {
		return []DependencyWarning{}
	}

	graph, order := buildDependencyGraph(units)

	var warnings []DependencyWarning
	inCycle := make(map[string]bool)
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
			for _, n := range scc {
				inCycle[n] = true
			}
		}
	}

	position := make(map[string]int, len(order))
	files := make(map[string]string, len(units))
	for i, n := range order {
		position[n] = i
	}
	for _, u := range units {
		if u.Header != nil {
			files[u.Header.Self.String()] = u.File
		}
	}
	for _, from := range order {
		for _, to := range graph[from] {
			if inCycle[from] && inCycle[to] {
				continue
			}
			if position[to] > position[from] {
				msg := fmt.Sprintf("%s (%s) uses %s (%s), which compiles later in walk order",
					from, files[from], to, files[to])
				warnings = append(warnings, DependencyWarning{
					Path:    []string{from, to},
					Message: msg,
					Level:   "warning",
				})
			}
		}
	}

	return warnings
}

// dependencyGraph maps module id → sibling module ids it uses.
type dependencyGraph map[string][]string

// buildDependencyGraph keeps only edges between modules in the set. order
// lists the nodes in walk order.
func buildDependencyGraph(units []UnitHeader) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	var order []string
	for _, u := range units {
		if u.Header == nil || u.Header.Kind != ir.KindModule {
			continue
		}
		id := u.Header.Self.String()
		order = append(order, id)
		if graph[id] == nil {
			graph[id] = []string{}
		}
	}

	for _, u := range units {
		if u.Header == nil || u.Header.Kind != ir.KindModule {
			continue
		}
		from := u.Header.Self.String()
		for _, dep := range u.Header.Uses {
			to := dep.String()
			if _, ok := graph[to]; ok && !slices.Contains(graph[from], to) {
				graph[from] = append(graph[from], to)
			}
		}
	}
	return graph, order
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in order so results are deterministic.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Reverse(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a DependencyWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) DependencyWarning {
	if len(scc) == 1 {
		id := scc[0]
		return DependencyWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("module uses itself: %s → %s", id, id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return DependencyWarning{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle cannot compile: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
