package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/graphres/internal/ir"
)

// HierarchyCycle is a set of configurations that extend each other.
type HierarchyCycle struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// FindHierarchyCycles detects configurations whose extends chains loop.
//
// The algorithm:
//  1. Build configuration → extended configurations graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle
//
// Nodes and edges are visited in declaration order, so the report is
// stable. Extends references to undeclared configurations are ignored here.
func FindHierarchyCycles(configs []ir.ConfigurationSpec) []HierarchyCycle {
	if len(configs) == 0 {
		return []HierarchyCycle{}
	}

	g := buildHierarchyGraph(configs)
	sccs := tarjanSCC(g)

	cycles := []HierarchyCycle{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], g)) {
			cycles = append(cycles, sccToCycle(scc, g))
		}
	}
	return cycles
}

// hierarchyGraph maps a configuration to the configurations it extends.
type hierarchyGraph struct {
	order []string
	edges map[string][]string
}

func buildHierarchyGraph(configs []ir.ConfigurationSpec) hierarchyGraph {
	g := hierarchyGraph{edges: make(map[string][]string, len(configs))}
	for _, c := range configs {
		if _, seen := g.edges[c.Name]; !seen {
			g.order = append(g.order, c.Name)
			g.edges[c.Name] = []string{}
		}
	}
	for _, c := range configs {
		for _, parent := range c.Extends {
			if _, ok := g.edges[parent]; ok {
				g.edges[c.Name] = append(g.edges[c.Name], parent)
			}
		}
	}
	return g
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g hierarchyGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g hierarchyGraph) [][]string {
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

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
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
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// sccToCycle starts the path at the member declared first.
func sccToCycle(scc []string, g hierarchyGraph) HierarchyCycle {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	var start string
	for _, n := range g.order {
		if members[n] {
			start = n
			break
		}
	}

	if len(scc) == 1 {
		return HierarchyCycle{
			Path:    []string{start, start},
			Message: fmt.Sprintf("configuration %s extends itself", start),
		}
	}

	path := reconstructCyclePath(start, members, g)
	return HierarchyCycle{
		Path:    path,
		Message: fmt.Sprintf("configuration hierarchy cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath follows extends edges within the SCC from start
// until it returns to start.
func reconstructCyclePath(start string, members map[string]bool, g hierarchyGraph) []string {
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
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
