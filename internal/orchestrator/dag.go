// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"fmt"
	"strings"
)

type (
	// CycleError indicates that depends entries form a cycle, so no
	// run order exists.
	CycleError struct {
		// Cycle holds environments involved in the cycle (enough of
		// them to identify the problem).
		Cycle []string
	}

	// graph is a directed graph over environment names. An edge from A
	// to B means A must complete before B starts.
	graph struct {
		adjacency map[string][]string
		nodes     []string
		nodeSet   map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("depends cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

func newGraph() *graph {
	return &graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

func (g *graph) addNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

func (g *graph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
}

// levels returns the environments grouped into dependency levels using
// Kahn's algorithm: every environment in level N depends only on
// environments in earlier levels. Within a level, insertion order is kept
// so output is deterministic. Returns CycleError when a cycle exists.
func (g *graph) levels() ([][]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	current := make([]string, 0)
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			current = append(current, node)
		}
	}

	var levels [][]string
	resolved := 0
	for len(current) > 0 {
		levels = append(levels, current)
		resolved += len(current)

		next := make([]string, 0)
		for _, node := range current {
			for _, neighbor := range g.adjacency[node] {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					next = append(next, neighbor)
				}
			}
		}
		current = next
	}

	if resolved != len(g.nodes) {
		var cycleNodes []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}
	return levels, nil
}
