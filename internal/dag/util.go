package dag

import (
	"fmt"
	"strings"
)

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// TopoSort returns the nodes so that every node comes after all of its predecessors. Among nodes
// that are free to go, the one added first goes first, so the result is deterministic. A cycle is
// reported as an error naming the nodes on or behind it.
func (g *Graph) TopoSort() ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for _, from := range g.Nodes {
		for to := range g.edges[from] {
			indegree[to]++
		}
	}

	ret := make([]string, 0, len(g.Nodes))
	done := make(map[string]bool, len(g.Nodes))
	for len(ret) < len(g.Nodes) {
		next := ""
		for _, n := range g.Nodes {
			if !done[n] && indegree[n] == 0 {
				next = n
				break
			}
		}
		if next == "" {
			rest := []string{}
			for _, n := range g.Nodes {
				if !done[n] {
					rest = append(rest, n)
				}
			}
			return nil, fmt.Errorf("dependency cycle among %s", strings.Join(rest, ", "))
		}

		done[next] = true
		ret = append(ret, next)
		for _, to := range g.Edges(next) {
			indegree[to]--
		}
	}

	return ret, nil
}
