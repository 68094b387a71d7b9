// Package visualize renders the dataflow graph of a recipe as a diagram.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/viewstore/pkg/dbsp"
)

// Graph represents the visualization graph of a recipe.
type Graph struct {
	Name  string
	Nodes []OpNode
	Edges []Connection
	Views []ViewRef
}

// OpNode represents a single operator of the dataflow graph.
type OpNode struct {
	ID     dbsp.NodeID
	Label  string
	Type   dbsp.OperatorType
	Table  string // set for table inputs
	Active bool
}

// Connection represents an edge between two operators.
type Connection struct {
	From, To dbsp.NodeID
	Port     int
}

// ViewRef represents a view materialized at the output of a node.
type ViewRef struct {
	Name  string
	Root  dbsp.NodeID
	Query bool
}

// BuildGraph constructs a visualization graph from a dataflow graph and the views rooted in it.
func BuildGraph(name string, g *dbsp.Graph, views []ViewRef) *Graph {
	ret := &Graph{
		Name:  name,
		Nodes: make([]OpNode, 0, g.Len()),
		Edges: make([]Connection, 0),
		Views: views,
	}

	for _, n := range g.Nodes() {
		node := OpNode{ID: n.ID, Label: n.Label(), Type: n.Op.OpType(), Active: n.IsActive()}
		if in, ok := n.Op.(*dbsp.InputOp); ok {
			node.Table = in.Table()
			node.Label = in.Table()
		}
		ret.Nodes = append(ret.Nodes, node)

		for port, up := range n.Inputs {
			ret.Edges = append(ret.Edges, Connection{From: up, To: n.ID, Port: port})
		}
	}

	return ret
}

func nodeKey(id dbsp.NodeID) string { return fmt.Sprintf("n%d", id) }

// BuildDotGraph creates a dot.Graph from the visualization graph.
// This unified graph can then be rendered in different formats (DOT, Mermaid, etc.).
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR") // Left to right layout.
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	nodes := make(map[dbsp.NodeID]dot.Node)

	for _, n := range g.Nodes {
		label := fmt.Sprintf("%d: %s", n.ID, n.Label)
		node := graph.Node(nodeKey(n.ID)).
			Attr("label", label).
			Attr("fontname", "helvetica")

		switch {
		case n.Table != "":
			node.Attr("shape", "cylinder").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
		case n.Type == dbsp.OpTypeLinear:
			node.Attr("shape", "box").
				Attr("style", "rounded")
		default:
			// stateful ops
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightblue").
				Attr("color", "darkblue").
				Attr("penwidth", "2")
		}
		if !n.Active {
			node.Attr("color", "gray")
		}

		nodes[n.ID] = node
	}

	for _, e := range g.Edges {
		from, fromExists := nodes[e.From]
		to, toExists := nodes[e.To]
		if !fromExists || !toExists {
			continue
		}
		edge := graph.Edge(from, to)
		if e.Port > 0 {
			edge.Attr("label", fmt.Sprintf("port %d", e.Port)).
				Attr("fontname", "helvetica").
				Attr("fontsize", "10")
		}
	}

	for _, v := range g.Views {
		root, exists := nodes[v.Root]
		if !exists {
			continue
		}
		fill := "lightyellow"
		if v.Query {
			fill = "lightcyan"
		}
		viewNode := graph.Node("view:"+v.Name).
			Attr("label", v.Name).
			Attr("shape", "ellipse").
			Attr("style", "filled").
			Attr("fillcolor", fill)
		graph.Edge(root, viewNode).
			Attr("style", "dashed").
			Attr("color", "blue")
	}

	return graph
}

// String returns a plain text description of the graph, one node per line.
func (g *Graph) String() string {
	lines := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		inputs := []string{}
		for _, e := range g.Edges {
			if e.To == n.ID {
				inputs = append(inputs, fmt.Sprintf("%d", e.From))
			}
		}
		lines = append(lines, fmt.Sprintf("%d: %s <- [%s]", n.ID, n.Label, strings.Join(inputs, ", ")))
	}
	return strings.Join(lines, "\n")
}
