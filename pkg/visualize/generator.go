package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// Generator renders a visualization graph.
type Generator interface {
	Generate(g *Graph) string
}

// DotGenerator renders Graphviz DOT.
type DotGenerator struct{}

func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// MermaidGenerator renders a Mermaid flowchart, laid out top-down like the dataflow.
type MermaidGenerator struct {
	// Fenced wraps the chart into a markdown code block.
	Fenced bool
}

func (m *MermaidGenerator) Generate(g *Graph) string {
	chart := dot.MermaidFlowchart(BuildDotGraph(g), dot.MermaidTopToBottom)
	if !m.Fenced {
		return chart
	}
	return fmt.Sprintf("```mermaid\n%s\n```\n", chart)
}

// NewGenerator returns the generator for a format name: "dot", "mermaid" or "markdown" (a fenced
// Mermaid chart).
func NewGenerator(format string) (Generator, bool) {
	switch format {
	case "", "dot":
		return &DotGenerator{}, true
	case "mermaid":
		return &MermaidGenerator{}, true
	case "markdown":
		return &MermaidGenerator{Fenced: true}, true
	default:
		return nil, false
	}
}
