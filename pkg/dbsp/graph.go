package dbsp

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// NodeID is the stable index of a node in the graph arena.
type NodeID int

// Sink receives the output deltas of a node. Materialized views are sinks.
type Sink interface {
	// Apply folds an output delta into the sink.
	Apply(delta *ZSet) error
	// Fault marks the sink as inconsistent after a propagation failure upstream of it.
	Fault(err error)
	// Name identifies the sink in logs.
	Name() string
}

// edge connects a node output to an input port of a downstream node. Edges are created inactive
// and only take part in live propagation once activated.
type edge struct {
	to     NodeID
	port   int
	active bool
}

// GraphNode is a node of the dataflow graph.
type GraphNode struct {
	ID     NodeID
	Op     Operator
	Inputs []NodeID

	mu      sync.Mutex // serializes Process and the downstream push
	outputs []edge
	sinks   []Sink
	active  bool
}

// Graph is an append-only arena of operator nodes. Nodes are never removed or renumbered, so a
// NodeID stays valid for the lifetime of the graph.
//
// Structural changes (AddNode, AddSink, Activate) must not run concurrently with propagation; the
// owner of the graph is responsible for this exclusion.
type Graph struct {
	nodes []*GraphNode
	log   logr.Logger
}

// NewGraph creates an empty graph.
func NewGraph(log logr.Logger) *Graph {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Graph{nodes: []*GraphNode{}, log: log.WithName("graph")}
}

// AddNode adds a new, inactive node fed by the given upstream nodes, one per input port. Input ops
// take no upstream nodes.
func (g *Graph) AddNode(op Operator, inputs ...NodeID) (NodeID, error) {
	if _, ok := op.(*InputOp); ok {
		if len(inputs) != 0 {
			return -1, fmt.Errorf("input node %s cannot have upstream nodes", op.Name())
		}
	} else if len(inputs) != op.Arity() {
		return -1, fmt.Errorf("node %s expects %d inputs, got %d", op.Name(), op.Arity(), len(inputs))
	}

	for _, in := range inputs {
		if _, err := g.node(in); err != nil {
			return -1, err
		}
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &GraphNode{ID: id, Op: op, Inputs: inputs})
	for port, in := range inputs {
		up := g.nodes[in]
		up.outputs = append(up.outputs, edge{to: id, port: port})
	}

	g.log.V(4).Info("node added", "id", id, "op", op.Name(), "inputs", inputs)

	return id, nil
}

// AddSink attaches a sink to the output of a node.
func (g *Graph) AddSink(id NodeID, sink Sink) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.sinks = append(n.sinks, sink)
	return nil
}

// Activate makes the given nodes, and the edges feeding them, part of live propagation.
func (g *Graph) Activate(ids ...NodeID) error {
	for _, id := range ids {
		n, err := g.node(id)
		if err != nil {
			return err
		}
		n.active = true
		for _, in := range n.Inputs {
			up := g.nodes[in]
			for i := range up.outputs {
				if up.outputs[i].to == id {
					up.outputs[i].active = true
				}
			}
		}
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id NodeID) (*GraphNode, bool) {
	n, err := g.node(id)
	return n, err == nil
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all nodes in creation order, which is also a topological order.
func (g *Graph) Nodes() []*GraphNode {
	ret := make([]*GraphNode, len(g.nodes))
	copy(ret, g.nodes)
	return ret
}

// Downstream returns the IDs of the nodes fed by a node.
func (n *GraphNode) Downstream() []NodeID {
	ret := make([]NodeID, 0, len(n.outputs))
	for _, e := range n.outputs {
		ret = append(ret, e.to)
	}
	return ret
}

// Sinks returns the names of the sinks attached to a node.
func (n *GraphNode) Sinks() []string {
	ret := make([]string, 0, len(n.sinks))
	for _, s := range n.sinks {
		ret = append(ret, s.Name())
	}
	return ret
}

// IsActive reports whether the node takes part in live propagation.
func (n *GraphNode) IsActive() bool { return n.active }

func (g *Graph) node(id NodeID) (*GraphNode, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("node %d not found", id)
	}
	return g.nodes[id], nil
}

// String representation for debugging.
func (g *Graph) String() string {
	result := fmt.Sprintf("Graph with %d nodes:\n", len(g.nodes))
	for _, n := range g.nodes {
		result += fmt.Sprintf("  %d (%s): inputs=%v, outputs=%v, sinks=%v\n",
			n.ID, opLabel(n.Op), n.Inputs, n.Downstream(), n.Sinks())
	}
	return result
}

func opLabel(op Operator) string {
	if s, ok := op.(fmt.Stringer); ok {
		return s.String()
	}
	return op.Name()
}

// Label returns a human readable description of the node's op.
func (n *GraphNode) Label() string { return opLabel(n.Op) }
