package dbsp

import (
	"errors"
	"fmt"

	"github.com/l7mp/viewstore/pkg/types"
)

// PropagationError reports the node at which propagation of a delta failed.
type PropagationError struct {
	Node  NodeID
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed at node %d (%s): %v", e.Node, e.Op, e.Cause)
}

// Unwrap returns the cause.
func (e *PropagationError) Unwrap() error { return e.Cause }

// Push feeds a delta into a node and synchronously propagates the results along active edges to
// every downstream node and sink. Push returns only after the whole downstream subgraph has
// processed the delta.
//
// Each node keeps its lock while it pushes its output downstream. Since the graph is acyclic,
// locks are always taken in upstream-to-downstream order and concurrent pushes cannot deadlock,
// while a stateful node sees the deltas of concurrent pushes one at a time.
//
// On failure the propagation of the delta is aborted, every sink reachable from the failing node
// is marked faulty, and the error is returned.
func (g *Graph) Push(id NodeID, delta *ZSet) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}

	if err := g.process(n, 0, delta, liveScope); err != nil {
		g.fault(err)
		return err
	}
	return nil
}

// Replay feeds the content of an existing node into the inactive nodes downstream of it. It is
// used to fill newly added views: src is a node that already has state (a table input or the root
// of a view), content is that state, and only inactive nodes are visited. Sinks attached to active
// nodes are not touched.
func (g *Graph) Replay(src NodeID, content *ZSet) error {
	n, err := g.node(src)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, e := range n.outputs {
		if e.active {
			continue
		}
		if err := g.process(g.nodes[e.to], e.port, content, replayScope); err != nil {
			g.fault(err)
			return err
		}
	}
	return nil
}

type scope int

const (
	liveScope scope = iota
	replayScope
)

func (g *Graph) process(n *GraphNode, port int, delta *ZSet, s scope) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inputs := make([]*ZSet, n.Op.Arity())
	inputs[port] = delta
	out, err := n.Op.Process(inputs...)
	if err != nil {
		if !IsInternalInvariant(err) {
			// inputs are validated at the API boundary, anything failing here is an engine fault
			err = types.NewInternalInvariantError("operator failed", err)
		}
		return &PropagationError{Node: n.ID, Op: n.Op.Name(), Cause: err}
	}

	if g.log.V(5).Enabled() {
		g.log.V(5).Info("processed delta", "node", n.ID, "op", n.Label(), "port", port,
			"in", delta.String(), "out", out.String())
	}

	if out.IsZero() {
		return nil
	}

	for _, sink := range n.sinks {
		if err := sink.Apply(out); err != nil {
			if !IsInternalInvariant(err) {
				err = types.NewInternalInvariantError("sink failed", err)
			}
			return &PropagationError{Node: n.ID, Op: "sink " + sink.Name(), Cause: err}
		}
	}

	for _, e := range n.outputs {
		// live propagation follows active edges, replay only inactive ones
		if e.active != (s == liveScope) {
			continue
		}
		if err := g.process(g.nodes[e.to], e.port, out, s); err != nil {
			return err
		}
	}

	return nil
}

// fault marks all sinks reachable from the failing node as faulty.
func (g *Graph) fault(err error) {
	var perr *PropagationError
	if !errors.As(err, &perr) {
		return
	}

	g.log.Error(err, "propagation fault", "node", perr.Node, "op", perr.Op)

	visited := map[NodeID]bool{}
	var visit func(id NodeID)
	visit = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := g.nodes[id]
		for _, s := range n.sinks {
			s.Fault(err)
		}
		for _, e := range n.outputs {
			visit(e.to)
		}
	}
	visit(perr.Node)
}

// IsInternalInvariant reports whether err is an engine fault, as opposed to a rejected request.
func IsInternalInvariant(err error) bool {
	return errors.Is(err, types.ErrInternalInvariant)
}
