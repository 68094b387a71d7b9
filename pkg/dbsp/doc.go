// Package dbsp implements the incremental dataflow core of the engine, based on Database Stream
// Processing (DBSP): data changes are represented as Z-sets, multisets of rows with integer
// multiplicities, and views are maintained by operators that turn input deltas into output deltas.
// See https://mihaibudiu.github.io/work/dbsp-spec.pdf for the theory.
//
// Key components:
//   - ZSet: an ordered Z-set of rows, the unit of change (a ChangeEvent is a row with a signed
//     multiplicity).
//   - Operator: interface for dataflow operators.
//   - Graph: an append-only arena of operator nodes with synchronous, depth-first propagation.
//
// Operator types:
//   - Linear: SelectionOp (filter) and ProjectionOp, stateless.
//   - Bilinear: IncrementalJoinOp, an equi-join with one index per input, inner or left outer.
//   - NonLinear: IncrementalCountOp, GROUP BY with COUNT, emitting replaces per group.
//
// Example usage:
//
//	g := dbsp.NewGraph(logger)
//	in, _ := g.AddNode(dbsp.NewInput("Vote", voteColumns))
//	cnt, _ := g.AddNode(dbsp.NewIncrementalCount(voteColumns, []int{0}, 1, "votes"), in)
//	_ = g.AddSink(cnt, view)
//	_ = g.Activate(in, cnt)
//	err := g.Push(in, dbsp.SingletonZSet(row, 1))
package dbsp
