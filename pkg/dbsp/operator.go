package dbsp

import (
	"fmt"

	"github.com/l7mp/viewstore/pkg/types"
)

// Predicate decides whether a row passes a selection.
type Predicate interface {
	Match(types.Row) (bool, error)
	fmt.Stringer
}

// Projector maps an input row to an output row.
type Projector interface {
	Project(types.Row) (types.Row, error)
	fmt.Stringer
}

// OperatorType classifies operators.
type OperatorType int

const (
	OpTypeLinear     OperatorType = iota // Op^Δ = Op
	OpTypeBilinear                       // Op^Δ needs expansion (like joins)
	OpTypeNonLinear                      // Op^Δ needs state (like aggregations)
	OpTypeStructural                     // Graph structure (inputs)
)

func (t OperatorType) String() string {
	switch t {
	case OpTypeLinear:
		return "Linear"
	case OpTypeBilinear:
		return "Bilinear"
	case OpTypeNonLinear:
		return "NonLinear"
	case OpTypeStructural:
		return "Structural"
	default:
		return "Unknown"
	}
}

// Operator represents a computation node in the dataflow graph. Process receives one delta per
// input port (an empty ZSet for ports without a change) and returns the output delta. Stateful
// operators update their state as part of Process.
type Operator interface {
	// Process input deltas and produce the output delta.
	Process(inputs ...*ZSet) (*ZSet, error)
	// Name is a short label for debugging and visualization.
	Name() string
	// Arity is the number of input ports.
	Arity() int
	// OpType classifies the op.
	OpType() OperatorType
	// Columns is the schema of the output rows.
	Columns() []types.Column
}

// BaseOp is the common part of operators.
type BaseOp struct {
	arity   int
	name    string
	columns []types.Column
}

func NewBaseOp(name string, arity int, columns []types.Column) BaseOp {
	return BaseOp{arity: arity, name: name, columns: columns}
}

func (n *BaseOp) Name() string            { return n.name }
func (n *BaseOp) Arity() int              { return n.arity }
func (n *BaseOp) Columns() []types.Column { return n.columns }

// Validate inputs in Process methods. Nil inputs are replaced with empty Z-sets.
func (n *BaseOp) validateInputs(inputs []*ZSet) error {
	if len(inputs) != n.arity {
		return fmt.Errorf("node %s expects %d inputs, got %d", n.name, n.arity, len(inputs))
	}
	for i := range inputs {
		if inputs[i] == nil {
			inputs[i] = NewZSet()
		}
	}
	return nil
}

// InputOp is the entry point of a base table into the graph.
type InputOp struct {
	BaseOp
	table string
}

// NewInput creates a new input op for a table.
func NewInput(table string, columns []types.Column) *InputOp {
	return &InputOp{
		BaseOp: NewBaseOp(table, 1, columns),
		table:  table,
	}
}

func (op *InputOp) OpType() OperatorType { return OpTypeStructural }

// Table returns the name of the table feeding the input.
func (op *InputOp) Table() string { return op.table }

// Process forwards the delta unchanged.
func (op *InputOp) Process(inputs ...*ZSet) (*ZSet, error) {
	if err := op.validateInputs(inputs); err != nil {
		return nil, err
	}
	return inputs[0], nil
}
