package dbsp

import (
	"fmt"
	"strings"

	"github.com/l7mp/viewstore/pkg/types"
	"github.com/l7mp/viewstore/pkg/util"
)

// Projection node.
type ProjectionOp struct {
	BaseOp
	proj Projector
}

// NewProjection creates a new projection op producing rows with the given output columns.
func NewProjection(proj Projector, columns []types.Column) *ProjectionOp {
	return &ProjectionOp{
		BaseOp: NewBaseOp("π", 1, columns),
		proj:   proj,
	}
}

func (n *ProjectionOp) OpType() OperatorType { return OpTypeLinear }
func (n *ProjectionOp) String() string       { return fmt.Sprintf("π(%s)", n.proj) }

// Process evaluates the op.
func (n *ProjectionOp) Process(inputs ...*ZSet) (*ZSet, error) {
	if err := n.validateInputs(inputs); err != nil {
		return nil, err
	}

	result := NewZSet()
	for _, c := range inputs[0].Entries() {
		projected, err := n.proj.Project(c.Row)
		if err != nil {
			return nil, err
		}
		result.AddRow(projected, c.Multiplicity)
	}

	return result, nil
}

// Selection node.
type SelectionOp struct {
	BaseOp
	pred Predicate
}

// NewSelection creates a new selection op. Selections do not change the schema.
func NewSelection(pred Predicate, columns []types.Column) *SelectionOp {
	return &SelectionOp{
		BaseOp: NewBaseOp("σ", 1, columns),
		pred:   pred,
	}
}

func (n *SelectionOp) OpType() OperatorType { return OpTypeLinear }
func (n *SelectionOp) String() string       { return fmt.Sprintf("σ(%s)", n.pred) }

// Process evaluates the op.
func (n *SelectionOp) Process(inputs ...*ZSet) (*ZSet, error) {
	if err := n.validateInputs(inputs); err != nil {
		return nil, err
	}

	result := NewZSet()
	for _, c := range inputs[0].Entries() {
		ok, err := n.pred.Match(c.Row)
		if err != nil {
			return nil, err
		}
		if ok {
			result.AddRow(c.Row, c.Multiplicity)
		}
	}

	return result, nil
}

// ColumnEquals matches rows whose column at Index equals Value. Null never matches.
type ColumnEquals struct {
	Index int
	Value types.DataType
	Label string
}

func (p *ColumnEquals) Match(row types.Row) (bool, error) {
	if p.Index < 0 || p.Index >= len(row) {
		return false, types.NewInternalInvariantError(
			fmt.Sprintf("selection column %d out of range for row %s", p.Index, row), nil)
	}
	v := row[p.Index]
	if v.IsNull() || p.Value.IsNull() {
		return false, nil
	}
	c, err := types.Compare(v, p.Value)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

func (p *ColumnEquals) String() string {
	label := p.Label
	if label == "" {
		label = fmt.Sprintf("$%d", p.Index)
	}
	return fmt.Sprintf("%s = %s", label, p.Value)
}

// And matches rows that pass all predicates.
type And []Predicate

func (a And) Match(row types.Row) (bool, error) {
	for _, p := range a {
		ok, err := p.Match(row)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a And) String() string { return util.Join(a, " AND ") }

// ColumnProjector selects and reorders columns by index.
type ColumnProjector struct {
	Indices []int
	Labels  []string
}

func (p *ColumnProjector) Project(row types.Row) (types.Row, error) {
	for _, i := range p.Indices {
		if i < 0 || i >= len(row) {
			return nil, types.NewInternalInvariantError(
				fmt.Sprintf("projection column %d out of range for row %s", i, row), nil)
		}
	}
	return row.Project(p.Indices), nil
}

func (p *ColumnProjector) String() string {
	if len(p.Labels) == len(p.Indices) {
		return strings.Join(p.Labels, ", ")
	}
	return fmt.Sprint(p.Indices)
}
