package dbsp

import (
	"fmt"
	"strings"

	"github.com/l7mp/viewstore/pkg/types"
)

// CountStar makes the count op count every row instead of the non-null values of a column.
const CountStar = -1

// IncrementalCountOp implements an incremental GROUP BY ... COUNT(...) with O(|delta|) cost.
//
// The op keeps the current count per group key. Every change to a group is emitted as a replace:
// the previous output row with multiplicity -1 (if the group had been seen before) followed by the
// new output row with multiplicity +1. A group whose count drops to zero keeps emitting a row with
// a zero count. A decrement below zero means that a deletion reached the op without a matching
// insertion, which is reported as ErrInternalInvariant and leaves the state untouched.
//
// COUNT is the only aggregate implemented; other aggregates would keep a per-group accumulator in
// countGroup and follow the same replace protocol.
type IncrementalCountOp struct {
	BaseOp
	groupCols []int
	countCol  int
	groups    map[string]*countGroup // group key -> current group state
}

type countGroup struct {
	key   types.Row
	count int64
}

// NewIncrementalCount creates a new incremental count op over the input schema. The output schema
// is the grouping columns followed by an integer column named countName.
func NewIncrementalCount(input []types.Column, groupCols []int, countCol int, countName string) *IncrementalCountOp {
	columns := make([]types.Column, 0, len(groupCols)+1)
	for _, i := range groupCols {
		columns = append(columns, input[i])
	}
	columns = append(columns, types.Column{Name: countName, Kind: types.KindInt})

	return &IncrementalCountOp{
		BaseOp:    NewBaseOp("count^Δ", 1, columns),
		groupCols: groupCols,
		countCol:  countCol,
		groups:    make(map[string]*countGroup),
	}
}

func (op *IncrementalCountOp) OpType() OperatorType { return OpTypeNonLinear }

func (op *IncrementalCountOp) String() string {
	names := make([]string, len(op.groupCols))
	cols := op.Columns()
	for i := range op.groupCols {
		names[i] = cols[i].Name
	}
	return fmt.Sprintf("γ[%s](%s)", strings.Join(names, ", "), cols[len(cols)-1].Name)
}

// Process evaluates the op.
func (op *IncrementalCountOp) Process(inputs ...*ZSet) (*ZSet, error) {
	if err := op.validateInputs(inputs); err != nil {
		return nil, err
	}

	// Work on a scratch copy of the touched groups so that a failure leaves the state unchanged.
	touched := map[string]*countGroup{}
	result := NewZSet()

	for _, c := range inputs[0].Entries() {
		if op.countCol >= len(c.Row) {
			return nil, types.NewInternalInvariantError(
				fmt.Sprintf("count: column %d out of range for row %s", op.countCol, c.Row), nil)
		}
		for _, i := range op.groupCols {
			if i >= len(c.Row) {
				return nil, types.NewInternalInvariantError(
					fmt.Sprintf("count: group column %d out of range for row %s", i, c.Row), nil)
			}
		}
		key := c.Row.Project(op.groupCols)
		groupKey := key.Key()

		g, ok := touched[groupKey]
		if !ok {
			if prev, exists := op.groups[groupKey]; exists {
				g = &countGroup{key: prev.key, count: prev.count}
				touched[groupKey] = g
			}
		}

		existed := g != nil
		var old int64
		if existed {
			old = g.count
		}

		// COUNT(col) does not count nulls, but a null row still makes its group exist
		mult := int64(c.Multiplicity)
		if op.countCol != CountStar && c.Row[op.countCol].IsNull() {
			if existed || mult < 0 {
				continue
			}
			mult = 0
		}

		updated := old + mult
		if updated < 0 {
			return nil, types.NewInternalInvariantError(
				fmt.Sprintf("count for group %s would drop to %d", key, updated), nil)
		}

		if existed {
			result.AddRow(outputRow(g.key, old), -1)
		} else {
			g = &countGroup{key: key}
			touched[groupKey] = g
		}
		g.count = updated
		result.AddRow(outputRow(g.key, updated), 1)
	}

	for k, g := range touched {
		op.groups[k] = g
	}

	return result, nil
}

// Count returns the current count of a group.
func (op *IncrementalCountOp) Count(key types.Row) (int64, bool) {
	g, ok := op.groups[key.Key()]
	if !ok {
		return 0, false
	}
	return g.count, true
}

func outputRow(key types.Row, count int64) types.Row {
	ret := make(types.Row, 0, len(key)+1)
	ret = append(ret, key...)
	return append(ret, types.Int(count))
}
