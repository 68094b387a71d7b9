package dbsp

import (
	"fmt"

	"github.com/l7mp/viewstore/pkg/types"
)

// JoinKind selects inner or left outer join semantics.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

func (k JoinKind) String() string {
	if k == LeftJoin {
		return "left"
	}
	return "inner"
}

// IncrementalJoinOp implements an incremental binary equi-join on one column per side. It keeps
// one index per input, keyed by the join column, holding the integrated state of that input.
//
// Given input deltas ΔL and ΔR the output is ΔL ⋈ R + (L + ΔL) ⋈ ΔR, which is computed by first
// processing ΔL against the right index, folding ΔL into the left index, and then processing ΔR
// against the updated left index.
//
// With LeftJoin a left row without a right match is emitted padded with nulls. The padded row is
// retracted when the first match for its key appears and re-emitted when the last one goes away.
type IncrementalJoinOp struct {
	BaseOp
	kind                  JoinKind
	leftCol, rightCol     int
	leftWidth, rightWidth int
	leftIndex             map[string]*ZSet // join key -> left rows
	rightIndex            map[string]*ZSet // join key -> right rows
	rightCount            map[string]int   // join key -> number of right rows
	leftLabel, rightLabel string
}

// NewIncrementalJoin creates a new incremental join. The output schema is the left columns followed
// by the right columns.
func NewIncrementalJoin(kind JoinKind, left []types.Column, leftCol int, right []types.Column, rightCol int) *IncrementalJoinOp {
	columns := make([]types.Column, 0, len(left)+len(right))
	columns = append(columns, left...)
	columns = append(columns, right...)

	return &IncrementalJoinOp{
		BaseOp:     NewBaseOp("⋈", 2, columns),
		kind:       kind,
		leftCol:    leftCol,
		rightCol:   rightCol,
		leftWidth:  len(left),
		rightWidth: len(right),
		leftIndex:  map[string]*ZSet{},
		rightIndex: map[string]*ZSet{},
		rightCount: map[string]int{},
		leftLabel:  left[leftCol].Name,
		rightLabel: right[rightCol].Name,
	}
}

func (op *IncrementalJoinOp) OpType() OperatorType { return OpTypeBilinear }

func (op *IncrementalJoinOp) String() string {
	return fmt.Sprintf("⋈[%s](%s = %s)", op.kind, op.leftLabel, op.rightLabel)
}

// Process evaluates the op.
func (op *IncrementalJoinOp) Process(inputs ...*ZSet) (*ZSet, error) {
	if err := op.validateInputs(inputs); err != nil {
		return nil, err
	}

	result := NewZSet()

	// ΔL ⋈ R
	for _, c := range inputs[0].Entries() {
		if err := op.processLeft(c, result); err != nil {
			return nil, err
		}
	}

	// (L + ΔL) ⋈ ΔR
	for _, c := range inputs[1].Entries() {
		if err := op.processRight(c, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (op *IncrementalJoinOp) processLeft(c Change, result *ZSet) error {
	if len(c.Row) != op.leftWidth {
		return types.NewInternalInvariantError(
			fmt.Sprintf("join: left row %s has %d columns, expected %d", c.Row, len(c.Row), op.leftWidth), nil)
	}

	v := c.Row[op.leftCol]
	if v.IsNull() {
		// null keys never match
		if op.kind == LeftJoin {
			result.AddRow(op.pad(c.Row), c.Multiplicity)
		}
		return nil
	}

	key := joinKey(v)
	if matches, ok := op.rightIndex[key]; ok && op.rightCount[key] > 0 {
		for _, m := range matches.Entries() {
			result.AddRow(concat(c.Row, m.Row), c.Multiplicity*m.Multiplicity)
		}
	} else if op.kind == LeftJoin {
		result.AddRow(op.pad(c.Row), c.Multiplicity)
	}

	addToIndex(op.leftIndex, key, c)
	return nil
}

func (op *IncrementalJoinOp) processRight(c Change, result *ZSet) error {
	if len(c.Row) != op.rightWidth {
		return types.NewInternalInvariantError(
			fmt.Sprintf("join: right row %s has %d columns, expected %d", c.Row, len(c.Row), op.rightWidth), nil)
	}

	v := c.Row[op.rightCol]
	if v.IsNull() {
		return nil
	}

	key := joinKey(v)
	before := op.rightCount[key]
	after := before + c.Multiplicity
	if after < 0 {
		return types.NewInternalInvariantError(
			fmt.Sprintf("join: right side for key %s would hold %d rows", v, after), nil)
	}

	if lefts, ok := op.leftIndex[key]; ok {
		for _, l := range lefts.Entries() {
			result.AddRow(concat(l.Row, c.Row), l.Multiplicity*c.Multiplicity)

			if op.kind == LeftJoin {
				switch {
				case before == 0 && after > 0:
					result.AddRow(op.pad(l.Row), -l.Multiplicity)
				case before > 0 && after == 0:
					result.AddRow(op.pad(l.Row), l.Multiplicity)
				}
			}
		}
	}

	addToIndex(op.rightIndex, key, c)
	if after == 0 {
		delete(op.rightCount, key)
	} else {
		op.rightCount[key] = after
	}
	return nil
}

func (op *IncrementalJoinOp) pad(left types.Row) types.Row {
	ret := make(types.Row, 0, op.leftWidth+op.rightWidth)
	ret = append(ret, left...)
	for i := 0; i < op.rightWidth; i++ {
		ret = append(ret, types.Null())
	}
	return ret
}

func joinKey(v types.DataType) string { return types.Row{v}.Key() }

func addToIndex(index map[string]*ZSet, key string, c Change) {
	zs, ok := index[key]
	if !ok {
		zs = NewZSet()
		index[key] = zs
	}
	zs.AddRow(c.Row, c.Multiplicity)
	if zs.IsZero() {
		delete(index, key)
	}
}

func concat(a, b types.Row) types.Row {
	ret := make(types.Row, 0, len(a)+len(b))
	ret = append(ret, a...)
	return append(ret, b...)
}
