package types

import (
	"fmt"
	"slices"
	"strings"
)

// Row is an ordered sequence of values.
type Row []DataType

// NewRow builds a row from native scalars.
func NewRow(vs ...any) (Row, error) {
	row := make(Row, len(vs))
	for i, v := range vs {
		d, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = d
	}
	return row, nil
}

// MustRow is like NewRow but panics on error.
func MustRow(vs ...any) Row {
	row, err := NewRow(vs...)
	if err != nil {
		panic(err)
	}
	return row
}

// Equal reports element-wise equality.
func (r Row) Equal(o Row) bool {
	return slices.EqualFunc(r, o, func(a, b DataType) bool { return a.Equal(b) })
}

// Key returns a string identity of the row usable as a map key. Two rows have the same key iff
// they are Equal.
func (r Row) Key() string {
	var b strings.Builder
	for _, d := range r {
		p := d.keyPayload()
		fmt.Fprintf(&b, "%d:%d:%s", d.kind, len(p), p)
	}
	return b.String()
}

func (d DataType) keyPayload() string {
	switch d.kind {
	case KindInt:
		return fmt.Sprintf("%d", d.i)
	case KindText:
		return d.s
	case KindTimestamp:
		// UnixNano overflows outside 1678-2262
		return fmt.Sprintf("%d.%09d", d.t.Unix(), d.t.Nanosecond())
	default:
		return ""
	}
}

// Project returns the values at the given column indices.
func (r Row) Project(cols []int) Row {
	ret := make(Row, len(cols))
	for i, c := range cols {
		ret[i] = r[c]
	}
	return ret
}

// Copy returns a shallow copy; values are immutable so this is a full copy.
func (r Row) Copy() Row { return slices.Clone(r) }

// Compare orders rows lexicographically with Order.
func (r Row) Compare(o Row) int {
	for i := 0; i < len(r) && i < len(o); i++ {
		if c := Order(r[i], o[i]); c != 0 {
			return c
		}
	}
	return len(r) - len(o)
}

// Native returns the row as plain Go scalars.
func (r Row) Native() []any {
	ret := make([]any, len(r))
	for i, d := range r {
		ret[i] = d.Native()
	}
	return ret
}

func (r Row) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// SortRows sorts rows in place in the deterministic row order.
func SortRows(rows []Row) {
	slices.SortFunc(rows, func(a, b Row) int { return a.Compare(b) })
}

// Column is a named, typed column.
type Column struct {
	Name string
	Kind Kind
}

func (c Column) String() string { return c.Name + " " + c.Kind.String() }

// CheckRow validates a row against a column list: arity first, then per-column kinds.
func CheckRow(cols []Column, row Row) error {
	if len(row) != len(cols) {
		return NewArityError(len(cols), len(row))
	}
	for i, c := range cols {
		if err := c.Kind.Check(row[i]); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	return nil
}
