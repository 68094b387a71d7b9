// Package types defines the value model shared by every layer of the engine: the DataType
// tagged value, rows, column definitions, and the error taxonomy.
//
// DataType is a closed variant over {Null, Int, Text, Timestamp}. Values are immutable and
// compared by value. The total order used for grouping, sorting and join equality is:
//
//   - Null sorts before every other value and is equal to Null;
//   - two non-null values must be of the same kind, otherwise the comparison fails with
//     ErrTypeMismatch (there is no implicit coercion between kinds);
//   - Int compares numerically, Text by byte-wise string order, Timestamp chronologically.
package types

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the tag of a DataType.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindText
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a column type name of a recipe to a Kind. Length annotations, as in
// varchar(255), are ignored.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "int", "integer", "bigint", "smallint":
		return KindInt, nil
	case "text", "varchar", "char", "string":
		return KindText, nil
	case "timestamp", "datetime":
		return KindTimestamp, nil
	default:
		return KindNull, NewSchemaErrorf("unknown column type %q", name)
	}
}

// Check validates that v may be stored in a column of kind k. Null fits every column.
func (k Kind) Check(v DataType) error {
	if v.kind == KindNull || v.kind == k {
		return nil
	}
	return NewTypeMismatchError(fmt.Sprintf("value %s of kind %s in %s column", v, v.kind, k))
}

// DataType is a tagged scalar value.
type DataType struct {
	kind Kind
	i    int64
	s    string
	t    time.Time
}

// Null returns the null value.
func Null() DataType { return DataType{kind: KindNull} }

// Int returns an integer value.
func Int(i int64) DataType { return DataType{kind: KindInt, i: i} }

// Text returns a text value.
func Text(s string) DataType { return DataType{kind: KindText, s: s} }

// Timestamp returns a timestamp value normalized to UTC.
func Timestamp(t time.Time) DataType { return DataType{kind: KindTimestamp, t: t.UTC()} }

// FromAny converts a native Go scalar into a DataType.
func FromAny(v any) (DataType, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case DataType:
		return x, nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case string:
		return Text(x), nil
	case time.Time:
		return Timestamp(x), nil
	default:
		return Null(), NewTypeMismatchError(fmt.Sprintf("unsupported native value %v (%T)", v, v))
	}
}

// MustFromAny is like FromAny but panics on unsupported values. Meant for literals in tests and
// examples.
func MustFromAny(v any) DataType {
	d, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return d
}

// Kind returns the tag of the value.
func (d DataType) Kind() Kind { return d.kind }

// IsNull reports whether the value is null.
func (d DataType) IsNull() bool { return d.kind == KindNull }

// AsInt returns the integer payload.
func (d DataType) AsInt() (int64, bool) { return d.i, d.kind == KindInt }

// AsText returns the text payload.
func (d DataType) AsText() (string, bool) { return d.s, d.kind == KindText }

// AsTimestamp returns the timestamp payload.
func (d DataType) AsTimestamp() (time.Time, bool) { return d.t, d.kind == KindTimestamp }

// Native returns the value as a plain Go scalar: nil, int64, string or time.Time.
func (d DataType) Native() any {
	switch d.kind {
	case KindInt:
		return d.i
	case KindText:
		return d.s
	case KindTimestamp:
		return d.t
	default:
		return nil
	}
}

// Compare returns -1, 0 or +1. Comparing two non-null values of different kinds fails with
// ErrTypeMismatch.
func Compare(a, b DataType) (int, error) {
	switch {
	case a.kind == KindNull && b.kind == KindNull:
		return 0, nil
	case a.kind == KindNull:
		return -1, nil
	case b.kind == KindNull:
		return 1, nil
	case a.kind != b.kind:
		return 0, NewTypeMismatchError(fmt.Sprintf("cannot compare %s with %s", a.kind, b.kind))
	}

	switch a.kind {
	case KindInt:
		return cmp.Compare(a.i, b.i), nil
	case KindText:
		return cmp.Compare(a.s, b.s), nil
	default:
		return a.t.Compare(b.t), nil
	}
}

// Equal reports value equality. Values of different kinds are never equal.
func (d DataType) Equal(o DataType) bool {
	if d.kind != o.kind {
		return false
	}
	c, err := Compare(d, o)
	return err == nil && c == 0
}

// Order is a total order over all values that never fails: values of different kinds are ordered
// by their kind tag. Used only where rows of a heterogeneous column have to be sorted for
// deterministic output; semantic comparisons go through Compare.
func Order(a, b DataType) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	c, _ := Compare(a, b)
	return c
}

// Less reports whether a sorts before b in the total order.
func Less(a, b DataType) bool { return Order(a, b) < 0 }

func (d DataType) String() string {
	switch d.kind {
	case KindInt:
		return strconv.FormatInt(d.i, 10)
	case KindText:
		return strconv.Quote(d.s)
	case KindTimestamp:
		return d.t.Format(time.RFC3339Nano)
	default:
		return "NULL"
	}
}
