package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timestampJSON is the wire form of a Timestamp, kept distinct from Text.
type timestampJSON struct {
	TS string `json:"ts"`
}

// MarshalJSON renders Int as a JSON number, Text as a string, Null as null and Timestamp as
// {"ts": "<RFC3339Nano>"}.
func (d DataType) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case KindInt:
		return json.Marshal(d.i)
	case KindText:
		return json.Marshal(d.s)
	case KindTimestamp:
		return json.Marshal(timestampJSON{TS: d.t.Format(time.RFC3339Nano)})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Non-integral numbers are rejected.
func (d *DataType) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	v, err := fromJSONValue(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// number is a JSON number literal as produced by a decoder in UseNumber mode.
type number interface {
	Int64() (int64, error)
	String() string
}

func fromJSONValue(raw any) (DataType, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return Text(x), nil
	case number:
		i, err := x.Int64()
		if err != nil {
			return Null(), NewTypeMismatchError(fmt.Sprintf("non-integer number %s", x.String()))
		}
		return Int(i), nil
	case float64:
		if x != float64(int64(x)) {
			return Null(), NewTypeMismatchError(fmt.Sprintf("non-integer number %v", x))
		}
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case map[string]any:
		ts, ok := x["ts"].(string)
		if !ok || len(x) != 1 {
			return Null(), NewTypeMismatchError(fmt.Sprintf("unsupported object value %v", x))
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Null(), NewTypeMismatchError(fmt.Sprintf("invalid timestamp %q: %v", ts, err))
		}
		return Timestamp(t), nil
	default:
		return Null(), NewTypeMismatchError(fmt.Sprintf("unsupported JSON value %v (%T)", raw, raw))
	}
}

// FromJSONValue converts a value produced by a generic JSON/YAML decoder into a DataType.
func FromJSONValue(raw any) (DataType, error) { return fromJSONValue(raw) }
