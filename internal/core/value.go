package core

// value.go defines the schema-agnostic record representation: an ordered
// mapping of column name to a tagged scalar. The engine does not interpret
// field semantics beyond the time field, but tagging the scalars keeps type
// fidelity (int vs float, timestamps) through JSON and the export sinks.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Kind discriminates the scalar union carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
)

// Value is a tagged scalar: exactly one of the payload fields is
// meaningful, selected by Kind. The zero value is null.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time
}

// NullValue returns the null scalar.
func NullValue() Value { return Value{} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue wraps an int64.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float64.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// TimeValue wraps an instant, normalized to UTC.
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t.UTC()} }

// ValueFrom converts a driver value (as returned by pgx rows.Values())
// into a tagged scalar. Integers widen to int64, floats to float64, UUID
// bytes render as their canonical string, and pgtype.Numeric converts to
// float. Anything unrecognized is formatted into a string so unusual
// column types still pass through.
func ValueFrom(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case [16]byte:
		return StringValue(uuid.UUID(x).String())
	case time.Time:
		return TimeValue(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return NullValue()
		}
		return FloatValue(f.Float64)
	default:
		return StringValue(fmt.Sprintf("%v", x))
	}
}

// IsNull reports whether the value is the null scalar.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// String renders the value as display text. Null renders empty; this is
// what the CSV sink writes into cells.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindTime:
		return FormatTime(v.Time)
	default:
		return v.Str
	}
}

// MarshalJSON renders the scalar: null, bool, number, or string.
// Timestamps marshal as RFC3339Nano strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.Bool), nil
	case KindInt:
		return strconv.AppendInt(nil, v.Int, 10), nil
	case KindFloat:
		return json.Marshal(v.Float)
	case KindTime:
		return json.Marshal(FormatTime(v.Time))
	default:
		return json.Marshal(v.Str)
	}
}

// valueFromToken builds a Value from a json.Decoder token produced with
// UseNumber. Strings stay strings: a re-read record round-trips byte for
// byte, but timestamp columns come back as their RFC3339Nano text.
func valueFromToken(tok json.Token) (Value, error) {
	switch x := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return FloatValue(f), nil
	default:
		return Value{}, fmt.Errorf("unsupported record value token %T", tok)
	}
}

// Field is one named column value within a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered mapping of column name to scalar value. Order is the
// query's projection order and is preserved through JSON.
type Record []Field

// Get returns the value for a column name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON renders the record as a JSON object with fields in record
// order. encoding/json's map marshaling would sort keys; building the
// object by hand keeps the projection order intact.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object into a Record, preserving field order.
// Only scalar values are accepted; records never carry nested structure.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	var rec Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("record: expected field name, got %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		if _, isDelim := valTok.(json.Delim); isDelim {
			return fmt.Errorf("record: field %s: nested values are not supported", key)
		}
		val, err := valueFromToken(valTok)
		if err != nil {
			return fmt.Errorf("record: field %s: %w", key, err)
		}
		rec = append(rec, Field{Name: key, Value: val})
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return err
	}

	*r = rec
	return nil
}
