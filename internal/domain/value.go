package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value holds a translation value, which is either text or a boolean flag.
type Value struct {
	flag   bool
	isBool bool
	text   string
}

// Text wraps a string value.
func Text(s string) Value { return Value{text: s} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{flag: b, isBool: true} }

// ValueOf converts a decoded JSON/Firestore/YAML scalar into a Value.
func ValueOf(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Text(""), nil
	case string:
		return Text(v), nil
	case bool:
		return Bool(v), nil
	case Value:
		return v, nil
	case int, int64, float64:
		return Text(fmt.Sprint(v)), nil
	default:
		return Value{}, fmt.Errorf("unsupported translation value type %T", raw)
	}
}

// IsBool reports whether the value is a boolean.
func (v Value) IsBool() bool { return v.isBool }

// Bool returns the boolean payload; text values report false.
func (v Value) Bool() bool { return v.isBool && v.flag }

// String renders the value as text; booleans render as "true" or "false".
func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.flag)
	}
	return v.text
}

// IsEmpty reports whether the value is empty text.
func (v Value) IsEmpty() bool {
	return !v.isBool && v.text == ""
}

// Interface returns the native Go representation (string or bool) for storage encoders.
func (v Value) Interface() any {
	if v.isBool {
		return v.flag
	}
	return v.text
}

// MarshalJSON encodes the value as a JSON string or boolean.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts JSON strings, booleans, numbers and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Text("")
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
