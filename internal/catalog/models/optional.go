package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// OptionalInt is an integer attribute that may not apply to an entry, such as
// the power of a status move. The zero value holds no value.
type OptionalInt struct {
	value int
	set   bool
}

// Some wraps a present value.
func Some(v int) OptionalInt {
	return OptionalInt{value: v, set: true}
}

// None is the absent value.
func None() OptionalInt {
	return OptionalInt{}
}

// OptionalFromPtr maps a nil pointer to None.
func OptionalFromPtr(p *int) OptionalInt {
	if p == nil {
		return None()
	}
	return Some(*p)
}

// Get returns the value and whether it is present.
func (o OptionalInt) Get() (int, bool) {
	return o.value, o.set
}

// Valid reports whether a value is present.
func (o OptionalInt) Valid() bool {
	return o.set
}

// String renders the value, or "-" when absent.
func (o OptionalInt) String() string {
	if !o.set {
		return "-"
	}
	return strconv.Itoa(o.value)
}

// MarshalJSON encodes absence as null.
func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absence.
func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None()
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
