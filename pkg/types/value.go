// Package types defines the runtime values of the oida language.
// It implements the dynamic type system: absence, bool, int, double, string,
// list, associative map and function reference.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueType represents the type of an oida value.
type ValueType int

const (
	TypeNull   ValueType = iota
	TypeBool             // bool
	TypeInt              // int64
	TypeDouble           // float64
	TypeString           // string
	TypeList             // []Value
	TypeMap              // ordered map of scalar key -> Value
	TypeFunc             // reference to a named function
)

// String returns the type name used in diagnostics.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "nix"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeDouble:
		return "double"
	case TypeString:
		return "text"
	case TypeList:
		return "array"
	case TypeMap:
		return "assoc"
	case TypeFunc:
		return "hawara"
	default:
		return "unknown"
	}
}

// Literal words for the boolean values.
const (
	TrueWord  = "basst"
	FalseWord = "sichaned"
)

// Value is an oida runtime value. It uses a tagged union approach.
//
// Lists and maps are values: the evaluator never mutates a stored list or
// map in place. Mutating operations Clone first and store the copy back.
type Value struct {
	typ       ValueType
	boolVal   bool
	intVal    int64
	doubleVal float64
	stringVal string
	listVal   []Value
	mapVal    *OrderedMap
}

// OrderedMap maintains insertion order for associative arrays.
// Scalar keys are stored under their canonical string form, so the keys
// 1 and "1" address the same entry.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

// NewOrderedMap creates a new empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{
		keys:   make([]string, 0),
		values: make(map[string]Value),
	}
}

// Get retrieves a value by key. Returns the value and whether it exists.
func (m *OrderedMap) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set adds or updates a key-value pair, preserving insertion order.
func (m *OrderedMap) Set(key string, val Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = val
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	result := make([]string, len(m.keys))
	copy(result, m.keys)
	return result
}

// Values returns the values in key insertion order.
func (m *OrderedMap) Values() []Value {
	result := make([]Value, len(m.keys))
	for i, k := range m.keys {
		result[i] = m.values[k]
	}
	return result
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// Clone creates a deep copy of the ordered map.
func (m *OrderedMap) Clone() *OrderedMap {
	c := NewOrderedMap()
	for _, k := range m.keys {
		c.Set(k, m.values[k].Clone())
	}
	return c
}

// Null is the absence value.
var Null = Value{typ: TypeNull}

// NewBool creates a boolean value.
func NewBool(v bool) Value {
	return Value{typ: TypeBool, boolVal: v}
}

// NewInt creates an integer value (64-bit).
func NewInt(v int64) Value {
	return Value{typ: TypeInt, intVal: v}
}

// NewDouble creates a double value (64-bit float).
func NewDouble(v float64) Value {
	return Value{typ: TypeDouble, doubleVal: v}
}

// NewString creates a string value.
func NewString(v string) Value {
	return Value{typ: TypeString, stringVal: v}
}

// NewList creates a list value from a slice of values.
func NewList(v []Value) Value {
	if v == nil {
		v = []Value{}
	}
	return Value{typ: TypeList, listVal: v}
}

// NewMap creates a map value from an OrderedMap.
func NewMap(v *OrderedMap) Value {
	return Value{typ: TypeMap, mapVal: v}
}

// NewFunc creates a reference to the function with the given name.
func NewFunc(name string) Value {
	return Value{typ: TypeFunc, stringVal: name}
}

// Type returns the value's type.
func (v Value) Type() ValueType {
	return v.typ
}

// IsNull returns true if the value is the absence value.
func (v Value) IsNull() bool {
	return v.typ == TypeNull
}

// IsNumber reports whether the value is an int or a double.
func (v Value) IsNumber() bool {
	return v.typ == TypeInt || v.typ == TypeDouble
}

// IsCollection reports whether the value is a list or an associative map.
func (v Value) IsCollection() bool {
	return v.typ == TypeList || v.typ == TypeMap
}

// AsBool returns the boolean value. Panics if not a bool.
func (v Value) AsBool() bool {
	if v.typ != TypeBool {
		panic(fmt.Sprintf("AsBool called on %s value", v.typ))
	}
	return v.boolVal
}

// AsInt returns the integer value. Panics if not an int.
func (v Value) AsInt() int64 {
	if v.typ != TypeInt {
		panic(fmt.Sprintf("AsInt called on %s value", v.typ))
	}
	return v.intVal
}

// AsDouble returns the double value. Panics if not a double.
func (v Value) AsDouble() float64 {
	if v.typ != TypeDouble {
		panic(fmt.Sprintf("AsDouble called on %s value", v.typ))
	}
	return v.doubleVal
}

// AsString returns the string value. Panics if not a string.
func (v Value) AsString() string {
	if v.typ != TypeString {
		panic(fmt.Sprintf("AsString called on %s value", v.typ))
	}
	return v.stringVal
}

// AsList returns the list value. Panics if not a list.
func (v Value) AsList() []Value {
	if v.typ != TypeList {
		panic(fmt.Sprintf("AsList called on %s value", v.typ))
	}
	return v.listVal
}

// AsMap returns the map value. Panics if not a map.
func (v Value) AsMap() *OrderedMap {
	if v.typ != TypeMap {
		panic(fmt.Sprintf("AsMap called on %s value", v.typ))
	}
	return v.mapVal
}

// AsNumber returns the numeric value as float64. Works for int and double types.
func (v Value) AsNumber() (float64, bool) {
	switch v.typ {
	case TypeInt:
		return float64(v.intVal), true
	case TypeDouble:
		return v.doubleVal, true
	default:
		return 0, false
	}
}

// Elements returns the elements of a collection: list items, or map values
// in key order. It returns nil for scalars.
func (v Value) Elements() []Value {
	switch v.typ {
	case TypeList:
		return v.listVal
	case TypeMap:
		return v.mapVal.Values()
	default:
		return nil
	}
}

// Truthy returns the truthiness of a value used by bare-expression conditions.
// sichaned, absence, 0, 0.0, "" and empty collections are falsy.
func (v Value) Truthy() bool {
	switch v.typ {
	case TypeNull:
		return false
	case TypeBool:
		return v.boolVal
	case TypeInt:
		return v.intVal != 0
	case TypeDouble:
		return v.doubleVal != 0
	case TypeString:
		return v.stringVal != ""
	case TypeList:
		return len(v.listVal) > 0
	case TypeMap:
		return v.mapVal.Len() > 0
	default:
		return true
	}
}

// Clone creates a deep copy of the value.
func (v Value) Clone() Value {
	switch v.typ {
	case TypeList:
		items := make([]Value, len(v.listVal))
		for i, item := range v.listVal {
			items[i] = item.Clone()
		}
		return NewList(items)
	case TypeMap:
		return NewMap(v.mapVal.Clone())
	default:
		return v // scalar types are value-copied
	}
}

// Equal tests equality between two values. This is the single equality
// used by gleich, isned, gibts and every condition form: ints and doubles
// compare numerically, everything else only equals the same type.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		if v.IsNumber() && other.IsNumber() {
			a, _ := v.AsNumber()
			b, _ := other.AsNumber()
			return a == b
		}
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBool:
		return v.boolVal == other.boolVal
	case TypeInt:
		return v.intVal == other.intVal
	case TypeDouble:
		return v.doubleVal == other.doubleVal
	case TypeString, TypeFunc:
		return v.stringVal == other.stringVal
	case TypeList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if v.mapVal.Len() != other.mapVal.Len() {
			return false
		}
		for i, k := range v.mapVal.keys {
			if other.mapVal.keys[i] != k {
				return false
			}
			if !v.mapVal.values[k].Equal(other.mapVal.values[k]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values: numbers against numbers, strings against
// strings. Any other pairing is reported as not comparable.
func Compare(a, b Value) (int, bool) {
	if a.IsNumber() && b.IsNumber() {
		an, _ := a.AsNumber()
		bn, _ := b.AsNumber()
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	if a.typ == TypeString && b.typ == TypeString {
		return strings.Compare(a.stringVal, b.stringVal), true
	}
	return 0, false
}

// MapKey returns the canonical key under which a scalar is stored in an
// associative array.
func MapKey(k Value) (string, bool) {
	switch k.typ {
	case TypeString:
		return k.stringVal, true
	case TypeInt, TypeDouble, TypeBool:
		return k.String(), true
	default:
		return "", false
	}
}

// String returns the display form used by oida.sag and zuText.
func (v Value) String() string {
	switch v.typ {
	case TypeString:
		return v.stringVal
	case TypeNull:
		return ""
	default:
		return v.nested()
	}
}

// nested renders a value as it appears inside a collection: strings are
// quoted, so the output parses back into an equivalent literal.
func (v Value) nested() string {
	switch v.typ {
	case TypeNull:
		return "nix"
	case TypeBool:
		if v.boolVal {
			return TrueWord
		}
		return FalseWord
	case TypeInt:
		return strconv.FormatInt(v.intVal, 10)
	case TypeDouble:
		if math.IsInf(v.doubleVal, 0) || math.IsNaN(v.doubleVal) {
			return fmt.Sprintf("%v", v.doubleVal)
		}
		return strconv.FormatFloat(v.doubleVal, 'f', -1, 64)
	case TypeString:
		return quote(v.stringVal)
	case TypeFunc:
		return "<hawara " + v.stringVal + ">"
	case TypeList:
		parts := make([]string, len(v.listVal))
		for i, item := range v.listVal {
			parts[i] = item.nested()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		keys := make([]string, 0, v.mapVal.Len())
		vals := make([]string, 0, v.mapVal.Len())
		for _, k := range v.mapVal.keys {
			keys = append(keys, quote(k))
			vals = append(vals, v.mapVal.values[k].nested())
		}
		return "[" + strings.Join(keys, ", ") + "] : [" + strings.Join(vals, ", ") + "]"
	}
	return "<unknown>"
}

// quote wraps s in double quotes without escaping. String literals cannot
// contain a double quote and have no escape sequences, so the result reads
// back as the same string.
func quote(s string) string {
	return `"` + s + `"`
}

// DisplayJoin renders values with String and joins them with one space.
func DisplayJoin(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}

// MarshalJSON converts a Value to JSON. Maps keep their key order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeNull:
		return []byte("null"), nil
	case TypeBool:
		return json.Marshal(v.boolVal)
	case TypeInt:
		return json.Marshal(v.intVal)
	case TypeDouble:
		return json.Marshal(v.doubleVal)
	case TypeString:
		return json.Marshal(v.stringVal)
	case TypeFunc:
		return json.Marshal(v.nested())
	case TypeList:
		items := make([]json.RawMessage, len(v.listVal))
		for i, item := range v.listVal {
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			items[i] = b
		}
		return json.Marshal(items)
	case TypeMap:
		buf := []byte{'{'}
		for i, k := range v.mapVal.keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			valBytes, err := v.mapVal.values[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		buf = append(buf, '}')
		return buf, nil
	}
	return nil, fmt.Errorf("cannot marshal unknown type %d", v.typ)
}

// FromJSON converts a Go interface{} (from json.Unmarshal) into a Value.
func FromJSON(v interface{}) Value {
	if v == nil {
		return Null
	}
	switch val := v.(type) {
	case bool:
		return NewBool(val)
	case float64:
		// JSON numbers are float64; convert to int if no fractional part
		if val == math.Trunc(val) && !math.IsInf(val, 0) && val >= math.MinInt64 && val <= math.MaxInt64 {
			return NewInt(int64(val))
		}
		return NewDouble(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return NewInt(i)
		}
		if f, err := val.Float64(); err == nil {
			return NewDouble(f)
		}
		return NewString(val.String())
	case string:
		return NewString(val)
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromJSON(item)
		}
		return NewList(items)
	case map[string]interface{}:
		m := NewOrderedMap()
		// JSON objects have no order, sort keys for determinism
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.Set(k, FromJSON(val[k]))
		}
		return NewMap(m)
	default:
		return NewString(fmt.Sprintf("%v", val))
	}
}

// ToGoValue converts a Value to a plain Go interface{} suitable for JSON
// or protobuf Struct conversion.
func (v Value) ToGoValue() interface{} {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeBool:
		return v.boolVal
	case TypeInt:
		return v.intVal
	case TypeDouble:
		return v.doubleVal
	case TypeString:
		return v.stringVal
	case TypeFunc:
		return v.nested()
	case TypeList:
		result := make([]interface{}, len(v.listVal))
		for i, item := range v.listVal {
			result[i] = item.ToGoValue()
		}
		return result
	case TypeMap:
		result := make(map[string]interface{}, v.mapVal.Len())
		for _, k := range v.mapVal.keys {
			result[k] = v.mapVal.values[k].ToGoValue()
		}
		return result
	}
	return nil
}
