package proxy

import (
	"reflect"
	"strings"
)

// EqualityClass selects how a key member setter compares the current and
// the new value before deciding whether anything changes.
type EqualityClass int

// Equality classes, in decision order.
const (
	// EqualPrimitive compares numeric, boolean and enum-like values directly.
	EqualPrimitive EqualityClass = iota
	// EqualBytes compares byte slices by value. A nil slice never equals a
	// non-nil one.
	EqualBytes
	// EqualOperator calls the type's own Equal(T) bool method.
	EqualOperator
	// EqualBoxed compares the boxed values with ==.
	EqualBoxed
)

// String implements fmt.Stringer.
func (c EqualityClass) String() string {
	switch c {
	case EqualPrimitive:
		return "primitive"
	case EqualBytes:
		return "bytes"
	case EqualOperator:
		return "operator"
	default:
		return "boxed"
	}
}

var primitiveKinds = map[reflect.Kind]bool{
	reflect.Int:     true,
	reflect.Int16:   true,
	reflect.Int32:   true,
	reflect.Int64:   true,
	reflect.Bool:    true,
	reflect.Uint8:   true,
	reflect.Uint:    true,
	reflect.Uint32:  true,
	reflect.Uint64:  true,
	reflect.Float32: true,
	reflect.Float64: true,
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uint64
}

// ClassifyEquality returns the equality class of a member type.
func ClassifyEquality(t reflect.Type) EqualityClass {
	switch {
	case t.PkgPath() == "" && primitiveKinds[t.Kind()]:
		return EqualPrimitive
	case t.PkgPath() != "" && isInteger(t.Kind()):
		// Named integer types play the role of enums.
		return EqualPrimitive
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return EqualBytes
	case hasEqualMethod(t):
		return EqualOperator
	default:
		return EqualBoxed
	}
}

func hasEqualMethod(t reflect.Type) bool {
	m, ok := t.MethodByName("Equal")
	if !ok {
		return false
	}
	// Method types obtained from a reflect.Type include the receiver.
	mt := m.Type
	return mt.NumIn() == 2 && mt.In(1) == t && mt.NumOut() == 1 && mt.Out(0).Kind() == reflect.Bool
}

var declaredPrimitives = map[string]bool{
	"int": true, "int16": true, "int32": true, "int64": true,
	"bool": true, "byte": true, "uint8": true, "uint": true,
	"uint32": true, "uint64": true, "float32": true, "float64": true,
}

// ClassifyDeclared returns the equality class of a member declared by its Go
// source type name. Only builtin types, byte slices and time.Time are known
// without type information; everything else compares boxed.
func ClassifyDeclared(typeName string) EqualityClass {
	typeName = strings.TrimSpace(typeName)
	switch {
	case declaredPrimitives[typeName]:
		return EqualPrimitive
	case typeName == "[]byte" || typeName == "[]uint8":
		return EqualBytes
	case typeName == "time.Time":
		return EqualOperator
	default:
		return EqualBoxed
	}
}

// Comparer reports whether two values of the same member type are equal.
type Comparer func(a, b reflect.Value) bool

// KeyEqual returns the comparer of an equality class. Byte slices use
// compareBytes.
func KeyEqual(class EqualityClass, compareBytes func(a, b []byte) bool) Comparer {
	switch class {
	case EqualPrimitive:
		return primitiveEqual
	case EqualBytes:
		return func(a, b reflect.Value) bool {
			return compareBytes(a.Bytes(), b.Bytes())
		}
	case EqualOperator:
		return func(a, b reflect.Value) bool {
			return a.MethodByName("Equal").Call([]reflect.Value{b})[0].Bool()
		}
	default:
		return func(a, b reflect.Value) bool {
			return BoxedEqual(a.Interface(), b.Interface())
		}
	}
}

func primitiveEqual(a, b reflect.Value) bool {
	switch k := a.Kind(); {
	case k == reflect.Bool:
		return a.Bool() == b.Bool()
	case k >= reflect.Int && k <= reflect.Int64:
		return a.Int() == b.Int()
	case k >= reflect.Uint && k <= reflect.Uintptr:
		return a.Uint() == b.Uint()
	case k == reflect.Float32 || k == reflect.Float64:
		return a.Float() == b.Float()
	}
	return false
}

// BytesEqual compares byte slices by value. A nil slice only equals nil.
func BytesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BoxedEqual compares two values with ==. Values that cannot be compared
// are never equal.
func BoxedEqual(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	// Comparable structs and arrays may still hold uncomparable interface values.
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}
