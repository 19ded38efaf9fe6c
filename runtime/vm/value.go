package vm

import (
	"fmt"
	"math"
	"strings"
)

// ValueKind is the tag of a runtime value.
type ValueKind uint8

const (
	KindInt ValueKind = iota
	KindFloat
	KindBool
	KindNone
	KindStr
	KindArray
	KindClosure
	KindNative
	KindSome
	KindOk
	KindErr
	KindInstance
)

// Value is the tagged runtime value. Primitive kinds are stored inline;
// arrays, instances and closures are shared through pointers, so every
// stack slot holding one aliases the same underlying object.
type Value struct {
	Kind     ValueKind
	Int      int64
	Float    float64
	Bool     bool
	Str      string
	Array    *Array
	Closure  *Closure
	Native   *NativeFn
	Inner    *Value // Some/Ok/Err payload
	Instance *Instance
}

// Array is a shared mutable sequence of values.
type Array struct {
	Elems []Value
}

// Closure pairs a function prototype with the upvalues snapshotted when
// the closure was created.
type Closure struct {
	Proto    *FnProto
	Upvalues []Value
}

// NativeFn is a built-in function.
type NativeFn struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

// Instance is a heap-allocated class object: a class name plus a mutable
// field map. Methods are installed as fields at construction time.
type Instance struct {
	ClassName string
	Fields    map[string]Value
}

// NewInstance creates an empty instance of the named class.
func NewInstance(className string) *Instance {
	return &Instance{ClassName: className, Fields: make(map[string]Value)}
}

// ── Constructors ──────────────────────────────────────────────────────────

func IntValue(n int64) Value       { return Value{Kind: KindInt, Int: n} }
func FloatValue(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func NoneValue() Value             { return Value{Kind: KindNone} }
func StrValue(s string) Value      { return Value{Kind: KindStr, Str: s} }
func ArrayValue(elems []Value) Value {
	return Value{Kind: KindArray, Array: &Array{Elems: elems}}
}
func ClosureValue(c *Closure) Value   { return Value{Kind: KindClosure, Closure: c} }
func InstanceValue(i *Instance) Value { return Value{Kind: KindInstance, Instance: i} }

func NativeValue(name string, fn func([]Value) (Value, error)) Value {
	return Value{Kind: KindNative, Native: &NativeFn{Name: name, Fn: fn}}
}

func SomeValue(v Value) Value { return Value{Kind: KindSome, Inner: &v} }
func OkValue(v Value) Value   { return Value{Kind: KindOk, Inner: &v} }
func ErrValue(v Value) Value  { return Value{Kind: KindErr, Inner: &v} }

// ── Predicates ────────────────────────────────────────────────────────────

// IsTruthy reports the truthiness of v: false, None, 0, 0.0, the empty
// string and the empty array are falsy; everything else is truthy.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0.0
	case KindStr:
		return v.Str != ""
	case KindNone:
		return false
	case KindArray:
		return len(v.Array.Elems) != 0
	default:
		return true
	}
}

// TypeName returns the user-visible type tag.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindNone:
		return "None"
	case KindStr:
		return "Str"
	case KindArray:
		return "Array"
	case KindClosure:
		return "Function"
	case KindNative:
		return "NativeFunction"
	case KindSome:
		return "Some"
	case KindOk:
		return "Ok"
	case KindErr:
		return "Err"
	case KindInstance:
		return "Instance"
	default:
		return "<internal>"
	}
}

// AsFloat converts numeric values to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// ── Display ───────────────────────────────────────────────────────────────

// String renders the value the way print and str() show it.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		if v.Float == math.Trunc(v.Float) && !math.IsInf(v.Float, 0) {
			return fmt.Sprintf("%.1f", v.Float)
		}
		return fmt.Sprintf("%v", v.Float)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNone:
		return "None"
	case KindStr:
		return v.Str
	case KindArray:
		items := make([]string, len(v.Array.Elems))
		for i, e := range v.Array.Elems {
			items[i] = e.String()
		}
		return "[" + strings.Join(items, ", ") + "]"
	case KindClosure:
		return "<fn " + v.Closure.Proto.Name + ">"
	case KindNative:
		return "<built-in " + v.Native.Name + ">"
	case KindSome:
		return "Some(" + v.Inner.String() + ")"
	case KindOk:
		return "Ok(" + v.Inner.String() + ")"
	case KindErr:
		return "Err(" + v.Inner.String() + ")"
	case KindInstance:
		return "<" + v.Instance.ClassName + " instance>"
	default:
		return "<internal>"
	}
}

// ── Equality and order ────────────────────────────────────────────────────

// Equal is structural equality on primitives, strings and arrays, with
// numeric cross-type comparison between Int and Float. Closures, natives
// and instances never compare equal.
func Equal(a, b Value) bool {
	switch {
	case a.Kind == KindInt && b.Kind == KindInt:
		return a.Int == b.Int
	case a.Kind == KindFloat && b.Kind == KindFloat:
		return a.Float == b.Float
	case a.Kind == KindInt && b.Kind == KindFloat:
		return float64(a.Int) == b.Float
	case a.Kind == KindFloat && b.Kind == KindInt:
		return a.Float == float64(b.Int)
	case a.Kind == KindBool && b.Kind == KindBool:
		return a.Bool == b.Bool
	case a.Kind == KindStr && b.Kind == KindStr:
		return a.Str == b.Str
	case a.Kind == KindNone && b.Kind == KindNone:
		return true
	case a.Kind == KindSome && b.Kind == KindSome,
		a.Kind == KindOk && b.Kind == KindOk,
		a.Kind == KindErr && b.Kind == KindErr:
		return Equal(*a.Inner, *b.Inner)
	case a.Kind == KindArray && b.Kind == KindArray:
		if len(a.Array.Elems) != len(b.Array.Elems) {
			return false
		}
		for i := range a.Array.Elems {
			if !Equal(a.Array.Elems[i], b.Array.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values: -1, 0 or +1, with ok=false when the pair has
// no defined order. Numerics order with cross-promotion, strings
// lexicographically.
func Compare(a, b Value) (int, bool) {
	switch {
	case a.Kind == KindInt && b.Kind == KindInt:
		return cmpInt(a.Int, b.Int), true
	case a.Kind == KindStr && b.Kind == KindStr:
		return strings.Compare(a.Str, b.Str), true
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if aok && bok {
		return cmpFloat(af, bf), true
	}
	return 0, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
