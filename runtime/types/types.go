// Package types implements the advisory gradual type checker. It walks
// the AST collecting diagnostics and never prevents execution.
package types

import (
	"strings"

	"github.com/sfenos/neba/runtime/ast"
)

// Kind tags a type in the checker's small closed set.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindStr
	KindNone
	KindArray
	KindOption
	KindResult
	KindFn
	KindClass
	KindUnknown
	KindAny
)

// Type is a checker type. Elem is the Array/Option payload (and the Ok
// side of Result, with ErrElem the Err side); Params/Ret describe
// functions; Class names a user class.
type Type struct {
	Kind    Kind
	Elem    *Type
	ErrElem *Type
	Params  []Type
	Ret     *Type
	Class   string
}

var (
	Int     = Type{Kind: KindInt}
	Float   = Type{Kind: KindFloat}
	Bool    = Type{Kind: KindBool}
	Str     = Type{Kind: KindStr}
	None    = Type{Kind: KindNone}
	Unknown = Type{Kind: KindUnknown}
	Any     = Type{Kind: KindAny}
)

func ArrayOf(elem Type) Type  { return Type{Kind: KindArray, Elem: &elem} }
func OptionOf(elem Type) Type { return Type{Kind: KindOption, Elem: &elem} }
func ResultOf(ok, errT Type) Type {
	return Type{Kind: KindResult, Elem: &ok, ErrElem: &errT}
}
func FnOf(params []Type, ret Type) Type {
	return Type{Kind: KindFn, Params: params, Ret: &ret}
}
func ClassOf(name string) Type { return Type{Kind: KindClass, Class: name} }

// FromAST converts a source type annotation into a checker type.
func FromAST(tk ast.TypeKind) Type {
	switch t := tk.(type) {
	case ast.NamedType:
		switch t.Name {
		case "Int":
			return Int
		case "Float":
			return Float
		case "Bool":
			return Bool
		case "Str":
			return Str
		case "None":
			return None
		case "Any":
			return Any
		default:
			return ClassOf(t.Name)
		}
	case ast.GenericType:
		arg := func(i int) Type {
			if i < len(t.Args) {
				return FromAST(t.Args[i].Kind)
			}
			return Unknown
		}
		switch t.Name {
		case "Array":
			return ArrayOf(arg(0))
		case "Option":
			return OptionOf(arg(0))
		case "Result":
			return ResultOf(arg(0), arg(1))
		default:
			return ClassOf(t.Name)
		}
	default:
		return Unknown
	}
}

// IsCompatible reports whether one type can be assigned to the other:
// reflexive on equals, tolerant of Unknown/Any, Int promotes to Float,
// recursive on containers.
func (t Type) IsCompatible(other Type) bool {
	if t.Kind == KindAny || other.Kind == KindAny {
		return true
	}
	if t.Kind == KindUnknown || other.Kind == KindUnknown {
		return true
	}
	if (t.Kind == KindInt && other.Kind == KindFloat) || (t.Kind == KindFloat && other.Kind == KindInt) {
		return true
	}
	switch {
	case t.Kind == KindArray && other.Kind == KindArray:
		return t.Elem.IsCompatible(*other.Elem)
	case t.Kind == KindOption && other.Kind == KindOption:
		return t.Elem.IsCompatible(*other.Elem)
	case t.Kind == KindResult && other.Kind == KindResult:
		return t.Elem.IsCompatible(*other.Elem) && t.ErrElem.IsCompatible(*other.ErrElem)
	}
	return t.equal(other)
}

func (t Type) equal(other Type) bool {
	return t.String() == other.String()
}

// Unify merges two types, or reports failure.
func Unify(a, b Type) (Type, bool) {
	if a.Kind == KindAny || b.Kind == KindAny {
		return Any, true
	}
	if a.Kind == KindUnknown {
		return b, true
	}
	if b.Kind == KindUnknown {
		return a, true
	}
	if (a.Kind == KindInt && b.Kind == KindFloat) || (a.Kind == KindFloat && b.Kind == KindInt) {
		return Float, true
	}
	if a.equal(b) {
		return a, true
	}
	return Unknown, false
}

// IsNumeric reports whether arithmetic operators apply.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case KindInt, KindFloat, KindUnknown, KindAny:
		return true
	default:
		return false
	}
}

// IsOrdered reports whether ordering comparisons apply.
func (t Type) IsOrdered() bool {
	switch t.Kind {
	case KindInt, KindFloat, KindStr, KindUnknown, KindAny:
		return true
	default:
		return false
	}
}

// IterElement returns the element type yielded by iterating t.
func (t Type) IterElement() (Type, bool) {
	switch t.Kind {
	case KindArray:
		return *t.Elem, true
	case KindStr:
		return Str, true
	case KindUnknown, KindAny:
		return Unknown, true
	default:
		return Type{}, false
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindStr:
		return "Str"
	case KindNone:
		return "None"
	case KindArray:
		return "Array[" + t.Elem.String() + "]"
	case KindOption:
		return "Option[" + t.Elem.String() + "]"
	case KindResult:
		return "Result[" + t.Elem.String() + ", " + t.ErrElem.String() + "]"
	case KindFn:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		return "Fn[" + strings.Join(params, ", ") + "] -> " + t.Ret.String()
	case KindClass:
		return t.Class
	case KindUnknown:
		return "?"
	case KindAny:
		return "Any"
	default:
		return "?"
	}
}
