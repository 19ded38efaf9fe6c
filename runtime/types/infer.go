package types

import (
	"github.com/sfenos/neba/runtime/ast"
	"github.com/sfenos/neba/runtime/lexer"
)

// InferExpr infers the type of an expression, accumulating diagnostics.
func InferExpr(expr *ast.Expr, env *Env, diags *[]Diagnostic) Type {
	span := expr.Span
	switch e := expr.Kind.(type) {
	case ast.IntLit:
		return Int
	case ast.FloatLit:
		return Float
	case ast.BoolLit:
		return Bool
	case ast.StrLit, ast.FStrLit:
		return Str
	case ast.NoneLit:
		return None
	case ast.BadExpr:
		return Unknown

	case ast.Ident:
		if info, ok := env.Lookup(e.Name); ok {
			return info.Type
		}
		*diags = append(*diags, undefined(e.Name, span))
		return Unknown

	case ast.Unary:
		t := InferExpr(e.Operand, env, diags)
		switch e.Op {
		case ast.OpNeg:
			if !t.IsNumeric() {
				*diags = append(*diags, errorf(span, "unary '-' cannot be applied to '%s'", t))
			}
			return t
		case ast.OpNot:
			return Bool
		default: // bitwise not
			if t.Kind != KindInt && t.Kind != KindUnknown && t.Kind != KindAny {
				*diags = append(*diags, errorf(span, "unary '~' requires Int, got '%s'", t))
			}
			return Int
		}

	case ast.Binary:
		lt := InferExpr(e.Left, env, diags)
		rt := InferExpr(e.Right, env, diags)
		return inferBinary(e.Op, lt, rt, span, diags)

	case ast.ArrayLit:
		if len(e.Elems) == 0 {
			return ArrayOf(Unknown)
		}
		unified := InferExpr(&e.Elems[0], env, diags)
		for i := 1; i < len(e.Elems); i++ {
			t := InferExpr(&e.Elems[i], env, diags)
			if u, ok := Unify(unified, t); ok {
				unified = u
			} else {
				*diags = append(*diags, errorf(e.Elems[i].Span,
					"array elements have inconsistent types: '%s' and '%s'", unified, t))
			}
		}
		return ArrayOf(unified)

	case ast.Range:
		st := InferExpr(e.Start, env, diags)
		et := InferExpr(e.End, env, diags)
		if st.Kind != KindInt && st.Kind != KindUnknown && st.Kind != KindAny {
			*diags = append(*diags, errorf(e.Start.Span, "range start must be Int, got '%s'", st))
		}
		if et.Kind != KindInt && et.Kind != KindUnknown && et.Kind != KindAny {
			*diags = append(*diags, errorf(e.End.Span, "range end must be Int, got '%s'", et))
		}
		return ArrayOf(Int)

	case ast.Call:
		calleeTy := InferExpr(e.Callee, env, diags)
		for i := range e.Args {
			InferExpr(&e.Args[i], env, diags)
		}
		for i := range e.Kwargs {
			InferExpr(&e.Kwargs[i].Value, env, diags)
		}
		switch calleeTy.Kind {
		case KindFn:
			// A single Any parameter marks a variadic builtin.
			variadic := len(calleeTy.Params) == 1 && calleeTy.Params[0].Kind == KindAny
			if !variadic && len(e.Args) != len(calleeTy.Params) {
				name := "<fn>"
				if ident, ok := e.Callee.Kind.(ast.Ident); ok {
					name = ident.Name
				}
				*diags = append(*diags, arityMismatch(name, len(calleeTy.Params), len(e.Args), span))
			}
			return *calleeTy.Ret
		case KindUnknown, KindAny:
			return Unknown
		case KindClass:
			return ClassOf(calleeTy.Class)
		default:
			*diags = append(*diags, notCallable(calleeTy, span))
			return Unknown
		}

	case ast.Field:
		objTy := InferExpr(e.Object, env, diags)
		switch objTy.Kind {
		case KindClass:
			info, ok := env.LookupClass(objTy.Class)
			if !ok {
				// Not yet registered; stay tolerant.
				return Unknown
			}
			if ft, ok := info.Fields[e.Name]; ok {
				return ft
			}
			if mt, ok := info.Methods[e.Name]; ok {
				return mt
			}
			*diags = append(*diags, unknownField(objTy.Class, e.Name, span))
			return Unknown
		case KindStr:
			if e.Name == "len" {
				return Int
			}
			*diags = append(*diags, unknownField("Str", e.Name, span))
			return Unknown
		case KindArray:
			if e.Name == "len" {
				return Int
			}
			*diags = append(*diags, unknownField("Array", e.Name, span))
			return Unknown
		case KindUnknown, KindAny:
			return Unknown
		default:
			*diags = append(*diags, errorf(span, "'%s' has no fields", objTy))
			return Unknown
		}

	case ast.Index:
		objTy := InferExpr(e.Object, env, diags)
		idxTy := InferExpr(e.Idx, env, diags)
		if idxTy.Kind != KindInt && idxTy.Kind != KindUnknown && idxTy.Kind != KindAny {
			*diags = append(*diags, errorf(e.Idx.Span, "index must be Int, got '%s'", idxTy))
		}
		switch objTy.Kind {
		case KindArray:
			return *objTy.Elem
		case KindStr:
			return Str
		case KindUnknown, KindAny:
			return Unknown
		default:
			*diags = append(*diags, errorf(span, "'%s' is not indexable", objTy))
			return Unknown
		}

	case ast.SomeExpr:
		return OptionOf(InferExpr(e.Inner, env, diags))
	case ast.OkExpr:
		return ResultOf(InferExpr(e.Inner, env, diags), Unknown)
	case ast.ErrExpr:
		return ResultOf(Unknown, InferExpr(e.Inner, env, diags))

	case ast.Spawn:
		InferExpr(e.Inner, env, diags)
		return Any
	case ast.Await:
		InferExpr(e.Inner, env, diags)
		return Any

	case ast.If:
		ct := InferExpr(e.Condition, env, diags)
		if ct.Kind != KindBool && ct.Kind != KindUnknown && ct.Kind != KindAny {
			*diags = append(*diags, typeMismatch(Bool, ct, e.Condition.Span))
		}
		env.PushScope()
		thenTy := inferBlock(e.Then, env, diags)
		env.PopScope()

		for i := range e.Elifs {
			InferExpr(&e.Elifs[i].Condition, env, diags)
			env.PushScope()
			inferBlock(e.Elifs[i].Block, env, diags)
			env.PopScope()
		}

		if e.HasElse {
			env.PushScope()
			elseTy := inferBlock(e.Else, env, diags)
			env.PopScope()
			if u, ok := Unify(thenTy, elseTy); ok {
				return u
			}
			return Unknown
		}
		return thenTy

	case ast.Match:
		InferExpr(e.Subject, env, diags)
		resultTy := Unknown
		for i := range e.Arms {
			env.PushScope()
			bindPatternVars(e.Arms[i].Pattern, env)
			armTy := inferBlock(e.Arms[i].Body, env, diags)
			env.PopScope()
			if u, ok := Unify(resultTy, armTy); ok {
				resultTy = u
			} else {
				resultTy = Unknown
			}
		}
		return resultTy

	default:
		return Unknown
	}
}

// inferBlock returns the type a block yields: the last expression
// statement's type, or None.
func inferBlock(stmts []ast.Stmt, env *Env, diags *[]Diagnostic) Type {
	last := None
	for i := range stmts {
		if es, ok := stmts[i].Kind.(ast.ExprStmt); ok {
			last = InferExpr(&es.Expr, env, diags)
		} else {
			CheckStmt(&stmts[i], env, diags)
			last = None
		}
	}
	return last
}

// bindPatternVars introduces the variables a pattern binds.
func bindPatternVars(pat ast.Pattern, env *Env) {
	switch p := pat.(type) {
	case ast.IdentPat:
		env.Define(p.Name, Unknown, true)
	case ast.ConstructorPat:
		for _, inner := range p.Inner {
			bindPatternVars(inner, env)
		}
	case ast.OrPat:
		if len(p.Alts) > 0 {
			bindPatternVars(p.Alts[0], env)
		}
	case ast.RangePat:
		bindPatternVars(p.Start, env)
		bindPatternVars(p.End, env)
	}
}

func inferBinary(op ast.BinOp, lt, rt Type, span lexer.Span, diags *[]Diagnostic) Type {
	opStr := op.String()
	switch op {
	case ast.OpAdd:
		if lt.Kind == KindStr && rt.Kind == KindStr {
			return Str
		}
		if lt.IsNumeric() && rt.IsNumeric() {
			if u, ok := Unify(lt, rt); ok {
				return u
			}
			return Float
		}
		if lt.Kind == KindUnknown || lt.Kind == KindAny || rt.Kind == KindUnknown || rt.Kind == KindAny {
			return Unknown
		}
		*diags = append(*diags, binaryOp(opStr, lt, rt, span))
		return Unknown

	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpPow:
		if lt.IsNumeric() && rt.IsNumeric() {
			if u, ok := Unify(lt, rt); ok {
				return u
			}
			return Float
		}
		if lt.Kind == KindUnknown || lt.Kind == KindAny || rt.Kind == KindUnknown || rt.Kind == KindAny {
			return Unknown
		}
		*diags = append(*diags, binaryOp(opStr, lt, rt, span))
		return Unknown

	case ast.OpIntDiv, ast.OpMod:
		if lt.Kind == KindUnknown || lt.Kind == KindAny || rt.Kind == KindUnknown || rt.Kind == KindAny {
			return Int
		}
		if (lt.Kind != KindInt && lt.Kind != KindFloat) || (rt.Kind != KindInt && rt.Kind != KindFloat) {
			*diags = append(*diags, binaryOp(opStr, lt, rt, span))
		}
		return Int

	case ast.OpEq, ast.OpNe:
		return Bool

	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		if !lt.IsOrdered() || !rt.IsOrdered() {
			*diags = append(*diags, binaryOp(opStr, lt, rt, span))
		}
		return Bool

	case ast.OpAnd, ast.OpOr:
		return Bool

	case ast.OpBitAnd, ast.OpBitOr, ast.OpBitXor, ast.OpShl, ast.OpShr:
		ltOK := lt.Kind == KindInt || lt.Kind == KindUnknown || lt.Kind == KindAny
		rtOK := rt.Kind == KindInt || rt.Kind == KindUnknown || rt.Kind == KindAny
		if !ltOK || !rtOK {
			*diags = append(*diags, binaryOp(opStr, lt, rt, span))
		}
		return Int

	case ast.OpIn, ast.OpNotIn, ast.OpIs:
		return Bool

	default:
		return Unknown
	}
}
