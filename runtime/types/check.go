package types

import (
	"github.com/sfenos/neba/runtime/ast"
	"github.com/sfenos/neba/runtime/parser"
)

// Analyse parses source and returns every diagnostic found, lex/parse
// errors included. It never blocks on an error.
func Analyse(source string) []Diagnostic {
	program, lexErrs, parseErrs := parser.Parse(source)

	var diags []Diagnostic
	for _, e := range lexErrs {
		diags = append(diags, errorf(e.Span, "lex error: %s", e.Error()))
	}
	for _, e := range parseErrs {
		diags = append(diags, errorf(e.Span, "parse error: %s", e.Error()))
	}

	env := NewEnv()
	CheckProgram(program, env, &diags)
	return diags
}

// Check is Analyse filtered down to error-severity diagnostics.
func Check(source string) []Diagnostic {
	var errs []Diagnostic
	for _, d := range Analyse(source) {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// CheckProgram runs both passes over a program: pre-register all
// top-level functions and classes so forward references resolve, then
// check every statement.
func CheckProgram(program *ast.Program, env *Env, diags *[]Diagnostic) {
	for i := range program.Stmts {
		preRegister(&program.Stmts[i], env)
	}
	checkBlock(program.Stmts, env, diags)
}

// preRegister defines top-level fn and class names without checking
// their bodies.
func preRegister(stmt *ast.Stmt, env *Env) {
	switch s := stmt.Kind.(type) {
	case ast.FnDef:
		env.Define(s.Name, fnType(s.Params, s.ReturnTy, Unknown), false)
	case ast.ClassDef:
		env.Define(s.Name, ClassOf(s.Name), false)
	}
}

func fnType(params []ast.Param, returnTy *ast.TypeExpr, defaultRet Type) Type {
	paramTypes := make([]Type, 0, len(params))
	for i := range params {
		paramTypes = append(paramTypes, annotated(params[i].Type, Unknown))
	}
	return FnOf(paramTypes, annotated(returnTy, defaultRet))
}

func annotated(te *ast.TypeExpr, fallback Type) Type {
	if te == nil {
		return fallback
	}
	return FromAST(te.Kind)
}

func checkBlock(stmts []ast.Stmt, env *Env, diags *[]Diagnostic) {
	for i := range stmts {
		CheckStmt(&stmts[i], env, diags)
	}
}

// CheckStmt verifies a single statement.
func CheckStmt(stmt *ast.Stmt, env *Env, diags *[]Diagnostic) {
	span := stmt.Span
	switch s := stmt.Kind.(type) {
	case ast.Let:
		checkBinding(s.Name, s.Type, &s.Value, false, env, diags)
	case ast.Var:
		checkBinding(s.Name, s.Type, &s.Value, true, env, diags)

	case ast.Assign:
		valTy := InferExpr(&s.Value, env, diags)
		if ident, ok := s.Target.Kind.(ast.Ident); ok {
			info, found := env.Lookup(ident.Name)
			switch {
			case !found:
				*diags = append(*diags, undefined(ident.Name, s.Target.Span))
			case !info.Mutable:
				*diags = append(*diags, assignImmutable(ident.Name, span))
			default:
				if !info.Type.IsCompatible(valTy) {
					*diags = append(*diags, typeMismatch(info.Type, valTy, s.Value.Span))
				}
			}
		} else {
			InferExpr(&s.Target, env, diags)
		}

	case ast.FnDef:
		retTy := annotated(s.ReturnTy, Unknown)
		env.Define(s.Name, fnType(s.Params, s.ReturnTy, Unknown), false)

		env.PushScope()
		env.PushReturn(retTy)
		for i := range s.Params {
			env.Define(s.Params[i].Name, annotated(s.Params[i].Type, Unknown), true)
		}
		checkBlock(s.Body, env, diags)
		env.PopReturn()
		env.PopScope()

	case ast.ClassDef:
		checkClass(&s, env, diags)

	case ast.While:
		ct := InferExpr(&s.Condition, env, diags)
		if ct.Kind != KindBool && ct.Kind != KindUnknown && ct.Kind != KindAny {
			*diags = append(*diags, typeMismatch(Bool, ct, s.Condition.Span))
		}
		env.PushScope()
		checkBlock(s.Body, env, diags)
		env.PopScope()

	case ast.For:
		iterTy := InferExpr(&s.Iterable, env, diags)
		elemTy, ok := iterTy.IterElement()
		if !ok {
			*diags = append(*diags, notIterable(iterTy, s.Iterable.Span))
			elemTy = Unknown
		}
		env.PushScope()
		env.Define(s.Var, elemTy, true)
		checkBlock(s.Body, env, diags)
		env.PopScope()

	case ast.Return:
		retTy := None
		if s.Value != nil {
			retTy = InferExpr(s.Value, env, diags)
		}
		if expected, ok := env.ExpectedReturn(); ok {
			if expected.Kind != KindUnknown && expected.Kind != KindAny && !expected.IsCompatible(retTy) {
				errSpan := span
				if s.Value != nil {
					errSpan = s.Value.Span
				}
				*diags = append(*diags, returnMismatch(expected, retTy, errSpan))
			}
		}

	case ast.ExprStmt:
		InferExpr(&s.Expr, env, diags)

	case ast.TraitDef, ast.ImplBlock, ast.ModDecl, ast.UseDecl, ast.Break, ast.Continue, ast.Pass:
		// Nothing to check.
	}
}

func checkBinding(name string, annot *ast.TypeExpr, value *ast.Expr, mutable bool, env *Env, diags *[]Diagnostic) {
	valTy := InferExpr(value, env, diags)
	finalTy := valTy
	if annot != nil {
		declared := FromAST(annot.Kind)
		if !declared.IsCompatible(valTy) {
			*diags = append(*diags, typeMismatch(declared, valTy, value.Span))
		}
		finalTy = declared
	}
	env.Define(name, finalTy, mutable)
}

func checkClass(s *ast.ClassDef, env *Env, diags *[]Diagnostic) {
	fieldMap := make(map[string]Type, len(s.Fields))
	for i := range s.Fields {
		fieldMap[s.Fields[i].Name] = annotated(s.Fields[i].Type, Unknown)
	}

	allMethods := make([]ast.Stmt, 0, len(s.Methods)+len(s.Impls))
	allMethods = append(allMethods, s.Methods...)
	for i := range s.Impls {
		if impl, ok := s.Impls[i].Kind.(ast.ImplBlock); ok {
			allMethods = append(allMethods, impl.Methods...)
		}
	}

	methodMap := make(map[string]Type)
	for i := range allMethods {
		fn, ok := allMethods[i].Kind.(ast.FnDef)
		if !ok {
			continue
		}
		var params []Type
		for j := range fn.Params {
			if fn.Params[j].Name == "self" {
				continue
			}
			params = append(params, annotated(fn.Params[j].Type, Unknown))
		}
		methodMap[fn.Name] = FnOf(params, annotated(fn.ReturnTy, None))
	}

	env.RegisterClass(s.Name, &ClassInfo{Fields: fieldMap, Methods: methodMap})
	env.Define(s.Name, ClassOf(s.Name), false)

	for i := range allMethods {
		fn, ok := allMethods[i].Kind.(ast.FnDef)
		if !ok {
			continue
		}
		env.PushScope()
		env.Define("self", ClassOf(s.Name), false)
		env.PushReturn(annotated(fn.ReturnTy, None))
		for j := range fn.Params {
			if fn.Params[j].Name == "self" {
				continue
			}
			env.Define(fn.Params[j].Name, annotated(fn.Params[j].Type, Unknown), true)
		}
		checkBlock(fn.Body, env, diags)
		env.PopReturn()
		env.PopScope()
	}
}
