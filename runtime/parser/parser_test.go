package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sfenos/neba/runtime/ast"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	program, lexErrs, parseErrs := Parse(src)
	if len(lexErrs) != 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	return program
}

func firstStmt(t *testing.T, src string) ast.StmtKind {
	t.Helper()
	program := parseOK(t, src)
	if len(program.Stmts) == 0 {
		t.Fatalf("no statements parsed from %q", src)
	}
	return program.Stmts[0].Kind
}

func firstExpr(t *testing.T, src string) ast.ExprKind {
	t.Helper()
	switch s := firstStmt(t, src).(type) {
	case ast.ExprStmt:
		return s.Expr.Kind
	case ast.Let:
		return s.Value.Kind
	case ast.Var:
		return s.Value.Kind
	default:
		t.Fatalf("expected expr/let/var statement, got %T", s)
		return nil
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want ast.ExprKind
	}{
		{"int", "42", ast.IntLit{Value: 42}},
		{"float", "3.14", ast.FloatLit{Value: 3.14}},
		{"bool true", "true", ast.BoolLit{Value: true}},
		{"bool false", "false", ast.BoolLit{Value: false}},
		{"none", "None", ast.NoneLit{}},
		{"string", `"hello"`, ast.StrLit{Value: "hello"}},
		{"fstring", `f"hi {x}"`, ast.FStrLit{Raw: "hi {x}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstExpr(t, tt.src)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("expression mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLetAndVar(t *testing.T) {
	if s, ok := firstStmt(t, "let x = 42").(ast.Let); !ok || s.Name != "x" {
		t.Errorf("expected let x, got %#v", s)
	}
	s, ok := firstStmt(t, "var name: Str = \"hello\"").(ast.Var)
	if !ok || s.Name != "name" {
		t.Fatalf("expected var name, got %#v", s)
	}
	if s.Type == nil {
		t.Fatal("expected type annotation")
	}
	if n, ok := s.Type.Kind.(ast.NamedType); !ok || n.Name != "Str" {
		t.Errorf("annotation = %#v, want Named Str", s.Type.Kind)
	}
}

func TestGenericTypeAnnotation(t *testing.T) {
	s, ok := firstStmt(t, "let x: Option[Int] = None").(ast.Let)
	if !ok {
		t.Fatal("expected let")
	}
	g, ok := s.Type.Kind.(ast.GenericType)
	if !ok || g.Name != "Option" || len(g.Args) != 1 {
		t.Errorf("annotation = %#v, want Option[Int]", s.Type.Kind)
	}
}

func TestPrecedenceMulOverAdd(t *testing.T) {
	bin, ok := firstExpr(t, "1 + 2 * 3").(ast.Binary)
	if !ok || bin.Op != ast.OpAdd {
		t.Fatalf("expected top-level +, got %#v", bin)
	}
	right, ok := bin.Right.Kind.(ast.Binary)
	if !ok || right.Op != ast.OpMul {
		t.Errorf("expected * on the right, got %#v", bin.Right.Kind)
	}
}

func TestPowerRightAssociative(t *testing.T) {
	bin, ok := firstExpr(t, "2 ** 3 ** 2").(ast.Binary)
	if !ok || bin.Op != ast.OpPow {
		t.Fatalf("expected **, got %#v", bin)
	}
	if right, ok := bin.Right.Kind.(ast.Binary); !ok || right.Op != ast.OpPow {
		t.Errorf("expected ** to nest right, got %#v", bin.Right.Kind)
	}
}

func TestComparisonLeftAssociative(t *testing.T) {
	// a < b == c parses as (a < b) == c on the same precedence level.
	bin, ok := firstExpr(t, "a < b == c").(ast.Binary)
	if !ok || bin.Op != ast.OpEq {
		t.Fatalf("expected top-level ==, got %#v", bin)
	}
	if left, ok := bin.Left.Kind.(ast.Binary); !ok || left.Op != ast.OpLt {
		t.Errorf("expected < on the left, got %#v", bin.Left.Kind)
	}
}

func TestUnaryOperators(t *testing.T) {
	if u, ok := firstExpr(t, "-42").(ast.Unary); !ok || u.Op != ast.OpNeg {
		t.Errorf("expected unary -, got %#v", u)
	}
	if u, ok := firstExpr(t, "not true").(ast.Unary); !ok || u.Op != ast.OpNot {
		t.Errorf("expected not, got %#v", u)
	}
	if u, ok := firstExpr(t, "~5").(ast.Unary); !ok || u.Op != ast.OpBitNot {
		t.Errorf("expected ~, got %#v", u)
	}
}

func TestNotIn(t *testing.T) {
	bin, ok := firstExpr(t, "x not in arr").(ast.Binary)
	if !ok || bin.Op != ast.OpNotIn {
		t.Errorf("expected not-in, got %#v", bin)
	}
}

func TestCalls(t *testing.T) {
	if _, ok := firstExpr(t, "foo()").(ast.Call); !ok {
		t.Error("expected call")
	}
	c, ok := firstExpr(t, "add(1, 2)").(ast.Call)
	if !ok || len(c.Args) != 2 {
		t.Errorf("expected 2 args, got %#v", c)
	}
	c, ok = firstExpr(t, "foo(x=1, y=2)").(ast.Call)
	if !ok || len(c.Kwargs) != 2 {
		t.Errorf("expected 2 kwargs, got %#v", c)
	}
	c, ok = firstExpr(t, "obj.method(42)").(ast.Call)
	if !ok {
		t.Fatal("expected method call")
	}
	if f, ok := c.Callee.Kind.(ast.Field); !ok || f.Name != "method" {
		t.Errorf("callee = %#v, want field access", c.Callee.Kind)
	}
}

func TestFieldAndIndex(t *testing.T) {
	if f, ok := firstExpr(t, "obj.field").(ast.Field); !ok || f.Name != "field" {
		t.Errorf("expected field access, got %#v", f)
	}
	if _, ok := firstExpr(t, "arr[0]").(ast.Index); !ok {
		t.Error("expected index access")
	}
}

func TestArrayAndRange(t *testing.T) {
	if a, ok := firstExpr(t, "[1, 2, 3]").(ast.ArrayLit); !ok || len(a.Elems) != 3 {
		t.Errorf("expected 3-element array, got %#v", a)
	}
	if a, ok := firstExpr(t, "[]").(ast.ArrayLit); !ok || len(a.Elems) != 0 {
		t.Errorf("expected empty array, got %#v", a)
	}
	if r, ok := firstExpr(t, "0..10").(ast.Range); !ok || r.Inclusive {
		t.Errorf("expected exclusive range, got %#v", r)
	}
	if r, ok := firstExpr(t, "0..=10").(ast.Range); !ok || !r.Inclusive {
		t.Errorf("expected inclusive range, got %#v", r)
	}
}

func TestFnDefinitions(t *testing.T) {
	if f, ok := firstStmt(t, "fn greet()\n    pass\n").(ast.FnDef); !ok || f.Name != "greet" {
		t.Errorf("expected fn greet, got %#v", f)
	}
	f, ok := firstStmt(t, "fn add(a: Int, b: Int) -> Int\n    return a + b\n").(ast.FnDef)
	if !ok {
		t.Fatal("expected fn")
	}
	if f.Name != "add" || len(f.Params) != 2 || f.ReturnTy == nil {
		t.Errorf("fn = %#v, want add with 2 params and return type", f)
	}
	if f, ok := firstStmt(t, "async fn fetch()\n    pass\n").(ast.FnDef); !ok || !f.IsAsync {
		t.Errorf("expected async fn, got %#v", f)
	}
}

func TestFnDefaultParam(t *testing.T) {
	f, ok := firstStmt(t, "fn greet(name: Str = \"world\")\n    return name\n").(ast.FnDef)
	if !ok {
		t.Fatal("expected fn")
	}
	if len(f.Params) != 1 || f.Params[0].Default == nil {
		t.Errorf("expected one defaulted param, got %#v", f.Params)
	}
}

func TestIfExpression(t *testing.T) {
	s, ok := firstStmt(t, "if x > 0\n    pass\n").(ast.ExprStmt)
	if !ok {
		t.Fatal("expected expression statement")
	}
	if _, ok := s.Expr.Kind.(ast.If); !ok {
		t.Errorf("expected if expression, got %#v", s.Expr.Kind)
	}

	s, _ = firstStmt(t, "if x\n    pass\nelif y\n    pass\nelse\n    pass\n").(ast.ExprStmt)
	ifx, ok := s.Expr.Kind.(ast.If)
	if !ok {
		t.Fatal("expected if")
	}
	if len(ifx.Elifs) != 1 || !ifx.HasElse {
		t.Errorf("expected one elif and an else, got %#v", ifx)
	}
}

func TestLoops(t *testing.T) {
	if _, ok := firstStmt(t, "while x > 0\n    pass\n").(ast.While); !ok {
		t.Error("expected while")
	}
	if f, ok := firstStmt(t, "for i in 0..10\n    pass\n").(ast.For); !ok || f.Var != "i" {
		t.Errorf("expected for i, got %#v", f)
	}
}

func TestReturn(t *testing.T) {
	f := firstStmt(t, "fn f()\n    return 42\n").(ast.FnDef)
	if r, ok := f.Body[0].Kind.(ast.Return); !ok || r.Value == nil {
		t.Errorf("expected return with value, got %#v", f.Body[0].Kind)
	}
	f = firstStmt(t, "fn f()\n    return\n").(ast.FnDef)
	if r, ok := f.Body[0].Kind.(ast.Return); !ok || r.Value != nil {
		t.Errorf("expected bare return, got %#v", f.Body[0].Kind)
	}
}

func TestAssignments(t *testing.T) {
	if a, ok := firstStmt(t, "x = 10").(ast.Assign); !ok || a.Op != ast.AssignPlain {
		t.Errorf("expected plain assign, got %#v", a)
	}
	if a, ok := firstStmt(t, "x += 5").(ast.Assign); !ok || a.Op != ast.AssignAdd {
		t.Errorf("expected +=, got %#v", a)
	}
	if a, ok := firstStmt(t, "a[0] = 1").(ast.Assign); !ok {
		t.Errorf("expected index assign, got %#v", a)
	}
	if a, ok := firstStmt(t, "p.x = 1").(ast.Assign); !ok {
		t.Errorf("expected field assign, got %#v", a)
	}
}

func TestInvalidAssignTarget(t *testing.T) {
	_, _, errs := Parse("1 + 2 = 3\n")
	found := false
	for _, e := range errs {
		if e.Kind == ErrInvalidAssignTarget {
			found = true
		}
	}
	if !found {
		t.Errorf("expected invalid-assign-target error, got %v", errs)
	}
}

func TestMatchExpression(t *testing.T) {
	s, ok := firstStmt(t, "match x\n    case 1 => pass\n    case _ => pass\n").(ast.ExprStmt)
	if !ok {
		t.Fatal("expected expression statement")
	}
	m, ok := s.Expr.Kind.(ast.Match)
	if !ok || len(m.Arms) != 2 {
		t.Fatalf("expected match with 2 arms, got %#v", s.Expr.Kind)
	}
	if _, ok := m.Arms[0].Pattern.(ast.LiteralPat); !ok {
		t.Errorf("arm 0 pattern = %#v, want literal", m.Arms[0].Pattern)
	}
	if _, ok := m.Arms[1].Pattern.(ast.WildcardPat); !ok {
		t.Errorf("arm 1 pattern = %#v, want wildcard", m.Arms[1].Pattern)
	}
}

func TestMatchOptionPatterns(t *testing.T) {
	s := firstStmt(t, "match maybe\n    case Some(v) => pass\n    case None => pass\n").(ast.ExprStmt)
	m := s.Expr.Kind.(ast.Match)
	c, ok := m.Arms[0].Pattern.(ast.ConstructorPat)
	if !ok || c.Name != "Some" || len(c.Inner) != 1 {
		t.Errorf("arm 0 = %#v, want Some(v)", m.Arms[0].Pattern)
	}
	if _, ok := c.Inner[0].(ast.IdentPat); !ok {
		t.Errorf("inner = %#v, want binder", c.Inner[0])
	}
	lit, ok := m.Arms[1].Pattern.(ast.LiteralPat)
	if !ok {
		t.Fatalf("arm 1 = %#v, want literal None", m.Arms[1].Pattern)
	}
	if _, ok := lit.Lit.(ast.NoneLit); !ok {
		t.Errorf("arm 1 literal = %#v, want None", lit.Lit)
	}
}

func TestMatchRangeAndOrPatterns(t *testing.T) {
	s := firstStmt(t, "match score\n    case 0..=100 => pass\n    case 1 | 2 | 3 => pass\n").(ast.ExprStmt)
	m := s.Expr.Kind.(ast.Match)
	r, ok := m.Arms[0].Pattern.(ast.RangePat)
	if !ok || !r.Inclusive {
		t.Errorf("arm 0 = %#v, want inclusive range", m.Arms[0].Pattern)
	}
	or, ok := m.Arms[1].Pattern.(ast.OrPat)
	if !ok || len(or.Alts) != 3 {
		t.Errorf("arm 1 = %#v, want 3-way alternation", m.Arms[1].Pattern)
	}
}

func TestMatchIndentedArmBody(t *testing.T) {
	src := "match x\n    case 1\n        pass\n    case _ => pass\n"
	s := firstStmt(t, src).(ast.ExprStmt)
	m := s.Expr.Kind.(ast.Match)
	if len(m.Arms) != 2 || len(m.Arms[0].Body) != 1 {
		t.Errorf("expected 2 arms with block body, got %#v", m)
	}
}

func TestConcurrencyStubs(t *testing.T) {
	if _, ok := firstExpr(t, "spawn compute(data)").(ast.Spawn); !ok {
		t.Error("expected spawn")
	}
	if _, ok := firstExpr(t, "await handle").(ast.Await); !ok {
		t.Error("expected await")
	}
}

func TestConstructors(t *testing.T) {
	if _, ok := firstExpr(t, "Some(42)").(ast.SomeExpr); !ok {
		t.Error("expected Some")
	}
	if _, ok := firstExpr(t, "Ok(value)").(ast.OkExpr); !ok {
		t.Error("expected Ok")
	}
	if _, ok := firstExpr(t, "Err(msg)").(ast.ErrExpr); !ok {
		t.Error("expected Err")
	}
}

func TestClassParsing(t *testing.T) {
	c, ok := firstStmt(t, "class Person\n    name: Str\n").(ast.ClassDef)
	if !ok || c.Name != "Person" || len(c.Fields) != 1 {
		t.Errorf("expected class with one field, got %#v", c)
	}
	c = firstStmt(t, "class Counter\n    count: Int = 0\n    fn increment(self)\n        self.count += 1\n").(ast.ClassDef)
	if len(c.Fields) != 1 || len(c.Methods) != 1 {
		t.Errorf("expected one field and one method, got %#v", c)
	}
}

func TestTraitAndImpl(t *testing.T) {
	tr, ok := firstStmt(t, "trait Greetable\n    fn greet(self) -> Str\n        pass\n").(ast.TraitDef)
	if !ok || tr.Name != "Greetable" {
		t.Errorf("expected trait, got %#v", tr)
	}
	im, ok := firstStmt(t, "impl Greetable for Person\n    fn greet(self) -> Str\n        pass\n").(ast.ImplBlock)
	if !ok || im.TraitName != "Greetable" || im.ForType != "Person" {
		t.Errorf("expected impl Greetable for Person, got %#v", im)
	}
}

func TestModAndUse(t *testing.T) {
	if m, ok := firstStmt(t, "mod math").(ast.ModDecl); !ok || m.Name != "math" {
		t.Errorf("expected mod math, got %#v", m)
	}
	u, ok := firstStmt(t, "use math::sin").(ast.UseDecl)
	if !ok {
		t.Fatal("expected use")
	}
	if diff := cmp.Diff([]string{"math", "sin"}, u.Path); diff != "" {
		t.Errorf("use path mismatch (-want +got):\n%s", diff)
	}
}

func TestSemicolonTolerated(t *testing.T) {
	program := parseOK(t, "let x = 1;\nlet y = 2\n")
	if len(program.Stmts) != 2 {
		t.Errorf("expected 2 statements, got %d", len(program.Stmts))
	}
}

func TestErrorRecoveryContinuesParsing(t *testing.T) {
	program, _, parseErrs := Parse("let = 42\nlet y = 10\n")
	if len(parseErrs) == 0 {
		t.Fatal("expected parse errors")
	}
	if len(program.Stmts) < 2 {
		t.Errorf("expected recovery to keep later statements, got %d", len(program.Stmts))
	}
	if s, ok := program.Stmts[len(program.Stmts)-1].Kind.(ast.Let); !ok || s.Name != "y" {
		t.Errorf("expected trailing let y, got %#v", program.Stmts[len(program.Stmts)-1].Kind)
	}
}

func TestSpansWithinSource(t *testing.T) {
	src := "let x = 1\nfn f()\n    return x\nf()\n"
	program := parseOK(t, src)
	lineCount := 4
	var walk func(stmts []ast.Stmt)
	walk = func(stmts []ast.Stmt) {
		for _, s := range stmts {
			if s.Span.Line < 1 || s.Span.Line > lineCount {
				t.Errorf("stmt %T span line %d out of range", s.Kind, s.Span.Line)
			}
			if f, ok := s.Kind.(ast.FnDef); ok {
				walk(f.Body)
			}
		}
	}
	walk(program.Stmts)
}

func TestFullProgram(t *testing.T) {
	src := "let x = 42\nvar name = \"Neba\"\n\nfn add(a: Int, b: Int) -> Int\n    return a + b\n\nlet result = add(10, 20)\n\nif result > 0\n    pass\nelse\n    pass\n\nfor i in 0..5\n    pass\n\nlet maybe: Option[Int] = Some(99)\n\nmatch maybe\n    case Some(v) => pass\n    case None => pass\n"
	program := parseOK(t, src)
	if len(program.Stmts) == 0 {
		t.Fatal("expected statements")
	}
}
