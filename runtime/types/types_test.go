package types

import (
	"strings"
	"testing"
)

func checkOK(t *testing.T, src string) {
	t.Helper()
	if errs := Check(src); len(errs) != 0 {
		t.Fatalf("expected no errors, got: %v", errs)
	}
}

func checkErr(t *testing.T, src string) {
	t.Helper()
	if errs := Check(src); len(errs) == 0 {
		t.Fatalf("expected errors, got none for: %s", src)
	}
}

func checkErrContains(t *testing.T, src, fragment string) {
	t.Helper()
	errs := Check(src)
	for _, e := range errs {
		if strings.Contains(e.Message, fragment) {
			return
		}
	}
	t.Fatalf("expected error containing %q, got: %v", fragment, errs)
}

func TestLiteralBindings(t *testing.T) {
	checkOK(t, "let x = 42")
	checkOK(t, "let x = 3.14")
	checkOK(t, `let x = "hello"`)
	checkOK(t, "let x = true")
	checkOK(t, "let x = None")
}

func TestVariables(t *testing.T) {
	checkOK(t, "let x = 1\nlet y = x")
	checkOK(t, "var x = 1\nx += 1")
	checkOK(t, "var x = 1\nx = 2")
	checkErr(t, "let x = undefined_var")
	checkErrContains(t, "let x = 1\nx = 2", "immutable")
}

func TestAnnotations(t *testing.T) {
	checkOK(t, "let x: Int = 42")
	checkOK(t, "let x: Float = 1") // Int promotes to Float
	checkOK(t, `let s: Str = "world"`)
	checkOK(t, "let a: Array[Int] = []")
	checkErrContains(t, `let x: Int = "hello"`, "type mismatch")
}

func TestOperators(t *testing.T) {
	checkOK(t, "let x = 1 + 2")
	checkOK(t, "let x = 1.0 + 2.0")
	checkOK(t, `let s = "a" + "b"`)
	checkOK(t, "let b = 1 < 2")
	checkOK(t, "let x = -5")
	checkOK(t, "let b = not true")
	checkOK(t, "let x = 1 & 2")
	checkErrContains(t, `let x = "a" + 1`, "operator '+'")
}

func TestArrays(t *testing.T) {
	checkOK(t, "let a = [1, 2, 3]")
	checkOK(t, "let a = [1, 2]\nlet x = a[0]")
	checkErrContains(t, "let a = [1, 2]\nlet x = a[\"k\"]", "index must be Int")
	checkErrContains(t, `let a = [1, "x"]`, "inconsistent")
}

func TestFunctions(t *testing.T) {
	checkOK(t, "fn add(a: Int, b: Int) -> Int\n    return a + b\nadd(1, 2)")
	checkOK(t, "fn double(x: Int) -> Int\n    return x * 2")
	checkOK(t, "fn f(x)\n    return x\nf(42)")
	checkOK(t, "fn fact(n: Int) -> Int\n    if n <= 1\n        return 1\n    return n * fact(n - 1)")
	checkErrContains(t, "fn f(a: Int) -> Int\n    return a\nf(1, 2)", "expects 1")
	checkErrContains(t, "fn f() -> Int\n    return \"hello\"", "return type mismatch")
	checkErrContains(t, "let x = 1\nx(2)", "not callable")
}

func TestForwardReferences(t *testing.T) {
	checkOK(t, "let x = add(1, 2)\nfn add(a: Int, b: Int) -> Int\n    return a + b")
}

func TestControlFlow(t *testing.T) {
	checkOK(t, "if true\n    let x = 1")
	checkOK(t, "var i = 0\nwhile i < 10\n    i += 1")
	checkOK(t, "var s = 0\nfor i in 0..5\n    s += i")
	checkOK(t, "let a = [1, 2, 3]\nfor x in a\n    let y = x")
	checkOK(t, "for c in \"hello\"\n    let x = c")
	checkErrContains(t, "if 1\n    let x = 1", "type mismatch")
	checkErrContains(t, "for x in 42\n    pass", "not iterable")
}

func TestOptionResult(t *testing.T) {
	checkOK(t, "let x = Some(42)")
	checkOK(t, "let x = None")
	checkOK(t, "let x = Ok(1)")
	checkOK(t, `let x = Err("fail")`)
	checkOK(t, "let m = Some(1)\nmatch m\n    case Some(v) => v\n    case None => 0\n")
}

func TestClasses(t *testing.T) {
	checkOK(t, "class Point\n    x: Int\n    y: Int")
	checkOK(t, "class Counter\n    n: Int\n    fn inc(self) -> Int\n        return self.n")
	checkErrContains(t, "class P\n    x: Int\nlet p = P()\nlet y = p.missing", "has no field")
}

func TestBuiltins(t *testing.T) {
	checkOK(t, `let x = len("hello")`)
	checkOK(t, "let s = str(42)")
	checkOK(t, "let r = range(0, 10)")
	checkOK(t, `print("hello")`)
}

func TestFStringChecked(t *testing.T) {
	checkOK(t, "let name = \"world\"\nlet s = f\"hello {name}\"")
}

func TestDiagnosticsNeverBlock(t *testing.T) {
	// Analyse reports lex and parse problems as diagnostics too.
	diags := Analyse("let = 42")
	if len(diags) == 0 {
		t.Fatal("expected diagnostics for a parse error")
	}
	found := false
	for _, d := range diags {
		if strings.Contains(d.Message, "parse error") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a parse-error diagnostic, got %v", diags)
	}
}

func TestTypeStrings(t *testing.T) {
	cases := map[string]Type{
		"Int":                Int,
		"Array[Int]":         ArrayOf(Int),
		"Option[Str]":        OptionOf(Str),
		"Result[Int, Str]":   ResultOf(Int, Str),
		"Fn[Int, Int] -> Int": FnOf([]Type{Int, Int}, Int),
	}
	for want, ty := range cases {
		if got := ty.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestCompatibility(t *testing.T) {
	if !Int.IsCompatible(Float) {
		t.Error("Int should promote to Float")
	}
	if !ArrayOf(Int).IsCompatible(ArrayOf(Unknown)) {
		t.Error("Unknown should be tolerated inside containers")
	}
	if Str.IsCompatible(Int) {
		t.Error("Str and Int are incompatible")
	}
	if u, ok := Unify(Int, Float); !ok || u.Kind != KindFloat {
		t.Errorf("Unify(Int, Float) = %v, %v", u, ok)
	}
}
