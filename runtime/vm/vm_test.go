package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes source on a fresh VM with stdout captured, failing the
// test on any error.
func run(t *testing.T, src string) Value {
	t.Helper()
	machine := New()
	machine.Stdout = &bytes.Buffer{}
	machine.Stderr = &bytes.Buffer{}
	result, err := machine.Interpret(src)
	require.NoError(t, err, "source: %s", src)
	return result
}

// runErr executes source expecting an error.
func runErr(t *testing.T, src string) *Error {
	t.Helper()
	machine := New()
	machine.Stdout = &bytes.Buffer{}
	machine.Stderr = &bytes.Buffer{}
	_, err := machine.Interpret(src)
	require.Error(t, err, "source: %s", src)
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	return vmErr
}

// ── Arithmetic ────────────────────────────────────────────────────────────

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{"1 + 2", IntValue(3)},
		{"10 - 3", IntValue(7)},
		{"4 * 5", IntValue(20)},
		{"10 / 4", FloatValue(2.5)},
		{"10 // 3", IntValue(3)},
		{"10 % 3", IntValue(1)},
		{"2 ** 10", IntValue(1024)},
		{"-5", IntValue(-5)},
		{"1 + 2.5", FloatValue(3.5)},
		{"1 + 2 * 3", IntValue(7)},
		{"7 // 2.0", FloatValue(3.0)},
		{"2 ** -1", FloatValue(0.5)},
		{`"ab" + "cd"`, StrValue("abcd")},
		{`"ha" * 3`, StrValue("hahaha")},
		{`"x" * -1`, StrValue("")},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.True(t, Equal(tt.want, run(t, tt.src)), "want %s", tt.want)
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	for _, src := range []string{"1 / 0", "1 % 0", "1 // 0"} {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, ErrDivisionByZero, runErr(t, src).Kind)
		})
	}
}

func TestBitwise(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"6 & 3", 2},
		{"6 | 3", 7},
		{"6 ^ 3", 5},
		{"~0", -1},
		{"1 << 4", 16},
		{"16 >> 2", 4},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := run(t, tt.src)
			require.Equal(t, KindInt, got.Kind)
			assert.Equal(t, tt.want, got.Int)
		})
	}
}

func TestDoubleNegation(t *testing.T) {
	got := run(t, "let n = 42\n-(-n)")
	assert.Equal(t, int64(42), got.Int)
}

// ── Comparison and logic ──────────────────────────────────────────────────

func TestComparisonAndLogic(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 == 1", true},
		{"1 != 2", true},
		{"1 < 2", true},
		{"2 > 1", true},
		{"2 <= 2", true},
		{"3 >= 4", false},
		{"1 == 1.0", true},
		{`"abc" < "abd"`, true},
		{"true and false", false},
		{"false or true", true},
		{"not true", false},
		{"1 is 2", true},
		{`1 is "x"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := run(t, tt.src)
			require.Equal(t, KindBool, got.Kind)
			assert.Equal(t, tt.want, got.Bool)
		})
	}
}

func TestHeterogeneousComparisonFails(t *testing.T) {
	assert.Equal(t, ErrType, runErr(t, `1 < "a"`).Kind)
}

func TestShortCircuit(t *testing.T) {
	// The right side must not run when the left decides.
	got := run(t, "var hit = 0\nfn bump()\n    hit = 1\n    return true\nfalse and bump()\nhit")
	assert.Equal(t, int64(0), got.Int)

	got = run(t, "var hit = 0\nfn bump()\n    hit = 1\n    return true\ntrue or bump()\nhit")
	assert.Equal(t, int64(0), got.Int)

	// and/or yield the deciding value, not a coerced Bool.
	got = run(t, "0 or 5")
	assert.Equal(t, int64(5), got.Int)
}

// ── Variables ─────────────────────────────────────────────────────────────

func TestVariables(t *testing.T) {
	assert.Equal(t, int64(42), run(t, "let x = 42\nx").Int)
	assert.Equal(t, int64(2), run(t, "var x = 1\nx = 2\nx").Int)
	assert.Equal(t, int64(15), run(t, "var x = 10\nx += 5\nx").Int)
}

func TestUndefinedVariable(t *testing.T) {
	e := runErr(t, "foo")
	assert.Equal(t, ErrUndefinedVariable, e.Kind)
	assert.Equal(t, "foo", e.Name)
}

func TestAssignImmutableGlobal(t *testing.T) {
	e := runErr(t, "let x = 1\nx = 2")
	assert.Equal(t, ErrAssignImmutable, e.Kind)
}

func TestAssignImmutableLocal(t *testing.T) {
	e := runErr(t, "fn f()\n    let a = 1\n    a = 2\nf()")
	assert.Equal(t, ErrCompile, e.Kind)
	assert.Contains(t, e.Msg, "immutable")
}

// ── Control flow ──────────────────────────────────────────────────────────

func TestIf(t *testing.T) {
	assert.Equal(t, int64(1), run(t, "var x = 0\nif true\n    x = 1\nx").Int)
	assert.Equal(t, int64(0), run(t, "var x = 0\nif false\n    x = 1\nx").Int)
}

func TestIfElifElse(t *testing.T) {
	src := "fn grade(n: Int) -> Str\n" +
		"    if n >= 90\n        return \"A\"\n" +
		"    elif n >= 80\n        return \"B\"\n" +
		"    else\n        return \"C\"\n" +
		"grade(85)"
	assert.Equal(t, "B", run(t, src).Str)
}

func TestIfAsExpression(t *testing.T) {
	got := run(t, "let x = if true\n    1\nelse\n    2\nx")
	assert.Equal(t, int64(1), got.Int)
	got = run(t, "let x = if false\n    1\nelse\n    2\nx")
	assert.Equal(t, int64(2), got.Int)
}

func TestWhile(t *testing.T) {
	got := run(t, "var i = 0\nvar s = 0\nwhile i < 5\n    s += i\n    i += 1\ns")
	assert.Equal(t, int64(10), got.Int)
}

func TestForRange(t *testing.T) {
	assert.Equal(t, int64(10), run(t, "var s = 0\nfor i in 0..5\n    s += i\ns").Int)
	assert.Equal(t, int64(15), run(t, "var s = 0\nfor i in 0..=5\n    s += i\ns").Int)
}

func TestForOverArray(t *testing.T) {
	got := run(t, "var s = 0\nfor x in [2, 4, 6]\n    s += x\ns")
	assert.Equal(t, int64(12), got.Int)
}

func TestForOverString(t *testing.T) {
	got := run(t, "var out = \"\"\nfor c in \"abc\"\n    out += c\nout")
	assert.Equal(t, "abc", got.Str)
}

func TestBreak(t *testing.T) {
	got := run(t, "var i = 0\nwhile true\n    if i == 3\n        break\n    i += 1\ni")
	assert.Equal(t, int64(3), got.Int)
}

func TestContinue(t *testing.T) {
	got := run(t, "var s = 0\nfor i in 0..6\n    if i % 2 == 0\n        continue\n    s += i\ns")
	assert.Equal(t, int64(9), got.Int)
}

func TestBreakInFor(t *testing.T) {
	got := run(t, "var s = 0\nfor i in 0..10\n    if i == 3\n        break\n    s += i\ns")
	assert.Equal(t, int64(3), got.Int)
}

func TestBreakOutsideLoop(t *testing.T) {
	assert.Equal(t, ErrCompile, runErr(t, "break").Kind)
	assert.Equal(t, ErrCompile, runErr(t, "continue").Kind)
}

// ── Functions ─────────────────────────────────────────────────────────────

func TestFnBasic(t *testing.T) {
	got := run(t, "fn add(a: Int, b: Int) -> Int\n    return a + b\nadd(3, 4)")
	assert.Equal(t, int64(7), got.Int)
}

func TestFactorial(t *testing.T) {
	src := "fn fact(n: Int) -> Int\n    if n <= 1\n        return 1\n    return n * fact(n - 1)\nfact(5)"
	assert.Equal(t, int64(120), run(t, src).Int)
}

func TestFibonacci(t *testing.T) {
	src := "fn fib(n: Int) -> Int\n    if n <= 1\n        return n\n    return fib(n-1) + fib(n-2)\nfib(10)"
	assert.Equal(t, int64(55), run(t, src).Int)
}

func TestDefaultParameter(t *testing.T) {
	got := run(t, "fn greet(name: Str = \"world\")\n    return name\ngreet()")
	assert.Equal(t, "world", got.Str)
	got = run(t, "fn greet(name: Str = \"world\")\n    return name\ngreet(\"neba\")")
	assert.Equal(t, "neba", got.Str)
}

func TestDefaultsFillTrailing(t *testing.T) {
	src := "fn f(a, b = 10, c = 20)\n    return a + b + c\nf(1, 2)"
	assert.Equal(t, int64(23), run(t, src).Int)
}

func TestArityMismatch(t *testing.T) {
	e := runErr(t, "fn f(a, b)\n    return a\nf(1)")
	assert.Equal(t, ErrArityMismatch, e.Kind)
	assert.Equal(t, 2, e.Expected)
	assert.Equal(t, 1, e.Got)

	e = runErr(t, "fn f(a)\n    return a\nf(1, 2)")
	assert.Equal(t, ErrArityMismatch, e.Kind)
}

func TestImplicitReturnNone(t *testing.T) {
	got := run(t, "fn noop()\n    pass\nnoop()")
	assert.Equal(t, KindNone, got.Kind)
}

func TestStackOverflow(t *testing.T) {
	e := runErr(t, "fn inf()\n    return inf()\ninf()")
	assert.Equal(t, ErrStackOverflow, e.Kind)
}

func TestNotCallable(t *testing.T) {
	assert.Equal(t, ErrNotCallable, runErr(t, "let x = 1\nx()").Kind)
}

func TestClosureSnapshot(t *testing.T) {
	// Captures are snapshots: later rebinding is invisible.
	src := "fn make()\n" +
		"    var x = 1\n" +
		"    fn get()\n        return x\n" +
		"    x = 2\n" +
		"    return get\n" +
		"let g = make()\ng()"
	assert.Equal(t, int64(1), run(t, src).Int)
}

func TestClosureSharedContainer(t *testing.T) {
	// Captured containers alias, so mutation is visible.
	src := "fn make()\n" +
		"    let xs = [1]\n" +
		"    fn get()\n        return xs[0]\n" +
		"    xs[0] = 9\n" +
		"    return get\n" +
		"let g = make()\ng()"
	assert.Equal(t, int64(9), run(t, src).Int)
}

// ── Arrays and indexing ───────────────────────────────────────────────────

func TestArrays(t *testing.T) {
	assert.Equal(t, int64(20), run(t, "let a = [10,20,30]\na[1]").Int)
	assert.Equal(t, int64(3), run(t, "let a = [1,2,3]\na[-1]").Int)
	assert.Equal(t, int64(99), run(t, "var a = [1,2,3]\na[0] = 99\na[0]").Int)
	assert.Equal(t, int64(4), run(t, "var a = [1,2,3]\na[0] += 3\na[0]").Int)
}

func TestIndexOutOfBounds(t *testing.T) {
	e := runErr(t, "let a = [1,2,3]\na[3]")
	assert.Equal(t, ErrIndexOutOfBounds, e.Kind)
	e = runErr(t, "let a = [1,2,3]\na[-4]")
	assert.Equal(t, ErrIndexOutOfBounds, e.Kind)
}

func TestMembership(t *testing.T) {
	assert.True(t, run(t, "2 in [1,2,3]").Bool)
	assert.True(t, run(t, "5 not in [1,2,3]").Bool)
	assert.False(t, run(t, "2 not in [1,2,3]").Bool)
	assert.True(t, run(t, `"ell" in "hello"`).Bool)
}

func TestArrayAliasing(t *testing.T) {
	got := run(t, "let a = [1,2]\nlet b = a\nb[0] = 9\na[0]")
	assert.Equal(t, int64(9), got.Int)
}

func TestArrayLenField(t *testing.T) {
	assert.Equal(t, int64(3), run(t, "[1,2,3].len").Int)
	assert.Equal(t, int64(5), run(t, `"hello".len`).Int)
}

// ── Strings ───────────────────────────────────────────────────────────────

func TestStringIndexing(t *testing.T) {
	assert.Equal(t, "e", run(t, `"hello"[1]`).Str)
	assert.Equal(t, "o", run(t, `"hello"[-1]`).Str)
}

func TestFStrings(t *testing.T) {
	got := run(t, "let name = \"Neba\"\nf\"Hello, {name}!\"")
	assert.Equal(t, "Hello, Neba!", got.Str)
	assert.Equal(t, "3", run(t, `f"{1 + 2}"`).Str)
	got = run(t, "let name = \"Neba\"\nf\"Hello, {name}! {1+2}\"")
	assert.Equal(t, "Hello, Neba! 3", got.Str)
	assert.Equal(t, "{x}", run(t, `f"{{x}}"`).Str)
}

// ── Option / Result ───────────────────────────────────────────────────────

func TestConstructors(t *testing.T) {
	got := run(t, "Some(42)")
	require.Equal(t, KindSome, got.Kind)
	assert.Equal(t, int64(42), got.Inner.Int)

	got = run(t, "Ok(1)")
	require.Equal(t, KindOk, got.Kind)
	assert.Equal(t, int64(1), got.Inner.Int)

	got = run(t, "Err(0)")
	require.Equal(t, KindErr, got.Kind)
	assert.Equal(t, int64(0), got.Inner.Int)
}

func TestTruthiness(t *testing.T) {
	assert.True(t, run(t, "Some(0)").IsTruthy())
	assert.False(t, run(t, "None").IsTruthy())
	assert.False(t, run(t, "0").IsTruthy())
	assert.False(t, run(t, "0.0").IsTruthy())
	assert.False(t, run(t, `""`).IsTruthy())
	assert.False(t, run(t, "[]").IsTruthy())
	assert.True(t, run(t, "[0]").IsTruthy())
}

// ── Match ─────────────────────────────────────────────────────────────────

func TestMatchSomeBinding(t *testing.T) {
	src := "let x = Some(42)\nmatch x\n    case Some(v) => v\n    case None => 0\n"
	assert.Equal(t, int64(42), run(t, src).Int)
}

func TestMatchNoneArm(t *testing.T) {
	src := "let x = None\nmatch x\n    case Some(v) => v\n    case None => 0\n"
	assert.Equal(t, int64(0), run(t, src).Int)
}

func TestMatchOkErrBinding(t *testing.T) {
	src := "match Ok(7)\n    case Ok(v) => v\n    case Err(e) => -1\n"
	assert.Equal(t, int64(7), run(t, src).Int)
	src = "match Err(\"boom\")\n    case Ok(v) => v\n    case Err(e) => e\n"
	assert.Equal(t, "boom", run(t, src).Str)
}

func TestMatchLiteralsAndWildcard(t *testing.T) {
	src := "fn name(n: Int) -> Str\n" +
		"    return match n\n" +
		"        case 0 => \"zero\"\n" +
		"        case 1 => \"one\"\n" +
		"        case _ => \"many\"\n" +
		"name(0) + name(1) + name(9)"
	assert.Equal(t, "zeroonemany", run(t, src).Str)
}

func TestMatchRangePattern(t *testing.T) {
	src := "fn grade(n: Int) -> Str\n" +
		"    return match n\n" +
		"        case 90..=100 => \"A\"\n" +
		"        case 80..90 => \"B\"\n" +
		"        case _ => \"F\"\n" +
		"grade(95) + grade(85) + grade(10)"
	assert.Equal(t, "ABF", run(t, src).Str)
}

func TestMatchOrPattern(t *testing.T) {
	src := "match 2\n    case 1 | 2 | 3 => \"small\"\n    case _ => \"big\"\n"
	assert.Equal(t, "small", run(t, src).Str)
	src = "match 7\n    case 1 | 2 | 3 => \"small\"\n    case _ => \"big\"\n"
	assert.Equal(t, "big", run(t, src).Str)
}

func TestMatchIdentBindsSubject(t *testing.T) {
	src := "match 41\n    case n => n + 1\n"
	assert.Equal(t, int64(42), run(t, src).Int)
}

func TestMatchNoArmYieldsNone(t *testing.T) {
	src := "match 5\n    case 1 => 10\n"
	assert.Equal(t, KindNone, run(t, src).Kind)
}

func TestMatchAsRValueKeepsStackBalanced(t *testing.T) {
	src := "let a = match Some(1)\n    case Some(v) => v\n    case None => 0\n" +
		"let b = match Some(2)\n    case Some(v) => v\n    case None => 0\n" +
		"a + b"
	assert.Equal(t, int64(3), run(t, src).Int)
}

func TestMatchInLoop(t *testing.T) {
	src := "var s = 0\nfor i in 0..4\n    s += match i\n        case 0 | 1 => 1\n        case _ => 10\ns"
	assert.Equal(t, int64(22), run(t, src).Int)
}

func TestMatchNestedConstructorPattern(t *testing.T) {
	src := "match Some(Some(5))\n    case Some(Some(v)) => v\n    case _ => -1\n"
	assert.Equal(t, int64(5), run(t, src).Int)
}

func TestMatchLiteralInsideConstructor(t *testing.T) {
	src := "fn f(x)\n" +
		"    return match x\n" +
		"        case Some(0) => \"zero\"\n" +
		"        case Some(v) => \"other\"\n" +
		"        case None => \"none\"\n" +
		"f(Some(0)) + f(Some(3)) + f(None)"
	assert.Equal(t, "zeroothernone", run(t, src).Str)
}

// ── Classes ───────────────────────────────────────────────────────────────

func TestCounterClass(t *testing.T) {
	src := "class Counter\n" +
		"    count: Int = 0\n" +
		"    fn increment(self)\n" +
		"        self.count += 1\n" +
		"var c = Counter()\nc.increment()\nc.count"
	assert.Equal(t, int64(1), run(t, src).Int)
}

func TestClassInit(t *testing.T) {
	src := "class Point\n" +
		"    x: Int = 0\n" +
		"    y: Int = 0\n" +
		"    fn __init__(self, x: Int, y: Int)\n" +
		"        self.x = x\n" +
		"        self.y = y\n" +
		"    fn sum(self) -> Int\n" +
		"        return self.x + self.y\n" +
		"let p = Point(3, 4)\np.sum()"
	assert.Equal(t, int64(7), run(t, src).Int)
}

func TestMethodWithArgs(t *testing.T) {
	src := "class Acc\n" +
		"    total: Int = 0\n" +
		"    fn add(self, n: Int)\n" +
		"        self.total += n\n" +
		"var a = Acc()\na.add(5)\na.add(7)\na.total"
	assert.Equal(t, int64(12), run(t, src).Int)
}

func TestUnknownField(t *testing.T) {
	e := runErr(t, "class Empty\n    pass_field: Int = 0\nlet e = Empty()\ne.missing")
	assert.Equal(t, ErrUnknownField, e.Kind)
	assert.Equal(t, "Empty", e.Name)
	assert.Equal(t, "missing", e.Field)
}

func TestInstanceDisplay(t *testing.T) {
	got := run(t, "class Thing\n    x: Int = 0\nlet t = Thing()\nstr(t)")
	assert.Equal(t, "<Thing instance>", got.Str)
}

func TestImplMethodsMerge(t *testing.T) {
	src := "class Dog\n" +
		"    name: Str = \"rex\"\n" +
		"    impl Speaker\n" +
		"        fn speak(self) -> Str\n" +
		"            return \"woof\"\n" +
		"let d = Dog()\nd.speak()"
	assert.Equal(t, "woof", run(t, src).Str)
}

// ── Builtins ──────────────────────────────────────────────────────────────

func TestBuiltins(t *testing.T) {
	assert.Equal(t, int64(3), run(t, "len([1,2,3])").Int)
	assert.Equal(t, int64(5), run(t, `len("hello")`).Int)
	assert.Equal(t, "42", run(t, "str(42)").Str)
	assert.Equal(t, int64(42), run(t, `int("42")`).Int)
	assert.Equal(t, int64(3), run(t, "int(3.7)").Int)
	assert.True(t, Equal(FloatValue(3.0), run(t, "float(3)")))
	assert.True(t, run(t, "bool(1)").Bool)
	assert.False(t, run(t, `bool("")`).Bool)
	assert.Equal(t, "Int", run(t, "typeof(42)").Str)
	assert.Equal(t, "Str", run(t, `typeof("x")`).Str)
	assert.Equal(t, int64(42), run(t, "abs(-42)").Int)
	assert.Equal(t, int64(1), run(t, "min(3,1,2)").Int)
	assert.Equal(t, int64(3), run(t, "max(3,1,2)").Int)
	assert.Equal(t, int64(1), run(t, "min([3,1,2])").Int)
	assert.Equal(t, KindNone, run(t, "assert(true)").Kind)
}

func TestRangeBuiltin(t *testing.T) {
	got := run(t, "range(5)")
	require.Equal(t, KindArray, got.Kind)
	assert.Len(t, got.Array.Elems, 5)

	got = run(t, "range(2, 5)")
	require.Equal(t, KindArray, got.Kind)
	require.Len(t, got.Array.Elems, 3)
	assert.Equal(t, int64(2), got.Array.Elems[0].Int)

	got = run(t, "range(10, 0, -2)")
	require.Equal(t, KindArray, got.Kind)
	assert.Len(t, got.Array.Elems, 5)
}

func TestPushPop(t *testing.T) {
	got := run(t, "var a = [1]\npush(a, 2)\nlen(a)")
	assert.Equal(t, int64(2), got.Int)
	got = run(t, "var a = [1, 2]\npop(a)")
	assert.Equal(t, int64(2), got.Int)
	e := runErr(t, "pop([])")
	assert.Equal(t, ErrGeneric, e.Kind)
}

func TestAssertFailure(t *testing.T) {
	e := runErr(t, `assert(false, "boom")`)
	assert.Equal(t, ErrGeneric, e.Kind)
	assert.Equal(t, "boom", e.Msg)
}

func TestIntStrRoundTrip(t *testing.T) {
	for _, n := range []string{"0", "42", "-7", "9223372036854775807"} {
		got := run(t, "int(str("+n+"))")
		want := run(t, n)
		assert.True(t, Equal(want, got), "round trip for %s", n)
	}
}

func TestStrLenConcatLaw(t *testing.T) {
	got := run(t, `len("abc" + "de") == len("abc") + len("de")`)
	assert.True(t, got.Bool)
}

func TestInNotInComplement(t *testing.T) {
	got := run(t, "let a = [1,2,3]\n(2 in a) == not (2 not in a)")
	assert.True(t, got.Bool)
	got = run(t, "let a = [1,2,3]\n(9 in a) == not (9 not in a)")
	assert.True(t, got.Bool)
}

func TestPrintCaptured(t *testing.T) {
	machine := New()
	var out bytes.Buffer
	machine.Stdout = &out
	machine.Stderr = &bytes.Buffer{}
	_, err := machine.Interpret(`println("hello", 42)`)
	require.NoError(t, err)
	assert.Equal(t, "hello 42\n", out.String())
}

func TestFloatDisplay(t *testing.T) {
	machine := New()
	var out bytes.Buffer
	machine.Stdout = &out
	machine.Stderr = &bytes.Buffer{}
	_, err := machine.Interpret("println(3.0)\nprintln(2.5)\nprintln([1, 2])")
	require.NoError(t, err)
	assert.Equal(t, "3.0\n2.5\n[1, 2]\n", out.String())
}

// ── Diagnostics ───────────────────────────────────────────────────────────

func TestTracebackOnRuntimeError(t *testing.T) {
	machine := New()
	machine.Stdout = &bytes.Buffer{}
	var errOut bytes.Buffer
	machine.Stderr = &errOut
	_, err := machine.Interpret("fn boom()\n    return 1 / 0\nfn outer()\n    return boom()\nouter()")
	require.Error(t, err)
	trace := errOut.String()
	assert.True(t, strings.HasPrefix(trace, "Traceback:\n"), "got: %q", trace)
	assert.Contains(t, trace, "at boom")
	assert.Contains(t, trace, "at outer")
	assert.Contains(t, trace, "at <script>")
	// Newest frame first.
	assert.Less(t, strings.Index(trace, "at boom"), strings.Index(trace, "at outer"))
}

func TestLexErrorRefusesExecution(t *testing.T) {
	e := runErr(t, "\"unterminated")
	assert.Equal(t, ErrCompile, e.Kind)
	assert.Contains(t, e.Msg, "LexError")
}

func TestParseErrorRefusesExecution(t *testing.T) {
	e := runErr(t, "let = 3")
	assert.Equal(t, ErrCompile, e.Kind)
	assert.Contains(t, e.Msg, "ParseError")
}

// ── Concurrency stubs ─────────────────────────────────────────────────────

func TestSpawnAwaitSynchronous(t *testing.T) {
	src := "fn work() -> Int\n    return 21\nlet h = spawn work()\nawait h * 2"
	assert.Equal(t, int64(42), run(t, src).Int)
}

// ── Globals persist across Interpret calls (REPL contract) ────────────────

func TestGlobalsPersistAcrossInterpret(t *testing.T) {
	machine := New()
	machine.Stdout = &bytes.Buffer{}
	machine.Stderr = &bytes.Buffer{}
	_, err := machine.Interpret("var counter = 1")
	require.NoError(t, err)
	got, err := machine.Interpret("counter = counter + 41\ncounter")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int)
}
