package vm

import (
	"fmt"
	"os"

	"github.com/sfenos/neba/runtime/ast"
	"github.com/sfenos/neba/runtime/parser"
)

// local is a variable living in the current stack frame. slot is its
// runtime stack index relative to the frame base; it accounts for any
// expression temporaries that were live when the local was born.
type local struct {
	name    string
	depth   int
	mutable bool
	slot    int
}

// upvalueDef is a capture seen by the compiler: a local of the enclosing
// function or one of the enclosing function's own upvalues.
type upvalueDef struct {
	isLocal bool
	index   uint8
	mutable bool
}

// ClassInfo records a class declaration during compilation.
type ClassInfo struct {
	Fields  []ast.FieldDef
	Methods []ast.Stmt
}

// Compiler lowers an AST into a Chunk in a single pass. Nested functions
// spawn nested compiler instances linked through enclosing, which is how
// upvalue references resolve.
type Compiler struct {
	chunk     *Chunk
	enclosing *Compiler

	locals     []local
	upvalues   []upvalueDef
	scopeDepth int

	// Pending jump patch sites for break/continue in the active loops.
	breakPatches    [][]int
	continuePatches [][]int

	// ClassRegistry maps class name to declaration, filled as class
	// statements compile.
	ClassRegistry map[string]*ClassInfo

	fnName     string
	isFunction bool

	// stackTemps counts expression temporaries currently live below the
	// value being compiled. Locals created while temporaries are live
	// (match subjects and bindings) sit above them on the stack, and
	// their slots must say so.
	stackTemps int

	// spawnWarned is shared across nested compilers so the synchronous
	// spawn warning prints once per compilation.
	spawnWarned *bool

	// matchCount numbers hidden match-subject locals.
	matchCount int
}

func newScriptCompiler() *Compiler {
	warned := false
	return &Compiler{
		chunk:         NewChunk(),
		ClassRegistry: make(map[string]*ClassInfo),
		fnName:        "<script>",
		spawnWarned:   &warned,
	}
}

func newFunctionCompiler(name string, enclosing *Compiler) *Compiler {
	return &Compiler{
		chunk:         NewChunk(),
		enclosing:     enclosing,
		scopeDepth:    1, // the function body opens a scope
		ClassRegistry: enclosing.ClassRegistry,
		fnName:        name,
		isFunction:    true,
		spawnWarned:   enclosing.spawnWarned,
	}
}

// Compile lowers a program into an executable chunk. The last top-level
// statement, when an expression, leaves its value on the stack as the
// script result; Halt pops it.
func Compile(program *ast.Program) (*Chunk, error) {
	c := newScriptCompiler()
	stmts := program.Stmts
	if len(stmts) == 0 {
		c.chunk.Emit(OpNil, 0)
		c.chunk.Emit(OpHalt, 0)
		return c.chunk, nil
	}
	for i := range stmts[:len(stmts)-1] {
		if err := c.compileStmt(&stmts[i]); err != nil {
			return nil, err
		}
	}
	last := &stmts[len(stmts)-1]
	lastLine := last.Span.Line
	if es, ok := last.Kind.(ast.ExprStmt); ok {
		if err := c.compileExpr(&es.Expr); err != nil {
			return nil, err
		}
	} else {
		if err := c.compileStmt(last); err != nil {
			return nil, err
		}
		c.chunk.Emit(OpNil, lastLine)
	}
	c.chunk.Emit(OpHalt, lastLine)
	return c.chunk, nil
}

// ── Statements ────────────────────────────────────────────────────────────

func (c *Compiler) compileStmt(stmt *ast.Stmt) error {
	line := stmt.Span.Line
	switch s := stmt.Kind.(type) {
	case ast.ExprStmt:
		if err := c.compileExpr(&s.Expr); err != nil {
			return err
		}
		// Statement context discards the value; the block-expression
		// rule skips this Pop for the final statement of an arm.
		c.chunk.Emit(OpPop, line)
	case ast.Let:
		if err := c.compileExpr(&s.Value); err != nil {
			return err
		}
		c.defineVar(s.Name, false, line)
	case ast.Var:
		if err := c.compileExpr(&s.Value); err != nil {
			return err
		}
		c.defineVar(s.Name, true, line)
	case ast.Assign:
		return c.compileAssign(&s.Target, s.Op, &s.Value, line)
	case ast.FnDef:
		if err := c.compileFnDef(s.Name, s.Params, s.Body, s.IsAsync, line); err != nil {
			return err
		}
		c.defineVar(s.Name, false, line)
	case ast.Return:
		if s.Value != nil {
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			c.chunk.Emit(OpNil, line)
		}
		c.chunk.Emit(OpReturn, line)
	case ast.While:
		return c.compileWhile(&s.Condition, s.Body, line)
	case ast.For:
		return c.compileFor(s.Var, &s.Iterable, s.Body, line)
	case ast.Break:
		if len(c.breakPatches) == 0 {
			return compileErrorf("break outside loop")
		}
		patch := c.chunk.EmitJump(OpJump, line)
		n := len(c.breakPatches) - 1
		c.breakPatches[n] = append(c.breakPatches[n], patch)
	case ast.Continue:
		if len(c.continuePatches) == 0 {
			return compileErrorf("continue outside loop")
		}
		patch := c.chunk.EmitJump(OpJump, line)
		n := len(c.continuePatches) - 1
		c.continuePatches[n] = append(c.continuePatches[n], patch)
	case ast.Pass:
		// no code
	case ast.ClassDef:
		return c.compileClass(s.Name, s.Fields, s.Methods, s.Impls, line)
	case ast.TraitDef, ast.ImplBlock:
		// No runtime effect; impl methods merge into classes when the
		// impls appear inside a class body.
	case ast.ModDecl:
		fmt.Fprintf(os.Stderr, "[warn] mod '%s' is not supported yet\n", s.Name)
	case ast.UseDecl:
		fmt.Fprintf(os.Stderr, "[warn] use '%s' is not supported yet\n", joinPath(s.Path))
	default:
		return compileErrorf("unsupported statement %T", s)
	}
	return nil
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "::"
		}
		out += p
	}
	return out
}

// ── Variables ─────────────────────────────────────────────────────────────

// addLocal registers the value on top of the stack as a named local and
// returns its slot.
func (c *Compiler) addLocal(name string, mutable bool) int {
	slot := len(c.locals) + c.stackTemps
	c.locals = append(c.locals, local{name: name, depth: c.scopeDepth, mutable: mutable, slot: slot})
	return slot
}

// defineVar binds the value on top of the stack. At depth zero that means
// a DefGlobal; otherwise the value simply becomes the next local slot.
func (c *Compiler) defineVar(name string, mutable bool, line int) {
	if c.scopeDepth == 0 {
		idx := c.chunk.AddName(name)
		c.chunk.Emit(OpDefGlobal, line)
		c.chunk.EmitU16(idx)
		if mutable {
			c.chunk.EmitU8(1)
		} else {
			c.chunk.EmitU8(0)
		}
		return
	}
	c.addLocal(name, mutable)
}

func (c *Compiler) resolveLocal(name string) (int, bool, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return c.locals[i].slot, c.locals[i].mutable, true
		}
	}
	return 0, false, false
}

// resolveUpvalue walks the enclosing compiler chain looking for name,
// recording capture descriptors along the way. Captures are snapshots:
// MakeClosure copies the referenced slots at closure-creation time.
func (c *Compiler) resolveUpvalue(name string) (int, bool, bool) {
	if c.enclosing == nil {
		return 0, false, false
	}
	if idx, mutable, ok := c.enclosing.resolveLocal(name); ok {
		return c.addUpvalue(true, uint8(idx), mutable), mutable, true
	}
	if idx, mutable, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(false, uint8(idx), mutable), mutable, true
	}
	return 0, false, false
}

func (c *Compiler) addUpvalue(isLocal bool, index uint8, mutable bool) int {
	for i, u := range c.upvalues {
		if u.isLocal == isLocal && u.index == index {
			return i
		}
	}
	c.upvalues = append(c.upvalues, upvalueDef{isLocal: isLocal, index: index, mutable: mutable})
	return len(c.upvalues) - 1
}

func (c *Compiler) emitLoad(name string, line int) {
	if idx, _, ok := c.resolveLocal(name); ok {
		c.chunk.Emit(OpLoadLocal, line)
		c.chunk.EmitU8(uint8(idx))
		return
	}
	if idx, _, ok := c.resolveUpvalue(name); ok {
		c.chunk.Emit(OpLoadUpval, line)
		c.chunk.EmitU8(uint8(idx))
		return
	}
	idx := c.chunk.AddName(name)
	c.chunk.Emit(OpLoadGlobal, line)
	c.chunk.EmitU16(idx)
}

func (c *Compiler) emitStore(name string, line int) error {
	if idx, mutable, ok := c.resolveLocal(name); ok {
		if !mutable {
			return compileErrorf("cannot assign to immutable variable '%s'", name)
		}
		c.chunk.Emit(OpStoreLocal, line)
		c.chunk.EmitU8(uint8(idx))
		return nil
	}
	if idx, mutable, ok := c.resolveUpvalue(name); ok {
		if !mutable {
			return compileErrorf("cannot assign to immutable variable '%s'", name)
		}
		c.chunk.Emit(OpStoreUpval, line)
		c.chunk.EmitU8(uint8(idx))
		return nil
	}
	idx := c.chunk.AddName(name)
	c.chunk.Emit(OpStoreGlobal, line)
	c.chunk.EmitU16(idx)
	return nil
}

// ── Scopes ────────────────────────────────────────────────────────────────

func (c *Compiler) pushScope() { c.scopeDepth++ }

// popScope drops the locals born in the current scope and emits the
// matching Pop/PopN.
func (c *Compiler) popScope(line int) {
	count := 0
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth == c.scopeDepth; i-- {
		count++
	}
	c.locals = c.locals[:len(c.locals)-count]
	if count == 1 {
		c.chunk.Emit(OpPop, line)
	} else if count > 1 {
		c.chunk.Emit(OpPopN, line)
		c.chunk.EmitU8(uint8(count))
	}
	c.scopeDepth--
}

// ── Assignment ────────────────────────────────────────────────────────────

func (c *Compiler) compileAssign(target *ast.Expr, op ast.AssignOp, value *ast.Expr, line int) error {
	switch t := target.Kind.(type) {
	case ast.Ident:
		if op != ast.AssignPlain {
			// x += rhs loads x, evaluates rhs, applies, stores.
			c.emitLoad(t.Name, line)
			c.stackTemps++
			if err := c.compileExpr(value); err != nil {
				return err
			}
			c.stackTemps--
			c.emitCompoundOp(op, line)
		} else {
			if err := c.compileExpr(value); err != nil {
				return err
			}
		}
		return c.emitStore(t.Name, line)

	case ast.Index:
		if err := c.compileExpr(t.Object); err != nil {
			return err
		}
		c.stackTemps++
		if err := c.compileExpr(t.Idx); err != nil {
			return err
		}
		c.stackTemps++
		if op != ast.AssignPlain {
			// Re-evaluate object and index to read the current element.
			if err := c.compileExpr(t.Object); err != nil {
				return err
			}
			c.stackTemps++
			if err := c.compileExpr(t.Idx); err != nil {
				return err
			}
			c.chunk.Emit(OpGetIndex, line)
			if err := c.compileExpr(value); err != nil {
				return err
			}
			c.stackTemps--
			c.emitCompoundOp(op, line)
		} else {
			if err := c.compileExpr(value); err != nil {
				return err
			}
		}
		c.chunk.Emit(OpSetIndex, line)
		c.stackTemps -= 2
		return nil

	case ast.Field:
		if err := c.compileExpr(t.Object); err != nil {
			return err
		}
		c.stackTemps++
		nameIdx := c.chunk.AddName(t.Name)
		if op != ast.AssignPlain {
			c.chunk.Emit(OpDup, line)
			c.chunk.Emit(OpGetField, line)
			c.chunk.EmitU16(nameIdx)
			c.stackTemps++
			if err := c.compileExpr(value); err != nil {
				return err
			}
			c.stackTemps--
			c.emitCompoundOp(op, line)
		} else {
			if err := c.compileExpr(value); err != nil {
				return err
			}
		}
		c.chunk.Emit(OpSetField, line)
		c.chunk.EmitU16(nameIdx)
		c.stackTemps--
		return nil

	default:
		return compileErrorf("invalid assignment target")
	}
}

func (c *Compiler) emitCompoundOp(op ast.AssignOp, line int) {
	switch op {
	case ast.AssignAdd:
		c.chunk.Emit(OpAdd, line)
	case ast.AssignSub:
		c.chunk.Emit(OpSub, line)
	case ast.AssignMul:
		c.chunk.Emit(OpMul, line)
	case ast.AssignDiv:
		c.chunk.Emit(OpDiv, line)
	case ast.AssignMod:
		c.chunk.Emit(OpMod, line)
	}
}

// ── Expressions ───────────────────────────────────────────────────────────

func (c *Compiler) compileExpr(expr *ast.Expr) error {
	line := expr.Span.Line
	switch e := expr.Kind.(type) {
	case ast.IntLit:
		idx := c.chunk.AddConst(IntValue(e.Value))
		c.chunk.Emit(OpConst, line)
		c.chunk.EmitU16(idx)
	case ast.FloatLit:
		idx := c.chunk.AddConst(FloatValue(e.Value))
		c.chunk.Emit(OpConst, line)
		c.chunk.EmitU16(idx)
	case ast.BoolLit:
		if e.Value {
			c.chunk.Emit(OpTrue, line)
		} else {
			c.chunk.Emit(OpFalse, line)
		}
	case ast.NoneLit:
		c.chunk.Emit(OpNil, line)
	case ast.StrLit:
		idx := c.chunk.AddConst(StrValue(e.Value))
		c.chunk.Emit(OpConst, line)
		c.chunk.EmitU16(idx)
	case ast.FStrLit:
		return c.compileFString(e.Raw, line)

	case ast.Ident:
		c.emitLoad(e.Name, line)

	case ast.Unary:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		switch e.Op {
		case ast.OpNeg:
			c.chunk.Emit(OpNeg, line)
		case ast.OpNot:
			c.chunk.Emit(OpNot, line)
		case ast.OpBitNot:
			c.chunk.Emit(OpBitNot, line)
		}

	case ast.Binary:
		return c.compileBinary(e.Op, e.Left, e.Right, line)

	case ast.If:
		return c.compileIf(&e, line)

	case ast.Match:
		return c.compileMatch(e.Subject, e.Arms, line)

	case ast.Call:
		if field, ok := e.Callee.Kind.(ast.Field); ok {
			// Method call: receiver, then args, then dispatch by name.
			if err := c.compileExpr(field.Object); err != nil {
				return err
			}
			c.stackTemps++
			argc, err := c.compileCallArgs(e.Args, e.Kwargs)
			if err != nil {
				return err
			}
			idx := c.chunk.AddName(field.Name)
			c.chunk.Emit(OpCallMethod, line)
			c.chunk.EmitU16(idx)
			c.chunk.EmitU8(uint8(argc))
			c.stackTemps -= argc + 1
		} else {
			if err := c.compileExpr(e.Callee); err != nil {
				return err
			}
			c.stackTemps++
			argc, err := c.compileCallArgs(e.Args, e.Kwargs)
			if err != nil {
				return err
			}
			c.chunk.Emit(OpCall, line)
			c.chunk.EmitU8(uint8(argc))
			c.stackTemps -= argc + 1
		}

	case ast.Field:
		if err := c.compileExpr(e.Object); err != nil {
			return err
		}
		idx := c.chunk.AddName(e.Name)
		c.chunk.Emit(OpGetField, line)
		c.chunk.EmitU16(idx)

	case ast.Index:
		if err := c.compileExpr(e.Object); err != nil {
			return err
		}
		c.stackTemps++
		if err := c.compileExpr(e.Idx); err != nil {
			return err
		}
		c.stackTemps--
		c.chunk.Emit(OpGetIndex, line)

	case ast.ArrayLit:
		for i := range e.Elems {
			if err := c.compileExpr(&e.Elems[i]); err != nil {
				return err
			}
			c.stackTemps++
		}
		c.chunk.Emit(OpMakeArray, line)
		c.chunk.EmitU16(uint16(len(e.Elems)))
		c.stackTemps -= len(e.Elems)

	case ast.Range:
		if err := c.compileExpr(e.Start); err != nil {
			return err
		}
		c.stackTemps++
		if err := c.compileExpr(e.End); err != nil {
			return err
		}
		c.stackTemps--
		c.chunk.Emit(OpMakeRange, line)
		if e.Inclusive {
			c.chunk.EmitU8(1)
		} else {
			c.chunk.EmitU8(0)
		}

	case ast.SomeExpr:
		if err := c.compileExpr(e.Inner); err != nil {
			return err
		}
		c.chunk.Emit(OpMakeSome, line)
	case ast.OkExpr:
		if err := c.compileExpr(e.Inner); err != nil {
			return err
		}
		c.chunk.Emit(OpMakeOk, line)
	case ast.ErrExpr:
		if err := c.compileExpr(e.Inner); err != nil {
			return err
		}
		c.chunk.Emit(OpMakeErr, line)

	case ast.Spawn:
		if !*c.spawnWarned {
			fmt.Fprintln(os.Stderr, "[warn] spawn runs synchronously; asynchrony is not implemented yet")
			*c.spawnWarned = true
		}
		return c.compileExpr(e.Inner)
	case ast.Await:
		return c.compileExpr(e.Inner)

	case ast.BadExpr:
		return compileErrorf("cannot compile a source file with syntax errors")

	default:
		return compileErrorf("unsupported expression %T", e)
	}
	return nil
}

// compileCallArgs compiles positional then keyword arguments, counting
// each as a live temporary, and returns the total argument count.
// Keyword arguments are appended positionally after the positionals; the
// runtime does not reorder them by name.
func (c *Compiler) compileCallArgs(args []ast.Expr, kwargs []ast.Kwarg) (int, error) {
	argc := 0
	for i := range args {
		if err := c.compileExpr(&args[i]); err != nil {
			return 0, err
		}
		c.stackTemps++
		argc++
	}
	for i := range kwargs {
		if err := c.compileExpr(&kwargs[i].Value); err != nil {
			return 0, err
		}
		c.stackTemps++
		argc++
	}
	return argc, nil
}

// ── Binary operators ──────────────────────────────────────────────────────

func (c *Compiler) compileBinary(op ast.BinOp, left, right *ast.Expr, line int) error {
	switch op {
	case ast.OpAnd:
		if err := c.compileExpr(left); err != nil {
			return err
		}
		patch := c.chunk.EmitJump(OpJumpFalsePeek, line)
		c.chunk.Emit(OpPop, line)
		if err := c.compileExpr(right); err != nil {
			return err
		}
		c.chunk.PatchJump(patch)
		return nil
	case ast.OpOr:
		if err := c.compileExpr(left); err != nil {
			return err
		}
		patch := c.chunk.EmitJump(OpJumpTruePeek, line)
		c.chunk.Emit(OpPop, line)
		if err := c.compileExpr(right); err != nil {
			return err
		}
		c.chunk.PatchJump(patch)
		return nil
	}

	if err := c.compileExpr(left); err != nil {
		return err
	}
	c.stackTemps++
	if err := c.compileExpr(right); err != nil {
		return err
	}
	c.stackTemps--
	var instr Op
	switch op {
	case ast.OpAdd:
		instr = OpAdd
	case ast.OpSub:
		instr = OpSub
	case ast.OpMul:
		instr = OpMul
	case ast.OpDiv:
		instr = OpDiv
	case ast.OpIntDiv:
		instr = OpIntDiv
	case ast.OpMod:
		instr = OpMod
	case ast.OpPow:
		instr = OpPow
	case ast.OpEq:
		instr = OpEq
	case ast.OpNe:
		instr = OpNe
	case ast.OpLt:
		instr = OpLt
	case ast.OpLe:
		instr = OpLe
	case ast.OpGt:
		instr = OpGt
	case ast.OpGe:
		instr = OpGe
	case ast.OpBitAnd:
		instr = OpBitAnd
	case ast.OpBitOr:
		instr = OpBitOr
	case ast.OpBitXor:
		instr = OpBitXor
	case ast.OpShl:
		instr = OpShl
	case ast.OpShr:
		instr = OpShr
	case ast.OpIs:
		instr = OpIs
	case ast.OpIn:
		instr = OpIn
	case ast.OpNotIn:
		instr = OpNotIn
	default:
		return compileErrorf("unsupported binary operator")
	}
	c.chunk.Emit(instr, line)
	return nil
}

// ── If expressions ────────────────────────────────────────────────────────

func (c *Compiler) compileIf(e *ast.If, line int) error {
	if err := c.compileExpr(e.Condition); err != nil {
		return err
	}
	var endPatches []int

	elsePatch := c.chunk.EmitJump(OpJumpFalse, line)
	if err := c.compileBlockExpr(e.Then, line); err != nil {
		return err
	}
	endPatches = append(endPatches, c.chunk.EmitJump(OpJump, line))
	c.chunk.PatchJump(elsePatch)

	for i := range e.Elifs {
		br := &e.Elifs[i]
		elifLine := br.Condition.Span.Line
		if err := c.compileExpr(&br.Condition); err != nil {
			return err
		}
		elifElse := c.chunk.EmitJump(OpJumpFalse, elifLine)
		if err := c.compileBlockExpr(br.Block, elifLine); err != nil {
			return err
		}
		endPatches = append(endPatches, c.chunk.EmitJump(OpJump, elifLine))
		c.chunk.PatchJump(elifElse)
	}

	if e.HasElse {
		if err := c.compileBlockExpr(e.Else, line); err != nil {
			return err
		}
	} else {
		c.chunk.Emit(OpNil, line)
	}

	for _, p := range endPatches {
		c.chunk.PatchJump(p)
	}
	return nil
}

// compileBlockExpr compiles a block in expression position: the final
// statement contributes the value when it is an expression statement,
// otherwise the block yields None.
//
// Block expressions do not open a scope of their own: locals declared
// inside extend into the enclosing scope's lifetime. Popping them here
// would need a stack rotation to keep the result on top, and the
// instruction set has none.
func (c *Compiler) compileBlockExpr(stmts []ast.Stmt, line int) error {
	if len(stmts) == 0 {
		c.chunk.Emit(OpNil, line)
		return nil
	}
	for i := range stmts[:len(stmts)-1] {
		if err := c.compileStmt(&stmts[i]); err != nil {
			return err
		}
	}
	last := &stmts[len(stmts)-1]
	if es, ok := last.Kind.(ast.ExprStmt); ok {
		return c.compileExpr(&es.Expr)
	}
	if err := c.compileStmt(last); err != nil {
		return err
	}
	c.chunk.Emit(OpNil, line)
	return nil
}

// ── Match expressions ─────────────────────────────────────────────────────

// compileMatch lowers a match to a chain of peek-only pattern checks. The
// subject occupies a hidden local slot; every arm funnels its result into
// that slot and pops its bindings, so all paths leave exactly one value.
func (c *Compiler) compileMatch(subject *ast.Expr, arms []ast.MatchArm, line int) error {
	if err := c.compileExpr(subject); err != nil {
		return err
	}

	base := len(c.locals)
	c.matchCount++
	subjSlot := c.addLocal(fmt.Sprintf("__match_%d", c.matchCount), true)

	var endPatches []int
	for i := range arms {
		arm := &arms[i]
		armLine := arm.Span.Line

		var failPatches []int
		if err := c.compilePatternCheck(arm.Pattern, &failPatches, armLine); err != nil {
			return err
		}

		// Matched: bind pattern variables, then run the body.
		armBase := len(c.locals)
		c.pushScope()
		c.compilePatternBind(arm.Pattern, armLine)
		if err := c.compileBlockExpr(arm.Body, armLine); err != nil {
			return err
		}

		// Funnel the result into the subject slot and drop the
		// bindings so every arm leaves the same stack shape.
		c.chunk.Emit(OpStoreLocal, armLine)
		c.chunk.EmitU8(uint8(subjSlot))
		popCount := len(c.locals) - armBase
		if popCount == 1 {
			c.chunk.Emit(OpPop, armLine)
		} else if popCount > 1 {
			c.chunk.Emit(OpPopN, armLine)
			c.chunk.EmitU8(uint8(popCount))
		}
		c.locals = c.locals[:armBase]
		c.scopeDepth--

		endPatches = append(endPatches, c.chunk.EmitJump(OpJump, armLine))
		for _, p := range failPatches {
			c.chunk.PatchJump(p)
		}
	}

	// No arm matched: the match evaluates to None.
	c.chunk.Emit(OpPop, line)
	c.chunk.Emit(OpNil, line)

	for _, p := range endPatches {
		c.chunk.PatchJump(p)
	}

	// The surviving value is the expression result, not a local.
	c.locals = c.locals[:base]
	return nil
}

// compilePatternCheck emits peek-only checks against the value on top of
// the stack, appending mismatch jump sites to failPatches. The subject is
// identical before and after on both the success and failure paths.
func (c *Compiler) compilePatternCheck(pat ast.Pattern, failPatches *[]int, line int) error {
	switch p := pat.(type) {
	case ast.WildcardPat, ast.IdentPat, ast.BadPat:
		// Always matches.

	case ast.LiteralPat:
		v, err := literalValue(p.Lit)
		if err != nil {
			return err
		}
		cidx := c.chunk.AddConst(v)
		offset := c.chunk.Emit(OpMatchLit, line)
		c.chunk.EmitU16(cidx)
		c.chunk.EmitI16(0)
		*failPatches = append(*failPatches, offset+3)

	case ast.ConstructorPat:
		var checkOp Op
		unwrap := false
		switch p.Name {
		case "Some":
			checkOp, unwrap = OpIsSome, true
		case "None":
			checkOp = OpIsNone
		case "Ok":
			checkOp, unwrap = OpIsOk, true
		case "Err":
			checkOp, unwrap = OpIsErr, true
		default:
			return compileErrorf("unknown constructor '%s' in pattern", p.Name)
		}
		offset := c.chunk.Emit(checkOp, line)
		c.chunk.EmitI16(0)
		*failPatches = append(*failPatches, offset+1)

		if unwrap && len(p.Inner) > 0 && !patternAlwaysMatches(p.Inner[0]) {
			// Inspect the payload on a copy, so the subject survives
			// both outcomes. Inner failures drop the copy first.
			c.chunk.Emit(OpDup, line)
			c.chunk.Emit(OpUnwrap, line)
			var innerFails []int
			if err := c.compilePatternCheck(p.Inner[0], &innerFails, line); err != nil {
				return err
			}
			c.chunk.Emit(OpPop, line)
			okJump := c.chunk.EmitJump(OpJump, line)
			for _, f := range innerFails {
				c.chunk.PatchJump(f)
			}
			c.chunk.Emit(OpPop, line)
			*failPatches = append(*failPatches, c.chunk.EmitJump(OpJump, line))
			c.chunk.PatchJump(okJump)
		}

	case ast.RangePat:
		lo, ok1 := intLiteralPattern(p.Start)
		hi, ok2 := intLiteralPattern(p.End)
		if !ok1 || !ok2 {
			return compileErrorf("range pattern requires Int literals")
		}
		loIdx := c.chunk.AddConst(IntValue(lo))
		hiIdx := c.chunk.AddConst(IntValue(hi))
		offset := c.chunk.Emit(OpMatchRange, line)
		c.chunk.EmitU16(loIdx)
		c.chunk.EmitU16(hiIdx)
		if p.Inclusive {
			c.chunk.EmitU8(1)
		} else {
			c.chunk.EmitU8(0)
		}
		c.chunk.EmitI16(0)
		*failPatches = append(*failPatches, offset+6)

	case ast.OrPat:
		// One alternative must match. Each failed alternative falls
		// through to the next; a success jumps past the rest.
		var successPatches []int
		var subFails []int
		for i, alt := range p.Alts {
			if i > 0 {
				for _, f := range subFails {
					c.chunk.PatchJump(f)
				}
				subFails = subFails[:0]
			}
			if err := c.compilePatternCheck(alt, &subFails, line); err != nil {
				return err
			}
			successPatches = append(successPatches, c.chunk.EmitJump(OpJump, line))
		}
		*failPatches = append(*failPatches, subFails...)
		for _, s := range successPatches {
			c.chunk.PatchJump(s)
		}

	default:
		return compileErrorf("unsupported pattern %T", p)
	}
	return nil
}

// patternAlwaysMatches reports whether a pattern needs no runtime check.
func patternAlwaysMatches(pat ast.Pattern) bool {
	switch pat.(type) {
	case ast.WildcardPat, ast.IdentPat, ast.BadPat:
		return true
	default:
		return false
	}
}

// compilePatternBind materialises pattern bindings. The candidate value
// is on top of the stack; every value this pushes gets a matching locals
// entry, keeping slots aligned.
func (c *Compiler) compilePatternBind(pat ast.Pattern, line int) {
	switch p := pat.(type) {
	case ast.IdentPat:
		c.chunk.Emit(OpDup, line)
		c.addLocal(p.Name, true)

	case ast.ConstructorPat:
		if len(p.Inner) == 0 || !patternHasBinders(p.Inner[0]) {
			return
		}
		switch p.Name {
		case "Some", "Ok", "Err":
			c.chunk.Emit(OpDup, line)
			c.chunk.Emit(OpUnwrap, line)
			if ident, ok := p.Inner[0].(ast.IdentPat); ok {
				// The unwrapped value is the binding itself.
				c.addLocal(ident.Name, true)
			} else {
				c.matchCount++
				c.addLocal(fmt.Sprintf("__match_%d", c.matchCount), true)
				c.compilePatternBind(p.Inner[0], line)
			}
		}
	}
}

func patternHasBinders(pat ast.Pattern) bool {
	switch p := pat.(type) {
	case ast.IdentPat:
		return true
	case ast.ConstructorPat:
		for _, inner := range p.Inner {
			if patternHasBinders(inner) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func literalValue(lit ast.ExprKind) (Value, error) {
	switch l := lit.(type) {
	case ast.IntLit:
		return IntValue(l.Value), nil
	case ast.FloatLit:
		return FloatValue(l.Value), nil
	case ast.BoolLit:
		return BoolValue(l.Value), nil
	case ast.StrLit:
		return StrValue(l.Value), nil
	case ast.NoneLit:
		return NoneValue(), nil
	default:
		return Value{}, compileErrorf("invalid literal in pattern")
	}
}

func intLiteralPattern(pat ast.Pattern) (int64, bool) {
	lit, ok := pat.(ast.LiteralPat)
	if !ok {
		return 0, false
	}
	n, ok := lit.Lit.(ast.IntLit)
	if !ok {
		return 0, false
	}
	return n.Value, true
}

// ── Loops ─────────────────────────────────────────────────────────────────

func (c *Compiler) compileWhile(condition *ast.Expr, body []ast.Stmt, line int) error {
	c.breakPatches = append(c.breakPatches, nil)
	c.continuePatches = append(c.continuePatches, nil)

	loopStart := len(c.chunk.Code)
	if err := c.compileExpr(condition); err != nil {
		return err
	}
	exitPatch := c.chunk.EmitJump(OpJumpFalse, line)

	c.pushScope()
	for i := range body {
		if err := c.compileStmt(&body[i]); err != nil {
			return err
		}
	}
	c.popScope(line)

	// continue jumps back to the condition.
	continues := c.continuePatches[len(c.continuePatches)-1]
	c.continuePatches = c.continuePatches[:len(c.continuePatches)-1]
	for _, p := range continues {
		c.chunk.patchJumpTo(p, loopStart)
	}

	c.chunk.EmitLoop(loopStart, line)
	c.chunk.PatchJump(exitPatch)

	// break jumps land after the loop.
	breaks := c.breakPatches[len(c.breakPatches)-1]
	c.breakPatches = c.breakPatches[:len(c.breakPatches)-1]
	for _, p := range breaks {
		c.chunk.PatchJump(p)
	}
	return nil
}

func (c *Compiler) compileFor(varName string, iterable *ast.Expr, body []ast.Stmt, line int) error {
	c.breakPatches = append(c.breakPatches, nil)
	c.continuePatches = append(c.continuePatches, nil)

	if err := c.compileExpr(iterable); err != nil {
		return err
	}
	c.chunk.Emit(OpIntoIter, line)

	// The iterator state lives in three hidden locals in a scope of its
	// own, so the body's scope cleanup never touches them.
	c.pushScope()

	iterSlot := c.addLocal(fmt.Sprintf("__iter_%d", len(c.locals)), true)
	// The position slot is always iterSlot+1; IterNext reads it there.
	c.addLocal(fmt.Sprintf("__pos_%d", len(c.locals)), true)
	zeroIdx := c.chunk.AddConst(IntValue(0))
	c.chunk.Emit(OpConst, line)
	c.chunk.EmitU16(zeroIdx)

	varSlot := c.addLocal(varName, true)
	c.chunk.Emit(OpNil, line) // placeholder until IterNext binds it

	loopStart := len(c.chunk.Code)

	c.chunk.Emit(OpIterNext, line)
	c.chunk.EmitU8(uint8(iterSlot))
	c.chunk.EmitU8(uint8(varSlot))
	exitJump := len(c.chunk.Code)
	c.chunk.EmitI16(0)

	c.pushScope()
	for i := range body {
		if err := c.compileStmt(&body[i]); err != nil {
			return err
		}
	}
	c.popScope(line)

	continues := c.continuePatches[len(c.continuePatches)-1]
	c.continuePatches = c.continuePatches[:len(c.continuePatches)-1]
	for _, p := range continues {
		c.chunk.patchJumpTo(p, loopStart)
	}

	c.chunk.EmitLoop(loopStart, line)
	cleanup := len(c.chunk.Code)
	c.chunk.patchJumpTo(exitJump, cleanup)

	// Drops __iter, __pos and the loop variable. break lands here too,
	// so the hidden iterator slots are always released.
	c.popScope(line)

	breaks := c.breakPatches[len(c.breakPatches)-1]
	c.breakPatches = c.breakPatches[:len(c.breakPatches)-1]
	for _, p := range breaks {
		c.chunk.patchJumpTo(p, cleanup)
	}
	return nil
}

// ── Functions ─────────────────────────────────────────────────────────────

func (c *Compiler) compileFnDef(name string, params []ast.Param, body []ast.Stmt, isAsync bool, line int) error {
	fc := newFunctionCompiler(name, c)

	arity := 0
	maxArity := 0
	for i := range params {
		if params[i].Name == "self" {
			continue
		}
		maxArity++
		if params[i].Default == nil {
			arity++
		}
	}

	// Parameters occupy slots 0..n, self first when present.
	for i := range params {
		if params[i].Name == "self" {
			fc.addLocal("self", false)
			continue
		}
		fc.addLocal(params[i].Name, true)
	}

	for i := range body {
		if err := fc.compileStmt(&body[i]); err != nil {
			return err
		}
	}
	// Guarantee termination with an implicit None return.
	fc.chunk.Emit(OpReturnNil, line)

	// Only literal defaults survive to the prototype; anything else
	// degrades to None.
	var defaults []Value
	for i := range params {
		if params[i].Default == nil {
			continue
		}
		if v, ok := constEval(params[i].Default); ok {
			defaults = append(defaults, v)
		} else {
			defaults = append(defaults, NoneValue())
		}
	}

	upvalues := make([]UpvalueDesc, len(fc.upvalues))
	for i, u := range fc.upvalues {
		upvalues[i] = UpvalueDesc{IsLocal: u.isLocal, Index: u.index}
	}

	proto := &FnProto{
		Name:     name,
		Arity:    arity,
		MaxArity: maxArity,
		Chunk:    fc.chunk,
		Upvalues: upvalues,
		Defaults: defaults,
		IsAsync:  isAsync,
	}
	protoIdx := c.chunk.AddFnProto(proto)
	c.chunk.Emit(OpMakeClosure, line)
	c.chunk.EmitU16(protoIdx)
	return nil
}

// ── Classes ───────────────────────────────────────────────────────────────

// compileClass builds the constructor closure for a class. Invoking it
// allocates the instance, initialises fields, installs each method as a
// bound field, invokes __init__ when present, and returns the instance.
func (c *Compiler) compileClass(name string, fields []ast.FieldDef, methods, impls []ast.Stmt, line int) error {
	c.ClassRegistry[name] = &ClassInfo{Fields: fields, Methods: methods}

	ctor := newFunctionCompiler(name, c)

	// The constructor's own parameters mirror __init__'s, self excluded;
	// they arrive in slots 0..n-1 like any function arguments.
	var initParams []ast.Param
	for i := range methods {
		if fn, ok := methods[i].Kind.(ast.FnDef); ok && fn.Name == "__init__" {
			for j := range fn.Params {
				if fn.Params[j].Name != "self" {
					initParams = append(initParams, fn.Params[j])
				}
			}
			break
		}
	}
	for i := range initParams {
		ctor.addLocal(initParams[i].Name, true)
	}

	nameIdx := ctor.chunk.AddName(name)
	ctor.chunk.Emit(OpMakeInstance, line)
	ctor.chunk.EmitU16(nameIdx)
	// The instance stays on the stack for the whole constructor body.
	ctor.stackTemps = 1

	// Field defaults: constant-folded literals, compiled expressions, or
	// None for undeclared defaults.
	for i := range fields {
		f := &fields[i]
		ctor.chunk.Emit(OpDup, line)
		ctor.stackTemps++
		if f.Default != nil {
			if v, ok := constEval(f.Default); ok {
				cidx := ctor.chunk.AddConst(v)
				ctor.chunk.Emit(OpConst, line)
				ctor.chunk.EmitU16(cidx)
			} else {
				if err := ctor.compileExpr(f.Default); err != nil {
					return err
				}
			}
		} else {
			ctor.chunk.Emit(OpNil, line)
		}
		fidx := ctor.chunk.AddName(f.Name)
		ctor.chunk.Emit(OpSetField, line)
		ctor.chunk.EmitU16(fidx)
		ctor.stackTemps--
	}

	// Methods become closures stored as instance fields; impl-block
	// methods merge into the same namespace.
	allMethods := make([]ast.Stmt, 0, len(methods)+len(impls))
	allMethods = append(allMethods, methods...)
	for i := range impls {
		if impl, ok := impls[i].Kind.(ast.ImplBlock); ok {
			allMethods = append(allMethods, impl.Methods...)
		} else {
			allMethods = append(allMethods, impls[i])
		}
	}
	for i := range allMethods {
		fn, ok := allMethods[i].Kind.(ast.FnDef)
		if !ok {
			continue
		}
		ctor.chunk.Emit(OpDup, line)
		if err := ctor.compileFnDef(fn.Name, fn.Params, fn.Body, fn.IsAsync, line); err != nil {
			return err
		}
		midx := ctor.chunk.AddName(fn.Name)
		ctor.chunk.Emit(OpSetField, line)
		ctor.chunk.EmitU16(midx)
	}

	arity := 0
	for i := range initParams {
		if initParams[i].Default == nil {
			arity++
		}
	}
	maxArity := len(initParams)

	if len(initParams) > 0 {
		// Receiver, then the constructor arguments from slots 0..n.
		ctor.chunk.Emit(OpDup, line)
		for i := range initParams {
			ctor.chunk.Emit(OpLoadLocal, line)
			ctor.chunk.EmitU8(uint8(i))
		}
		initIdx := ctor.chunk.AddName("__init__")
		ctor.chunk.Emit(OpCallMethod, line)
		ctor.chunk.EmitU16(initIdx)
		ctor.chunk.EmitU8(uint8(len(initParams)))
		ctor.chunk.Emit(OpPop, line)
	}

	ctor.chunk.Emit(OpReturn, line)

	proto := &FnProto{
		Name:     name,
		Arity:    arity,
		MaxArity: maxArity,
		Chunk:    ctor.chunk,
	}
	closure := ClosureValue(&Closure{Proto: proto})
	idx := c.chunk.AddConst(closure)
	c.chunk.Emit(OpConst, line)
	c.chunk.EmitU16(idx)
	c.defineVar(name, false, line)
	return nil
}

// ── F-strings ─────────────────────────────────────────────────────────────

// compileFString splits the raw template into literal and expression
// segments. {{ and }} escape literal braces; each embedded expression is
// re-parsed with the full parser and stringified with ToStr. BuildStr
// joins the segments.
func (c *Compiler) compileFString(template string, line int) error {
	chars := []rune(template)
	segments := 0
	var literal []rune

	flushLiteral := func() {
		if len(literal) == 0 {
			return
		}
		cidx := c.chunk.AddConst(StrValue(string(literal)))
		c.chunk.Emit(OpConst, line)
		c.chunk.EmitU16(cidx)
		literal = literal[:0]
		segments++
		c.stackTemps++
	}

	i := 0
	for i < len(chars) {
		switch {
		case chars[i] == '{' && i+1 < len(chars) && chars[i+1] == '{':
			literal = append(literal, '{')
			i += 2
		case chars[i] == '}' && i+1 < len(chars) && chars[i+1] == '}':
			literal = append(literal, '}')
			i += 2
		case chars[i] == '{':
			flushLiteral()
			start := i + 1
			depth := 1
			j := start
			for j < len(chars) && depth > 0 {
				switch chars[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			exprSrc := string(chars[start : j-1])
			program, _, _ := parser.Parse(exprSrc)
			if len(program.Stmts) > 0 {
				if es, ok := program.Stmts[0].Kind.(ast.ExprStmt); ok {
					if err := c.compileExpr(&es.Expr); err != nil {
						return err
					}
					c.chunk.Emit(OpToStr, line)
					segments++
					c.stackTemps++
				}
			}
			i = j
		default:
			literal = append(literal, chars[i])
			i++
		}
	}
	flushLiteral()

	c.chunk.Emit(OpBuildStr, line)
	c.chunk.EmitU16(uint16(segments))
	c.stackTemps -= segments
	return nil
}

// constEval folds literal expressions into values at compile time.
func constEval(expr *ast.Expr) (Value, bool) {
	switch e := expr.Kind.(type) {
	case ast.IntLit:
		return IntValue(e.Value), true
	case ast.FloatLit:
		return FloatValue(e.Value), true
	case ast.BoolLit:
		return BoolValue(e.Value), true
	case ast.StrLit:
		return StrValue(e.Value), true
	case ast.NoneLit:
		return NoneValue(), true
	default:
		return Value{}, false
	}
}
