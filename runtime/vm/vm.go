package vm

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/sfenos/neba/runtime/parser"
)

const (
	// StackMax bounds the value stack.
	StackMax = 4096
	// FramesMax bounds call depth; exceeding it raises StackOverflow.
	FramesMax = 256
)

// callFrame is one in-progress function invocation.
type callFrame struct {
	chunk *Chunk
	ip    int
	// base indexes the value stack where this frame's local slot 0 lives.
	base     int
	name     string
	upvalues []Value
}

type globalSlot struct {
	value   Value
	mutable bool
}

// VM executes compiled chunks on a value stack and a call-frame stack.
// IO used by the built-ins is redirectable for embedding and tests.
type VM struct {
	stack   []Value
	frames  []callFrame
	globals map[string]globalSlot

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	logger *slog.Logger
}

// New creates a VM with the standard library registered.
func New() *VM {
	logLevel := slog.LevelInfo
	if os.Getenv("NEBA_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	vm := &VM{
		stack:   make([]Value, 0, 256),
		frames:  make([]callFrame, 0, FramesMax),
		globals: make(map[string]globalSlot),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Stdin:   os.Stdin,
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})),
	}
	vm.registerGlobals()
	return vm
}

// Run compiles nothing: it executes an already-compiled chunk and returns
// the script result. On a runtime error the traceback is written to
// Stderr and the stacks are cleared.
func (vm *VM) Run(chunk *Chunk) (Value, error) {
	vm.frames = append(vm.frames, callFrame{chunk: chunk, name: "<script>"})
	vm.logger.Debug("executing chunk", "code_bytes", len(chunk.Code), "constants", len(chunk.Constants))

	result, err := vm.dispatch()
	if err != nil {
		fmt.Fprint(vm.Stderr, vm.buildTrace())
		vm.frames = vm.frames[:0]
		vm.stack = vm.stack[:0]
		return Value{}, err
	}
	vm.frames = vm.frames[:0]
	vm.stack = vm.stack[:0]
	return result, nil
}

// RunSource lexes, parses, compiles and executes source. Lex and parse
// errors refuse compilation; only the first of them is returned, as a
// compile error.
func RunSource(source string) (Value, error) {
	vm := New()
	return vm.Interpret(source)
}

// Interpret runs source on this VM, keeping its globals across calls
// (the REPL depends on that).
func (vm *VM) Interpret(source string) (Value, error) {
	program, lexErrs, parseErrs := parser.Parse(source)
	if len(lexErrs) > 0 {
		return Value{}, compileErrorf("%s", lexErrs[0].Error())
	}
	if len(parseErrs) > 0 {
		return Value{}, compileErrorf("%s", parseErrs[0].Error())
	}
	chunk, err := Compile(program)
	if err != nil {
		return Value{}, err
	}
	return vm.Run(chunk)
}

// CompileSource is the front half of Interpret: it stops after
// compilation, reporting the first lex/parse error if any.
func CompileSource(source string) (*Chunk, error) {
	program, lexErrs, parseErrs := parser.Parse(source)
	if len(lexErrs) > 0 {
		return nil, compileErrorf("%s", lexErrs[0].Error())
	}
	if len(parseErrs) > 0 {
		return nil, compileErrorf("%s", parseErrs[0].Error())
	}
	return Compile(program)
}

// buildTrace renders the active frames newest first.
func (vm *VM) buildTrace() string {
	var out strings.Builder
	out.WriteString("Traceback:\n")
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		ip := f.ip
		if ip > 0 {
			ip--
		}
		fmt.Fprintf(&out, "  at %s (line %d)\n", f.name, f.chunk.LineAt(ip))
	}
	return out.String()
}

// ── Stack helpers ─────────────────────────────────────────────────────────

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() Value {
	return vm.stack[len(vm.stack)-1]
}

// ── Dispatch ──────────────────────────────────────────────────────────────

func (vm *VM) dispatch() (Value, error) {
	for {
		frame := &vm.frames[len(vm.frames)-1]
		code := frame.chunk.Code
		chunk := frame.chunk

		op := Op(code[frame.ip])
		frame.ip++

		readU8 := func() uint8 {
			b := code[frame.ip]
			frame.ip++
			return b
		}
		readU16 := func() uint16 {
			v := ReadU16(code, frame.ip)
			frame.ip += 2
			return v
		}
		readI16 := func() int16 {
			v := ReadI16(code, frame.ip)
			frame.ip += 2
			return v
		}

		switch op {
		// ── Constants ─────────────────────────────────────────────────
		case OpConst:
			idx := readU16()
			vm.push(chunk.Constants[idx])
		case OpTrue:
			vm.push(BoolValue(true))
		case OpFalse:
			vm.push(BoolValue(false))
		case OpNil:
			vm.push(NoneValue())

		// ── Stack ─────────────────────────────────────────────────────
		case OpPop:
			vm.pop()
		case OpDup:
			vm.push(vm.peek())
		case OpPopN:
			n := int(readU8())
			vm.stack = vm.stack[:len(vm.stack)-n]

		// ── Locals ────────────────────────────────────────────────────
		case OpLoadLocal:
			idx := int(readU8())
			vm.push(vm.stack[frame.base+idx])
		case OpStoreLocal:
			idx := int(readU8())
			vm.stack[frame.base+idx] = vm.pop()

		// ── Upvalues ──────────────────────────────────────────────────
		case OpLoadUpval:
			idx := int(readU8())
			vm.push(frame.upvalues[idx])
		case OpStoreUpval:
			idx := int(readU8())
			frame.upvalues[idx] = vm.pop()

		// ── Globals ───────────────────────────────────────────────────
		case OpLoadGlobal:
			idx := int(readU16())
			name := chunk.Names[idx]
			slot, ok := vm.globals[name]
			if !ok {
				return Value{}, &Error{Kind: ErrUndefinedVariable, Name: name}
			}
			vm.push(slot.value)
		case OpStoreGlobal:
			idx := int(readU16())
			name := chunk.Names[idx]
			v := vm.pop()
			slot, ok := vm.globals[name]
			if !ok {
				return Value{}, &Error{Kind: ErrUndefinedVariable, Name: name}
			}
			if !slot.mutable {
				return Value{}, &Error{Kind: ErrAssignImmutable, Name: name}
			}
			vm.globals[name] = globalSlot{value: v, mutable: true}
		case OpDefGlobal:
			idx := int(readU16())
			mutable := readU8() != 0
			name := chunk.Names[idx]
			vm.globals[name] = globalSlot{value: vm.pop(), mutable: mutable}

		// ── Arithmetic ────────────────────────────────────────────────
		case OpAdd:
			r, l := vm.pop(), vm.pop()
			v, err := opAdd(l, r)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpSub:
			r, l := vm.pop(), vm.pop()
			v, err := numericOp(l, r, "-",
				func(a, b int64) int64 { return a - b },
				func(a, b float64) float64 { return a - b })
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpMul:
			r, l := vm.pop(), vm.pop()
			v, err := opMul(l, r)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpDiv:
			r, l := vm.pop(), vm.pop()
			v, err := opDiv(l, r)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpIntDiv:
			r, l := vm.pop(), vm.pop()
			v, err := opIntDiv(l, r)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpMod:
			r, l := vm.pop(), vm.pop()
			v, err := opMod(l, r)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpPow:
			r, l := vm.pop(), vm.pop()
			v, err := opPow(l, r)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpNeg:
			v := vm.pop()
			switch v.Kind {
			case KindInt:
				vm.push(IntValue(-v.Int))
			case KindFloat:
				vm.push(FloatValue(-v.Float))
			default:
				return Value{}, typeErrorf("unary '-' on %s", v.TypeName())
			}

		// ── Bitwise ───────────────────────────────────────────────────
		case OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
			r, l := vm.pop(), vm.pop()
			v, err := opBit(l, r, op)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)
		case OpBitNot:
			v := vm.pop()
			if v.Kind != KindInt {
				return Value{}, typeErrorf("'~' on %s", v.TypeName())
			}
			vm.push(IntValue(^v.Int))

		// ── Comparison ────────────────────────────────────────────────
		case OpEq:
			r, l := vm.pop(), vm.pop()
			vm.push(BoolValue(Equal(l, r)))
		case OpNe:
			r, l := vm.pop(), vm.pop()
			vm.push(BoolValue(!Equal(l, r)))
		case OpLt, OpLe, OpGt, OpGe:
			r, l := vm.pop(), vm.pop()
			cmp, ok := Compare(l, r)
			if !ok {
				return Value{}, typeErrorf("cannot order %s and %s", l.TypeName(), r.TypeName())
			}
			var res bool
			switch op {
			case OpLt:
				res = cmp < 0
			case OpLe:
				res = cmp <= 0
			case OpGt:
				res = cmp > 0
			case OpGe:
				res = cmp >= 0
			}
			vm.push(BoolValue(res))

		// ── Logic ─────────────────────────────────────────────────────
		case OpNot:
			vm.push(BoolValue(!vm.pop().IsTruthy()))

		// ── Jumps ─────────────────────────────────────────────────────
		case OpJump:
			offset := readI16()
			frame.ip += int(offset)
		case OpJumpFalse:
			offset := readI16()
			if !vm.pop().IsTruthy() {
				frame.ip += int(offset)
			}
		case OpJumpTrue:
			offset := readI16()
			if vm.pop().IsTruthy() {
				frame.ip += int(offset)
			}
		case OpJumpFalsePeek:
			offset := readI16()
			if !vm.peek().IsTruthy() {
				frame.ip += int(offset)
			}
		case OpJumpTruePeek:
			offset := readI16()
			if vm.peek().IsTruthy() {
				frame.ip += int(offset)
			}

		// ── Functions ─────────────────────────────────────────────────
		case OpMakeClosure:
			idx := int(readU16())
			proto := chunk.FnProtos[idx]
			var ups []Value
			if len(proto.Upvalues) > 0 {
				// Snapshot capture: copy the referenced slots now.
				ups = make([]Value, len(proto.Upvalues))
				for i, d := range proto.Upvalues {
					if d.IsLocal {
						ups[i] = vm.stack[frame.base+int(d.Index)]
					} else {
						ups[i] = frame.upvalues[d.Index]
					}
				}
			}
			vm.push(ClosureValue(&Closure{Proto: proto, Upvalues: ups}))

		case OpCall:
			argc := int(readU8())
			if err := vm.callValue(argc); err != nil {
				return Value{}, err
			}

		case OpCallMethod:
			nameIdx := int(readU16())
			argc := int(readU8())
			name := chunk.Names[nameIdx]
			if err := vm.callMethod(name, argc); err != nil {
				return Value{}, err
			}

		case OpReturn:
			result := vm.pop()
			done, err := vm.returnValue(result)
			if err != nil {
				return Value{}, err
			}
			if done {
				return result, nil
			}

		case OpReturnNil:
			done, err := vm.returnValue(NoneValue())
			if err != nil {
				return Value{}, err
			}
			if done {
				return NoneValue(), nil
			}

		// ── Collections ───────────────────────────────────────────────
		case OpMakeArray:
			count := int(readU16())
			start := len(vm.stack) - count
			elems := make([]Value, count)
			copy(elems, vm.stack[start:])
			vm.stack = vm.stack[:start]
			vm.push(ArrayValue(elems))

		case OpGetIndex:
			idx := vm.pop()
			obj := vm.pop()
			v, err := evalIndex(obj, idx)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)

		case OpSetIndex:
			val := vm.pop()
			idx := vm.pop()
			obj := vm.pop()
			if obj.Kind != KindArray || idx.Kind != KindInt {
				return Value{}, typeErrorf("index assignment requires Array")
			}
			i, err := resolveIdx(idx.Int, len(obj.Array.Elems))
			if err != nil {
				return Value{}, err
			}
			obj.Array.Elems[i] = val

		case OpMakeRange:
			inclusive := readU8() != 0
			end := vm.pop()
			start := vm.pop()
			if start.Kind != KindInt || end.Kind != KindInt {
				return Value{}, typeErrorf("range bounds must be Int")
			}
			hi := end.Int
			if inclusive {
				hi++
			}
			var elems []Value
			for i := start.Int; i < hi; i++ {
				elems = append(elems, IntValue(i))
			}
			vm.push(ArrayValue(elems))

		// ── Classes / instances ───────────────────────────────────────
		case OpGetField:
			idx := int(readU16())
			name := chunk.Names[idx]
			obj := vm.pop()
			v, err := getField(obj, name)
			if err != nil {
				return Value{}, err
			}
			vm.push(v)

		case OpSetField:
			idx := int(readU16())
			name := chunk.Names[idx]
			val := vm.pop()
			obj := vm.pop()
			if obj.Kind != KindInstance {
				return Value{}, typeErrorf("cannot set field on %s", obj.TypeName())
			}
			obj.Instance.Fields[name] = val

		case OpMakeInstance:
			idx := int(readU16())
			className := chunk.Names[idx]
			vm.push(InstanceValue(NewInstance(className)))

		// ── Option / Result ───────────────────────────────────────────
		case OpMakeSome:
			vm.push(SomeValue(vm.pop()))
		case OpMakeOk:
			vm.push(OkValue(vm.pop()))
		case OpMakeErr:
			vm.push(ErrValue(vm.pop()))

		// ── Membership ────────────────────────────────────────────────
		case OpIn:
			haystack := vm.pop()
			needle := vm.pop()
			found, err := evalIn(needle, haystack)
			if err != nil {
				return Value{}, err
			}
			vm.push(BoolValue(found))
		case OpNotIn:
			haystack := vm.pop()
			needle := vm.pop()
			found, err := evalIn(needle, haystack)
			if err != nil {
				return Value{}, err
			}
			vm.push(BoolValue(!found))
		case OpIs:
			r, l := vm.pop(), vm.pop()
			vm.push(BoolValue(l.Kind == r.Kind))

		// ── Pattern matching helpers ──────────────────────────────────
		case OpIsSome:
			offset := readI16()
			if vm.peek().Kind != KindSome {
				frame.ip += int(offset)
			}
		case OpIsNone:
			offset := readI16()
			if vm.peek().Kind != KindNone {
				frame.ip += int(offset)
			}
		case OpIsOk:
			offset := readI16()
			if vm.peek().Kind != KindOk {
				frame.ip += int(offset)
			}
		case OpIsErr:
			offset := readI16()
			if vm.peek().Kind != KindErr {
				frame.ip += int(offset)
			}
		case OpUnwrap:
			v := vm.pop()
			switch v.Kind {
			case KindSome, KindOk, KindErr:
				vm.push(*v.Inner)
			default:
				return Value{}, typeErrorf("cannot unwrap %s", v.TypeName())
			}
		case OpMatchLit:
			cidx := int(readU16())
			offset := readI16()
			if !Equal(vm.peek(), chunk.Constants[cidx]) {
				frame.ip += int(offset)
			}
		case OpMatchRange:
			loIdx := int(readU16())
			hiIdx := int(readU16())
			incl := readU8() != 0
			offset := readI16()
			lo := chunk.Constants[loIdx]
			hi := chunk.Constants[hiIdx]
			if lo.Kind != KindInt || hi.Kind != KindInt {
				return Value{}, typeErrorf("range pattern needs Int")
			}
			matched := false
			if subject := vm.peek(); subject.Kind == KindInt {
				if incl {
					matched = subject.Int >= lo.Int && subject.Int <= hi.Int
				} else {
					matched = subject.Int >= lo.Int && subject.Int < hi.Int
				}
			}
			if !matched {
				frame.ip += int(offset)
			}

		// ── Iteration ─────────────────────────────────────────────────
		case OpIntoIter:
			v := vm.pop()
			switch v.Kind {
			case KindArray:
				vm.push(v)
			case KindStr:
				runes := []rune(v.Str)
				elems := make([]Value, len(runes))
				for i, r := range runes {
					elems[i] = StrValue(string(r))
				}
				vm.push(ArrayValue(elems))
			default:
				return Value{}, typeErrorf("'%s' is not iterable", v.TypeName())
			}

		case OpIterNext:
			iterSlot := int(readU8())
			varSlot := int(readU8())
			offset := readI16()
			posSlot := iterSlot + 1

			pos := 0
			if p := vm.stack[frame.base+posSlot]; p.Kind == KindInt {
				pos = int(p.Int)
			}
			arrVal := vm.stack[frame.base+iterSlot]
			if arrVal.Kind != KindArray {
				return Value{}, typeErrorf("iteration state is not an array")
			}
			elems := arrVal.Array.Elems
			if pos >= len(elems) {
				frame.ip += int(offset)
			} else {
				vm.stack[frame.base+varSlot] = elems[pos]
				vm.stack[frame.base+posSlot] = IntValue(int64(pos + 1))
			}

		// ── F-strings ─────────────────────────────────────────────────
		case OpBuildStr:
			n := int(readU16())
			start := len(vm.stack) - n
			var sb strings.Builder
			for _, v := range vm.stack[start:] {
				sb.WriteString(v.String())
			}
			vm.stack = vm.stack[:start]
			vm.push(StrValue(sb.String()))
		case OpToStr:
			vm.push(StrValue(vm.pop().String()))

		// ── Misc ──────────────────────────────────────────────────────
		case OpNop:
		case OpHalt:
			if len(vm.stack) == 0 {
				return NoneValue(), nil
			}
			return vm.pop(), nil

		default:
			return Value{}, genericErrorf("bad opcode %d", byte(op))
		}

		if len(vm.stack) > StackMax {
			return Value{}, &Error{Kind: ErrStackOverflow}
		}
	}
}

// ── Calls ─────────────────────────────────────────────────────────────────

// callValue implements Call argc: the callee sits beneath the arguments.
func (vm *VM) callValue(argc int) error {
	if len(vm.frames) >= FramesMax {
		return &Error{Kind: ErrStackOverflow}
	}
	fnIdx := len(vm.stack) - argc - 1
	callee := vm.stack[fnIdx]

	switch callee.Kind {
	case KindNative:
		args := make([]Value, argc)
		copy(args, vm.stack[fnIdx+1:])
		vm.stack = vm.stack[:fnIdx]
		result, err := callee.Native.Fn(args)
		if err != nil {
			return genericErrorf("%s", err.Error())
		}
		vm.push(result)
		return nil

	case KindClosure:
		proto := callee.Closure.Proto
		if argc < proto.Arity || argc > proto.MaxArity {
			return &Error{Kind: ErrArityMismatch, Name: proto.Name, Expected: proto.Arity, Got: argc}
		}
		vm.pushDefaults(proto, argc)
		vm.stack[fnIdx] = NoneValue()
		vm.frames = append(vm.frames, callFrame{
			chunk:    proto.Chunk,
			base:     fnIdx + 1,
			name:     proto.Name,
			upvalues: callee.Closure.Upvalues,
		})
		return nil

	default:
		return &Error{Kind: ErrNotCallable, Name: callee.TypeName()}
	}
}

// callMethod implements CallMethod name argc: the receiver sits beneath
// the arguments, the method is looked up as an instance field, and the
// receiver is inserted as the implicit first argument.
func (vm *VM) callMethod(name string, argc int) error {
	if len(vm.frames) >= FramesMax {
		return &Error{Kind: ErrStackOverflow}
	}
	objIdx := len(vm.stack) - argc - 1
	obj := vm.stack[objIdx]

	if obj.Kind != KindInstance {
		return &Error{Kind: ErrUnknownField, Name: obj.TypeName(), Field: name}
	}
	method, ok := obj.Instance.Fields[name]
	if !ok {
		return &Error{Kind: ErrUnknownField, Name: obj.Instance.ClassName, Field: name}
	}

	// Insert self before the arguments.
	vm.stack = append(vm.stack, Value{})
	copy(vm.stack[objIdx+2:], vm.stack[objIdx+1:])
	vm.stack[objIdx+1] = obj

	switch method.Kind {
	case KindClosure:
		proto := method.Closure.Proto
		// Arity excludes self; the check uses the caller's argc.
		if argc < proto.Arity || argc > proto.MaxArity {
			return &Error{Kind: ErrArityMismatch, Name: proto.Name, Expected: proto.Arity, Got: argc}
		}
		vm.pushDefaults(proto, argc)
		vm.stack[objIdx] = NoneValue()
		vm.frames = append(vm.frames, callFrame{
			chunk:    proto.Chunk,
			base:     objIdx + 1,
			name:     proto.Name,
			upvalues: method.Closure.Upvalues,
		})
		return nil

	case KindNative:
		args := make([]Value, len(vm.stack)-objIdx-1)
		copy(args, vm.stack[objIdx+1:])
		vm.stack = vm.stack[:objIdx]
		result, err := method.Native.Fn(args)
		if err != nil {
			return genericErrorf("%s", err.Error())
		}
		vm.push(result)
		return nil

	default:
		return &Error{Kind: ErrNotCallable, Name: method.TypeName()}
	}
}

// pushDefaults appends default values for missing trailing arguments.
func (vm *VM) pushDefaults(proto *FnProto, argc int) {
	missing := proto.MaxArity - argc
	for i := 0; i < missing; i++ {
		defIdx := len(proto.Defaults) - missing + i
		if defIdx >= 0 && defIdx < len(proto.Defaults) {
			vm.push(proto.Defaults[defIdx])
		} else {
			vm.push(NoneValue())
		}
	}
}

// returnValue pops the current frame, releases its stack window and
// pushes the result. done reports that the outermost frame returned.
func (vm *VM) returnValue(result Value) (bool, error) {
	frame := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	if frame.base == 0 {
		// Return at script top level ends the run.
		vm.stack = vm.stack[:0]
		vm.push(result)
		return true, nil
	}
	vm.stack = vm.stack[:frame.base-1]
	vm.push(result)
	return len(vm.frames) == 0, nil
}

// ── Operators ─────────────────────────────────────────────────────────────

func opAdd(l, r Value) (Value, error) {
	if l.Kind == KindStr && r.Kind == KindStr {
		return StrValue(l.Str + r.Str), nil
	}
	return numericOp(l, r, "+",
		func(a, b int64) int64 { return a + b },
		func(a, b float64) float64 { return a + b })
}

func opMul(l, r Value) (Value, error) {
	// String repetition; a negative count yields the empty string.
	if l.Kind == KindStr && r.Kind == KindInt {
		return StrValue(strings.Repeat(l.Str, int(max64(r.Int, 0)))), nil
	}
	if l.Kind == KindInt && r.Kind == KindStr {
		return StrValue(strings.Repeat(r.Str, int(max64(l.Int, 0)))), nil
	}
	return numericOp(l, r, "*",
		func(a, b int64) int64 { return a * b },
		func(a, b float64) float64 { return a * b })
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// numericOp applies an arithmetic operator with Int/Float promotion.
func numericOp(l, r Value, opName string, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (Value, error) {
	if l.Kind == KindInt && r.Kind == KindInt {
		return IntValue(intOp(l.Int, r.Int)), nil
	}
	lf, lok := l.AsFloat()
	rf, rok := r.AsFloat()
	if lok && rok {
		return FloatValue(floatOp(lf, rf)), nil
	}
	return Value{}, typeErrorf("'%s' between %s and %s", opName, l.TypeName(), r.TypeName())
}

// opDiv always yields Float.
func opDiv(l, r Value) (Value, error) {
	rf, ok := r.AsFloat()
	if !ok {
		return Value{}, typeErrorf("'/' on %s", r.TypeName())
	}
	if rf == 0 {
		return Value{}, &Error{Kind: ErrDivisionByZero}
	}
	lf, ok := l.AsFloat()
	if !ok {
		return Value{}, typeErrorf("'/' on %s", l.TypeName())
	}
	return FloatValue(lf / rf), nil
}

// opIntDiv yields Int for Int operands, the floored Float otherwise.
func opIntDiv(l, r Value) (Value, error) {
	if r.Kind == KindInt && r.Int == 0 {
		return Value{}, &Error{Kind: ErrDivisionByZero}
	}
	if l.Kind == KindInt && r.Kind == KindInt {
		return IntValue(l.Int / r.Int), nil
	}
	lf, lok := l.AsFloat()
	rf, rok := r.AsFloat()
	if !lok || !rok {
		return Value{}, typeErrorf("'//' between %s and %s", l.TypeName(), r.TypeName())
	}
	if rf == 0 {
		return Value{}, &Error{Kind: ErrDivisionByZero}
	}
	return FloatValue(math.Floor(lf / rf)), nil
}

func opMod(l, r Value) (Value, error) {
	if r.Kind == KindInt && r.Int == 0 {
		return Value{}, &Error{Kind: ErrDivisionByZero}
	}
	if l.Kind == KindInt && r.Kind == KindInt {
		return IntValue(l.Int % r.Int), nil
	}
	lf, lok := l.AsFloat()
	rf, rok := r.AsFloat()
	if !lok || !rok {
		return Value{}, typeErrorf("'%%' between %s and %s", l.TypeName(), r.TypeName())
	}
	if rf == 0 {
		return Value{}, &Error{Kind: ErrDivisionByZero}
	}
	return FloatValue(math.Mod(lf, rf)), nil
}

// opPow keeps Int for non-negative Int exponents, Float otherwise.
func opPow(l, r Value) (Value, error) {
	if l.Kind == KindInt && r.Kind == KindInt && r.Int >= 0 {
		return IntValue(intPow(l.Int, r.Int)), nil
	}
	lf, lok := l.AsFloat()
	rf, rok := r.AsFloat()
	if !lok || !rok {
		return Value{}, typeErrorf("'**' on non-numeric")
	}
	return FloatValue(math.Pow(lf, rf)), nil
}

// intPow is exponentiation by squaring with two's-complement wrap.
func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func opBit(l, r Value, op Op) (Value, error) {
	if l.Kind != KindInt || r.Kind != KindInt {
		var name string
		switch op {
		case OpBitAnd:
			name = "&"
		case OpBitOr:
			name = "|"
		case OpBitXor:
			name = "^"
		case OpShl:
			name = "<<"
		default:
			name = ">>"
		}
		return Value{}, typeErrorf("'%s' requires Int", name)
	}
	switch op {
	case OpBitAnd:
		return IntValue(l.Int & r.Int), nil
	case OpBitOr:
		return IntValue(l.Int | r.Int), nil
	case OpBitXor:
		return IntValue(l.Int ^ r.Int), nil
	case OpShl:
		return IntValue(l.Int << uint64(r.Int)), nil
	default:
		return IntValue(l.Int >> uint64(r.Int)), nil
	}
}

// ── Field and index access ────────────────────────────────────────────────

// getField reads a field. Arrays and strings expose len; everything else
// requires an instance.
func getField(obj Value, field string) (Value, error) {
	switch obj.Kind {
	case KindInstance:
		if v, ok := obj.Instance.Fields[field]; ok {
			return v, nil
		}
		return Value{}, &Error{Kind: ErrUnknownField, Name: obj.Instance.ClassName, Field: field}
	case KindArray:
		if field == "len" {
			return IntValue(int64(len(obj.Array.Elems))), nil
		}
		return Value{}, &Error{Kind: ErrUnknownField, Name: "Array", Field: field}
	case KindStr:
		if field == "len" {
			return IntValue(int64(len([]rune(obj.Str)))), nil
		}
		return Value{}, &Error{Kind: ErrUnknownField, Name: "Str", Field: field}
	default:
		return Value{}, &Error{Kind: ErrUnknownField, Name: obj.TypeName(), Field: field}
	}
}

func evalIndex(obj, idx Value) (Value, error) {
	if idx.Kind != KindInt {
		return Value{}, typeErrorf("index must be Int")
	}
	switch obj.Kind {
	case KindArray:
		i, err := resolveIdx(idx.Int, len(obj.Array.Elems))
		if err != nil {
			return Value{}, err
		}
		return obj.Array.Elems[i], nil
	case KindStr:
		runes := []rune(obj.Str)
		i, err := resolveIdx(idx.Int, len(runes))
		if err != nil {
			return Value{}, err
		}
		return StrValue(string(runes[i])), nil
	default:
		return Value{}, typeErrorf("cannot index %s", obj.TypeName())
	}
}

// resolveIdx maps a possibly-negative index into 0..len-1.
func resolveIdx(i int64, length int) (int, error) {
	a := i
	if a < 0 {
		a = int64(length) + a
	}
	if a < 0 || a >= int64(length) {
		return 0, &Error{Kind: ErrIndexOutOfBounds, Index: i, Len: length}
	}
	return int(a), nil
}

func evalIn(needle, haystack Value) (bool, error) {
	switch haystack.Kind {
	case KindArray:
		for _, v := range haystack.Array.Elems {
			if Equal(v, needle) {
				return true, nil
			}
		}
		return false, nil
	case KindStr:
		if needle.Kind != KindStr {
			return false, nil
		}
		return strings.Contains(haystack.Str, needle.Str), nil
	default:
		return false, typeErrorf("'in' on %s", haystack.TypeName())
	}
}

