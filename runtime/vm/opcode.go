package vm

// Op is a bytecode instruction. Each instruction is one opcode byte
// followed by 0-7 bytes of operands in the fixed widths below:
//
//	[u8]  one byte
//	[u16] two bytes, little-endian
//	[i16] two bytes, little-endian signed (jump offset, relative to the
//	      byte immediately after the offset)
type Op byte

const (
	// ── Constants ─────────────────────────────────────────────────────────

	// OpConst [u16] pushes constants[idx].
	OpConst Op = iota
	// OpTrue pushes true.
	OpTrue
	// OpFalse pushes false.
	OpFalse
	// OpNil pushes None.
	OpNil

	// ── Stack ─────────────────────────────────────────────────────────────

	// OpPop discards the top of the stack.
	OpPop
	// OpDup duplicates the top of the stack.
	OpDup
	// OpPopN [u8] discards N values (block cleanup).
	OpPopN

	// ── Local variables ───────────────────────────────────────────────────

	// OpLoadLocal [u8] pushes the frame local at the slot.
	OpLoadLocal
	// OpStoreLocal [u8] pops into the frame local at the slot.
	OpStoreLocal

	// ── Upvalues (closures) ───────────────────────────────────────────────

	// OpLoadUpval [u8] pushes the captured upvalue.
	OpLoadUpval
	// OpStoreUpval [u8] pops into the captured upvalue.
	OpStoreUpval

	// ── Global variables ──────────────────────────────────────────────────

	// OpLoadGlobal [u16] pushes globals[names[idx]].
	OpLoadGlobal
	// OpStoreGlobal [u16] pops into globals[names[idx]].
	OpStoreGlobal
	// OpDefGlobal [u16] [u8:mutable] defines a new global from the top.
	OpDefGlobal

	// ── Arithmetic ────────────────────────────────────────────────────────

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIntDiv
	OpMod
	OpPow
	// OpNeg is unary negation.
	OpNeg

	// ── Bitwise ───────────────────────────────────────────────────────────

	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr

	// ── Comparison ────────────────────────────────────────────────────────

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// ── Logic ─────────────────────────────────────────────────────────────

	// OpNot is boolean negation by truthiness.
	OpNot

	// ── Jumps ─────────────────────────────────────────────────────────────

	// OpJump [i16] jumps unconditionally.
	OpJump
	// OpJumpFalse [i16] pops; jumps when falsy.
	OpJumpFalse
	// OpJumpTrue [i16] pops; jumps when truthy.
	OpJumpTrue
	// OpJumpFalsePeek [i16] peeks; jumps when falsy (short-circuit and).
	OpJumpFalsePeek
	// OpJumpTruePeek [i16] peeks; jumps when truthy (short-circuit or).
	OpJumpTruePeek

	// ── Functions ─────────────────────────────────────────────────────────

	// OpMakeClosure [u16] builds a Closure from fnProtos[idx], snapshotting
	// the upvalues its prototype describes.
	OpMakeClosure
	// OpCall [u8:argc] calls the value beneath the argc arguments.
	OpCall
	// OpCallMethod [u16:name] [u8:argc] calls obj.name(args), inserting the
	// receiver as the implicit first argument.
	OpCallMethod
	// OpReturn returns the top of the stack to the caller.
	OpReturn
	// OpReturnNil returns None to the caller.
	OpReturnNil

	// ── Collections ───────────────────────────────────────────────────────

	// OpMakeArray [u16:count] pops count items and pushes an Array.
	OpMakeArray
	// OpGetIndex pops idx, pops obj, pushes obj[idx].
	OpGetIndex
	// OpSetIndex pops val, idx, obj and assigns obj[idx] = val.
	OpSetIndex
	// OpMakeRange [u8:inclusive] pops end and start, pushes an Int array.
	OpMakeRange

	// ── Classes / instances ───────────────────────────────────────────────

	// OpGetField [u16:name] pops obj, pushes obj.field.
	OpGetField
	// OpSetField [u16:name] pops val and obj, assigns obj.field = val.
	OpSetField
	// OpMakeInstance [u16:class_name] pushes a fresh empty instance.
	OpMakeInstance

	// ── Option / Result ───────────────────────────────────────────────────

	OpMakeSome
	OpMakeOk
	OpMakeErr

	// ── Membership ────────────────────────────────────────────────────────

	OpIn
	OpNotIn
	OpIs

	// ── Pattern matching helpers (peek the subject, jump on mismatch) ─────

	// OpIsSome [i16] jumps unless the top is Some.
	OpIsSome
	// OpIsNone [i16] jumps unless the top is None.
	OpIsNone
	// OpIsOk [i16] jumps unless the top is Ok.
	OpIsOk
	// OpIsErr [i16] jumps unless the top is Err.
	OpIsErr
	// OpUnwrap pops Some/Ok/Err(v) and pushes v.
	OpUnwrap
	// OpMatchLit [u16:const] [i16] jumps unless the top equals the constant.
	OpMatchLit
	// OpMatchRange [u16:lo] [u16:hi] [u8:incl] [i16] jumps unless the top is
	// an Int inside the constant bounds.
	OpMatchRange

	// ── Iteration ─────────────────────────────────────────────────────────

	// OpIntoIter converts the top into an iterable array.
	OpIntoIter
	// OpIterNext [u8:iter_local] [u8:var_local] [i16:done] advances the
	// iteration: jumps when exhausted, otherwise binds the loop variable and
	// bumps the position slot in place.
	OpIterNext

	// ── F-strings ─────────────────────────────────────────────────────────

	// OpBuildStr [u16:n] pops n values, stringifies and concatenates.
	OpBuildStr
	// OpToStr converts the top to its display string.
	OpToStr

	// ── Misc ──────────────────────────────────────────────────────────────

	OpNop
	OpHalt
)

// OperandBytes returns the number of operand bytes following the opcode.
func (op Op) OperandBytes() int {
	switch op {
	case OpConst:
		return 2
	case OpPopN, OpLoadLocal, OpStoreLocal, OpLoadUpval, OpStoreUpval, OpCall, OpMakeRange:
		return 1
	case OpLoadGlobal, OpStoreGlobal:
		return 2
	case OpDefGlobal:
		return 3 // [u16 name] [u8 mutable]
	case OpJump, OpJumpFalse, OpJumpTrue, OpJumpFalsePeek, OpJumpTruePeek:
		return 2
	case OpMakeClosure:
		return 2
	case OpCallMethod:
		return 3 // [u16 name] [u8 argc]
	case OpMakeArray, OpGetField, OpSetField, OpMakeInstance, OpBuildStr:
		return 2
	case OpIsSome, OpIsNone, OpIsOk, OpIsErr:
		return 2
	case OpMatchLit:
		return 4 // [u16 const] [i16 offset]
	case OpMatchRange:
		return 7 // [u16 lo] [u16 hi] [u8 incl] [i16 offset]
	case OpIterNext:
		return 4 // [u8 iter_local] [u8 var_local] [i16 offset]
	default:
		return 0
	}
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "BadOp"
}

var opNames = [...]string{
	OpConst:         "Const",
	OpTrue:          "True",
	OpFalse:         "False",
	OpNil:           "Nil",
	OpPop:           "Pop",
	OpDup:           "Dup",
	OpPopN:          "PopN",
	OpLoadLocal:     "LoadLocal",
	OpStoreLocal:    "StoreLocal",
	OpLoadUpval:     "LoadUpval",
	OpStoreUpval:    "StoreUpval",
	OpLoadGlobal:    "LoadGlobal",
	OpStoreGlobal:   "StoreGlobal",
	OpDefGlobal:     "DefGlobal",
	OpAdd:           "Add",
	OpSub:           "Sub",
	OpMul:           "Mul",
	OpDiv:           "Div",
	OpIntDiv:        "IntDiv",
	OpMod:           "Mod",
	OpPow:           "Pow",
	OpNeg:           "Neg",
	OpBitAnd:        "BitAnd",
	OpBitOr:         "BitOr",
	OpBitXor:        "BitXor",
	OpBitNot:        "BitNot",
	OpShl:           "Shl",
	OpShr:           "Shr",
	OpEq:            "Eq",
	OpNe:            "Ne",
	OpLt:            "Lt",
	OpLe:            "Le",
	OpGt:            "Gt",
	OpGe:            "Ge",
	OpNot:           "Not",
	OpJump:          "Jump",
	OpJumpFalse:     "JumpFalse",
	OpJumpTrue:      "JumpTrue",
	OpJumpFalsePeek: "JumpFalsePeek",
	OpJumpTruePeek:  "JumpTruePeek",
	OpMakeClosure:   "MakeClosure",
	OpCall:          "Call",
	OpCallMethod:    "CallMethod",
	OpReturn:        "Return",
	OpReturnNil:     "ReturnNil",
	OpMakeArray:     "MakeArray",
	OpGetIndex:      "GetIndex",
	OpSetIndex:      "SetIndex",
	OpMakeRange:     "MakeRange",
	OpGetField:      "GetField",
	OpSetField:      "SetField",
	OpMakeInstance:  "MakeInstance",
	OpMakeSome:      "MakeSome",
	OpMakeOk:        "MakeOk",
	OpMakeErr:       "MakeErr",
	OpIn:            "In",
	OpNotIn:         "NotIn",
	OpIs:            "Is",
	OpIsSome:        "IsSome",
	OpIsNone:        "IsNone",
	OpIsOk:          "IsOk",
	OpIsErr:         "IsErr",
	OpUnwrap:        "Unwrap",
	OpMatchLit:      "MatchLit",
	OpMatchRange:    "MatchRange",
	OpIntoIter:      "IntoIter",
	OpIterNext:      "IterNext",
	OpBuildStr:      "BuildStr",
	OpToStr:         "ToStr",
	OpNop:           "Nop",
	OpHalt:          "Halt",
}
