package vm

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// registerGlobals installs the built-in functions into the VM's global
// table. The IO builtins close over the VM so its Stdout/Stdin can be
// redirected (the CLI and the tests both rely on this).
func (vm *VM) registerGlobals() {
	reg := func(name string, fn func([]Value) (Value, error)) {
		vm.globals[name] = globalSlot{value: NativeValue(name, fn), mutable: false}
	}

	reg("print", vm.nativePrint)
	reg("println", vm.nativePrintln)
	reg("input", vm.nativeInput)
	reg("len", nativeLen)
	reg("str", nativeStr)
	reg("int", nativeInt)
	reg("float", nativeFloat)
	reg("bool", nativeBool)
	reg("typeof", nativeTypeof)
	reg("abs", nativeAbs)
	reg("min", nativeMin)
	reg("max", nativeMax)
	reg("range", nativeRange)
	reg("push", nativePush)
	reg("pop", nativePop)
	reg("assert", nativeAssert)
}

func joinArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

func (vm *VM) nativePrint(args []Value) (Value, error) {
	fmt.Fprint(vm.Stdout, joinArgs(args))
	return NoneValue(), nil
}

func (vm *VM) nativePrintln(args []Value) (Value, error) {
	fmt.Fprintln(vm.Stdout, joinArgs(args))
	return NoneValue(), nil
}

func (vm *VM) nativeInput(args []Value) (Value, error) {
	if len(args) > 0 {
		fmt.Fprint(vm.Stdout, args[0].String())
	}
	reader := bufio.NewReader(vm.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return Value{}, err
	}
	return StrValue(strings.TrimSuffix(line, "\n")), nil
}

func nativeLen(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errors.New("len() requires 1 argument")
	}
	switch args[0].Kind {
	case KindArray:
		return IntValue(int64(len(args[0].Array.Elems))), nil
	case KindStr:
		return IntValue(int64(len([]rune(args[0].Str)))), nil
	default:
		return Value{}, fmt.Errorf("len() not supported for %s", args[0].TypeName())
	}
}

func nativeStr(args []Value) (Value, error) {
	if len(args) == 0 {
		return StrValue("None"), nil
	}
	return StrValue(args[0].String()), nil
}

func nativeInt(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errors.New("int() requires 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case KindInt:
		return v, nil
	case KindFloat:
		return IntValue(int64(v.Float)), nil
	case KindBool:
		if v.Bool {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case KindStr:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot convert '%s' to Int", v.Str)
		}
		return IntValue(n), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %s to Int", v.TypeName())
	}
}

func nativeFloat(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errors.New("float() requires 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case KindFloat:
		return v, nil
	case KindInt:
		return FloatValue(float64(v.Int)), nil
	case KindBool:
		if v.Bool {
			return FloatValue(1), nil
		}
		return FloatValue(0), nil
	case KindStr:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot convert '%s' to Float", v.Str)
		}
		return FloatValue(f), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %s to Float", v.TypeName())
	}
}

func nativeBool(args []Value) (Value, error) {
	if len(args) == 0 {
		return BoolValue(false), nil
	}
	return BoolValue(args[0].IsTruthy()), nil
}

func nativeTypeof(args []Value) (Value, error) {
	if len(args) == 0 {
		return StrValue("None"), nil
	}
	return StrValue(args[0].TypeName()), nil
}

func nativeAbs(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errors.New("abs() requires 1 argument")
	}
	switch args[0].Kind {
	case KindInt:
		n := args[0].Int
		if n < 0 {
			n = -n
		}
		return IntValue(n), nil
	case KindFloat:
		return FloatValue(math.Abs(args[0].Float)), nil
	default:
		return Value{}, fmt.Errorf("abs() not supported for %s", args[0].TypeName())
	}
}

// minMaxItems flattens a single-array argument, so min([1,2]) and
// min(1, 2) both work.
func minMaxItems(args []Value) []Value {
	if len(args) == 1 && args[0].Kind == KindArray {
		return args[0].Array.Elems
	}
	return args
}

func nativeMin(args []Value) (Value, error) {
	items := minMaxItems(args)
	if len(items) == 0 {
		if len(args) == 1 {
			return Value{}, errors.New("min() of empty array")
		}
		return Value{}, errors.New("min() requires at least 1 argument")
	}
	best := items[0]
	for _, v := range items[1:] {
		if c, ok := Compare(v, best); ok && c < 0 {
			best = v
		}
	}
	return best, nil
}

func nativeMax(args []Value) (Value, error) {
	items := minMaxItems(args)
	if len(items) == 0 {
		if len(args) == 1 {
			return Value{}, errors.New("max() of empty array")
		}
		return Value{}, errors.New("max() requires at least 1 argument")
	}
	best := items[0]
	for _, v := range items[1:] {
		if c, ok := Compare(v, best); ok && c > 0 {
			best = v
		}
	}
	return best, nil
}

func nativeRange(args []Value) (Value, error) {
	var start, end, step int64
	switch {
	case len(args) == 1 && args[0].Kind == KindInt:
		start, end, step = 0, args[0].Int, 1
	case len(args) == 2 && args[0].Kind == KindInt && args[1].Kind == KindInt:
		start, end, step = args[0].Int, args[1].Int, 1
	case len(args) == 3 && args[0].Kind == KindInt && args[1].Kind == KindInt && args[2].Kind == KindInt:
		start, end, step = args[0].Int, args[1].Int, args[2].Int
	default:
		return Value{}, errors.New("range() expects 1-3 Int arguments")
	}
	if step == 0 {
		return Value{}, errors.New("range() step cannot be zero")
	}
	var elems []Value
	for i := start; (step > 0 && i < end) || (step < 0 && i > end); i += step {
		elems = append(elems, IntValue(i))
	}
	return ArrayValue(elems), nil
}

func nativePush(args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindArray {
		return Value{}, errors.New("push(array, value) requires Array and value")
	}
	args[0].Array.Elems = append(args[0].Array.Elems, args[1])
	return NoneValue(), nil
}

func nativePop(args []Value) (Value, error) {
	if len(args) == 0 || args[0].Kind != KindArray {
		return Value{}, errors.New("pop(array) requires an Array")
	}
	arr := args[0].Array
	if len(arr.Elems) == 0 {
		return Value{}, errors.New("pop() on empty array")
	}
	last := arr.Elems[len(arr.Elems)-1]
	arr.Elems = arr.Elems[:len(arr.Elems)-1]
	return last, nil
}

func nativeAssert(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errors.New("assert() requires 1 argument")
	}
	if args[0].IsTruthy() {
		return NoneValue(), nil
	}
	msg := "assertion failed"
	if len(args) > 1 {
		msg = args[1].String()
	}
	return Value{}, errors.New(msg)
}
