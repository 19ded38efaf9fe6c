package types

// VarInfo is what the environment knows about one variable.
type VarInfo struct {
	Type    Type
	Mutable bool
}

type frame struct {
	vars map[string]VarInfo
}

// ClassInfo records the fields and methods of a user class.
type ClassInfo struct {
	Fields  map[string]Type
	Methods map[string]Type
}

// Env is the checker's environment: a stack of scope frames, the
// expected-return stack for nested functions, and the class registry.
type Env struct {
	frames      []frame
	returnStack []Type
	classes     map[string]*ClassInfo
}

// NewEnv creates an environment with the built-in globals registered.
func NewEnv() *Env {
	env := &Env{
		frames:  []frame{{vars: make(map[string]VarInfo)}},
		classes: make(map[string]*ClassInfo),
	}
	env.registerBuiltins()
	return env
}

func (e *Env) registerBuiltins() {
	builtins := map[string]Type{
		"print":   FnOf([]Type{Any}, None),
		"println": FnOf([]Type{Any}, None),
		"input":   FnOf([]Type{Str}, Str),
		"len":     FnOf([]Type{Any}, Int),
		"str":     FnOf([]Type{Any}, Str),
		"int":     FnOf([]Type{Any}, Int),
		"float":   FnOf([]Type{Any}, Float),
		"bool":    FnOf([]Type{Any}, Bool),
		"typeof":  FnOf([]Type{Any}, Str),
		"abs":     FnOf([]Type{Any}, Float),
		"min":     FnOf([]Type{Any}, Any),
		"max":     FnOf([]Type{Any}, Any),
		"range":   FnOf([]Type{Int, Int}, ArrayOf(Int)),
		"push":    FnOf([]Type{Any, Any}, None),
		"pop":     FnOf([]Type{Any}, Any),
		"assert":  FnOf([]Type{Bool}, None),
	}
	for name, ty := range builtins {
		e.Define(name, ty, false)
	}
}

// ── Scopes ────────────────────────────────────────────────────────────────

func (e *Env) PushScope() {
	e.frames = append(e.frames, frame{vars: make(map[string]VarInfo)})
}

func (e *Env) PopScope() {
	if len(e.frames) > 1 {
		e.frames = e.frames[:len(e.frames)-1]
	}
}

// ── Variables ─────────────────────────────────────────────────────────────

// Define binds a name in the current scope.
func (e *Env) Define(name string, ty Type, mutable bool) {
	e.frames[len(e.frames)-1].vars[name] = VarInfo{Type: ty, Mutable: mutable}
}

// Lookup finds a name, walking scopes outward.
func (e *Env) Lookup(name string) (VarInfo, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if info, ok := e.frames[i].vars[name]; ok {
			return info, true
		}
	}
	return VarInfo{}, false
}

// ── Return types ──────────────────────────────────────────────────────────

func (e *Env) PushReturn(ty Type) { e.returnStack = append(e.returnStack, ty) }

func (e *Env) PopReturn() {
	if len(e.returnStack) > 0 {
		e.returnStack = e.returnStack[:len(e.returnStack)-1]
	}
}

func (e *Env) ExpectedReturn() (Type, bool) {
	if len(e.returnStack) == 0 {
		return Type{}, false
	}
	return e.returnStack[len(e.returnStack)-1], true
}

// ── Classes ───────────────────────────────────────────────────────────────

func (e *Env) RegisterClass(name string, info *ClassInfo) {
	e.classes[name] = info
}

func (e *Env) LookupClass(name string) (*ClassInfo, bool) {
	info, ok := e.classes[name]
	return info, ok
}
