package compiler

import (
	"sort"

	"livestack/pkg/wasm"
)

// generatorFunc lowers one source line. The generator has already checked
// that the instruction is allowed in the unit.
type generatorFunc func(g *generator, l sourceLine) *lineError

// generator is Pass 2 for one unit: it lowers the unit's lines into a
// function body while tracking operand types.
type generator struct {
	table *SymbolTable
	unit  *unit
	code  wasm.Code
	stack *typeStack

	// locals holds every local including the params, by index.
	locals     []ValueType
	numParams  int
	localNames map[string]uint32
	scratch    map[ValueType][]uint32

	results []ValueType
}

func newGenerator(t *SymbolTable, u *unit) *generator {
	return &generator{
		table:      t,
		unit:       u,
		stack:      newTypeStack(),
		localNames: make(map[string]uint32),
		scratch:    make(map[ValueType][]uint32),
	}
}

func (g *generator) addLocal(t ValueType) uint32 {
	g.locals = append(g.locals, t)
	return uint32(len(g.locals) - 1)
}

// scratchLocal returns the n-th compiler owned local of type t.
func (g *generator) scratchLocal(t ValueType, n int) uint32 {
	if t == typeAny {
		t = TypeInt
	}
	for len(g.scratch[t]) <= n {
		g.scratch[t] = append(g.scratch[t], g.addLocal(t))
	}
	return g.scratch[t][n]
}

func (g *generator) run() *Error {
	last := 0
	for _, l := range g.unit.lines {
		if err := generators[l.instr](g, l); err != nil {
			return g.errorAt(l.number, err)
		}
		last = l.number
	}
	return g.finish(last)
}

// finish checks that every block is closed and that the stack holds
// exactly the unit's results.
func (g *generator) finish(line int) *Error {
	if g.stack.depth() > 0 {
		f := g.stack.top()
		return g.errorAt(f.line, errorf(SyntaxError, "%s is never closed", f.kind))
	}
	if !g.stack.matches(g.results) {
		return g.errorAt(line, errorf(TypeMismatchError, "%s %q ends with %s on the stack, want %s",
			g.unit.kind, g.unit.id, typeList(g.stack.frameItems()), typeList(g.results)))
	}
	return nil
}

func (g *generator) errorAt(line int, err *lineError) *Error {
	return &Error{Kind: err.kind, ModuleID: g.unit.id, Line: line, Msg: err.msg}
}

// body frames the emitted code with the declarations of every local that
// is not a param.
func (g *generator) body() []byte {
	locals := make([]wasm.ValType, 0, len(g.locals)-g.numParams)
	for _, t := range g.locals[g.numParams:] {
		locals = append(locals, t.wasm())
	}
	return wasm.FunctionBody(locals, g.code.Bytes())
}

// generateModule lowers a module unit into its loop function and its init
// body, and snapshots its memory map.
func generateModule(t *SymbolTable, u *unit) (*CompiledModule, *Error) {
	g := newGenerator(t, u)
	if err := g.run(); err != nil {
		return nil, err
	}
	return &CompiledModule{
		ID:                 u.id,
		Index:              u.index,
		LoopFunction:       g.body(),
		InitFunctionBody:   initBody(u.scope),
		MemoryMap:          snapshot(u.scope),
		WordAlignedAddress: u.scope.base,
		WordAlignedSize:    u.scope.wordSize(),
		SkipExecution:      u.skipExecution,
		InitOnly:           u.initOnly,
	}, nil
}

// generateFunction lowers a function unit. Its params occupy the first
// locals.
func generateFunction(t *SymbolTable, u *unit) (*CompiledFunction, *Error) {
	sig, ok := t.LookupFunction(u.id)
	if !ok {
		return nil, &Error{Kind: UnresolvedSymbolError, ModuleID: u.id, Msg: "function missing from the function table"}
	}
	g := newGenerator(t, u)
	for i, name := range sig.params {
		g.localNames[name] = g.addLocal(sig.signature.Params[i])
	}
	g.numParams = len(sig.params)
	g.results = sig.signature.Results

	if err := g.run(); err != nil {
		return nil, err
	}
	return &CompiledFunction{
		ID:        u.id,
		Index:     sig.index,
		Signature: sig.signature,
		Body:      g.body(),
	}, nil
}

// initBody stores every scalar's default (zero when none was given) and
// every explicit array entry. Immediates are fixed width so the body's
// length depends only on the number of entries.
func initBody(s *moduleScope) []byte {
	var c wasm.Code
	for _, sym := range s.order {
		if !sym.Type.IsArray() {
			initStore(&c, sym, sym.ByteAddress, sym.Default)
			continue
		}
		for _, i := range sortedIndexes(sym.Defaults) {
			initStore(&c, sym, sym.ElementAddress(i), sym.Defaults[i])
		}
	}
	return c.Bytes()
}

func initStore(c *wasm.Code, sym *Symbol, addr int, v float64) {
	c.I32ConstFixed(int32(addr))
	switch sym.Type.ElementType() {
	case TypeFloat:
		c.F32Const(float32(v))
	case TypeFloat64:
		c.F64Const(v)
	default:
		c.I32ConstFixed(int32(v))
	}
	op, align := sym.Type.storeOp()
	c.Memory(op, align, 0)
}

func sortedIndexes(m map[int]float64) []int {
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// snapshot copies the module's symbols so the compiled result does not
// share state with the planner.
func snapshot(s *moduleScope) map[string]Symbol {
	out := make(map[string]Symbol, len(s.order))
	for _, sym := range s.order {
		c := *sym
		if sym.Defaults != nil {
			c.Defaults = make(map[int]float64, len(sym.Defaults))
			for i, v := range sym.Defaults {
				c.Defaults[i] = v
			}
		}
		out[c.ID] = c
	}
	return out
}
