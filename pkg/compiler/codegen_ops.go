package compiler

import "livestack/pkg/wasm"

// generators is indexed by Instruction. A missing entry fails
// TestEveryInstructionHasAGenerator.
var generators = [numInstructions]generatorFunc{
	INVALID: func(g *generator, l sourceLine) *lineError {
		return errorf(SyntaxError, "unknown instruction %q", l.Instruction)
	},

	MEMORY:         noCode,
	CONST:          noCode,
	USE:            noCode,
	INIT:           noCode,
	MODULE:         noCode,
	MODULE_END:     noCode,
	CONSTANTS:      noCode,
	CONSTANTS_END:  noCode,
	FUNCTION:       noCode,
	FUNCTION_END:   noCode,
	PARAM:          noCode,
	SKIP_EXECUTION: noCode,
	INIT_ONLY:      noCode,

	LOCAL:     genLocal,
	LOCAL_GET: genLocalGet,
	LOCAL_SET: genLocalSet,

	PUSH:         genPush,
	STORE:        genStore,
	LOAD:         loadAs(wasm.OpI32Load, wasm.Align32, TypeInt),
	LOAD8S:       loadAs(wasm.OpI32Load8S, wasm.Align8, TypeInt),
	LOAD8U:       loadAs(wasm.OpI32Load8U, wasm.Align8, TypeInt),
	LOAD16S:      loadAs(wasm.OpI32Load16S, wasm.Align16, TypeInt),
	LOAD16U:      loadAs(wasm.OpI32Load16U, wasm.Align16, TypeInt),
	LOAD_FLOAT:   loadAs(wasm.OpF32Load, wasm.Align32, TypeFloat),
	LOAD_FLOAT64: loadAs(wasm.OpF64Load, wasm.Align64, TypeFloat64),

	ADD:       arithmetic(overload{wasm.OpI32Add, wasm.OpF32Add, wasm.OpF64Add}),
	SUB:       arithmetic(overload{wasm.OpI32Sub, wasm.OpF32Sub, wasm.OpF64Sub}),
	MUL:       arithmetic(overload{wasm.OpI32Mul, wasm.OpF32Mul, wasm.OpF64Mul}),
	DIV:       arithmetic(overload{wasm.OpI32DivS, wasm.OpF32Div, wasm.OpF64Div}),
	REMAINDER: arithmetic(overload{i32: wasm.OpI32RemS}),
	SQRT:      unary(overload{f32: wasm.OpF32Sqrt, f64: wasm.OpF64Sqrt}),
	ABS:       genAbs,

	AND:                  arithmetic(overload{i32: wasm.OpI32And}),
	OR:                   arithmetic(overload{i32: wasm.OpI32Or}),
	XOR:                  arithmetic(overload{i32: wasm.OpI32Xor}),
	SHIFT_LEFT:           arithmetic(overload{i32: wasm.OpI32Shl}),
	SHIFT_RIGHT:          arithmetic(overload{i32: wasm.OpI32ShrS}),
	SHIFT_RIGHT_UNSIGNED: arithmetic(overload{i32: wasm.OpI32ShrU}),

	EQUAL:            comparison(overload{wasm.OpI32Eq, wasm.OpF32Eq, wasm.OpF64Eq}),
	NOT_EQUAL:        comparison(overload{wasm.OpI32Ne, wasm.OpF32Ne, wasm.OpF64Ne}),
	GREATER_THAN:     comparison(overload{wasm.OpI32GtS, wasm.OpF32Gt, wasm.OpF64Gt}),
	GREATER_OR_EQUAL: comparison(overload{wasm.OpI32GeS, wasm.OpF32Ge, wasm.OpF64Ge}),
	LESS_THAN:        comparison(overload{wasm.OpI32LtS, wasm.OpF32Lt, wasm.OpF64Lt}),
	LESS_OR_EQUAL:    comparison(overload{wasm.OpI32LeS, wasm.OpF32Le, wasm.OpF64Le}),
	EQUAL_TO_ZERO:    genEqualToZero,

	CAST_TO_INT:     genCastToInt,
	CAST_TO_FLOAT:   genCastToFloat,
	CAST_TO_FLOAT64: genCastToFloat64,

	DUP:         genDup,
	DROP:        genDrop,
	SWAP:        genSwap,
	CLEAR_STACK: genClearStack,

	IF:             genIf,
	ELSE:           genElse,
	IF_END:         genIfEnd,
	BLOCK:          genBlock,
	BLOCK_END:      genBlockEnd,
	LOOP:           genLoop,
	LOOP_END:       genLoopEnd,
	BRANCH:         genBranch,
	BRANCH_IF_TRUE: genBranchIfTrue,
	CALL:           genCall,

	RISING_EDGE:  edge(overload{wasm.OpI32GtS, wasm.OpF32Gt, 0}),
	FALLING_EDGE: edge(overload{wasm.OpI32LtS, wasm.OpF32Lt, 0}),
	HAS_CHANGED:  edge(overload{wasm.OpI32Ne, wasm.OpF32Ne, 0}),
}

// overload lists the opcode of a mnemonic per operand type. A zero opcode
// means the mnemonic is not defined for that type.
type overload struct {
	i32, f32, f64 wasm.Opcode
}

func (o overload) forType(t ValueType) wasm.Opcode {
	switch t {
	case TypeFloat:
		return o.f32
	case TypeFloat64:
		return o.f64
	}
	return o.i32
}

func noCode(*generator, sourceLine) *lineError { return nil }

func expectArgs(l sourceLine, n int) *lineError {
	if len(l.Args) != n {
		return errorf(SyntaxError, "%s expects %d argument(s), got %d", l.Instruction, n, len(l.Args))
	}
	return nil
}

func (g *generator) pop(l sourceLine) (ValueType, *lineError) {
	t, ok := g.stack.pop()
	if !ok {
		return 0, errorf(SyntaxError, "%s: stack underflow", l.Instruction)
	}
	return t, nil
}

// popInt pops an operand that must be an int, such as an address or a
// condition.
func (g *generator) popInt(l sourceLine, what string) *lineError {
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	if t != TypeInt && t != typeAny {
		return errorf(TypeMismatchError, "%s: %s must be int, got %s", l.Instruction, what, t)
	}
	return nil
}

// popAs pops an operand of type want, promoting a float to float64.
func (g *generator) popAs(l sourceLine, want ValueType) *lineError {
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	switch {
	case t == want || t == typeAny:
		return nil
	case t == TypeFloat && want == TypeFloat64:
		g.code.Op(wasm.OpF64PromoteF32)
		return nil
	}
	return errorf(TypeMismatchError, "%s: want %s, got %s", l.Instruction, want, t)
}

// operands pops the two operands of a binary mnemonic and brings them to
// a common type. float is promoted when the other operand is float64;
// every other mix is a type mismatch.
func (g *generator) operands(l sourceLine) (ValueType, *lineError) {
	b, err := g.pop(l)
	if err != nil {
		return 0, err
	}
	a, err := g.pop(l)
	if err != nil {
		return 0, err
	}
	switch {
	case a == b:
		return a, nil
	case a == typeAny:
		return b, nil
	case b == typeAny:
		return a, nil
	case a == TypeFloat && b == TypeFloat64:
		tmp := g.scratchLocal(TypeFloat64, 0)
		g.code.LocalSet(tmp)
		g.code.Op(wasm.OpF64PromoteF32)
		g.code.LocalGet(tmp)
		return TypeFloat64, nil
	case a == TypeFloat64 && b == TypeFloat:
		g.code.Op(wasm.OpF64PromoteF32)
		return TypeFloat64, nil
	}
	return 0, errorf(TypeMismatchError, "%s: cannot combine %s and %s", l.Instruction, a, b)
}

func arithmetic(ov overload) generatorFunc {
	return binary(ov, false)
}

func comparison(ov overload) generatorFunc {
	return binary(ov, true)
}

func binary(ov overload, boolean bool) generatorFunc {
	return func(g *generator, l sourceLine) *lineError {
		if err := expectArgs(l, 0); err != nil {
			return err
		}
		t, err := g.operands(l)
		if err != nil {
			return err
		}
		op := ov.forType(t)
		if op == 0 {
			return errorf(TypeMismatchError, "%s is not defined for %s", l.Instruction, t)
		}
		g.code.Op(op)
		if boolean {
			t = TypeInt
		}
		g.stack.push(t)
		return nil
	}
}

func unary(ov overload) generatorFunc {
	return func(g *generator, l sourceLine) *lineError {
		if err := expectArgs(l, 0); err != nil {
			return err
		}
		t, err := g.pop(l)
		if err != nil {
			return err
		}
		op := ov.forType(t)
		if op == 0 {
			return errorf(TypeMismatchError, "%s is not defined for %s", l.Instruction, t)
		}
		g.code.Op(op)
		g.stack.push(t)
		return nil
	}
}

func genAbs(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	switch t {
	case TypeFloat:
		g.code.Op(wasm.OpF32Abs)
	case TypeFloat64:
		g.code.Op(wasm.OpF64Abs)
	default:
		// x < 0 ? 0-x : x
		tmp := g.scratchLocal(TypeInt, 0)
		g.code.LocalSet(tmp)
		g.code.I32Const(0)
		g.code.LocalGet(tmp)
		g.code.Op(wasm.OpI32Sub)
		g.code.LocalGet(tmp)
		g.code.LocalGet(tmp)
		g.code.I32Const(0)
		g.code.Op(wasm.OpI32LtS, wasm.OpSelect)
		t = TypeInt
	}
	g.stack.push(t)
	return nil
}

func genEqualToZero(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	switch t {
	case TypeFloat:
		g.code.F32Const(0)
		g.code.Op(wasm.OpF32Eq)
	case TypeFloat64:
		g.code.F64Const(0)
		g.code.Op(wasm.OpF64Eq)
	default:
		g.code.Op(wasm.OpI32Eqz)
	}
	g.stack.push(TypeInt)
	return nil
}

func genCastToInt(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	switch t {
	case TypeFloat:
		g.code.Misc(wasm.MiscI32TruncSatF32S)
	case TypeFloat64:
		g.code.Misc(wasm.MiscI32TruncSatF64S)
	}
	g.stack.push(TypeInt)
	return nil
}

func genCastToFloat(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	switch t {
	case TypeInt:
		g.code.Op(wasm.OpF32ConvertI32S)
	case TypeFloat64:
		g.code.Op(wasm.OpF32DemoteF64)
	}
	g.stack.push(TypeFloat)
	return nil
}

func genCastToFloat64(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	switch t {
	case TypeInt:
		g.code.Op(wasm.OpF64ConvertI32S)
	case TypeFloat:
		g.code.Op(wasm.OpF64PromoteF32)
	}
	g.stack.push(TypeFloat64)
	return nil
}

// pushConst pushes a compile-time number. Integers use fixed width
// immediates so editing a literal keeps the body length.
func (g *generator) pushConst(v float64, t ValueType) {
	switch t {
	case TypeFloat:
		g.code.F32Const(float32(v))
	case TypeFloat64:
		g.code.F64Const(v)
	default:
		g.code.I32ConstFixed(int32(v))
	}
	g.stack.push(t)
}

func genPush(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 1); err != nil {
		return err
	}
	a := l.Args[0]
	scope := g.unit.scope

	switch {
	case a.Kind == ArgLiteral:
		if a.IsInteger {
			g.pushConst(a.Value, TypeInt)
		} else {
			g.pushConst(a.Value, TypeFloat)
		}
		return nil
	case a.HasIndex:
		return errorf(SyntaxError, "push takes no index, use &%s with an offset and a load", a.Name)
	case a.Decoration == Plain:
		if c, ok := g.table.lookupConst(scope.id, a.Name); ok {
			if c.isInteger {
				g.pushConst(c.value, TypeInt)
			} else {
				g.pushConst(c.value, TypeFloat)
			}
			return nil
		}
	}

	sym, ok := g.table.LookupMemory(scope.id, a.Name)
	if !ok {
		return errorf(UnresolvedSymbolError, "unknown symbol %q", a.Name)
	}

	switch a.Decoration {
	case Plain:
		if sym.Type.IsArray() {
			return errorf(TypeMismatchError, "cannot push array %q by value", a.Name)
		}
		op, align := sym.Type.loadOp()
		g.code.I32ConstFixed(int32(sym.ByteAddress))
		g.code.Memory(op, align, 0)
		g.stack.push(sym.Type.ElementType())
	case Dereference:
		if !sym.IsPointer || sym.Type.IsArray() {
			return errorf(TypeMismatchError, "cannot dereference %q, it is %s", a.Name, sym.Type)
		}
		t, toPointer := sym.Type.Pointee()
		if toPointer {
			t = TypeInt
		}
		g.code.I32ConstFixed(int32(sym.ByteAddress))
		g.code.Memory(wasm.OpI32Load, wasm.Align32, 0)
		g.code.Memory(loadOpFor(t), alignFor(t), 0)
		g.stack.push(t)
	default:
		v, isInt := decorate(sym, a.Decoration)
		if isInt {
			g.pushConst(v, TypeInt)
		} else {
			g.pushConst(v, sym.Type.ElementType())
		}
	}
	return nil
}

// genStore stores the top value at the address below it.
func genStore(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	if err := g.popInt(l, "address"); err != nil {
		return err
	}
	if t == typeAny {
		t = TypeInt
	}
	g.code.Memory(storeOpFor(t), alignFor(t), 0)
	return nil
}

func loadAs(op wasm.Opcode, align uint32, result ValueType) generatorFunc {
	return func(g *generator, l sourceLine) *lineError {
		if err := expectArgs(l, 0); err != nil {
			return err
		}
		if err := g.popInt(l, "address"); err != nil {
			return err
		}
		g.code.Memory(op, align, 0)
		g.stack.push(result)
		return nil
	}
}

func genLocal(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 2); err != nil {
		return err
	}
	t, ok := typeArgument(l.Args[0])
	if !ok {
		return errorf(SyntaxError, "unknown local type %q", l.Args[0].Raw)
	}
	name := l.Args[1]
	if !isPlainName(name) {
		return errorf(SyntaxError, "local name %q is not an identifier", name.Raw)
	}
	if _, dup := g.localNames[name.Name]; dup {
		return errorf(DuplicateSymbolError, "local %q already declared", name.Name)
	}
	g.localNames[name.Name] = g.addLocal(t)
	return nil
}

func (g *generator) lookupLocal(l sourceLine) (uint32, *lineError) {
	if err := expectArgs(l, 1); err != nil {
		return 0, err
	}
	idx, ok := g.localNames[l.Args[0].Name]
	if !ok || !isPlainName(l.Args[0]) {
		return 0, errorf(UnresolvedSymbolError, "unknown local %q", l.Args[0].Raw)
	}
	return idx, nil
}

func genLocalGet(g *generator, l sourceLine) *lineError {
	idx, err := g.lookupLocal(l)
	if err != nil {
		return err
	}
	g.code.LocalGet(idx)
	g.stack.push(g.locals[idx])
	return nil
}

func genLocalSet(g *generator, l sourceLine) *lineError {
	idx, err := g.lookupLocal(l)
	if err != nil {
		return err
	}
	if err := g.popAs(l, g.locals[idx]); err != nil {
		return err
	}
	g.code.LocalSet(idx)
	return nil
}

func genDup(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	t, err := g.pop(l)
	if err != nil {
		return err
	}
	tmp := g.scratchLocal(t, 0)
	g.code.LocalTee(tmp)
	g.code.LocalGet(tmp)
	g.stack.push(t, t)
	return nil
}

func genDrop(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	if _, err := g.pop(l); err != nil {
		return err
	}
	g.code.Op(wasm.OpDrop)
	return nil
}

func genSwap(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	ts, ok := g.stack.popN(2)
	if !ok {
		return errorf(SyntaxError, "swap: stack underflow")
	}
	a, b := ts[0], ts[1]
	tb := g.scratchLocal(b, 0)
	n := 0
	if normalize(a) == normalize(b) {
		n = 1
	}
	ta := g.scratchLocal(a, n)
	g.code.LocalSet(tb)
	g.code.LocalSet(ta)
	g.code.LocalGet(tb)
	g.code.LocalGet(ta)
	g.stack.push(b, a)
	return nil
}

func normalize(t ValueType) ValueType {
	if t == typeAny {
		return TypeInt
	}
	return t
}

func genClearStack(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	for n := g.stack.available(); n > 0; n-- {
		g.stack.pop()
		g.code.Op(wasm.OpDrop)
	}
	return nil
}

// blockResult parses the optional result type of ifEnd and blockEnd.
func blockResult(l sourceLine) ([]ValueType, *lineError) {
	switch len(l.Args) {
	case 0:
		return nil, nil
	case 1:
		t, ok := typeArgument(l.Args[0])
		if !ok {
			return nil, errorf(SyntaxError, "unknown result type %q", l.Args[0].Raw)
		}
		return []ValueType{t}, nil
	}
	return nil, errorf(SyntaxError, "%s takes at most one result type", l.Instruction)
}

func blockType(results []ValueType) byte {
	if len(results) == 0 {
		return wasm.BlockEmpty
	}
	return byte(results[0].wasm())
}

func genIf(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	if err := g.popInt(l, "condition"); err != nil {
		return err
	}
	pos := g.code.Structured(wasm.OpIf, wasm.BlockEmpty)
	g.stack.enter(frameIf, pos, l.number)
	return nil
}

func genElse(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	f := g.stack.top()
	if f.kind != frameIf || f.sawElse {
		return errorf(SyntaxError, "else without if")
	}
	f.thenTypes = append([]ValueType(nil), g.stack.frameItems()...)
	f.thenUnreachable = f.unreachable
	f.sawElse = true
	f.unreachable = false
	g.stack.items = g.stack.items[:f.height]
	g.code.Op(wasm.OpElse)
	return nil
}

func genIfEnd(g *generator, l sourceLine) *lineError {
	f := g.stack.top()
	if f.kind != frameIf {
		return errorf(SyntaxError, "ifEnd without if")
	}
	results, err := blockResult(l)
	if err != nil {
		return err
	}
	if len(results) > 0 && !f.sawElse {
		return errorf(TypeMismatchError, "ifEnd %s needs an else branch", results[0])
	}
	if f.sawElse && !typesMatch(f.thenTypes, results, f.thenUnreachable) {
		return errorf(TypeMismatchError, "then branch leaves %s, want %s", typeList(f.thenTypes), typeList(results))
	}
	return g.closeBlock(l, results)
}

func genBlock(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	pos := g.code.Structured(wasm.OpBlock, wasm.BlockEmpty)
	g.stack.enter(frameBlock, pos, l.number)
	return nil
}

func genBlockEnd(g *generator, l sourceLine) *lineError {
	if g.stack.top().kind != frameBlock {
		return errorf(SyntaxError, "blockEnd without block")
	}
	results, err := blockResult(l)
	if err != nil {
		return err
	}
	return g.closeBlock(l, results)
}

// closeBlock ends the current if or block frame, patching its block type.
func (g *generator) closeBlock(l sourceLine, results []ValueType) *lineError {
	f := g.stack.top()
	if !g.stack.matches(results) {
		return errorf(TypeMismatchError, "%s leaves %s, want %s", f.kind, typeList(g.stack.frameItems()), typeList(results))
	}
	if f.branchedTo && len(results) > 0 {
		return errorf(TypeMismatchError, "cannot branch out of a %s that yields %s", f.kind, results[0])
	}
	g.code.PatchByte(f.blockTypePos, blockType(results))
	g.code.Op(wasm.OpEnd)
	g.stack.leave(results)
	return nil
}

func genLoop(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	pos := g.code.Structured(wasm.OpLoop, wasm.BlockEmpty)
	g.stack.enter(frameLoop, pos, l.number)
	return nil
}

// genLoopEnd jumps back to the start of the loop. Leaving a loop takes an
// explicit branch to an enclosing block.
func genLoopEnd(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 0); err != nil {
		return err
	}
	if g.stack.top().kind != frameLoop {
		return errorf(SyntaxError, "loopEnd without loop")
	}
	if !g.stack.matches(nil) {
		return errorf(TypeMismatchError, "loop body leaves %s on the stack", typeList(g.stack.frameItems()))
	}
	g.code.Br(0)
	g.code.Op(wasm.OpEnd)
	g.stack.leave(nil)
	return nil
}

// branchDepth validates the depth argument and marks the target frame.
func (g *generator) branchDepth(l sourceLine) (uint32, *lineError) {
	if err := expectArgs(l, 1); err != nil {
		return 0, err
	}
	a := l.Args[0]
	if a.Kind != ArgLiteral || !a.IsInteger || a.Value < 0 {
		return 0, errorf(SyntaxError, "%s depth must be a non-negative integer, got %q", l.Instruction, a.Raw)
	}
	d := int(a.Value)
	if d >= g.stack.depth() {
		return 0, errorf(SyntaxError, "%s %d: only %d enclosing block(s)", l.Instruction, d, g.stack.depth())
	}
	if f := &g.stack.frames[len(g.stack.frames)-1-d]; f.kind != frameLoop {
		f.branchedTo = true
	}
	return uint32(d), nil
}

func genBranch(g *generator, l sourceLine) *lineError {
	d, err := g.branchDepth(l)
	if err != nil {
		return err
	}
	g.code.Br(d)
	g.stack.setUnreachable()
	return nil
}

func genBranchIfTrue(g *generator, l sourceLine) *lineError {
	d, err := g.branchDepth(l)
	if err != nil {
		return err
	}
	if err := g.popInt(l, "condition"); err != nil {
		return err
	}
	g.code.BrIf(d)
	return nil
}

func genCall(g *generator, l sourceLine) *lineError {
	if err := expectArgs(l, 1); err != nil {
		return err
	}
	a := l.Args[0]
	fn, ok := g.table.LookupFunction(a.Name)
	if !ok || !isPlainName(a) {
		return errorf(UnresolvedSymbolError, "unknown function %q", a.Raw)
	}
	params := fn.signature.Params
	have, ok := g.stack.popN(len(params))
	if !ok {
		return errorf(SyntaxError, "call %s: needs %d argument(s)", fn.id, len(params))
	}
	if !typesMatch(have, params, false) {
		return errorf(TypeMismatchError, "call %s: want %s, got %s", fn.id, typeList(params), typeList(have))
	}
	g.code.Call(uint32(fn.index))
	g.stack.push(fn.signature.Results...)
	return nil
}

// edge expands an edge detector: the current value is compared with the
// one stored in the shadow cell by the previous cycle, then saved.
func edge(ov overload) generatorFunc {
	return func(g *generator, l sourceLine) *lineError {
		if err := expectArgs(l, 0); err != nil {
			return err
		}
		t, err := g.pop(l)
		if err != nil {
			return err
		}
		t = normalize(t)
		op := ov.forType(t)
		if op == 0 {
			return errorf(TypeMismatchError, "%s is not defined for %s", l.Instruction, t)
		}
		cell, ok := g.unit.edgeCells[l.number]
		if !ok {
			return errorf(UnresolvedSymbolError, "%s has no shadow cell", l.Instruction)
		}
		tmp := g.scratchLocal(t, 0)
		addr := int32(cell.ByteAddress)

		g.code.LocalTee(tmp)
		g.code.I32ConstFixed(addr)
		g.code.Memory(loadOpFor(t), wasm.Align32, 0)
		g.code.Op(op)
		g.code.I32ConstFixed(addr)
		g.code.LocalGet(tmp)
		g.code.Memory(storeOpFor(t), wasm.Align32, 0)
		g.stack.push(TypeInt)
		return nil
	}
}
