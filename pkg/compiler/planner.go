package compiler

import "fmt"

// pendingValue is a default whose value can only be computed once every
// module has its addresses.
type pendingValue struct {
	line     int
	sym      *Symbol
	index    int
	hasIndex bool
	arg      Argument
}

// planner is Pass 1: it lays out memory, collects defaults and builds the
// function table.
type planner struct {
	opts  Options
	table *SymbolTable
	errs  *ErrorList
	// next is the next free word address.
	next int
}

func newPlanner(opts Options, table *SymbolTable, errs *ErrorList) *planner {
	return &planner{
		opts:  opts,
		table: table,
		errs:  errs,
		next:  opts.StartingMemoryWordAddress,
	}
}

// checkLines reports instructions that do not belong in their unit kind.
// Offending lines are removed so later passes do not trip over them.
func (p *planner) checkLines(u *unit) {
	kept := u.lines[:0]
	for _, l := range u.lines {
		if !allowedIn(l.instr, u.kind) {
			p.errs.add(SyntaxError, u.id, l.number, "%s is not allowed in a %s block", l.Instruction, u.kind)
			continue
		}
		kept = append(kept, l)
	}
	u.lines = kept
}

// planFunction adds a function unit to the function table.
func (p *planner) planFunction(u *unit, index int) {
	sig := &functionSig{id: u.id, index: index}
	seen := make(map[string]bool)

	for _, l := range u.lines {
		switch l.instr {
		case PARAM:
			if len(l.Args) != 2 {
				p.errs.add(SyntaxError, u.id, l.number, "param expects a type and a name")
				continue
			}
			t, ok := typeArgument(l.Args[0])
			if !ok {
				p.errs.add(SyntaxError, u.id, l.number, "unknown param type %q", l.Args[0].Raw)
				continue
			}
			name := l.Args[1]
			if !isPlainName(name) {
				p.errs.add(SyntaxError, u.id, l.number, "param name %q is not an identifier", name.Raw)
				continue
			}
			if seen[name.Name] {
				p.errs.add(DuplicateSymbolError, u.id, l.number, "param %q already declared", name.Name)
				continue
			}
			seen[name.Name] = true
			sig.signature.Params = append(sig.signature.Params, t)
			sig.params = append(sig.params, name.Name)

		case FUNCTION_END:
			for _, a := range l.Args {
				t, ok := typeArgument(a)
				if !ok {
					p.errs.add(SyntaxError, u.id, l.number, "unknown result type %q", a.Raw)
					continue
				}
				sig.signature.Results = append(sig.signature.Results, t)
			}
		}
	}
	p.table.functions[u.id] = sig
}

// planMemory declares the memory of a module unit in line order and gives
// every symbol its address.
func (p *planner) planMemory(u *unit) {
	start := p.next
	for _, l := range u.lines {
		switch l.instr {
		case MEMORY:
			p.declare(u, l)
		case RISING_EDGE, FALLING_EDGE, HAS_CHANGED:
			sym := newSymbol(u.scope.nextEdgeID(l.instr), MemInt, 1)
			sym.IsAnonymous = true
			if !u.scope.declare(sym) {
				p.errs.add(DuplicateSymbolError, u.id, l.number, "memory %q already declared", sym.ID)
				continue
			}
			p.allocate(sym)
			u.edgeCells[l.number] = sym
		case INIT:
			u.inits = append(u.inits, l)
		}
	}
	u.scope.base = start
}

func (p *planner) allocate(sym *Symbol) {
	sym.WordAlignedAddress = p.next
	sym.ByteAddress = p.next * 4
	p.next += sym.WordAlignedSize
}

// declare handles one memory declaration:
//
//	int count 0
//	float* out &buffer
//	int[] buffer 16 1 2 3
//	int 42          ; anonymous
//	float[] SIZE    ; anonymous, SIZE elements
func (p *planner) declare(u *unit, l sourceLine) {
	mt := MemoryType(l.Instruction)
	args := l.Args

	var id string
	anonymous := len(args) == 0 || !isMemoryName(args[0])
	if anonymous {
		id = u.scope.nextAnonymousID()
	} else {
		id = args[0].Name
		args = args[1:]
	}

	elements := 1
	if mt.IsArray() {
		if len(args) == 0 {
			p.errs.add(SyntaxError, u.id, l.number, "%s declaration needs an element count", mt)
			return
		}
		v, isInt, err := operandValue(p.table, u.scope, args[0])
		if err != nil {
			p.errs.add(err.kind, u.id, l.number, "%s", err.msg)
			return
		}
		if !isInt || v < 1 {
			p.errs.add(SyntaxError, u.id, l.number, "element count must be a positive integer, got %v", v)
			return
		}
		elements = int(v)
		args = args[1:]
		if len(args) > elements {
			p.errs.add(SyntaxError, u.id, l.number, "%d defaults for %d elements", len(args), elements)
			return
		}
	} else if len(args) > 1 {
		p.errs.add(SyntaxError, u.id, l.number, "%s takes a name and at most one default", mt)
		return
	}

	sym := newSymbol(id, mt, elements)
	sym.IsAnonymous = anonymous
	if !u.scope.declare(sym) {
		p.errs.add(DuplicateSymbolError, u.id, l.number, "memory %q already declared", id)
		return
	}
	p.allocate(sym)

	for i, a := range args {
		u.pending = append(u.pending, pendingValue{
			line:     l.number,
			sym:      sym,
			index:    i,
			hasIndex: mt.IsArray(),
			arg:      a,
		})
	}
}

// finalize resolves the deferred defaults of u and then applies its init
// lines, which therefore win over declaration defaults.
func (p *planner) finalize(u *unit) {
	for _, pv := range u.pending {
		v, isInt, err := operandValue(p.table, u.scope, pv.arg)
		if err == nil {
			err = setDefault(pv.sym, pv.index, pv.hasIndex, v, isInt)
		}
		if err != nil {
			p.errs.add(err.kind, u.id, pv.line, "%s", err.msg)
		}
	}
	u.pending = nil

	for _, l := range u.inits {
		if err := p.init(u, l); err != nil {
			p.errs.add(err.kind, u.id, l.number, "%s", err.msg)
		}
	}
}

// init applies one "init name[index] value" line. Without an index an
// array is filled.
func (p *planner) init(u *unit, l sourceLine) *lineError {
	if len(l.Args) != 2 {
		return errorf(SyntaxError, "init expects a target and a value")
	}
	target := l.Args[0]
	if target.Kind != ArgIdentifier || target.Decoration != Plain || target.Module() != "" {
		return errorf(SyntaxError, "init target %q must name memory of this module", target.Raw)
	}
	sym, ok := u.scope.memory[target.Name]
	if !ok {
		return errorf(UnresolvedSymbolError, "unknown memory %q", target.Name)
	}
	v, isInt, err := operandValue(p.table, u.scope, l.Args[1])
	if err != nil {
		return err
	}
	if sym.Type.IsArray() && !target.HasIndex {
		for i := 0; i < sym.NumberOfElements; i++ {
			if err := setDefault(sym, i, true, v, isInt); err != nil {
				return err
			}
		}
		return nil
	}
	return setDefault(sym, target.Index, target.HasIndex, v, isInt)
}

// setDefault stores the initial value of a scalar or of one array element
// after checking it fits the element type.
func setDefault(sym *Symbol, index int, hasIndex bool, v float64, isInteger bool) *lineError {
	if sym.IsInteger && !isInteger {
		return errorf(TypeMismatchError, "%v is not an integer, %q is %s", v, sym.ID, sym.Type)
	}
	if min, max := sym.Type.Range(); v < min || v > max {
		return errorf(TypeMismatchError, "%v out of range for %s", v, sym.Type)
	}
	switch {
	case !sym.Type.IsArray() && hasIndex:
		return errorf(SyntaxError, "%q is not an array", sym.ID)
	case !sym.Type.IsArray():
		sym.Default = v
	case index < 0 || index >= sym.NumberOfElements:
		return errorf(SyntaxError, "index %d out of range for %q (%d elements)", index, sym.ID, sym.NumberOfElements)
	default:
		sym.Defaults[index] = v
	}
	return nil
}

// operandValue evaluates an argument whose value is known at compile
// time: a literal, a constant, or a decorated memory reference.
func operandValue(t *SymbolTable, s *moduleScope, a Argument) (float64, bool, *lineError) {
	switch {
	case a.Kind == ArgLiteral:
		return a.Value, a.IsInteger, nil
	case a.Kind != ArgIdentifier || a.HasIndex:
		return 0, false, errorf(SyntaxError, "%q is not a value", a.Raw)
	case a.Decoration == Plain:
		if c, ok := t.lookupConst(s.id, a.Name); ok {
			return c.value, c.isInteger, nil
		}
		if _, ok := t.LookupMemory(s.id, a.Name); ok {
			return 0, false, errorf(SyntaxError, "memory %q is not a compile-time value", a.Name)
		}
		return 0, false, errorf(UnresolvedSymbolError, "unknown constant %q", a.Name)
	case a.Decoration == Dereference:
		return 0, false, errorf(SyntaxError, "%q cannot be evaluated at compile time", a.Raw)
	}
	sym, ok := t.LookupMemory(s.id, a.Name)
	if !ok {
		return 0, false, errorf(UnresolvedSymbolError, "unknown memory %q", a.Name)
	}
	v, isInt := decorate(sym, a.Decoration)
	return v, isInt, nil
}

// decorate computes the value of an address or range operator applied to
// sym.
func decorate(sym *Symbol, d Decoration) (float64, bool) {
	switch d {
	case AddressOf:
		return float64(sym.ByteAddress), true
	case EndAddress:
		return float64(sym.EndByteAddress()), true
	case ElementCount:
		return float64(sym.NumberOfElements), true
	case ElementSize:
		return float64(sym.ElementWordSize), true
	case MaxValue:
		_, max := sym.Type.Range()
		return max, sym.IsInteger
	case MinValue:
		min, _ := sym.Type.Range()
		return min, sym.IsInteger
	}
	panic(fmt.Sprintf("decorate: unexpected decoration %d", d))
}

// checkCapacity reports the fatal out of memory condition.
func (p *planner) checkCapacity() *Error {
	need, have := p.next*4, p.opts.memorySize()
	if need <= have {
		return nil
	}
	return &Error{
		Kind: OutOfMemoryError,
		Msg:  fmt.Sprintf("program needs %d bytes, memory is %d bytes", need, have),
	}
}

// isMemoryName reports whether a declaration's first argument names the
// symbol rather than giving an anonymous symbol its value.
func isMemoryName(a Argument) bool {
	return isPlainName(a) && !isConstantName(a.Name)
}

func isPlainName(a Argument) bool {
	return a.Kind == ArgIdentifier && a.Decoration == Plain && !a.HasIndex && a.Module() == ""
}

func typeArgument(a Argument) (ValueType, bool) {
	if !isPlainName(a) {
		return 0, false
	}
	t, ok := valueTypeNames[a.Name]
	return t, ok
}
