package compiler

// sourceLine is a parsed line that named a known instruction.
type sourceLine struct {
	number int // 1-based, within the module
	instr  Instruction
	Line
}

// unit is a module on its way through the pipeline.
type unit struct {
	id    string
	kind  ModuleKind
	index int // declaration order among units of the same kind
	lines []sourceLine
	scope *moduleScope

	skipExecution bool
	initOnly      bool

	// edgeCells maps the line of an edge-detection instruction to the
	// shadow cell the planner allocated for it.
	edgeCells map[int]*Symbol
	pending   []pendingValue
	inits     []sourceLine
}

// parseUnit parses every line of m and works out its id and kind from the
// module header when the host did not supply them. A header must be closed
// by its end marker and nothing may follow that marker.
func parseUnit(m Module, errs *ErrorList) *unit {
	u := &unit{
		id:            m.ID,
		kind:          m.Kind,
		skipExecution: m.SkipExecution,
		edgeCells:     make(map[int]*Symbol),
	}

	var header Instruction
	headerLine, closedAt := 0, 0
	for i, raw := range m.Lines {
		number := i + 1
		line, ok := ParseLine(raw)
		if !ok {
			continue
		}
		instr, known := LookupInstruction(line.Instruction)
		if !known {
			if line.Directive {
				errs.add(SyntaxError, u.id, number, "unknown directive %q", line.Instruction)
			} else {
				errs.add(SyntaxError, u.id, number, "unknown instruction %q", line.Instruction)
			}
			continue
		}
		malformed := false
		for _, a := range line.Args {
			if a.Kind == ArgInvalid {
				errs.add(SyntaxError, u.id, number, "malformed argument %q", a.Raw)
				malformed = true
			}
		}
		if malformed {
			continue
		}
		if closedAt > 0 {
			if _, closer := closerOf[instr]; closer {
				errs.add(SyntaxError, u.id, number, "second %s in one block", instr)
			} else {
				errs.add(SyntaxError, u.id, number, "%s after %s", line.Instruction, headerEnds[header])
			}
			continue
		}

		switch instr {
		case SKIP_EXECUTION:
			u.skipExecution = true
			continue
		case INIT_ONLY:
			u.initOnly = true
			continue
		case MODULE, FUNCTION, CONSTANTS:
			kind := headerKinds[instr]
			if header != INVALID {
				errs.add(SyntaxError, u.id, number, "second %s header in one block", instr)
				continue
			}
			header, headerLine = instr, number
			if u.kind == "" {
				u.kind = kind
			} else if u.kind != kind {
				errs.add(SyntaxError, u.id, number, "%s header in a %s block", instr, u.kind)
			}
			if len(line.Args) != 1 || line.Args[0].Kind != ArgIdentifier {
				errs.add(SyntaxError, u.id, number, "%s expects 1 name", instr)
			} else if name := line.Args[0].Name; u.id == "" {
				u.id = name
			} else if name != u.id {
				errs.add(SyntaxError, u.id, number, "header names %q but the module id is %q", name, u.id)
			}
			continue
		case MODULE_END, CONSTANTS_END, FUNCTION_END:
			if header == INVALID {
				errs.add(SyntaxError, u.id, number, "%s without a %s header", instr, closerOf[instr])
				continue
			}
			if headerEnds[header] != instr {
				errs.add(SyntaxError, u.id, number, "%s does not close %s %s", instr, header, u.id)
				continue
			}
			closedAt = number
		}
		u.lines = append(u.lines, sourceLine{number: number, instr: instr, Line: line})
	}

	if header != INVALID && closedAt == 0 {
		errs.add(SyntaxError, u.id, headerLine, "%s %s has no %s", header, u.id, headerEnds[header])
	}
	if u.kind == "" {
		u.kind = KindModule
	}
	if u.id == "" {
		errs.add(SyntaxError, "", 0, "module without an id")
	}
	u.scope = newModuleScope(u.id)
	return u
}

var headerKinds = map[Instruction]ModuleKind{
	MODULE:    KindModule,
	FUNCTION:  KindFunction,
	CONSTANTS: KindConstants,
}

var (
	headerEnds = map[Instruction]Instruction{
		MODULE:    MODULE_END,
		FUNCTION:  FUNCTION_END,
		CONSTANTS: CONSTANTS_END,
	}
	closerOf = map[Instruction]Instruction{
		MODULE_END:    MODULE,
		FUNCTION_END:  FUNCTION,
		CONSTANTS_END: CONSTANTS,
	}
)

// allowedIn reports whether instr may appear in a unit of kind.
func allowedIn(instr Instruction, kind ModuleKind) bool {
	switch kind {
	case KindConstants:
		return instr == CONST || instr == USE || instr == CONSTANTS_END
	case KindFunction:
		switch instr {
		case MEMORY, INIT, MODULE_END, CONSTANTS_END, RISING_EDGE, FALLING_EDGE, HAS_CHANGED:
			return false
		}
	case KindModule:
		switch instr {
		case PARAM, FUNCTION_END, CONSTANTS_END:
			return false
		}
	}
	return true
}
