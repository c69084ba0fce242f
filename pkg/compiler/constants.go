package compiler

// resolveConstants evaluates const declarations and use imports of every
// unit. A use merges the target's own constants into the importing scope,
// so the target is resolved first. A use that reaches a unit still being
// resolved is a cycle and is reported instead of followed. Every use of a
// unit is applied before its const lines, wherever they appear.
func resolveConstants(units []*unit, byID map[string]*unit, errs *ErrorList) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*unit]int, len(units))

	var (
		visit func(u *unit)
		use   func(u *unit, l sourceLine)
	)
	visit = func(u *unit) {
		if state[u] != unvisited {
			return
		}
		state[u] = visiting

		for _, l := range u.lines {
			if l.instr == USE {
				use(u, l)
			}
		}
		for _, l := range u.lines {
			if l.instr == CONST {
				declareConst(u, l, errs)
			}
		}
		state[u] = done
	}

	use = func(u *unit, l sourceLine) {
		if len(l.Args) != 1 || l.Args[0].Kind != ArgIdentifier || l.Args[0].Decoration != Plain {
			errs.add(SyntaxError, u.id, l.number, "use expects 1 module name")
			return
		}
		name := l.Args[0].Name
		target, ok := byID[name]
		if !ok {
			errs.add(UnresolvedSymbolError, u.id, l.number, "use of unknown module %q", name)
			return
		}
		if state[target] == visiting {
			errs.add(UnresolvedSymbolError, u.id, l.number, "circular use of %q", name)
			return
		}
		visit(target)
		for k, c := range target.scope.ownConsts {
			u.scope.consts[k] = c
		}
	}

	for _, u := range units {
		visit(u)
	}
}

func declareConst(u *unit, l sourceLine, errs *ErrorList) {
	if len(l.Args) != 2 || l.Args[0].Kind != ArgIdentifier || l.Args[0].Decoration != Plain {
		errs.add(SyntaxError, u.id, l.number, "const expects a name and a value")
		return
	}
	name := l.Args[0].Name
	if _, dup := u.scope.ownConsts[name]; dup {
		errs.add(DuplicateSymbolError, u.id, l.number, "constant %q already declared", name)
		return
	}
	c, err := constantValue(u.scope, l.Args[1])
	if err != nil {
		errs.add(err.kind, u.id, l.number, "%s", err.msg)
		return
	}
	u.scope.ownConsts[name] = c
	u.scope.consts[name] = c
}

// constantValue evaluates a literal or a reference to a visible constant.
func constantValue(s *moduleScope, a Argument) (constant, *lineError) {
	switch {
	case a.Kind == ArgLiteral:
		return constant{value: a.Value, isInteger: a.IsInteger}, nil
	case a.Kind == ArgIdentifier && a.Decoration == Plain && !a.HasIndex:
		if c, ok := s.consts[a.Name]; ok {
			return c, nil
		}
		return constant{}, errorf(UnresolvedSymbolError, "unknown constant %q", a.Name)
	}
	return constant{}, errorf(SyntaxError, "%q is not a constant value", a.Raw)
}
