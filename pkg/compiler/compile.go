package compiler

import "sort"

// Compile turns an ordered module list into a program. Every non-fatal
// problem is reported in the returned ErrorList; an OutOfMemoryError,
// including one for options no layout can satisfy, is returned alone. No Result is produced when there are errors.
func Compile(modules []Module, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, ErrorList{err}
	}
	var errs ErrorList

	// Parse
	units := make([]*unit, 0, len(modules))
	byID := make(map[string]*unit, len(modules))
	order := make(map[string]int, len(modules))
	table := NewSymbolTable()
	for i, m := range modules {
		u := parseUnit(m, &errs)
		if u.id == "" {
			continue
		}
		if _, dup := byID[u.id]; dup {
			errs.add(DuplicateSymbolError, u.id, 0, "module id %q already used", u.id)
			continue
		}
		byID[u.id] = u
		order[u.id] = i
		table.modules[u.id] = u.scope
		units = append(units, u)
	}

	// Pass 1
	p := newPlanner(opts, table, &errs)
	for _, u := range units {
		p.checkLines(u)
	}
	resolveConstants(units, byID, &errs)

	var moduleUnits, functionUnits []*unit
	for _, u := range units {
		switch u.kind {
		case KindModule:
			u.index = len(moduleUnits)
			moduleUnits = append(moduleUnits, u)
		case KindFunction:
			u.index = len(functionUnits)
			p.planFunction(u, u.index)
			functionUnits = append(functionUnits, u)
		}
	}
	for _, u := range moduleUnits {
		p.planMemory(u)
	}
	if oom := p.checkCapacity(); oom != nil {
		return nil, ErrorList{oom}
	}
	for _, u := range moduleUnits {
		p.finalize(u)
	}

	// Pass 2
	res := &Result{
		CompiledModules:     make(CompiledModuleLookup, len(moduleUnits)),
		CompiledFunctions:   make(map[string]*CompiledFunction, len(functionUnits)),
		AllocatedMemorySize: p.next * 4,
		MemorySizeBytes:     opts.memorySize(),
	}
	functions := make([]*CompiledFunction, 0, len(functionUnits))
	for _, u := range functionUnits {
		f, err := generateFunction(table, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		functions = append(functions, f)
		res.CompiledFunctions[f.ID] = f
	}
	compiled := make([]*CompiledModule, 0, len(moduleUnits))
	for _, u := range moduleUnits {
		cm, err := generateModule(table, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, cm)
		res.CompiledModules[cm.ID] = cm
	}

	if err := errs.Err(); err != nil {
		sortErrors(errs, order)
		return nil, err
	}

	res.CodeBuffer = link(compiled, functions, opts)
	return res, nil
}

// sortErrors orders errors by module declaration order, then line.
func sortErrors(errs ErrorList, order map[string]int) {
	rank := func(e *Error) int {
		if i, ok := order[e.ModuleID]; ok {
			return i
		}
		return -1
	}
	sort.SliceStable(errs, func(i, j int) bool {
		ri, rj := rank(errs[i]), rank(errs[j])
		if ri != rj {
			return ri < rj
		}
		return errs[i].Line < errs[j].Line
	})
}
