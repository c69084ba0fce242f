package compiler

import "livestack/pkg/wasm"

// Names of the binary's import and exports. The host binds the same memory
// under MemoryImportModule.MemoryImportName on every recompile.
const (
	MemoryImportModule = "js"
	MemoryImportName   = "memory"
	InitExportName     = "init"
	CycleExportName    = "cycle"
	MemoryExportName   = "memory"
)

// link assembles the program. Function indexes are laid out as user
// functions, module loop functions, init, then cycle.
func link(modules []*CompiledModule, functions []*CompiledFunction, opts Options) []byte {
	pages := wasm.PagesFor(opts.memorySize())
	m := &wasm.Module{
		Imports: []wasm.Import{{
			Module: MemoryImportModule,
			Name:   MemoryImportName,
			Memory: wasm.Limits{Min: pages, Max: pages, HasMax: true},
		}},
	}

	for _, f := range functions {
		m.AddFunction(m.AddType(f.Signature.wasm()), f.Body)
	}

	void := m.AddType(wasm.FuncType{})
	loopIndex := func(cm *CompiledModule) uint32 {
		return uint32(len(functions) + cm.Index)
	}
	for _, cm := range modules {
		m.AddFunction(void, cm.LoopFunction)
	}

	var init wasm.Code
	for _, cm := range modules {
		init.Append(cm.InitFunctionBody)
	}
	for _, cm := range modules {
		if cm.InitOnly {
			init.Call(loopIndex(cm))
		}
	}
	initIndex := m.AddFunction(void, wasm.FunctionBody(nil, init.Bytes()))

	var cycle wasm.Code
	for _, cm := range modules {
		if !cm.SkipExecution && !cm.InitOnly {
			cycle.Call(loopIndex(cm))
		}
	}
	cycleIndex := m.AddFunction(void, wasm.FunctionBody(nil, cycle.Bytes()))

	m.AddExport(InitExportName, wasm.ExternFunc, initIndex)
	m.AddExport(CycleExportName, wasm.ExternFunc, cycleIndex)
	if opts.ExportMemory {
		m.AddExport(MemoryExportName, wasm.ExternMemory, 0)
	}
	return m.Encode()
}
