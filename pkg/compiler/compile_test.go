package compiler

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/tools/txtar"

	"livestack/pkg/wasm"
)

// loadProject reads a txtar archive in which every file is one module.
// Ids and kinds come from the module headers.
func loadProject(t testing.TB, name string) []Module {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading %s failed: %v", name, err)
	}
	var mods []Module
	for _, f := range ar.Files {
		mods = append(mods, Module{Lines: strings.Split(string(f.Data), "\n")})
	}
	return mods
}

// modules builds one Module per source text.
func modules(srcs ...string) []Module {
	mods := make([]Module, len(srcs))
	for i, src := range srcs {
		mods[i] = Module{Lines: strings.Split(src, "\n")}
	}
	return mods
}

func mustCompile(t testing.TB, mods []Module, opts Options) *Result {
	t.Helper()
	res, err := Compile(mods, opts)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return res
}

// program is a compiled result instantiated against its own memory.
type program struct {
	ctx    context.Context
	mem    api.Memory
	init   api.Function
	cycle  api.Function
	module api.Module
}

func instantiate(t *testing.T, res *Result) *program {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })

	pages := wasm.PagesFor(res.MemorySizeBytes)
	host, err := r.InstantiateWithConfig(ctx, wasm.MemoryExporter(MemoryImportName, pages),
		wazero.NewModuleConfig().WithName(MemoryImportModule))
	if err != nil {
		t.Fatalf("memory module failed: %v", err)
	}
	mod, err := r.InstantiateWithConfig(ctx, res.CodeBuffer, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return &program{
		ctx:    ctx,
		mem:    host.ExportedMemory(MemoryImportName),
		init:   mod.ExportedFunction(InitExportName),
		cycle:  mod.ExportedFunction(CycleExportName),
		module: mod,
	}
}

func (p *program) run(t *testing.T, cycles int) {
	t.Helper()
	if _, err := p.init.Call(p.ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	p.step(t, cycles)
}

func (p *program) step(t *testing.T, cycles int) {
	t.Helper()
	for i := 0; i < cycles; i++ {
		if _, err := p.cycle.Call(p.ctx); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}
}

// read returns element index of sym as a float64.
func (p *program) read(t *testing.T, sym Symbol, index int) float64 {
	t.Helper()
	addr := uint32(sym.ElementAddress(index))
	var (
		v  float64
		ok bool
	)
	switch sym.Type {
	case MemFloat, MemFloatArray:
		var f float32
		f, ok = p.mem.ReadFloat32Le(addr)
		v = float64(f)
	case MemFloat64, MemFloat64Array:
		v, ok = p.mem.ReadFloat64Le(addr)
	case MemInt8Array:
		var b byte
		b, ok = p.mem.ReadByte(addr)
		v = float64(int8(b))
	case MemInt8UArray:
		var b byte
		b, ok = p.mem.ReadByte(addr)
		v = float64(b)
	case MemInt16Array:
		var h uint16
		h, ok = p.mem.ReadUint16Le(addr)
		v = float64(int16(h))
	case MemInt16UArray:
		var h uint16
		h, ok = p.mem.ReadUint16Le(addr)
		v = float64(h)
	default:
		var w uint32
		w, ok = p.mem.ReadUint32Le(addr)
		v = float64(int32(w))
	}
	if !ok {
		t.Fatalf("reading %s at %d out of range", sym.ID, addr)
	}
	return v
}

func lookup(t *testing.T, res *Result, module, id string) Symbol {
	t.Helper()
	cm, ok := res.CompiledModules[module]
	if !ok {
		t.Fatalf("module %q not compiled", module)
	}
	sym, ok := cm.MemoryMap[id]
	if !ok {
		t.Fatalf("module %q has no symbol %q", module, id)
	}
	return sym
}

type expect struct {
	module, id string
	index      int
	want       float64
}

func TestProgramBehaviour(t *testing.T) {
	tests := []struct {
		fixture string
		cycles  int
		expect  []expect
	}{
		{"counter.txtar", 10, []expect{{"counter", "count", 0, 10}}},
		{"floats.txtar", 1, []expect{
			{"math", "wide", 0, 3.5},
			{"math", "truncated", 0, -2},
			{"math", "root", 0, 2},
			{"math", "y", 0, 2},
		}},
		{"flow.txtar", 3, []expect{
			{"flow", "total", 0, 15},
			{"flow", "sign", 0, 1},
			{"flow", "i", 0, 5},
		}},
		{"functions.txtar", 1, []expect{
			{"calls", "result", 0, 49},
			{"calls", "mid", 0, 2},
		}},
		{"arrays.txtar", 1, []expect{
			{"arrays", "first", 0, -1},
			{"arrays", "last", 0, 4},
			{"arrays", "sum", 0, 7 + 65535},
			{"arrays", "count", 0, 6},
			{"arrays", "ints", 1, 20},
			{"arrays", "ints", 2, 7},
			{"arrays", "bytes", 2, -3},
			{"arrays", "p", 0, 8},
		}},
		{"stack.txtar", 1, []expect{
			{"stack", "a", 0, 7},
			{"stack", "b", 0, 1},
			{"stack", "c", 0, 10},
		}},
		{"lifecycle.txtar", 3, []expect{
			{"boot", "booted", 0, 1},
			{"paused", "ticks", 0, 0},
			{"running", "ticks", 0, 3},
		}},
		{"constants.txtar", 2, []expect{
			{"stepper", "value", 0, 9},
			{"stepper", "gain", 0, 0.5},
			{"stepper", "__anonymous__0", 0, 42},
			{"stepper", "__anonymous__1", 0, 3},
			{"reader", "copy", 0, 9},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			res := mustCompile(t, loadProject(t, tt.fixture), Options{})
			p := instantiate(t, res)
			p.run(t, tt.cycles)
			for _, e := range tt.expect {
				sym := lookup(t, res, e.module, e.id)
				if got := p.read(t, sym, e.index); got != e.want {
					t.Errorf("%s.%s[%d] = %v; want %v", e.module, e.id, e.index, got, e.want)
				}
			}
		})
	}
}

func TestRisingEdgeCountsTransitions(t *testing.T) {
	res := mustCompile(t, loadProject(t, "edges.txtar"), Options{})
	p := instantiate(t, res)
	input := lookup(t, res, "edges", "input")
	rises := lookup(t, res, "edges", "rises")

	set := func(v uint32) {
		if !p.mem.WriteUint32Le(uint32(input.ByteAddress), v) {
			t.Fatal("write failed")
		}
	}

	p.run(t, 1)
	set(1)
	p.step(t, 2)
	if got := p.read(t, rises, 0); got != 1 {
		t.Fatalf("rises after first edge = %v; want 1", got)
	}
	set(0)
	p.step(t, 1)
	set(1)
	p.step(t, 3)
	if got := p.read(t, rises, 0); got != 2 {
		t.Errorf("rises after second edge = %v; want 2", got)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	fixtures := []string{"constants.txtar", "functions.txtar", "arrays.txtar", "lifecycle.txtar"}
	var mods []Module
	for _, f := range fixtures {
		mods = append(mods, loadProject(t, f)...)
	}

	a := mustCompile(t, mods, Options{})
	b := mustCompile(t, mods, Options{})
	if !bytes.Equal(a.CodeBuffer, b.CodeBuffer) {
		t.Error("code buffers differ between identical compiles")
	}
	if !reflect.DeepEqual(a.CompiledModules, b.CompiledModules) {
		t.Error("compiled modules differ between identical compiles")
	}
}

func TestAddressInvariants(t *testing.T) {
	var mods []Module
	for _, f := range []string{"arrays.txtar", "floats.txtar", "constants.txtar", "edges.txtar"} {
		mods = append(mods, loadProject(t, f)...)
	}
	const start = 3
	res := mustCompile(t, mods, Options{StartingMemoryWordAddress: start})

	end := start
	for _, cm := range res.CompiledModules.Ordered() {
		if cm.WordAlignedAddress != end {
			t.Errorf("module %s starts at word %d; want %d", cm.ID, cm.WordAlignedAddress, end)
		}
		for _, sym := range cm.Symbols() {
			if sym.WordAlignedAddress != end {
				t.Errorf("%s.%s at word %d; want %d", cm.ID, sym.ID, sym.WordAlignedAddress, end)
			}
			if sym.ByteAddress != sym.WordAlignedAddress*4 {
				t.Errorf("%s.%s byte address %d is not word address %d * 4", cm.ID, sym.ID, sym.ByteAddress, sym.WordAlignedAddress)
			}
			if sym.WordAlignedSize < 1 || sym.NumberOfElements*sym.ElementWordSize > sym.WordAlignedSize*4 {
				t.Errorf("%s.%s does not fit its %d words", cm.ID, sym.ID, sym.WordAlignedSize)
			}
			end += sym.WordAlignedSize
		}
		if got := cm.WordAlignedAddress + cm.WordAlignedSize; got != end {
			t.Errorf("module %s window ends at %d; want %d", cm.ID, got, end)
		}
	}
	if res.AllocatedMemorySize != end*4 {
		t.Errorf("AllocatedMemorySize = %d; want %d", res.AllocatedMemorySize, end*4)
	}
}

func TestOutOfMemory(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		src  string
		oom  bool
	}{
		{"array too large", Options{MemorySizeBytes: 16}, "module m\nint[] a 8\nmoduleEnd", true},
		{"header pushes past the end", Options{MemorySizeBytes: 64, StartingMemoryWordAddress: 15}, "module m\nint x\nint y\nmoduleEnd", true},
		{"exact fit", Options{MemorySizeBytes: 64, StartingMemoryWordAddress: 14}, "module m\nint x\nint y\nmoduleEnd", false},
		{"negative start", Options{StartingMemoryWordAddress: -4}, "module m\nint x\nmoduleEnd", true},
		{"past 32-bit memory", Options{MemorySizeBytes: 8 << 30, StartingMemoryWordAddress: 1 << 30}, "module m\nint x\nmoduleEnd", true},
		{"largest memory", Options{MemorySizeBytes: MaxMemorySizeBytes}, "module m\nint x\nmoduleEnd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(modules(tt.src), tt.opts)
			if !tt.oom {
				if err != nil {
					t.Fatalf("Compile failed: %v", err)
				}
				return
			}
			if res != nil {
				t.Error("a result was produced despite running out of memory")
			}
			if !HasKind(err, OutOfMemoryError) {
				t.Fatalf("err = %v; want an out of memory error", err)
			}
			if list := err.(ErrorList); len(list) != 1 {
				t.Errorf("got %d errors; out of memory is reported alone", len(list))
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		srcs   []string
		kind   ErrorKind
		line   int
		substr string
	}{
		{"unknown instruction", []string{"module m\nfoo\nmoduleEnd"}, SyntaxError, 2, "unknown instruction"},
		{"unknown directive", []string{"module m\n#fast\nmoduleEnd"}, SyntaxError, 2, "unknown directive"},
		{"malformed argument", []string{"module m\npush 1x\nmoduleEnd"}, SyntaxError, 2, "malformed"},
		{"missing id", []string{"push 1"}, SyntaxError, 0, "without an id"},
		{"unresolved symbol", []string{"module m\npush nope\nmoduleEnd"}, UnresolvedSymbolError, 2, "nope"},
		{"unresolved qualified symbol", []string{"module m\npush other.x\nmoduleEnd"}, UnresolvedSymbolError, 2, "other.x"},
		{"type mismatch", []string{"module m\npush 1\npush 1.5\nadd\ndrop\nmoduleEnd"}, TypeMismatchError, 4, "int and float"},
		{"float bitwise", []string{"module m\npush 1.5\npush 2.5\nand\ndrop\nmoduleEnd"}, TypeMismatchError, 4, "not defined for float"},
		{"duplicate symbol", []string{"module m\nint x\nint x\nmoduleEnd"}, DuplicateSymbolError, 3, `"x"`},
		{"duplicate module", []string{"module m\nmoduleEnd", "module m\nmoduleEnd"}, DuplicateSymbolError, 0, "already used"},
		{"duplicate const", []string{"module m\nconst A 1\nconst A 2\nmoduleEnd"}, DuplicateSymbolError, 3, `"A"`},
		{"duplicate local", []string{"module m\nlocal int t\nlocal float t\nmoduleEnd"}, DuplicateSymbolError, 3, `"t"`},
		{"unknown use", []string{"module m\nuse nowhere\nmoduleEnd"}, UnresolvedSymbolError, 2, "nowhere"},
		{"circular use", []string{"constants a\nuse b\nconstantsEnd", "constants b\nuse a\nconstantsEnd"}, UnresolvedSymbolError, 2, "circular use"},
		{"leftover operand", []string{"module m\npush 1\nmoduleEnd"}, TypeMismatchError, 3, "ends with [int]"},
		{"stack underflow", []string{"module m\nadd\nmoduleEnd"}, SyntaxError, 2, "underflow"},
		{"operand count", []string{"module m\npush 1 2\nmoduleEnd"}, SyntaxError, 2, "expects 1 argument"},
		{"branch too deep", []string{"module m\nblock\nbranch 1\nblockEnd\nmoduleEnd"}, SyntaxError, 3, "enclosing"},
		{"branch outside blocks", []string{"module m\nbranch 0\nmoduleEnd"}, SyntaxError, 2, "enclosing"},
		{"unclosed if", []string{"module m\npush 1\nif\nmoduleEnd"}, SyntaxError, 3, "never closed"},
		{"else without if", []string{"module m\nelse\nmoduleEnd"}, SyntaxError, 2, "else without if"},
		{"blockEnd without block", []string{"module m\nloop\nblockEnd\nmoduleEnd"}, SyntaxError, 3, "without block"},
		{"if result without else", []string{"module m\npush 1\nif\npush 2\nifEnd int\ndrop\nmoduleEnd"}, TypeMismatchError, 5, "else"},
		{"branch out of result block", []string{"module m\nblock\npush 1\nbranch 0\nblockEnd int\ndrop\nmoduleEnd"}, TypeMismatchError, 5, "cannot branch"},
		{"float condition", []string{"module m\npush 1.5\nif\nifEnd\nmoduleEnd"}, TypeMismatchError, 3, "condition must be int"},
		{"float default for int", []string{"module m\nint x 1.5\nmoduleEnd"}, TypeMismatchError, 2, "not an integer"},
		{"default out of range", []string{"module m\nint8[] b 2 300\nmoduleEnd"}, TypeMismatchError, 2, "out of range"},
		{"dereference in default", []string{"module m\nint* p\nint x *p\nmoduleEnd"}, SyntaxError, 3, "compile time"},
		{"push array by value", []string{"module m\nint[] a 2\npush a\ndrop\nmoduleEnd"}, TypeMismatchError, 3, "array"},
		{"dereference a scalar", []string{"module m\nint a\npush *a\ndrop\nmoduleEnd"}, TypeMismatchError, 3, "dereference"},
		{"init index out of range", []string{"module m\nint[] a 2\ninit a[2] 1\nmoduleEnd"}, SyntaxError, 3, "out of range"},
		{"init unknown memory", []string{"module m\ninit ghost 1\nmoduleEnd"}, UnresolvedSymbolError, 2, "ghost"},
		{"array without size", []string{"module m\nint[] a\nmoduleEnd"}, SyntaxError, 2, "element count"},
		{"too many defaults", []string{"module m\nint[] a 2 1 2 3\nmoduleEnd"}, SyntaxError, 2, "3 defaults for 2"},
		{"unknown function", []string{"module m\ncall nope\nmoduleEnd"}, UnresolvedSymbolError, 2, "nope"},
		{"call argument types", []string{"function f\nparam int x\nfunctionEnd", "module m\npush 1.5\ncall f\nmoduleEnd"}, TypeMismatchError, 3, "call f"},
		{"function result", []string{"function f\npush 1\nfunctionEnd float"}, TypeMismatchError, 3, "want [float]"},
		{"code after functionEnd", []string{"function f\nfunctionEnd\npush 1"}, SyntaxError, 3, "after functionEnd"},
		{"code after moduleEnd", []string{"module m\nint x\nmoduleEnd\npush &x\npush 1\nstore"}, SyntaxError, 4, "push after moduleEnd"},
		{"memory after moduleEnd", []string{"module m\nmoduleEnd\nint late"}, SyntaxError, 3, "int after moduleEnd"},
		{"second moduleEnd", []string{"module m\nmoduleEnd\nmoduleEnd"}, SyntaxError, 3, "second moduleEnd"},
		{"second functionEnd", []string{"function f\nfunctionEnd\nfunctionEnd int"}, SyntaxError, 3, "second functionEnd"},
		{"missing moduleEnd", []string{"module m\nint x"}, SyntaxError, 1, "no moduleEnd"},
		{"missing constantsEnd", []string{"constants c\nconst A 1"}, SyntaxError, 1, "no constantsEnd"},
		{"missing functionEnd", []string{"function f\npush 1\ndrop"}, SyntaxError, 1, "no functionEnd"},
		{"closer of another block", []string{"module m\nconstantsEnd\nmoduleEnd"}, SyntaxError, 2, "does not close module m"},
		{"closer without header", []string{"int x\nmoduleEnd"}, SyntaxError, 2, "without a module header"},
		{"memory in a function", []string{"function f\nint x\nfunctionEnd"}, SyntaxError, 2, "not allowed"},
		{"code in constants", []string{"constants c\npush 1\nconstantsEnd"}, SyntaxError, 2, "not allowed"},
		{"edge in a function", []string{"function f\nparam int x\nlocalGet x\nrisingEdge\nfunctionEnd int"}, SyntaxError, 4, "not allowed"},
		{"header mismatch", []string{"module m\nfunction f"}, SyntaxError, 2, "second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(modules(tt.srcs...), Options{})
			if err == nil {
				t.Fatalf("Compile succeeded; want %s", tt.kind)
			}
			if res != nil {
				t.Error("a result was produced despite errors")
			}
			list, ok := err.(ErrorList)
			if !ok {
				t.Fatalf("err is %T; want ErrorList", err)
			}
			for _, e := range list {
				if e.Kind == tt.kind && e.Line == tt.line && strings.Contains(e.Msg, tt.substr) {
					return
				}
			}
			t.Errorf("no %s on line %d mentioning %q in:\n%v", tt.kind, tt.line, tt.substr, err)
		})
	}
}

func TestErrorsAreCollected(t *testing.T) {
	_, err := Compile(modules(
		"module a\nint x 1.5\nint x\nint[] y\nmoduleEnd",
		"module b\npush nope\nmoduleEnd",
	), Options{})
	list, ok := err.(ErrorList)
	if !ok {
		t.Fatalf("err = %v; want ErrorList", err)
	}

	var got []string
	for _, e := range list {
		got = append(got, e.ModuleID+":"+e.Kind.String())
	}
	want := []string{
		"a:type mismatch",
		"a:duplicate symbol",
		"a:syntax error",
		"b:unresolved symbol",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("errors = %v; want %v", got, want)
	}
}

func TestInitBodyLengthIgnoresValues(t *testing.T) {
	compile := func(x, y, z string) *CompiledModule {
		res := mustCompile(t, modules("module m\nint x "+x+"\nfloat y "+y+"\nint[] z 2 "+z+"\nmoduleEnd"), Options{})
		return res.CompiledModules["m"]
	}
	a := compile("1", "0.5", "0")
	b := compile("-100000", "12345.678", "0x7FFFFFFF")
	if len(a.InitFunctionBody) != len(b.InitFunctionBody) {
		t.Errorf("init body length %d vs %d", len(a.InitFunctionBody), len(b.InitFunctionBody))
	}
	if len(a.LoopFunction) != len(b.LoopFunction) {
		t.Errorf("loop function length %d vs %d", len(a.LoopFunction), len(b.LoopFunction))
	}
}

func TestFunctionIndexes(t *testing.T) {
	res := mustCompile(t, loadProject(t, "functions.txtar"), Options{})
	for name, want := range map[string]int{"square": 0, "lerp": 1} {
		f, ok := res.CompiledFunctions[name]
		if !ok {
			t.Fatalf("function %s not compiled", name)
		}
		if f.Index != want {
			t.Errorf("%s index = %d; want %d", name, f.Index, want)
		}
	}
	sig := res.CompiledFunctions["lerp"].Signature
	want := Signature{Params: []ValueType{TypeFloat, TypeFloat}, Results: []ValueType{TypeFloat}}
	if !reflect.DeepEqual(sig, want) {
		t.Errorf("lerp signature = %+v; want %+v", sig, want)
	}
	if _, ok := res.CompiledModules["square"]; ok {
		t.Error("functions must not appear among compiled modules")
	}
}

func TestExportMemory(t *testing.T) {
	for _, export := range []bool{false, true} {
		res := mustCompile(t, loadProject(t, "counter.txtar"), Options{ExportMemory: export})
		p := instantiate(t, res)
		if got := p.module.ExportedMemory(MemoryExportName) != nil; got != export {
			t.Errorf("ExportMemory=%v: memory exported = %v", export, got)
		}
	}
}

func TestMemoryImportPages(t *testing.T) {
	res := mustCompile(t, loadProject(t, "counter.txtar"), Options{MemorySizeBytes: 3*wasm.PageSize - 10})
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, res.CodeBuffer)
	if err != nil {
		t.Fatalf("CompileModule failed: %v", err)
	}
	imports := compiled.ImportedMemories()
	if len(imports) != 1 {
		t.Fatalf("%d memory imports; want 1", len(imports))
	}
	mem := imports[0]
	if mod, name, _ := mem.Import(); mod != MemoryImportModule || name != MemoryImportName {
		t.Errorf("import = %s.%s", mod, name)
	}
	if max, ok := mem.Max(); mem.Min() != 3 || !ok || max != 3 {
		t.Errorf("limits = %d..%d (%v); want 3..3", mem.Min(), max, ok)
	}
	if len(compiled.ExportedFunctions()) != 2 {
		t.Errorf("exported functions = %v; want init and cycle", compiled.ExportedFunctions())
	}
}
