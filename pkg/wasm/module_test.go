package wasm

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func TestFunctionBodyGroupsLocals(t *testing.T) {
	body := FunctionBody([]ValType{I32, I32, F32, I32}, []byte{byte(OpNop)})
	want := []byte{
		0x03,       // three groups
		0x02, 0x7F, // 2 x i32
		0x01, 0x7D, // 1 x f32
		0x01, 0x7F, // 1 x i32
		byte(OpNop),
		byte(OpEnd),
	}
	if !bytes.Equal(body, want) {
		t.Errorf("FunctionBody = % x; want % x", body, want)
	}

	if got := FunctionBody(nil, nil); !bytes.Equal(got, []byte{0x00, byte(OpEnd)}) {
		t.Errorf("empty FunctionBody = % x", got)
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &Module{}
	a := m.AddType(FuncType{})
	b := m.AddType(FuncType{Params: []ValType{I32}, Results: []ValType{F32}})
	c := m.AddType(FuncType{})
	d := m.AddType(FuncType{Params: []ValType{I32}, Results: []ValType{F32}})
	if a != c || b != d || a == b {
		t.Errorf("AddType indexes = %d %d %d %d", a, b, c, d)
	}
	if len(m.Types) != 2 {
		t.Errorf("len(Types) = %d; want 2", len(m.Types))
	}
}

func TestMemoryExporterBytes(t *testing.T) {
	got := MemoryExporter("memory", 2)
	want := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		SectionMemory, 0x04, 0x01, 0x01, 0x02, 0x02,
		SectionExport, 0x0A, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', byte(ExternMemory), 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("MemoryExporter = % x\nwant             % x", got, want)
	}
}

func TestPagesFor(t *testing.T) {
	tests := []struct {
		size int
		want uint32
	}{
		{0, 1},
		{1, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{3 * PageSize, 3},
	}
	for _, tt := range tests {
		if got := PagesFor(tt.size); got != tt.want {
			t.Errorf("PagesFor(%d) = %d; want %d", tt.size, got, tt.want)
		}
	}
}

// TestEncodedModuleRuns imports a memory, stores through it and checks the
// result with a real engine.
func TestEncodedModuleRuns(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	exporter, err := r.InstantiateWithConfig(ctx, MemoryExporter("memory", 1), wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		t.Fatalf("instantiate exporter: %v", err)
	}

	var code Code
	code.I32ConstFixed(8)
	code.F32Const(1.5)
	code.F32Const(2)
	code.Op(OpF32Add)
	code.Memory(OpF32Store, Align32, 0)

	m := &Module{}
	m.Imports = append(m.Imports, Import{Module: "env", Name: "memory", Memory: Limits{Min: 1, Max: 1, HasMax: true}})
	ti := m.AddType(FuncType{})
	fi := m.AddFunction(ti, FunctionBody(nil, code.Bytes()))
	m.AddExport("run", ExternFunc, fi)

	mod, err := r.InstantiateWithConfig(ctx, m.Encode(), wazero.NewModuleConfig().WithName(""))
	if err != nil {
		t.Fatalf("instantiate program: %v", err)
	}
	if _, err := mod.ExportedFunction("run").Call(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, ok := exporter.Memory().ReadFloat32Le(8)
	if !ok || got != 3.5 {
		t.Errorf("memory[8] = %v, %v; want 3.5", got, ok)
	}
}
