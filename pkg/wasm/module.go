package wasm

import "bytes"

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) equal(o FuncType) bool {
	return bytes.Equal(valBytes(f.Params), valBytes(o.Params)) &&
		bytes.Equal(valBytes(f.Results), valBytes(o.Results))
}

func valBytes(vs []ValType) []byte {
	b := make([]byte, len(vs))
	for i, v := range vs {
		b[i] = byte(v)
	}
	return b
}

// Limits bounds a linear memory in pages.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Import is a memory import; the only kind this assembler needs.
type Import struct {
	Module string
	Name   string
	Memory Limits
}

type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Function is a defined function: its type index and its framed body
// (see FunctionBody).
type Function struct {
	TypeIndex uint32
	Body      []byte
}

// Module is an in-memory WebAssembly module ready to be encoded.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []Function
	Memories  []Limits
	Exports   []Export
}

// AddType returns the index of ft in the type section, appending it if no
// equal signature exists yet.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// AddFunction appends a defined function and returns its function index.
// Imports in this assembler never occupy the function index space.
func (m *Module) AddFunction(typeIndex uint32, body []byte) uint32 {
	m.Functions = append(m.Functions, Function{TypeIndex: typeIndex, Body: body})
	return uint32(len(m.Functions) - 1)
}

func (m *Module) AddExport(name string, kind ExternKind, index uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: index})
}

// Encode writes the module in binary format. Empty sections are omitted.
func (m *Module) Encode() []byte {
	out := append([]byte(nil), header...)

	if len(m.Types) > 0 {
		sec := AppendUleb128(nil, uint32(len(m.Types)))
		for _, t := range m.Types {
			sec = append(sec, funcTypeForm)
			sec = AppendUleb128(sec, uint32(len(t.Params)))
			sec = append(sec, valBytes(t.Params)...)
			sec = AppendUleb128(sec, uint32(len(t.Results)))
			sec = append(sec, valBytes(t.Results)...)
		}
		out = appendSection(out, SectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := AppendUleb128(nil, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec = appendName(sec, imp.Module)
			sec = appendName(sec, imp.Name)
			sec = append(sec, byte(ExternMemory))
			sec = appendLimits(sec, imp.Memory)
		}
		out = appendSection(out, SectionImport, sec)
	}

	if len(m.Functions) > 0 {
		sec := AppendUleb128(nil, uint32(len(m.Functions)))
		for _, f := range m.Functions {
			sec = AppendUleb128(sec, f.TypeIndex)
		}
		out = appendSection(out, SectionFunction, sec)
	}

	if len(m.Memories) > 0 {
		sec := AppendUleb128(nil, uint32(len(m.Memories)))
		for _, l := range m.Memories {
			sec = appendLimits(sec, l)
		}
		out = appendSection(out, SectionMemory, sec)
	}

	if len(m.Exports) > 0 {
		sec := AppendUleb128(nil, uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec = appendName(sec, e.Name)
			sec = append(sec, byte(e.Kind))
			sec = AppendUleb128(sec, e.Index)
		}
		out = appendSection(out, SectionExport, sec)
	}

	if len(m.Functions) > 0 {
		sec := AppendUleb128(nil, uint32(len(m.Functions)))
		for _, f := range m.Functions {
			sec = AppendUleb128(sec, uint32(len(f.Body)))
			sec = append(sec, f.Body...)
		}
		out = appendSection(out, SectionCode, sec)
	}

	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = AppendUleb128(out, uint32(len(content)))
	return append(out, content...)
}

func appendName(buf []byte, name string) []byte {
	buf = AppendUleb128(buf, uint32(len(name)))
	return append(buf, name...)
}

func appendLimits(buf []byte, l Limits) []byte {
	if l.HasMax {
		buf = append(buf, 0x01)
		buf = AppendUleb128(buf, l.Min)
		return AppendUleb128(buf, l.Max)
	}
	buf = append(buf, 0x00)
	return AppendUleb128(buf, l.Min)
}

// PagesFor returns the number of pages needed to hold size bytes, at
// least one.
func PagesFor(size int) uint32 {
	if size <= 0 {
		return 1
	}
	return uint32((size + PageSize - 1) / PageSize)
}

// MemoryExporter encodes a module that defines one memory of exactly
// pages pages and exports it under name. A host instantiates it once and
// lets every later program import that memory.
func MemoryExporter(name string, pages uint32) []byte {
	m := &Module{
		Memories: []Limits{{Min: pages, Max: pages, HasMax: true}},
	}
	m.AddExport(name, ExternMemory, 0)
	return m.Encode()
}
