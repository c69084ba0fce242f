package compiler

import (
	"fmt"
	"math"
	"sort"

	"livestack/pkg/wasm"
)

// ModuleKind tells the planner what a source unit may contain.
type ModuleKind string

const (
	KindModule    ModuleKind = "module"
	KindFunction  ModuleKind = "function"
	KindConstants ModuleKind = "constants"
)

// Module is one source unit as handed over by the editor. An empty Kind is
// inferred from the header line (module, function or constants).
type Module struct {
	ID    string     `json:"id"`
	Kind  ModuleKind `json:"kind,omitempty"`
	Lines []string   `json:"lines"`
	// SkipExecution excludes the module from the cycle entry point; the
	// host sets it for whole groups of modules.
	SkipExecution bool `json:"skipExecution,omitempty"`
}

const (
	// DefaultMemorySizeBytes is used when Options.MemorySizeBytes is zero.
	DefaultMemorySizeBytes = wasm.PageSize
	// MaxMemorySizeBytes is the most a 32-bit linear memory can address.
	MaxMemorySizeBytes = 65536 * wasm.PageSize
)

// Options controls memory planning and linking.
type Options struct {
	// MemorySizeBytes is the hard ceiling of the linear memory.
	MemorySizeBytes int `json:"memorySizeBytes"`
	// StartingMemoryWordAddress reserves a header region at the start of
	// memory, in 4-byte words.
	StartingMemoryWordAddress int `json:"startingMemoryWordAddress"`
	// ExportMemory re-exports the imported memory for debugging.
	ExportMemory bool `json:"exportMemory,omitempty"`
}

// validate rejects options no memory layout can satisfy.
func (o Options) validate() *Error {
	switch {
	case o.StartingMemoryWordAddress < 0:
		return &Error{
			Kind: OutOfMemoryError,
			Msg:  fmt.Sprintf("starting word address %d is negative", o.StartingMemoryWordAddress),
		}
	case int64(o.MemorySizeBytes) > MaxMemorySizeBytes:
		return &Error{
			Kind: OutOfMemoryError,
			Msg:  fmt.Sprintf("memory of %d bytes exceeds the %d byte limit", o.MemorySizeBytes, int64(MaxMemorySizeBytes)),
		}
	}
	return nil
}

func (o Options) memorySize() int {
	if o.MemorySizeBytes <= 0 {
		return DefaultMemorySizeBytes
	}
	return o.MemorySizeBytes
}

// ValueType is the type of one operand on the stack.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeFloat
	TypeFloat64

	// typeAny stands in for operands of unreachable code.
	typeAny
)

var valueTypeNames = map[string]ValueType{
	"int":     TypeInt,
	"float":   TypeFloat,
	"float64": TypeFloat64,
}

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeFloat64:
		return "float64"
	}
	return "any"
}

func (t ValueType) wasm() wasm.ValType {
	switch t {
	case TypeFloat:
		return wasm.F32
	case TypeFloat64:
		return wasm.F64
	}
	return wasm.I32
}

func (t ValueType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ValueType) UnmarshalText(b []byte) error {
	v, ok := valueTypeNames[string(b)]
	if !ok {
		return fmt.Errorf("unknown value type %q", b)
	}
	*t = v
	return nil
}

// MemoryType is the declared type of a Symbol. Its value is the mnemonic
// that declares it.
type MemoryType string

const (
	MemInt          MemoryType = "int"
	MemFloat        MemoryType = "float"
	MemFloat64      MemoryType = "float64"
	MemIntPtr       MemoryType = "int*"
	MemIntPtrPtr    MemoryType = "int**"
	MemFloatPtr     MemoryType = "float*"
	MemFloatPtrPtr  MemoryType = "float**"
	MemFloat64Ptr   MemoryType = "float64*"
	MemIntArray     MemoryType = "int[]"
	MemInt8Array    MemoryType = "int8[]"
	MemInt8UArray   MemoryType = "int8u[]"
	MemInt16Array   MemoryType = "int16[]"
	MemInt16UArray  MemoryType = "int16u[]"
	MemFloatArray   MemoryType = "float[]"
	MemFloat64Array MemoryType = "float64[]"
	MemIntPtrArray  MemoryType = "int*[]"
	MemFloatPtrArr  MemoryType = "float*[]"
)

var memoryTypes = []MemoryType{
	MemInt, MemFloat, MemFloat64,
	MemIntPtr, MemIntPtrPtr, MemFloatPtr, MemFloatPtrPtr, MemFloat64Ptr,
	MemIntArray, MemInt8Array, MemInt8UArray, MemInt16Array, MemInt16UArray,
	MemFloatArray, MemFloat64Array, MemIntPtrArray, MemFloatPtrArr,
}

// IsArray reports whether the type declares more than one element.
func (m MemoryType) IsArray() bool {
	switch m {
	case MemIntArray, MemInt8Array, MemInt8UArray, MemInt16Array, MemInt16UArray,
		MemFloatArray, MemFloat64Array, MemIntPtrArray, MemFloatPtrArr:
		return true
	}
	return false
}

// IsPointer reports whether elements hold addresses.
func (m MemoryType) IsPointer() bool {
	switch m {
	case MemIntPtr, MemIntPtrPtr, MemFloatPtr, MemFloatPtrPtr, MemFloat64Ptr,
		MemIntPtrArray, MemFloatPtrArr:
		return true
	}
	return false
}

// ElementSize is the size of one element in bytes.
func (m MemoryType) ElementSize() int {
	switch m {
	case MemInt8Array, MemInt8UArray:
		return 1
	case MemInt16Array, MemInt16UArray:
		return 2
	case MemFloat64, MemFloat64Array:
		return 8
	}
	return 4
}

// ElementType is the stack type of one element's value. Pointers are
// addresses and therefore int.
func (m MemoryType) ElementType() ValueType {
	switch m {
	case MemFloat, MemFloatArray:
		return TypeFloat
	case MemFloat64, MemFloat64Array:
		return TypeFloat64
	}
	return TypeInt
}

// Pointee returns the type a pointer points at and whether that target is
// itself a pointer.
func (m MemoryType) Pointee() (ValueType, bool) {
	switch m {
	case MemFloatPtr, MemFloatPtrArr:
		return TypeFloat, false
	case MemFloat64Ptr:
		return TypeFloat64, false
	case MemIntPtrPtr, MemFloatPtrPtr:
		return TypeInt, true
	}
	return TypeInt, false
}

// Range returns the smallest and largest value an element can hold.
func (m MemoryType) Range() (min, max float64) {
	switch m {
	case MemInt8Array:
		return math.MinInt8, math.MaxInt8
	case MemInt8UArray:
		return 0, math.MaxUint8
	case MemInt16Array:
		return math.MinInt16, math.MaxInt16
	case MemInt16UArray:
		return 0, math.MaxUint16
	case MemFloat, MemFloatArray:
		return -math.MaxFloat32, math.MaxFloat32
	case MemFloat64, MemFloat64Array:
		return -math.MaxFloat64, math.MaxFloat64
	}
	return math.MinInt32, math.MaxInt32
}

func (m MemoryType) loadOp() (wasm.Opcode, uint32) {
	switch m {
	case MemInt8Array:
		return wasm.OpI32Load8S, wasm.Align8
	case MemInt8UArray:
		return wasm.OpI32Load8U, wasm.Align8
	case MemInt16Array:
		return wasm.OpI32Load16S, wasm.Align16
	case MemInt16UArray:
		return wasm.OpI32Load16U, wasm.Align16
	}
	return loadOpFor(m.ElementType()), alignFor(m.ElementType())
}

func (m MemoryType) storeOp() (wasm.Opcode, uint32) {
	switch m {
	case MemInt8Array, MemInt8UArray:
		return wasm.OpI32Store8, wasm.Align8
	case MemInt16Array, MemInt16UArray:
		return wasm.OpI32Store16, wasm.Align16
	}
	return storeOpFor(m.ElementType()), alignFor(m.ElementType())
}

func alignFor(t ValueType) uint32 {
	if t == TypeFloat64 {
		return wasm.Align64
	}
	return wasm.Align32
}

func loadOpFor(t ValueType) wasm.Opcode {
	switch t {
	case TypeFloat:
		return wasm.OpF32Load
	case TypeFloat64:
		return wasm.OpF64Load
	}
	return wasm.OpI32Load
}

func storeOpFor(t ValueType) wasm.Opcode {
	switch t {
	case TypeFloat:
		return wasm.OpF32Store
	case TypeFloat64:
		return wasm.OpF64Store
	}
	return wasm.OpI32Store
}

// Symbol is one storage location in linear memory.
type Symbol struct {
	ID                 string     `json:"id"`
	Type               MemoryType `json:"type"`
	WordAlignedAddress int        `json:"wordAlignedAddress"`
	WordAlignedSize    int        `json:"wordAlignedSize"`
	NumberOfElements   int        `json:"numberOfElements"`
	// ElementWordSize is the size of one element in bytes.
	ElementWordSize int `json:"elementWordSize"`
	ByteAddress     int `json:"byteAddress"`
	// Default is the initial value of a scalar.
	Default float64 `json:"default"`
	// Defaults holds the sparse initial values of an array by index.
	Defaults            map[int]float64 `json:"defaults,omitempty"`
	IsInteger           bool            `json:"isInteger"`
	IsPointer           bool            `json:"isPointer"`
	IsPointingToInteger bool            `json:"isPointingToInteger"`
	IsPointingToPointer bool            `json:"isPointingToPointer"`
	IsAnonymous         bool            `json:"isAnonymous,omitempty"`
}

// EndByteAddress is the byte address of the last element.
func (s *Symbol) EndByteAddress() int {
	return s.ByteAddress + (s.NumberOfElements-1)*s.ElementWordSize
}

// ElementAddress is the byte address of element i.
func (s *Symbol) ElementAddress(i int) int {
	return s.ByteAddress + i*s.ElementWordSize
}

func newSymbol(id string, mt MemoryType, elements int) *Symbol {
	size := mt.ElementSize()
	words := (elements*size + 3) / 4
	if words < 1 {
		words = 1
	}
	pointee, toPointer := mt.Pointee()
	s := &Symbol{
		ID:               id,
		Type:             mt,
		WordAlignedSize:  words,
		NumberOfElements: elements,
		ElementWordSize:  size,
		IsInteger:        mt.ElementType() == TypeInt,
		IsPointer:        mt.IsPointer(),
	}
	if s.IsPointer {
		s.IsPointingToInteger = pointee == TypeInt
		s.IsPointingToPointer = toPointer
	}
	if mt.IsArray() {
		s.Defaults = make(map[int]float64)
	}
	return s
}

// CompiledModule is one module's binary bodies plus its slice of the
// memory map.
type CompiledModule struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	// LoopFunction is a complete function body (locals, code, end) run
	// every cycle.
	LoopFunction []byte `json:"loopFunction"`
	// InitFunctionBody is a bare instruction sequence run once.
	InitFunctionBody   []byte            `json:"initFunctionBody"`
	MemoryMap          map[string]Symbol `json:"memoryMap"`
	WordAlignedAddress int               `json:"wordAlignedAddress"`
	WordAlignedSize    int               `json:"wordAlignedSize"`
	SkipExecution      bool              `json:"skipExecution,omitempty"`
	InitOnly           bool              `json:"initOnly,omitempty"`
}

// Symbols returns the memory map ordered by address.
func (m *CompiledModule) Symbols() []Symbol {
	out := make([]Symbol, 0, len(m.MemoryMap))
	for _, s := range m.MemoryMap {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ByteAddress < out[j].ByteAddress })
	return out
}

// CompiledModuleLookup maps module id to its compiled form. It is the
// snapshot compared across recompiles.
type CompiledModuleLookup map[string]*CompiledModule

// Ordered returns the modules in declaration order.
func (l CompiledModuleLookup) Ordered() []*CompiledModule {
	out := make([]*CompiledModule, 0, len(l))
	for _, m := range l {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Signature is the parameter and result list of a function.
type Signature struct {
	Params  []ValueType `json:"params"`
	Results []ValueType `json:"results"`
}

func (s Signature) wasm() wasm.FuncType {
	ft := wasm.FuncType{}
	for _, p := range s.Params {
		ft.Params = append(ft.Params, p.wasm())
	}
	for _, r := range s.Results {
		ft.Results = append(ft.Results, r.wasm())
	}
	return ft
}

// CompiledFunction is a user function compiled from a function block.
type CompiledFunction struct {
	ID string `json:"id"`
	// Index is the function's index in the binary's function space.
	Index     int       `json:"index"`
	Signature Signature `json:"signature"`
	Body      []byte    `json:"body"`
}

// Result is everything one compile produces.
type Result struct {
	CodeBuffer          []byte                       `json:"codeBuffer"`
	CompiledModules     CompiledModuleLookup         `json:"compiledModules"`
	CompiledFunctions   map[string]*CompiledFunction `json:"compiledFunctions"`
	AllocatedMemorySize int                          `json:"allocatedMemorySize"`
	// MemorySizeBytes is the size of the memory the binary imports.
	MemorySizeBytes int `json:"memorySizeBytes"`
}
