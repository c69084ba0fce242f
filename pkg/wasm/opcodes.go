package wasm

// Opcode is a single-byte WebAssembly instruction opcode.
type Opcode byte

const (
	OpUnreachable Opcode = 0x00
	OpNop         Opcode = 0x01
	OpBlock       Opcode = 0x02
	OpLoop        Opcode = 0x03
	OpIf          Opcode = 0x04
	OpElse        Opcode = 0x05
	OpEnd         Opcode = 0x0B
	OpBr          Opcode = 0x0C
	OpBrIf        Opcode = 0x0D
	OpReturn      Opcode = 0x0F
	OpCall        Opcode = 0x10
	OpDrop        Opcode = 0x1A
	OpSelect      Opcode = 0x1B

	OpLocalGet Opcode = 0x20
	OpLocalSet Opcode = 0x21
	OpLocalTee Opcode = 0x22

	OpI32Load    Opcode = 0x28
	OpF32Load    Opcode = 0x2A
	OpF64Load    Opcode = 0x2B
	OpI32Load8S  Opcode = 0x2C
	OpI32Load8U  Opcode = 0x2D
	OpI32Load16S Opcode = 0x2E
	OpI32Load16U Opcode = 0x2F
	OpI32Store   Opcode = 0x36
	OpF32Store   Opcode = 0x38
	OpF64Store   Opcode = 0x39
	OpI32Store8  Opcode = 0x3A
	OpI32Store16 Opcode = 0x3B

	OpI32Const Opcode = 0x41
	OpF32Const Opcode = 0x43
	OpF64Const Opcode = 0x44

	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32GtS Opcode = 0x4A
	OpI32LeS Opcode = 0x4C
	OpI32GeS Opcode = 0x4E

	OpF32Eq Opcode = 0x5B
	OpF32Ne Opcode = 0x5C
	OpF32Lt Opcode = 0x5D
	OpF32Gt Opcode = 0x5E
	OpF32Le Opcode = 0x5F
	OpF32Ge Opcode = 0x60

	OpF64Eq Opcode = 0x61
	OpF64Ne Opcode = 0x62
	OpF64Lt Opcode = 0x63
	OpF64Gt Opcode = 0x64
	OpF64Le Opcode = 0x65
	OpF64Ge Opcode = 0x66

	OpI32Add  Opcode = 0x6A
	OpI32Sub  Opcode = 0x6B
	OpI32Mul  Opcode = 0x6C
	OpI32DivS Opcode = 0x6D
	OpI32RemS Opcode = 0x6F
	OpI32And  Opcode = 0x71
	OpI32Or   Opcode = 0x72
	OpI32Xor  Opcode = 0x73
	OpI32Shl  Opcode = 0x74
	OpI32ShrS Opcode = 0x75
	OpI32ShrU Opcode = 0x76

	OpF32Abs  Opcode = 0x8B
	OpF32Neg  Opcode = 0x8C
	OpF32Sqrt Opcode = 0x91
	OpF32Add  Opcode = 0x92
	OpF32Sub  Opcode = 0x93
	OpF32Mul  Opcode = 0x94
	OpF32Div  Opcode = 0x95

	OpF64Abs  Opcode = 0x99
	OpF64Neg  Opcode = 0x9A
	OpF64Sqrt Opcode = 0x9F
	OpF64Add  Opcode = 0xA0
	OpF64Sub  Opcode = 0xA1
	OpF64Mul  Opcode = 0xA2
	OpF64Div  Opcode = 0xA3

	OpF32ConvertI32S Opcode = 0xB2
	OpF32DemoteF64   Opcode = 0xB6
	OpF64ConvertI32S Opcode = 0xB7
	OpF64PromoteF32  Opcode = 0xBB

	// OpMiscPrefix introduces the 0xFC family; the sub-opcode follows as
	// an unsigned LEB128.
	OpMiscPrefix Opcode = 0xFC
)

// Sub-opcodes under OpMiscPrefix.
const (
	MiscI32TruncSatF32S uint32 = 0x00
	MiscI32TruncSatF64S uint32 = 0x02
)

// ValType is a value type byte.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "invalid"
}

// BlockEmpty is the block type of a block that yields no value. A block
// yielding one value uses that value's ValType byte.
const BlockEmpty byte = 0x40

// Section ids.
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionExport   byte = 7
	SectionCode     byte = 10
)

// ExternKind identifies what an import or export refers to.
type ExternKind byte

const (
	ExternFunc   ExternKind = 0x00
	ExternTable  ExternKind = 0x01
	ExternMemory ExternKind = 0x02
	ExternGlobal ExternKind = 0x03
)

const funcTypeForm byte = 0x60

// PageSize is the size of one linear memory page in bytes.
const PageSize = 65536

// Natural alignment exponents for memory immediates.
const (
	Align8  uint32 = 0
	Align16 uint32 = 1
	Align32 uint32 = 2
	Align64 uint32 = 3
)
