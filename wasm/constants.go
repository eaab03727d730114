package wasm

// Binary format magic number ("\0asm") and version.
const (
	Magic   uint32 = 0x6D736100
	Version uint32 = 0x01
)

// Section IDs. Sections must appear in increasing order.
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Import and export descriptor kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value types.
const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// FuncTypeByte prefixes a function type in the type section.
const FuncTypeByte byte = 0x60

// LimitsHasMax flags a limits entry that carries a maximum.
const LimitsHasMax byte = 0x01

// Block types.
const (
	BlockTypeVoid int32 = -64
	BlockTypeI32  int32 = -1
	BlockTypeF64  int32 = -4
)

// Control flow opcodes
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
)

// Variable access opcodes
const (
	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24
)

// Memory opcodes
const (
	OpI32Load    byte = 0x28
	OpF64Load    byte = 0x2B
	OpI32Load8U  byte = 0x2D
	OpI32Store   byte = 0x36
	OpF64Store   byte = 0x39
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// Numeric opcodes
const (
	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF64Const byte = 0x44

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32LtU byte = 0x49
	OpI32GtS byte = 0x4A
	OpI32GeS byte = 0x4E

	OpF64Lt byte = 0x63

	OpI32Add byte = 0x6A
	OpI32Sub byte = 0x6B
	OpI32Mul byte = 0x6C
	OpI32And byte = 0x71
	OpI32Shl byte = 0x74

	OpF64Add byte = 0xA0
	OpF64Sub byte = 0xA1
	OpF64Mul byte = 0xA2
	OpF64Div byte = 0xA3
)
