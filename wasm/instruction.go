package wasm

import (
	"github.com/wippyai/xf-bridge/wasm/internal/binary"
)

// Instruction is one opcode with its immediate, if any.
type Instruction struct {
	Imm    any
	Opcode byte
}

// BlockImm holds the block type for block, loop and if.
type BlockImm struct {
	Type int32
}

// BranchImm holds the label index for br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// CallImm holds the function index for call.
type CallImm struct {
	FuncIdx uint32
}

// LocalImm holds the local index for local.get, local.set and local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds the alignment exponent and offset of a load or store.
type MemoryImm struct {
	Offset uint32
	Align  uint32
}

// I32Imm holds an i32.const value.
type I32Imm struct {
	Value int32
}

// I64Imm holds an i64.const value.
type I64Imm struct {
	Value int64
}

// F64Imm holds an f64.const value.
type F64Imm struct {
	Value float64
}

// EncodeInstructions encodes instrs as a code byte sequence.
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	for i := range instrs {
		encodeInstruction(w, &instrs[i])
	}
	return w.Bytes()
}

func encodeInstruction(w *binary.Writer, instr *Instruction) {
	w.Byte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case nil:
		if instr.Opcode == OpMemorySize || instr.Opcode == OpMemoryGrow {
			w.Byte(0x00)
		}
	case BlockImm:
		w.WriteS32(imm.Type)
	case BranchImm:
		w.WriteU32(imm.LabelIdx)
	case CallImm:
		w.WriteU32(imm.FuncIdx)
	case LocalImm:
		w.WriteU32(imm.LocalIdx)
	case GlobalImm:
		w.WriteU32(imm.GlobalIdx)
	case MemoryImm:
		w.WriteU32(imm.Align)
		w.WriteU32(imm.Offset)
	case I32Imm:
		w.WriteS32(imm.Value)
	case I64Imm:
		w.WriteS64(imm.Value)
	case F64Imm:
		w.WriteF64(imm.Value)
	default:
		panic("wasm: unsupported immediate")
	}
}

// Op returns an instruction without immediates.
func Op(opcode byte) Instruction { return Instruction{Opcode: opcode} }

func End() Instruction { return Op(OpEnd) }

func Block(blockType int32) Instruction {
	return Instruction{Opcode: OpBlock, Imm: BlockImm{Type: blockType}}
}

func Loop(blockType int32) Instruction {
	return Instruction{Opcode: OpLoop, Imm: BlockImm{Type: blockType}}
}

func If(blockType int32) Instruction {
	return Instruction{Opcode: OpIf, Imm: BlockImm{Type: blockType}}
}

func Br(label uint32) Instruction {
	return Instruction{Opcode: OpBr, Imm: BranchImm{LabelIdx: label}}
}

func BrIf(label uint32) Instruction {
	return Instruction{Opcode: OpBrIf, Imm: BranchImm{LabelIdx: label}}
}

func Call(fn uint32) Instruction {
	return Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: fn}}
}

func LocalGet(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalGet, Imm: LocalImm{LocalIdx: idx}}
}

func LocalSet(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalSet, Imm: LocalImm{LocalIdx: idx}}
}

func LocalTee(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalTee, Imm: LocalImm{LocalIdx: idx}}
}

func GlobalGet(idx uint32) Instruction {
	return Instruction{Opcode: OpGlobalGet, Imm: GlobalImm{GlobalIdx: idx}}
}

func GlobalSet(idx uint32) Instruction {
	return Instruction{Opcode: OpGlobalSet, Imm: GlobalImm{GlobalIdx: idx}}
}

func I32Const(v int32) Instruction {
	return Instruction{Opcode: OpI32Const, Imm: I32Imm{Value: v}}
}

func I64Const(v int64) Instruction {
	return Instruction{Opcode: OpI64Const, Imm: I64Imm{Value: v}}
}

func F64Const(v float64) Instruction {
	return Instruction{Opcode: OpF64Const, Imm: F64Imm{Value: v}}
}

// F64Load loads a naturally aligned double.
func F64Load(offset uint32) Instruction {
	return Instruction{Opcode: OpF64Load, Imm: MemoryImm{Align: 3, Offset: offset}}
}

// F64Store stores a naturally aligned double.
func F64Store(offset uint32) Instruction {
	return Instruction{Opcode: OpF64Store, Imm: MemoryImm{Align: 3, Offset: offset}}
}

// I32Load loads a naturally aligned i32.
func I32Load(offset uint32) Instruction {
	return Instruction{Opcode: OpI32Load, Imm: MemoryImm{Align: 2, Offset: offset}}
}

// I32Store stores a naturally aligned i32.
func I32Store(offset uint32) Instruction {
	return Instruction{Opcode: OpI32Store, Imm: MemoryImm{Align: 2, Offset: offset}}
}
