package wasm

import "strings"

// Module is a core module under construction.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per defined function
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Code     []FuncBody
	Data     []DataSegment

	CustomSections []CustomSection
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) String() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range ft.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if len(ft.Results) > 0 {
		b.WriteString(" -> ")
		for i, r := range ft.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
	}
	return b.String()
}

func (ft FuncType) equal(other FuncType) bool {
	return equalTypes(ft.Params, other.Params) && equalTypes(ft.Results, other.Results)
}

func equalTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValType is a core value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Import is a function import. The bridge never imports other kinds.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// MemoryType describes a linear memory in 64 KiB pages.
type MemoryType struct {
	Limits Limits
}

// Limits bounds a memory. A nil Max is unbounded.
type Limits struct {
	Max *uint32
	Min uint32
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a global with its constant initializer, including the end opcode.
type Global struct {
	Type GlobalType
	Init []byte
}

// Export names a function, memory or global.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody is a function's locals and raw code, including the final end.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment is an active segment for memory 0. Offset is a constant
// expression including the end opcode.
type DataSegment struct {
	Offset []byte
	Init   []byte
}

// CustomSection is written after all standard sections.
type CustomSection struct {
	Name string
	Data []byte
}

// AddType adds a function type and returns its index, reusing an equal one.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ImportFunc adds a function import and returns its function index. All
// imports must be added before the first AddFunc.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(m.Funcs) > 0 {
		panic("wasm: function import after defined functions")
	}
	m.Imports = append(m.Imports, Import{Module: module, Name: name, TypeIdx: m.AddType(ft)})
	return uint32(len(m.Imports) - 1)
}

// AddFunc defines a function with the given type index and body and returns
// its function index.
func (m *Module) AddFunc(typeIdx uint32, locals []LocalEntry, body ...Instruction) uint32 {
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, FuncBody{Locals: locals, Code: EncodeInstructions(body)})
	return uint32(len(m.Imports) + len(m.Funcs) - 1)
}

// AddMemory adds a linear memory and returns its index.
func (m *Module) AddMemory(min uint32, max *uint32) uint32 {
	m.Memories = append(m.Memories, MemoryType{Limits: Limits{Min: min, Max: max}})
	return uint32(len(m.Memories) - 1)
}

// AddGlobal adds a global initialized by init (without the end opcode) and
// returns its index.
func (m *Module) AddGlobal(t GlobalType, init Instruction) uint32 {
	m.Globals = append(m.Globals, Global{Type: t, Init: EncodeInstructions([]Instruction{init, End()})})
	return uint32(len(m.Globals) - 1)
}

// AddData places data at a constant offset in memory 0.
func (m *Module) AddData(offset int32, data []byte) {
	m.Data = append(m.Data, DataSegment{
		Offset: EncodeInstructions([]Instruction{I32Const(offset), End()}),
		Init:   data,
	})
}

// ExportFunc exports a function index under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindFunc, Idx: idx})
}

// ExportMemory exports a memory index under name.
func (m *Module) ExportMemory(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindMemory, Idx: idx})
}
