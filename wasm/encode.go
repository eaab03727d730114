package wasm

import (
	"github.com/wippyai/xf-bridge/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format. Empty sections are
// omitted; custom sections follow the standard ones.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	sections := []struct {
		write func(*binary.Writer)
		n     int
		id    byte
	}{
		{func(s *binary.Writer) { vector(s, m.Types, encodeFuncType) }, len(m.Types), SectionType},
		{func(s *binary.Writer) { vector(s, m.Imports, encodeImport) }, len(m.Imports), SectionImport},
		{func(s *binary.Writer) { vector(s, m.Funcs, (*binary.Writer).WriteU32) }, len(m.Funcs), SectionFunction},
		{func(s *binary.Writer) { vector(s, m.Memories, encodeMemory) }, len(m.Memories), SectionMemory},
		{func(s *binary.Writer) { vector(s, m.Globals, encodeGlobal) }, len(m.Globals), SectionGlobal},
		{func(s *binary.Writer) { vector(s, m.Exports, encodeExport) }, len(m.Exports), SectionExport},
		{func(s *binary.Writer) { vector(s, m.Code, encodeBody) }, len(m.Code), SectionCode},
		{func(s *binary.Writer) { vector(s, m.Data, encodeData) }, len(m.Data), SectionData},
	}
	for _, sec := range sections {
		if sec.n > 0 {
			section(w, sec.id, sec.write)
		}
	}

	for _, cs := range m.CustomSections {
		section(w, SectionCustom, func(s *binary.Writer) {
			s.WriteName(cs.Name)
			s.WriteBytes(cs.Data)
		})
	}
	return w.Bytes()
}

// section writes id followed by the size-prefixed payload produced by body.
func section(w *binary.Writer, id byte, body func(*binary.Writer)) {
	payload := binary.NewWriter()
	body(payload)
	w.Byte(id)
	w.WriteU32(uint32(payload.Len()))
	w.WriteBytes(payload.Bytes())
}

// vector writes a count-prefixed sequence.
func vector[T any](w *binary.Writer, items []T, encode func(*binary.Writer, T)) {
	w.WriteU32(uint32(len(items)))
	for _, item := range items {
		encode(w, item)
	}
}

func encodeValType(w *binary.Writer, t ValType) {
	w.Byte(byte(t))
}

func encodeFuncType(w *binary.Writer, ft FuncType) {
	w.Byte(FuncTypeByte)
	vector(w, ft.Params, encodeValType)
	vector(w, ft.Results, encodeValType)
}

func encodeImport(w *binary.Writer, imp Import) {
	w.WriteName(imp.Module)
	w.WriteName(imp.Name)
	w.Byte(KindFunc)
	w.WriteU32(imp.TypeIdx)
}

func encodeMemory(w *binary.Writer, mem MemoryType) {
	if mem.Limits.Max == nil {
		w.Byte(0x00)
		w.WriteU32(mem.Limits.Min)
		return
	}
	w.Byte(LimitsHasMax)
	w.WriteU32(mem.Limits.Min)
	w.WriteU32(*mem.Limits.Max)
}

func encodeGlobal(w *binary.Writer, g Global) {
	w.Byte(byte(g.Type.ValType))
	var mut byte
	if g.Type.Mutable {
		mut = 0x01
	}
	w.Byte(mut)
	w.WriteBytes(g.Init)
}

func encodeExport(w *binary.Writer, exp Export) {
	w.WriteName(exp.Name)
	w.Byte(exp.Kind)
	w.WriteU32(exp.Idx)
}

func encodeBody(w *binary.Writer, body FuncBody) {
	fn := binary.NewWriter()
	vector(fn, body.Locals, func(fw *binary.Writer, l LocalEntry) {
		fw.WriteU32(l.Count)
		fw.Byte(byte(l.ValType))
	})
	fn.WriteBytes(body.Code)

	w.WriteU32(uint32(fn.Len()))
	w.WriteBytes(fn.Bytes())
}

// encodeData writes an active segment for memory 0.
func encodeData(w *binary.Writer, d DataSegment) {
	w.WriteU32(0)
	w.WriteBytes(d.Offset)
	w.WriteU32(uint32(len(d.Init)))
	w.WriteBytes(d.Init)
}
