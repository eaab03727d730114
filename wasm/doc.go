// Package wasm encodes WebAssembly core modules.
//
// It covers the subset of the binary format that bridge guests need:
// function types, function imports, linear memory, globals, exports, code
// and active data segments. Function bodies are built from Instruction
// values and encoded with EncodeInstructions.
//
//	m := &wasm.Module{}
//	t := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValF64}})
//	fn := m.AddFunc(t, nil, wasm.F64Const(1.5), wasm.End())
//	m.ExportFunc("xf_version", fn)
//	data := m.Encode()
//
// Modules are not validated here. The runtime that compiles them does that.
package wasm
