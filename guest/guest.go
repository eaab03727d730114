// Package guest assembles WebAssembly modules that implement the bridge's
// guest ABI. The sample scales each input by a constant factor and can be
// configured to fail or misbehave at any step.
package guest

import (
	"github.com/wippyai/xf-bridge/wasm"
)

// Export names of the guest ABI.
const (
	ExportMemory     = "memory"
	ExportInitialize = "xf_initialize"
	ExportVersion    = "xf_version"
	ExportInputs     = "xf_inputs"
	ExportOutputs    = "xf_outputs"
	ExportCalculate  = "xf_calculate"
	ExportWrapUp     = "xf_wrap_up"
	ExportAlloc      = "xf_alloc"
	ExportLastError  = "xf_last_error"
)

// Fixed guest memory layout.
const (
	errorOffset  = 16
	errorLimit   = 239
	logOffset    = 256
	logLimit     = 767
	heapStart    = 1024
	memoryPages  = 2
	paramIn      = 0
	paramInLen   = 1
	paramOut     = 2
	paramOutLen  = 3
	localCounter = 4
)

// Options configures the generated guest.
type Options struct {
	Version float64
	Inputs  int32
	Outputs int32
	Factor  float64

	FailInitialize bool
	FailCalculate  bool
	TrapCalculate  bool
	HangCalculate  bool

	// ErrorMessage is what xf_last_error points at. Empty means none.
	ErrorMessage string

	// LogMessage, when set, is sent through the host's xf.log import during
	// xf_initialize and xf_wrap_up.
	LogMessage string
	LogLevel   int32

	// Omit drops the named exports.
	Omit []string
}

// DefaultOptions returns a healthy single-input, single-output doubler.
func DefaultOptions() Options {
	return Options{Version: 1, Inputs: 1, Outputs: 1, Factor: 2}
}

// Build encodes the guest module.
func Build(opts Options) []byte {
	m := &wasm.Module{}
	omit := make(map[string]bool, len(opts.Omit))
	for _, name := range opts.Omit {
		omit[name] = true
	}
	export := func(name string, idx uint32) {
		if !omit[name] {
			m.ExportFunc(name, idx)
		}
	}

	i32 := []wasm.ValType{wasm.ValI32}
	f64 := []wasm.ValType{wasm.ValF64}

	logMsg := truncate(opts.LogMessage, logLimit)
	errMsg := truncate(opts.ErrorMessage, errorLimit)

	var logCall []wasm.Instruction
	if logMsg != "" {
		logFn := m.ImportFunc("xf", "log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32}})
		logCall = []wasm.Instruction{
			wasm.I32Const(opts.LogLevel),
			wasm.I32Const(logOffset),
			wasm.I32Const(int32(len(logMsg))),
			wasm.Call(logFn),
		}
	}

	mem := m.AddMemory(memoryPages, nil)
	if !omit[ExportMemory] {
		m.ExportMemory(ExportMemory, mem)
	}
	heap := m.AddGlobal(wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, wasm.I32Const(heapStart))

	if errMsg != "" {
		m.AddData(errorOffset, append([]byte(errMsg), 0))
	}
	if logMsg != "" {
		m.AddData(logOffset, []byte(logMsg))
	}

	retI32 := m.AddType(wasm.FuncType{Results: i32})

	// Bump allocator; sizes are multiples of 8 so alignment holds.
	alloc := m.AddFunc(m.AddType(wasm.FuncType{Params: i32, Results: i32}), nil,
		wasm.GlobalGet(heap),
		wasm.GlobalGet(heap),
		wasm.LocalGet(0),
		wasm.Op(wasm.OpI32Add),
		wasm.GlobalSet(heap),
		wasm.End(),
	)
	export(ExportAlloc, alloc)

	initBody := append([]wasm.Instruction{}, logCall...)
	initBody = append(initBody, wasm.I32Const(boolToI32(opts.FailInitialize)), wasm.End())
	export(ExportInitialize, m.AddFunc(retI32, nil, initBody...))

	export(ExportVersion, m.AddFunc(m.AddType(wasm.FuncType{Results: f64}), nil,
		wasm.F64Const(opts.Version), wasm.End()))
	export(ExportInputs, m.AddFunc(retI32, nil, wasm.I32Const(opts.Inputs), wasm.End()))
	export(ExportOutputs, m.AddFunc(retI32, nil, wasm.I32Const(opts.Outputs), wasm.End()))

	calcType := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: i32,
	})
	export(ExportCalculate, m.AddFunc(calcType, []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}}, calculateBody(opts)...))

	wrapBody := append([]wasm.Instruction{}, logCall...)
	wrapBody = append(wrapBody, wasm.End())
	export(ExportWrapUp, m.AddFunc(m.AddType(wasm.FuncType{}), nil, wrapBody...))

	lastErr := int32(0)
	if errMsg != "" {
		lastErr = errorOffset
	}
	export(ExportLastError, m.AddFunc(retI32, nil, wasm.I32Const(lastErr), wasm.End()))

	return m.Encode()
}

// calculateBody writes out[i] = in[i] * factor for every i below both lengths.
func calculateBody(opts Options) []wasm.Instruction {
	switch {
	case opts.TrapCalculate:
		return []wasm.Instruction{wasm.Op(wasm.OpUnreachable), wasm.End()}
	case opts.FailCalculate:
		return []wasm.Instruction{wasm.I32Const(1), wasm.End()}
	case opts.HangCalculate:
		return []wasm.Instruction{
			wasm.Loop(wasm.BlockTypeVoid), wasm.Br(0), wasm.End(),
			wasm.I32Const(0), wasm.End(),
		}
	}

	slot := func(base uint32) []wasm.Instruction {
		return []wasm.Instruction{
			wasm.LocalGet(base),
			wasm.LocalGet(localCounter),
			wasm.I32Const(3),
			wasm.Op(wasm.OpI32Shl),
			wasm.Op(wasm.OpI32Add),
		}
	}

	body := []wasm.Instruction{
		wasm.Block(wasm.BlockTypeVoid),
		wasm.Loop(wasm.BlockTypeVoid),
		wasm.LocalGet(localCounter), wasm.LocalGet(paramOutLen), wasm.Op(wasm.OpI32GeS), wasm.BrIf(1),
		wasm.LocalGet(localCounter), wasm.LocalGet(paramInLen), wasm.Op(wasm.OpI32GeS), wasm.BrIf(1),
	}
	body = append(body, slot(paramOut)...)
	body = append(body, slot(paramIn)...)
	body = append(body,
		wasm.F64Load(0),
		wasm.F64Const(opts.Factor),
		wasm.Op(wasm.OpF64Mul),
		wasm.F64Store(0),
		wasm.LocalGet(localCounter), wasm.I32Const(1), wasm.Op(wasm.OpI32Add), wasm.LocalSet(localCounter),
		wasm.Br(0),
		wasm.End(),
		wasm.End(),
		wasm.I32Const(0),
		wasm.End(),
	)
	return body
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
