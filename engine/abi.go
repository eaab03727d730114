package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/xf-bridge/wasm"
)

// Guest export names.
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

// Host imports offered to the guest.
const (
	HostModule = "xf"
	HostLog    = "log"
)

// function describes a guest export or host import in WIT primitive types.
type function struct {
	name     string
	params   []string
	results  []string
	required bool
}

var guestExports = []function{
	{name: ExportInitialize, results: []string{"s32"}, required: true},
	{name: ExportVersion, results: []string{"f64"}, required: true},
	{name: ExportCalculate, params: []string{"u32", "u32", "u32", "u32"}, results: []string{"s32"}, required: true},
	{name: ExportAlloc, params: []string{"u32"}, results: []string{"u32"}, required: true},
	{name: ExportInputs, results: []string{"s32"}},
	{name: ExportOutputs, results: []string{"s32"}},
	{name: ExportWrapUp},
	{name: ExportLastError, results: []string{"u32"}},
}

var hostLog = function{name: HostLog, params: []string{"s32", "u32", "u32"}}

// signature flattens f to core value types.
func (f function) signature() (wasm.FuncType, error) {
	params, err := flatten(f.params)
	if err != nil {
		return wasm.FuncType{}, fmt.Errorf("%s params: %w", f.name, err)
	}
	results, err := flatten(f.results)
	if err != nil {
		return wasm.FuncType{}, fmt.Errorf("%s results: %w", f.name, err)
	}
	return wasm.FuncType{Params: params, Results: results}, nil
}

func flatten(names []string) ([]wasm.ValType, error) {
	out := make([]wasm.ValType, 0, len(names))
	for _, name := range names {
		t, err := wit.ParseType(name)
		if err != nil {
			return nil, err
		}
		vt, err := coreType(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, vt)
	}
	return out, nil
}

// coreType maps a WIT primitive to its core value type.
func coreType(t wit.Type) (wasm.ValType, error) {
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return wasm.ValI32, nil
	case wit.S64, wit.U64:
		return wasm.ValI64, nil
	case wit.F32:
		return wasm.ValF32, nil
	case wit.F64:
		return wasm.ValF64, nil
	default:
		return 0, fmt.Errorf("type has no single core representation")
	}
}

// fromDefinition reads the core signature of a compiled export.
func fromDefinition(def api.FunctionDefinition) wasm.FuncType {
	ft := wasm.FuncType{}
	for _, p := range def.ParamTypes() {
		ft.Params = append(ft.Params, wasm.ValType(p))
	}
	for _, r := range def.ResultTypes() {
		ft.Results = append(ft.Results, wasm.ValType(r))
	}
	return ft
}

func toAPI(types []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		out[i] = api.ValueType(t)
	}
	return out
}

func equalSignature(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
