package guest

import (
	"context"
	"math"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func instantiate(t *testing.T, opts Options) api.Module {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	if opts.LogMessage != "" {
		_, err := rt.NewHostModuleBuilder("xf").
			NewFunctionBuilder().
			WithFunc(func(context.Context, int32, uint32, uint32) {}).
			Export("log").
			Instantiate(ctx)
		if err != nil {
			t.Fatal(err)
		}
	}

	mod, err := rt.Instantiate(ctx, Build(opts))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return mod
}

func call(t *testing.T, mod api.Module, name string, params ...uint64) []uint64 {
	t.Helper()
	fn := mod.ExportedFunction(name)
	if fn == nil {
		t.Fatalf("missing export %s", name)
	}
	res, err := fn.Call(context.Background(), params...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func TestBuild_Defaults(t *testing.T) {
	mod := instantiate(t, DefaultOptions())

	if got := api.DecodeF64(call(t, mod, ExportVersion)[0]); got != 1 {
		t.Errorf("version = %v", got)
	}
	if got := api.DecodeI32(call(t, mod, ExportInitialize)[0]); got != 0 {
		t.Errorf("initialize = %d", got)
	}
	if got := api.DecodeI32(call(t, mod, ExportInputs)[0]); got != 1 {
		t.Errorf("inputs = %d", got)
	}
	if got := call(t, mod, ExportLastError)[0]; got != 0 {
		t.Errorf("last error = %d, want 0", got)
	}
	call(t, mod, ExportWrapUp)
}

func TestBuild_Calculate(t *testing.T) {
	opts := DefaultOptions()
	opts.Inputs, opts.Outputs, opts.Factor = 3, 3, 2.5
	mod := instantiate(t, opts)
	mem := mod.Memory()

	in := uint32(call(t, mod, ExportAlloc, 24)[0])
	out := uint32(call(t, mod, ExportAlloc, 24)[0])
	if in != heapStart || out != heapStart+24 {
		t.Fatalf("alloc = %d, %d", in, out)
	}

	for i, v := range []float64{1, -2, 4} {
		mem.WriteUint64Le(in+uint32(i)*8, math.Float64bits(v))
	}
	if rc := api.DecodeI32(call(t, mod, ExportCalculate, uint64(in), 3, uint64(out), 3)[0]); rc != 0 {
		t.Fatalf("calculate = %d", rc)
	}

	for i, want := range []float64{2.5, -5, 10} {
		bits, _ := mem.ReadUint64Le(out + uint32(i)*8)
		if got := math.Float64frombits(bits); got != want {
			t.Errorf("out[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestBuild_Failures(t *testing.T) {
	opts := DefaultOptions()
	opts.FailInitialize = true
	opts.FailCalculate = true
	opts.ErrorMessage = "pump curve missing"
	mod := instantiate(t, opts)

	if got := api.DecodeI32(call(t, mod, ExportInitialize)[0]); got != 1 {
		t.Errorf("initialize = %d, want 1", got)
	}
	if got := api.DecodeI32(call(t, mod, ExportCalculate, 0, 0, 0, 0)[0]); got != 1 {
		t.Errorf("calculate = %d, want 1", got)
	}

	ptr := uint32(call(t, mod, ExportLastError)[0])
	data, ok := mod.Memory().Read(ptr, uint32(len(opts.ErrorMessage))+1)
	if !ok {
		t.Fatal("message out of range")
	}
	if string(data[:len(data)-1]) != opts.ErrorMessage || data[len(data)-1] != 0 {
		t.Errorf("message = %q", data)
	}
}

func TestBuild_Trap(t *testing.T) {
	opts := DefaultOptions()
	opts.TrapCalculate = true
	mod := instantiate(t, opts)

	if _, err := mod.ExportedFunction(ExportCalculate).Call(context.Background(), 0, 0, 0, 0); err == nil {
		t.Error("expected trap")
	}
}

func TestBuild_Omit(t *testing.T) {
	opts := DefaultOptions()
	opts.Omit = []string{ExportInputs, ExportOutputs}
	mod := instantiate(t, opts)

	if mod.ExportedFunction(ExportInputs) != nil || mod.ExportedFunction(ExportOutputs) != nil {
		t.Error("omitted exports present")
	}
	if mod.ExportedFunction(ExportCalculate) == nil {
		t.Error("calculate should remain")
	}
}

func TestBuild_LogImport(t *testing.T) {
	opts := DefaultOptions()
	opts.LogMessage = "hello from guest"
	mod := instantiate(t, opts)

	call(t, mod, ExportInitialize)
	data, _ := mod.Memory().Read(logOffset, uint32(len(opts.LogMessage)))
	if string(data) != opts.LogMessage {
		t.Errorf("log data = %q", data)
	}
}
