package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/config"
	"github.com/wippyai/xf-bridge/guest"
	"github.com/wippyai/xf-bridge/lifecycle"
	"github.com/wippyai/xf-bridge/logging"
	"github.com/wippyai/xf-bridge/relay"
)

const script = `
version = 2
inputs = {{ name = "rate", kind = "Double" }, { name = "level", kind = "Double" }}
outputs = 2

function calculate(values, n)
  if values[1] < 0 then
    return nil, "negative rate"
  end
  return { values[1] + values[2], values[1] - values[2] }
end
`

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newAdapter(t *testing.T, dir, toml string) *Adapter {
	t.Helper()
	cfg, err := config.Parse(toml, dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := New(cfg, relay.NewStaticBuffer(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func call(t *testing.T, a *Adapter, method xfbridge.MethodID, in []float64, nOut int) []float64 {
	t.Helper()
	out := make([]float64, nOut)
	if status := a.Call(context.Background(), method, xfbridge.Slices{In: in, Out: out}); status != xfbridge.StatusSuccess {
		t.Fatalf("%s = %s (%s)", method, status, a.Message())
	}
	return out
}

func TestAdapter_WASMSession(t *testing.T) {
	dir := t.TempDir()
	opts := guest.DefaultOptions()
	opts.Version, opts.Inputs, opts.Outputs, opts.Factor = 3, 2, 2, 10
	writeFile(t, dir, "model.wasm", guest.Build(opts))
	a := newAdapter(t, dir, "[module]\npath = \"model.wasm\"\n")

	call(t, a, xfbridge.MethodInitialize, nil, 0)
	if got := call(t, a, xfbridge.MethodReportVersion, nil, 1); got[0] != 3 {
		t.Errorf("version = %v", got[0])
	}
	if diff := cmp.Diff([]float64{2, 2}, call(t, a, xfbridge.MethodReportArguments, nil, 2)); diff != "" {
		t.Errorf("arguments (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10, 25}, call(t, a, xfbridge.MethodCalculate, []float64{1, 2.5}, 2)); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
	if a.State() != lifecycle.Running {
		t.Error("engine should stay resident between calls")
	}

	call(t, a, xfbridge.MethodCleanup, nil, 0)
	if a.State() != lifecycle.Stopped {
		t.Error("engine should stop on cleanup")
	}
}

func TestAdapter_LuaSession(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.lua", []byte(script))
	a := newAdapter(t, dir, "[module]\npath = \"model.lua\"\n")

	if got := call(t, a, xfbridge.MethodReportVersion, nil, 1); got[0] != 2 {
		t.Errorf("version = %v", got[0])
	}
	if diff := cmp.Diff([]float64{4, 2}, call(t, a, xfbridge.MethodCalculate, []float64{3, 1}, 2)); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}

	out := make([]float64, 2)
	status := a.Call(context.Background(), xfbridge.MethodCalculate, xfbridge.Slices{In: []float64{-1, 0}, Out: out})
	if status != xfbridge.StatusFailureWithMessage {
		t.Fatalf("status = %s", status)
	}
	if want := "Calculate failed: calculate returned nil: negative rate"; a.Message() != want {
		t.Errorf("message = %q, want %q", a.Message(), want)
	}
	if relay.Decode(out[0]) != a.relay.Addr() {
		t.Error("outputs[0] does not carry the message address")
	}
	if a.State() != lifecycle.Stopped {
		t.Error("engine should stop after a failure")
	}

	// The next call restarts the engine.
	call(t, a, xfbridge.MethodCalculate, []float64{1, 1}, 2)
	if a.manager.Starts() != 2 {
		t.Errorf("starts = %d, want 2", a.manager.Starts())
	}
}

func TestAdapter_LoadFailureSurfacesOnFirstCall(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.lua", []byte("function calculate("))
	a := newAdapter(t, dir, "[module]\npath = \"broken.lua\"\n")

	out := make([]float64, 1)
	status := a.Call(context.Background(), xfbridge.MethodInitialize, xfbridge.Slices{Out: out})
	if status != xfbridge.StatusFailureWithMessage {
		t.Fatalf("status = %s", status)
	}
	if msg := a.Message(); !strings.HasPrefix(msg, "Initialize failed: ") || !strings.Contains(msg, "compile script") {
		t.Errorf("message = %q", a.Message())
	}
}

func TestNew_RejectsUnknownEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Module.Path = "model.bin"
	if _, err := New(cfg, relay.NewStaticBuffer(), nil); err == nil {
		t.Error("expected error for a module without a known engine")
	}
}

func TestFromEnvironment(t *testing.T) {
	t.Cleanup(func() { logging.SetLogger(nil) })
	dir := t.TempDir()
	writeFile(t, dir, "model.lua", []byte(script))
	path := writeFile(t, dir, "xfbridge.toml", []byte(`
[module]
path = "model.lua"

[log]
file = "logs/bridge.log"
`))
	t.Setenv(config.EnvPath, path)

	a := FromEnvironment(relay.NewStaticBuffer())
	if got := call(t, a, xfbridge.MethodReportVersion, nil, 1); got[0] != 2 {
		t.Errorf("version = %v", got[0])
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "bridge.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "bridge configured") {
		t.Errorf("log file missing configuration entry:\n%s", data)
	}
}

func TestFromEnvironment_BadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "xfbridge.toml", []byte("[module]\npath = \"model.lua\"\ncolour = \"red\"\n"))
	t.Setenv(config.EnvPath, path)

	a := FromEnvironment(relay.NewStaticBuffer())
	defer a.Close(context.Background())

	out := make([]float64, 2)
	status := a.Call(context.Background(), xfbridge.MethodReportArguments, xfbridge.Slices{Out: out})
	if status != xfbridge.StatusFailureWithMessage {
		t.Fatalf("status = %s", status)
	}
	if !strings.Contains(a.Message(), "unknown keys") {
		t.Errorf("message = %q", a.Message())
	}
}
