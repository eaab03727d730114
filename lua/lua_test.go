package lua

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/xf-bridge/errors"
	"github.com/wippyai/xf-bridge/layout"
)

const model = `
local factor = 2

function initialize()
  factor = 3
end

version = 1.5
inputs = 2
outputs = function() return 2 end

function calculate(values, n)
  local out = {}
  for i = 1, n do
    out[i] = values[i] * factor
  end
  return out
end

function wrap_up()
  xf.log("info", "done")
end
`

func load(t *testing.T, cfg Config) *Instance {
	t.Helper()
	inst, err := NewLoader(cfg).Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst.(*Instance)
}

func loadErr(t *testing.T, cfg Config) *errors.Error {
	t.Helper()
	inst, err := NewLoader(cfg).Load(context.Background())
	if err == nil {
		inst.Close(context.Background())
		t.Fatal("expected load error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("error %v is not structured", err)
	}
	return e
}

func TestLoader_FullCycle(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	inst := load(t, Config{Source: model, Logger: zap.New(core)})

	if err := inst.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if v, err := inst.Version(ctx); err != nil || v != 1.5 {
		t.Errorf("Version = %v, %v", v, err)
	}
	if n, err := inst.InputCount(ctx); err != nil || n != 2 {
		t.Errorf("InputCount = %d, %v", n, err)
	}
	if n, err := inst.OutputCount(ctx); err != nil || n != 2 {
		t.Errorf("OutputCount = %d, %v", n, err)
	}

	out := make([]float64, 2)
	if err := inst.Calculate(ctx, []float64{1, -2.5}, out); err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if diff := cmp.Diff([]float64{3, -7.5}, out); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}

	if err := inst.WrapUp(ctx); err != nil {
		t.Errorf("WrapUp: %v", err)
	}
	if logs.FilterMessage("done").Len() != 1 {
		t.Error("xf.log entry missing")
	}
}

func TestLoader_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.lua")
	if err := os.WriteFile(path, []byte(model), 0o644); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(Config{Path: path})

	for start := 1; start <= 2; start++ {
		inst, err := loader.Load(context.Background())
		if err != nil {
			t.Fatalf("start %d: %v", start, err)
		}
		if v, err := inst.Version(context.Background()); err != nil || v != 1.5 {
			t.Errorf("start %d: Version = %v, %v", start, v, err)
		}
		inst.Close(context.Background())
	}
	if loader.proto == nil {
		t.Error("compiled chunk not cached")
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantKind errors.Kind
		wantMsg  string
	}{
		{"syntax", Config{Source: "function calculate("}, errors.KindInvalidData, "compile script"},
		{"runtime error", Config{Source: "error('no data table')"}, errors.KindInvalidData, "no data table"},
		{"missing file", Config{Path: filepath.Join(t.TempDir(), "absent.lua")}, errors.KindNotFound, "read script"},
		{"no path", Config{}, errors.KindInvalidData, "no script path"},
		{"missing version", Config{Source: "function calculate() return {} end"}, errors.KindMissingExport, `"version"`},
		{"missing calculate", Config{Source: "version = 1"}, errors.KindMissingExport, `"calculate"`},
		{"calculate not a function", Config{Source: "version = 1\ncalculate = 4"}, errors.KindSignatureMismatch, "calculate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := loadErr(t, tt.cfg)
			if e.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", e.Kind, tt.wantKind)
			}
			if !strings.Contains(e.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", e, tt.wantMsg)
			}
		})
	}
}

func TestInstance_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"absent", "", ""},
		{"no result", "function initialize() end", ""},
		{"true", "function initialize() return true end", ""},
		{"zero", "function initialize() return 0 end", ""},
		{"false", "function initialize() return false end", "initialize returned false"},
		{"non-zero", "function initialize() return 2 end", "initialize returned 2"},
		{"nil with message", "function initialize() return nil, 'missing table' end", "initialize returned nil: missing table"},
		{"error", "function initialize() error('bad units', 0) end", "initialize raised an error: bad units"},
		{"not a function", "initialize = 3", "initialize is a number, want function"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "version = 1\nfunction calculate() return {} end\n" + tt.body
			inst := load(t, Config{Source: src})

			err := inst.Initialize(context.Background())
			if got := errors.Summary(err); got != tt.wantErr {
				t.Errorf("Summary = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestInstance_Version(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    float64
		wantErr string
	}{
		{"number", "version = 3", 3, ""},
		{"function", "function version() return 4.25 end", 4.25, ""},
		{"string", "version = 'one'", -1, "version is a string, want number"},
		{"function returns nil", "function version() return nil, 'unlicensed' end", -1, "version returned nil: unlicensed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := load(t, Config{Source: tt.src + "\nfunction calculate() return {} end"})
			got, err := inst.Version(context.Background())
			if got != tt.want || errors.Summary(err) != tt.wantErr {
				t.Errorf("Version = %v, %q; want %v, %q", got, errors.Summary(err), tt.want, tt.wantErr)
			}
		})
	}
}

func TestInstance_Counts(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		fallback []layout.Variable
		want     int
		wantErr  bool
	}{
		{"number", "inputs = 4", nil, 4, false},
		{"function", "function inputs() return 6 end", nil, 6, false},
		{"layout table", `inputs = {
			{ name = "rate", kind = "Double" },
			{ name = "grid", kind = "2-D Array", rows = 2, cols = 3 },
			{ name = "flow", kind = "Time Series", size = 2 },
		}`, nil, 1 + 6 + 12, false},
		{"function returning layout", `function inputs() return {{ kind = "vector", size = 5 }} end`, nil, 5, false},
		{"config fallback", "", []layout.Variable{{Kind: layout.Vector, Size: 3}}, 3, false},
		{"nothing declared", "", nil, -1, true},
		{"fraction", "inputs = 2.5", nil, -1, true},
		{"negative", "inputs = -1", nil, -1, true},
		{"infinite", "inputs = math.huge", nil, -1, true},
		{"above range", "function inputs() return 2^31 end", nil, -1, true},
		{"lookup as input", `inputs = {{ kind = "1-D Lookup Table", size = 2 }}`, nil, -1, true},
		{"unknown kind", `inputs = {{ kind = "tensor" }}`, nil, -1, true},
		{"entry not a table", `inputs = { 3 }`, nil, -1, true},
		{"size not a number", `inputs = {{ kind = "vector", size = "big" }}`, nil, -1, true},
		{"wrong type", `inputs = "many"`, nil, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "version = 1\nfunction calculate() return {} end\n" + tt.src
			inst := load(t, Config{Source: src, Inputs: tt.fallback})

			got, err := inst.InputCount(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("InputCount err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("InputCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstance_CalculateFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"short result", "return { 1 }", "calculate returned 1 values, want 2"},
		{"long result", "return { 1, 2, 3 }", "calculate returned 3 values, want 2"},
		{"nil with message", "return nil, 'pump curve missing'", "calculate returned nil: pump curve missing"},
		{"error", "error('division by zero', 0)", "calculate raised an error: division by zero"},
		{"not a table", "return 7", "calculate is a number, want table"},
		{"non-number value", "return { 1, 'x' }", "output 2 is string, want number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "version = 1\nfunction calculate(values, n)\n" + tt.body + "\nend"
			inst := load(t, Config{Source: src})

			err := inst.Calculate(context.Background(), []float64{1}, make([]float64, 2))
			if got := errors.Summary(err); got != tt.wantErr {
				t.Errorf("Summary = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestInstance_ErrorPosition(t *testing.T) {
	src := "version = 1\nfunction calculate(values)\n  error('bad input')\nend"
	inst := load(t, Config{Source: src})

	err := inst.Calculate(context.Background(), nil, nil)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseCalculate || e.Kind != errors.KindGuestFailure {
		t.Fatalf("err = %v", err)
	}
	if e.Guest != "script:3: bad input" {
		t.Errorf("Guest = %q", e.Guest)
	}
}

func TestInstance_Timeout(t *testing.T) {
	src := "version = 1\nfunction calculate() while true do end end"
	inst := load(t, Config{Source: src, CallTimeout: 50 * time.Millisecond})

	err := inst.Calculate(context.Background(), nil, nil)
	if got := errors.Summary(err); !strings.HasPrefix(got, "calculate timed out") {
		t.Errorf("Summary = %q", got)
	}

	// The state stays usable after a timed out call.
	if v, err := inst.Version(context.Background()); err != nil || v != 1 {
		t.Errorf("Version after timeout = %v, %v", v, err)
	}
}

func TestInstance_StateResident(t *testing.T) {
	src := `
version = 1
local calls = 0
function calculate(values, n)
  calls = calls + 1
  return { calls }
end`
	inst := load(t, Config{Source: src})

	out := make([]float64, 1)
	for want := 1.0; want <= 3; want++ {
		if err := inst.Calculate(context.Background(), nil, out); err != nil {
			t.Fatal(err)
		}
		if out[0] != want {
			t.Errorf("call %v: got %v", want, out[0])
		}
	}
}

func TestHost_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := `
version = 1
function calculate() return {} end
function initialize()
  xf.log(2, "reservoir at capacity")
  xf.log("error", "overflow")
  print("step", 1)
end`
	inst := load(t, Config{Source: src, Logger: zap.New(core)})
	if err := inst.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := map[string]zapcore.Level{
		"reservoir at capacity": zapcore.WarnLevel,
		"overflow":              zapcore.ErrorLevel,
		"step\t1":               zapcore.InfoLevel,
	}
	for msg, level := range want {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Errorf("%q: got %d entries", msg, len(entries))
			continue
		}
		if entries[0].Level != level {
			t.Errorf("%q: level = %v, want %v", msg, entries[0].Level, level)
		}
	}
}

func TestHost_BadLevel(t *testing.T) {
	src := "version = 1\nfunction calculate() return {} end\nfunction initialize() xf.log('loud', 'x') end"
	inst := load(t, Config{Source: src})

	err := inst.Initialize(context.Background())
	if err == nil || !strings.Contains(errors.Summary(err), "unknown log level") {
		t.Errorf("err = %v", err)
	}
}

func TestHost_NoIO(t *testing.T) {
	src := "version = 1\nfunction calculate() return {} end\nfunction initialize() return io == nil and os == nil end"
	inst := load(t, Config{Source: src})
	if err := inst.Initialize(context.Background()); err != nil {
		t.Errorf("io or os library is open: %v", err)
	}
}
