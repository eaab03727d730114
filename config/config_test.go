package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/xf-bridge/layout"
)

const sample = `
[module]
path = "model/flow.wasm"

[engine]
memory_limit_pages = 16
wasi = false
call_timeout = "250ms"

[log]
file = "logs/bridge.log"
level = "DEBUG"
echo = true

[[inputs]]
name = "rate"
kind = "Double"

[[inputs]]
name = "grid"
kind = "matrix"
rows = 2
cols = 3

[[outputs]]
name = "curve"
kind = "1-D Lookup Table"
size = 4
`

func TestParse(t *testing.T) {
	cfg, err := Parse(sample, "/etc/xf")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Module.Path != filepath.Join("/etc/xf", "model/flow.wasm") {
		t.Errorf("module path = %q", cfg.Module.Path)
	}
	if cfg.Log.File != filepath.Join("/etc/xf", "logs/bridge.log") {
		t.Errorf("log file = %q", cfg.Log.File)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" || !cfg.Log.Echo {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Engine.MemoryLimitPages != 16 || cfg.Engine.WASI {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.CallTimeout.Duration != 250*time.Millisecond {
		t.Errorf("call timeout = %v", cfg.Engine.CallTimeout)
	}
	if diff := cmp.Diff([]string{"_initialize"}, cfg.Engine.StartFunctions); diff != "" {
		t.Errorf("start functions (-want +got):\n%s", diff)
	}

	wantInputs := []layout.Variable{
		{Name: "rate", Kind: layout.Double},
		{Name: "grid", Kind: layout.Matrix, Rows: 2, Cols: 3},
	}
	if diff := cmp.Diff(wantInputs, cfg.Inputs); diff != "" {
		t.Errorf("inputs (-want +got):\n%s", diff)
	}
	if !cfg.HasLayout() {
		t.Error("HasLayout = false")
	}

	engine, err := cfg.EngineKind()
	if err != nil || engine != EngineWASM {
		t.Errorf("EngineKind = %q, %v", engine, err)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("[module]\npath = \"/abs/script.lua\"\n", "/ignored")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Module.Path != "/abs/script.lua" {
		t.Errorf("absolute path rewritten to %q", cfg.Module.Path)
	}
	if !cfg.Engine.WASI || cfg.Log.Level != "info" || cfg.Log.File != "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if engine, _ := cfg.EngineKind(); engine != EngineLua {
		t.Errorf("EngineKind = %q, want lua", engine)
	}
	if cfg.HasLayout() {
		t.Error("HasLayout = true without variables")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{"syntax", "[module\npath=1", "parse config"},
		{"missing path", "[log]\nlevel = \"info\"\n", "module path is required"},
		{"unknown key", "[module]\npath = \"a.wasm\"\ncolour = 1\n", "unknown keys: module.colour"},
		{"unknown engine", "[module]\npath = \"a.wasm\"\nengine = \"python\"\n", "unknown engine"},
		{"no extension", "[module]\npath = \"model\"\n", "cannot infer engine"},
		{"bad level", "[module]\npath = \"a.wasm\"\n[log]\nlevel = \"loud\"\n", "unknown level"},
		{"bad format", "[module]\npath = \"a.wasm\"\n[log]\nformat = \"xml\"\n", "unknown format"},
		{"bad timeout", "[module]\npath = \"a.wasm\"\n[engine]\ncall_timeout = \"soon\"\n", "parse config"},
		{"lookup input", "[module]\npath = \"a.wasm\"\n[[inputs]]\nkind = \"lookup1d\"\nsize = 2\n", "invalid inputs"},
		{"bad kind", "[module]\npath = \"a.wasm\"\n[[outputs]]\nkind = \"tensor\"\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_ResolvesAgainstFileDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")
	if err := os.WriteFile(path, []byte("[module]\npath = \"m.wasm\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Module.Path != filepath.Join(dir, "m.wasm") {
		t.Errorf("module path = %q", cfg.Module.Path)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("err = %v", err)
	}
}

func TestFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.toml")
	if err := os.WriteFile(path, []byte("[module]\npath = \"s.lua\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPath, path)

	cfg, err := FromEnvironment()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Module.Path != filepath.Join(dir, "s.lua") {
		t.Errorf("module path = %q", cfg.Module.Path)
	}
}

func TestLocate_NotFound(t *testing.T) {
	t.Setenv(EnvPath, "")
	t.Chdir(t.TempDir())

	if _, err := Locate(); err == nil {
		t.Error("expected error with no env and no default file")
	}
}
