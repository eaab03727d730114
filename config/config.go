// Package config loads the bridge configuration from a TOML file.
//
// The file is located through the XFBRIDGE_CONFIG environment variable, or
// xfbridge.toml in the working directory. Relative paths inside the file
// resolve against the directory that holds it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/xf-bridge/errors"
	"github.com/wippyai/xf-bridge/layout"
)

const (
	EnvPath     = "XFBRIDGE_CONFIG"
	DefaultFile = "xfbridge.toml"
)

// Engine names the embedded interpreter that runs the module.
type Engine string

const (
	EngineAuto Engine = ""
	EngineWASM Engine = "wasm"
	EngineLua  Engine = "lua"
)

type Config struct {
	Module  ModuleConfig      `toml:"module"`
	Engine  EngineConfig      `toml:"engine"`
	Log     LogConfig         `toml:"log"`
	Inputs  []layout.Variable `toml:"inputs"`
	Outputs []layout.Variable `toml:"outputs"`

	// Source is the file the configuration was read from, if any.
	Source string `toml:"-"`
}

type ModuleConfig struct {
	Path   string `toml:"path"`
	Engine Engine `toml:"engine"`
}

type EngineConfig struct {
	// MemoryLimitPages caps guest linear memory in 64 KiB pages. Zero keeps
	// the runtime default.
	MemoryLimitPages uint32   `toml:"memory_limit_pages"`
	WASI             bool     `toml:"wasi"`
	StartFunctions   []string `toml:"start_functions"`
	CallTimeout      Duration `toml:"call_timeout"`
}

type LogConfig struct {
	File   string `toml:"file"`
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Echo   bool   `toml:"echo"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used for keys the file leaves out.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			WASI:           true,
			StartFunctions: []string{"_initialize"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Locate returns the configuration path from the environment, falling back
// to DefaultFile in the working directory.
func Locate() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p, nil
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile, nil
	}
	return "", errors.New(errors.PhaseConfig, errors.KindNotFound).
		Detail("no configuration: set %s or create %s", EnvPath, DefaultFile).
		Build()
}

// FromEnvironment locates and loads the configuration.
func FromEnvironment() (Config, error) {
	path, err := Locate()
	if err != nil {
		return Config{}, err
	}
	return Load(path)
}

// Load reads, resolves and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).
			Detail("read config").
			Cause(err).
			Build()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	cfg, err := Parse(string(data), filepath.Dir(abs))
	if err != nil {
		return Config{}, err
	}
	cfg.Source = abs
	return cfg, nil
}

// Parse decodes TOML text. Relative paths resolve against dir.
func Parse(data, dir string) (Config, error) {
	cfg := Default()
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}

	cfg.Module.Path = resolve(dir, strings.TrimSpace(cfg.Module.Path))
	cfg.Log.File = resolve(dir, strings.TrimSpace(cfg.Log.File))
	cfg.Module.Engine = Engine(strings.ToLower(strings.TrimSpace(string(cfg.Module.Engine))))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks the configuration for values no engine can run with.
func (c Config) Validate() error {
	if c.Module.Path == "" {
		return invalid("module.path", "module path is required")
	}
	if _, err := c.EngineKind(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	if c.Engine.CallTimeout.Duration < 0 {
		return invalid("engine.call_timeout", "timeout must not be negative")
	}
	if err := layout.Validate(layout.Input, c.Inputs); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "invalid inputs")
	}
	if err := layout.Validate(layout.Output, c.Outputs); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "invalid outputs")
	}
	return nil
}

// EngineKind returns the configured engine, inferring it from the module
// file extension when unset.
func (c Config) EngineKind() (Engine, error) {
	switch c.Module.Engine {
	case EngineWASM, EngineLua:
		return c.Module.Engine, nil
	case EngineAuto:
	default:
		return "", invalid("module.engine", fmt.Sprintf("unknown engine %q", c.Module.Engine))
	}

	switch strings.ToLower(filepath.Ext(c.Module.Path)) {
	case ".wasm":
		return EngineWASM, nil
	case ".lua":
		return EngineLua, nil
	default:
		return "", invalid("module.engine", fmt.Sprintf("cannot infer engine for %q", filepath.Base(c.Module.Path)))
	}
}

// HasLayout reports whether the file declares the interface variables.
func (c Config) HasLayout() bool {
	return len(c.Inputs) > 0 || len(c.Outputs) > 0
}

func invalid(key, detail string) error {
	return errors.InvalidData(errors.PhaseConfig, []string{key}, detail)
}
