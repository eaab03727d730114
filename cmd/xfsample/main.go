// Command xfsample writes a working guest module, and optionally a matching
// configuration file, to start a new model from.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/xf-bridge/config"
	"github.com/wippyai/xf-bridge/guest"
	"github.com/wippyai/xf-bridge/layout"
)

const luaSample = `-- Sample bridge model: scales every input by a factor.
local factor = %v

version = %v
inputs = %d
outputs = %d

function initialize()
  xf.log("info", "sample model initialized")
end

function calculate(values, n)
  local out = {}
  for i = 1, n do
    out[i] = (values[i] or 0) * factor
  end
  return out
end
`

func main() {
	var (
		output     = flag.String("o", "sample.wasm", "Output path (.wasm or .lua)")
		version    = flag.Float64("version", 1, "Version reported to the host")
		inputs     = flag.Int("inputs", 1, "Number of inputs")
		outputs    = flag.Int("outputs", 1, "Number of outputs")
		factor     = flag.Float64("factor", 2, "Scale factor applied to inputs")
		message    = flag.String("log", "", "Message logged through xf.log on initialize")
		withConfig = flag.Bool("config", false, "Also write "+config.DefaultFile+" next to the module")
	)
	flag.Parse()

	if err := run(*output, *version, *inputs, *outputs, *factor, *message, *withConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(output string, version float64, inputs, outputs int, factor float64, message string, withConfig bool) error {
	if inputs < 0 || outputs < 0 {
		return fmt.Errorf("counts must not be negative")
	}

	data, err := sample(output, version, inputs, outputs, factor, message)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", output, len(data))

	if !withConfig {
		return nil
	}
	path := filepath.Join(filepath.Dir(output), config.DefaultFile)
	if err := writeConfig(path, filepath.Base(output), inputs, outputs); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func sample(output string, version float64, inputs, outputs int, factor float64, message string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".lua":
		return []byte(fmt.Sprintf(luaSample, factor, version, inputs, outputs)), nil
	case ".wasm":
		opts := guest.DefaultOptions()
		opts.Version = version
		opts.Inputs = int32(inputs)
		opts.Outputs = int32(outputs)
		opts.Factor = factor
		opts.LogMessage = message
		opts.LogLevel = 1
		return guest.Build(opts), nil
	default:
		return nil, fmt.Errorf("output %q must end in .wasm or .lua", output)
	}
}

// writeConfig writes a configuration that declares the interface as one
// vector per direction. Existing files are left alone.
func writeConfig(path, module string, inputs, outputs int) error {
	cfg := struct {
		Module  config.ModuleConfig `toml:"module"`
		Log     config.LogConfig    `toml:"log"`
		Inputs  []layout.Variable   `toml:"inputs,omitempty"`
		Outputs []layout.Variable   `toml:"outputs,omitempty"`
	}{
		Module: config.ModuleConfig{Path: module},
		Log:    config.LogConfig{File: "xfbridge.log", Level: "info", Format: "console"},
	}
	if inputs > 0 {
		cfg.Inputs = []layout.Variable{{Name: "in", Kind: layout.Vector, Size: inputs}}
	}
	if outputs > 0 {
		cfg.Outputs = []layout.Variable{{Name: "out", Kind: layout.Vector, Size: outputs}}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
