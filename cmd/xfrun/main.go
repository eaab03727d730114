package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/adapter"
	"github.com/wippyai/xf-bridge/config"
	"github.com/wippyai/xf-bridge/logging"
	"github.com/wippyai/xf-bridge/relay"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to bridge configuration (default: $"+config.EnvPath+" or "+config.DefaultFile+")")
		method      = flag.String("method", "", "Run a single method (Initialize, Calculate, ReportVersion, ReportArguments, Cleanup or a number)")
		steps       = flag.Int("n", 1, "Number of Calculate calls in the full sequence")
		inputArg    = flag.String("in", "", "Input values (comma-separated)")
		verbose     = flag.Bool("v", false, "Log to stderr instead of the configured file")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: xfrun [-config file] [-n steps] [-in 1,2,3] [module.wasm|script.lua]")
		fmt.Fprintln(os.Stderr, "       xfrun [-config file] -method Calculate -in 1,2,3")
		fmt.Fprintln(os.Stderr, "       xfrun [-config file] -i  (interactive mode)")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFile, flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	inputs, err := parseValues(*inputArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		// The TUI owns the terminal, so logs never go to stderr here.
		if err := runInteractive(cfg, inputs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *method, *steps, inputs, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, or builds a default one around
// a module path given on the command line.
func loadConfig(path, module string) (config.Config, error) {
	if module != "" && path == "" {
		cfg := config.Default()
		cfg.Module.Path = module
		return cfg, cfg.Validate()
	}

	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FromEnvironment()
	}
	if err != nil {
		return config.Config{}, err
	}
	if module != "" {
		cfg.Module.Path = module
		cfg.Module.Engine = config.EngineAuto
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, verbose bool) (*zap.Logger, error) {
	if !verbose {
		return logging.New(cfg.Log)
	}
	zc := zap.NewDevelopmentConfig()
	zc.DisableStacktrace = true
	return zc.Build()
}

func run(cfg config.Config, method string, steps int, inputs []float64, verbose bool) error {
	ctx := context.Background()

	logger, err := newLogger(cfg, verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	bridge, err := adapter.New(cfg, relay.NewStaticBuffer(), logger)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	defer bridge.Close(ctx)

	fmt.Printf("Module: %s\n", cfg.Module.Path)
	if cfg.Source != "" {
		fmt.Printf("Config: %s\n", cfg.Source)
	}
	fmt.Println()

	h := newHost(bridge, inputs)
	var results []callResult
	if method != "" {
		id, ok := xfbridge.ParseMethod(method)
		if !ok {
			return fmt.Errorf("unknown method %q", method)
		}
		results = []callResult{h.call(ctx, id)}
	} else {
		results = h.sequence(ctx, steps)
	}

	failed := false
	for _, r := range results {
		fmt.Println(r)
		if r.status != xfbridge.StatusSuccess {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("one or more calls failed")
	}
	return nil
}
