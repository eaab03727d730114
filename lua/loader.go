package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	glua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/wippyai/xf-bridge/errors"
	"github.com/wippyai/xf-bridge/layout"
	"github.com/wippyai/xf-bridge/lifecycle"
)

// Global names the bridge looks up in the script.
const (
	GlobalInitialize = "initialize"
	GlobalVersion    = "version"
	GlobalInputs     = "inputs"
	GlobalOutputs    = "outputs"
	GlobalCalculate  = "calculate"
	GlobalWrapUp     = "wrap_up"
)

// Config holds configuration for the Lua engine.
type Config struct {
	// Path is the script file. Source, when set, is used instead.
	Path   string
	Source string

	// CallTimeout bounds every script call. Zero disables the limit.
	CallTimeout time.Duration

	// Inputs and Outputs size the argument arrays for scripts that do not
	// define inputs or outputs.
	Inputs  []layout.Variable
	Outputs []layout.Variable

	Logger *zap.Logger
}

// Loader starts a fresh Lua state per engine start. The compiled chunk is
// reused while the script source is unchanged.
type Loader struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	source string
	proto  *glua.FunctionProto
}

// NewLoader creates a Loader for cfg.
func NewLoader(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, logger: logger.Named("lua")}
}

// Load compiles the script, runs its top-level chunk and checks that the
// required globals exist.
func (l *Loader) Load(ctx context.Context) (lifecycle.Instance, error) {
	source, name, err := l.read()
	if err != nil {
		return nil, err
	}
	proto, err := l.compile(source, name)
	if err != nil {
		return nil, err
	}

	L := glua.NewState(glua.Options{SkipOpenLibs: true})
	inst := &Instance{state: L, cfg: l.cfg, logger: l.logger}
	if err := inst.open(); err != nil {
		L.Close()
		return nil, errors.Instantiation(err)
	}

	chunk := L.NewFunctionFromProto(proto)
	if _, err := inst.call(ctx, errors.PhaseLoad, "chunk", chunk, 0); err != nil {
		L.Close()
		return nil, errors.Load("run script", err)
	}

	for _, g := range []string{GlobalVersion, GlobalCalculate} {
		if L.GetGlobal(g) == glua.LNil {
			L.Close()
			return nil, errors.MissingExport(g)
		}
	}
	if fn := L.GetGlobal(GlobalCalculate); fn.Type() != glua.LTFunction {
		L.Close()
		return nil, errors.SignatureMismatch(GlobalCalculate, "function", fn.Type().String())
	}
	return inst, nil
}

func (l *Loader) read() (source, name string, err error) {
	if l.cfg.Source != "" {
		return l.cfg.Source, "script", nil
	}
	if l.cfg.Path == "" {
		return "", "", errors.Load("no script path configured", nil)
	}
	data, err := os.ReadFile(l.cfg.Path)
	if err != nil {
		return "", "", errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(l.cfg.Path).
			Detail("read script").
			Cause(err).
			Build()
	}
	return string(data), filepath.Base(l.cfg.Path), nil
}

func (l *Loader) compile(source, name string) (*glua.FunctionProto, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proto != nil && l.source == source {
		return l.proto, nil
	}

	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, errors.Load("compile script", err)
	}
	proto, err := glua.Compile(chunk, name)
	if err != nil {
		return nil, errors.Load("compile script", err)
	}
	l.source, l.proto = source, proto
	l.logger.Debug("script compiled", zap.String("name", name))
	return proto, nil
}

var _ lifecycle.Loader = (*Loader)(nil)
