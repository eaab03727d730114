package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/xf-bridge/errors"
	"github.com/wippyai/xf-bridge/layout"
	"github.com/wippyai/xf-bridge/lifecycle"
	"github.com/wippyai/xf-bridge/logging"
)

// Config holds configuration for the WASM engine.
type Config struct {
	// Path is the guest module file. Binary, when set, is used instead.
	Path   string
	Binary []byte

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the runtime default.
	MemoryLimitPages uint32

	// WASI registers wasi_snapshot_preview1 for guests that import it.
	WASI bool

	// StartFunctions run after instantiation when the guest exports them.
	StartFunctions []string

	// CallTimeout bounds every guest call. Zero disables the limit.
	CallTimeout time.Duration

	// Inputs and Outputs size the argument arrays for guests that do not
	// export xf_inputs or xf_outputs.
	Inputs  []layout.Variable
	Outputs []layout.Variable

	Logger *zap.Logger
}

// Loader starts a fresh wazero runtime per engine start. Compiled code is
// cached across starts.
type Loader struct {
	cfg    Config
	cache  wazero.CompilationCache
	logger *zap.Logger
}

// NewLoader creates a Loader for cfg.
func NewLoader(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:    cfg,
		cache:  wazero.NewCompilationCache(),
		logger: logger.Named("wasm"),
	}
}

// Close releases the compilation cache.
func (l *Loader) Close(ctx context.Context) error {
	return l.cache.Close(ctx)
}

// Load reads and compiles the guest, validates its exports against the ABI
// and instantiates it.
func (l *Loader) Load(ctx context.Context) (lifecycle.Instance, error) {
	binary, err := l.read()
	if err != nil {
		return nil, err
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCompilationCache(l.cache)
	if l.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(l.cfg.MemoryLimitPages)
	}
	if l.cfg.CallTimeout > 0 {
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	inst, err := l.instantiate(ctx, rt, binary)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func (l *Loader) read() ([]byte, error) {
	if l.cfg.Binary != nil {
		return l.cfg.Binary, nil
	}
	if l.cfg.Path == "" {
		return nil, errors.Load("no module path configured", nil)
	}
	data, err := os.ReadFile(l.cfg.Path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(l.cfg.Path).
			Detail("read module").
			Cause(err).
			Build()
	}
	return data, nil
}

func (l *Loader) instantiate(ctx context.Context, rt wazero.Runtime, binary []byte) (*Instance, error) {
	compiled, err := rt.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	if err := validate(compiled); err != nil {
		return nil, err
	}

	if _, err := instantiateHost(ctx, rt, l.logger); err != nil {
		return nil, errors.Instantiation(err)
	}
	if l.cfg.WASI {
		if _, err := instantiateWASI(ctx, rt); err != nil {
			return nil, errors.Instantiation(err)
		}
	}

	stdout := logging.NewLineWriter(l.logger.With(zap.String("stream", "stdout")), zapcore.InfoLevel)
	stderr := logging.NewLineWriter(l.logger.With(zap.String("stream", "stderr")), zapcore.WarnLevel)

	modCfg := wazero.NewModuleConfig().
		WithName("xf-guest").
		WithStdout(stdout).
		WithStderr(stderr).
		WithStartFunctions(l.cfg.StartFunctions...)

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &Instance{
		runtime: rt,
		module:  mod,
		memory:  guestMemory{mem: mod.Memory()},
		funcs:   make(map[string]api.Function, len(guestExports)),
		cfg:     l.cfg,
		logger:  l.logger,
		streams: []*logging.LineWriter{stdout, stderr},
	}
	for _, f := range guestExports {
		if fn := mod.ExportedFunction(f.name); fn != nil {
			inst.funcs[f.name] = fn
		}
	}
	return inst, nil
}

// validate checks the compiled guest against the ABI before anything runs.
func validate(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		return errors.MissingExport(ExportMemory)
	}

	defs := compiled.ExportedFunctions()
	for _, f := range guestExports {
		def, ok := defs[f.name]
		if !ok {
			if f.required {
				return errors.MissingExport(f.name)
			}
			continue
		}
		want, err := f.signature()
		if err != nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "guest ABI")
		}
		if got := fromDefinition(def); !equalSignature(want, got) {
			return errors.SignatureMismatch(f.name, want.String(), got.String())
		}
	}
	return nil
}

// Instance is a running guest. It is not safe for concurrent use.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module
	memory  guestMemory
	funcs   map[string]api.Function
	cfg     Config
	logger  *zap.Logger
	streams []*logging.LineWriter

	inPtr, inCap   uint32
	outPtr, outCap uint32
}

func (i *Instance) Initialize(ctx context.Context) error {
	res, err := i.call(ctx, errors.PhaseInitialize, ExportInitialize)
	if err != nil {
		return err
	}
	if rc := api.DecodeI32(res[0]); rc != 0 {
		return i.guestFailure(ctx, errors.PhaseInitialize, ExportInitialize, rc)
	}
	return nil
}

func (i *Instance) Version(ctx context.Context) (float64, error) {
	res, err := i.call(ctx, errors.PhaseVersion, ExportVersion)
	if err != nil {
		return -1, err
	}
	return api.DecodeF64(res[0]), nil
}

func (i *Instance) InputCount(ctx context.Context) (int, error) {
	return i.count(ctx, ExportInputs, layout.Input, i.cfg.Inputs)
}

func (i *Instance) OutputCount(ctx context.Context) (int, error) {
	return i.count(ctx, ExportOutputs, layout.Output, i.cfg.Outputs)
}

// count prefers the guest's own export and falls back to the configured
// layout.
func (i *Instance) count(ctx context.Context, export string, dir layout.Direction, vars []layout.Variable) (int, error) {
	if _, ok := i.funcs[export]; ok {
		res, err := i.call(ctx, errors.PhaseArguments, export)
		if err != nil {
			return -1, err
		}
		return layout.CheckCount(dir, export, float64(api.DecodeI32(res[0])))
	}
	if vars == nil {
		return -1, errors.New(errors.PhaseArguments, errors.KindNotFound).
			Path(export).
			Detail("no %s export and no %s layout", export, dir).
			Build()
	}
	return layout.Count(dir, vars)
}

func (i *Instance) Calculate(ctx context.Context, in, out []float64) error {
	if err := i.reserve(ctx, len(in), len(out)); err != nil {
		return err
	}
	if err := i.memory.writeF64s(errors.PhaseCalculate, i.inPtr, in); err != nil {
		return err
	}

	res, err := i.call(ctx, errors.PhaseCalculate, ExportCalculate,
		api.EncodeU32(i.inPtr), api.EncodeU32(uint32(len(in))),
		api.EncodeU32(i.outPtr), api.EncodeU32(uint32(len(out))))
	if err != nil {
		return err
	}
	if rc := api.DecodeI32(res[0]); rc != 0 {
		return i.guestFailure(ctx, errors.PhaseCalculate, ExportCalculate, rc)
	}
	return i.memory.readF64s(errors.PhaseCalculate, i.outPtr, out)
}

func (i *Instance) WrapUp(ctx context.Context) error {
	if _, ok := i.funcs[ExportWrapUp]; !ok {
		return nil
	}
	_, err := i.call(ctx, errors.PhaseCleanup, ExportWrapUp)
	return err
}

// Close shuts the runtime down and flushes buffered guest output.
func (i *Instance) Close(ctx context.Context) error {
	for _, s := range i.streams {
		s.Flush()
	}
	return i.runtime.Close(ctx)
}

// reserve grows the argument buffers through xf_alloc. The guest allocator
// is never asked to free, so buffers only grow.
func (i *Instance) reserve(ctx context.Context, nIn, nOut int) error {
	var err error
	if uint32(nIn) > i.inCap {
		if i.inPtr, err = i.alloc(ctx, nIn); err != nil {
			return err
		}
		i.inCap = uint32(nIn)
	}
	if uint32(nOut) > i.outCap {
		if i.outPtr, err = i.alloc(ctx, nOut); err != nil {
			return err
		}
		i.outCap = uint32(nOut)
	}
	return nil
}

func (i *Instance) alloc(ctx context.Context, count int) (uint32, error) {
	if count > layout.MaxSlots {
		return 0, errors.New(errors.PhaseCalculate, errors.KindInvalidData).
			Path(ExportAlloc).
			Detail("argument array of %d values exceeds %d", count, layout.MaxSlots).
			Build()
	}
	size := uint32(count) * 8
	res, err := i.call(ctx, errors.PhaseCalculate, ExportAlloc, api.EncodeU32(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseCalculate, size, err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseCalculate, size, nil)
	}
	i.logger.Debug("argument buffer allocated", zap.Uint32("ptr", ptr), zap.Uint32("size", size))
	return ptr, nil
}

func (i *Instance) call(ctx context.Context, phase errors.Phase, name string, params ...uint64) ([]uint64, error) {
	fn, ok := i.funcs[name]
	if !ok {
		return nil, errors.MissingExport(name)
	}
	if i.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
	}

	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, callError(phase, name, err)
	}
	return res, nil
}

// guestFailure builds the error for a non-zero status, attaching the
// guest's own diagnostic when it offers one.
func (i *Instance) guestFailure(ctx context.Context, phase errors.Phase, name string, rc int32) error {
	return errors.Guest(phase, fmt.Sprintf("%s returned %d", name, rc), i.lastError(ctx))
}

func (i *Instance) lastError(ctx context.Context) string {
	fn, ok := i.funcs[ExportLastError]
	if !ok {
		return ""
	}
	res, err := fn.Call(ctx)
	if err != nil {
		i.logger.Warn("xf_last_error failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(i.memory.cString(api.DecodeU32(res[0])))
}

func callError(phase errors.Phase, name string, err error) error {
	b := errors.New(phase, errors.KindGuestFailure).Path(name).Cause(err)

	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		switch exit.ExitCode() {
		case sys.ExitCodeDeadlineExceeded:
			return b.Detail("%s timed out", name).Build()
		case sys.ExitCodeContextCanceled:
			return b.Detail("%s canceled", name).Build()
		default:
			return b.Detail("%s exited with code %d", name, exit.ExitCode()).Build()
		}
	}

	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return b.Detail("%s trapped", name).Guest(strings.TrimPrefix(msg, "wasm error: ")).Build()
}

var _ lifecycle.Instance = (*Instance)(nil)
var _ lifecycle.Loader = (*Loader)(nil)
