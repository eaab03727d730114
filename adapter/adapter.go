// Package adapter assembles the bridge for one host process.
//
// An Adapter owns the logger, the engine Manager, the Relay and the
// Dispatcher. The host library builds exactly one when the process loads it
// and closes it when the process detaches.
package adapter

import (
	"context"

	"go.uber.org/zap"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/config"
	"github.com/wippyai/xf-bridge/dispatch"
	"github.com/wippyai/xf-bridge/engine"
	"github.com/wippyai/xf-bridge/lifecycle"
	"github.com/wippyai/xf-bridge/logging"
	"github.com/wippyai/xf-bridge/lua"
	"github.com/wippyai/xf-bridge/relay"
)

// Adapter is the process-wide bridge context. It is not safe for
// concurrent use; the host issues one call at a time.
type Adapter struct {
	logger     *zap.Logger
	manager    *lifecycle.Manager
	relay      *relay.Relay
	dispatcher *dispatch.Dispatcher
	release    func(context.Context) error
}

// New builds an Adapter for cfg. Diagnostics are written into buf.
func New(cfg config.Config, buf relay.Buffer, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kind, err := cfg.EngineKind()
	if err != nil {
		return nil, err
	}

	var (
		loader  lifecycle.Loader
		release func(context.Context) error
	)
	switch kind {
	case config.EngineLua:
		loader = lua.NewLoader(lua.Config{
			Path:        cfg.Module.Path,
			CallTimeout: cfg.Engine.CallTimeout.Duration,
			Inputs:      cfg.Inputs,
			Outputs:     cfg.Outputs,
			Logger:      logger,
		})
	default:
		wl := engine.NewLoader(engine.Config{
			Path:             cfg.Module.Path,
			MemoryLimitPages: cfg.Engine.MemoryLimitPages,
			WASI:             cfg.Engine.WASI,
			StartFunctions:   cfg.Engine.StartFunctions,
			CallTimeout:      cfg.Engine.CallTimeout.Duration,
			Inputs:           cfg.Inputs,
			Outputs:          cfg.Outputs,
			Logger:           logger,
		})
		loader, release = wl, wl.Close
	}

	a := assemble(loader, buf, logger, dispatch.WithEcho(cfg.Log.Echo))
	a.release = release
	logger.Info("bridge configured",
		zap.String("config", cfg.Source),
		zap.String("module", cfg.Module.Path),
		zap.String("engine", string(kind)))
	return a, nil
}

// FromEnvironment builds the Adapter from the configuration file found by
// config.Locate and installs its logger process-wide. It never fails: a
// configuration problem is reported to the host on the first call, through
// the usual failure path.
func FromEnvironment(buf relay.Buffer) *Adapter {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return Failing(buf, err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return Failing(buf, err)
	}
	logging.SetLogger(logger)

	a, err := New(cfg, buf, logger)
	if err != nil {
		logger.Error("bridge configuration rejected", zap.Error(err))
		return Failing(buf, err)
	}
	return a
}

// Failing returns an Adapter whose engine never loads. Every call that
// needs the module fails with err.
func Failing(buf relay.Buffer, err error) *Adapter {
	return assemble(lifecycle.FailingLoader(err), buf, logging.Logger())
}

func assemble(loader lifecycle.Loader, buf relay.Buffer, logger *zap.Logger, opts ...dispatch.Option) *Adapter {
	manager := lifecycle.NewManager(loader, lifecycle.WithLogger(logger.Named("lifecycle")))
	r := relay.New(buf)
	opts = append([]dispatch.Option{dispatch.WithLogger(logger.Named("dispatch"))}, opts...)
	return &Adapter{
		logger:     logger,
		manager:    manager,
		relay:      r,
		dispatcher: dispatch.New(manager, r, opts...),
	}
}

// Call handles one host call and returns its status.
func (a *Adapter) Call(ctx context.Context, method xfbridge.MethodID, args xfbridge.Args) xfbridge.Status {
	return a.dispatcher.Dispatch(ctx, method, args)
}

// Message returns the diagnostic pending in the relay buffer.
func (a *Adapter) Message() string {
	return a.relay.Message()
}

// State returns the engine state.
func (a *Adapter) State() lifecycle.State {
	return a.manager.State()
}

// Close stops the engine and releases engine-wide caches. The Adapter must
// not be used afterwards.
func (a *Adapter) Close(ctx context.Context) error {
	a.manager.Stop(ctx)

	var err error
	if a.release != nil {
		err = a.release(ctx)
	}
	_ = a.logger.Sync()
	return err
}
