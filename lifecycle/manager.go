// Package lifecycle tracks the embedded engine as a two-state machine.
//
// The engine starts lazily on first use and stays resident across host calls.
// It stops on fatal failure or explicit cleanup. Both transitions are
// idempotent. A start that fails to load the module still reaches Running,
// with an instance whose every capability returns the load error, so the
// failure surfaces at the first operation the host attempts.
package lifecycle

import (
	"context"

	"go.uber.org/zap"

	xfbridge "github.com/wippyai/xf-bridge"
)

// State is the engine state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Instance is a started engine with its module loaded.
type Instance interface {
	xfbridge.Module
	Close(ctx context.Context) error
}

// Loader starts an engine and loads the module into it.
type Loader interface {
	Load(ctx context.Context) (Instance, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Instance, error)

func (f LoaderFunc) Load(ctx context.Context) (Instance, error) {
	return f(ctx)
}

// FailingLoader returns a Loader whose every start fails with err.
func FailingLoader(err error) Loader {
	return LoaderFunc(func(context.Context) (Instance, error) {
		return nil, err
	})
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for state transitions.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager owns the engine instance. It is not safe for concurrent use; the
// host issues one call at a time.
type Manager struct {
	loader   Loader
	instance Instance
	logger   *zap.Logger
	state    State
	starts   int
}

// NewManager creates a stopped Manager.
func NewManager(loader Loader, opts ...Option) *Manager {
	m := &Manager{
		loader: loader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current engine state.
func (m *Manager) State() State {
	return m.state
}

// Starts returns how many times the engine has been started.
func (m *Manager) Starts() int {
	return m.starts
}

// EnsureRunning starts the engine if it is stopped and returns the running
// module. Calling it while running returns the same module.
func (m *Manager) EnsureRunning(ctx context.Context) xfbridge.Module {
	if m.state == Running {
		return m.instance
	}

	m.starts++
	inst, err := m.loader.Load(ctx)
	if err != nil {
		m.logger.Warn("engine started without a usable module",
			zap.Int("start", m.starts),
			zap.Error(err))
		inst = broken{err: err}
	} else {
		m.logger.Info("engine started", zap.Int("start", m.starts))
	}

	m.instance = inst
	m.state = Running
	return inst
}

// Stop shuts the engine down if it is running. Close errors are logged; the
// state is Stopped afterwards regardless.
func (m *Manager) Stop(ctx context.Context) {
	if m.state == Stopped {
		return
	}

	inst := m.instance
	m.instance = nil
	m.state = Stopped

	if err := inst.Close(ctx); err != nil {
		m.logger.Warn("engine close failed", zap.Error(err))
	}
	m.logger.Info("engine stopped", zap.Int("start", m.starts))
}
