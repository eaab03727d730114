// Package dispatch maps host method identifiers onto module capabilities.
//
// Every call produces exactly one status. A failing method stops the engine,
// even one that was started for this very call, so the next call starts
// clean. Cleanup stops the engine even on success. Panics raised by a module
// are recovered and reported like any other failure.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/errors"
	"github.com/wippyai/xf-bridge/layout"
	"github.com/wippyai/xf-bridge/lifecycle"
	"github.com/wippyai/xf-bridge/relay"
)

// Result is the structured outcome of a call. Message is set only when
// Status is StatusFailureWithMessage.
type Result struct {
	Err     error
	Message string
	Status  xfbridge.Status
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithEcho logs the inputs and outputs of every Calculate at debug level.
func WithEcho(enabled bool) Option {
	return func(d *Dispatcher) {
		d.echo = enabled
	}
}

// arity caches the slot counts for one engine start.
type arity struct {
	start   int
	inputs  int
	outputs int
}

// Dispatcher is the single entry point for host calls. It coordinates the
// engine Manager and the Relay but owns neither.
type Dispatcher struct {
	engine *lifecycle.Manager
	relay  *relay.Relay
	logger *zap.Logger
	arity  arity
	echo   bool
}

// New creates a Dispatcher.
func New(engine *lifecycle.Manager, r *relay.Relay, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine: engine,
		relay:  r,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the method and, on FailureWithMessage, relays the diagnostic
// into outputs[0]. If no output slot is available the status degrades to
// StatusFailure.
func (d *Dispatcher) Dispatch(ctx context.Context, id xfbridge.MethodID, args xfbridge.Args) xfbridge.Status {
	res := d.Invoke(ctx, id, args)
	if res.Status != xfbridge.StatusFailureWithMessage {
		return res.Status
	}

	out, err := args.Outputs(1)
	if err == nil {
		err = d.relay.Write(res.Message, out)
	}
	if err != nil {
		d.logger.Error("diagnostic not relayed",
			zap.Stringer("method", id),
			zap.String("message", res.Message),
			zap.Error(err))
		return xfbridge.StatusFailure
	}
	return res.Status
}

// Invoke runs the method and returns its structured result without touching
// the relay.
func (d *Dispatcher) Invoke(ctx context.Context, id xfbridge.MethodID, args xfbridge.Args) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.stop(ctx)
			res = d.failure(id, errors.Panic(phaseOf(id), r))
		}
	}()

	mod := d.engine.EnsureRunning(ctx)

	switch id {
	case xfbridge.MethodInitialize:
		res = d.initialize(ctx, mod)
	case xfbridge.MethodReportVersion:
		res = d.reportVersion(ctx, mod, args)
	case xfbridge.MethodReportArguments:
		res = d.reportArguments(ctx, mod, args)
	case xfbridge.MethodCalculate:
		res = d.calculate(ctx, mod, args)
	case xfbridge.MethodCleanup:
		res = d.cleanup(ctx, mod)
	default:
		res = d.abort(ctx, id, errors.UnknownMethod(int32(id)))
	}

	d.logger.Debug("dispatch",
		zap.Stringer("method", id),
		zap.Stringer("status", res.Status))
	return res
}

func (d *Dispatcher) initialize(ctx context.Context, mod xfbridge.Module) Result {
	if err := mod.Initialize(ctx); err != nil {
		return d.abort(ctx, xfbridge.MethodInitialize, err)
	}
	return success()
}

func (d *Dispatcher) reportVersion(ctx context.Context, mod xfbridge.Module, args xfbridge.Args) Result {
	v, err := mod.Version(ctx)
	if err == nil && !(v > 0) {
		err = errors.Guest(errors.PhaseVersion, fmt.Sprintf("module reported version %g", v), "")
	}
	if err != nil {
		return d.abort(ctx, xfbridge.MethodReportVersion, err)
	}

	out, err := args.Outputs(1)
	if err != nil {
		return d.abort(ctx, xfbridge.MethodReportVersion, err)
	}
	out[0] = v
	return success()
}

// reportArguments writes both counts even when one of them failed.
func (d *Dispatcher) reportArguments(ctx context.Context, mod xfbridge.Module, args xfbridge.Args) Result {
	nIn, errIn := mod.InputCount(ctx)
	nOut, errOut := mod.OutputCount(ctx)

	out, err := args.Outputs(2)
	if err != nil {
		return d.abort(ctx, xfbridge.MethodReportArguments, err)
	}
	out[0] = float64(nIn)
	out[1] = float64(nOut)

	if err := countError("input", nIn, errIn); err != nil {
		return d.abort(ctx, xfbridge.MethodReportArguments, err)
	}
	if err := countError("output", nOut, errOut); err != nil {
		return d.abort(ctx, xfbridge.MethodReportArguments, err)
	}
	d.arity = arity{start: d.engine.Starts(), inputs: nIn, outputs: nOut}
	return success()
}

func (d *Dispatcher) calculate(ctx context.Context, mod xfbridge.Module, args xfbridge.Args) Result {
	nIn, nOut, err := d.counts(ctx, mod)
	if err != nil {
		return d.abort(ctx, xfbridge.MethodCalculate, err)
	}

	in, err := args.Inputs(nIn)
	if err != nil {
		return d.abort(ctx, xfbridge.MethodCalculate, err)
	}
	out, err := args.Outputs(nOut)
	if err != nil {
		return d.abort(ctx, xfbridge.MethodCalculate, err)
	}

	if d.echo {
		d.logger.Debug("calculate inputs", zap.Float64s("inputs", in))
	}
	if err := mod.Calculate(ctx, in, out); err != nil {
		return d.abort(ctx, xfbridge.MethodCalculate, err)
	}
	if d.echo {
		d.logger.Debug("calculate outputs", zap.Float64s("outputs", out))
	}
	return success()
}

// cleanup always succeeds and always stops the engine, even when the
// module's wrap-up fails or panics.
func (d *Dispatcher) cleanup(ctx context.Context, mod xfbridge.Module) Result {
	if err := d.wrapUp(ctx, mod); err != nil {
		d.logger.Warn("module wrap-up failed", zap.Error(err))
	}
	d.stop(ctx)
	return success()
}

func (d *Dispatcher) wrapUp(ctx context.Context, mod xfbridge.Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseCleanup, r)
		}
	}()
	return mod.WrapUp(ctx)
}

// counts returns the slot counts, reusing the ones reported earlier in the
// same engine start.
func (d *Dispatcher) counts(ctx context.Context, mod xfbridge.Module) (int, int, error) {
	if d.arity.start == d.engine.Starts() && d.arity.start != 0 {
		return d.arity.inputs, d.arity.outputs, nil
	}

	nIn, err := mod.InputCount(ctx)
	if err := countError("input", nIn, err); err != nil {
		return 0, 0, err
	}
	nOut, err := mod.OutputCount(ctx)
	if err := countError("output", nOut, err); err != nil {
		return 0, 0, err
	}
	d.arity = arity{start: d.engine.Starts(), inputs: nIn, outputs: nOut}
	return nIn, nOut, nil
}

func countError(what string, n int, err error) error {
	if err != nil {
		return err
	}
	if n < 0 || n > layout.MaxSlots {
		return errors.Guest(errors.PhaseArguments, fmt.Sprintf("module reported %s count %d", what, n), "")
	}
	return nil
}

// abort applies the failure policy: stop the engine and report a message.
func (d *Dispatcher) abort(ctx context.Context, id xfbridge.MethodID, err error) Result {
	d.stop(ctx)
	return d.failure(id, err)
}

func (d *Dispatcher) failure(id xfbridge.MethodID, err error) Result {
	msg := diagnostic(id, err)
	d.logger.Warn("call failed",
		zap.Stringer("method", id),
		zap.String("message", msg),
		zap.Error(err))
	return Result{
		Status:  xfbridge.StatusFailureWithMessage,
		Message: msg,
		Err:     err,
	}
}

// stop shuts the engine down, containing a panic from the engine itself.
func (d *Dispatcher) stop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("engine stop panicked", zap.Any("panic", r))
		}
	}()
	d.engine.Stop(ctx)
}

func success() Result {
	return Result{Status: xfbridge.StatusSuccess}
}

func diagnostic(id xfbridge.MethodID, err error) string {
	if !id.Known() {
		return errors.Summary(err)
	}
	s := errors.Summary(err)
	if s == "" {
		return id.String() + " failed"
	}
	return id.String() + " failed: " + s
}

func phaseOf(id xfbridge.MethodID) errors.Phase {
	switch id {
	case xfbridge.MethodInitialize:
		return errors.PhaseInitialize
	case xfbridge.MethodReportVersion:
		return errors.PhaseVersion
	case xfbridge.MethodReportArguments:
		return errors.PhaseArguments
	case xfbridge.MethodCalculate:
		return errors.PhaseCalculate
	case xfbridge.MethodCleanup:
		return errors.PhaseCleanup
	default:
		return errors.PhaseDispatch
	}
}
