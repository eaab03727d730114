package lua

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/xf-bridge/errors"
	"github.com/wippyai/xf-bridge/layout"
	"github.com/wippyai/xf-bridge/lifecycle"
)

// Instance is a running script. It is not safe for concurrent use.
type Instance struct {
	state  *glua.LState
	cfg    Config
	logger *zap.Logger
}

func (i *Instance) Initialize(ctx context.Context) error {
	fn, err := i.optional(errors.PhaseInitialize, GlobalInitialize)
	if err != nil || fn == nil {
		return err
	}
	ret, err := i.call(ctx, errors.PhaseInitialize, GlobalInitialize, fn, 2)
	if err != nil {
		return err
	}

	switch v := ret[0].(type) {
	case glua.LBool:
		if !bool(v) {
			return failed(errors.PhaseInitialize, GlobalInitialize, ret)
		}
	case glua.LNumber:
		if v != 0 {
			return failed(errors.PhaseInitialize, GlobalInitialize, ret)
		}
	default:
		if v == glua.LNil && ret[1] != glua.LNil {
			return failed(errors.PhaseInitialize, GlobalInitialize, ret)
		}
	}
	return nil
}

func (i *Instance) Version(ctx context.Context) (float64, error) {
	v := i.state.GetGlobal(GlobalVersion)
	if fn, ok := v.(*glua.LFunction); ok {
		ret, err := i.call(ctx, errors.PhaseVersion, GlobalVersion, fn, 2)
		if err != nil {
			return -1, err
		}
		if ret[0] == glua.LNil {
			return -1, failed(errors.PhaseVersion, GlobalVersion, ret)
		}
		v = ret[0]
	}
	n, ok := v.(glua.LNumber)
	if !ok {
		return -1, typeError(errors.PhaseVersion, GlobalVersion, "number", v)
	}
	return float64(n), nil
}

func (i *Instance) InputCount(ctx context.Context) (int, error) {
	return i.count(ctx, GlobalInputs, layout.Input, i.cfg.Inputs)
}

func (i *Instance) OutputCount(ctx context.Context) (int, error) {
	return i.count(ctx, GlobalOutputs, layout.Output, i.cfg.Outputs)
}

// count resolves a count global: a number, a layout table, or a function
// returning either. Without the global the configured layout is used.
func (i *Instance) count(ctx context.Context, global string, dir layout.Direction, fallback []layout.Variable) (int, error) {
	v := i.state.GetGlobal(global)
	if fn, ok := v.(*glua.LFunction); ok {
		ret, err := i.call(ctx, errors.PhaseArguments, global, fn, 2)
		if err != nil {
			return -1, err
		}
		if ret[0] == glua.LNil {
			return -1, failed(errors.PhaseArguments, global, ret)
		}
		v = ret[0]
	}

	switch v := v.(type) {
	case glua.LNumber:
		n := float64(v)
		if n != math.Trunc(n) {
			return -1, errors.InvalidData(errors.PhaseArguments, []string{global}, fmt.Sprintf("%s is %v, want a whole number", global, n))
		}
		return layout.CheckCount(dir, global, n)
	case *glua.LTable:
		vars, err := variables(dir, v)
		if err != nil {
			return -1, err
		}
		return layout.Count(dir, vars)
	}

	if v != glua.LNil {
		return -1, typeError(errors.PhaseArguments, global, "number, table or function", v)
	}
	if fallback == nil {
		return -1, errors.New(errors.PhaseArguments, errors.KindNotFound).
			Path(global).
			Detail("script defines no %s and no %s layout is configured", global, dir).
			Build()
	}
	return layout.Count(dir, fallback)
}

func (i *Instance) Calculate(ctx context.Context, in, out []float64) error {
	L := i.state
	fn := L.GetGlobal(GlobalCalculate)

	values := L.CreateTable(len(in), 0)
	for k, x := range in {
		values.RawSetInt(k+1, glua.LNumber(x))
	}
	ret, err := i.call(ctx, errors.PhaseCalculate, GlobalCalculate, fn, 2, values, glua.LNumber(len(out)))
	if err != nil {
		return err
	}

	result, ok := ret[0].(*glua.LTable)
	if !ok {
		if glua.LVIsFalse(ret[0]) {
			return failed(errors.PhaseCalculate, GlobalCalculate, ret)
		}
		return typeError(errors.PhaseCalculate, GlobalCalculate, "table", ret[0])
	}
	if n := result.Len(); n != len(out) {
		return errors.Guest(errors.PhaseCalculate, fmt.Sprintf("calculate returned %d values, want %d", n, len(out)), "")
	}
	for k := range out {
		lv := result.RawGetInt(k + 1)
		num, ok := lv.(glua.LNumber)
		if !ok {
			return errors.InvalidData(errors.PhaseCalculate, []string{GlobalCalculate, strconv.Itoa(k + 1)},
				fmt.Sprintf("output %d is %s, want number", k+1, lv.Type()))
		}
		out[k] = float64(num)
	}
	return nil
}

func (i *Instance) WrapUp(ctx context.Context) error {
	fn, err := i.optional(errors.PhaseCleanup, GlobalWrapUp)
	if err != nil || fn == nil {
		return err
	}
	_, err = i.call(ctx, errors.PhaseCleanup, GlobalWrapUp, fn, 0)
	return err
}

// Close releases the Lua state.
func (i *Instance) Close(context.Context) error {
	i.state.Close()
	return nil
}

// optional returns the named global function, or nil when it is undefined.
func (i *Instance) optional(phase errors.Phase, name string) (*glua.LFunction, error) {
	switch v := i.state.GetGlobal(name).(type) {
	case *glua.LFunction:
		return v, nil
	default:
		if v == glua.LNil {
			return nil, nil
		}
		return nil, typeError(phase, name, "function", v)
	}
}

// call runs fn in protected mode and returns exactly nret results.
func (i *Instance) call(ctx context.Context, phase errors.Phase, name string, fn glua.LValue, nret int, args ...glua.LValue) ([]glua.LValue, error) {
	L := i.state
	if i.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
	}
	if ctx.Done() != nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	top := L.GetTop()
	defer L.SetTop(top)
	if err := L.CallByParam(glua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return nil, callError(ctx, phase, name, err)
	}

	ret := make([]glua.LValue, nret)
	for k := range ret {
		ret[k] = L.Get(top + 1 + k)
	}
	return ret, nil
}

func callError(ctx context.Context, phase errors.Phase, name string, err error) error {
	b := errors.New(phase, errors.KindGuestFailure).Path(name).Cause(err)
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return b.Detail("%s timed out", name).Build()
	case stderrors.Is(ctx.Err(), context.Canceled):
		return b.Detail("%s canceled", name).Build()
	}
	return b.Detail("%s raised an error", name).Guest(message(err)).Build()
}

// message extracts the Lua error value without the stack traceback.
func message(err error) string {
	var apiErr *glua.ApiError
	if stderrors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}

// failed builds the error for a function that returned a failure value,
// optionally followed by a message.
func failed(phase errors.Phase, name string, ret []glua.LValue) error {
	var msg string
	if len(ret) > 1 && ret[1] != glua.LNil {
		msg = ret[1].String()
	}
	return errors.Guest(phase, fmt.Sprintf("%s returned %s", name, ret[0].String()), msg)
}

func typeError(phase errors.Phase, name, want string, got glua.LValue) error {
	return errors.New(phase, errors.KindSignatureMismatch).
		Path(name).
		Detail("%s is a %s, want %s", name, got.Type(), want).
		Build()
}

// variables converts a script layout table into layout variables.
func variables(dir layout.Direction, tbl *glua.LTable) ([]layout.Variable, error) {
	n := tbl.Len()
	vars := make([]layout.Variable, 0, n)
	for k := 1; k <= n; k++ {
		path := []string{dir.String(), strconv.Itoa(k)}
		entry, ok := tbl.RawGetInt(k).(*glua.LTable)
		if !ok {
			return nil, errors.InvalidData(errors.PhaseArguments, path, "variable must be a table")
		}

		kind, err := layout.ParseKind(glua.LVAsString(entry.RawGetString("kind")))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseArguments, errors.KindInvalidData, err, strings.Join(path, "."))
		}
		v := layout.Variable{
			Name: glua.LVAsString(entry.RawGetString("name")),
			Kind: kind,
		}
		for _, f := range []struct {
			key string
			dst *int
		}{{"size", &v.Size}, {"rows", &v.Rows}, {"cols", &v.Cols}} {
			if lv := entry.RawGetString(f.key); lv != glua.LNil {
				num, ok := lv.(glua.LNumber)
				if !ok {
					return nil, errors.InvalidData(errors.PhaseArguments, append(path, f.key), fmt.Sprintf("%s must be a number", f.key))
				}
				*f.dst = int(num)
			}
		}
		vars = append(vars, v)
	}
	return vars, nil
}

var _ lifecycle.Instance = (*Instance)(nil)
