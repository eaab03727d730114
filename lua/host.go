package lua

import (
	"strings"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HostModule is the global table holding host functions.
const HostModule = "xf"

// open loads the standard libraries a model needs and the host functions.
// io and os stay closed.
func (i *Instance) open() error {
	L := i.state
	for _, lib := range []struct {
		name string
		fn   glua.LGFunction
	}{
		{glua.LoadLibName, glua.OpenPackage},
		{glua.BaseLibName, glua.OpenBase},
		{glua.TabLibName, glua.OpenTable},
		{glua.StringLibName, glua.OpenString},
		{glua.MathLibName, glua.OpenMath},
	} {
		if err := L.CallByParam(glua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, glua.LString(lib.name)); err != nil {
			return err
		}
	}

	L.SetGlobal(HostModule, L.SetFuncs(L.NewTable(), map[string]glua.LGFunction{
		"log": i.hostLog,
	}))
	L.SetGlobal("print", L.NewFunction(i.hostPrint))
	return nil
}

// hostLog implements xf.log(level, message).
func (i *Instance) hostLog(L *glua.LState) int {
	level, ok := scriptLevel(L.Get(1))
	if !ok {
		L.ArgError(1, "unknown log level")
		return 0
	}
	msg := L.CheckString(2)
	if ce := i.logger.Check(level, msg); ce != nil {
		ce.Write(zap.String("source", "script"))
	}
	return 0
}

func (i *Instance) hostPrint(L *glua.LState) int {
	parts := make([]string, L.GetTop())
	for k := range parts {
		parts[k] = L.ToStringMeta(L.Get(k + 1)).String()
	}
	i.logger.Info(strings.Join(parts, "\t"), zap.String("source", "print"))
	return 0
}

// scriptLevel accepts the numeric levels of the WASM xf.log import or a
// zap level name.
func scriptLevel(v glua.LValue) (zapcore.Level, bool) {
	switch v := v.(type) {
	case glua.LNumber:
		switch {
		case v <= 0:
			return zapcore.DebugLevel, true
		case v < 2:
			return zapcore.InfoLevel, true
		case v < 3:
			return zapcore.WarnLevel, true
		default:
			return zapcore.ErrorLevel, true
		}
	case glua.LString:
		level, err := zapcore.ParseLevel(string(v))
		return level, err == nil
	}
	return zapcore.InfoLevel, false
}
