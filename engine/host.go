package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// instantiateHost registers the xf host module in r.
func instantiateHost(ctx context.Context, r wazero.Runtime, logger *zap.Logger) (api.Module, error) {
	sig, err := hostLog.signature()
	if err != nil {
		return nil, err
	}

	return r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
			level := api.DecodeI32(stack[0])
			ptr := api.DecodeU32(stack[1])
			size := api.DecodeU32(stack[2])

			data, ok := mod.Memory().Read(ptr, size)
			if !ok {
				logger.Warn("guest log out of bounds", zap.Uint32("ptr", ptr), zap.Uint32("len", size))
				return
			}
			if ce := logger.Check(guestLevel(level), string(data)); ce != nil {
				ce.Write(zap.String("source", "guest"))
			}
		}), toAPI(sig.Params), toAPI(sig.Results)).
		Export(HostLog).
		Instantiate(ctx)
}
