package lifecycle

import (
	"context"

	"github.com/wippyai/xf-bridge/errors"
)

// broken stands in for a module that failed to load.
type broken struct {
	err error
}

func (b broken) Initialize(context.Context) error {
	return b.wrap(errors.PhaseInitialize)
}

func (b broken) Version(context.Context) (float64, error) {
	return -1, b.wrap(errors.PhaseVersion)
}

func (b broken) InputCount(context.Context) (int, error) {
	return -1, b.wrap(errors.PhaseArguments)
}

func (b broken) OutputCount(context.Context) (int, error) {
	return -1, b.wrap(errors.PhaseArguments)
}

func (b broken) Calculate(context.Context, []float64, []float64) error {
	return b.wrap(errors.PhaseCalculate)
}

func (b broken) WrapUp(context.Context) error {
	return b.wrap(errors.PhaseCleanup)
}

func (b broken) Close(context.Context) error {
	return nil
}

func (b broken) wrap(phase errors.Phase) error {
	return errors.Wrap(phase, errors.KindNotInitialized, b.err, "module not loaded")
}
