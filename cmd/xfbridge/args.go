package main

import (
	"strconv"
	"unsafe"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/errors"
)

// rawArgs exposes the host's argument arrays. The host passes bare
// pointers, so the length always comes from the caller.
type rawArgs struct {
	in  *float64
	out *float64
}

func (a rawArgs) Inputs(n int) ([]float64, error) {
	return view(a.in, n, "inputs")
}

func (a rawArgs) Outputs(n int) ([]float64, error) {
	return view(a.out, n, "outputs")
}

func view(p *float64, n int, name string) ([]float64, error) {
	switch {
	case n < 0:
		return nil, errors.InvalidInput(errors.PhaseDispatch, "negative "+name+" length "+strconv.Itoa(n))
	case n == 0:
		return []float64{}, nil
	case p == nil:
		return nil, errors.InvalidInput(errors.PhaseDispatch, name+" array is null")
	}
	return unsafe.Slice(p, n), nil
}

var _ xfbridge.Args = rawArgs{}
