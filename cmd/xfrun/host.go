package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/adapter"
	"github.com/wippyai/xf-bridge/relay"
)

// host emulates the calling simulator: it keeps the argument arrays between
// calls and sizes them from ReportArguments like the real host does.
type host struct {
	bridge *adapter.Adapter
	inputs []float64
	nIn    int
	nOut   int
}

// callResult is what the host observes after one call.
type callResult struct {
	method  xfbridge.MethodID
	status  xfbridge.Status
	outputs []float64
	message string
}

func newHost(a *adapter.Adapter, inputs []float64) *host {
	return &host{bridge: a, inputs: inputs, nIn: -1, nOut: -1}
}

func (h *host) call(ctx context.Context, id xfbridge.MethodID) callResult {
	in := h.inputs
	if h.nIn > len(in) {
		in = append(append([]float64(nil), in...), make([]float64, h.nIn-len(in))...)
	}
	out := make([]float64, max(h.nOut, 2))

	status := h.bridge.Call(ctx, id, xfbridge.Slices{In: in, Out: out})
	res := callResult{method: id, status: status}

	switch {
	case status == xfbridge.StatusFailureWithMessage:
		res.message = relay.ReadCString(relay.Decode(out[0]))
	case status != xfbridge.StatusSuccess:
	case id == xfbridge.MethodReportVersion:
		res.outputs = out[:1]
	case id == xfbridge.MethodReportArguments:
		h.nIn, h.nOut = int(out[0]), int(out[1])
		res.outputs = out[:2]
	case id == xfbridge.MethodCalculate && h.nOut >= 0:
		res.outputs = out[:h.nOut]
	}
	return res
}

// sequence runs the host's call order for a simulation of steps
// realizations.
func (h *host) sequence(ctx context.Context, steps int) []callResult {
	var results []callResult
	for _, id := range []xfbridge.MethodID{
		xfbridge.MethodInitialize,
		xfbridge.MethodReportVersion,
		xfbridge.MethodReportArguments,
	} {
		results = append(results, h.call(ctx, id))
	}
	for range steps {
		results = append(results, h.call(ctx, xfbridge.MethodCalculate))
	}
	return append(results, h.call(ctx, xfbridge.MethodCleanup))
}

func (r callResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %s", r.method, r.status)
	if len(r.outputs) > 0 {
		b.WriteString("  ")
		b.WriteString(formatValues(r.outputs))
	}
	if r.message != "" {
		fmt.Fprintf(&b, "  %q", r.message)
	}
	return b.String()
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// parseValues reads a comma or space separated list of numbers.
func parseValues(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}
