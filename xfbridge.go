package xfbridge

import (
	"context"
	"strconv"

	"github.com/wippyai/xf-bridge/errors"
)

// MethodID selects the host-requested operation.
type MethodID int32

const (
	MethodInitialize      MethodID = 0
	MethodCalculate       MethodID = 1
	MethodReportVersion   MethodID = 2
	MethodReportArguments MethodID = 3
	MethodCleanup         MethodID = 99
)

// Known reports whether id is one of the host's method identifiers.
func (id MethodID) Known() bool {
	switch id {
	case MethodInitialize, MethodCalculate, MethodReportVersion, MethodReportArguments, MethodCleanup:
		return true
	}
	return false
}

func (id MethodID) String() string {
	switch id {
	case MethodInitialize:
		return "Initialize"
	case MethodCalculate:
		return "Calculate"
	case MethodReportVersion:
		return "ReportVersion"
	case MethodReportArguments:
		return "ReportArguments"
	case MethodCleanup:
		return "Cleanup"
	default:
		return "Method(" + strconv.Itoa(int(id)) + ")"
	}
}

// ParseMethod maps a method name back to its identifier.
func ParseMethod(name string) (MethodID, bool) {
	for _, id := range Methods() {
		if id.String() == name {
			return id, true
		}
	}
	if n, err := strconv.Atoi(name); err == nil {
		return MethodID(n), true
	}
	return 0, false
}

// Methods returns the known methods in the order the host calls them.
func Methods() []MethodID {
	return []MethodID{
		MethodInitialize,
		MethodReportVersion,
		MethodReportArguments,
		MethodCalculate,
		MethodCleanup,
	}
}

// Status is the value written to the host's status out-parameter.
type Status int32

const (
	StatusSuccess            Status = 0
	StatusFailure            Status = 1
	// StatusFailureWithMessage is the only status under which the host reads
	// outputs[0] as the address of a diagnostic message.
	StatusFailureWithMessage Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	case StatusFailureWithMessage:
		return "FailureWithMessage"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Module is the capability set the dispatcher drives. Implementations must
// report failure through errors and never crash the calling process.
type Module interface {
	// Initialize runs the module's set-up. A non-nil error fails the call.
	Initialize(ctx context.Context) error

	// Version returns the module version. Values <= 0 mean the module
	// failed to load.
	Version(ctx context.Context) (float64, error)

	// InputCount returns the number of input slots the module expects.
	// A negative count is a failure.
	InputCount(ctx context.Context) (int, error)

	// OutputCount returns the number of output slots the module fills.
	// A negative count is a failure.
	OutputCount(ctx context.Context) (int, error)

	// Calculate reads in and fills out. len(in) and len(out) match the
	// counts reported by InputCount and OutputCount.
	Calculate(ctx context.Context, in, out []float64) error

	// WrapUp runs end-of-simulation work.
	WrapUp(ctx context.Context) error
}

// Args exposes the host's two flat argument arrays. The native ABI carries
// no lengths, so callers request the length they need.
type Args interface {
	Inputs(n int) ([]float64, error)
	Outputs(n int) ([]float64, error)
}

// Slices is an Args backed by Go slices.
type Slices struct {
	In  []float64
	Out []float64
}

func (s Slices) Inputs(n int) ([]float64, error) {
	return window(s.In, n, "inputs")
}

func (s Slices) Outputs(n int) ([]float64, error) {
	return window(s.Out, n, "outputs")
}

func window(buf []float64, n int, name string) ([]float64, error) {
	if n < 0 {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "negative "+name+" length "+strconv.Itoa(n))
	}
	if n > len(buf) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindOutOfBounds).
			Detail("%s need %d slots, have %d", name, n, len(buf)).
			Build()
	}
	return buf[:n], nil
}

var _ Args = Slices{}
