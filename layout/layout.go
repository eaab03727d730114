// Package layout derives slot counts from a typed description of the
// element interface.
//
// The host flattens every interface variable into consecutive doubles.
// Scalars and arrays occupy one slot per value; time series and lookup
// tables carry host-defined header slots ahead of their data.
package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/xf-bridge/errors"
)

// Kind is the host's name for a variable type.
type Kind string

const (
	Double     Kind = "Double"
	Vector     Kind = "1-D Array"
	Matrix     Kind = "2-D Array"
	TimeSeries Kind = "Time Series"
	Lookup1D   Kind = "1-D Lookup Table"
	Lookup2D   Kind = "2-D Lookup Table"
)

// Header slot counts defined by the host.
const (
	TimeSeriesHeader = 8
	LookupHeader     = 2
)

// MaxSlots bounds the slot count of one direction so that its byte size
// fits a 32-bit guest address.
const MaxSlots = math.MaxInt32 / 8

var aliases = map[string]Kind{
	"double":     Double,
	"scalar":     Double,
	"vector":     Vector,
	"array":      Vector,
	"matrix":     Matrix,
	"timeseries": TimeSeries,
	"lookup1d":   Lookup1D,
	"lookup2d":   Lookup2D,
}

// ParseKind accepts the host's type names and short aliases, ignoring case.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Double, Vector, Matrix, TimeSeries, Lookup1D, Lookup2D} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	key := strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s))
	if k, ok := aliases[key]; ok {
		return k, nil
	}
	return "", errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown variable type %q", s))
}

// UnmarshalText lets configuration files use any accepted spelling.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Direction distinguishes the input interface from the output interface.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "outputs"
	}
	return "inputs"
}

// Variable is one entry of the element interface. Size is the value count
// for Double, Vector and TimeSeries (points) and the row count for Lookup1D.
// Rows and Cols apply to Matrix and Lookup2D.
type Variable struct {
	Name string `toml:"name"`
	Kind Kind   `toml:"kind"`
	Size int    `toml:"size"`
	Rows int    `toml:"rows"`
	Cols int    `toml:"cols"`
}

// Slots returns how many doubles v occupies in the given direction.
func (v Variable) Slots(dir Direction) (int, error) {
	switch v.Kind {
	case Double:
		if v.Size == 0 {
			return 1, nil
		}
		return v.positive(dir, "size", v.Size)
	case Vector:
		return v.positive(dir, "size", v.Size)
	case Matrix:
		if err := v.shape(dir); err != nil {
			return 0, err
		}
		return v.Rows * v.Cols, nil
	case TimeSeries:
		n, err := v.positive(dir, "size", v.Size)
		if err != nil {
			return 0, err
		}
		return TimeSeriesHeader + 2*n, nil
	case Lookup1D, Lookup2D:
		if dir == Input {
			return 0, v.invalid(dir, "type "+string(v.Kind)+" not supported for inputs")
		}
		if v.Kind == Lookup1D {
			n, err := v.positive(dir, "size", v.Size)
			if err != nil {
				return 0, err
			}
			return LookupHeader + 2*n, nil
		}
		if err := v.shape(dir); err != nil {
			return 0, err
		}
		return LookupHeader + 1 + v.Rows + v.Cols + v.Rows*v.Cols, nil
	default:
		return 0, v.invalid(dir, fmt.Sprintf("invalid variable type %q", v.Kind))
	}
}

func (v Variable) positive(dir Direction, field string, n int) (int, error) {
	if n <= 0 {
		return 0, v.invalid(dir, fmt.Sprintf("%s must be positive, got %d", field, n))
	}
	return n, nil
}

func (v Variable) shape(dir Direction) error {
	if v.Rows <= 0 || v.Cols <= 0 {
		return v.invalid(dir, fmt.Sprintf("shape must be positive, got %dx%d", v.Rows, v.Cols))
	}
	return nil
}

func (v Variable) invalid(dir Direction, detail string) error {
	name := v.Name
	if name == "" {
		name = string(v.Kind)
	}
	return errors.InvalidData(errors.PhaseArguments, []string{dir.String(), name}, detail)
}

// Count sums the slots of vars. The first invalid variable fails the count.
func Count(dir Direction, vars []Variable) (int, error) {
	total := 0
	for _, v := range vars {
		n, err := v.Slots(dir)
		if err != nil {
			return -1, err
		}
		total += n
		if total > MaxSlots {
			return -1, errors.InvalidData(errors.PhaseArguments, []string{dir.String()},
				fmt.Sprintf("%s need more than %d slots", dir, MaxSlots))
		}
	}
	return total, nil
}

// CheckCount converts a module-reported slot count, rejecting values that
// are negative, fractional or above MaxSlots.
func CheckCount(dir Direction, source string, n float64) (int, error) {
	if !(n >= 0 && n <= MaxSlots) || n != math.Trunc(n) {
		return -1, errors.InvalidData(errors.PhaseArguments, []string{source},
			fmt.Sprintf("%s count %v out of range [0, %d]", dir, n, MaxSlots))
	}
	return int(n), nil
}

// Validate checks every variable without summing.
func Validate(dir Direction, vars []Variable) error {
	_, err := Count(dir, vars)
	return err
}
