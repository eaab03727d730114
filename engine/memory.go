package engine

import (
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/xf-bridge/errors"
)

// maxGuestMessage bounds how far a guest diagnostic is scanned for its NUL.
const maxGuestMessage = 1024

// guestMemory wraps the guest's exported linear memory.
type guestMemory struct {
	mem api.Memory
}

func (m guestMemory) writeF64s(phase errors.Phase, offset uint32, values []float64) error {
	for i, v := range values {
		if !m.mem.WriteUint64Le(offset+uint32(i)*8, math.Float64bits(v)) {
			return outOfBounds(phase, offset, len(values))
		}
	}
	return nil
}

func (m guestMemory) readF64s(phase errors.Phase, offset uint32, values []float64) error {
	for i := range values {
		bits, ok := m.mem.ReadUint64Le(offset + uint32(i)*8)
		if !ok {
			return outOfBounds(phase, offset, len(values))
		}
		values[i] = math.Float64frombits(bits)
	}
	return nil
}

// cString reads a NUL-terminated string at ptr, stopping at the end of
// memory or maxGuestMessage bytes.
func (m guestMemory) cString(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	size := m.mem.Size()
	if ptr >= size {
		return ""
	}
	n := size - ptr
	if n > maxGuestMessage {
		n = maxGuestMessage
	}
	data, ok := m.mem.Read(ptr, n)
	if !ok {
		return ""
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

func outOfBounds(phase errors.Phase, offset uint32, count int) error {
	return errors.New(phase, errors.KindOutOfBounds).
		Detail("%d doubles at %#x exceed guest memory", count, offset).
		Build()
}

// guestLevel maps the xf.log level argument: 0 debug, 1 info, 2 warn,
// 3 and above error.
func guestLevel(level int32) zapcore.Level {
	switch {
	case level <= 0:
		return zapcore.DebugLevel
	case level == 1:
		return zapcore.InfoLevel
	case level == 2:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
