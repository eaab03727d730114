// Package relay returns diagnostic strings to the host through the numeric
// output channel.
//
// The host reads the message strictly after the call returns, so the text
// lives in a process-lifetime Buffer and only its address travels back, stored
// in outputs[0] with the native pointer width. Exactly one message is pending
// at a time; each Write overwrites the previous one.
package relay

import (
	"math"
	"unicode/utf8"
	"unsafe"

	"github.com/wippyai/xf-bridge/errors"
)

const (
	// Capacity is the number of visible bytes the host will display.
	Capacity = 80

	// Size is Capacity plus the NUL terminator.
	Size = Capacity + 1
)

// PointerSize is the native pointer width in bytes.
const PointerSize = int(unsafe.Sizeof(uintptr(0)))

// Buffer is process-lifetime storage for the pending message. Bytes must
// return exactly Size bytes that stay at Addr until the process exits.
type Buffer interface {
	Bytes() []byte
	Addr() uintptr
}

type staticBuffer struct {
	data [Size]byte
}

// NewStaticBuffer returns a Go-allocated Buffer. The Go collector does not
// move heap objects, so the address is stable while the Relay holds it.
func NewStaticBuffer() Buffer {
	return &staticBuffer{}
}

func (b *staticBuffer) Bytes() []byte {
	return b.data[:]
}

func (b *staticBuffer) Addr() uintptr {
	return uintptr(unsafe.Pointer(&b.data[0]))
}

// Relay copies diagnostics into its Buffer and encodes the buffer address
// into an output slot.
type Relay struct {
	buf Buffer
}

// New creates a Relay over buf.
func New(buf Buffer) *Relay {
	return &Relay{buf: buf}
}

// Write truncates message to Capacity bytes, NUL-terminates it, stores it in
// the buffer and writes the buffer address into outputs[0]. The caller has
// already set the status to FailureWithMessage.
func (r *Relay) Write(message string, outputs []float64) error {
	if len(outputs) == 0 {
		return errors.New(errors.PhaseRelay, errors.KindOutOfBounds).
			Detail("no output slot for message address").
			Build()
	}

	data := r.buf.Bytes()
	if len(data) < Size {
		return errors.New(errors.PhaseRelay, errors.KindInvalidData).
			Detail("buffer holds %d bytes, need %d", len(data), Size).
			Build()
	}

	clear(data[:Size])
	copy(data[:Capacity], Truncate(message))

	outputs[0] = Encode(r.buf.Addr(), outputs[0])
	return nil
}

// Message returns the pending diagnostic.
func (r *Relay) Message() string {
	data := r.buf.Bytes()
	for i, c := range data {
		if c == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// Addr returns the buffer address the host will receive.
func (r *Relay) Addr() uintptr {
	return r.buf.Addr()
}

// Truncate cuts message to at most Capacity bytes without splitting a UTF-8
// sequence. An embedded NUL ends the message, as it would for the host.
func Truncate(message string) string {
	for i := 0; i < len(message); i++ {
		if message[i] == 0 {
			message = message[:i]
			break
		}
	}
	if len(message) <= Capacity {
		return message
	}
	cut := Capacity
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// Encode stores addr in a double slot bit-for-bit. On 32-bit targets only the
// low four bytes are replaced and the rest of prev is preserved.
func Encode(addr uintptr, prev float64) float64 {
	if PointerSize == 8 {
		return math.Float64frombits(uint64(addr))
	}
	bits := math.Float64bits(prev)
	bits = bits&^0xFFFFFFFF | uint64(uint32(addr))
	return math.Float64frombits(bits)
}

// Decode recovers the address stored by Encode.
func Decode(slot float64) uintptr {
	bits := math.Float64bits(slot)
	if PointerSize == 8 {
		return uintptr(bits)
	}
	return uintptr(uint32(bits))
}

// ReadCString reads the NUL-terminated string at addr, scanning at most Size
// bytes. It is what the host does with a relayed address; addr must come from
// a live Buffer.
func ReadCString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), Size)
	for i, c := range data {
		if c == 0 {
			return string(data[:i])
		}
	}
	return string(data[:Capacity])
}
