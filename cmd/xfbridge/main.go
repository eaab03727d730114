// Command xfbridge builds the native library the simulator loads:
//
//	go build -buildmode=c-shared -o xfbridge.dll ./cmd/xfbridge
//
// The library exports XFBridge with the host's external-function signature
// and reads its configuration from $XFBRIDGE_CONFIG or xfbridge.toml.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"sync"
	"unsafe"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/adapter"
	"github.com/wippyai/xf-bridge/relay"
)

var (
	mu     sync.Mutex
	bridge *adapter.Adapter
)

func init() {
	bridge = adapter.FromEnvironment(newCBuffer())
}

// cBuffer is the relay buffer in C memory, allocated once and never freed.
type cBuffer struct {
	ptr unsafe.Pointer
}

func newCBuffer() *cBuffer {
	ptr := C.calloc(1, C.size_t(relay.Size))
	if ptr == nil {
		panic("xfbridge: cannot allocate message buffer")
	}
	return &cBuffer{ptr: ptr}
}

func (b *cBuffer) Bytes() []byte {
	return unsafe.Slice((*byte)(b.ptr), relay.Size)
}

func (b *cBuffer) Addr() uintptr {
	return uintptr(b.ptr)
}

//export XFBridge
func XFBridge(methodID C.int, status *C.int, inargs *C.double, outargs *C.double) {
	if status == nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	if bridge == nil {
		*status = C.int(xfbridge.StatusFailure)
		return
	}

	args := rawArgs{
		in:  (*float64)(unsafe.Pointer(inargs)),
		out: (*float64)(unsafe.Pointer(outargs)),
	}
	*status = C.int(bridge.Call(context.Background(), xfbridge.MethodID(methodID), args))
}

// XFBridgeShutdown stops the engine and flushes the log. Calls made after it
// fail without a message.
//
//export XFBridgeShutdown
func XFBridgeShutdown() {
	mu.Lock()
	defer mu.Unlock()
	if bridge != nil {
		_ = bridge.Close(context.Background())
		bridge = nil
	}
}

func main() {}
