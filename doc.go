// Package xfbridge lets a host simulation engine call operations implemented
// in an external scripting module through a narrow, fixed-shape native ABI.
//
// The host issues every call as (method ID, status out-pointer, input array,
// output array). The bridge dispatches the method onto a Module, keeps the
// embedded engine alive across calls, and relays a diagnostic string back to
// the host by storing the address of a static buffer in the first output slot.
//
// # Architecture Overview
//
//	xfbridge/        Root package with MethodID, Status, Module and Args
//	├── dispatch/    Method dispatch, failure policy, status translation
//	├── lifecycle/   Lazy engine start/stop state machine
//	├── relay/       Static error buffer and pointer-in-a-double encoding
//	├── engine/      wazero host for WebAssembly guest modules
//	├── lua/         gopher-lua host for Lua script modules
//	├── layout/      Slot counts for the host's interface variable kinds
//	├── adapter/     Process-wide context wiring everything together
//	├── config/      TOML configuration
//	├── logging/     zap logger construction
//	├── errors/      Structured error types
//	├── wasm/        Minimal core module encoder
//	├── guest/       Sample guest module builder
//	└── cmd/         c-shared boundary, host emulator, sample generator
//
// # Calling Convention
//
//	void XFBridge(int methodID, int *status, double *inargs, double *outargs);
//
// Method IDs follow the host: Initialize 0, Calculate 1, ReportVersion 2,
// ReportArguments 3, Cleanup 99. Status is Success 0, Failure 1 or
// FailureWithMessage -1. When the status is FailureWithMessage, outargs[0]
// holds the address of a NUL-terminated message of at most 80 bytes.
//
// # Thread Safety
//
// The host issues one call at a time. Nothing in the call path is locked;
// concurrent calls from multiple threads are not supported.
package xfbridge
