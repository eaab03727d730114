// Package engine runs bridge modules compiled to WebAssembly.
//
// Each engine start creates a fresh wazero runtime, compiles the guest and
// instantiates it, so a stop followed by a start leaves no guest state
// behind. Compiled code is cached by the Loader across starts.
//
// # Guest ABI
//
// The guest is a core module. Its exports are described in WIT primitive
// types and flattened to core types before they are checked:
//
//	memory                                              required
//	xf_initialize() -> s32                              required, 0 = success
//	xf_version() -> f64                                 required
//	xf_calculate(in, in-len, out, out-len: u32) -> s32  required, 0 = success
//	xf_alloc(size: u32) -> u32                          required
//	xf_inputs() -> s32                                  optional
//	xf_outputs() -> s32                                 optional
//	xf_wrap_up()                                        optional
//	xf_last_error() -> u32                              optional, NUL-terminated
//
// Argument arrays are little-endian doubles in guest memory, allocated once
// through xf_alloc and grown on demand. When xf_inputs or xf_outputs is
// missing, the configured layout supplies the count.
//
// # Host imports
//
//	xf.log(level: s32, ptr: u32, len: u32)
//
// routes guest messages into the bridge log. Level 0 is debug, 1 info,
// 2 warn and 3 error. WASI preview1 is offered when enabled, with guest
// stdout and stderr written to the log line by line.
package engine
