// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (which step of a host call failed) and Kind
// (error category). The Error type carries the export or symbol involved, a
// human-readable detail, the diagnostic text supplied by the guest module, and
// the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCalculate, errors.KindGuestFailure).
//		Path("xf_calculate").
//		Detail("guest returned status %d", rc).
//		Guest(msg).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingExport("xf_alloc")
//	err := errors.Load("read module", cause)
//
// Summary condenses an error into the short text relayed to the host.
// All errors implement the standard error interface and support errors.Is/As.
package errors
