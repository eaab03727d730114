package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which step of a host call the error occurred in
type Phase string

const (
	PhaseConfig     Phase = "config"     // configuration loading
	PhaseLoad       Phase = "load"       // reading and compiling the module
	PhaseStart      Phase = "start"      // engine start and instantiation
	PhaseInitialize Phase = "initialize" // module set-up
	PhaseVersion    Phase = "version"    // version query
	PhaseArguments  Phase = "arguments"  // input/output count queries
	PhaseCalculate  Phase = "calculate"  // calculation
	PhaseCleanup    Phase = "cleanup"    // wrap-up
	PhaseDispatch   Phase = "dispatch"   // method routing
	PhaseRelay      Phase = "relay"      // diagnostic relay
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindUnsupported       Kind = "unsupported"
	KindMissingExport     Kind = "missing_export"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindGuestFailure      Kind = "guest_failure"
	KindInstantiation     Kind = "instantiation"
	KindAllocation        Kind = "allocation"
	KindPanic             Kind = "panic"
	KindUnknownMethod     Kind = "unknown_method"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Guest  string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Guest != "" {
		b.WriteString(" - guest: ")
		b.WriteString(e.Guest)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the symbol path (export name, global name)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Guest sets the diagnostic text reported by the module itself
func (b *Builder) Guest(msg string) *Builder {
	b.err.Guest = msg
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Summary condenses err into the short text shown to the host user.
// Guest-supplied text wins over the cause chain.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return err.Error()
	}

	var parts []string
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	switch {
	case e.Guest != "":
		parts = append(parts, e.Guest)
	case e.Cause != nil:
		if s := Summary(e.Cause); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return string(e.Kind)
	}
	return strings.Join(parts, ": ")
}

// Convenience constructors for common error patterns

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseStart,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// MissingExport reports a required guest export that is absent
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Path:   []string{name},
		Detail: fmt.Sprintf("module does not export %q", name),
	}
}

// SignatureMismatch reports a guest export whose core signature differs from the ABI
func SignatureMismatch(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSignatureMismatch,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s has signature %s, want %s", name, got, want),
	}
}

// Guest reports a failure signalled by the module, with its own diagnostic
func Guest(phase Phase, detail, guestMsg string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindGuestFailure,
		Detail: detail,
		Guest:  guestMsg,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// Panic converts a recovered panic value into an error
func Panic(phase Phase, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Detail: fmt.Sprintf("panic: %v", value),
		Value:  value,
	}
}

// UnknownMethod reports a method identifier outside the host's enumeration
func UnknownMethod(id int32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnknownMethod,
		Detail: fmt.Sprintf("unrecognized method ID %d", id),
		Value:  id,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
