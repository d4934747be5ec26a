package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which bridge operation produced the error
type Phase string

const (
	PhaseInit        Phase = "init"        // engine/store allocation
	PhaseLoad        Phase = "load"        // module compilation
	PhaseInstantiate Phase = "instantiate" // module instantiation
	PhaseLookup      Phase = "lookup"      // export resolution
	PhaseCall        Phase = "call"        // function execution
	PhaseMarshal     Phase = "marshal"     // host <-> native value conversion
	PhaseRelease     Phase = "release"     // deinstantiate/unload
	PhaseHandle      Phase = "handle"      // handle extraction
	PhaseDescribe    Phase = "describe"    // introspection
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseScript      Phase = "script"      // script host commands
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindTypeMismatch      Kind = "type_mismatch"
	KindModuleLoad        Kind = "module_load"
	KindInstantiation     Kind = "instantiation"
	KindNotFound          Kind = "not_found"
	KindArityMismatch     Kind = "arity_mismatch"
	KindMarshal           Kind = "marshal"
	KindUseAfterFree      Kind = "use_after_free"
	KindTrap              Kind = "trap"
	KindInUse             Kind = "in_use"
	KindConstructorMisuse Kind = "constructor_misuse"
	KindClosed            Kind = "closed"
	KindUnsupported       Kind = "unsupported"
)

// Error carries the phase and kind of a failure along with whatever context
// the failing operation had: a value path, the offending value, and for
// arity errors both counts.
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Detail   string
	Path     []string
	Expected int
	Actual   int
}

// Error renders "phase/kind at path: detail: cause", omitting empty parts.
func (e *Error) Error() string {
	parts := make([]string, 0, 3)

	head := string(e.Kind)
	if e.Phase != "" {
		head = string(e.Phase) + "/" + head
	}
	if len(e.Path) > 0 {
		head += " at " + strings.Join(e.Path, ".")
	}
	parts = append(parts, head)

	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind, and on phase too when target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Kind sentinels for errors.Is checks that ignore the phase.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrModuleLoad        = &Error{Kind: KindModuleLoad}
	ErrInstantiation     = &Error{Kind: KindInstantiation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrArityMismatch     = &Error{Kind: KindArityMismatch}
	ErrMarshal           = &Error{Kind: KindMarshal}
	ErrUseAfterFree      = &Error{Kind: KindUseAfterFree}
	ErrTrap              = &Error{Kind: KindTrap}
	ErrInUse             = &Error{Kind: KindInUse}
	ErrConstructorMisuse = &Error{Kind: KindConstructorMisuse}
	ErrClosed            = &Error{Kind: KindClosed}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

// IsKind reports whether any error in err's chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == k {
			return true
		}
		err = e.Cause
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder assembles an *Error field by field.
//
//	errors.New(errors.PhaseCall, errors.KindArityMismatch).
//		Counts(2, 1).
//		Detail("add: expected exactly %d argument(s)", 2).
//		Build()
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	b := new(Builder)
	b.err.Phase, b.err.Kind = phase, kind
	return b
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value records the value that could not be handled.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Counts records the expected and actual counts of an arity failure.
func (b *Builder) Counts(expected, actual int) *Builder {
	b.err.Expected, b.err.Actual = expected, actual
	return b
}

// Detail formats msg with args, or uses it verbatim when there are none.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	b.err.Detail = msg
	if len(args) != 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	}
	return b
}

// Text sets the detail message as is.
func (b *Builder) Text(msg string) *Builder {
	b.err.Detail = msg
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// InvalidArgument reports a wrongly shaped host argument.
func InvalidArgument(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindInvalidArgument).Detail(detail, args...).Build()
}

// TypeMismatch reports a handle of the wrong kind.
func TypeMismatch(phase Phase, want, got string) *Error {
	return New(phase, KindTypeMismatch).
		Detail("expected %s handle, got %s", want, got).
		Value(got).
		Build()
}

func ModuleLoad(cause error) *Error {
	return New(PhaseLoad, KindModuleLoad).Detail("compile module").Cause(cause).Build()
}

func Instantiation(cause error) *Error {
	return New(PhaseInstantiate, KindInstantiation).Detail("instantiate module").Cause(cause).Build()
}

// NotFound reports a missing named thing; name is kept as the Value.
func NotFound(phase Phase, what, name string) *Error {
	return New(phase, KindNotFound).Detail("%s %q not found", what, name).Value(name).Build()
}

// ArityMismatch reports a call with the wrong number of arguments.
func ArityMismatch(expected, actual int) *Error {
	return New(PhaseCall, KindArityMismatch).
		Counts(expected, actual).
		Detail("argument count not match, %d expected, %d passed", expected, actual).
		Build()
}

// Marshal reports a value at path that could not be converted.
func Marshal(path []string, value any, detail string) *Error {
	return New(PhaseMarshal, KindMarshal).Path(path...).Value(value).Text(detail).Build()
}

func UseAfterFree(phase Phase, what string) *Error {
	return New(phase, KindUseAfterFree).Detail("%s handle already released", what).Build()
}

// Trap reports a native run-time fault in function name.
func Trap(name string, cause error) *Error {
	return New(PhaseCall, KindTrap).Detail("%s: %s", name, TrapMessage(cause)).Cause(cause).Build()
}

// TrapMessage returns the first line of a native trap message.
func TrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}

// InUse reports a release refused because dependents are still live.
func InUse(phase Phase, what string, dependents int) *Error {
	return New(phase, KindInUse).
		Detail("%s still referenced by %d live handle(s)", what, dependents).
		Value(dependents).
		Build()
}

// ConstructorMisuse reports a handle that no runtime operation produced.
func ConstructorMisuse(phase Phase) *Error {
	return New(phase, KindConstructorMisuse).Detail("handle was not created by a runtime operation").Build()
}

func Closed(phase Phase, what string) *Error {
	return New(phase, KindClosed).Detail("%s closed", what).Build()
}

func Unsupported(phase Phase, what string) *Error {
	return New(phase, KindUnsupported).Text(what).Build()
}

// Wrap attaches phase, kind and detail to cause.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Text(detail).Cause(cause).Build()
}
