// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (which bridge operation failed) and Kind
// (error category). The Error type carries the detail message, the offending
// value, the cause chain and, for arity failures, the expected and actual
// argument counts.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindMarshal).
//		Path("args", "1").
//		Detail("unsupported value kind %s", kind).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseInstantiate, "module", "instance")
//	err := errors.ArityMismatch(2, 3)
//
// Kind matching ignores the phase:
//
//	if errors.IsKind(err, errors.KindUseAfterFree) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
