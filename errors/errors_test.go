package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseMarshal,
				Kind:   KindMarshal,
				Path:   []string{"args", "1"},
				Detail: "unsupported value kind v128",
			},
			contains: []string{"marshal/marshal at args.1: unsupported value kind v128"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRelease,
				Kind:  KindUseAfterFree,
			},
			contains: []string{"release/use_after_free"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindModuleLoad,
				Detail: "compile module",
				Cause:  errors.New("invalid magic number"),
			},
			contains: []string{"load/module_load: compile module: invalid magic number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Instantiation(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := TypeMismatch(PhaseInstantiate, "module", "instance")

	if !errors.Is(err, &Error{Phase: PhaseInstantiate, Kind: KindTypeMismatch}) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseLookup, Kind: KindTypeMismatch}) {
		t.Error("different phase should not match")
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Error("kind sentinel should match any phase")
	}
	if errors.Is(err, ErrUseAfterFree) {
		t.Error("different kind sentinel should not match")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrTypeMismatch) {
		t.Error("sentinel should match through fmt wrapping")
	}
}

func TestIsKind(t *testing.T) {
	inner := UseAfterFree(PhaseRelease, "module")
	outer := Wrap(PhaseScript, KindInvalidArgument, inner, "unload m1")

	if !IsKind(outer, KindInvalidArgument) {
		t.Error("outer kind not found")
	}
	if !IsKind(outer, KindUseAfterFree) {
		t.Error("inner kind not found through cause chain")
	}
	if IsKind(outer, KindTrap) {
		t.Error("unexpected kind match")
	}
	if IsKind(errors.New("plain"), KindTrap) {
		t.Error("plain error should not match")
	}
	if KindOf(outer) != KindInvalidArgument {
		t.Errorf("KindOf = %q", KindOf(outer))
	}
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) should be empty")
	}
}

func TestArityMismatch(t *testing.T) {
	err := ArityMismatch(2, 3)
	if err.Expected != 2 || err.Actual != 3 {
		t.Fatalf("counts = %d/%d, want 2/3", err.Expected, err.Actual)
	}
	if !strings.Contains(err.Error(), "2 expected, 3 passed") {
		t.Errorf("message %q missing counts", err.Error())
	}

	var target *Error
	if !errors.As(fmt.Errorf("call: %w", err), &target) {
		t.Fatal("errors.As failed")
	}
	if target.Kind != KindArityMismatch {
		t.Errorf("kind = %s", target.Kind)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseCall, KindMarshal).
		Path("results", "0").
		Value(3.5).
		Counts(1, 2).
		Cause(cause).
		Detail("kind %s", "funcref").
		Build()

	if err.Phase != PhaseCall || err.Kind != KindMarshal {
		t.Errorf("phase/kind = %s/%s", err.Phase, err.Kind)
	}
	if strings.Join(err.Path, ".") != "results.0" {
		t.Errorf("path = %v", err.Path)
	}
	if err.Value != 3.5 {
		t.Errorf("value = %v", err.Value)
	}
	if err.Expected != 1 || err.Actual != 2 {
		t.Errorf("counts = %d/%d", err.Expected, err.Actual)
	}
	if err.Detail != "kind funcref" {
		t.Errorf("detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not set")
	}
}

func TestDetailText(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"marshal", Marshal([]string{"args", "0"}, "x", "want %d"), "want %d"},
		{"unsupported", Unsupported(PhaseInit, "100% native"), "100% native"},
		{"wrap", Wrap(PhaseConfig, KindInvalidArgument, errors.New("eof"), "parse %s"), "parse %s"},
		{"builder", New(PhaseCall, KindTrap).Text("%v raw").Build(), "%v raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Detail != tt.want {
				t.Errorf("detail = %q, want %q", tt.err.Detail, tt.want)
			}
		})
	}
}

func TestTrap(t *testing.T) {
	cause := errors.New("wasm error: unreachable\nwasm stack trace:\n\t.boom()")
	err := Trap("boom", cause)

	if err.Kind != KindTrap {
		t.Errorf("kind = %s", err.Kind)
	}
	if !strings.Contains(err.Detail, "wasm error: unreachable") {
		t.Errorf("detail %q missing trap message", err.Detail)
	}
	if strings.Contains(err.Detail, "stack trace") {
		t.Errorf("detail %q should hold only the first line", err.Detail)
	}
	if TrapMessage(nil) != "" {
		t.Error("TrapMessage(nil) should be empty")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"invalid_argument", InvalidArgument(PhaseLoad, "expected %s", "bytes"), KindInvalidArgument},
		{"module_load", ModuleLoad(errors.New("x")), KindModuleLoad},
		{"not_found", NotFound(PhaseLookup, "export", "run"), KindNotFound},
		{"in_use", InUse(PhaseRelease, "module", 2), KindInUse},
		{"constructor_misuse", ConstructorMisuse(PhaseHandle), KindConstructorMisuse},
		{"closed", Closed(PhaseLoad, "runtime"), KindClosed},
		{"unsupported", Unsupported(PhaseInit, "backend"), KindUnsupported},
		{"marshal", Marshal([]string{"args"}, "x", "not a number"), KindMarshal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}
