package script

import (
	"bytes"
	stderrors "errors"
	"context"
	"io/fs"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/handle"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/runtime"
)

func fixtures(name string) ([]byte, error) {
	switch name {
	case "add.wasm":
		return wasmtest.Add(), nil
	case "arith.wasm":
		return wasmtest.Arith(), nil
	case "prefixed.wasm":
		return wasmtest.Prefixed(), nil
	case "garbage.wasm":
		return []byte("not wasm"), nil
	}
	return nil, fs.ErrNotExist
}

func newSession(t *testing.T) (*Session, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx)
	if err != nil {
		t.Fatalf("runtime.New failed: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	var out bytes.Buffer
	return NewSession(rt, &out, WithReadFile(fixtures)), &out
}

func TestSession_Run(t *testing.T) {
	s, out := newSession(t)
	script := `
# full lifecycle
load add.wasm
instantiate m1
lookup i1 add
call f1 2 3
deinstantiate i1
unload m1
`
	if err := s.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "m1 = module#1.0\ni1 = instance#2.0\nf1 = function#3.0\n5\n"
	if out.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", out.String(), want)
	}
	for _, name := range []string{"m1", "i1", "f1"} {
		if _, ok := s.Var(name); !ok {
			t.Errorf("variable %s not bound", name)
		}
	}
}

func TestSession_Assignment(t *testing.T) {
	ctx := context.Background()
	s, out := newSession(t)

	for _, line := range []string{
		"mod = load arith.wasm",
		"inst = instantiate mod",
		"pair = lookup inst pair",
		"call pair",
		"load arith.wasm",
	} {
		if err := s.Exec(ctx, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	if !strings.Contains(out.String(), "\n1 2\n") {
		t.Errorf("pair results missing:\n%s", out.String())
	}
	if got := s.Vars(); strings.Join(got, ",") != "inst,m1,mod,pair" {
		t.Errorf("vars = %v", got)
	}
	if h, _ := s.Var("pair"); h.Kind() != handle.KindFunction {
		t.Errorf("pair kind = %s", h.Kind())
	}
}

func TestSession_AutoNameSkipsTaken(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t)
	if err := s.Exec(ctx, "m1 = load add.wasm"); err != nil {
		t.Fatal(err)
	}
	if err := s.Exec(ctx, "load add.wasm"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Var("m2"); !ok {
		t.Errorf("expected m2, vars = %v", s.Vars())
	}
}

func TestSession_LookupMiss(t *testing.T) {
	ctx := context.Background()
	s, out := newSession(t)
	for _, line := range []string{"load prefixed.wasm", "instantiate m1", "lookup i1 ru"} {
		if err := s.Exec(ctx, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	if !strings.Contains(out.String(), "ru: not found") {
		t.Errorf("output = %q", out.String())
	}
	if _, ok := s.Var("f1"); ok {
		t.Error("a miss must not bind a variable")
	}

	if err := s.Exec(ctx, "lookup i1 run"); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := s.Exec(ctx, "call f1"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "1\n" {
		t.Errorf("run returned %q, want 1", out.String())
	}
}

func TestSession_AssignedLookupMiss(t *testing.T) {
	s, out := newSession(t)
	script := "load prefixed.wasm\ninstantiate m1\nf = lookup i1 missing\nlookup i1 run\n"
	if err := s.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("a lookup miss must not abort the script: %v", err)
	}
	if !strings.Contains(out.String(), "missing: not found") {
		t.Errorf("output = %q", out.String())
	}
	if _, ok := s.Var("f"); ok {
		t.Error("a miss must not bind the target")
	}
	if _, ok := s.Var("f1"); !ok {
		t.Error("the script should continue past the miss")
	}
}

func TestSession_Errors(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t)
	for _, line := range []string{"load arith.wasm", "instantiate m1", "lookup i1 add", "lookup i1 boom"} {
		if err := s.Exec(ctx, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}

	tests := []struct {
		line string
		kind errors.Kind
	}{
		{"frobnicate", errors.KindNotFound},
		{"load", errors.KindArityMismatch},
		{"load a b", errors.KindArityMismatch},
		{"lookup i1", errors.KindArityMismatch},
		{"call", errors.KindArityMismatch},
		{"vars now", errors.KindArityMismatch},
		{"load missing.wasm", errors.KindInvalidArgument},
		{"load garbage.wasm", errors.KindModuleLoad},
		{"instantiate nope", errors.KindNotFound},
		{"instantiate i1", errors.KindTypeMismatch},
		{"call f1 1", errors.KindArityMismatch},
		{"call f1 1 two", errors.KindMarshal},
		{"call f2", errors.KindTrap},
		{"unload m1", errors.KindInUse},
		{"1x = load add.wasm", errors.KindInvalidArgument},
		{"x =", errors.KindInvalidArgument},
		{"x = vars", errors.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if err := s.Exec(ctx, tt.line); !errors.IsKind(err, tt.kind) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestSession_ArityMessage(t *testing.T) {
	s, _ := newSession(t)
	err := s.Exec(context.Background(), "instantiate")
	if err == nil || !strings.Contains(err.Error(), "expected exactly 1 argument(s)") {
		t.Errorf("got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Expected != 1 || e.Actual != 0 {
		t.Errorf("counts = %+v", e)
	}
}

func TestSession_StaleVariable(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t)
	for _, line := range []string{"load add.wasm", "instantiate m1", "lookup i1 add", "deinstantiate i1"} {
		if err := s.Exec(ctx, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	for _, line := range []string{"call f1 1 2", "deinstantiate i1", "describe f1"} {
		if err := s.Exec(ctx, line); !errors.IsKind(err, errors.KindUseAfterFree) {
			t.Errorf("%q: got %v", line, err)
		}
	}
}

func TestSession_RunReportsLine(t *testing.T) {
	s, _ := newSession(t)
	err := s.Run(context.Background(), strings.NewReader("load add.wasm\n\ninstantiate m9\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "line 3:") {
		t.Fatalf("got %v", err)
	}
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("kind lost through line wrapping: %v", err)
	}
}

func TestSession_DescribeAndVars(t *testing.T) {
	ctx := context.Background()
	s, out := newSession(t)
	for _, line := range []string{"load add.wasm", "instantiate m1", "lookup i1 add"} {
		if err := s.Exec(ctx, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}

	out.Reset()
	if err := s.Exec(ctx, "describe m1"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"engine: wazero", "type: Bytecode", "- name: add", "instances: 1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("describe m1 missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := s.Exec(ctx, "describe f1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "add: func(p0: s32, p1: s32) -> s32") {
		t.Errorf("describe f1:\n%s", out.String())
	}

	out.Reset()
	if err := s.Exec(ctx, "vars"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "f1 = function#3.0\ni1 = instance#2.0\nm1 = module#1.0\n" {
		t.Errorf("vars:\n%s", out.String())
	}

	out.Reset()
	if err := s.Exec(ctx, "help  # list commands"); err != nil {
		t.Fatal(err)
	}
	if strings.Count(out.String(), "\n") != len(Commands()) {
		t.Errorf("help:\n%s", out.String())
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		tok  string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"18446744073709551615", uint64(math.MaxUint64)},
		{"1.5", 1.5},
		{"1e3", 1000.0},
		{"010", int64(10)},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		if got := ParseValue(tt.tok); got != tt.want {
			t.Errorf("ParseValue(%q) = %#v, want %#v", tt.tok, got, tt.want)
		}
	}
	if f, ok := ParseValue("NaN").(float64); !ok || !math.IsNaN(f) {
		t.Error("NaN should parse as float64")
	}
}

func TestFormatResults(t *testing.T) {
	tests := []struct {
		in   []float64
		want string
	}{
		{[]float64{5, -1.5, 1e21}, "5 -1.5 1e+21"},
		{[]float64{1e6}, "1000000"},
		{[]float64{2147483647, -2147483648}, "2147483647 -2147483648"},
		{[]float64{-0.000001}, "-0.000001"},
		{[]float64{math.Inf(1), math.NaN()}, "+Inf NaN"},
	}
	for _, tt := range tests {
		if got := FormatResults(tt.in); got != tt.want {
			t.Errorf("FormatResults(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatResults(nil); got != "" {
		t.Errorf("empty results = %q", got)
	}
}
