// Package script is a line-oriented command interpreter over a runtime
// Context. It backs the CLI's run and repl commands.
//
// A script mirrors the host call sequence:
//
//	load add.wasm            # m1 = module#1.0
//	instantiate m1           # i1 = instance#2.0
//	lookup i1 add            # f1 = function#3.0
//	call f1 2 3              # 5
//	deinstantiate i1
//	unload m1
//
// Results that produce a handle are bound to an auto-named variable (m1, i1,
// f1, ...) unless the line assigns one explicitly: "add = lookup i1 add".
package script

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v2"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/handle"
	"github.com/wippyai/wasm-bridge/runtime"
)

// Session holds the variables of one interpreter run. Like the Context it
// drives, a Session is not safe for concurrent use.
type Session struct {
	rt       *runtime.Context
	out      io.Writer
	vars     map[string]handle.Handle
	counters map[string]int
	readFile func(string) ([]byte, error)
}

// Option configures a Session.
type Option func(*Session)

// WithReadFile replaces the loader used by the load command.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(s *Session) {
		s.readFile = fn
	}
}

// NewSession creates a session printing results to out.
func NewSession(rt *runtime.Context, out io.Writer, opts ...Option) *Session {
	s := &Session{
		rt:       rt,
		out:      out,
		vars:     make(map[string]handle.Handle),
		counters: make(map[string]int),
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Var returns the handle bound to name.
func (s *Session) Var(name string) (handle.Handle, bool) {
	h, ok := s.vars[name]
	return h, ok
}

// Vars returns the bound variable names, sorted.
func (s *Session) Vars() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes every line of r and stops at the first failing one.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := s.Exec(ctx, sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// Exec executes one line. Blank lines and lines starting with # are ignored.
func (s *Session) Exec(ctx context.Context, line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	var target string
	if len(fields) >= 2 && fields[1] == "=" {
		target = fields[0]
		if !isIdent(target) {
			return errors.InvalidArgument(errors.PhaseScript, "invalid variable name %q", target)
		}
		fields = fields[2:]
		if len(fields) == 0 {
			return errors.InvalidArgument(errors.PhaseScript, "missing command after %q", target+" =")
		}
	}

	name, args := fields[0], fields[1:]
	cmd, ok := commands[name]
	if !ok {
		return errors.NotFound(errors.PhaseScript, "command", name)
	}
	if err := cmd.arity.check(name, len(args)); err != nil {
		return err
	}

	h, err := cmd.run(ctx, s, args)
	if err != nil {
		return err
	}
	if h.IsZero() {
		// A lookup miss is reported by the command and leaves target unbound.
		if target != "" && name != "lookup" {
			return errors.InvalidArgument(errors.PhaseScript, "%s does not produce a value to assign", name)
		}
		return nil
	}
	if target == "" {
		target = s.nextName(h.Kind())
	}
	s.vars[target] = h
	fmt.Fprintf(s.out, "%s = %s\n", target, h)
	return nil
}

func (s *Session) nextName(k handle.Kind) string {
	prefix := k.String()[:1]
	for {
		s.counters[prefix]++
		name := prefix + strconv.Itoa(s.counters[prefix])
		if _, taken := s.vars[name]; !taken {
			return name
		}
	}
}

func (s *Session) lookupVar(name string) (handle.Handle, error) {
	h, ok := s.vars[name]
	if !ok {
		return handle.Handle{}, errors.NotFound(errors.PhaseScript, "variable", name)
	}
	return h, nil
}

type arity struct {
	min, max int // max < 0 means unbounded
}

func exactly(n int) arity { return arity{n, n} }
func atLeast(n int) arity { return arity{n, -1} }

func (a arity) check(cmd string, n int) error {
	switch {
	case a.max == a.min && n != a.min:
		return errors.New(errors.PhaseScript, errors.KindArityMismatch).
			Counts(a.min, n).
			Detail("%s: expected exactly %d argument(s)", cmd, a.min).
			Build()
	case n < a.min:
		return errors.New(errors.PhaseScript, errors.KindArityMismatch).
			Counts(a.min, n).
			Detail("%s: expected at least %d argument(s)", cmd, a.min).
			Build()
	}
	return nil
}

type command struct {
	arity arity
	usage string
	run   func(ctx context.Context, s *Session, args []string) (handle.Handle, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"load":          {exactly(1), "load <file.wasm>", cmdLoad},
		"instantiate":   {exactly(1), "instantiate <module>", cmdInstantiate},
		"lookup":        {exactly(2), "lookup <instance> <name>", cmdLookup},
		"call":          {atLeast(1), "call <function> [args...]", cmdCall},
		"deinstantiate": {exactly(1), "deinstantiate <instance>", cmdDeinstantiate},
		"unload":        {exactly(1), "unload <module>", cmdUnload},
		"describe":      {exactly(1), "describe <variable>", cmdDescribe},
		"vars":          {exactly(0), "vars", cmdVars},
		"help":          {exactly(0), "help", cmdHelp},
	}
}

// Commands returns the usage line of every command, sorted.
func Commands() []string {
	out := make([]string, 0, len(commands))
	for _, c := range commands {
		out = append(out, c.usage)
	}
	slices.Sort(out)
	return out
}

func cmdLoad(ctx context.Context, s *Session, args []string) (handle.Handle, error) {
	data, err := s.readFile(args[0])
	if err != nil {
		return handle.Handle{}, errors.Wrap(errors.PhaseScript, errors.KindInvalidArgument, err, "read "+args[0])
	}
	return s.rt.Load(ctx, data)
}

func cmdInstantiate(ctx context.Context, s *Session, args []string) (handle.Handle, error) {
	mod, err := s.lookupVar(args[0])
	if err != nil {
		return handle.Handle{}, err
	}
	return s.rt.Instantiate(ctx, mod)
}

func cmdLookup(_ context.Context, s *Session, args []string) (handle.Handle, error) {
	inst, err := s.lookupVar(args[0])
	if err != nil {
		return handle.Handle{}, err
	}
	fn, ok, err := s.rt.LookupFunction(inst, args[1])
	if err != nil {
		return handle.Handle{}, err
	}
	if !ok {
		fmt.Fprintf(s.out, "%s: not found\n", args[1])
	}
	return fn, nil
}

func cmdCall(ctx context.Context, s *Session, args []string) (handle.Handle, error) {
	fn, err := s.lookupVar(args[0])
	if err != nil {
		return handle.Handle{}, err
	}
	values := make([]any, len(args)-1)
	for i, a := range args[1:] {
		values[i] = ParseValue(a)
	}
	results, err := s.rt.ExecuteFunction(ctx, fn, values)
	if err != nil {
		return handle.Handle{}, err
	}
	fmt.Fprintln(s.out, FormatResults(results))
	return handle.Handle{}, nil
}

func cmdDeinstantiate(ctx context.Context, s *Session, args []string) (handle.Handle, error) {
	inst, err := s.lookupVar(args[0])
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.Handle{}, s.rt.Deinstantiate(ctx, inst)
}

func cmdUnload(ctx context.Context, s *Session, args []string) (handle.Handle, error) {
	mod, err := s.lookupVar(args[0])
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.Handle{}, s.rt.Unload(ctx, mod)
}

func cmdDescribe(_ context.Context, s *Session, args []string) (handle.Handle, error) {
	h, err := s.lookupVar(args[0])
	if err != nil {
		return handle.Handle{}, err
	}
	info, err := s.rt.Describe(h)
	if err != nil {
		return handle.Handle{}, err
	}
	out, err := yaml.Marshal(info)
	if err != nil {
		return handle.Handle{}, err
	}
	_, err = s.out.Write(out)
	return handle.Handle{}, err
}

func cmdVars(_ context.Context, s *Session, _ []string) (handle.Handle, error) {
	for _, name := range s.Vars() {
		fmt.Fprintf(s.out, "%s = %s\n", name, s.vars[name])
	}
	return handle.Handle{}, nil
}

func cmdHelp(_ context.Context, s *Session, _ []string) (handle.Handle, error) {
	for _, usage := range Commands() {
		fmt.Fprintln(s.out, usage)
	}
	return handle.Handle{}, nil
}

// ParseValue converts a script token to the host value passed to a call.
// Integers stay exact, other numbers (including NaN and Inf) become float64,
// and anything else is passed through as a string so the marshaller rejects
// it.
func ParseValue(tok string) any {
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(tok, 10, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	return tok
}

// FormatResults renders call results separated by spaces. Finite values
// below 1e21 are written in positional notation, like a JS number.
func FormatResults(results []float64) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = formatNumber(r)
	}
	return strings.Join(parts, " ")
}

func formatNumber(r float64) string {
	if r == 0 {
		return "0"
	}
	if math.Abs(r) < 1e21 {
		return strconv.FormatFloat(r, 'f', -1, 64)
	}
	return strconv.FormatFloat(r, 'g', -1, 64)
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return s != ""
}
