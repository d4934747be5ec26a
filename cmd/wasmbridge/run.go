package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/handle"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/script"
)

var runCmd = &cobra.Command{
	Use:   "run <file.wasm> [function] [args...]",
	Short: "Call one exported function",
	Long: `Load a module, instantiate it, call one exported function and print its
results, then tear everything down.

Without a function name the first of _start, run and main that the module
exports is called, or its only exported function.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var scriptCmd = &cobra.Command{
	Use:   "script [file]",
	Short: "Execute a command script",
	Long: `Execute a script of host commands, one per line, stopping at the first
failure. Reads stdin when no file (or "-") is given.

Commands:
  load <file.wasm>            instantiate <module>
  lookup <instance> <name>    call <function> [args...]
  deinstantiate <instance>    unload <module>
  describe <variable>         vars

Values are bound to m1, i1, f1... or to an explicit name: "add = lookup i1 add".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd, scriptCmd)
}

// signalContext cancels on interrupt when calls are interruptible.
func signalContext() (context.Context, context.CancelFunc) {
	if app.cfg.Engine.CloseOnContextDone {
		return signal.NotifyContext(context.Background(), os.Interrupt)
	}
	return context.WithCancel(context.Background())
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt, err := newContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); err == nil {
			err = cerr
		}
	}()

	mod, err := rt.Load(ctx, data)
	if err != nil {
		return err
	}

	name := ""
	if len(args) > 1 {
		name = args[1]
	} else {
		name, err = entryPoint(rt, mod)
		if err != nil {
			return err
		}
	}

	inst, err := rt.Instantiate(ctx, mod)
	if err != nil {
		return err
	}
	fn, err := rt.LookupFunctionErr(inst, name)
	if err != nil {
		return err
	}

	var values []any
	if len(args) > 2 {
		values = make([]any, len(args)-2)
		for i, a := range args[2:] {
			values[i] = script.ParseValue(a)
		}
	}
	results, err := rt.ExecuteFunction(ctx, fn, values)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), script.FormatResults(results))

	if err := rt.Deinstantiate(ctx, inst); err != nil {
		return err
	}
	return rt.Unload(ctx, mod)
}

func entryPoint(rt *runtime.Context, mod handle.Handle) (string, error) {
	info, err := rt.Describe(mod)
	if err != nil {
		return "", err
	}
	var funcs []string
	for _, e := range info.(runtime.ModuleInfo).Exports {
		if e.Type == engine.ExternFunc.String() {
			funcs = append(funcs, e.Name)
		}
	}
	for _, name := range []string{"_start", "run", "main"} {
		if slices.Contains(funcs, name) {
			return name, nil
		}
	}
	if len(funcs) == 1 {
		return funcs[0], nil
	}
	return "", errors.InvalidArgument(errors.PhaseLookup, "no entry point among %d exported functions, name one", len(funcs))
}

func runScript(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rt, err := newContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); err == nil {
			err = cerr
		}
	}()

	return script.NewSession(rt, cmd.OutOrStdout()).Run(ctx, in)
}
