// Package wasmbridge lets Go code drive an embedded WebAssembly engine: load
// a compiled core module, instantiate it, resolve exported functions by name
// and call them with numeric arguments.
//
// # Architecture Overview
//
//	wasmbridge/
//	├── runtime/         Context: load, instantiate, lookup, call, release, describe
//	├── handle/          Generation-checked handle table with ownership
//	├── transcoder/      Host number <-> core value conversion
//	├── engine/          Engine interfaces with wazero and wasmtime backends
//	├── errors/          Structured error types
//	├── script/          Line-oriented command interpreter over a Context
//	├── metrics/         Prometheus collector for handles and calls
//	├── config/          YAML/env configuration and logger construction
//	└── cmd/wasmbridge/  CLI: run, script, inspect, repl, tui
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	inst, err := rt.Instantiate(ctx, mod)
//	fn, ok, err := rt.LookupFunction(inst, "add")
//	results, err := rt.ExecuteFunction(ctx, fn, []any{5, 3})
//	fmt.Println(results) // [8]
//
// # Handles
//
// Modules, instances and functions are returned as handle.Handle values.
// A handle is only valid for the Context that issued it and only until it is
// released. An instance keeps its module loaded: Unload fails with an in_use
// error while instances remain, and Deinstantiate releases every function
// looked up from the instance.
//
// # Values
//
// Arguments are Go numbers converted to the declared parameter kinds: i32
// truncates and wraps, i64 truncates and saturates, NaN and infinities become
// zero for integer kinds. Results are widened to float64, so i64 results
// beyond 2^53 lose precision.
//
// # Errors
//
// Every failure is an *errors.Error carrying a Phase and a Kind; use
// errors.IsKind to branch on the kind. A function that is not exported is not
// an error: LookupFunction reports it with ok == false.
package wasmbridge
