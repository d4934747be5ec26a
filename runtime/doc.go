// Package runtime is the host-facing surface of the bridge.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := rt.Instantiate(ctx, mod)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	add, ok, err := rt.LookupFunction(inst, "add")
//	if err != nil || !ok {
//	    log.Fatal("add not exported")
//	}
//
//	results, err := rt.ExecuteFunction(ctx, add, []any{2, 3})
//	fmt.Println(results) // [5]
//
//	rt.Deinstantiate(ctx, inst)
//	rt.Unload(ctx, mod)
//
// # Handles
//
// Every operation returns or accepts a handle.Handle. Handles are typed: a
// module handle passed where an instance is expected fails with
// errors.KindTypeMismatch. Released handles fail with
// errors.KindUseAfterFree, even if their slot has been reused.
//
// Ownership follows the derivation chain:
//
//	Module  <- Instance  (Unload fails with errors.KindInUse while instances live)
//	Instance <- Function (Deinstantiate releases every function resolved from it)
//
// # Export lookup
//
// LookupFunction compares export names exactly and returns ok == false when
// nothing matches. A missing export is not an error. LookupFunctionErr is
// the variant for callers that treat absence as fatal.
//
// # Calls
//
// ExecuteFunction checks the argument count against the function's declared
// parameters, converts every argument with the transcoder package, runs the
// function to completion and widens every result to float64. A trap is
// reported as errors.KindTrap carrying the engine's message.
//
// The native call blocks until the function returns. Set
// engine.Config.CloseOnContextDone to let a cancelled context abort it
// (wazero only).
//
// # Concurrency
//
// A Context is not safe for concurrent use. Callers serialize operations on
// one Context; independent Contexts may be used from different goroutines.
package runtime
