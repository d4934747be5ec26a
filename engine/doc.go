// Package engine defines the collaborator interfaces the bridge drives and
// ships the backends that implement them.
//
// The bridge never decodes or executes WebAssembly itself. It talks to an
// execution engine through a small surface:
//
//	Engine    - process-level compiler state, creates stores
//	Store     - owns every module and instance created through it
//	Module    - a compiled binary; lists exports in declaration order
//	Instance  - an instantiated module; exports aligned with Module.Exports
//	Func      - an exported function with declared parameter/result kinds
//
// # Backends
//
//	wazero    - default, pure Go (github.com/tetratelabs/wazero)
//	wasmtime  - wasm-c-api via cgo (github.com/bytecodealliance/wasmtime-go)
//
// The wasmtime backend is only compiled into cgo builds. Requesting it from a
// build without cgo fails with errors.KindUnsupported.
//
//	eng, err := engine.New(ctx, engine.Config{Backend: engine.BackendWazero})
//	store, err := eng.NewStore(ctx)
//	mod, err := store.CompileModule(ctx, wasmBytes)
//	inst, err := store.Instantiate(ctx, mod)
//
// # Value encoding
//
// Func.Call exchanges raw 64-bit slots, one per value, using the encoding
// shared by the transcoder package:
//
//	i32  low 32 bits, zero-extended
//	i64  all 64 bits
//	f32  IEEE-754 bits in the low 32 bits
//	f64  IEEE-754 bits
//
// Stores are not safe for concurrent use.
package engine
