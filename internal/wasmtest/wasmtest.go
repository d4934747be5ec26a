// Package wasmtest builds small WebAssembly binaries for tests.
package wasmtest

import (
	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"
)

// Value types, re-exported so tests don't need to import wabin.
const (
	I32  = wasm.ValueTypeI32
	I64  = wasm.ValueTypeI64
	F32  = wasm.ValueTypeF32
	F64  = wasm.ValueTypeF64
	V128 = wasm.ValueTypeV128
)

// Func is a function to be exported by a test module.
type Func struct {
	Name    string
	Params  []wasm.ValueType
	Results []wasm.ValueType
	Body    []byte
}

// Import is a function import. Its signature is () -> ().
type Import struct {
	Module string
	Name   string
}

// Builder assembles a module from exported functions, an optional exported
// memory and optional function imports.
type Builder struct {
	funcs   []Func
	imports []Import
	memory  string
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Func appends an exported function. Exports keep the order of the calls.
func (b *Builder) Func(f Func) *Builder {
	b.funcs = append(b.funcs, f)
	return b
}

// Memory exports a one-page memory under name.
func (b *Builder) Memory(name string) *Builder {
	b.memory = name
	return b
}

// Import adds a function import that instantiation must satisfy.
func (b *Builder) Import(module, name string) *Builder {
	b.imports = append(b.imports, Import{Module: module, Name: name})
	return b
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	m := &wasm.Module{}

	if len(b.imports) > 0 {
		m.TypeSection = append(m.TypeSection, &wasm.FunctionType{})
		for _, imp := range b.imports {
			m.ImportSection = append(m.ImportSection, &wasm.Import{
				Type:     wasm.ExternTypeFunc,
				Module:   imp.Module,
				Name:     imp.Name,
				DescFunc: 0,
			})
		}
	}

	if b.memory != "" {
		m.MemorySection = &wasm.Memory{Min: 1, Max: 1, IsMaxEncoded: true}
	}

	// Imported functions occupy the first function indices.
	base := wasm.Index(len(b.imports))
	for i, f := range b.funcs {
		typeIdx := wasm.Index(len(m.TypeSection))
		m.TypeSection = append(m.TypeSection, &wasm.FunctionType{Params: f.Params, Results: f.Results})
		m.FunctionSection = append(m.FunctionSection, typeIdx)
		m.CodeSection = append(m.CodeSection, &wasm.Code{Body: f.Body})
		m.ExportSection = append(m.ExportSection, &wasm.Export{
			Type:  wasm.ExternTypeFunc,
			Name:  f.Name,
			Index: base + wasm.Index(i),
		})
	}
	// The memory export always follows the function exports.
	if b.memory != "" {
		m.ExportSection = append(m.ExportSection, &wasm.Export{
			Type:  wasm.ExternTypeMemory,
			Name:  b.memory,
			Index: 0,
		})
	}

	return binary.EncodeModule(m)
}

// Body helpers.

// BinaryOp returns a body applying op to the first two locals.
func BinaryOp(op wasm.Opcode) []byte {
	return []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, op, wasm.OpcodeEnd}
}

// Identity returns a body yielding its first parameter.
func Identity() []byte {
	return []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeEnd}
}

// ConstI32 returns a body pushing each value as an i32 constant.
// Values must fit in a single signed LEB128 byte (-64..63).
func ConstI32(values ...int8) []byte {
	body := make([]byte, 0, 2*len(values)+1)
	for _, v := range values {
		body = append(body, wasm.OpcodeI32Const, byte(v)&0x7f)
	}
	return append(body, wasm.OpcodeEnd)
}

// Unreachable returns a body that traps.
func Unreachable() []byte {
	return []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd}
}

// Empty returns a body that does nothing.
func Empty() []byte {
	return []byte{wasm.OpcodeEnd}
}

// Add returns a module exporting add(i32, i32) -> i32.
func Add() []byte {
	return New().Func(Func{
		Name:    "add",
		Params:  []wasm.ValueType{I32, I32},
		Results: []wasm.ValueType{I32},
		Body:    BinaryOp(wasm.OpcodeI32Add),
	}).Build()
}

// Arith returns a module covering every numeric kind:
//
//	add(i32, i32) -> i32
//	add64(i64, i64) -> i64
//	addf(f32, f32) -> f32
//	addd(f64, f64) -> f64
//	id32(i32) -> i32
//	id64(i64) -> i64
//	pair() -> (i32, i32)
//	nop() -> ()
//	boom() -> () traps
//	vec(v128) -> ()
//	memory
func Arith() []byte {
	return New().
		Func(Func{Name: "add", Params: []wasm.ValueType{I32, I32}, Results: []wasm.ValueType{I32}, Body: BinaryOp(wasm.OpcodeI32Add)}).
		Func(Func{Name: "add64", Params: []wasm.ValueType{I64, I64}, Results: []wasm.ValueType{I64}, Body: BinaryOp(wasm.OpcodeI64Add)}).
		Func(Func{Name: "addf", Params: []wasm.ValueType{F32, F32}, Results: []wasm.ValueType{F32}, Body: BinaryOp(wasm.OpcodeF32Add)}).
		Func(Func{Name: "addd", Params: []wasm.ValueType{F64, F64}, Results: []wasm.ValueType{F64}, Body: BinaryOp(wasm.OpcodeF64Add)}).
		Func(Func{Name: "id32", Params: []wasm.ValueType{I32}, Results: []wasm.ValueType{I32}, Body: Identity()}).
		Func(Func{Name: "id64", Params: []wasm.ValueType{I64}, Results: []wasm.ValueType{I64}, Body: Identity()}).
		Func(Func{Name: "pair", Results: []wasm.ValueType{I32, I32}, Body: ConstI32(1, 2)}).
		Func(Func{Name: "nop", Body: Empty()}).
		Func(Func{Name: "boom", Body: Unreachable()}).
		Func(Func{Name: "vec", Params: []wasm.ValueType{V128}, Body: Empty()}).
		Memory("memory").
		Build()
}

// Prefixed returns a module exporting run2() -> 2 before run() -> 1. A
// resolver that compares names by prefix would return run2 for "run".
func Prefixed() []byte {
	return New().
		Func(Func{Name: "run2", Results: []wasm.ValueType{I32}, Body: ConstI32(2)}).
		Func(Func{Name: "run", Results: []wasm.ValueType{I32}, Body: ConstI32(1)}).
		Build()
}

// NeedsImport returns a module that imports env.log and exports nothing
// else, so instantiation without imports fails.
func NeedsImport() []byte {
	return New().Import("env", "log").Build()
}

// Spin returns a module exporting spin() -> (), which loops forever.
func Spin() []byte {
	return New().Func(Func{
		Name: "spin",
		Body: []byte{wasm.OpcodeLoop, 0x40, wasm.OpcodeBr, 0, wasm.OpcodeEnd, wasm.OpcodeEnd},
	}).Build()
}
