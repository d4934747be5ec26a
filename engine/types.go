package engine

import (
	"context"
	"strings"
)

// ValueKind is the declared type of a function parameter or result.
type ValueKind uint8

const (
	ValueI32 ValueKind = iota
	ValueI64
	ValueF32
	ValueF64
	ValueV128
	ValueFuncRef
	ValueExternRef
)

func (k ValueKind) String() string {
	switch k {
	case ValueI32:
		return "i32"
	case ValueI64:
		return "i64"
	case ValueF32:
		return "f32"
	case ValueF64:
		return "f64"
	case ValueV128:
		return "v128"
	case ValueFuncRef:
		return "funcref"
	case ValueExternRef:
		return "externref"
	default:
		return "unknown"
	}
}

// ExternKind tags what an export or import refers to.
type ExternKind uint8

const (
	ExternFunc ExternKind = iota
	ExternTable
	ExternMemory
	ExternGlobal
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "Function"
	case ExternTable:
		return "Table"
	case ExternMemory:
		return "Memory"
	case ExternGlobal:
		return "Global"
	default:
		return "Unknown"
	}
}

// ExportType describes one entry of a module's export table.
type ExportType struct {
	Name string
	Kind ExternKind
}

// ImportType describes one entry of a module's import table.
type ImportType struct {
	Module string
	Name   string
	Kind   ExternKind
}

// Signature is the declared parameter and result kinds of a function.
type Signature struct {
	Params  []ValueKind
	Results []ValueKind
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range s.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Engine holds process-level compiler state and creates stores.
type Engine interface {
	// Name returns the backend name.
	Name() string
	NewStore(ctx context.Context) (Store, error)
	Close(ctx context.Context) error
}

// Store owns the modules and instances created through it.
type Store interface {
	CompileModule(ctx context.Context, wasm []byte) (Module, error)
	// Instantiate instantiates mod without supplying any imports.
	Instantiate(ctx context.Context, mod Module) (Instance, error)
	Close(ctx context.Context) error
}

// Module is a compiled binary.
type Module interface {
	// Exports returns the export table in declaration order.
	Exports() []ExportType
	Imports() []ImportType
	Close(ctx context.Context) error
}

// Instance is an instantiated module.
type Instance interface {
	// Exports returns one Extern per Module.Exports entry, in the same order.
	Exports() []Extern
	Close(ctx context.Context) error
}

// Extern is one exported entity of an instance.
type Extern interface {
	Kind() ExternKind
	// Func returns the function behind the export, or nil for other kinds.
	Func() Func
}

// Func is an exported function.
type Func interface {
	Signature() Signature
	// Call invokes the function with raw encoded parameters and returns raw
	// encoded results, one per declared result.
	Call(ctx context.Context, params []uint64) ([]uint64, error)
}
