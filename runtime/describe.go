package runtime

import (
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/handle"
)

// Info is the introspection record of a handle.
type Info interface {
	HandleKind() handle.Kind
}

// ExportInfo is one export table entry.
type ExportInfo struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ImportInfo is one import table entry.
type ImportInfo struct {
	Module string `json:"module" yaml:"module"`
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type" yaml:"type"`
}

// ModuleInfo describes a loaded module.
type ModuleInfo struct {
	Engine    string        `json:"engine" yaml:"engine"`
	Type      string        `json:"type" yaml:"type"`
	Exports   []ExportInfo  `json:"exports" yaml:"exports"`
	Imports   []ImportInfo  `json:"imports,omitempty" yaml:"imports,omitempty"`
	Handle    handle.Handle `json:"-" yaml:"-"`
	Size      int           `json:"size" yaml:"size"`
	Instances int           `json:"instances" yaml:"instances"`
}

// InstanceInfo describes a live instance.
type InstanceInfo struct {
	Handle    handle.Handle `json:"-" yaml:"-"`
	Module    handle.Handle `json:"-" yaml:"-"`
	Functions int           `json:"functions" yaml:"functions"`
}

// FunctionInfo describes a resolved function.
type FunctionInfo struct {
	Name     string             `json:"name" yaml:"name"`
	WIT      string             `json:"wit" yaml:"wit"`
	Params   []engine.ValueKind `json:"-" yaml:"-"`
	Results  []engine.ValueKind `json:"-" yaml:"-"`
	Handle   handle.Handle      `json:"-" yaml:"-"`
	Instance handle.Handle      `json:"-" yaml:"-"`
	Index    int                `json:"index" yaml:"index"`
}

func (ModuleInfo) HandleKind() handle.Kind   { return handle.KindModule }
func (InstanceInfo) HandleKind() handle.Kind { return handle.KindInstance }
func (FunctionInfo) HandleKind() handle.Kind { return handle.KindFunction }

// Signature returns the declared parameter and result kinds.
func (f FunctionInfo) Signature() engine.Signature {
	return engine.Signature{Params: f.Params, Results: f.Results}
}

// Describe returns the introspection record for h: a ModuleInfo,
// InstanceInfo or FunctionInfo depending on its kind.
func (c *Context) Describe(h handle.Handle) (Info, error) {
	if err := c.checkOpen(errors.PhaseDescribe); err != nil {
		return nil, err
	}

	switch h.Kind() {
	case handle.KindModule:
		m, err := c.module(h)
		if err != nil {
			return nil, err
		}
		borrows, _ := c.table.Borrows(h)
		info := ModuleInfo{
			Handle:    h,
			Engine:    c.engine.Name(),
			Type:      "Bytecode",
			Size:      m.size,
			Instances: borrows,
		}
		for _, e := range m.native.Exports() {
			info.Exports = append(info.Exports, ExportInfo{Name: e.Name, Type: e.Kind.String()})
		}
		for _, i := range m.native.Imports() {
			info.Imports = append(info.Imports, ImportInfo{Module: i.Module, Name: i.Name, Type: i.Kind.String()})
		}
		return info, nil

	case handle.KindInstance:
		i, err := c.instance(h)
		if err != nil {
			return nil, err
		}
		return InstanceInfo{
			Handle:    h,
			Module:    i.module,
			Functions: len(c.table.Children(h)),
		}, nil

	case handle.KindFunction:
		f, err := c.function(h)
		if err != nil {
			return nil, err
		}
		sig := f.native.Signature()
		return FunctionInfo{
			Handle:   h,
			Instance: f.instance,
			Name:     f.name,
			Index:    f.index,
			Params:   sig.Params,
			Results:  sig.Results,
			WIT:      WITSignature(f.name, sig),
		}, nil

	default:
		_, err := c.table.Get(h, h.Kind())
		if err == nil {
			err = errors.TypeMismatch(errors.PhaseDescribe, "module, instance or function", h.Kind().String())
		}
		return nil, err
	}
}

// WITType maps a core value kind to the WIT type a host sees. Kinds with no
// host representation map to nil.
func WITType(k engine.ValueKind) wit.Type {
	switch k {
	case engine.ValueI32:
		return wit.S32{}
	case engine.ValueI64:
		return wit.S64{}
	case engine.ValueF32:
		return wit.F32{}
	case engine.ValueF64:
		return wit.F64{}
	default:
		return nil
	}
}

// witTypeOf is WITType with kinds the host cannot see (v128, references)
// kept as named placeholders so they still render.
func witTypeOf(k engine.ValueKind) wit.Type {
	if t := WITType(k); t != nil {
		return t
	}
	name := k.String()
	return &wit.TypeDef{Name: &name}
}

// WITFunction builds the freestanding WIT function for an export with
// signature sig. Parameters are named p0, p1, ...; several results become
// one tuple.
func WITFunction(name string, sig engine.Signature) *wit.Function {
	f := &wit.Function{Name: name, Kind: &wit.Freestanding{}}
	for i, p := range sig.Params {
		f.Params = append(f.Params, wit.Param{Name: "p" + strconv.Itoa(i), Type: witTypeOf(p)})
	}

	switch len(sig.Results) {
	case 0:
	case 1:
		f.Results = []wit.Param{{Type: witTypeOf(sig.Results[0])}}
	default:
		tuple := &wit.Tuple{}
		for _, r := range sig.Results {
			tuple.Types = append(tuple.Types, witTypeOf(r))
		}
		f.Results = []wit.Param{{Type: &wit.TypeDef{Kind: tuple}}}
	}
	return f
}

// WITSignature renders sig as a WIT function declaration, e.g.
// "add: func(p0: s32, p1: s32) -> s32".
func WITSignature(name string, sig engine.Signature) string {
	return strings.TrimSuffix(WITFunction(name, sig).WIT(nil, name), ";")
}
