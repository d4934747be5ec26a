//go:build cgo

package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/bytecodealliance/wasmtime-go/v14"

	"github.com/wippyai/wasm-bridge/errors"
)

const wasmPageSize = 64 * 1024

func init() {
	Register(BackendWasmtime, func(ctx context.Context, cfg Config) (Engine, error) {
		return NewWasmtimeEngine(ctx, cfg)
	})
}

// WasmtimeEngine implements Engine on top of the wasm-c-api exposed by
// wasmtime-go. Native objects are finalized by the Go garbage collector, so
// Close only detaches them.
type WasmtimeEngine struct {
	inner *wasmtime.Engine
	cfg   Config
}

// NewWasmtimeEngine creates a new wasmtime-based engine
func NewWasmtimeEngine(_ context.Context, cfg Config) (*WasmtimeEngine, error) {
	cfg = cfg.withDefaults()

	wcfg := wasmtime.NewConfig()
	wcfg.SetStrategy(wasmtime.StrategyCranelift)
	wcfg.SetCraneliftOptLevel(wasmtime.OptLevelSpeed)
	wcfg.SetWasmMultiValue(true)
	if cfg.Mode == ModeInterpreter {
		return nil, errors.Unsupported(errors.PhaseInit, "wasmtime has no interpreter mode")
	}
	// wasmtime picks its own cache location; CacheDir only switches it on.
	if cfg.CacheDir != "" {
		if err := wcfg.CacheConfigLoadDefault(); err != nil {
			return nil, err
		}
	}

	return &WasmtimeEngine{inner: wasmtime.NewEngineWithConfig(wcfg), cfg: cfg}, nil
}

func (e *WasmtimeEngine) Name() string {
	return string(BackendWasmtime)
}

func (e *WasmtimeEngine) NewStore(_ context.Context) (Store, error) {
	inner := wasmtime.NewStore(e.inner)
	if e.cfg.MemoryLimitPages > 0 {
		inner.Limiter(int64(e.cfg.MemoryLimitPages)*wasmPageSize, -1, -1, -1, -1)
	}
	return &wasmtimeStore{engine: e, inner: inner}, nil
}

func (e *WasmtimeEngine) Close(_ context.Context) error {
	e.inner = nil
	return nil
}

type wasmtimeStore struct {
	engine *WasmtimeEngine
	inner  *wasmtime.Store
}

func (s *wasmtimeStore) CompileModule(_ context.Context, bin []byte) (Module, error) {
	mod, err := wasmtime.NewModule(s.engine.inner, bin)
	if err != nil {
		return nil, err
	}

	m := &wasmtimeModule{store: s, inner: mod}
	for _, exp := range mod.Exports() {
		m.exports = append(m.exports, ExportType{Name: exp.Name(), Kind: wasmtimeExternKind(exp.Type())})
	}
	for _, imp := range mod.Imports() {
		name := ""
		if n := imp.Name(); n != nil {
			name = *n
		}
		m.imports = append(m.imports, ImportType{Module: imp.Module(), Name: name, Kind: wasmtimeExternKind(imp.Type())})
	}
	return m, nil
}

func (s *wasmtimeStore) Instantiate(_ context.Context, m Module) (Instance, error) {
	mod, ok := m.(*wasmtimeModule)
	if !ok || mod.store != s {
		return nil, errors.InvalidArgument(errors.PhaseInstantiate, "module was not compiled by this store")
	}

	inst, err := wasmtime.NewInstance(s.inner, mod.inner, nil)
	if err != nil {
		return nil, err
	}

	natives := inst.Exports(s.inner)
	externs := make([]Extern, len(mod.exports))
	for i, exp := range mod.exports {
		if exp.Kind != ExternFunc || i >= len(natives) {
			externs[i] = otherExtern{kind: exp.Kind}
			continue
		}
		fn := natives[i].Func()
		ft := fn.Type(s.inner)
		externs[i] = &wasmtimeFunc{
			store: s.inner,
			fn:    fn,
			sig: Signature{
				Params:  wasmtimeValueKinds(ft.Params()),
				Results: wasmtimeValueKinds(ft.Results()),
			},
		}
	}
	return &wasmtimeInstance{exports: externs}, nil
}

func (s *wasmtimeStore) Close(_ context.Context) error {
	s.inner = nil
	return nil
}

type wasmtimeModule struct {
	store   *wasmtimeStore
	inner   *wasmtime.Module
	exports []ExportType
	imports []ImportType
}

func (m *wasmtimeModule) Exports() []ExportType { return m.exports }
func (m *wasmtimeModule) Imports() []ImportType { return m.imports }

func (m *wasmtimeModule) Close(_ context.Context) error {
	m.inner = nil
	return nil
}

type wasmtimeInstance struct {
	exports []Extern
}

func (i *wasmtimeInstance) Exports() []Extern { return i.exports }

func (i *wasmtimeInstance) Close(_ context.Context) error {
	i.exports = nil
	return nil
}

type wasmtimeFunc struct {
	store *wasmtime.Store
	fn    *wasmtime.Func
	sig   Signature
}

func (f *wasmtimeFunc) Kind() ExternKind     { return ExternFunc }
func (f *wasmtimeFunc) Func() Func           { return f }
func (f *wasmtimeFunc) Signature() Signature { return f.sig }

func (f *wasmtimeFunc) Call(_ context.Context, params []uint64) ([]uint64, error) {
	args := make([]interface{}, len(params))
	for i, raw := range params {
		switch f.sig.Params[i] {
		case ValueI32:
			args[i] = int32(uint32(raw))
		case ValueI64:
			args[i] = int64(raw)
		case ValueF32:
			args[i] = math.Float32frombits(uint32(raw))
		case ValueF64:
			args[i] = math.Float64frombits(raw)
		default:
			return nil, fmt.Errorf("unsupported parameter kind %s", f.sig.Params[i])
		}
	}

	result, err := f.fn.Call(f.store, args...)
	if err != nil {
		if trap, ok := err.(*wasmtime.Trap); ok {
			return nil, fmt.Errorf("wasm trap: %s", errors.TrapMessage(trap))
		}
		return nil, err
	}

	switch v := result.(type) {
	case nil:
		return nil, nil
	case []wasmtime.Val:
		out := make([]uint64, len(v))
		for i := range v {
			raw, err := encodeWasmtimeResult(v[i].Get())
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	default:
		raw, err := encodeWasmtimeResult(v)
		if err != nil {
			return nil, err
		}
		return []uint64{raw}, nil
	}
}

func encodeWasmtimeResult(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int32:
		return uint64(uint32(n)), nil
	case int64:
		return uint64(n), nil
	case float32:
		return uint64(math.Float32bits(n)), nil
	case float64:
		return math.Float64bits(n), nil
	default:
		return 0, fmt.Errorf("invalid result type: %T", v)
	}
}

func wasmtimeExternKind(t *wasmtime.ExternType) ExternKind {
	switch {
	case t.FuncType() != nil:
		return ExternFunc
	case t.TableType() != nil:
		return ExternTable
	case t.MemoryType() != nil:
		return ExternMemory
	default:
		return ExternGlobal
	}
}

func wasmtimeValueKinds(types []*wasmtime.ValType) []ValueKind {
	out := make([]ValueKind, len(types))
	for i, t := range types {
		switch t.Kind() {
		case wasmtime.KindI32:
			out[i] = ValueI32
		case wasmtime.KindI64:
			out[i] = ValueI64
		case wasmtime.KindF32:
			out[i] = ValueF32
		case wasmtime.KindF64:
			out[i] = ValueF64
		case wasmtime.KindFuncref:
			out[i] = ValueFuncRef
		case wasmtime.KindExternref:
			out[i] = ValueExternRef
		default:
			out[i] = ValueV128
		}
	}
	return out
}
