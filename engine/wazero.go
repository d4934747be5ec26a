package engine

import (
	"context"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

func init() {
	Register(BackendWazero, func(ctx context.Context, cfg Config) (Engine, error) {
		return NewWazeroEngine(ctx, cfg)
	})
}

// WazeroEngine implements Engine using the wazero runtime. Compiled code is
// shared between stores through a compilation cache.
type WazeroEngine struct {
	cache      wazero.CompilationCache
	runtimeCfg wazero.RuntimeConfig
	cfg        Config
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(_ context.Context, cfg Config) (*WazeroEngine, error) {
	cfg = cfg.withDefaults()

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		cache = c
	} else {
		cache = wazero.NewCompilationCache()
	}

	var runtimeCfg wazero.RuntimeConfig
	switch cfg.Mode {
	case ModeCompiler:
		runtimeCfg = wazero.NewRuntimeConfigCompiler()
	case ModeInterpreter:
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	default:
		runtimeCfg = wazero.NewRuntimeConfig()
	}
	runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.CloseOnContextDone {
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	}

	return &WazeroEngine{cache: cache, runtimeCfg: runtimeCfg, cfg: cfg}, nil
}

func (e *WazeroEngine) Name() string {
	return string(BackendWazero)
}

func (e *WazeroEngine) NewStore(ctx context.Context) (Store, error) {
	return &wazeroStore{runtime: wazero.NewRuntimeWithConfig(ctx, e.runtimeCfg)}, nil
}

// Close releases the compilation cache. Stores must be closed first.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}

type wazeroStore struct {
	runtime wazero.Runtime
}

func (s *wazeroStore) CompileModule(ctx context.Context, bin []byte) (Module, error) {
	compiled, err := s.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, err
	}

	exports, imports, err := exportsInOrder(bin)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}
	return &wazeroModule{store: s, compiled: compiled, exports: exports, imports: imports}, nil
}

func (s *wazeroStore) Instantiate(ctx context.Context, m Module) (Instance, error) {
	mod, ok := m.(*wazeroModule)
	if !ok || mod.store != s {
		return nil, errors.InvalidArgument(errors.PhaseInstantiate, "module was not compiled by this store")
	}

	// Anonymous so one module can be instantiated repeatedly, and no
	// exported _start is invoked: only the binary's start section runs.
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	inst, err := s.runtime.InstantiateModule(ctx, mod.compiled, modCfg)
	if err != nil {
		return nil, err
	}

	externs := make([]Extern, len(mod.exports))
	defs := mod.compiled.ExportedFunctions()
	for i, exp := range mod.exports {
		if exp.Kind != ExternFunc {
			externs[i] = otherExtern{kind: exp.Kind}
			continue
		}
		externs[i] = &wazeroFunc{
			fn:  inst.ExportedFunction(exp.Name),
			sig: signatureOf(defs[exp.Name]),
		}
	}
	return &wazeroInstance{module: inst, exports: externs}, nil
}

func (s *wazeroStore) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

type wazeroModule struct {
	store    *wazeroStore
	compiled wazero.CompiledModule
	exports  []ExportType
	imports  []ImportType
}

func (m *wazeroModule) Exports() []ExportType { return m.exports }
func (m *wazeroModule) Imports() []ImportType { return m.imports }

func (m *wazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

type wazeroInstance struct {
	module  api.Module
	exports []Extern
}

func (i *wazeroInstance) Exports() []Extern { return i.exports }

func (i *wazeroInstance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

type wazeroFunc struct {
	fn  api.Function
	sig Signature
}

func (f *wazeroFunc) Kind() ExternKind     { return ExternFunc }
func (f *wazeroFunc) Func() Func           { return f }
func (f *wazeroFunc) Signature() Signature { return f.sig }

func (f *wazeroFunc) Call(ctx context.Context, params []uint64) ([]uint64, error) {
	return f.fn.Call(ctx, params...)
}

// otherExtern stands in for exported tables, memories and globals, which the
// bridge only reports by kind.
type otherExtern struct {
	kind ExternKind
}

func (o otherExtern) Kind() ExternKind { return o.kind }
func (o otherExtern) Func() Func       { return nil }

// exportsInOrder reads the export and import sections in declaration order.
// wazero only exposes exports as maps, so the binary is decoded again with
// wabin. Lookup depends on that order, so a decode failure fails the compile.
func exportsInOrder(bin []byte) ([]ExportType, []ImportType, error) {
	decoded, err := binary.DecodeModule(bin, wasm.CoreFeaturesV2)
	if err != nil {
		Logger().Warn("decode export order", zap.Error(err))
		return nil, nil, errors.Wrap(errors.PhaseLoad, errors.KindModuleLoad, err, "read export order")
	}

	exports := make([]ExportType, 0, len(decoded.ExportSection))
	for _, e := range decoded.ExportSection {
		exports = append(exports, ExportType{Name: e.Name, Kind: externKindOf(e.Type)})
	}
	imports := make([]ImportType, 0, len(decoded.ImportSection))
	for _, imp := range decoded.ImportSection {
		imports = append(imports, ImportType{Module: imp.Module, Name: imp.Name, Kind: externKindOf(imp.Type)})
	}
	return exports, imports, nil
}

func externKindOf(t wasm.ExternType) ExternKind {
	switch t {
	case wasm.ExternTypeTable:
		return ExternTable
	case wasm.ExternTypeMemory:
		return ExternMemory
	case wasm.ExternTypeGlobal:
		return ExternGlobal
	default:
		return ExternFunc
	}
}

func signatureOf(def api.FunctionDefinition) Signature {
	if def == nil {
		return Signature{}
	}
	return Signature{
		Params:  valueKinds(def.ParamTypes()),
		Results: valueKinds(def.ResultTypes()),
	}
}

const (
	valueTypeV128    api.ValueType = 0x7b
	valueTypeFuncref api.ValueType = 0x70
)

func valueKinds(types []api.ValueType) []ValueKind {
	out := make([]ValueKind, len(types))
	for i, t := range types {
		switch t {
		case api.ValueTypeI32:
			out[i] = ValueI32
		case api.ValueTypeI64:
			out[i] = ValueI64
		case api.ValueTypeF32:
			out[i] = ValueF32
		case api.ValueTypeF64:
			out[i] = ValueF64
		case valueTypeV128:
			out[i] = ValueV128
		case valueTypeFuncref:
			out[i] = ValueFuncRef
		default:
			out[i] = ValueExternRef
		}
	}
	return out
}
