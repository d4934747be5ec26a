package runtime

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/handle"
	"github.com/wippyai/wasm-bridge/transcoder"
)

// Context owns one engine, one store bound to it and the handles of every
// module, instance and function created through it.
type Context struct {
	engine  engine.Engine
	store   engine.Store
	table   *handle.Table
	logger  *zap.Logger
	calls   []CallObserver
	cancels []func()
	cfg     engine.Config
	closed  bool
}

type moduleEntry struct {
	native engine.Module
	size   int
}

type instanceEntry struct {
	native engine.Instance
	module handle.Handle
}

type functionEntry struct {
	native   engine.Func
	name     string
	instance handle.Handle
	index    int
}

// New creates the engine, then a store bound to it. A failure leaves nothing
// allocated.
func New(ctx context.Context, opts ...Option) (*Context, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}

	eng, err := engine.New(ctx, cfg.engine)
	if err != nil {
		return nil, err
	}
	store, err := eng.NewStore(ctx)
	if err != nil {
		eng.Close(ctx)
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidArgument, err, "create store")
	}

	c := &Context{
		engine: eng,
		store:  store,
		table:  handle.NewTable(),
		logger: cfg.logger,
		calls:  cfg.calls,
		cfg:    cfg.engine,
	}
	for _, o := range cfg.observers {
		c.cancels = append(c.cancels, c.table.Subscribe(o))
	}

	c.logger.Debug("runtime context created", zap.String("backend", eng.Name()))
	return c, nil
}

// Backend returns the name of the engine backend.
func (c *Context) Backend() string {
	return c.engine.Name()
}

// Table exposes the handle table for read-only inspection.
func (c *Context) Table() *handle.Table {
	return c.table
}

func (c *Context) checkOpen(phase errors.Phase) error {
	if c.closed {
		return errors.Closed(phase, "runtime context")
	}
	return nil
}

// Load compiles wasm and returns a module handle. The bytes are copied.
func (c *Context) Load(ctx context.Context, wasm []byte) (handle.Handle, error) {
	if err := c.checkOpen(errors.PhaseLoad); err != nil {
		return handle.Handle{}, err
	}
	if len(wasm) == 0 {
		return handle.Handle{}, errors.InvalidArgument(errors.PhaseLoad, "expected a non-empty byte buffer")
	}

	bin := make([]byte, len(wasm))
	copy(bin, wasm)

	native, err := c.store.CompileModule(ctx, bin)
	if err != nil {
		c.logger.Debug("compile failed", zap.Int("size", len(bin)), zap.Error(err))
		return handle.Handle{}, errors.ModuleLoad(err)
	}

	h, err := c.table.Insert(handle.KindModule, &moduleEntry{native: native, size: len(bin)}, handle.Handle{})
	if err != nil {
		native.Close(ctx)
		return handle.Handle{}, err
	}

	c.logger.Debug("module loaded",
		handleField("module", h),
		zap.Int("size", len(bin)),
		zap.Int("exports", len(native.Exports())))
	return h, nil
}

// Instantiate creates an instance of mod. No imports are supplied, so a
// module with imports fails with errors.KindInstantiation.
func (c *Context) Instantiate(ctx context.Context, mod handle.Handle) (handle.Handle, error) {
	if err := c.checkOpen(errors.PhaseInstantiate); err != nil {
		return handle.Handle{}, err
	}
	m, err := c.module(mod)
	if err != nil {
		return handle.Handle{}, err
	}

	native, err := c.store.Instantiate(ctx, m.native)
	if err != nil {
		c.logger.Debug("instantiate failed", handleField("module", mod), zap.Error(err))
		return handle.Handle{}, errors.Instantiation(err)
	}

	h, err := c.table.InsertBorrowing(handle.KindInstance, &instanceEntry{native: native, module: mod}, mod)
	if err != nil {
		native.Close(ctx)
		return handle.Handle{}, err
	}

	c.logger.Debug("module instantiated", handleField("instance", h), handleField("module", mod))
	return h, nil
}

// LookupFunction resolves an exported function by exact name. The module's
// export table is scanned in declaration order and the first match wins.
// ok is false, with a nil error, when no export has that name.
func (c *Context) LookupFunction(inst handle.Handle, name string) (fn handle.Handle, ok bool, err error) {
	if err := c.checkOpen(errors.PhaseLookup); err != nil {
		return handle.Handle{}, false, err
	}
	i, err := c.instance(inst)
	if err != nil {
		return handle.Handle{}, false, err
	}
	m, err := c.module(i.module)
	if err != nil {
		return handle.Handle{}, false, err
	}

	for idx, exp := range m.native.Exports() {
		if exp.Name != name {
			continue
		}
		if exp.Kind != engine.ExternFunc {
			return handle.Handle{}, false, errors.New(errors.PhaseLookup, errors.KindTypeMismatch).
				Detail("export %q is a %s, not a Function", name, exp.Kind).
				Value(name).
				Build()
		}

		externs := i.native.Exports()
		if idx >= len(externs) || externs[idx].Func() == nil {
			return handle.Handle{}, false, errors.New(errors.PhaseLookup, errors.KindTypeMismatch).
				Detail("instance export %d for %q is not a function", idx, name).
				Build()
		}

		entry := &functionEntry{native: externs[idx].Func(), name: name, instance: inst, index: idx}
		h, err := c.table.Insert(handle.KindFunction, entry, inst)
		if err != nil {
			return handle.Handle{}, false, err
		}
		c.logger.Debug("function resolved", zap.String("name", name), handleField("function", h), handleField("instance", inst))
		return h, true, nil
	}

	c.logger.Debug("export not found", zap.String("name", name), handleField("instance", inst))
	return handle.Handle{}, false, nil
}

// LookupFunctionErr is LookupFunction for callers that treat a missing
// export as fatal: absence is reported as errors.KindNotFound.
func (c *Context) LookupFunctionErr(inst handle.Handle, name string) (handle.Handle, error) {
	fn, ok, err := c.LookupFunction(inst, name)
	if err != nil {
		return handle.Handle{}, err
	}
	if !ok {
		return handle.Handle{}, errors.NotFound(errors.PhaseLookup, "export", name)
	}
	return fn, nil
}

// ExecuteFunction calls fn with args converted to its declared parameter
// kinds and returns its results widened to float64.
func (c *Context) ExecuteFunction(ctx context.Context, fn handle.Handle, args []any) ([]float64, error) {
	if err := c.checkOpen(errors.PhaseCall); err != nil {
		return nil, err
	}
	f, err := c.function(fn)
	if err != nil {
		return nil, err
	}

	sig := f.native.Signature()
	if len(args) != len(sig.Params) {
		return nil, errors.ArityMismatch(len(sig.Params), len(args))
	}
	params, err := transcoder.EncodeParams(args, sig.Params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, callErr := f.native.Call(ctx, params)
	elapsed := time.Since(start)

	var results []float64
	if callErr != nil {
		err = errors.Trap(f.name, callErr)
	} else {
		results, err = transcoder.DecodeResults(raw, sig.Results)
	}

	for _, o := range c.calls {
		o.ObserveCall(f.name, elapsed, err)
	}
	if err != nil {
		c.logger.Debug("call failed", zap.String("name", f.name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("call completed", zap.String("name", f.name), zap.Duration("elapsed", elapsed), zap.Int("results", len(results)))
	return results, nil
}

// Deinstantiate releases inst and every function resolved from it.
func (c *Context) Deinstantiate(ctx context.Context, inst handle.Handle) error {
	if err := c.checkOpen(errors.PhaseRelease); err != nil {
		return err
	}
	if _, err := c.instance(inst); err != nil {
		return err
	}

	for _, fn := range c.table.Children(inst) {
		if _, err := c.table.Remove(fn, handle.KindFunction); err != nil {
			return err
		}
	}

	v, err := c.table.Remove(inst, handle.KindInstance)
	if err != nil {
		return err
	}
	c.logger.Debug("instance released", handleField("instance", inst))

	if err := v.(*instanceEntry).native.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseRelease, errors.KindInstantiation, err, "close instance")
	}
	return nil
}

// Unload releases mod. It fails with errors.KindInUse while any instance of
// mod is live.
func (c *Context) Unload(ctx context.Context, mod handle.Handle) error {
	if err := c.checkOpen(errors.PhaseRelease); err != nil {
		return err
	}

	v, err := c.table.Remove(mod, handle.KindModule)
	if err != nil {
		return err
	}
	c.logger.Debug("module released", handleField("module", mod))

	if err := v.(*moduleEntry).native.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseRelease, errors.KindModuleLoad, err, "close module")
	}
	return nil
}

// Close tears the Context down: live instances, then modules, then the
// store, then the engine. It is idempotent; every later operation fails with
// errors.KindClosed.
func (c *Context) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}

	var instances, modules []handle.Handle
	c.table.Each(handle.KindInstance, func(h handle.Handle, _ any) bool {
		instances = append(instances, h)
		return true
	})
	c.table.Each(handle.KindModule, func(h handle.Handle, _ any) bool {
		modules = append(modules, h)
		return true
	})

	var err error
	for _, h := range instances {
		err = multierr.Append(err, c.Deinstantiate(ctx, h))
	}
	for _, h := range modules {
		err = multierr.Append(err, c.Unload(ctx, h))
	}

	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
	err = multierr.Append(err, c.store.Close(ctx))
	err = multierr.Append(err, c.engine.Close(ctx))
	err = multierr.Append(err, c.table.Close())

	c.logger.Debug("runtime context closed",
		zap.Int("instances", len(instances)),
		zap.Int("modules", len(modules)),
		zap.Error(err))
	return err
}

func (c *Context) module(h handle.Handle) (*moduleEntry, error) {
	v, err := c.table.Get(h, handle.KindModule)
	if err != nil {
		return nil, err
	}
	return v.(*moduleEntry), nil
}

func (c *Context) instance(h handle.Handle) (*instanceEntry, error) {
	v, err := c.table.Get(h, handle.KindInstance)
	if err != nil {
		return nil, err
	}
	return v.(*instanceEntry), nil
}

func (c *Context) function(h handle.Handle) (*functionEntry, error) {
	v, err := c.table.Get(h, handle.KindFunction)
	if err != nil {
		return nil, err
	}
	return v.(*functionEntry), nil
}
