package engine

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Backend names an engine implementation.
type Backend string

const (
	BackendWazero   Backend = "wazero"
	BackendWasmtime Backend = "wasmtime"
)

// Mode selects how a backend produces native code.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeCompiler    Mode = "compiler"
	ModeInterpreter Mode = "interpreter"
)

// Config holds configuration for engine creation
type Config struct {
	// Backend selects the implementation. Empty means BackendWazero.
	Backend Backend `yaml:"backend"`

	// Mode selects compiler or interpreter where the backend supports both.
	// Empty means ModeAuto.
	Mode Mode `yaml:"mode"`

	// CacheDir enables an on-disk compilation cache when non-empty.
	CacheDir string `yaml:"cache_dir"`

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// CloseOnContextDone lets a cancelled context abort a running call.
	// Only honored by the wazero backend.
	CloseOnContextDone bool `yaml:"close_on_context_done"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{Backend: BackendWazero, Mode: ModeAuto}
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendWazero
	}
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	return c
}

// Validate checks the configuration without creating anything.
func (c Config) Validate() error {
	c = c.withDefaults()
	switch c.Mode {
	case ModeAuto, ModeCompiler, ModeInterpreter:
	default:
		return errors.InvalidArgument(errors.PhaseConfig, "unknown engine mode %q", c.Mode)
	}
	if c.MemoryLimitPages > 65536 {
		return errors.InvalidArgument(errors.PhaseConfig, "memory limit %d pages exceeds 65536", c.MemoryLimitPages)
	}
	return nil
}

// Factory creates an engine for a validated configuration.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[Backend]Factory)
)

// Register makes a backend available to New. Backends register themselves
// from init functions.
func Register(name Backend, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends returns the names of the registered backends, sorted.
func Backends() []Backend {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]Backend, 0, len(backends))
	for name := range backends {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// New creates an engine for cfg.Backend.
func New(ctx context.Context, cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backendsMu.RLock()
	factory, ok := backends[cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, errors.Unsupported(errors.PhaseInit, "engine backend "+string(cfg.Backend)+" is not available in this build")
	}

	eng, err := factory(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidArgument, err, "create "+string(cfg.Backend)+" engine")
	}
	Logger().Debug("engine created",
		zap.String("backend", string(cfg.Backend)),
		zap.String("mode", string(cfg.Mode)),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages))
	return eng, nil
}
