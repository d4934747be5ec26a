package runtime

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/handle"
)

// CallObserver is notified after every function call.
type CallObserver interface {
	ObserveCall(name string, elapsed time.Duration, err error)
}

type config struct {
	logger    *zap.Logger
	engine    engine.Config
	observers []handle.Observer
	calls     []CallObserver
}

// Option configures a Context.
type Option func(*config)

func defaultConfig() config {
	return config{engine: engine.DefaultConfig()}
}

// WithEngineConfig replaces the engine configuration.
func WithEngineConfig(cfg engine.Config) Option {
	return func(c *config) {
		c.engine = cfg
	}
}

// WithBackend selects the engine backend, keeping the rest of the engine
// configuration.
func WithBackend(b engine.Backend) Option {
	return func(c *config) {
		c.engine.Backend = b
	}
}

// WithLogger sets the logger for this Context. Defaults to the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithObserver subscribes o to handle lifecycle events of the Context.
func WithObserver(o handle.Observer) Option {
	return func(c *config) {
		c.observers = append(c.observers, o)
	}
}

// WithCallObserver registers o to be told about every ExecuteFunction call.
func WithCallObserver(o CallObserver) Option {
	return func(c *config) {
		c.calls = append(c.calls, o)
	}
}
