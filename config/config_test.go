package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wasmbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Backend != engine.BackendWazero && os.Getenv(EnvPrefix+"BACKEND") == "" {
		t.Errorf("backend = %q", cfg.Engine.Backend)
	}
	if cfg.Log.MaxSizeMB != 16 {
		t.Errorf("max size = %d", cfg.Log.MaxSizeMB)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
engine:
  mode: interpreter
  memory_limit_pages: 256
  close_on_context_done: true
log:
  level: debug
  development: true
metrics_addr: ":9090"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Mode != engine.ModeInterpreter {
		t.Errorf("mode = %q", cfg.Engine.Mode)
	}
	if cfg.Engine.MemoryLimitPages != 256 || !cfg.Engine.CloseOnContextDone {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Log.MaxBackups != 4 {
		t.Errorf("unset fields should keep defaults, max backups = %d", cfg.Log.MaxBackups)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("metrics addr = %q", cfg.MetricsAddr)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "engine:\n  backnd: wazero\n"},
		{"bad yaml", "engine: [\n"},
		{"bad mode", "engine:\n  mode: jit\n"},
		{"too many pages", "engine:\n  memory_limit_pages: 70000\n"},
		{"bad level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			if !errors.IsKind(err, errors.KindInvalidArgument) {
				t.Errorf("got %v, want invalid_argument", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("missing file: got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"WASMBRIDGE_BACKEND":               "wasmtime",
		"WASMBRIDGE_MODE":                  " compiler ",
		"WASMBRIDGE_CACHE_DIR":             "/tmp/cache",
		"WASMBRIDGE_MEMORY_LIMIT_PAGES":    "1024",
		"WASMBRIDGE_CLOSE_ON_CONTEXT_DONE": "true",
		"WASMBRIDGE_LOG_LEVEL":             "error",
		"WASMBRIDGE_LOG_FILE":              "/tmp/wb.log",
		"WASMBRIDGE_LOG_DEVELOPMENT":       "1",
		"WASMBRIDGE_METRICS_ADDR":          "127.0.0.1:0",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	want := engine.Config{
		Backend:            engine.BackendWasmtime,
		Mode:               engine.ModeCompiler,
		CacheDir:           "/tmp/cache",
		MemoryLimitPages:   1024,
		CloseOnContextDone: true,
	}
	if cfg.Engine != want {
		t.Errorf("engine = %+v, want %+v", cfg.Engine, want)
	}
	if cfg.Log.Level != "error" || cfg.Log.File != "/tmp/wb.log" || !cfg.Log.Development {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.MetricsAddr != "127.0.0.1:0" {
		t.Errorf("metrics addr = %q", cfg.MetricsAddr)
	}
}

func TestApplyEnv_Errors(t *testing.T) {
	for _, name := range []string{"MEMORY_LIMIT_PAGES", "CLOSE_ON_CONTEXT_DONE", "LOG_DEVELOPMENT"} {
		cfg := Default()
		err := cfg.ApplyEnv(env(map[string]string{EnvPrefix + name: "not-a-value"}))
		if !errors.IsKind(err, errors.KindInvalidArgument) {
			t.Errorf("%s: got %v", name, err)
			continue
		}
		if !strings.Contains(err.Error(), EnvPrefix+name) {
			t.Errorf("%s: error should name the variable: %v", name, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "wb.log")

	l, closer, err := NewLogger(Log{Level: "info", File: file, MaxSizeMB: 1}, zapcore.AddSync(os.Stderr))
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	l.Debug("hidden")
	l.Info("visible")
	_ = l.Sync()
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"visible"`) {
		t.Errorf("log file missing info entry: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("debug entry should be filtered: %s", data)
	}
}

func TestNewLogger_Errors(t *testing.T) {
	if _, _, err := NewLogger(Log{Level: "verbose"}, zapcore.AddSync(os.Stderr)); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("got %v", err)
	}
	l, closer, err := NewLogger(Log{Development: true}, zapcore.AddSync(os.Stderr))
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if !l.Core().Enabled(zapcore.WarnLevel) || l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("empty level should mean warn")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("nop closer returned %v", err)
	}
}
