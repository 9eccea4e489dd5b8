package executor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

var ErrExecutorClosed = errors.New("executor closed")

// Result holds the outcome of one guest call.
type Result struct {
	// Output is the last value the guest passed to output_set, nil if none.
	Output   []byte
	Code     int32
	Duration time.Duration
	Error    error
}

// Executor owns the compilation cache shared by every session runtime.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	cfg      executorConfig
	compiled map[[sha256.Size]byte]wazero.CompiledModule
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	e := &Executor{
		cache:    cache,
		cfg:      cfg,
		compiled: make(map[[sha256.Size]byte]wazero.CompiledModule),
		logger:   cfg.logger,
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())

	for _, p := range cfg.precompile {
		if _, err := e.getCompiled(ctx, p); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", p.Name, err)
		}
	}

	return e, nil
}

func (e *Executor) runtimeConfig() wazero.RuntimeConfig {
	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(e.cache)
	if e.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(e.cfg.memoryLimitPages)
	}
	return rtConfig
}

// Inspect compiles a plugin and reports its exports and which of its imports
// the host provides with a matching signature.
func (e *Executor) Inspect(ctx context.Context, p Plugin) (PluginInfo, error) {
	compiled, err := e.getCompiled(ctx, p)
	if err != nil {
		return PluginInfo{}, err
	}

	table := hostfunc.NewEnv().Imports()
	info := PluginInfo{Name: p.Name}

	for name := range compiled.ExportedFunctions() {
		info.Exports = append(info.Exports, name)
	}
	sort.Strings(info.Exports)

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		imp, ok := table.Get(module, name)
		supported := ok &&
			slices.Equal(imp.Params, def.ParamTypes()) &&
			slices.Equal(imp.Results, def.ResultTypes())
		info.Imports = append(info.Imports, ImportStatus{Module: module, Name: name, Supported: supported})
	}

	return info, nil
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, p Plugin) (wazero.CompiledModule, error) {
	key := sha256.Sum256(p.Wasm)

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[key]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[key]; ok {
		return compiled, nil
	}

	start := time.Now()
	compiled, err := e.runtime.CompileModule(ctx, p.Wasm)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", p.Name, err)
	}
	e.logger.Debug("compiled plugin", zap.String("plugin", p.Name), zap.Duration("took", time.Since(start)))

	e.compiled[key] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor. Sessions must be closed
// separately.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.cache.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "pdksim")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "pdksim")
	}
	return filepath.Join(os.TempDir(), "pdksim-cache")
}
