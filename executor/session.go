package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrFunctionNotFound = errors.New("function not exported")
	ErrTimeout          = errors.New("call timed out")
)

const initializeFunc = "_initialize"

// Session is one instantiated guest bound to its own host environment. Calls
// are serialized; the arena and stores persist across them.
type Session struct {
	plugin  Plugin
	cfg     sessionConfig
	env     *hostfunc.Env
	imports *hostfunc.Registry
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	module   api.Module
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession instantiates plugin in a fresh runtime with the host modules
// bound and runs _initialize when the guest exports it.
func (e *Executor) NewSession(ctx context.Context, plugin Plugin, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	envOpts := append([]hostfunc.EnvOption{
		hostfunc.WithLogger(e.logger),
		hostfunc.WithStdout(cfg.stdout),
	}, cfg.env...)
	env := hostfunc.NewEnv(envOpts...)

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrExecutorClosed
	}

	s := &Session{
		plugin:  plugin,
		cfg:     cfg,
		env:     env,
		imports: env.Imports(),
		runtime: wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig()),
		logger:  env.Logger().With(zap.String("plugin", plugin.Name)),
	}

	if err := s.start(ctx); err != nil {
		s.runtime.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context) error {
	for _, module := range s.imports.Modules() {
		if err := bindHostModule(ctx, s.runtime, module, s.imports.Module(module)); err != nil {
			return err
		}
	}

	compiled, err := s.runtime.CompileModule(ctx, s.plugin.Wasm)
	if err != nil {
		return fmt.Errorf("compile %s: %w", s.plugin.Name, err)
	}
	s.compiled = compiled

	if err := s.instantiate(ctx); err != nil {
		return err
	}

	s.logger.Debug("session started")
	return nil
}

// instantiate creates the guest module from the compiled plugin and runs
// _initialize when it is exported.
func (s *Session) instantiate(ctx context.Context) error {
	moduleConfig := wazero.NewModuleConfig().
		WithName(s.plugin.Name).
		WithStartFunctions()

	mod, err := s.runtime.InstantiateModule(ctx, s.compiled, moduleConfig)
	if err != nil {
		return fmt.Errorf("instantiate %s: %w", s.plugin.Name, err)
	}
	s.module = mod

	if init := mod.ExportedFunction(initializeFunc); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return fmt.Errorf("%s: %w", initializeFunc, err)
		}
		s.env.Console().Flush()
	}
	return nil
}

// reviveModule replaces a guest module that wazero closed because a call's context
// ended. Host state in the Env is kept; guest linear memory starts over. When
// the module cannot be recreated the session is marked closed.
func (s *Session) reviveModule() {
	if !s.module.IsClosed() {
		return
	}
	if err := s.instantiate(context.Background()); err != nil {
		s.logger.Error("guest module lost, closing session", zap.Error(err))
		s.closed = true
		s.runtime.Close(context.Background())
		return
	}
	s.logger.Warn("guest module closed by an ended call, re-instantiated")
}

func bindHostModule(ctx context.Context, rt wazero.Runtime, module string, imports []hostfunc.Import) error {
	builder := rt.NewHostModuleBuilder(module)
	for _, imp := range imports {
		builder.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(imp.Fn), imp.Params, imp.Results).
			WithName(imp.Name).
			Export(imp.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %s: %w", module, err)
	}
	return nil
}

// Call runs the exported function fn with input available through the
// input_* imports. The guest's i32 return value is reported as Result.Code.
func (s *Session) Call(ctx context.Context, fn string, input []byte) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	if s.closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}

	f := s.module.ExportedFunction(fn)
	if f == nil {
		return Result{Error: fmt.Errorf("%w: %s", ErrFunctionNotFound, fn), Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.env.Input().Set(input)
	s.env.ResetOutput()

	results, err := f.Call(ctx)
	s.env.Console().Flush()

	output, _ := s.env.Output()
	result := Result{
		Output:   output,
		Duration: time.Since(start),
	}
	if len(results) > 0 {
		result.Code = api.DecodeI32(results[0])
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Error = fmt.Errorf("%w after %v: %w", ErrTimeout, s.cfg.timeout, err)
		} else {
			result.Error = fmt.Errorf("call %s: %w", fn, err)
		}
		s.logger.Debug("call failed", zap.String("function", fn), zap.Error(result.Error))
		s.reviveModule()
	}

	return result
}

// Exports lists the functions the guest exports, sorted.
func (s *Session) Exports() []string {
	defs := s.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Env exposes the host state of the session. Use it only between calls.
func (s *Session) Env() *hostfunc.Env {
	return s.env
}

// Imports returns the import table the guest is bound to. Calling it directly
// shares state with the guest.
func (s *Session) Imports() *hostfunc.Registry {
	return s.imports
}

// Do runs fn against the session's host state while no guest call is in
// flight.
func (s *Session) Do(fn func(env *hostfunc.Env, imports *hostfunc.Registry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn(s.env, s.imports)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.env.Console().Flush()

	return s.runtime.Close(context.Background())
}
