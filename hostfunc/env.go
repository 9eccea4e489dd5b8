package hostfunc

import (
	"context"
	"fmt"
	"io"

	"github.com/caffeineduck/pdksim/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Env is the host side of one plugin session: the arena standing in for guest
// memory plus every service the guest can reach through its imports. An Env is
// not safe for concurrent use; callers serialize guest calls.
type Env struct {
	arena   *memory.Arena
	configs *ConfigStore
	vars    *VarStore
	http    *HTTP
	input   Input
	console *CharLogger
	stdout  io.Writer
	logger  *zap.Logger
	guest   *zap.Logger

	output    []byte
	hasOutput bool
}

type envConfig struct {
	arenaCapacity int
	configs       map[string]string
	vars          map[string]uint64
	http          HTTPConfig
	logger        *zap.Logger
	stdout        io.Writer
}

type EnvOption func(*envConfig)

// WithArenaCapacity sets the arena size in bytes. Zero keeps the default of
// one wasm page.
func WithArenaCapacity(n int) EnvOption {
	return func(c *envConfig) {
		c.arenaCapacity = n
	}
}

// WithConfig seeds the config store.
func WithConfig(values map[string]string) EnvOption {
	return func(c *envConfig) {
		c.configs = values
	}
}

// WithVars seeds the variable store.
func WithVars(values map[string]uint64) EnvOption {
	return func(c *envConfig) {
		c.vars = values
	}
}

func WithHTTPConfig(cfg HTTPConfig) EnvOption {
	return func(c *envConfig) {
		c.http = cfg
	}
}

func WithLogger(logger *zap.Logger) EnvOption {
	return func(c *envConfig) {
		c.logger = logger
	}
}

// WithStdout sets where output_set text and print_char lines are written.
func WithStdout(w io.Writer) EnvOption {
	return func(c *envConfig) {
		c.stdout = w
	}
}

func NewEnv(opts ...EnvOption) *Env {
	cfg := envConfig{
		logger: zap.NewNop(),
		stdout: io.Discard,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.stdout == nil {
		cfg.stdout = io.Discard
	}

	arena := memory.NewArena(cfg.arenaCapacity)
	e := &Env{
		arena:   arena,
		configs: NewConfigStore(),
		vars:    NewVarStore(),
		http:    NewHTTP(cfg.http, arena, cfg.logger.Named("http")),
		stdout:  cfg.stdout,
		logger:  cfg.logger,
		guest:   cfg.logger.Named("guest"),
	}
	e.configs.Load(cfg.configs)
	for k, v := range cfg.vars {
		e.vars.Set(k, v)
	}
	e.console = NewCharLogger(func(line string) {
		fmt.Fprintln(e.stdout, line)
	})
	return e
}

func (e *Env) Arena() *memory.Arena { return e.arena }
func (e *Env) Configs() *ConfigStore { return e.configs }
func (e *Env) Vars() *VarStore { return e.vars }
func (e *Env) HTTP() *HTTP { return e.http }
func (e *Env) Input() *Input { return &e.input }
func (e *Env) Console() *CharLogger { return e.console }
func (e *Env) Logger() *zap.Logger { return e.logger }

// Output returns the text most recently passed to output_set.
func (e *Env) Output() ([]byte, bool) {
	return e.output, e.hasOutput
}

// ResetOutput forgets the last output_set value.
func (e *Env) ResetOutput() {
	e.output = nil
	e.hasOutput = false
}

// Alloc reserves n bytes. Exhaustion is fatal to the guest call.
func (e *Env) Alloc(n uint64) (uint64, error) {
	off, err := e.arena.Allocate(n)
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

func (e *Env) Free(off uint64) {
	e.arena.Release(memory.Offset(off))
}

func (e *Env) Length(off uint64) uint64 {
	return e.arena.Length(memory.Offset(off))
}

func (e *Env) LoadU8(off uint64) uint8 {
	v, err := e.arena.LoadU8(memory.Offset(off))
	if err != nil {
		e.logger.Error("load_u8", zap.Uint64("offset", off), zap.Error(err))
		return 0
	}
	return v
}

func (e *Env) LoadU64(off uint64) uint64 {
	v, err := e.arena.LoadU64(memory.Offset(off))
	if err != nil {
		e.logger.Error("load_u64", zap.Uint64("offset", off), zap.Error(err))
		return 0
	}
	return v
}

// StoreU8 writes one byte. Writes outside any buffer are dropped.
func (e *Env) StoreU8(off uint64, v uint8) {
	if err := e.arena.StoreU8(memory.Offset(off), v); err != nil {
		e.logger.Debug("store_u8 dropped", zap.Uint64("offset", off), zap.Error(err))
	}
}

func (e *Env) StoreU64(off, v uint64) {
	if err := e.arena.StoreU64(memory.Offset(off), v); err != nil {
		e.logger.Debug("store_u64 dropped", zap.Uint64("offset", off), zap.Error(err))
	}
}

func (e *Env) InputLength() uint64 {
	return e.input.Length()
}

func (e *Env) InputLoadU8(off uint64) uint8 {
	v, err := e.input.LoadU8(off)
	if err != nil {
		e.logger.Error("input_load_u8", zap.Error(err))
		return 0
	}
	return v
}

func (e *Env) InputLoadU64(off uint64) uint64 {
	v, err := e.input.LoadU64(off)
	if err != nil {
		e.logger.Error("input_load_u64", zap.Error(err))
		return 0
	}
	return v
}

// ConfigGet returns a new buffer holding the value for the key stored at
// keyOff, or 0 when the key is unset or empty.
func (e *Env) ConfigGet(keyOff uint64) (uint64, error) {
	key, ok := e.decodeKey("config_get", keyOff)
	if !ok {
		return 0, nil
	}
	val, ok := e.configs.Get(key)
	if !ok {
		return 0, nil
	}
	off, err := e.arena.AllocateAndFill([]byte(val))
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

// VarGet returns the word stored under the key at keyOff, or 0.
func (e *Env) VarGet(keyOff uint64) uint64 {
	key, ok := e.decodeKey("var_get", keyOff)
	if !ok {
		return 0
	}
	return e.vars.Get(key)
}

func (e *Env) VarSet(keyOff, value uint64) {
	key, ok := e.decodeKey("var_set", keyOff)
	if !ok {
		return
	}
	e.vars.Set(key, value)
}

func (e *Env) HTTPRequest(ctx context.Context, reqOff, bodyOff uint64) (uint64, error) {
	off, err := e.http.Request(ctx, memory.Offset(reqOff), memory.Offset(bodyOff))
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

func (e *Env) HTTPStatusCode() int32 {
	return e.http.StatusCode()
}

// Log forwards a guest log message at the given level.
func (e *Env) Log(level zapcore.Level, off uint64) {
	msg, err := e.arena.DecodeString(memory.Offset(off))
	if err != nil {
		e.logger.Error("log", zap.Stringer("level", level), zap.Uint64("offset", off), zap.Error(err))
		return
	}
	e.guest.Log(level, msg)
}

// OutputSet records the text at off as the call output and echoes it.
func (e *Env) OutputSet(off uint64) {
	msg, err := e.arena.DecodeString(memory.Offset(off))
	if err != nil {
		e.logger.Error("output_set", zap.Uint64("offset", off), zap.Error(err))
		return
	}
	e.output = []byte(msg)
	e.hasOutput = true
	fmt.Fprintln(e.stdout, msg)
}

func (e *Env) PrintChar(code uint32) {
	e.console.PushChar(code)
}

func (e *Env) decodeKey(op string, off uint64) (string, bool) {
	key, err := e.arena.DecodeString(memory.Offset(off))
	if err != nil {
		e.logger.Error(op, zap.Uint64("offset", off), zap.Error(err))
		return "", false
	}
	return key, true
}
