package executor

import (
	"io"
	"time"

	"github.com/caffeineduck/pdksim/hostfunc"
	"go.uber.org/zap"
)

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Plugin
	memoryLimitPages uint32 // 0 = wazero default (4GB)
	logger           *zap.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger: zap.NewNop(),
	}
}

// WithDiskCache enables a persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/pdksim or
// XDG_CACHE_HOME/pdksim.
//
// Examples:
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the given plugins when the Executor is created.
func WithPrecompile(plugins ...Plugin) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = plugins
	}
}

// WithMemoryLimit caps guest linear memory. Each page is 64KB.
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
)

type sessionConfig struct {
	timeout time.Duration
	stdout  io.Writer
	env     []hostfunc.EnvOption
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout: 30 * time.Second,
		stdout:  io.Discard,
	}
}

type SessionOption func(*sessionConfig)

// WithSessionTimeout bounds each Call. Zero disables the limit.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithSessionStdout receives output_set echoes and print_char lines.
func WithSessionStdout(w io.Writer) SessionOption {
	return func(c *sessionConfig) {
		c.stdout = w
	}
}

func WithSessionConfig(values map[string]string) SessionOption {
	return func(c *sessionConfig) {
		c.env = append(c.env, hostfunc.WithConfig(values))
	}
}

func WithSessionVars(values map[string]uint64) SessionOption {
	return func(c *sessionConfig) {
		c.env = append(c.env, hostfunc.WithVars(values))
	}
}

func WithSessionArenaCapacity(n int) SessionOption {
	return func(c *sessionConfig) {
		c.env = append(c.env, hostfunc.WithArenaCapacity(n))
	}
}

func WithSessionHTTP(cfg hostfunc.HTTPConfig) SessionOption {
	return func(c *sessionConfig) {
		c.env = append(c.env, hostfunc.WithHTTPConfig(cfg))
	}
}

func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.env = append(c.env, hostfunc.WithLogger(logger))
	}
}
