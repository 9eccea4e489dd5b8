package main

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/caffeineduck/pdksim/internal/config"
	"github.com/caffeineduck/pdksim/internal/logging"
	"github.com/caffeineduck/pdksim/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "pdksim",
	Short: "Simulated Extism host for debugging PDK plugins",
	Long: `pdksim - Run and debug WebAssembly plugins built with an Extism PDK
against a simulated host.

The host keeps guest buffers in a bump-allocated arena, serves config and
variables, bridges http_request to real HTTP calls and prints what the guest
logs. Settings come from flags or from a session file (--session, TOML or
YAML); flags win.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("session", "s", "", "Session file (.toml, .yaml)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", logging.FormatConsole, "Log format: console, json")
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 30*time.Second, "Per-call timeout")
	cmd.Flags().StringToString("config", nil, "Config value key=value (repeatable)")
	cmd.Flags().StringToString("var", nil, "Variable key=uint64 (repeatable)")
	cmd.Flags().Int("arena", 0, "Arena capacity in bytes (default 64KiB)")
	cmd.Flags().String("memory", "", "Guest memory limit: 1mb, 16mb, 64mb, 256mb")
	cmd.Flags().StringSlice("allow-host", nil, "Restrict HTTP to host (repeatable, default: any)")
	cmd.Flags().Duration("http-timeout", hostfunc.DefaultRequestTimeout, "HTTP request timeout")
	cmd.Flags().Int64("http-max-body", hostfunc.DefaultMaxBodySize, "Max HTTP response body size")
}

func addStateFlag(cmd *cobra.Command) {
	cmd.Flags().String("state", "", "Load variables from and save them to this file")
}

// settings is a session file with command-line overrides applied.
type settings struct {
	file   *config.Session
	logger *zap.Logger

	statePath string
	snapshot  *state.Snapshot
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	file := &config.Session{}
	if path, _ := cmd.Flags().GetString("session"); path != "" {
		var err error
		file, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	statePath := file.Resolve(file.State)
	if cmd.Flags().Changed("state") {
		statePath, _ = cmd.Flags().GetString("state")
	}
	var snapshot *state.Snapshot
	if statePath != "" {
		var err error
		if snapshot, err = state.Load(statePath); err != nil {
			return nil, err
		}
		if file.Vars == nil {
			file.Vars = make(map[string]uint64)
		}
		for k, v := range snapshot.Vars {
			file.Vars[k] = v
		}
	}

	if err := applyFlags(cmd, file); err != nil {
		return nil, err
	}

	level := orDefault(file.Log.Level, "info")
	format := orDefault(file.Log.Format, logging.FormatConsole)
	logger, err := logging.New(level, format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	return &settings{file: file, logger: logger, statePath: statePath, snapshot: snapshot}, nil
}

// saveState writes the current variables to the state file, if one is in use.
func (s *settings) saveState(plugin string, env *hostfunc.Env) error {
	if s.statePath == "" {
		return nil
	}
	if plugin != "" && s.snapshot.Plugin != "" && s.snapshot.Plugin != plugin {
		s.logger.Warn("state file belonged to another plugin",
			zap.String("state", s.statePath),
			zap.String("previous", s.snapshot.Plugin),
			zap.String("plugin", plugin))
	}
	return state.Save(s.statePath, &state.Snapshot{
		Plugin:  cmp.Or(plugin, s.snapshot.Plugin),
		Vars:    env.Vars().All(),
		SavedAt: time.Now(),
	})
}

func applyFlags(cmd *cobra.Command, s *config.Session) error {
	flags := cmd.Flags()

	if flags.Changed("timeout") || s.Timeout == 0 {
		s.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("config") {
		values, _ := flags.GetStringToString("config")
		if s.Config == nil {
			s.Config = make(map[string]string)
		}
		for k, v := range values {
			s.Config[k] = v
		}
	}
	if flags.Changed("var") {
		raw, _ := flags.GetStringToString("var")
		vars, err := parseVars(raw)
		if err != nil {
			return err
		}
		if s.Vars == nil {
			s.Vars = make(map[string]uint64)
		}
		for k, v := range vars {
			s.Vars[k] = v
		}
	}
	if flags.Changed("arena") {
		s.Arena.Capacity, _ = flags.GetInt("arena")
	}
	if flags.Changed("allow-host") {
		s.HTTP.AllowedHosts, _ = flags.GetStringSlice("allow-host")
	}
	if flags.Changed("http-timeout") || s.HTTP.Timeout == 0 {
		s.HTTP.Timeout, _ = flags.GetDuration("http-timeout")
	}
	if flags.Changed("http-max-body") || s.HTTP.MaxBodySize == 0 {
		s.HTTP.MaxBodySize, _ = flags.GetInt64("http-max-body")
	}
	if flags.Changed("log-level") || s.Log.Level == "" {
		s.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") || s.Log.Format == "" {
		s.Log.Format, _ = flags.GetString("log-format")
	}
	return nil
}

func (s *settings) executorOptions(cmd *cobra.Command) []executor.ExecutorOption {
	opts := []executor.ExecutorOption{executor.WithExecutorLogger(s.logger)}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		opts = append(opts, executor.WithDiskCache())
	}
	if memory, _ := cmd.Flags().GetString("memory"); memory != "" {
		if pages := parseMemoryLimit(memory); pages > 0 {
			opts = append(opts, executor.WithMemoryLimit(pages))
		}
	}
	return opts
}

func (s *settings) envOptions() []hostfunc.EnvOption {
	return []hostfunc.EnvOption{
		hostfunc.WithConfig(s.file.Config),
		hostfunc.WithVars(s.file.Vars),
		hostfunc.WithArenaCapacity(s.file.Arena.Capacity),
		hostfunc.WithHTTPConfig(s.file.HTTPConfig()),
		hostfunc.WithLogger(s.logger),
	}
}

func (s *settings) sessionOptions(stdout io.Writer) []executor.SessionOption {
	return []executor.SessionOption{
		executor.WithSessionTimeout(s.file.Timeout),
		executor.WithSessionStdout(stdout),
		executor.WithSessionConfig(s.file.Config),
		executor.WithSessionVars(s.file.Vars),
		executor.WithSessionArenaCapacity(s.file.Arena.Capacity),
		executor.WithSessionHTTP(s.file.HTTPConfig()),
		executor.WithSessionLogger(s.logger),
	}
}

// pluginPath picks the plugin from args, falling back to the session file.
func (s *settings) pluginPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if s.file.Plugin != "" {
		return s.file.Resolve(s.file.Plugin), nil
	}
	return "", fmt.Errorf("plugin required: pass a .wasm path or set plugin in the session file")
}

func parseVars(raw map[string]string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("var %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return executor.MemoryLimit1MB
	case "16mb":
		return executor.MemoryLimit16MB
	case "64mb":
		return executor.MemoryLimit64MB
	case "256mb":
		return executor.MemoryLimit256MB
	default:
		return 0 // use default
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
