package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/caffeineduck/pdksim/memory"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl [plugin.wasm]",
	Short: "Interactive ABI debugger",
	Long: `Start an interactive session against the simulated host.

Without a plugin the REPL drives the import table directly, which is handy
for checking how the host answers a sequence of ABI calls. With a plugin the
same host state is shared with the guest and 'call' runs its exports.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)

Type 'help' for commands, 'exit' or Ctrl+D to quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.pdksim_history)")
	addSessionFlags(replCmd)
	addStateFlag(replCmd)
	rootCmd.AddCommand(replCmd)
}

const replHelp = `commands:
  alloc <n>               allocate n bytes, print offset
  str <text>              allocate and fill a buffer with text
  free <off>              release (no-op)
  length <off>            buffer length
  load8|load64 <off>      read through load_u8 / load_u64
  store8|store64 <off> <v>
  read <off>              decode a buffer as text
  records                 list live buffers
  input <text>            set the call input
  config <key> [value]    config_get, or set a host value
  var <key> [value]       var_get, or var_set
  http <json> [body]      http_request, then http_status_code
  print <text>            feed text through print_char
  log <level> <text>      log_<level>
  call <fn> [input]       call a plugin export
  exports                 list plugin exports
  help | exit`

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".pdksim_history")
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	out := cmd.OutOrStdout()
	ctx := context.Background()

	var dbg *debugger
	stateName := ""
	if path, err := s.pluginPath(args); err == nil {
		plugin, err := executor.LoadPlugin(path)
		if err != nil {
			return err
		}
		exec, err := executor.New(s.executorOptions(cmd)...)
		if err != nil {
			return err
		}
		defer exec.Close()

		session, err := exec.NewSession(ctx, plugin, s.sessionOptions(out)...)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		defer session.Close()
		dbg = newSessionDebugger(session, out)
		stateName = plugin.Name
	} else {
		opts := append(s.envOptions(), hostfunc.WithStdout(out))
		dbg = newDebugger(hostfunc.NewEnv(opts...), out)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "pdk> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	defer func() {
		if err := s.saveState(stateName, dbg.env); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}()

	fmt.Fprintln(cmd.ErrOrStderr(), "pdksim REPL (type 'help' for commands, Ctrl+D to exit)")

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := dbg.exec(ctx, line); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

// debugger interprets REPL lines against a host environment.
type debugger struct {
	out     io.Writer
	session *executor.Session

	env     *hostfunc.Env
	imports *hostfunc.Registry
}

func newDebugger(env *hostfunc.Env, out io.Writer) *debugger {
	return &debugger{out: out, env: env, imports: env.Imports()}
}

func newSessionDebugger(session *executor.Session, out io.Writer) *debugger {
	return &debugger{out: out, session: session, env: session.Env(), imports: session.Imports()}
}

func (d *debugger) exec(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "help":
		fmt.Fprintln(d.out, replHelp)
		return nil
	case "call":
		return d.call(ctx, rest)
	case "exports":
		if d.session == nil {
			return errors.New("no plugin loaded")
		}
		fmt.Fprintln(d.out, strings.Join(d.session.Exports(), "\n"))
		return nil
	}

	if d.session != nil {
		return d.session.Do(func(*hostfunc.Env, *hostfunc.Registry) error {
			return d.host(ctx, name, rest)
		})
	}
	return d.host(ctx, name, rest)
}

func (d *debugger) call(ctx context.Context, rest string) error {
	if d.session == nil {
		return errors.New("no plugin loaded")
	}
	fn, input, _ := strings.Cut(rest, " ")
	if fn == "" {
		return errors.New("usage: call <fn> [input]")
	}
	result := d.session.Call(ctx, fn, []byte(input))
	if result.Error != nil {
		return result.Error
	}
	fmt.Fprintf(d.out, "code=%d output=%q (%s)\n", result.Code, result.Output, result.Duration)
	return nil
}

func (d *debugger) host(ctx context.Context, name, rest string) error {
	args := strings.Fields(rest)

	switch name {
	case "alloc":
		n, err := argUint(args, 0)
		if err != nil {
			return err
		}
		return d.printImport(ctx, "alloc", n)
	case "str":
		off, err := d.writeString(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Fprintln(d.out, off)
		return nil
	case "free", "length", "load8", "load64":
		off, err := argUint(args, 0)
		if err != nil {
			return err
		}
		return d.printImport(ctx, importName(name), off)
	case "store8", "store64":
		off, err := argUint(args, 0)
		if err != nil {
			return err
		}
		v, err := argUint(args, 1)
		if err != nil {
			return err
		}
		_, err = d.imports.Call(ctx, hostfunc.ModuleEnv, importName(name), off, v)
		return err
	case "read":
		off, err := argUint(args, 0)
		if err != nil {
			return err
		}
		s, err := d.env.Arena().DecodeString(memory.Offset(off))
		if err != nil {
			return err
		}
		fmt.Fprintf(d.out, "%q\n", s)
		return nil
	case "records":
		a := d.env.Arena()
		for _, r := range a.Records() {
			fmt.Fprintf(d.out, "%6d  len=%d\n", r.Offset, r.Length)
		}
		fmt.Fprintf(d.out, "cursor=%d capacity=%d\n", a.Cursor(), a.Capacity())
		return nil
	case "input":
		d.env.Input().Set([]byte(rest))
		return nil
	case "config":
		return d.keyed(ctx, "config_get", args, func(key, val string) error {
			d.env.Configs().Set(key, val)
			return nil
		})
	case "var":
		return d.keyed(ctx, "var_get", args, func(key, val string) error {
			n, err := strconv.ParseUint(val, 0, 64)
			if err != nil {
				return err
			}
			keyOff, err := d.writeString(ctx, key)
			if err != nil {
				return err
			}
			_, err = d.imports.Call(ctx, hostfunc.ModuleEnv, "var_set", keyOff, n)
			return err
		})
	case "http":
		return d.http(ctx, rest)
	case "print":
		for _, unit := range utf16.Encode([]rune(rest + "\n")) {
			if _, err := d.imports.Call(ctx, hostfunc.ModuleSpectest, "print_char", uint64(unit)); err != nil {
				return err
			}
		}
		return nil
	case "log":
		level, text, _ := strings.Cut(rest, " ")
		off, err := d.writeString(ctx, text)
		if err != nil {
			return err
		}
		_, err = d.imports.Call(ctx, hostfunc.ModuleEnv, "log_"+level, off)
		return err
	default:
		return fmt.Errorf("unknown command %q (try 'help')", name)
	}
}

// keyed handles "<cmd> key" (read through getter) and "<cmd> key value"
// (write through set).
func (d *debugger) keyed(ctx context.Context, getter string, args []string, set func(key, val string) error) error {
	if len(args) == 0 {
		return errors.New("key required")
	}
	if len(args) > 1 {
		return set(args[0], strings.Join(args[1:], " "))
	}
	keyOff, err := d.writeString(ctx, args[0])
	if err != nil {
		return err
	}
	res, err := d.imports.Call(ctx, hostfunc.ModuleEnv, getter, keyOff)
	if err != nil {
		return err
	}
	if getter == "config_get" {
		if res[0] == 0 {
			fmt.Fprintln(d.out, "(unset)")
			return nil
		}
		s, err := d.env.Arena().DecodeString(memory.Offset(res[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(d.out, "%d %q\n", res[0], s)
		return nil
	}
	fmt.Fprintln(d.out, res[0])
	return nil
}

func (d *debugger) http(ctx context.Context, rest string) error {
	desc, body := rest, ""
	if strings.HasPrefix(rest, "{") {
		// the descriptor is the first complete JSON object
		dec := json.NewDecoder(strings.NewReader(rest))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("descriptor: %w", err)
		}
		desc = string(raw)
		body = strings.TrimSpace(rest[dec.InputOffset():])
	}

	reqOff, err := d.writeString(ctx, desc)
	if err != nil {
		return err
	}
	var bodyOff uint64
	if body != "" {
		if bodyOff, err = d.writeString(ctx, body); err != nil {
			return err
		}
	}

	res, err := d.imports.Call(ctx, hostfunc.ModuleEnv, "http_request", reqOff, bodyOff)
	if err != nil {
		return err
	}
	status, err := d.imports.Call(ctx, hostfunc.ModuleEnv, "http_status_code")
	if err != nil {
		return err
	}
	text, err := d.env.Arena().DecodeString(memory.Offset(res[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "status=%d offset=%d\n%s\n", int32(status[0]), res[0], text)
	return nil
}

// writeString allocates and fills a buffer the way a guest does, through
// alloc and store_u8.
func (d *debugger) writeString(ctx context.Context, s string) (uint64, error) {
	res, err := d.imports.Call(ctx, hostfunc.ModuleEnv, "alloc", uint64(len(s)))
	if err != nil {
		return 0, err
	}
	off := res[0]
	for i := 0; i < len(s); i++ {
		if _, err := d.imports.Call(ctx, hostfunc.ModuleEnv, "store_u8", off+uint64(i), uint64(s[i])); err != nil {
			return 0, err
		}
	}
	return off, nil
}

func (d *debugger) printImport(ctx context.Context, name string, args ...uint64) error {
	res, err := d.imports.Call(ctx, hostfunc.ModuleEnv, name, args...)
	if err != nil {
		return err
	}
	for _, v := range res {
		fmt.Fprintln(d.out, v)
	}
	return nil
}

func importName(cmd string) string {
	switch cmd {
	case "load8":
		return "load_u8"
	case "load64":
		return "load_u64"
	case "store8":
		return "store_u8"
	case "store64":
		return "store_u64"
	default:
		return cmd
	}
}

func argUint(args []string, i int) (uint64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, err := strconv.ParseUint(args[i], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return n, nil
}
