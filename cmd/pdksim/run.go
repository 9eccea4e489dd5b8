package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [plugin.wasm] [function]",
	Short: "Call one plugin export",
	Long: `Instantiate a plugin against the simulated host and call one export.

Input can be provided via:
  - Inline flag: pdksim run plugin.wasm greet -i 'world'
  - File: pdksim run plugin.wasm greet --input-file input.json
  - Stdin: echo world | pdksim run plugin.wasm greet --input-file -

Whatever the guest passes to output_set or prints with print_char goes to
stdout. A non-zero return code from the export is reported as an error.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("input", "i", "", "Call input")
	runCmd.Flags().String("input-file", "", "Read call input from file ('-' for stdin)")
	addSessionFlags(runCmd)
	addStateFlag(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	path, err := s.pluginPath(args)
	if err != nil {
		return err
	}
	fn := s.file.Function
	if len(args) > 1 {
		fn = args[1]
	}
	if fn == "" {
		return fmt.Errorf("function required: pass it after the plugin or set function in the session file")
	}

	input, err := readInput(cmd, s)
	if err != nil {
		return err
	}

	plugin, err := executor.LoadPlugin(path)
	if err != nil {
		return err
	}

	exec, err := executor.New(s.executorOptions(cmd)...)
	if err != nil {
		return err
	}
	defer exec.Close()

	ctx := context.Background()
	session, err := exec.NewSession(ctx, plugin, s.sessionOptions(cmd.OutOrStdout())...)
	if err != nil {
		return err
	}
	defer session.Close()

	result := session.Call(ctx, fn, input)
	s.logger.Debug("call finished",
		zap.String("function", fn),
		zap.Int32("code", result.Code),
		zap.Duration("duration", result.Duration))

	if result.Error != nil {
		return result.Error
	}
	err = session.Do(func(env *hostfunc.Env, _ *hostfunc.Registry) error {
		return s.saveState(plugin.Name, env)
	})
	if err != nil {
		return err
	}
	if result.Code != 0 {
		return fmt.Errorf("%s returned %d", fn, result.Code)
	}
	return nil
}

func readInput(cmd *cobra.Command, s *settings) ([]byte, error) {
	if cmd.Flags().Changed("input") {
		input, _ := cmd.Flags().GetString("input")
		return []byte(input), nil
	}
	file, _ := cmd.Flags().GetString("input-file")
	switch file {
	case "":
		return s.file.InputBytes()
	case "-":
		return io.ReadAll(cmd.InOrStdin())
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return data, nil
	}
}
