package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <plugin.wasm>",
	Short: "List a plugin's exports and check its imports",
	Long: `Compile a plugin and report the functions it exports and the functions
it imports. Imports the simulated host does not provide, or provides with a
different signature, are marked missing and fail the command.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("json", false, "Print as JSON")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	plugin, err := executor.LoadPlugin(args[0])
	if err != nil {
		return err
	}

	var opts []executor.ExecutorOption
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		opts = append(opts, executor.WithDiskCache())
	}
	exec, err := executor.New(opts...)
	if err != nil {
		return err
	}
	defer exec.Close()

	info, err := exec.Inspect(context.Background(), plugin)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintf(out, "%s %s\n\n%s\n", titleStyle.Render("plugin"), info.Name, titleStyle.Render("exports:"))
		for _, name := range info.Exports {
			fmt.Fprintf(out, "  %s\n", name)
		}
		fmt.Fprintf(out, "\n%s\n", titleStyle.Render("imports:"))
		for _, imp := range info.Imports {
			mark := okStyle.Render(fmt.Sprintf("%-8s", "ok"))
			if !imp.Supported {
				mark = missingStyle.Render(fmt.Sprintf("%-8s", "MISSING"))
			}
			fmt.Fprintf(out, "  %s %s.%s\n", mark, imp.Module, imp.Name)
		}
	}

	if missing := info.Missing(); len(missing) > 0 {
		return fmt.Errorf("%d import(s) not provided by the host", len(missing))
	}
	return nil
}
