package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/caffeineduck/pdksim/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// resetFlags undoes what a previous Execute left behind on the shared
// command tree.
func resetFlags(root *cobra.Command) {
	reset := func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "string", "bool", "int", "int64", "duration":
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	root.PersistentFlags().VisitAll(reset)
	root.Flags().VisitAll(reset)
	for _, c := range root.Commands() {
		c.Flags().VisitAll(reset)
	}
}

func writePlugin(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, executor.TestPlugin().Wasm, 0o644))
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"pdksim", "Extism", "run", "repl", "serve", "inspect", "schema", "--session"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--input", "--input-file", "--timeout", "--config", "--var", "--allow-host", "--arena"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "repl", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--history", "Command history", "Line editing", "import table"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--port", "--timeout", "/call/{fn}", "/memory", "/vars", "/health"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIRun(t *testing.T) {
	plugin := writePlugin(t)

	output, err := executeCommand(rootCmd, "run", plugin, "greet", "--no-cache", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, output, "!\nhi\nok\n")
}

func TestCLIRunInput(t *testing.T) {
	plugin := writePlugin(t)

	_, err := executeCommand(rootCmd, "run", plugin, "input_len", "--no-cache", "-i", "hello")
	assert.EqualError(t, err, "input_len returned 5")

	inputFile := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(inputFile, []byte("abc"), 0o644))
	_, err = executeCommand(rootCmd, "run", plugin, "input_len", "--no-cache", "--input-file", inputFile)
	assert.EqualError(t, err, "input_len returned 3")
}

func TestCLIRunVars(t *testing.T) {
	plugin := writePlugin(t)

	_, err := executeCommand(rootCmd, "run", plugin, "count", "--no-cache", "--var", "n=0x10")
	assert.EqualError(t, err, "count returned 17")

	_, err = executeCommand(rootCmd, "run", plugin, "count", "--no-cache", "--var", "n=lots")
	assert.ErrorContains(t, err, "var n")
}

func TestCLIRunSessionFile(t *testing.T) {
	plugin := writePlugin(t)
	dir := filepath.Dir(plugin)
	session := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(session, []byte("plugin: guest.wasm\nfunction: count\nvars:\n  n: 6\n"), 0o644))

	_, err := executeCommand(rootCmd, "run", "--no-cache", "--session", session)
	assert.EqualError(t, err, "count returned 7")

	_, err = executeCommand(rootCmd, "run", "--no-cache", "--session", session, "--var", "n=1")
	assert.EqualError(t, err, "count returned 2")
}

func TestCLIRunState(t *testing.T) {
	plugin := writePlugin(t)
	statePath := filepath.Join(t.TempDir(), "vars.cbor")

	_, err := executeCommand(rootCmd, "run", plugin, "count", "--no-cache", "--state", statePath)
	assert.EqualError(t, err, "count returned 1")
	_, err = executeCommand(rootCmd, "run", plugin, "count", "--no-cache", "--state", statePath)
	assert.EqualError(t, err, "count returned 2")

	snapshot, err := state.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, "guest", snapshot.Plugin)
	assert.Equal(t, map[string]uint64{"n": 2}, snapshot.Vars)

	_, err = executeCommand(rootCmd, "run", plugin, "count", "--no-cache", "--state", statePath, "--var", "n=9")
	assert.EqualError(t, err, "count returned 10")
}

func TestCLIRunErrors(t *testing.T) {
	plugin := writePlugin(t)

	_, err := executeCommand(rootCmd, "run", "--no-cache")
	assert.ErrorContains(t, err, "plugin required")

	_, err = executeCommand(rootCmd, "run", plugin, "--no-cache")
	assert.ErrorContains(t, err, "function required")

	_, err = executeCommand(rootCmd, "run", plugin, "missing", "--no-cache")
	assert.ErrorIs(t, err, executor.ErrFunctionNotFound)

	_, err = executeCommand(rootCmd, "run", plugin, "exhaust", "--no-cache")
	assert.ErrorContains(t, err, "arena capacity exhausted")
}

func TestCLIInspect(t *testing.T) {
	plugin := writePlugin(t)

	output, err := executeCommand(rootCmd, "inspect", plugin, "--no-cache")
	require.NoError(t, err)
	assert.Contains(t, output, "greet")
	assert.Contains(t, output, "extism:host/env.alloc")
	assert.NotContains(t, output, "MISSING")

	output, err = executeCommand(rootCmd, "inspect", plugin, "--no-cache", "--json")
	require.NoError(t, err)
	var info executor.PluginInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, "guest", info.Name)
}

func TestCLISchema(t *testing.T) {
	output, err := executeCommand(rootCmd, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "url")
	assert.Contains(t, props, "method")
	assert.Contains(t, props, "header")

	output, err = executeCommand(rootCmd, "schema", "session")
	require.NoError(t, err)
	assert.Contains(t, output, "allowed_hosts")
	assert.NotContains(t, output, `"Dir"`)

	_, err = executeCommand(rootCmd, "schema", "bogus")
	assert.ErrorContains(t, err, "unknown schema")
}
