package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sharedExec *executor.Executor

func TestMain(m *testing.M) {
	var err error
	sharedExec, err = executor.GetTestExecutor()
	if err != nil {
		panic("failed to create shared executor: " + err.Error())
	}

	code := m.Run()

	executor.CloseTestExecutor()
	os.Exit(code)
}

func TestInspect(t *testing.T) {
	info, err := sharedExec.Inspect(context.Background(), executor.TestPlugin())
	require.NoError(t, err)

	assert.Equal(t, "testplugin", info.Name)
	assert.Equal(t, []string{"_initialize", "count", "exhaust", "fail", "greet", "input_len", "spin"}, info.Exports)
	assert.Len(t, info.Imports, 7)
	assert.Empty(t, info.Missing())
}

func TestInspectReportsUnsupportedImports(t *testing.T) {
	// (module (import "env" "missing" (func)))
	wasm := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x02, 0x0f, 0x01,
		0x03, 'e', 'n', 'v',
		0x07, 'm', 'i', 's', 's', 'i', 'n', 'g',
		0x00, 0x00,
	}

	info, err := sharedExec.Inspect(context.Background(), executor.Plugin{Name: "bad", Wasm: wasm})
	require.NoError(t, err)
	require.Len(t, info.Missing(), 1)
	assert.Equal(t, executor.ImportStatus{Module: "env", Name: "missing"}, info.Missing()[0])
}

func TestInspectInvalidWasm(t *testing.T) {
	_, err := sharedExec.Inspect(context.Background(), executor.Plugin{Name: "junk", Wasm: []byte("not wasm")})
	assert.ErrorContains(t, err, "compile junk")
}

func TestLoadPlugin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.wasm")
	require.NoError(t, os.WriteFile(path, executor.TestPlugin().Wasm, 0o644))

	p, err := executor.LoadPlugin(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Name)
	assert.Equal(t, executor.TestPlugin().Wasm, p.Wasm)

	_, err = executor.LoadPlugin(filepath.Join(t.TempDir(), "absent.wasm"))
	assert.Error(t, err)
}

func TestDiskCache(t *testing.T) {
	exec, err := executor.New(
		executor.WithDiskCache(t.TempDir()),
		executor.WithPrecompile(executor.TestPlugin()),
	)
	require.NoError(t, err)
	defer exec.Close()

	session, err := exec.NewSession(context.Background(), executor.TestPlugin())
	require.NoError(t, err)
	defer session.Close()

	result := session.Call(context.Background(), "fail", nil)
	require.NoError(t, result.Error)
	assert.Equal(t, int32(1), result.Code)
}

func TestClosedExecutor(t *testing.T) {
	exec, err := executor.New()
	require.NoError(t, err)
	require.NoError(t, exec.Close())
	require.NoError(t, exec.Close())

	_, err = exec.NewSession(context.Background(), executor.TestPlugin())
	assert.ErrorIs(t, err, executor.ErrExecutorClosed)
}
