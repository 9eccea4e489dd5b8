// Package executor runs PDK guest modules against the simulated host.
//
// # Overview
//
// An [Executor] owns a wazero compilation cache (in memory, or on disk with
// [WithDiskCache]). Each [Session] gets its own wazero runtime with the
// extism:host/env, wasi_snapshot_preview1 and spectest host modules bound to a
// fresh [hostfunc.Env], so arenas and stores never leak between sessions.
//
// # Basic Usage
//
//	exec, err := executor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	plugin, err := executor.LoadPlugin("plugin.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := exec.NewSession(ctx, plugin,
//	    executor.WithSessionConfig(map[string]string{"greeting": "hello"}),
//	    executor.WithSessionStdout(os.Stdout),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	result := session.Call(ctx, "greet", []byte("world"))
//	fmt.Println(string(result.Output), result.Code)
//
// Calls on one session are serialized. State in the arena, the variable store
// and the HTTP status cell carries over from one call to the next.
package executor
