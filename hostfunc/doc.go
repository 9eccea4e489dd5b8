// Package hostfunc implements the host side of the Extism plugin ABI as a
// guest compiled with a PDK sees it.
//
// An [Env] holds one session's state: the [memory.Arena] that stands in for
// guest memory, the [ConfigStore] and [VarStore], the [HTTP] bridge, the call
// [Input] and the [CharLogger] fed by spectest.print_char.
//
// # Import table
//
// [Env.Imports] returns a [Registry] with every function the guest may import
// from the extism:host/env, wasi_snapshot_preview1 and spectest modules. The
// registry can be bound to a wazero runtime (see the executor package) or
// driven directly, which is how the REPL pokes at the ABI:
//
//	env := hostfunc.NewEnv(hostfunc.WithConfig(map[string]string{"greeting": "hi"}))
//	imports := env.Imports()
//	res, err := imports.Call(ctx, hostfunc.ModuleEnv, "alloc", 16)
//
// # Failures
//
// Reads outside any buffer return 0 and are logged. Writes outside any buffer
// are dropped. Arena exhaustion and failed HTTP requests abort the guest call:
// the import panics with the error, wazero turns that into a trap and
// [Registry.Call] returns it.
//
// The wasi_snapshot_preview1 functions are inert stubs that report success.
package hostfunc
