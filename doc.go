// Package pdksim is a simulated Extism host for running and debugging
// WebAssembly plugins built with an Extism PDK.
//
// # Overview
//
// The host side of the Extism ABI lives in [hostfunc]: a bump-allocated
// [memory] arena that holds every buffer exchanged with the guest, the
// config and variable stores, an HTTP bridge and a character logger for
// print_char. [executor] instantiates plugins with wazero and binds that
// import table to them.
//
// # Basic Usage
//
//	exec, _ := executor.New()
//	defer exec.Close()
//
//	plugin, _ := executor.LoadPlugin("count_vowels.wasm")
//	session, _ := exec.NewSession(ctx, plugin,
//	    executor.WithSessionConfig(map[string]string{"greeting": "hi"}),
//	    executor.WithSessionStdout(os.Stdout))
//	defer session.Close()
//
//	result := session.Call(ctx, "count_vowels", []byte("hello"))
//	fmt.Println(string(result.Output), result.Code)
//
// # Driving the ABI without a guest
//
//	env := hostfunc.NewEnv()
//	imports := env.Imports()
//	res, _ := imports.Call(ctx, hostfunc.ModuleEnv, "alloc", 5)
//	imports.Call(ctx, hostfunc.ModuleEnv, "store_u8", res[0], 'h')
//
// # Restricting HTTP
//
//	session, _ := exec.NewSession(ctx, plugin,
//	    executor.WithSessionHTTP(hostfunc.HTTPConfig{
//	        AllowedHosts: []string{"api.example.com"},
//	    }))
//
// See the [executor], [hostfunc] and [memory] packages for detailed API
// documentation, and cmd/pdksim for the command-line front end.
package pdksim
