package hostfunc

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zapcore"
)

const (
	ModuleEnv      = "extism:host/env"
	ModuleWASI     = "wasi_snapshot_preview1"
	ModuleSpectest = "spectest"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func sig(types ...api.ValueType) []api.ValueType {
	return types
}

// Imports builds the import table bound to e. Conditions that must abort the
// guest (arena exhaustion, a malformed or timed out HTTP request) panic with
// the underlying error.
func (e *Env) Imports() *Registry {
	r := NewRegistry()
	e.registerEnv(r)
	registerWASI(r)
	r.Register(Import{
		Module: ModuleSpectest, Name: "print_char",
		Params: sig(i32),
		Fn: func(_ context.Context, stack []uint64) {
			e.PrintChar(api.DecodeU32(stack[0]))
		},
	})
	return r
}

func (e *Env) registerEnv(r *Registry) {
	env := func(name string, params, results []api.ValueType, fn Func) {
		r.Register(Import{Module: ModuleEnv, Name: name, Params: params, Results: results, Fn: fn})
	}

	env("alloc", sig(i64), sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = must(e.Alloc(stack[0]))
	})
	env("free", sig(i64), nil, func(_ context.Context, stack []uint64) {
		e.Free(stack[0])
	})
	env("length", sig(i64), sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = e.Length(stack[0])
	})
	env("load_u8", sig(i64), sig(i32), func(_ context.Context, stack []uint64) {
		stack[0] = api.EncodeU32(uint32(e.LoadU8(stack[0])))
	})
	env("load_u64", sig(i64), sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = e.LoadU64(stack[0])
	})
	env("store_u8", sig(i64, i32), nil, func(_ context.Context, stack []uint64) {
		e.StoreU8(stack[0], uint8(api.DecodeU32(stack[1])))
	})
	env("store_u64", sig(i64, i64), nil, func(_ context.Context, stack []uint64) {
		e.StoreU64(stack[0], stack[1])
	})
	env("input_length", nil, sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = e.InputLength()
	})
	env("input_load_u8", sig(i64), sig(i32), func(_ context.Context, stack []uint64) {
		stack[0] = api.EncodeU32(uint32(e.InputLoadU8(stack[0])))
	})
	env("input_load_u64", sig(i64), sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = e.InputLoadU64(stack[0])
	})
	env("config_get", sig(i64), sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = must(e.ConfigGet(stack[0]))
	})
	env("var_get", sig(i64), sig(i64), func(_ context.Context, stack []uint64) {
		stack[0] = e.VarGet(stack[0])
	})
	env("var_set", sig(i64, i64), nil, func(_ context.Context, stack []uint64) {
		e.VarSet(stack[0], stack[1])
	})
	env("http_request", sig(i64, i64), sig(i64), func(ctx context.Context, stack []uint64) {
		stack[0] = must(e.HTTPRequest(ctx, stack[0], stack[1]))
	})
	env("http_status_code", nil, sig(i32), func(_ context.Context, stack []uint64) {
		stack[0] = api.EncodeI32(e.HTTPStatusCode())
	})

	for name, level := range map[string]zapcore.Level{
		"log_debug": zapcore.DebugLevel,
		"log_info":  zapcore.InfoLevel,
		"log_warn":  zapcore.WarnLevel,
		"log_error": zapcore.ErrorLevel,
	} {
		env(name, sig(i64), nil, func(_ context.Context, stack []uint64) {
			e.Log(level, stack[0])
		})
	}

	env("output_set", sig(i64), nil, func(_ context.Context, stack []uint64) {
		e.OutputSet(stack[0])
	})
}

func registerWASI(r *Registry) {
	stub := func(name string, params ...api.ValueType) {
		r.Register(Import{
			Module: ModuleWASI, Name: name,
			Params: params, Results: sig(i32),
			Fn: func(_ context.Context, stack []uint64) {
				stack[0] = 0
			},
		})
	}
	stub("args_get", i32, i32)
	stub("args_sizes_get", i32, i32)
	stub("environ_get", i32, i32)
	stub("environ_sizes_get", i32, i32)
	stub("clock_time_get", i32, i64, i32)
	stub("fd_write", i32, i32, i32, i32)
}

func must(v uint64, err error) uint64 {
	if err != nil {
		panic(err)
	}
	return v
}
