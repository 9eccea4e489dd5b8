package executor

import (
	"bytes"
	"sync"
)

// TestExecutor provides a shared executor for tests so the compilation cache
// is warm across them.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a shared executor for testing.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		testExecutor, testExecutorErr = New()
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close()
		testExecutor = nil
		testExecutorOnce = sync.Once{}
	}
}

// TestPlugin returns a small guest that exercises the import table. Exports:
//
//	greet        writes "hi" to a new buffer, output_set it, prints "ok\n"
//	input_len    returns input_length as i32
//	count        var_get/var_set "n" += 1 and returns the new value
//	exhaust      allocates more than the arena holds
//	spin         loops forever
//	fail         returns 1
//	_initialize  prints "!\n"
func TestPlugin() Plugin {
	return Plugin{Name: "testplugin", Wasm: testPluginWasm()}
}

const (
	wasmI32 = 0x7f
	wasmI64 = 0x7e

	opBlockVoid = 0x40
	opLoop      = 0x03
	opBr        = 0x0c
	opEnd       = 0x0b
	opCall      = 0x10
	opDrop      = 0x1a
	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI64Add    = 0x7c
	opI32Wrap   = 0xa7
)

// imported function indices
const (
	fnAlloc = iota
	fnStoreU8
	fnOutputSet
	fnPrintChar
	fnInputLength
	fnVarGet
	fnVarSet
	fnImportCount
)

func testPluginWasm() []byte {
	types := [][]byte{
		funcType([]byte{wasmI64}, []byte{wasmI64}), // 0 alloc, var_get
		funcType([]byte{wasmI64, wasmI32}, nil),    // 1 store_u8
		funcType([]byte{wasmI64}, nil),             // 2 output_set
		funcType([]byte{wasmI32}, nil),             // 3 print_char
		funcType(nil, []byte{wasmI64}),             // 4 input_length
		funcType(nil, []byte{wasmI32}),             // 5 exports
		funcType(nil, nil),                         // 6 _initialize
		funcType([]byte{wasmI64, wasmI64}, nil),    // 7 var_set
	}

	imports := [][]byte{
		importFunc("extism:host/env", "alloc", 0),
		importFunc("extism:host/env", "store_u8", 1),
		importFunc("extism:host/env", "output_set", 2),
		importFunc("spectest", "print_char", 3),
		importFunc("extism:host/env", "input_length", 4),
		importFunc("extism:host/env", "var_get", 0),
		importFunc("extism:host/env", "var_set", 7),
	}

	storeByte := func(delta int64, c byte) []byte {
		return cat(
			[]byte{opLocalGet, 0},
			i64Const(delta), []byte{opI64Add},
			i32Const(int32(c)),
			callFn(fnStoreU8),
		)
	}
	printChar := func(c byte) []byte {
		return cat(i32Const(int32(c)), callFn(fnPrintChar))
	}
	// writes "n" into a new buffer and leaves its offset in local 0
	keyN := cat(
		i64Const(1), callFn(fnAlloc), []byte{opLocalSet, 0},
		storeByte(0, 'n'),
	)

	funcs := []struct {
		name   string
		typ    uint64
		locals []byte
		code   []byte
	}{
		{"greet", 5, localsI64(1), cat(
			i64Const(2), callFn(fnAlloc), []byte{opLocalSet, 0},
			storeByte(0, 'h'),
			storeByte(1, 'i'),
			[]byte{opLocalGet, 0}, callFn(fnOutputSet),
			printChar('o'), printChar('k'), printChar('\n'),
			i32Const(0),
		)},
		{"input_len", 5, localsI64(0), cat(
			callFn(fnInputLength), []byte{opI32Wrap},
		)},
		{"count", 5, localsI64(1), cat(
			keyN,
			[]byte{opLocalGet, 0},
			[]byte{opLocalGet, 0}, callFn(fnVarGet),
			i64Const(1), []byte{opI64Add},
			callFn(fnVarSet),
			[]byte{opLocalGet, 0}, callFn(fnVarGet), []byte{opI32Wrap},
		)},
		{"exhaust", 5, localsI64(0), cat(
			i64Const(1<<40), callFn(fnAlloc), []byte{opDrop},
			i32Const(0),
		)},
		{"spin", 5, localsI64(0), cat(
			[]byte{opLoop, opBlockVoid, opBr, 0, opEnd},
			i32Const(0),
		)},
		{"fail", 5, localsI64(0), i32Const(1)},
		{"_initialize", 6, localsI64(0), cat(printChar('!'), printChar('\n'))},
	}

	var funcSec, exportSec, codeSec [][]byte
	for i, f := range funcs {
		funcSec = append(funcSec, uleb(f.typ))
		exportSec = append(exportSec, cat(wasmName(f.name), []byte{0x00}, uleb(uint64(fnImportCount+i))))
		body := cat(f.locals, f.code, []byte{opEnd})
		codeSec = append(codeSec, cat(uleb(uint64(len(body))), body))
	}

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		wasmSection(1, wasmVec(types)),
		wasmSection(2, wasmVec(imports)),
		wasmSection(3, wasmVec(funcSec)),
		wasmSection(7, wasmVec(exportSec)),
		wasmSection(10, wasmVec(codeSec)),
	)
}

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint64(len(params))), params, uleb(uint64(len(results))), results)
}

func importFunc(module, field string, typ uint64) []byte {
	return cat(wasmName(module), wasmName(field), []byte{0x00}, uleb(typ))
}

func localsI64(n uint64) []byte {
	if n == 0 {
		return []byte{0x00}
	}
	return cat([]byte{0x01}, uleb(n), []byte{wasmI64})
}

func callFn(idx uint64) []byte { return cat([]byte{opCall}, uleb(idx)) }
func i32Const(v int32) []byte { return cat([]byte{opI32Const}, sleb(int64(v))) }
func i64Const(v int64) []byte { return cat([]byte{opI64Const}, sleb(v)) }
func wasmName(s string) []byte { return cat(uleb(uint64(len(s))), []byte(s)) }
func wasmVec(items [][]byte) []byte { return cat(uleb(uint64(len(items))), cat(items...)) }

func wasmSection(id byte, body []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(body))), body)
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
