// Package bench measures what a debugging session costs: compiling a plugin,
// starting sessions, calling exports and driving the import table.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/pdksim/executor"
	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/caffeineduck/pdksim/memory"
)

// --- Session start ---

func BenchmarkSession_ColdStart(b *testing.B) {
	plugin := executor.TestPlugin()
	for i := 0; i < b.N; i++ {
		exec, _ := executor.New()
		session, _ := exec.NewSession(context.Background(), plugin)
		session.Close()
		exec.Close()
	}
}

func BenchmarkSession_WarmStart(b *testing.B) {
	plugin := executor.TestPlugin()
	exec, _ := executor.New(executor.WithPrecompile(plugin))
	defer exec.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session, _ := exec.NewSession(context.Background(), plugin)
		session.Close()
	}
}

// --- Calls into a live session ---

func BenchmarkCall_Greet(b *testing.B) {
	benchmarkCall(b, "greet", nil)
}

func BenchmarkCall_InputLength(b *testing.B) {
	benchmarkCall(b, "input_len", make([]byte, 4096))
}

func BenchmarkCall_Vars(b *testing.B) {
	benchmarkCall(b, "count", nil)
}

func benchmarkCall(b *testing.B, fn string, input []byte) {
	exec, _ := executor.New()
	defer exec.Close()
	session, err := exec.NewSession(context.Background(), executor.TestPlugin(),
		executor.WithSessionArenaCapacity(1<<26))
	if err != nil {
		b.Fatal(err)
	}
	defer session.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session.Call(context.Background(), fn, input)
	}
}

// --- Import table without a guest ---

func BenchmarkImports_AllocAndFill(b *testing.B) {
	env := hostfunc.NewEnv(hostfunc.WithArenaCapacity(1 << 26))
	imports := env.Imports()
	ctx := context.Background()
	payload := []byte("hello, world")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, _ := imports.Call(ctx, hostfunc.ModuleEnv, "alloc", uint64(len(payload)))
		for j, c := range payload {
			imports.Call(ctx, hostfunc.ModuleEnv, "store_u8", res[0]+uint64(j), uint64(c))
		}
	}
}

func BenchmarkArena_Lookup(b *testing.B) {
	arena := memory.NewArena(1 << 20)
	var last memory.Offset
	for i := 0; i < 1000; i++ {
		last, _ = arena.Allocate(16)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		arena.LoadU64(last + 8)
	}
}

// =============================================================================
// SESSION COST SUMMARY - Human readable output
// =============================================================================

func TestSessionCost(t *testing.T) {
	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println()

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}

	runs := 5
	plugin := executor.TestPlugin()

	exec, err := executor.New()
	if err != nil {
		t.Fatal(err)
	}
	defer exec.Close()

	compile := measure(1, func() {
		session, _ := exec.NewSession(context.Background(), plugin)
		session.Close()
	})
	start := measure(runs, func() {
		session, _ := exec.NewSession(context.Background(), plugin)
		session.Close()
	})

	session, err := exec.NewSession(context.Background(), plugin)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	call := measure(runs, func() {
		session.Call(context.Background(), "greet", nil)
	})

	fmt.Println("┌────────────────────────┬───────────┐")
	fmt.Println("│ Step                   │ Time      │")
	fmt.Println("├────────────────────────┼───────────┤")
	for _, r := range []struct {
		name string
		d    time.Duration
	}{
		{"compile + first start", compile},
		{"session start", start},
		{"call greet", call},
	} {
		fmt.Printf("│ %-22s │ %9s │\n", r.name, formatDuration(r.d))
	}
	fmt.Println("└────────────────────────┴───────────┘")
	fmt.Println()

	t.Log("Benchmark complete - see stdout for results")
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d >= time.Millisecond {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dµs", d.Microseconds())
}

// =============================================================================
// MEMORY BENCHMARK
// =============================================================================

func TestMemoryUsage(t *testing.T) {
	var m runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.Alloc

	exec, _ := executor.New()
	plugin := executor.TestPlugin()

	for i := 0; i < 5; i++ {
		session, err := exec.NewSession(context.Background(), plugin)
		if err != nil {
			t.Fatal(err)
		}
		session.Call(context.Background(), "greet", nil)
		session.Close()
	}

	runtime.ReadMemStats(&m)
	after := m.Alloc

	exec.Close()

	runtime.GC()
	runtime.ReadMemStats(&m)
	afterGC := m.Alloc

	t.Logf("Memory before: %d KB", before/1024)
	t.Logf("Memory after 5 sessions: %d KB", after/1024)
	t.Logf("Memory after GC: %d KB", afterGC/1024)
}

// =============================================================================
// DISK CACHE BENCHMARK (simulates CLI usage)
// =============================================================================

func TestDiskCacheBenefit(t *testing.T) {
	cacheDir, _ := os.MkdirTemp("", "pdksim-bench-cache")
	defer os.RemoveAll(cacheDir)

	plugin := executor.TestPlugin()
	var times []time.Duration

	// Simulate 5 separate CLI invocations (each creates new executor)
	for i := 0; i < 5; i++ {
		start := time.Now()

		exec, err := executor.New(executor.WithDiskCache(cacheDir))
		if err != nil {
			t.Fatal(err)
		}
		if session, err := exec.NewSession(context.Background(), plugin); err == nil {
			session.Call(context.Background(), "greet", nil)
			session.Close()
		}
		exec.Close()

		times = append(times, time.Since(start))
	}

	fmt.Println()
	fmt.Println("=== Disk Cache Benefit (simulated CLI calls) ===")
	for i, d := range times {
		label := "cached"
		if i == 0 {
			label = "compile"
		}
		fmt.Printf("Call %d (%s): %v\n", i+1, label, d)
	}
	fmt.Printf("Speedup: %.1fx faster after first call\n", float64(times[0])/float64(times[1]))
	fmt.Println()

	t.Log("Disk cache test complete")
}
