package hostfunc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Func is a host function body. Parameters arrive on the stack and results
// are written back to it, following the wazero api.GoFunction convention.
type Func func(ctx context.Context, stack []uint64)

// Import is one entry of the import table a guest module binds to.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Fn      Func
}

// QualifiedName returns "module.name".
func (i Import) QualifiedName() string {
	return i.Module + "." + i.Name
}

type importKey struct {
	module string
	name   string
}

// Registry is the import table: host functions grouped by module name.
type Registry struct {
	mu    sync.RWMutex
	funcs map[importKey]Import
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[importKey]Import)}
}

func (r *Registry) Register(imp Import) {
	r.mu.Lock()
	r.funcs[importKey{imp.Module, imp.Name}] = imp
	r.mu.Unlock()
}

func (r *Registry) Get(module, name string) (Import, bool) {
	r.mu.RLock()
	imp, ok := r.funcs[importKey{module, name}]
	r.mu.RUnlock()
	return imp, ok
}

// List returns the qualified names of all imports, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for _, imp := range r.funcs {
		names = append(names, imp.QualifiedName())
	}
	sort.Strings(names)
	return names
}

// Modules returns the distinct module names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range r.funcs {
		seen[k.module] = struct{}{}
	}
	mods := make([]string, 0, len(seen))
	for m := range seen {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}

// Module returns the imports of one module sorted by name.
func (r *Registry) Module(module string) []Import {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Import
	for k, imp := range r.funcs {
		if k.module == module {
			out = append(out, imp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes an import directly, without a wasm runtime. A panic raised by
// the host function (the way fatal conditions trap a guest) is returned as an
// error.
func (r *Registry) Call(ctx context.Context, module, name string, args ...uint64) (results []uint64, err error) {
	imp, ok := r.Get(module, name)
	if !ok {
		return nil, fmt.Errorf("unknown import: %s.%s", module, name)
	}
	if len(args) != len(imp.Params) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", imp.QualifiedName(), len(imp.Params), len(args))
	}

	stack := make([]uint64, max(len(imp.Params), len(imp.Results)))
	copy(stack, args)

	defer func() {
		if p := recover(); p != nil {
			results = nil
			if e, ok := p.(error); ok {
				err = fmt.Errorf("%s: %w", imp.QualifiedName(), e)
			} else {
				err = fmt.Errorf("%s: %v", imp.QualifiedName(), p)
			}
		}
	}()

	imp.Fn(ctx, stack)
	return stack[:len(imp.Results)], nil
}
