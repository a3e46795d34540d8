package hostfunc

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// Linker collects named host functions grouped into host modules and
// instantiates them against a runtime. Registration order is preserved so
// linking is deterministic; registering the same name twice within a group
// is an error, surfaced before anything touches the runtime.
type Linker struct {
	groups []*group
}

type group struct {
	module string
	names  []string
	funcs  map[string]any
}

// NewLinker returns an empty Linker.
func NewLinker() *Linker {
	return &Linker{}
}

// Register adds fn under module/name. fn must be a Go function acceptable
// to wazero's function builder (context.Context and api.Module leading
// parameters, i32/i64/f32/f64-mappable values otherwise).
func (l *Linker) Register(module, name string, fn any) error {
	if fn == nil {
		return fmt.Errorf("hostfunc: nil function for %s.%s", module, name)
	}

	g := l.group(module)
	if _, dup := g.funcs[name]; dup {
		return fmt.Errorf("hostfunc: duplicate function %s.%s", module, name)
	}
	g.names = append(g.names, name)
	g.funcs[name] = fn
	return nil
}

func (l *Linker) group(module string) *group {
	for _, g := range l.groups {
		if g.module == module {
			return g
		}
	}
	g := &group{module: module, funcs: make(map[string]any)}
	l.groups = append(l.groups, g)
	return g
}

// Instantiate builds every registered group as a host module in rt. A
// malformed function signature surfaces here as a link error.
func (l *Linker) Instantiate(ctx context.Context, rt wazero.Runtime) error {
	for _, g := range l.groups {
		builder := rt.NewHostModuleBuilder(g.module)
		for _, name := range g.names {
			builder = builder.NewFunctionBuilder().
				WithFunc(g.funcs[name]).
				Export(name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return fmt.Errorf("link host module %q: %w", g.module, err)
		}
	}
	return nil
}
