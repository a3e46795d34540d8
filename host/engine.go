package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Engine wraps the process-wide wazero runtime: the shared compilation
// engine behind every module template. Exactly one Engine exists per
// initialized context; templates and instantiations borrow it read-only,
// and it outlives all of them.
type Engine struct {
	rt wazero.Runtime
}

// NewEngine creates the runtime and instantiates WASI so modules built
// against wasi_snapshot_preview1 link cleanly.
func NewEngine(ctx context.Context) (*Engine, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	return &Engine{rt: rt}, nil
}

// Runtime exposes the underlying runtime for linking and instantiation.
func (e *Engine) Runtime() wazero.Runtime {
	return e.rt
}

// Compile turns raw bytecode into a reusable compiled module.
func (e *Engine) Compile(ctx context.Context, bytecode []byte) (wazero.CompiledModule, error) {
	return e.rt.CompileModule(ctx, bytecode)
}

// Close releases the runtime and everything instantiated from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.rt.Close(ctx)
}
