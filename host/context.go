package host

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/tetratelabs/wazero"

	"github.com/caffeineduck/moru/hostfunc"
	"github.com/caffeineduck/moru/messaging"
)

// Option configures context construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// WithLogger sets the logger used by the supervisors and handed to module
// instances for the debug capability.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// rawModule is a module's bytecode loaded into memory, prior to
// compilation. It exists only inside an UninitializedContext and is
// consumed exactly once by Initialize.
type rawModule struct {
	bytecode []byte
	runtime  RuntimeConfig
}

// moduleTemplate is the immutable result of compiling and
// capability-linking one module. It is instantiated freshly for every run;
// the engine and linker are shared by reference across all templates.
type moduleTemplate struct {
	compiled wazero.CompiledModule
	linker   *hostfunc.Linker
	engine   *Engine
	runtime  RuntimeConfig
}

// moduleData is the per-module unit tracked by an initialized context:
// the template plus the runtime record, nil while the module is idle.
type moduleData struct {
	template moduleTemplate
	runtime  *moduleRuntime
}

// UninitializedContext holds raw modules before compilation. It cannot run
// anything; Initialize consumes it and yields the runnable Context.
type UninitializedContext struct {
	modules map[string]rawModule
	logger  *slog.Logger
}

// Context is the initialized host context. Its supervisor methods
// (StartAll, ReapFinished, Close) mutate the module records and must not
// be called concurrently with each other; read-only inspection (Modules,
// Active) is safe alongside them.
type Context struct {
	engine  *Engine
	modules map[string]*moduleData
	logger  *slog.Logger
}

// NewContext loads every configured module's bytecode into memory. Any
// unreadable file fails the whole construction; there is no partial
// result.
func NewContext(cfg *Config, opts ...Option) (*UninitializedContext, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	modules := make(map[string]rawModule, len(cfg.Modules))
	for name, mc := range cfg.Modules {
		bytecode, err := os.ReadFile(mc.Path)
		if err != nil {
			return nil, fmt.Errorf("read module %q: %w", name, err)
		}
		modules[name] = rawModule{bytecode: bytecode, runtime: mc.Runtime}
	}

	return &UninitializedContext{modules: modules, logger: o.logger}, nil
}

// Initialize consumes the uninitialized context: it constructs the shared
// engine, builds and instantiates the capability linker, and compiles every
// module into its reusable template. Any compile or link failure aborts the
// whole step; no partially initialized context is ever observable. The
// transition is one-directional.
func (u *UninitializedContext) Initialize(ctx context.Context) (*Context, error) {
	engine, err := NewEngine(ctx)
	if err != nil {
		return nil, err
	}

	linker, err := newCapabilityLinker(ctx, engine)
	if err != nil {
		engine.Close(ctx)
		return nil, err
	}

	modules := make(map[string]*moduleData, len(u.modules))
	for name, raw := range u.modules {
		compiled, err := engine.Compile(ctx, raw.bytecode)
		if err != nil {
			engine.Close(ctx)
			return nil, fmt.Errorf("compile module %q: %w", name, err)
		}
		modules[name] = &moduleData{
			template: moduleTemplate{
				compiled: compiled,
				linker:   linker,
				engine:   engine,
				runtime:  raw.runtime,
			},
		}
	}

	u.modules = nil

	return &Context{engine: engine, modules: modules, logger: u.logger}, nil
}

// newCapabilityLinker binds the capability groups and instantiates their
// host modules against the engine: messaging operations are projected to
// the messaging field of the per-instance state, debug operations to the
// whole state.
func newCapabilityLinker(ctx context.Context, engine *Engine) (*hostfunc.Linker, error) {
	linker := hostfunc.NewLinker()

	err := hostfunc.AddMessaging(linker, func(s *hostfunc.State) *messaging.Conn {
		return s.Messaging
	})
	if err != nil {
		return nil, err
	}

	err = hostfunc.AddDebug(linker, func(s *hostfunc.State) *hostfunc.State {
		return s
	})
	if err != nil {
		return nil, err
	}

	if err := linker.Instantiate(ctx, engine.Runtime()); err != nil {
		return nil, err
	}
	return linker, nil
}

// Modules returns the configured module names, sorted.
func (c *Context) Modules() []string {
	return slices.Sorted(maps.Keys(c.modules))
}

// Active returns the names of modules with a live runtime record, sorted.
func (c *Context) Active() []string {
	var names []string
	for name, md := range c.modules {
		if md.runtime != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Close tears down the host at process exit: companions of still-active
// modules are stopped and awaited, their connections closed, then the
// engine is released. In-flight executions are not cancelled and not
// awaited; callers wanting their results should ReapFinished first.
func (c *Context) Close(ctx context.Context) error {
	for name, md := range c.modules {
		rt := md.runtime
		if rt == nil || rt.loop == nil {
			continue
		}
		c.stopLoop(name, rt.loop)
		rt.loop = nil
	}
	return c.engine.Close(ctx)
}
