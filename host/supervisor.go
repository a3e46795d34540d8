package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/caffeineduck/moru/hostfunc"
	"github.com/caffeineduck/moru/messaging"
)

// entrypoint is the exported symbol every module must provide: no
// parameters, no results.
const entrypoint = "start"

// ModuleResult is the outcome of one completed execution, collected by
// ReapFinished. A nil Trap means the entry point returned normally; a
// non-nil Trap is the distinguished fault value for an abnormal
// termination.
type ModuleResult struct {
	Module string
	Trap   error
}

// moduleRuntime exists only while a module is active: the in-flight
// execution plus the optional messaging companion.
type moduleRuntime struct {
	exec *execTask
	loop *loopInfo
}

// loopInfo tracks a companion messaging event loop. It is only ever
// constructed around a successfully established connection.
type loopInfo struct {
	conn *messaging.Conn
	stop chan<- struct{}
	done <-chan error
}

// execTask is the handle of one blocking execution. trap and fault are
// written by the execution goroutine strictly before finished is closed.
type execTask struct {
	finished chan struct{}
	trap     error
	fault    error
}

func (t *execTask) isFinished() bool {
	select {
	case <-t.finished:
		return true
	default:
		return false
	}
}

// startExec invokes the entry point on its own goroutine. The execution
// runs to completion or fault; there is no cancellation. A trap becomes
// the task's result; a panic in the host machinery is kept separate as an
// infrastructure fault.
func startExec(ctx context.Context, entry api.Function, mod api.Module) *execTask {
	t := &execTask{finished: make(chan struct{})}
	go func() {
		defer close(t.finished)
		defer mod.Close(context.Background())
		defer func() {
			if r := recover(); r != nil {
				t.fault = fmt.Errorf("execution panicked: %v", r)
			}
		}()
		_, err := entry.Call(ctx)
		t.trap = err
	}()
	return t
}

// StartAll starts every currently idle module; already-running modules are
// left untouched. For each idle module it establishes the messaging
// connection if configured (degrading to no messaging on failure), spawns
// the companion event loop, instantiates fresh isolated state from the
// template, resolves the start export, and records the new runtime.
//
// A module whose start export cannot be resolved, or whose signature is
// not nullary, contributes a per-module error to the joined return value
// and is never recorded active; its siblings still start.
func (c *Context) StartAll(ctx context.Context) error {
	var errs []error

	for name, md := range c.modules {
		if md.runtime != nil {
			continue
		}

		tmpl := &md.template
		logger := c.logger.With("module", name)

		var conn *messaging.Conn
		var loop *loopInfo
		if mcfg := tmpl.runtime.Messaging; mcfg != nil {
			cfg := *mcfg
			if cfg.Name == "" {
				cfg.Name = name
			}
			cn, err := messaging.Connect(&cfg, logger)
			if err != nil {
				logger.Error("messaging connect failed, starting without messaging",
					"url", cfg.URL, "error", err)
			} else {
				conn = cn
				stop := make(chan struct{}, 1)
				done := make(chan error, 1)
				go func() { done <- cn.Run(stop) }()
				loop = &loopInfo{conn: cn, stop: stop, done: done}
			}
		}

		// The execution outlives this call and cannot be cancelled; its
		// context exists only to carry the per-instance state into the
		// capability host functions.
		state := &hostfunc.State{Module: name, Messaging: conn, Logger: logger}
		execCtx := hostfunc.WithState(context.Background(), state)

		instConfig := wazero.NewModuleConfig().WithName("").WithStartFunctions()
		mod, err := tmpl.engine.Runtime().InstantiateModule(ctx, tmpl.compiled, instConfig)
		if err != nil {
			c.stopLoop(name, loop)
			errs = append(errs, fmt.Errorf("instantiate module %q: %w", name, err))
			continue
		}

		entry := mod.ExportedFunction(entrypoint)
		if entry == nil {
			mod.Close(execCtx)
			c.stopLoop(name, loop)
			errs = append(errs, fmt.Errorf("module %q does not export %q", name, entrypoint))
			continue
		}
		if def := entry.Definition(); len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
			mod.Close(execCtx)
			c.stopLoop(name, loop)
			errs = append(errs, fmt.Errorf("module %q exports %q with a non-nullary signature", name, entrypoint))
			continue
		}

		md.runtime = &moduleRuntime{exec: startExec(execCtx, entry, mod), loop: loop}
		logger.Info("module started", "messaging", conn != nil)
	}

	return errors.Join(errs...)
}

// ReapFinished collects every module whose execution has completed: the
// runtime record is cleared, the companion (if any) is signalled to stop
// and awaited, the connection closed, and the execution's result appended
// to the returned list. Still-running modules are skipped.
//
// Companion teardown is execution-finish-triggered: a messaging loop is
// never stopped while its execution is in flight. An infrastructure fault
// while awaiting a task, or ctx expiring mid-teardown, aborts the
// remainder of the pass.
func (c *Context) ReapFinished(ctx context.Context) ([]ModuleResult, error) {
	var results []ModuleResult

	for name, md := range c.modules {
		rt := md.runtime
		if rt == nil || !rt.exec.isFinished() {
			continue
		}
		md.runtime = nil

		if rt.loop != nil {
			select {
			case rt.loop.stop <- struct{}{}:
			case <-ctx.Done():
				return results, fmt.Errorf("stop messaging loop for %q: %w", name, ctx.Err())
			}
			select {
			case err := <-rt.loop.done:
				if err != nil {
					c.logger.Error("messaging loop error", "module", name, "error", err)
				}
			case <-ctx.Done():
				return results, fmt.Errorf("await messaging loop for %q: %w", name, ctx.Err())
			}
			rt.loop.conn.Close()
		}

		if rt.exec.fault != nil {
			return results, fmt.Errorf("await execution for %q: %w", name, rt.exec.fault)
		}
		results = append(results, ModuleResult{Module: name, Trap: rt.exec.trap})
	}

	return results, nil
}

// stopLoop tears down a companion whose start attempt never became a
// runtime, or one orphaned at Close. The stop send always precedes the
// await, and it never blocks: the stop channel holds one slot and each
// loop is signalled at most once, here or in ReapFinished.
func (c *Context) stopLoop(name string, loop *loopInfo) {
	if loop == nil {
		return
	}
	loop.stop <- struct{}{}
	if err := <-loop.done; err != nil {
		c.logger.Error("messaging loop error", "module", name, "error", err)
	}
	loop.conn.Close()
}
