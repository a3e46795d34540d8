package hostfunc

import (
	"context"
	"log/slog"

	"github.com/caffeineduck/moru/messaging"
)

// State is the isolated per-run state of one module instance. A fresh
// State is created for every execution; nothing in it is shared between
// concurrently running instances.
type State struct {
	// Module is the configured name of the module this instance runs.
	Module string
	// Messaging is the instance's connection, nil when the module runs
	// without the messaging capability (unconfigured or degraded).
	Messaging *messaging.Conn
	// Logger receives debug-capability output and host-side diagnostics.
	Logger *slog.Logger
}

func (s *State) logger() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

type stateKey struct{}

// WithState attaches the per-instance state to the context driving an
// execution. Host functions recover it with StateFrom.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFrom returns the state attached to ctx, or nil.
func StateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}
