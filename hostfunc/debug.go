package hostfunc

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// DebugModule is the import module name for debug capabilities.
const DebugModule = "debug"

// Log levels accepted by the debug.log capability.
const (
	LogDebug uint32 = 0
	LogInfo  uint32 = 1
	LogWarn  uint32 = 2
	LogError uint32 = 3
)

// AddDebug registers the debug capability group on l. Unlike messaging,
// debug operations are resolved against the whole per-run state, so proj
// is typically the identity.
func AddDebug(l *Linker, proj func(*State) *State) error {
	d := &debugFuncs{proj: proj}
	return l.Register(DebugModule, "log", d.log)
}

type debugFuncs struct {
	proj func(*State) *State
}

func (d *debugFuncs) log(ctx context.Context, mod api.Module, level, msgPtr, msgLen uint32) {
	state := d.proj(StateFrom(ctx))

	msg, ok := readString(mod, msgPtr, msgLen)
	if !ok {
		return
	}

	logger := state.logger()
	switch level {
	case LogDebug:
		logger.Debug(msg)
	case LogWarn:
		logger.Warn(msg)
	case LogError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}
