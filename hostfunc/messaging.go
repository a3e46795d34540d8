package hostfunc

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/caffeineduck/moru/messaging"
)

// Errno values returned to sandboxed code by messaging capabilities.
const (
	ErrnoOK          uint32 = 0
	ErrnoNoMessaging uint32 = 1
	ErrnoFailed      uint32 = 2
)

// MessagingModule is the import module name for messaging capabilities.
const MessagingModule = "messaging"

// AddMessaging registers the messaging capability group on l. proj locates
// the instance's messaging connection within the per-run state and must be
// pure; it returns nil for instances running without messaging, in which
// case every operation is a no-op returning ErrnoNoMessaging.
func AddMessaging(l *Linker, proj func(*State) *messaging.Conn) error {
	m := &messagingFuncs{proj: proj}

	for _, f := range []struct {
		name string
		fn   any
	}{
		{"publish", m.publish},
		{"subscribe", m.subscribe},
		{"next", m.next},
	} {
		if err := l.Register(MessagingModule, f.name, f.fn); err != nil {
			return err
		}
	}
	return nil
}

type messagingFuncs struct {
	proj func(*State) *messaging.Conn
}

func (m *messagingFuncs) conn(ctx context.Context) (*State, *messaging.Conn) {
	state := StateFrom(ctx)
	if state == nil {
		return nil, nil
	}
	return state, m.proj(state)
}

func (m *messagingFuncs) publish(ctx context.Context, mod api.Module, subjectPtr, subjectLen, dataPtr, dataLen uint32) uint32 {
	state, conn := m.conn(ctx)
	if conn == nil {
		return ErrnoNoMessaging
	}

	subject, ok := readString(mod, subjectPtr, subjectLen)
	if !ok {
		return ErrnoFailed
	}
	data, ok := mod.Memory().Read(dataPtr, dataLen)
	if !ok {
		return ErrnoFailed
	}

	if err := conn.Publish(subject, data); err != nil {
		state.logger().Error("publish failed", "subject", subject, "error", err)
		return ErrnoFailed
	}
	return ErrnoOK
}

func (m *messagingFuncs) subscribe(ctx context.Context, mod api.Module, subjectPtr, subjectLen uint32) uint32 {
	state, conn := m.conn(ctx)
	if conn == nil {
		return ErrnoNoMessaging
	}

	subject, ok := readString(mod, subjectPtr, subjectLen)
	if !ok {
		return ErrnoFailed
	}

	if err := conn.Subscribe(subject); err != nil {
		state.logger().Error("subscribe failed", "subject", subject, "error", err)
		return ErrnoFailed
	}
	return ErrnoOK
}

// next copies the oldest buffered message payload into the guest buffer
// and returns the number of bytes written, 0 when nothing is pending.
// Payloads longer than the buffer are truncated.
func (m *messagingFuncs) next(ctx context.Context, mod api.Module, bufPtr, bufCap uint32) uint32 {
	state, conn := m.conn(ctx)
	if conn == nil {
		return 0
	}

	msg, ok := conn.Next()
	if !ok {
		return 0
	}

	data := msg.Data
	if uint32(len(data)) > bufCap {
		state.logger().Warn("message truncated",
			"subject", msg.Subject, "size", len(data), "capacity", bufCap)
		data = data[:bufCap]
	}
	if len(data) == 0 {
		return 0
	}
	mem := mod.Memory()
	if mem == nil || !mem.Write(bufPtr, data) {
		return 0
	}
	return uint32(len(data))
}

func readString(mod api.Module, ptr, length uint32) (string, bool) {
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	b, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(b), true
}
