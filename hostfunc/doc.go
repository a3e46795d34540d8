// Package hostfunc binds host capabilities to sandboxed WASM modules.
//
// Capabilities are grouped into named host modules ("messaging", "debug")
// built by a [Linker] and instantiated once against the shared engine
// runtime. Each group is registered with a projection that locates the
// relevant part of the per-instance [State]: messaging operations act on
// the instance's messaging connection, debug operations on the whole state.
//
// The per-instance state travels with the execution's context.Context (see
// [WithState]); host functions recover it on every call, so one set of
// linked capabilities serves any number of concurrently running instances
// with fully isolated state.
//
// # Capability surface
//
// Module "messaging" (no-ops with an errno when the instance runs without
// messaging):
//
//	publish(subject_ptr, subject_len, data_ptr, data_len i32) -> errno i32
//	subscribe(subject_ptr, subject_len i32) -> errno i32
//	next(buf_ptr, buf_cap i32) -> written i32   // 0 when nothing pending
//
// Module "debug":
//
//	log(level, msg_ptr, msg_len i32)            // 0..3 = debug..error
package hostfunc
