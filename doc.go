// Package moru is a host runtime for pre-compiled WebAssembly modules.
//
// # Overview
//
// moru loads the modules named in a TOML config, compiles each one exactly
// once against a shared engine, links a capability surface (messaging and
// debug host functions) into them, and supervises their concurrent
// execution: every module runs with fully isolated per-instance state, may
// carry a companion messaging event loop, and is reaped back to idle once
// its exported start function returns or traps.
//
// # Basic Usage
//
//	cfg, _ := host.LoadConfig("moru.toml")
//	uctx, _ := host.NewContext(cfg)
//	app, _ := uctx.Initialize(ctx)
//	defer app.Close(ctx)
//
//	app.StartAll(ctx)
//	results, _ := app.ReapFinished(ctx)
//
// The two-phase context is deliberate: only an initialized context exposes
// the supervisor operations, so uncompiled modules can never be run.
//
// See the [host], [hostfunc], and [messaging] packages for detailed API
// documentation, and cmd/moru for the supervising daemon.
package moru
