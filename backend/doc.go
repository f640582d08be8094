// Package backend provides a pluggable graphics backend abstraction.
//
// A backend owns a [gpucore.Device]. The render graph, the streaming buffers
// and the passes only ever see that device, so the same frame can be driven
// by the WebGPU backend on real hardware or by the headless null backend in
// tests and CI.
//
// # Backend Registration
//
// Backends register themselves from init():
//
//	import _ "github.com/SergeyYablokov/occdemo-sub001/backend/null"
//	import _ "github.com/SergeyYablokov/occdemo-sub001/backend/wgpu"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request a
// specific backend by name:
//
//	b := backend.Default()
//	b := backend.Get("null")
//
// Priority order is wgpu, then null.
package backend
