// Package gpucore defines the graphics-context capability the render graph and
// the streaming buffers depend on.
//
// The core never talks to a graphics API directly. Everything it needs from
// the GPU is expressed through the [Device] and [CommandRecorder] interfaces:
//
//	               +------------------+
//	               |   rendergraph    |
//	               |   streaming      |
//	               +--------+---------+
//	                        | gpucore.Device
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/wgpu   |          |  backend/null   |
//	|  (gogpu/wgpu)   |          |  (in-memory)    |
//	+-----------------+          +-----------------+
//
// # Resource IDs
//
// Resources are referenced by opaque uint64 IDs. Each backend keeps the
// mapping from ID to API object; zero is never a valid ID.
//
// # Fences
//
// A [Fence] is an opaque awaitable token. Backends may implement it with a
// real fence object, a timeline value or a queue submission index; callers
// only insert, poll and wait.
//
// # Bindless
//
// Backends that can hand out GPU-resident texture handles implement
// [BindlessDevice] in addition to [Device]. Callers type-assert for it and
// fall back to texture array indices when it is absent.
package gpucore
