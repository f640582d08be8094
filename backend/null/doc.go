// Package null implements a headless in-memory graphics backend.
//
// Every buffer is real host memory, so staging maps, device copies and
// uniform writes can be inspected byte for byte. Fences are scriptable and
// every call that matters to frame pacing is counted and logged, which makes
// the device the test double for the render graph and the streaming buffers.
//
// The device also implements [gpucore.BindlessDevice] so both texture
// reference paths of the scene records can be exercised.
//
// Importing the package registers it as the "null" backend.
package null
