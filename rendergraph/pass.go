package rendergraph

import (
	"fmt"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// Pass is a unit of GPU work. Implementations are usually pointers to
// structs that cache their programs and framebuffers across frames.
type Pass interface {
	// Name identifies the pass. Names are unique within one build.
	Name() string

	// Setup declares every resource the pass reads and writes.
	// It must not touch the device.
	Setup(b *PassBuilder) error

	// Execute records the pass's commands. It may be called concurrently
	// with the Execute of passes it does not depend on.
	Execute(ctx *ExecContext) error
}

// LazyIniter is implemented by passes that create backend objects lazily.
// The builder calls LazyInit before every Execute; implementations keep
// two independent levels of state (see LazyState): one-time assets, and
// attachments that must be rebuilt whenever a target is reallocated.
// A LazyInit error degrades the pass for the frame.
type LazyIniter interface {
	LazyInit(ctx *ExecContext) error
}

// Releaser is implemented by passes that own backend objects.
type Releaser interface {
	Release(dev gpucore.Device)
}

// PassState is the per-frame lifecycle state of a pass.
type PassState int

const (
	// StateUninitialized means LazyInit has never succeeded.
	StateUninitialized PassState = iota

	// StateReady means the pass's one-time objects exist.
	StateReady

	// StateSetup means Setup ran for the current build.
	StateSetup

	// StateResolved means the pass's handles resolved to storage.
	StateResolved

	// StateExecuted means the pass recorded its commands this frame.
	StateExecuted

	// StateDegraded means the pass was skipped this frame after a backend failure.
	StateDegraded
)

// String returns the state name.
func (s PassState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReady:
		return "Ready"
	case StateSetup:
		return "Setup"
	case StateResolved:
		return "Resolved"
	case StateExecuted:
		return "Executed"
	case StateDegraded:
		return "Degraded"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// View holds the per-view parameters shared by every pass in a frame.
type View struct {
	// Width and Height are the full-resolution viewport size in pixels.
	Width, Height uint32

	// Samples is the MSAA sample count; 0 and 1 both mean single-sampled.
	Samples uint32

	// Uniforms is the shared per-view uniform buffer.
	Uniforms gpucore.BufferID
}

// Multisampled reports whether the view renders with MSAA.
func (v View) Multisampled() bool {
	return v.Samples > 1
}

// SampleCount returns the effective sample count (at least 1).
func (v View) SampleCount() uint32 {
	return max(v.Samples, 1)
}
