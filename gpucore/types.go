package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each backend maintains a mapping
// between IDs and the actual API objects.

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// ProgramID is an opaque handle to a linked shader program (pipeline).
type ProgramID uint64

// FramebufferID is an opaque handle to a set of render attachments.
type FramebufferID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// ConstantsSlot is the binding slot at which backends expose the block set
// by CommandRecorder.SetConstants, as a uniform buffer.
const ConstantsSlot = 3

// Fence is an opaque token signaled when previously submitted GPU work
// completes. The zero Fence is "no fence" and is always signaled.
type Fence uint64

// NoFence is the zero Fence.
const NoFence Fence = 0

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	// Label is a debug label for the texture.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width, Height uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// SampleCount is the number of samples per texel (1 for non-MSAA).
	SampleCount uint32

	// Usage specifies how the texture will be used.
	Usage gputypes.TextureUsage

	// Filter is the sampling filter used when the texture is bound for reading.
	Filter gputypes.FilterMode

	// Wrap is the address mode used when the texture is bound for reading.
	Wrap gputypes.AddressMode
}

// String returns a compact description used in labels and logs.
func (d TextureDesc) String() string {
	return fmt.Sprintf("%dx%d %s x%d", d.Width, d.Height, d.Format, d.SampleCount)
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is a debug label for the buffer.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage

	// HostVisible marks a CPU-writable staging buffer that can be mapped.
	HostVisible bool
}

// ProgramDesc describes a shader program.
// Either the WGSL sources or the SPIR-V binaries (or both) are set.
type ProgramDesc struct {
	// Label is a debug label, normally "name[variant]".
	Label string

	// VertexWGSL and FragmentWGSL hold the WGSL sources.
	// A compute program sets only FragmentWGSL/FragmentSPIRV and Compute.
	VertexWGSL, FragmentWGSL string

	// VertexSPIRV and FragmentSPIRV hold SPIR-V words produced by the shader compiler.
	VertexSPIRV, FragmentSPIRV []uint32

	// Compute marks a compute program.
	Compute bool
}

// RasterState is the fixed-function state applied before draws.
type RasterState struct {
	// DepthTest enables depth testing.
	DepthTest bool

	// DepthWrite enables depth writes.
	DepthWrite bool

	// CullBack enables back-face culling.
	CullBack bool

	// Blend enables alpha blending on color attachments.
	Blend bool
}

// ClearValue describes how attachments are cleared at the start of a pass.
// A nil *ClearValue loads existing contents.
type ClearValue struct {
	Color gputypes.Color
	Depth float32
}

// Viewport is a rectangular render area in pixels.
type Viewport struct {
	X, Y          uint32
	Width, Height uint32
}
