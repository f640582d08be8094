package gpucore

import (
	"context"
	"time"
)

// Device is the graphics-context capability.
//
// Implementations must be safe for concurrent use: command recording for
// independent passes happens on a worker pool. Resource creation and
// destruction are only called from the frame-driving goroutine.
type Device interface {
	// Name identifies the backend (e.g. "wgpu", "null").
	Name() string

	// CreateTexture allocates a texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// CreateBuffer allocates a buffer. Contents start zeroed.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// WriteBuffer uploads data through the queue. Used for small uniform updates.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// MapBuffer maps [offset, offset+size) of a host-visible buffer for writing.
	// The returned slice is valid until UnmapBuffer.
	MapBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// UnmapBuffer flushes and unmaps a previously mapped buffer.
	UnmapBuffer(id BufferID) error

	// CopyBuffer records and submits a buffer-to-buffer copy.
	CopyBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset, size uint64) error

	// CreateFramebuffer groups attachments for rendering.
	// depth may be InvalidID.
	CreateFramebuffer(label string, colors []TextureID, depth TextureID) (FramebufferID, error)

	// DestroyFramebuffer releases a framebuffer. Attachments are not destroyed.
	DestroyFramebuffer(id FramebufferID)

	// CreateProgram builds a shader program.
	CreateProgram(desc *ProgramDesc) (ProgramID, error)

	// DestroyProgram releases a program.
	DestroyProgram(id ProgramID)

	// NewRecorder starts recording a command buffer.
	NewRecorder(label string) (CommandRecorder, error)

	// Submit queues finished command buffers in order.
	Submit(cbs ...CommandBuffer) error

	// InsertFence returns a fence that signals once all work submitted so far completes.
	InsertFence() (Fence, error)

	// FenceSignaled polls a fence without blocking.
	FenceSignaled(f Fence) (bool, error)

	// WaitFence blocks until f signals, ctx is done or timeout elapses.
	// It reports whether the fence signaled.
	WaitFence(ctx context.Context, f Fence, timeout time.Duration) (bool, error)

	// Close releases every resource owned by the device.
	Close()
}

// CommandBuffer is a finished, submittable recording. Backends whose
// command buffers hold device objects also implement Discard() for
// recordings that will never be submitted.
type CommandBuffer interface {
	Label() string
}

// CommandRecorder records GPU commands for one pass.
// A recorder is used by a single goroutine. Texture, buffer and constant
// bindings are cleared by BeginPass and EndPass.
type CommandRecorder interface {
	// BeginPass starts rendering into fb. A nil clear loads existing contents.
	BeginPass(fb FramebufferID, clear *ClearValue) error

	// EndPass finishes the current render pass.
	EndPass() error

	// SetProgram binds a program for subsequent draws or dispatches.
	SetProgram(id ProgramID)

	// SetViewport sets the render area.
	SetViewport(v Viewport)

	// SetRasterState applies fixed-function state.
	SetRasterState(s RasterState)

	// BindTexture binds a texture for sampling at slot.
	BindTexture(slot uint32, id TextureID)

	// BindBuffer binds a buffer at slot.
	BindBuffer(slot uint32, id BufferID)

	// SetConstants sets the small per-draw constant block.
	SetConstants(data []byte)

	// Draw issues a non-indexed draw.
	Draw(vertexCount, instanceCount uint32)

	// Dispatch issues a compute dispatch outside any render pass.
	Dispatch(x, y, z uint32)

	// Finish ends recording.
	Finish() (CommandBuffer, error)
}

// BindlessDevice is implemented by backends that expose GPU-resident texture handles.
type BindlessDevice interface {
	Device

	// TextureHandle returns the 64-bit GPU handle of a texture.
	TextureHandle(id TextureID) (uint64, error)

	// MakeResident makes a texture accessible through its handle.
	// Making an already resident texture resident is a no-op.
	MakeResident(id TextureID) error

	// IsResident reports whether the texture is resident.
	IsResident(id TextureID) bool
}
