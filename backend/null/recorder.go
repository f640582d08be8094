package null

import (
	"errors"
	"fmt"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

var errNoPass = errors.New("null: draw outside a render pass")

type commandBuffer struct {
	dev        *Device
	label      string
	draws      int
	dispatches int
}

func (c *commandBuffer) Label() string { return c.label }

// Discard drops a recording that will not be submitted.
func (c *commandBuffer) Discard() {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.stats.Discarded++
	c.dev.logLocked("discard", "%s", c.label)
}

// recorder validates command order and counts work. It keeps the first
// error and reports it from Finish, the way real encoders defer validation.
type recorder struct {
	dev     *Device
	label   string
	inPass  bool
	program gpucore.ProgramID
	cb      commandBuffer
	err     error
}

func (r *recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *recorder) BeginPass(fb gpucore.FramebufferID, _ *gpucore.ClearValue) error {
	if r.inPass {
		return fmt.Errorf("null: %s: nested render pass", r.label)
	}
	r.dev.mu.Lock()
	_, ok := r.dev.framebuffers[fb]
	r.dev.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: framebuffer %d", ErrUnknownResource, fb)
	}
	r.inPass = true
	return nil
}

func (r *recorder) EndPass() error {
	if !r.inPass {
		return fmt.Errorf("null: %s: EndPass without BeginPass", r.label)
	}
	r.inPass = false
	return nil
}

func (r *recorder) SetProgram(id gpucore.ProgramID)       { r.program = id }
func (r *recorder) SetViewport(gpucore.Viewport)          {}
func (r *recorder) SetRasterState(gpucore.RasterState)    {}
func (r *recorder) BindTexture(uint32, gpucore.TextureID) {}
func (r *recorder) BindBuffer(uint32, gpucore.BufferID)   {}
func (r *recorder) SetConstants([]byte)                   {}

func (r *recorder) Draw(vertexCount, instanceCount uint32) {
	switch {
	case !r.inPass:
		r.fail(errNoPass)
	case r.program == gpucore.InvalidID:
		r.fail(fmt.Errorf("null: %s: draw without program", r.label))
	default:
		r.cb.draws++
	}
}

func (r *recorder) Dispatch(x, y, z uint32) {
	switch {
	case r.inPass:
		r.fail(fmt.Errorf("null: %s: dispatch inside a render pass", r.label))
	case r.program == gpucore.InvalidID:
		r.fail(fmt.Errorf("null: %s: dispatch without program", r.label))
	default:
		r.cb.dispatches++
	}
}

func (r *recorder) Finish() (gpucore.CommandBuffer, error) {
	if r.inPass {
		r.fail(fmt.Errorf("null: %s: Finish inside a render pass", r.label))
	}
	if r.err != nil {
		return nil, r.err
	}
	cb := r.cb
	cb.dev = r.dev
	cb.label = r.label
	return &cb, nil
}
