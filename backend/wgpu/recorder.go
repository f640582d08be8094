package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

var errNoPass = errors.New("wgpu: draw outside a render pass")

// constantsAlign is the size granularity of constant blocks.
const constantsAlign = 16

// commandBuffer is a finished encoder plus the transient objects its
// commands reference. Submit hands the objects to the retire list.
type commandBuffer struct {
	dev        *Device
	label      string
	cmd        hal.CommandBuffer
	bindGroups []hal.BindGroup
	buffers    []hal.Buffer
}

func (c *commandBuffer) Label() string { return c.label }

// Discard frees a finished command buffer that will not be submitted.
func (c *commandBuffer) Discard() {
	if c.cmd == nil {
		return
	}
	c.dev.destroyBatch(retiredBatch{
		cmds:       []hal.CommandBuffer{c.cmd},
		bindGroups: c.bindGroups,
		buffers:    c.buffers,
	})
	c.cmd, c.bindGroups, c.buffers = nil, nil, nil
}

// recorder encodes one pass. Like the HAL encoders it wraps, it keeps the
// first error and reports it from Finish.
type recorder struct {
	dev     *Device
	label   string
	encoder hal.CommandEncoder
	rp      hal.RenderPassEncoder
	fb      *framebuffer

	prog      *program
	raster    gpucore.RasterState
	textures  map[uint32]*texture
	buffers   map[uint32]*buffer
	constants []byte

	bindGroups []hal.BindGroup
	transient  []hal.Buffer
	finished   bool
	err        error
}

// NewRecorder implements gpucore.Device.
func (d *Device) NewRecorder(label string) (gpucore.CommandRecorder, error) {
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder %s: %w", label, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding %s: %w", label, err)
	}
	return &recorder{
		dev:      d,
		label:    label,
		encoder:  encoder,
		textures: make(map[uint32]*texture),
		buffers:  make(map[uint32]*buffer),
	}, nil
}

func (r *recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *recorder) clearBindings() {
	clear(r.textures)
	clear(r.buffers)
	r.constants = nil
}

func (r *recorder) BeginPass(id gpucore.FramebufferID, cv *gpucore.ClearValue) error {
	if r.rp != nil {
		return fmt.Errorf("wgpu: %s: nested render pass", r.label)
	}
	r.dev.mu.Lock()
	fb, ok := r.dev.framebuffers[id]
	r.dev.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: framebuffer %d", ErrUnknownResource, id)
	}

	load := gputypes.LoadOpLoad
	var clearColor gputypes.Color
	var clearDepth float32 = 1
	if cv != nil {
		load = gputypes.LoadOpClear
		clearColor, clearDepth = cv.Color, cv.Depth
	}

	desc := &hal.RenderPassDescriptor{Label: r.label}
	for _, t := range fb.colors {
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       t.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearColor,
		})
	}
	if fb.depth != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            fb.depth.view,
			DepthLoadOp:     load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: clearDepth,
		}
		if fb.depth.desc.Format == gputypes.TextureFormatDepth24PlusStencil8 {
			ds.StencilLoadOp = load
			ds.StencilStoreOp = gputypes.StoreOpStore
		}
		desc.DepthStencilAttachment = ds
	}

	r.rp = r.encoder.BeginRenderPass(desc)
	r.fb = fb
	r.clearBindings()

	w, h := fb.size()
	r.rp.SetViewport(0, 0, float32(w), float32(h), 0, 1)
	return nil
}

// size returns the extent of the first attachment.
func (f *framebuffer) size() (w, h uint32) {
	if len(f.colors) > 0 {
		return f.colors[0].desc.Width, f.colors[0].desc.Height
	}
	return f.depth.desc.Width, f.depth.desc.Height
}

func (r *recorder) EndPass() error {
	if r.rp == nil {
		return fmt.Errorf("wgpu: %s: EndPass without BeginPass", r.label)
	}
	r.rp.End()
	r.rp = nil
	r.fb = nil
	r.clearBindings()
	return nil
}

func (r *recorder) SetProgram(id gpucore.ProgramID) {
	r.dev.mu.Lock()
	p, ok := r.dev.programs[id]
	r.dev.mu.Unlock()
	if !ok {
		r.fail(fmt.Errorf("%w: program %d", ErrUnknownResource, id))
		r.prog = nil
		return
	}
	r.prog = p
}

func (r *recorder) SetViewport(v gpucore.Viewport) {
	if r.rp == nil {
		return
	}
	r.rp.SetViewport(float32(v.X), float32(v.Y), float32(v.Width), float32(v.Height), 0, 1)
}

func (r *recorder) SetRasterState(s gpucore.RasterState) { r.raster = s }

func (r *recorder) BindTexture(slot uint32, id gpucore.TextureID) {
	r.dev.mu.Lock()
	t, ok := r.dev.textures[id]
	r.dev.mu.Unlock()
	if !ok {
		r.fail(fmt.Errorf("%w: texture %d at slot %d", ErrUnknownResource, id, slot))
		return
	}
	delete(r.buffers, slot)
	r.textures[slot] = t
}

func (r *recorder) BindBuffer(slot uint32, id gpucore.BufferID) {
	r.dev.mu.Lock()
	b, ok := r.dev.buffers[id]
	r.dev.mu.Unlock()
	if !ok {
		r.fail(fmt.Errorf("%w: buffer %d at slot %d", ErrUnknownResource, id, slot))
		return
	}
	delete(r.textures, slot)
	r.buffers[slot] = b
}

func (r *recorder) SetConstants(data []byte) {
	r.constants = append(r.constants[:0], data...)
}

// usesConstants reports whether the constant block occupies its slot.
func (r *recorder) usesConstants() bool {
	if len(r.constants) == 0 {
		return false
	}
	_, tex := r.textures[gpucore.ConstantsSlot]
	_, buf := r.buffers[gpucore.ConstantsSlot]
	return !tex && !buf
}

// kinds describes the current bindings, sorted by slot.
func (r *recorder) kinds() []bindKind {
	kinds := make([]bindKind, 0, len(r.textures)+len(r.buffers)+1)
	for slot, t := range r.textures {
		kinds = append(kinds, bindKind{
			slot:    slot,
			texture: true,
			sample:  sampleType(t.desc.Format),
			msaa:    t.desc.SampleCount > 1,
		})
	}
	for slot, b := range r.buffers {
		kinds = append(kinds, bindKind{slot: slot, buffer: bufferType(b.desc.Usage, r.prog.compute)})
	}
	if r.usesConstants() {
		kinds = append(kinds, bindKind{slot: gpucore.ConstantsSlot, buffer: gputypes.BufferBindingTypeUniform})
	}
	sortKinds(kinds)
	return kinds
}

// bindGroup creates the transient bind group for the current bindings.
func (r *recorder) bindGroup(pl *pipeline, kinds []bindKind) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, 0, len(kinds))
	for _, k := range kinds {
		switch {
		case k.texture:
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: k.slot,
				Resource: gputypes.TextureViewBinding{
					TextureView: uintptr(r.textures[k.slot].view.NativeHandle()),
				},
			})
		case k.slot == gpucore.ConstantsSlot && r.usesConstants():
			cb, size, err := r.constantBuffer()
			if err != nil {
				return nil, err
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  k.slot,
				Resource: gputypes.BufferBinding{Buffer: cb.NativeHandle(), Offset: 0, Size: size},
			})
		default:
			b := r.buffers[k.slot]
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  k.slot,
				Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.desc.Size},
			})
		}
	}
	bg, err := r.dev.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   r.label + "_bg",
		Layout:  pl.bgl,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: create bind group: %w", r.label, err)
	}
	r.bindGroups = append(r.bindGroups, bg)
	return bg, nil
}

// constantBuffer uploads the constant block into a buffer retired with
// this command buffer.
func (r *recorder) constantBuffer() (hal.Buffer, uint64, error) {
	size := uint64(len(r.constants)+constantsAlign-1) &^ (constantsAlign - 1)
	buf, err := r.dev.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: r.label + "_constants",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("wgpu: %s: create constants buffer: %w", r.label, err)
	}
	data := make([]byte, size)
	copy(data, r.constants)
	r.dev.queue.WriteBuffer(buf, 0, data)
	r.transient = append(r.transient, buf)
	return buf, size, nil
}

// prepare resolves the pipeline and bind group for the next command.
func (r *recorder) prepare(target targetKey) (*pipeline, hal.BindGroup, bool) {
	kinds := r.kinds()
	key := pipelineKey{target: target, raster: r.raster, layout: signature(kinds)}
	if r.prog.compute {
		key.raster = gpucore.RasterState{}
	}
	pl, err := r.dev.pipelineFor(r.prog, key, kinds)
	if err != nil {
		r.fail(err)
		return nil, nil, false
	}
	bg, err := r.bindGroup(pl, kinds)
	if err != nil {
		r.fail(err)
		return nil, nil, false
	}
	return pl, bg, true
}

func (r *recorder) Draw(vertexCount, instanceCount uint32) {
	switch {
	case r.rp == nil:
		r.fail(errNoPass)
		return
	case r.prog == nil:
		r.fail(fmt.Errorf("wgpu: %s: draw without program", r.label))
		return
	case r.prog.compute:
		r.fail(fmt.Errorf("wgpu: %s: draw with compute program %s", r.label, r.prog.label))
		return
	}
	target := targetKey{colors: len(r.fb.colors), samples: r.fb.samples()}
	if target.colors > 0 {
		target.color = r.fb.colors[0].desc.Format
	}
	if r.fb.depth != nil {
		target.depth = r.fb.depth.desc.Format
	}
	pl, bg, ok := r.prepare(target)
	if !ok {
		return
	}
	r.rp.SetPipeline(pl.render)
	r.rp.SetBindGroup(0, bg, nil)
	r.rp.Draw(vertexCount, instanceCount, 0, 0)
}

func (r *recorder) Dispatch(x, y, z uint32) {
	switch {
	case r.rp != nil:
		r.fail(fmt.Errorf("wgpu: %s: dispatch inside a render pass", r.label))
		return
	case r.prog == nil:
		r.fail(fmt.Errorf("wgpu: %s: dispatch without program", r.label))
		return
	case !r.prog.compute:
		r.fail(fmt.Errorf("wgpu: %s: dispatch with render program %s", r.label, r.prog.label))
		return
	}
	pl, bg, ok := r.prepare(targetKey{})
	if !ok {
		return
	}
	pass := r.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: r.label})
	pass.SetPipeline(pl.comp)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(x, y, z)
	pass.End()
}

// Discard drops an unfinished recording and its transient objects. It is
// a no-op after Finish.
func (r *recorder) Discard() {
	if r.finished {
		return
	}
	r.discard()
}

func (r *recorder) discard() {
	r.finished = true
	if r.rp != nil {
		r.rp.End()
		r.rp = nil
	}
	r.encoder.DiscardEncoding()
	r.destroyTransient()
}

func (r *recorder) destroyTransient() {
	for _, bg := range r.bindGroups {
		r.dev.dev.DestroyBindGroup(bg)
	}
	for _, b := range r.transient {
		r.dev.dev.DestroyBuffer(b)
	}
	r.bindGroups, r.transient = nil, nil
}

func (r *recorder) Finish() (gpucore.CommandBuffer, error) {
	if r.rp != nil {
		r.rp.End()
		r.rp = nil
		r.fail(fmt.Errorf("wgpu: %s: Finish inside a render pass", r.label))
	}
	if r.err != nil {
		if !r.finished {
			r.discard()
		}
		return nil, r.err
	}
	if r.finished {
		return nil, fmt.Errorf("wgpu: %s: recording already finished", r.label)
	}
	r.finished = true
	cmd, err := r.encoder.EndEncoding()
	if err != nil {
		r.destroyTransient()
		return nil, fmt.Errorf("wgpu: %s: end encoding: %w", r.label, err)
	}
	return &commandBuffer{
		dev:        r.dev,
		label:      r.label,
		cmd:        cmd,
		bindGroups: r.bindGroups,
		buffers:    r.transient,
	}, nil
}
