package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

type texture struct {
	desc gpucore.TextureDesc
	tex  hal.Texture
	view hal.TextureView
}

func (t *texture) destroy(dev hal.Device) {
	if t.view != nil {
		dev.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		dev.DestroyTexture(t.tex)
	}
}

type buffer struct {
	desc gpucore.BufferDesc
	buf  hal.Buffer

	// shadow backs MapBuffer for host-visible buffers.
	shadow       []byte
	mapped       bool
	mapOff, mapN uint64
}

type framebuffer struct {
	label  string
	colors []*texture
	depth  *texture
}

// samples returns the sample count shared by the attachments.
func (f *framebuffer) samples() uint32 {
	if len(f.colors) > 0 {
		return max(f.colors[0].desc.SampleCount, 1)
	}
	if f.depth != nil {
		return max(f.depth.desc.SampleCount, 1)
	}
	return 1
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth16Unorm:
		return true
	}
	return false
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture %q has zero size", desc.Label)
	}
	samples := max(desc.SampleCount, 1)
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create texture %s: %w", desc.Label, err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("wgpu: create view %s: %w", desc.Label, err)
	}

	t := &texture{desc: *desc, tex: tex, view: view}
	t.desc.SampleCount = samples

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		t.destroy(d.dev)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.TextureID(d.newIDLocked())
	d.textures[id] = t
	return id, nil
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if ok {
		t.destroy(d.dev)
	}
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer %q has zero size", desc.Label)
	}
	usage := desc.Usage | gputypes.BufferUsageCopyDst
	if desc.HostVisible {
		usage |= gputypes.BufferUsageCopySrc
	}
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignCopy(desc.Size),
		Usage: usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer %s: %w", desc.Label, err)
	}
	b := &buffer{desc: *desc, buf: buf}
	if desc.HostVisible {
		b.shadow = make([]byte, desc.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dev.DestroyBuffer(buf)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BufferID(d.newIDLocked())
	d.buffers[id] = b
	return id, nil
}

// alignCopy rounds n up to the 4-byte granularity of buffer copies.
func alignCopy(n uint64) uint64 {
	return (n + 3) &^ 3
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok {
		d.dev.DestroyBuffer(b.buf)
	}
}

func (d *Device) lookupBuffer(id gpucore.BufferID) (*buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	return b, nil
}

func checkRange(b *buffer, off, size uint64) error {
	if off+size > b.desc.Size {
		return fmt.Errorf("wgpu: range [%d, %d) exceeds %s (%d bytes)", off, off+size, b.desc.Label, b.desc.Size)
	}
	return nil
}

// WriteBuffer implements gpucore.Device.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, err := d.lookupBuffer(id)
	if err != nil {
		return err
	}
	if err := checkRange(b, offset, uint64(len(data))); err != nil {
		return err
	}
	if b.shadow != nil {
		copy(b.shadow[offset:], data)
	}
	d.queue.WriteBuffer(b.buf, offset, padCopy(data))
	return nil
}

// padCopy extends data to the copy granularity.
func padCopy(data []byte) []byte {
	if n := alignCopy(uint64(len(data))); n != uint64(len(data)) {
		return append(append(make([]byte, 0, n), data...), make([]byte, n-uint64(len(data)))...)
	}
	return data
}

// MapBuffer implements gpucore.Device.
func (d *Device) MapBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if b.shadow == nil {
		return nil, fmt.Errorf("wgpu: map %s: buffer is not host visible", b.desc.Label)
	}
	if b.mapped {
		return nil, fmt.Errorf("wgpu: map %s: already mapped", b.desc.Label)
	}
	if err := checkRange(b, offset, size); err != nil {
		return nil, err
	}
	b.mapped = true
	b.mapOff, b.mapN = offset, size
	return b.shadow[offset : offset+size : offset+size], nil
}

// UnmapBuffer implements gpucore.Device. The mapped range is written
// through the queue, widened to the copy granularity.
func (d *Device) UnmapBuffer(id gpucore.BufferID) error {
	d.mu.Lock()
	b, ok := d.buffers[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if !b.mapped {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotMapped, b.desc.Label)
	}
	b.mapped = false
	start := b.mapOff &^ 3
	end := min(alignCopy(b.mapOff+b.mapN), uint64(len(b.shadow)))
	data := padCopy(b.shadow[start:end])
	d.mu.Unlock()

	if len(data) > 0 {
		d.queue.WriteBuffer(b.buf, start, data)
	}
	return nil
}

// CopyBuffer implements gpucore.Device.
func (d *Device) CopyBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) error {
	s, err := d.lookupBuffer(src)
	if err != nil {
		return err
	}
	t, err := d.lookupBuffer(dst)
	if err != nil {
		return err
	}
	if err := checkRange(s, srcOffset, size); err != nil {
		return err
	}
	if err := checkRange(t, dstOffset, size); err != nil {
		return err
	}
	if s.mapped {
		return fmt.Errorf("wgpu: copy from mapped buffer %s", s.desc.Label)
	}
	if size == 0 {
		return nil
	}

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "buffer-copy"})
	if err != nil {
		return fmt.Errorf("wgpu: create copy encoder: %w", err)
	}
	if err := encoder.BeginEncoding("buffer-copy"); err != nil {
		return fmt.Errorf("wgpu: begin copy encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(s.buf, t.buf, []hal.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      alignCopy(size),
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end copy encoding: %w", err)
	}
	if t.shadow != nil && s.shadow != nil {
		copy(t.shadow[dstOffset:dstOffset+size], s.shadow[srcOffset:srcOffset+size])
	}
	return d.submit([]hal.CommandBuffer{cmd}, retiredBatch{cmds: []hal.CommandBuffer{cmd}})
}

// CreateFramebuffer implements gpucore.Device.
func (d *Device) CreateFramebuffer(label string, colors []gpucore.TextureID, depth gpucore.TextureID) (gpucore.FramebufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, ErrClosed
	}
	fb := &framebuffer{label: label}
	for _, id := range colors {
		t, ok := d.textures[id]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: attachment %d of %s", ErrUnknownResource, id, label)
		}
		fb.colors = append(fb.colors, t)
	}
	if depth != gpucore.InvalidID {
		t, ok := d.textures[depth]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: depth attachment %d of %s", ErrUnknownResource, depth, label)
		}
		if !isDepthFormat(t.desc.Format) {
			return gpucore.InvalidID, fmt.Errorf("wgpu: %s: depth attachment has color format %s", label, t.desc.Format)
		}
		fb.depth = t
	}
	if len(fb.colors) == 0 && fb.depth == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: framebuffer %s has no attachments", label)
	}
	want := fb.samples()
	for _, t := range fb.colors {
		if max(t.desc.SampleCount, 1) != want {
			return gpucore.InvalidID, fmt.Errorf("wgpu: framebuffer %s mixes sample counts", label)
		}
	}
	id := gpucore.FramebufferID(d.newIDLocked())
	d.framebuffers[id] = fb
	return id, nil
}

// DestroyFramebuffer implements gpucore.Device.
func (d *Device) DestroyFramebuffer(id gpucore.FramebufferID) {
	d.mu.Lock()
	delete(d.framebuffers, id)
	d.mu.Unlock()
}
