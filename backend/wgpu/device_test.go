package wgpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// newNoopDevice opens a Device on the noop HAL backend.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	d, err := OpenInstance(instance)
	if err != nil {
		instance.Destroy()
		t.Fatalf("OpenInstance() error = %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func mustTexture(t *testing.T, d *Device, format gputypes.TextureFormat, samples uint32) gpucore.TextureID {
	t.Helper()
	id, err := d.CreateTexture(&gpucore.TextureDesc{
		Label:       "tex",
		Width:       32,
		Height:      16,
		Format:      format,
		SampleCount: samples,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	return id
}

// =============================================================================
// Resource Tests
// =============================================================================

func TestDevice_CreateTexture(t *testing.T) {
	d := newNoopDevice(t)
	if d.Name() != "wgpu" {
		t.Errorf("Name() = %q, want wgpu", d.Name())
	}
	id := mustTexture(t, d, gputypes.TextureFormatRGBA8Unorm, 0)
	if got := d.textures[id].desc.SampleCount; got != 1 {
		t.Errorf("SampleCount = %d, want 1 for an unset count", got)
	}

	if _, err := d.CreateTexture(&gpucore.TextureDesc{Label: "empty", Format: gputypes.TextureFormatRGBA8Unorm}); err == nil {
		t.Error("CreateTexture(0x0) error = nil, want error")
	}

	d.DestroyTexture(id)
	d.DestroyTexture(id) // unknown IDs are ignored
	if len(d.textures) != 0 {
		t.Errorf("live textures = %d, want 0", len(d.textures))
	}
}

func TestDevice_CreateFramebuffer(t *testing.T) {
	d := newNoopDevice(t)
	color := mustTexture(t, d, gputypes.TextureFormatRGBA16Float, 1)
	msaa := mustTexture(t, d, gputypes.TextureFormatRGBA16Float, 4)
	depth := mustTexture(t, d, gputypes.TextureFormatDepth32Float, 1)

	tests := []struct {
		name    string
		colors  []gpucore.TextureID
		depth   gpucore.TextureID
		wantErr bool
	}{
		{"color+depth", []gpucore.TextureID{color}, depth, false},
		{"depth only", nil, depth, false},
		{"no attachments", nil, gpucore.InvalidID, true},
		{"color as depth", nil, color, true},
		{"mixed samples", []gpucore.TextureID{color, msaa}, gpucore.InvalidID, true},
		{"unknown", []gpucore.TextureID{999}, gpucore.InvalidID, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateFramebuffer(tt.name, tt.colors, tt.depth)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateFramebuffer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDevice_MapBufferShadow(t *testing.T) {
	d := newNoopDevice(t)
	staging, err := d.CreateBuffer(&gpucore.BufferDesc{
		Label: "staging", Size: 64, Usage: gputypes.BufferUsageCopySrc, HostVisible: true,
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	plain, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "plain", Size: 64, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	if _, err := d.MapBuffer(plain, 0, 16); err == nil {
		t.Error("MapBuffer(device-local) error = nil, want error")
	}
	if _, err := d.MapBuffer(staging, 60, 16); err == nil {
		t.Error("MapBuffer(out of range) error = nil, want error")
	}

	m, err := d.MapBuffer(staging, 6, 5)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	if len(m) != 5 || cap(m) != 5 {
		t.Errorf("mapped len/cap = %d/%d, want 5/5", len(m), cap(m))
	}
	copy(m, "hello")
	if _, err := d.MapBuffer(staging, 0, 4); err == nil {
		t.Error("second MapBuffer error = nil, want already mapped")
	}
	if err := d.UnmapBuffer(staging); err != nil {
		t.Fatalf("UnmapBuffer() error = %v", err)
	}
	if err := d.UnmapBuffer(staging); !errors.Is(err, ErrNotMapped) {
		t.Errorf("UnmapBuffer() twice error = %v, want ErrNotMapped", err)
	}
	if got := string(d.buffers[staging].shadow[6:11]); got != "hello" {
		t.Errorf("shadow = %q, want hello", got)
	}

	if err := d.WriteBuffer(999, 0, []byte{1}); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("WriteBuffer(unknown) error = %v, want ErrUnknownResource", err)
	}
}

func TestAlignHelpers(t *testing.T) {
	tests := []struct {
		n, want uint64
	}{
		{0, 0}, {1, 4}, {4, 4}, {5, 8}, {64, 64},
	}
	for _, tt := range tests {
		if got := alignCopy(tt.n); got != tt.want {
			t.Errorf("alignCopy(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
	if got := padCopy([]byte{1, 2, 3}); len(got) != 4 || got[3] != 0 {
		t.Errorf("padCopy(3 bytes) = %v, want 4 bytes zero padded", got)
	}
}

// =============================================================================
// Binding Layout Tests
// =============================================================================

func TestSampleType(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   gputypes.TextureSampleType
	}{
		{gputypes.TextureFormatDepth32Float, gputypes.TextureSampleTypeDepth},
		{gputypes.TextureFormatR32Float, gputypes.TextureSampleTypeUnfilterableFloat},
		{gputypes.TextureFormatRGBA16Float, gputypes.TextureSampleTypeFloat},
		{gputypes.TextureFormatR8Unorm, gputypes.TextureSampleTypeFloat},
	}
	for _, tt := range tests {
		if got := sampleType(tt.format); got != tt.want {
			t.Errorf("sampleType(%v) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestBufferType(t *testing.T) {
	tests := []struct {
		name    string
		usage   gputypes.BufferUsage
		compute bool
		want    gputypes.BufferBindingType
	}{
		{"uniform", gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst, false, gputypes.BufferBindingTypeUniform},
		{"storage in render", gputypes.BufferUsageStorage, false, gputypes.BufferBindingTypeReadOnlyStorage},
		{"storage in compute", gputypes.BufferUsageStorage, true, gputypes.BufferBindingTypeStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bufferType(tt.usage, tt.compute); got != tt.want {
				t.Errorf("bufferType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignatureSorted(t *testing.T) {
	kinds := []bindKind{
		{slot: 4, texture: true, sample: gputypes.TextureSampleTypeDepth},
		{slot: 0, buffer: gputypes.BufferBindingTypeUniform},
		{slot: 2, buffer: gputypes.BufferBindingTypeReadOnlyStorage},
	}
	sortKinds(kinds)
	for i, want := range []uint32{0, 2, 4} {
		if kinds[i].slot != want {
			t.Errorf("kinds[%d].slot = %d, want %d", i, kinds[i].slot, want)
		}
	}
	a := signature(kinds)
	kinds[2].msaa = true
	if b := signature(kinds); a == b {
		t.Errorf("signature ignores multisampling: %q", a)
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestRecorder_OrderErrors(t *testing.T) {
	d := newNoopDevice(t)
	prog, err := d.CreateProgram(&gpucore.ProgramDesc{
		Label:        "fill",
		VertexWGSL:   "@vertex fn vs_main() {}",
		FragmentWGSL: "@fragment fn fs_main() {}",
	})
	if err != nil {
		t.Fatalf("CreateProgram() error = %v", err)
	}

	t.Run("draw outside pass", func(t *testing.T) {
		r, err := d.NewRecorder("outside")
		if err != nil {
			t.Fatal(err)
		}
		r.SetProgram(prog)
		r.Draw(3, 1)
		if _, err := r.Finish(); !errors.Is(err, errNoPass) {
			t.Errorf("Finish() error = %v, want errNoPass", err)
		}
	})

	t.Run("dispatch with render program", func(t *testing.T) {
		r, err := d.NewRecorder("dispatch")
		if err != nil {
			t.Fatal(err)
		}
		r.SetProgram(prog)
		r.Dispatch(1, 1, 1)
		if _, err := r.Finish(); err == nil {
			t.Error("Finish() error = nil, want error")
		}
	})

	t.Run("unknown framebuffer", func(t *testing.T) {
		r, err := d.NewRecorder("fb")
		if err != nil {
			t.Fatal(err)
		}
		if err := r.BeginPass(12345, nil); !errors.Is(err, ErrUnknownResource) {
			t.Errorf("BeginPass() error = %v, want ErrUnknownResource", err)
		}
		if _, err := r.Finish(); err != nil {
			t.Errorf("Finish() error = %v", err)
		}
	})
}

func TestRecorder_DrawCachesPipeline(t *testing.T) {
	d := newNoopDevice(t)
	color := mustTexture(t, d, gputypes.TextureFormatRGBA16Float, 1)
	fb, err := d.CreateFramebuffer("color", []gpucore.TextureID{color}, gpucore.InvalidID)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := d.CreateProgram(&gpucore.ProgramDesc{
		Label:        "fill",
		VertexWGSL:   "@vertex fn vs_main() {}",
		FragmentWGSL: "@fragment fn fs_main() {}",
	})
	if err != nil {
		t.Fatal(err)
	}

	for frame := range 3 {
		r, err := d.NewRecorder("fill")
		if err != nil {
			t.Fatal(err)
		}
		if err := r.BeginPass(fb, &gpucore.ClearValue{}); err != nil {
			t.Fatalf("BeginPass() error = %v", err)
		}
		r.SetProgram(prog)
		r.SetConstants([]byte{1, 2, 3, 4})
		r.Draw(3, 1)
		if err := r.EndPass(); err != nil {
			t.Fatal(err)
		}
		cb, err := r.Finish()
		if err != nil {
			t.Fatalf("frame %d: Finish() error = %v", frame, err)
		}
		if got := len(cb.(*commandBuffer).buffers); got != 1 {
			t.Errorf("frame %d: transient buffers = %d, want 1 constants block", frame, got)
		}
		if err := d.Submit(cb); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if got := len(d.programs[prog].pipelines); got != 1 {
		t.Errorf("pipelines = %d, want 1 shared across frames", got)
	}
}

func TestCommandBuffer_DiscardUnsubmitted(t *testing.T) {
	d := newNoopDevice(t)
	color := mustTexture(t, d, gputypes.TextureFormatRGBA8Unorm, 1)
	fb, err := d.CreateFramebuffer("color", []gpucore.TextureID{color}, gpucore.InvalidID)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := d.CreateProgram(&gpucore.ProgramDesc{
		Label:        "fill",
		VertexWGSL:   "@vertex fn vs_main() {}",
		FragmentWGSL: "@fragment fn fs_main() {}",
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := d.NewRecorder("fill")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.BeginPass(fb, nil); err != nil {
		t.Fatal(err)
	}
	r.SetProgram(prog)
	r.SetConstants(make([]byte, 16))
	r.Draw(3, 1)
	if err := r.EndPass(); err != nil {
		t.Fatal(err)
	}
	cb, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	c := cb.(*commandBuffer)
	c.Discard()
	if c.cmd != nil || c.buffers != nil || c.bindGroups != nil {
		t.Errorf("Discard() left cmd=%v buffers=%d bindGroups=%d", c.cmd, len(c.buffers), len(c.bindGroups))
	}
	c.Discard()
	if len(d.retired) != 0 {
		t.Errorf("retired batches = %d, want 0 for a never-submitted buffer", len(d.retired))
	}
}

// =============================================================================
// Fence Tests
// =============================================================================

func TestDevice_Fences(t *testing.T) {
	d := newNoopDevice(t)

	f, err := d.InsertFence()
	if err != nil || f != gpucore.NoFence {
		t.Errorf("InsertFence() before any submit = %v, %v, want NoFence", f, err)
	}
	if ok, err := d.FenceSignaled(gpucore.NoFence); !ok || err != nil {
		t.Errorf("FenceSignaled(NoFence) = %v, %v, want true", ok, err)
	}
	if _, err := d.FenceSignaled(7); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("FenceSignaled(future) error = %v, want ErrUnknownResource", err)
	}

	a, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "a", Size: 16, HostVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "b", Size: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.CopyBuffer(a, 0, b, 0, 16); err != nil {
		t.Fatalf("CopyBuffer() error = %v", err)
	}
	f, _ = d.InsertFence()
	if f != 1 {
		t.Errorf("InsertFence() = %d, want 1 after one submission", f)
	}
	ok, err := d.WaitFence(context.Background(), f, time.Second)
	if err != nil || !ok {
		t.Errorf("WaitFence() = %v, %v, want signaled", ok, err)
	}
	if len(d.retired) != 0 {
		t.Errorf("retired batches = %d, want 0 after the fence signaled", len(d.retired))
	}
}

// =============================================================================
// Provider Tests
// =============================================================================

type halProvider struct {
	dev   any
	queue any
}

func (p halProvider) HalDevice() any { return p.dev }
func (p halProvider) HalQueue() any  { return p.queue }

func TestFromProvider(t *testing.T) {
	if _, err := FromProvider(struct{}{}); err == nil {
		t.Error("FromProvider(struct{}) error = nil, want error")
	}
	if _, err := FromProvider(halProvider{dev: 1, queue: 2}); err == nil {
		t.Error("FromProvider(non-HAL objects) error = nil, want error")
	}

	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no noop adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer openDev.Device.Destroy()

	var hd hal.Device = openDev.Device
	d, err := FromProvider(halProvider{dev: hd, queue: openDev.Queue})
	if err != nil {
		t.Fatalf("FromProvider() error = %v", err)
	}
	if d.owned {
		t.Error("device from a provider must not own the HAL device")
	}
	d.Close()
}
