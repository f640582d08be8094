package wgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the Vulkan HAL backend

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
)

// Errors returned by the device.
var (
	ErrUnknownResource = errors.New("wgpu: unknown resource")
	ErrNotMapped       = errors.New("wgpu: buffer not mapped")
	ErrClosed          = errors.New("wgpu: device closed")
	ErrNoAdapter       = errors.New("wgpu: no GPU adapter")
)

// closeTimeout bounds the idle wait in Close.
const closeTimeout = 5 * time.Second

// waitSlice is the longest single HAL wait inside WaitFence, so context
// cancellation is noticed promptly.
const waitSlice = 5 * time.Millisecond

// Device implements gpucore.Device on a HAL device and queue.
type Device struct {
	dev   hal.Device
	queue hal.Queue

	// instance is set when the device was opened standalone and is
	// destroyed with it.
	instance hal.Instance
	owned    bool
	adapter  string

	// submitMu serializes submissions so timeline values are signaled in order.
	submitMu  sync.Mutex
	fence     hal.Fence
	submitted uint64

	mu           sync.Mutex
	nextID       uint64
	textures     map[gpucore.TextureID]*texture
	buffers      map[gpucore.BufferID]*buffer
	framebuffers map[gpucore.FramebufferID]*framebuffer
	programs     map[gpucore.ProgramID]*program
	retired      []retiredBatch
	completed    uint64
	closed       bool
}

var _ gpucore.Device = (*Device)(nil)

// retiredBatch holds the transient objects of one submission until the
// timeline reaches value.
type retiredBatch struct {
	value      uint64
	cmds       []hal.CommandBuffer
	bindGroups []hal.BindGroup
	buffers    []hal.Buffer
}

// NewDevice wraps a HAL device and queue. The caller keeps ownership of
// both; Close only releases the objects this package created.
func NewDevice(dev hal.Device, queue hal.Queue) (*Device, error) {
	fence, err := dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create timeline fence: %w", err)
	}
	return &Device{
		dev:          dev,
		queue:        queue,
		fence:        fence,
		textures:     make(map[gpucore.TextureID]*texture),
		buffers:      make(map[gpucore.BufferID]*buffer),
		framebuffers: make(map[gpucore.FramebufferID]*framebuffer),
		programs:     make(map[gpucore.ProgramID]*program),
	}, nil
}

// FromProvider wraps the device of a host application. provider must
// expose HalDevice() and HalQueue() returning hal.Device and hal.Queue.
func FromProvider(provider any) (*Device, error) {
	hp, ok := provider.(interface {
		HalDevice() any
		HalQueue() any
	})
	if !ok {
		return nil, fmt.Errorf("wgpu: provider %T does not expose HAL objects", provider)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	return NewDevice(dev, queue)
}

// Open creates a standalone device on the first discrete or integrated
// adapter of the given HAL backend.
func Open(api gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(api)
	if !ok {
		return nil, fmt.Errorf("%w: backend %v not compiled in", ErrNoAdapter, api)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	d, err := OpenInstance(instance)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

// OpenInstance creates a device on the preferred adapter of instance. The
// device takes ownership of instance only on success.
func OpenInstance(instance hal.Instance) (*Device, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d, err := NewDevice(openDev.Device, openDev.Queue)
	if err != nil {
		openDev.Device.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.adapter = selected.Info.Name
	logging.L().Info("wgpu: device opened", "adapter", d.adapter)
	return d, nil
}

// Name implements gpucore.Device.
func (d *Device) Name() string { return "wgpu" }

// Adapter returns the adapter name of a standalone device, or "".
func (d *Device) Adapter() string { return d.adapter }

func (d *Device) newIDLocked() uint64 {
	d.nextID++
	return d.nextID
}

// Submit implements gpucore.Device.
func (d *Device) Submit(cbs ...gpucore.CommandBuffer) error {
	if len(cbs) == 0 {
		return nil
	}
	batch := retiredBatch{}
	hcbs := make([]hal.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		c, ok := cb.(*commandBuffer)
		if !ok {
			return fmt.Errorf("wgpu: foreign command buffer %T", cb)
		}
		hcbs = append(hcbs, c.cmd)
		batch.cmds = append(batch.cmds, c.cmd)
		batch.bindGroups = append(batch.bindGroups, c.bindGroups...)
		batch.buffers = append(batch.buffers, c.buffers...)
	}
	return d.submit(hcbs, batch)
}

// submit queues hcbs and signals the next timeline value. batch is
// retired once that value is reached.
func (d *Device) submit(hcbs []hal.CommandBuffer, batch retiredBatch) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	value := d.submitted + 1
	if err := d.queue.Submit(hcbs, d.fence, value); err != nil {
		d.destroyBatch(batch)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	d.submitted = value
	batch.value = value

	d.mu.Lock()
	d.retired = append(d.retired, batch)
	d.mu.Unlock()
	return nil
}

// InsertFence implements gpucore.Device. The fence covers every
// submission so far; with nothing submitted it is NoFence.
func (d *Device) InsertFence() (gpucore.Fence, error) {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	return gpucore.Fence(d.submitted), nil
}

// FenceSignaled implements gpucore.Device.
func (d *Device) FenceSignaled(f gpucore.Fence) (bool, error) {
	if f == gpucore.NoFence {
		return true, nil
	}
	if err := d.checkFence(f); err != nil {
		return false, err
	}
	ok, err := d.dev.Wait(d.fence, uint64(f), 0)
	if err != nil {
		return false, fmt.Errorf("wgpu: poll fence %d: %w", f, err)
	}
	if ok {
		d.reclaim(uint64(f))
	}
	return ok, nil
}

// WaitFence implements gpucore.Device.
func (d *Device) WaitFence(ctx context.Context, f gpucore.Fence, timeout time.Duration) (bool, error) {
	if f == gpucore.NoFence {
		return true, nil
	}
	if err := d.checkFence(f); err != nil {
		return false, err
	}
	deadline := time.Now().Add(timeout)
	for {
		step := waitSlice
		if timeout > 0 {
			step = min(step, time.Until(deadline))
		}
		ok, err := d.dev.Wait(d.fence, uint64(f), max(step, 0))
		if err != nil {
			return false, fmt.Errorf("wgpu: wait fence %d: %w", f, err)
		}
		if ok {
			d.reclaim(uint64(f))
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

func (d *Device) checkFence(f gpucore.Fence) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if uint64(f) > d.submitted {
		return fmt.Errorf("%w: fence %d (last submitted %d)", ErrUnknownResource, f, d.submitted)
	}
	return nil
}

// reclaim destroys the transient objects of every batch at or below
// completed.
func (d *Device) reclaim(completed uint64) {
	d.mu.Lock()
	if completed <= d.completed {
		d.mu.Unlock()
		return
	}
	d.completed = completed
	var done []retiredBatch
	keep := d.retired[:0]
	for _, b := range d.retired {
		if b.value <= completed {
			done = append(done, b)
			continue
		}
		keep = append(keep, b)
	}
	d.retired = keep
	d.mu.Unlock()

	for _, b := range done {
		d.destroyBatch(b)
	}
}

func (d *Device) destroyBatch(b retiredBatch) {
	for _, bg := range b.bindGroups {
		d.dev.DestroyBindGroup(bg)
	}
	for _, buf := range b.buffers {
		d.dev.DestroyBuffer(buf)
	}
	for _, cmd := range b.cmds {
		d.dev.FreeCommandBuffer(cmd)
	}
}

// Close implements gpucore.Device. It waits for submitted work, then
// destroys every object the device created.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.submitMu.Lock()
	last := d.submitted
	d.submitMu.Unlock()
	if last > 0 {
		if ok, err := d.dev.Wait(d.fence, last, closeTimeout); err != nil || !ok {
			logging.L().Warn("wgpu: close without idle GPU", "ok", ok, "err", err)
		}
	}

	d.mu.Lock()
	retired := d.retired
	d.retired = nil
	programs := d.programs
	textures := d.textures
	buffers := d.buffers
	d.programs = make(map[gpucore.ProgramID]*program)
	d.framebuffers = make(map[gpucore.FramebufferID]*framebuffer)
	d.textures = make(map[gpucore.TextureID]*texture)
	d.buffers = make(map[gpucore.BufferID]*buffer)
	d.mu.Unlock()

	for _, b := range retired {
		d.destroyBatch(b)
	}
	for _, p := range programs {
		p.destroy(d.dev)
	}
	for _, t := range textures {
		t.destroy(d.dev)
	}
	for _, b := range buffers {
		d.dev.DestroyBuffer(b.buf)
	}
	d.dev.DestroyFence(d.fence)

	if d.owned {
		d.dev.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	logging.L().Debug("wgpu: device closed")
}
