package null

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// Errors returned by the null device.
var (
	ErrUnknownResource = errors.New("null: unknown resource")
	ErrNotHostVisible  = errors.New("null: buffer is not host visible")
	ErrAlreadyMapped   = errors.New("null: buffer is already mapped")
	ErrNotMapped       = errors.New("null: buffer is not mapped")
	ErrOutOfBounds     = errors.New("null: range out of bounds")
	ErrInjected        = errors.New("null: injected failure")
	ErrClosed          = errors.New("null: device closed")
)

// residentHandleBase is OR-ed into texture IDs to form bindless handles.
const residentHandleBase = uint64(0xB1D1) << 48

// FenceSchedule decides whether a fence reports signaled on its n-th check
// (n starts at 1). Once a fence reports signaled it stays signaled.
type FenceSchedule func(f gpucore.Fence, n int) bool

// Stats counts device calls.
type Stats struct {
	TexturesCreated     int
	TexturesDestroyed   int
	BuffersCreated      int
	BuffersDestroyed    int
	ProgramsCreated     int
	FramebuffersCreated int
	Maps                int
	Copies              int
	CopiedBytes         uint64
	Writes              int
	Submits             int
	CommandBuffers      int
	Discarded           int
	Draws               int
	Dispatches          int
	FencesInserted      int
	FenceChecks         int
	FenceWaits          int
}

// Event is one entry of the device's ordered call log.
type Event struct {
	Kind   string
	Detail string
}

func (e Event) String() string { return e.Kind + " " + e.Detail }

type texture struct {
	desc     gpucore.TextureDesc
	resident bool
}

type buffer struct {
	desc   gpucore.BufferDesc
	data   []byte
	mapped bool
}

type fence struct {
	checks   int
	signaled bool
}

// Device is the in-memory gpucore.Device.
type Device struct {
	mu sync.Mutex

	nextID       uint64
	textures     map[gpucore.TextureID]*texture
	buffers      map[gpucore.BufferID]*buffer
	programs     map[gpucore.ProgramID]gpucore.ProgramDesc
	framebuffers map[gpucore.FramebufferID][]gpucore.TextureID
	fences       map[gpucore.Fence]*fence
	lastFence    gpucore.Fence

	schedule         FenceSchedule
	failFramebuffers bool
	failPrograms     bool
	closed           bool

	stats  Stats
	events []Event
}

var _ gpucore.BindlessDevice = (*Device)(nil)

// NewDevice creates an empty device whose fences signal on first check.
func NewDevice() *Device {
	return &Device{
		textures:     make(map[gpucore.TextureID]*texture),
		buffers:      make(map[gpucore.BufferID]*buffer),
		programs:     make(map[gpucore.ProgramID]gpucore.ProgramDesc),
		framebuffers: make(map[gpucore.FramebufferID][]gpucore.TextureID),
		fences:       make(map[gpucore.Fence]*fence),
	}
}

// Name implements gpucore.Device.
func (d *Device) Name() string { return "null" }

// SetFenceSchedule installs a fence schedule. nil restores immediate signaling.
func (d *Device) SetFenceSchedule(s FenceSchedule) {
	d.mu.Lock()
	d.schedule = s
	d.mu.Unlock()
}

// FailFramebuffers makes CreateFramebuffer fail while on is true.
func (d *Device) FailFramebuffers(on bool) {
	d.mu.Lock()
	d.failFramebuffers = on
	d.mu.Unlock()
}

// FailPrograms makes CreateProgram fail while on is true.
func (d *Device) FailPrograms(on bool) {
	d.mu.Lock()
	d.failPrograms = on
	d.mu.Unlock()
}

// Stats returns a snapshot of the call counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Events returns a copy of the call log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// ResetEvents clears the call log.
func (d *Device) ResetEvents() {
	d.mu.Lock()
	d.events = d.events[:0]
	d.mu.Unlock()
}

// LiveTextures returns the number of textures not yet destroyed.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// TextureDesc returns the descriptor a texture was created with.
func (d *Device) TextureDesc(id gpucore.TextureID) (gpucore.TextureDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return gpucore.TextureDesc{}, false
	}
	return t.desc, true
}

// BufferData returns a copy of a buffer's contents.
func (d *Device) BufferData(id gpucore.BufferID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.data...)
}

func (d *Device) logLocked(kind, format string, args ...any) {
	d.events = append(d.events, Event{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

func (d *Device) newIDLocked() uint64 {
	d.nextID++
	return d.nextID
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("null: texture %q has zero size", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.TextureID(d.newIDLocked())
	d.textures[id] = &texture{desc: *desc}
	d.stats.TexturesCreated++
	d.logLocked("texture", "create %d %s %s", id, desc.Label, desc)
	return id, nil
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[id]; !ok {
		return
	}
	delete(d.textures, id)
	d.stats.TexturesDestroyed++
	d.logLocked("texture", "destroy %d", id)
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("null: buffer %q has zero size", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BufferID(d.newIDLocked())
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	d.stats.BuffersCreated++
	d.logLocked("buffer", "create %d %s %d", id, desc.Label, desc.Size)
	return id, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[id]; !ok {
		return
	}
	delete(d.buffers, id)
	d.stats.BuffersDestroyed++
	d.logLocked("buffer", "destroy %d", id)
}

func (d *Device) rangeLocked(id gpucore.BufferID, off, size uint64) (*buffer, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if off+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrOutOfBounds, off, off+size, len(b.data))
	}
	return b, nil
}

// WriteBuffer implements gpucore.Device.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.rangeLocked(id, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(b.data[offset:], data)
	d.stats.Writes++
	d.logLocked("write", "%d [%d, %d)", id, offset, offset+uint64(len(data)))
	return nil
}

// MapBuffer implements gpucore.Device.
func (d *Device) MapBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.rangeLocked(id, offset, size)
	if err != nil {
		return nil, err
	}
	if !b.desc.HostVisible {
		return nil, fmt.Errorf("%w: %s", ErrNotHostVisible, b.desc.Label)
	}
	if b.mapped {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMapped, b.desc.Label)
	}
	b.mapped = true
	d.stats.Maps++
	d.logLocked("map", "%d [%d, %d)", id, offset, offset+size)
	return b.data[offset : offset+size : offset+size], nil
}

// UnmapBuffer implements gpucore.Device.
func (d *Device) UnmapBuffer(id gpucore.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if !b.mapped {
		return fmt.Errorf("%w: %s", ErrNotMapped, b.desc.Label)
	}
	b.mapped = false
	d.logLocked("unmap", "%d", id)
	return nil
}

// CopyBuffer implements gpucore.Device.
func (d *Device) CopyBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.rangeLocked(src, srcOffset, size)
	if err != nil {
		return err
	}
	t, err := d.rangeLocked(dst, dstOffset, size)
	if err != nil {
		return err
	}
	if s.mapped {
		return fmt.Errorf("null: copy from mapped buffer %s", s.desc.Label)
	}
	copy(t.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	d.stats.Copies++
	d.stats.CopiedBytes += size
	d.logLocked("copy", "%d->%d [%d, %d)", src, dst, dstOffset, dstOffset+size)
	return nil
}

// CreateFramebuffer implements gpucore.Device.
func (d *Device) CreateFramebuffer(label string, colors []gpucore.TextureID, depth gpucore.TextureID) (gpucore.FramebufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFramebuffers {
		return gpucore.InvalidID, fmt.Errorf("%w: framebuffer %s", ErrInjected, label)
	}
	att := append([]gpucore.TextureID(nil), colors...)
	if depth != gpucore.InvalidID {
		att = append(att, depth)
	}
	for _, id := range att {
		if _, ok := d.textures[id]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: attachment %d of %s", ErrUnknownResource, id, label)
		}
	}
	id := gpucore.FramebufferID(d.newIDLocked())
	d.framebuffers[id] = att
	d.stats.FramebuffersCreated++
	d.logLocked("framebuffer", "create %d %s", id, label)
	return id, nil
}

// DestroyFramebuffer implements gpucore.Device.
func (d *Device) DestroyFramebuffer(id gpucore.FramebufferID) {
	d.mu.Lock()
	delete(d.framebuffers, id)
	d.mu.Unlock()
}

// CreateProgram implements gpucore.Device.
func (d *Device) CreateProgram(desc *gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPrograms {
		return gpucore.InvalidID, fmt.Errorf("%w: program %s", ErrInjected, desc.Label)
	}
	id := gpucore.ProgramID(d.newIDLocked())
	d.programs[id] = *desc
	d.stats.ProgramsCreated++
	d.logLocked("program", "create %d %s", id, desc.Label)
	return id, nil
}

// DestroyProgram implements gpucore.Device.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	delete(d.programs, id)
	d.mu.Unlock()
}

// NewRecorder implements gpucore.Device.
func (d *Device) NewRecorder(label string) (gpucore.CommandRecorder, error) {
	return &recorder{dev: d, label: label}, nil
}

// Submit implements gpucore.Device.
func (d *Device) Submit(cbs ...gpucore.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cb := range cbs {
		c, ok := cb.(*commandBuffer)
		if !ok {
			return fmt.Errorf("null: foreign command buffer %T", cb)
		}
		d.stats.Draws += c.draws
		d.stats.Dispatches += c.dispatches
		d.stats.CommandBuffers++
		d.logLocked("submit", "%s", c.label)
	}
	d.stats.Submits++
	return nil
}

// InsertFence implements gpucore.Device.
func (d *Device) InsertFence() (gpucore.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFence++
	f := d.lastFence
	d.fences[f] = &fence{}
	d.stats.FencesInserted++
	d.logLocked("fence", "insert %d", f)
	return f, nil
}

// FenceSignaled implements gpucore.Device.
func (d *Device) FenceSignaled(f gpucore.Fence) (bool, error) {
	if f == gpucore.NoFence {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.fences[f]
	if !ok {
		return false, fmt.Errorf("%w: fence %d", ErrUnknownResource, f)
	}
	if st.signaled {
		return true, nil
	}
	st.checks++
	d.stats.FenceChecks++
	if d.schedule == nil || d.schedule(f, st.checks) {
		st.signaled = true
	}
	return st.signaled, nil
}

// WaitFence implements gpucore.Device.
func (d *Device) WaitFence(ctx context.Context, f gpucore.Fence, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	d.stats.FenceWaits++
	d.logLocked("wait", "%d", f)
	d.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		ok, err := d.FenceSignaled(f)
		if err != nil || ok {
			return ok, err
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if timeout > 0 && time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// TextureHandle implements gpucore.BindlessDevice.
func (d *Device) TextureHandle(id gpucore.TextureID) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[id]; !ok {
		return 0, fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	return residentHandleBase | uint64(id), nil
}

// MakeResident implements gpucore.BindlessDevice.
func (d *Device) MakeResident(id gpucore.TextureID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	if !t.resident {
		t.resident = true
		d.logLocked("resident", "%d", id)
	}
	return nil
}

// IsResident implements gpucore.BindlessDevice.
func (d *Device) IsResident(id gpucore.TextureID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	return ok && t.resident
}

// Close implements gpucore.Device.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	clear(d.textures)
	clear(d.buffers)
	clear(d.programs)
	clear(d.framebuffers)
	clear(d.fences)
}
