package streaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
	"github.com/SergeyYablokov/occdemo-sub001/internal/parallel"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultSlots        = 3
	DefaultFenceTimeout = 5 * time.Second
)

var (
	// ErrFenceTimeout is returned when a ring slot's fence does not signal
	// within the configured timeout. It indicates a lost submission or a
	// hung device, never a recoverable pacing condition.
	ErrFenceTimeout = errors.New("streaming: fence wait timed out")

	// ErrReleased is returned by operations on a released manager.
	ErrReleased = errors.New("streaming: manager released")

	// ErrInvalidRecordSize is returned by New for a source with a non-positive record size.
	ErrInvalidRecordSize = errors.New("streaming: invalid record size")
)

// RecordSource produces the CPU-side records a Manager streams.
//
// EncodeRecord is called from Flush with dst exactly RecordSize bytes long.
// It may derive per-record data (texture handles, array indices) on the fly.
type RecordSource interface {
	Len() int
	RecordSize() int
	EncodeRecord(i int, dst []byte) error
}

// Config configures a Manager.
type Config struct {
	// Label prefixes the debug labels of the manager's buffers.
	Label string

	// Slots is the number of ring slots (frames in flight). Default 3.
	Slots int

	// Usage is the device buffer usage in addition to CopyDst.
	// Default Storage.
	Usage gputypes.BufferUsage

	// FenceTimeout bounds a single fence wait. Default 5s.
	FenceTimeout time.Duration

	// Reserve is the minimum number of records allocated up front.
	Reserve int
}

func (c Config) withDefaults() Config {
	if c.Label == "" {
		c.Label = "stream"
	}
	if c.Slots <= 0 {
		c.Slots = DefaultSlots
	}
	if c.Usage == 0 {
		c.Usage = gputypes.BufferUsageStorage
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = DefaultFenceTimeout
	}
	return c
}

// Stats counts manager activity.
type Stats struct {
	Flushes     int
	Copies      int
	CopiedBytes uint64
	Skipped     int
	FenceWaits  int
	Resizes     int
}

// String returns a one-line summary for logs.
func (s Stats) String() string {
	return fmt.Sprintf("flushes=%d copies=%d bytes=%d skipped=%d waits=%d resizes=%d",
		s.Flushes, s.Copies, s.CopiedBytes, s.Skipped, s.FenceWaits, s.Resizes)
}

// Manager streams a RecordSource into N device buffers.
//
// MarkDirty, MarkRange and MarkAll may be called from any goroutine.
// Flush, EnsureCapacity, InsertFence and Release are driven from the
// frame goroutine.
type Manager struct {
	dev gpucore.Device
	src RecordSource
	cfg Config

	// dirty is created once and resized in place, so marks made
	// concurrently with a Flush are never dropped.
	dirty *parallel.DirtySet

	mu       sync.Mutex
	slots    []slot
	cur      int
	capacity int
	size     int
	released bool
	stats    Stats
}

// New creates a manager sized for src's current length.
//
// Device buffers start zeroed. Records whose initial contents matter must
// be marked dirty before the first Flush.
func New(dev gpucore.Device, src RecordSource, cfg Config) (*Manager, error) {
	size := src.RecordSize()
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidRecordSize, "%d bytes", size)
	}
	cfg = cfg.withDefaults()
	n := src.Len()
	m := &Manager{
		dev:   dev,
		src:   src,
		cfg:   cfg,
		size:  size,
		slots: make([]slot, cfg.Slots),
		cur:   cfg.Slots - 1,
		dirty: parallel.NewDirtySet(n),
	}
	if err := m.allocate(max(n, cfg.Reserve, 1)); err != nil {
		m.destroy()
		return nil, err
	}
	return m, nil
}

// allocate creates every slot's buffer pair for capacity records.
func (m *Manager) allocate(capacity int) error {
	bytes := uint64(capacity) * uint64(m.size)
	for i := range m.slots {
		s := &m.slots[i]
		var err error
		s.staging, err = m.dev.CreateBuffer(&gpucore.BufferDesc{
			Label:       fmt.Sprintf("%s/staging%d", m.cfg.Label, i),
			Size:        bytes,
			Usage:       gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
			HostVisible: true,
		})
		if err != nil {
			return errors.Wrapf(err, "%s: staging buffer %d", m.cfg.Label, i)
		}
		s.device, err = m.dev.CreateBuffer(&gpucore.BufferDesc{
			Label: fmt.Sprintf("%s/device%d", m.cfg.Label, i),
			Size:  bytes,
			Usage: m.cfg.Usage | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return errors.Wrapf(err, "%s: device buffer %d", m.cfg.Label, i)
		}
		s.pending = span{}
		s.state = SlotFree
	}
	m.capacity = capacity
	return nil
}

func (m *Manager) destroy() {
	for i := range m.slots {
		s := &m.slots[i]
		if s.staging != gpucore.InvalidID {
			m.dev.DestroyBuffer(s.staging)
		}
		if s.device != gpucore.InvalidID {
			m.dev.DestroyBuffer(s.device)
		}
		*s = slot{}
	}
}

// MarkDirty flags record i for upload.
func (m *Manager) MarkDirty(i int) {
	m.dirty.Mark(i)
}

// MarkRange flags records [first, last) for upload.
func (m *Manager) MarkRange(first, last int) {
	m.dirty.MarkRange(first, last)
}

// MarkAll flags every record for upload.
func (m *Manager) MarkAll() {
	m.dirty.MarkAll()
}

// EnsureCapacity grows every slot's buffers when the source outgrew them.
// Growth waits for all outstanding fences and uploads every record again.
// It never shrinks.
func (m *Manager) EnsureCapacity(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCapacityLocked(ctx)
}

func (m *Manager) ensureCapacityLocked(ctx context.Context) error {
	if m.released {
		return ErrReleased
	}
	n := m.src.Len()
	m.dirty.Resize(n)
	if n <= m.capacity {
		return nil
	}

	for i := range m.slots {
		if err := m.waitLocked(ctx, i); err != nil {
			return err
		}
	}
	logging.L().Warn("streaming: resizing ring", "label", m.cfg.Label,
		"from", m.capacity, "to", n, "slots", len(m.slots))
	m.destroy()
	if err := m.allocate(n); err != nil {
		return err
	}
	m.dirty.MarkAll()
	m.stats.Resizes++
	return nil
}

// Flush advances to the next ring slot and brings its device buffer up to
// date with every record marked since that slot was last written.
//
// If the slot's previous fence is unsignaled Flush blocks until it signals,
// ctx is done, or the configured timeout elapses (ErrFenceTimeout).
// A slot with nothing pending is left untouched and no copy is issued.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureCapacityLocked(ctx); err != nil {
		return err
	}
	if first, last, ok := m.dirty.TakeRange(); ok {
		r := span{first, last}
		for i := range m.slots {
			m.slots[i].pending = m.slots[i].pending.union(r)
		}
	}

	next := (m.cur + 1) % len(m.slots)
	if err := m.waitLocked(ctx, next); err != nil {
		return err
	}
	m.stats.Flushes++

	s := &m.slots[next]
	if s.pending.empty() {
		m.cur = next
		m.stats.Skipped++
		return nil
	}
	// The committed slot only moves once its upload succeeded.
	if err := m.uploadLocked(next); err != nil {
		s.state = SlotFree
		return err
	}
	m.cur = next

	f, err := m.dev.InsertFence()
	if err != nil {
		return errors.Wrapf(err, "%s: fence after copy", m.cfg.Label)
	}
	s.setFence(f)
	return nil
}

// uploadLocked encodes slot i's pending range into its staging buffer and
// copies it to the device buffer. On failure the pending range is kept for
// the next turn.
func (m *Manager) uploadLocked(i int) error {
	s := &m.slots[i]
	s.state = SlotWriting
	off := uint64(s.pending.first) * uint64(m.size)
	n := uint64(s.pending.last-s.pending.first) * uint64(m.size)

	dst, err := m.dev.MapBuffer(s.staging, off, n)
	if err != nil {
		return errors.Wrapf(err, "%s: map staging [%d, %d)", m.cfg.Label, off, off+n)
	}
	for r := s.pending.first; r < s.pending.last; r++ {
		at := (r - s.pending.first) * m.size
		if err := m.src.EncodeRecord(r, dst[at:at+m.size:at+m.size]); err != nil {
			_ = m.dev.UnmapBuffer(s.staging)
			return errors.Wrapf(err, "%s: encode record %d", m.cfg.Label, r)
		}
	}
	if err := m.dev.UnmapBuffer(s.staging); err != nil {
		return errors.Wrapf(err, "%s: unmap staging", m.cfg.Label)
	}
	if err := m.dev.CopyBuffer(s.staging, off, s.device, off, n); err != nil {
		return errors.Wrapf(err, "%s: copy [%d, %d)", m.cfg.Label, off, off+n)
	}
	m.stats.Copies++
	m.stats.CopiedBytes += n
	logging.L().Debug("streaming: copied", "label", m.cfg.Label, "slot", i,
		"first", s.pending.first, "last", s.pending.last, "bytes", n)
	s.pending = span{}
	return nil
}

// waitLocked blocks until slot i's fence signals and frees the slot.
func (m *Manager) waitLocked(ctx context.Context, i int) error {
	s := &m.slots[i]
	if s.fence == gpucore.NoFence {
		s.state = SlotFree
		return nil
	}
	if ok, err := m.dev.FenceSignaled(s.fence); err == nil && ok {
		s.retire()
		return nil
	}

	start := time.Now()
	m.stats.FenceWaits++
	ok, err := m.dev.WaitFence(ctx, s.fence, m.cfg.FenceTimeout)
	if err != nil {
		return errors.Wrapf(err, "%s: wait for slot %d", m.cfg.Label, i)
	}
	if !ok {
		logging.L().Error("streaming: fence timeout", "label", m.cfg.Label, "slot", i,
			"fence", uint64(s.fence), "timeout", m.cfg.FenceTimeout)
		return errors.Wrapf(ErrFenceTimeout, "%s: slot %d fence %d after %s", m.cfg.Label, i, s.fence, m.cfg.FenceTimeout)
	}
	logging.L().Debug("streaming: slot wait", "label", m.cfg.Label, "slot", i, "waited", time.Since(start))
	s.retire()
	return nil
}

// InsertFence attaches a fresh fence to the committed slot so it is not
// overwritten before the GPU finished the work submitted so far.
// Call it after submitting the frame that reads Current.
func (m *Manager) InsertFence() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return ErrReleased
	}
	f, err := m.dev.InsertFence()
	if err != nil {
		return errors.Wrapf(err, "%s: insert fence", m.cfg.Label)
	}
	m.slots[m.cur].setFence(f)
	return nil
}

// Current returns the device buffer committed by the most recent Flush.
func (m *Manager) Current() gpucore.BufferID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return gpucore.InvalidID
	}
	return m.slots[m.cur].device
}

// CurrentSlot returns the index of the committed slot.
func (m *Manager) CurrentSlot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// SlotState returns the state of slot i.
func (m *Manager) SlotState(i int) SlotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[i].state
}

// Slots returns the ring length.
func (m *Manager) Slots() int { return len(m.slots) }

// Capacity returns the number of records each buffer holds.
func (m *Manager) Capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity
}

// BufferSize returns the size in bytes of each buffer.
func (m *Manager) BufferSize() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(m.capacity) * uint64(m.size)
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Release waits for outstanding fences and destroys every buffer.
// Fence errors are returned after the buffers are destroyed.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil
	}
	var errs error
	for i := range m.slots {
		errs = errors.CombineErrors(errs, m.waitLocked(ctx, i))
	}
	m.destroy()
	m.released = true
	return errs
}
