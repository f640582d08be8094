// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

// Package scene owns the scene data that passes read on the GPU: the
// material records and the texture table. Each array is streamed by its own
// streaming.Manager; consumers only ever see the committed device buffers.
package scene

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
	"github.com/SergeyYablokov/occdemo-sub001/streaming"
)

// Graph names under which Import registers the scene buffers.
const (
	MaterialsResource = "Materials"
	TexturesResource  = "Textures"
)

var (
	// ErrUnknownTexture is returned for a texture reference the store never issued.
	ErrUnknownTexture = errors.New("scene: unknown texture")

	// ErrUnknownMaterial is returned for a material index the store never issued.
	ErrUnknownMaterial = errors.New("scene: unknown material")
)

// Config configures a Store.
type Config struct {
	// Slots is the number of frames in flight. Default streaming.DefaultSlots.
	Slots int

	// FenceTimeout bounds a single slot wait. Default streaming.DefaultFenceTimeout.
	FenceTimeout time.Duration

	// MaterialCapacity and TextureCapacity reserve records up front so the
	// first frames do not resize.
	MaterialCapacity int
	TextureCapacity  int
}

// PersistentBuffers is a read-only snapshot of the committed scene buffers
// for consumers outside the frame graph. It is valid until the next Flush.
type PersistentBuffers struct {
	Materials     gpucore.BufferID
	Textures      gpucore.BufferID
	MaterialCount int
	TextureCount  int

	// Bindless reports whether texture records hold bindless handles
	// rather than array indices.
	Bindless bool
}

// Store owns materials and textures and streams them to the device.
//
// Mutators may be called from any goroutine. Flush, Import and
// InsertPersistentBuffersFence belong to the frame goroutine.
type Store struct {
	mu        sync.RWMutex
	materials []Material
	textures  textureTable

	matStream *streaming.Manager
	texStream *streaming.Manager
}

// NewStore creates an empty store. Textures are made resident on demand
// when dev implements gpucore.BindlessDevice.
func NewStore(dev gpucore.Device, cfg Config) (*Store, error) {
	s := &Store{}
	if bd, ok := dev.(gpucore.BindlessDevice); ok {
		s.textures.bindless = bd
	}

	var err error
	s.texStream, err = streaming.New(dev, textureSource{s}, streaming.Config{
		Label:        "scene/textures",
		Slots:        cfg.Slots,
		FenceTimeout: cfg.FenceTimeout,
		Reserve:      cfg.TextureCapacity,
	})
	if err != nil {
		return nil, errors.Wrap(err, "texture stream")
	}
	s.matStream, err = streaming.New(dev, materialSource{s}, streaming.Config{
		Label:        "scene/materials",
		Slots:        cfg.Slots,
		FenceTimeout: cfg.FenceTimeout,
		Reserve:      cfg.MaterialCapacity,
	})
	if err != nil {
		_ = s.texStream.Release(context.Background())
		return nil, errors.Wrap(err, "material stream")
	}
	return s, nil
}

// AddTexture registers a texture and returns its reference.
func (s *Store) AddTexture(id gpucore.TextureID, width, height uint32) TextureRef {
	s.mu.Lock()
	ref := s.textures.add(id, width, height)
	s.mu.Unlock()
	s.texStream.MarkDirty(int(ref))
	return ref
}

// AddMaterial appends a material and returns its index.
func (s *Store) AddMaterial(m Material) (int, error) {
	s.mu.Lock()
	if err := s.checkRefsLocked(&m); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.materials = append(s.materials, m)
	i := len(s.materials) - 1
	s.mu.Unlock()
	s.matStream.MarkDirty(i)
	return i, nil
}

// SetMaterial replaces material i. The change reaches the device on the
// next Flush of each ring slot.
func (s *Store) SetMaterial(i int, m Material) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.materials) {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnknownMaterial, "%d", i)
	}
	if err := s.checkRefsLocked(&m); err != nil {
		s.mu.Unlock()
		return err
	}
	s.materials[i] = m
	s.mu.Unlock()
	s.matStream.MarkDirty(i)
	return nil
}

// Material returns material i.
func (s *Store) Material(i int) (Material, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.materials) {
		return Material{}, false
	}
	return s.materials[i], true
}

// Counts returns the number of materials and textures.
func (s *Store) Counts() (materials, textures int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.materials), len(s.textures.entries)
}

func (s *Store) checkRefsLocked(m *Material) error {
	for slot, ref := range m.Textures {
		if !s.textures.valid(ref) {
			return errors.Wrapf(ErrUnknownTexture, "material slot %d references %d", slot, ref)
		}
	}
	return nil
}

// Flush uploads pending edits into the next ring slot of both streams,
// growing them first if needed. It blocks only while a slot's previous
// frame is still in flight.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.texStream.Flush(ctx); err != nil {
		return errors.Wrap(err, "flush textures")
	}
	if err := s.matStream.Flush(ctx); err != nil {
		return errors.Wrap(err, "flush materials")
	}
	return nil
}

// PersistentBuffers returns the committed device buffers.
func (s *Store) PersistentBuffers() PersistentBuffers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PersistentBuffers{
		Materials:     s.matStream.Current(),
		Textures:      s.texStream.Current(),
		MaterialCount: len(s.materials),
		TextureCount:  len(s.textures.entries),
		Bindless:      s.textures.bindless != nil,
	}
}

// InsertPersistentBuffersFence protects the committed slots from reuse
// until the work submitted so far completes. Call it after every frame
// that read PersistentBuffers or the imported graph resources.
func (s *Store) InsertPersistentBuffersFence() error {
	return errors.CombineErrors(
		s.texStream.InsertFence(),
		s.matStream.InsertFence(),
	)
}

// Import registers the committed buffers with b as the imported resources
// MaterialsResource and TexturesResource.
func (s *Store) Import(b *rendergraph.Builder) error {
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	if err := b.ImportBuffer(MaterialsResource, s.matStream.Current(),
		rendergraph.Buffer(s.matStream.BufferSize(), usage)); err != nil {
		return err
	}
	return b.ImportBuffer(TexturesResource, s.texStream.Current(),
		rendergraph.Buffer(s.texStream.BufferSize(), usage))
}

// Stats returns the streaming counters of the material and texture streams.
func (s *Store) Stats() (materials, textures streaming.Stats) {
	return s.matStream.Stats(), s.texStream.Stats()
}

// Release waits for in-flight frames and destroys the scene buffers.
func (s *Store) Release(ctx context.Context) error {
	return errors.CombineErrors(
		s.matStream.Release(ctx),
		s.texStream.Release(ctx),
	)
}

// materialSource streams s.materials. Its methods run inside Store.Flush
// with s.mu held for reading.
type materialSource struct{ s *Store }

func (m materialSource) Len() int        { return len(m.s.materials) }
func (m materialSource) RecordSize() int { return MaterialRecordSize }

func (m materialSource) EncodeRecord(i int, dst []byte) error {
	mat := &m.s.materials[i]
	for _, ref := range mat.Textures {
		if ref == NoTexture {
			continue
		}
		if err := m.s.textures.makeResident(ref); err != nil {
			return errors.Wrapf(err, "material %d", i)
		}
	}
	mat.encode(dst, func(ref TextureRef) uint32 { return uint32(ref) })
	return nil
}

// textureSource streams the texture table.
type textureSource struct{ s *Store }

func (t textureSource) Len() int                             { return len(t.s.textures.entries) }
func (t textureSource) RecordSize() int                      { return TextureRecordSize }
func (t textureSource) EncodeRecord(i int, dst []byte) error { return t.s.textures.encode(i, dst) }
