// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
	"github.com/SergeyYablokov/occdemo-sub001/internal/parallel"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

type phase uint8

const (
	phaseIdle phase = iota
	phaseSetup
	phaseExecute
)

// passRecord is the builder's per-build view of a pass.
type passRecord struct {
	index  int
	pass   Pass
	name   string
	state  PassState
	reads  []uint32
	writes []uint32
	err    error
}

// lifecycle is the cross-build state of a pass, keyed by name.
type lifecycle struct {
	initialized bool
	state       PassState
}

// Builder is the single authority that resolves names to storage for one
// frame's pass set. A Builder is driven from one goroutine; only pass
// Execute calls run concurrently, and they never mutate the builder.
type Builder struct {
	dev      gpucore.Device
	programs *shader.Cache
	pool     *parallel.WorkerPool
	id       uuid.UUID
	prefix   string

	table   table
	recycle []storage

	passes []*passRecord
	byName map[string]*passRecord
	life   map[string]*lifecycle

	view  View
	build uint64
	phase phase
	stats Stats
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers records independent passes on a pool of n workers.
// n <= 1 records every pass on the calling goroutine.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 1 {
			b.pool = parallel.NewWorkerPool(n)
		}
	}
}

// WithLabelPrefix sets the prefix of every backend object label.
func WithLabelPrefix(prefix string) Option {
	return func(b *Builder) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// NewBuilder creates a builder over dev. programs may be shared with other builders.
func NewBuilder(dev gpucore.Device, programs *shader.Cache, opts ...Option) *Builder {
	id := uuid.New()
	b := &Builder{
		dev:      dev,
		programs: programs,
		id:       id,
		prefix:   "rg-" + id.String()[:8],
		table:    newTable(),
		byName:   make(map[string]*passRecord),
		life:     make(map[string]*lifecycle),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the builder's instance ID.
func (b *Builder) ID() uuid.UUID { return b.id }

// Device returns the graphics context.
func (b *Builder) Device() gpucore.Device { return b.dev }

// Programs returns the shader program cache.
func (b *Builder) Programs() *shader.Cache { return b.programs }

// Begin starts a new build with the given per-view parameters.
// Handles from earlier builds become invalid.
func (b *Builder) Begin(view View) error {
	if b.phase == phaseExecute {
		return configError(ErrWrongPhase, "Begin during execute")
	}
	b.build++
	b.view = view
	b.passes = b.passes[:0]
	clear(b.byName)
	b.phase = phaseSetup
	return nil
}

// AddPass appends a pass to the current build. Passes execute in
// dependency order; ties keep declaration order.
func (b *Builder) AddPass(p Pass) error {
	if b.phase != phaseSetup {
		return configError(ErrWrongPhase, "AddPass(%q) outside setup", p.Name())
	}
	name := p.Name()
	if _, dup := b.byName[name]; dup {
		return configError(ErrDuplicatePass, "%q", name)
	}
	life, ok := b.life[name]
	if !ok {
		life = &lifecycle{state: StateUninitialized}
		b.life[name] = life
	}
	pr := &passRecord{index: len(b.passes), pass: p, name: name, state: life.state}
	if life.initialized {
		pr.state = StateReady
	}
	b.passes = append(b.passes, pr)
	b.byName[name] = pr
	return nil
}

// ImportBuffer binds an externally owned buffer (for example a streaming
// device buffer) to name for this build. Imported resources count as
// written before any pass and are never destroyed by the graph.
func (b *Builder) ImportBuffer(name string, id gpucore.BufferID, desc ResourceDescriptor) error {
	if desc.Kind != KindBuffer {
		return configError(ErrKindMismatch, "ImportBuffer(%q) with %s descriptor", name, desc.Kind)
	}
	return b.importResource(name, storage{desc: desc, buf: id})
}

// ImportTexture binds an externally owned texture to name for this build.
func (b *Builder) ImportTexture(name string, id gpucore.TextureID, desc ResourceDescriptor) error {
	if desc.Kind != KindTexture2D {
		return configError(ErrKindMismatch, "ImportTexture(%q) with %s descriptor", name, desc.Kind)
	}
	return b.importResource(name, storage{desc: desc.normalized(), tex: id})
}

func (b *Builder) importResource(name string, st storage) error {
	if b.phase != phaseSetup {
		return configError(ErrWrongPhase, "import %q outside setup", name)
	}
	if !st.valid() {
		return configError(ErrInvalidDescriptor, "import %q with invalid ID", name)
	}
	_, e := b.table.acquire(name)
	b.touch(e)
	if e.writtenBuild == b.build {
		return configError(ErrConflictingWrite, "import %q: already declared this build", name)
	}
	if e.store.valid() && !e.store.same(st) {
		e.gen++
	}
	if !e.imported && e.store.valid() {
		b.destroy(e.store)
	}
	e.imported = true
	e.store = st
	e.want = st.desc
	e.writtenBuild = b.build
	return nil
}

// MarkPersistent keeps name's storage alive across builds that do not
// write it. Reading a persistent name in such a build observes the
// contents of the last build that wrote it.
func (b *Builder) MarkPersistent(name string) error {
	if b.phase != phaseSetup {
		return configError(ErrWrongPhase, "MarkPersistent(%q) outside setup", name)
	}
	_, e, ok := b.table.lookup(name)
	if !ok {
		return configError(ErrResourceNotFound, "MarkPersistent(%q)", name)
	}
	e.persistent = true
	return nil
}

// WriteTexture declares that producing writes the texture name.
func (b *Builder) WriteTexture(name string, desc ResourceDescriptor, producing Pass) (ResourceHandle, error) {
	pr, err := b.record(producing)
	if err != nil {
		return ResourceHandle{}, err
	}
	return b.declareWrite(name, desc, KindTexture2D, pr)
}

// WriteBuffer declares that producing writes the buffer name.
func (b *Builder) WriteBuffer(name string, desc ResourceDescriptor, producing Pass) (ResourceHandle, error) {
	pr, err := b.record(producing)
	if err != nil {
		return ResourceHandle{}, err
	}
	return b.declareWrite(name, desc, KindBuffer, pr)
}

// ReadTexture declares that consuming reads the texture name.
// It fails with ErrResourceNotFound if name was not written earlier in this build.
func (b *Builder) ReadTexture(name string, consuming Pass) (ResourceHandle, error) {
	pr, err := b.record(consuming)
	if err != nil {
		return ResourceHandle{}, err
	}
	return b.declareRead(name, KindTexture2D, pr)
}

// ReadBuffer declares that consuming reads the buffer name.
func (b *Builder) ReadBuffer(name string, consuming Pass) (ResourceHandle, error) {
	pr, err := b.record(consuming)
	if err != nil {
		return ResourceHandle{}, err
	}
	return b.declareRead(name, KindBuffer, pr)
}

func (b *Builder) record(p Pass) (*passRecord, error) {
	if p == nil {
		return nil, configError(ErrUnknownPass, "nil pass")
	}
	pr, ok := b.byName[p.Name()]
	if !ok || pr.pass != p {
		return nil, configError(ErrUnknownPass, "%q is not part of build %d", p.Name(), b.build)
	}
	return pr, nil
}

// touch resets per-build bookkeeping the first time an entry is seen in a build.
func (b *Builder) touch(e *entry) {
	if e.touched == b.build {
		return
	}
	e.touched = b.build
	e.writers = e.writers[:0]
	e.readers = e.readers[:0]
	e.allocErr = nil
}

func (b *Builder) declareWrite(name string, desc ResourceDescriptor, kind ResourceKind, pr *passRecord) (ResourceHandle, error) {
	if b.phase != phaseSetup {
		return ResourceHandle{}, configError(ErrWrongPhase, "pass %q writes %q outside setup", pr.name, name)
	}
	if desc.Kind != kind {
		return ResourceHandle{}, configError(ErrKindMismatch, "pass %q writes %q as %s with a %s descriptor", pr.name, name, kind, desc.Kind)
	}
	if err := desc.validate(); err != nil {
		return ResourceHandle{}, configError(ErrInvalidDescriptor, "pass %q writes %q: %v", pr.name, name, err)
	}
	desc = desc.normalized()

	idx, e := b.table.acquire(name)
	b.touch(e)
	switch {
	case len(e.readers) > 0:
		return ResourceHandle{}, configError(ErrWriteAfterRead, "pass %q writes %q after pass %q read it",
			pr.name, name, b.passes[e.readers[0]].name)
	case e.writtenBuild == b.build && e.imported:
		return ResourceHandle{}, configError(ErrConflictingWrite, "pass %q writes imported resource %q", pr.name, name)
	case e.writtenBuild == b.build && !e.want.Equal(desc):
		return ResourceHandle{}, configError(ErrConflictingWrite, "pass %q writes %q as %s, pass %q declared %s",
			pr.name, name, desc, b.passes[e.writers[0]].name, e.want)
	case e.writtenBuild != b.build:
		// Storage that resolve will recreate gets a new generation, so
		// handles into the old storage are stale.
		if e.imported || (e.store.valid() && !e.store.desc.Equal(desc)) {
			e.gen++
		}
		if e.imported {
			// Previously imported; the external storage is not ours.
			e.imported = false
			e.store = storage{}
		}
		e.writtenBuild = b.build
		e.want = desc
	}
	e.writers = append(e.writers, pr.index)
	pr.writes = append(pr.writes, idx)
	return b.handle(idx, e, pr, accessWrite, kind), nil
}

func (b *Builder) declareRead(name string, kind ResourceKind, pr *passRecord) (ResourceHandle, error) {
	if b.phase != phaseSetup {
		return ResourceHandle{}, configError(ErrWrongPhase, "pass %q reads %q outside setup", pr.name, name)
	}
	idx, e, ok := b.table.lookup(name)
	if !ok {
		return ResourceHandle{}, configError(ErrResourceNotFound, "pass %q reads %q", pr.name, name)
	}
	b.touch(e)
	desc := e.want
	if e.writtenBuild != b.build {
		if !e.persistent || !e.store.valid() {
			return ResourceHandle{}, configError(ErrResourceNotFound, "pass %q reads %q, not written in build %d", pr.name, name, b.build)
		}
		desc = e.store.desc
	}
	if desc.Kind != kind {
		return ResourceHandle{}, configError(ErrKindMismatch, "pass %q reads %s %q as %s", pr.name, desc.Kind, name, kind)
	}
	e.readers = append(e.readers, pr.index)
	pr.reads = append(pr.reads, idx)
	return b.handle(idx, e, pr, accessRead, kind), nil
}

func (b *Builder) handle(idx uint32, e *entry, pr *passRecord, a access, kind ResourceKind) ResourceHandle {
	return ResourceHandle{index: idx, gen: e.gen, build: b.build, pass: int32(pr.index), access: a, kind: kind}
}

// Build runs Setup for every pass, resolves storage, executes the passes in
// dependency order and submits their command buffers. Configuration errors
// abort the build; backend failures degrade individual passes.
func (b *Builder) Build(ctx context.Context) error {
	if b.phase != phaseSetup {
		return configError(ErrWrongPhase, "Build without Begin")
	}
	defer func() { b.phase = phaseIdle }()

	for _, pr := range b.passes {
		if err := pr.pass.Setup(&PassBuilder{b: b, pr: pr}); err != nil {
			if !IsConfigurationError(err) {
				err = errors.WithAssertionFailure(err)
			}
			err = errors.Wrapf(err, "setup %q", pr.name)
			logging.L().Error("rendergraph: configuration error", "build", b.build, "err", err)
			return err
		}
		pr.state = StateSetup
	}

	b.resolve()
	b.phase = phaseExecute

	cbs := make([]gpucore.CommandBuffer, len(b.passes))
	for _, wave := range b.waves() {
		if err := ctx.Err(); err != nil {
			b.abandon(cbs)
			return errors.Wrapf(err, "build %d", b.build)
		}
		if err := b.executeWave(ctx, wave, cbs); err != nil {
			logging.L().Error("rendergraph: configuration error", "build", b.build, "err", err)
			b.abandon(cbs)
			return err
		}
	}

	submit := make([]gpucore.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if cb != nil {
			submit = append(submit, cb)
		}
	}
	b.finishStates()
	b.stats.Builds++
	if len(submit) == 0 {
		return nil
	}
	if err := b.dev.Submit(submit...); err != nil {
		return errors.Wrapf(err, "submit build %d", b.build)
	}
	return nil
}

func (b *Builder) executeWave(ctx context.Context, wave []*passRecord, cbs []gpucore.CommandBuffer) error {
	tasks := make([]func() error, len(wave))
	for i, pr := range wave {
		tasks[i] = func() error { return b.runPass(ctx, pr, cbs) }
	}

	var errs []error
	if b.pool != nil && len(tasks) > 1 {
		errs = b.pool.Run(tasks)
	} else {
		errs = make([]error, len(tasks))
		for i, task := range tasks {
			errs[i] = task()
		}
	}

	var hard error
	for i, err := range errs {
		if err == nil {
			continue
		}
		pr := wave[i]
		if IsConfigurationError(err) {
			hard = errors.CombineErrors(hard, errors.Wrapf(err, "execute %q", pr.name))
			continue
		}
		b.degrade(pr, err)
	}
	return hard
}

func (b *Builder) runPass(ctx context.Context, pr *passRecord, cbs []gpucore.CommandBuffer) error {
	if pr.state == StateDegraded {
		return nil
	}
	rec, err := b.dev.NewRecorder(b.prefix + "/" + pr.name)
	if err != nil {
		return errors.Wrap(err, "new recorder")
	}
	ec := &ExecContext{ctx: ctx, b: b, pr: pr, rec: rec}
	defer func() {
		// Recorders that own encoder state are discarded when the pass fails.
		if d, ok := rec.(interface{ Discard() }); ok && cbs[pr.index] == nil {
			d.Discard()
		}
	}()

	if li, ok := pr.pass.(LazyIniter); ok {
		if err := li.LazyInit(ec); err != nil {
			return errors.Wrap(err, "lazy init")
		}
	}
	b.life[pr.name].initialized = true

	if err := pr.pass.Execute(ec); err != nil {
		return err
	}
	cb, err := rec.Finish()
	if err != nil {
		return errors.Wrap(err, "finish recording")
	}
	cbs[pr.index] = cb
	pr.state = StateExecuted
	return nil
}

func (b *Builder) degrade(pr *passRecord, err error) {
	pr.state = StateDegraded
	pr.err = err
	b.stats.Degraded++
	logging.L().Warn("rendergraph: pass degraded", "pass", pr.name, "build", b.build, "err", err)
}

// abandon drops the command buffers of an aborted build without
// submitting them and records the pass states it reached.
func (b *Builder) abandon(cbs []gpucore.CommandBuffer) {
	for i, cb := range cbs {
		if cb == nil {
			continue
		}
		if d, ok := cb.(interface{ Discard() }); ok {
			d.Discard()
		}
		cbs[i] = nil
	}
	b.finishStates()
}

func (b *Builder) finishStates() {
	for _, pr := range b.passes {
		b.life[pr.name].state = pr.state
	}
}

// waves groups passes into dependency levels. A pass is placed after every
// earlier writer of a resource it reads or writes.
func (b *Builder) waves() [][]*passRecord {
	level := make([]int, len(b.passes))
	var out [][]*passRecord
	for i, pr := range b.passes {
		l := 0
		deps := func(idx uint32) {
			for _, w := range b.table.entries[idx].writers {
				if w < i {
					l = max(l, level[w]+1)
				}
			}
		}
		for _, idx := range pr.reads {
			deps(idx)
		}
		for _, idx := range pr.writes {
			deps(idx)
		}
		level[i] = l
		for len(out) <= l {
			out = append(out, nil)
		}
		out[l] = append(out[l], pr)
	}
	return out
}

// PassState returns the state a pass reached in the most recent build.
func (b *Builder) PassState(name string) PassState {
	if pr, ok := b.byName[name]; ok {
		return pr.state
	}
	if life, ok := b.life[name]; ok {
		return life.state
	}
	return StateUninitialized
}

// PassError returns why a pass was degraded in the most recent build.
func (b *Builder) PassError(name string) error {
	if pr, ok := b.byName[name]; ok {
		return pr.err
	}
	return nil
}

// Lookup returns the storage currently bound to name.
func (b *Builder) Lookup(name string) (Resource, bool) {
	_, e, ok := b.table.lookup(name)
	if !ok || !e.store.valid() {
		return Resource{}, false
	}
	return Resource{Name: e.name, Desc: e.store.desc, Texture: e.store.tex, Buffer: e.store.buf}, true
}

// Release destroys all graph-owned storage and stops the worker pool.
// Imported resources are left to their owners.
func (b *Builder) Release() {
	b.table.each(func(idx uint32, e *entry) {
		if !e.imported && e.store.valid() {
			b.destroy(e.store)
		}
		b.table.reclaim(idx)
	})
	for _, st := range b.recycle {
		b.destroy(st)
	}
	b.recycle = nil
	if b.pool != nil {
		b.pool.Close()
	}
}
