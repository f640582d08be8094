package rendergraph

import (
	"github.com/cockroachdb/errors"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
)

// resolve binds every name written in the current build to storage.
//
// Storage whose descriptor is unchanged is reused as is. A changed
// descriptor destroys and recreates the storage under the same name.
// Names not used this build release their storage into a recycle pool that
// later writes with an equal descriptor draw from; whatever the pool still
// holds at the end is destroyed.
func (b *Builder) resolve() {
	b.table.each(func(idx uint32, e *entry) {
		if e.writtenBuild == b.build {
			return
		}
		if e.persistent && !e.imported && e.store.valid() {
			return
		}
		if !e.imported && e.store.valid() {
			b.recycle = append(b.recycle, e.store)
		}
		b.table.reclaim(idx)
	})

	b.table.each(func(_ uint32, e *entry) {
		if e.writtenBuild != b.build || e.imported {
			return
		}
		if e.store.valid() && e.store.desc.Equal(e.want) {
			b.stats.Reuses++
			return
		}

		realloc := e.store.valid()
		if realloc {
			logging.L().Debug("rendergraph: descriptor changed", "name", e.name,
				"from", e.store.desc.String(), "to", e.want.String())
			b.destroy(e.store)
			e.store = storage{}
			b.stats.Reallocations++
		}

		if st, ok := b.takeRecycled(e.want); ok {
			e.store = st
			b.stats.Recycled++
			return
		}

		st, err := b.allocate(e.name, e.want)
		if err != nil {
			e.allocErr = err
			logging.L().Error("rendergraph: allocation failed", "name", e.name, "err", err)
			return
		}
		e.store = st
		b.stats.Allocations++
	})

	for _, st := range b.recycle {
		b.destroy(st)
	}
	b.recycle = b.recycle[:0]

	for _, pr := range b.passes {
		if err := b.allocationError(pr); err != nil {
			b.degrade(pr, err)
			continue
		}
		pr.state = StateResolved
	}
}

func (b *Builder) allocationError(pr *passRecord) error {
	for _, list := range [][]uint32{pr.writes, pr.reads} {
		for _, idx := range list {
			if err := b.table.entries[idx].allocErr; err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) takeRecycled(d ResourceDescriptor) (storage, bool) {
	for i, st := range b.recycle {
		if st.desc.Equal(d) {
			b.recycle = append(b.recycle[:i], b.recycle[i+1:]...)
			return st, true
		}
	}
	return storage{}, false
}

func (b *Builder) allocate(name string, d ResourceDescriptor) (storage, error) {
	label := b.prefix + "/" + name
	switch d.Kind {
	case KindTexture2D:
		id, err := b.dev.CreateTexture(&gpucore.TextureDesc{
			Label:       label,
			Width:       d.Width,
			Height:      d.Height,
			Format:      d.Format,
			SampleCount: d.Samples,
			Usage:       d.TextureUsage,
			Filter:      d.Filter,
			Wrap:        d.Wrap,
		})
		if err != nil {
			return storage{}, errors.Mark(errors.Wrapf(err, "create texture %q (%s)", name, d), ErrAllocationFailed)
		}
		logging.L().Debug("rendergraph: allocate", "name", name, "desc", d.String(), "texture", id)
		return storage{desc: d, tex: id}, nil
	case KindBuffer:
		id, err := b.dev.CreateBuffer(&gpucore.BufferDesc{Label: label, Size: d.Size, Usage: d.BufferUsage})
		if err != nil {
			return storage{}, errors.Mark(errors.Wrapf(err, "create buffer %q (%s)", name, d), ErrAllocationFailed)
		}
		logging.L().Debug("rendergraph: allocate", "name", name, "desc", d.String(), "buffer", id)
		return storage{desc: d, buf: id}, nil
	default:
		return storage{}, errors.Wrapf(ErrAllocationFailed, "%q: unknown kind %s", name, d.Kind)
	}
}

func (b *Builder) destroy(st storage) {
	switch {
	case st.tex != gpucore.InvalidID:
		b.dev.DestroyTexture(st.tex)
	case st.buf != gpucore.InvalidID:
		b.dev.DestroyBuffer(st.buf)
	default:
		return
	}
	b.stats.Destroyed++
}
