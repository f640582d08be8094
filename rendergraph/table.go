package rendergraph

import (
	"fmt"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// storage is the backing object of an entry.
type storage struct {
	desc ResourceDescriptor
	tex  gpucore.TextureID
	buf  gpucore.BufferID
}

func (s storage) valid() bool {
	return s.tex != gpucore.InvalidID || s.buf != gpucore.InvalidID
}

func (s storage) same(o storage) bool {
	return s.tex == o.tex && s.buf == o.buf && s.desc.Equal(o.desc)
}

// entry is one slot of the resource table arena.
type entry struct {
	name string
	gen  uint32
	used bool

	store      storage
	persistent bool
	imported   bool

	// Per-build bookkeeping, reset the first time a build touches the entry.
	touched      uint64
	writtenBuild uint64
	want         ResourceDescriptor
	writers      []int
	readers      []int
	allocErr     error
}

// table is the name-keyed arena of resources. Slots are reused through a
// free list. A slot's generation increments when the slot is rebound and
// when its storage is recreated or replaced, so handles into a reclaimed
// slot or into old storage are detected as stale.
//
// Only the Builder mutates the table, and never during Execute.
type table struct {
	entries []entry
	byName  map[string]uint32
	free    []uint32
}

func newTable() table {
	return table{byName: make(map[string]uint32)}
}

func (t *table) lookup(name string) (uint32, *entry, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return 0, nil, false
	}
	return idx, &t.entries[idx], true
}

// acquire returns the slot bound to name, binding a fresh slot if needed.
func (t *table) acquire(name string) (uint32, *entry) {
	if idx, e, ok := t.lookup(name); ok {
		return idx, e
	}
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.entries = append(t.entries, entry{})
		idx = uint32(len(t.entries) - 1)
	}
	e := &t.entries[idx]
	gen := e.gen + 1
	*e = entry{name: name, gen: gen, used: true}
	t.byName[name] = idx
	return idx, e
}

// reclaim unbinds a slot. The caller owns any storage it still referenced.
func (t *table) reclaim(idx uint32) {
	e := &t.entries[idx]
	delete(t.byName, e.name)
	gen := e.gen
	*e = entry{gen: gen}
	t.free = append(t.free, idx)
}

// at returns the entry a handle points to, checking the slot generation.
func (t *table) at(h ResourceHandle) (*entry, error) {
	if !h.IsValid() {
		return nil, configError(ErrHandleOutOfScope, "invalid handle")
	}
	if int(h.index) >= len(t.entries) {
		return nil, configError(ErrStaleHandle, "%s: slot out of range", h)
	}
	e := &t.entries[h.index]
	if !e.used || e.gen != h.gen {
		return nil, configError(ErrStaleHandle, "%s: slot generation is %d", h, e.gen)
	}
	return e, nil
}

// each calls fn for every bound slot.
func (t *table) each(fn func(idx uint32, e *entry)) {
	for i := range t.entries {
		if t.entries[i].used {
			fn(uint32(i), &t.entries[i])
		}
	}
}

func (t *table) len() int {
	return len(t.byName)
}

func (e *entry) String() string {
	return fmt.Sprintf("%q (%s)", e.name, e.store.desc)
}
