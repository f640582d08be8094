package rendergraph

import (
	"fmt"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

type access uint8

const (
	accessRead access = iota + 1
	accessWrite
)

func (a access) String() string {
	if a == accessWrite {
		return "write"
	}
	return "read"
}

// ResourceHandle is a non-owning, per-build reference to a named resource.
// It is only valid in the Execute that follows the Setup that produced it,
// and only for the pass that produced it. The zero handle is invalid.
type ResourceHandle struct {
	index  uint32
	gen    uint32
	build  uint64
	pass   int32
	access access
	kind   ResourceKind
}

// IsValid reports whether h was produced by a builder.
func (h ResourceHandle) IsValid() bool {
	return h.gen != 0
}

// String returns a debug representation.
func (h ResourceHandle) String() string {
	if !h.IsValid() {
		return "ResourceHandle(invalid)"
	}
	return fmt.Sprintf("ResourceHandle(%s %s slot=%d gen=%d build=%d pass=%d)",
		h.kind, h.access, h.index, h.gen, h.build, h.pass)
}

// Resource is the resolved, non-owning view of an allocated resource.
// Passes must not retain it past the Execute call that returned it.
type Resource struct {
	Name    string
	Desc    ResourceDescriptor
	Texture gpucore.TextureID
	Buffer  gpucore.BufferID
}
