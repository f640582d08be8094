package rendergraph

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// ExecContext is the Execute-phase view of the builder for one pass.
// It is only valid for the duration of the LazyInit/Execute call it was
// passed to.
type ExecContext struct {
	ctx context.Context
	b   *Builder
	pr  *passRecord
	rec gpucore.CommandRecorder
}

// Context returns the build's context.
func (c *ExecContext) Context() context.Context { return c.ctx }

// Device returns the graphics context.
func (c *ExecContext) Device() gpucore.Device { return c.b.dev }

// Programs returns the shader program cache.
func (c *ExecContext) Programs() *shader.Cache { return c.b.programs }

// Recorder returns the command recorder dedicated to this pass.
func (c *ExecContext) Recorder() gpucore.CommandRecorder { return c.rec }

// View returns the per-view parameters of the build.
func (c *ExecContext) View() View { return c.b.view }

// Label returns a backend label for an object owned by this pass.
func (c *ExecContext) Label(suffix string) string {
	return c.b.prefix + "/" + c.pr.name + "/" + suffix
}

// GetReadTexture resolves a texture handle obtained with ReadTexture.
func (c *ExecContext) GetReadTexture(h ResourceHandle) (Resource, error) {
	return c.resolve(h, accessRead, KindTexture2D)
}

// GetWriteTexture resolves a texture handle obtained with WriteTexture.
func (c *ExecContext) GetWriteTexture(h ResourceHandle) (Resource, error) {
	return c.resolve(h, accessWrite, KindTexture2D)
}

// GetReadBuffer resolves a buffer handle obtained with ReadBuffer.
func (c *ExecContext) GetReadBuffer(h ResourceHandle) (Resource, error) {
	return c.resolve(h, accessRead, KindBuffer)
}

// GetWriteBuffer resolves a buffer handle obtained with WriteBuffer.
func (c *ExecContext) GetWriteBuffer(h ResourceHandle) (Resource, error) {
	return c.resolve(h, accessWrite, KindBuffer)
}

func (c *ExecContext) resolve(h ResourceHandle, want access, kind ResourceKind) (Resource, error) {
	e, err := c.b.table.at(h)
	if err != nil {
		return Resource{}, err
	}
	if h.build != c.b.build || c.b.phase != phaseExecute {
		return Resource{}, configError(ErrHandleOutOfScope, "%s: current build is %d", h, c.b.build)
	}
	if int(h.pass) != c.pr.index {
		return Resource{}, configError(ErrHandleOutOfScope, "%s: used by pass %q", h, c.pr.name)
	}
	if h.access != want {
		return Resource{}, configError(ErrHandleOutOfScope, "%s: resolved for %s", h, want)
	}
	if h.kind != kind {
		return Resource{}, configError(ErrKindMismatch, "%s: resolved as %s", h, kind)
	}
	if !e.store.valid() {
		return Resource{}, errors.Wrapf(ErrAllocationFailed, "%q has no storage", e.name)
	}
	return Resource{Name: e.name, Desc: e.store.desc, Texture: e.store.tex, Buffer: e.store.buf}, nil
}
