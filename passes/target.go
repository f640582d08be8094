package passes

import (
	"github.com/cockroachdb/errors"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
)

// target is a framebuffer owned by a pass and keyed in its LazyState.
type target struct {
	key string
	fb  gpucore.FramebufferID
}

// ensure rebuilds the framebuffer when any attachment was reallocated or
// its descriptor changed. depth may be nil. On failure the key is
// forgotten so the next frame retries.
func (t *target) ensure(ec *rendergraph.ExecContext, lazy *rendergraph.LazyState, depth *rendergraph.Resource, colors ...rendergraph.Resource) error {
	all := colors
	if depth != nil {
		all = append(append([]rendergraph.Resource(nil), colors...), *depth)
	}
	if !lazy.AttachmentsChanged(t.key, all...) && t.fb != gpucore.InvalidID {
		return nil
	}

	dev := ec.Device()
	t.destroy(dev)

	ids := make([]gpucore.TextureID, len(colors))
	for i, c := range colors {
		ids[i] = c.Texture
	}
	depthID := gpucore.TextureID(gpucore.InvalidID)
	if depth != nil {
		depthID = depth.Texture
	}
	fb, err := dev.CreateFramebuffer(ec.Label(t.key), ids, depthID)
	if err != nil {
		lazy.Forget(t.key)
		return errors.Wrapf(err, "framebuffer %s", t.key)
	}
	t.fb = fb
	logging.L().Debug("passes: framebuffer rebuilt", "label", ec.Label(t.key), "attachments", len(all))
	return nil
}

func (t *target) destroy(dev gpucore.Device) {
	if t.fb != gpucore.InvalidID {
		dev.DestroyFramebuffer(t.fb)
		t.fb = gpucore.InvalidID
	}
}

// viewport covers the whole of r.
func viewport(r rendergraph.Resource) gpucore.Viewport {
	return gpucore.Viewport{Width: r.Desc.Width, Height: r.Desc.Height}
}

// fullscreen records one render pass into fb that draws the full-screen
// triangle with prog. bind sets the pass's inputs.
func fullscreen(rec gpucore.CommandRecorder, fb gpucore.FramebufferID, vp gpucore.Viewport,
	prog gpucore.ProgramID, clear *gpucore.ClearValue, bind func(rec gpucore.CommandRecorder)) error {
	if err := rec.BeginPass(fb, clear); err != nil {
		return err
	}
	rec.SetProgram(prog)
	rec.SetViewport(vp)
	rec.SetRasterState(gpucore.RasterState{})
	if bind != nil {
		bind(rec)
	}
	rec.Draw(3, 1)
	return rec.EndPass()
}
