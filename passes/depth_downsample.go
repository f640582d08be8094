package passes

import (
	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// DepthDownsample reduces Depth to the half-resolution DepthHalf, keeping
// the farthest of each 2x2 block.
type DepthDownsample struct {
	lazy   rendergraph.LazyState
	target target
	prog   *shader.Program

	depth, half rendergraph.ResourceHandle
}

// NewDepthDownsample returns a DepthDownsample pass.
func NewDepthDownsample() *DepthDownsample {
	return &DepthDownsample{target: target{key: "half"}}
}

// Name implements rendergraph.Pass.
func (p *DepthDownsample) Name() string { return "depth-downsample" }

// Setup implements rendergraph.Pass.
func (p *DepthDownsample) Setup(b *rendergraph.PassBuilder) error {
	v := b.View()
	var err error
	if p.depth, err = b.ReadTexture(ResDepth); err != nil {
		return err
	}
	half := rendergraph.Texture2D(halfExtent(v.Width), halfExtent(v.Height), rendergraph.RawR32F)
	p.half, err = b.WriteTexture(ResDepthHalf, half)
	return err
}

// LazyInit implements rendergraph.LazyIniter.
func (p *DepthDownsample) LazyInit(ec *rendergraph.ExecContext) error {
	depth, err := ec.GetReadTexture(p.depth)
	if err != nil {
		return err
	}
	src, variant := variantSource(depthDownsampleWGSL, wgslDepth, depth.Desc.Samples > 1)
	p.prog = ec.Programs().LoadProgram("depth-downsample", fullscreenWGSL, src, variant...)
	if err := p.prog.Check(); err != nil {
		return err
	}

	half, err := ec.GetWriteTexture(p.half)
	if err != nil {
		return err
	}
	return p.target.ensure(ec, &p.lazy, nil, half)
}

// Execute implements rendergraph.Pass.
func (p *DepthDownsample) Execute(ec *rendergraph.ExecContext) error {
	depth, err := ec.GetReadTexture(p.depth)
	if err != nil {
		return err
	}
	half, err := ec.GetWriteTexture(p.half)
	if err != nil {
		return err
	}
	return fullscreen(ec.Recorder(), p.target.fb, viewport(half), p.prog.ID(), nil, func(rec gpucore.CommandRecorder) {
		rec.BindTexture(SlotInput0, depth.Texture)
	})
}

// Release implements rendergraph.Releaser.
func (p *DepthDownsample) Release(dev gpucore.Device) {
	p.target.destroy(dev)
	p.lazy.Reset()
}
