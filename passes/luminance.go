package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// Luminance renders the log-luminance of Color into the 64x64 LumaDown
// target, then reduces it with a compute dispatch into the 16-byte
// Luminance buffer.
type Luminance struct {
	lazy   rendergraph.LazyState
	target target

	progDown, progReduce *shader.Program

	color, lumaDown, result rendergraph.ResourceHandle
}

// NewLuminance returns a Luminance pass.
func NewLuminance() *Luminance {
	return &Luminance{target: target{key: "luma-down"}}
}

// Name implements rendergraph.Pass.
func (p *Luminance) Name() string { return "luminance" }

// Setup implements rendergraph.Pass.
func (p *Luminance) Setup(b *rendergraph.PassBuilder) error {
	var err error
	if p.color, err = b.ReadTexture(ResColor); err != nil {
		return err
	}
	down := rendergraph.Texture2D(LumaDownSize, LumaDownSize, rendergraph.RawR16F)
	if p.lumaDown, err = b.WriteTexture(ResLumaDown, down); err != nil {
		return err
	}
	result := rendergraph.Buffer(LuminanceSize, gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc)
	p.result, err = b.WriteBuffer(ResLuminance, result)
	return err
}

// LazyInit implements rendergraph.LazyIniter.
func (p *Luminance) LazyInit(ec *rendergraph.ExecContext) error {
	color, err := ec.GetReadTexture(p.color)
	if err != nil {
		return err
	}
	src, variant := variantSource(lumaDownWGSL, wgslColor, color.Desc.Samples > 1)
	p.progDown = ec.Programs().LoadProgram("luma-down", fullscreenWGSL, src, variant...)
	if err := p.progDown.Check(); err != nil {
		return err
	}
	p.progReduce = ec.Programs().LoadProgram("luma-reduce", "", lumaReduceWGSL)
	if err := p.progReduce.Check(); err != nil {
		return err
	}

	down, err := ec.GetWriteTexture(p.lumaDown)
	if err != nil {
		return err
	}
	return p.target.ensure(ec, &p.lazy, nil, down)
}

// Execute implements rendergraph.Pass.
func (p *Luminance) Execute(ec *rendergraph.ExecContext) error {
	color, err := ec.GetReadTexture(p.color)
	if err != nil {
		return err
	}
	down, err := ec.GetWriteTexture(p.lumaDown)
	if err != nil {
		return err
	}
	result, err := ec.GetWriteBuffer(p.result)
	if err != nil {
		return err
	}

	rec := ec.Recorder()
	err = fullscreen(rec, p.target.fb, viewport(down), p.progDown.ID(), nil, func(rec gpucore.CommandRecorder) {
		rec.BindTexture(SlotInput0, color.Texture)
	})
	if err != nil {
		return err
	}

	// One 8x8 workgroup; each invocation sums an 8x8 block of LumaDown.
	rec.SetProgram(p.progReduce.ID())
	rec.BindTexture(SlotInput0, down.Texture)
	rec.BindBuffer(SlotOutput0, result.Buffer)
	rec.Dispatch(1, 1, 1)
	return nil
}

// Release implements rendergraph.Releaser.
func (p *Luminance) Release(dev gpucore.Device) {
	p.target.destroy(dev)
	p.lazy.Reset()
}
