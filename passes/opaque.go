package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
	"github.com/SergeyYablokov/occdemo-sub001/scene"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// Opaque draws one tile per material into Color and Depth. Both targets
// are multisampled when the view is.
type Opaque struct {
	// Instances is the number of tiles drawn. Zero draws one.
	Instances uint32

	// ClearColor is the background color.
	ClearColor gputypes.Color

	lazy   rendergraph.LazyState
	target target
	prog   *shader.Program

	materials, textures rendergraph.ResourceHandle
	color, depth        rendergraph.ResourceHandle
}

// NewOpaque returns an Opaque pass clearing to black.
func NewOpaque() *Opaque {
	return &Opaque{
		ClearColor: gputypes.Color{A: 1},
		target:     target{key: "color+depth"},
	}
}

// Name implements rendergraph.Pass.
func (p *Opaque) Name() string { return "opaque" }

// Setup implements rendergraph.Pass.
func (p *Opaque) Setup(b *rendergraph.PassBuilder) error {
	v := b.View()
	var err error
	if p.materials, err = b.ReadBuffer(scene.MaterialsResource); err != nil {
		return err
	}
	if p.textures, err = b.ReadBuffer(scene.TexturesResource); err != nil {
		return err
	}
	color := rendergraph.Texture2D(v.Width, v.Height, rendergraph.RawRGBA16F).WithSamples(v.SampleCount())
	if p.color, err = b.WriteTexture(ResColor, color); err != nil {
		return err
	}
	depth := rendergraph.Texture2D(v.Width, v.Height, rendergraph.Depth32F).WithSamples(v.SampleCount())
	p.depth, err = b.WriteTexture(ResDepth, depth)
	return err
}

// LazyInit implements rendergraph.LazyIniter.
func (p *Opaque) LazyInit(ec *rendergraph.ExecContext) error {
	var variant []string
	if ec.View().Multisampled() {
		variant = append(variant, variantMSAA)
	}
	p.prog = ec.Programs().LoadProgram("opaque", opaqueWGSL, opaqueWGSL, variant...)
	if err := p.prog.Check(); err != nil {
		return err
	}

	color, err := ec.GetWriteTexture(p.color)
	if err != nil {
		return err
	}
	depth, err := ec.GetWriteTexture(p.depth)
	if err != nil {
		return err
	}
	return p.target.ensure(ec, &p.lazy, &depth, color)
}

// Execute implements rendergraph.Pass.
func (p *Opaque) Execute(ec *rendergraph.ExecContext) error {
	materials, err := ec.GetReadBuffer(p.materials)
	if err != nil {
		return err
	}
	textures, err := ec.GetReadBuffer(p.textures)
	if err != nil {
		return err
	}
	color, err := ec.GetWriteTexture(p.color)
	if err != nil {
		return err
	}

	rec := ec.Recorder()
	if err := rec.BeginPass(p.target.fb, &gpucore.ClearValue{Color: p.ClearColor, Depth: 1}); err != nil {
		return err
	}
	rec.SetProgram(p.prog.ID())
	rec.SetViewport(viewport(color))
	rec.SetRasterState(gpucore.RasterState{DepthTest: true, DepthWrite: true, CullBack: true})
	rec.BindBuffer(SlotView, ec.View().Uniforms)
	rec.BindBuffer(SlotMaterials, materials.Buffer)
	rec.BindBuffer(SlotTextures, textures.Buffer)
	rec.Draw(6, max(p.Instances, 1))
	return rec.EndPass()
}

// Release implements rendergraph.Releaser.
func (p *Opaque) Release(dev gpucore.Device) {
	p.target.destroy(dev)
	p.lazy.Reset()
}
