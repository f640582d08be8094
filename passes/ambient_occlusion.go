package passes

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// AO defaults.
const (
	DefaultAORadius    = 0.5
	DefaultAOBias      = 0.025
	DefaultAOIntensity = 1.0
)

// aoKernelSamples is the number of hemisphere samples in the kernel asset.
const aoKernelSamples = 16

// AmbientOcclusion computes screen-space ambient occlusion at half
// resolution into AORaw, blurs it through AOBlur and upsamples the result
// into the full-resolution AO target using Depth to preserve edges.
//
// The sample kernel is a one-time asset; the three framebuffers follow
// their attachments.
type AmbientOcclusion struct {
	Radius    float32
	Bias      float32
	Intensity float32

	lazy   rendergraph.LazyState
	kernel gpucore.BufferID

	raw, blur, up                 target
	progSSAO, progBlur, progUpsmp *shader.Program

	depthHalf, depth  rendergraph.ResourceHandle
	aoRaw, aoBlur, ao rendergraph.ResourceHandle
}

// NewAmbientOcclusion returns an AmbientOcclusion pass with default parameters.
func NewAmbientOcclusion() *AmbientOcclusion {
	return &AmbientOcclusion{
		Radius:    DefaultAORadius,
		Bias:      DefaultAOBias,
		Intensity: DefaultAOIntensity,
		raw:       target{key: "raw"},
		blur:      target{key: "blur"},
		up:        target{key: "upsample"},
	}
}

// Name implements rendergraph.Pass.
func (p *AmbientOcclusion) Name() string { return "ambient-occlusion" }

// Setup implements rendergraph.Pass.
func (p *AmbientOcclusion) Setup(b *rendergraph.PassBuilder) error {
	v := b.View()
	var err error
	if p.depthHalf, err = b.ReadTexture(ResDepthHalf); err != nil {
		return err
	}
	if p.depth, err = b.ReadTexture(ResDepth); err != nil {
		return err
	}
	half := rendergraph.Texture2D(halfExtent(v.Width), halfExtent(v.Height), rendergraph.RawR8)
	if p.aoRaw, err = b.WriteTexture(ResAORaw, half); err != nil {
		return err
	}
	if p.aoBlur, err = b.WriteTexture(ResAOBlur, half); err != nil {
		return err
	}
	p.ao, err = b.WriteTexture(ResAO, rendergraph.Texture2D(v.Width, v.Height, rendergraph.RawR8))
	return err
}

// LazyInit implements rendergraph.LazyIniter.
func (p *AmbientOcclusion) LazyInit(ec *rendergraph.ExecContext) error {
	if !p.lazy.AssetsLoaded() {
		if err := p.loadKernel(ec); err != nil {
			return err
		}
		p.lazy.MarkAssetsLoaded()
	}

	depth, err := ec.GetReadTexture(p.depth)
	if err != nil {
		return err
	}
	programs := ec.Programs()
	upSrc, variant := variantSource(upsampleWGSL, wgslDepth, depth.Desc.Samples > 1)
	p.progSSAO = programs.LoadProgram("ssao", fullscreenWGSL, ssaoWGSL)
	p.progBlur = programs.LoadProgram("ssao-blur", fullscreenWGSL, blurWGSL)
	p.progUpsmp = programs.LoadProgram("ssao-upsample", fullscreenWGSL, upSrc, variant...)
	if err := errors.CombineErrors(p.progSSAO.Check(),
		errors.CombineErrors(p.progBlur.Check(), p.progUpsmp.Check())); err != nil {
		return err
	}

	aoRaw, err := ec.GetWriteTexture(p.aoRaw)
	if err != nil {
		return err
	}
	aoBlur, err := ec.GetWriteTexture(p.aoBlur)
	if err != nil {
		return err
	}
	ao, err := ec.GetWriteTexture(p.ao)
	if err != nil {
		return err
	}
	if err := p.raw.ensure(ec, &p.lazy, nil, aoRaw); err != nil {
		return err
	}
	if err := p.blur.ensure(ec, &p.lazy, nil, aoBlur); err != nil {
		return err
	}
	return p.up.ensure(ec, &p.lazy, nil, ao)
}

func (p *AmbientOcclusion) loadKernel(ec *rendergraph.ExecContext) error {
	dev := ec.Device()
	data := encodeKernel(aoKernel())
	id, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label: ec.Label("kernel"),
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrap(err, "ssao kernel")
	}
	if err := dev.WriteBuffer(id, 0, data); err != nil {
		dev.DestroyBuffer(id)
		return errors.Wrap(err, "upload ssao kernel")
	}
	p.kernel = id
	return nil
}

// Execute implements rendergraph.Pass.
func (p *AmbientOcclusion) Execute(ec *rendergraph.ExecContext) error {
	depthHalf, err := ec.GetReadTexture(p.depthHalf)
	if err != nil {
		return err
	}
	depth, err := ec.GetReadTexture(p.depth)
	if err != nil {
		return err
	}
	aoRaw, err := ec.GetWriteTexture(p.aoRaw)
	if err != nil {
		return err
	}
	aoBlur, err := ec.GetWriteTexture(p.aoBlur)
	if err != nil {
		return err
	}
	ao, err := ec.GetWriteTexture(p.ao)
	if err != nil {
		return err
	}

	rec := ec.Recorder()
	uniforms := ec.View().Uniforms
	half := viewport(aoRaw)

	// raw occlusion
	err = fullscreen(rec, p.raw.fb, half, p.progSSAO.ID(), nil, func(rec gpucore.CommandRecorder) {
		rec.BindBuffer(SlotView, uniforms)
		rec.SetConstants(p.constants())
		rec.BindTexture(SlotInput0, depthHalf.Texture)
		rec.BindBuffer(SlotInput0+1, p.kernel)
	})
	if err != nil {
		return err
	}

	// horizontal blur: AORaw -> AOBlur
	err = fullscreen(rec, p.blur.fb, half, p.progBlur.ID(), nil, func(rec gpucore.CommandRecorder) {
		rec.SetConstants(blurDirection(1, 0))
		rec.BindTexture(SlotInput0, aoRaw.Texture)
	})
	if err != nil {
		return err
	}

	// vertical blur: AOBlur -> AORaw
	err = fullscreen(rec, p.raw.fb, half, p.progBlur.ID(), nil, func(rec gpucore.CommandRecorder) {
		rec.SetConstants(blurDirection(0, 1))
		rec.BindTexture(SlotInput0, aoBlur.Texture)
	})
	if err != nil {
		return err
	}

	return fullscreen(rec, p.up.fb, viewport(ao), p.progUpsmp.ID(), nil, func(rec gpucore.CommandRecorder) {
		rec.BindTexture(SlotInput0, aoRaw.Texture)
		rec.BindTexture(SlotInput0+1, depthHalf.Texture)
		rec.BindTexture(SlotInput0+2, depth.Texture)
	})
}

// constants packs Radius, Bias and Intensity into the constant block.
func (p *AmbientOcclusion) constants() []byte {
	buf := make([]byte, 16)
	putFloats(buf, p.Radius, p.Bias, p.Intensity, 0)
	return buf
}

// Release implements rendergraph.Releaser.
func (p *AmbientOcclusion) Release(dev gpucore.Device) {
	p.raw.destroy(dev)
	p.blur.destroy(dev)
	p.up.destroy(dev)
	if p.kernel != gpucore.InvalidID {
		dev.DestroyBuffer(p.kernel)
		p.kernel = gpucore.InvalidID
	}
	p.lazy.Reset()
}

func blurDirection(x, y int32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], uint32(x))
	binary.LittleEndian.PutUint32(buf[4:], uint32(y))
	return buf
}

// aoKernel returns hemisphere samples along a golden-angle spiral, scaled
// so that samples cluster near the origin.
func aoKernel() []mgl32.Vec3 {
	const goldenAngle = 2.39996323
	out := make([]mgl32.Vec3, aoKernelSamples)
	for i := range out {
		t := (float32(i) + 0.5) / aoKernelSamples
		r := float32(math.Sqrt(float64(1 - t*t)))
		phi := float64(i) * goldenAngle
		dir := mgl32.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), t}
		s := float32(i) / aoKernelSamples
		out[i] = dir.Mul(0.1 + 0.9*s*s)
	}
	return out
}

// encodeKernel packs samples as vec4<f32> with w = 0.
func encodeKernel(samples []mgl32.Vec3) []byte {
	buf := make([]byte, len(samples)*16)
	for i, s := range samples {
		putFloats(buf[i*16:], s[0], s[1], s[2], 0)
	}
	return buf
}
