package wgpu

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
)

// Shader entry points every program must define.
const (
	vertexEntry   = "vs_main"
	fragmentEntry = "fs_main"
	computeEntry  = "cs_main"
)

// program owns the shader modules of one gpucore program and the
// pipelines built from them.
type program struct {
	label   string
	compute bool
	vs, fs  hal.ShaderModule

	// pipelines is guarded by Device.mu.
	pipelines map[pipelineKey]*pipeline
}

type pipeline struct {
	bgl    hal.BindGroupLayout
	layout hal.PipelineLayout
	render hal.RenderPipeline
	comp   hal.ComputePipeline
}

func (p *pipeline) destroy(dev hal.Device) {
	if p.render != nil {
		dev.DestroyRenderPipeline(p.render)
	}
	if p.comp != nil {
		dev.DestroyComputePipeline(p.comp)
	}
	if p.layout != nil {
		dev.DestroyPipelineLayout(p.layout)
	}
	if p.bgl != nil {
		dev.DestroyBindGroupLayout(p.bgl)
	}
}

func (p *program) destroy(dev hal.Device) {
	for _, pl := range p.pipelines {
		pl.destroy(dev)
	}
	p.pipelines = nil
	if p.vs != nil {
		dev.DestroyShaderModule(p.vs)
	}
	if p.fs != nil {
		dev.DestroyShaderModule(p.fs)
	}
}

// targetKey describes the attachments a render pipeline writes.
type targetKey struct {
	color   gputypes.TextureFormat
	colors  int
	depth   gputypes.TextureFormat
	samples uint32
}

// pipelineKey identifies a pipeline within its program. layout is the
// bind group signature produced by bindSet.signature.
type pipelineKey struct {
	target targetKey
	raster gpucore.RasterState
	layout string
}

// CreateProgram implements gpucore.Device.
func (d *Device) CreateProgram(desc *gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	p := &program{label: desc.Label, compute: desc.Compute, pipelines: make(map[pipelineKey]*pipeline)}

	var err error
	if !desc.Compute {
		p.vs, err = d.shaderModule(desc.Label+"_vs", desc.VertexWGSL, desc.VertexSPIRV)
		if err != nil {
			return gpucore.InvalidID, err
		}
	}
	p.fs, err = d.shaderModule(desc.Label+"_fs", desc.FragmentWGSL, desc.FragmentSPIRV)
	if err != nil {
		p.destroy(d.dev)
		return gpucore.InvalidID, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		p.destroy(d.dev)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.ProgramID(d.newIDLocked())
	d.programs[id] = p
	logging.L().Debug("wgpu: program created", "program", desc.Label, "compute", desc.Compute)
	return id, nil
}

func (d *Device) shaderModule(label, wgsl string, spirv []uint32) (hal.ShaderModule, error) {
	src := hal.ShaderSource{WGSL: wgsl}
	if len(spirv) > 0 {
		src = hal.ShaderSource{SPIRV: spirv}
	}
	if src.WGSL == "" && len(src.SPIRV) == 0 {
		return nil, fmt.Errorf("wgpu: shader %s has no source", label)
	}
	m, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader %s: %w", label, err)
	}
	return m, nil
}

// DestroyProgram implements gpucore.Device.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	p, ok := d.programs[id]
	delete(d.programs, id)
	d.mu.Unlock()
	if ok {
		p.destroy(d.dev)
	}
}

// bindKind is the resource type bound at one slot.
type bindKind struct {
	slot    uint32
	texture bool
	sample  gputypes.TextureSampleType
	msaa    bool
	buffer  gputypes.BufferBindingType
}

func (k bindKind) String() string {
	if k.texture {
		return fmt.Sprintf("%d:t%d/%t", k.slot, k.sample, k.msaa)
	}
	return fmt.Sprintf("%d:b%d", k.slot, k.buffer)
}

// sampleType maps a texture format to the sample type shaders read it
// with. 32-bit float formats are not filterable without an optional feature.
func sampleType(f gputypes.TextureFormat) gputypes.TextureSampleType {
	switch {
	case isDepthFormat(f):
		return gputypes.TextureSampleTypeDepth
	case f == gputypes.TextureFormatR32Float, f == gputypes.TextureFormatRG32Float, f == gputypes.TextureFormatRGBA32Float:
		return gputypes.TextureSampleTypeUnfilterableFloat
	}
	return gputypes.TextureSampleTypeFloat
}

// bufferType maps buffer usage to its binding type. Storage buffers are
// writable only from compute programs.
func bufferType(u gputypes.BufferUsage, compute bool) gputypes.BufferBindingType {
	switch {
	case u&gputypes.BufferUsageUniform != 0:
		return gputypes.BufferBindingTypeUniform
	case compute:
		return gputypes.BufferBindingTypeStorage
	}
	return gputypes.BufferBindingTypeReadOnlyStorage
}

// signature returns a stable key for a list of bind kinds sorted by slot.
func signature(kinds []bindKind) string {
	var sb strings.Builder
	for i, k := range kinds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k.String())
	}
	return sb.String()
}

// pipelineFor returns the cached pipeline for key, building it on first use.
func (d *Device) pipelineFor(p *program, key pipelineKey, kinds []bindKind) (*pipeline, error) {
	d.mu.Lock()
	pl, ok := p.pipelines[key]
	d.mu.Unlock()
	if ok {
		return pl, nil
	}

	pl, err := d.buildPipeline(p, key, kinds)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := p.pipelines[key]; ok {
		// Another recorder won the race.
		pl.destroy(d.dev)
		return existing, nil
	}
	if p.pipelines == nil {
		pl.destroy(d.dev)
		return nil, fmt.Errorf("%w: program %s", ErrUnknownResource, p.label)
	}
	p.pipelines[key] = pl
	logging.L().Debug("wgpu: pipeline created", "program", p.label, "layout", key.layout,
		"samples", key.target.samples, "pipelines", strconv.Itoa(len(p.pipelines)))
	return pl, nil
}

func (d *Device) buildPipeline(p *program, key pipelineKey, kinds []bindKind) (*pipeline, error) {
	visibility := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	if p.compute {
		visibility = gputypes.ShaderStageCompute
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(kinds))
	for _, k := range kinds {
		e := gputypes.BindGroupLayoutEntry{Binding: k.slot, Visibility: visibility}
		if k.texture {
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    k.sample,
				ViewDimension: gputypes.TextureViewDimension2D,
				Multisampled:  k.msaa,
			}
		} else {
			e.Buffer = &gputypes.BufferBindingLayout{Type: k.buffer}
		}
		entries = append(entries, e)
	}

	pl := &pipeline{}
	var err error
	pl.bgl, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: create bind group layout: %w", p.label, err)
	}
	pl.layout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{pl.bgl},
	})
	if err != nil {
		pl.destroy(d.dev)
		return nil, fmt.Errorf("wgpu: %s: create pipeline layout: %w", p.label, err)
	}

	if p.compute {
		pl.comp, err = d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   p.label,
			Layout:  pl.layout,
			Compute: hal.ComputeState{Module: p.fs, EntryPoint: computeEntry},
		})
		if err != nil {
			pl.destroy(d.dev)
			return nil, fmt.Errorf("wgpu: %s: create compute pipeline: %w", p.label, err)
		}
		return pl, nil
	}

	pl.render, err = d.dev.CreateRenderPipeline(renderPipelineDesc(p, pl.layout, key))
	if err != nil {
		pl.destroy(d.dev)
		return nil, fmt.Errorf("wgpu: %s: create render pipeline: %w", p.label, err)
	}
	return pl, nil
}

func renderPipelineDesc(p *program, layout hal.PipelineLayout, key pipelineKey) *hal.RenderPipelineDescriptor {
	desc := &hal.RenderPipelineDescriptor{
		Label:  p.label,
		Layout: layout,
		Vertex: hal.VertexState{Module: p.vs, EntryPoint: vertexEntry},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: key.target.samples,
			Mask:  0xFFFFFFFF,
		},
	}
	if key.raster.CullBack {
		desc.Primitive.CullMode = gputypes.CullModeBack
	}

	if key.target.colors > 0 {
		targets := make([]gputypes.ColorTargetState, key.target.colors)
		for i := range targets {
			targets[i] = gputypes.ColorTargetState{
				Format:    key.target.color,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
			if key.raster.Blend {
				premul := gputypes.BlendStatePremultiplied()
				targets[i].Blend = &premul
			}
		}
		desc.Fragment = &hal.FragmentState{Module: p.fs, EntryPoint: fragmentEntry, Targets: targets}
	}

	if key.target.depth != gputypes.TextureFormatUndefined {
		compare := gputypes.CompareFunctionAlways
		if key.raster.DepthTest {
			compare = gputypes.CompareFunctionLessEqual
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            key.target.depth,
			DepthWriteEnabled: key.raster.DepthWrite,
			DepthCompare:      compare,
			StencilFront:      stencilKeep(),
			StencilBack:       stencilKeep(),
		}
	}
	return desc
}

func stencilKeep() hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
}

// sortKinds orders kinds by slot, as layouts and bind groups expect.
func sortKinds(kinds []bindKind) {
	slices.SortFunc(kinds, func(a, b bindKind) int { return int(a.slot) - int(b.slot) })
}
