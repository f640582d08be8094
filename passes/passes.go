package passes

import "github.com/SergeyYablokov/occdemo-sub001/rendergraph"

// Frame holds the standard pass chain. The same pointers must be added to
// every build so their cached programs and framebuffers are reused.
type Frame struct {
	Opaque           *Opaque
	DepthDownsample  *DepthDownsample
	AmbientOcclusion *AmbientOcclusion
	Luminance        *Luminance
}

// NewFrame returns the standard chain with default parameters.
func NewFrame() *Frame {
	return &Frame{
		Opaque:           NewOpaque(),
		DepthDownsample:  NewDepthDownsample(),
		AmbientOcclusion: NewAmbientOcclusion(),
		Luminance:        NewLuminance(),
	}
}

// Passes returns the chain in declaration order.
func (f *Frame) Passes() []rendergraph.Pass {
	return []rendergraph.Pass{f.Opaque, f.DepthDownsample, f.AmbientOcclusion, f.Luminance}
}
