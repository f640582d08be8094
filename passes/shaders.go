package passes

import (
	_ "embed"
	"strings"
)

//go:embed shaders/fullscreen.wgsl
var fullscreenWGSL string

//go:embed shaders/opaque.wgsl
var opaqueWGSL string

//go:embed shaders/depth_downsample.wgsl
var depthDownsampleWGSL string

//go:embed shaders/ssao.wgsl
var ssaoWGSL string

//go:embed shaders/blur.wgsl
var blurWGSL string

//go:embed shaders/upsample.wgsl
var upsampleWGSL string

//go:embed shaders/luma_down.wgsl
var lumaDownWGSL string

//go:embed shaders/luma_reduce.wgsl
var lumaReduceWGSL string

// Texture binding types and their multisampled counterparts.
const (
	wgslDepth   = "texture_depth_2d"
	wgslColor   = "texture_2d<f32>"
	wgslDepthMS = "texture_depth_multisampled_2d"
	wgslColorMS = "texture_multisampled_2d<f32>"
)

// multisampled rewrites every binding of type typ in src to its
// multisampled form. textureLoad takes a sample index where the
// single-sampled form takes a mip level, so call sites are unchanged.
func multisampled(src, typ string) string {
	switch typ {
	case wgslDepth:
		return strings.ReplaceAll(src, wgslDepth, wgslDepthMS)
	case wgslColor:
		return strings.ReplaceAll(src, wgslColor, wgslColorMS)
	default:
		return src
	}
}

// variantSource returns src and the variant tags for an input that may be
// multisampled.
func variantSource(src, typ string, msaa bool) (string, []string) {
	if !msaa {
		return src, nil
	}
	return multisampled(src, typ), []string{variantMSAA}
}
