package passes

import "github.com/SergeyYablokov/occdemo-sub001/gpucore"

// Binding slots. Each slot maps to @group(0) @binding(slot) in WGSL.
const (
	SlotView      = 0 // per-view uniforms (see EncodeViewUniforms)
	SlotMaterials = 1 // scene material records
	SlotTextures  = 2 // scene texture table
	SlotConstants = gpucore.ConstantsSlot
	SlotInput0    = 4 // first pass-specific input; inputs are consecutive
	SlotOutput0   = 8 // first storage output of compute programs
)

// Graph resource names produced and consumed by the passes.
const (
	ResColor     = "Color"
	ResDepth     = "Depth"
	ResDepthHalf = "DepthHalf"
	ResAORaw     = "AORaw"
	ResAOBlur    = "AOBlur"
	ResAO        = "AO"
	ResLumaDown  = "LumaDown"
	ResLuminance = "Luminance"
)

// LumaDownSize is the edge length of the square log-luminance target.
const LumaDownSize = 64

// LuminanceSize is the size of the Luminance result buffer:
// average f32, log average f32, sample count u32, reserved u32.
const LuminanceSize = 16

// variantMSAA is the shader variant tag for multisampled inputs or targets.
const variantMSAA = "msaa"

// halfExtent returns the half-resolution size of a full-resolution extent.
func halfExtent(v uint32) uint32 {
	return max(v/2, 1)
}
