package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceKind distinguishes textures from buffers.
type ResourceKind uint8

const (
	// KindTexture2D is a 2D texture, possibly multisampled.
	KindTexture2D ResourceKind = iota + 1

	// KindBuffer is a linear buffer.
	KindBuffer
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindTexture2D:
		return "texture2d"
	case KindBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Raw texel formats used by the passes.
const (
	RawR8      = gputypes.TextureFormatR8Unorm
	RawR16F    = gputypes.TextureFormatR16Float
	RawR32F    = gputypes.TextureFormatR32Float
	RawRGBA8   = gputypes.TextureFormatRGBA8Unorm
	RawRGBA16F = gputypes.TextureFormatRGBA16Float
	Depth32F   = gputypes.TextureFormatDepth32Float
)

// ResourceDescriptor describes a transient resource. Two descriptors are
// interchangeable exactly when they compare equal.
type ResourceDescriptor struct {
	Kind ResourceKind

	// Texture fields.
	Width, Height uint32
	Format        gputypes.TextureFormat
	Samples       uint32
	TextureUsage  gputypes.TextureUsage
	Filter        gputypes.FilterMode
	Wrap          gputypes.AddressMode

	// Buffer fields.
	Size        uint64
	BufferUsage gputypes.BufferUsage
}

// Texture2D returns a single-sampled, linearly filtered, edge-clamped render target descriptor.
func Texture2D(width, height uint32, format gputypes.TextureFormat) ResourceDescriptor {
	return ResourceDescriptor{
		Kind:         KindTexture2D,
		Width:        width,
		Height:       height,
		Format:       format,
		Samples:      1,
		TextureUsage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		Filter:       gputypes.FilterModeLinear,
		Wrap:         gputypes.AddressModeClampToEdge,
	}
}

// Buffer returns a buffer descriptor.
func Buffer(size uint64, usage gputypes.BufferUsage) ResourceDescriptor {
	return ResourceDescriptor{Kind: KindBuffer, Size: size, BufferUsage: usage}
}

// WithSamples returns a copy with the given sample count.
func (d ResourceDescriptor) WithSamples(n uint32) ResourceDescriptor {
	d.Samples = n
	return d
}

// WithSampling returns a copy with the given filter and wrap policy.
func (d ResourceDescriptor) WithSampling(filter gputypes.FilterMode, wrap gputypes.AddressMode) ResourceDescriptor {
	d.Filter = filter
	d.Wrap = wrap
	return d
}

// Equal reports whether d and o describe interchangeable storage.
func (d ResourceDescriptor) Equal(o ResourceDescriptor) bool {
	return d.normalized() == o.normalized()
}

func (d ResourceDescriptor) normalized() ResourceDescriptor {
	if d.Kind == KindTexture2D && d.Samples == 0 {
		d.Samples = 1
	}
	return d
}

func (d ResourceDescriptor) validate() error {
	switch d.Kind {
	case KindTexture2D:
		if d.Width == 0 || d.Height == 0 {
			return fmt.Errorf("zero-sized texture %s", d)
		}
	case KindBuffer:
		if d.Size == 0 {
			return fmt.Errorf("zero-sized buffer")
		}
	default:
		return fmt.Errorf("kind %s", d.Kind)
	}
	return nil
}

// String returns a compact description for logs.
func (d ResourceDescriptor) String() string {
	switch d.Kind {
	case KindTexture2D:
		n := d.normalized()
		return fmt.Sprintf("texture2d %dx%d %s x%d %s/%s", n.Width, n.Height, n.Format, n.Samples, n.Filter, n.Wrap)
	case KindBuffer:
		return fmt.Sprintf("buffer %d bytes", d.Size)
	default:
		return d.Kind.String()
	}
}
