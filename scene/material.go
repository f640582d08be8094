package scene

import (
	"encoding/binary"
	"math"
)

// MaterialRecordSize is the size of one encoded material record.
const MaterialRecordSize = 64

// Texture slots of a material.
const (
	SlotBaseColor = iota
	SlotNormal
	SlotMetallicRoughness
	SlotEmissive

	// MaxMaterialTextures is the number of texture slots per material.
	MaxMaterialTextures
)

// TextureRef refers to a texture registered with a Store.
type TextureRef int32

// NoTexture marks an unused material texture slot.
const NoTexture TextureRef = -1

// noTextureIndex is the encoded form of NoTexture.
const noTextureIndex = math.MaxUint32

// Material is the CPU-side description of a surface.
//
// Encoded layout (little endian, 64 bytes):
//
//	 0  BaseColor    [4]f32
//	16  Emissive     [3]f32
//	28  Metallic     f32
//	32  Roughness    f32
//	36  AlphaCutoff  f32
//	40  Textures     [4]u32  index into the texture table, 0xFFFFFFFF if unused
//	56  Flags        u32     bit i set when texture slot i is used
//	60  reserved
type Material struct {
	BaseColor   [4]float32
	Emissive    [3]float32
	Metallic    float32
	Roughness   float32
	AlphaCutoff float32
	Textures    [MaxMaterialTextures]TextureRef
}

// DefaultMaterial returns an opaque white dielectric with no textures.
func DefaultMaterial() Material {
	return Material{
		BaseColor: [4]float32{1, 1, 1, 1},
		Roughness: 0.5,
		Textures:  [MaxMaterialTextures]TextureRef{NoTexture, NoTexture, NoTexture, NoTexture},
	}
}

// encode writes the record into dst. index maps a texture reference to its
// position in the texture table.
func (m *Material) encode(dst []byte, index func(TextureRef) uint32) {
	le := binary.LittleEndian
	for i, v := range m.BaseColor {
		le.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	for i, v := range m.Emissive {
		le.PutUint32(dst[16+i*4:], math.Float32bits(v))
	}
	le.PutUint32(dst[28:], math.Float32bits(m.Metallic))
	le.PutUint32(dst[32:], math.Float32bits(m.Roughness))
	le.PutUint32(dst[36:], math.Float32bits(m.AlphaCutoff))

	var flags uint32
	for i, ref := range m.Textures {
		idx := uint32(noTextureIndex)
		if ref != NoTexture {
			idx = index(ref)
			flags |= 1 << i
		}
		le.PutUint32(dst[40+i*4:], idx)
	}
	le.PutUint32(dst[56:], flags)
	le.PutUint32(dst[60:], 0)
}

// DecodeMaterial reads a record produced by the store. Texture slots are
// returned as table indices.
func DecodeMaterial(src []byte) (m Material, flags uint32) {
	le := binary.LittleEndian
	for i := range m.BaseColor {
		m.BaseColor[i] = math.Float32frombits(le.Uint32(src[i*4:]))
	}
	for i := range m.Emissive {
		m.Emissive[i] = math.Float32frombits(le.Uint32(src[16+i*4:]))
	}
	m.Metallic = math.Float32frombits(le.Uint32(src[28:]))
	m.Roughness = math.Float32frombits(le.Uint32(src[32:]))
	m.AlphaCutoff = math.Float32frombits(le.Uint32(src[36:]))
	for i := range m.Textures {
		idx := le.Uint32(src[40+i*4:])
		if idx == noTextureIndex {
			m.Textures[i] = NoTexture
			continue
		}
		m.Textures[i] = TextureRef(idx)
	}
	return m, le.Uint32(src[56:])
}
