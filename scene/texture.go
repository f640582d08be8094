package scene

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// TextureRecordSize is the size of one encoded texture table record.
const TextureRecordSize = 16

// textureEntry is one row of the texture table.
//
// Encoded layout (little endian, 16 bytes):
//
//	 0  handle  u64  bindless handle, or the row index on devices without bindless support
//	 8  width   u32
//	12  height  u32
type textureEntry struct {
	id            gpucore.TextureID
	width, height uint32
}

// textureTable resolves texture references for encoding. It is not safe
// for concurrent use; the Store serializes access.
type textureTable struct {
	bindless gpucore.BindlessDevice
	entries  []textureEntry
}

func (t *textureTable) add(id gpucore.TextureID, width, height uint32) TextureRef {
	t.entries = append(t.entries, textureEntry{id: id, width: width, height: height})
	return TextureRef(len(t.entries) - 1)
}

func (t *textureTable) valid(ref TextureRef) bool {
	return ref == NoTexture || (ref >= 0 && int(ref) < len(t.entries))
}

// handle returns the value shaders use to reach a texture: its bindless
// handle, or its row index when the device has no bindless support.
func (t *textureTable) handle(ref TextureRef) (uint64, error) {
	if ref < 0 || int(ref) >= len(t.entries) {
		return 0, errors.Wrapf(ErrUnknownTexture, "%d", ref)
	}
	if t.bindless == nil {
		return uint64(ref), nil
	}
	return t.bindless.TextureHandle(t.entries[ref].id)
}

// makeResident makes a referenced texture reachable through its handle.
func (t *textureTable) makeResident(ref TextureRef) error {
	if ref < 0 || int(ref) >= len(t.entries) {
		return errors.Wrapf(ErrUnknownTexture, "%d", ref)
	}
	if t.bindless == nil {
		return nil
	}
	id := t.entries[ref].id
	if t.bindless.IsResident(id) {
		return nil
	}
	if err := t.bindless.MakeResident(id); err != nil {
		return errors.Wrapf(err, "make texture %d resident", id)
	}
	return nil
}

func (t *textureTable) encode(i int, dst []byte) error {
	h, err := t.handle(TextureRef(i))
	if err != nil {
		return err
	}
	e := t.entries[i]
	binary.LittleEndian.PutUint64(dst[0:], h)
	binary.LittleEndian.PutUint32(dst[8:], e.width)
	binary.LittleEndian.PutUint32(dst[12:], e.height)
	return nil
}
