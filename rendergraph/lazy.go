package rendergraph

import "slices"

// LazyState tracks the two independent invalidation levels of a pass's
// backend objects: one-time assets (programs, dummy textures) that are
// built once ever, and attachment sets (framebuffers) that must be rebuilt
// whenever one of their targets is reallocated or resized.
//
// The zero value is ready to use. A LazyState belongs to one pass and is
// only touched from that pass's LazyInit.
type LazyState struct {
	assetsLoaded bool
	attachments  map[string][]attachment
}

type attachment struct {
	texture uint64
	buffer  uint64
	desc    ResourceDescriptor
}

// AssetsLoaded reports whether the one-time assets exist.
func (l *LazyState) AssetsLoaded() bool { return l.assetsLoaded }

// MarkAssetsLoaded records that the one-time assets exist.
func (l *LazyState) MarkAssetsLoaded() { l.assetsLoaded = true }

// AttachmentsChanged compares the identity and descriptor of res with what
// was recorded under key and records the new set. It reports true the first
// time a key is seen and whenever any attachment differs.
func (l *LazyState) AttachmentsChanged(key string, res ...Resource) bool {
	cur := make([]attachment, len(res))
	for i, r := range res {
		cur[i] = attachment{texture: uint64(r.Texture), buffer: uint64(r.Buffer), desc: r.Desc}
	}
	prev, ok := l.attachments[key]
	if ok && slices.Equal(prev, cur) {
		return false
	}
	if l.attachments == nil {
		l.attachments = make(map[string][]attachment)
	}
	l.attachments[key] = cur
	return true
}

// Forget drops the recorded set for key so the next AttachmentsChanged
// reports a change. Passes call it after a failed framebuffer rebuild so
// the rebuild is retried next frame.
func (l *LazyState) Forget(key string) {
	delete(l.attachments, key)
}

// Reset returns the state to its zero value.
func (l *LazyState) Reset() {
	l.assetsLoaded = false
	l.attachments = nil
}
