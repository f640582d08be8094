package parallel

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// DirtySet tracks which records of a structured buffer changed since the last
// flush, one bit per record packed into atomic words.
//
// All methods are safe for concurrent use. Marks are atomic word updates
// under a shared lock; Resize takes the lock exclusively and grows the set
// in place, so a mark is never lost to a concurrent resize.
type DirtySet struct {
	mu    sync.RWMutex
	words []atomic.Uint64
	n     int
}

// NewDirtySet creates a set for n records, all clean.
// A negative n is treated as zero.
func NewDirtySet(n int) *DirtySet {
	n = max(n, 0)
	return &DirtySet{
		words: make([]atomic.Uint64, (n+63)/64),
		n:     n,
	}
}

// Len returns the number of records tracked.
func (d *DirtySet) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.n
}

func (d *DirtySet) mark(i int) {
	if i < 0 || i >= d.n {
		return
	}
	d.words[i>>6].Or(1 << (i & 63))
}

// Mark flags record i. Out-of-range indices are ignored.
func (d *DirtySet) Mark(i int) {
	d.mu.RLock()
	d.mark(i)
	d.mu.RUnlock()
}

func (d *DirtySet) markRange(first, last int) {
	first = max(first, 0)
	last = min(last, d.n)
	for i := first; i < last; i++ {
		d.mark(i)
	}
}

// MarkRange flags records [first, last).
func (d *DirtySet) MarkRange(first, last int) {
	d.mu.RLock()
	d.markRange(first, last)
	d.mu.RUnlock()
}

// MarkAll flags every record.
func (d *DirtySet) MarkAll() {
	d.mu.RLock()
	d.markRange(0, d.n)
	d.mu.RUnlock()
}

// IsDirty reports whether record i is flagged.
func (d *DirtySet) IsDirty(i int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= d.n {
		return false
	}
	return d.words[i>>6].Load()&(1<<(i&63)) != 0
}

// IsEmpty reports whether no record is flagged.
func (d *DirtySet) IsEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.words {
		if d.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of flagged records.
func (d *DirtySet) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := 0
	for i := range d.words {
		c += bits.OnesCount64(d.words[i].Load())
	}
	return c
}

// Clear unflags every record.
func (d *DirtySet) Clear() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.words {
		d.words[i].Store(0)
	}
}

// TakeRange atomically clears the set and returns the single covering range
// [first, last) of the records that were flagged. ok is false if none were.
//
// Scattered records collapse into one span: {2, 500} yields [2, 501).
func (d *DirtySet) TakeRange() (first, last int, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	first, last = d.n, 0
	for w := range d.words {
		word := d.words[w].Swap(0)
		if word == 0 {
			continue
		}
		lo := w*64 + bits.TrailingZeros64(word)
		hi := w*64 + 63 - bits.LeadingZeros64(word) + 1
		first = min(first, lo)
		last = max(last, hi)
	}
	if first >= last {
		return 0, 0, false
	}
	return first, last, true
}

// ForEach calls fn for each flagged record in ascending order without clearing.
// fn must not call back into d.
func (d *DirtySet) ForEach(fn func(i int)) {
	if fn == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for w := range d.words {
		word := d.words[w].Load()
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(w*64 + b)
			word &^= 1 << b
		}
	}
}

// Resize changes the number of tracked records in place. Records flagged
// below the new length stay flagged; records beyond the old length start
// flagged because their contents are new.
func (d *DirtySet) Resize(n int) {
	n = max(n, 0)
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == d.n {
		return
	}
	old := d.n
	if need := (n + 63) / 64; need != len(d.words) {
		words := make([]atomic.Uint64, need)
		for i := range min(need, len(d.words)) {
			words[i].Store(d.words[i].Load())
		}
		d.words = words
	}
	if n < old && n%64 != 0 {
		// Drop bits past the new end of the last word.
		last := &d.words[len(d.words)-1]
		last.Store(last.Load() & (1<<(n%64) - 1))
	}
	d.n = n
	d.markRange(old, n)
}
