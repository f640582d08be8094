package streaming

import (
	"fmt"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// SlotState is the position of a ring slot in its reuse cycle.
type SlotState uint8

const (
	// SlotFree means the GPU no longer uses the slot's buffers.
	SlotFree SlotState = iota

	// SlotWriting means the staging buffer is mapped and being filled.
	SlotWriting

	// SlotSubmitted means work using the slot was submitted and its fence
	// has not been observed signaled.
	SlotSubmitted
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "Free"
	case SlotWriting:
		return "Writing"
	case SlotSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// span is a half-open record range. The zero span is empty.
type span struct {
	first, last int
}

func (s span) empty() bool { return s.first >= s.last }

func (s span) union(o span) span {
	switch {
	case o.empty():
		return s
	case s.empty():
		return o
	}
	return span{min(s.first, o.first), max(s.last, o.last)}
}

// slot is one ring position.
type slot struct {
	staging gpucore.BufferID
	device  gpucore.BufferID
	pending span
	fence   gpucore.Fence
	state   SlotState
}

// setFence moves the slot to Submitted under f. A newer fence supersedes
// the previous one because fences signal in submission order.
func (s *slot) setFence(f gpucore.Fence) {
	s.fence = f
	s.state = SlotSubmitted
}

// retire returns the slot to Free once its fence signaled.
func (s *slot) retire() {
	s.fence = gpucore.NoFence
	s.state = SlotFree
}
