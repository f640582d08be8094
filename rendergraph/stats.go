package rendergraph

import "fmt"

// Stats counts builder activity since creation.
type Stats struct {
	// Builds is the number of completed builds.
	Builds int

	// Allocations counts storage created on the device.
	Allocations int

	// Reallocations counts storage recreated because a descriptor changed.
	Reallocations int

	// Reuses counts writes resolved to the previous build's storage.
	Reuses int

	// Recycled counts writes resolved to storage released by another name.
	Recycled int

	// Destroyed counts storage destroyed on the device.
	Destroyed int

	// Live is the number of names currently bound to graph-owned storage.
	Live int

	// Degraded counts pass executions skipped after backend failures.
	Degraded int
}

// String returns a one-line summary for logs.
func (s Stats) String() string {
	return fmt.Sprintf("builds=%d alloc=%d realloc=%d reuse=%d recycled=%d destroyed=%d live=%d degraded=%d",
		s.Builds, s.Allocations, s.Reallocations, s.Reuses, s.Recycled, s.Destroyed, s.Live, s.Degraded)
}

// Stats returns a snapshot of the counters.
func (b *Builder) Stats() Stats {
	s := b.stats
	b.table.each(func(_ uint32, e *entry) {
		if !e.imported && e.store.valid() {
			s.Live++
		}
	})
	return s
}
