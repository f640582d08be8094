package rendergraph

import (
	"github.com/cockroachdb/errors"
)

// Configuration errors. Every error wrapping one of these also carries an
// assertion-failure marker; see IsConfigurationError.
var (
	// ErrResourceNotFound is returned when a pass reads a name not written earlier in the build.
	ErrResourceNotFound = errors.New("rendergraph: resource not found")

	// ErrConflictingWrite is returned when a name is written twice in one build with different descriptors.
	ErrConflictingWrite = errors.New("rendergraph: conflicting write descriptors")

	// ErrWriteAfterRead is returned when a name is written after it was already read in the same build.
	ErrWriteAfterRead = errors.New("rendergraph: write after read")

	// ErrKindMismatch is returned when a texture accessor is used on a buffer or vice versa.
	ErrKindMismatch = errors.New("rendergraph: resource kind mismatch")

	// ErrHandleOutOfScope is returned when a handle is used outside the Execute that follows its Setup.
	ErrHandleOutOfScope = errors.New("rendergraph: handle used outside its setup/execute pair")

	// ErrStaleHandle is returned when a handle refers to a reclaimed table slot.
	ErrStaleHandle = errors.New("rendergraph: stale handle")

	// ErrWrongPhase is returned when a builder method is called in the wrong build phase.
	ErrWrongPhase = errors.New("rendergraph: wrong build phase")

	// ErrDuplicatePass is returned when two passes in one build share a name.
	ErrDuplicatePass = errors.New("rendergraph: duplicate pass name")

	// ErrUnknownPass is returned when a declaration names a pass not added to the build.
	ErrUnknownPass = errors.New("rendergraph: unknown pass")

	// ErrInvalidDescriptor is returned for descriptors with zero size or an unknown kind.
	ErrInvalidDescriptor = errors.New("rendergraph: invalid descriptor")
)

// ErrAllocationFailed marks storage the backend failed to create. It is not
// a configuration error: the passes touching the resource are degraded.
var ErrAllocationFailed = errors.New("rendergraph: allocation failed")

// configError wraps a sentinel with context and the assertion-failure marker.
func configError(sentinel error, format string, args ...any) error {
	return errors.WithAssertionFailure(errors.Wrapf(sentinel, format, args...))
}

// IsConfigurationError reports whether err reflects a graph wiring bug.
// Such errors propagate as hard failures; everything else degrades one pass.
func IsConfigurationError(err error) bool {
	return errors.HasAssertionFailure(err)
}
