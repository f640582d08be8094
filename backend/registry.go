package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
)

// Factory creates a new backend instance.
type Factory func() Backend

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registry.Register(name, factory)
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names.
func Available() []string {
	return registry.Available()
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a new backend instance by name, or nil if not registered.
func Get(name string) Backend {
	return registry.Get(name)
}

// Default returns the best available backend based on priority.
// Returns nil if no backends are registered.
func Default() Backend {
	return registry.Best()
}

// priority lists backends from most to least preferred.
var priority = []string{BackendWGPU, BackendNull}

var registry = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority(priority...),
)

// Open selects a backend by name and initializes it. "" or "auto" tries
// registered backends in priority order and returns the first that
// initializes.
func Open(name string) (Backend, error) {
	if name != "" && name != "auto" {
		b := registry.Get(name)
		if b == nil {
			return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
		}
		if err := b.Init(); err != nil {
			return nil, fmt.Errorf("backend %s: init: %w", name, err)
		}
		logging.L().Info("backend selected", "name", b.Name())
		return b, nil
	}

	var errs []error
	for _, n := range priority {
		b := registry.Get(n)
		if b == nil {
			continue
		}
		if err := b.Init(); err != nil {
			logging.L().Warn("backend unavailable", "name", n, "err", err)
			errs = append(errs, fmt.Errorf("backend %s: init: %w", n, err))
			continue
		}
		logging.L().Info("backend selected", "name", b.Name())
		return b, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no backend registered", ErrBackendNotAvailable)
	}
	return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}
