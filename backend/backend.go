package backend

import (
	"errors"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// Backend names.
const (
	// BackendWGPU is the gogpu/wgpu backend.
	BackendWGPU = "wgpu"

	// BackendNull is the headless in-memory backend.
	BackendNull = "null"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend is a selectable graphics backend.
//
// Backends must be registered via Register() and are selected via Get() or
// Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "wgpu", "null").
	Name() string

	// Init creates the device. It must be called before Device.
	Init() error

	// Device returns the initialized device, or nil before Init.
	Device() gpucore.Device

	// Close releases the device and all resources created from it.
	Close()
}
