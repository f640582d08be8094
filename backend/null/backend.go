package null

import (
	"github.com/SergeyYablokov/occdemo-sub001/backend"
	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

func init() {
	backend.Register(backend.BackendNull, func() backend.Backend { return New() })
}

// Backend wraps a null Device as a backend.Backend.
type Backend struct {
	dev *Device
}

// New returns an uninitialized null backend.
func New() *Backend { return &Backend{} }

// Name implements backend.Backend.
func (b *Backend) Name() string { return backend.BackendNull }

// Init implements backend.Backend.
func (b *Backend) Init() error {
	if b.dev == nil {
		b.dev = NewDevice()
	}
	return nil
}

// Device implements backend.Backend.
func (b *Backend) Device() gpucore.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// NullDevice returns the concrete device for inspection.
func (b *Backend) NullDevice() *Device { return b.dev }

// Close implements backend.Backend.
func (b *Backend) Close() {
	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
}
