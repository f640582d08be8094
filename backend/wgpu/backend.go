package wgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/backend"
	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend { return New() })
}

// Backend wraps a wgpu Device as a backend.Backend.
type Backend struct {
	api      gputypes.Backend
	provider any
	dev      *Device
}

// Option configures a Backend.
type Option func(*Backend)

// WithAPI selects the HAL backend Init opens. Default Vulkan.
func WithAPI(api gputypes.Backend) Option {
	return func(b *Backend) { b.api = api }
}

// WithProvider makes Init wrap the device of a host application instead
// of opening one. See FromProvider.
func WithProvider(provider any) Option {
	return func(b *Backend) { b.provider = provider }
}

// New returns an uninitialized wgpu backend.
func New(opts ...Option) *Backend {
	b := &Backend{api: gputypes.BackendVulkan}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return backend.BackendWGPU }

// Init implements backend.Backend.
func (b *Backend) Init() error {
	if b.dev != nil {
		return nil
	}
	var (
		dev *Device
		err error
	)
	if b.provider != nil {
		dev, err = FromProvider(b.provider)
	} else {
		dev, err = Open(b.api)
	}
	if err != nil {
		return err
	}
	b.dev = dev
	return nil
}

// Device implements backend.Backend.
func (b *Backend) Device() gpucore.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// Close implements backend.Backend.
func (b *Backend) Close() {
	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
}
