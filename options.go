package occdemo

import (
	"github.com/SergeyYablokov/occdemo-sub001/scene"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := occdemo.New(dev,
//	    occdemo.WithConfig(cfg),
//	    occdemo.WithWorkers(8),
//	)
type Option func(*options)

type options struct {
	cfg      Config
	store    *scene.Store
	workers  int
	compiler shader.Compiler
}

func defaultOptions() options {
	return options{cfg: DefaultConfig(), workers: -1}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithStore makes the renderer stream an existing scene store instead of
// creating its own. The caller keeps ownership and releases it after
// Renderer.Close.
func WithStore(s *scene.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithWorkers overrides Config.Workers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithShaderCompiler replaces the naga WGSL compiler of the program cache.
func WithShaderCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}
