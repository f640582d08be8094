package occdemo

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
	"github.com/SergeyYablokov/occdemo-sub001/passes"
	"github.com/SergeyYablokov/occdemo-sub001/rendergraph"
	"github.com/SergeyYablokov/occdemo-sub001/scene"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
	"github.com/SergeyYablokov/occdemo-sub001/streaming"
)

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("occdemo: renderer closed")

// View describes what one frame renders.
type View struct {
	// Width and Height are the view size in pixels. Zero uses the config size.
	Width, Height uint32

	// Samples is the MSAA sample count. Zero uses the config count.
	Samples uint32

	// Proj is the projection matrix. The zero matrix selects a perspective
	// projection with the default field of view.
	Proj mgl32.Mat4
}

// Stats is a snapshot of renderer counters.
type Stats struct {
	Frames    uint64
	Graph     rendergraph.Stats
	Materials streaming.Stats
	Textures  streaming.Stats
}

// Renderer owns the program cache, the render graph builder, the scene
// store and the per-view uniform buffer, and runs frames through them.
//
// Frame and Close must be called from one goroutine. The scene store may
// be edited from any goroutine.
type Renderer struct {
	cfg      Config
	dev      gpucore.Device
	programs *shader.Cache
	builder  *rendergraph.Builder
	store    *scene.Store
	ownStore bool
	uniforms gpucore.BufferID

	// releasers are the passes seen by Frame, released by Close.
	releasers map[rendergraph.Releaser]struct{}

	mu     sync.Mutex
	frames uint64
	closed bool
}

// New creates a renderer on dev.
func New(dev gpucore.Device, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	workers := o.cfg.Workers
	if o.workers >= 0 {
		workers = o.workers
	}

	r := &Renderer{
		cfg:       o.cfg,
		dev:       dev,
		releasers: make(map[rendergraph.Releaser]struct{}),
	}

	var cacheOpts []shader.Option
	if o.compiler != nil {
		cacheOpts = append(cacheOpts, shader.WithCompiler(o.compiler))
	}
	r.programs = shader.NewCache(dev, cacheOpts...)

	var graphOpts []rendergraph.Option
	if workers > 1 {
		graphOpts = append(graphOpts, rendergraph.WithWorkers(workers))
	}
	r.builder = rendergraph.NewBuilder(dev, r.programs, graphOpts...)

	r.store = o.store
	if r.store == nil {
		s, err := scene.NewStore(dev, scene.Config{
			Slots:            o.cfg.FramesInFlight,
			FenceTimeout:     time.Duration(o.cfg.FenceTimeout),
			MaterialCapacity: o.cfg.MaterialCapacity,
			TextureCapacity:  o.cfg.TextureCapacity,
		})
		if err != nil {
			r.builder.Release()
			r.programs.Release()
			return nil, errors.Wrap(err, "create scene store")
		}
		r.store = s
		r.ownStore = true
	}

	id, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label: "view-uniforms",
		Size:  passes.ViewUniformsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		_ = r.Close(context.Background())
		return nil, errors.Wrap(err, "create view uniforms")
	}
	r.uniforms = id

	logging.L().Info("occdemo: renderer created", "device", dev.Name(), "builder", r.builder.ID(),
		"frames_in_flight", o.cfg.FramesInFlight, "workers", workers)
	return r, nil
}

// Device returns the device the renderer draws with.
func (r *Renderer) Device() gpucore.Device { return r.dev }

// Store returns the scene store streamed every frame.
func (r *Renderer) Store() *scene.Store { return r.store }

// Programs returns the program cache shared by all passes.
func (r *Renderer) Programs() *shader.Cache { return r.programs }

// Builder returns the render graph builder, for pass state inspection.
func (r *Renderer) Builder() *rendergraph.Builder { return r.builder }

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() Config { return r.cfg }

// resolve fills the zero fields of v from the config.
func (r *Renderer) resolve(v View) View {
	if v.Width == 0 {
		v.Width = r.cfg.Width
	}
	if v.Height == 0 {
		v.Height = r.cfg.Height
	}
	if v.Samples == 0 {
		v.Samples = max(r.cfg.Samples, 1)
	}
	if v.Proj == (mgl32.Mat4{}) {
		v.Proj = passes.Perspective(passes.DefaultFovY, passes.DefaultNear, passes.DefaultFar, v.Width, v.Height)
	}
	return v
}

// Frame renders one frame of the given passes, in dependency order.
//
// A configuration error aborts the frame and is returned; backend failures
// inside a pass only degrade that pass (see Builder().PassState). The
// streamed scene buffers are fenced even when the build fails, so their
// ring slots are never reused while a submitted frame may read them.
func (r *Renderer) Frame(ctx context.Context, v View, ps ...rendergraph.Pass) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	v = r.resolve(v)
	if err := r.dev.WriteBuffer(r.uniforms, 0, passes.EncodeViewUniforms(v.Proj, v.Width, v.Height)); err != nil {
		return errors.Wrap(err, "write view uniforms")
	}
	if err := r.store.Flush(ctx); err != nil {
		return errors.Wrap(err, "flush scene")
	}

	err := r.build(ctx, v, ps)
	err = errors.CombineErrors(err, r.store.InsertPersistentBuffersFence())

	r.mu.Lock()
	r.frames++
	n := r.frames
	r.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "frame %d", n)
	}
	logging.L().Debug("occdemo: frame", "n", n, "stats", r.builder.Stats())
	return nil
}

func (r *Renderer) build(ctx context.Context, v View, ps []rendergraph.Pass) error {
	err := r.builder.Begin(rendergraph.View{
		Width:    v.Width,
		Height:   v.Height,
		Samples:  v.Samples,
		Uniforms: r.uniforms,
	})
	if err != nil {
		return err
	}
	if err := r.store.Import(r.builder); err != nil {
		return err
	}
	for _, p := range ps {
		if rel, ok := p.(rendergraph.Releaser); ok {
			r.releasers[rel] = struct{}{}
		}
		if err := r.builder.AddPass(p); err != nil {
			return err
		}
	}
	return r.builder.Build(ctx)
}

// Stats returns a snapshot of the renderer counters.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	frames := r.frames
	r.mu.Unlock()
	mat, tex := r.store.Stats()
	return Stats{Frames: frames, Graph: r.builder.Stats(), Materials: mat, Textures: tex}
}

// Close waits for in-flight frames, releases the passes seen by Frame and
// destroys everything the renderer created. It does not close the device.
func (r *Renderer) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var err error
	if r.ownStore && r.store != nil {
		err = r.store.Release(ctx)
	}
	for rel := range r.releasers {
		rel.Release(r.dev)
	}
	clear(r.releasers)
	r.builder.Release()
	r.programs.Release()
	if r.uniforms != gpucore.InvalidID {
		r.dev.DestroyBuffer(r.uniforms)
		r.uniforms = gpucore.InvalidID
	}
	return err
}
