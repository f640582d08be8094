// Package shader caches shader programs by name and variant.
//
// Sources are WGSL. Each stage is compiled with naga to SPIR-V before the
// program is handed to the device, so a syntax error surfaces as an unready
// program instead of a backend crash. Passes call LoadProgram from LazyInit
// and must treat an unready program as a reason to skip their draws.
package shader

import (
	"context"
	"encoding/binary"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"golang.org/x/sync/errgroup"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
)

// ErrNotReady is returned by Program.Check for programs that failed to build.
var ErrNotReady = errors.New("shader: program not ready")

// Compiler turns WGSL source into SPIR-V bytes.
type Compiler func(source string) ([]byte, error)

// Program is a cached shader program. A Program is either ready (ID is
// valid) or unready (Err explains why). Programs are immutable.
type Program struct {
	Name    string
	Variant string

	id  gpucore.ProgramID
	err error
}

// Ready reports whether the program can be bound.
func (p *Program) Ready() bool { return p != nil && p.err == nil && p.id != gpucore.InvalidID }

// ID returns the device program ID, or InvalidID if unready.
func (p *Program) ID() gpucore.ProgramID {
	if !p.Ready() {
		return gpucore.InvalidID
	}
	return p.id
}

// Err returns the build failure, if any.
func (p *Program) Err() error {
	if p == nil {
		return ErrNotReady
	}
	return p.err
}

// Check returns nil for a ready program and an ErrNotReady-marked error otherwise.
func (p *Program) Check() error {
	if p.Ready() {
		return nil
	}
	err := p.Err()
	if err == nil {
		return errors.Wrapf(ErrNotReady, "program %s", p.Label())
	}
	return errors.Mark(errors.Wrapf(err, "program %s", p.Label()), ErrNotReady)
}

// Label returns "name" or "name[variant]".
func (p *Program) Label() string {
	if p == nil {
		return "<nil>"
	}
	return label(p.Name, p.Variant)
}

func label(name, variant string) string {
	if variant == "" {
		return name
	}
	return name + "[" + variant + "]"
}

type key struct {
	name    string
	variant string
}

// Cache owns the device programs it creates.
//
// Thread safety: Cache is safe for concurrent use.
type Cache struct {
	dev     gpucore.Device
	compile Compiler

	mu       sync.Mutex
	programs map[key]*Program
}

// Option configures a Cache.
type Option func(*Cache)

// WithCompiler replaces naga as the WGSL compiler.
func WithCompiler(c Compiler) Option {
	return func(cache *Cache) {
		if c != nil {
			cache.compile = c
		}
	}
}

// NewCache creates an empty program cache for dev.
func NewCache(dev gpucore.Device, opts ...Option) *Cache {
	c := &Cache{
		dev:      dev,
		compile:  naga.Compile,
		programs: make(map[key]*Program),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VariantTag joins variant tags into the canonical cache key form.
// Order does not matter: ("MSAA", "HQ") and ("HQ", "MSAA") are the same variant.
func VariantTag(tags ...string) string {
	t := slices.Clone(tags)
	t = slices.DeleteFunc(t, func(s string) bool { return s == "" })
	slices.Sort(t)
	return strings.Join(slices.Compact(t), "+")
}

// Defines returns the WGSL prelude enabling the given variant.
func Defines(variant string) string {
	if variant == "" {
		return ""
	}
	var sb strings.Builder
	for _, tag := range strings.Split(variant, "+") {
		sb.WriteString("const VARIANT_")
		sb.WriteString(strings.ToUpper(tag))
		sb.WriteString(": bool = true;\n")
	}
	return sb.String()
}

// LoadProgram returns the program for (name, variant), building it on first use.
// An empty vertex source builds a compute program from fragmentSource.
// Build failures are cached too; call Reload to retry.
func (c *Cache) LoadProgram(name, vertexSource, fragmentSource string, variant ...string) *Program {
	k := key{name: name, variant: VariantTag(variant...)}

	c.mu.Lock()
	if p, ok := c.programs[k]; ok {
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()

	p := c.build(k, vertexSource, fragmentSource)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.programs[k]; ok {
		// Lost a concurrent build race.
		if p.id != gpucore.InvalidID {
			c.dev.DestroyProgram(p.id)
		}
		return existing
	}
	c.programs[k] = p
	return p
}

func (c *Cache) build(k key, vs, fs string) *Program {
	p := &Program{Name: k.name, Variant: k.variant}
	desc := &gpucore.ProgramDesc{Label: label(k.name, k.variant), Compute: vs == ""}
	prelude := Defines(k.variant)

	if vs != "" {
		desc.VertexWGSL = prelude + vs
		spirv, err := c.compileStage(desc.VertexWGSL)
		if err != nil {
			p.err = errors.Wrapf(err, "compile %s vertex stage", desc.Label)
			logging.L().Error("shader: program not ready", "program", desc.Label, "err", p.err)
			return p
		}
		desc.VertexSPIRV = spirv
	}

	desc.FragmentWGSL = prelude + fs
	spirv, err := c.compileStage(desc.FragmentWGSL)
	if err != nil {
		p.err = errors.Wrapf(err, "compile %s fragment stage", desc.Label)
		logging.L().Error("shader: program not ready", "program", desc.Label, "err", p.err)
		return p
	}
	desc.FragmentSPIRV = spirv

	id, err := c.dev.CreateProgram(desc)
	if err != nil {
		p.err = errors.Wrapf(err, "create program %s", desc.Label)
		logging.L().Error("shader: program not ready", "program", desc.Label, "err", p.err)
		return p
	}
	p.id = id
	logging.L().Debug("shader: program built", "program", desc.Label, "id", id)
	return p
}

func (c *Cache) compileStage(src string) ([]uint32, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("empty source")
	}
	out, err := c.compile(src)
	if err != nil {
		return nil, err
	}
	if len(out)%4 != 0 {
		return nil, errors.Newf("SPIR-V length %d is not a multiple of 4", len(out))
	}
	words := make([]uint32, len(out)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(out[i*4:])
	}
	return words, nil
}

// Request names one program for Preload.
type Request struct {
	Name           string
	VertexSource   string
	FragmentSource string
	Variant        []string
}

// Preload builds programs concurrently, at most limit at a time (limit <= 0
// means unbounded). It returns the first build failure; every program is
// cached regardless.
func (c *Cache) Preload(ctx context.Context, reqs []Request, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, r := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.LoadProgram(r.Name, r.VertexSource, r.FragmentSource, r.Variant...).Check()
		})
	}
	return g.Wait()
}

// Reload drops every cached variant of name so the next LoadProgram rebuilds it.
func (c *Cache) Reload(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, p := range c.programs {
		if k.name != name {
			continue
		}
		if p.id != gpucore.InvalidID {
			c.dev.DestroyProgram(p.id)
		}
		delete(c.programs, k)
		n++
	}
	return n
}

// Len returns the number of cached programs, ready or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.programs)
}

// Release destroys every cached program.
func (c *Cache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range c.programs {
		if p.id != gpucore.InvalidID {
			c.dev.DestroyProgram(p.id)
		}
		delete(c.programs, k)
	}
}
