package rendergraph

import (
	"context"
	"testing"

	"github.com/SergeyYablokov/occdemo-sub001/backend/null"
	"github.com/SergeyYablokov/occdemo-sub001/shader"
)

// funcPass is a Pass assembled from closures.
type funcPass struct {
	name  string
	setup func(pb *PassBuilder) error
	exec  func(ec *ExecContext) error
}

func (p *funcPass) Name() string { return p.name }

func (p *funcPass) Setup(pb *PassBuilder) error {
	if p.setup == nil {
		return nil
	}
	return p.setup(pb)
}

func (p *funcPass) Execute(ec *ExecContext) error {
	if p.exec == nil {
		return nil
	}
	return p.exec(ec)
}

// lazyPass adds a LazyInit closure to funcPass.
type lazyPass struct {
	funcPass
	lazy func(ec *ExecContext) error
}

func (p *lazyPass) LazyInit(ec *ExecContext) error { return p.lazy(ec) }

func writer(name, target string, desc ResourceDescriptor, out *ResourceHandle) *funcPass {
	return &funcPass{
		name: name,
		setup: func(pb *PassBuilder) error {
			h, err := pb.WriteTexture(target, desc)
			if out != nil {
				*out = h
			}
			return err
		},
	}
}

func reader(name, target string, out *ResourceHandle) *funcPass {
	return &funcPass{
		name: name,
		setup: func(pb *PassBuilder) error {
			h, err := pb.ReadTexture(target)
			if out != nil {
				*out = h
			}
			return err
		},
	}
}

func newTestBuilder(t *testing.T, opts ...Option) (*Builder, *null.Device) {
	t.Helper()
	dev := null.NewDevice()
	b := NewBuilder(dev, shader.NewCache(dev), opts...)
	t.Cleanup(b.Release)
	return b, dev
}

// runBuild performs one Begin/AddPass/Build cycle.
func runBuild(t *testing.T, b *Builder, passes ...Pass) error {
	t.Helper()
	if err := b.Begin(View{Width: 256, Height: 144, Samples: 1}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	for _, p := range passes {
		if err := b.AddPass(p); err != nil {
			t.Fatalf("AddPass(%s) error = %v", p.Name(), err)
		}
	}
	return b.Build(context.Background())
}

func mustBuild(t *testing.T, b *Builder, passes ...Pass) {
	t.Helper()
	if err := runBuild(t, b, passes...); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
}
