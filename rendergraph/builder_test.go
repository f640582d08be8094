package rendergraph

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/SergeyYablokov/occdemo-sub001/gpucore"
)

// =============================================================================
// Write / Read Resolution Tests
// =============================================================================

func TestWriteThenRead_ResolvesWrittenDescriptor(t *testing.T) {
	b, _ := newTestBuilder(t)
	desc := Texture2D(64, 32, RawRGBA8).WithSampling(gputypes.FilterModeNearest, gputypes.AddressModeRepeat)

	var wh, rh ResourceHandle
	var written, read Resource
	w := writer("opaque", "Color", desc, &wh)
	w.exec = func(ec *ExecContext) (err error) {
		written, err = ec.GetWriteTexture(wh)
		return err
	}
	r := reader("post", "Color", &rh)
	r.exec = func(ec *ExecContext) (err error) {
		read, err = ec.GetReadTexture(rh)
		return err
	}

	mustBuild(t, b, w, r)

	if !read.Desc.Equal(desc) {
		t.Errorf("read descriptor = %s, want %s", read.Desc, desc)
	}
	if read.Texture == gpucore.InvalidID || read.Texture != written.Texture {
		t.Errorf("read texture = %d, want writer's texture %d", read.Texture, written.Texture)
	}
	if read.Name != "Color" {
		t.Errorf("read name = %q, want Color", read.Name)
	}
}

func TestWriteThenRead_LastDescriptorAcrossBuilds(t *testing.T) {
	b, dev := newTestBuilder(t)
	sizes := []uint32{64, 128, 32}
	for _, s := range sizes {
		var rh ResourceHandle
		var got Resource
		r := reader("post", "Color", &rh)
		r.exec = func(ec *ExecContext) (err error) {
			got, err = ec.GetReadTexture(rh)
			return err
		}
		mustBuild(t, b, writer("opaque", "Color", Texture2D(s, s, RawRGBA8), nil), r)

		if got.Desc.Width != s {
			t.Errorf("size %d: read width = %d", s, got.Desc.Width)
		}
		td, ok := dev.TextureDesc(got.Texture)
		if !ok || td.Width != s || td.Height != s {
			t.Errorf("size %d: device texture = %+v (ok=%v)", s, td, ok)
		}
	}
}

func TestReadUnwritten_NotFound(t *testing.T) {
	desc := Texture2D(16, 16, RawR8)
	tests := []struct {
		name   string
		passes func() []Pass
	}{
		{"never written", func() []Pass {
			return []Pass{reader("r", "Missing", nil)}
		}},
		{"reader declared before writer", func() []Pass {
			return []Pass{reader("r", "X", nil), writer("w", "X", desc, nil)}
		}},
		{"other name written", func() []Pass {
			return []Pass{writer("w", "Y", desc, nil), reader("r", "X", nil)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBuilder(t)
			for i := range 3 {
				err := runBuild(t, b, tt.passes()...)
				if !errors.Is(err, ErrResourceNotFound) {
					t.Fatalf("attempt %d: Build() error = %v, want ErrResourceNotFound", i, err)
				}
				if !IsConfigurationError(err) {
					t.Errorf("attempt %d: error should be a configuration error", i)
				}
			}
		})
	}
}

func TestReadNotWrittenThisBuild_NotFound(t *testing.T) {
	b, _ := newTestBuilder(t)
	mustBuild(t, b, writer("w", "Temp", Texture2D(8, 8, RawR8), nil), reader("r", "Temp", nil))

	err := runBuild(t, b, reader("r", "Temp", nil))
	if !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("Build() error = %v, want ErrResourceNotFound", err)
	}
}

// =============================================================================
// Allocation Reuse Tests
// =============================================================================

func TestIdenticalBuilds_NoReallocation(t *testing.T) {
	b, dev := newTestBuilder(t)
	passes := func() []Pass {
		return []Pass{
			writer("opaque", "Depth", Texture2D(256, 144, Depth32F), nil),
			&funcPass{name: "down", setup: func(pb *PassBuilder) error {
				if _, err := pb.ReadTexture("Depth"); err != nil {
					return err
				}
				_, err := pb.WriteTexture("DepthHalf", Texture2D(128, 72, RawR32F))
				return err
			}},
			reader("ao", "DepthHalf", nil),
		}
	}

	mustBuild(t, b, passes()...)
	allocs := b.Stats().Allocations
	created := dev.Stats().TexturesCreated
	if allocs != 2 || created != 2 {
		t.Fatalf("first build: allocations=%d created=%d, want 2 and 2", allocs, created)
	}

	const n = 10
	for range n {
		mustBuild(t, b, passes()...)
	}

	s := b.Stats()
	if s.Allocations != allocs {
		t.Errorf("Allocations = %d after %d identical builds, want %d", s.Allocations, n, allocs)
	}
	if got := dev.Stats().TexturesCreated; got != created {
		t.Errorf("TexturesCreated = %d, want %d", got, created)
	}
	if s.Reuses != 2*n {
		t.Errorf("Reuses = %d, want %d", s.Reuses, 2*n)
	}
	if s.Reallocations != 0 || s.Destroyed != 0 {
		t.Errorf("Reallocations=%d Destroyed=%d, want 0 and 0", s.Reallocations, s.Destroyed)
	}
}

func TestDescriptorChange_ExactlyOneReallocation(t *testing.T) {
	b, dev := newTestBuilder(t)
	build := func(aSize uint32) {
		mustBuild(t, b,
			writer("a", "A", Texture2D(aSize, aSize, RawRGBA8), nil),
			writer("b", "B", Texture2D(32, 32, RawR8), nil),
		)
	}

	build(64)
	a1, _ := b.Lookup("A")
	b1, _ := b.Lookup("B")
	before := dev.Stats()

	build(128)
	a2, _ := b.Lookup("A")
	b2, _ := b.Lookup("B")
	after := dev.Stats()

	if got := b.Stats().Reallocations; got != 1 {
		t.Errorf("Reallocations = %d, want 1", got)
	}
	if got := after.TexturesCreated - before.TexturesCreated; got != 1 {
		t.Errorf("textures created by resize = %d, want 1", got)
	}
	if got := after.TexturesDestroyed - before.TexturesDestroyed; got != 1 {
		t.Errorf("textures destroyed by resize = %d, want 1", got)
	}
	if a2.Texture == a1.Texture || a2.Desc.Width != 128 {
		t.Errorf("A = %+v, want a new 128-wide texture", a2)
	}
	if b2.Texture != b1.Texture {
		t.Errorf("B texture changed from %d to %d, want untouched", b1.Texture, b2.Texture)
	}

	build(128)
	if got := b.Stats().Reallocations; got != 1 {
		t.Errorf("Reallocations after repeat = %d, want 1", got)
	}
}

func TestDescriptorChange_NewGeneration(t *testing.T) {
	b, _ := newTestBuilder(t)
	var h ResourceHandle
	build := func(size uint32) ResourceHandle {
		mustBuild(t, b, writer("a", "A", Texture2D(size, size, RawRGBA8), &h))
		return h
	}

	h1 := build(64)
	h2 := build(64)
	if h2.gen != h1.gen {
		t.Errorf("generation after identical build = %d, want %d", h2.gen, h1.gen)
	}
	h3 := build(128)
	if h3.gen == h2.gen {
		t.Errorf("generation after reallocation = %d, want a new one", h3.gen)
	}

	// A handle into the replaced storage is stale even with a current build serial.
	old := h2
	old.build = h3.build
	if _, err := b.table.at(old); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("at(old storage) error = %v, want ErrStaleHandle", err)
	}
	if _, err := b.table.at(h3); err != nil {
		t.Errorf("at(current) error = %v", err)
	}
}

func TestReleasedStorageIsRecycled(t *testing.T) {
	b, dev := newTestBuilder(t)
	desc := Texture2D(64, 64, RawRGBA16F)

	mustBuild(t, b, writer("bloom", "BloomA", desc, nil))
	old, _ := b.Lookup("BloomA")

	mustBuild(t, b, writer("bloom", "BloomB", desc, nil))
	got, ok := b.Lookup("BloomB")
	if !ok || got.Texture != old.Texture {
		t.Errorf("BloomB texture = %d, want recycled %d", got.Texture, old.Texture)
	}
	if _, ok := b.Lookup("BloomA"); ok {
		t.Error("BloomA should be unbound after a build that did not write it")
	}
	s := b.Stats()
	if s.Recycled != 1 || s.Allocations != 1 {
		t.Errorf("Recycled=%d Allocations=%d, want 1 and 1", s.Recycled, s.Allocations)
	}

	mustBuild(t, b, writer("other", "Small", Texture2D(4, 4, RawR8), nil))
	if dev.LiveTextures() != 1 {
		t.Errorf("LiveTextures() = %d, want 1 (unmatched recycled storage destroyed)", dev.LiveTextures())
	}
}

// =============================================================================
// Aliasing and Conflict Tests
// =============================================================================

func TestDuplicateIdenticalWrite_SingleAllocation(t *testing.T) {
	b, dev := newTestBuilder(t)
	desc := Texture2D(256, 144, RawR8)

	var h1, h2 ResourceHandle
	var r1, r2 Resource
	p1 := writer("ao-raw", "DepthHalf", desc, &h1)
	p1.exec = func(ec *ExecContext) (err error) { r1, err = ec.GetWriteTexture(h1); return err }
	p2 := writer("ao-fixup", "DepthHalf", desc, &h2)
	p2.exec = func(ec *ExecContext) (err error) { r2, err = ec.GetWriteTexture(h2); return err }

	mustBuild(t, b, p1, p2)

	if r1.Texture != r2.Texture {
		t.Errorf("writers resolved to %d and %d, want the same texture", r1.Texture, r2.Texture)
	}
	if got := dev.Stats().TexturesCreated; got != 1 {
		t.Errorf("TexturesCreated = %d, want 1", got)
	}
}

func TestConflictingWrite(t *testing.T) {
	tests := []struct {
		name   string
		second ResourceDescriptor
	}{
		{"different size", Texture2D(128, 72, RawR8)},
		{"different format", Texture2D(256, 144, RawR16F)},
		{"different samples", Texture2D(256, 144, RawR8).WithSamples(4)},
		{"different sampling", Texture2D(256, 144, RawR8).WithSampling(gputypes.FilterModeNearest, gputypes.AddressModeClampToEdge)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBuilder(t)
			err := runBuild(t, b,
				writer("p1", "DepthHalf", Texture2D(256, 144, RawR8), nil),
				writer("p2", "DepthHalf", tt.second, nil),
			)
			if !errors.Is(err, ErrConflictingWrite) {
				t.Fatalf("Build() error = %v, want ErrConflictingWrite", err)
			}
			if !IsConfigurationError(err) {
				t.Error("conflicting write should be a configuration error")
			}
		})
	}
}

func TestWriteAfterRead(t *testing.T) {
	b, _ := newTestBuilder(t)
	desc := Texture2D(16, 16, RawR8)
	err := runBuild(t, b,
		writer("w1", "X", desc, nil),
		reader("r", "X", nil),
		writer("w2", "X", desc, nil),
	)
	if !errors.Is(err, ErrWriteAfterRead) {
		t.Errorf("Build() error = %v, want ErrWriteAfterRead", err)
	}
}

func TestKindMismatch(t *testing.T) {
	b, _ := newTestBuilder(t)
	err := runBuild(t, b,
		&funcPass{name: "w", setup: func(pb *PassBuilder) error {
			_, err := pb.WriteBuffer("Luma", Buffer(16, gputypes.BufferUsageStorage))
			return err
		}},
		reader("r", "Luma", nil),
	)
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Build() error = %v, want ErrKindMismatch", err)
	}

	err = runBuild(t, b, writer("w", "Bad", Buffer(16, gputypes.BufferUsageStorage), nil))
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("WriteTexture with buffer descriptor error = %v, want ErrKindMismatch", err)
	}
}

func TestInvalidDescriptor(t *testing.T) {
	b, _ := newTestBuilder(t)
	err := runBuild(t, b, writer("w", "Zero", Texture2D(0, 10, RawR8), nil))
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("Build() error = %v, want ErrInvalidDescriptor", err)
	}
}

// =============================================================================
// Handle Scope Tests
// =============================================================================

func TestHandleUsedByAnotherPass(t *testing.T) {
	b, _ := newTestBuilder(t)
	var wh ResourceHandle
	w := writer("w", "X", Texture2D(8, 8, RawR8), &wh)
	thief := reader("thief", "X", nil)
	thief.exec = func(ec *ExecContext) error {
		_, err := ec.GetWriteTexture(wh)
		return err
	}
	err := runBuild(t, b, w, thief)
	if !errors.Is(err, ErrHandleOutOfScope) {
		t.Errorf("Build() error = %v, want ErrHandleOutOfScope", err)
	}
}

func TestHandleFromPreviousBuild(t *testing.T) {
	b, _ := newTestBuilder(t)
	var cached ResourceHandle
	first := true
	p := &funcPass{name: "w"}
	p.setup = func(pb *PassBuilder) error {
		h, err := pb.WriteTexture("X", Texture2D(8, 8, RawR8))
		if first {
			cached = h
			first = false
		}
		return err
	}
	p.exec = func(ec *ExecContext) error {
		_, err := ec.GetWriteTexture(cached)
		return err
	}

	mustBuild(t, b, p)
	err := runBuild(t, b, p)
	if !errors.Is(err, ErrHandleOutOfScope) {
		t.Errorf("Build() error = %v, want ErrHandleOutOfScope", err)
	}
}

func TestHandleIntoReclaimedSlot(t *testing.T) {
	b, _ := newTestBuilder(t)
	var stale ResourceHandle
	mustBuild(t, b, writer("w", "Scratch", Texture2D(8, 8, RawR8), &stale))
	mustBuild(t, b, writer("w", "Other", Texture2D(4, 4, RawR8), nil))

	p := writer("user", "Third", Texture2D(2, 2, RawR8), nil)
	p.exec = func(ec *ExecContext) error {
		_, err := ec.GetWriteTexture(stale)
		return err
	}
	err := runBuild(t, b, p)
	if !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Build() error = %v, want ErrStaleHandle", err)
	}
}

func TestAccessMismatch(t *testing.T) {
	b, _ := newTestBuilder(t)
	var wh ResourceHandle
	w := writer("w", "X", Texture2D(8, 8, RawR8), &wh)
	w.exec = func(ec *ExecContext) error {
		_, err := ec.GetReadTexture(wh)
		return err
	}
	if err := runBuild(t, b, w); !errors.Is(err, ErrHandleOutOfScope) {
		t.Errorf("Build() error = %v, want ErrHandleOutOfScope", err)
	}
}

func TestZeroHandle(t *testing.T) {
	b, _ := newTestBuilder(t)
	p := &funcPass{name: "p", exec: func(ec *ExecContext) error {
		_, err := ec.GetReadTexture(ResourceHandle{})
		return err
	}}
	if err := runBuild(t, b, p); !errors.Is(err, ErrHandleOutOfScope) {
		t.Errorf("Build() error = %v, want ErrHandleOutOfScope", err)
	}
}

// =============================================================================
// Builder Phase Tests
// =============================================================================

func TestBuilderPhases(t *testing.T) {
	b, _ := newTestBuilder(t)
	if err := b.Build(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Build() without Begin error = %v, want ErrWrongPhase", err)
	}
	if err := b.AddPass(&funcPass{name: "x"}); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("AddPass() outside setup error = %v, want ErrWrongPhase", err)
	}

	_ = b.Begin(View{Width: 8, Height: 8})
	p := &funcPass{name: "dup"}
	if err := b.AddPass(p); err != nil {
		t.Fatalf("AddPass() error = %v", err)
	}
	if err := b.AddPass(&funcPass{name: "dup"}); !errors.Is(err, ErrDuplicatePass) {
		t.Errorf("duplicate AddPass() error = %v, want ErrDuplicatePass", err)
	}
	if _, err := b.WriteTexture("X", Texture2D(4, 4, RawR8), &funcPass{name: "stranger"}); !errors.Is(err, ErrUnknownPass) {
		t.Errorf("WriteTexture() for unknown pass error = %v, want ErrUnknownPass", err)
	}
	if _, err := b.WriteTexture("X", Texture2D(4, 4, RawR8), p); err != nil {
		t.Errorf("WriteTexture() error = %v", err)
	}
	if _, err := b.ReadTexture("X", p); err != nil {
		t.Errorf("ReadTexture() error = %v", err)
	}
	if err := b.Build(context.Background()); err != nil {
		t.Errorf("Build() error = %v", err)
	}
	if _, err := b.WriteTexture("Y", Texture2D(4, 4, RawR8), p); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("WriteTexture() after Build error = %v, want ErrWrongPhase", err)
	}
}

func TestSetupErrorIsConfigurationError(t *testing.T) {
	b, _ := newTestBuilder(t)
	errBad := errors.New("bad parameter")
	err := runBuild(t, b, &funcPass{name: "p", setup: func(*PassBuilder) error { return errBad }})
	if !errors.Is(err, errBad) || !IsConfigurationError(err) {
		t.Errorf("Build() error = %v, want configuration error wrapping errBad", err)
	}
}

// =============================================================================
// Degradation Tests
// =============================================================================

func TestLazyInitFailureDegradesOnlyThatPass(t *testing.T) {
	b, dev := newTestBuilder(t)
	fail := true
	flaky := &lazyPass{
		funcPass: funcPass{name: "ssao"},
		lazy: func(ec *ExecContext) error {
			if fail {
				return errors.New("framebuffer incomplete")
			}
			return nil
		},
	}
	executed := 0
	flaky.exec = func(*ExecContext) error { executed++; return nil }
	healthy := &funcPass{name: "opaque"}

	if err := runBuild(t, b, healthy, flaky); err != nil {
		t.Fatalf("Build() error = %v, want nil (failure isolated)", err)
	}
	if got := b.PassState("ssao"); got != StateDegraded {
		t.Errorf("PassState(ssao) = %s, want Degraded", got)
	}
	if got := b.PassState("opaque"); got != StateExecuted {
		t.Errorf("PassState(opaque) = %s, want Executed", got)
	}
	if executed != 0 {
		t.Error("Execute must not run after LazyInit failed")
	}
	if b.PassError("ssao") == nil {
		t.Error("PassError(ssao) = nil, want the LazyInit failure")
	}
	if got := dev.Stats().CommandBuffers; got != 1 {
		t.Errorf("CommandBuffers = %d, want 1", got)
	}

	fail = false
	mustBuild(t, b, healthy, flaky)
	if got := b.PassState("ssao"); got != StateExecuted {
		t.Errorf("PassState(ssao) after recovery = %s, want Executed", got)
	}
	if b.Stats().Degraded != 1 {
		t.Errorf("Degraded = %d, want 1", b.Stats().Degraded)
	}
}

func TestCanceledBetweenWaves_DiscardsRecordedWork(t *testing.T) {
	b, dev := newTestBuilder(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := writer("depth", "Depth", Texture2D(16, 16, RawR8), nil)
	first.exec = func(*ExecContext) error {
		cancel()
		return nil
	}
	ran := false
	second := reader("ao", "Depth", nil)
	second.exec = func(*ExecContext) error {
		ran = true
		return nil
	}

	if err := b.Begin(View{Width: 16, Height: 16}); err != nil {
		t.Fatal(err)
	}
	for _, p := range []Pass{first, second} {
		if err := b.AddPass(p); err != nil {
			t.Fatal(err)
		}
	}
	err := b.Build(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("second wave ran after cancellation")
	}

	s := dev.Stats()
	if s.Submits != 0 || s.Discarded != 1 {
		t.Errorf("Submits=%d Discarded=%d, want 0 and 1", s.Submits, s.Discarded)
	}
	if got := b.PassState("depth"); got != StateExecuted {
		t.Errorf("PassState(depth) = %s, want Executed", got)
	}
	if got := b.PassState("ao"); got != StateResolved {
		t.Errorf("PassState(ao) = %s, want Resolved", got)
	}

	// The builder is usable again after an aborted build.
	mustBuild(t, b, writer("depth", "Depth", Texture2D(16, 16, RawR8), nil))
	if got := dev.Stats().Submits; got != 1 {
		t.Errorf("Submits after recovery = %d, want 1", got)
	}
}

func TestPassStateLifecycle(t *testing.T) {
	b, _ := newTestBuilder(t)
	var during []PassState
	p := &funcPass{name: "p"}
	p.setup = func(pb *PassBuilder) error {
		during = append(during, b.PassState("p"))
		return nil
	}
	p.exec = func(*ExecContext) error {
		during = append(during, b.PassState("p"))
		return nil
	}

	if got := b.PassState("p"); got != StateUninitialized {
		t.Errorf("initial state = %s, want Uninitialized", got)
	}
	mustBuild(t, b, p)
	mustBuild(t, b, p)

	want := []PassState{StateUninitialized, StateResolved, StateReady, StateResolved}
	if fmt.Sprint(during) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", during, want)
	}
	if got := b.PassState("p"); got != StateExecuted {
		t.Errorf("final state = %s, want Executed", got)
	}
}

// =============================================================================
// Ordering Tests
// =============================================================================

func TestReaderExecutesAfterWriter(t *testing.T) {
	b, dev := newTestBuilder(t, WithWorkers(4))

	var mu sync.Mutex
	var log []string
	note := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}
	traced := func(p *funcPass) *funcPass {
		p.exec = func(*ExecContext) error {
			note("start " + p.name)
			note("end " + p.name)
			return nil
		}
		return p
	}
	desc := Texture2D(8, 8, RawR8)

	passes := []Pass{
		traced(writer("depth", "Depth", desc, nil)),
		traced(&funcPass{name: "ao", setup: func(pb *PassBuilder) error {
			if _, err := pb.ReadTexture("Depth"); err != nil {
				return err
			}
			_, err := pb.WriteTexture("AO", desc)
			return err
		}}),
		traced(reader("fog", "Depth", nil)),
		traced(reader("composite", "AO", nil)),
	}
	mustBuild(t, b, passes...)

	pos := make(map[string]int)
	for i, s := range log {
		pos[s] = i
	}
	order := [][2]string{
		{"end depth", "start ao"},
		{"end depth", "start fog"},
		{"end ao", "start composite"},
	}
	for _, o := range order {
		if pos[o[0]] > pos[o[1]] {
			t.Errorf("%q happened after %q; log = %v", o[0], o[1], log)
		}
	}

	var submitted []string
	for _, e := range dev.Events() {
		if e.Kind == "submit" {
			submitted = append(submitted, e.Detail)
		}
	}
	if len(submitted) != 4 {
		t.Fatalf("submitted %d command buffers, want 4", len(submitted))
	}
	for i, p := range passes {
		want := b.prefix + "/" + p.Name()
		if submitted[i] != want {
			t.Errorf("submit[%d] = %q, want %q", i, submitted[i], want)
		}
	}
}

func TestWaves(t *testing.T) {
	b, _ := newTestBuilder(t)
	desc := Texture2D(8, 8, RawR8)
	_ = b.Begin(View{Width: 8, Height: 8})
	passes := []Pass{
		writer("a", "A", desc, nil),
		writer("b", "B", desc, nil),
		writer("a2", "A", desc, nil),
		reader("ra", "A", nil),
		&funcPass{name: "ab", setup: func(pb *PassBuilder) error {
			if _, err := pb.ReadTexture("A"); err != nil {
				return err
			}
			_, err := pb.ReadTexture("B")
			return err
		}},
	}
	for _, p := range passes {
		_ = b.AddPass(p)
	}
	for _, pr := range b.passes {
		if err := pr.pass.Setup(&PassBuilder{b: b, pr: pr}); err != nil {
			t.Fatalf("Setup(%s) error = %v", pr.name, err)
		}
	}
	waves := b.waves()
	got := make([][]string, len(waves))
	for i, w := range waves {
		for _, pr := range w {
			got[i] = append(got[i], pr.name)
		}
	}
	// The aliasing writer is ordered after the first writer, and readers after both.
	want := "[[a b] [a2] [ra ab]]"
	if fmt.Sprint(got) != want {
		t.Errorf("waves = %v, want %s", got, want)
	}
	b.phase = phaseIdle
}

// =============================================================================
// Persistent and Imported Resource Tests
// =============================================================================

func TestPersistentResourceSurvivesBuild(t *testing.T) {
	b, _ := newTestBuilder(t)
	history := &funcPass{name: "taa", setup: func(pb *PassBuilder) error {
		if _, err := pb.WriteTexture("History", Texture2D(32, 32, RawRGBA16F)); err != nil {
			return err
		}
		return pb.MarkPersistent("History")
	}}
	mustBuild(t, b, history)
	first, _ := b.Lookup("History")

	var rh ResourceHandle
	var got Resource
	r := reader("resolve", "History", &rh)
	r.exec = func(ec *ExecContext) (err error) {
		got, err = ec.GetReadTexture(rh)
		return err
	}
	mustBuild(t, b, r)
	if got.Texture != first.Texture {
		t.Errorf("persistent read texture = %d, want %d", got.Texture, first.Texture)
	}
}

func TestImportBuffer(t *testing.T) {
	b, dev := newTestBuilder(t)
	id, err := dev.CreateBuffer(&gpucore.BufferDesc{Label: "materials", Size: 64})
	if err != nil {
		t.Fatal(err)
	}
	desc := Buffer(64, gputypes.BufferUsageStorage)

	var rh ResourceHandle
	var got Resource
	p := &funcPass{name: "opaque"}
	p.setup = func(pb *PassBuilder) (err error) {
		rh, err = pb.ReadBuffer("Materials")
		return err
	}
	p.exec = func(ec *ExecContext) (err error) {
		got, err = ec.GetReadBuffer(rh)
		return err
	}

	for range 2 {
		if err := b.Begin(View{Width: 8, Height: 8}); err != nil {
			t.Fatal(err)
		}
		if err := b.ImportBuffer("Materials", id, desc); err != nil {
			t.Fatalf("ImportBuffer() error = %v", err)
		}
		if err := b.AddPass(p); err != nil {
			t.Fatal(err)
		}
		if err := b.Build(context.Background()); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if got.Buffer != id {
			t.Errorf("imported buffer = %d, want %d", got.Buffer, id)
		}
	}

	err = runBuild(t, b, &funcPass{name: "w", setup: func(pb *PassBuilder) error {
		_, err := pb.WriteBuffer("Materials", desc)
		return err
	}})
	if err != nil {
		t.Fatalf("Build() after dropping import error = %v", err)
	}
	b.Release()
	if dev.BufferData(id) == nil {
		t.Error("imported buffer must not be destroyed by the graph")
	}
}

func TestImportTexture(t *testing.T) {
	b, dev := newTestBuilder(t)
	newTex := func(label string) gpucore.TextureID {
		id, err := dev.CreateTexture(&gpucore.TextureDesc{
			Label: label, Width: 16, Height: 16,
			Format: gputypes.TextureFormatRGBA8Unorm,
			Usage:  gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	first, second := newTex("env-a"), newTex("env-b")
	desc := Texture2D(16, 16, RawRGBA8)

	var rh ResourceHandle
	var got Resource
	p := &funcPass{name: "sky"}
	p.setup = func(pb *PassBuilder) (err error) {
		rh, err = pb.ReadTexture("Environment")
		return err
	}
	p.exec = func(ec *ExecContext) (err error) {
		got, err = ec.GetReadTexture(rh)
		return err
	}

	tests := []struct {
		name    string
		id      gpucore.TextureID
		sameGen bool
	}{
		{"first import", first, false},
		{"same texture again", first, true},
		{"different texture", second, false},
	}
	var prevGen uint32
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Begin(View{Width: 16, Height: 16}); err != nil {
				t.Fatal(err)
			}
			if err := b.ImportTexture("Environment", tt.id, desc); err != nil {
				t.Fatalf("ImportTexture() error = %v", err)
			}
			if err := b.AddPass(p); err != nil {
				t.Fatal(err)
			}
			if err := b.Build(context.Background()); err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got.Texture != tt.id {
				t.Errorf("imported texture = %d, want %d", got.Texture, tt.id)
			}
			if prevGen != 0 && (rh.gen == prevGen) != tt.sameGen {
				t.Errorf("generation %d after %d, same = %v, want %v", rh.gen, prevGen, rh.gen == prevGen, tt.sameGen)
			}
			prevGen = rh.gen
		})
	}

	_ = b.Begin(View{Width: 16, Height: 16})
	if err := b.ImportTexture("Bad", first, Buffer(16, gputypes.BufferUsageStorage)); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("ImportTexture() with buffer descriptor error = %v, want ErrKindMismatch", err)
	}
	b.Release()
	if dev.LiveTextures() != 2 {
		t.Errorf("LiveTextures() = %d, want 2 (imported textures are not owned)", dev.LiveTextures())
	}
}

func TestImportConflicts(t *testing.T) {
	b, _ := newTestBuilder(t)
	_ = b.Begin(View{Width: 8, Height: 8})
	desc := Buffer(16, gputypes.BufferUsageStorage)
	if err := b.ImportBuffer("M", 7, desc); err != nil {
		t.Fatalf("ImportBuffer() error = %v", err)
	}
	if err := b.ImportBuffer("M", 8, desc); !errors.Is(err, ErrConflictingWrite) {
		t.Errorf("second import error = %v, want ErrConflictingWrite", err)
	}
	if err := b.ImportBuffer("T", 9, Texture2D(4, 4, RawR8)); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("import with texture descriptor error = %v, want ErrKindMismatch", err)
	}
	p := &funcPass{name: "w", setup: func(pb *PassBuilder) error {
		_, err := pb.WriteBuffer("M", desc)
		return err
	}}
	_ = b.AddPass(p)
	if err := b.Build(context.Background()); !errors.Is(err, ErrConflictingWrite) {
		t.Errorf("writing an imported buffer error = %v, want ErrConflictingWrite", err)
	}
}

func TestReleaseDestroysStorage(t *testing.T) {
	b, dev := newTestBuilder(t)
	mustBuild(t, b,
		writer("a", "A", Texture2D(8, 8, RawR8), nil),
		&funcPass{name: "b", setup: func(pb *PassBuilder) error {
			_, err := pb.WriteBuffer("Luma", Buffer(16, gputypes.BufferUsageStorage))
			return err
		}},
	)
	if b.Stats().Live != 2 {
		t.Errorf("Live = %d, want 2", b.Stats().Live)
	}
	b.Release()
	if dev.LiveTextures() != 0 || dev.LiveBuffers() != 0 {
		t.Errorf("live textures=%d buffers=%d after Release, want 0", dev.LiveTextures(), dev.LiveBuffers())
	}
}
