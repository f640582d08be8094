// Command occdemo renders headless frames of the demo pass chain and prints
// render graph and streaming statistics.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	occdemo "github.com/SergeyYablokov/occdemo-sub001"
	"github.com/SergeyYablokov/occdemo-sub001/backend"
	_ "github.com/SergeyYablokov/occdemo-sub001/backend/null"
	_ "github.com/SergeyYablokov/occdemo-sub001/backend/wgpu"
	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
	"github.com/SergeyYablokov/occdemo-sub001/passes"
	"github.com/SergeyYablokov/occdemo-sub001/scene"
)

func main() {
	var (
		config    = flag.String("config", "", "TOML config file")
		backendID = flag.String("backend", "", "backend override: auto, wgpu or null")
		frames    = flag.Int("frames", 60, "number of frames to render")
		materials = flag.Int("materials", 500, "number of scene materials")
		edits     = flag.Int("edits", 4, "materials edited per frame")
		resizeAt  = flag.Int("resize-at", 30, "frame at which the view doubles in size (0 disables)")
	)
	flag.Parse()

	cfg := occdemo.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = occdemo.LoadConfig(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *backendID != "" {
		cfg.Backend = *backendID
	}
	occdemo.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b, err := backend.Open(cfg.Backend)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer b.Close()

	r, err := occdemo.New(b.Device(), occdemo.WithConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer func() {
		if err := r.Close(context.Background()); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	if err := populate(r.Store(), *materials); err != nil {
		log.Fatalf("Failed to build scene: %v", err)
	}

	frame := passes.NewFrame()
	frame.Opaque.Instances = uint32(*materials)
	view := occdemo.View{Width: cfg.Width, Height: cfg.Height, Samples: cfg.Samples}

	start := time.Now()
	for i := range *frames {
		if ctx.Err() != nil {
			break
		}
		if *resizeAt > 0 && i == *resizeAt {
			view.Width, view.Height = view.Width*2, view.Height*2
		}
		if err := animate(r.Store(), i, *edits); err != nil {
			log.Fatalf("Failed to edit scene: %v", err)
		}
		if err := r.Frame(ctx, view, frame.Passes()...); err != nil {
			log.Fatalf("Frame %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	st := r.Stats()
	p := message.NewPrinter(language.English)
	log.Print(p.Sprintf("%d frames on %s in %v (%v/frame)", st.Frames, b.Name(), elapsed.Round(time.Millisecond),
		(elapsed / time.Duration(max(st.Frames, 1))).Round(time.Microsecond)))
	log.Printf("graph:     %s", st.Graph)
	log.Printf("materials: %s", st.Materials)
	log.Printf("textures:  %s", st.Textures)
	log.Print(p.Sprintf("streamed %d bytes in %d copies, %d resizes",
		st.Materials.CopiedBytes+st.Textures.CopiedBytes,
		st.Materials.Copies+st.Textures.Copies,
		st.Materials.Resizes+st.Textures.Resizes))
}

// populate fills the store with n materials of varying color.
func populate(s *scene.Store, n int) error {
	for i := range n {
		m := scene.DefaultMaterial()
		m.BaseColor = hue(float32(i) / float32(max(n, 1)))
		if _, err := s.AddMaterial(m); err != nil {
			return err
		}
	}
	return nil
}

// animate edits a few materials per frame so every flush streams a
// small dirty set.
func animate(s *scene.Store, frame, edits int) error {
	count, _ := s.Counts()
	if count == 0 {
		return nil
	}
	for k := range edits {
		i := (frame*edits + k*7) % count
		m, _ := s.Material(i)
		m.Roughness = float32((frame+k)%10) / 10
		if err := s.SetMaterial(i, m); err != nil {
			return err
		}
	}
	return nil
}

// hue returns a saturated color for t in [0, 1).
func hue(t float32) [4]float32 {
	h := t * 6
	x := 1 - abs(mod2(h)-1)
	switch int(h) % 6 {
	case 0:
		return [4]float32{1, x, 0, 1}
	case 1:
		return [4]float32{x, 1, 0, 1}
	case 2:
		return [4]float32{0, 1, x, 1}
	case 3:
		return [4]float32{0, x, 1, 1}
	case 4:
		return [4]float32{x, 0, 1, 1}
	}
	return [4]float32{1, 0, x, 1}
}

func mod2(v float32) float32 {
	for v >= 2 {
		v -= 2
	}
	return v
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
