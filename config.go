package occdemo

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/SergeyYablokov/occdemo-sub001/streaming"
)

// ErrInvalidConfig marks configuration values Validate rejects.
var ErrInvalidConfig = errors.New("occdemo: invalid config")

// Duration is a time.Duration that reads and writes as a string such as
// "250ms" in TOML files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds renderer and CLI settings.
//
// Example file:
//
//	backend = "auto"
//	width = 1280
//	height = 720
//	samples = 4
//	frames_in_flight = 3
//	fence_timeout = "2s"
type Config struct {
	// Backend names the device backend: "auto", "wgpu" or "null".
	Backend string `toml:"backend"`

	// Width and Height are the default view size.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	// Samples is the MSAA sample count of the default view.
	Samples uint32 `toml:"samples"`

	// FramesInFlight is the number of streaming ring slots.
	FramesInFlight int `toml:"frames_in_flight"`

	// Workers bounds parallel command recording. 0 records serially.
	Workers int `toml:"workers"`

	// FenceTimeout bounds a single slot wait.
	FenceTimeout Duration `toml:"fence_timeout"`

	// MaterialCapacity and TextureCapacity pre-size the scene buffers.
	MaterialCapacity int `toml:"material_capacity"`
	TextureCapacity  int `toml:"texture_capacity"`

	// LogLevel is a slog level name used by the CLI.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		Backend:          "auto",
		Width:            1280,
		Height:           720,
		Samples:          1,
		FramesInFlight:   streaming.DefaultSlots,
		Workers:          4,
		FenceTimeout:     Duration(streaming.DefaultFenceTimeout),
		MaterialCapacity: 256,
		TextureCapacity:  64,
		LogLevel:         "info",
	}
}

// LoadConfig reads a TOML file over DefaultConfig and validates the result.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return errors.Wrapf(ErrInvalidConfig, "view size %dx%d", c.Width, c.Height)
	case c.Samples > 1 && c.Samples != 2 && c.Samples != 4 && c.Samples != 8:
		return errors.Wrapf(ErrInvalidConfig, "samples %d (want 1, 2, 4 or 8)", c.Samples)
	case c.FramesInFlight < 1 || c.FramesInFlight > 8:
		return errors.Wrapf(ErrInvalidConfig, "frames_in_flight %d (want 1..8)", c.FramesInFlight)
	case c.Workers < 0:
		return errors.Wrapf(ErrInvalidConfig, "workers %d", c.Workers)
	case c.FenceTimeout < 0:
		return errors.Wrapf(ErrInvalidConfig, "fence_timeout %s", time.Duration(c.FenceTimeout))
	case c.MaterialCapacity < 0 || c.TextureCapacity < 0:
		return errors.Wrapf(ErrInvalidConfig, "negative capacity")
	}
	return nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
