// Package config loads engine settings from a TOML file and maps them onto the window, renderer and engine
// builder options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/window"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is the sentinel every validation failure wraps.
var ErrInvalid = errors.New("invalid config")

// Config is the root of an engine configuration file.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Engine   EngineConfig   `toml:"engine"`
	Log      LogConfig      `toml:"log"`
}

// WindowConfig is the [window] table.
type WindowConfig struct {
	Title     string `toml:"title"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	MinWidth  int    `toml:"min_width"`
	MinHeight int    `toml:"min_height"`
	MaxWidth  int    `toml:"max_width"`
	MaxHeight int    `toml:"max_height"`
}

// RendererConfig is the [renderer] table.
type RendererConfig struct {
	PresentMode   string `toml:"present_mode"`
	MSAA          uint32 `toml:"msaa"`
	ForceSoftware bool   `toml:"force_software"`
	MaxBindGroups uint32 `toml:"max_bind_groups"`
}

// EngineConfig is the [engine] table.
type EngineConfig struct {
	TickRate   float64 `toml:"tick_rate"`
	FrameLimit float64 `toml:"frame_limit"`
	Profiling  bool    `toml:"profiling"`
}

// LogConfig is the [log] table.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used for every key a file leaves out.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:     "oxy",
			Width:     1280,
			Height:    720,
			MinWidth:  320,
			MinHeight: 240,
			MaxWidth:  7680,
			MaxHeight: 4320,
		},
		Renderer: RendererConfig{
			PresentMode:   "uncapped",
			MSAA:          uint32(renderer.MSAA4x),
			MaxBindGroups: 8,
		},
		Engine: EngineConfig{
			TickRate: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the TOML file at path.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - Config: the defaults overlaid with the file's values
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes TOML over the defaults and validates the result. Unknown keys are rejected.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Config: the defaults overlaid with the document's values
//   - error: a decode or validation error
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(strict.String()))
		}
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Write encodes c as TOML.
//
// Parameters:
//   - w: the destination
//
// Returns:
//   - error: an encode or write error
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks every value that has a fixed set of choices or a range.
//
// Returns:
//   - error: an error wrapping ErrInvalid naming the first bad key, nil if the config is usable
func (c Config) Validate() error {
	w := c.Window
	switch {
	case w.Width <= 0 || w.Height <= 0:
		return fmt.Errorf("%w: window size %dx%d must be positive", ErrInvalid, w.Width, w.Height)
	case w.MinWidth > w.MaxWidth || w.MinHeight > w.MaxHeight:
		return fmt.Errorf("%w: window min size %dx%d exceeds max size %dx%d", ErrInvalid, w.MinWidth, w.MinHeight, w.MaxWidth, w.MaxHeight)
	}
	if _, err := c.Renderer.presentMode(); err != nil {
		return err
	}
	if !renderer.MSAASampleCount(c.Renderer.MSAA).Valid() {
		return fmt.Errorf("%w: renderer.msaa %d must be 1, 4, 8 or 16", ErrInvalid, c.Renderer.MSAA)
	}
	if c.Renderer.MaxBindGroups == 0 {
		return fmt.Errorf("%w: renderer.max_bind_groups must be positive", ErrInvalid)
	}
	if c.Engine.TickRate < 0 || c.Engine.FrameLimit < 0 {
		return fmt.Errorf("%w: engine rates must not be negative", ErrInvalid)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q must be text or json", ErrInvalid, c.Log.Format)
	}
	return nil
}

func (r RendererConfig) presentMode() (renderer.PresentMode, error) {
	switch strings.ToLower(r.PresentMode) {
	case "vsync":
		return renderer.PresentModeVSync, nil
	case "uncapped", "":
		return renderer.PresentModeUncapped, nil
	default:
		return 0, fmt.Errorf("%w: renderer.present_mode %q must be vsync or uncapped", ErrInvalid, r.PresentMode)
	}
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, l.Level)
	}
	return lvl, nil
}

// WindowOptions converts the [window] table into window builder options.
//
// Parameters:
//   - logger: the logger handed to the window, may be nil
//
// Returns:
//   - []window.WindowBuilderOption: options for window.NewWindow
func (c Config) WindowOptions(logger *slog.Logger) []window.WindowBuilderOption {
	w := c.Window
	return []window.WindowBuilderOption{
		window.WithTitle(w.Title),
		window.WithSize(w.Width, w.Height),
		window.WithMinSize(w.MinWidth, w.MinHeight),
		window.WithMaxSize(w.MaxWidth, w.MaxHeight),
		window.WithLogger(logger),
	}
}

// RendererOptions converts the [renderer] table into renderer builder options.
//
// Parameters:
//   - logger: the logger handed to the renderer, may be nil
//
// Returns:
//   - []renderer.RendererBuilderOption: options for renderer.NewRenderer
func (c Config) RendererOptions(logger *slog.Logger) []renderer.RendererBuilderOption {
	mode, _ := c.Renderer.presentMode()
	return []renderer.RendererBuilderOption{
		renderer.WithPresentMode(mode),
		renderer.WithMSAA(renderer.MSAASampleCount(c.Renderer.MSAA)),
		renderer.WithForceSoftwareRenderer(c.Renderer.ForceSoftware),
		renderer.WithMaxBindGroups(c.Renderer.MaxBindGroups),
		renderer.WithLogger(logger),
	}
}

// EngineOptions converts the [engine] table into engine builder options. The window, renderer and graph still
// have to be supplied by the caller.
//
// Returns:
//   - []engine.EngineBuilderOption: options for engine.NewEngine
func (c Config) EngineOptions() []engine.EngineBuilderOption {
	return []engine.EngineBuilderOption{
		engine.WithTickRate(c.Engine.TickRate),
		engine.WithRenderFrameLimit(c.Engine.FrameLimit),
		engine.WithProfiling(c.Engine.Profiling),
	}
}

// Logger builds the logger described by the [log] table.
//
// Parameters:
//   - w: the destination, usually os.Stderr
//
// Returns:
//   - *slog.Logger: a text or JSON logger at the configured level
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Log.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
