// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// WindowTitle is the title of the sample window.
const WindowTitle = "hellotri: textured triangle"

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "HELLOTRI_"

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration

	// LogLevel is applied to the standard logger by the programs
	LogLevel log.Level
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	Backend       string
	Adapter       int
	SwapchainSize int
	Debug         bool

	ScreenWidth  int
	ScreenHeight int

	// Draw enables the textured triangle, otherwise frames are only cleared
	Draw bool

	// FenceTimeout bounds every fence wait, zero waits forever
	FenceTimeout time.Duration

	// Shaders is a directory or a kar archive with compiled shaders
	Shaders string
}

// DefaultConfiguration returns the configuration used when nothing is set.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
		},
		Renderer: RendererConfiguration{
			Backend:       "vulkan",
			SwapchainSize: 2,
			ScreenWidth:   1280,
			ScreenHeight:  720,
			Draw:          true,
			Shaders:       "./shaders",
		},
		LogLevel: log.InfoLevel,
	}
}

// LoadConfiguration loads the given .env files, if any, and reads
// HELLOTRI_* variables over the defaults. Variables already present in
// the environment win over the files.
func LoadConfiguration(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, fmt.Errorf("loading %v: %w", files, err)
		}
	}
	envy.Reload()

	cfg := DefaultConfiguration()
	r := envReader{}
	cfg.Renderer.ScreenWidth = r.positive("WIDTH", cfg.Renderer.ScreenWidth)
	cfg.Renderer.ScreenHeight = r.positive("HEIGHT", cfg.Renderer.ScreenHeight)
	cfg.Renderer.SwapchainSize = r.positive("BUFFERS", cfg.Renderer.SwapchainSize)
	cfg.Renderer.Backend = envy.Get(EnvPrefix+"BACKEND", cfg.Renderer.Backend)
	cfg.Renderer.Adapter = r.natural("ADAPTER", cfg.Renderer.Adapter)
	cfg.Renderer.Draw = r.boolean("DRAW", cfg.Renderer.Draw)
	cfg.Renderer.Debug = r.boolean("DEBUG", cfg.Renderer.Debug)
	cfg.Renderer.FenceTimeout = r.duration("FENCE_TIMEOUT", cfg.Renderer.FenceTimeout)
	cfg.Renderer.Shaders = envy.Get(EnvPrefix+"SHADERS", cfg.Renderer.Shaders)
	cfg.Time.FramesPerSecond = r.natural("FPS", cfg.Time.FramesPerSecond)

	if lvl := envy.Get(EnvPrefix+"LOG_LEVEL", ""); lvl != "" {
		level, err := log.ParseLevel(lvl)
		if err != nil {
			r.fail("LOG_LEVEL", lvl, err)
		} else {
			cfg.LogLevel = level
		}
	}

	if r.err != nil {
		return Configuration{}, r.err
	}
	if cfg.Renderer.SwapchainSize < 2 {
		return Configuration{}, fmt.Errorf("%sBUFFERS must be at least 2, got %d", EnvPrefix, cfg.Renderer.SwapchainSize)
	}
	return cfg, nil
}

// envReader keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, value, err)
	}
}

func (r *envReader) integer(key string, def int, min int) int {
	v := envy.Get(EnvPrefix+key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	if n < min {
		r.fail(key, v, fmt.Errorf("must be at least %d", min))
		return def
	}
	return n
}

func (r *envReader) positive(key string, def int) int {
	return r.integer(key, def, 1)
}

func (r *envReader) natural(key string, def int) int {
	return r.integer(key, def, 0)
}

func (r *envReader) boolean(key string, def bool) bool {
	v := envy.Get(EnvPrefix+key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := envy.Get(EnvPrefix+key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	if d < 0 {
		r.fail(key, v, fmt.Errorf("must not be negative"))
		return def
	}
	return d
}
