// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command hellotri opens a window and draws a textured triangle every
// frame, waiting for the GPU to finish each frame before the next.
package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/devblok/hellotri/assets"
	"github.com/devblok/hellotri/core"
	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/gfx/soft"
	"github.com/devblok/hellotri/gfx/vkr"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	warp        bool
	backendName string
	maxFrames   uint64
	envFiles    []string
	screenshot  string
)

var rootCmd = &cobra.Command{
	Use:   "hellotri",
	Short: "Draw a textured triangle",
	Long: `hellotri renders a checkerboard textured triangle on a cleared
background, synchronising with the GPU once per frame.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&warp, "warp", false, "use the software rasterizer")
	rootCmd.Flags().StringVar(&backendName, "backend", "", "backend to use (overrides HELLOTRI_BACKEND)")
	rootCmd.Flags().Uint64Var(&maxFrames, "frames", 0, "exit after this many frames, 0 runs until closed")
	rootCmd.Flags().StringSliceVar(&envFiles, "env", nil, ".env files to load configuration from")
	rootCmd.Flags().StringVar(&screenshot, "screenshot", "", "save the last software frame to this PNG file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("hellotri failed")
	}
}

func run() error {
	cfg, err := core.LoadConfiguration(envFiles...)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)

	switch {
	case warp:
		cfg.Renderer.Backend = soft.Name
	case backendName != "":
		cfg.Renderer.Backend = backendName
	}
	backend, err := gfx.Lookup(cfg.Renderer.Backend)
	if err != nil {
		return err
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("sdl.Init(): %w", err)
	}
	defer sdl.Quit()

	var flags uint32 = sdl.WINDOW_SHOWN
	if backend.Name() == vkr.Name {
		if err := sdl.VulkanLoadLibrary(""); err != nil {
			return fmt.Errorf("sdl.VulkanLoadLibrary(): %w", err)
		}
		defer sdl.VulkanUnloadLibrary()
		flags |= sdl.WINDOW_VULKAN
	}

	win, err := newWindow(core.WindowTitle, cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight, flags)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	defer win.Destroy()

	shaders, err := loadShaders(cfg.Renderer, backend.Name())
	if err != nil {
		return err
	}

	dev, err := backend.Open(gfx.DeviceConfig{
		Adapter: cfg.Renderer.Adapter,
		Debug:   cfg.Renderer.Debug,
		Surface: win,
	})
	if err != nil {
		return fmt.Errorf("opening %s device: %w", backend.Name(), err)
	}
	defer dev.Release()

	sample, err := core.NewSample(dev, cfg.Renderer, shaders)
	if err != nil {
		return err
	}

	if err := loop(sample, win, core.NewTime(cfg.Time)); err != nil {
		sample.Destroy()
		return err
	}
	if err := sample.Destroy(); err != nil {
		return err
	}

	if screenshot != "" {
		if err := win.screenshot(screenshot); err != nil {
			return fmt.Errorf("saving screenshot: %w", err)
		}
		log.WithField("path", screenshot).Info("screenshot saved")
	}
	return nil
}

// loadShaders reads compiled shaders when drawing. The software backend
// rasterises without them, so a missing shader set is not fatal there.
func loadShaders(cfg core.RendererConfiguration, backend string) (assets.Shaders, error) {
	if !cfg.Draw {
		return assets.Shaders{}, nil
	}

	src, closeSrc, err := assets.Open(cfg.Shaders)
	if err == nil {
		defer closeSrc()
		var shaders assets.Shaders
		if shaders, err = assets.LoadShaders(src); err == nil {
			log.WithFields(log.Fields{
				"vertex":   shaders.VertexName,
				"fragment": shaders.FragmentName,
			}).Debug("shaders loaded")
			return shaders, nil
		}
	}

	if backend == soft.Name {
		log.WithError(err).WithField("shaders", cfg.Shaders).Warn("continuing without shaders")
		return assets.Shaders{}, nil
	}
	return assets.Shaders{}, fmt.Errorf("loading shaders from %s: %w", cfg.Shaders, err)
}

func loop(sample *core.Sample, win *window, t *core.Time) error {
	defer t.Stop()

	for {
		t.Next()
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch et := event.(type) {
			case *sdl.KeyboardEvent:
				key := sdl.GetKeyName(et.Keysym.Sym)
				if et.Type == sdl.KEYUP {
					log.WithField("key", key).Debug("key up")
					continue
				}
				log.WithField("key", key).Debug("key down")
				if et.Keysym.Sym == sdl.K_ESCAPE {
					return finish(sample, t)
				}
			case *sdl.WindowEvent:
				if et.Event == sdl.WINDOWEVENT_EXPOSED {
					log.Trace("window exposed")
				}
			case *sdl.QuitEvent:
				return finish(sample, t)
			}
		}

		if err := sample.Render(); err != nil {
			if errors.Is(err, gfx.ErrDeviceRemoved) {
				log.WithError(err).Error("device removed")
			}
			return err
		}
		if err := win.flush(); err != nil {
			return err
		}
		if maxFrames > 0 && sample.Frames() >= maxFrames {
			return finish(sample, t)
		}
	}
}

func finish(sample *core.Sample, t *core.Time) error {
	log.WithFields(log.Fields{
		"frames":     sample.Frames(),
		"averageFps": t.AverageFps(),
	}).Info("event loop exited")
	return nil
}
