// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/hellotri/core"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfiguration(t *testing.T) {
	cfg, err := core.LoadConfiguration()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultConfiguration(), cfg)
	assert.Equal(t, 1280, cfg.Renderer.ScreenWidth)
	assert.Equal(t, 720, cfg.Renderer.ScreenHeight)
	assert.Equal(t, 2, cfg.Renderer.SwapchainSize)
	assert.Equal(t, time.Duration(0), cfg.Renderer.FenceTimeout)
}

func TestConfigurationFromEnvironment(t *testing.T) {
	t.Setenv("HELLOTRI_WIDTH", "800")
	t.Setenv("HELLOTRI_HEIGHT", "600")
	t.Setenv("HELLOTRI_BUFFERS", "3")
	t.Setenv("HELLOTRI_BACKEND", "soft")
	t.Setenv("HELLOTRI_ADAPTER", "1")
	t.Setenv("HELLOTRI_FPS", "0")
	t.Setenv("HELLOTRI_FENCE_TIMEOUT", "2s")
	t.Setenv("HELLOTRI_DRAW", "false")
	t.Setenv("HELLOTRI_DEBUG", "true")
	t.Setenv("HELLOTRI_SHADERS", "shaders.kar")
	t.Setenv("HELLOTRI_LOG_LEVEL", "debug")

	cfg, err := core.LoadConfiguration()
	require.NoError(t, err)
	assert.Equal(t, core.Configuration{
		Time: core.TimeConfiguration{FramesPerSecond: 0},
		Renderer: core.RendererConfiguration{
			Backend:       "soft",
			Adapter:       1,
			SwapchainSize: 3,
			Debug:         true,
			ScreenWidth:   800,
			ScreenHeight:  600,
			Draw:          false,
			FenceTimeout:  2 * time.Second,
			Shaders:       "shaders.kar",
		},
		LogLevel: log.DebugLevel,
	}, cfg)
}

func TestInvalidConfiguration(t *testing.T) {
	for key, value := range map[string]string{
		"HELLOTRI_WIDTH":         "wide",
		"HELLOTRI_HEIGHT":        "0",
		"HELLOTRI_BUFFERS":       "1",
		"HELLOTRI_FPS":           "-1",
		"HELLOTRI_FENCE_TIMEOUT": "soon",
		"HELLOTRI_DRAW":          "maybe",
		"HELLOTRI_LOG_LEVEL":     "loud",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := core.LoadConfiguration()
			assert.Error(t, err)
		})
	}
}

func TestConfigurationFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HELLOTRI_BACKEND=soft\nHELLOTRI_BUFFERS=3\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("HELLOTRI_BACKEND")
		os.Unsetenv("HELLOTRI_BUFFERS")
	})

	cfg, err := core.LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "soft", cfg.Renderer.Backend)
	assert.Equal(t, 3, cfg.Renderer.SwapchainSize)

	_, err = core.LoadConfiguration(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
