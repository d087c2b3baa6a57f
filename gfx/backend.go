// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"
)

// AdapterInfo describes available physical properties of a rendering device.
type AdapterInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Memory        uint64
	Software      bool
	Extensions    []string `json:",omitempty"`
}

// Surface is the presentation target a device is opened against.
// Backends type-assert it to the backend-specific hooks they need.
type Surface interface {

	// Size returns the drawable size in pixels.
	Size() (width, height int)
}

// ImageSink receives presented images from CPU backends.
// The image is only valid for the duration of the call.
type ImageSink interface {
	PresentImage(img *image.RGBA) error
}

// DeviceConfig selects and configures the device to open.
type DeviceConfig struct {
	Adapter int
	Debug   bool
	Surface Surface
}

// Backend is an implementation of the device model.
type Backend interface {

	// Name returns the unique name of the backend.
	Name() string

	// Adapters lists the adapters the backend can open.
	Adapters() ([]AdapterInfo, error)

	// Open opens a device on the configured adapter.
	Open(cfg DeviceConfig) (Device, error)
}

var (
	mu       sync.Mutex
	backends []Backend
)

// Register registers a Backend. Backends call it exactly once, from init.
// A backend with an already registered name replaces the old one.
func Register(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	for i := range backends {
		if backends[i].Name() == b.Name() {
			backends[i] = b
			log.WithField("backend", b.Name()).Warn("backend replaced")
			return
		}
	}
	backends = append(backends, b)
	log.WithField("backend", b.Name()).Debug("backend registered")
}

// Backends returns the registered backends in registration order.
func Backends() []Backend {
	mu.Lock()
	defer mu.Unlock()
	bs := make([]Backend, len(backends))
	copy(bs, backends)
	return bs
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	mu.Lock()
	defer mu.Unlock()
	for _, b := range backends {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
