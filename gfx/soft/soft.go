// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package soft implements the gfx device model on the CPU.
// The command queue runs on its own goroutine, so submission, fence
// signalling and presentation are asynchronous to the caller exactly
// like on a hardware queue. Rasterisation uses golang.org/x/image.
package soft

import (
	"fmt"
	"sync"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
)

// Name is the registered backend name.
const Name = "soft"

func init() {
	gfx.Register(New())
}

// Option configures devices opened by the backend.
type Option func(*options)

type options struct {
	initialBackBuffer int
	stepper           <-chan struct{}
	logger            *log.Entry
}

// WithInitialBackBuffer sets the index swap chains start at.
func WithInitialBackBuffer(idx int) Option {
	return func(o *options) {
		o.initialBackBuffer = idx
	}
}

// WithStepper makes queues execute one job per value received from c.
// Jobs are command list executions, signals and presents.
func WithStepper(c <-chan struct{}) Option {
	return func(o *options) {
		o.stepper = c
	}
}

// WithLogger sets the logger devices log to.
func WithLogger(l *log.Entry) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates the software backend.
func New(opts ...Option) gfx.Backend {
	o := options{
		logger: log.WithField("backend", Name),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &backend{opts: o}
}

type backend struct {
	opts options
}

func (b *backend) Name() string {
	return Name
}

func (b *backend) Adapters() ([]gfx.AdapterInfo, error) {
	return []gfx.AdapterInfo{{
		ID:       0,
		Name:     "Software Rasterizer",
		Software: true,
	}}, nil
}

func (b *backend) Open(cfg gfx.DeviceConfig) (gfx.Device, error) {
	if cfg.Adapter != 0 {
		return nil, fmt.Errorf("%w: adapter %d", gfx.ErrNoAdapter, cfg.Adapter)
	}

	var sink gfx.ImageSink
	if cfg.Surface != nil {
		sink, _ = cfg.Surface.(gfx.ImageSink)
	}

	b.opts.logger.WithField("sink", sink != nil).Info("software device opened")
	return &Device{
		opts: b.opts,
		log:  b.opts.logger,
		sink: sink,
	}, nil
}

// Device is a software device.
type Device struct {
	opts options
	log  *log.Entry
	sink gfx.ImageSink

	mu       sync.Mutex
	queues   []*queue
	released bool
}

// Info implements interface
func (d *Device) Info() gfx.AdapterInfo {
	return gfx.AdapterInfo{ID: 0, Name: "Software Rasterizer", Software: true}
}

// CreateCommandQueue implements interface
func (d *Device) CreateCommandQueue() (gfx.CommandQueue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gfx.ErrReleased
	}
	q := newQueue(d.opts.stepper, d.log)
	d.queues = append(d.queues, q)
	return q, nil
}

// CreateSwapChain implements interface
func (d *Device) CreateSwapChain(q gfx.CommandQueue, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	sq, ok := q.(*queue)
	if !ok {
		return nil, gfx.ErrWrongBackend
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("swap chain needs at least 2 buffers, got %d", desc.BufferCount)
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("invalid swap chain size %dx%d", desc.Width, desc.Height)
	}
	if d.opts.initialBackBuffer < 0 || d.opts.initialBackBuffer >= desc.BufferCount {
		return nil, fmt.Errorf("initial back buffer %d out of range", d.opts.initialBackBuffer)
	}
	return newSwapChain(sq, desc, d.opts.initialBackBuffer, d.sink), nil
}

// CreateCommandAllocator implements interface
func (d *Device) CreateCommandAllocator() (gfx.CommandAllocator, error) {
	return &allocator{}, nil
}

// CreateCommandList implements interface
func (d *Device) CreateCommandList(alloc gfx.CommandAllocator) (gfx.CommandList, error) {
	a, ok := alloc.(*allocator)
	if !ok {
		return nil, gfx.ErrWrongBackend
	}
	return &commandList{alloc: a}, nil
}

// CreateFence implements interface
func (d *Device) CreateFence(initial uint64) (gfx.Fence, error) {
	return &fence{completed: initial, signaled: initial}, nil
}

// CreatePipelineState implements interface
func (d *Device) CreatePipelineState(desc gfx.PipelineDesc) (gfx.PipelineState, error) {
	return &pipeline{textured: desc.Textured}, nil
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(size int) (gfx.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return &buffer{data: make([]byte, size)}, nil
}

// CreateTexture implements interface
func (d *Device) CreateTexture(width, height int) (gfx.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	return newTexture(width, height), nil
}

// Release stops all queues. Pending work is dropped.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	for _, q := range d.queues {
		q.Release()
	}
	d.log.Info("software device released")
}
