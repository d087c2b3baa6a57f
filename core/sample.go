// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	"github.com/devblok/hellotri/assets"
	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/model"
	log "github.com/sirupsen/logrus"
)

// ClearColor is the background of every frame
var ClearColor = [4]float32{0.0, 0.2, 0.4, 1.0}

// Sample owns every object of the textured triangle sample.
type Sample struct {
	cfg RendererConfiguration
	log *log.Entry

	device    gfx.Device
	queue     gfx.CommandQueue
	swapChain gfx.SwapChain
	allocator gfx.CommandAllocator
	list      gfx.CommandList
	pipeline  gfx.PipelineState
	vertices  gfx.Buffer
	texture   gfx.Texture

	sync      *FrameSynchronizer
	presenter *FramePresenter

	// in creation order
	owned     []gfx.Releasable
	destroyed bool
}

// NewSample creates the pipeline objects and uploads the static data.
// On return the upload has retired and the first frame can be recorded.
// Shaders are only used when drawing.
func NewSample(dev gfx.Device, cfg RendererConfiguration, shaders assets.Shaders) (_ *Sample, err error) {
	s := &Sample{
		cfg:    cfg,
		device: dev,
		log: log.WithFields(log.Fields{
			"component": "sample",
			"adapter":   dev.Info().Name,
		}),
	}
	defer func() {
		if err != nil {
			if s.sync != nil {
				// drain before anything the queue may still touch is freed
				if serr := s.sync.Shutdown(); serr != nil {
					s.log.WithError(serr).Warn("drain after failed setup")
				}
			}
			s.release()
		}
	}()

	// the queue lives as long as dev and is never owned here
	if s.queue, err = dev.CreateCommandQueue(); err != nil {
		return nil, fmt.Errorf("creating command queue: %w", err)
	}
	if s.swapChain, err = dev.CreateSwapChain(s.queue, gfx.SwapChainDesc{
		Width:       cfg.ScreenWidth,
		Height:      cfg.ScreenHeight,
		BufferCount: cfg.SwapchainSize,
	}); err != nil {
		return nil, fmt.Errorf("creating swap chain: %w", err)
	}
	s.own(s.swapChain)

	if s.allocator, err = dev.CreateCommandAllocator(); err != nil {
		return nil, fmt.Errorf("creating command allocator: %w", err)
	}
	s.own(s.allocator)

	if cfg.Draw {
		if s.pipeline, err = dev.CreatePipelineState(gfx.PipelineDesc{
			VertexShader: shaders.Vertex,
			PixelShader:  shaders.Fragment,
			Textured:     true,
		}); err != nil {
			return nil, fmt.Errorf("creating pipeline state: %w", err)
		}
		s.own(s.pipeline)
	}

	if s.list, err = dev.CreateCommandList(s.allocator); err != nil {
		return nil, fmt.Errorf("creating command list: %w", err)
	}
	s.own(s.list)

	var syncOpts []SyncOption
	if cfg.FenceTimeout > 0 {
		syncOpts = append(syncOpts, WithWaitTimeout(cfg.FenceTimeout))
	}
	if s.sync, err = NewFrameSynchronizer(dev, s.queue, s.swapChain, syncOpts...); err != nil {
		return nil, err
	}

	var record RecordFunc
	if cfg.Draw {
		if err = s.upload(); err != nil {
			return nil, err
		}
		record = s.record
	}

	s.presenter = NewFramePresenter(PresenterConfig{
		Queue:        s.queue,
		SwapChain:    s.swapChain,
		Allocator:    s.allocator,
		List:         s.list,
		Pipeline:     s.pipeline,
		Sync:         s.sync,
		ClearColor:   ClearColor,
		SyncInterval: 1,
		Record:       record,
	})

	s.log.WithFields(log.Fields{
		"width":      cfg.ScreenWidth,
		"height":     cfg.ScreenHeight,
		"buffers":    cfg.SwapchainSize,
		"draw":       cfg.Draw,
		"frameIndex": s.sync.FrameIndex(),
	}).Info("sample initialised")
	return s, nil
}

func (s *Sample) own(r gfx.Releasable) {
	s.owned = append(s.owned, r)
}

func (s *Sample) disown(r gfx.Releasable) {
	for i := len(s.owned) - 1; i >= 0; i-- {
		if s.owned[i] == r {
			s.owned = append(s.owned[:i], s.owned[i+1:]...)
			return
		}
	}
}

// upload creates the vertex buffer and the texture, copies the texture
// through an upload buffer and waits for the copy to retire.
func (s *Sample) upload() error {
	aspect := float32(s.cfg.ScreenWidth) / float32(s.cfg.ScreenHeight)
	vertexData := model.EncodeVertices(model.Triangle(aspect))

	var err error
	if s.vertices, err = s.device.CreateBuffer(len(vertexData)); err != nil {
		return fmt.Errorf("creating vertex buffer: %w", err)
	}
	s.own(s.vertices)
	if err := s.vertices.Write(0, vertexData); err != nil {
		return err
	}

	if s.texture, err = s.device.CreateTexture(model.TextureWidth, model.TextureHeight); err != nil {
		return fmt.Errorf("creating texture: %w", err)
	}
	s.own(s.texture)

	rowPitch := gfx.AlignRowPitch(model.TextureWidth * model.TexturePixelSize)
	pixels := model.GetPixels(model.Checkerboard(model.TextureWidth, model.TextureHeight), rowPitch)
	staging, err := s.device.CreateBuffer(len(pixels))
	if err != nil {
		return fmt.Errorf("creating upload buffer: %w", err)
	}
	// owned until the copy has retired; a failed wait leaves it to the
	// drain in NewSample
	s.own(staging)
	if err := staging.Write(0, pixels); err != nil {
		return err
	}

	if err := s.allocator.Reset(); err != nil {
		return err
	}
	if err := s.list.Reset(s.allocator, s.pipeline); err != nil {
		return err
	}
	s.list.CopyBufferToTexture(s.texture, staging, rowPitch)
	s.list.ResourceBarrier(gfx.Transition(s.texture, gfx.StateCopyDest, gfx.StateShaderResource))
	if err := s.list.Close(); err != nil {
		return fmt.Errorf("recording texture upload: %w", err)
	}
	if err := s.queue.ExecuteCommandLists(s.list); err != nil {
		return fmt.Errorf("executing texture upload: %w", err)
	}
	if err := s.sync.SignalAndWait(); err != nil {
		return fmt.Errorf("waiting for texture upload: %w", err)
	}
	s.disown(staging)
	staging.Release()

	s.log.WithFields(log.Fields{
		"vertexBytes":  len(vertexData),
		"textureBytes": len(pixels),
		"rowPitch":     rowPitch,
	}).Debug("static data uploaded")
	return nil
}

func (s *Sample) record(list gfx.CommandList) {
	w, h := s.cfg.ScreenWidth, s.cfg.ScreenHeight
	list.SetViewport(gfx.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1})
	list.SetScissor(gfx.Rect{Right: w, Bottom: h})
	list.SetVertexBuffer(s.vertices, model.VertexStride)
	list.SetTexture(s.texture)
	list.Draw(3, 1)
}

// Render records, submits and presents one frame, then waits for it.
func (s *Sample) Render() error {
	if s.destroyed {
		return gfx.ErrReleased
	}
	if err := s.presenter.Frame(); err != nil {
		return err
	}
	s.log.WithFields(log.Fields{
		"frame":      s.presenter.Frames(),
		"fenceValue": s.sync.FenceValue(),
		"frameIndex": s.sync.FrameIndex(),
	}).Trace("frame presented")
	return nil
}

// Frames returns the number of presented frames.
func (s *Sample) Frames() uint64 {
	if s.presenter == nil {
		return 0
	}
	return s.presenter.Frames()
}

// FrameIndex returns the index of the back buffer the next frame uses.
func (s *Sample) FrameIndex() int {
	return s.sync.FrameIndex()
}

// FenceValue returns the last signalled fence value.
func (s *Sample) FenceValue() uint64 {
	return s.sync.FenceValue()
}

// Destroy drains the queue and releases everything in reverse creation
// order. Only the first call does anything.
func (s *Sample) Destroy() error {
	if s.destroyed {
		return nil
	}
	var err error
	if s.sync != nil {
		err = s.sync.Shutdown()
	}
	s.release()
	s.log.WithField("frames", s.Frames()).Info("sample destroyed")
	return err
}

func (s *Sample) release() {
	s.destroyed = true
	for i := len(s.owned) - 1; i >= 0; i-- {
		s.owned[i].Release()
	}
	s.owned = nil
}
