// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx device model on Vulkan.
//
// Command allocators are command pools and command lists are primary
// command buffers. Resource states become image layouts and barriers
// become pipeline barriers. The monotonic gfx fence is emulated with a
// pool of binary fences, one per signalled value.
package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// Name is the registered backend name.
const Name = "vulkan"

const (
	appName         = "hellotri"
	validationLayer = "VK_LAYER_KHRONOS_validation"
)

func init() {
	gfx.Register(New())
}

// WindowSurface is a gfx.Surface that can host a Vulkan swap chain.
type WindowSurface interface {
	gfx.Surface

	// ProcAddr returns vkGetInstanceProcAddr of the loaded library.
	ProcAddr() unsafe.Pointer

	// InstanceExtensions lists the extensions the window needs.
	InstanceExtensions() []string

	// CreateVulkanSurface creates the presentation surface.
	CreateVulkanSurface(instance vk.Instance) (vk.Surface, error)
}

// Option configures the backend.
type Option func(*options)

type options struct {
	logger *log.Entry
}

// WithLogger sets the logger devices log to.
func WithLogger(l *log.Entry) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates the Vulkan backend.
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

// Adapters creates a headless instance and lists physical devices.
func (b *backend) Adapters() ([]gfx.AdapterInfo, error) {
	instance, err := createInstance(nil, nil, false)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyInstance(instance, nil)

	devices, err := enumerateDevices(instance)
	if err != nil {
		return nil, err
	}

	infos := make([]gfx.AdapterInfo, 0, len(devices))
	for i, dev := range devices {
		info, err := adapterInfo(i, dev)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *backend) Open(cfg gfx.DeviceConfig) (gfx.Device, error) {
	ws, ok := cfg.Surface.(WindowSurface)
	if !ok {
		return nil, errors.New("vulkan backend needs a window surface")
	}

	instance, err := createInstance(ws.ProcAddr(), ws.InstanceExtensions(), cfg.Debug)
	if err != nil {
		return nil, err
	}

	// openDevice owns the instance from here on.
	d, err := openDevice(instance, ws, cfg, b.opts.logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func createInstance(procAddr unsafe.Pointer, extensions []string, debug bool) (vk.Instance, error) {
	if procAddr != nil {
		vk.SetGetInstanceProcAddr(procAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vk.SetDefaultGetInstanceProcAddr(): %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vk.Init(): %w", err)
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString(appName),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 0, 0),
	}

	var layers []string
	if debug {
		layers = safeStrings([]string{validationLayer})
	}
	extensions = safeStrings(extensions)

	instanceCreateInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := NewError(vk.CreateInstance(&instanceCreateInfo, nil, &instance)); err != nil {
		return nil, fmt.Errorf("vk.CreateInstance(): %w", err)
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vk.InitInstance(): %w", err)
	}
	return instance, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := NewError(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %w", err)
	}
	if deviceCount == 0 {
		return nil, gfx.ErrNoAdapter
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := NewError(vk.EnumeratePhysicalDevices(instance, &deviceCount, devices)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %w", err)
	}
	return devices[:deviceCount], nil
}

func adapterInfo(id int, dev vk.PhysicalDevice) (gfx.AdapterInfo, error) {
	var extCount uint32
	if err := NewError(vk.EnumerateDeviceExtensionProperties(dev, "", &extCount, nil)); err != nil {
		return gfx.AdapterInfo{}, fmt.Errorf("vk.EnumerateDeviceExtensionProperties(): %w", err)
	}
	extProps := make([]vk.ExtensionProperties, extCount)
	if err := NewError(vk.EnumerateDeviceExtensionProperties(dev, "", &extCount, extProps)); err != nil {
		return gfx.AdapterInfo{}, fmt.Errorf("vk.EnumerateDeviceExtensionProperties(): %w", err)
	}
	extensions := make([]string, 0, extCount)
	for _, ext := range extProps[:extCount] {
		ext.Deref()
		extensions = append(extensions, vk.ToString(ext.ExtensionName[:]))
	}

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(dev, &memProps)
	memProps.Deref()
	var memory uint64
	for i := uint32(0); i < memProps.MemoryHeapCount; i++ {
		memProps.MemoryHeaps[i].Deref()
		memory += uint64(memProps.MemoryHeaps[i].Size)
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(dev, &props)
	props.Deref()

	return gfx.AdapterInfo{
		ID:            id,
		VendorID:      int(props.VendorID),
		DriverVersion: int(props.DriverVersion),
		Name:          vk.ToString(props.DeviceName[:]),
		Memory:        memory,
		Software:      props.DeviceType == vk.PhysicalDeviceTypeCpu,
		Extensions:    extensions,
	}, nil
}
