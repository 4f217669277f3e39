// Package vulkan implements driver.Device on top of github.com/goki/vulkan.
package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
)

// WindowSurface is a driver.Surface that can also back a Vulkan surface.
type WindowSurface interface {
	driver.Surface
	RequiredInstanceExtensions() []string
	CreateWindowSurface(instance vk.Instance) (vk.Surface, error)
}

type Device struct {
	cfg      core.VulkanConfig
	instance vk.Instance
	debug    vk.DebugReportCallback
	phys     *physicalDevice
	device   vk.Device
	graphics vk.Queue
	present  vk.Queue
	cmdPool  vk.CommandPool
	locks    *lockPool
	alloc    *Allocator
	lost     atomic.Bool

	surfaceMu sync.Mutex
	surfaces  map[WindowSurface]vk.Surface

	buffers      *table[driver.Buffer, *buffer]
	images       *table[driver.Image, *image]
	samplers     *table[driver.Sampler, vk.Sampler]
	layouts      *table[driver.DescriptorSetLayout, vk.DescriptorSetLayout]
	pools        *table[driver.DescriptorPool, vk.DescriptorPool]
	sets         *table[driver.DescriptorSet, *set]
	renderPasses *table[driver.RenderPass, *renderPass]
	framebuffers *table[driver.Framebuffer, vk.Framebuffer]
	pipelines    *table[driver.Pipeline, *pipeline]
	fences       *table[driver.Fence, vk.Fence]
	semaphores   *table[driver.Semaphore, vk.Semaphore]
	cmdbufs      *table[driver.CommandBuffer, vk.CommandBuffer]
	swapchains   *table[driver.Swapchain, *swapchain]
}

// New creates an instance, a surface for window and a logical device able to
// present to it. glfw must be initialized.
func New(window WindowSurface, cfg core.VulkanConfig) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	d := &Device{
		cfg:          cfg,
		locks:        newLockPool(),
		surfaces:     make(map[WindowSurface]vk.Surface),
		buffers:      newTable[driver.Buffer, *buffer](),
		images:       newTable[driver.Image, *image](),
		samplers:     newTable[driver.Sampler, vk.Sampler](),
		layouts:      newTable[driver.DescriptorSetLayout, vk.DescriptorSetLayout](),
		pools:        newTable[driver.DescriptorPool, vk.DescriptorPool](),
		sets:         newTable[driver.DescriptorSet, *set](),
		renderPasses: newTable[driver.RenderPass, *renderPass](),
		framebuffers: newTable[driver.Framebuffer, vk.Framebuffer](),
		pipelines:    newTable[driver.Pipeline, *pipeline](),
		fences:       newTable[driver.Fence, vk.Fence](),
		semaphores:   newTable[driver.Semaphore, vk.Semaphore](),
		cmdbufs:      newTable[driver.CommandBuffer, vk.CommandBuffer](),
		swapchains:   newTable[driver.Swapchain, *swapchain](),
	}

	if err := d.createInstance(window.RequiredInstanceExtensions()); err != nil {
		return nil, err
	}
	surface, err := d.surfaceFor(window)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	if d.phys, err = selectPhysicalDevice(d.instance, surface); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	d.alloc = NewAllocator(d.device, d.phys.memory)

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(d.cfg.AppName),
		PEngineName:        safeString("qvk6"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, windowExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if d.cfg.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", extensions)
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)

	var layers []string
	if d.cfg.Validation {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := requireLayers(layers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if res := vk.CreateInstance(&createInfo, nil, &d.instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.cfg.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.debug = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func requireLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

// surfaceFor returns the Vulkan surface of a window, creating it on first use.
func (d *Device) surfaceFor(w WindowSurface) (vk.Surface, error) {
	d.surfaceMu.Lock()
	defer d.surfaceMu.Unlock()
	if s, ok := d.surfaces[w]; ok {
		return s, nil
	}
	s, err := w.CreateWindowSurface(d.instance)
	if err != nil {
		err = fmt.Errorf("vulkan surface creation failed: %w", err)
		core.LogError(err.Error())
		return vk.NullSurface, err
	}
	d.surfaces[w] = s
	return s, nil
}

func (d *Device) Backend() driver.Backend { return driver.BackendVulkan }

func (d *Device) Allocator() driver.Allocator { return d.alloc }

func (d *Device) Limits() driver.Limits {
	return d.phys.limits()
}

func (d *Device) WaitIdle() error {
	if d.lost.Load() {
		return fmt.Errorf("vkDeviceWaitIdle: %w", core.ErrDeviceLost)
	}
	return d.check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

// Destroy waits for the device and destroys everything still alive, in the
// opposite order of creation.
func (d *Device) Destroy() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)

		for _, sc := range d.swapchains.drain() {
			d.destroySwapchain(sc)
		}
		for _, p := range d.pipelines.drain() {
			vk.DestroyPipeline(d.device, p.handle, nil)
			vk.DestroyPipelineLayout(d.device, p.layout, nil)
		}
		for _, fb := range d.framebuffers.drain() {
			vk.DestroyFramebuffer(d.device, fb, nil)
		}
		for _, rp := range d.renderPasses.drain() {
			vk.DestroyRenderPass(d.device, rp.handle, nil)
		}
		d.sets.drain()
		for _, p := range d.pools.drain() {
			vk.DestroyDescriptorPool(d.device, p, nil)
		}
		for _, l := range d.layouts.drain() {
			vk.DestroyDescriptorSetLayout(d.device, l, nil)
		}
		for _, s := range d.samplers.drain() {
			vk.DestroySampler(d.device, s, nil)
		}
		for _, img := range d.images.drain() {
			d.destroyImage(img)
		}
		for _, b := range d.buffers.drain() {
			vk.DestroyBuffer(d.device, b.handle, nil)
		}
		if d.alloc != nil {
			d.alloc.freeAll()
		}
		for _, f := range d.fences.drain() {
			vk.DestroyFence(d.device, f, nil)
		}
		for _, s := range d.semaphores.drain() {
			vk.DestroySemaphore(d.device, s, nil)
		}
		d.cmdbufs.drain()
		d.destroyLogicalDevice()
	}

	for w, s := range d.surfaces {
		vk.DestroySurface(d.instance, s, nil)
		delete(d.surfaces, w)
	}
	if d.debug != nil {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	core.LogInfo("Vulkan device destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
