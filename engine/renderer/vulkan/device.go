package vulkan

import (
	"fmt"
	"math/bits"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

type physicalDevice struct {
	handle         vk.PhysicalDevice
	name           string
	properties     vk.PhysicalDeviceProperties
	features       vk.PhysicalDeviceFeatures
	memory         vk.PhysicalDeviceMemoryProperties
	graphicsFamily uint32
	presentFamily  uint32
	portability    bool
}

type queueFamilyInfo struct {
	graphics, present int32
}

const deviceExtensionPortabilitySubset = "VK_KHR_portability_subset"

// selectPhysicalDevice picks the first device that can draw and present to
// surface, preferring discrete GPUs.
func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (*physicalDevice, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(instance, &count, devices); res != vk.Success {
		return nil, resultError("vkEnumeratePhysicalDevices", res)
	}

	var selected *physicalDevice
	for _, dev := range devices {
		pd, ok := meetsRequirements(dev, surface)
		if !ok {
			continue
		}
		if selected == nil || (pd.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu &&
			selected.properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			selected = pd
		}
	}
	if selected == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return nil, err
	}

	p := selected.properties
	core.LogInfo("Selected device: '%s'.", selected.name)
	switch p.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(p.ApiVersion).Major(),
		vk.Version(p.ApiVersion).Minor(),
		vk.Version(p.ApiVersion).Patch(),
	)
	for j := uint32(0); j < selected.memory.MemoryHeapCount; j++ {
		heap := selected.memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
	return selected, nil
}

func meetsRequirements(dev vk.PhysicalDevice, surface vk.Surface) (*physicalDevice, bool) {
	pd := &physicalDevice{handle: dev}
	vk.GetPhysicalDeviceProperties(dev, &pd.properties)
	pd.properties.Deref()
	pd.properties.Limits.Deref()
	pd.name = cString(pd.properties.DeviceName[:])
	vk.GetPhysicalDeviceFeatures(dev, &pd.features)
	pd.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(dev, &pd.memory)
	pd.memory.Deref()

	queues := queueFamilies(dev, surface)
	core.LogDebug("%s: graphics family %d, present family %d", pd.name, queues.graphics, queues.present)
	if queues.graphics < 0 || queues.present < 0 {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", pd.name)
		return nil, false
	}
	pd.graphicsFamily = uint32(queues.graphics)
	pd.presentFamily = uint32(queues.present)

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(dev, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(dev, surface, &modeCount, nil)
	if formatCount < 1 || modeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", pd.name)
		return nil, false
	}

	var extCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(dev, "", &extCount, nil); res != vk.Success {
		return nil, false
	}
	extensions := make([]vk.ExtensionProperties, extCount)
	if res := vk.EnumerateDeviceExtensionProperties(dev, "", &extCount, extensions); res != vk.Success {
		return nil, false
	}
	hasSwapchain := false
	for i := range extensions {
		extensions[i].Deref()
		switch cString(extensions[i].ExtensionName[:]) {
		case trimNul(vk.KhrSwapchainExtensionName):
			hasSwapchain = true
		case deviceExtensionPortabilitySubset:
			pd.portability = true
		}
	}
	if !hasSwapchain {
		core.LogInfo("Required extension not found: '%s', skipping device '%s'.", vk.KhrSwapchainExtensionName, pd.name)
		return nil, false
	}
	return pd, true
}

// queueFamilies prefers a single family that can do both graphics and present.
func queueFamilies(dev vk.PhysicalDevice, surface vk.Surface) queueFamilyInfo {
	info := queueFamilyInfo{graphics: -1, present: -1}
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, families)

	for i := range families {
		families[i].Deref()
		graphics := vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(dev, uint32(i), surface, &supportsPresent)
		present := supportsPresent == vk.True

		if graphics && present {
			return queueFamilyInfo{graphics: int32(i), present: int32(i)}
		}
		if graphics && info.graphics < 0 {
			info.graphics = int32(i)
		}
		if present && info.present < 0 {
			info.present = int32(i)
		}
	}
	return info
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")
	pd := d.phys

	families := []uint32{pd.graphicsFamily}
	if pd.presentFamily != pd.graphicsFamily {
		families = append(families, pd.presentFamily)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, f := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		d.locks.SetQueueFamily(f)
	}

	features := vk.PhysicalDeviceFeatures{}
	if pd.features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if pd.portability {
		core.LogInfo("Adding required extension '%s'.", deviceExtensionPortabilitySubset)
		extensions = append(extensions, deviceExtensionPortabilitySubset)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var device vk.Device
	if res := vk.CreateDevice(pd.handle, &createInfo, nil, &device); res != vk.Success {
		err := resultError("vkCreateDevice", res)
		core.LogError(err.Error())
		return err
	}
	d.device = device
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.device, pd.graphicsFamily, 0, &d.graphics)
	vk.GetDeviceQueue(d.device, pd.presentFamily, 0, &d.present)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: pd.graphicsFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.device, &poolCreateInfo, nil, &d.cmdPool); res != vk.Success {
		err := resultError("vkCreateCommandPool", res)
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Graphics command pool created.")
	return nil
}

func (d *Device) destroyLogicalDevice() {
	d.graphics = nil
	d.present = nil

	core.LogInfo("Destroying command pools...")
	if d.cmdPool != nil {
		vk.DestroyCommandPool(d.device, d.cmdPool, nil)
		d.cmdPool = nil
	}
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.device, nil)
	d.device = nil
}

func (pd *physicalDevice) limits() driver.Limits {
	l := pd.properties.Limits
	var heap uint64
	for i := uint32(0); i < pd.memory.MemoryHeapCount; i++ {
		h := pd.memory.MemoryHeaps[i]
		h.Deref()
		if uint64(h.Size) > heap {
			heap = uint64(h.Size)
		}
	}
	samples := uint32(vk.SampleCountFlagBits(l.FramebufferColorSampleCounts) & vk.SampleCountFlagBits(l.FramebufferDepthSampleCounts))
	maxSamples := uint32(1)
	if samples != 0 {
		maxSamples = 1 << (31 - bits.LeadingZeros32(samples))
	}
	return driver.Limits{
		MaxBufferSize:                   heap,
		MaxTextureSize:                  l.MaxImageDimension2D,
		MinUniformBufferOffsetAlignment: uint64(l.MinUniformBufferOffsetAlignment),
		MaxSampleCount:                  maxSamples,
	}
}

// depthFormat returns the first of the candidates usable as an optimally tiled depth attachment.
func (pd *physicalDevice) depthFormat(candidates ...vk.Format) (vk.Format, bool) {
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(pd.handle, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&flags == flags {
			return f, true
		}
	}
	return vk.FormatUndefined, false
}
