package vulkan

import (
	"errors"
	"fmt"
	"math"

	"github.com/alpqr/qvk6-sub001/engine/core"
	emath "github.com/alpqr/qvk6-sub001/engine/math"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	vk "github.com/goki/vulkan"
)

// CreateSwapchain creates a swapchain on the window behind desc.Surface.
// When desc.Old is set it is handed to the driver for reuse; the caller
// still destroys it.
func (d *Device) CreateSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	window, ok := desc.Surface.(WindowSurface)
	if !ok {
		return 0, fmt.Errorf("surface %T cannot present with Vulkan", desc.Surface)
	}
	surface, err := d.surfaceFor(window)
	if err != nil {
		return 0, err
	}

	var caps vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(d.phys.handle, surface, &caps)
	if err := d.check("vkGetPhysicalDeviceSurfaceCapabilities", res); err != nil {
		return 0, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	format, err := d.surfaceFormat(surface)
	if err != nil {
		return 0, err
	}

	extent := vk.Extent2D{Width: desc.Width, Height: desc.Height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	} else {
		extent.Width = emath.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
		extent.Height = emath.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	}
	if extent.Width == 0 || extent.Height == 0 {
		return 0, fmt.Errorf("vkCreateSwapchain: zero-sized surface: %w", core.ErrSwapchainOutOfDate)
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
	}
	if d.phys.graphicsFamily != d.phys.presentFamily {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{
			d.phys.graphicsFamily,
			d.phys.presentFamily,
		}
	} else {
		info.ImageSharingMode = vk.SharingModeExclusive
	}

	if old, ok := d.swapchains.get(desc.Old); ok {
		info.OldSwapchain = old.handle
	}

	var handle vk.Swapchain
	err = d.locks.SafeCall(SwapchainManagement, func() error {
		return d.check("vkCreateSwapchain", vk.CreateSwapchain(d.device, &info, nil, &handle))
	})
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}

	sc := &swapchain{
		handle:  handle,
		surface: surface,
		format:  format.Format,
		width:   extent.Width,
		height:  extent.Height,
	}
	if err := d.wrapSwapchainImages(sc); err != nil {
		d.destroySwapchain(sc)
		return 0, err
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", extent.Width, extent.Height, len(sc.images))
	return d.swapchains.add(sc), nil
}

// surfaceFormat prefers BGRA8 with an sRGB color space and otherwise takes
// the first format the renderer can describe.
func (d *Device) surfaceFormat(surface vk.Surface) (vk.SurfaceFormat, error) {
	var count uint32
	res := vk.GetPhysicalDeviceSurfaceFormats(d.phys.handle, surface, &count, nil)
	if err := d.check("vkGetPhysicalDeviceSurfaceFormats", res); err != nil {
		return vk.SurfaceFormat{}, err
	}
	formats := make([]vk.SurfaceFormat, count)
	res = vk.GetPhysicalDeviceSurfaceFormats(d.phys.handle, surface, &count, formats)
	if err := d.check("vkGetPhysicalDeviceSurfaceFormats", res); err != nil {
		return vk.SurfaceFormat{}, err
	}

	var fallback *vk.SurfaceFormat
	for i := range formats {
		formats[i].Deref()
		f := formats[i]
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
		if fallback == nil && toVkFormat(fromVkFormat(f.Format)) == f.Format {
			fallback = &formats[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return vk.SurfaceFormat{}, errors.New("surface offers no usable color format")
}

// wrapSwapchainImages registers the chain's images, each with its own view,
// so framebuffers can reference them like any other image.
func (d *Device) wrapSwapchainImages(sc *swapchain) error {
	var count uint32
	if err := d.check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.device, sc.handle, &count, nil)); err != nil {
		return err
	}
	handles := make([]vk.Image, count)
	if err := d.check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.device, sc.handle, &count, handles)); err != nil {
		return err
	}
	for _, h := range handles {
		img := &image{
			handle: h,
			format: sc.format,
			aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			desc: driver.ImageDesc{
				Width:        sc.width,
				Height:       sc.height,
				Format:       fromVkFormat(sc.format),
				MipLevels:    1,
				Layers:       1,
				SampleCount:  1,
				RenderTarget: true,
			},
			swapchain: true,
		}
		if err := d.createView(img); err != nil {
			return err
		}
		sc.images = append(sc.images, d.images.add(img))
	}
	return nil
}

// destroySwapchain drops the views of the chain's images; the images
// themselves go away with the swapchain.
func (d *Device) destroySwapchain(sc *swapchain) {
	for _, h := range sc.images {
		if img, ok := d.images.remove(h); ok {
			d.destroyImage(img)
		}
	}
	sc.images = nil
	d.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(d.device, sc.handle, nil)
		return nil
	})
}

func (d *Device) DestroySwapchain(h driver.Swapchain) {
	if sc, ok := d.swapchains.remove(h); ok {
		d.destroySwapchain(sc)
	}
}

func (d *Device) SwapchainImages(h driver.Swapchain) []driver.Image {
	sc, ok := d.swapchains.get(h)
	if !ok {
		return nil
	}
	out := make([]driver.Image, len(sc.images))
	copy(out, sc.images)
	return out
}

func (d *Device) SwapchainFormat(h driver.Swapchain) metadata.TextureFormat {
	sc, ok := d.swapchains.get(h)
	if !ok {
		return metadata.TextureFormatUnknown
	}
	return fromVkFormat(sc.format)
}

// AcquireNextImage returns an error wrapping core.ErrSwapchainOutOfDate when
// the chain must be rebuilt. A suboptimal chain is still used.
func (d *Device) AcquireNextImage(h driver.Swapchain, signal driver.Semaphore) (uint32, error) {
	sc, ok := d.swapchains.get(h)
	if !ok {
		return 0, fmt.Errorf("acquire from unknown swapchain %d", h)
	}
	sem, ok := d.semaphores.get(signal)
	if !ok {
		return 0, fmt.Errorf("acquire signals unknown semaphore %d", signal)
	}
	var index uint32
	res := vk.AcquireNextImage(d.device, sc.handle, vk.MaxUint64, sem, vk.NullFence, &index)
	if err := d.check("vkAcquireNextImageKHR", res); err != nil {
		if !errors.Is(err, core.ErrSwapchainOutOfDate) {
			core.LogError("Failed to acquire swapchain image: %s", err)
		}
		return 0, err
	}
	return index, nil
}

func (d *Device) Present(h driver.Swapchain, index uint32, wait driver.Semaphore) error {
	sc, ok := d.swapchains.get(h)
	if !ok {
		return fmt.Errorf("present to unknown swapchain %d", h)
	}
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.handle},
		PImageIndices:  []uint32{index},
	}
	if wait != 0 {
		sem, ok := d.semaphores.get(wait)
		if !ok {
			return fmt.Errorf("present waits on unknown semaphore %d", wait)
		}
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{sem}
	}
	return d.locks.SafeQueueCall(d.phys.presentFamily, func() error {
		return d.check("vkQueuePresentKHR", vk.QueuePresent(d.present, &info))
	})
}
