package vulkan

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	vk "github.com/goki/vulkan"
)

func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, driver.MemoryRequirements, error) {
	var handle vk.Buffer
	res := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       bufferUsage(desc.Usage),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)
	if err := d.check("vkCreateBuffer", res); err != nil {
		return 0, driver.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, handle, &reqs)
	reqs.Deref()
	h := d.buffers.add(&buffer{handle: handle, desc: desc})
	return h, memoryRequirements(reqs), nil
}

func memoryRequirements(r vk.MemoryRequirements) driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      uint64(r.Size),
		Alignment: uint64(r.Alignment),
		TypeBits:  r.MemoryTypeBits,
	}
}

func (d *Device) BindBufferMemory(b driver.Buffer, a driver.Allocation) error {
	buf, ok := d.buffers.get(b)
	if !ok {
		return fmt.Errorf("bind of unknown buffer %d", b)
	}
	mem, ok := d.alloc.memoryOf(a)
	if !ok {
		return fmt.Errorf("bind of unknown allocation %d", a)
	}
	return d.check("vkBindBufferMemory", vk.BindBufferMemory(d.device, buf.handle, mem, 0))
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	if buf, ok := d.buffers.remove(b); ok {
		vk.DestroyBuffer(d.device, buf.handle, nil)
	}
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, driver.MemoryRequirements, error) {
	format := toVkFormat(desc.Format)
	var usage vk.ImageUsageFlags
	if desc.Format.IsDepth() {
		format = d.depthFormatFor(desc.Format)
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	} else if desc.RenderTarget {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if desc.Sampled {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if desc.TransferSrc {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)

	var flags vk.ImageCreateFlags
	if desc.Layers == 6 {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}

	var handle vk.Image
	res := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     mips,
		ArrayLayers:   layers,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       sampleCount(desc.SampleCount),
		SharingMode:   vk.SharingModeExclusive,
	}, nil, &handle)
	if err := d.check("vkCreateImage", res); err != nil {
		return 0, driver.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, handle, &reqs)
	reqs.Deref()

	desc.Layers, desc.MipLevels = layers, mips
	h := d.images.add(&image{
		handle: handle,
		format: format,
		aspect: aspectOf(desc.Format),
		desc:   desc,
	})
	return h, memoryRequirements(reqs), nil
}

// BindImageMemory binds memory and creates the view, which needs bound memory.
func (d *Device) BindImageMemory(h driver.Image, a driver.Allocation) error {
	img, ok := d.images.get(h)
	if !ok {
		return fmt.Errorf("bind of unknown image %d", h)
	}
	mem, ok := d.alloc.memoryOf(a)
	if !ok {
		return fmt.Errorf("bind of unknown allocation %d", a)
	}
	if err := d.check("vkBindImageMemory", vk.BindImageMemory(d.device, img.handle, mem, 0)); err != nil {
		return err
	}
	return d.createView(img)
}

func (d *Device) createView(img *image) error {
	viewType := vk.ImageViewType2d
	if img.desc.Layers == 6 {
		viewType = vk.ImageViewTypeCube
	}
	var view vk.ImageView
	res := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: viewType,
		Format:   img.format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: img.aspect,
			LevelCount: img.desc.MipLevels,
			LayerCount: img.desc.Layers,
		},
	}, nil, &view)
	if err := d.check("vkCreateImageView", res); err != nil {
		core.LogError(err.Error())
		return err
	}
	img.view = view
	return nil
}

func (d *Device) DestroyImage(h driver.Image) {
	img, ok := d.images.get(h)
	if !ok || img.swapchain {
		return
	}
	d.images.remove(h)
	d.destroyImage(img)
}

func (d *Device) destroyImage(img *image) {
	if img.view != nil {
		vk.DestroyImageView(d.device, img.view, nil)
		img.view = nil
	}
	if !img.swapchain && img.handle != nil {
		vk.DestroyImage(d.device, img.handle, nil)
	}
	img.handle = nil
}

// VK_LOD_CLAMP_NONE
const lodClampNone float32 = 1000.0

func (d *Device) CreateSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	mipmap := vk.SamplerMipmapModeNearest
	maxLod := float32(0.25)
	switch desc.Mipmap {
	case metadata.MipmapModeLinear:
		mipmap = vk.SamplerMipmapModeLinear
		maxLod = lodClampNone
	case metadata.MipmapModeNearest:
		maxLod = lodClampNone
	}
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter(desc.MagFilter),
		MinFilter:               filter(desc.MinFilter),
		MipmapMode:              mipmap,
		AddressModeU:            addressMode(desc.AddressU),
		AddressModeV:            addressMode(desc.AddressV),
		AddressModeW:            addressMode(desc.AddressW),
		MaxLod:                  maxLod,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
	}
	if d.phys.features.SamplerAnisotropy == vk.True {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = d.phys.properties.Limits.MaxSamplerAnisotropy
	}
	var s vk.Sampler
	if err := d.check("vkCreateSampler", vk.CreateSampler(d.device, &info, nil, &s)); err != nil {
		return 0, err
	}
	return d.samplers.add(s), nil
}

func (d *Device) DestroySampler(h driver.Sampler) {
	if s, ok := d.samplers.remove(h); ok {
		vk.DestroySampler(d.device, s, nil)
	}
}
