package vulkan

import (
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	vk "github.com/goki/vulkan"
)

func toVkFormat(f metadata.TextureFormat) vk.Format {
	switch f {
	case metadata.TextureFormatRGBA8:
		return vk.FormatR8g8b8a8Unorm
	case metadata.TextureFormatBGRA8:
		return vk.FormatB8g8r8a8Unorm
	case metadata.TextureFormatR8:
		return vk.FormatR8Unorm
	case metadata.TextureFormatRGBA16F:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.TextureFormatRGBA32F:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.TextureFormatD16:
		return vk.FormatD16Unorm
	case metadata.TextureFormatD24S8:
		return vk.FormatD24UnormS8Uint
	case metadata.TextureFormatD32F:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func fromVkFormat(f vk.Format) metadata.TextureFormat {
	switch f {
	case vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb:
		return metadata.TextureFormatRGBA8
	case vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb:
		return metadata.TextureFormatBGRA8
	case vk.FormatR8Unorm:
		return metadata.TextureFormatR8
	case vk.FormatR16g16b16a16Sfloat:
		return metadata.TextureFormatRGBA16F
	case vk.FormatR32g32b32a32Sfloat:
		return metadata.TextureFormatRGBA32F
	case vk.FormatD16Unorm:
		return metadata.TextureFormatD16
	case vk.FormatD24UnormS8Uint:
		return metadata.TextureFormatD24S8
	case vk.FormatD32Sfloat:
		return metadata.TextureFormatD32F
	}
	return metadata.TextureFormatUnknown
}

// depthFormatFor resolves a requested depth format against device support.
// D24S8 is optional in Vulkan, so it falls back to D32F with stencil.
func (d *Device) depthFormatFor(f metadata.TextureFormat) vk.Format {
	want := toVkFormat(f)
	if got, ok := d.phys.depthFormat(want, vk.FormatD32SfloatS8Uint, vk.FormatD32Sfloat); ok {
		return got
	}
	return want
}

func aspectOf(f metadata.TextureFormat) vk.ImageAspectFlags {
	switch f {
	case metadata.TextureFormatD16, metadata.TextureFormatD32F:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case metadata.TextureFormatD24S8:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func sampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	}
	return vk.SampleCount1Bit
}

func bufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	flags := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	if u&metadata.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&metadata.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&metadata.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&metadata.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	return flags
}

func stageFlags(s metadata.ShaderStageFlags) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if s&metadata.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&metadata.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&metadata.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return flags
}

func shaderStage(s metadata.ShaderStage) vk.ShaderStageFlagBits {
	switch s {
	case metadata.ShaderStageTypeFragment:
		return vk.ShaderStageFragmentBit
	case metadata.ShaderStageTypeCompute:
		return vk.ShaderStageComputeBit
	}
	return vk.ShaderStageVertexBit
}

func descriptorType(t driver.DescriptorType) vk.DescriptorType {
	if t == driver.DescriptorTypeCombinedImageSampler {
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func filter(f metadata.Filter) vk.Filter {
	if f == metadata.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func addressMode(m metadata.AddressMode) vk.SamplerAddressMode {
	switch m {
	case metadata.AddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.AddressModeMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeRepeat
}

func vertexFormat(f metadata.VertexFormat) vk.Format {
	switch f {
	case metadata.VertexFormatFloat2:
		return vk.FormatR32g32Sfloat
	case metadata.VertexFormatFloat3:
		return vk.FormatR32g32b32Sfloat
	case metadata.VertexFormatFloat4:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.VertexFormatUNormByte4:
		return vk.FormatR8g8b8a8Unorm
	}
	return vk.FormatR32Sfloat
}

func topology(t metadata.Topology) vk.PrimitiveTopology {
	switch t {
	case metadata.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.TopologyLines:
		return vk.PrimitiveTopologyLineList
	case metadata.TopologyPoints:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func cullMode(m metadata.CullMode) vk.CullModeFlags {
	switch m {
	case metadata.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func frontFace(f metadata.FrontFace) vk.FrontFace {
	if f == metadata.FrontFaceCW {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}
