package metadata

/** @brief The kinds of resources the renderer manages. */
type ResourceKind int

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
	ResourceKindSampler
	ResourceKindRenderBuffer
	ResourceKindTextureRenderTarget
	ResourceKindRenderPassDescriptor
	ResourceKindGraphicsPipeline
	ResourceKindBindingTable
	ResourceKindSwapChain
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "buffer"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindSampler:
		return "sampler"
	case ResourceKindRenderBuffer:
		return "renderbuffer"
	case ResourceKindTextureRenderTarget:
		return "texture-render-target"
	case ResourceKindRenderPassDescriptor:
		return "render-pass-descriptor"
	case ResourceKindGraphicsPipeline:
		return "graphics-pipeline"
	case ResourceKindBindingTable:
		return "binding-table"
	case ResourceKindSwapChain:
		return "swapchain"
	}
	return "unknown"
}

/** @brief Bit flags controlling which stages see a binding. */
type ShaderStageFlags uint32

const (
	ShaderStageVertex ShaderStageFlags = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)
