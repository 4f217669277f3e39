package driver

// Handle is an opaque native object reference owned by a Device. Zero is
// never a valid handle.
type Handle uint64

type (
	Buffer              Handle
	Image               Handle
	Sampler             Handle
	Allocation          Handle
	DescriptorSetLayout Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	RenderPass          Handle
	Framebuffer         Handle
	Pipeline            Handle
	Fence               Handle
	Semaphore           Handle
	CommandBuffer       Handle
	Swapchain           Handle
)
