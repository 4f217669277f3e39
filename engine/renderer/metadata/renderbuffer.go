package metadata

type RenderBufferType int

const (
	/** @brief Depth/stencil attachment, never sampled. */
	RenderBufferTypeDepthStencil RenderBufferType = iota
	/** @brief Color attachment, typically multisampled and resolved. */
	RenderBufferTypeColor
)

type RenderBufferConfig struct {
	Name        string
	Type        RenderBufferType
	Width       uint32
	Height      uint32
	SampleCount uint32
	/** @brief Color format. Ignored for depth/stencil buffers. */
	Format TextureFormat
}
