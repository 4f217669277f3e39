package metadata

/**
 * @brief Pixel formats understood by every backend.
 */
type TextureFormat int

const (
	TextureFormatUnknown TextureFormat = iota
	TextureFormatRGBA8
	TextureFormatBGRA8
	TextureFormatR8
	TextureFormatRGBA16F
	TextureFormatRGBA32F
	TextureFormatD16
	TextureFormatD24S8
	TextureFormatD32F
)

// IsDepth reports whether the format has a depth aspect.
func (f TextureFormat) IsDepth() bool {
	return f == TextureFormatD16 || f == TextureFormatD24S8 || f == TextureFormatD32F
}

/** @brief Bytes per pixel, 0 for unknown formats. */
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatR8:
		return 1
	case TextureFormatD16:
		return 2
	case TextureFormatRGBA8, TextureFormatBGRA8, TextureFormatD24S8, TextureFormatD32F:
		return 4
	case TextureFormatRGBA16F:
		return 8
	case TextureFormatRGBA32F:
		return 16
	}
	return 0
}

type TextureFlag uint32

const (
	/** @brief Indicates if the texture can be written (rendered) to. */
	TextureFlagRenderTarget TextureFlag = 1 << iota
	/** @brief The texture is a cube map with six layers. */
	TextureFlagCubeMap
	/** @brief The texture has a full mip chain. */
	TextureFlagMipMapped
	/** @brief The texture may be read back or copied from. */
	TextureFlagUsedAsTransferSource
	/** @brief The texture may be shared between renderer instances of one shared context. */
	TextureFlagSharable
)

/**
 * @brief The logical description of a texture.
 */
type TextureConfig struct {
	Name        string
	Width       uint32
	Height      uint32
	Format      TextureFormat
	SampleCount uint32
	Flags       TextureFlag
}

/** @brief Number of mip levels for the given size, 1 when mipmapping is off. */
func (c TextureConfig) MipLevels() uint32 {
	if c.Flags&TextureFlagMipMapped == 0 {
		return 1
	}
	levels := uint32(1)
	for w, h := c.Width, c.Height; w > 1 || h > 1; levels++ {
		w, h = w>>1, h>>1
	}
	return levels
}
