package metadata

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

/** @brief Mip filtering. MipmapModeNone disables mipmapping. */
type MipmapMode int

const (
	MipmapModeNone MipmapMode = iota
	MipmapModeNearest
	MipmapModeLinear
)

type AddressMode int

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
	AddressModeMirroredRepeat
)

type SamplerConfig struct {
	Name      string
	MagFilter Filter
	MinFilter Filter
	Mipmap    MipmapMode
	AddressU  AddressMode
	AddressV  AddressMode
	AddressW  AddressMode
}
