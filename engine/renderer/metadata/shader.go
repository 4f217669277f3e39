package metadata

/**
 * @brief The pipeline stage a shader runs in.
 */
type ShaderStage int

const (
	ShaderStageTypeVertex ShaderStage = iota
	ShaderStageTypeFragment
	ShaderStageTypeCompute
)

// Flag converts a stage into its visibility bit.
func (s ShaderStage) Flag() ShaderStageFlags {
	switch s {
	case ShaderStageTypeVertex:
		return ShaderStageVertex
	case ShaderStageTypeFragment:
		return ShaderStageFragment
	case ShaderStageTypeCompute:
		return ShaderStageCompute
	}
	return 0
}

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageTypeVertex:
		return "vertex"
	case ShaderStageTypeFragment:
		return "fragment"
	case ShaderStageTypeCompute:
		return "compute"
	}
	return "unknown"
}

/** @brief The language or IR a shader source is written in. */
type ShaderSourceKind int

const (
	ShaderSourceSPIRV ShaderSourceKind = iota
	ShaderSourceGLSL
	ShaderSourceHLSL
	ShaderSourceMSL
)

func (k ShaderSourceKind) String() string {
	switch k {
	case ShaderSourceSPIRV:
		return "spirv"
	case ShaderSourceGLSL:
		return "glsl"
	case ShaderSourceHLSL:
		return "hlsl"
	case ShaderSourceMSL:
		return "msl"
	}
	return "unknown"
}

type ShaderVariant int

const (
	ShaderVariantStandard ShaderVariant = iota
	ShaderVariantBatchable
)
