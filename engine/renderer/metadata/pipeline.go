package metadata

type Topology int

const (
	TopologyTriangles Topology = iota
	TopologyTriangleStrip
	TopologyLines
	TopologyPoints
)

type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type FrontFace int

const (
	FrontFaceCCW FrontFace = iota
	FrontFaceCW
)

type VertexFormat int

const (
	VertexFormatFloat VertexFormat = iota
	VertexFormatFloat2
	VertexFormatFloat3
	VertexFormatFloat4
	VertexFormatUNormByte4
)

/**
 * @brief A single vertex attribute read from binding 0.
 */
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

type VertexInputLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

/**
 * @brief Fixed-function state of a graphics pipeline.
 */
type GraphicsPipelineConfig struct {
	Name        string
	Topology    Topology
	CullMode    CullMode
	FrontFace   FrontFace
	DepthTest   bool
	DepthWrite  bool
	BlendEnable bool
	SampleCount uint32
	VertexInput VertexInputLayout
}
