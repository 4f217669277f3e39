package metadata

/**
 * @brief How often the contents of a buffer change.
 */
type BufferType int

const (
	/** @brief Uploaded once, before first use. Never changes afterwards. */
	BufferTypeImmutable BufferType = iota
	/** @brief Changes rarely. Backed by a single native buffer. */
	BufferTypeStatic
	/** @brief Changes every frame. Backed by one native buffer per frame slot. */
	BufferTypeDynamic
)

func (t BufferType) String() string {
	switch t {
	case BufferTypeImmutable:
		return "immutable"
	case BufferTypeStatic:
		return "static"
	case BufferTypeDynamic:
		return "dynamic"
	}
	return "unknown"
}

/** @brief Holds bit flags for buffer usage. */
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
)

/**
 * @brief The logical description of a buffer.
 */
type BufferConfig struct {
	Name  string
	Type  BufferType
	Usage BufferUsage
	/** @brief Size in bytes. */
	Size uint64
}
